// Package binacle provides an on-disk n-gram inverted index for fast
// substring search over binary files.
//
// binacle indexes every 4-byte window of a file's bytes into a shard: a
// single memory-mapped index file addressed by a literal n-gram dispatch
// table. A shard manager fans a growing corpus out across multiple shards,
// sealing one and opening the next once it crosses a size budget, and
// unions search results across all of them.
//
// # Core Features
//
//   - Literal n-gram dispatch (no hashing): the low ngram_size bits of a
//     4-byte window select its header-table slot directly
//   - Append-only, memory-mapped posting lists with a delta-varint encoded
//     tail for fast inserts
//   - Caller-assigned file ids: binacle never generates ids itself
//   - Multi-shard fan-out with automatic sealing and an optional
//     id-to-path sidecar map, optionally compressed (None, Zstd, S2, LZ4)
//
// # Basic Usage
//
// Indexing and searching a single shard:
//
//	import "github.com/binacle-dev/binacle/shard"
//
//	s, _ := shard.Create("corpus.db")
//	defer s.Close()
//
//	data, _ := os.ReadFile("sample.bin")
//	_ = s.InsertFile(1, data)
//
//	hits, _ := s.Search([]byte("MZ\x90\x00"))
//
// Indexing a growing corpus across multiple shards:
//
//	mgr, _ := binacle.NewManager("corpus.mgr", binacle.WithMap(format.CompressionZstd))
//	defer mgr.Close()
//
//	_ = mgr.InsertFile(1, "/path/to/sample.bin")
//	hits, _ := mgr.Search([]byte("MZ\x90\x00"))
//	paths, _ := mgr.ToPaths(hits)
//
// # Package Structure
//
// This package provides convenient top-level wrappers around shard and
// shardset construction, covering the common case of opening or creating a
// manager with default parameters. For fine-grained control over a single
// shard's layout (offset_size, alignment, ngram_size), use the shard
// package directly.
package binacle

import (
	"github.com/binacle-dev/binacle/format"
	"github.com/binacle-dev/binacle/shard"
	"github.com/binacle-dev/binacle/shardset"
)

// Option configures a Manager at creation time; OpenManager takes no
// options and restores the settings persisted by NewManager.
type Option = shardset.Option

// WithOffsetSize sets the byte width of offsets stored in every shard the
// manager creates. See shardset.WithOffsetSize.
func WithOffsetSize(n int) Option { return shardset.WithOffsetSize(n) }

// WithAlignment sets the block-alignment bit shift of every shard the
// manager creates. See shardset.WithAlignment.
func WithAlignment(n int) Option { return shardset.WithAlignment(n) }

// WithNgramSize sets the header dispatch table width of every shard the
// manager creates. See shardset.WithNgramSize.
func WithNgramSize(n int) Option { return shardset.WithNgramSize(n) }

// WithMaxIndexSize sets the per-shard size budget before a shard is sealed
// and routing moves to the next one. See shardset.WithMaxIndexSize.
func WithMaxIndexSize(n uint64) Option { return shardset.WithMaxIndexSize(n) }

// WithMap enables the id-to-path sidecar, optionally compressed. See
// shardset.WithMap.
func WithMap(compression format.CompressionType) Option {
	return shardset.WithMap(compression)
}

// NewManager creates a new, empty shard manager database at path.
//
// This is the recommended entry point for indexing a corpus too large for
// a single shard. It uses sensible shard defaults (5-byte offsets, a
// 64-byte block alignment, a 4M-slot dispatch table) and a 1GiB per-shard
// size budget; override any of these with options.
//
// Example:
//
//	mgr, err := binacle.NewManager("corpus.mgr")
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewManager(path string, opts ...Option) (*shardset.Manager, error) {
	return shardset.Create(path, opts...)
}

// OpenManager opens an existing shard manager database at path.
func OpenManager(path string) (*shardset.Manager, error) {
	return shardset.Open(path)
}

// NewShard creates a single, standalone shard index file at path, bypassing
// the manager's multi-shard routing. Use this when the corpus is known to
// fit comfortably within one shard's size budget.
func NewShard(path string, opts ...shard.Option) (*shard.Shard, error) {
	return shard.Create(path, opts...)
}

// OpenShard opens an existing shard index file for writing.
func OpenShard(path string) (*shard.Shard, error) {
	return shard.OpenWrite(path)
}

// OpenShardReadOnly opens an existing shard index file for read-only
// search, without taking the writer's advisory lock.
func OpenShardReadOnly(path string) (*shard.Shard, error) {
	return shard.OpenRead(path)
}
