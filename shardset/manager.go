// Package shardset implements a manager that fans a single n-gram index
// out across an ordered collection of shards, routing inserts to the
// first shard with room and sealing shards that fill up.
package shardset

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/binacle-dev/binacle/compress"
	"github.com/binacle-dev/binacle/errs"
	"github.com/binacle-dev/binacle/internal/endian"
	"github.com/binacle-dev/binacle/internal/options"
	"github.com/binacle-dev/binacle/internal/pool"
	"github.com/binacle-dev/binacle/shard"
)

// Manager owns an ordered list of shards that together hold one logical
// index. Shards are created lazily, in order, once the current one fills
// past its size budget; inserts keep at most one writable shard open at a
// time (closing it once it is sealed), and every search closes that shard
// and reopens each shard file read-only.
type Manager struct {
	mu sync.Mutex

	dbPath string
	file   *os.File

	cfg config
	m   meta

	cur      *shard.Shard // the shard currently open for writing, or nil
	curIndex int          // index into m.Shards that cur corresponds to

	fileMap  map[uint32]string // nil unless m.IsMap
	mapDirty bool
}

// Create makes a new, empty manager database at path.
func Create(path string, opts ...Option) (*Manager, error) {
	if !endian.IsNativeLittleEndian() {
		return nil, fmt.Errorf("%w: shard format is host-native little-endian only", errs.ErrUnsupportedHost)
	}

	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrAlreadyExists, path)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create: %w", errs.ErrIOError, err)
	}

	m := meta{
		IsMap:        cfg.useMap,
		Compression:  cfg.compression,
		MaxIndexSize: cfg.maxIndexSize,
		OffsetSize:   uint8(cfg.offsetSize),
		Alignment:    uint8(cfg.alignment),
		NgramSize:    uint8(cfg.ngramSize),
	}

	if err := writeManagerMeta(f, m); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	mgr := &Manager{
		dbPath: path,
		file:   f,
		cfg:    cfg,
		m:      m,
	}

	if cfg.useMap {
		mgr.fileMap = map[uint32]string{}
	}

	return mgr, nil
}

// Open opens an existing manager database at path.
func Open(path string) (*Manager, error) {
	if !endian.IsNativeLittleEndian() {
		return nil, fmt.Errorf("%w: shard format is host-native little-endian only", errs.ErrUnsupportedHost)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, path)
		}

		return nil, fmt.Errorf("%w: open: %w", errs.ErrIOError, err)
	}

	m, err := readManagerMeta(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	mgr := &Manager{
		dbPath: path,
		file:   f,
		cfg: config{
			offsetSize:   int(m.OffsetSize),
			alignment:    int(m.Alignment),
			ngramSize:    int(m.NgramSize),
			maxIndexSize: m.MaxIndexSize,
			useMap:       m.IsMap,
			compression:  m.Compression,
		},
		m: m,
	}

	if m.IsMap {
		codec, err := compress.CreateCodec(m.Compression)
		if err != nil {
			f.Close()
			return nil, err
		}

		fm, err := readFileMap(mapPath(path), codec)
		if err != nil {
			f.Close()
			return nil, err
		}
		mgr.fileMap = fm
	}

	return mgr, nil
}

// Close flushes and closes the manager's own file and any currently
// open writable shard, and persists the id-to-path map sidecar if the
// manager was created WithMap and it has unflushed changes.
func (mgr *Manager) Close() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	var firstErr error
	if mgr.cur != nil {
		if err := mgr.cur.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		mgr.cur = nil
	}

	if mgr.m.IsMap && mgr.mapDirty {
		if err := mgr.flushMapLocked(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := writeManagerMeta(mgr.file, mgr.m); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := mgr.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	return firstErr
}

func (mgr *Manager) flushMapLocked() error {
	codec, err := compress.CreateCodec(mgr.m.Compression)
	if err != nil {
		return err
	}

	if err := writeFileMap(mapPath(mgr.dbPath), mgr.fileMap, codec); err != nil {
		return err
	}
	mgr.mapDirty = false

	return nil
}

// ensureWritableShardLocked returns the shard inserts should currently
// go to, opening the first non-full shard on disk or creating a new one
// if every existing shard is full.
func (mgr *Manager) ensureWritableShardLocked() (*shard.Shard, error) {
	if mgr.cur != nil {
		return mgr.cur, nil
	}

	for i, rec := range mgr.m.Shards {
		if rec.IsFull {
			continue
		}

		s, err := shard.OpenWrite(rec.Path)
		if err != nil {
			return nil, err
		}
		mgr.cur = s
		mgr.curIndex = i

		return mgr.cur, nil
	}

	return mgr.addShardLocked()
}

func (mgr *Manager) addShardLocked() (*shard.Shard, error) {
	name := shardName(mgr.dbPath, len(mgr.m.Shards))

	s, err := shard.Create(name,
		shard.WithOffsetSize(mgr.cfg.offsetSize),
		shard.WithAlignment(mgr.cfg.alignment),
		shard.WithNgramSize(mgr.cfg.ngramSize),
	)
	if err != nil {
		return nil, err
	}

	mgr.m.Shards = append(mgr.m.Shards, shardRecord{Path: name})
	mgr.cur = s
	mgr.curIndex = len(mgr.m.Shards) - 1

	return s, nil
}

// InsertFile indexes the file at filepath under id, which must be
// globally unique within the manager. Do not use this in a tight loop
// over many files; InsertFiles batches the map-sidecar flush.
func (mgr *Manager) InsertFile(id uint32, filepath string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if err := mgr.insertFileLocked(id, filepath); err != nil {
		return err
	}

	if mgr.m.IsMap {
		return mgr.flushMapLocked()
	}

	return nil
}

// InsertFiles indexes every (id, filepath) pair, flushing the map
// sidecar once at the end instead of after each file.
func (mgr *Manager) InsertFiles(files map[uint32]string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	ids := make([]uint32, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := mgr.insertFileLocked(id, files[id]); err != nil {
			return err
		}
	}

	if mgr.m.IsMap {
		return mgr.flushMapLocked()
	}

	return nil
}

// readFileBuffered reads filepath into a pooled buffer sized to match the
// file, returning the contents and a release func the caller must invoke
// once it is done indexing them.
func readFileBuffered(filepath string) ([]byte, func(), error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	bb := pool.GetBufferForSize(info.Size())
	bb.ExtendOrGrow(int(info.Size()))

	if _, err := io.ReadFull(f, bb.Bytes()); err != nil {
		pool.PutBufferForSize(bb)
		return nil, nil, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	return bb.Bytes(), func() { pool.PutBufferForSize(bb) }, nil
}

func (mgr *Manager) insertFileLocked(id uint32, filepath string) error {
	s, err := mgr.ensureWritableShardLocked()
	if err != nil {
		return err
	}

	data, release, err := readFileBuffered(filepath)
	if err != nil {
		return err
	}
	defer release()

	if err := s.InsertFile(id, data); err != nil {
		return err
	}

	mgr.m.NbFile++
	if id > mgr.m.LastID {
		mgr.m.LastID = id
	}

	if mgr.m.IsMap {
		mgr.fileMap[id] = filepath
		mgr.mapDirty = true
	}

	if s.Size() > mgr.m.MaxIndexSize {
		if err := s.Seal(); err != nil {
			return err
		}
		mgr.m.Shards[mgr.curIndex].IsFull = true
		mgr.cur = nil
		if err := s.Close(); err != nil {
			return err
		}
	}

	return nil
}

// Search returns the union of every shard's hits for pattern.
func (mgr *Manager) Search(pattern []byte) ([]uint32, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mgr.closeWritableShardLocked()

	result := map[uint32]struct{}{}
	for _, rec := range mgr.m.Shards {
		ids, err := mgr.searchShard(rec.Path, func(s *shard.Shard) ([]uint32, error) {
			return s.Search(pattern)
		})
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			result[id] = struct{}{}
		}
	}

	return sortedKeys(result), nil
}

// SearchMulti returns the union of every shard's hits across all
// patterns, treated as one combined n-gram query (a file matches if it
// contains every n-gram drawn from every pattern).
func (mgr *Manager) SearchMulti(patterns [][]byte) ([]uint32, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	ngramSet := map[uint32]struct{}{}
	for _, p := range patterns {
		if len(p) < shard.NgramLen {
			return nil, errs.ErrPatternTooShort
		}

		for i := 0; i+shard.NgramLen <= len(p); i++ {
			ng := uint32(p[i]) | uint32(p[i+1])<<8 | uint32(p[i+2])<<16 | uint32(p[i+3])<<24
			ngramSet[ng] = struct{}{}
		}
	}

	ngrams := make([]uint32, 0, len(ngramSet))
	for ng := range ngramSet {
		ngrams = append(ngrams, ng)
	}

	mgr.closeWritableShardLocked()

	result := map[uint32]struct{}{}
	for _, rec := range mgr.m.Shards {
		ids, err := mgr.searchShard(rec.Path, func(s *shard.Shard) ([]uint32, error) {
			return s.SearchNgrams(ngrams)
		})
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			result[id] = struct{}{}
		}
	}

	return sortedKeys(result), nil
}

// closeWritableShardLocked drops the writable handle before a search, so
// every shard is read consistently through a fresh read-only mapping.
func (mgr *Manager) closeWritableShardLocked() {
	if mgr.cur == nil {
		return
	}

	mgr.cur.Close()
	mgr.cur = nil
}

func (mgr *Manager) searchShard(path string, f func(*shard.Shard) ([]uint32, error)) ([]uint32, error) {
	s, err := shard.OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return f(s)
}

// ToPaths resolves a set of ids back to the filepaths they were
// inserted under. Requires the manager to have been created or opened
// WithMap.
func (mgr *Manager) ToPaths(ids []uint32) ([]string, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if !mgr.m.IsMap {
		return nil, fmt.Errorf("%w: manager has no id-to-path map", errs.ErrInvalidParameter)
	}

	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		path, ok := mgr.fileMap[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", errs.ErrNotFound, id)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// NbFile returns the number of files inserted across all shards.
func (mgr *Manager) NbFile() uint32 {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	return mgr.m.NbFile
}

// ShardPaths returns the on-disk paths of every shard the manager has
// created so far, in insertion order.
func (mgr *Manager) ShardPaths() []string {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	paths := make([]string, len(mgr.m.Shards))
	for i, rec := range mgr.m.Shards {
		paths[i] = rec.Path
	}

	return paths
}

func sortedKeys(set map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
