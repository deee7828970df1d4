package shardset

import "strconv"

const (
	// MinOffsetSize and MaxOffsetSize bound a shardset's per-shard
	// offset_size parameter. This range is wider than shard.MinOffsetSize
	// .. shard.MaxOffsetSize because it is checked before a shard exists,
	// when only the manager's own bounds apply; shard.Create enforces its
	// own, narrower range independently when the shard is actually built.
	MinOffsetSize = 4
	MaxOffsetSize = 8

	MinAlignment = 4
	MaxAlignment = 12

	MinNgramSize = 14
	MaxNgramSize = 32

	// defaultMaxIndexSize is the per-shard size budget a manager seals
	// against when none is configured explicitly.
	defaultMaxIndexSize = 1 << 30 // 1 GiB
)

// shardName formats the on-disk path of the nth shard belonging to a
// manager rooted at dbPath, following the naming convention of the
// original single-process implementation this package generalizes.
func shardName(dbPath string, n int) string {
	return dbPath + "_index" + strconv.Itoa(n) + ".db"
}
