// Package compress provides optional compression codecs for a shardset
// manager's id-to-path map sidecar.
//
// The map sidecar is a JSON blob that grows linearly with the number of
// indexed files and is rewritten in full on every flush, so it benefits
// from general-purpose compression in a way the shard files themselves
// do not (their varint-packed posting lists are already dense).
//
// Four algorithms are available, selected at manager-create time:
//
//   - None: no compression, useful when the sidecar is small or CPU-bound callers disable it
//   - Zstd: best compression ratio, moderate speed, good for archival managers
//   - S2: a Snappy-family codec balancing speed and ratio
//   - LZ4: fastest decompression, moderate ratio, good for managers reopened often
//
// All four implement the Codec interface:
//
//	type Codec interface {
//	    Compress(data []byte) ([]byte, error)
//	    Decompress(data []byte) ([]byte, error)
//	}
package compress
