package shard

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/binacle-dev/binacle/errs"
)

// Meta is the shard's sidecar metadata, persisted as JSON at
// "<shard path>.meta".
//
// Digest is an xxHash64 over the committed header table, recomputed at
// open time to catch a truncated or bit-rotted shard file before it is
// trusted to answer queries.
type Meta struct {
	Size        uint64  `json:"size"`
	OffsetSize  uint8   `json:"offset_size"`
	Alignment   uint8   `json:"alignment"`
	NgramSize   uint8   `json:"ngram_size"`
	NbFile      uint32  `json:"nb_file"`
	LastID      uint32  `json:"last_id"`
	AverageSize float64 `json:"average_size"`
	Digest      uint64  `json:"digest"`
}

func metaPath(shardPath string) string {
	return shardPath + ".meta"
}

func readMeta(shardPath string) (Meta, error) {
	data, err := os.ReadFile(metaPath(shardPath))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: %s", errs.ErrNotFound, metaPath(shardPath))
		}

		return Meta{}, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}

	return m, nil
}

func writeMeta(shardPath string, m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}

	if err := os.WriteFile(metaPath(shardPath), data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	return nil
}

// digestHeaderTable computes the integrity digest over the first
// headerTableSize bytes of the shard's mapped region (the committed
// header dispatch table).
func digestHeaderTable(data []byte, headerSize int) uint64 {
	n := headerSize
	if n > len(data) {
		n = len(data)
	}

	return xxhash.Sum64(data[:n])
}
