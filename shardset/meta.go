package shardset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/binacle-dev/binacle/compress"
	"github.com/binacle-dev/binacle/errs"
	"github.com/binacle-dev/binacle/format"
)

// shardRecord tracks one shard belonging to a manager: its path and
// whether it has been sealed off from further inserts.
type shardRecord struct {
	Path   string `json:"path"`
	IsFull bool   `json:"is_full"`
}

// meta is the manager's entire persisted state, stored as JSON directly
// in the manager's db file (there is no separate mmapped region for a
// manager the way there is for a shard).
type meta struct {
	IsMap        bool                   `json:"is_map"`
	Compression  format.CompressionType `json:"compression"`
	NbFile       uint32                 `json:"nb_file"`
	LastID       uint32                 `json:"last_id"`
	MaxIndexSize uint64                 `json:"max_index_size"`
	OffsetSize   uint8                  `json:"offset_size"`
	Alignment    uint8                  `json:"alignment"`
	NgramSize    uint8                  `json:"ngram_size"`
	Shards       []shardRecord          `json:"shards"`
}

func readManagerMeta(f *os.File) (meta, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return meta{}, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return meta{}, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return meta{}, fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}

	return m, nil
}

func writeManagerMeta(f *os.File, m meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	return nil
}

func mapPath(dbPath string) string {
	return dbPath + ".map"
}

func readFileMap(path string, codec compress.Decompressor) (map[uint32]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[uint32]string{}, nil
		}

		return nil, fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	data, err := codec.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: map decompress: %w", errs.ErrInvalidMetadata, err)
	}

	m := map[uint32]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
		}
	}

	return m, nil
}

func writeFileMap(path string, m map[uint32]string, codec compress.Compressor) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}

	compressed, err := codec.Compress(data)
	if err != nil {
		return fmt.Errorf("%w: map compress: %w", errs.ErrInvalidMetadata, err)
	}

	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIOError, err)
	}

	return nil
}
