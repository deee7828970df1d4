package shardset

import (
	"fmt"

	"github.com/binacle-dev/binacle/errs"
	"github.com/binacle-dev/binacle/format"
	"github.com/binacle-dev/binacle/internal/options"
)

// config holds the tunables shared by every shard a manager creates,
// fixed at manager-create time.
type config struct {
	offsetSize   int
	alignment    int
	ngramSize    int
	maxIndexSize uint64
	useMap       bool
	compression  format.CompressionType
}

func defaultConfig() config {
	return config{
		offsetSize:   5,
		alignment:    6,
		ngramSize:    22,
		maxIndexSize: defaultMaxIndexSize,
		useMap:       false,
		compression:  format.CompressionNone,
	}
}

// Option configures a Manager at Create time.
type Option = options.Option[*config]

// WithOffsetSize sets the byte width of offsets stored in every shard
// this manager creates.
func WithOffsetSize(n int) Option {
	return options.New(func(c *config) error {
		if n < MinOffsetSize || n > MaxOffsetSize {
			return fmt.Errorf("%w: offset_size %d out of range [%d,%d]", errs.ErrInvalidParameter, n, MinOffsetSize, MaxOffsetSize)
		}
		c.offsetSize = n

		return nil
	})
}

// WithAlignment sets the block-alignment bit shift of every shard this
// manager creates.
func WithAlignment(n int) Option {
	return options.New(func(c *config) error {
		if n < MinAlignment || n > MaxAlignment {
			return fmt.Errorf("%w: alignment %d out of range [%d,%d]", errs.ErrInvalidParameter, n, MinAlignment, MaxAlignment)
		}
		c.alignment = n

		return nil
	})
}

// WithNgramSize sets the header dispatch table width of every shard this
// manager creates.
func WithNgramSize(n int) Option {
	return options.New(func(c *config) error {
		if n < MinNgramSize || n > MaxNgramSize {
			return fmt.Errorf("%w: ngram_size %d out of range [%d,%d]", errs.ErrInvalidParameter, n, MinNgramSize, MaxNgramSize)
		}
		c.ngramSize = n

		return nil
	})
}

// WithMaxIndexSize sets the per-shard size budget; a shard is sealed and
// routing moves to the next one once its size exceeds this value after
// an insert.
func WithMaxIndexSize(n uint64) Option {
	return options.New(func(c *config) error {
		if n == 0 {
			return fmt.Errorf("%w: max_index_size must be > 0", errs.ErrInvalidParameter)
		}
		c.maxIndexSize = n

		return nil
	})
}

// WithMap enables the id-to-path sidecar, optionally compressed with the
// given algorithm (format.CompressionNone disables compression but keeps
// the map enabled).
func WithMap(compression format.CompressionType) Option {
	return options.NoError(func(c *config) {
		c.useMap = true
		c.compression = compression
	})
}
