package shard

import (
	"fmt"

	"github.com/binacle-dev/binacle/errs"
	"github.com/binacle-dev/binacle/internal/options"
)

// config holds the tunables fixed at Create time and frozen into the
// shard's header for the rest of its life.
type config struct {
	offsetSize int
	alignment  int
	ngramSize  int
}

func defaultConfig() config {
	return config{
		offsetSize: 6,
		alignment:  4,
		ngramSize:  22,
	}
}

// Option configures a shard at Create time, following the generic
// functional-option pattern in internal/options.
type Option = options.Option[*config]

// WithOffsetSize sets the byte width used for offsets stored in the
// header table and block chain, between MinOffsetSize and MaxOffsetSize.
func WithOffsetSize(n int) Option {
	return options.New(func(c *config) error {
		if n < MinOffsetSize || n > MaxOffsetSize {
			return fmt.Errorf("%w: offset_size %d out of range [%d,%d]", errs.ErrInvalidParameter, n, MinOffsetSize, MaxOffsetSize)
		}
		c.offsetSize = n

		return nil
	})
}

// WithAlignment sets the power-of-two bit shift applied to every stored
// offset, between MinAlignment and MaxAlignment.
func WithAlignment(n int) Option {
	return options.New(func(c *config) error {
		if n < MinAlignment || n > MaxAlignment {
			return fmt.Errorf("%w: alignment %d out of range [%d,%d]", errs.ErrInvalidParameter, n, MinAlignment, MaxAlignment)
		}
		c.alignment = n

		return nil
	})
}

// WithNgramSize sets the bit width of the header dispatch table, between
// MinNgramSize and MaxNgramSize.
func WithNgramSize(n int) Option {
	return options.New(func(c *config) error {
		if n < MinNgramSize || n > MaxNgramSize {
			return fmt.Errorf("%w: ngram_size %d out of range [%d,%d]", errs.ErrInvalidParameter, n, MinNgramSize, MaxNgramSize)
		}
		c.ngramSize = n

		return nil
	})
}
