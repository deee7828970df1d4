package shard

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/binacle-dev/binacle/errs"
)

// alloc reserves 2^sizeLog bytes from the shard's bump allocator and
// returns the byte offset of the reserved region. The allocator never
// reuses or relocates a previously returned region — growth only ever
// appends to the backing file.
func (s *Shard) alloc(sizeLog uint8) (uint64, error) {
	blockBytes := uint64(1) << sizeLog

	if s.size+blockBytes > s.capacity {
		if err := s.grow(blockBytes); err != nil {
			return 0, err
		}
	}

	offset := s.size
	s.size += blockBytes

	return offset, nil
}

// grow extends the backing file by at least minGrowthBytes (and always
// enough to satisfy need), then remaps it. Existing offsets remain valid:
// the file is only ever extended, never truncated or moved, so every
// previously returned pointer into data still refers to the same bytes
// after a grow.
func (s *Shard) grow(need uint64) error {
	growth := need
	if growth < minGrowthBytes {
		growth = minGrowthBytes
	}

	newCapacity := s.capacity + growth
	for newCapacity < s.size+need {
		newCapacity += minGrowthBytes
	}

	if err := s.file.Truncate(int64(newCapacity)); err != nil {
		if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
			return fmt.Errorf("%w: grow truncate: %w", errs.ErrCapacityExhausted, err)
		}
		return fmt.Errorf("%w: grow truncate: %w", errs.ErrIOError, err)
	}

	if err := munmapFile(s.data); err != nil {
		return err
	}

	data, err := mmapFile(s.file, int(newCapacity), s.writable)
	if err != nil {
		return err
	}

	s.data = data
	s.capacity = newCapacity

	return nil
}
