//go:build unix

package shard

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/binacle-dev/binacle/errs"
)

// mmapFile maps the first length bytes of f into memory. The caller is
// responsible for keeping f open for the lifetime of the returned region
// and for calling munmapFile before the file is closed.
func mmapFile(f *os.File, length int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(f.Fd()), 0, length, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %w", errs.ErrIOError, err)
	}

	return data, nil
}

func munmapFile(data []byte) error {
	if data == nil {
		return nil
	}

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("%w: munmap: %w", errs.ErrIOError, err)
	}

	return nil
}

// flockExclusive blocks until an exclusive advisory lock on f is acquired.
func flockExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("%w: flock: %w", errs.ErrIOError, err)
	}

	return nil
}

// flockShared blocks until a shared advisory lock on f is acquired.
func flockShared(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return fmt.Errorf("%w: flock: %w", errs.ErrIOError, err)
	}

	return nil
}

func funlock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("%w: funlock: %w", errs.ErrIOError, err)
	}

	return nil
}
