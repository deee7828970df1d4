package shard

import (
	"fmt"

	"github.com/binacle-dev/binacle/errs"
)

// The on-disk format stores multi-byte integers as host-native
// little-endian, but several fields (header-table offsets, a block's
// prev-offset) use a caller-chosen width between 4 and 6 bytes rather than
// a fixed power-of-two width, so encoding/binary's fixed-width helpers
// don't apply directly. readUintN/putUintN do the same byte-wise,
// alignment-agnostic little-endian packing encoding/binary uses
// internally, generalized to an arbitrary width.
func readUintN(b []byte, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}

	return v
}

func putUintN(b []byte, width int, v uint64) {
	for i := 0; i < width; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// blockPrefix is the fixed-layout header carried at the start of every
// posting-list block:
//
//	1 byte  size_log
//	2 bytes nb_elem
//	2 bytes nb_bytes
//	offsetSize bytes prev (shifted offset of the next-older block, 0 = end)
type blockPrefix struct {
	sizeLog uint8
	nbElem  uint16
	nbBytes uint16
	prev    uint64 // shifted offset, i.e. already divided by 2^alignment
}

// readBlockPrefix decodes the prefix at off within data, rejecting an
// offset whose prefix would run past the mapped region before ever
// slicing it — a bogus chain offset must fail closed, not panic.
func readBlockPrefix(data []byte, off uint64, offsetSize int) (blockPrefix, error) {
	prefixSize := uint64(blockPrefixSize(offsetSize))
	if off > uint64(len(data)) || uint64(len(data))-off < prefixSize {
		return blockPrefix{}, fmt.Errorf("%w: block at offset %d runs past mapped region", errs.ErrInvalidBlockPrefix, off)
	}

	return parseBlockPrefix(data[off:off+prefixSize], offsetSize)
}

// parseBlockPrefix decodes the prefix at the start of b, rejecting a
// slice too short to hold a full prefix or a size_log past
// maxBlockSizeLog, both of which indicate a corrupt chain rather than a
// legitimately large block.
func parseBlockPrefix(b []byte, offsetSize int) (blockPrefix, error) {
	if len(b) < blockPrefixSize(offsetSize) {
		return blockPrefix{}, fmt.Errorf("%w: prefix runs past mapped region", errs.ErrInvalidBlockPrefix)
	}

	sizeLog := b[0]
	if sizeLog > maxBlockSizeLog {
		return blockPrefix{}, fmt.Errorf("%w: size_log %d exceeds maximum %d", errs.ErrInvalidBlockPrefix, sizeLog, maxBlockSizeLog)
	}

	return blockPrefix{
		sizeLog: sizeLog,
		nbElem:  uint16(b[1]) | uint16(b[2])<<8,
		nbBytes: uint16(b[3]) | uint16(b[4])<<8,
		prev:    readUintN(b[5:5+offsetSize], offsetSize),
	}, nil
}

func (p blockPrefix) writeTo(b []byte, offsetSize int) {
	b[0] = p.sizeLog
	b[1] = byte(p.nbElem)
	b[2] = byte(p.nbElem >> 8)
	b[3] = byte(p.nbBytes)
	b[4] = byte(p.nbBytes >> 8)
	putUintN(b[5:5+offsetSize], offsetSize, p.prev)
}
