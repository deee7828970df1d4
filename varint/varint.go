// Package varint implements the continuation-bit variable-byte integer
// codec used to compress deltas between consecutive file ids within a
// shard's posting lists.
//
// Each byte carries 7 bits of payload, least-significant group first; the
// high bit signals whether another byte follows. The codec is total and
// pure over its domain: every v < 2^28 round-trips through Pack/Unpack,
// and values >= 2^28 fail closed with errs.ErrEncoderOverflow rather than
// silently truncating. This mirrors the LEB128 shape of encoding/binary's
// Uvarint, capped at 4 bytes instead of 10.
package varint

import "github.com/binacle-dev/binacle/errs"

// MaxValue is the largest value Pack accepts (2^28 - 1).
const MaxValue = 1<<28 - 1

// MaxWidth is the maximum number of bytes Pack ever produces.
const MaxWidth = 4

// Pack encodes v into 1-4 bytes and appends them to dst, returning the
// extended slice and the number of bytes written.
//
// Fails with errs.ErrEncoderOverflow if v > MaxValue (v >= 2^28).
func Pack(dst []byte, v uint32) ([]byte, int, error) {
	if v > MaxValue {
		return dst, 0, errs.ErrEncoderOverflow
	}

	start := len(dst)

	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	dst = append(dst, byte(v))

	return dst, len(dst) - start, nil
}

// Encode is a convenience wrapper over Pack that returns a freshly
// allocated slice holding only the encoded bytes.
func Encode(v uint32) ([]byte, error) {
	buf, _, err := Pack(make([]byte, 0, MaxWidth), v)
	return buf, err
}

// Unpack decodes a single varint-encoded value from the start of data.
//
// Returns the decoded value and the number of bytes consumed. Fails with
// errs.ErrInvalidBlockPrefix if data is empty or the continuation chain
// runs past MaxWidth bytes without terminating (corrupt input) — both
// cases that a bare (0, 0) result would otherwise make indistinguishable
// from a legitimately decoded zero.
func Unpack(data []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < MaxWidth && i < len(data); i++ {
		b := data[i]
		v |= uint32(b&0x7F) << (7 * uint(i))
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}

	return 0, 0, errs.ErrInvalidBlockPrefix
}

// Width reports how many bytes Pack would produce for v, without encoding
// it. Returns 0 and errs.ErrEncoderOverflow if v >= 2^28.
func Width(v uint32) (int, error) {
	switch {
	case v > MaxValue:
		return 0, errs.ErrEncoderOverflow
	case v < 1<<7:
		return 1, nil
	case v < 1<<14:
		return 2, nil
	case v < 1<<21:
		return 3, nil
	default:
		return 4, nil
	}
}
