// Package endian detects the host's native byte order.
//
// binacle's shard format is explicitly host-native little-endian and is
// not portable across endianness, so there is no per-shard byte-order
// choice here, only detection, used whenever a shard or manager is
// created or opened to refuse to run on a big-endian host rather than
// silently writing an unreadable file.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// CheckEndianness returns the host's native byte order.
func CheckEndianness() binary.ByteOrder {
	var i uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&i))

	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// IsNativeLittleEndian reports whether the host is little-endian.
func IsNativeLittleEndian() bool {
	return CheckEndianness() == binary.LittleEndian
}
