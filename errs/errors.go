// Package errs holds the sentinel error values shared across binacle's
// packages. Call sites wrap these with fmt.Errorf("%w: ...", errs.ErrXxx, ...)
// to add context; callers compare with errors.Is against the sentinel.
package errs

import "errors"

var (
	// ErrNotFound is returned when a path is missing on open.
	ErrNotFound = errors.New("binacle: not found")

	// ErrAlreadyExists is returned when a create target already exists.
	ErrAlreadyExists = errors.New("binacle: already exists")

	// ErrLockBusy is returned when an advisory file lock cannot be acquired
	// in non-blocking mode.
	ErrLockBusy = errors.New("binacle: lock busy")

	// ErrInvalidParameter is returned when a shard or manager parameter is
	// outside its permitted range.
	ErrInvalidParameter = errors.New("binacle: invalid parameter")

	// ErrInvalidMetadata is returned when a metadata sidecar is unreadable,
	// malformed, or fails its integrity digest.
	ErrInvalidMetadata = errors.New("binacle: invalid metadata")

	// ErrPatternTooShort is returned when a search pattern is shorter than
	// 4 bytes.
	ErrPatternTooShort = errors.New("binacle: pattern too short")

	// ErrEncoderOverflow is returned when a varint-encoded delta would
	// require more than 4 bytes (value >= 2^28).
	ErrEncoderOverflow = errors.New("binacle: encoder overflow")

	// ErrCapacityExhausted is returned when the backing file cannot grow.
	ErrCapacityExhausted = errors.New("binacle: capacity exhausted")

	// ErrIOError wraps an unexpected underlying read/write/seek failure.
	ErrIOError = errors.New("binacle: io error")

	// ErrInvalidHeaderSize is returned when a shard's header table does not
	// match the size implied by its metadata.
	ErrInvalidHeaderSize = errors.New("binacle: invalid header size")

	// ErrInvalidBlockPrefix is returned when a posting-list block's prefix
	// cannot be parsed (corrupt size_log, or prefix runs past EOF).
	ErrInvalidBlockPrefix = errors.New("binacle: invalid block prefix")

	// ErrShardSealed is returned when Seal is called on a shard handle that
	// is not active read-write (already sealed, read-only, or closed).
	ErrShardSealed = errors.New("binacle: shard sealed")

	// ErrNotWritable is returned on a mutating call to a handle that was
	// not opened for write or has since been sealed.
	ErrNotWritable = errors.New("binacle: handle not writable")

	// ErrUnsupportedHost is returned when a shard or manager operation is
	// attempted on a host whose native byte order is incompatible with the
	// on-disk format (host-native little-endian, not portable across
	// endianness).
	ErrUnsupportedHost = errors.New("binacle: unsupported host")
)
