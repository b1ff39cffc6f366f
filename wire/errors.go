package wire

import "errors"

// Wire format errors. Every decode failure maps onto exactly one of these
// sentinels, wrapped with context. A malformed message is discarded by the
// caller; none of these conditions is fatal to a port and none panics.
var (
	// ErrBufferTooShort indicates the buffer does not hold enough bytes for
	// the fixed-size fields or for a declared variable length.
	ErrBufferTooShort = errors.New("buffer too short")

	// ErrCapacity indicates a value exceeds a static capacity: a TLV value
	// beyond its limit, a timestamp that cannot narrow to the legacy
	// format, or an encode target too small for the message.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrEnumConversion indicates a wire value has no usable interpretation,
	// such as a message type with no body layout or an unsupported version.
	ErrEnumConversion = errors.New("enum conversion failed")

	// ErrInvalid indicates a structurally invalid value, such as a
	// nanoseconds field of one billion or more, or an inconsistent
	// declared message length.
	ErrInvalid = errors.New("invalid value")
)
