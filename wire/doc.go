// Package wire implements the bit-exact binary codec for PTP messages,
// covering the current (version 2) format, the legacy (version 1) format,
// and the TLV extension blocks appended to v2 messages.
//
// # Encoding Model
//
// All integers are big-endian. Encoding and decoding are symmetric: for
// every valid message value m, UnmarshalMessage(m.Marshal()) reproduces m
// exactly. Derived wire fields (the message type nibble, the declared
// message length, the legacy-compatible control byte) are computed from the
// typed body during encode and checked during decode, so a Message value
// cannot carry a header that disagrees with its body.
//
// Two entry points serve the two deployment styles:
//
//	n, err := msg.MarshalTo(buf)   // caller-owned buffer, no allocation
//	raw, err := msg.Marshal()      // exact-size allocation
//	msg, err := wire.UnmarshalMessage(raw)
//
// # Validation
//
// Every decode path checks buffer lengths before indexing. A buffer shorter
// than a fixed layout or a declared length is ErrBufferTooShort; a declared
// length beyond a static capacity (limits.MaxMessageSize,
// limits.MaxTLVValueLen) is ErrCapacity; a structurally impossible value
// (nanoseconds of one billion or more, inconsistent declared lengths) is
// ErrInvalid; a wire value with no usable interpretation (unsupported
// version, a message type without a body layout) is ErrEnumConversion.
// Nothing in this package panics on network input, and no allocation is
// proportional to an unvalidated declared length.
//
// # Reserved Wire Values
//
// Enumerations with reserved ranges (ClockClass, ClockAccuracy, TimeSource,
// TLVType) decode permissively: an unlisted value is carried as its numeric
// value and re-encodes to the same number. Only values the codec cannot act
// on at all, such as an unknown message type nibble, fail the decode.
//
// # Legacy Format
//
// The version 1 format is a separate type family (MessageV1, HeaderV1,
// SyncV1, DelayReqV1, FollowUpV1, DelayRespV1) with its own layouts; v1 and
// v2 field semantics never mix. Timestamps convert explicitly:
// TimestampV1.Timestamp widens losslessly, Timestamp.V1 narrows and returns
// ErrCapacity when the seconds value does not fit the 32-bit legacy field.
package wire
