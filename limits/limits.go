// Package limits provides centralized protocol capacity limits for the PTP
// engine. This ensures consistent validation across different components of
// the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMessageSize is the largest PTP message the engine will encode or
	// decode, covering header, body and appended TLVs. It fits a standard
	// UDP payload without fragmentation.
	MaxMessageSize = 1440

	// MinMessageSize is the size of the PTP v2 common header; nothing
	// shorter can be a valid message.
	MinMessageSize = 34

	// MaxTLVValueLen is the static capacity for a single TLV value. A TLV
	// declaring a larger length is rejected during decode, never truncated.
	MaxTLVValueLen = 128

	// MaxPathTraceEntries is the maximum number of 8-byte clock identities
	// carried in a path trace TLV (MaxTLVValueLen / 8).
	MaxPathTraceEntries = MaxTLVValueLen / 8

	// MaxPorts is the maximum number of ports a single instance may be
	// configured with. Exceeding it is a construction-time error.
	MaxPorts = 16

	// MaxForeignClocks is the per-port capacity for tracked foreign master
	// candidates. When full, the worst-ranked candidate is evicted first.
	MaxForeignClocks = 16

	// ReplaySequenceWindow is the width of the anti-replay acceptance
	// window: a sequence number is accepted only when its wrap-aware
	// forward distance from the last accepted one lies in
	// (0, ReplaySequenceWindow].
	ReplaySequenceWindow = 256
)

var (
	// ErrEmpty indicates an empty buffer was provided
	ErrEmpty = errors.New("empty buffer")

	// ErrTooLarge indicates a value exceeds its static capacity
	ErrTooLarge = errors.New("value exceeds capacity")

	// ErrTooSmall indicates a value is below its minimum size
	ErrTooSmall = errors.New("value below minimum size")

	// ErrPortCount indicates an invalid number of configured ports
	ErrPortCount = errors.New("invalid port count")
)

// ValidateMessageBuffer validates a raw message buffer against the engine's
// message size bounds. Returns an error with the actual and allowed sizes.
func ValidateMessageBuffer(b []byte) error {
	if len(b) == 0 {
		return ErrEmpty
	}
	if len(b) < MinMessageSize {
		return fmt.Errorf("%w: message size %d below minimum %d", ErrTooSmall, len(b), MinMessageSize)
	}
	if len(b) > MaxMessageSize {
		return fmt.Errorf("%w: message size %d exceeds limit %d", ErrTooLarge, len(b), MaxMessageSize)
	}
	return nil
}

// ValidateTLVValue validates a TLV value against MaxTLVValueLen. Zero-length
// values are legal for TLVs, so only the upper bound is checked.
func ValidateTLVValue(v []byte) error {
	if len(v) > MaxTLVValueLen {
		return fmt.Errorf("%w: TLV value size %d exceeds limit %d", ErrTooLarge, len(v), MaxTLVValueLen)
	}
	return nil
}

// ValidatePortCount validates the number of configured ports at instance
// construction time.
func ValidatePortCount(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: at least one port is required", ErrPortCount)
	}
	if n > MaxPorts {
		return fmt.Errorf("%w: %d ports exceeds limit %d", ErrPortCount, n, MaxPorts)
	}
	return nil
}
