// Package limits provides centralized capacity constants and validation
// functions for the PTP engine. This package ensures consistent enforcement
// of static buffer and table capacities across all components.
//
// # Capacity Hierarchy
//
// The package defines the fixed capacities that bound every dynamically
// sized structure in the engine:
//
//   - MaxMessageSize (1440 bytes): The largest message the wire codec will
//     encode or decode, including the header, the body and all appended
//     TLVs. It fits a standard Ethernet UDP payload without fragmentation.
//
//   - MaxTLVValueLen (128 bytes): The static capacity for a single TLV
//     value. A TLV declaring a larger length fails decoding with a capacity
//     error rather than being truncated.
//
//   - MaxPathTraceEntries (16): The number of 8-byte clock identities a
//     path trace TLV can carry within MaxTLVValueLen.
//
//   - MaxPorts (16): The number of ports one instance may drive. The count
//     is validated once, at construction, so per-port state can use fixed
//     backing storage.
//
//   - MaxForeignClocks (16): The per-port capacity for foreign master
//     candidates considered by the best master selection.
//
//   - ReplaySequenceWindow (256): The width of the anti-replay acceptance
//     window for authenticated messages; it bounds per-sender replay state
//     to a single counter.
//
// # Validation Functions
//
// Each validation function checks its input against the corresponding
// capacity and reports a wrapped sentinel error with the observed and
// allowed sizes:
//
//	err := limits.ValidateMessageBuffer(buf)
//	if err != nil {
//	    // errors.Is(err, limits.ErrTooLarge) or limits.ErrEmpty
//	}
//
// # Error Types
//
//   - ErrEmpty: Returned when an empty or nil buffer is provided
//   - ErrTooLarge: Returned when a value exceeds its static capacity
//   - ErrTooSmall: Returned when a value is below its minimum size
//   - ErrPortCount: Returned when the configured port count is 0 or above MaxPorts
//
// # Security Considerations
//
// MaxMessageSize and MaxTLVValueLen bound all memory allocated on behalf of
// network input. Received data must be validated against these limits before
// further processing so a remote peer cannot force unbounded allocation.
package limits
