// Package security implements the message authentication layer: per-SPI
// keyed associations, truncated integrity check values carried in
// authentication TLVs, and per-sender anti-replay tracking.
//
// # Core Types
//
// The package is built around a small set of types:
//
//   - [MAC]: computes and verifies 128-bit ICVs over raw message bytes
//   - [HMACSHA256]: the reference MAC, HMAC-SHA256 truncated to 128 bits
//   - [Blake2s128]: keyed BLAKE2s with a native 128-bit output
//   - [Association]: key material and replay state behind one SPI
//   - [Provider]: resolves the SPI found in a message to its association
//
// # Signing and Verification
//
// Outbound messages are signed by appending an authentication TLV and
// computing the ICV over the encoded message with the ICV field zeroed:
//
//	data, err := security.Sign(msg, assoc, seq)
//	if err != nil {
//	    return err
//	}
//
// Inbound messages are verified before any protocol processing. A failure
// means the message is dropped, exactly as if it had been lost in
// transit:
//
//	if err := security.Verify(data, provider, sender); err != nil {
//	    // drop, log for diagnostics
//	}
//
// All ICV comparisons are constant-time.
//
// # Anti-Replay
//
// Each association tracks the last accepted sequence number per (key id,
// sender identity). A sequence number is accepted only when its wrap-aware
// forward distance from the last accepted one lies in (0, 256]: duplicates
// and backward values are replays, larger jumps indicate desynchronized or
// forged state. Acceptance advances the stored value, so the window only
// ever moves forward and no per-sender history is kept beyond a single
// counter.
//
// # Thread Safety
//
// Associations are safe for concurrent use: the key set is immutable after
// construction and the replay table is guarded by a lock. MACs are
// stateless per call.
package security
