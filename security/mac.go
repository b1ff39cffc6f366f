package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2s"

	"github.com/opd-ai/ptpcore/wire"
)

// ErrEmptyKey indicates a MAC was constructed without key material.
var ErrEmptyKey = errors.New("security: empty key")

// MAC computes and verifies the truncated integrity check value carried in
// an authentication TLV. Sum is computed over the raw message bytes with
// the ICV field zeroed.
type MAC interface {
	// Sum computes the ICV over data.
	Sum(data []byte) [wire.ICVLen]byte

	// Verify reports whether icv authenticates data. The comparison is
	// constant-time.
	Verify(data []byte, icv [wire.ICVLen]byte) bool
}

// HMACSHA256 is the reference MAC: HMAC-SHA256 truncated to 128 bits.
type HMACSHA256 struct {
	key []byte
}

// NewHMACSHA256 creates the MAC from key material of any non-zero length.
func NewHMACSHA256(key []byte) (*HMACSHA256, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &HMACSHA256{key: k}, nil
}

// Sum implements MAC.
func (m *HMACSHA256) Sum(data []byte) [wire.ICVLen]byte {
	h := hmac.New(sha256.New, m.key)
	h.Write(data)
	var icv [wire.ICVLen]byte
	copy(icv[:], h.Sum(nil))
	return icv
}

// Verify implements MAC.
func (m *HMACSHA256) Verify(data []byte, icv [wire.ICVLen]byte) bool {
	want := m.Sum(data)
	return hmac.Equal(want[:], icv[:])
}

// Blake2s128 is a keyed BLAKE2s MAC with a native 128-bit output, for
// deployments that prefer it over the truncated HMAC.
type Blake2s128 struct {
	key []byte
}

// NewBlake2s128 creates the MAC. BLAKE2s keys are limited to 32 bytes.
func NewBlake2s128(key []byte) (*Blake2s128, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if len(key) > blake2s.Size {
		return nil, fmt.Errorf("security: key length %d exceeds BLAKE2s limit %d", len(key), blake2s.Size)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Blake2s128{key: k}, nil
}

// Sum implements MAC.
func (m *Blake2s128) Sum(data []byte) [wire.ICVLen]byte {
	var icv [wire.ICVLen]byte
	h, err := blake2s.New128(m.key)
	if err != nil {
		// Key length is validated at construction; a zero ICV never
		// verifies.
		return icv
	}
	h.Write(data)
	copy(icv[:], h.Sum(nil))
	return icv
}

// Verify implements MAC.
func (m *Blake2s128) Verify(data []byte, icv [wire.ICVLen]byte) bool {
	want := m.Sum(data)
	return hmac.Equal(want[:], icv[:])
}
