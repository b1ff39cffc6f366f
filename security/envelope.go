package security

import (
	"errors"
	"fmt"

	"github.com/opd-ai/ptpcore/wire"
)

// Verification failures. The protocol treats all of them as message loss;
// they exist so drops are observable for diagnostics.
var (
	ErrNoAssociation = errors.New("security: no association for SPI")
	ErrUnknownKeyID  = errors.New("security: unknown key id")
	ErrVerifyFailed  = errors.New("security: ICV verification failed")
	ErrReplay        = errors.New("security: replayed sequence id")
)

// Sign appends an authentication TLV to a copy of msg, encodes it and
// fills in the ICV computed over the encoded bytes with the ICV field
// zeroed. seq is the security-layer sequence number feeding the receiver's
// anti-replay window; the caller advances it per signed message. msg is
// not modified.
func Sign(msg *wire.Message, assoc *Association, seq uint16) ([]byte, error) {
	keyID, mac := assoc.SigningMAC()
	auth := wire.AuthenticationTLV{SPI: assoc.SPI(), KeyID: keyID, SequenceID: seq}

	signed := *msg
	signed.TLVs = make([]wire.TLV, 0, len(msg.TLVs)+1)
	signed.TLVs = append(signed.TLVs, msg.TLVs...)
	signed.TLVs = append(signed.TLVs, auth.TLV())

	data, err := signed.Marshal()
	if err != nil {
		return nil, err
	}
	icvStart, _, err := wire.AuthenticationOffsets(data)
	if err != nil {
		return nil, err
	}
	icv := mac.Sum(data)
	copy(data[icvStart:icvStart+wire.ICVLen], icv[:])
	return data, nil
}

// Verify authenticates an encoded message and enforces the anti-replay
// window. data must be the exact received datagram. The MAC is checked
// before the sequence number is registered so forged traffic cannot
// poison the replay table; data itself is never modified.
func Verify(data []byte, provider Provider, sender wire.PortIdentity) error {
	icvStart, auth, err := wire.AuthenticationOffsets(data)
	if err != nil {
		return err
	}
	assoc, ok := provider.Lookup(auth.SPI)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoAssociation, auth.SPI)
	}
	mac, ok := assoc.MAC(auth.KeyID)
	if !ok {
		return fmt.Errorf("%w: %d under SPI %d", ErrUnknownKeyID, auth.KeyID, auth.SPI)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	zero := buf[icvStart : icvStart+wire.ICVLen]
	for i := range zero {
		zero[i] = 0
	}
	if !mac.Verify(buf, auth.ICV) {
		return ErrVerifyFailed
	}

	if !assoc.RegisterSequenceID(auth.KeyID, sender, auth.SequenceID) {
		return fmt.Errorf("%w: %d from %s", ErrReplay, auth.SequenceID, sender)
	}
	return nil
}
