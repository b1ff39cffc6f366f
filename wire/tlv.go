package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/ptpcore/limits"
)

// TLVType identifies a TLV extension block.
type TLVType uint16

const (
	TLVManagement                 TLVType = 0x0001
	TLVManagementErrorStatus      TLVType = 0x0002
	TLVOrganizationExtension      TLVType = 0x0003
	TLVRequestUnicastTransmission TLVType = 0x0004
	TLVGrantUnicastTransmission   TLVType = 0x0005
	TLVPathTrace                  TLVType = 0x0008
	TLVAlternateTimeOffset        TLVType = 0x0009
	TLVAuthentication             TLVType = 0x2000
	TLVAuthenticationChallenge    TLVType = 0x2001
	TLVSecurityAssociationUpdate  TLVType = 0x2002
)

var tlvTypeNames = map[TLVType]string{
	TLVManagement:                 "Management",
	TLVManagementErrorStatus:      "ManagementErrorStatus",
	TLVOrganizationExtension:      "OrganizationExtension",
	TLVRequestUnicastTransmission: "RequestUnicastTransmission",
	TLVGrantUnicastTransmission:   "GrantUnicastTransmission",
	TLVPathTrace:                  "PathTrace",
	TLVAlternateTimeOffset:        "AlternateTimeOffset",
	TLVAuthentication:             "Authentication",
	TLVAuthenticationChallenge:    "AuthenticationChallenge",
	TLVSecurityAssociationUpdate:  "SecurityAssociationUpdate",
}

func (t TLVType) String() string {
	if s, ok := tlvTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Reserved(0x%04X)", uint16(t))
}

// tlvHeaderLen is the type plus length prefix of every TLV.
const tlvHeaderLen = 4

// TLV is a raw type-length-value extension block. The length prefix is
// derived from the value during encode; values beyond
// limits.MaxTLVValueLen are a hard error in both directions.
type TLV struct {
	Type  TLVType
	Value []byte
}

func (t *TLV) wireSize() (int, error) {
	if err := limits.ValidateTLVValue(t.Value); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCapacity, err)
	}
	return tlvHeaderLen + len(t.Value), nil
}

func (t *TLV) putTLV(b []byte) (int, error) {
	size, err := t.wireSize()
	if err != nil {
		return 0, err
	}
	if len(b) < size {
		return 0, fmt.Errorf("%w: TLV size %d exceeds buffer %d", ErrCapacity, size, len(b))
	}
	binary.BigEndian.PutUint16(b[0:2], uint16(t.Type))
	binary.BigEndian.PutUint16(b[2:4], uint16(len(t.Value)))
	copy(b[tlvHeaderLen:], t.Value)
	return size, nil
}

// parseTLVs decodes consecutive TLVs from data until it is exhausted.
// A declared length past the buffer is ErrBufferTooShort; past the static
// capacity it is ErrCapacity. Returns nil for empty input.
func parseTLVs(data []byte) ([]TLV, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var tlvs []TLV
	for off := 0; off < len(data); {
		rest := data[off:]
		if len(rest) < tlvHeaderLen {
			return nil, fmt.Errorf("%w: TLV header needs %d bytes, have %d", ErrBufferTooShort, tlvHeaderLen, len(rest))
		}
		length := int(binary.BigEndian.Uint16(rest[2:4]))
		if length > limits.MaxTLVValueLen {
			return nil, fmt.Errorf("%w: declared TLV length %d exceeds limit %d", ErrCapacity, length, limits.MaxTLVValueLen)
		}
		if length > len(rest)-tlvHeaderLen {
			return nil, fmt.Errorf("%w: declared TLV length %d exceeds remaining %d", ErrBufferTooShort, length, len(rest)-tlvHeaderLen)
		}
		var value []byte
		if length > 0 {
			value = make([]byte, length)
			copy(value, rest[tlvHeaderLen:tlvHeaderLen+length])
		}
		tlvs = append(tlvs, TLV{
			Type:  TLVType(binary.BigEndian.Uint16(rest[0:2])),
			Value: value,
		})
		off += tlvHeaderLen + length
	}
	return tlvs, nil
}

// PathTrace is the typed view of a path trace TLV: the chain of clock
// identities an Announce has traversed, used for loop detection.
type PathTrace struct {
	Identities []ClockIdentity
}

// TLV encodes the path trace; more than limits.MaxPathTraceEntries
// identities is ErrCapacity.
func (p PathTrace) TLV() (TLV, error) {
	if len(p.Identities) > limits.MaxPathTraceEntries {
		return TLV{}, fmt.Errorf("%w: %d path trace entries exceeds limit %d",
			ErrCapacity, len(p.Identities), limits.MaxPathTraceEntries)
	}
	value := make([]byte, len(p.Identities)*ClockIdentityLen)
	for i, id := range p.Identities {
		copy(value[i*ClockIdentityLen:], id[:])
	}
	return TLV{Type: TLVPathTrace, Value: value}, nil
}

// Contains reports whether the trace already holds id, which signals an
// Announce loop.
func (p PathTrace) Contains(id ClockIdentity) bool {
	for _, have := range p.Identities {
		if have == id {
			return true
		}
	}
	return false
}

// PathTraceFromTLV decodes the typed view. The TLV must have the path
// trace type and a value that is a whole number of identities.
func PathTraceFromTLV(t TLV) (PathTrace, error) {
	if t.Type != TLVPathTrace {
		return PathTrace{}, fmt.Errorf("%w: TLV type %s is not a path trace", ErrInvalid, t.Type)
	}
	if len(t.Value)%ClockIdentityLen != 0 {
		return PathTrace{}, fmt.Errorf("%w: path trace length %d is not a multiple of %d", ErrInvalid, len(t.Value), ClockIdentityLen)
	}
	n := len(t.Value) / ClockIdentityLen
	if n > limits.MaxPathTraceEntries {
		return PathTrace{}, fmt.Errorf("%w: %d path trace entries exceeds limit %d", ErrCapacity, n, limits.MaxPathTraceEntries)
	}
	p := PathTrace{Identities: make([]ClockIdentity, n)}
	for i := 0; i < n; i++ {
		copy(p.Identities[i][:], t.Value[i*ClockIdentityLen:])
	}
	return p, nil
}

// ICVLen is the size of the integrity check value: a MAC truncated to 128
// bits.
const ICVLen = 16

// authenticationValueLen is the fixed value size of an authentication TLV:
// SPI, key id, sequence id, ICV.
const authenticationValueLen = 1 + 1 + 2 + ICVLen

// AuthenticationTLV is the typed view of a message authentication TLV.
// The ICV is computed over the entire message with the ICV bytes zeroed.
type AuthenticationTLV struct {
	SPI        uint8
	KeyID      uint8
	SequenceID uint16
	ICV        [ICVLen]byte
}

// TLV encodes the typed view.
func (a AuthenticationTLV) TLV() TLV {
	value := make([]byte, authenticationValueLen)
	value[0] = a.SPI
	value[1] = a.KeyID
	binary.BigEndian.PutUint16(value[2:4], a.SequenceID)
	copy(value[4:], a.ICV[:])
	return TLV{Type: TLVAuthentication, Value: value}
}

// AuthenticationFromTLV decodes the typed view from a raw TLV.
func AuthenticationFromTLV(t TLV) (AuthenticationTLV, error) {
	if t.Type != TLVAuthentication {
		return AuthenticationTLV{}, fmt.Errorf("%w: TLV type %s is not authentication", ErrInvalid, t.Type)
	}
	if len(t.Value) != authenticationValueLen {
		return AuthenticationTLV{}, fmt.Errorf("%w: authentication TLV length %d, want %d", ErrInvalid, len(t.Value), authenticationValueLen)
	}
	var a AuthenticationTLV
	a.SPI = t.Value[0]
	a.KeyID = t.Value[1]
	a.SequenceID = binary.BigEndian.Uint16(t.Value[2:4])
	copy(a.ICV[:], t.Value[4:])
	return a, nil
}

// AuthenticationOffsets locates the authentication TLV inside a raw encoded
// message without a full decode, returning the byte offset of its ICV and
// the decoded TLV. Verification zeroes data[icvStart:icvStart+ICVLen] on a
// copy before recomputing the MAC. Returns ErrInvalid when the message
// carries no authentication TLV.
func AuthenticationOffsets(data []byte) (int, AuthenticationTLV, error) {
	if len(data) < HeaderLen {
		return 0, AuthenticationTLV{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrBufferTooShort, HeaderLen, len(data))
	}
	_, msgType, declared, err := parseHeader(data)
	if err != nil {
		return 0, AuthenticationTLV{}, err
	}
	if int(declared) > len(data) {
		return 0, AuthenticationTLV{}, fmt.Errorf("%w: declared length %d exceeds buffer %d", ErrBufferTooShort, declared, len(data))
	}
	bodyLen, ok := bodyWireSize(msgType)
	if !ok {
		return 0, AuthenticationTLV{}, fmt.Errorf("%w: no layout for message type %s", ErrEnumConversion, msgType)
	}
	off := HeaderLen + bodyLen
	if off > int(declared) {
		return 0, AuthenticationTLV{}, fmt.Errorf("%w: declared length %d below %s body end", ErrInvalid, declared, msgType)
	}
	for off < int(declared) {
		rest := data[off:int(declared)]
		if len(rest) < tlvHeaderLen {
			return 0, AuthenticationTLV{}, fmt.Errorf("%w: TLV header needs %d bytes, have %d", ErrBufferTooShort, tlvHeaderLen, len(rest))
		}
		tlvType := TLVType(binary.BigEndian.Uint16(rest[0:2]))
		length := int(binary.BigEndian.Uint16(rest[2:4]))
		if length > limits.MaxTLVValueLen {
			return 0, AuthenticationTLV{}, fmt.Errorf("%w: declared TLV length %d exceeds limit %d", ErrCapacity, length, limits.MaxTLVValueLen)
		}
		if length > len(rest)-tlvHeaderLen {
			return 0, AuthenticationTLV{}, fmt.Errorf("%w: declared TLV length %d exceeds remaining %d", ErrBufferTooShort, length, len(rest)-tlvHeaderLen)
		}
		if tlvType == TLVAuthentication {
			value := make([]byte, length)
			copy(value, rest[tlvHeaderLen:tlvHeaderLen+length])
			auth, err := AuthenticationFromTLV(TLV{Type: tlvType, Value: value})
			if err != nil {
				return 0, AuthenticationTLV{}, err
			}
			icvStart := off + tlvHeaderLen + (authenticationValueLen - ICVLen)
			return icvStart, auth, nil
		}
		off += tlvHeaderLen + length
	}
	return 0, AuthenticationTLV{}, fmt.Errorf("%w: message carries no authentication TLV", ErrInvalid)
}
