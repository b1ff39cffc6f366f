package wire

import (
	"encoding/binary"
	"fmt"
)

// Legacy (version 1) message support. The legacy format predates the v2
// layout entirely: a 40-byte header with a subdomain name and UUID-based
// addressing, 32-bit timestamps, and master election data carried inside
// Sync instead of a separate Announce. The four legacy kinds are Sync,
// DelayReq, FollowUp and DelayResp; their field semantics never mix with
// the v2 types.

// VersionPTPV1 is the legacy protocol version number.
const VersionPTPV1 = 1

// HeaderV1Len is the size of the legacy message header.
const HeaderV1Len = 40

// Legacy message sizes on the wire (header plus body).
const (
	SyncV1Len      = 124
	DelayReqV1Len  = 124
	FollowUpV1Len  = 52
	DelayRespV1Len = 60
)

const (
	syncV1BodyLen      = 84
	followUpV1BodyLen  = 12
	delayRespV1BodyLen = 20
)

// Legacy control byte values, the per-kind discriminator.
const (
	controlV1Sync      = 0
	controlV1DelayReq  = 1
	controlV1FollowUp  = 2
	controlV1DelayResp = 3
)

// Legacy header messageType classes.
const (
	messageClassV1Event   = 1
	messageClassV1General = 2
)

// FlagsV1 is the legacy 16-bit header flag field.
type FlagsV1 uint16

const (
	FlagV1Leap61        FlagsV1 = 1 << 0
	FlagV1Leap59        FlagsV1 = 1 << 1
	FlagV1BoundaryClock FlagsV1 = 1 << 2
	FlagV1Assist        FlagsV1 = 1 << 3
	FlagV1ExtSync       FlagsV1 = 1 << 4
	FlagV1ParentStats   FlagsV1 = 1 << 5
	FlagV1SyncBurst     FlagsV1 = 1 << 6
)

// SubdomainV1 builds the fixed-size legacy subdomain field from a name.
// Names longer than the field return ErrCapacity.
func SubdomainV1(name string) ([16]byte, error) {
	var sub [16]byte
	if len(name) > len(sub) {
		return sub, fmt.Errorf("%w: subdomain %q exceeds %d bytes", ErrCapacity, name, len(sub))
	}
	copy(sub[:], name)
	return sub, nil
}

// DefaultSubdomainV1 is the default legacy subdomain name.
const DefaultSubdomainV1 = "_DFLT"

// HeaderV1 carries the legacy common header fields that are plain data.
// The message class, control byte and protocol version are derived from
// the body kind during encode.
//
// Layout on the wire (big-endian, 40 bytes):
//
//	 0-1    versionPTP
//	 2-3    versionNetwork
//	 4-19   subdomain
//	20      messageType (1 event, 2 general)
//	21      sourceCommunicationTechnology
//	22-27   sourceUuid
//	28-29   sourcePortId
//	30-31   sequenceId
//	32      control
//	33      reserved
//	34-35   flags
//	36-39   reserved
type HeaderV1 struct {
	VersionNetwork                uint16
	Subdomain                     [16]byte
	SourceCommunicationTechnology uint8
	SourceUUID                    [6]byte
	SourcePortID                  uint16
	SequenceID                    uint16
	Flags                         FlagsV1
}

func (h *HeaderV1) putHeader(b []byte, control uint8) {
	binary.BigEndian.PutUint16(b[0:2], VersionPTPV1)
	binary.BigEndian.PutUint16(b[2:4], h.VersionNetwork)
	copy(b[4:20], h.Subdomain[:])
	class := byte(messageClassV1General)
	if control == controlV1Sync || control == controlV1DelayReq {
		class = messageClassV1Event
	}
	b[20] = class
	b[21] = h.SourceCommunicationTechnology
	copy(b[22:28], h.SourceUUID[:])
	binary.BigEndian.PutUint16(b[28:30], h.SourcePortID)
	binary.BigEndian.PutUint16(b[30:32], h.SequenceID)
	b[32] = control
	b[33] = 0
	binary.BigEndian.PutUint16(b[34:36], uint16(h.Flags))
	for i := 36; i < 40; i++ {
		b[i] = 0
	}
}

func parseHeaderV1(b []byte) (HeaderV1, uint8, error) {
	if version := binary.BigEndian.Uint16(b[0:2]); version != VersionPTPV1 {
		return HeaderV1{}, 0, fmt.Errorf("%w: unsupported legacy version %d", ErrEnumConversion, version)
	}
	h := HeaderV1{
		VersionNetwork:                binary.BigEndian.Uint16(b[2:4]),
		SourceCommunicationTechnology: b[21],
		SourcePortID:                  binary.BigEndian.Uint16(b[28:30]),
		SequenceID:                    binary.BigEndian.Uint16(b[30:32]),
		Flags:                         FlagsV1(binary.BigEndian.Uint16(b[34:36])),
	}
	copy(h.Subdomain[:], b[4:20])
	copy(h.SourceUUID[:], b[22:28])
	return h, b[32], nil
}

// BodyV1 is one of the typed legacy bodies: SyncV1, DelayReqV1, FollowUpV1
// or DelayRespV1.
type BodyV1 interface {
	controlV1() uint8
}

// SyncV1 is the legacy Sync body. Legacy election state rides along in
// every Sync, which is why the body carries grandmaster, local and parent
// attributes that v2 moved into Announce.
type SyncV1 struct {
	OriginTimestamp                    TimestampV1
	EpochNumber                        uint16
	CurrentUTCOffset                   int16
	GrandmasterCommunicationTechnology uint8
	GrandmasterClockUUID               [6]byte
	GrandmasterPortID                  uint16
	GrandmasterSequenceID              uint16
	GrandmasterClockStratum            uint8
	GrandmasterClockIdentifier         [4]byte
	GrandmasterClockVariance           int16
	GrandmasterPreferred               bool
	GrandmasterIsBoundaryClock         bool
	SyncInterval                       int8
	LocalClockVariance                 int16
	LocalStepsRemoved                  uint16
	LocalClockStratum                  uint8
	LocalClockIdentifier               [4]byte
	ParentCommunicationTechnology      uint8
	ParentUUID                         [6]byte
	ParentPortField                    uint16
	EstimatedMasterVariance            int16
	EstimatedMasterDrift               int32
	UTCReasonable                      bool
}

func (SyncV1) controlV1() uint8 { return controlV1Sync }

// DelayReqV1 is the legacy DelayReq body; the legacy format gives it the
// exact Sync layout with a different control byte.
type DelayReqV1 SyncV1

func (DelayReqV1) controlV1() uint8 { return controlV1DelayReq }

// FollowUpV1 is the legacy FollowUp body.
type FollowUpV1 struct {
	AssociatedSequenceID   uint16
	PreciseOriginTimestamp TimestampV1
}

func (FollowUpV1) controlV1() uint8 { return controlV1FollowUp }

// DelayRespV1 is the legacy DelayResp body.
type DelayRespV1 struct {
	DelayReceiptTimestamp                   TimestampV1
	RequestingSourceCommunicationTechnology uint8
	RequestingSourceUUID                    [6]byte
	RequestingSourcePortID                  uint16
	RequestingSourceSequenceID              uint16
}

func (DelayRespV1) controlV1() uint8 { return controlV1DelayResp }

func bodyV1WireSize(control uint8) (int, bool) {
	switch control {
	case controlV1Sync, controlV1DelayReq:
		return syncV1BodyLen, true
	case controlV1FollowUp:
		return followUpV1BodyLen, true
	case controlV1DelayResp:
		return delayRespV1BodyLen, true
	}
	return 0, false
}

func putSyncV1Body(b []byte, v *SyncV1) error {
	if err := v.OriginTimestamp.Validate(); err != nil {
		return err
	}
	for i := range b[:syncV1BodyLen] {
		b[i] = 0
	}
	v.OriginTimestamp.put(b[0:8])
	binary.BigEndian.PutUint16(b[8:10], v.EpochNumber)
	binary.BigEndian.PutUint16(b[10:12], uint16(v.CurrentUTCOffset))
	b[13] = v.GrandmasterCommunicationTechnology
	copy(b[14:20], v.GrandmasterClockUUID[:])
	binary.BigEndian.PutUint16(b[20:22], v.GrandmasterPortID)
	binary.BigEndian.PutUint16(b[22:24], v.GrandmasterSequenceID)
	b[27] = v.GrandmasterClockStratum
	copy(b[28:32], v.GrandmasterClockIdentifier[:])
	binary.BigEndian.PutUint16(b[34:36], uint16(v.GrandmasterClockVariance))
	b[37] = boolByte(v.GrandmasterPreferred)
	b[39] = boolByte(v.GrandmasterIsBoundaryClock)
	b[43] = byte(v.SyncInterval)
	binary.BigEndian.PutUint16(b[46:48], uint16(v.LocalClockVariance))
	binary.BigEndian.PutUint16(b[50:52], v.LocalStepsRemoved)
	b[55] = v.LocalClockStratum
	copy(b[56:60], v.LocalClockIdentifier[:])
	b[61] = v.ParentCommunicationTechnology
	copy(b[62:68], v.ParentUUID[:])
	binary.BigEndian.PutUint16(b[70:72], v.ParentPortField)
	binary.BigEndian.PutUint16(b[74:76], uint16(v.EstimatedMasterVariance))
	binary.BigEndian.PutUint32(b[76:80], uint32(v.EstimatedMasterDrift))
	b[83] = boolByte(v.UTCReasonable)
	return nil
}

func parseSyncV1Body(b []byte) SyncV1 {
	var v SyncV1
	v.OriginTimestamp = timestampV1From(b[0:8])
	v.EpochNumber = binary.BigEndian.Uint16(b[8:10])
	v.CurrentUTCOffset = int16(binary.BigEndian.Uint16(b[10:12]))
	v.GrandmasterCommunicationTechnology = b[13]
	copy(v.GrandmasterClockUUID[:], b[14:20])
	v.GrandmasterPortID = binary.BigEndian.Uint16(b[20:22])
	v.GrandmasterSequenceID = binary.BigEndian.Uint16(b[22:24])
	v.GrandmasterClockStratum = b[27]
	copy(v.GrandmasterClockIdentifier[:], b[28:32])
	v.GrandmasterClockVariance = int16(binary.BigEndian.Uint16(b[34:36]))
	v.GrandmasterPreferred = b[37] != 0
	v.GrandmasterIsBoundaryClock = b[39] != 0
	v.SyncInterval = int8(b[43])
	v.LocalClockVariance = int16(binary.BigEndian.Uint16(b[46:48]))
	v.LocalStepsRemoved = binary.BigEndian.Uint16(b[50:52])
	v.LocalClockStratum = b[55]
	copy(v.LocalClockIdentifier[:], b[56:60])
	v.ParentCommunicationTechnology = b[61]
	copy(v.ParentUUID[:], b[62:68])
	v.ParentPortField = binary.BigEndian.Uint16(b[70:72])
	v.EstimatedMasterVariance = int16(binary.BigEndian.Uint16(b[74:76]))
	v.EstimatedMasterDrift = int32(binary.BigEndian.Uint32(b[76:80]))
	v.UTCReasonable = b[83] != 0
	return v
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// MessageV1 is a complete legacy message: legacy header plus one typed
// legacy body. The legacy format has no TLV mechanism.
type MessageV1 struct {
	Header HeaderV1
	Body   BodyV1
}

// WireSize returns the encoded size of the legacy message.
func (m *MessageV1) WireSize() (int, error) {
	if m.Body == nil {
		return 0, fmt.Errorf("%w: message has no body", ErrInvalid)
	}
	bodyLen, ok := bodyV1WireSize(m.Body.controlV1())
	if !ok {
		return 0, fmt.Errorf("%w: no layout for legacy body %T", ErrEnumConversion, m.Body)
	}
	return HeaderV1Len + bodyLen, nil
}

// MarshalTo encodes the legacy message into buf and returns the number of
// bytes written. A short buffer returns ErrCapacity.
func (m *MessageV1) MarshalTo(buf []byte) (int, error) {
	size, err := m.WireSize()
	if err != nil {
		return 0, err
	}
	if len(buf) < size {
		return 0, fmt.Errorf("%w: message size %d exceeds buffer %d", ErrCapacity, size, len(buf))
	}
	control := m.Body.controlV1()
	m.Header.putHeader(buf, control)
	body := buf[HeaderV1Len:size]
	switch v := m.Body.(type) {
	case *SyncV1:
		if err := putSyncV1Body(body, v); err != nil {
			return 0, err
		}
	case *DelayReqV1:
		if err := putSyncV1Body(body, (*SyncV1)(v)); err != nil {
			return 0, err
		}
	case *FollowUpV1:
		if err := v.PreciseOriginTimestamp.Validate(); err != nil {
			return 0, err
		}
		body[0], body[1] = 0, 0
		binary.BigEndian.PutUint16(body[2:4], v.AssociatedSequenceID)
		v.PreciseOriginTimestamp.put(body[4:12])
	case *DelayRespV1:
		if err := v.DelayReceiptTimestamp.Validate(); err != nil {
			return 0, err
		}
		v.DelayReceiptTimestamp.put(body[0:8])
		body[8] = 0
		body[9] = v.RequestingSourceCommunicationTechnology
		copy(body[10:16], v.RequestingSourceUUID[:])
		binary.BigEndian.PutUint16(body[16:18], v.RequestingSourcePortID)
		binary.BigEndian.PutUint16(body[18:20], v.RequestingSourceSequenceID)
	default:
		return 0, fmt.Errorf("%w: no layout for legacy body %T", ErrEnumConversion, m.Body)
	}
	return size, nil
}

// Marshal encodes the legacy message into a freshly allocated buffer.
func (m *MessageV1) Marshal() ([]byte, error) {
	size, err := m.WireSize()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := m.MarshalTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalMessageV1 decodes one legacy message from data. The control byte
// selects the body layout; unknown control values are ErrEnumConversion.
func UnmarshalMessageV1(data []byte) (*MessageV1, error) {
	if len(data) < HeaderV1Len {
		return nil, fmt.Errorf("%w: legacy header needs %d bytes, have %d", ErrBufferTooShort, HeaderV1Len, len(data))
	}
	header, control, err := parseHeaderV1(data)
	if err != nil {
		return nil, err
	}
	bodyLen, ok := bodyV1WireSize(control)
	if !ok {
		return nil, fmt.Errorf("%w: no layout for legacy control %d", ErrEnumConversion, control)
	}
	if len(data) < HeaderV1Len+bodyLen {
		return nil, fmt.Errorf("%w: legacy body needs %d bytes, have %d", ErrBufferTooShort, bodyLen, len(data)-HeaderV1Len)
	}
	body := data[HeaderV1Len : HeaderV1Len+bodyLen]
	m := &MessageV1{Header: header}
	switch control {
	case controlV1Sync:
		v := parseSyncV1Body(body)
		m.Body = &v
	case controlV1DelayReq:
		v := DelayReqV1(parseSyncV1Body(body))
		m.Body = &v
	case controlV1FollowUp:
		m.Body = &FollowUpV1{
			AssociatedSequenceID:   binary.BigEndian.Uint16(body[2:4]),
			PreciseOriginTimestamp: timestampV1From(body[4:12]),
		}
	case controlV1DelayResp:
		v := DelayRespV1{
			DelayReceiptTimestamp:                   timestampV1From(body[0:8]),
			RequestingSourceCommunicationTechnology: body[9],
			RequestingSourcePortID:                  binary.BigEndian.Uint16(body[16:18]),
			RequestingSourceSequenceID:              binary.BigEndian.Uint16(body[18:20]),
		}
		copy(v.RequestingSourceUUID[:], body[10:16])
		m.Body = &v
	}
	return m, nil
}
