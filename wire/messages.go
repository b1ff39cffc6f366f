package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/ptpcore/limits"
)

// Body is one of the typed message bodies. The concrete set is fixed:
// Sync, DelayReq, FollowUp, DelayResp, PDelayReq, PDelayResp,
// PDelayRespFollowUp, Announce and Signaling.
type Body interface {
	MessageType() MessageType
}

// Sync announces an event timestamp from master to slaves. In two-step
// operation OriginTimestamp is approximate and the precise value follows
// in a FollowUp.
type Sync struct {
	OriginTimestamp Timestamp
}

// MessageType implements Body.
func (Sync) MessageType() MessageType { return MessageSync }

// DelayReq is the slave-to-master half of the end-to-end delay measurement.
type DelayReq struct {
	OriginTimestamp Timestamp
}

// MessageType implements Body.
func (DelayReq) MessageType() MessageType { return MessageDelayReq }

// FollowUp carries the precise egress timestamp of the preceding two-step
// Sync with the same sequence id.
type FollowUp struct {
	PreciseOriginTimestamp Timestamp
}

// MessageType implements Body.
func (FollowUp) MessageType() MessageType { return MessageFollowUp }

// DelayResp returns the master's receive timestamp for a DelayReq.
type DelayResp struct {
	ReceiveTimestamp       Timestamp
	RequestingPortIdentity PortIdentity
}

// MessageType implements Body.
func (DelayResp) MessageType() MessageType { return MessageDelayResp }

// PDelayReq opens a peer-to-peer link delay measurement. The body carries
// a 10-byte reserved block after the timestamp to match the response size.
type PDelayReq struct {
	OriginTimestamp Timestamp
}

// MessageType implements Body.
func (PDelayReq) MessageType() MessageType { return MessagePDelayReq }

// PDelayResp returns the peer's receive timestamp for a PDelayReq.
type PDelayResp struct {
	RequestReceiptTimestamp Timestamp
	RequestingPortIdentity  PortIdentity
}

// MessageType implements Body.
func (PDelayResp) MessageType() MessageType { return MessagePDelayResp }

// PDelayRespFollowUp carries the precise egress timestamp of a two-step
// PDelayResp.
type PDelayRespFollowUp struct {
	ResponseOriginTimestamp Timestamp
	RequestingPortIdentity  PortIdentity
}

// MessageType implements Body.
func (PDelayRespFollowUp) MessageType() MessageType { return MessagePDelayRespFollowUp }

// Announce advertises the sender's view of the grandmaster for master
// election. The time property flags of the same message live in the header
// flag field.
type Announce struct {
	OriginTimestamp         Timestamp
	CurrentUTCOffset        int16
	GrandmasterPriority1    uint8
	GrandmasterClockQuality ClockQuality
	GrandmasterPriority2    uint8
	GrandmasterIdentity     ClockIdentity
	StepsRemoved            uint16
	TimeSource              TimeSource
}

// MessageType implements Body.
func (Announce) MessageType() MessageType { return MessageAnnounce }

// Signaling addresses TLVs to a specific port; the all-ones identity is
// the wildcard target.
type Signaling struct {
	TargetPortIdentity PortIdentity
}

// MessageType implements Body.
func (Signaling) MessageType() MessageType { return MessageSignaling }

// Body sizes on the wire, excluding header and TLVs.
const (
	syncBodyLen               = 10
	delayReqBodyLen           = 10
	followUpBodyLen           = 10
	delayRespBodyLen          = 20
	pdelayReqBodyLen          = 20
	pdelayRespBodyLen         = 20
	pdelayRespFollowUpBodyLen = 20
	announceBodyLen           = 30
	signalingBodyLen          = 10
)

// bodyWireSize returns the fixed body size for a message type, or false for
// types this codec has no layout for.
func bodyWireSize(t MessageType) (int, bool) {
	switch t {
	case MessageSync:
		return syncBodyLen, true
	case MessageDelayReq:
		return delayReqBodyLen, true
	case MessageFollowUp:
		return followUpBodyLen, true
	case MessageDelayResp:
		return delayRespBodyLen, true
	case MessagePDelayReq:
		return pdelayReqBodyLen, true
	case MessagePDelayResp:
		return pdelayRespBodyLen, true
	case MessagePDelayRespFollowUp:
		return pdelayRespFollowUpBodyLen, true
	case MessageAnnounce:
		return announceBodyLen, true
	case MessageSignaling:
		return signalingBodyLen, true
	}
	return 0, false
}

func putBody(b []byte, body Body) error {
	switch v := body.(type) {
	case *Sync:
		if err := v.OriginTimestamp.Validate(); err != nil {
			return err
		}
		v.OriginTimestamp.put(b[0:10])
	case *DelayReq:
		if err := v.OriginTimestamp.Validate(); err != nil {
			return err
		}
		v.OriginTimestamp.put(b[0:10])
	case *FollowUp:
		if err := v.PreciseOriginTimestamp.Validate(); err != nil {
			return err
		}
		v.PreciseOriginTimestamp.put(b[0:10])
	case *DelayResp:
		if err := v.ReceiveTimestamp.Validate(); err != nil {
			return err
		}
		v.ReceiveTimestamp.put(b[0:10])
		v.RequestingPortIdentity.put(b[10:20])
	case *PDelayReq:
		if err := v.OriginTimestamp.Validate(); err != nil {
			return err
		}
		v.OriginTimestamp.put(b[0:10])
		for i := 10; i < 20; i++ {
			b[i] = 0
		}
	case *PDelayResp:
		if err := v.RequestReceiptTimestamp.Validate(); err != nil {
			return err
		}
		v.RequestReceiptTimestamp.put(b[0:10])
		v.RequestingPortIdentity.put(b[10:20])
	case *PDelayRespFollowUp:
		if err := v.ResponseOriginTimestamp.Validate(); err != nil {
			return err
		}
		v.ResponseOriginTimestamp.put(b[0:10])
		v.RequestingPortIdentity.put(b[10:20])
	case *Announce:
		if err := v.OriginTimestamp.Validate(); err != nil {
			return err
		}
		v.OriginTimestamp.put(b[0:10])
		binary.BigEndian.PutUint16(b[10:12], uint16(v.CurrentUTCOffset))
		b[12] = 0
		b[13] = v.GrandmasterPriority1
		v.GrandmasterClockQuality.put(b[14:18])
		b[18] = v.GrandmasterPriority2
		copy(b[19:27], v.GrandmasterIdentity[:])
		binary.BigEndian.PutUint16(b[27:29], v.StepsRemoved)
		b[29] = byte(v.TimeSource)
	case *Signaling:
		v.TargetPortIdentity.put(b[0:10])
	default:
		return fmt.Errorf("%w: no layout for body %T", ErrEnumConversion, body)
	}
	return nil
}

func parseBody(t MessageType, b []byte) (Body, error) {
	size, ok := bodyWireSize(t)
	if !ok {
		return nil, fmt.Errorf("%w: no layout for message type %s", ErrEnumConversion, t)
	}
	if len(b) < size {
		return nil, fmt.Errorf("%w: %s body needs %d bytes, have %d", ErrBufferTooShort, t, size, len(b))
	}
	switch t {
	case MessageSync:
		return &Sync{OriginTimestamp: timestampFrom(b)}, nil
	case MessageDelayReq:
		return &DelayReq{OriginTimestamp: timestampFrom(b)}, nil
	case MessageFollowUp:
		return &FollowUp{PreciseOriginTimestamp: timestampFrom(b)}, nil
	case MessageDelayResp:
		return &DelayResp{
			ReceiveTimestamp:       timestampFrom(b),
			RequestingPortIdentity: portIdentityFrom(b[10:20]),
		}, nil
	case MessagePDelayReq:
		return &PDelayReq{OriginTimestamp: timestampFrom(b)}, nil
	case MessagePDelayResp:
		return &PDelayResp{
			RequestReceiptTimestamp: timestampFrom(b),
			RequestingPortIdentity:  portIdentityFrom(b[10:20]),
		}, nil
	case MessagePDelayRespFollowUp:
		return &PDelayRespFollowUp{
			ResponseOriginTimestamp: timestampFrom(b),
			RequestingPortIdentity:  portIdentityFrom(b[10:20]),
		}, nil
	case MessageAnnounce:
		return &Announce{
			OriginTimestamp:         timestampFrom(b),
			CurrentUTCOffset:        int16(binary.BigEndian.Uint16(b[10:12])),
			GrandmasterPriority1:    b[13],
			GrandmasterClockQuality: clockQualityFrom(b[14:18]),
			GrandmasterPriority2:    b[18],
			GrandmasterIdentity:     clockIdentityFrom(b[19:27]),
			StepsRemoved:            binary.BigEndian.Uint16(b[27:29]),
			TimeSource:              TimeSource(b[29]),
		}, nil
	case MessageSignaling:
		return &Signaling{TargetPortIdentity: portIdentityFrom(b)}, nil
	}
	return nil, fmt.Errorf("%w: no layout for message type %s", ErrEnumConversion, t)
}

func clockIdentityFrom(b []byte) ClockIdentity {
	var c ClockIdentity
	copy(c[:], b[:8])
	return c
}

// Message is a complete protocol message: common header, one typed body,
// and zero or more trailing TLVs.
type Message struct {
	Header Header
	Body   Body
	TLVs   []TLV
}

// WireSize returns the encoded size of the message, or an error when the
// body type is unknown or the TLVs exceed capacity.
func (m *Message) WireSize() (int, error) {
	if m.Body == nil {
		return 0, fmt.Errorf("%w: message has no body", ErrInvalid)
	}
	bodyLen, ok := bodyWireSize(m.Body.MessageType())
	if !ok {
		return 0, fmt.Errorf("%w: no layout for body %T", ErrEnumConversion, m.Body)
	}
	size := HeaderLen + bodyLen
	for i := range m.TLVs {
		n, err := m.TLVs[i].wireSize()
		if err != nil {
			return 0, err
		}
		size += n
	}
	return size, nil
}

// MarshalTo encodes the message into buf and returns the number of bytes
// written. The buffer must hold the full message; a short buffer returns
// ErrCapacity and writes nothing.
func (m *Message) MarshalTo(buf []byte) (int, error) {
	size, err := m.WireSize()
	if err != nil {
		return 0, err
	}
	if size > limits.MaxMessageSize {
		return 0, fmt.Errorf("%w: message size %d exceeds limit %d", ErrCapacity, size, limits.MaxMessageSize)
	}
	if len(buf) < size {
		return 0, fmt.Errorf("%w: message size %d exceeds buffer %d", ErrCapacity, size, len(buf))
	}
	m.Header.putHeader(buf, m.Body.MessageType(), uint16(size))
	bodyLen, _ := bodyWireSize(m.Body.MessageType())
	if err := putBody(buf[HeaderLen:HeaderLen+bodyLen], m.Body); err != nil {
		return 0, err
	}
	off := HeaderLen + bodyLen
	for i := range m.TLVs {
		n, err := m.TLVs[i].putTLV(buf[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return size, nil
}

// Marshal encodes the message into a freshly allocated buffer of exact size.
func (m *Message) Marshal() ([]byte, error) {
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

// UnmarshalMessage decodes one message from data. The declared message
// length must lie within data; trailing bytes past it are ignored. Every
// variable length is checked against the buffer and against static capacity
// before any field is read.
func UnmarshalMessage(data []byte) (*Message, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrBufferTooShort, HeaderLen, len(data))
	}
	header, msgType, declared, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	if int(declared) > limits.MaxMessageSize {
		return nil, fmt.Errorf("%w: declared length %d exceeds limit %d", ErrCapacity, declared, limits.MaxMessageSize)
	}
	if int(declared) > len(data) {
		return nil, fmt.Errorf("%w: declared length %d exceeds buffer %d", ErrBufferTooShort, declared, len(data))
	}
	if int(declared) < HeaderLen {
		return nil, fmt.Errorf("%w: declared length %d below header size", ErrInvalid, declared)
	}
	body, err := parseBody(msgType, data[HeaderLen:declared])
	if err != nil {
		return nil, err
	}
	bodyLen, _ := bodyWireSize(msgType)
	tlvs, err := parseTLVs(data[HeaderLen+bodyLen : declared])
	if err != nil {
		return nil, err
	}
	return &Message{Header: header, Body: body, TLVs: tlvs}, nil
}
