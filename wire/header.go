package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the size of the common message header.
const HeaderLen = 34

// VersionPTP is the only major protocol version this codec speaks.
const VersionPTP = 2

// Header carries the common header fields that are plain data. The message
// type nibble, the message length and the control byte are derived from the
// message during encode and checked during decode, so they do not appear
// here and cannot disagree with the body.
//
// Layout on the wire (big-endian, 34 bytes):
//
//	 0      majorSdoId (4 bits) | messageType (4 bits)
//	 1      minorVersionPTP (4 bits) | versionPTP (4 bits)
//	 2-3    messageLength
//	 4      domainNumber
//	 5      minorSdoId
//	 6-7    flagField
//	 8-15   correctionField
//	16-19   messageTypeSpecific
//	20-29   sourcePortIdentity
//	30-31   sequenceId
//	32      controlField
//	33      logMessageInterval
type Header struct {
	MajorSdoID          uint8
	MinorVersion        uint8
	DomainNumber        uint8
	MinorSdoID          uint8
	Flags               Flags
	Correction          Correction
	MessageTypeSpecific uint32
	SourcePortIdentity  PortIdentity
	SequenceID          uint16
	LogMessageInterval  LogInterval
}

// putHeader writes the header into b, which must be at least HeaderLen
// bytes. msgType and length are the derived fields supplied by the envelope.
func (h *Header) putHeader(b []byte, msgType MessageType, length uint16) {
	b[0] = h.MajorSdoID<<4 | uint8(msgType)&0x0F
	b[1] = h.MinorVersion<<4 | VersionPTP
	binary.BigEndian.PutUint16(b[2:4], length)
	b[4] = h.DomainNumber
	b[5] = h.MinorSdoID
	binary.BigEndian.PutUint16(b[6:8], uint16(h.Flags))
	binary.BigEndian.PutUint64(b[8:16], uint64(h.Correction))
	binary.BigEndian.PutUint32(b[16:20], h.MessageTypeSpecific)
	h.SourcePortIdentity.put(b[20:30])
	binary.BigEndian.PutUint16(b[30:32], h.SequenceID)
	b[32] = controlField(msgType)
	b[33] = byte(h.LogMessageInterval)
}

// parseHeader reads the header fields from b, which must be at least
// HeaderLen bytes, returning the derived message type and declared length
// alongside the header. The control byte is not validated; the type nibble
// is authoritative.
func parseHeader(b []byte) (Header, MessageType, uint16, error) {
	if version := b[1] & 0x0F; version != VersionPTP {
		return Header{}, 0, 0, fmt.Errorf("%w: unsupported version %d", ErrEnumConversion, version)
	}
	h := Header{
		MajorSdoID:          b[0] >> 4,
		MinorVersion:        b[1] >> 4,
		DomainNumber:        b[4],
		MinorSdoID:          b[5],
		Flags:               Flags(binary.BigEndian.Uint16(b[6:8])),
		Correction:          Correction(binary.BigEndian.Uint64(b[8:16])),
		MessageTypeSpecific: binary.BigEndian.Uint32(b[16:20]),
		SourcePortIdentity:  portIdentityFrom(b[20:30]),
		SequenceID:          binary.BigEndian.Uint16(b[30:32]),
		LogMessageInterval:  LogInterval(b[33]),
	}
	msgType := MessageType(b[0] & 0x0F)
	length := binary.BigEndian.Uint16(b[2:4])
	return h, msgType, length, nil
}

// PeekMessageType returns the message type nibble of a raw buffer without
// decoding the rest, for dispatch and diagnostics.
func PeekMessageType(data []byte) (MessageType, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: need 2 bytes for message type, have %d", ErrBufferTooShort, len(data))
	}
	if version := data[1] & 0x0F; version != VersionPTP {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrEnumConversion, version)
	}
	return MessageType(data[0] & 0x0F), nil
}
