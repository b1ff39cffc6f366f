package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Field sizes in bytes.
const (
	ClockIdentityLen = 8
	PortIdentityLen  = 10
	TimestampLen     = 10
	TimestampV1Len   = 8
	ClockQualityLen  = 4
)

// ClockIdentity is the 8-byte globally unique identifier of a PTP node.
// It is assigned once at instance construction and never changes.
type ClockIdentity [8]byte

// String returns the identity as lowercase hex.
func (c ClockIdentity) String() string {
	return hex.EncodeToString(c[:])
}

// Compare returns -1, 0 or 1 ordering identities lexicographically by byte.
func (c ClockIdentity) Compare(other ClockIdentity) int {
	return bytes.Compare(c[:], other[:])
}

// PortIdentity identifies one port endpoint: a clock identity plus a port
// number, unique per active port on the network.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

// String returns "clockidentity:port".
func (p PortIdentity) String() string {
	return fmt.Sprintf("%s:%d", p.ClockIdentity, p.PortNumber)
}

// Compare orders port identities by clock identity first, port number
// second. It is a strict total order over distinct ports, which makes it
// usable as the final tie-break in master election.
func (p PortIdentity) Compare(other PortIdentity) int {
	if c := p.ClockIdentity.Compare(other.ClockIdentity); c != 0 {
		return c
	}
	switch {
	case p.PortNumber < other.PortNumber:
		return -1
	case p.PortNumber > other.PortNumber:
		return 1
	}
	return 0
}

func (p PortIdentity) put(b []byte) {
	copy(b[0:8], p.ClockIdentity[:])
	binary.BigEndian.PutUint16(b[8:10], p.PortNumber)
}

func portIdentityFrom(b []byte) PortIdentity {
	var p PortIdentity
	copy(p.ClockIdentity[:], b[0:8])
	p.PortNumber = binary.BigEndian.Uint16(b[8:10])
	return p
}

// Timestamp is the current on-wire time representation: a 48-bit seconds
// field and a 32-bit nanoseconds field, 10 bytes total. Seconds count from
// the PTP epoch. Nanos must satisfy 0 <= Nanos < 1e9.
type Timestamp struct {
	Seconds uint64
	Nanos   uint32
}

const maxTimestampSeconds = 1<<48 - 1

// NewTimestamp converts a wall-clock time to a Timestamp. Times before the
// epoch or beyond the 48-bit seconds range return ErrInvalid.
func NewTimestamp(t time.Time) (Timestamp, error) {
	sec := t.Unix()
	if sec < 0 {
		return Timestamp{}, fmt.Errorf("%w: time %v precedes the epoch", ErrInvalid, t)
	}
	if uint64(sec) > maxTimestampSeconds {
		return Timestamp{}, fmt.Errorf("%w: time %v exceeds the 48-bit seconds range", ErrInvalid, t)
	}
	return Timestamp{Seconds: uint64(sec), Nanos: uint32(t.Nanosecond())}, nil
}

// Time converts the timestamp back to a wall-clock time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t.Seconds), int64(t.Nanos))
}

// Validate checks the structural invariants of the timestamp.
func (t Timestamp) Validate() error {
	if t.Nanos >= 1e9 {
		return fmt.Errorf("%w: nanoseconds %d out of range", ErrInvalid, t.Nanos)
	}
	if t.Seconds > maxTimestampSeconds {
		return fmt.Errorf("%w: seconds %d exceeds 48-bit range", ErrInvalid, t.Seconds)
	}
	return nil
}

// V1 narrows the timestamp to the legacy representation. Seconds values
// that do not fit the 32-bit legacy field return ErrCapacity; the value is
// never silently truncated.
func (t Timestamp) V1() (TimestampV1, error) {
	if t.Seconds > math.MaxUint32 {
		return TimestampV1{}, fmt.Errorf("%w: seconds %d does not fit the 32-bit legacy field", ErrCapacity, t.Seconds)
	}
	return TimestampV1{Seconds: uint32(t.Seconds), Nanos: t.Nanos}, nil
}

func (t Timestamp) put(b []byte) {
	b[0] = byte(t.Seconds >> 40)
	b[1] = byte(t.Seconds >> 32)
	binary.BigEndian.PutUint32(b[2:6], uint32(t.Seconds))
	binary.BigEndian.PutUint32(b[6:10], t.Nanos)
}

func timestampFrom(b []byte) Timestamp {
	sec := uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(binary.BigEndian.Uint32(b[2:6]))
	return Timestamp{Seconds: sec, Nanos: binary.BigEndian.Uint32(b[6:10])}
}

// TimestampV1 is the legacy on-wire time representation: 32-bit seconds and
// 32-bit nanoseconds, 8 bytes total. The 32-bit seconds field wraps in 2106;
// widening to Timestamp is always lossless, narrowing is checked.
type TimestampV1 struct {
	Seconds uint32
	Nanos   uint32
}

// Timestamp widens the legacy value to the current representation.
func (t TimestampV1) Timestamp() Timestamp {
	return Timestamp{Seconds: uint64(t.Seconds), Nanos: t.Nanos}
}

// Validate checks the structural invariants of the legacy timestamp.
func (t TimestampV1) Validate() error {
	if t.Nanos >= 1e9 {
		return fmt.Errorf("%w: nanoseconds %d out of range", ErrInvalid, t.Nanos)
	}
	return nil
}

func (t TimestampV1) put(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], t.Seconds)
	binary.BigEndian.PutUint32(b[4:8], t.Nanos)
}

func timestampV1From(b []byte) TimestampV1 {
	return TimestampV1{
		Seconds: binary.BigEndian.Uint32(b[0:4]),
		Nanos:   binary.BigEndian.Uint32(b[4:8]),
	}
}

// TimeInterval is a signed time difference in nanoseconds multiplied by
// 2^16, the fixed-point encoding used by correction and offset fields.
type TimeInterval int64

// Nanoseconds returns the interval as fractional nanoseconds.
func (t TimeInterval) Nanoseconds() float64 {
	return float64(t) / 65536.0
}

// Duration returns the interval rounded to the nearest nanosecond.
func (t TimeInterval) Duration() time.Duration {
	return time.Duration(math.Round(t.Nanoseconds()))
}

// NewTimeInterval converts a duration to the fixed-point representation.
func NewTimeInterval(d time.Duration) TimeInterval {
	return TimeInterval(d.Nanoseconds() << 16)
}

// Correction is the header correctionField: the same fixed-point encoding
// as TimeInterval, with the all-ones-but-sign value reserved to mean the
// correction is too big to represent.
type Correction int64

// CorrectionTooBig is the reserved correctionField value indicating the
// accumulated correction overflowed the representable range.
const CorrectionTooBig Correction = math.MaxInt64

// TooBig reports whether the correction carries the overflow marker.
func (c Correction) TooBig() bool {
	return c == CorrectionTooBig
}

// Duration returns the correction rounded to the nearest nanosecond.
// The overflow marker has no duration; callers must check TooBig first.
func (c Correction) Duration() time.Duration {
	return time.Duration(math.Round(float64(c) / 65536.0))
}

// NewCorrection converts a duration to the correction encoding.
func NewCorrection(d time.Duration) Correction {
	return Correction(d.Nanoseconds() << 16)
}

// LogInterval is a message interval expressed as the base-2 logarithm of
// its period in seconds: 0 means one second, 1 means two seconds, -1 means
// half a second.
type LogInterval int8

// Duration returns the interval period as a duration.
func (l LogInterval) Duration() time.Duration {
	return time.Duration(math.Ldexp(float64(time.Second), int(l)))
}

// ClockClass denotes the traceability class of a clock. Values outside the
// named set are carried through unchanged; unknown classes still order
// correctly in election because comparison is numeric.
type ClockClass uint8

const (
	// ClockClassPrimary is a clock synchronized to a primary reference.
	ClockClassPrimary ClockClass = 6
	// ClockClassPrimaryHoldover lost its primary reference but is within
	// holdover specification.
	ClockClassPrimaryHoldover ClockClass = 7
	// ClockClassApplicationSpecific is an application-defined reference.
	ClockClassApplicationSpecific ClockClass = 13
	// ClockClassApplicationHoldover lost an application-defined reference.
	ClockClassApplicationHoldover ClockClass = 14
	// ClockClassDegradedA is out of holdover specification, still a master.
	ClockClassDegradedA ClockClass = 52
	// ClockClassDegradedB is further degraded alternate class A.
	ClockClassDegradedB ClockClass = 187
	// ClockClassDefault is a clock with no better claim, the usual value
	// for a free-running node.
	ClockClassDefault ClockClass = 248
	// ClockClassSlaveOnly marks a clock that must never serve as master.
	ClockClassSlaveOnly ClockClass = 255
)

var clockClassNames = map[ClockClass]string{
	ClockClassPrimary:             "Primary",
	ClockClassPrimaryHoldover:     "PrimaryHoldover",
	ClockClassApplicationSpecific: "ApplicationSpecific",
	ClockClassApplicationHoldover: "ApplicationHoldover",
	ClockClassDegradedA:           "DegradedA",
	ClockClassDegradedB:           "DegradedB",
	ClockClassDefault:             "Default",
	ClockClassSlaveOnly:           "SlaveOnly",
}

func (c ClockClass) String() string {
	if s, ok := clockClassNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Reserved(%d)", uint8(c))
}

// ClockAccuracy is the advertised accuracy bound of a clock. Unlisted wire
// values are reserved; they decode to their numeric value and re-encode
// identically.
type ClockAccuracy uint8

const (
	ClockAccuracyNanosecond25      ClockAccuracy = 0x20
	ClockAccuracyNanosecond100     ClockAccuracy = 0x21
	ClockAccuracyNanosecond250     ClockAccuracy = 0x22
	ClockAccuracyMicrosecond1      ClockAccuracy = 0x23
	ClockAccuracyMicrosecond2p5    ClockAccuracy = 0x24
	ClockAccuracyMicrosecond10     ClockAccuracy = 0x25
	ClockAccuracyMicrosecond25     ClockAccuracy = 0x26
	ClockAccuracyMicrosecond100    ClockAccuracy = 0x27
	ClockAccuracyMicrosecond250    ClockAccuracy = 0x28
	ClockAccuracyMillisecond1      ClockAccuracy = 0x29
	ClockAccuracyMillisecond2p5    ClockAccuracy = 0x2A
	ClockAccuracyMillisecond10     ClockAccuracy = 0x2B
	ClockAccuracyMillisecond25     ClockAccuracy = 0x2C
	ClockAccuracyMillisecond100    ClockAccuracy = 0x2D
	ClockAccuracyMillisecond250    ClockAccuracy = 0x2E
	ClockAccuracySecond1           ClockAccuracy = 0x2F
	ClockAccuracySecond10          ClockAccuracy = 0x30
	ClockAccuracySecondGreater10   ClockAccuracy = 0x31
	ClockAccuracyUnknown           ClockAccuracy = 0xFE
)

var clockAccuracyNames = map[ClockAccuracy]string{
	ClockAccuracyNanosecond25:    "25ns",
	ClockAccuracyNanosecond100:   "100ns",
	ClockAccuracyNanosecond250:   "250ns",
	ClockAccuracyMicrosecond1:    "1us",
	ClockAccuracyMicrosecond2p5:  "2.5us",
	ClockAccuracyMicrosecond10:   "10us",
	ClockAccuracyMicrosecond25:   "25us",
	ClockAccuracyMicrosecond100:  "100us",
	ClockAccuracyMicrosecond250:  "250us",
	ClockAccuracyMillisecond1:    "1ms",
	ClockAccuracyMillisecond2p5:  "2.5ms",
	ClockAccuracyMillisecond10:   "10ms",
	ClockAccuracyMillisecond25:   "25ms",
	ClockAccuracyMillisecond100:  "100ms",
	ClockAccuracyMillisecond250:  "250ms",
	ClockAccuracySecond1:         "1s",
	ClockAccuracySecond10:        "10s",
	ClockAccuracySecondGreater10: ">10s",
	ClockAccuracyUnknown:         "Unknown",
}

func (a ClockAccuracy) String() string {
	if s, ok := clockAccuracyNames[a]; ok {
		return s
	}
	return fmt.Sprintf("Reserved(0x%02X)", uint8(a))
}

// ClockAccuracyFromOffset maps a measured worst-case offset to the
// tightest accuracy value that still covers it.
func ClockAccuracyFromOffset(offset time.Duration) ClockAccuracy {
	if offset < 0 {
		offset = -offset
	}
	switch {
	case offset <= 25*time.Nanosecond:
		return ClockAccuracyNanosecond25
	case offset <= 100*time.Nanosecond:
		return ClockAccuracyNanosecond100
	case offset <= 250*time.Nanosecond:
		return ClockAccuracyNanosecond250
	case offset <= time.Microsecond:
		return ClockAccuracyMicrosecond1
	case offset <= 2500*time.Nanosecond:
		return ClockAccuracyMicrosecond2p5
	case offset <= 10*time.Microsecond:
		return ClockAccuracyMicrosecond10
	case offset <= 25*time.Microsecond:
		return ClockAccuracyMicrosecond25
	case offset <= 100*time.Microsecond:
		return ClockAccuracyMicrosecond100
	case offset <= 250*time.Microsecond:
		return ClockAccuracyMicrosecond250
	case offset <= time.Millisecond:
		return ClockAccuracyMillisecond1
	case offset <= 2500*time.Microsecond:
		return ClockAccuracyMillisecond2p5
	case offset <= 10*time.Millisecond:
		return ClockAccuracyMillisecond10
	case offset <= 25*time.Millisecond:
		return ClockAccuracyMillisecond25
	case offset <= 100*time.Millisecond:
		return ClockAccuracyMillisecond100
	case offset <= 250*time.Millisecond:
		return ClockAccuracyMillisecond250
	case offset <= time.Second:
		return ClockAccuracySecond1
	case offset <= 10*time.Second:
		return ClockAccuracySecond10
	}
	return ClockAccuracySecondGreater10
}

// ClockQuality bundles the three quality attributes a clock advertises and
// election compares: class, accuracy and the scaled log variance of its
// offset.
type ClockQuality struct {
	Class                   ClockClass
	Accuracy                ClockAccuracy
	OffsetScaledLogVariance uint16
}

func (q ClockQuality) put(b []byte) {
	b[0] = byte(q.Class)
	b[1] = byte(q.Accuracy)
	binary.BigEndian.PutUint16(b[2:4], q.OffsetScaledLogVariance)
}

func clockQualityFrom(b []byte) ClockQuality {
	return ClockQuality{
		Class:                   ClockClass(b[0]),
		Accuracy:                ClockAccuracy(b[1]),
		OffsetScaledLogVariance: binary.BigEndian.Uint16(b[2:4]),
	}
}

// TimeSource identifies the ultimate origin of a grandmaster's time.
// Reserved wire values decode to their numeric value and re-encode
// identically.
type TimeSource uint8

const (
	TimeSourceAtomicClock        TimeSource = 0x10
	TimeSourceGNSS               TimeSource = 0x20
	TimeSourceTerrestrialRadio   TimeSource = 0x30
	TimeSourceSerialTimeCode     TimeSource = 0x39
	TimeSourcePTP                TimeSource = 0x40
	TimeSourceNTP                TimeSource = 0x50
	TimeSourceHandSet            TimeSource = 0x60
	TimeSourceOther              TimeSource = 0x90
	TimeSourceInternalOscillator TimeSource = 0xA0
)

var timeSourceNames = map[TimeSource]string{
	TimeSourceAtomicClock:        "AtomicClock",
	TimeSourceGNSS:               "GNSS",
	TimeSourceTerrestrialRadio:   "TerrestrialRadio",
	TimeSourceSerialTimeCode:     "SerialTimeCode",
	TimeSourcePTP:                "PTP",
	TimeSourceNTP:                "NTP",
	TimeSourceHandSet:            "HandSet",
	TimeSourceOther:              "Other",
	TimeSourceInternalOscillator: "InternalOscillator",
}

func (s TimeSource) String() string {
	if name, ok := timeSourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Reserved(0x%02X)", uint8(s))
}

// MessageType is the 4-bit message kind in the header's low nibble of the
// first byte. Values 0x0 through 0x3 are event messages (timestamped at
// ingress and egress); the rest are general messages.
type MessageType uint8

const (
	MessageSync               MessageType = 0x0
	MessageDelayReq           MessageType = 0x1
	MessagePDelayReq          MessageType = 0x2
	MessagePDelayResp         MessageType = 0x3
	MessageFollowUp           MessageType = 0x8
	MessageDelayResp          MessageType = 0x9
	MessagePDelayRespFollowUp MessageType = 0xA
	MessageAnnounce           MessageType = 0xB
	MessageSignaling          MessageType = 0xC
	MessageManagement         MessageType = 0xD
)

var messageTypeNames = map[MessageType]string{
	MessageSync:               "Sync",
	MessageDelayReq:           "DelayReq",
	MessagePDelayReq:          "PDelayReq",
	MessagePDelayResp:         "PDelayResp",
	MessageFollowUp:           "FollowUp",
	MessageDelayResp:          "DelayResp",
	MessagePDelayRespFollowUp: "PDelayRespFollowUp",
	MessageAnnounce:           "Announce",
	MessageSignaling:          "Signaling",
	MessageManagement:         "Management",
}

func (m MessageType) String() string {
	if s, ok := messageTypeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Reserved(0x%X)", uint8(m))
}

// IsEvent reports whether the message kind is timestamped on the wire.
func (m MessageType) IsEvent() bool {
	return m <= MessagePDelayResp
}

// controlField returns the legacy-compatible control byte for a message
// kind, still required in the v2 header.
func controlField(m MessageType) uint8 {
	switch m {
	case MessageSync:
		return 0
	case MessageDelayReq:
		return 1
	case MessageFollowUp:
		return 2
	case MessageDelayResp:
		return 3
	case MessageManagement:
		return 4
	}
	return 5
}

// Flags is the 2-octet header flag field viewed as a big-endian uint16:
// octet 0 holds the message flags in the high byte, octet 1 holds the time
// property flags in the low byte.
type Flags uint16

const (
	// Octet 0 (high byte): per-message flags.
	FlagAlternateMaster  Flags = 1 << 8
	FlagTwoStep          Flags = 1 << 9
	FlagUnicast          Flags = 1 << 10
	FlagProfileSpecific1 Flags = 1 << 13
	FlagProfileSpecific2 Flags = 1 << 14

	// Octet 1 (low byte): time property flags, meaningful on Announce.
	FlagLeap61                   Flags = 1 << 0
	FlagLeap59                   Flags = 1 << 1
	FlagCurrentUTCOffsetValid    Flags = 1 << 2
	FlagPTPTimescale             Flags = 1 << 3
	FlagTimeTraceable            Flags = 1 << 4
	FlagFrequencyTraceable       Flags = 1 << 5
	FlagSynchronizationUncertain Flags = 1 << 6
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}
