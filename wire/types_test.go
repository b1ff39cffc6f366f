package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampPutParse(t *testing.T) {
	tests := []struct {
		name string
		ts   Timestamp
	}{
		{"zero", Timestamp{}},
		{"typical", Timestamp{Seconds: 1700000000, Nanos: 999999999}},
		{"seconds above 32 bits", Timestamp{Seconds: 1 << 40, Nanos: 1}},
		{"max 48-bit seconds", Timestamp{Seconds: maxTimestampSeconds, Nanos: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [TimestampLen]byte
			tt.ts.put(buf[:])
			assert.Equal(t, tt.ts, timestampFrom(buf[:]))
		})
	}
}

func TestTimestampValidate(t *testing.T) {
	assert.NoError(t, Timestamp{Seconds: 1, Nanos: 999999999}.Validate())
	err := Timestamp{Nanos: 1000000000}.Validate()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 123456789)
	ts, err := NewTimestamp(now)
	require.NoError(t, err)
	assert.Equal(t, Timestamp{Seconds: 1700000000, Nanos: 123456789}, ts)
	assert.True(t, ts.Time().Equal(now))

	_, err = NewTimestamp(time.Unix(-1, 0))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTimestampV1Conversions(t *testing.T) {
	// Widening is always lossless.
	v1 := TimestampV1{Seconds: 4294967295, Nanos: 999999999}
	wide := v1.Timestamp()
	assert.Equal(t, Timestamp{Seconds: 4294967295, Nanos: 999999999}, wide)

	// Narrowing back reproduces the original.
	back, err := wide.V1()
	require.NoError(t, err)
	assert.Equal(t, v1, back)

	// Seconds beyond 32 bits must not narrow silently.
	_, err = Timestamp{Seconds: 1 << 32, Nanos: 0}.V1()
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestTimestampV1PutParse(t *testing.T) {
	ts := TimestampV1{Seconds: 123456, Nanos: 789}
	var buf [TimestampV1Len]byte
	ts.put(buf[:])
	assert.Equal(t, ts, timestampV1From(buf[:]))
}

func TestPortIdentityCompare(t *testing.T) {
	a := PortIdentity{ClockIdentity: ClockIdentity{0, 0, 0, 0, 0, 0, 0, 1}, PortNumber: 1}
	b := PortIdentity{ClockIdentity: ClockIdentity{0, 0, 0, 0, 0, 0, 0, 1}, PortNumber: 2}
	c := PortIdentity{ClockIdentity: ClockIdentity{0, 0, 0, 0, 0, 0, 0, 2}, PortNumber: 1}

	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	// Clock identity dominates the port number.
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, 1, c.Compare(b))
}

func TestPortIdentityString(t *testing.T) {
	p := PortIdentity{ClockIdentity: ClockIdentity{0xAB, 0xCD, 0, 0, 0, 0, 0, 0x01}, PortNumber: 7}
	assert.Equal(t, "abcd000000000001:7", p.String())
}

func TestTimeIntervalConversions(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
	}{
		{"zero", 0},
		{"positive", 1500 * time.Nanosecond},
		{"negative", -2 * time.Millisecond},
		{"seconds", 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := NewTimeInterval(tt.d)
			assert.Equal(t, tt.d, ti.Duration())
		})
	}
	// Fractional nanoseconds survive in the scaled form.
	half := TimeInterval(1 << 15)
	assert.InDelta(t, 0.5, half.Nanoseconds(), 1e-9)
}

func TestCorrection(t *testing.T) {
	c := NewCorrection(250 * time.Nanosecond)
	assert.False(t, c.TooBig())
	assert.Equal(t, 250*time.Nanosecond, c.Duration())

	assert.True(t, CorrectionTooBig.TooBig())
}

func TestLogIntervalDuration(t *testing.T) {
	assert.Equal(t, time.Second, LogInterval(0).Duration())
	assert.Equal(t, 2*time.Second, LogInterval(1).Duration())
	assert.Equal(t, 8*time.Second, LogInterval(3).Duration())
	assert.Equal(t, 500*time.Millisecond, LogInterval(-1).Duration())
	assert.Equal(t, 125*time.Millisecond, LogInterval(-3).Duration())
}

func TestEnumStringsPreserveReservedValues(t *testing.T) {
	// Known values have names.
	assert.Equal(t, "Default", ClockClassDefault.String())
	assert.Equal(t, "25ns", ClockAccuracyNanosecond25.String())
	assert.Equal(t, "GNSS", TimeSourceGNSS.String())
	assert.Equal(t, "Announce", MessageAnnounce.String())

	// Reserved values keep their numeric identity through the type.
	reservedClass := ClockClass(42)
	assert.Equal(t, "Reserved(42)", reservedClass.String())
	assert.Equal(t, uint8(42), uint8(reservedClass))

	reservedAcc := ClockAccuracy(0x10)
	assert.Equal(t, "Reserved(0x10)", reservedAcc.String())

	reservedSrc := TimeSource(0x77)
	assert.Equal(t, "Reserved(0x77)", reservedSrc.String())
}

func TestMessageTypeClasses(t *testing.T) {
	event := []MessageType{MessageSync, MessageDelayReq, MessagePDelayReq, MessagePDelayResp}
	general := []MessageType{MessageFollowUp, MessageDelayResp, MessagePDelayRespFollowUp, MessageAnnounce, MessageSignaling, MessageManagement}
	for _, m := range event {
		assert.True(t, m.IsEvent(), "%s should be an event message", m)
	}
	for _, m := range general {
		assert.False(t, m.IsEvent(), "%s should be a general message", m)
	}
}

func TestControlFieldDerivation(t *testing.T) {
	assert.Equal(t, uint8(0), controlField(MessageSync))
	assert.Equal(t, uint8(1), controlField(MessageDelayReq))
	assert.Equal(t, uint8(2), controlField(MessageFollowUp))
	assert.Equal(t, uint8(3), controlField(MessageDelayResp))
	assert.Equal(t, uint8(4), controlField(MessageManagement))
	assert.Equal(t, uint8(5), controlField(MessageAnnounce))
	assert.Equal(t, uint8(5), controlField(MessagePDelayReq))
}

func TestClockAccuracyFromOffset(t *testing.T) {
	assert.Equal(t, ClockAccuracyNanosecond25, ClockAccuracyFromOffset(10*time.Nanosecond))
	assert.Equal(t, ClockAccuracyMicrosecond1, ClockAccuracyFromOffset(time.Microsecond))
	assert.Equal(t, ClockAccuracyMillisecond1, ClockAccuracyFromOffset(-800*time.Microsecond))
	assert.Equal(t, ClockAccuracySecondGreater10, ClockAccuracyFromOffset(time.Minute))
}

func TestFlagsHas(t *testing.T) {
	f := FlagTwoStep | FlagPTPTimescale
	assert.True(t, f.Has(FlagTwoStep))
	assert.True(t, f.Has(FlagPTPTimescale))
	assert.False(t, f.Has(FlagUnicast))
	assert.False(t, f.Has(FlagTwoStep|FlagUnicast))
}

func TestErrorsAreDistinct(t *testing.T) {
	sentinels := []error{ErrBufferTooShort, ErrCapacity, ErrEnumConversion, ErrInvalid}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b))
		}
	}
}
