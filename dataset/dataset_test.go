package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/ptpcore/wire"
)

func testDefault() Default {
	return Default{
		ClockIdentity: wire.ClockIdentity{1, 2, 3, 4, 5, 6, 7, 8},
		Priority1:     128,
		Priority2:     128,
		DomainNumber:  0,
		SdoID:         0x123,
		ClockQuality: wire.ClockQuality{
			Class:                   wire.ClockClassDefault,
			Accuracy:                wire.ClockAccuracyUnknown,
			OffsetScaledLogVariance: 0xFFFF,
		},
		NumberPorts: 1,
	}
}

func TestSdoIDSplit(t *testing.T) {
	d := testDefault()
	assert.Equal(t, uint8(0x1), d.MajorSdoID())
	assert.Equal(t, uint8(0x23), d.MinorSdoID())
}

func TestNewSetIsOwnGrandmaster(t *testing.T) {
	s := NewSet(testDefault())

	assert.True(t, s.Parent.IsSelf(&s.Default))
	assert.Equal(t, s.Default.ClockIdentity, s.Parent.GrandmasterIdentity)
	assert.Equal(t, s.Default.ClockQuality, s.Parent.GrandmasterClockQuality)
	assert.Equal(t, uint16(0), s.Current.StepsRemoved)
	assert.True(t, s.TimeProperties.PTPTimescale)
	assert.False(t, s.TimeProperties.CurrentUTCOffsetValid)
	assert.Equal(t, wire.TimeSourceInternalOscillator, s.TimeProperties.TimeSource)
}

func TestAnnounceReflectsDatasets(t *testing.T) {
	s := NewSet(testDefault())
	flags, a := s.Announce()

	assert.True(t, flags.Has(wire.FlagPTPTimescale))
	assert.False(t, flags.Has(wire.FlagCurrentUTCOffsetValid))
	assert.Equal(t, s.Default.ClockIdentity, a.GrandmasterIdentity)
	assert.Equal(t, uint8(128), a.GrandmasterPriority1)
	assert.Equal(t, uint16(0), a.StepsRemoved)
}

func TestAdoptParent(t *testing.T) {
	s := NewSet(testDefault())
	sender := wire.PortIdentity{ClockIdentity: wire.ClockIdentity{9, 9, 9, 9, 9, 9, 9, 9}, PortNumber: 2}
	flags := wire.FlagPTPTimescale | wire.FlagCurrentUTCOffsetValid | wire.FlagTimeTraceable
	announce := &wire.Announce{
		CurrentUTCOffset:     37,
		GrandmasterPriority1: 10,
		GrandmasterClockQuality: wire.ClockQuality{
			Class:    wire.ClockClassPrimary,
			Accuracy: wire.ClockAccuracyNanosecond100,
		},
		GrandmasterPriority2: 20,
		GrandmasterIdentity:  wire.ClockIdentity{9, 9, 9, 9, 9, 9, 9, 8},
		StepsRemoved:         3,
		TimeSource:           wire.TimeSourceGNSS,
	}

	s.AdoptParent(sender, flags, announce)

	assert.False(t, s.Parent.IsSelf(&s.Default))
	assert.Equal(t, sender, s.Parent.PortIdentity)
	assert.Equal(t, announce.GrandmasterIdentity, s.Parent.GrandmasterIdentity)
	assert.Equal(t, uint8(10), s.Parent.GrandmasterPriority1)
	assert.Equal(t, uint16(4), s.Current.StepsRemoved)
	assert.True(t, s.TimeProperties.CurrentUTCOffsetValid)
	assert.True(t, s.TimeProperties.TimeTraceable)
	assert.False(t, s.TimeProperties.FrequencyTraceable)
	assert.Equal(t, wire.TimeSourceGNSS, s.TimeProperties.TimeSource)

	// Re-announcing now advertises the adopted grandmaster.
	outFlags, out := s.Announce()
	require.NotNil(t, out)
	assert.Equal(t, announce.GrandmasterIdentity, out.GrandmasterIdentity)
	assert.Equal(t, uint16(4), out.StepsRemoved)
	assert.True(t, outFlags.Has(wire.FlagTimeTraceable))
}

func TestResetParent(t *testing.T) {
	s := NewSet(testDefault())
	s.AdoptParent(
		wire.PortIdentity{ClockIdentity: wire.ClockIdentity{9}},
		wire.FlagCurrentUTCOffsetValid,
		&wire.Announce{GrandmasterIdentity: wire.ClockIdentity{9}, StepsRemoved: 1, TimeSource: wire.TimeSourceNTP},
	)
	s.Current.OffsetFromMaster = 5 * time.Microsecond
	s.Current.MeanDelay = time.Microsecond

	s.ResetParent()

	assert.True(t, s.Parent.IsSelf(&s.Default))
	assert.Equal(t, Current{}, s.Current)
	assert.False(t, s.TimeProperties.CurrentUTCOffsetValid)
	assert.Equal(t, wire.TimeSourceInternalOscillator, s.TimeProperties.TimeSource)
}

func TestCurrentReset(t *testing.T) {
	c := Current{StepsRemoved: 2, OffsetFromMaster: time.Millisecond, MeanDelay: time.Microsecond}
	c.Reset()
	assert.Equal(t, Current{}, c)
}

func TestAdministrativePrioritySetters(t *testing.T) {
	s := NewSet(testDefault())

	s.SetPriority1(5)
	s.SetPriority2(6)
	assert.Equal(t, uint8(5), s.Default.Priority1)
	assert.Equal(t, uint8(6), s.Default.Priority2)
	// While self-grandmaster, the advertised priorities follow.
	assert.Equal(t, uint8(5), s.Parent.GrandmasterPriority1)
	assert.Equal(t, uint8(6), s.Parent.GrandmasterPriority2)

	// Once a foreign parent is adopted, its priorities are not touched.
	s.AdoptParent(
		wire.PortIdentity{ClockIdentity: wire.ClockIdentity{9}},
		0,
		&wire.Announce{GrandmasterIdentity: wire.ClockIdentity{9}, GrandmasterPriority1: 1, GrandmasterPriority2: 2},
	)
	s.SetPriority1(99)
	assert.Equal(t, uint8(1), s.Parent.GrandmasterPriority1)
	assert.Equal(t, uint8(99), s.Default.Priority1)
}

func TestTimePropertiesFlagsRoundTrip(t *testing.T) {
	props := TimeProperties{
		CurrentUTCOffsetValid: true,
		Leap59:                true,
		TimeTraceable:         true,
		PTPTimescale:          true,
	}
	flags := props.Flags()

	var decoded TimeProperties
	decoded.setFromAnnounce(flags, &wire.Announce{})
	assert.Equal(t, props.CurrentUTCOffsetValid, decoded.CurrentUTCOffsetValid)
	assert.Equal(t, props.Leap59, decoded.Leap59)
	assert.Equal(t, props.Leap61, decoded.Leap61)
	assert.Equal(t, props.TimeTraceable, decoded.TimeTraceable)
	assert.Equal(t, props.PTPTimescale, decoded.PTPTimescale)
}
