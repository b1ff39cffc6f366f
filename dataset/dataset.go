// Package dataset holds the four standard PTP datasets: the static
// identity of the local instance (Default), the live synchronization state
// (Current), the selected parent and grandmaster (Parent), and the time
// properties copied down from the grandmaster (TimeProperties).
//
// A Set bundles the four datasets owned by one instance. Ports borrow the
// set only inside a single event-handling call; the caller serializes
// access, and no mutation spans a suspension point.
package dataset

import (
	"time"

	"github.com/opd-ai/ptpcore/wire"
)

// Default is the static identity and priority configuration of the local
// instance. It is fixed at construction; the only legal later mutations are
// the explicit administrative setters on Set.
type Default struct {
	ClockIdentity wire.ClockIdentity
	Priority1     uint8
	Priority2     uint8
	DomainNumber  uint8
	// SdoID is the 12-bit sPTP domain qualifier carried split across the
	// header's major and minor SdoID fields.
	SdoID        uint16
	ClockQuality wire.ClockQuality
	SlaveOnly    bool
	NumberPorts  uint16
}

// MajorSdoID returns the high 4 bits of the SdoID for header encoding.
func (d *Default) MajorSdoID() uint8 {
	return uint8(d.SdoID>>8) & 0x0F
}

// MinorSdoID returns the low 8 bits of the SdoID for header encoding.
func (d *Default) MinorSdoID() uint8 {
	return uint8(d.SdoID)
}

// Current is the live synchronization state relative to the active master.
type Current struct {
	StepsRemoved     uint16
	OffsetFromMaster time.Duration
	MeanDelay        time.Duration
}

// Reset returns the dataset to its unsynchronized zero state, used when
// synchronization is lost or the port leaves the slave role.
func (c *Current) Reset() {
	*c = Current{}
}

// Parent identifies the currently selected parent port and the grandmaster
// it traces to. It is replaced wholesale when election picks a new master.
type Parent struct {
	PortIdentity            wire.PortIdentity
	GrandmasterIdentity     wire.ClockIdentity
	GrandmasterClockQuality wire.ClockQuality
	GrandmasterPriority1    uint8
	GrandmasterPriority2    uint8
}

// SetSelf points the parent dataset at the local clock itself, the state of
// a grandmaster or a free-running node.
func (p *Parent) SetSelf(d *Default) {
	*p = Parent{
		PortIdentity:            wire.PortIdentity{ClockIdentity: d.ClockIdentity},
		GrandmasterIdentity:     d.ClockIdentity,
		GrandmasterClockQuality: d.ClockQuality,
		GrandmasterPriority1:    d.Priority1,
		GrandmasterPriority2:    d.Priority2,
	}
}

// IsSelf reports whether the local clock is its own grandmaster.
func (p *Parent) IsSelf(d *Default) bool {
	return p.GrandmasterIdentity == d.ClockIdentity
}

// TimeProperties carries the timescale attributes of the grandmaster,
// copied down from its Announce messages.
type TimeProperties struct {
	CurrentUTCOffset      int16
	CurrentUTCOffsetValid bool
	Leap59                bool
	Leap61                bool
	TimeTraceable         bool
	FrequencyTraceable    bool
	PTPTimescale          bool
	TimeSource            wire.TimeSource
}

// Flags encodes the time property bits of an outgoing Announce header.
func (t *TimeProperties) Flags() wire.Flags {
	var f wire.Flags
	if t.Leap61 {
		f |= wire.FlagLeap61
	}
	if t.Leap59 {
		f |= wire.FlagLeap59
	}
	if t.CurrentUTCOffsetValid {
		f |= wire.FlagCurrentUTCOffsetValid
	}
	if t.PTPTimescale {
		f |= wire.FlagPTPTimescale
	}
	if t.TimeTraceable {
		f |= wire.FlagTimeTraceable
	}
	if t.FrequencyTraceable {
		f |= wire.FlagFrequencyTraceable
	}
	return f
}

// setFromAnnounce copies the grandmaster's time properties out of a
// received Announce header and body.
func (t *TimeProperties) setFromAnnounce(flags wire.Flags, a *wire.Announce) {
	t.CurrentUTCOffset = a.CurrentUTCOffset
	t.CurrentUTCOffsetValid = flags.Has(wire.FlagCurrentUTCOffsetValid)
	t.Leap59 = flags.Has(wire.FlagLeap59)
	t.Leap61 = flags.Has(wire.FlagLeap61)
	t.TimeTraceable = flags.Has(wire.FlagTimeTraceable)
	t.FrequencyTraceable = flags.Has(wire.FlagFrequencyTraceable)
	t.PTPTimescale = flags.Has(wire.FlagPTPTimescale)
	t.TimeSource = a.TimeSource
}

// Set bundles the four datasets owned by one instance.
type Set struct {
	Default        Default
	Current        Current
	Parent         Parent
	TimeProperties TimeProperties
}

// currentTAIOffset is the TAI-UTC offset advertised while no grandmaster
// has provided a validated value.
const currentTAIOffset = 37

// NewSet builds the dataset bundle for a freshly constructed instance: its
// own grandmaster, zero synchronization state, and unvalidated default time
// properties from the internal oscillator.
func NewSet(d Default) *Set {
	s := &Set{
		Default: d,
		TimeProperties: TimeProperties{
			CurrentUTCOffset: currentTAIOffset,
			PTPTimescale:     true,
			TimeSource:       wire.TimeSourceInternalOscillator,
		},
	}
	s.Parent.SetSelf(&s.Default)
	return s
}

// SetPriority1 is the administrative update for the Default dataset's
// first election priority.
func (s *Set) SetPriority1(p uint8) {
	s.Default.Priority1 = p
	if s.Parent.IsSelf(&s.Default) {
		s.Parent.GrandmasterPriority1 = p
	}
}

// SetPriority2 is the administrative update for the Default dataset's
// second election priority.
func (s *Set) SetPriority2(p uint8) {
	s.Default.Priority2 = p
	if s.Parent.IsSelf(&s.Default) {
		s.Parent.GrandmasterPriority2 = p
	}
}

// Announce builds the body and time property flags of an outgoing Announce
// from the current datasets.
func (s *Set) Announce() (wire.Flags, *wire.Announce) {
	return s.TimeProperties.Flags(), &wire.Announce{
		CurrentUTCOffset:        s.TimeProperties.CurrentUTCOffset,
		GrandmasterPriority1:    s.Parent.GrandmasterPriority1,
		GrandmasterClockQuality: s.Parent.GrandmasterClockQuality,
		GrandmasterPriority2:    s.Parent.GrandmasterPriority2,
		GrandmasterIdentity:     s.Parent.GrandmasterIdentity,
		StepsRemoved:            s.Current.StepsRemoved,
		TimeSource:              s.TimeProperties.TimeSource,
	}
}

// AdoptParent replaces the Parent dataset wholesale with the sender of a
// winning Announce, copies its time properties down, and sets the local
// steps-removed count one past the parent's.
func (s *Set) AdoptParent(sender wire.PortIdentity, flags wire.Flags, a *wire.Announce) {
	s.Parent = Parent{
		PortIdentity:            sender,
		GrandmasterIdentity:     a.GrandmasterIdentity,
		GrandmasterClockQuality: a.GrandmasterClockQuality,
		GrandmasterPriority1:    a.GrandmasterPriority1,
		GrandmasterPriority2:    a.GrandmasterPriority2,
	}
	s.TimeProperties.setFromAnnounce(flags, a)
	s.Current.StepsRemoved = a.StepsRemoved + 1
}

// ResetParent returns the instance to being its own grandmaster and clears
// the synchronization state, used when no viable master remains.
func (s *Set) ResetParent() {
	s.Parent.SetSelf(&s.Default)
	s.Current.Reset()
	s.TimeProperties = TimeProperties{
		CurrentUTCOffset: currentTAIOffset,
		PTPTimescale:     true,
		TimeSource:       wire.TimeSourceInternalOscillator,
	}
}
