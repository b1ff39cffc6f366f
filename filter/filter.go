// Package filter turns raw (offset, delay) measurements into clock
// corrections. A filter consumes one Sample per accepted measurement,
// drives the Clock capability (step or slew), and asks to be re-armed
// after a duration of its choosing.
//
// Offsets follow one sign convention throughout: a positive offset means
// the local clock is ahead of the master, so corrections are applied with
// the opposite sign.
//
// Filters are only ever invoked from their port's serialized event
// context, so they never call into the Clock from two synchronization
// contexts at once.
package filter

import (
	"time"

	"github.com/opd-ai/ptpcore/clock"
)

// Sample is one raw measurement produced by a completed timestamp
// exchange.
type Sample struct {
	// Time is when the measurement was taken, on the local timeline.
	Time time.Time

	// Offset is the measured local-minus-master clock offset.
	Offset time.Duration

	// Delay is the measured mean path delay; meaningful only when
	// HasDelay is set (the first exchanges of a one-way mechanism have
	// no delay yet).
	Delay    time.Duration
	HasDelay bool
}

// Update is a filter's reply: when to call Update next (zero means no
// re-arm pending) and, optionally, a refined mean path delay for the
// Current dataset.
type Update struct {
	NextUpdate   time.Duration
	MeanDelay    time.Duration
	HasMeanDelay bool
}

// Filter is the measurement filtering capability. Measurement is called
// once per accepted sample; Update is called when the previously returned
// re-arm duration elapses, and must stay bounded even when that call
// arrives arbitrarily late; Demobilize hands the clock back in a neutral
// state when the port leaves the slave role.
type Filter interface {
	Measurement(s Sample, clk clock.Clock) Update
	Update(clk clock.Clock) Update
	Demobilize(clk clock.Clock)
}
