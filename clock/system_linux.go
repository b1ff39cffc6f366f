//go:build linux

package clock

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/opd-ai/ptpcore/dataset"
	"github.com/opd-ai/ptpcore/wire"
)

// maxFrequencyPPM is the adjustment range the kernel discipline accepts
// for CLOCK_REALTIME.
const maxFrequencyPPM = 500

// System drives the Linux system clock (CLOCK_REALTIME) through
// clock_adjtime. Steps use ADJ_SETOFFSET with nanosecond resolution,
// frequency adjustments use ADJ_FREQUENCY in scaled ppm, and the TAI
// offset is published with ADJ_TAI. Requires CAP_SYS_TIME.
type System struct {
	quality wire.ClockQuality
}

// NewSystem creates a system clock advertising the given quality.
func NewSystem(quality wire.ClockQuality) *System {
	return &System{quality: quality}
}

// Now implements Clock.
func (c *System) Now() time.Time {
	return time.Now()
}

// nsecTimeval converts a signed nanosecond offset for ADJ_SETOFFSET.
// The kernel requires the sub-second field to be non-negative.
func nsecTimeval(nsec int64) unix.Timeval {
	sec := nsec / 1e9
	nsec = nsec % 1e9
	if nsec < 0 {
		sec--
		nsec += 1e9
	}
	return unix.Timeval{Sec: sec, Usec: nsec}
}

// Step implements Clock.
func (c *System) Step(offset time.Duration) (time.Time, error) {
	tx := unix.Timex{
		Modes: unix.ADJ_SETOFFSET | unix.ADJ_NANO,
		Time:  nsecTimeval(offset.Nanoseconds()),
	}
	if _, err := unix.ClockAdjtime(unix.CLOCK_REALTIME, &tx); err != nil {
		return time.Time{}, fmt.Errorf("stepping system clock: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"clock":  "system",
		"offset": offset,
	}).Info("Stepped system clock")
	return time.Now(), nil
}

// SetFrequency implements Clock.
func (c *System) SetFrequency(ppm float64) (time.Time, error) {
	if ppm > maxFrequencyPPM {
		ppm = maxFrequencyPPM
	} else if ppm < -maxFrequencyPPM {
		ppm = -maxFrequencyPPM
	}
	tx := unix.Timex{
		Modes: unix.ADJ_FREQUENCY,
		Freq:  int64(ppm * 65536),
	}
	if _, err := unix.ClockAdjtime(unix.CLOCK_REALTIME, &tx); err != nil {
		return time.Time{}, fmt.Errorf("adjusting system clock frequency: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"clock": "system",
		"ppm":   ppm,
	}).Debug("Adjusted system clock frequency")
	return time.Now(), nil
}

// SetProperties implements Clock. Only a validated UTC offset is pushed to
// the kernel; leap scheduling is left to the platform's leap handling.
func (c *System) SetProperties(p *dataset.TimeProperties) error {
	if !p.CurrentUTCOffsetValid {
		return nil
	}
	tx := unix.Timex{
		Modes:    unix.ADJ_TAI,
		Constant: int64(p.CurrentUTCOffset),
	}
	if _, err := unix.ClockAdjtime(unix.CLOCK_REALTIME, &tx); err != nil {
		return fmt.Errorf("setting kernel TAI offset: %w", err)
	}
	return nil
}

// Quality implements Clock.
func (c *System) Quality() wire.ClockQuality {
	return c.quality
}
