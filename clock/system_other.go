//go:build !linux

package clock

import (
	"time"

	"github.com/opd-ai/ptpcore/dataset"
	"github.com/opd-ai/ptpcore/wire"
)

// System is a read-only stand-in on platforms without a supported clock
// adjustment API. Reading time works; every adjustment returns
// ErrUnsupported.
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

// Step implements Clock.
func (c *System) Step(offset time.Duration) (time.Time, error) {
	return time.Time{}, ErrUnsupported
}

// SetFrequency implements Clock.
func (c *System) SetFrequency(ppm float64) (time.Time, error) {
	return time.Time{}, ErrUnsupported
}

// SetProperties implements Clock.
func (c *System) SetProperties(p *dataset.TimeProperties) error {
	return ErrUnsupported
}

// Quality implements Clock.
func (c *System) Quality() wire.ClockQuality {
	return c.quality
}
