package clock

import (
	"sync"
	"time"

	"github.com/opd-ai/ptpcore/dataset"
	"github.com/opd-ai/ptpcore/wire"
)

// Simulated is a deterministic clock for tests and simulation. Time moves
// only when Advance is called; the advance is scaled by the configured
// frequency adjustment, so a slewing control loop behaves as it would
// against real hardware.
type Simulated struct {
	mu      sync.Mutex
	now     time.Time
	freqPPM float64
	quality wire.ClockQuality
	props   dataset.TimeProperties
	steps   int
}

// NewSimulated creates a simulated clock reading start.
func NewSimulated(start time.Time) *Simulated {
	return &Simulated{
		now: start,
		quality: wire.ClockQuality{
			Class:                   wire.ClockClassDefault,
			Accuracy:                wire.ClockAccuracyUnknown,
			OffsetScaledLogVariance: 0xFFFF,
		},
	}
}

// Advance moves this clock forward by the true elapsed duration d. The
// clock's own reading advances by d scaled with the current frequency
// adjustment.
func (c *Simulated) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	drift := time.Duration(float64(d) * c.freqPPM / 1e6)
	c.now = c.now.Add(d + drift)
}

// Now implements Clock.
func (c *Simulated) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Step implements Clock.
func (c *Simulated) Step(offset time.Duration) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(offset)
	c.steps++
	return c.now, nil
}

// SetFrequency implements Clock.
func (c *Simulated) SetFrequency(ppm float64) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freqPPM = ppm
	return c.now, nil
}

// SetProperties implements Clock.
func (c *Simulated) SetProperties(p *dataset.TimeProperties) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props = *p
	return nil
}

// Quality implements Clock.
func (c *Simulated) Quality() wire.ClockQuality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

// SetQuality configures the quality this clock advertises.
func (c *Simulated) SetQuality(q wire.ClockQuality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quality = q
}

// FrequencyPPM returns the last applied frequency adjustment.
func (c *Simulated) FrequencyPPM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freqPPM
}

// Steps returns how many times the clock has been stepped.
func (c *Simulated) Steps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}

// Properties returns the last published time properties.
func (c *Simulated) Properties() dataset.TimeProperties {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.props
}
