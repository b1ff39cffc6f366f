// Package clock defines the clock capability the engine consumes and the
// concrete implementations shipped with it: a deterministic simulated clock
// for tests and simulation, the Linux system clock, and a locking wrapper
// for the common case of multiple ports sharing one physical clock.
package clock

import (
	"errors"
	"sync"
	"time"

	"github.com/opd-ai/ptpcore/dataset"
	"github.com/opd-ai/ptpcore/wire"
)

// ErrUnsupported indicates the platform cannot perform the requested clock
// adjustment.
var ErrUnsupported = errors.New("clock operation not supported on this platform")

// Clock is the abstract clock capability. The engine reads time, issues
// corrections and publishes grandmaster time properties through it, and
// never touches a timer register itself. Implementations report failures
// to the caller; the engine does not retry on its own.
type Clock interface {
	// Now returns the current time of this clock.
	Now() time.Time

	// Step applies an immediate offset and returns the time after the
	// jump.
	Step(offset time.Duration) (time.Time, error)

	// SetFrequency adjusts the clock rate in parts per million relative
	// to nominal and returns the time the adjustment took effect.
	SetFrequency(ppm float64) (time.Time, error)

	// SetProperties publishes the elected grandmaster's time properties
	// to the platform (TAI offset, leap state).
	SetProperties(p *dataset.TimeProperties) error

	// Quality describes this clock for master election.
	Quality() wire.ClockQuality
}

// Shared wraps a Clock with a mutex so several ports can drive one physical
// clock. The lock covers exactly one capability call and is never held
// across a suspension point; the wrapped value is shared by handle among
// the ports that own the same oscillator.
type Shared struct {
	mu    sync.Mutex
	inner Clock
}

// NewShared wraps c for concurrent use by multiple ports.
func NewShared(c Clock) *Shared {
	return &Shared{inner: c}
}

// Now implements Clock.
func (s *Shared) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Now()
}

// Step implements Clock.
func (s *Shared) Step(offset time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Step(offset)
}

// SetFrequency implements Clock.
func (s *Shared) SetFrequency(ppm float64) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SetFrequency(ppm)
}

// SetProperties implements Clock.
func (s *Shared) SetProperties(p *dataset.TimeProperties) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SetProperties(p)
}

// Quality implements Clock.
func (s *Shared) Quality() wire.ClockQuality {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Quality()
}
