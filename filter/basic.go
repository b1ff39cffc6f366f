package filter

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore/clock"
)

// Basic filter tuning defaults.
const (
	defaultBasicGain          = 0.25
	defaultBasicStepThreshold = 10 * time.Millisecond
	defaultBasicPeriod        = time.Second

	// delaySmoothing is the exponential smoothing weight for the mean
	// path delay estimate.
	delaySmoothing = 0.125

	// maxSlewPPM bounds frequency corrections handed to the clock.
	maxSlewPPM = 500.0
)

// BasicOptions configures a Basic filter. Zero-valued fields take
// defaults.
type BasicOptions struct {
	// Gain scales how much of the remaining offset is corrected per
	// period. Values are clamped to (0, 1].
	Gain float64

	// StepThreshold is the offset magnitude at or above which the clock
	// is stepped instead of slewed.
	StepThreshold time.Duration

	// Period is the fixed re-arm interval.
	Period time.Duration
}

// Basic is a bounded exponential smoother driving a proportional
// frequency correction. Offsets at or above the step threshold step the
// clock and reset the smoother; smaller offsets are slewed out over the
// re-arm period.
type Basic struct {
	gain          float64
	stepThreshold time.Duration
	period        time.Duration

	offset    float64 // smoothed offset, seconds
	delay     float64 // smoothed mean path delay, seconds
	hasOffset bool
	hasDelay  bool
	ppm       float64

	log *logrus.Entry
}

// NewBasic creates a Basic filter. A nil opts selects all defaults.
func NewBasic(opts *BasicOptions) *Basic {
	if opts == nil {
		opts = &BasicOptions{}
	}
	gain := opts.Gain
	if gain <= 0 || gain > 1 {
		gain = defaultBasicGain
	}
	step := opts.StepThreshold
	if step <= 0 {
		step = defaultBasicStepThreshold
	}
	period := opts.Period
	if period <= 0 {
		period = defaultBasicPeriod
	}
	return &Basic{
		gain:          gain,
		stepThreshold: step,
		period:        period,
		log:           logrus.WithField("filter", "basic"),
	}
}

// Offset reports the current smoothed offset estimate.
func (f *Basic) Offset() time.Duration {
	return floatToDuration(f.offset)
}

// Measurement consumes one sample, corrects the clock, and re-arms.
func (f *Basic) Measurement(s Sample, clk clock.Clock) Update {
	if s.HasDelay {
		d := s.Delay.Seconds()
		if f.hasDelay {
			f.delay += delaySmoothing * (d - f.delay)
		} else {
			f.delay = d
			f.hasDelay = true
		}
	}

	if abs(s.Offset) >= f.stepThreshold {
		if _, err := clk.Step(-s.Offset); err != nil {
			f.log.WithError(err).Warn("Clock step failed")
		} else {
			f.log.WithFields(logrus.Fields{
				"offset": s.Offset,
			}).Info("Stepped clock")
		}
		f.offset = 0
		f.hasOffset = false
		f.slew(clk)
		return f.update()
	}

	o := s.Offset.Seconds()
	if f.hasOffset {
		f.offset += f.gain * (o - f.offset)
	} else {
		f.offset = o
		f.hasOffset = true
	}
	f.slew(clk)
	return f.update()
}

// Update re-applies the current correction. Without fresh measurements
// the correction decays toward zero so a stalled or delayed schedule can
// never wind the clock off unbounded.
func (f *Basic) Update(clk clock.Clock) Update {
	f.offset /= 2
	if math.Abs(f.offset) < 1e-9 {
		f.offset = 0
	}
	f.slew(clk)
	return f.update()
}

// Demobilize hands the clock back running at its nominal frequency.
func (f *Basic) Demobilize(clk clock.Clock) {
	if _, err := clk.SetFrequency(0); err != nil {
		f.log.WithError(err).Warn("Frequency adjustment failed")
	}
	f.offset = 0
	f.hasOffset = false
	f.delay = 0
	f.hasDelay = false
	f.ppm = 0
}

func (f *Basic) slew(clk clock.Clock) {
	ppm := -f.gain * f.offset / f.period.Seconds() * 1e6
	f.ppm = clampPPM(ppm)
	if _, err := clk.SetFrequency(f.ppm); err != nil {
		f.log.WithError(err).Warn("Frequency adjustment failed")
	}
}

func (f *Basic) update() Update {
	u := Update{NextUpdate: f.period}
	if f.hasDelay {
		u.MeanDelay = floatToDuration(f.delay)
		u.HasMeanDelay = true
	}
	return u
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func clampPPM(ppm float64) float64 {
	if ppm > maxSlewPPM {
		return maxSlewPPM
	}
	if ppm < -maxSlewPPM {
		return -maxSlewPPM
	}
	return ppm
}

func floatToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
