package filter

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore/clock"
)

// Kalman filter tuning defaults.
const (
	defaultWander        = 1e-13 // oscillator frequency random walk, s²/s³
	defaultKalmanStep    = 10 * time.Millisecond
	defaultMinInterval   = time.Second
	defaultMaxInterval   = 16 * time.Second
	defaultTargetSigma   = 10 * time.Microsecond
	defaultMeasurementR  = 1e-10 // offset measurement variance before delay stats exist, s²
	measurementRFloor    = 1e-12
	initialFrequencyVar  = 25e-10 // (50 ppm)²
	staleOffsetVar       = 1e-6   // (1 ms)²: offset term fades as cov grows past this
	delayWindow          = 32
)

// KalmanOptions configures a Kalman filter. Zero-valued fields take
// defaults.
type KalmanOptions struct {
	// Wander is the oscillator frequency random-walk density feeding the
	// process noise, in s²/s³.
	Wander float64

	// StepThreshold is the offset magnitude at or above which the clock
	// is stepped and the filter state reset.
	StepThreshold time.Duration

	// MinInterval and MaxInterval bound the variable re-arm schedule.
	MinInterval time.Duration
	MaxInterval time.Duration

	// TargetSigma is the offset uncertainty the re-arm schedule steers
	// toward: larger uncertainty re-arms sooner.
	TargetSigma time.Duration
}

// Kalman tracks a two-state model of the local clock, offset and
// frequency error, against measurement updates. The measurement noise is
// adapted from the spread of observed path delays, and the re-arm
// interval shortens while the offset estimate is still uncertain.
type Kalman struct {
	wander        float64
	stepThreshold time.Duration
	minInterval   time.Duration
	maxInterval   time.Duration
	targetSigma   float64

	// state[0] is the estimated local-minus-master offset in seconds,
	// state[1] the local frequency error in s/s. cov is the estimate
	// covariance, kept symmetric.
	state [2]float64
	cov   [2][2]float64
	at    time.Time
	ready bool

	delays   []float64
	hasDelay bool

	ppm float64
	log *logrus.Entry
}

// NewKalman creates a Kalman filter. A nil opts selects all defaults.
func NewKalman(opts *KalmanOptions) *Kalman {
	if opts == nil {
		opts = &KalmanOptions{}
	}
	wander := opts.Wander
	if wander <= 0 {
		wander = defaultWander
	}
	step := opts.StepThreshold
	if step <= 0 {
		step = defaultKalmanStep
	}
	min := opts.MinInterval
	if min <= 0 {
		min = defaultMinInterval
	}
	max := opts.MaxInterval
	if max < min {
		max = defaultMaxInterval
		if max < min {
			max = min
		}
	}
	target := opts.TargetSigma
	if target <= 0 {
		target = defaultTargetSigma
	}
	return &Kalman{
		wander:        wander,
		stepThreshold: step,
		minInterval:   min,
		maxInterval:   max,
		targetSigma:   target.Seconds(),
		log:           logrus.WithField("filter", "kalman"),
	}
}

// Offset reports the current offset estimate.
func (f *Kalman) Offset() time.Duration {
	return floatToDuration(f.state[0])
}

// Frequency reports the estimated local frequency error in ppm.
func (f *Kalman) Frequency() float64 {
	return f.state[1] * 1e6
}

// Measurement consumes one sample, corrects the clock, and re-arms.
func (f *Kalman) Measurement(s Sample, clk clock.Clock) Update {
	if s.HasDelay {
		f.observeDelay(s.Delay)
	}

	if abs(s.Offset) >= f.stepThreshold {
		if _, err := clk.Step(-s.Offset); err != nil {
			f.log.WithError(err).Warn("Clock step failed")
		} else {
			f.log.WithFields(logrus.Fields{
				"offset": s.Offset,
			}).Info("Stepped clock")
		}
		f.resetState()
		if _, err := clk.SetFrequency(0); err != nil {
			f.log.WithError(err).Warn("Frequency adjustment failed")
		}
		return f.result()
	}

	o := s.Offset.Seconds()
	if !f.ready {
		f.state = [2]float64{o, 0}
		r := f.measurementVar()
		f.cov = [2][2]float64{{r, 0}, {0, initialFrequencyVar}}
		f.at = s.Time
		f.ready = true
	} else {
		f.predict(s.Time)
		f.correct(o, f.measurementVar())
	}
	f.slew(clk)
	return f.result()
}

// Update re-applies the correction from the predicted state. Prediction
// without measurements grows the covariance, which shrinks the offset
// term of the correction, so arbitrarily late or repeated calls stay
// bounded.
func (f *Kalman) Update(clk clock.Clock) Update {
	if !f.ready {
		return f.result()
	}
	f.predict(clk.Now())
	f.slew(clk)
	return f.result()
}

// Demobilize hands the clock back running at its nominal frequency.
func (f *Kalman) Demobilize(clk clock.Clock) {
	if _, err := clk.SetFrequency(0); err != nil {
		f.log.WithError(err).Warn("Frequency adjustment failed")
	}
	f.resetState()
	f.delays = nil
	f.hasDelay = false
}

func (f *Kalman) resetState() {
	f.state = [2]float64{}
	f.cov = [2][2]float64{}
	f.at = time.Time{}
	f.ready = false
	f.ppm = 0
}

// predict advances the state estimate to t under the model
// F = [[1, dt], [0, 1]] with process noise
// Q = wander · [[dt³/3, dt²/2], [dt²/2, dt]].
func (f *Kalman) predict(t time.Time) {
	dt := t.Sub(f.at).Seconds()
	if dt <= 0 {
		return
	}
	f.at = t

	f.state[0] += dt * f.state[1]

	c := f.cov
	p00 := c[0][0] + dt*(c[0][1]+c[1][0]) + dt*dt*c[1][1] + f.wander*dt*dt*dt/3
	p01 := c[0][1] + dt*c[1][1] + f.wander*dt*dt/2
	p10 := c[1][0] + dt*c[1][1] + f.wander*dt*dt/2
	p11 := c[1][1] + f.wander*dt

	off := (p01 + p10) / 2
	f.cov = [2][2]float64{{p00, off}, {off, p11}}
}

// correct folds one offset observation with variance r into the state.
func (f *Kalman) correct(meas, r float64) {
	y := meas - f.state[0]
	s := f.cov[0][0] + r
	k0 := f.cov[0][0] / s
	k1 := f.cov[1][0] / s

	f.state[0] += k0 * y
	f.state[1] += k1 * y

	c := f.cov
	p00 := (1 - k0) * c[0][0]
	p01 := (1 - k0) * c[0][1]
	p10 := c[1][0] - k1*c[0][0]
	p11 := c[1][1] - k1*c[0][1]

	off := (p01 + p10) / 2
	f.cov = [2][2]float64{{p00, off}, {off, p11}}
}

// measurementVar derives the offset measurement variance from the spread
// of recent path delays. Offset and delay are formed from the same
// timestamp pairs, so a quarter of the delay variance approximates the
// offset noise.
func (f *Kalman) measurementVar() float64 {
	if len(f.delays) < 2 {
		return defaultMeasurementR
	}
	var sum float64
	for _, d := range f.delays {
		sum += d
	}
	mean := sum / float64(len(f.delays))
	var sq float64
	for _, d := range f.delays {
		sq += (d - mean) * (d - mean)
	}
	r := sq / float64(len(f.delays)-1) / 4
	if r < measurementRFloor {
		r = measurementRFloor
	}
	return r
}

func (f *Kalman) observeDelay(d time.Duration) {
	if len(f.delays) == delayWindow {
		copy(f.delays, f.delays[1:])
		f.delays = f.delays[:delayWindow-1]
	}
	f.delays = append(f.delays, d.Seconds())
	f.hasDelay = true
}

// slew drives the clock to absorb the estimated frequency error plus
// enough rate to work the remaining offset off over the next interval.
// The offset term is weighted down as the covariance grows, so a stale
// estimate degrades to frequency holdover instead of a runaway
// correction.
func (f *Kalman) slew(clk clock.Clock) {
	horizon := f.interval().Seconds()
	confidence := staleOffsetVar / (staleOffsetVar + f.cov[0][0])
	ppm := -(f.state[1] + confidence*f.state[0]/horizon) * 1e6
	f.ppm = clampPPM(ppm)
	if _, err := clk.SetFrequency(f.ppm); err != nil {
		f.log.WithError(err).Warn("Frequency adjustment failed")
	}
}

// interval picks the next re-arm: the configured minimum while the offset
// estimate is more uncertain than the target, stretching toward the
// maximum as confidence builds.
func (f *Kalman) interval() time.Duration {
	if !f.ready {
		return f.minInterval
	}
	sigma := math.Sqrt(f.cov[0][0])
	if sigma <= 0 {
		return f.maxInterval
	}
	iv := time.Duration(float64(f.minInterval) * f.targetSigma / sigma)
	if iv < f.minInterval {
		iv = f.minInterval
	}
	if iv > f.maxInterval {
		iv = f.maxInterval
	}
	return iv
}

func (f *Kalman) result() Update {
	u := Update{NextUpdate: f.interval()}
	if f.hasDelay {
		var sum float64
		for _, d := range f.delays {
			sum += d
		}
		u.MeanDelay = floatToDuration(sum / float64(len(f.delays)))
		u.HasMeanDelay = true
	}
	return u
}
