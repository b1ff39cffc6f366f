package port

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore/bmca"
	"github.com/opd-ai/ptpcore/clock"
	"github.com/opd-ai/ptpcore/dataset"
	"github.com/opd-ai/ptpcore/filter"
	"github.com/opd-ai/ptpcore/security"
	"github.com/opd-ai/ptpcore/transport"
	"github.com/opd-ai/ptpcore/wire"
)

// timerID indexes the port's deadline array.
type timerID int

const (
	timerAnnounceSend timerID = iota
	timerSyncSend
	timerDelayReqSend
	timerAnnounceTimeout
	timerQualification
	timerFilterUpdate
	numTimers
)

// Options carries the optional collaborators of one port.
type Options struct {
	// Filter steers the clock from accepted measurements. Nil selects a
	// Kalman filter with default tuning.
	Filter filter.Filter

	// Security resolves SPIs to associations. Required when Config.SPI
	// is set, rejected otherwise.
	Security security.Provider

	// ManualCalibration requires an explicit Calibrated call to move
	// from Uncalibrated to Slave. When unset the port qualifies itself
	// on the first completed measurement.
	ManualCalibration bool

	// Log overrides the logger. Nil selects the standard logger.
	Log *logrus.Entry
}

// Port runs the protocol state machine of one PTP port. The receive side
// is sans-I/O: the surrounding runtime feeds datagrams to HandlePacket and
// drives time through Tick and NextDeadline. Sends go directly to the
// transport. All methods must be called from one serialized context; the
// shared dataset set is only touched inside those calls.
type Port struct {
	cfg       Config
	identity  wire.PortIdentity
	set       *dataset.Set
	clk       clock.Clock
	conn      transport.Port
	flt       filter.Filter
	tracker   *bmca.Tracker
	security  security.Provider
	signing   *security.Association
	manualCal bool

	state     State
	deadlines [numTimers]time.Time
	seq       sequences
	exch      exchanges
	sigSeq    uint16
	closed    bool

	log *logrus.Entry
}

// sequences holds the outbound sequence counters, one per message type
// the port originates. A counter advances only on a successful send.
type sequences struct {
	announce  uint16
	sync      uint16
	delayReq  uint16
	pdelayReq uint16
}

// New builds a port in the Listening state with its announce receipt
// window armed.
func New(cfg Config, set *dataset.Set, clk clock.Clock, conn transport.Port, opts *Options) (*Port, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if set == nil || clk == nil || conn == nil {
		return nil, fmt.Errorf("%w: datasets, clock and transport are required", ErrConfig)
	}
	if cfg.MasterOnly && set.Default.SlaveOnly {
		return nil, fmt.Errorf("%w: master-only port on a slave-only clock", ErrConfig)
	}

	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Filter == nil {
		o.Filter = filter.NewKalman(nil)
	}
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	var signing *security.Association
	switch {
	case cfg.SPI != nil && o.Security == nil:
		return nil, fmt.Errorf("%w: SPI %d configured without a security provider", ErrConfig, *cfg.SPI)
	case cfg.SPI == nil && o.Security != nil:
		return nil, fmt.Errorf("%w: security provider configured without an SPI", ErrConfig)
	case cfg.SPI != nil:
		assoc, ok := o.Security.Lookup(*cfg.SPI)
		if !ok {
			return nil, fmt.Errorf("%w: no security association for SPI %d", ErrConfig, *cfg.SPI)
		}
		signing = assoc
	}

	p := &Port{
		cfg:       cfg,
		identity:  wire.PortIdentity{ClockIdentity: set.Default.ClockIdentity, PortNumber: cfg.Number},
		set:       set,
		clk:       clk,
		conn:      conn,
		flt:       o.Filter,
		tracker:   bmca.NewTracker(int(cfg.AnnounceReceiptTimeout)),
		security:  o.Security,
		signing:   signing,
		manualCal: o.ManualCalibration,
		state:     Listening{},
		log:       o.Log.WithField("port", cfg.Number),
	}

	now := clk.Now()
	p.arm(timerAnnounceTimeout, now.Add(p.announceWindow()))
	if cfg.DelayMechanism == P2P {
		p.arm(timerDelayReqSend, now)
	}
	p.log.WithFields(logrus.Fields{
		"state":     p.state.String(),
		"mechanism": cfg.DelayMechanism.String(),
	}).Info("Port started")
	return p, nil
}

// Identity returns the port identity carried in outbound headers.
func (p *Port) Identity() wire.PortIdentity { return p.identity }

// State returns the current protocol state.
func (p *Port) State() State { return p.state }

// Number returns the configured port number.
func (p *Port) Number() uint16 { return p.cfg.Number }

func (p *Port) arm(id timerID, at time.Time) { p.deadlines[id] = at }
func (p *Port) disarm(id timerID)            { p.deadlines[id] = time.Time{} }

// NextDeadline returns the earliest armed timer deadline. ok is false when
// nothing is scheduled, which only happens on a closed port.
func (p *Port) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, at := range p.deadlines {
		if at.IsZero() {
			continue
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next, !next.IsZero()
}

// Tick fires every timer whose deadline has passed. Send failures are
// joined and surfaced; the state machine stays consistent and a failed
// message's sequence number is not consumed.
func (p *Port) Tick(now time.Time) error {
	if p.closed {
		return ErrClosed
	}
	var errs []error
	for id := timerID(0); id < numTimers; id++ {
		at := p.deadlines[id]
		if at.IsZero() || now.Before(at) {
			continue
		}
		if err := p.fire(id, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Port) fire(id timerID, now time.Time) error {
	p.deadlines[id] = time.Time{}
	switch id {
	case timerAnnounceSend:
		p.arm(timerAnnounceSend, now.Add(p.cfg.LogAnnounceInterval.Duration()))
		return p.sendAnnounce()
	case timerSyncSend:
		p.arm(timerSyncSend, now.Add(p.cfg.LogSyncInterval.Duration()))
		return p.sendSync(now)
	case timerDelayReqSend:
		p.arm(timerDelayReqSend, now.Add(p.cfg.LogMinDelayReqInterval.Duration()))
		return p.sendDelayRequest()
	case timerAnnounceTimeout:
		p.handleAnnounceTimeout(now)
		// A same-state outcome leaves the window unarmed; restart it
		// unless the port became master.
		if p.deadlines[timerAnnounceTimeout].IsZero() {
			if _, master := p.state.(Master); !master {
				p.arm(timerAnnounceTimeout, now.Add(p.announceWindow()))
			}
		}
	case timerQualification:
		p.apply(now, evQualified{})
	case timerFilterUpdate:
		p.applyFilterUpdate(now, p.flt.Update(p.clk))
	}
	return nil
}

// announceWindow is the receipt timeout: the configured number of announce
// intervals without an Announce.
func (p *Port) announceWindow() time.Duration {
	return time.Duration(p.cfg.AnnounceReceiptTimeout) * p.cfg.LogAnnounceInterval.Duration()
}

// qualificationPeriod follows the steps-removed rule: one announce
// interval plus one per step between this port and its grandmaster.
func (p *Port) qualificationPeriod() time.Duration {
	return time.Duration(int(p.set.Current.StepsRemoved)+1) * p.cfg.LogAnnounceInterval.Duration()
}

// evaluate reruns the election over the live candidate set and applies the
// outcome.
func (p *Port) evaluate(now time.Time) {
	local := bmca.Local(&p.set.Default)
	d := bmca.Decide(local, p.tracker.Candidates(now), p.cfg.Acceptable, p.cfg.MasterOnly, p.set.Default.SlaveOnly)
	bmca.LogDecision(p.log, d)
	p.apply(now, evDecision{decision: d})
}

// handleAnnounceTimeout prunes aged-out candidates and re-elects. With no
// candidate left the port promotes itself, or returns to Listening on a
// slave-only clock.
func (p *Port) handleAnnounceTimeout(now time.Time) {
	p.tracker.Prune(now)
	if p.tracker.Len() == 0 {
		p.log.WithField("state", p.state.String()).Info("Announce receipt timeout with no candidates")
		p.apply(now, evAnnounceTimeout{})
		return
	}
	p.evaluate(now)
}

func (p *Port) apply(now time.Time, ev event) {
	next, fx := transition(p.set.Default.SlaveOnly, p.state, ev)
	p.enterState(now, next, fx)
}

// enterState executes a transition's effects and, when the state actually
// changed, re-arms the state-owned timers.
func (p *Port) enterState(now time.Time, next State, fx effects) {
	if fx.demobilize {
		p.flt.Demobilize(p.clk)
		p.disarm(timerFilterUpdate)
	}
	if fx.resetExchanges {
		p.exch = exchanges{}
	}
	if fx.adopt != nil {
		before := p.set.TimeProperties
		p.set.AdoptParent(fx.adopt.Sender, fx.adopt.Flags, &fx.adopt.Announce)
		if p.set.TimeProperties != before {
			if err := p.clk.SetProperties(&p.set.TimeProperties); err != nil {
				p.log.WithError(err).Warn("Clock rejected time properties")
			}
		}
	}
	if fx.resetParent {
		p.set.ResetParent()
	}
	if p.state == next {
		return
	}
	p.log.WithFields(logrus.Fields{
		"from": p.state.String(),
		"to":   next.String(),
	}).Info("Port state changed")
	p.state = next
	p.armFor(now, next)
}

// armFor resets the state-owned timers for a newly entered state. The
// filter re-arm timer is not state-owned: it survives transitions within
// the following pair and is cleared by demobilization.
func (p *Port) armFor(now time.Time, s State) {
	p.disarm(timerAnnounceSend)
	p.disarm(timerSyncSend)
	p.disarm(timerDelayReqSend)
	p.disarm(timerAnnounceTimeout)
	p.disarm(timerQualification)

	switch s.(type) {
	case Master:
		p.arm(timerAnnounceSend, now)
		p.arm(timerSyncSend, now)
	case PreMaster:
		p.arm(timerQualification, now.Add(p.qualificationPeriod()))
		p.arm(timerAnnounceTimeout, now.Add(p.announceWindow()))
	default:
		p.arm(timerAnnounceTimeout, now.Add(p.announceWindow()))
	}

	if p.cfg.DelayMechanism == P2P {
		p.arm(timerDelayReqSend, now)
		return
	}
	switch s.(type) {
	case Uncalibrated, Slave:
		p.arm(timerDelayReqSend, now)
	}
}

// applyFilterUpdate folds a filter verdict back into the port: a refined
// mean delay updates the datasets, and a requested re-arm schedules the
// next unprompted filter update.
func (p *Port) applyFilterUpdate(now time.Time, u filter.Update) {
	if u.HasMeanDelay {
		p.exch.meanDelay = u.MeanDelay
		p.exch.hasMeanDelay = true
		p.set.Current.MeanDelay = u.MeanDelay
	}
	if u.NextUpdate > 0 {
		p.arm(timerFilterUpdate, now.Add(u.NextUpdate))
	} else {
		p.disarm(timerFilterUpdate)
	}
}

// Calibrated signals that external calibration against the selected parent
// completed, moving an Uncalibrated port to Slave. It is a no-op in any
// other state.
func (p *Port) Calibrated() error {
	if p.closed {
		return ErrClosed
	}
	p.apply(p.clk.Now(), evCalibrated{})
	return nil
}

// Close shuts the port down: timers are cleared, the clock is handed back
// if the filter was steering it, and further calls return ErrClosed. It is
// idempotent. The transport stays open; the caller owns it.
func (p *Port) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if _, ok := Following(p.state); ok {
		p.flt.Demobilize(p.clk)
	}
	for id := range p.deadlines {
		p.deadlines[id] = time.Time{}
	}
	p.tracker.Reset()
	p.log.Info("Port closed")
}
