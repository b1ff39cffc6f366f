package ptpcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore/bmca"
	"github.com/opd-ai/ptpcore/clock"
	"github.com/opd-ai/ptpcore/dataset"
	"github.com/opd-ai/ptpcore/filter"
	"github.com/opd-ai/ptpcore/limits"
	"github.com/opd-ai/ptpcore/port"
	"github.com/opd-ai/ptpcore/security"
	"github.com/opd-ai/ptpcore/transport"
	"github.com/opd-ai/ptpcore/wire"
)

var (
	// ErrConfig indicates an invalid instance configuration, rejected at
	// construction.
	ErrConfig = errors.New("invalid instance configuration")

	// ErrClosed indicates an operation on an instance that has been shut
	// down.
	ErrClosed = errors.New("instance closed")

	// ErrUnknownPort indicates a port number outside the configured set.
	ErrUnknownPort = errors.New("unknown port number")
)

// maxSdoID is the largest value of the 12-bit sPTP domain qualifier.
const maxSdoID = 0x0FFF

// PortConfig is the protocol configuration of one port of the instance.
type PortConfig struct {
	// Number identifies the port within the instance, starting at 1.
	// Numbers must be unique across the instance.
	Number uint16

	// LogAnnounceInterval is the log2 seconds between Announce
	// emissions in the master role and the base of the receipt timeout
	// window.
	LogAnnounceInterval wire.LogInterval

	// LogSyncInterval is the log2 seconds between Sync emissions in the
	// master role.
	LogSyncInterval wire.LogInterval

	// LogMinDelayReqInterval is the log2 seconds between delay requests
	// in the slave role, and between peer delay requests on a P2P port.
	LogMinDelayReqInterval wire.LogInterval

	// AnnounceReceiptTimeout is the number of announce intervals
	// without an Announce after which the port re-elects. Zero selects
	// the default of 3.
	AnnounceReceiptTimeout uint8

	// DelayMechanism selects E2E or P2P delay measurement.
	DelayMechanism port.DelayMechanism

	// MasterOnly keeps the port out of the following states.
	MasterOnly bool

	// Acceptable vetoes masters regardless of election rank. Nil admits
	// every candidate.
	Acceptable bmca.AcceptableMasterList

	// SPI selects the security association used to sign outbound
	// messages; inbound messages must then verify. Nil disables message
	// authentication on this port.
	SPI *uint8
}

// Config is the static identity and per-port configuration of an instance.
// It is fixed at construction; the only later mutations are the
// administrative priority setters on Instance.
type Config struct {
	// ClockIdentity is the EUI-64 identity of the local clock.
	ClockIdentity wire.ClockIdentity

	// Priority1 and Priority2 are the election priorities, lower wins.
	Priority1 uint8
	Priority2 uint8

	// DomainNumber scopes the instance; messages from other domains are
	// ignored.
	DomainNumber uint8

	// SdoID is the 12-bit sPTP domain qualifier, usually zero.
	SdoID uint16

	// SlaveOnly keeps every port of the instance out of the Master
	// state.
	SlaveOnly bool

	// ClockQuality describes the local clock for election. The zero
	// value defers to the clock capability's own description.
	ClockQuality wire.ClockQuality

	// Ports configures between 1 and 16 ports.
	Ports []PortConfig
}

// Options carries the capabilities an instance binds at construction.
type Options struct {
	// Transports maps each configured port number to its link. Every
	// configured port needs one.
	Transports map[uint16]transport.Port

	// Security resolves SPIs for ports that configure one.
	Security security.Provider

	// Filters overrides the servo filter per port number. Ports without
	// an entry run a Kalman filter with default tuning.
	Filters map[uint16]filter.Filter

	// ManualCalibration requires an explicit Calibrated call before a
	// port moves from Uncalibrated to Slave.
	ManualCalibration bool

	// Log overrides the logger. Nil selects the standard logger.
	Log *logrus.Entry
}

// Instance is the top-level facade: one clock, one dataset bundle, and one
// or more ports sharing them. All entry points serialize internally, so the
// datasets never see concurrent access through the instance; the sans-I/O
// port layer remains available for callers that want to own the
// serialization themselves.
type Instance struct {
	mu    sync.Mutex
	set   *dataset.Set
	clk   clock.Clock
	ports []*port.Port
	byNum map[uint16]*port.Port
	conns map[uint16]transport.Port

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	log *logrus.Entry
}

// New validates cfg, builds the dataset bundle and the configured ports,
// and returns an instance whose ports are all Listening. The clock and the
// per-port transports are borrowed, not owned: Close never closes them.
func New(cfg Config, clk clock.Clock, opts *Options) (*Instance, error) {
	if clk == nil {
		return nil, fmt.Errorf("%w: a clock is required", ErrConfig)
	}
	if cfg.ClockIdentity == (wire.ClockIdentity{}) {
		return nil, fmt.Errorf("%w: clock identity must be non-zero", ErrConfig)
	}
	if cfg.SdoID > maxSdoID {
		return nil, fmt.Errorf("%w: SdoID %#x exceeds 12 bits", ErrConfig, cfg.SdoID)
	}
	if err := limits.ValidatePortCount(len(cfg.Ports)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	log := o.Log.WithField("clock", cfg.ClockIdentity.String())

	quality := cfg.ClockQuality
	if quality == (wire.ClockQuality{}) {
		quality = clk.Quality()
		if cfg.SlaveOnly {
			quality.Class = wire.ClockClassSlaveOnly
		}
	}

	set := dataset.NewSet(dataset.Default{
		ClockIdentity: cfg.ClockIdentity,
		Priority1:     cfg.Priority1,
		Priority2:     cfg.Priority2,
		DomainNumber:  cfg.DomainNumber,
		SdoID:         cfg.SdoID,
		ClockQuality:  quality,
		SlaveOnly:     cfg.SlaveOnly,
		NumberPorts:   uint16(len(cfg.Ports)),
	})

	in := &Instance{
		set:   set,
		clk:   clk,
		byNum: make(map[uint16]*port.Port, len(cfg.Ports)),
		conns: make(map[uint16]transport.Port, len(cfg.Ports)),
		log:   log,
	}

	for _, pc := range cfg.Ports {
		if _, dup := in.byNum[pc.Number]; dup {
			return nil, fmt.Errorf("%w: duplicate port number %d", ErrConfig, pc.Number)
		}
		conn, ok := o.Transports[pc.Number]
		if !ok || conn == nil {
			return nil, fmt.Errorf("%w: no transport for port %d", ErrConfig, pc.Number)
		}

		po := &port.Options{
			Filter:            o.Filters[pc.Number],
			ManualCalibration: o.ManualCalibration,
			Log:               log,
		}
		if pc.SPI != nil {
			po.Security = o.Security
		}
		p, err := port.New(port.Config{
			Number:                 pc.Number,
			LogAnnounceInterval:    pc.LogAnnounceInterval,
			LogSyncInterval:        pc.LogSyncInterval,
			LogMinDelayReqInterval: pc.LogMinDelayReqInterval,
			AnnounceReceiptTimeout: pc.AnnounceReceiptTimeout,
			DelayMechanism:         pc.DelayMechanism,
			MasterOnly:             pc.MasterOnly,
			Acceptable:             pc.Acceptable,
			SPI:                    pc.SPI,
		}, set, clk, conn, po)
		if err != nil {
			return nil, fmt.Errorf("port %d: %w", pc.Number, err)
		}
		in.ports = append(in.ports, p)
		in.byNum[pc.Number] = p
		in.conns[pc.Number] = conn
	}

	in.ctx, in.cancel = context.WithCancel(context.Background())
	log.WithFields(logrus.Fields{
		"domain": cfg.DomainNumber,
		"ports":  len(in.ports),
	}).Info("Instance started")
	return in, nil
}

// Identity returns the local clock identity.
func (in *Instance) Identity() wire.ClockIdentity {
	return in.set.Default.ClockIdentity
}

// Ports returns the configured port numbers in configuration order.
func (in *Instance) Ports() []uint16 {
	nums := make([]uint16, len(in.ports))
	for i, p := range in.ports {
		nums[i] = p.Number()
	}
	return nums
}

// PortState reports the protocol state of the numbered port.
func (in *Instance) PortState(number uint16) (port.State, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	p, ok := in.byNum[number]
	if !ok {
		return nil, false
	}
	return p.State(), true
}

// Current returns a copy of the live synchronization state.
func (in *Instance) Current() dataset.Current {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.set.Current
}

// Parent returns a copy of the selected parent and grandmaster.
func (in *Instance) Parent() dataset.Parent {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.set.Parent
}

// SetPriority1 is the administrative update for the first election
// priority. It takes effect at the next election on each port.
func (in *Instance) SetPriority1(p uint8) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.set.SetPriority1(p)
}

// SetPriority2 is the administrative update for the second election
// priority.
func (in *Instance) SetPriority2(p uint8) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.set.SetPriority2(p)
}

// HandlePacket feeds one received datagram to the numbered port with its
// ingress timestamp.
func (in *Instance) HandlePacket(portNumber uint16, data []byte, ingress time.Time) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrClosed
	}
	p, ok := in.byNum[portNumber]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPort, portNumber)
	}
	return p.HandlePacket(data, ingress)
}

// Tick advances every port to now, firing due timers in configuration
// order. Send failures from individual ports are joined and returned; the
// instance remains consistent and the failed sends retry on their next
// period.
func (in *Instance) Tick(now time.Time) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrClosed
	}
	var errs []error
	for _, p := range in.ports {
		if err := p.Tick(now); err != nil {
			errs = append(errs, fmt.Errorf("port %d: %w", p.Number(), err))
		}
	}
	return errors.Join(errs...)
}

// NextDeadline returns the earliest pending timer deadline across all
// ports, and whether any timer is armed.
func (in *Instance) NextDeadline() (time.Time, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	var best time.Time
	var armed bool
	for _, p := range in.ports {
		d, ok := p.NextDeadline()
		if ok && (!armed || d.Before(best)) {
			best, armed = d, true
		}
	}
	return best, armed
}

// Calibrated completes calibration on the numbered port, moving it from
// Uncalibrated to Slave when manual calibration is in effect.
func (in *Instance) Calibrated(portNumber uint16) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrClosed
	}
	p, ok := in.byNum[portNumber]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPort, portNumber)
	}
	return p.Calibrated()
}

// Close shuts down every port and cancels any hosted Run. It is idempotent
// and leaves sequence and replay state consistent; the borrowed clock and
// transports stay open.
func (in *Instance) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	for _, p := range in.ports {
		p.Close()
	}
	in.mu.Unlock()
	in.cancel()
	in.log.Info("Instance closed")
}
