package port

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore/bmca"
	"github.com/opd-ai/ptpcore/filter"
	"github.com/opd-ai/ptpcore/security"
	"github.com/opd-ai/ptpcore/wire"
)

// exchanges tracks the in-flight timestamp exchanges and the latest delay
// estimate. It is reset whenever the port changes what it follows.
type exchanges struct {
	sync     pendingSync
	delayReq pendingDelayReq
	pdelay   pendingPDelay

	// syncDiff is (t2 - t1) - corrections of the last completed sync
	// exchange, the master-to-slave half of the delay equation.
	syncDiff      time.Duration
	syncDiffValid bool

	meanDelay    time.Duration
	hasMeanDelay bool
}

type pendingSync struct {
	seq        uint16
	ingress    time.Time
	correction time.Duration
	valid      bool
}

type pendingDelayReq struct {
	seq    uint16
	egress time.Time
	valid  bool
}

type pendingPDelay struct {
	seq              uint16
	requestEgress    time.Time // t1, local
	responseIngress  time.Time // t4, local
	requestReceipt   time.Time // t2, peer
	correction       time.Duration
	awaitingFollowUp bool
	valid            bool
}

// HandlePacket feeds one received datagram into the port. Malformed,
// foreign-domain, self-sent and unauthenticated messages are discarded;
// discarding is never an error. A send failure while answering a request
// surfaces to the caller.
func (p *Port) HandlePacket(data []byte, ingress time.Time) error {
	if p.closed {
		return ErrClosed
	}
	msg, err := wire.UnmarshalMessage(data)
	if err != nil {
		p.log.WithError(err).Debug("Discarded malformed message")
		return nil
	}
	if !p.forUs(&msg.Header) {
		return nil
	}
	if p.security != nil {
		if err := security.Verify(data, p.security, msg.Header.SourcePortIdentity); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"msg_type": msg.Body.MessageType().String(),
				"sender":   msg.Header.SourcePortIdentity.String(),
				"seq":      msg.Header.SequenceID,
			}).Warn("Discarded unauthenticated message")
			return nil
		}
	}
	return p.dispatch(msg, ingress)
}

// forUs screens the header: same domain and SDO ID, and not an echo of our
// own multicast.
func (p *Port) forUs(h *wire.Header) bool {
	d := &p.set.Default
	if h.DomainNumber != d.DomainNumber {
		return false
	}
	if h.MajorSdoID != d.MajorSdoID() || h.MinorSdoID != d.MinorSdoID() {
		return false
	}
	if h.SourcePortIdentity.ClockIdentity == d.ClockIdentity {
		return false
	}
	return true
}

func (p *Port) dispatch(msg *wire.Message, ingress time.Time) error {
	switch body := msg.Body.(type) {
	case *wire.Announce:
		p.handleAnnounce(msg, body, ingress)
	case *wire.Sync:
		p.handleSync(msg, body, ingress)
	case *wire.FollowUp:
		p.handleFollowUp(msg, body)
	case *wire.DelayReq:
		return p.answerDelayReq(msg, ingress)
	case *wire.DelayResp:
		p.handleDelayResp(msg, body)
	case *wire.PDelayReq:
		return p.answerPDelayReq(msg, ingress)
	case *wire.PDelayResp:
		p.handlePDelayResp(msg, body, ingress)
	case *wire.PDelayRespFollowUp:
		p.handlePDelayRespFollowUp(msg, body)
	default:
		p.log.WithField("msg_type", msg.Body.MessageType().String()).Debug("Ignored message")
	}
	return nil
}

// handleAnnounce admits the sender into the foreign clock set, pushes out
// the receipt window and re-runs the election.
func (p *Port) handleAnnounce(msg *wire.Message, body *wire.Announce, ingress time.Time) {
	c := &bmca.Candidate{
		Sender:   msg.Header.SourcePortIdentity,
		Flags:    msg.Header.Flags,
		Announce: *body,
	}
	p.tracker.Observe(ingress, c, msg.Header.LogMessageInterval)
	if !p.deadlines[timerAnnounceTimeout].IsZero() {
		p.arm(timerAnnounceTimeout, ingress.Add(p.announceWindow()))
	}
	p.evaluate(ingress)
}

func (p *Port) handleSync(msg *wire.Message, body *wire.Sync, ingress time.Time) {
	parent, ok := Following(p.state)
	if !ok || msg.Header.SourcePortIdentity != parent {
		return
	}
	if msg.Header.Correction.TooBig() {
		p.log.WithField("seq", msg.Header.SequenceID).Debug("Discarded sync with unusable correction")
		return
	}
	corr := msg.Header.Correction.Duration()
	if msg.Header.Flags.Has(wire.FlagTwoStep) {
		p.exch.sync = pendingSync{
			seq:        msg.Header.SequenceID,
			ingress:    ingress,
			correction: corr,
			valid:      true,
		}
		return
	}
	p.completeSync(ingress, body.OriginTimestamp.Time(), corr)
}

func (p *Port) handleFollowUp(msg *wire.Message, body *wire.FollowUp) {
	parent, ok := Following(p.state)
	if !ok || msg.Header.SourcePortIdentity != parent {
		return
	}
	ps := p.exch.sync
	if !ps.valid || ps.seq != msg.Header.SequenceID {
		p.log.WithField("seq", msg.Header.SequenceID).Debug("Discarded unmatched follow-up")
		return
	}
	if msg.Header.Correction.TooBig() {
		return
	}
	p.exch.sync.valid = false
	p.completeSync(ps.ingress, body.PreciseOriginTimestamp.Time(), ps.correction+msg.Header.Correction.Duration())
}

// completeSync turns a finished sync exchange into a filter measurement.
// On a port without an external calibrator the first measurement also
// completes calibration.
func (p *Port) completeSync(t2, t1 time.Time, corr time.Duration) {
	p.exch.syncDiff = t2.Sub(t1) - corr
	p.exch.syncDiffValid = true

	offset := p.exch.syncDiff - p.exch.meanDelay
	p.set.Current.OffsetFromMaster = offset

	s := filter.Sample{
		Time:     t2,
		Offset:   offset,
		Delay:    p.exch.meanDelay,
		HasDelay: p.exch.hasMeanDelay,
	}
	p.applyFilterUpdate(t2, p.flt.Measurement(s, p.clk))
	p.log.WithFields(logrus.Fields{
		"offset":     offset,
		"mean_delay": p.exch.meanDelay,
	}).Debug("Measurement accepted")

	if _, ok := p.state.(Uncalibrated); ok && !p.manualCal {
		p.apply(t2, evCalibrated{})
	}
}

func (p *Port) handleDelayResp(msg *wire.Message, body *wire.DelayResp) {
	parent, ok := Following(p.state)
	if !ok || msg.Header.SourcePortIdentity != parent {
		return
	}
	if body.RequestingPortIdentity != p.identity {
		return
	}
	pd := p.exch.delayReq
	if !pd.valid || pd.seq != msg.Header.SequenceID {
		p.log.WithField("seq", msg.Header.SequenceID).Debug("Discarded unmatched delay response")
		return
	}
	if msg.Header.Correction.TooBig() {
		return
	}
	if !p.exch.syncDiffValid {
		// The slave-to-master half alone cannot produce a delay.
		return
	}
	p.exch.delayReq.valid = false
	reqDiff := body.ReceiveTimestamp.Time().Sub(pd.egress) - msg.Header.Correction.Duration()
	meanDelay := (p.exch.syncDiff + reqDiff) / 2
	p.exch.meanDelay = meanDelay
	p.exch.hasMeanDelay = true
	p.set.Current.MeanDelay = meanDelay
	p.log.WithField("mean_delay", meanDelay).Debug("Path delay measured")
}

func (p *Port) handlePDelayResp(msg *wire.Message, body *wire.PDelayResp, ingress time.Time) {
	if p.cfg.DelayMechanism != P2P {
		return
	}
	if body.RequestingPortIdentity != p.identity {
		return
	}
	pd := &p.exch.pdelay
	if !pd.valid || pd.awaitingFollowUp || pd.seq != msg.Header.SequenceID {
		p.log.WithField("seq", msg.Header.SequenceID).Debug("Discarded unmatched peer delay response")
		return
	}
	if msg.Header.Correction.TooBig() {
		return
	}
	pd.responseIngress = ingress
	pd.requestReceipt = body.RequestReceiptTimestamp.Time()
	pd.correction = msg.Header.Correction.Duration()
	if msg.Header.Flags.Has(wire.FlagTwoStep) {
		pd.awaitingFollowUp = true
		return
	}
	// One-step responder: the turnaround is folded into the correction.
	pd.valid = false
	p.recordLinkDelay((ingress.Sub(pd.requestEgress) - pd.correction) / 2)
}

func (p *Port) handlePDelayRespFollowUp(msg *wire.Message, body *wire.PDelayRespFollowUp) {
	if p.cfg.DelayMechanism != P2P {
		return
	}
	if body.RequestingPortIdentity != p.identity {
		return
	}
	pd := &p.exch.pdelay
	if !pd.valid || !pd.awaitingFollowUp || pd.seq != msg.Header.SequenceID {
		p.log.WithField("seq", msg.Header.SequenceID).Debug("Discarded unmatched peer delay follow-up")
		return
	}
	if msg.Header.Correction.TooBig() {
		return
	}
	pd.valid = false
	turnaround := body.ResponseOriginTimestamp.Time().Sub(pd.requestReceipt)
	corr := pd.correction + msg.Header.Correction.Duration()
	p.recordLinkDelay((pd.responseIngress.Sub(pd.requestEgress) - turnaround - corr) / 2)
}

// recordLinkDelay stores a peer link delay measurement. It reaches the
// datasets only while the port follows a master; the link estimate itself
// is kept either way.
func (p *Port) recordLinkDelay(delay time.Duration) {
	p.exch.meanDelay = delay
	p.exch.hasMeanDelay = true
	if _, ok := Following(p.state); ok {
		p.set.Current.MeanDelay = delay
	}
	p.log.WithField("mean_delay", delay).Debug("Peer link delay measured")
}
