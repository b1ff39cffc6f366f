package port

import (
	"fmt"
	"time"

	"github.com/opd-ai/ptpcore/security"
	"github.com/opd-ai/ptpcore/wire"
)

// logNoPeriod is the logMessageInterval value carried by messages that do
// not advertise a period.
const logNoPeriod wire.LogInterval = 0x7f

// header builds the common header for an outbound message.
func (p *Port) header(seq uint16, logInterval wire.LogInterval, flags wire.Flags) wire.Header {
	return wire.Header{
		MajorSdoID:         p.set.Default.MajorSdoID(),
		MinorSdoID:         p.set.Default.MinorSdoID(),
		DomainNumber:       p.set.Default.DomainNumber,
		Flags:              flags,
		SourcePortIdentity: p.identity,
		SequenceID:         seq,
		LogMessageInterval: logInterval,
	}
}

// encode serializes a message, signing it first when the port carries a
// security policy.
func (p *Port) encode(msg *wire.Message) ([]byte, error) {
	if p.signing == nil {
		return msg.Marshal()
	}
	data, err := security.Sign(msg, p.signing, p.sigSeq)
	if err != nil {
		return nil, err
	}
	p.sigSeq++
	return data, nil
}

// sendAnnounce emits one Announce built from the current datasets. The
// origin timestamp stays zero; announce timing plays no part in
// synchronization.
func (p *Port) sendAnnounce() error {
	flags, body := p.set.Announce()
	msg := &wire.Message{
		Header: p.header(p.seq.announce, p.cfg.LogAnnounceInterval, flags),
		Body:   body,
	}
	data, err := p.encode(msg)
	if err != nil {
		return fmt.Errorf("encoding announce: %w", err)
	}
	if err := p.conn.Send(data); err != nil {
		return fmt.Errorf("sending announce: %w", err)
	}
	p.seq.announce++
	p.log.WithField("seq", msg.Header.SequenceID).Debug("Announce sent")
	return nil
}

// sendSync emits a two-step Sync and the FollowUp carrying its precise
// egress timestamp. The sequence number advances once the Sync is on the
// wire; a FollowUp failure is surfaced but cannot un-send the Sync.
func (p *Port) sendSync(now time.Time) error {
	seq := p.seq.sync
	approx, err := wire.NewTimestamp(now)
	if err != nil {
		return fmt.Errorf("sync origin: %w", err)
	}
	msg := &wire.Message{
		Header: p.header(seq, p.cfg.LogSyncInterval, wire.FlagTwoStep),
		Body:   &wire.Sync{OriginTimestamp: approx},
	}
	data, err := p.encode(msg)
	if err != nil {
		return fmt.Errorf("encoding sync: %w", err)
	}
	egress, err := p.conn.SendTimeCritical(data)
	if err != nil {
		return fmt.Errorf("sending sync: %w", err)
	}
	p.seq.sync++

	precise, err := wire.NewTimestamp(egress)
	if err != nil {
		return fmt.Errorf("follow-up origin: %w", err)
	}
	fu := &wire.Message{
		Header: p.header(seq, p.cfg.LogSyncInterval, 0),
		Body:   &wire.FollowUp{PreciseOriginTimestamp: precise},
	}
	fdata, err := p.encode(fu)
	if err != nil {
		return fmt.Errorf("encoding follow-up: %w", err)
	}
	if err := p.conn.Send(fdata); err != nil {
		return fmt.Errorf("sending follow-up %d: %w", seq, err)
	}
	p.log.WithField("seq", seq).Debug("Sync and follow-up sent")
	return nil
}

// sendDelayRequest emits the delay measurement request of the configured
// mechanism.
func (p *Port) sendDelayRequest() error {
	if p.cfg.DelayMechanism == P2P {
		return p.sendPDelayReq()
	}
	return p.sendDelayReq()
}

// sendDelayReq opens one end-to-end delay measurement. The request carries
// a zero origin; the egress timestamp is kept locally for the response.
func (p *Port) sendDelayReq() error {
	seq := p.seq.delayReq
	msg := &wire.Message{
		Header: p.header(seq, logNoPeriod, 0),
		Body:   &wire.DelayReq{},
	}
	data, err := p.encode(msg)
	if err != nil {
		return fmt.Errorf("encoding delay request: %w", err)
	}
	egress, err := p.conn.SendTimeCritical(data)
	if err != nil {
		return fmt.Errorf("sending delay request: %w", err)
	}
	p.seq.delayReq++
	p.exch.delayReq = pendingDelayReq{seq: seq, egress: egress, valid: true}
	p.log.WithField("seq", seq).Debug("Delay request sent")
	return nil
}

// sendPDelayReq opens one peer delay measurement.
func (p *Port) sendPDelayReq() error {
	seq := p.seq.pdelayReq
	msg := &wire.Message{
		Header: p.header(seq, logNoPeriod, 0),
		Body:   &wire.PDelayReq{},
	}
	data, err := p.encode(msg)
	if err != nil {
		return fmt.Errorf("encoding peer delay request: %w", err)
	}
	egress, err := p.conn.SendTimeCritical(data)
	if err != nil {
		return fmt.Errorf("sending peer delay request: %w", err)
	}
	p.seq.pdelayReq++
	p.exch.pdelay = pendingPDelay{seq: seq, requestEgress: egress, valid: true}
	p.log.WithField("seq", seq).Debug("Peer delay request sent")
	return nil
}

// answerDelayReq returns the master's receive timestamp for a delay
// request. The request's correction is carried over so the requester can
// subtract it.
func (p *Port) answerDelayReq(req *wire.Message, ingress time.Time) error {
	if _, master := p.state.(Master); !master || p.cfg.DelayMechanism != E2E {
		return nil
	}
	receipt, err := wire.NewTimestamp(ingress)
	if err != nil {
		return fmt.Errorf("delay response timestamp: %w", err)
	}
	msg := &wire.Message{
		Header: p.header(req.Header.SequenceID, p.cfg.LogMinDelayReqInterval, 0),
		Body: &wire.DelayResp{
			ReceiveTimestamp:       receipt,
			RequestingPortIdentity: req.Header.SourcePortIdentity,
		},
	}
	msg.Header.Correction = req.Header.Correction
	data, err := p.encode(msg)
	if err != nil {
		return fmt.Errorf("encoding delay response: %w", err)
	}
	if err := p.conn.Send(data); err != nil {
		return fmt.Errorf("sending delay response: %w", err)
	}
	return nil
}

// answerPDelayReq runs the responder half of the peer delay exchange: a
// two-step response carrying the request receipt time, then a follow-up
// with the precise response egress time. Peer delay is answered in every
// state.
func (p *Port) answerPDelayReq(req *wire.Message, ingress time.Time) error {
	if p.cfg.DelayMechanism != P2P {
		return nil
	}
	receipt, err := wire.NewTimestamp(ingress)
	if err != nil {
		return fmt.Errorf("peer delay receipt timestamp: %w", err)
	}
	seq := req.Header.SequenceID
	requester := req.Header.SourcePortIdentity

	resp := &wire.Message{
		Header: p.header(seq, logNoPeriod, wire.FlagTwoStep),
		Body: &wire.PDelayResp{
			RequestReceiptTimestamp: receipt,
			RequestingPortIdentity:  requester,
		},
	}
	data, err := p.encode(resp)
	if err != nil {
		return fmt.Errorf("encoding peer delay response: %w", err)
	}
	egress, err := p.conn.SendTimeCritical(data)
	if err != nil {
		return fmt.Errorf("sending peer delay response: %w", err)
	}

	origin, err := wire.NewTimestamp(egress)
	if err != nil {
		return fmt.Errorf("peer delay follow-up timestamp: %w", err)
	}
	fu := &wire.Message{
		Header: p.header(seq, logNoPeriod, 0),
		Body: &wire.PDelayRespFollowUp{
			ResponseOriginTimestamp: origin,
			RequestingPortIdentity:  requester,
		},
	}
	fu.Header.Correction = req.Header.Correction
	fdata, err := p.encode(fu)
	if err != nil {
		return fmt.Errorf("encoding peer delay follow-up: %w", err)
	}
	if err := p.conn.Send(fdata); err != nil {
		return fmt.Errorf("sending peer delay follow-up %d: %w", seq, err)
	}
	return nil
}
