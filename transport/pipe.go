package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PipeOptions configures the simulated link between a pipe pair. The zero
// value is a lossless, zero-latency link stamped with wall-clock time.
type PipeOptions struct {
	// Latency is the fixed one-way delivery delay.
	Latency time.Duration

	// Jitter is the maximum random delay added on top of Latency. Each
	// packet samples uniformly from [0, Jitter).
	Jitter time.Duration

	// Loss is the probability in [0, 1] that a packet entering the link
	// is silently discarded in transit.
	Loss float64

	// Seed initializes the random source behind jitter and loss so a
	// scenario replays identically. Zero selects a fixed default.
	Seed int64

	// Capacity is the per-direction packet buffer. Zero selects the
	// default; a packet arriving at a full buffer is dropped.
	Capacity int

	// ClockA and ClockB supply local time for the two ends: an end's
	// clock stamps its egress timestamps and the ingress timestamps of
	// packets delivered to it. Nil defaults to time.Now.
	ClockA func() time.Time
	ClockB func() time.Time
}

// Pipe is one end of an in-memory point-to-point link with a deterministic
// latency, jitter and loss model. Pipe pairs connect engine instances in
// tests and in the simulator without touching the network stack.
//
// Ingress timestamps are computed at send time from the receiving end's
// clock plus the sampled link delay, so simulated clocks that only move
// when advanced still observe consistent packet timing.
type Pipe struct {
	now     func() time.Time
	peerNow func() time.Time
	in      chan Packet
	out     chan Packet

	latency time.Duration
	jitter  time.Duration
	loss    float64

	mu  sync.Mutex
	rng *rand.Rand

	done      chan struct{}
	closeOnce *sync.Once

	log *logrus.Entry
}

// NewPipePair returns two connected pipes. Anything sent on one end is
// delivered to the other according to the configured link model.
func NewPipePair(opts *PipeOptions) (*Pipe, *Pipe) {
	o := PipeOptions{}
	if opts != nil {
		o = *opts
	}
	if o.Capacity <= 0 {
		o.Capacity = defaultQueueDepth
	}
	if o.ClockA == nil {
		o.ClockA = time.Now
	}
	if o.ClockB == nil {
		o.ClockB = time.Now
	}
	seed := o.Seed
	if seed == 0 {
		seed = 1
	}

	toA := make(chan Packet, o.Capacity)
	toB := make(chan Packet, o.Capacity)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &Pipe{
		now:       o.ClockA,
		peerNow:   o.ClockB,
		in:        toA,
		out:       toB,
		latency:   o.Latency,
		jitter:    o.Jitter,
		loss:      o.Loss,
		rng:       rand.New(rand.NewSource(seed)),
		done:      done,
		closeOnce: once,
		log:       logrus.WithFields(logrus.Fields{"component": "pipe", "end": "a"}),
	}
	b := &Pipe{
		now:       o.ClockB,
		peerNow:   o.ClockA,
		in:        toB,
		out:       toA,
		latency:   o.Latency,
		jitter:    o.Jitter,
		loss:      o.Loss,
		rng:       rand.New(rand.NewSource(seed + 1)),
		done:      done,
		closeOnce: once,
		log:       logrus.WithFields(logrus.Fields{"component": "pipe", "end": "b"}),
	}
	return a, b
}

// Send queues b for delivery to the peer. A nil error means the packet
// entered the link; the loss model may still discard it in transit, just
// as a datagram network would.
func (p *Pipe) Send(b []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	delay, lost := p.sample()
	if lost {
		p.log.Debug("Packet lost in transit")
		return nil
	}

	data := make([]byte, len(b))
	copy(data, b)
	pkt := Packet{Data: data, Ingress: p.peerNow().Add(delay)}

	select {
	case p.out <- pkt:
	default:
		p.log.Debug("Link buffer full, packet dropped")
	}
	return nil
}

// SendTimeCritical queues b like Send and returns the egress timestamp read
// from this end's clock at the moment of transmission.
func (p *Pipe) SendTimeCritical(b []byte) (time.Time, error) {
	egress := p.now()
	if err := p.Send(b); err != nil {
		return time.Time{}, err
	}
	return egress, nil
}

// Recv returns the next packet delivered to this end. It blocks until a
// packet arrives, the context is cancelled, or the pipe is closed. Packets
// queued before a close remain retrievable.
func (p *Pipe) Recv(ctx context.Context) (Packet, error) {
	select {
	case pkt := <-p.in:
		return pkt, nil
	default:
	}
	select {
	case pkt := <-p.in:
		return pkt, nil
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-p.done:
		return Packet{}, ErrClosed
	}
}

// Close tears down both directions of the link. It is idempotent, may be
// called from either end, and unblocks pending Recv calls on both ends.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// sample draws one loss decision and one delivery delay from the link
// model.
func (p *Pipe) sample() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loss > 0 && p.rng.Float64() < p.loss {
		return 0, true
	}
	delay := p.latency
	if p.jitter > 0 {
		delay += time.Duration(p.rng.Int63n(int64(p.jitter)))
	}
	return delay, false
}
