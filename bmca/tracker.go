package bmca

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore/limits"
	"github.com/opd-ai/ptpcore/wire"
)

// defaultTimeoutMultiple is how many announce intervals may pass without a
// fresh Announce before a foreign master ages out.
const defaultTimeoutMultiple = 3

type foreignClock struct {
	candidate *Candidate
	interval  time.Duration
	lastSeen  time.Time
}

// Tracker retains the most recent qualifying Announce per remote sender and
// ages senders out after a configurable number of missed announce
// intervals. At capacity the worst-ranked candidate is evicted first. It is
// confined to its port's event context and needs no locking.
type Tracker struct {
	timeoutMultiple int
	clocks          map[wire.PortIdentity]*foreignClock
	log             *logrus.Entry
}

// NewTracker creates an empty tracker. timeoutMultiple values below one
// select the default of 3 missed intervals.
func NewTracker(timeoutMultiple int) *Tracker {
	if timeoutMultiple < 1 {
		timeoutMultiple = defaultTimeoutMultiple
	}
	return &Tracker{
		timeoutMultiple: timeoutMultiple,
		clocks:          make(map[wire.PortIdentity]*foreignClock),
		log:             logrus.WithField("component", "bmca"),
	}
}

// Observe records one received Announce. interval is the sender's announce
// interval from the message header; it drives this sender's age-out.
func (t *Tracker) Observe(now time.Time, c *Candidate, interval wire.LogInterval) {
	if fc, ok := t.clocks[c.Sender]; ok {
		fc.candidate = c
		fc.interval = interval.Duration()
		fc.lastSeen = now
		return
	}
	if len(t.clocks) >= limits.MaxForeignClocks {
		t.evictWorst()
	}
	t.clocks[c.Sender] = &foreignClock{
		candidate: c,
		interval:  interval.Duration(),
		lastSeen:  now,
	}
	t.log.WithFields(logrus.Fields{
		"sender": c.Sender.String(),
		"gm":     c.Announce.GrandmasterIdentity.String(),
	}).Debug("Foreign master observed")
}

// evictWorst removes the lowest-ranked candidate to make room. The strict
// total order makes the choice deterministic.
func (t *Tracker) evictWorst() {
	var worstKey wire.PortIdentity
	var worst *foreignClock
	for k, fc := range t.clocks {
		if worst == nil || Compare(fc.candidate, worst.candidate) > 0 {
			worst = fc
			worstKey = k
		}
	}
	if worst == nil {
		return
	}
	delete(t.clocks, worstKey)
	t.log.WithFields(logrus.Fields{
		"sender": worstKey.String(),
	}).Debug("Evicted worst-ranked foreign master")
}

// Prune drops senders whose announces stopped arriving.
func (t *Tracker) Prune(now time.Time) {
	for k, fc := range t.clocks {
		if now.Sub(fc.lastSeen) > time.Duration(t.timeoutMultiple)*fc.interval {
			delete(t.clocks, k)
			t.log.WithFields(logrus.Fields{
				"sender": k.String(),
			}).Debug("Foreign master aged out")
		}
	}
}

// Candidates prunes aged-out senders and returns the live candidate set.
func (t *Tracker) Candidates(now time.Time) []*Candidate {
	t.Prune(now)
	out := make([]*Candidate, 0, len(t.clocks))
	for _, fc := range t.clocks {
		out = append(out, fc.candidate)
	}
	return out
}

// Len reports the number of tracked foreign masters.
func (t *Tracker) Len() int {
	return len(t.clocks)
}

// Reset forgets all foreign masters, used when the port re-initializes.
func (t *Tracker) Reset() {
	t.clocks = make(map[wire.PortIdentity]*foreignClock)
}
