// Package bmca implements the best master clock algorithm: a strict total
// order over announced grandmaster credentials and the decision logic that
// recommends the local port's next role.
package bmca

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore/dataset"
	"github.com/opd-ai/ptpcore/wire"
)

// Candidate is one election entrant: the grandmaster credentials from an
// Announce together with the port that sent it.
type Candidate struct {
	Sender   wire.PortIdentity
	Flags    wire.Flags
	Announce wire.Announce
}

// Local builds the election view of the local instance: its own
// grandmaster at zero steps removed.
func Local(d *dataset.Default) *Candidate {
	return &Candidate{
		Sender: wire.PortIdentity{ClockIdentity: d.ClockIdentity},
		Announce: wire.Announce{
			GrandmasterPriority1:    d.Priority1,
			GrandmasterClockQuality: d.ClockQuality,
			GrandmasterPriority2:    d.Priority2,
			GrandmasterIdentity:     d.ClockIdentity,
		},
	}
}

// Compare orders candidates by the dataset-comparison algorithm: priority1,
// clock class, clock accuracy, clock variance, priority2, then grandmaster
// identity; candidates announcing the same grandmaster are ordered by steps
// removed and finally by sender identity. Negative means a outranks b. The
// order is strictly total: 0 occurs only for identical ranking data from
// the same sender.
func Compare(a, b *Candidate) int {
	if c := int(a.Announce.GrandmasterPriority1) - int(b.Announce.GrandmasterPriority1); c != 0 {
		return c
	}
	aq, bq := a.Announce.GrandmasterClockQuality, b.Announce.GrandmasterClockQuality
	if c := int(aq.Class) - int(bq.Class); c != 0 {
		return c
	}
	if c := int(aq.Accuracy) - int(bq.Accuracy); c != 0 {
		return c
	}
	if c := int(aq.OffsetScaledLogVariance) - int(bq.OffsetScaledLogVariance); c != 0 {
		return c
	}
	if c := int(a.Announce.GrandmasterPriority2) - int(b.Announce.GrandmasterPriority2); c != 0 {
		return c
	}
	if c := a.Announce.GrandmasterIdentity.Compare(b.Announce.GrandmasterIdentity); c != 0 {
		return c
	}
	// Same grandmaster reached over different paths.
	if c := int(a.Announce.StepsRemoved) - int(b.Announce.StepsRemoved); c != 0 {
		return c
	}
	return comparePortIdentity(a.Sender, b.Sender)
}

func comparePortIdentity(a, b wire.PortIdentity) int {
	if c := a.ClockIdentity.Compare(b.ClockIdentity); c != 0 {
		return c
	}
	return int(a.PortNumber) - int(b.PortNumber)
}

// AcceptableMasterList vetoes election candidates by the clock identity of
// the port that would be followed, independent of BMCA rank.
type AcceptableMasterList interface {
	IsAcceptable(id wire.ClockIdentity) bool
}

// AcceptAll admits every candidate.
type AcceptAll struct{}

// IsAcceptable implements AcceptableMasterList.
func (AcceptAll) IsAcceptable(wire.ClockIdentity) bool { return true }

// AllowList admits only explicitly listed clock identities.
type AllowList struct {
	allowed map[wire.ClockIdentity]struct{}
}

// NewAllowList builds an allow list over the given identities.
func NewAllowList(ids ...wire.ClockIdentity) *AllowList {
	allowed := make(map[wire.ClockIdentity]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return &AllowList{allowed: allowed}
}

// IsAcceptable implements AcceptableMasterList.
func (l *AllowList) IsAcceptable(id wire.ClockIdentity) bool {
	_, ok := l.allowed[id]
	return ok
}

// Recommendation is the role the election recommends for the local port.
type Recommendation int

const (
	// RecommendMaster: no candidate outranks the local clock.
	RecommendMaster Recommendation = iota

	// RecommendPassive: a candidate outranks the local clock but the port
	// must not follow it.
	RecommendPassive

	// RecommendSlave: follow the best candidate.
	RecommendSlave

	// RecommendListening: a slave-only port with nothing viable to follow.
	RecommendListening
)

var recommendationNames = map[Recommendation]string{
	RecommendMaster:    "Master",
	RecommendPassive:   "Passive",
	RecommendSlave:     "Slave",
	RecommendListening: "Listening",
}

func (r Recommendation) String() string {
	if s, ok := recommendationNames[r]; ok {
		return s
	}
	return "Unknown"
}

// Decision is the election outcome. Best is the winning candidate for
// Slave and Passive recommendations and nil otherwise.
type Decision struct {
	Recommendation Recommendation
	Best           *Candidate
}

// Decide runs the election for one port. candidates is the live foreign
// clock set; acceptable vetoes candidates before ranking; masterOnly
// suppresses slave recommendations and slaveOnly suppresses master
// recommendations. The result depends only on the arguments, so
// re-evaluating an unchanged candidate set reproduces the same decision.
func Decide(local *Candidate, candidates []*Candidate, acceptable AcceptableMasterList, masterOnly, slaveOnly bool) Decision {
	var best *Candidate
	for _, c := range candidates {
		if !acceptable.IsAcceptable(c.Sender.ClockIdentity) {
			continue
		}
		if best == nil || Compare(c, best) < 0 {
			best = c
		}
	}

	if best == nil {
		if slaveOnly {
			return Decision{Recommendation: RecommendListening}
		}
		return Decision{Recommendation: RecommendMaster}
	}

	if slaveOnly {
		// A slave-only port follows the best candidate even when the
		// local clock would outrank it.
		return Decision{Recommendation: RecommendSlave, Best: best}
	}

	if Compare(local, best) < 0 {
		return Decision{Recommendation: RecommendMaster}
	}

	if masterOnly {
		return Decision{Recommendation: RecommendPassive, Best: best}
	}
	if best.Announce.GrandmasterIdentity == local.Announce.GrandmasterIdentity {
		// The best candidate traces to this clock itself: another path
		// is echoing our own grandmaster, so following it would close a
		// loop.
		return Decision{Recommendation: RecommendPassive, Best: best}
	}
	return Decision{Recommendation: RecommendSlave, Best: best}
}

// LogDecision records an election outcome for diagnostics.
func LogDecision(log *logrus.Entry, d Decision) {
	fields := logrus.Fields{"recommendation": d.Recommendation.String()}
	if d.Best != nil {
		fields["best_sender"] = d.Best.Sender.String()
		fields["best_gm"] = d.Best.Announce.GrandmasterIdentity.String()
	}
	log.WithFields(fields).Debug("Best master election evaluated")
}
