package port

import (
	"github.com/opd-ai/ptpcore/bmca"
	"github.com/opd-ai/ptpcore/wire"
)

// State is the protocol state of one port. It is a sealed sum: exactly the
// six variants in this package implement it, each carrying only the data
// its role needs. A port is in exactly one state at a time.
type State interface {
	String() string
	isState()
}

// Listening waits for announces before taking a role.
type Listening struct{}

func (Listening) String() string { return "Listening" }
func (Listening) isState()       {}

// PreMaster has won the election but holds off emission for one
// qualification period so a late better candidate can still preempt it.
type PreMaster struct{}

func (PreMaster) String() string { return "PreMaster" }
func (PreMaster) isState()       {}

// Master emits Announce and Sync and answers delay requests.
type Master struct{}

func (Master) String() string { return "Master" }
func (Master) isState()       {}

// Passive is outranked but must not follow; it stays silent apart from
// peer delay measurement.
type Passive struct{}

func (Passive) String() string { return "Passive" }
func (Passive) isState()       {}

// Uncalibrated follows Parent but has not yet qualified as a slave.
type Uncalibrated struct {
	Parent wire.PortIdentity
}

func (Uncalibrated) String() string { return "Uncalibrated" }
func (Uncalibrated) isState()       {}

// Slave is synchronized to Parent and steers the clock from filtered
// measurements.
type Slave struct {
	Parent wire.PortIdentity
}

func (Slave) String() string { return "Slave" }
func (Slave) isState()       {}

// Following returns the parent a state synchronizes to, when it has one.
func Following(s State) (wire.PortIdentity, bool) {
	switch v := s.(type) {
	case Uncalibrated:
		return v.Parent, true
	case Slave:
		return v.Parent, true
	}
	return wire.PortIdentity{}, false
}

// event is one input to the transition core: an election outcome, a timer
// expiry or a calibration completion.
type event interface{ isEvent() }

// evDecision applies a master election outcome.
type evDecision struct {
	decision bmca.Decision
}

// evAnnounceTimeout fires when the announce receipt window closed and no
// candidate remains.
type evAnnounceTimeout struct{}

// evQualified fires when the pre-master qualification period ends.
type evQualified struct{}

// evCalibrated fires when calibration against the selected parent
// completes.
type evCalibrated struct{}

func (evDecision) isEvent()        {}
func (evAnnounceTimeout) isEvent() {}
func (evQualified) isEvent()       {}
func (evCalibrated) isEvent()      {}

// effects is the side work a transition asks of the shell, returned as
// data so the core stays pure. The shell executes them against the
// datasets, the filter and the timer set.
type effects struct {
	// adopt replaces the parent datasets with this candidate.
	adopt *bmca.Candidate

	// resetParent returns the instance to being its own grandmaster.
	resetParent bool

	// demobilize hands the clock back from the filter.
	demobilize bool

	// resetExchanges drops pending timestamp exchanges.
	resetExchanges bool
}

// transition computes the next state and the effects of moving there from
// the current state and one event. It performs no I/O and reads no clocks.
func transition(slaveOnly bool, s State, ev event) (State, effects) {
	switch e := ev.(type) {
	case evDecision:
		return applyDecision(s, e.decision)
	case evAnnounceTimeout:
		if slaveOnly {
			return enter(s, Listening{})
		}
		return enter(s, Master{})
	case evQualified:
		if _, ok := s.(PreMaster); ok {
			return Master{}, effects{}
		}
		return s, effects{}
	case evCalibrated:
		if u, ok := s.(Uncalibrated); ok {
			return Slave{Parent: u.Parent}, effects{}
		}
		return s, effects{}
	}
	return s, effects{}
}

// applyDecision maps an election outcome onto the current state. A port
// elected master qualifies in PreMaster before emitting; a port told to
// follow a new parent passes through Uncalibrated first.
func applyDecision(s State, d bmca.Decision) (State, effects) {
	switch d.Recommendation {
	case bmca.RecommendMaster:
		switch s.(type) {
		case Master, PreMaster:
			return s, effects{}
		}
		return enter(s, PreMaster{})

	case bmca.RecommendSlave:
		parent := d.Best.Sender
		if cur, ok := Following(s); ok && cur == parent {
			return s, effects{adopt: d.Best}
		}
		next, fx := enter(s, Uncalibrated{Parent: parent})
		fx.adopt = d.Best
		return next, fx

	case bmca.RecommendPassive:
		if _, ok := s.(Passive); ok {
			return s, effects{}
		}
		return enter(s, Passive{})

	case bmca.RecommendListening:
		if _, ok := s.(Listening); ok {
			return s, effects{}
		}
		return enter(s, Listening{})
	}
	return s, effects{}
}

// enter computes the effects of moving between states. Leaving the
// following pair hands the clock back and resets the parent view; moving
// between parents keeps the instance's own datasets out of it.
func enter(from, to State) (State, effects) {
	var fx effects
	fromParent, wasFollowing := Following(from)
	toParent, nowFollowing := Following(to)
	switch {
	case wasFollowing && !nowFollowing:
		fx.demobilize = true
		fx.resetExchanges = true
		fx.resetParent = true
	case wasFollowing && nowFollowing && fromParent != toParent:
		fx.demobilize = true
		fx.resetExchanges = true
	case !wasFollowing && nowFollowing:
		fx.resetExchanges = true
	}
	return to, fx
}
