package security

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore/limits"
	"github.com/opd-ai/ptpcore/wire"
)

// Provider resolves the security-parameter index carried in an
// authentication TLV to the association holding its key material.
type Provider interface {
	Lookup(spi uint8) (*Association, bool)
}

// replayKey identifies one anti-replay stream: sequence numbers are
// tracked independently per key and per sender.
type replayKey struct {
	keyID  uint8
	sender wire.PortIdentity
}

// Association is the key material behind one SPI: a set of MACs indexed by
// key id, the key id used for signing, and the per-sender anti-replay
// table. The key set is immutable after construction; the replay table is
// safe for concurrent use.
//
// Example usage:
//
//	mac, err := security.NewHMACSHA256(key)
//	if err != nil {
//	    return err
//	}
//	assoc, err := security.NewAssociation(1, 0, map[uint8]security.MAC{0: mac})
//	if err != nil {
//	    return err
//	}
//	provider, err := security.NewStaticProvider(assoc)
type Association struct {
	spi          uint8
	signingKeyID uint8
	macs         map[uint8]MAC

	mu      sync.RWMutex
	lastSeq map[replayKey]uint16

	log *logrus.Entry
}

// NewAssociation creates an association for spi. macs must contain
// signingKeyID.
func NewAssociation(spi, signingKeyID uint8, macs map[uint8]MAC) (*Association, error) {
	if len(macs) == 0 {
		return nil, errors.New("security: association needs at least one key")
	}
	if _, ok := macs[signingKeyID]; !ok {
		return nil, fmt.Errorf("security: signing key id %d not among the association keys", signingKeyID)
	}
	keys := make(map[uint8]MAC, len(macs))
	for id, m := range macs {
		if m == nil {
			return nil, fmt.Errorf("security: nil MAC for key id %d", id)
		}
		keys[id] = m
	}
	return &Association{
		spi:          spi,
		signingKeyID: signingKeyID,
		macs:         keys,
		lastSeq:      make(map[replayKey]uint16),
		log:          logrus.WithField("spi", spi),
	}, nil
}

// SPI returns the security-parameter index this association serves.
func (a *Association) SPI() uint8 {
	return a.spi
}

// MAC returns the MAC registered under keyID.
func (a *Association) MAC(keyID uint8) (MAC, bool) {
	m, ok := a.macs[keyID]
	return m, ok
}

// SigningMAC returns the key id and MAC used for outbound messages.
func (a *Association) SigningMAC() (uint8, MAC) {
	return a.signingKeyID, a.macs[a.signingKeyID]
}

// RegisterSequenceID enforces the anti-replay window for one verified
// message and reports whether it is acceptable. The first sequence number
// seen from a sender seeds its stream; afterwards a sequence number is
// accepted only when its wrap-aware forward distance from the last
// accepted one is within (0, limits.ReplaySequenceWindow]. Duplicates and
// backward deltas are replays, larger jumps indicate desynchronized or
// forged state. Acceptance advances the stored value, so the table only
// moves forward.
func (a *Association) RegisterSequenceID(keyID uint8, sender wire.PortIdentity, seq uint16) bool {
	k := replayKey{keyID: keyID, sender: sender}

	a.mu.Lock()
	defer a.mu.Unlock()

	last, seen := a.lastSeq[k]
	if seen {
		delta := seq - last
		if delta == 0 || delta > limits.ReplaySequenceWindow {
			a.log.WithFields(logrus.Fields{
				"key_id": keyID,
				"sender": sender.String(),
				"seq":    seq,
				"last":   last,
			}).Warn("Replay attack detected: sequence id outside acceptance window")
			return false
		}
	}
	a.lastSeq[k] = seq
	return true
}

// StaticProvider is the fixed association table configured at instance
// construction.
type StaticProvider struct {
	assocs map[uint8]*Association
}

// NewStaticProvider builds a provider over the given associations.
// Duplicate SPIs are a configuration error.
func NewStaticProvider(assocs ...*Association) (*StaticProvider, error) {
	table := make(map[uint8]*Association, len(assocs))
	for _, a := range assocs {
		if a == nil {
			return nil, errors.New("security: nil association")
		}
		if _, dup := table[a.spi]; dup {
			return nil, fmt.Errorf("security: duplicate association for SPI %d", a.spi)
		}
		table[a.spi] = a
	}
	return &StaticProvider{assocs: table}, nil
}

// Lookup implements Provider.
func (p *StaticProvider) Lookup(spi uint8) (*Association, bool) {
	a, ok := p.assocs[spi]
	return a, ok
}
