package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/ptpcore/limits"
	"github.com/opd-ai/ptpcore/port"
	"github.com/opd-ai/ptpcore/security"
	"github.com/opd-ai/ptpcore/wire"
)

// errScenario indicates a scenario file that parsed but describes an
// impossible or inconsistent network.
var errScenario = errors.New("invalid scenario")

// Scenario defaults applied to fields left at their zero value.
const (
	defaultDuration    = 60 * time.Second
	defaultQuantum     = 10 * time.Millisecond
	defaultReportEvery = 10 * time.Second
	defaultPriority    = 128
)

// Scenario describes one simulated network: the participating nodes, the
// links joining their ports and an optional security configuration shared
// by every node.
type Scenario struct {
	// Name tags log output. Defaults to "scenario".
	Name string `yaml:"name"`

	// Duration is the total simulated time to run. Defaults to one
	// minute.
	Duration time.Duration `yaml:"duration"`

	// Quantum is the simulated time advanced per iteration. Defaults to
	// ten milliseconds.
	Quantum time.Duration `yaml:"quantum"`

	// ReportEvery is the simulated time between convergence reports.
	// Defaults to ten seconds.
	ReportEvery time.Duration `yaml:"report_every"`

	// Seed makes link jitter and loss reproducible across runs.
	Seed int64 `yaml:"seed"`

	// Domain scopes every instance in the scenario.
	Domain uint8 `yaml:"domain"`

	// SdoID is the 12-bit sPTP domain qualifier, usually zero.
	SdoID uint16 `yaml:"sdo_id"`

	Nodes    []NodeSpec    `yaml:"nodes"`
	Links    []LinkSpec    `yaml:"links"`
	Security *SecuritySpec `yaml:"security"`
}

// NodeSpec describes one simulated clock and the instance running on it.
type NodeSpec struct {
	// Name identifies the node in links and log output.
	Name string `yaml:"name"`

	// Identity is the 8-byte clock identity as hex, with or without
	// colon separators. Empty derives a unique identity from the node's
	// position in the file.
	Identity string `yaml:"identity"`

	// Priority1 and Priority2 are the election priorities, lower wins.
	// Omitted values default to 128.
	Priority1 *uint8 `yaml:"priority1"`
	Priority2 *uint8 `yaml:"priority2"`

	// SlaveOnly keeps every port of the node out of the Master state.
	SlaveOnly bool `yaml:"slave_only"`

	// ClockClass, ClockAccuracy and LogVariance describe the node's
	// clock for election. Zero keeps the simulated clock's defaults.
	ClockClass    uint8  `yaml:"clock_class"`
	ClockAccuracy uint8  `yaml:"clock_accuracy"`
	LogVariance   uint16 `yaml:"log_variance"`

	// Offset is the node clock's initial error relative to the
	// scenario epoch. A positive value starts the clock ahead.
	Offset time.Duration `yaml:"offset"`

	// Ports lists the node's ports. Omitted, the node gets a single
	// port numbered 1.
	Ports []PortSpec `yaml:"ports"`

	identity wire.ClockIdentity
}

// PortSpec describes one port of a node. The log2 intervals default to
// zero, one second.
type PortSpec struct {
	Number                 uint16 `yaml:"number"`
	LogAnnounceInterval    int8   `yaml:"log_announce_interval"`
	LogSyncInterval        int8   `yaml:"log_sync_interval"`
	LogMinDelayReqInterval int8   `yaml:"log_min_delay_req_interval"`
	AnnounceReceiptTimeout uint8  `yaml:"announce_receipt_timeout"`

	// DelayMechanism is "e2e" or "p2p". Empty selects e2e.
	DelayMechanism string `yaml:"delay_mechanism"`

	MasterOnly bool `yaml:"master_only"`

	// SPI selects a security association; messages on this port are
	// then signed and must verify. Requires a security section.
	SPI *uint8 `yaml:"spi"`
}

// LinkSpec joins two ports with a bidirectional path. Endpoints are
// written "node/port".
type LinkSpec struct {
	A string `yaml:"a"`
	B string `yaml:"b"`

	// Latency is the one-way path delay, Jitter its uniform spread and
	// Loss the independent drop probability in [0, 1).
	Latency time.Duration `yaml:"latency"`
	Jitter  time.Duration `yaml:"jitter"`
	Loss    float64       `yaml:"loss"`
}

// SecuritySpec lists the security associations available to every node.
type SecuritySpec struct {
	Associations []AssociationSpec `yaml:"associations"`
}

// AssociationSpec describes one security association: its SPI, the key
// that signs outbound messages and the full key set accepted inbound.
type AssociationSpec struct {
	SPI        uint8     `yaml:"spi"`
	SigningKey uint8     `yaml:"signing_key"`
	Keys       []KeySpec `yaml:"keys"`
}

// KeySpec is one MAC key. Algorithm is "blake2s128" or "hmac-sha256";
// empty selects blake2s128. Secret is the key material as hex.
type KeySpec struct {
	ID        uint8  `yaml:"id"`
	Algorithm string `yaml:"algorithm"`
	Secret    string `yaml:"secret"`
}

// loadScenario reads, defaults and validates a scenario file.
func loadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	sc.applyDefaults()
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// applyDefaults fills omitted fields in place. Non-positive durations
// select the package defaults.
func (s *Scenario) applyDefaults() {
	if s.Name == "" {
		s.Name = "scenario"
	}
	if s.Duration <= 0 {
		s.Duration = defaultDuration
	}
	if s.Quantum <= 0 {
		s.Quantum = defaultQuantum
	}
	if s.ReportEvery <= 0 {
		s.ReportEvery = defaultReportEvery
	}
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.Priority1 == nil {
			n.Priority1 = uint8Ptr(defaultPriority)
		}
		if n.Priority2 == nil {
			n.Priority2 = uint8Ptr(defaultPriority)
		}
		if len(n.Ports) == 0 {
			n.Ports = []PortSpec{{Number: 1}}
		}
	}
}

// validate rejects scenarios that cannot be built: unknown link
// endpoints, unlinked ports, colliding identities, dangling SPI
// references and malformed key material.
func (s *Scenario) validate() error {
	if s.Quantum > s.Duration {
		return fmt.Errorf("%w: quantum %v exceeds duration %v", errScenario, s.Quantum, s.Duration)
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: at least one node required", errScenario)
	}

	spis, err := s.validateSecurity()
	if err != nil {
		return err
	}

	names := make(map[string]bool, len(s.Nodes))
	identities := make(map[wire.ClockIdentity]string, len(s.Nodes))
	declared := make(map[string]bool)
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.Name == "" {
			return fmt.Errorf("%w: node %d: name required", errScenario, i)
		}
		if strings.Contains(n.Name, "/") {
			return fmt.Errorf("%w: node %q: name cannot contain '/'", errScenario, n.Name)
		}
		if names[n.Name] {
			return fmt.Errorf("%w: duplicate node name %q", errScenario, n.Name)
		}
		names[n.Name] = true

		id, err := resolveIdentity(n.Identity, i)
		if err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
		if holder, dup := identities[id]; dup {
			return fmt.Errorf("%w: nodes %q and %q share identity %s", errScenario, holder, n.Name, id)
		}
		identities[id] = n.Name
		n.identity = id

		if err := limits.ValidatePortCount(len(n.Ports)); err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
		seen := make(map[uint16]bool, len(n.Ports))
		for _, p := range n.Ports {
			if p.Number == 0 {
				return fmt.Errorf("%w: node %q: port number must be non-zero", errScenario, n.Name)
			}
			if seen[p.Number] {
				return fmt.Errorf("%w: node %q: duplicate port %d", errScenario, n.Name, p.Number)
			}
			seen[p.Number] = true
			if _, err := delayMechanism(p.DelayMechanism); err != nil {
				return fmt.Errorf("node %q port %d: %w", n.Name, p.Number, err)
			}
			if p.SPI != nil && !spis[*p.SPI] {
				return fmt.Errorf("%w: node %q port %d: spi %d has no security association", errScenario, n.Name, p.Number, *p.SPI)
			}
			declared[endpointKey(n.Name, p.Number)] = false
		}
	}

	for i, l := range s.Links {
		if l.Latency < 0 || l.Jitter < 0 {
			return fmt.Errorf("%w: link %d: latency and jitter cannot be negative", errScenario, i)
		}
		if l.Loss < 0 || l.Loss >= 1 {
			return fmt.Errorf("%w: link %d: loss must be in [0, 1)", errScenario, i)
		}
		for _, ref := range []string{l.A, l.B} {
			name, number, err := parseEndpoint(ref)
			if err != nil {
				return fmt.Errorf("link %d: %w", i, err)
			}
			key := endpointKey(name, number)
			linked, ok := declared[key]
			if !ok {
				return fmt.Errorf("%w: link %d: unknown endpoint %q", errScenario, i, ref)
			}
			if linked {
				return fmt.Errorf("%w: link %d: port %s already linked", errScenario, i, key)
			}
			declared[key] = true
		}
	}
	for key, linked := range declared {
		if !linked {
			return fmt.Errorf("%w: port %s has no link", errScenario, key)
		}
	}
	return nil
}

// validateSecurity checks the security section and returns the set of
// SPIs ports may reference.
func (s *Scenario) validateSecurity() (map[uint8]bool, error) {
	spis := make(map[uint8]bool)
	if s.Security == nil {
		return spis, nil
	}
	if len(s.Security.Associations) == 0 {
		return nil, fmt.Errorf("%w: security section has no associations", errScenario)
	}
	for _, a := range s.Security.Associations {
		if spis[a.SPI] {
			return nil, fmt.Errorf("%w: duplicate association spi %d", errScenario, a.SPI)
		}
		spis[a.SPI] = true
		if len(a.Keys) == 0 {
			return nil, fmt.Errorf("%w: association %d has no keys", errScenario, a.SPI)
		}
		ids := make(map[uint8]bool, len(a.Keys))
		for _, k := range a.Keys {
			if ids[k.ID] {
				return nil, fmt.Errorf("%w: association %d: duplicate key id %d", errScenario, a.SPI, k.ID)
			}
			ids[k.ID] = true
			if _, err := buildMAC(k); err != nil {
				return nil, fmt.Errorf("association %d key %d: %w", a.SPI, k.ID, err)
			}
		}
		if !ids[a.SigningKey] {
			return nil, fmt.Errorf("%w: association %d: signing key %d not among keys", errScenario, a.SPI, a.SigningKey)
		}
	}
	return spis, nil
}

// buildMAC constructs the MAC a key spec describes.
func buildMAC(k KeySpec) (security.MAC, error) {
	secret, err := hex.DecodeString(k.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret is not hex", errScenario)
	}
	switch strings.ToLower(k.Algorithm) {
	case "", "blake2s128":
		return security.NewBlake2s128(secret)
	case "hmac-sha256":
		return security.NewHMACSHA256(secret)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", errScenario, k.Algorithm)
	}
}

// resolveIdentity parses an explicit identity or derives one from the
// node's position when the field is empty.
func resolveIdentity(s string, index int) (wire.ClockIdentity, error) {
	if s == "" {
		n := index + 1
		return wire.ClockIdentity{0x00, 0x1b, 0x19, 0xff, 0xfe, 0x00, byte(n >> 8), byte(n)}, nil
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return wire.ClockIdentity{}, fmt.Errorf("%w: identity %q is not hex", errScenario, s)
	}
	if len(raw) != 8 {
		return wire.ClockIdentity{}, fmt.Errorf("%w: identity %q must be 8 bytes", errScenario, s)
	}
	var id wire.ClockIdentity
	copy(id[:], raw)
	if id == (wire.ClockIdentity{}) {
		return wire.ClockIdentity{}, fmt.Errorf("%w: identity cannot be all zero", errScenario)
	}
	return id, nil
}

// parseEndpoint splits a "node/port" link endpoint.
func parseEndpoint(ref string) (string, uint16, error) {
	name, number, ok := strings.Cut(ref, "/")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("%w: endpoint %q must be node/port", errScenario, ref)
	}
	v, err := strconv.ParseUint(number, 10, 16)
	if err != nil || v == 0 {
		return "", 0, fmt.Errorf("%w: endpoint %q has an invalid port number", errScenario, ref)
	}
	return name, uint16(v), nil
}

func endpointKey(name string, number uint16) string {
	return fmt.Sprintf("%s/%d", name, number)
}

// delayMechanism maps the scenario spelling onto the port constant.
func delayMechanism(s string) (port.DelayMechanism, error) {
	switch strings.ToLower(s) {
	case "", "e2e":
		return port.E2E, nil
	case "p2p":
		return port.P2P, nil
	default:
		return 0, fmt.Errorf("%w: unknown delay mechanism %q", errScenario, s)
	}
}

func uint8Ptr(v uint8) *uint8 { return &v }
