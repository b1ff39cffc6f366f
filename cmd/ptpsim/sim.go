package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ptpcore"
	"github.com/opd-ai/ptpcore/clock"
	"github.com/opd-ai/ptpcore/security"
	"github.com/opd-ai/ptpcore/transport"
	"github.com/opd-ai/ptpcore/wire"
)

// simNode pairs one scenario node with its live instance, simulated clock
// and pipe endpoints.
type simNode struct {
	spec *NodeSpec
	clk  *clock.Simulated
	inst *ptpcore.Instance
	ends []simEnd
}

type simEnd struct {
	number uint16
	end    *transport.Pipe
}

// simulation is a fully wired scenario ready to run.
type simulation struct {
	sc    *Scenario
	log   *logrus.Entry
	nodes []*simNode
}

// results is the state of every node when the run ended.
type results struct {
	Elapsed time.Duration
	Nodes   []nodeResult
}

// nodeResult is one node's synchronization state: the grandmaster it
// settled on, its measured offset and path delay, and how its clock was
// disciplined along the way.
type nodeResult struct {
	Name         string
	Grandmaster  wire.ClockIdentity
	StepsRemoved uint16
	Offset       time.Duration
	MeanDelay    time.Duration
	Steps        int
	FrequencyPPM float64
	States       map[uint16]string
}

// buildSimulation instantiates a validated scenario: one simulated clock
// and engine instance per node, pipe pairs per link, every node clock
// starting at epoch plus the node's configured offset.
func buildSimulation(sc *Scenario, epoch time.Time, log *logrus.Entry) (*simulation, error) {
	provider, err := buildProvider(sc.Security)
	if err != nil {
		return nil, err
	}

	sim := &simulation{sc: sc, log: log}
	byName := make(map[string]*simNode, len(sc.Nodes))
	for i := range sc.Nodes {
		spec := &sc.Nodes[i]
		clk := clock.NewSimulated(epoch.Add(spec.Offset))
		quality := clk.Quality()
		if spec.ClockClass != 0 {
			quality.Class = wire.ClockClass(spec.ClockClass)
		}
		if spec.ClockAccuracy != 0 {
			quality.Accuracy = wire.ClockAccuracy(spec.ClockAccuracy)
		}
		if spec.LogVariance != 0 {
			quality.OffsetScaledLogVariance = spec.LogVariance
		}
		clk.SetQuality(quality)

		node := &simNode{spec: spec, clk: clk}
		sim.nodes = append(sim.nodes, node)
		byName[spec.Name] = node
	}

	for i, l := range sc.Links {
		aName, aPort, _ := parseEndpoint(l.A)
		bName, bPort, _ := parseEndpoint(l.B)
		a, b := byName[aName], byName[bName]
		endA, endB := transport.NewPipePair(&transport.PipeOptions{
			Latency: l.Latency,
			Jitter:  l.Jitter,
			Loss:    l.Loss,
			Seed:    sc.Seed + int64(i) + 1,
			ClockA:  a.clk.Now,
			ClockB:  b.clk.Now,
		})
		a.ends = append(a.ends, simEnd{number: aPort, end: endA})
		b.ends = append(b.ends, simEnd{number: bPort, end: endB})
	}

	for _, n := range sim.nodes {
		inst, err := ptpcore.New(nodeConfig(sc, n.spec), n.clk, &ptpcore.Options{
			Transports: nodeTransports(n),
			Security:   provider,
			Log:        log.WithField("node", n.spec.Name),
		})
		if err != nil {
			sim.close()
			return nil, fmt.Errorf("node %q: %w", n.spec.Name, err)
		}
		n.inst = inst
	}
	return sim, nil
}

// nodeConfig translates one node spec into an instance configuration. The
// clock quality stays zero so the instance defers to the simulated clock.
func nodeConfig(sc *Scenario, spec *NodeSpec) ptpcore.Config {
	cfg := ptpcore.Config{
		ClockIdentity: spec.identity,
		Priority1:     *spec.Priority1,
		Priority2:     *spec.Priority2,
		DomainNumber:  sc.Domain,
		SdoID:         sc.SdoID,
		SlaveOnly:     spec.SlaveOnly,
	}
	for _, p := range spec.Ports {
		mechanism, _ := delayMechanism(p.DelayMechanism)
		cfg.Ports = append(cfg.Ports, ptpcore.PortConfig{
			Number:                 p.Number,
			LogAnnounceInterval:    wire.LogInterval(p.LogAnnounceInterval),
			LogSyncInterval:        wire.LogInterval(p.LogSyncInterval),
			LogMinDelayReqInterval: wire.LogInterval(p.LogMinDelayReqInterval),
			AnnounceReceiptTimeout: p.AnnounceReceiptTimeout,
			DelayMechanism:         mechanism,
			MasterOnly:             p.MasterOnly,
			SPI:                    p.SPI,
		})
	}
	return cfg
}

func nodeTransports(n *simNode) map[uint16]transport.Port {
	transports := make(map[uint16]transport.Port, len(n.ends))
	for _, e := range n.ends {
		transports[e.number] = e.end
	}
	return transports
}

// buildProvider assembles the static security provider the scenario's
// security section describes. A nil section yields a nil provider.
func buildProvider(spec *SecuritySpec) (security.Provider, error) {
	if spec == nil {
		return nil, nil
	}
	assocs := make([]*security.Association, 0, len(spec.Associations))
	for _, a := range spec.Associations {
		macs := make(map[uint8]security.MAC, len(a.Keys))
		for _, k := range a.Keys {
			mac, err := buildMAC(k)
			if err != nil {
				return nil, fmt.Errorf("association %d: %w", a.SPI, err)
			}
			macs[k.ID] = mac
		}
		assoc, err := security.NewAssociation(a.SPI, a.SigningKey, macs)
		if err != nil {
			return nil, fmt.Errorf("association %d: %w", a.SPI, err)
		}
		assocs = append(assocs, assoc)
	}
	provider, err := security.NewStaticProvider(assocs...)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// run drives the scenario to completion in lockstep: every node drains its
// links and handles due timers at the shared virtual instant, then every
// clock advances one quantum. Returns the final node states, or the
// context error if cancelled mid-run.
func (s *simulation) run(ctx context.Context) (*results, error) {
	iterations := int(s.sc.Duration / s.sc.Quantum)
	reportEach := int(s.sc.ReportEvery / s.sc.Quantum)
	if reportEach <= 0 {
		reportEach = 1
	}
	s.log.WithFields(logrus.Fields{
		"nodes":      len(s.nodes),
		"links":      len(s.sc.Links),
		"iterations": iterations,
		"quantum":    s.sc.Quantum,
	}).Info("Scenario starting")

	for i := 1; i <= iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, n := range s.nodes {
			s.step(n)
		}
		for _, n := range s.nodes {
			n.clk.Advance(s.sc.Quantum)
		}
		if i%reportEach == 0 {
			s.report(time.Duration(i) * s.sc.Quantum)
		}
	}
	return s.snapshot(s.sc.Duration), nil
}

// step delivers everything queued on the node's links and fires its due
// timers at the node's current clock reading.
func (s *simulation) step(n *simNode) {
	for _, e := range n.ends {
		for {
			pkt, ok := recvReady(e.end)
			if !ok {
				break
			}
			if err := n.inst.HandlePacket(e.number, pkt.Data, pkt.Ingress); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"node": n.spec.Name,
					"port": e.number,
				}).Warn("Packet rejected")
			}
		}
	}
	if err := n.inst.Tick(n.clk.Now()); err != nil {
		s.log.WithError(err).WithField("node", n.spec.Name).Warn("Timer handling failed")
	}
}

// recvReady drains one queued packet without waiting for more to arrive.
func recvReady(end *transport.Pipe) (transport.Packet, bool) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pkt, err := end.Recv(ctx)
	if err != nil {
		return transport.Packet{}, false
	}
	return pkt, true
}

// report logs one convergence sample per node.
func (s *simulation) report(elapsed time.Duration) {
	for _, n := range s.nodes {
		current := n.inst.Current()
		parent := n.inst.Parent()
		fields := logrus.Fields{
			"elapsed":    elapsed,
			"node":       n.spec.Name,
			"gm":         parent.GrandmasterIdentity.String(),
			"offset":     current.OffsetFromMaster,
			"mean_delay": current.MeanDelay,
			"freq_ppm":   n.clk.FrequencyPPM(),
		}
		addPortStates(fields, n.inst)
		s.log.WithFields(fields).Info("Convergence report")
	}
}

// snapshot captures every node's final synchronization state.
func (s *simulation) snapshot(elapsed time.Duration) *results {
	res := &results{Elapsed: elapsed}
	for _, n := range s.nodes {
		current := n.inst.Current()
		parent := n.inst.Parent()
		states := make(map[uint16]string)
		for _, number := range n.inst.Ports() {
			if st, ok := n.inst.PortState(number); ok {
				states[number] = fmt.Sprint(st)
			}
		}
		res.Nodes = append(res.Nodes, nodeResult{
			Name:         n.spec.Name,
			Grandmaster:  parent.GrandmasterIdentity,
			StepsRemoved: current.StepsRemoved,
			Offset:       current.OffsetFromMaster,
			MeanDelay:    current.MeanDelay,
			Steps:        n.clk.Steps(),
			FrequencyPPM: n.clk.FrequencyPPM(),
			States:       states,
		})
	}
	return res
}

func addPortStates(fields logrus.Fields, inst *ptpcore.Instance) {
	for _, number := range inst.Ports() {
		if st, ok := inst.PortState(number); ok {
			fields[fmt.Sprintf("port_%d", number)] = fmt.Sprint(st)
		}
	}
}

// logResults emits the final per-node summary.
func logResults(log *logrus.Entry, res *results) {
	for _, n := range res.Nodes {
		fields := logrus.Fields{
			"node":          n.Name,
			"gm":            n.Grandmaster.String(),
			"steps_removed": n.StepsRemoved,
			"offset":        n.Offset,
			"mean_delay":    n.MeanDelay,
			"steps":         n.Steps,
			"freq_ppm":      n.FrequencyPPM,
		}
		for number, st := range n.States {
			fields[fmt.Sprintf("port_%d", number)] = st
		}
		log.WithFields(fields).Info("Node final state")
	}
}

// close shuts every instance down and tears the links after it.
func (s *simulation) close() {
	for _, n := range s.nodes {
		if n.inst != nil {
			n.inst.Close()
		}
	}
	for _, n := range s.nodes {
		for _, e := range n.ends {
			_ = e.end.Close()
		}
	}
}
