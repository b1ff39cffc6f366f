// Package ptpcore implements the Precision Time Protocol (IEEE 1588-2019)
// synchronization engine: best master election, the per-port protocol state
// machine, offset and delay measurement, clock steering filters, and
// authenticated message envelopes.
//
// The package is the facade over the subsystem packages: wire (codec),
// dataset (clock datasets), bmca (election), port (state machine), filter
// (servo filters), security (message authentication), and the clock and
// transport capabilities. An Instance binds one clock and one dataset
// bundle to one or more ports.
//
// # Getting Started
//
// Create an instance from a validated configuration, a clock, and one
// transport per port:
//
//	clk := clock.NewSystem(wire.ClockQuality{Class: wire.ClockClassDefault})
//	conn, err := transport.NewUDP(&transport.UDPOptions{Interface: "eth0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	inst, err := ptpcore.New(ptpcore.Config{
//	    ClockIdentity: identity,
//	    Priority1:     128,
//	    Priority2:     128,
//	    Ports:         []ptpcore.PortConfig{{Number: 1}},
//	}, clk, &ptpcore.Options{
//	    Transports: map[uint16]transport.Port{1: conn},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close()
//
//	// Hosted mode: one goroutine per port, serialized internally.
//	if err := inst.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Driving the Instance
//
// The engine is sans-I/O at its core: it never spawns goroutines or blocks
// on its own. Embedded callers drive it cooperatively from one event loop:
//
//	for {
//	    deadline, ok := inst.NextDeadline()
//	    pkt, err := recvUntil(deadline, ok)
//	    if err == nil {
//	        inst.HandlePacket(1, pkt.Data, pkt.Ingress)
//	    }
//	    inst.Tick(clk.Now())
//	}
//
// Run wraps exactly this loop, one goroutine per port, for hosts that want
// the engine to pump its own transports.
//
// # Election and Synchronization
//
// Each port runs the best master clock algorithm over the Announce
// messages it receives. The winner's port becomes a slave: it consumes
// Sync/FollowUp pairs, measures path delay with its configured mechanism,
// and steers the shared clock through a servo filter. Ports that win their
// segment become masters and emit Announce and Sync themselves. The
// current offset and mean delay are readable at any time:
//
//	cur := inst.Current()
//	fmt.Println(cur.OffsetFromMaster, cur.MeanDelay)
//
// # Security
//
// Ports configured with an SPI sign every outbound message with the
// matching security association and require every inbound message to carry
// a valid authentication TLV; replayed sequence numbers are dropped. See
// the security package for association and provider construction.
package ptpcore
