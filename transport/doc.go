// Package transport moves encoded PTP messages between the engine and its
// peers. It provides the I/O boundary the engine never crosses itself: the
// engine is fed received packets and hands off encoded messages, while
// implementations of this package own sockets, queues and timestamps.
//
// # Port Interface
//
// The core abstraction is the Port interface:
//
//	type Port interface {
//	    Send(b []byte) error
//	    SendTimeCritical(b []byte) (time.Time, error)
//	    Recv(ctx context.Context) (Packet, error)
//	}
//
// Send carries general messages. SendTimeCritical carries event messages
// and returns the egress timestamp the caller needs for two-step operation,
// where the timestamp of one message is shipped inside the next.
//
// # Timestamps
//
// Received packets arrive as Packet values carrying the raw datagram and an
// ingress timestamp. Implementations stamp in software as close to the wire
// as they can: the UDP transport reads the clock around the socket calls,
// the pipe derives timestamps from the clocks configured for its ends.
//
// # Pipe
//
// Pipe pairs form in-memory links with a deterministic latency, jitter and
// loss model, seeded so simulation runs replay identically:
//
//	a, b := transport.NewPipePair(&transport.PipeOptions{
//	    Latency: time.Millisecond,
//	    ClockA:  clockA.Now,
//	    ClockB:  clockB.Now,
//	})
//
// Packets sent on one end surface on the other with ingress timestamps from
// the receiving end's clock, which keeps two-instance tests exact even when
// both clocks are simulated.
//
// # UDP
//
// The UDP transport implements the standard IPv4 mapping: event messages on
// port 319, general messages on port 320, multicast group 224.0.1.129
// joined via golang.org/x/net/ipv4. A unicast destination address skips the
// group join for point-to-point setups.
//
// # Thread Safety
//
// All implementations are safe for concurrent use. Close is idempotent and
// unblocks pending Recv calls with ErrClosed.
package transport
