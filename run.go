package ptpcore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/ptpcore/port"
	"github.com/opd-ai/ptpcore/transport"
)

// Run drives the instance in hosted mode: one goroutine per port pumps its
// transport and timers through the public entry points, serialized by the
// instance lock so no dataset mutation straddles a suspension point. Run
// blocks until ctx is cancelled, the instance is closed, or a transport
// fails; cancellation and close return nil. The engine itself never spawns
// goroutines outside this call.
//
// Run suits clocks that advance with wall time. A simulated clock is
// driven cooperatively through Tick and NextDeadline instead.
func (in *Instance) Run(ctx context.Context) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrClosed
	}
	in.mu.Unlock()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-in.ctx.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	errs := make(chan error, len(in.ports))
	for _, p := range in.ports {
		wg.Add(1)
		go func(p *port.Port, conn transport.Port) {
			defer wg.Done()
			if err := in.pump(ctx, p, conn); err != nil {
				errs <- fmt.Errorf("port %d: %w", p.Number(), err)
				stop()
			}
		}(p, in.conns[p.Number()])
	}
	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	return errors.Join(all...)
}

// pump alternates between firing due timers and waiting for the earlier of
// the port's next deadline and an inbound datagram.
func (in *Instance) pump(ctx context.Context, p *port.Port, conn transport.Port) error {
	for {
		in.mu.Lock()
		terr := p.Tick(in.clk.Now())
		deadline, armed := p.NextDeadline()
		in.mu.Unlock()
		if terr != nil && !errors.Is(terr, port.ErrClosed) {
			in.log.WithError(terr).WithField("port", p.Number()).Warn("Timer handling failed")
		}

		rctx := ctx
		cancel := func() {}
		if armed {
			wait := deadline.Sub(in.clk.Now())
			if wait < 0 {
				wait = 0
			}
			rctx, cancel = context.WithTimeout(ctx, wait)
		}
		pkt, rerr := conn.Recv(rctx)
		cancel()

		switch {
		case rerr == nil:
			in.mu.Lock()
			herr := p.HandlePacket(pkt.Data, pkt.Ingress)
			in.mu.Unlock()
			if herr != nil && !errors.Is(herr, port.ErrClosed) {
				in.log.WithError(herr).WithField("port", p.Number()).Warn("Packet handling failed")
			}
		case ctx.Err() != nil:
			return nil
		case errors.Is(rerr, context.DeadlineExceeded):
			// A timer came due; the next pass fires it.
		default:
			return fmt.Errorf("receive: %w", rerr)
		}
	}
}
