package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed indicates an operation on a transport that has been shut
	// down.
	ErrClosed = errors.New("transport closed")

	// ErrInvalidAddress indicates a destination address that is not a
	// usable IPv4 address.
	ErrInvalidAddress = errors.New("invalid transport address")
)

// defaultQueueDepth is the number of received packets buffered per port
// before the transport behaves like a congested link and drops.
const defaultQueueDepth = 64

// Packet is a single datagram received from the network together with its
// ingress timestamp. The timestamp is taken as close to the wire as the
// implementation allows and feeds the timing engine's measurements.
type Packet struct {
	Data    []byte
	Ingress time.Time
}

// Port is the I/O boundary of one PTP port. Implementations carry raw
// encoded messages and never inspect or modify the payload.
//
// Send transmits a general message for which no egress timestamp is
// needed. SendTimeCritical transmits an event message and returns its
// egress timestamp, which the caller embeds in a follow-up message. Recv
// blocks until a datagram arrives, the context is cancelled, or the
// transport is closed; a packet already queued takes priority over
// cancellation, so draining stays deterministic.
type Port interface {
	Send(b []byte) error
	SendTimeCritical(b []byte) (time.Time, error)
	Recv(ctx context.Context) (Packet, error)
}
