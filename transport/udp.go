package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"github.com/opd-ai/ptpcore/limits"
)

const (
	// DefaultMulticastAddress is the primary IPv4 multicast group for PTP
	// messages.
	DefaultMulticastAddress = "224.0.1.129"

	// DefaultEventPort carries time-critical event messages.
	DefaultEventPort = 319

	// DefaultGeneralPort carries general messages.
	DefaultGeneralPort = 320

	// defaultMulticastTTL keeps PTP traffic on the local network segment.
	defaultMulticastTTL = 1
)

// UDPOptions configures a UDP transport. The zero value selects the
// standard PTP multicast group and ports.
type UDPOptions struct {
	// Address is the destination IP for outbound messages and, when it
	// names a multicast group, the group to join. A unicast address skips
	// the group join, for point-to-point operation.
	Address string

	// Interface names the network interface for the multicast group join.
	// Empty selects the system default.
	Interface string

	// EventPort and GeneralPort override the standard PTP ports. Zero
	// selects the defaults.
	EventPort   int
	GeneralPort int

	// TTL bounds multicast propagation. Zero selects the default of 1.
	TTL int
}

// UDP carries PTP messages over IPv4 UDP using the standard two-socket
// layout: event messages on one port, general messages on another. Both
// sockets feed a single receive queue drained by Recv. Timestamps are
// taken in software around the socket calls.
type UDP struct {
	event      net.PacketConn
	general    net.PacketConn
	eventDst   net.Addr
	generalDst net.Addr

	in   chan Packet
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	log *logrus.Entry
}

// NewUDP opens the event and general sockets and, for a multicast
// destination, joins the group on the configured interface.
func NewUDP(opts *UDPOptions) (*UDP, error) {
	o := UDPOptions{}
	if opts != nil {
		o = *opts
	}
	if o.Address == "" {
		o.Address = DefaultMulticastAddress
	}
	if o.EventPort == 0 {
		o.EventPort = DefaultEventPort
	}
	if o.GeneralPort == 0 {
		o.GeneralPort = DefaultGeneralPort
	}
	if o.TTL == 0 {
		o.TTL = defaultMulticastTTL
	}

	ip := net.ParseIP(o.Address)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidAddress, o.Address)
	}
	ip = ip.To4()

	var ifi *net.Interface
	if o.Interface != "" {
		var err error
		ifi, err = net.InterfaceByName(o.Interface)
		if err != nil {
			return nil, fmt.Errorf("resolving interface %q: %w", o.Interface, err)
		}
	}

	event, err := listenPTP(ip, ifi, o.EventPort, o.TTL)
	if err != nil {
		return nil, fmt.Errorf("opening event socket: %w", err)
	}
	general, err := listenPTP(ip, ifi, o.GeneralPort, o.TTL)
	if err != nil {
		event.Close()
		return nil, fmt.Errorf("opening general socket: %w", err)
	}

	u := &UDP{
		event:      event,
		general:    general,
		eventDst:   &net.UDPAddr{IP: ip, Port: o.EventPort},
		generalDst: &net.UDPAddr{IP: ip, Port: o.GeneralPort},
		in:         make(chan Packet, defaultQueueDepth),
		done:       make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component": "udp",
			"address":   o.Address,
		}),
	}

	u.wg.Add(2)
	go u.read(event)
	go u.read(general)

	return u, nil
}

// listenPTP binds a UDP socket on port and joins group when the destination
// is a multicast address.
func listenPTP(dst net.IP, ifi *net.Interface, port, ttl int) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	if dst.IsMulticast() {
		p := ipv4.NewPacketConn(conn)
		if err := p.JoinGroup(ifi, &net.UDPAddr{IP: dst}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("joining group %s: %w", dst, err)
		}
		if err := p.SetMulticastTTL(ttl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting multicast ttl: %w", err)
		}
		if err := p.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting multicast loopback: %w", err)
		}
	}
	return conn, nil
}

// Send transmits a general message to the configured destination.
func (u *UDP) Send(b []byte) error {
	select {
	case <-u.done:
		return ErrClosed
	default:
	}
	_, err := u.general.WriteTo(b, u.generalDst)
	return err
}

// SendTimeCritical transmits an event message and returns the software
// egress timestamp, taken immediately after the socket write returns.
func (u *UDP) SendTimeCritical(b []byte) (time.Time, error) {
	select {
	case <-u.done:
		return time.Time{}, ErrClosed
	default:
	}
	if _, err := u.event.WriteTo(b, u.eventDst); err != nil {
		return time.Time{}, err
	}
	return time.Now(), nil
}

// Recv returns the next datagram from either socket. It blocks until a
// packet arrives, the context is cancelled, or the transport is closed.
// Packets queued before a close remain retrievable.
func (u *UDP) Recv(ctx context.Context) (Packet, error) {
	select {
	case pkt := <-u.in:
		return pkt, nil
	default:
	}
	select {
	case pkt := <-u.in:
		return pkt, nil
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-u.done:
		return Packet{}, ErrClosed
	}
}

// Close shuts down both sockets and stops the reader goroutines. It is
// idempotent.
func (u *UDP) Close() error {
	var errEvent, errGeneral error
	u.once.Do(func() {
		close(u.done)
		errEvent = u.event.Close()
		errGeneral = u.general.Close()
		u.wg.Wait()
	})
	if errEvent != nil {
		return errEvent
	}
	return errGeneral
}

// read pumps one socket into the shared receive queue, stamping ingress as
// soon as the datagram is surfaced by the kernel.
func (u *UDP) read(conn net.PacketConn) {
	defer u.wg.Done()
	buf := make([]byte, limits.MaxMessageSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		ingress := time.Now()
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			u.log.WithError(err).Warn("Socket read failed")
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case u.in <- Packet{Data: data, Ingress: ingress}:
		case <-u.done:
			return
		default:
			u.log.Debug("Receive queue full, packet dropped")
		}
	}
}
