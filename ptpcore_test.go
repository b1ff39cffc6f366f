package ptpcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/ptpcore/clock"
	"github.com/opd-ai/ptpcore/dataset"
	"github.com/opd-ai/ptpcore/port"
	"github.com/opd-ai/ptpcore/transport"
	"github.com/opd-ai/ptpcore/wire"
)

var testEpoch = time.Unix(1700000000, 0).UTC()

func testIdentity(n byte) wire.ClockIdentity {
	return wire.ClockIdentity{0x00, 0x1b, 0x19, 0xff, 0xfe, 0xaa, 0x00, n}
}

func ts(t *testing.T, tm time.Time) wire.Timestamp {
	t.Helper()
	v, err := wire.NewTimestamp(tm)
	require.NoError(t, err)
	return v
}

func mustMarshal(t *testing.T, msg *wire.Message) []byte {
	t.Helper()
	data, err := msg.Marshal()
	require.NoError(t, err)
	return data
}

func decodeFrame(t *testing.T, b []byte) *wire.Message {
	t.Helper()
	msg, err := wire.UnmarshalMessage(b)
	require.NoError(t, err)
	return msg
}

func announceMsg(sender wire.PortIdentity, p1 uint8, seq uint16) *wire.Message {
	return &wire.Message{
		Header: wire.Header{
			SourcePortIdentity: sender,
			SequenceID:         seq,
		},
		Body: &wire.Announce{
			GrandmasterPriority1: p1,
			GrandmasterClockQuality: wire.ClockQuality{
				Class:                   wire.ClockClassDefault,
				Accuracy:                wire.ClockAccuracy(0x23),
				OffsetScaledLogVariance: 0xFFFF,
			},
			GrandmasterPriority2: 128,
			GrandmasterIdentity:  sender.ClockIdentity,
			TimeSource:           wire.TimeSourceInternalOscillator,
		},
	}
}

// env wires one instance to simulated pipes, keeping the peer ends for the
// tests to read and inject.
type env struct {
	inst  *Instance
	clk   *clock.Simulated
	peers map[uint16]*transport.Pipe
}

func newEnv(t *testing.T, tweak func(*Config, *Options)) *env {
	t.Helper()
	clk := clock.NewSimulated(testEpoch)
	cfg := Config{
		ClockIdentity: testIdentity(1),
		Priority1:     128,
		Priority2:     128,
		Ports:         []PortConfig{{Number: 1}},
	}
	opts := &Options{Transports: map[uint16]transport.Port{}}
	if tweak != nil {
		tweak(&cfg, opts)
	}
	peers := make(map[uint16]*transport.Pipe, len(cfg.Ports))
	for _, pc := range cfg.Ports {
		if _, ok := opts.Transports[pc.Number]; ok {
			continue
		}
		local, peer := transport.NewPipePair(&transport.PipeOptions{
			ClockA: clk.Now,
			ClockB: clk.Now,
		})
		opts.Transports[pc.Number] = local
		peers[pc.Number] = peer
	}
	inst, err := New(cfg, clk, opts)
	require.NoError(t, err)
	t.Cleanup(inst.Close)
	return &env{inst: inst, clk: clk, peers: peers}
}

// drain returns every frame already queued on the peer end of a port.
func (e *env) drain(t *testing.T, num uint16) [][]byte {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var frames [][]byte
	for {
		pkt, err := e.peers[num].Recv(ctx)
		if err != nil {
			return frames
		}
		frames = append(frames, pkt.Data)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	manyPorts := make([]PortConfig, 17)
	for i := range manyPorts {
		manyPorts[i].Number = uint16(i + 1)
	}

	tests := []struct {
		name  string
		tweak func(*Config, *Options)
	}{
		{"zero clock identity", func(c *Config, o *Options) {
			c.ClockIdentity = wire.ClockIdentity{}
		}},
		{"sdo id exceeds 12 bits", func(c *Config, o *Options) {
			c.SdoID = 0x1000
		}},
		{"no ports", func(c *Config, o *Options) {
			c.Ports = nil
		}},
		{"too many ports", func(c *Config, o *Options) {
			c.Ports = manyPorts
		}},
		{"duplicate port number", func(c *Config, o *Options) {
			c.Ports = []PortConfig{{Number: 1}, {Number: 1}}
			conn, _ := transport.NewPipePair(nil)
			o.Transports[1] = conn
		}},
		{"missing transport", func(c *Config, o *Options) {
			c.Ports = []PortConfig{{Number: 1}, {Number: 2}}
			conn, _ := transport.NewPipePair(nil)
			o.Transports[1] = conn
		}},
		{"nil transport", func(c *Config, o *Options) {
			o.Transports[1] = nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				ClockIdentity: testIdentity(1),
				Ports:         []PortConfig{{Number: 1}},
			}
			opts := &Options{Transports: map[uint16]transport.Port{}}
			tt.tweak(&cfg, opts)

			_, err := New(cfg, clock.NewSimulated(testEpoch), opts)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}

	t.Run("nil clock", func(t *testing.T) {
		_, err := New(Config{ClockIdentity: testIdentity(1), Ports: []PortConfig{{Number: 1}}}, nil, nil)
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestNewWrapsPortErrors(t *testing.T) {
	conn, _ := transport.NewPipePair(nil)
	_, err := New(Config{
		ClockIdentity: testIdentity(1),
		Ports:         []PortConfig{{Number: 1, DelayMechanism: port.DelayMechanism(9)}},
	}, clock.NewSimulated(testEpoch), &Options{
		Transports: map[uint16]transport.Port{1: conn},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrConfig)
	assert.Contains(t, err.Error(), "port 1")
}

func TestNewDerivesClockQuality(t *testing.T) {
	e := newEnv(t, nil)
	parent := e.inst.Parent()
	assert.Equal(t, wire.ClockQuality{
		Class:                   wire.ClockClassDefault,
		Accuracy:                wire.ClockAccuracyUnknown,
		OffsetScaledLogVariance: 0xFFFF,
	}, parent.GrandmasterClockQuality)
}

func TestNewSlaveOnlyAdvertisesSlaveClass(t *testing.T) {
	e := newEnv(t, func(c *Config, o *Options) { c.SlaveOnly = true })
	parent := e.inst.Parent()
	assert.Equal(t, wire.ClockClassSlaveOnly, parent.GrandmasterClockQuality.Class)
}

func TestNewExplicitQualityWins(t *testing.T) {
	want := wire.ClockQuality{Class: 6, Accuracy: 0x20, OffsetScaledLogVariance: 0x4100}
	e := newEnv(t, func(c *Config, o *Options) { c.ClockQuality = want })
	assert.Equal(t, want, e.inst.Parent().GrandmasterClockQuality)
}

func TestPortsAndIdentity(t *testing.T) {
	e := newEnv(t, func(c *Config, o *Options) {
		c.Ports = []PortConfig{{Number: 3}, {Number: 1}}
	})
	assert.Equal(t, testIdentity(1), e.inst.Identity())
	assert.Equal(t, []uint16{3, 1}, e.inst.Ports())

	st, ok := e.inst.PortState(3)
	require.True(t, ok)
	assert.Equal(t, port.Listening{}, st)

	_, ok = e.inst.PortState(2)
	assert.False(t, ok)
}

func TestHandlePacketRoutesByNumber(t *testing.T) {
	e := newEnv(t, func(c *Config, o *Options) {
		c.Ports = []PortConfig{{Number: 1}, {Number: 2}}
	})
	master := wire.PortIdentity{ClockIdentity: testIdentity(9), PortNumber: 1}
	frame := mustMarshal(t, announceMsg(master, 10, 0))

	require.NoError(t, e.inst.HandlePacket(2, frame, testEpoch.Add(time.Second)))

	st, _ := e.inst.PortState(2)
	assert.Equal(t, port.Uncalibrated{Parent: master}, st)
	st, _ = e.inst.PortState(1)
	assert.Equal(t, port.Listening{}, st)

	err := e.inst.HandlePacket(9, frame, testEpoch)
	assert.ErrorIs(t, err, ErrUnknownPort)
	assert.ErrorIs(t, e.inst.Calibrated(9), ErrUnknownPort)
}

func TestTickPromotesAndEmits(t *testing.T) {
	e := newEnv(t, nil)
	e.clk.Advance(3 * time.Second)
	require.NoError(t, e.inst.Tick(e.clk.Now()))

	st, _ := e.inst.PortState(1)
	require.Equal(t, port.Master{}, st)
	assert.Empty(t, e.drain(t, 1))

	require.NoError(t, e.inst.Tick(e.clk.Now()))
	frames := e.drain(t, 1)
	require.Len(t, frames, 3)
	assert.Equal(t, wire.MessageAnnounce, decodeFrame(t, frames[0]).Body.MessageType())
	assert.Equal(t, wire.MessageSync, decodeFrame(t, frames[1]).Body.MessageType())
	assert.Equal(t, wire.MessageFollowUp, decodeFrame(t, frames[2]).Body.MessageType())
}

func TestNextDeadlineEarliestAcrossPorts(t *testing.T) {
	e := newEnv(t, func(c *Config, o *Options) {
		c.Ports = []PortConfig{
			{Number: 1, LogAnnounceInterval: 1},
			{Number: 2},
		}
	})
	// Port 1's window is 3x2s, port 2's 3x1s; the instance reports the
	// earlier.
	d, ok := e.inst.NextDeadline()
	require.True(t, ok)
	assert.WithinDuration(t, testEpoch.Add(3*time.Second), d, 0)
}

func TestAdministrativePriorities(t *testing.T) {
	e := newEnv(t, nil)
	e.inst.SetPriority1(10)
	e.inst.SetPriority2(9)
	parent := e.inst.Parent()
	assert.Equal(t, uint8(10), parent.GrandmasterPriority1)
	assert.Equal(t, uint8(9), parent.GrandmasterPriority2)
}

func TestCloseIsIdempotent(t *testing.T) {
	e := newEnv(t, nil)
	e.inst.Close()
	e.inst.Close()

	assert.ErrorIs(t, e.inst.Tick(e.clk.Now()), ErrClosed)
	assert.ErrorIs(t, e.inst.HandlePacket(1, nil, e.clk.Now()), ErrClosed)
	assert.ErrorIs(t, e.inst.Calibrated(1), ErrClosed)

	_, armed := e.inst.NextDeadline()
	assert.False(t, armed)
}

// wallClock advances with real time but swallows adjustments, so hosted
// tests never touch the host clock.
type wallClock struct {
	quality wire.ClockQuality
}

func newWallClock(class wire.ClockClass) *wallClock {
	return &wallClock{quality: wire.ClockQuality{
		Class:                   class,
		Accuracy:                wire.ClockAccuracyUnknown,
		OffsetScaledLogVariance: 0xFFFF,
	}}
}

func (w *wallClock) Now() time.Time { return time.Now() }

func (w *wallClock) Step(time.Duration) (time.Time, error) { return time.Now(), nil }

func (w *wallClock) SetFrequency(float64) (time.Time, error) { return time.Now(), nil }

func (w *wallClock) SetProperties(*dataset.TimeProperties) error { return nil }

func (w *wallClock) Quality() wire.ClockQuality { return w.quality }

// hostedPair builds two single-port instances joined by one pipe, the
// first with a strictly better clock class.
func hostedPair(t *testing.T) (better, worse *Instance, link *transport.Pipe) {
	t.Helper()
	clkA := newWallClock(wire.ClockClassPrimary)
	clkB := newWallClock(wire.ClockClassDefault)
	a, b := transport.NewPipePair(&transport.PipeOptions{
		Latency: 50 * time.Microsecond,
		ClockA:  clkA.Now,
		ClockB:  clkB.Now,
	})

	fast := []PortConfig{{
		Number:                 1,
		LogAnnounceInterval:    -5,
		LogSyncInterval:        -5,
		LogMinDelayReqInterval: -5,
	}}
	instA, err := New(Config{ClockIdentity: testIdentity(1), Priority1: 128, Priority2: 128, Ports: fast},
		clkA, &Options{Transports: map[uint16]transport.Port{1: a}})
	require.NoError(t, err)
	instB, err := New(Config{ClockIdentity: testIdentity(2), Priority1: 128, Priority2: 128, Ports: fast},
		clkB, &Options{Transports: map[uint16]transport.Port{1: b}})
	require.NoError(t, err)
	t.Cleanup(instA.Close)
	t.Cleanup(instB.Close)
	return instA, instB, a
}

func TestRunElectsOverPipe(t *testing.T) {
	instA, instB, _ := hostedPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 2)
	go func() { done <- instA.Run(ctx) }()
	go func() { done <- instB.Run(ctx) }()

	require.Eventually(t, func() bool {
		sa, _ := instA.PortState(1)
		sb, _ := instB.PortState(1)
		return sa == port.State(port.Master{}) && sb == port.State(port.Slave{
			Parent: wire.PortIdentity{ClockIdentity: instA.Identity(), PortNumber: 1},
		})
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, instA.Identity(), instB.Parent().GrandmasterIdentity)

	cancel()
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancellation")
		}
	}
}

func TestRunReturnsOnClose(t *testing.T) {
	instA, _, _ := hostedPair(t)

	done := make(chan error, 1)
	go func() { done <- instA.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	instA.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestRunRejectsClosedInstance(t *testing.T) {
	instA, _, _ := hostedPair(t)
	instA.Close()
	assert.ErrorIs(t, instA.Run(context.Background()), ErrClosed)
}

func TestRunSurfacesTransportFailure(t *testing.T) {
	instA, _, link := hostedPair(t)

	done := make(chan error, 1)
	go func() { done <- instA.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, link.Close())
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not surface the transport failure")
	}
}
