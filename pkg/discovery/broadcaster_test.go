// ABOUTME: Tests for the beacon broadcaster
// ABOUTME: Uses a mock clock and an in-memory socket to check cadence and failure handling
package discovery

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type sentBeacon struct {
	payload string
	dst     netip.AddrPort
}

type fakeConn struct {
	mu     sync.Mutex
	sent   []sentBeacon
	fail   error
	closed bool
}

func (c *fakeConn) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return 0, c.fail
	}
	c.sent = append(c.sent, sentBeacon{payload: string(b), dst: addr})
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// hostState is a mutable SessionSource for tests
type hostState struct {
	mu sync.Mutex
	s  HostSession
}

func (h *hostState) Session() HostSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s
}

func (h *hostState) set(s HostSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s = s
}

func newTestBroadcaster(t *testing.T, src SessionSource, logger *zap.Logger) (*Broadcaster, *[]*fakeConn) {
	t.Helper()
	b, err := NewBroadcaster(BroadcasterConfig{Source: src, Logger: logger})
	require.NoError(t, err)

	var opened []*fakeConn
	b.opener = func() (udpWriter, error) {
		c := &fakeConn{}
		opened = append(opened, c)
		return c, nil
	}
	return b, &opened
}

func lobbyA() HostSession {
	return HostSession{Hosting: true, Name: "Lobby A", Port: 7770, ClientCount: 2}
}

func TestNewBroadcasterRequiresSource(t *testing.T) {
	_, err := NewBroadcaster(BroadcasterConfig{})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestNewBroadcasterDefaults(t *testing.T) {
	b, err := NewBroadcaster(BroadcasterConfig{Source: &hostState{}})
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, b.config.Port)
	assert.Equal(t, DefaultInterval, b.config.Interval)
	assert.Equal(t, netip.MustParseAddrPort("255.255.255.255:47777"), b.target)
}

func TestNewBroadcasterRejectsBadTarget(t *testing.T) {
	_, err := NewBroadcaster(BroadcasterConfig{Source: &hostState{}, Target: "not-an-ip"})
	assert.Error(t, err)
}

func TestBroadcasterIdleWhenNotHosting(t *testing.T) {
	b, opened := newTestBroadcaster(t, &hostState{}, nil)

	now := time.Now()
	for i := 0; i < 5; i++ {
		b.Tick(now.Add(time.Duration(i) * 2 * time.Second))
	}

	assert.Empty(t, *opened, "socket must not open until hosting")
}

func TestBroadcasterCadence(t *testing.T) {
	src := &hostState{s: lobbyA()}
	b, opened := newTestBroadcaster(t, src, nil)

	start := time.Now()
	b.Tick(start)
	require.Len(t, *opened, 1)
	conn := (*opened)[0]
	assert.Equal(t, 1, conn.count(), "first activation sends immediately")

	b.Tick(start.Add(500 * time.Millisecond))
	b.Tick(start.Add(1499 * time.Millisecond))
	assert.Equal(t, 1, conn.count())

	b.Tick(start.Add(1500 * time.Millisecond))
	assert.Equal(t, 2, conn.count())

	b.Tick(start.Add(3 * time.Second))
	assert.Equal(t, 3, conn.count())

	assert.Len(t, *opened, 1, "socket is reused between beacons")
}

func TestBroadcasterPayload(t *testing.T) {
	src := &hostState{s: HostSession{Hosting: true, Name: "Bean|Pit", PasswordRequired: true, Port: 7777, ClientCount: 3}}
	b, opened := newTestBroadcaster(t, src, nil)

	b.Tick(time.Now())

	conn := (*opened)[0]
	require.Len(t, conn.sent, 1)
	assert.Equal(t, "LOB|Bean/Pit|7777|1|3|0", conn.sent[0].payload, "max players is always reported as 0")
	assert.Equal(t, netip.MustParseAddrPort("255.255.255.255:47777"), conn.sent[0].dst)
}

func TestBroadcasterReflectsLiveState(t *testing.T) {
	src := &hostState{s: lobbyA()}
	b, opened := newTestBroadcaster(t, src, nil)

	start := time.Now()
	b.Tick(start)

	s := lobbyA()
	s.ClientCount = 4
	src.set(s)
	b.Tick(start.Add(DefaultInterval))

	conn := (*opened)[0]
	require.Len(t, conn.sent, 2)
	assert.Equal(t, "LOB|Lobby A|7770|0|2|0", conn.sent[0].payload)
	assert.Equal(t, "LOB|Lobby A|7770|0|4|0", conn.sent[1].payload)
}

func TestBroadcasterSendFailureKeepsTicking(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &hostState{s: lobbyA()}
	b, opened := newTestBroadcaster(t, src, zap.New(core))

	start := time.Now()
	b.Tick(start)
	conn := (*opened)[0]
	conn.fail = errors.New("network unreachable")

	b.Tick(start.Add(DefaultInterval))
	assert.Equal(t, 1, logs.FilterMessage("Beacon send failed").Len())

	// no faster retry after a failure
	b.Tick(start.Add(DefaultInterval + 100*time.Millisecond))
	assert.Equal(t, 1, logs.FilterMessage("Beacon send failed").Len())

	conn.fail = nil
	b.Tick(start.Add(2 * DefaultInterval))
	assert.Equal(t, 2, conn.count())
}

func TestBroadcasterOpenFailureRetriesNextInterval(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b, err := NewBroadcaster(BroadcasterConfig{Source: &hostState{s: lobbyA()}, Logger: zap.New(core)})
	require.NoError(t, err)

	attempts := 0
	conn := &fakeConn{}
	b.opener = func() (udpWriter, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("permission denied")
		}
		return conn, nil
	}

	start := time.Now()
	b.Tick(start)
	b.Tick(start.Add(100 * time.Millisecond))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, logs.FilterMessage("Failed to open beacon socket").Len())

	b.Tick(start.Add(DefaultInterval))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, conn.count())
}

func TestBroadcasterDeactivationClosesSocket(t *testing.T) {
	src := &hostState{s: lobbyA()}
	b, opened := newTestBroadcaster(t, src, nil)

	start := time.Now()
	b.Tick(start)
	first := (*opened)[0]

	src.set(HostSession{})
	b.Tick(start.Add(100 * time.Millisecond))
	assert.True(t, first.closed)

	src.set(lobbyA())
	b.Tick(start.Add(200 * time.Millisecond))
	require.Len(t, *opened, 2)
	assert.Equal(t, 1, (*opened)[1].count(), "re-activation sends immediately")
}

func TestBroadcasterStop(t *testing.T) {
	b, opened := newTestBroadcaster(t, &hostState{s: lobbyA()}, nil)

	require.NoError(t, b.Stop(), "stop before any socket is a no-op")

	b.Tick(time.Now())
	require.NoError(t, b.Stop())
	assert.True(t, (*opened)[0].closed)
	require.NoError(t, b.Stop())
}

func TestBroadcasterRunUsesClock(t *testing.T) {
	mock := clock.NewMock()
	b, err := NewBroadcaster(BroadcasterConfig{Source: &hostState{s: lobbyA()}, Clock: mock})
	require.NoError(t, err)

	conn := &fakeConn{}
	b.opener = func() (udpWriter, error) { return conn, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx, 100*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 20; i++ {
		mock.Add(100 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return conn.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed, "Run closes the socket on exit")
}
