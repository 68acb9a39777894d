// ABOUTME: Periodic UDP beacon sender for a hosted session
// ABOUTME: Fire-and-forget; failed sends are logged and retried on the next cadence
package discovery

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	// DefaultInterval is the time between beacons
	DefaultInterval = 1500 * time.Millisecond

	// DefaultTarget is the limited broadcast address
	DefaultTarget = "255.255.255.255"
)

// ErrNoSource is returned when a broadcaster has no session state to announce
var ErrNoSource = errors.New("discovery: session source is required")

// HostSession is the live state of the locally hosted session
type HostSession struct {
	Hosting          bool
	Name             string
	PasswordRequired bool
	Port             uint16
	ClientCount      int
}

// SessionSource reports the current hosted session
type SessionSource interface {
	Session() HostSession
}

// SessionSourceFunc adapts a function to SessionSource
type SessionSourceFunc func() HostSession

// Session implements SessionSource
func (f SessionSourceFunc) Session() HostSession { return f() }

// BroadcasterConfig configures a Broadcaster
type BroadcasterConfig struct {
	// Port beacons are sent to (default: 47777)
	Port int

	// Interval between beacons (default: 1.5s)
	Interval time.Duration

	// Target address (default: 255.255.255.255)
	Target string

	// Directed additionally sends to each local network's broadcast address
	Directed bool

	// Source provides the hosted session (required)
	Source SessionSource

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *Metrics
}

// Broadcaster announces a hosted session. Tick, Run and Stop must be called
// from a single goroutine.
type Broadcaster struct {
	config   BroadcasterConfig
	target   netip.AddrPort
	log      *zap.Logger
	conn     udpWriter
	lastSent time.Time
	opener   func() (udpWriter, error)
}

// udpWriter is the subset of *net.UDPConn the broadcaster writes through
type udpWriter interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	Close() error
}

// NewBroadcaster creates a broadcaster; the socket is opened on first activation
func NewBroadcaster(config BroadcasterConfig) (*Broadcaster, error) {
	if config.Source == nil {
		return nil, ErrNoSource
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Target == "" {
		config.Target = DefaultTarget
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	addr, err := netip.ParseAddr(config.Target)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		config: config,
		target: netip.AddrPortFrom(addr, uint16(config.Port)),
		log:    config.Logger.Named("discovery.broadcaster"),
		opener: func() (udpWriter, error) { return listenBroadcast() },
	}, nil
}

// Tick sends a beacon when hosting and the interval has elapsed since the last one
func (b *Broadcaster) Tick(now time.Time) {
	session := b.config.Source.Session()
	if !session.Hosting {
		if b.conn != nil {
			b.log.Info("Session no longer hosted, stopping beacons")
			b.closeConn()
		}
		b.lastSent = time.Time{}
		return
	}

	if !b.lastSent.IsZero() && now.Sub(b.lastSent) < b.config.Interval {
		return
	}
	b.lastSent = now

	if b.conn == nil {
		conn, err := b.opener()
		if err != nil {
			b.log.Warn("Failed to open beacon socket", zap.Error(err))
			b.config.Metrics.sendFailed()
			return
		}
		b.conn = conn
		b.log.Info("Broadcasting session",
			zap.String("name", session.Name),
			zap.Uint16("port", session.Port),
			zap.Stringer("target", b.target))
	}

	payload := EncodeBeacon(SessionDescriptor{
		Name:        session.Name,
		Port:        session.Port,
		HasPassword: session.PasswordRequired,
		PlayerCount: session.ClientCount,
		MaxPlayers:  0, // capacity is not modeled by the session source
	})

	for _, dst := range b.targets() {
		if _, err := b.conn.WriteToUDPAddrPort(payload, dst); err != nil {
			b.log.Warn("Beacon send failed", zap.Stringer("target", dst), zap.Error(err))
			b.config.Metrics.sendFailed()
			continue
		}
		b.config.Metrics.beaconSent()
	}
}

// Run ticks on the configured clock until ctx is done, then closes the socket
func (b *Broadcaster) Run(ctx context.Context, every time.Duration) error {
	ticker := b.config.Clock.Ticker(every)
	defer ticker.Stop()
	defer b.Stop()

	b.Tick(b.config.Clock.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			b.Tick(now)
		}
	}
}

// Stop closes the beacon socket
func (b *Broadcaster) Stop() error {
	return b.closeConn()
}

func (b *Broadcaster) closeConn() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.lastSent = time.Time{}
	return err
}

func (b *Broadcaster) targets() []netip.AddrPort {
	out := []netip.AddrPort{b.target}
	if !b.config.Directed {
		return out
	}

	addrs, err := directedBroadcasts()
	if err != nil {
		b.log.Debug("Failed to list interfaces", zap.Error(err))
		return out
	}
	for _, addr := range addrs {
		dst := netip.AddrPortFrom(addr, uint16(b.config.Port))
		if dst != b.target {
			out = append(out, dst)
		}
	}
	return out
}
