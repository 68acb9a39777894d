// ABOUTME: UDP beacon receiver and the self-expiring registry of visible sessions
// ABOUTME: Receipt is asynchronous; the registry is owned by the maintenance pass
package discovery

import (
	"cmp"
	"context"
	"errors"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	// DefaultStaleAfter is how long an unrefreshed session stays visible
	DefaultStaleAfter = 4 * time.Second

	// DefaultQueueSize bounds descriptors waiting for the maintenance pass
	DefaultQueueSize = 256
)

// Sink accepts descriptors from any goroutine
type Sink interface {
	Offer(d SessionDescriptor) bool
}

// ListenerConfig configures a Listener
type ListenerConfig struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to receive beacons on; must match the broadcaster (default: 47777)
	Port int

	// StaleAfter evicts sessions not refreshed within this window (default: 4s)
	StaleAfter time.Duration

	// QueueSize bounds the hand-off queue (default: 256)
	QueueSize int

	// OnUpdate is called from the maintenance pass once per upsert
	OnUpdate func(SessionDescriptor)

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *Metrics
}

// Listener discovers sessions broadcasting on the local network.
//
// Datagrams are received and parsed on a background goroutine and handed to
// DrainAndMaintain through a bounded channel. DrainAndMaintain and Stop must
// run on one goroutine; Servers and Offer are safe from anywhere.
type Listener struct {
	config ListenerConfig
	log    *zap.Logger

	queue    chan SessionDescriptor
	registry map[string]SessionDescriptor
	snapshot atomic.Pointer[[]SessionDescriptor]

	mu   sync.Mutex // guards conn
	conn *net.UDPConn
	wg   sync.WaitGroup
}

// NewListener creates an inert listener; call Start to bind the port
func NewListener(config ListenerConfig) *Listener {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	l := &Listener{
		config:   config,
		log:      config.Logger.Named("discovery.listener"),
		queue:    make(chan SessionDescriptor, config.QueueSize),
		registry: make(map[string]SessionDescriptor),
	}
	l.publish()
	return l
}

// Start binds the discovery port and begins receiving. On failure the
// listener stays inert and the error is returned after being logged.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return nil
	}

	conn, err := listenShared(l.config.Host, l.config.Port)
	if err != nil {
		l.log.Warn("Discovery listener inert", zap.Error(err))
		return err
	}
	l.conn = conn

	l.log.Info("Listening for sessions", zap.Stringer("addr", conn.LocalAddr()))

	l.wg.Add(1)
	go l.receiveLoop(conn)
	return nil
}

// Addr returns the bound address, or nil when not started
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *Listener) receiveLoop(conn *net.UDPConn) {
	defer l.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("Discovery receive failed", zap.Error(err))
			l.config.Metrics.receiveFailed()
			continue
		}
		l.config.Metrics.received()

		desc, ok := ParseBeacon(buf[:n])
		if !ok {
			l.config.Metrics.discarded(reasonMalformed)
			continue
		}
		desc.Address = src.Addr().Unmap().String()
		desc.LastSeen = l.config.Clock.Now()
		l.Offer(desc)
	}
}

// Offer hands a descriptor to the next maintenance pass without blocking.
// It reports false when the queue is full and the descriptor was dropped.
func (l *Listener) Offer(d SessionDescriptor) bool {
	select {
	case l.queue <- d:
		return true
	default:
		l.log.Debug("Hand-off queue full, dropping descriptor", zap.String("key", d.Key()))
		l.config.Metrics.discarded(reasonQueueFull)
		return false
	}
}

// DrainAndMaintain applies every queued descriptor, evicts stale sessions and
// publishes a fresh snapshot for Servers.
func (l *Listener) DrainAndMaintain(now time.Time) {
drain:
	for {
		select {
		case d := <-l.queue:
			l.registry[d.Key()] = d
			if l.config.OnUpdate != nil {
				l.config.OnUpdate(d)
			}
		default:
			break drain
		}
	}

	evicted := 0
	for key, d := range l.registry {
		if now.Sub(d.LastSeen) > l.config.StaleAfter {
			delete(l.registry, key)
			evicted++
			l.log.Debug("Session expired", zap.String("key", key), zap.String("name", d.Name))
		}
	}
	l.config.Metrics.evicted(evicted)

	l.publish()
}

// Servers returns the sessions visible after the last maintenance pass, sorted by key
func (l *Listener) Servers() []SessionDescriptor {
	return slices.Clone(*l.snapshot.Load())
}

// Run performs a maintenance pass on every tick until ctx is done, then stops
func (l *Listener) Run(ctx context.Context, every time.Duration) error {
	ticker := l.config.Clock.Ticker(every)
	defer ticker.Stop()
	defer l.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.DrainAndMaintain(now)
		}
	}
}

// Stop closes the socket, waits for the receive goroutine and clears the registry
func (l *Listener) Stop() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
		l.wg.Wait()
	}

discard:
	for {
		select {
		case <-l.queue:
		default:
			break discard
		}
	}

	clear(l.registry)
	l.publish()
	return err
}

func (l *Listener) publish() {
	servers := make([]SessionDescriptor, 0, len(l.registry))
	for _, d := range l.registry {
		servers = append(servers, d)
	}
	slices.SortFunc(servers, func(a, b SessionDescriptor) int {
		return cmp.Compare(a.Key(), b.Key())
	})
	l.snapshot.Store(&servers)
	l.config.Metrics.visible(len(servers))
}
