// ABOUTME: Fan-out of session updates to feed subscribers
// ABOUTME: A single goroutine owns the subscriber set; slow subscribers are dropped
package feed

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

const inboxSize = 64

// ServerLister provides the current session snapshot
type ServerLister interface {
	Servers() []discovery.SessionDescriptor
}

type Msg interface{ isHubMsg() }

// Join registers a subscriber. The current snapshot is queued on Outbox at once.
type Join struct {
	ID     string
	Outbox chan []byte
}

type Leave struct{ ID string }

// Publish announces a refreshed session to every subscriber
type Publish struct{ Server discovery.SessionDescriptor }

type Shutdown struct{}

type countSubscribers struct{ Reply chan int }

func (Join) isHubMsg()             {}
func (Leave) isHubMsg()            {}
func (Publish) isHubMsg()          {}
func (Shutdown) isHubMsg()         {}
func (countSubscribers) isHubMsg() {}

// Hub owns the subscriber set. Outboxes are closed by the hub when a
// subscriber leaves, falls behind, or the hub shuts down.
type Hub struct {
	inbox   chan Msg
	clients map[string]chan []byte
	servers ServerLister
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, servers ServerLister, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan Msg, inboxSize),
		clients: make(map[string]chan []byte),
		servers: servers,
		log:     logger.Named("feed.hub"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Done is closed once the hub has shut down
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) send(m Msg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Subscribe joins with a fresh id. It returns false once the hub is shut down.
func (h *Hub) Subscribe(outbox chan []byte) (string, bool) {
	id := uuid.NewString()
	return id, h.send(Join{ID: id, Outbox: outbox})
}

func (h *Hub) Unsubscribe(id string) {
	h.send(Leave{ID: id})
}

// Publish has the signature of discovery.ListenerConfig.OnUpdate
func (h *Hub) Publish(d discovery.SessionDescriptor) {
	h.send(Publish{Server: d})
}

func (h *Hub) Shutdown() {
	h.send(Shutdown{})
}

// Subscribers returns the number of joined subscribers, or 0 after shutdown
func (h *Hub) Subscribers() int {
	reply := make(chan int, 1)
	if !h.send(countSubscribers{Reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.ctx.Done():
		return 0
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.clients[msg.ID] = msg.Outbox
				h.deliver(msg.ID, msg.Outbox, h.snapshot())

			case Leave:
				if out, ok := h.clients[msg.ID]; ok {
					close(out)
					delete(h.clients, msg.ID)
				}

			case Publish:
				payload, err := json.Marshal(UpdatedMessage{Type: TypeUpdated, Server: viewOf(msg.Server)})
				if err != nil {
					h.log.Error("Failed to encode update", zap.Error(err))
					break
				}
				for id, out := range h.clients {
					h.deliver(id, out, payload)
				}

			case countSubscribers:
				msg.Reply <- len(h.clients)

			case Shutdown:
				h.closeAll()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) snapshot() []byte {
	var servers []discovery.SessionDescriptor
	if h.servers != nil {
		servers = h.servers.Servers()
	}
	payload, err := json.Marshal(SnapshotMessage{Type: TypeSnapshot, Servers: viewsOf(servers)})
	if err != nil {
		h.log.Error("Failed to encode snapshot", zap.Error(err))
		return nil
	}
	return payload
}

// deliver never blocks; a full outbox drops the subscriber
func (h *Hub) deliver(id string, out chan []byte, payload []byte) {
	if payload == nil {
		return
	}
	select {
	case out <- payload:
	default:
		h.log.Info("Dropping slow subscriber", zap.String("subscriber", id))
		close(out)
		delete(h.clients, id)
	}
}

func (h *Hub) closeAll() {
	for id, out := range h.clients {
		close(out)
		delete(h.clients, id)
	}
}
