// ABOUTME: Tests for the server-browser feed
// ABOUTME: Hub fan-out, HTTP routes and the WebSocket stream
package feed

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeagueOfBeans/lob-lan/internal/version"
	"github.com/LeagueOfBeans/lob-lan/pkg/discovery"
)

type staticServers struct {
	mu   sync.Mutex
	list []discovery.SessionDescriptor
}

func (s *staticServers) Servers() []discovery.SessionDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]discovery.SessionDescriptor(nil), s.list...)
}

func lobby(name, addr string) discovery.SessionDescriptor {
	return discovery.SessionDescriptor{
		Name:        name,
		Address:     addr,
		Port:        7770,
		PlayerCount: 2,
		PingMs:      discovery.PingUnknown,
		LastSeen:    time.Unix(1700000000, 0).UTC(),
	}
}

func receive(t *testing.T, outbox <-chan []byte) []byte {
	t.Helper()
	select {
	case payload, ok := <-outbox:
		require.True(t, ok, "outbox closed unexpectedly")
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hub message")
		return nil
	}
}

func TestHubSubscribeSendsSnapshot(t *testing.T) {
	servers := &staticServers{list: []discovery.SessionDescriptor{lobby("Lobby A", "10.0.0.5")}}
	h := NewHub(context.Background(), servers, nil)
	defer h.Shutdown()

	outbox := make(chan []byte, 4)
	id, ok := h.Subscribe(outbox)
	require.True(t, ok)
	assert.NotEmpty(t, id)

	var msg SnapshotMessage
	require.NoError(t, json.Unmarshal(receive(t, outbox), &msg))
	assert.Equal(t, TypeSnapshot, msg.Type)
	require.Len(t, msg.Servers, 1)
	assert.Equal(t, "Lobby A", msg.Servers[0].Name)
	assert.Equal(t, "10.0.0.5:7770", msg.Servers[0].Key)
	assert.Equal(t, 1, h.Subscribers())
}

func TestHubEmptySnapshotIsArray(t *testing.T) {
	h := NewHub(context.Background(), &staticServers{}, nil)
	defer h.Shutdown()

	outbox := make(chan []byte, 4)
	_, ok := h.Subscribe(outbox)
	require.True(t, ok)

	assert.JSONEq(t, `{"type":"snapshot","servers":[]}`, string(receive(t, outbox)))
}

func TestHubPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub(context.Background(), &staticServers{}, nil)
	defer h.Shutdown()

	a := make(chan []byte, 4)
	b := make(chan []byte, 4)
	h.Subscribe(a)
	h.Subscribe(b)
	receive(t, a)
	receive(t, b)

	h.Publish(lobby("Lobby B", "10.0.0.6"))

	for _, out := range []chan []byte{a, b} {
		var msg UpdatedMessage
		require.NoError(t, json.Unmarshal(receive(t, out), &msg))
		assert.Equal(t, TypeUpdated, msg.Type)
		assert.Equal(t, "Lobby B", msg.Server.Name)
		assert.Equal(t, 2, msg.Server.Players)
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(context.Background(), &staticServers{}, nil)
	defer h.Shutdown()

	slow := make(chan []byte, 1)
	fast := make(chan []byte, 4)
	h.Subscribe(slow)
	h.Subscribe(fast)
	receive(t, fast)

	// slow still holds its snapshot, so the update does not fit
	h.Publish(lobby("Lobby A", "10.0.0.5"))
	receive(t, fast)

	assert.Equal(t, 1, h.Subscribers())

	receive(t, slow)
	_, ok := <-slow
	assert.False(t, ok, "dropped subscriber outbox is closed")
}

func TestHubUnsubscribeClosesOutbox(t *testing.T) {
	h := NewHub(context.Background(), &staticServers{}, nil)
	defer h.Shutdown()

	outbox := make(chan []byte, 4)
	id, _ := h.Subscribe(outbox)
	receive(t, outbox)

	h.Unsubscribe(id)
	assert.Equal(t, 0, h.Subscribers())

	_, ok := <-outbox
	assert.False(t, ok)

	// unknown ids are ignored
	h.Unsubscribe(id)
	assert.Equal(t, 0, h.Subscribers())
}

func TestHubShutdown(t *testing.T) {
	h := NewHub(context.Background(), &staticServers{}, nil)

	outbox := make(chan []byte, 4)
	h.Subscribe(outbox)
	receive(t, outbox)

	h.Shutdown()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}

	_, ok := <-outbox
	assert.False(t, ok)

	_, ok = h.Subscribe(make(chan []byte, 1))
	assert.False(t, ok, "subscribe after shutdown fails")
	assert.Equal(t, 0, h.Subscribers())
	h.Publish(lobby("late", "10.0.0.9"))
}

func TestHealthz(t *testing.T) {
	routes := Routes(NewHub(context.Background(), &staticServers{}, nil), &staticServers{}, nil, nil)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, version.Version, body["version"])
}

func TestServersRoute(t *testing.T) {
	servers := &staticServers{list: []discovery.SessionDescriptor{
		lobby("Lobby A", "10.0.0.5"),
		lobby("Lobby B", "10.0.0.6"),
	}}
	routes := Routes(NewHub(context.Background(), servers, nil), servers, nil, nil)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/servers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []ServerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "Lobby A", views[0].Name)
	assert.Equal(t, "10.0.0.6", views[1].Address)
	assert.Equal(t, discovery.PingUnknown, views[1].PingMs)
}

func TestServersRouteEmpty(t *testing.T) {
	routes := Routes(NewHub(context.Background(), &staticServers{}, nil), &staticServers{}, nil, nil)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/servers", nil))
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	discovery.NewMetrics(reg)

	routes := Routes(NewHub(context.Background(), &staticServers{}, nil), &staticServers{}, reg, nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lob_discovery_sessions")
}

func TestMetricsRouteUnmounted(t *testing.T) {
	routes := Routes(NewHub(context.Background(), &staticServers{}, nil), &staticServers{}, nil, nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	discovery.NewMetrics(reg)
	routes := StatusRoutes(reg)

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/metrics": http.StatusOK,
		"/servers": http.StatusNotFound,
		"/ws":      http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)

	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestWebSocketStream(t *testing.T) {
	servers := &staticServers{list: []discovery.SessionDescriptor{lobby("Lobby A", "10.0.0.5")}}
	h := NewHub(context.Background(), servers, nil)
	defer h.Shutdown()

	srv := httptest.NewServer(Routes(h, servers, nil, nil))
	defer srv.Close()

	conn := dialFeed(t, srv)

	frame := readFrame(t, conn)
	assert.JSONEq(t, `"snapshot"`, string(frame["type"]))

	h.Publish(lobby("Lobby B", "10.0.0.6"))

	frame = readFrame(t, conn)
	assert.JSONEq(t, `"updated"`, string(frame["type"]))

	var view ServerView
	require.NoError(t, json.Unmarshal(frame["server"], &view))
	assert.Equal(t, "Lobby B", view.Name)
}

func TestWebSocketDisconnectUnsubscribes(t *testing.T) {
	h := NewHub(context.Background(), &staticServers{}, nil)
	defer h.Shutdown()

	srv := httptest.NewServer(Routes(h, &staticServers{}, nil, nil))
	defer srv.Close()

	conn := dialFeed(t, srv)
	readFrame(t, conn)
	assert.Equal(t, 1, h.Subscribers())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return h.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	h := NewHub(context.Background(), &staticServers{}, nil)

	srv := httptest.NewServer(Routes(h, &staticServers{}, nil, nil))
	defer srv.Close()

	conn := dialFeed(t, srv)
	readFrame(t, conn)

	h.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestServeListenerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		done <- ServeListener(ctx, ln, http.HandlerFunc(Healthz), nil)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), version.Product)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeListener did not return")
	}
}
