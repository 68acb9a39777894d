// ABOUTME: HTTP routes for the server-browser feed
// ABOUTME: Health, JSON snapshot, WebSocket stream and Prometheus metrics
package feed

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LeagueOfBeans/lob-lan/internal/version"
)

// Routes builds the feed router. A nil gatherer leaves /metrics unmounted.
func Routes(h *Hub, servers ServerLister, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/servers", ServersHandler(servers))
	r.Get("/ws", WSHandler(h, logger))
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// StatusRoutes serves only /healthz and /metrics, for processes without a registry
func StatusRoutes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"product": version.Product,
		"version": version.Version,
	})
}

// ServersHandler serves the visible sessions, sorted as the listener publishes them
func ServersHandler(servers ServerLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, viewsOf(servers.Servers()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
