package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdobrica/OrthoBot/common/version"
)

// HealthServer is the HTTP server of the service. It answers /health,
// /status and /metrics itself and hands every other path to the API
// handler mounted with Handle.
type HealthServer struct {
	addr      string
	sessions  sessionCounter
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// sessionCounter is the minimal interface the status endpoint needs from the
// voice service.
type sessionCounter interface {
	ActiveSessions(ctx context.Context) (int, error)
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status              string    `json:"status"`
	Version             string    `json:"version"`
	Commit              string    `json:"commit"`
	BuildTime           string    `json:"build_time"`
	StartedAt           time.Time `json:"started_at"`
	UptimeSecs          float64   `json:"uptime_seconds"`
	ActiveVoiceSessions int       `json:"active_voice_sessions"`
}

// NewHealthServer creates and configures the HTTP server (does not start it).
// sessions may be nil; gatherer may be nil to omit /metrics.
func NewHealthServer(addr string, sessions sessionCounter, gatherer prometheus.Gatherer) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		addr:      addr,
		sessions:  sessions,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("GET /health", hs.handleHealth)
	mux.HandleFunc("GET /status", hs.handleStatus)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return hs
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Handle registers a handler for the given pattern. Call this before Start.
func (h *HealthServer) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// Start begins listening in the background. It returns once the listener is
// established so the caller knows the port is open.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", h.addr, err)
	}

	// WriteTimeout leaves room for the LLM deadline of a chat turn.
	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	active := 0
	if h.sessions != nil {
		n, err := h.sessions.ActiveSessions(r.Context())
		if err != nil {
			slog.Warn("status: count voice sessions", "err", err)
		} else {
			active = n
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:              "ok",
		Version:             version.Version,
		Commit:              version.GitCommit,
		BuildTime:           version.BuildTime,
		StartedAt:           h.startedAt,
		UptimeSecs:          time.Since(h.startedAt).Seconds(),
		ActiveVoiceSessions: active,
	})
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
