// Package server exposes the control plane over HTTP. Management
// operations require the admin key; ingestion and policy read use
// per-agent bearer tokens.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fleetops/herald/internal/events"
	"github.com/fleetops/herald/internal/fleet"
	"github.com/fleetops/herald/internal/policy"
	"github.com/fleetops/herald/internal/registry"
	"github.com/fleetops/herald/internal/telemetry"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr string

	// AdminKey guards management endpoints. Empty means dev mode: no
	// admin auth at all. Suitable only for local experiments.
	AdminKey string

	// HeartbeatTimeout is the liveness window applied by the fleet views.
	HeartbeatTimeout time.Duration

	Logger *slog.Logger
}

// Server wires the stores behind the REST surface.
type Server struct {
	registry  *registry.Registry
	policies  *policy.Store
	events    *events.Log
	telemetry *telemetry.Store
	fleet     *fleet.Aggregator

	mu       sync.RWMutex
	adminKey string

	log  *slog.Logger
	http *http.Server
}

// New assembles the server. The fleet aggregator is owned by the caller
// so hot reload can adjust its heartbeat window directly.
func New(cfg Config, reg *registry.Registry, pol *policy.Store, log *events.Log, tel *telemetry.Store, agg *fleet.Aggregator) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry:  reg,
		policies:  pol,
		events:    log,
		telemetry: tel,
		fleet:     agg,
		adminKey:  cfg.AdminKey,
		log:       logger,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/v1/agents", s.requireAdmin(s.handleRegister))
	mux.HandleFunc("GET /api/v1/agents", s.requireAdmin(s.handleListAgents))
	mux.HandleFunc("GET /api/v1/agents/{id}", s.requireAdmin(s.handleGetAgent))
	mux.HandleFunc("DELETE /api/v1/agents/{id}", s.requireAdmin(s.handleDeregister))

	mux.HandleFunc("GET /api/v1/agents/{id}/policy", s.handleGetPolicy)
	mux.HandleFunc("PUT /api/v1/agents/{id}/policy", s.requireAdmin(s.handleUpdatePolicy))

	mux.HandleFunc("GET /api/v1/policy/presets", s.handleListPresets)
	mux.HandleFunc("POST /api/v1/agents/{id}/policy/preset", s.requireAdmin(s.handleApplyPreset))
	mux.HandleFunc("POST /api/v1/fleet/policy/preset", s.requireAdmin(s.handleApplyPresetFleet))

	mux.HandleFunc("POST /api/v1/events", s.handleIngestEvent)
	mux.HandleFunc("GET /api/v1/events", s.handleQueryEvents)

	mux.HandleFunc("POST /api/v1/telemetry", s.handleIngestTelemetry)
	mux.HandleFunc("GET /api/v1/telemetry", s.requireAdmin(s.handleQueryTelemetry))

	mux.HandleFunc("GET /api/v1/fleet/status", s.handleFleetStatus)
	mux.HandleFunc("GET /api/v1/fleet/health", s.handleFleetHealth)
	mux.HandleFunc("GET /api/v1/fleet/telemetry", s.handleFleetTelemetry)

	return s.withRequestLog(mux)
}

// Serve starts the HTTP server. Blocks until Shutdown or a listen error.
func (s *Server) Serve() error {
	s.log.Info("listening", "addr", s.http.Addr, "dev_mode", s.devMode())
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// SetAdminKey swaps the admin key. Called by the config hot-reloader.
func (s *Server) SetAdminKey(key string) {
	s.mu.Lock()
	s.adminKey = key
	s.mu.Unlock()
}

// SetHeartbeatTimeout forwards the liveness window to the fleet views.
func (s *Server) SetHeartbeatTimeout(d time.Duration) {
	s.fleet.SetHeartbeatTimeout(d)
}

func (s *Server) currentAdminKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adminKey
}

func (s *Server) devMode() bool {
	return s.currentAdminKey() == ""
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
