package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fleetops/herald/internal/events"
	"github.com/fleetops/herald/internal/fault"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/telemetry"
)

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeJSON(r, &ev); err != nil {
		s.fail(w, err)
		return
	}
	if _, ok := s.requireAgent(w, r, ev.AgentID); !ok {
		return
	}

	stored, heartbeat, err := s.events.Ingest(bearerToken(r), ev)
	if err != nil {
		s.fail(w, err)
		return
	}
	if heartbeat {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":        true,
			"agent_id":  ev.AgentID,
			"heartbeat": true,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":    true,
		"event": stored,
	})
}

func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	f := events.Filter{
		AgentID: r.URL.Query().Get("agent_id"),
		Action:  r.URL.Query().Get("action"),
	}
	since, limit, err := sinceAndLimit(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	f.Since = since
	f.Limit = limit

	out := s.events.Query(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"count":  len(out),
		"events": out,
	})
}

func (s *Server) handleIngestTelemetry(w http.ResponseWriter, r *http.Request) {
	var sample model.TelemetrySample
	if err := decodeJSON(r, &sample); err != nil {
		s.fail(w, err)
		return
	}
	if _, ok := s.requireAgent(w, r, sample.AgentID); !ok {
		return
	}

	stored, err := s.telemetry.Ingest(bearerToken(r), sample)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":                true,
		"agent_id":          stored.AgentID,
		"integrity_status":  stored.IntegrityStatus,
		"integrity_score":   stored.IntegrityScore,
		"integrity_reasons": stored.IntegrityReasons,
	})
}

func (s *Server) handleQueryTelemetry(w http.ResponseWriter, r *http.Request) {
	f := telemetry.Filter{AgentID: r.URL.Query().Get("agent_id")}
	since, limit, err := sinceAndLimit(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	f.Since = since
	f.Limit = limit

	out := s.telemetry.Query(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"count":     len(out),
		"telemetry": out,
	})
}

// sinceAndLimit parses the shared query filters. since is RFC 3339.
func sinceAndLimit(r *http.Request) (*time.Time, int, error) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, 0, fault.Invalid("bad since value %q", raw)
		}
		since = &t
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, 0, fault.Invalid("bad limit value %q", raw)
		}
		limit = n
	}
	return since, limit, nil
}
