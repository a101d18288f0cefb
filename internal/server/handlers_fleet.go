package server

import "net/http"

func (s *Server) handleFleetStatus(w http.ResponseWriter, r *http.Request) {
	rows := s.fleet.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"count":  len(rows),
		"agents": rows,
	})
}

func (s *Server) handleFleetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"health": s.fleet.Health(),
	})
}

// handleFleetTelemetry is the public dashboard timeline. Raw telemetry
// query stays admin-only; this aggregate view intentionally does not.
func (s *Server) handleFleetTelemetry(w http.ResponseWriter, r *http.Request) {
	since, limit, err := sinceAndLimit(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	timeline := s.fleet.Timeline(r.URL.Query().Get("agent_id"), since, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"agent_id":  timeline.AgentID,
		"count":     timeline.Count,
		"telemetry": timeline.Telemetry,
		"summary":   timeline.Summary,
	})
}
