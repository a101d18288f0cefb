package server

import (
	"net/http"
	"time"

	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/policy"
	"github.com/fleetops/herald/internal/registry"
)

// agentView is the admin-facing agent record. Tokens are returned once
// at registration and never echoed afterwards.
type agentView struct {
	AgentID         string     `json:"agent_id"`
	DisplayName     string     `json:"display_name"`
	CreatedAt       time.Time  `json:"created_at"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	LastEventAt     *time.Time `json:"last_event_at,omitempty"`
}

func toAgentView(a model.Agent) agentView {
	return agentView{
		AgentID:         a.AgentID,
		DisplayName:     a.DisplayName,
		CreatedAt:       a.CreatedAt,
		LastHeartbeatAt: a.LastHeartbeatAt,
		LastEventAt:     a.LastEventAt,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg registry.Registration
	if err := decodeJSON(r, &reg); err != nil {
		s.fail(w, err)
		return
	}

	token, existing, err := s.registry.Register(reg)
	if err != nil {
		s.fail(w, err)
		return
	}
	pol, err := s.policies.Get(reg.AgentID)
	if err != nil {
		s.fail(w, err)
		return
	}

	status := http.StatusCreated
	if existing {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"ok":       true,
		"existing": existing,
		"agent_id": reg.AgentID,
		"token":    token,
		"policy":   pol,
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.registry.List()
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, toAgentView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"count":  len(views),
		"agents": views,
	})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"agent": toAgentView(agent),
	})
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Deregister(id); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"agent_id": id,
		"removed":  true,
	})
}

// handleGetPolicy is the sidecar poll path: bearer auth, and the token
// must belong to the agent whose policy is requested.
func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.requireAgent(w, r, id); !ok {
		return
	}
	pol, err := s.policies.Get(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"policy": pol,
	})
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var upd policy.Update
	if err := decodeJSON(r, &upd); err != nil {
		s.fail(w, err)
		return
	}
	pol, err := s.policies.Apply(id, upd)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"policy": pol,
	})
}
