package server

import (
	"net/http"

	"github.com/fleetops/herald/internal/policy"
)

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"default_preset": policy.DefaultPreset,
		"presets":        policy.Presets(),
	})
}

type presetRequest struct {
	Preset            string   `json:"preset"`
	PinObservedClaims bool     `json:"pin_observed_claims"`
	AgentIDs          []string `json:"agent_ids"`
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req presetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	pol, err := s.policies.ApplyPreset(id, req.Preset, req.PinObservedClaims)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                  true,
		"agent_id":            id,
		"preset":              req.Preset,
		"pin_observed_claims": req.PinObservedClaims,
		"policy":              pol,
	})
}

func (s *Server) handleApplyPresetFleet(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	result, err := s.policies.ApplyPresetFleet(req.AgentIDs, req.Preset, req.PinObservedClaims)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                  true,
		"preset":              result.Preset,
		"pin_observed_claims": req.PinObservedClaims,
		"applied":             len(result.Applied),
		"agents":              result.Applied,
		"missing":             result.Missing,
	})
}
