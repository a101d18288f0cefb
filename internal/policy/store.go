// Package policy owns the versioned governance contract per agent and the
// built-in integrity preset catalog. Every committed mutation increments
// the policy version by exactly one; the increment happens inside the
// collection's critical section so concurrent updates never skip or
// duplicate a version.
package policy

import (
	"errors"
	"slices"

	"github.com/fleetops/herald/internal/fault"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/store"
)

// TelemetrySource reports the most recent telemetry sample for an agent.
// Used by preset application to pin observed claims.
type TelemetrySource interface {
	Latest(agentID string) (model.TelemetrySample, bool)
}

// Update is a partial policy mutation. Nil fields are left unchanged.
type Update struct {
	Tier           *model.Tier            `json:"tier"`
	AllowedActions *[]string              `json:"allowed_actions"`
	DeniedActions  *[]string              `json:"denied_actions"`
	Channels       *[]string              `json:"channels"`
	RateLimits     *model.RateLimits      `json:"rate_limits"`
	Integrity      *model.IntegrityPolicy `json:"integrity"`
}

// FleetPresetResult reports per-agent outcomes of a fleet-wide preset apply.
type FleetPresetResult struct {
	Preset  string        `json:"preset"`
	Applied []AgentResult `json:"agents"`
	Missing []string      `json:"missing"`
}

// AgentResult is one agent's outcome in a fleet preset apply.
type AgentResult struct {
	AgentID       string `json:"agent_id"`
	PolicyVersion int    `json:"policy_version"`
}

// Store serves and mutates agent policies.
type Store struct {
	policies  *store.Collection[model.Policy]
	telemetry TelemetrySource // nil disables pinning
}

// NewStore creates a policy store over the shared policies collection.
func NewStore(policies *store.Collection[model.Policy], telemetry TelemetrySource) *Store {
	return &Store{policies: policies, telemetry: telemetry}
}

// Get returns the current policy for an agent.
func (s *Store) Get(agentID string) (model.Policy, error) {
	for _, p := range s.policies.Snapshot() {
		if p.AgentID == agentID {
			return p, nil
		}
	}
	return model.Policy{}, fault.NotFound("agent %q", agentID)
}

// Apply commits a partial update. The version increments by exactly one
// regardless of how many fields changed.
func (s *Store) Apply(agentID string, upd Update) (model.Policy, error) {
	if upd.Tier != nil && !upd.Tier.Valid() {
		return model.Policy{}, fault.Invalid("unknown tier %q", *upd.Tier)
	}
	if upd.Integrity != nil && upd.Integrity.TelemetryMode != "" && !upd.Integrity.TelemetryMode.Valid() {
		return model.Policy{}, fault.Invalid("unknown telemetry_mode %q", upd.Integrity.TelemetryMode)
	}

	var out model.Policy
	err := s.policies.Update(func(records []model.Policy) ([]model.Policy, error) {
		i := indexOf(records, agentID)
		if i < 0 {
			return nil, fault.NotFound("agent %q", agentID)
		}
		p := records[i]
		if upd.Tier != nil {
			p.Tier = *upd.Tier
		}
		if upd.AllowedActions != nil {
			p.AllowedActions = slices.Clone(*upd.AllowedActions)
		}
		if upd.DeniedActions != nil {
			p.DeniedActions = slices.Clone(*upd.DeniedActions)
		}
		if upd.Channels != nil {
			p.Channels = slices.Clone(*upd.Channels)
		}
		if upd.RateLimits != nil {
			p.RateLimits = *upd.RateLimits
		}
		if upd.Integrity != nil {
			p.Integrity = normalizeIntegrity(*upd.Integrity)
		}
		p.Version++
		records[i] = p
		out = p
		return records, nil
	})
	return out, err
}

// ApplyPreset overwrites the agent's integrity block with the named
// preset's thresholds. Expected-claim lists are carried over unless
// pinObservedClaims is set, in which case each claim observed in the
// agent's most recent telemetry sample becomes the new expected value.
// Pinning is a no-op for claims with no observation.
func (s *Store) ApplyPreset(agentID, name string, pinObservedClaims bool) (model.Policy, error) {
	preset, ok := FindPreset(name)
	if !ok {
		return model.Policy{}, fault.Invalid("unknown policy preset %q", name)
	}

	var latest model.TelemetrySample
	var hasLatest bool
	if pinObservedClaims && s.telemetry != nil {
		latest, hasLatest = s.telemetry.Latest(agentID)
	}

	var out model.Policy
	err := s.policies.Update(func(records []model.Policy) ([]model.Policy, error) {
		i := indexOf(records, agentID)
		if i < 0 {
			return nil, fault.NotFound("agent %q", agentID)
		}
		p := records[i]
		prev := p.Integrity
		next := preset.Integrity
		next.ExpectedProviders = slices.Clone(prev.ExpectedProviders)
		next.ExpectedModels = slices.Clone(prev.ExpectedModels)
		next.ExpectedRegions = slices.Clone(prev.ExpectedRegions)
		if pinObservedClaims && hasLatest {
			if latest.ObservedProvider != "" {
				next.ExpectedProviders = []string{latest.ObservedProvider}
			}
			if latest.ObservedModel != "" {
				next.ExpectedModels = []string{latest.ObservedModel}
			}
			if latest.ObservedRegion != "" {
				next.ExpectedRegions = []string{latest.ObservedRegion}
			}
		}
		p.Integrity = next
		p.Version++
		records[i] = p
		out = p
		return records, nil
	})
	return out, err
}

// ApplyPresetFleet applies one preset to the given agents, or to every
// agent when agentIDs is empty. An unknown agent id is reported in
// Missing without aborting updates already applied to valid ids.
func (s *Store) ApplyPresetFleet(agentIDs []string, name string, pinObservedClaims bool) (FleetPresetResult, error) {
	preset, ok := FindPreset(name)
	if !ok {
		return FleetPresetResult{}, fault.Invalid("unknown policy preset %q", name)
	}

	targets := agentIDs
	if len(targets) == 0 {
		for _, p := range s.policies.Snapshot() {
			targets = append(targets, p.AgentID)
		}
	}

	result := FleetPresetResult{
		Preset:  preset.Name,
		Applied: []AgentResult{},
		Missing: []string{},
	}
	for _, id := range targets {
		p, err := s.ApplyPreset(id, preset.Name, pinObservedClaims)
		if err != nil {
			if !errors.Is(err, fault.ErrNotFound) {
				return result, err
			}
			result.Missing = append(result.Missing, id)
			continue
		}
		result.Applied = append(result.Applied, AgentResult{
			AgentID:       id,
			PolicyVersion: p.Version,
		})
	}
	return result, nil
}

func indexOf(records []model.Policy, agentID string) int {
	for i := range records {
		if records[i].AgentID == agentID {
			return i
		}
	}
	return -1
}

func normalizeIntegrity(in model.IntegrityPolicy) model.IntegrityPolicy {
	if in.TelemetryMode == "" {
		in.TelemetryMode = model.ModeSidecarOnly
	}
	if in.ExpectedProviders == nil {
		in.ExpectedProviders = []string{}
	}
	if in.ExpectedModels == nil {
		in.ExpectedModels = []string{}
	}
	if in.ExpectedRegions == nil {
		in.ExpectedRegions = []string{}
	}
	return in
}
