// Package registry owns agent identity, token issuance, and the
// registration lifecycle. An agent and its policy are created together
// atomically; neither is ever observable without the other.
package registry

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/fleetops/herald/internal/fault"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/store"
)

// Registration is the request to register a new agent.
type Registration struct {
	AgentID        string            `json:"agent_id"`
	DisplayName    string            `json:"display_name"`
	Tier           model.Tier        `json:"tier"`
	AllowedActions []string          `json:"allowed_actions"`
	DeniedActions  []string          `json:"denied_actions"`
	Channels       []string          `json:"channels"`
	RateLimits     *model.RateLimits `json:"rate_limits"`
}

// Registry maps agent IDs to identity records and issues sidecar tokens.
type Registry struct {
	agents   *store.Collection[model.Agent]
	policies *store.Collection[model.Policy]

	// mu spans both collections so agent+policy creation and removal
	// are atomic with respect to each other.
	mu  sync.Mutex
	now func() time.Time
}

// New creates a Registry over the agents and policies collections.
func New(agents *store.Collection[model.Agent], policies *store.Collection[model.Policy]) *Registry {
	return &Registry{
		agents:   agents,
		policies: policies,
		now:      time.Now,
	}
}

// Register creates the agent and its version-1 policy. Registering an
// existing agent_id is a no-op that returns the existing token with
// existing=true.
func (r *Registry) Register(reg Registration) (token string, existing bool, err error) {
	if reg.AgentID == "" {
		return "", false, fault.Invalid("agent_id is required")
	}
	tier := reg.Tier
	if tier == "" {
		tier = model.TierL0
	}
	if !tier.Valid() {
		return "", false, fault.Invalid("unknown tier %q", reg.Tier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.find(reg.AgentID); ok {
		return a.Token, true, nil
	}

	token = NewToken()
	displayName := reg.DisplayName
	if displayName == "" {
		displayName = reg.AgentID
	}
	rateLimits := model.DefaultRateLimits()
	if reg.RateLimits != nil {
		rateLimits = *reg.RateLimits
	}

	pol := model.Policy{
		AgentID:        reg.AgentID,
		Tier:           tier,
		Version:        1,
		AllowedActions: orEmpty(reg.AllowedActions),
		DeniedActions:  orEmpty(reg.DeniedActions),
		RateLimits:     rateLimits,
		Channels:       orEmpty(reg.Channels),
		Integrity:      model.DefaultIntegrityPolicy(),
	}
	agent := model.Agent{
		AgentID:     reg.AgentID,
		DisplayName: displayName,
		Token:       token,
		CreatedAt:   r.now().UTC(),
	}

	// Policy first: an agent without a policy must never be observable.
	// A policy row is invisible until its agent exists, so the reverse
	// order would leak a half-created agent.
	if err := r.policies.Append(pol); err != nil {
		return "", false, err
	}
	if err := r.agents.Append(agent); err != nil {
		r.removePolicy(reg.AgentID)
		return "", false, err
	}
	return token, false, nil
}

// Get returns the agent record for the given ID.
func (r *Registry) Get(agentID string) (model.Agent, error) {
	for _, a := range r.agents.Snapshot() {
		if a.AgentID == agentID {
			return a, nil
		}
	}
	return model.Agent{}, fault.NotFound("agent %q", agentID)
}

// List returns all agents in registration order.
func (r *Registry) List() []model.Agent {
	return r.agents.Snapshot()
}

// Deregister removes the agent and its policy. Any token issued for the
// agent stops resolving from that point on.
func (r *Registry) Deregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	err := r.agents.Update(func(records []model.Agent) ([]model.Agent, error) {
		out := records[:0]
		for _, a := range records {
			if a.AgentID == agentID {
				found = true
				continue
			}
			out = append(out, a)
		}
		if !found {
			return nil, fault.NotFound("agent %q", agentID)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	r.removePolicy(agentID)
	return nil
}

// TouchHeartbeat records heartbeat arrival without touching policy state.
func (r *Registry) TouchHeartbeat(agentID string, ts time.Time) error {
	return r.touch(agentID, func(a *model.Agent) {
		t := ts.UTC()
		a.LastHeartbeatAt = &t
	})
}

// TouchEvent records event arrival. Any event also counts as a liveness
// signal, so the heartbeat timestamp advances too.
func (r *Registry) TouchEvent(agentID string, ts time.Time) error {
	return r.touch(agentID, func(a *model.Agent) {
		t := ts.UTC()
		a.LastEventAt = &t
		a.LastHeartbeatAt = &t
	})
}

// ResolveToken returns the agent a bearer token authenticates, if any.
// A token is scoped to exactly one agent.
func (r *Registry) ResolveToken(token string) (model.Agent, bool) {
	if token == "" {
		return model.Agent{}, false
	}
	for _, a := range r.agents.Snapshot() {
		if subtle.ConstantTimeCompare([]byte(a.Token), []byte(token)) == 1 {
			return a, true
		}
	}
	return model.Agent{}, false
}

func (r *Registry) find(agentID string) (model.Agent, bool) {
	for _, a := range r.agents.Snapshot() {
		if a.AgentID == agentID {
			return a, true
		}
	}
	return model.Agent{}, false
}

func (r *Registry) touch(agentID string, fn func(*model.Agent)) error {
	return r.agents.Update(func(records []model.Agent) ([]model.Agent, error) {
		for i := range records {
			if records[i].AgentID == agentID {
				fn(&records[i])
				return records, nil
			}
		}
		return nil, fault.NotFound("agent %q", agentID)
	})
}

// removePolicy is best-effort: callers have already decided the agent is
// gone, and an orphaned policy row is unreachable through the API.
func (r *Registry) removePolicy(agentID string) {
	r.policies.Update(func(records []model.Policy) ([]model.Policy, error) {
		out := records[:0]
		for _, p := range records {
			if p.AgentID != agentID {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
