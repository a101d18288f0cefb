// Package fleet computes read-only views over the registry, policy,
// and telemetry stores. It owns no state and issues no writes.
package fleet

import (
	"sort"
	"sync"
	"time"

	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/policy"
	"github.com/fleetops/herald/internal/registry"
	"github.com/fleetops/herald/internal/telemetry"
)

// DefaultHeartbeatTimeout is the liveness window: an agent with no
// heartbeat inside it is inactive.
const DefaultHeartbeatTimeout = 90 * time.Second

const (
	defaultTimelineLimit = 200
	maxTimelineLimit     = 500
)

// Aggregator joins the stores into dashboard-facing summaries.
type Aggregator struct {
	registry  *registry.Registry
	policies  *policy.Store
	telemetry *telemetry.Store

	mu               sync.RWMutex
	heartbeatTimeout time.Duration

	now func() time.Time
}

// New creates an aggregator. A zero heartbeatTimeout falls back to the
// default window.
func New(reg *registry.Registry, pol *policy.Store, tel *telemetry.Store, heartbeatTimeout time.Duration) *Aggregator {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	return &Aggregator{
		registry:         reg,
		policies:         pol,
		telemetry:        tel,
		heartbeatTimeout: heartbeatTimeout,
		now:              time.Now,
	}
}

// SetHeartbeatTimeout swaps the liveness window. Called by config hot reload.
func (a *Aggregator) SetHeartbeatTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.heartbeatTimeout = d
	a.mu.Unlock()
}

func (a *Aggregator) timeout() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.heartbeatTimeout
}

// AgentStatus is one row of the fleet status view.
type AgentStatus struct {
	AgentID          string               `json:"agent_id"`
	DisplayName      string               `json:"display_name"`
	Status           model.LivenessState  `json:"status"`
	Tier             model.Tier           `json:"tier"`
	RegisteredAt     time.Time            `json:"registered_at"`
	LastHeartbeatAt  *time.Time           `json:"last_heartbeat_at,omitempty"`
	LastEventAt      *time.Time           `json:"last_event_at,omitempty"`
	LastTelemetryAt  *time.Time           `json:"last_telemetry_at,omitempty"`
	IntegrityStatus  model.IntegrityStatus `json:"integrity_status"`
	IntegrityScore   int                  `json:"integrity_score"`
	IntegrityReasons []string             `json:"integrity_reasons"`
	ObservedProvider string               `json:"observed_provider,omitempty"`
	ObservedModel    string               `json:"observed_model,omitempty"`
	ObservedRegion   string               `json:"observed_region,omitempty"`
	LastProbeSource  model.ProbeSource    `json:"last_probe_source,omitempty"`
	LastTelemetryMode model.TelemetryMode `json:"last_telemetry_mode,omitempty"`
	LastNetworkRTTMs *float64             `json:"last_network_rtt_ms,omitempty"`
	LastNetworkJitterMs *float64          `json:"last_network_jitter_ms,omitempty"`
}

// Status returns one row per agent in registration order.
func (a *Aggregator) Status() []AgentStatus {
	timeout := a.timeout()
	now := a.now().UTC()

	agents := a.registry.List()
	out := make([]AgentStatus, 0, len(agents))
	for _, agent := range agents {
		row := AgentStatus{
			AgentID:          agent.AgentID,
			DisplayName:      agent.DisplayName,
			Tier:             model.TierL0,
			RegisteredAt:     agent.CreatedAt,
			LastHeartbeatAt:  agent.LastHeartbeatAt,
			LastEventAt:      agent.LastEventAt,
			IntegrityStatus:  model.IntegrityUnknown,
			IntegrityScore:   50,
			IntegrityReasons: []string{},
		}
		if pol, err := a.policies.Get(agent.AgentID); err == nil {
			row.Tier = pol.Tier
		}
		if latest, ok := a.telemetry.Latest(agent.AgentID); ok {
			ts := latest.Timestamp
			row.LastTelemetryAt = &ts
			row.IntegrityStatus = latest.IntegrityStatus
			row.IntegrityScore = latest.IntegrityScore
			row.IntegrityReasons = latest.IntegrityReasons
			row.ObservedProvider = latest.ObservedProvider
			row.ObservedModel = latest.ObservedModel
			row.ObservedRegion = latest.ObservedRegion
			row.LastProbeSource = latest.ProbeSource
			row.LastTelemetryMode = latest.TelemetryMode
			row.LastNetworkRTTMs = latest.NetworkRTTMs
			row.LastNetworkJitterMs = latest.NetworkJitterMs
		}
		row.Status = liveness(agent, row.IntegrityStatus, now, timeout)
		out = append(out, row)
	}
	return out
}

// Health is the aggregate fleet health count view.
type Health struct {
	Total             int `json:"total"`
	Active            int `json:"active"`
	Inactive          int `json:"inactive"`
	Degraded          int `json:"degraded"`
	IntegrityNormal   int `json:"integrity_normal"`
	IntegrityElevated int `json:"integrity_elevated"`
	IntegrityDegraded int `json:"integrity_degraded"`
	IntegrityUnknown  int `json:"integrity_unknown"`
}

// Health buckets agents by liveness and integrity status.
func (a *Aggregator) Health() Health {
	var h Health
	for _, row := range a.Status() {
		h.Total++
		switch row.Status {
		case model.StateActive:
			h.Active++
		case model.StateDegraded:
			h.Degraded++
		default:
			h.Inactive++
		}
		switch row.IntegrityStatus {
		case model.IntegrityNormal:
			h.IntegrityNormal++
		case model.IntegrityElevated:
			h.IntegrityElevated++
		case model.IntegrityDegraded:
			h.IntegrityDegraded++
		default:
			h.IntegrityUnknown++
		}
	}
	return h
}

// TimelineEntry is one telemetry sample re-assessed against the agent's
// current policy, so the timeline reflects policy edits made after
// ingestion.
type TimelineEntry struct {
	model.TelemetrySample
}

// AgentBucket counts one agent's samples inside a timeline window.
type AgentBucket struct {
	AgentID             string `json:"agent_id"`
	DisplayName         string `json:"display_name"`
	Samples             int    `json:"samples"`
	HighLatencyMeasured int    `json:"high_latency_measured"`
}

// TimelineSummary aggregates a telemetry window.
type TimelineSummary struct {
	WindowStart          *time.Time                       `json:"window_start"`
	WindowEnd            *time.Time                       `json:"window_end"`
	HighLatencyMeasured  int                              `json:"high_latency_measured"`
	RemoteSessionSamples int                              `json:"remote_session_samples"`
	Metrics              map[string]*telemetry.Scorecard  `json:"metrics"`
	Agents               []AgentBucket                    `json:"agents"`
}

// Timeline is the public telemetry view consumed by dashboards.
type Timeline struct {
	AgentID   string          `json:"agent_id,omitempty"`
	Count     int             `json:"count"`
	Telemetry []TimelineEntry `json:"telemetry"`
	Summary   TimelineSummary `json:"summary"`
}

// Timeline returns recent samples plus scorecards. Samples are re-scored
// against each agent's current policy; samples from agents no longer
// registered score as unknown.
func (a *Aggregator) Timeline(agentID string, since *time.Time, limit int) Timeline {
	if limit <= 0 {
		limit = defaultTimelineLimit
	}
	if limit > maxTimelineLimit {
		limit = maxTimelineLimit
	}
	window := a.telemetry.Window(telemetry.Filter{AgentID: agentID, Since: since, Limit: limit})

	buckets := map[string]*AgentBucket{}
	summary := TimelineSummary{
		Metrics: a.telemetry.Scorecards(telemetry.Filter{AgentID: agentID, Since: since, Limit: limit}),
		Agents:  []AgentBucket{},
	}
	entries := make([]TimelineEntry, 0, len(window))

	for _, sample := range window {
		displayName := sample.AgentID
		if pol, err := a.policies.Get(sample.AgentID); err == nil {
			score, status, reasons := telemetry.Assess(pol.Integrity, sample)
			sample.IntegrityScore = score
			sample.IntegrityStatus = status
			sample.IntegrityReasons = reasons
			if agent, err := a.registry.Get(sample.AgentID); err == nil {
				displayName = agent.DisplayName
			}
		} else {
			sample.IntegrityScore = 50
			sample.IntegrityStatus = model.IntegrityUnknown
			sample.IntegrityReasons = []string{"agent_not_registered"}
		}

		if sample.IntegrityStatus == model.IntegrityElevated || sample.IntegrityStatus == model.IntegrityDegraded {
			summary.HighLatencyMeasured++
		}
		if sample.IsRemoteSession {
			summary.RemoteSessionSamples++
		}

		b, ok := buckets[sample.AgentID]
		if !ok {
			b = &AgentBucket{AgentID: sample.AgentID, DisplayName: displayName}
			buckets[sample.AgentID] = b
		}
		b.Samples++
		if sample.IntegrityStatus == model.IntegrityElevated || sample.IntegrityStatus == model.IntegrityDegraded {
			b.HighLatencyMeasured++
		}

		entries = append(entries, TimelineEntry{TelemetrySample: sample})
	}

	if len(window) > 0 {
		start := window[0].Timestamp
		end := window[len(window)-1].Timestamp
		summary.WindowStart = &start
		summary.WindowEnd = &end
	}

	for _, b := range buckets {
		summary.Agents = append(summary.Agents, *b)
	}
	sort.Slice(summary.Agents, func(i, j int) bool {
		if summary.Agents[i].Samples != summary.Agents[j].Samples {
			return summary.Agents[i].Samples > summary.Agents[j].Samples
		}
		return summary.Agents[i].AgentID < summary.Agents[j].AgentID
	})

	// Most recent first for display.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return Timeline{
		AgentID:   agentID,
		Count:     len(entries),
		Telemetry: entries,
		Summary:   summary,
	}
}

func liveness(agent model.Agent, integrity model.IntegrityStatus, now time.Time, timeout time.Duration) model.LivenessState {
	if agent.LastHeartbeatAt == nil || now.Sub(*agent.LastHeartbeatAt) > timeout {
		return model.StateInactive
	}
	if integrity == model.IntegrityElevated || integrity == model.IntegrityDegraded {
		return model.StateDegraded
	}
	return model.StateActive
}
