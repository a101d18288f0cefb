// Package telemetry stores bounded attestation samples and derives each
// sample's integrity assessment at ingestion time.
package telemetry

import (
	"time"

	"github.com/fleetops/herald/internal/fault"
	"github.com/fleetops/herald/internal/model"
	"github.com/fleetops/herald/internal/store"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Registry resolves sidecar tokens to agents.
type Registry interface {
	ResolveToken(token string) (model.Agent, bool)
}

// Store ingests and serves telemetry samples.
type Store struct {
	samples  *store.Collection[model.TelemetrySample]
	policies *store.Collection[model.Policy]
	registry Registry
	now      func() time.Time
}

// NewStore creates the telemetry store. It reads the policies collection
// directly so scoring always sees the policy in force at ingestion time.
func NewStore(samples *store.Collection[model.TelemetrySample], policies *store.Collection[model.Policy], registry Registry) *Store {
	return &Store{samples: samples, policies: policies, registry: registry, now: time.Now}
}

// Ingest authenticates, scores, and persists a sample, returning it with
// the derived integrity fields filled in. The score is computed
// synchronously before persistence.
func (s *Store) Ingest(token string, sample model.TelemetrySample) (model.TelemetrySample, error) {
	agent, ok := s.registry.ResolveToken(token)
	if !ok || agent.AgentID != sample.AgentID {
		return model.TelemetrySample{}, fault.Unauthorized("token not valid for this agent")
	}

	if sample.ProbeSource == "" {
		sample.ProbeSource = model.ProbeSidecar
	}
	if !sample.ProbeSource.Valid() {
		return model.TelemetrySample{}, fault.Invalid("unknown probe_source %q", sample.ProbeSource)
	}
	if sample.TelemetryMode == "" {
		sample.TelemetryMode = model.ModeSidecarOnly
	}
	if !sample.TelemetryMode.Valid() {
		return model.TelemetrySample{}, fault.Invalid("unknown telemetry_mode %q", sample.TelemetryMode)
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now().UTC()
	}

	pol, ok := s.policyFor(sample.AgentID)
	if !ok {
		return model.TelemetrySample{}, fault.NotFound("agent %q", sample.AgentID)
	}

	score, status, reasons := Assess(pol.Integrity, sample)
	sample.IntegrityScore = score
	sample.IntegrityStatus = status
	sample.IntegrityReasons = reasons

	if err := s.samples.Append(sample); err != nil {
		return model.TelemetrySample{}, err
	}
	return sample, nil
}

// Filter selects samples for Query. Zero values match everything.
type Filter struct {
	AgentID string
	Since   *time.Time // strictly after
	Limit   int
}

// Query returns matching samples, most recent first.
func (s *Store) Query(f Filter) []model.TelemetrySample {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	all := s.samples.Snapshot()
	out := make([]model.TelemetrySample, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		t := all[i]
		if !matches(t, f) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Window returns matching samples in arrival order, keeping the most
// recent limit entries. Used for scorecard windows where order matters.
func (s *Store) Window(f Filter) []model.TelemetrySample {
	var out []model.TelemetrySample
	for _, t := range s.samples.Snapshot() {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Latest returns the most recent sample for an agent, if any.
func (s *Store) Latest(agentID string) (model.TelemetrySample, bool) {
	all := s.samples.Snapshot()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].AgentID == agentID {
			return all[i], true
		}
	}
	return model.TelemetrySample{}, false
}

// Scorecards builds per-metric scorecards over the matching window.
// Metrics with no measurements map to nil.
func (s *Store) Scorecards(f Filter) map[string]*Scorecard {
	window := s.Window(f)
	metrics := map[string][]float64{}
	collect := func(name string, v *float64) {
		if v != nil {
			metrics[name] = append(metrics[name], *v)
		}
	}
	for _, t := range window {
		collect("network_rtt_ms", t.NetworkRTTMs)
		collect("network_jitter_ms", t.NetworkJitterMs)
		collect("sensor_hid_rtt_ms", t.SensorHIDRTTMs)
		collect("sensor_dwell_ms", t.SensorDwellMs)
		collect("sensor_os_jitter_ms", t.SensorOSJitterMs)
	}
	out := map[string]*Scorecard{
		"network_rtt_ms":      BuildScorecard(metrics["network_rtt_ms"]),
		"network_jitter_ms":   BuildScorecard(metrics["network_jitter_ms"]),
		"sensor_hid_rtt_ms":   BuildScorecard(metrics["sensor_hid_rtt_ms"]),
		"sensor_dwell_ms":     BuildScorecard(metrics["sensor_dwell_ms"]),
		"sensor_os_jitter_ms": BuildScorecard(metrics["sensor_os_jitter_ms"]),
	}
	return out
}

func (s *Store) policyFor(agentID string) (model.Policy, bool) {
	for _, p := range s.policies.Snapshot() {
		if p.AgentID == agentID {
			return p, true
		}
	}
	return model.Policy{}, false
}

func matches(t model.TelemetrySample, f Filter) bool {
	if f.AgentID != "" && t.AgentID != f.AgentID {
		return false
	}
	if f.Since != nil && !t.Timestamp.After(*f.Since) {
		return false
	}
	return true
}
