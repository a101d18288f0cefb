package model

import "time"

// Tier is the coarse autonomy label carried in an agent's policy.
// Enforcement of its real-world consequences happens outside Herald.
type Tier string

const (
	TierL0 Tier = "L0"
	TierL1 Tier = "L1"
	TierL2 Tier = "L2"
	TierL3 Tier = "L3"
)

// Valid reports whether the tier is one of L0..L3.
func (t Tier) Valid() bool {
	switch t {
	case TierL0, TierL1, TierL2, TierL3:
		return true
	}
	return false
}

// EventResult is the outcome of an agent action.
type EventResult string

const (
	ResultSuccess EventResult = "success"
	ResultFailure EventResult = "failure"
	ResultPending EventResult = "pending"
	ResultDenied  EventResult = "denied"
)

func (r EventResult) Valid() bool {
	switch r {
	case ResultSuccess, ResultFailure, ResultPending, ResultDenied:
		return true
	}
	return false
}

// IntegrityStatus classifies an agent's trust signal.
type IntegrityStatus string

const (
	IntegrityNormal   IntegrityStatus = "normal"
	IntegrityElevated IntegrityStatus = "elevated"
	IntegrityDegraded IntegrityStatus = "degraded"
	IntegrityUnknown  IntegrityStatus = "unknown"
)

// ProbeSource is the origin of a telemetry sample.
type ProbeSource string

const (
	ProbeSidecar ProbeSource = "sidecar"
	ProbeSensor  ProbeSource = "sensor"
	ProbeMixed   ProbeSource = "mixed"
	ProbeManual  ProbeSource = "manual"
	ProbeHook    ProbeSource = "hook"
)

func (p ProbeSource) Valid() bool {
	switch p {
	case ProbeSidecar, ProbeSensor, ProbeMixed, ProbeManual, ProbeHook:
		return true
	}
	return false
}

// TelemetryMode distinguishes sidecar-only probes from sidecar+sensor attestation.
type TelemetryMode string

const (
	ModeSidecarOnly       TelemetryMode = "sidecar_only"
	ModeSidecarPlusSensor TelemetryMode = "sidecar_plus_sensor"
)

func (m TelemetryMode) Valid() bool {
	return m == ModeSidecarOnly || m == ModeSidecarPlusSensor
}

// LivenessState buckets an agent by heartbeat freshness and integrity.
type LivenessState string

const (
	StateActive   LivenessState = "active"
	StateInactive LivenessState = "inactive"
	StateDegraded LivenessState = "degraded"
)

// Agent is the identity record for one registered agent.
// The token is an opaque secret issued once at registration; re-registration
// returns the same token.
type Agent struct {
	AgentID         string     `json:"agent_id"`
	DisplayName     string     `json:"display_name"`
	Token           string     `json:"token"`
	CreatedAt       time.Time  `json:"created_at"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	LastEventAt     *time.Time `json:"last_event_at,omitempty"`
}

// RateLimits maps named limits to per-minute caps.
type RateLimits struct {
	EventsPerMinute           int `json:"events_per_minute" yaml:"events_per_minute"`
	ExternalAPICallsPerMinute int `json:"external_api_calls_per_minute" yaml:"external_api_calls_per_minute"`
}

// DefaultRateLimits returns the baseline caps applied at registration.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		EventsPerMinute:           60,
		ExternalAPICallsPerMinute: 10,
	}
}

// IntegrityPolicy holds the thresholds used for integrity/attestation checks.
// Nil thresholds disable the corresponding check.
type IntegrityPolicy struct {
	TelemetryMode      TelemetryMode `json:"telemetry_mode" yaml:"telemetry_mode"`
	ExpectedProviders  []string      `json:"expected_providers" yaml:"expected_providers"`
	ExpectedModels     []string      `json:"expected_models" yaml:"expected_models"`
	ExpectedRegions    []string      `json:"expected_regions" yaml:"expected_regions"`
	MaxNetworkRTTMs    *float64      `json:"max_network_rtt_ms" yaml:"max_network_rtt_ms"`
	MaxNetworkJitterMs *float64      `json:"max_network_jitter_ms" yaml:"max_network_jitter_ms"`
	AllowRemoteSession bool          `json:"allow_remote_session" yaml:"allow_remote_session"`
	SensorRequired     bool          `json:"sensor_required" yaml:"sensor_required"`
}

// DefaultIntegrityPolicy returns the permissive baseline a new agent starts with.
func DefaultIntegrityPolicy() IntegrityPolicy {
	return IntegrityPolicy{
		TelemetryMode:     ModeSidecarOnly,
		ExpectedProviders: []string{},
		ExpectedModels:    []string{},
		ExpectedRegions:   []string{},
	}
}

// Policy is the governance contract owned per agent, distributed to sidecars.
// Version increments by exactly one on every committed mutation.
type Policy struct {
	AgentID        string          `json:"agent_id"`
	Tier           Tier            `json:"tier"`
	Version        int             `json:"version"`
	AllowedActions []string        `json:"allowed_actions"`
	DeniedActions  []string        `json:"denied_actions"`
	RateLimits     RateLimits      `json:"rate_limits"`
	Channels       []string        `json:"channels"`
	Integrity      IntegrityPolicy `json:"integrity"`
}

// Event is one immutable audit record of an agent action.
type Event struct {
	EventID    string      `json:"event_id"`
	AgentID    string      `json:"agent_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Action     string      `json:"action"`
	Target     string      `json:"target"`
	Result     EventResult `json:"result"`
	Detail     string      `json:"detail,omitempty"`
	DurationMs *int        `json:"duration_ms,omitempty"`
	Tier       string      `json:"tier,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
}

// ActionHeartbeat is the special action value that only refreshes liveness
// and never produces an Event record.
const ActionHeartbeat = "heartbeat"

// TelemetrySample is one immutable measurement plus the integrity assessment
// derived from it at ingestion time. The derived fields are a pure function
// of the raw sample and the agent's policy integrity block.
type TelemetrySample struct {
	AgentID          string        `json:"agent_id"`
	Timestamp        time.Time     `json:"timestamp"`
	ProbeSource      ProbeSource   `json:"probe_source"`
	TelemetryMode    TelemetryMode `json:"telemetry_mode"`
	NetworkRTTMs     *float64      `json:"network_rtt_ms"`
	NetworkJitterMs  *float64      `json:"network_jitter_ms"`
	IsRemoteSession  bool          `json:"is_remote_session"`
	ObservedProvider string        `json:"observed_provider,omitempty"`
	ObservedModel    string        `json:"observed_model,omitempty"`
	ObservedRegion   string        `json:"observed_region,omitempty"`
	SensorHIDRTTMs   *float64      `json:"sensor_hid_rtt_ms,omitempty"`
	SensorDwellMs    *float64      `json:"sensor_dwell_ms,omitempty"`
	SensorOSJitterMs *float64      `json:"sensor_os_jitter_ms,omitempty"`
	Detail           string        `json:"detail,omitempty"`

	// Derived at ingestion, never mutated afterwards.
	IntegrityScore   int             `json:"integrity_score"`
	IntegrityStatus  IntegrityStatus `json:"integrity_status"`
	IntegrityReasons []string        `json:"integrity_reasons"`
}
