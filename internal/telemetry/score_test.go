package telemetry

import (
	"reflect"
	"strings"
	"testing"

	"github.com/fleetops/herald/internal/model"
)

func f64(v float64) *float64 { return &v }

func standardIntegrity() model.IntegrityPolicy {
	return model.IntegrityPolicy{
		TelemetryMode:      model.ModeSidecarOnly,
		ExpectedProviders:  []string{},
		ExpectedModels:     []string{},
		ExpectedRegions:    []string{},
		MaxNetworkRTTMs:    f64(120),
		MaxNetworkJitterMs: f64(30),
	}
}

func TestAssessNoSignal(t *testing.T) {
	score, status, reasons := Assess(standardIntegrity(), model.TelemetrySample{AgentID: "a"})
	if score != 50 {
		t.Errorf("score = %d, want neutral 50", score)
	}
	if status != model.IntegrityUnknown {
		t.Errorf("status = %q, want unknown", status)
	}
	if len(reasons) != 1 || reasons[0] != "no_telemetry_baseline" {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestAssessNormal(t *testing.T) {
	sample := model.TelemetrySample{
		AgentID:         "a",
		NetworkRTTMs:    f64(10),
		NetworkJitterMs: f64(2),
	}
	score, status, reasons := Assess(standardIntegrity(), sample)
	if score != 100 {
		t.Errorf("score = %d, want 100", score)
	}
	if status != model.IntegrityNormal {
		t.Errorf("status = %q, want normal", status)
	}
	if len(reasons) != 0 {
		t.Errorf("unexpected reasons: %v", reasons)
	}
}

func TestAssessHighRTTDegrades(t *testing.T) {
	sample := model.TelemetrySample{
		AgentID:         "a",
		NetworkRTTMs:    f64(300),
		NetworkJitterMs: f64(90),
	}
	score, status, reasons := Assess(standardIntegrity(), sample)
	if status != model.IntegrityDegraded {
		t.Errorf("status = %q, want degraded (score %d)", status, score)
	}
	foundRTT := false
	for _, r := range reasons {
		if strings.HasPrefix(r, "network_rtt_far_above_baseline:") {
			foundRTT = true
		}
	}
	if !foundRTT {
		t.Errorf("missing rtt reason in %v", reasons)
	}
}

func TestAssessRemoteSession(t *testing.T) {
	cfg := standardIntegrity()
	sample := model.TelemetrySample{
		AgentID:         "a",
		NetworkRTTMs:    f64(10),
		IsRemoteSession: true,
	}
	score, status, reasons := Assess(cfg, sample)
	if score != 55 {
		t.Errorf("score = %d, want 55", score)
	}
	if status != model.IntegrityElevated {
		t.Errorf("status = %q, want elevated", status)
	}
	if len(reasons) != 1 || reasons[0] != "remote_session_detected" {
		t.Errorf("reasons = %v", reasons)
	}

	cfg.AllowRemoteSession = true
	score, status, _ = Assess(cfg, sample)
	if score != 100 || status != model.IntegrityNormal {
		t.Errorf("allowed remote session penalized: score=%d status=%q", score, status)
	}
}

func TestAssessClaimChecks(t *testing.T) {
	cfg := standardIntegrity()
	cfg.ExpectedProviders = []string{"anthropic"}
	cfg.ExpectedModels = []string{"claude-sonnet"}
	cfg.ExpectedRegions = []string{"us-east-1"}

	// All claims match.
	sample := model.TelemetrySample{
		AgentID:          "a",
		NetworkRTTMs:     f64(10),
		ObservedProvider: "anthropic",
		ObservedModel:    "claude-sonnet",
		ObservedRegion:   "us-east-1",
	}
	if score, _, _ := Assess(cfg, sample); score != 100 {
		t.Errorf("matching claims scored %d", score)
	}

	// Provider mismatch is the big penalty; missing region the small one.
	sample.ObservedProvider = "other"
	sample.ObservedRegion = ""
	score, _, reasons := Assess(cfg, sample)
	if score != 100-35-5 {
		t.Errorf("score = %d, want 60", score)
	}
	wantMismatch := "provider_mismatch:other not in [anthropic]"
	found := false
	for _, r := range reasons {
		if r == wantMismatch {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons %v missing %q", reasons, wantMismatch)
	}

	// Empty expected list disables the check entirely.
	cfg.ExpectedProviders = nil
	cfg.ExpectedRegions = nil
	score, _, _ = Assess(cfg, sample)
	if score != 100 {
		t.Errorf("disabled checks still penalized: %d", score)
	}
}

func TestAssessSensorAttestation(t *testing.T) {
	cfg := standardIntegrity()
	cfg.TelemetryMode = model.ModeSidecarPlusSensor

	// Sidecar-only sample against a sensor-required policy.
	sample := model.TelemetrySample{
		AgentID:       "a",
		NetworkRTTMs:  f64(10),
		TelemetryMode: model.ModeSidecarOnly,
	}
	score, _, reasons := Assess(cfg, sample)
	if score != 85 {
		t.Errorf("score = %d, want 85", score)
	}
	if len(reasons) != 1 || reasons[0] != "sensor_attestation_missing" {
		t.Errorf("reasons = %v", reasons)
	}

	// Sensor-mode sample missing some sensor fields.
	sample.TelemetryMode = model.ModeSidecarPlusSensor
	sample.SensorHIDRTTMs = f64(5)
	score, _, reasons = Assess(cfg, sample)
	if score != 85 {
		t.Errorf("score = %d, want 85", score)
	}
	if len(reasons) != 1 || reasons[0] != "sensor_attestation_incomplete" {
		t.Errorf("reasons = %v", reasons)
	}

	// Complete sensor attestation passes clean.
	sample.SensorDwellMs = f64(40)
	sample.SensorOSJitterMs = f64(1)
	if score, _, _ := Assess(cfg, sample); score != 100 {
		t.Errorf("complete attestation scored %d", score)
	}
}

func TestAssessScoreFloorsAtZero(t *testing.T) {
	cfg := standardIntegrity()
	cfg.ExpectedProviders = []string{"anthropic"}
	cfg.ExpectedModels = []string{"claude-sonnet"}
	cfg.ExpectedRegions = []string{"us-east-1"}
	cfg.SensorRequired = true

	sample := model.TelemetrySample{
		AgentID:          "a",
		NetworkRTTMs:     f64(900),
		NetworkJitterMs:  f64(300),
		IsRemoteSession:  true,
		ObservedProvider: "x",
		ObservedModel:    "y",
		ObservedRegion:   "z",
	}
	score, status, reasons := Assess(cfg, sample)
	if score != 0 {
		t.Errorf("score = %d, want 0", score)
	}
	if status != model.IntegrityDegraded {
		t.Errorf("status = %q, want degraded", status)
	}
	if len(reasons) != 6 {
		t.Errorf("reasons not capped at 6: %d", len(reasons))
	}
}

func TestAssessDeterminism(t *testing.T) {
	cfg := standardIntegrity()
	cfg.ExpectedProviders = []string{"anthropic"}
	sample := model.TelemetrySample{
		AgentID:          "a",
		NetworkRTTMs:     f64(150),
		ObservedProvider: "other",
	}
	s1, st1, r1 := Assess(cfg, sample)
	for i := 0; i < 10; i++ {
		s2, st2, r2 := Assess(cfg, sample)
		if s1 != s2 || st1 != st2 || !reflect.DeepEqual(r1, r2) {
			t.Fatalf("non-deterministic: (%d,%s,%v) vs (%d,%s,%v)", s1, st1, r1, s2, st2, r2)
		}
	}
}
