package telemetry

import (
	"fmt"

	"github.com/fleetops/herald/internal/model"
)

// Scoring constants. The 100-point scale and the status cutoffs are fixed;
// the penalty magnitudes are tunable.
const (
	// baselineScore is the neutral score reported when a sample carries
	// no evaluable signal at all.
	baselineScore = 50

	statusNormalMin   = 80
	statusElevatedMin = 55

	maxReasons = 6

	// A remote session directly contradicts the physical-proximity
	// assumption behind latency-based attestation, so it is the
	// strongest single penalty.
	remoteSessionPenalty = 45

	providerMismatchPenalty = 35
	modelMismatchPenalty    = 35
	regionMismatchPenalty   = 20
	providerMissingPenalty  = 10
	modelMissingPenalty     = 10
	regionMissingPenalty    = 5

	rttBasePenalty    = 20
	rttMaxPenalty     = 35
	jitterBasePenalty = 15
	jitterMaxPenalty  = 25

	sensorMissingPenalty = 15
)

// Assess scores a telemetry sample against an integrity policy. It is a
// pure function: the same sample and policy always produce the same
// score, status, and reason list.
func Assess(cfg model.IntegrityPolicy, t model.TelemetrySample) (int, model.IntegrityStatus, []string) {
	if !hasSignal(t) {
		return baselineScore, model.IntegrityUnknown, []string{"no_telemetry_baseline"}
	}

	score := 100
	var reasons []string

	if t.IsRemoteSession && !cfg.AllowRemoteSession {
		reasons = append(reasons, "remote_session_detected")
		score -= remoteSessionPenalty
	}

	score -= claimPenalty(cfg.ExpectedProviders, t.ObservedProvider, "provider",
		providerMismatchPenalty, providerMissingPenalty, &reasons)
	score -= claimPenalty(cfg.ExpectedModels, t.ObservedModel, "model",
		modelMismatchPenalty, modelMissingPenalty, &reasons)
	score -= claimPenalty(cfg.ExpectedRegions, t.ObservedRegion, "region",
		regionMismatchPenalty, regionMissingPenalty, &reasons)

	if cfg.MaxNetworkRTTMs != nil && t.NetworkRTTMs != nil && *t.NetworkRTTMs > *cfg.MaxNetworkRTTMs {
		score -= overLimitPenalty(*t.NetworkRTTMs, *cfg.MaxNetworkRTTMs, rttBasePenalty, rttMaxPenalty)
		reasons = append(reasons, limitReason("network_rtt", *t.NetworkRTTMs, *cfg.MaxNetworkRTTMs))
	}
	if cfg.MaxNetworkJitterMs != nil && t.NetworkJitterMs != nil && *t.NetworkJitterMs > *cfg.MaxNetworkJitterMs {
		score -= overLimitPenalty(*t.NetworkJitterMs, *cfg.MaxNetworkJitterMs, jitterBasePenalty, jitterMaxPenalty)
		reasons = append(reasons, limitReason("network_jitter", *t.NetworkJitterMs, *cfg.MaxNetworkJitterMs))
	}

	needSensor := cfg.SensorRequired || cfg.TelemetryMode == model.ModeSidecarPlusSensor
	switch {
	case t.TelemetryMode == model.ModeSidecarPlusSensor && !hasAllSensorFields(t):
		reasons = append(reasons, "sensor_attestation_incomplete")
		score -= sensorMissingPenalty
	case needSensor && t.TelemetryMode != model.ModeSidecarPlusSensor:
		reasons = append(reasons, "sensor_attestation_missing")
		score -= sensorMissingPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	var status model.IntegrityStatus
	switch {
	case score >= statusNormalMin:
		status = model.IntegrityNormal
	case score >= statusElevatedMin:
		status = model.IntegrityElevated
	default:
		status = model.IntegrityDegraded
	}

	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	return score, status, reasons
}

// claimPenalty checks an observed claim against an expected set. An empty
// expected set disables the check; an expected set with a missing
// observation costs less than an outright mismatch.
func claimPenalty(expected []string, observed, field string, mismatch, missing int, reasons *[]string) int {
	if len(expected) == 0 {
		return 0
	}
	if observed == "" {
		*reasons = append(*reasons, field+"_missing")
		return missing
	}
	for _, want := range expected {
		if observed == want {
			return 0
		}
	}
	*reasons = append(*reasons, fmt.Sprintf("%s_mismatch:%s not in %v", field, observed, expected))
	return mismatch
}

// overLimitPenalty grows linearly with how far the measurement exceeds
// the limit, capped at max.
func overLimitPenalty(measured, limit float64, base, max int) int {
	ratio := measured / limit
	p := base + int(float64(base)*(ratio-1))
	if p < base {
		p = base
	}
	if p > max {
		p = max
	}
	return p
}

func limitReason(metric string, measured, limit float64) string {
	qualifier := "above"
	if measured/limit >= 2.0 {
		qualifier = "far_above"
	}
	return fmt.Sprintf("%s_%s_baseline:%.1fms>%.1fms", metric, qualifier, measured, limit)
}

// hasSignal reports whether the sample carries anything the scorer can
// evaluate. Without a signal the status is unknown, not degraded.
func hasSignal(t model.TelemetrySample) bool {
	return t.NetworkRTTMs != nil ||
		t.NetworkJitterMs != nil ||
		t.ObservedProvider != "" ||
		t.ObservedModel != "" ||
		t.ObservedRegion != "" ||
		t.SensorHIDRTTMs != nil ||
		t.SensorDwellMs != nil ||
		t.SensorOSJitterMs != nil
}

func hasAllSensorFields(t model.TelemetrySample) bool {
	return t.SensorHIDRTTMs != nil && t.SensorDwellMs != nil && t.SensorOSJitterMs != nil
}
