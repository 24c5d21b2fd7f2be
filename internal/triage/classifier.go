// Package triage implements the classifier and transition filter of §4.2:
// vitals in, at most one actionable TriageStatus out per reading.
package triage

import (
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
)

const (
	StatusNormal    = "normal"
	StatusAbnormal  = "abnormal"
	StatusEmergency = "emergency"
)

// Classify evaluates the ordered rule table in §4.2 and returns the
// resulting status and a short reason string. Rules are evaluated in order;
// the first match wins. A zero-valued Metrics field (as produced by
// unmarshalling a reading whose metrics object omits a key) already falls
// outside every normal range below, so missing fields classify as emergency
// without special-casing — matching "missing metrics map to emergency".
func Classify(m messages.Metrics) (status string, reason string) {
	switch {
	case m.SpO2Pct < 91:
		return StatusEmergency, "severe hypoxia"
	case m.HeartRateBPM > 150 || m.HeartRateBPM < 40:
		return StatusEmergency, "critical heart rate"
	case m.BodyTemperatureC > 39.0 || m.BodyTemperatureC < 35.0:
		return StatusEmergency, "critical temperature"
	case m.RespirationRateBPM > 30 || m.RespirationRateBPM < 8:
		return StatusEmergency, "critical respiration"
	case m.SpO2Pct < 95:
		return StatusAbnormal, "mild hypoxia"
	case m.HeartRateBPM > 100 || m.HeartRateBPM < 50:
		return StatusAbnormal, "abnormal heart rate"
	case m.BodyTemperatureC > 37.5 || m.BodyTemperatureC < 36.0:
		return StatusAbnormal, "abnormal temperature"
	case m.RespirationRateBPM > 24 || m.RespirationRateBPM < 10:
		return StatusAbnormal, "abnormal respiration"
	default:
		return StatusNormal, ""
	}
}
