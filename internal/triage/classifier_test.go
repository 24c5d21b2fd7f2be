package triage

import (
	"testing"

	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
)

func baseline() messages.Metrics {
	return messages.Metrics{
		HeartRateBPM:       70,
		SpO2Pct:            98,
		RespirationRateBPM: 16,
		BodyTemperatureC:   36.8,
	}
}

func TestClassify_Normal(t *testing.T) {
	status, _ := Classify(baseline())
	if status != StatusNormal {
		t.Fatalf("expected normal, got %s", status)
	}
}

func TestClassify_SpO2Boundaries(t *testing.T) {
	cases := []struct {
		spo2 float64
		want string
	}{
		{90.9, StatusEmergency},
		{91.0, StatusAbnormal},
		{94.9, StatusAbnormal},
		{95.0, StatusNormal},
	}
	for _, tc := range cases {
		m := baseline()
		m.SpO2Pct = tc.spo2
		got, _ := Classify(m)
		if got != tc.want {
			t.Errorf("spo2=%v: want %s, got %s", tc.spo2, tc.want, got)
		}
	}
}

func TestClassify_HeartRateBoundaries(t *testing.T) {
	cases := []struct {
		hr   int
		want string
	}{
		{39, StatusEmergency},
		{40, StatusAbnormal},
		{50, StatusNormal},
		{100, StatusNormal},
		{150, StatusAbnormal},
		{151, StatusEmergency},
	}
	for _, tc := range cases {
		m := baseline()
		m.HeartRateBPM = tc.hr
		got, _ := Classify(m)
		if got != tc.want {
			t.Errorf("hr=%d: want %s, got %s", tc.hr, tc.want, got)
		}
	}
}

func TestClassify_TemperatureBoundaries(t *testing.T) {
	cases := []struct {
		temp float64
		want string
	}{
		{34.99, StatusEmergency},
		{35.0, StatusAbnormal},
		{36.0, StatusNormal},
		{37.5, StatusNormal},
		{39.0, StatusAbnormal},
		{39.01, StatusEmergency},
	}
	for _, tc := range cases {
		m := baseline()
		m.BodyTemperatureC = tc.temp
		got, _ := Classify(m)
		if got != tc.want {
			t.Errorf("temp=%v: want %s, got %s", tc.temp, tc.want, got)
		}
	}
}

func TestClassify_RespirationBoundaries(t *testing.T) {
	cases := []struct {
		resp int
		want string
	}{
		{7, StatusEmergency},
		{8, StatusAbnormal},
		{10, StatusNormal},
		{24, StatusNormal},
		{30, StatusAbnormal},
		{31, StatusEmergency},
	}
	for _, tc := range cases {
		m := baseline()
		m.RespirationRateBPM = tc.resp
		got, _ := Classify(m)
		if got != tc.want {
			t.Errorf("resp=%d: want %s, got %s", tc.resp, tc.want, got)
		}
	}
}

func TestClassify_MissingMetricsIsEmergency(t *testing.T) {
	status, _ := Classify(messages.Metrics{})
	if status != StatusEmergency {
		t.Fatalf("expected emergency for zero-valued metrics, got %s", status)
	}
}

func TestClassify_AbnormalPrecedesNormal(t *testing.T) {
	m := baseline()
	m.HeartRateBPM = 110
	status, reason := Classify(m)
	if status != StatusAbnormal || reason == "" {
		t.Fatalf("expected abnormal with a reason, got %s/%q", status, reason)
	}
}
