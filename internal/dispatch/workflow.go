package dispatch

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
)

// workflowTimings lets tests shrink the 5s/10s/2s cadence from §4.4 without
// changing production behaviour.
type workflowTimings struct {
	onboardDelay  time.Duration
	arrivalDelay  time.Duration
	vitalsCadence time.Duration
}

func defaultTimings() workflowTimings {
	return workflowTimings{
		onboardDelay:  5 * time.Second,
		arrivalDelay:  10 * time.Second,
		vitalsCadence: 2 * time.Second,
	}
}

type incidentContext struct {
	incidentID string
	dispatchID string
	patientID  string
	unitID     string
	hospitalID string
}

// runWorkflow is the per-incident workflow task of §4.4 step 3: it owns its
// own broker channel, never shared with the consumer loop or the vitals
// task it spawns, and exits cleanly on process-wide cancellation.
func (s *Service) runWorkflow(ic incidentContext, timings workflowTimings) {
	defer s.wg.Done()
	defer s.active.Remove(ic.incidentID)

	pub, err := s.newPublisher()
	if err != nil {
		s.logger.WithError(err).Error("workflow: failed to open publisher channel")
		return
	}
	defer pub.Close()

	if s.sleepOrCancel(timings.onboardDelay) {
		return
	}

	if err := s.publishLifecycleEvent(pub, ic, "patient_onboard", messages.RoutingDispatchPatientOnboard, nil); err != nil {
		s.logger.WithError(err).Error("workflow: failed to publish patient_onboard")
	}

	s.wg.Add(1)
	go s.runVitals(ic, timings)

	if s.sleepOrCancel(timings.arrivalDelay) {
		return
	}

	s.active.StopMonitoring(ic.incidentID)

	if err := s.publishLifecycleEvent(pub, ic, "arrived_at_hospital", messages.RoutingDispatchArrivedAtHospital, nil); err != nil {
		s.logger.WithError(err).Error("workflow: failed to publish arrived_at_hospital")
	}
}

// runVitals is the vitals-monitor task of §4.4: its own channel, looping
// every vitalsCadence until StopMonitoring or the process-wide flag fires.
func (s *Service) runVitals(ic incidentContext, timings workflowTimings) {
	defer s.wg.Done()

	pub, err := s.newPublisher()
	if err != nil {
		s.logger.WithError(err).Error("vitals: failed to open publisher channel")
		return
	}
	defer pub.Close()

	for {
		if s.sleepOrCancel(timings.vitalsCadence) {
			return
		}
		if s.active.IsStopped(ic.incidentID) {
			return
		}

		update := messages.PatientVitalsUpdate{
			DispatchID: ic.dispatchID,
			PatientID:  ic.patientID,
			Vitals:     syntheticVitals(),
			RecordedAt: time.Now().UTC().Format(time.RFC3339),
			Timestamp:  time.Now().UnixMilli(),
		}
		body, err := json.Marshal(update)
		if err != nil {
			s.logger.WithError(err).Error("vitals: failed to marshal update")
			continue
		}
		if err := pub.Publish(context.Background(), messages.RoutingDispatchPatientVitals, body, ic.incidentID, "PatientVitalsUpdate"); err != nil {
			// Best-effort per SPEC_FULL.md's resolution of the vitals/
			// disconnect open question: log and drop this tick.
			s.logger.WithError(err).Warn("vitals: failed to publish update")
		}
	}
}

// syntheticVitals produces plausible, within-normal-range readings — the
// vitals stream here is a monitoring convenience, not a record of truth.
func syntheticVitals() messages.Metrics {
	return messages.Metrics{
		HeartRateBPM:       70 + rand.Intn(20),
		SpO2Pct:            96 + rand.Float64()*3,
		RespirationRateBPM: 14 + rand.Intn(6),
		BodyTemperatureC:   36.4 + rand.Float64()*0.8,
	}
}

func (s *Service) publishLifecycleEvent(pub broker.Publishable, ic incidentContext, status, routingKey string, etaMinutes *int) error {
	var hospitalID *string
	if ic.hospitalID != "" {
		hospitalID = &ic.hospitalID
	}
	ev := messages.DispatchEvent{
		IncidentID: ic.incidentID,
		DispatchID: ic.dispatchID,
		PatientID:  ic.patientID,
		UnitID:     ic.unitID,
		HospitalID: hospitalID,
		Status:     status,
		ETAMinutes: etaMinutes,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return pub.Publish(context.Background(), routingKey, body, ic.incidentID, "DispatchEvent")
}

// sleepOrCancel sleeps for d then reports whether the process-wide
// cancellation flag fired, per §4.4/§5/§9: cancellation is checked at sleep
// boundaries, not mid-sleep.
func (s *Service) sleepOrCancel(d time.Duration) bool {
	time.Sleep(d)
	return s.cancelled.Load()
}
