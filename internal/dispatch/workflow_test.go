package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, _ []byte, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, routingKey)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.published))
	copy(out, f.published)
	return out
}

func testService() (*Service, *fakePublisher) {
	pub := &fakePublisher{}
	svc := &Service{
		hospitals:    NewMemoryHospitalStore(nil),
		active:       NewActiveDispatches(),
		logger:       logging.NewLogger(),
		timings:      workflowTimings{onboardDelay: time.Millisecond, arrivalDelay: time.Millisecond, vitalsCadence: time.Millisecond},
		newPublisher: func() (broker.Publishable, error) { return pub, nil },
	}
	return svc, pub
}

func TestRunWorkflow_PublishesOnboardAndArrival(t *testing.T) {
	svc, pub := testService()
	rec := &models.DispatchRecord{IncidentID: "i1", PatientID: "p1", UnitID: "amb-1"}
	svc.active.Register(rec)

	svc.wg.Add(1)
	svc.runWorkflow(incidentContext{incidentID: "i1", dispatchID: "d1", patientID: "p1", unitID: "amb-1"}, svc.timings)
	svc.wg.Wait() // waits for the vitals task this spawns too

	published := pub.snapshot()
	hasOnboard, hasArrived := false, false
	for _, rk := range published {
		if rk == "event.dispatch.patient_onboard" {
			hasOnboard = true
		}
		if rk == "event.dispatch.arrived_at_hospital" {
			hasArrived = true
		}
	}
	if !hasOnboard || !hasArrived {
		t.Fatalf("expected onboard and arrival events, got %v", published)
	}
	if svc.active.Count() != 0 {
		t.Fatalf("expected DispatchRecord removed after workflow completes")
	}
}

func TestRunVitals_StopsWhenFlagged(t *testing.T) {
	svc, pub := testService()
	rec := &models.DispatchRecord{IncidentID: "i1", PatientID: "p1", UnitID: "amb-1"}
	svc.active.Register(rec)

	svc.wg.Add(1)
	done := make(chan struct{})
	go func() {
		svc.runVitals(incidentContext{incidentID: "i1", dispatchID: "d1", patientID: "p1"}, svc.timings)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	svc.active.StopMonitoring("i1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("vitals task did not stop after StopMonitoring")
	}

	if len(pub.snapshot()) == 0 {
		t.Fatalf("expected at least one vitals publish before stopping")
	}
}
