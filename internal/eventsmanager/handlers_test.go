package eventsmanager

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/idempotency"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
)

type fakePublisher struct {
	published      []publishedMsg
	failRoutingKey string
}

type publishedMsg struct {
	routingKey string
	body       []byte
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, body []byte, _, _ string) error {
	if f.failRoutingKey != "" && routingKey == f.failRoutingKey {
		f.failRoutingKey = ""
		return context.DeadlineExceeded
	}
	f.published = append(f.published, publishedMsg{routingKey, body})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestService() *Service {
	return NewService(nil, idempotency.NewMemoryLedger(), logging.NewLogger())
}

func TestTriageHandler_EmergencyEmitsAlertAndAmbulanceRequest(t *testing.T) {
	svc := newTestService()
	pub := &fakePublisher{}
	handler := svc.triageHandler(pub)

	ts := messages.TriageStatus{IncidentID: "i1", PatientID: "p1", Status: "emergency"}
	body, _ := json.Marshal(ts)

	result := handler(context.Background(), messages.RoutingTriageEmergency, "", body)
	if result != broker.ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}
	if len(pub.published) != 2 {
		t.Fatalf("expected alert + ambulance request, got %d messages", len(pub.published))
	}
	if pub.published[1].routingKey != messages.RoutingDispatchRequest {
		t.Fatalf("expected second publish to be ambulance request, got %s", pub.published[1].routingKey)
	}
}

func TestTriageHandler_AbnormalEmitsOnlyAlert(t *testing.T) {
	svc := newTestService()
	pub := &fakePublisher{}
	handler := svc.triageHandler(pub)

	ts := messages.TriageStatus{IncidentID: "i1", PatientID: "p1", Status: "abnormal"}
	body, _ := json.Marshal(ts)

	handler(context.Background(), messages.RoutingTriageAbnormal, "", body)
	if len(pub.published) != 1 {
		t.Fatalf("expected exactly one alert for abnormal status, got %d", len(pub.published))
	}
}

func TestDispatchHandler_ArrivedInitiatesBillingOnce(t *testing.T) {
	svc := newTestService()
	pub := &fakePublisher{}
	handler := svc.dispatchHandler(pub)

	ev := messages.DispatchEvent{IncidentID: "i1", DispatchID: "d1", PatientID: "p1", UnitID: "amb-1"}
	body, _ := json.Marshal(ev)

	// Two duplicate arrived events for the same incident.
	handler(context.Background(), messages.RoutingDispatchArrivedAtHospital, "", body)
	handler(context.Background(), messages.RoutingDispatchArrivedAtHospital, "", body)

	initiated := 0
	for _, m := range pub.published {
		if m.routingKey == messages.RoutingBillingInitiate {
			initiated++
		}
	}
	if initiated != 1 {
		t.Fatalf("expected exactly one InitiateBilling across duplicate arrived events, got %d", initiated)
	}
}

func TestDispatchHandler_ArrivedRetriesBillingAfterPublishFailure(t *testing.T) {
	svc := newTestService()
	pub := &fakePublisher{failRoutingKey: messages.RoutingBillingInitiate}
	handler := svc.dispatchHandler(pub)

	ev := messages.DispatchEvent{IncidentID: "i1", DispatchID: "d1", PatientID: "p1", UnitID: "amb-1"}
	body, _ := json.Marshal(ev)

	// First delivery: the alert publishes but InitiateBilling fails, so the
	// handler must retry and must not leave the ledger permanently holding
	// the incident.
	result := handler(context.Background(), messages.RoutingDispatchArrivedAtHospital, "", body)
	if result != broker.ResultRetry {
		t.Fatalf("expected ResultRetry after publish failure, got %v", result)
	}

	// Redelivery of the same event must still succeed in initiating billing.
	result = handler(context.Background(), messages.RoutingDispatchArrivedAtHospital, "", body)
	if result != broker.ResultOK {
		t.Fatalf("expected ResultOK on redelivery, got %v", result)
	}

	initiated := 0
	for _, m := range pub.published {
		if m.routingKey == messages.RoutingBillingInitiate {
			initiated++
		}
	}
	if initiated != 1 {
		t.Fatalf("expected exactly one InitiateBilling after retry, got %d", initiated)
	}
}

func TestDispatchHandler_UnitAssignedEmitsAlertOnly(t *testing.T) {
	svc := newTestService()
	pub := &fakePublisher{}
	handler := svc.dispatchHandler(pub)

	ev := messages.DispatchEvent{IncidentID: "i1", DispatchID: "d1", PatientID: "p1", UnitID: "amb-1"}
	body, _ := json.Marshal(ev)

	handler(context.Background(), messages.RoutingDispatchUnitAssigned, "", body)
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(pub.published))
	}
}

func TestBillingHandler_CompletedAndFailedTemplates(t *testing.T) {
	svc := newTestService()
	pub := &fakePublisher{}
	handler := svc.billingHandler(pub)

	ev := messages.BillingEvent{BillingID: "b1", IncidentID: "i1", PatientID: "p1"}
	body, _ := json.Marshal(ev)

	handler(context.Background(), messages.RoutingBillingComplete, "", body)
	handler(context.Background(), messages.RoutingBillingFailed, "", body)

	if len(pub.published) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(pub.published))
	}
	var first messages.SendAlert
	json.Unmarshal(pub.published[0].body, &first)
	if first.Template != messages.TemplateBillingCompleted {
		t.Fatalf("expected completed template, got %s", first.Template)
	}
	var second messages.SendAlert
	json.Unmarshal(pub.published[1].body, &second)
	if second.Template != messages.TemplateBillingFailed {
		t.Fatalf("expected failed template, got %s", second.Template)
	}
}

func TestTriageHandler_MalformedDropped(t *testing.T) {
	svc := newTestService()
	pub := &fakePublisher{}
	handler := svc.triageHandler(pub)

	result := handler(context.Background(), messages.RoutingTriageAbnormal, "", []byte("{"))
	if result != broker.ResultDrop {
		t.Fatalf("expected ResultDrop, got %v", result)
	}
}
