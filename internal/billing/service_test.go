package billing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
)

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, _ []byte, _, _ string) error {
	f.published = append(f.published, routingKey)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestHandler_CompletedPublishesBillingComplete(t *testing.T) {
	store := NewMemoryStore()
	saga := NewSaga(store, fakeInsurance{outcome: OutcomeOK}, NewMemoryGateway(), logging.NewLogger())
	svc := NewService(nil, saga, logging.NewLogger())
	pub := &fakePublisher{}
	handler := svc.makeHandler(pub)

	cmd := messages.InitiateBilling{Type: "InitiateBilling", IncidentID: "inc-1", PatientID: "pat-1"}
	body, _ := json.Marshal(cmd)

	result := handler(context.Background(), messages.RoutingBillingInitiate, "inc-1", body)

	if result != broker.ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}
	if len(pub.published) != 1 || pub.published[0] != messages.RoutingBillingComplete {
		t.Fatalf("expected exactly one billing.completed publish, got %v", pub.published)
	}
}

func TestHandler_InsuranceFailurePublishesBillingFailed(t *testing.T) {
	store := NewMemoryStore()
	saga := NewSaga(store, fakeInsurance{outcome: OutcomeNoPolicy}, NewMemoryGateway(), logging.NewLogger())
	svc := NewService(nil, saga, logging.NewLogger())
	pub := &fakePublisher{}
	handler := svc.makeHandler(pub)

	amount := 50.0
	cmd := messages.InitiateBilling{Type: "InitiateBilling", IncidentID: "X", PatientID: "P999", Amount: &amount}
	body, _ := json.Marshal(cmd)

	result := handler(context.Background(), messages.RoutingBillingInitiate, "X", body)

	if result != broker.ResultOK {
		t.Fatalf("expected ResultOK (always ack after compensation), got %v", result)
	}
	if len(pub.published) != 1 || pub.published[0] != messages.RoutingBillingFailed {
		t.Fatalf("expected exactly one billing.failed publish, got %v", pub.published)
	}
}

func TestHandler_MalformedMessageDropped(t *testing.T) {
	svc := NewService(nil, nil, logging.NewLogger())
	pub := &fakePublisher{}
	handler := svc.makeHandler(pub)

	result := handler(context.Background(), messages.RoutingBillingInitiate, "x", []byte("not json"))

	if result != broker.ResultDrop {
		t.Fatalf("expected ResultDrop, got %v", result)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no publishes for a dropped message")
	}
}
