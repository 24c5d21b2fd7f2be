package triage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
)

type fakePublisher struct {
	published []publishedMsg
	failNext  bool
}

type publishedMsg struct {
	routingKey    string
	body          []byte
	correlationID string
	messageType   string
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, body []byte, correlationID, messageType string) error {
	if f.failNext {
		f.failNext = false
		return context.DeadlineExceeded
	}
	f.published = append(f.published, publishedMsg{routingKey, body, correlationID, messageType})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestService(pub *fakePublisher) *Service {
	return newService(nil, logging.NewLogger(), pub)
}

func reading(patientID string, hr int) []byte {
	r := messages.VitalsReading{
		PatientID: patientID,
		Metrics: messages.Metrics{
			HeartRateBPM:       hr,
			SpO2Pct:            98,
			RespirationRateBPM: 16,
			BodyTemperatureC:   36.8,
		},
	}
	b, _ := json.Marshal(r)
	return b
}

func TestHandle_EmergencyPublishesOnce(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	body := reading("p1", 160) // emergency
	result := svc.handle(context.Background(), messages.RoutingWearableData, "", body)
	if result != broker.ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
	if pub.published[0].routingKey != messages.RoutingTriageEmergency {
		t.Fatalf("expected emergency routing key, got %s", pub.published[0].routingKey)
	}
}

func TestHandle_DedupSameStatus(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	for i := 0; i < 3; i++ {
		svc.handle(context.Background(), messages.RoutingWearableData, "", reading("p1", 160))
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected exactly 1 publish across 3 identical emergencies, got %d", len(pub.published))
	}
}

func TestHandle_NormalNeverPublishes(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	result := svc.handle(context.Background(), messages.RoutingWearableData, "", reading("p1", 70))
	if result != broker.ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no publish for normal reading, got %d", len(pub.published))
	}
}

func TestHandle_RelapseAfterRecoveryPublishesAgain(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	svc.handle(context.Background(), messages.RoutingWearableData, "", reading("p1", 160)) // emergency
	svc.handle(context.Background(), messages.RoutingWearableData, "", reading("p1", 70))  // recovers to normal
	svc.handle(context.Background(), messages.RoutingWearableData, "", reading("p1", 160)) // relapse

	if len(pub.published) != 2 {
		t.Fatalf("expected 2 publishes (initial emergency + relapse), got %d", len(pub.published))
	}
	for _, p := range pub.published {
		if p.routingKey != messages.RoutingTriageEmergency {
			t.Fatalf("expected both publishes to be emergency, got %s", p.routingKey)
		}
	}
}

func TestHandle_MalformedMessageDropped(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	result := svc.handle(context.Background(), messages.RoutingWearableData, "", []byte("not json"))
	if result != broker.ResultDrop {
		t.Fatalf("expected ResultDrop, got %v", result)
	}
}

func TestHandle_PublishFailureRetries(t *testing.T) {
	pub := &fakePublisher{failNext: true}
	svc := newTestService(pub)

	result := svc.handle(context.Background(), messages.RoutingWearableData, "", reading("p1", 160))
	if result != broker.ResultRetry {
		t.Fatalf("expected ResultRetry, got %v", result)
	}
}
