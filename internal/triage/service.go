package triage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/idempotency"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
	"github.com/mattw23n/emergency-dispatch-app/pkg/monitoring"
)

const QueueWearableData = "wearable-data"

// Service consumes wearable.data, classifies each reading, and publishes a
// TriageStatus on transition into {abnormal, emergency}, per §4.2.
type Service struct {
	conn    *broker.Conn
	ledger  *idempotency.StatusLedger
	logger  logging.Logger
	publish broker.Publishable
	metrics *monitoring.DomainMetrics
}

// SetMetrics wires dm into the service's consume/publish paths. Left unset,
// Run and handle behave exactly as before — metrics are an optional,
// additive observer, not a dependency the classification logic relies on.
func (s *Service) SetMetrics(dm *monitoring.DomainMetrics) {
	s.metrics = dm
}

func NewService(conn *broker.Conn, logger logging.Logger) (*Service, error) {
	pub, err := conn.NewPublisher()
	if err != nil {
		return nil, err
	}
	return newService(conn, logger, pub), nil
}

func newService(conn *broker.Conn, logger logging.Logger, pub broker.Publishable) *Service {
	return &Service{
		conn:    conn,
		ledger:  idempotency.NewStatusLedger(),
		logger:  logger,
		publish: pub,
	}
}

func (s *Service) Topology() broker.Topology {
	return broker.Topology{
		Queues: []broker.QueueBinding{
			{Name: QueueWearableData, RoutingKeys: []string{messages.RoutingWearableData}},
		},
	}
}

// Run blocks consuming QueueWearableData until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	handler := broker.Handler(s.handle)
	if s.metrics != nil {
		handler = monitoring.InstrumentHandler(s.metrics, QueueWearableData, handler)
	}
	return s.conn.Consume(ctx, QueueWearableData, handler)
}

func (s *Service) handle(ctx context.Context, routingKey, correlationID string, body []byte) broker.HandlerResult {
	var reading messages.VitalsReading
	if err := json.Unmarshal(body, &reading); err != nil {
		s.logger.WithError(err).Warn("dropping malformed wearable.data message")
		return broker.ResultDrop
	}
	if reading.PatientID == "" {
		s.logger.Warn("dropping wearable.data message missing patient_id")
		return broker.ResultDrop
	}

	status, reason := Classify(reading.Metrics)
	changed := s.ledger.Transition(reading.PatientID, status)
	if status == StatusNormal || !changed {
		// A transition to normal is recorded so a later relapse into
		// abnormal/emergency is seen as a fresh transition, but it is never
		// itself actionable.
		return broker.ResultOK
	}

	event := messages.TriageStatus{
		Type:       "TriageStatus",
		IncidentID: uuid.NewString(),
		PatientID:  reading.PatientID,
		Status:     status,
		Metrics:    reading.Metrics,
		Location:   reading.Location,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).Error("failed to marshal TriageStatus")
		return broker.ResultRetry
	}

	routing := messages.RoutingTriageAbnormal
	if status == StatusEmergency {
		routing = messages.RoutingTriageEmergency
	}

	if err := s.publish.Publish(ctx, routing, payload, event.IncidentID, "TriageStatus"); err != nil {
		s.logger.WithError(err).WithFields(logging.Fields{
			"patient_id": reading.PatientID,
			"status":     status,
			"reason":     reason,
		}).Error("failed to publish TriageStatus")
		return broker.ResultRetry
	}
	if s.metrics != nil {
		s.metrics.Published.WithLabelValues(routing).Inc()
	}

	s.logger.WithFields(logging.Fields{
		"incident_id": event.IncidentID,
		"patient_id":  reading.PatientID,
		"status":      status,
		"reason":      reason,
	}).Info("published triage status")
	return broker.ResultOK
}

// Close releases the service's dedicated publisher channel.
func (s *Service) Close() error {
	return s.publish.Close()
}
