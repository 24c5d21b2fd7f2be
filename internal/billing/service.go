package billing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
	"github.com/mattw23n/emergency-dispatch-app/pkg/money"
	"github.com/mattw23n/emergency-dispatch-app/pkg/monitoring"
)

const QueueBillingInitiate = "billing-requests"

// Service consumes cmd.billing.initiate and runs the saga once per message,
// per §4.5. The saga itself holds no state; Service just owns the broker
// plumbing around it.
type Service struct {
	conn    *broker.Conn
	saga    *Saga
	logger  logging.Logger
	metrics *monitoring.DomainMetrics
}

func NewService(conn *broker.Conn, saga *Saga, logger logging.Logger) *Service {
	return &Service{conn: conn, saga: saga, logger: logger}
}

// SetMetrics wires dm into the consume/publish path and into the saga's
// per-step latency histogram.
func (s *Service) SetMetrics(dm *monitoring.DomainMetrics) {
	s.metrics = dm
	s.saga.SetMetrics(dm)
}

func (s *Service) Topology() broker.Topology {
	return broker.Topology{
		Queues: []broker.QueueBinding{
			{Name: QueueBillingInitiate, RoutingKeys: []string{messages.RoutingBillingInitiate}, SingleActiveConsumer: true},
		},
	}
}

func (s *Service) Run(ctx context.Context) error {
	pub, err := s.conn.NewPublisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	var publisher broker.Publishable = pub
	if s.metrics != nil {
		publisher = monitoring.InstrumentPublisher(s.metrics, publisher)
	}
	handler := s.makeHandler(publisher)
	if s.metrics != nil {
		handler = monitoring.InstrumentHandler(s.metrics, QueueBillingInitiate, handler)
	}

	return s.conn.Consume(ctx, QueueBillingInitiate, handler)
}

func (s *Service) makeHandler(pub broker.Publishable) broker.Handler {
	return func(ctx context.Context, routingKey, correlationID string, body []byte) broker.HandlerResult {
		var cmd messages.InitiateBilling
		if err := json.Unmarshal(body, &cmd); err != nil {
			s.logger.WithError(err).Warn("dropping malformed billing initiate command")
			return broker.ResultDrop
		}
		if cmd.IncidentID == "" || cmd.PatientID == "" {
			s.logger.Warn("dropping billing initiate command missing required fields")
			return broker.ResultDrop
		}

		amount := DefaultAmount
		if cmd.Amount != nil {
			amount = money.FromDollars(*cmd.Amount)
		}

		result := s.saga.Run(ctx, cmd.IncidentID, cmd.PatientID, amount)

		event := messages.BillingEvent{
			BillingID:   result.BillingID,
			IncidentID:  cmd.IncidentID,
			PatientID:   cmd.PatientID,
			AmountCents: int64(amount),
			Status:      result.Status,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}
		routingKeyOut := messages.RoutingBillingFailed
		if result.Status == "COMPLETED" {
			routingKeyOut = messages.RoutingBillingComplete
			event.PaymentReference = &result.PaymentReference
		} else {
			event.Error = &result.Error
		}

		eventBody, err := json.Marshal(event)
		if err != nil {
			s.logger.WithError(err).Error("failed to marshal billing event")
			// The saga has already made its only move; ack regardless.
			return broker.ResultOK
		}
		if err := pub.Publish(ctx, routingKeyOut, eventBody, cmd.IncidentID, "BillingEvent"); err != nil {
			s.logger.WithError(err).Error("failed to publish billing event")
		}

		return broker.ResultOK
	}
}
