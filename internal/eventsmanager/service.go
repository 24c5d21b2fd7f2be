// Package eventsmanager implements the orchestrator of §4.3: translating
// triage and dispatch lifecycle events into alert commands and, at the
// right moment, exactly one billing initiation per incident.
package eventsmanager

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/idempotency"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
	"github.com/mattw23n/emergency-dispatch-app/pkg/monitoring"
)

const (
	QueueTriageActionable = "triage-actionable"
	QueueDispatchStatus   = "dispatch-status"
	QueueBillingStatus    = "billing-status"
)

// Service owns the three single-active-consumer input queues of §4.3.
type Service struct {
	conn    *broker.Conn
	ledger  idempotency.Ledger
	logger  logging.Logger
	metrics *monitoring.DomainMetrics
}

func NewService(conn *broker.Conn, ledger idempotency.Ledger, logger logging.Logger) *Service {
	if ledger == nil {
		ledger = idempotency.NewMemoryLedger()
	}
	return &Service{conn: conn, ledger: ledger, logger: logger}
}

// SetMetrics wires dm into every queue's consume/publish path.
func (s *Service) SetMetrics(dm *monitoring.DomainMetrics) {
	s.metrics = dm
}

func (s *Service) Topology() broker.Topology {
	return broker.Topology{
		Queues: []broker.QueueBinding{
			{
				Name:                 QueueTriageActionable,
				RoutingKeys:          []string{messages.RoutingTriageAbnormal, messages.RoutingTriageEmergency},
				SingleActiveConsumer: true,
			},
			{
				Name: QueueDispatchStatus,
				RoutingKeys: []string{
					messages.RoutingDispatchUnitAssigned,
					messages.RoutingDispatchEnroute,
					messages.RoutingDispatchPatientOnboard,
					messages.RoutingDispatchArrivedAtHospital,
				},
				SingleActiveConsumer: true,
			},
			{
				Name:                 QueueBillingStatus,
				RoutingKeys:          []string{messages.RoutingBillingComplete, messages.RoutingBillingFailed},
				SingleActiveConsumer: true,
			},
		},
	}
}

// Run starts one consumer loop per input queue and blocks until all exit.
func (s *Service) Run(ctx context.Context) error {
	queues := []struct {
		name    string
		handler func(pub broker.Publishable) broker.Handler
	}{
		{QueueTriageActionable, s.triageHandler},
		{QueueDispatchStatus, s.dispatchHandler},
		{QueueBillingStatus, s.billingHandler},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(queues))

	for _, q := range queues {
		pub, err := s.conn.NewPublisher()
		if err != nil {
			return err
		}
		var publisher broker.Publishable = pub
		if s.metrics != nil {
			publisher = monitoring.InstrumentPublisher(s.metrics, publisher)
		}
		handler := q.handler(publisher)
		if s.metrics != nil {
			handler = monitoring.InstrumentHandler(s.metrics, q.name, handler)
		}
		wg.Add(1)
		go func(queueName string, pub broker.Publishable, handler broker.Handler) {
			defer wg.Done()
			defer pub.Close()
			if err := s.conn.Consume(ctx, queueName, handler); err != nil {
				errs <- err
			}
		}(q.name, pub, handler)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func upper(s string) string {
	return strings.ToUpper(s)
}

func sendAlert(ctx context.Context, pub broker.Publishable, incidentID, template string, vars map[string]any) error {
	alert := messages.SendAlert{
		Type:       "SendAlert",
		IncidentID: incidentID,
		Template:   template,
		Vars:       vars,
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, messages.RoutingNotificationSendAlert, body, incidentID, "SendAlert")
}
