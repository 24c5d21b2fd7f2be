package eventsmanager

import (
	"context"
	"encoding/json"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
)

// triageHandler implements §4.3's triage handler: one alert on every
// message, plus a conditional ambulance request on emergency. Both
// publishes must succeed before ack.
func (s *Service) triageHandler(pub broker.Publishable) broker.Handler {
	return func(ctx context.Context, routingKey, correlationID string, body []byte) broker.HandlerResult {
		var ts messages.TriageStatus
		if err := json.Unmarshal(body, &ts); err != nil {
			s.logger.WithError(err).Warn("dropping malformed triage status message")
			return broker.ResultDrop
		}
		if ts.IncidentID == "" || ts.PatientID == "" || ts.Status == "" {
			s.logger.Warn("dropping triage status message missing required fields")
			return broker.ResultDrop
		}

		vars := map[string]any{
			"patient_id": ts.PatientID,
			"status":     ts.Status,
			"metrics":    ts.Metrics,
			"location":   ts.Location,
			"ts":         ts.Timestamp,
		}
		template := "TRIAGE_" + upper(ts.Status)
		if err := sendAlert(ctx, pub, ts.IncidentID, template, vars); err != nil {
			s.logger.WithError(err).Error("failed to publish alert for triage status")
			return broker.ResultRetry
		}

		if ts.Status == "emergency" {
			req := messages.RequestAmbulance{
				Type:       "RequestAmbulance",
				IncidentID: ts.IncidentID,
				PatientID:  ts.PatientID,
				Command:    "request_ambulance",
				Location:   ts.Location,
				Reason:     "TRIAGE_EMERGENCY",
			}
			body, err := json.Marshal(req)
			if err != nil {
				s.logger.WithError(err).Error("failed to marshal RequestAmbulance")
				return broker.ResultRetry
			}
			if err := pub.Publish(ctx, messages.RoutingDispatchRequest, body, ts.IncidentID, "RequestAmbulance"); err != nil {
				s.logger.WithError(err).Error("failed to publish RequestAmbulance")
				return broker.ResultRetry
			}
		}
		return broker.ResultOK
	}
}

// dispatchHandler implements §4.3's dispatch handler: alert per lifecycle
// step, plus an idempotency-guarded billing initiation on arrival.
func (s *Service) dispatchHandler(pub broker.Publishable) broker.Handler {
	return func(ctx context.Context, routingKey, correlationID string, body []byte) broker.HandlerResult {
		var ev messages.DispatchEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			s.logger.WithError(err).Warn("dropping malformed dispatch event message")
			return broker.ResultDrop
		}
		if ev.IncidentID == "" || ev.PatientID == "" {
			s.logger.Warn("dropping dispatch event message missing required fields")
			return broker.ResultDrop
		}

		template, ok := messages.DispatchToTemplate[routingKey]
		if !ok {
			s.logger.WithField("routing_key", routingKey).Warn("dropping dispatch event with unknown routing key")
			return broker.ResultDrop
		}

		vars := map[string]any{
			"patient_id":  ev.PatientID,
			"dispatch_id": ev.DispatchID,
			"unit_id":     ev.UnitID,
			"hospital_id": ev.HospitalID,
			"eta_minutes": ev.ETAMinutes,
			"ts":          ev.Timestamp,
		}
		if err := sendAlert(ctx, pub, ev.IncidentID, template, vars); err != nil {
			s.logger.WithError(err).Error("failed to publish alert for dispatch event")
			return broker.ResultRetry
		}

		if routingKey != messages.RoutingDispatchArrivedAtHospital {
			return broker.ResultOK
		}

		if !s.ledger.CheckAndSet(ev.IncidentID) {
			// Already initiated billing for this incident — a redelivered or
			// duplicate arrived event must not trigger a second saga.
			return broker.ResultOK
		}

		initiate := messages.InitiateBilling{
			Type:       "InitiateBilling",
			IncidentID: ev.IncidentID,
			PatientID:  ev.PatientID,
			HospitalID: ev.HospitalID,
		}
		initBody, err := json.Marshal(initiate)
		if err != nil {
			s.logger.WithError(err).Error("failed to marshal InitiateBilling")
			s.ledger.Release(ev.IncidentID)
			return broker.ResultRetry
		}
		if err := pub.Publish(ctx, messages.RoutingBillingInitiate, initBody, ev.IncidentID, "InitiateBilling"); err != nil {
			s.logger.WithError(err).Error("failed to publish InitiateBilling")
			s.ledger.Release(ev.IncidentID)
			return broker.ResultRetry
		}
		return broker.ResultOK
	}
}

// billingHandler implements §4.3's billing handler: one alert per saga
// outcome.
func (s *Service) billingHandler(pub broker.Publishable) broker.Handler {
	return func(ctx context.Context, routingKey, correlationID string, body []byte) broker.HandlerResult {
		var ev messages.BillingEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			s.logger.WithError(err).Warn("dropping malformed billing event message")
			return broker.ResultDrop
		}
		if ev.IncidentID == "" {
			s.logger.Warn("dropping billing event message missing incident_id")
			return broker.ResultDrop
		}

		template := messages.TemplateBillingCompleted
		if routingKey == messages.RoutingBillingFailed {
			template = messages.TemplateBillingFailed
		}

		vars := map[string]any{
			"billing_id":        ev.BillingID,
			"patient_id":        ev.PatientID,
			"amount":            ev.AmountCents,
			"status":            ev.Status,
			"payment_reference": ev.PaymentReference,
			"error":             ev.Error,
		}
		if err := sendAlert(ctx, pub, ev.IncidentID, template, vars); err != nil {
			s.logger.WithError(err).Error("failed to publish alert for billing event")
			return broker.ResultRetry
		}
		return broker.ResultOK
	}
}
