// Package billing implements the saga of §4.5: verify insurance, charge the
// payment gateway, persist the result, and compensate on any failure after
// the row is created.
package billing

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/money"
	"github.com/mattw23n/emergency-dispatch-app/pkg/monitoring"
)

// DefaultAmount is charged when a cmd.billing.initiate message omits amount
// (the events-manager-driven path — see messages.InitiateBilling's doc
// comment for why that path never carries a price). Exported so service.go
// can apply it while decoding, keeping Run's contract "caller always
// supplies a concrete amount."
const DefaultAmount = money.Cents(5000)

// Result is the outcome of one saga run (COMPLETED or CANCELLED), used to
// build the event.billing.* payload.
type Result struct {
	BillingID        string
	Status           string // COMPLETED or CANCELLED
	PaymentReference string
	Error            string
}

// Saga wires the store, insurance client, and payment gateway for one
// incident's billing run. It holds no per-incident state itself — every
// call to Run is independent.
type Saga struct {
	store       BillingStore
	insurance   InsuranceClient
	gateway     PaymentGateway
	logger      logging.Logger
	stepLatency *prometheus.HistogramVec
}

func NewSaga(store BillingStore, insurance InsuranceClient, gateway PaymentGateway, logger logging.Logger) *Saga {
	return &Saga{store: store, insurance: insurance, gateway: gateway, logger: logger}
}

// SetMetrics wires dm's saga-step histogram into Run, timing each of the
// create/verify/charge/mark_paid steps separately.
func (s *Saga) SetMetrics(dm *monitoring.DomainMetrics) {
	s.stepLatency = dm.SagaStepLatency
}

// timeStep returns a func that records the elapsed time since it was
// created against the named step's histogram bucket, a no-op if no metrics
// collector was wired.
func (s *Saga) timeStep(step string) func() {
	if s.stepLatency == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(s.stepLatency.WithLabelValues(step))
	return func() { timer.ObserveDuration() }
}

// Run executes the state machine in §4.5's diagram. It always returns a
// Result — the message is acked either way, per the failure policy ("the
// saga has made the only move it can").
func (s *Saga) Run(ctx context.Context, incidentID, patientID string, amount money.Cents) Result {
	done := s.timeStep("create")
	billingID, err := s.store.Create(ctx, incidentID, patientID, amount)
	done()
	if err != nil {
		// No external effects yet to compensate; log and stop.
		s.logger.WithError(err).WithField("incident_id", incidentID).Error("failed to create billing row")
		return Result{Status: "CANCELLED", Error: "could not create billing row"}
	}

	done = s.timeStep("verify_insurance")
	outcome, err := s.insurance.Verify(ctx, patientID, incidentID, amount)
	done()
	if err != nil {
		return s.compensate(ctx, billingID, "", incidentID, patientID, "insurance verification error: "+err.Error())
	}
	if outcome != OutcomeOK {
		return s.compensate(ctx, billingID, "", incidentID, patientID, "insurance verification failed: "+string(outcome))
	}

	done = s.timeStep("charge")
	charge, err := s.gateway.Charge(ctx, amount, "incident "+incidentID)
	done()
	if err != nil {
		return s.compensate(ctx, billingID, "", incidentID, patientID, "payment gateway error: "+err.Error())
	}
	if !charge.Success {
		return s.compensate(ctx, billingID, "", incidentID, patientID, "payment declined: "+charge.Error)
	}

	done = s.timeStep("mark_paid")
	err = s.store.MarkPaid(ctx, billingID, charge.PaymentReference)
	done()
	if err != nil {
		return s.compensate(ctx, billingID, charge.PaymentReference, incidentID, patientID, "database update to PAID failed: "+err.Error())
	}

	return Result{BillingID: billingID, Status: "COMPLETED", PaymentReference: charge.PaymentReference}
}

// compensate implements §4.5's three best-effort steps: refund if charged,
// mark CANCELLED, and let the caller publish billing.failed. Each step is
// attempted regardless of whether an earlier one failed.
func (s *Saga) compensate(ctx context.Context, billingID, paymentReference, incidentID, patientID, reason string) Result {
	log := s.logger.WithField("incident_id", incidentID).WithField("billing_id", billingID)

	if paymentReference != "" {
		if _, err := s.gateway.Refund(ctx, paymentReference); err != nil {
			log.WithError(err).Error("refund attempt failed during compensation")
		}
	}

	if err := s.store.MarkCancelled(ctx, billingID); err != nil {
		log.WithError(err).Error("failed to mark billing row cancelled during compensation")
	}

	log.WithField("reason", reason).Warn("billing saga compensated")
	return Result{BillingID: billingID, Status: "CANCELLED", PaymentReference: paymentReference, Error: reason}
}
