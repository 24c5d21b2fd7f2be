package billing

import (
	"context"
	"strings"
	"testing"

	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
	"github.com/mattw23n/emergency-dispatch-app/pkg/money"
)

type fakeInsurance struct {
	outcome Outcome
	err     error
}

func (f fakeInsurance) Verify(context.Context, string, string, money.Cents) (Outcome, error) {
	return f.outcome, f.err
}

func TestSaga_HappyPath(t *testing.T) {
	store := NewMemoryStore()
	gw := NewMemoryGateway()
	saga := NewSaga(store, fakeInsurance{outcome: OutcomeOK}, gw, logging.NewLogger())

	result := saga.Run(context.Background(), "inc-1", "pat-1", money.FromDollars(50))

	if result.Status != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %s (%s)", result.Status, result.Error)
	}
	if result.PaymentReference == "" {
		t.Fatal("expected non-empty payment reference")
	}
	rec, err := store.Get(context.Background(), result.BillingID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != models.BillingPaid {
		t.Fatalf("expected row PAID, got %s", rec.Status)
	}
}

func TestSaga_InsuranceNoPolicy(t *testing.T) {
	store := NewMemoryStore()
	gw := NewMemoryGateway()
	saga := NewSaga(store, fakeInsurance{outcome: OutcomeNoPolicy}, gw, logging.NewLogger())

	result := saga.Run(context.Background(), "inc-2", "pat-999", money.FromDollars(50))

	if result.Status != "CANCELLED" {
		t.Fatalf("expected CANCELLED, got %s", result.Status)
	}
	if result.PaymentReference != "" {
		t.Fatalf("expected no payment reference, got %s", result.PaymentReference)
	}
	rec, _ := store.Get(context.Background(), result.BillingID)
	if rec.Status != models.BillingCancelled {
		t.Fatalf("expected row CANCELLED, got %s", rec.Status)
	}
}

func TestSaga_PaymentDeclined(t *testing.T) {
	store := NewMemoryStore()
	gw := NewDecliningMemoryGateway()
	saga := NewSaga(store, fakeInsurance{outcome: OutcomeOK}, gw, logging.NewLogger())

	result := saga.Run(context.Background(), "inc-3", "pat-1", money.FromDollars(50))

	if result.Status != "CANCELLED" {
		t.Fatalf("expected CANCELLED, got %s", result.Status)
	}
	if result.PaymentReference != "" {
		t.Fatalf("expected no payment reference on decline")
	}
	rec, _ := store.Get(context.Background(), result.BillingID)
	if rec.Status != models.BillingCancelled {
		t.Fatalf("expected row CANCELLED, got %s", rec.Status)
	}
}

func TestSaga_DBFailureAfterPaymentRefunds(t *testing.T) {
	store := NewFailingMarkPaidStore()
	gw := NewMemoryGateway()
	saga := NewSaga(store, fakeInsurance{outcome: OutcomeOK}, gw, logging.NewLogger())

	result := saga.Run(context.Background(), "inc-4", "pat-1", money.FromDollars(50))

	if result.Status != "CANCELLED" {
		t.Fatalf("expected CANCELLED, got %s", result.Status)
	}
	if result.PaymentReference == "" {
		t.Fatal("expected the charged payment reference to be reported even though compensated")
	}
	if !gw.WasRefunded(result.PaymentReference) {
		t.Fatalf("expected refund of %s", result.PaymentReference)
	}
	if !strings.Contains(result.Error, "database update") {
		t.Fatalf("expected a reason mentioning the database update, got %q", result.Error)
	}
}

func TestSaga_NeverRefundsWithoutPaymentReference(t *testing.T) {
	store := NewMemoryStore()
	gw := NewMemoryGateway()
	saga := NewSaga(store, fakeInsurance{outcome: OutcomeNoPolicy}, gw, logging.NewLogger())

	saga.Run(context.Background(), "inc-5", "pat-1", money.FromDollars(50))

	if gw.RefundCount() != 0 {
		t.Fatal("refund must never be called when no payment was ever charged")
	}
}
