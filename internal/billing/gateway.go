package billing

import (
	"context"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"

	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/money"
)

// ChargeResult is the payment gateway's response shape from §6.
type ChargeResult struct {
	Success          bool
	PaymentReference string
	Error            string
}

// RefundResult is the refund call's response shape from §6.
type RefundResult struct {
	Success  bool
	RefundID string
	Error    string
}

// PaymentGateway charges and refunds in integer cents; amounts reach the
// gateway SDK as cents without any float conversion. (The only cents-to-float
// conversion on the billing path is the insurance verification request body.)
type PaymentGateway interface {
	Charge(ctx context.Context, amount money.Cents, description string) (ChargeResult, error)
	Refund(ctx context.Context, paymentReference string) (RefundResult, error)
}

// StripeGateway wraps Stripe PaymentIntents for the charge step and Stripe
// Refunds for compensation, following the teacher's pattern of setting the
// package-level API key once and wrapping typed params per call.
type StripeGateway struct {
	logger logging.Logger
}

func NewStripeGateway(secretKey string, logger logging.Logger) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{logger: logger}
}

func (g *StripeGateway) Charge(_ context.Context, amount money.Cents, description string) (ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(int64(amount)),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		g.logger.WithError(err).Warn("stripe payment intent creation failed")
		return ChargeResult{Success: false, Error: err.Error()}, nil
	}

	return ChargeResult{Success: true, PaymentReference: pi.ID}, nil
}

func (g *StripeGateway) Refund(_ context.Context, paymentReference string) (RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentReference),
	}

	r, err := refund.New(params)
	if err != nil {
		g.logger.WithError(err).Warn("stripe refund failed")
		return RefundResult{Success: false, Error: err.Error()}, nil
	}
	return RefundResult{Success: true, RefundID: r.ID}, nil
}
