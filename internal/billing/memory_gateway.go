package billing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mattw23n/emergency-dispatch-app/pkg/money"
)

// MemoryGateway is a deterministic in-process stand-in for StripeGateway,
// used in tests and in local/dev deployments without a Stripe account.
type MemoryGateway struct {
	mu        sync.Mutex
	counter   atomic.Int64
	declineAll bool
	refunded  map[string]bool
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{refunded: make(map[string]bool)}
}

// NewDecliningMemoryGateway always declines Charge, for exercising §8
// scenario 3 (payment declined).
func NewDecliningMemoryGateway() *MemoryGateway {
	return &MemoryGateway{refunded: make(map[string]bool), declineAll: true}
}

func (g *MemoryGateway) Charge(_ context.Context, amount money.Cents, _ string) (ChargeResult, error) {
	if g.declineAll {
		return ChargeResult{Success: false, Error: "Your card was declined"}, nil
	}
	id := fmt.Sprintf("pi_%d", g.counter.Add(1))
	return ChargeResult{Success: true, PaymentReference: id}, nil
}

func (g *MemoryGateway) Refund(_ context.Context, paymentReference string) (RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunded[paymentReference] = true
	return RefundResult{Success: true, RefundID: "re_" + paymentReference}, nil
}

func (g *MemoryGateway) WasRefunded(paymentReference string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[paymentReference]
}

func (g *MemoryGateway) RefundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunded)
}
