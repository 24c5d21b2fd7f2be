package billing

import (
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		verified bool
		want     Outcome
	}{
		{"ok", http.StatusOK, true, OutcomeOK},
		{"ok-false-verified-is-error", http.StatusOK, false, OutcomeServiceError},
		{"not-found", http.StatusNotFound, false, OutcomeNoPolicy},
		{"payment-required", http.StatusPaymentRequired, false, OutcomeInsufficientCoverage},
		{"server-error", http.StatusInternalServerError, false, OutcomeServiceError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := classifyStatus(c.status, c.verified); got != c.want {
				t.Fatalf("classifyStatus(%d, %v) = %s, want %s", c.status, c.verified, got, c.want)
			}
		})
	}
}
