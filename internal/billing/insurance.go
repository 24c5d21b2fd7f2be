package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/mattw23n/emergency-dispatch-app/pkg/clients"
	"github.com/mattw23n/emergency-dispatch-app/pkg/money"
)

// Outcome is the classified result of an insurance verification call, per
// §4.5's status table.
type Outcome string

const (
	OutcomeOK                   Outcome = "OK"
	OutcomeNoPolicy             Outcome = "NO_POLICY"
	OutcomeInsufficientCoverage Outcome = "INSUFFICIENT_COVERAGE"
	OutcomeServiceUnavailable   Outcome = "SERVICE_UNAVAILABLE"
	OutcomeServiceError         Outcome = "SERVICE_ERROR"
)

// InsuranceClient verifies a patient's coverage before payment is attempted.
type InsuranceClient interface {
	Verify(ctx context.Context, patientID, incidentID string, amount money.Cents) (Outcome, error)
}

// classifyStatus is a pure function from HTTP status to Outcome, kept
// separate from the transport so the classification table in §4.5 can be
// exercised without a server.
func classifyStatus(statusCode int, verified bool) Outcome {
	switch {
	case statusCode == http.StatusOK && verified:
		return OutcomeOK
	case statusCode == http.StatusNotFound:
		return OutcomeNoPolicy
	case statusCode == http.StatusPaymentRequired:
		return OutcomeInsufficientCoverage
	default:
		return OutcomeServiceError
	}
}

type verifyRequest struct {
	PatientID  string  `json:"patient_id"`
	IncidentID string  `json:"incident_id"`
	Amount     float64 `json:"amount"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

// HTTPInsuranceClient calls the external insurance endpoint named in §6,
// using the same failsafe retry executor as the places-API client.
type HTTPInsuranceClient struct {
	baseURL  string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

func NewHTTPInsuranceClient(baseURL string) *HTTPInsuranceClient {
	return &HTTPInsuranceClient{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		executor: clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
	}
}

func (c *HTTPInsuranceClient) Verify(ctx context.Context, patientID, incidentID string, amount money.Cents) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := json.Marshal(verifyRequest{PatientID: patientID, IncidentID: incidentID, Amount: amount.Dollars()})
	if err != nil {
		return OutcomeServiceError, err
	}

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/insurance/verify", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.client.Do(req)
	})
	if err != nil {
		// Network error or timeout after retries exhausted.
		return OutcomeServiceUnavailable, nil
	}
	defer resp.Body.Close()

	var parsed verifyResponse
	_ = json.NewDecoder(resp.Body).Decode(&parsed)

	return classifyStatus(resp.StatusCode, parsed.Verified), nil
}
