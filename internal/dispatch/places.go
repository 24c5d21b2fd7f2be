package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/mattw23n/emergency-dispatch-app/pkg/clients"
	"github.com/mattw23n/emergency-dispatch-app/pkg/geo"
	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
)

// HTTPPlacesClient calls the external places-API fallback named in §4.4,
// wrapped in the same retry executor as the insurance client
// (clients.DefaultHTTPExecutorConfig, which leaves the circuit breaker off).
type HTTPPlacesClient struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

func NewHTTPPlacesClient(baseURL, apiKey string) *HTTPPlacesClient {
	return &HTTPPlacesClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
		executor: clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
	}
}

type placesRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Category string  `json:"category"`
}

type placesResult struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type placesResponse struct {
	Results []placesResult `json:"results"`
}

func (c *HTTPPlacesClient) NearestHospital(ctx context.Context, loc geo.Point) (models.Hospital, bool, error) {
	reqBody, err := json.Marshal(placesRequest{Lat: loc.Lat, Lng: loc.Lng, Category: "hospital"})
	if err != nil {
		return models.Hospital{}, false, err
	}

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/nearby", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return c.client.Do(req)
	})
	if err != nil {
		return models.Hospital{}, false, fmt.Errorf("places lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Hospital{}, false, fmt.Errorf("places lookup: unexpected status %d", resp.StatusCode)
	}

	var parsed placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.Hospital{}, false, err
	}

	var nearest placesResult
	nearestDist := 0.0
	found := false
	for _, r := range parsed.Results {
		d := geo.DistanceKM(loc, geo.Point{Lat: r.Lat, Lng: r.Lng})
		if !found || d < nearestDist {
			found = true
			nearestDist = d
			nearest = r
		}
	}
	if !found {
		return models.Hospital{}, false, nil
	}

	return models.Hospital{
		ID:       nearest.ID,
		Name:     nearest.Name,
		Lat:      nearest.Lat,
		Lng:      nearest.Lng,
		Capacity: 5, // unknown from the places API; use the neutral score value
	}, true, nil
}
