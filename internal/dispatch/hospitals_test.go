package dispatch

import (
	"context"
	"testing"

	"github.com/mattw23n/emergency-dispatch-app/pkg/geo"
	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
)

func TestSelectHospital_PicksLowestScore(t *testing.T) {
	store := NewMemoryHospitalStore([]models.Hospital{
		{ID: "far-full", Lat: 40.80, Lng: -73.95, Capacity: 10},
		{ID: "near-empty", Lat: 40.71, Lng: -74.00, Capacity: 1},
	})
	patient := geo.Point{Lat: 40.70, Lng: -74.00}

	sel, err := SelectHospital(context.Background(), store, nil, patient, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Hospital.ID != "near-empty" {
		t.Fatalf("expected near-empty to win on distance, got %s", sel.Hospital.ID)
	}
}

func TestSelectHospital_TieBrokenByIterationOrder(t *testing.T) {
	store := NewMemoryHospitalStore([]models.Hospital{
		{ID: "first", Lat: 40.70, Lng: -74.00, Capacity: 5},
		{ID: "second", Lat: 40.70, Lng: -74.00, Capacity: 5},
	})
	patient := geo.Point{Lat: 40.70, Lng: -74.00}

	sel, err := SelectHospital(context.Background(), store, nil, patient, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Hospital.ID != "first" {
		t.Fatalf("expected tie to resolve to first-encountered, got %s", sel.Hospital.ID)
	}
}

type fakePlaces struct {
	hospital models.Hospital
	found    bool
	err      error
}

func (f fakePlaces) NearestHospital(_ context.Context, _ geo.Point) (models.Hospital, bool, error) {
	return f.hospital, f.found, f.err
}

func TestSelectHospital_FallsBackToPlacesWhenTableEmpty(t *testing.T) {
	store := NewMemoryHospitalStore(nil)
	places := fakePlaces{hospital: models.Hospital{ID: "places-1", Lat: 40.70, Lng: -74.00}, found: true}

	sel, err := SelectHospital(context.Background(), store, places, geo.Point{Lat: 40.70, Lng: -74.00}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Hospital.ID != "places-1" {
		t.Fatalf("expected places fallback result, got %s", sel.Hospital.ID)
	}
}

func TestSelectHospital_FailsWhenNoCandidateAnywhere(t *testing.T) {
	store := NewMemoryHospitalStore(nil)
	places := fakePlaces{found: false}

	_, err := SelectHospital(context.Background(), store, places, geo.Point{}, 1)
	if err != ErrNoHospitalAvailable {
		t.Fatalf("expected ErrNoHospitalAvailable, got %v", err)
	}
}

func TestETAMinutes_MinimumOneMinute(t *testing.T) {
	if got := geo.ETAMinutes(0.01); got != 1 {
		t.Fatalf("expected minimum 1 minute, got %d", got)
	}
}
