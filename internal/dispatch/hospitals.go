package dispatch

import (
	"context"
	"errors"

	"github.com/mattw23n/emergency-dispatch-app/pkg/geo"
	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
)

// ErrNoHospitalAvailable is returned when both the local table and the
// places-API fallback produce no candidate, per §4.4: the request fails
// with no events published.
var ErrNoHospitalAvailable = errors.New("dispatch: no hospital available")

// HospitalStore is the local hospital table dispatch scores against.
type HospitalStore interface {
	List() []models.Hospital
}

// MemoryHospitalStore holds a fixed fixture list, seeded at process start.
type MemoryHospitalStore struct {
	hospitals []models.Hospital
}

func NewMemoryHospitalStore(hospitals []models.Hospital) *MemoryHospitalStore {
	return &MemoryHospitalStore{hospitals: hospitals}
}

func (s *MemoryHospitalStore) List() []models.Hospital {
	return s.hospitals
}

// PlacesClient is the external places-API fallback used when the local
// table is empty.
type PlacesClient interface {
	NearestHospital(ctx context.Context, loc geo.Point) (models.Hospital, bool, error)
}

// Selection is the outcome of hospital selection: the chosen hospital plus
// the distance and ETA used to build the dispatch events.
type Selection struct {
	Hospital   models.Hospital
	DistanceKM float64
	ETAMinutes int
}

// SelectHospital implements §4.4's scoring formula:
// score = dist + capacity_penalty - severity*0.1, minimised, ties broken by
// iteration order. Falls back to places when the local table is empty.
func SelectHospital(ctx context.Context, store HospitalStore, places PlacesClient, patientLoc geo.Point, severity int) (Selection, error) {
	hospitals := store.List()
	if len(hospitals) == 0 {
		return selectFromPlaces(ctx, places, patientLoc)
	}

	var best models.Hospital
	bestScore := 0.0
	bestDist := 0.0
	found := false

	for _, h := range hospitals {
		dist := geo.DistanceKM(patientLoc, geo.Point{Lat: h.Lat, Lng: h.Lng})
		capacityPenalty := 0.0
		if h.Capacity < 5 {
			capacityPenalty = float64(5-h.Capacity) * 0.5
		}
		score := dist + capacityPenalty - float64(severity)*0.1

		if !found || score < bestScore {
			found = true
			bestScore = score
			bestDist = dist
			best = h
		}
	}

	if !found {
		return selectFromPlaces(ctx, places, patientLoc)
	}

	return Selection{
		Hospital:   best,
		DistanceKM: bestDist,
		ETAMinutes: geo.ETAMinutes(bestDist),
	}, nil
}

func selectFromPlaces(ctx context.Context, places PlacesClient, patientLoc geo.Point) (Selection, error) {
	if places == nil {
		return Selection{}, ErrNoHospitalAvailable
	}
	h, ok, err := places.NearestHospital(ctx, patientLoc)
	if err != nil {
		return Selection{}, err
	}
	if !ok {
		return Selection{}, ErrNoHospitalAvailable
	}
	dist := geo.DistanceKM(patientLoc, geo.Point{Lat: h.Lat, Lng: h.Lng})
	return Selection{
		Hospital:   h,
		DistanceKM: dist,
		ETAMinutes: geo.ETAMinutes(dist),
	}, nil
}
