// Package dispatch implements the hospital-selection, ambulance-assignment,
// and vitals-publishing workflow of §4.4.
package dispatch

import (
	"sync"

	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// ActiveDispatches is the mutex-protected map of in-flight dispatches
// described in §3/§5. Reads (IsStopped) take the read lock; mutations take
// the write lock, following the fast-read/exclusive-write split the teacher
// applies to its own connection pool map.
type ActiveDispatches struct {
	mu      sync.RWMutex
	records map[string]*models.DispatchRecord
	gauge   prometheus.Gauge // nil unless SetMetrics was called
}

func NewActiveDispatches() *ActiveDispatches {
	return &ActiveDispatches{records: make(map[string]*models.DispatchRecord)}
}

func (a *ActiveDispatches) Register(rec *models.DispatchRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[rec.IncidentID] = rec
	a.observeLocked()
}

func (a *ActiveDispatches) Remove(incidentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, incidentID)
	a.observeLocked()
}

func (a *ActiveDispatches) observeLocked() {
	if a.gauge != nil {
		a.gauge.Set(float64(len(a.records)))
	}
}

// StopMonitoring flips the StopMonitoring flag for incidentID, letting the
// vitals task exit at its next 2-second check.
func (a *ActiveDispatches) StopMonitoring(incidentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec, ok := a.records[incidentID]; ok {
		rec.StopMonitoring = true
	}
}

// IsStopped reports whether incidentID's record has been marked to stop, or
// whether it no longer exists at all (treated as stopped).
func (a *ActiveDispatches) IsStopped(incidentID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.records[incidentID]
	if !ok {
		return true
	}
	return rec.StopMonitoring
}

func (a *ActiveDispatches) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}
