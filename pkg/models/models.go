// Package models holds the data-model types owned by a single component's
// process rather than carried on the wire (§3).
package models

import "github.com/mattw23n/emergency-dispatch-app/pkg/money"

// Hospital is a row in dispatch's local hospital table. Capacity is a hint
// used for scoring only — it is never decremented on assignment.
type Hospital struct {
	ID       string
	Name     string
	Lat      float64
	Lng      float64
	Capacity int
}

// DispatchRecord is the in-memory record of one active ambulance dispatch.
// Exactly one vitals-monitor task exists per DispatchRecord while
// StopMonitoring is false.
type DispatchRecord struct {
	IncidentID     string
	PatientID      string
	UnitID         string
	HospitalID     string
	StopMonitoring bool
}

// BillingStatus is the lifecycle state of a BillingRecord.
type BillingStatus string

const (
	BillingPending   BillingStatus = "PENDING"
	BillingPaid      BillingStatus = "PAID"
	BillingCancelled BillingStatus = "CANCELLED"
)

// BillingRecord mirrors the row persisted by the billing store. Status is
// monotonic along PENDING→PAID or PENDING→CANCELLED; PaymentReference is
// set if and only if Status == BillingPaid.
type BillingRecord struct {
	BillingID        string
	IncidentID       string
	PatientID        string
	Amount           money.Cents
	Status           BillingStatus
	InsuranceVerified bool
	PaymentReference string // empty unless Status == BillingPaid
}
