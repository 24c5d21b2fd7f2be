// Package messages defines the JSON wire types carried on every routing key
// in §6's broker topology, replacing the source's duck-typed message bodies
// with an explicit tagged variant per message kind.
package messages

// Routing keys, one constant per producer/consumer edge in the topology.
const (
	RoutingWearableData = "wearable.data"

	RoutingTriageAbnormal  = "triage.status.abnormal"
	RoutingTriageEmergency = "triage.status.emergency"

	RoutingNotificationSendAlert = "cmd.notification.send_alert"
	RoutingDispatchRequest       = "cmd.dispatch.request_ambulance"

	RoutingDispatchUnitAssigned      = "event.dispatch.unit_assigned"
	RoutingDispatchEnroute           = "event.dispatch.enroute"
	RoutingDispatchPatientOnboard    = "event.dispatch.patient_onboard"
	RoutingDispatchArrivedAtHospital = "event.dispatch.arrived_at_hospital"
	RoutingDispatchPatientVitals     = "dispatch.updates.patient_vitals"

	RoutingBillingInitiate = "cmd.billing.initiate"
	RoutingBillingComplete = "event.billing.completed"
	RoutingBillingFailed   = "event.billing.failed"
)

// Alert template identifiers (AlertCommand.template).
const (
	TemplateTriageAbnormal          = "TRIAGE_ABNORMAL"
	TemplateTriageEmergency         = "TRIAGE_EMERGENCY"
	TemplateDispatchUnitAssigned    = "DISPATCH_UNIT_ASSIGNED"
	TemplateDispatchEnroute         = "DISPATCH_ENROUTE"
	TemplateDispatchPatientOnboard  = "DISPATCH_PATIENT_ONBOARD"
	TemplateDispatchArrivedAtHosp   = "DISPATCH_ARRIVED_AT_HOSPITAL"
	TemplateBillingCompleted        = "BILLING_COMPLETED"
	TemplateBillingFailed           = "BILLING_FAILED"
)

// DispatchToTemplate maps a dispatch lifecycle routing key to its alert
// template, per §4.3's fixed routing-key-to-template table.
var DispatchToTemplate = map[string]string{
	RoutingDispatchUnitAssigned:      TemplateDispatchUnitAssigned,
	RoutingDispatchEnroute:           TemplateDispatchEnroute,
	RoutingDispatchPatientOnboard:    TemplateDispatchPatientOnboard,
	RoutingDispatchArrivedAtHospital: TemplateDispatchArrivedAtHosp,
}

// Location is the lat/lng pair carried on every location-bearing payload.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Metrics is the vital-sign reading shape shared by wearable.data and the
// triage/vitals events derived from it.
type Metrics struct {
	HeartRateBPM       int     `json:"heart_rate_bpm"`
	SpO2Pct            float64 `json:"spo2_pct"`
	RespirationRateBPM int     `json:"respiration_rate_bpm"`
	BodyTemperatureC   float64 `json:"body_temperature_c"`
	StepsSinceLast     int     `json:"steps_since_last"`
}

// Device identifies the wearable that produced a reading.
type Device struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

// VitalsReading is the wearable.data payload.
type VitalsReading struct {
	PatientID   string   `json:"patient_id"`
	Device      Device   `json:"device"`
	Location    Location `json:"location"`
	TimestampMs int64    `json:"timestamp"`
	Metrics     Metrics  `json:"metrics"`
}

// TriageStatus is published on triage.status.{abnormal|emergency}.
type TriageStatus struct {
	Type       string   `json:"type"`
	IncidentID string   `json:"incident_id"`
	PatientID  string   `json:"patient_id"`
	Status     string   `json:"status"`
	Metrics    Metrics  `json:"metrics"`
	Location   Location `json:"location"`
	Timestamp  string   `json:"ts"`
}

// SendAlert is the cmd.notification.send_alert command.
type SendAlert struct {
	Type       string         `json:"type"`
	IncidentID string         `json:"incident_id"`
	Template   string         `json:"template"`
	Vars       map[string]any `json:"vars"`
}

// RequestAmbulance is the cmd.dispatch.request_ambulance command.
type RequestAmbulance struct {
	Type       string   `json:"type"`
	IncidentID string   `json:"incident_id"`
	PatientID  string   `json:"patient_id"`
	Command    string   `json:"command"`
	Location   Location `json:"location"`
	Reason     string   `json:"reason"`
}

// DispatchEvent covers unit_assigned, enroute, patient_onboard, and
// arrived_at_hospital — they share one payload shape differing only in
// `status` and in which optional fields are populated.
type DispatchEvent struct {
	IncidentID string  `json:"incident_id"`
	DispatchID string  `json:"dispatch_id"`
	PatientID  string  `json:"patient_id"`
	UnitID     string  `json:"unit_id"`
	HospitalID *string `json:"hospital_id,omitempty"`
	Status     string  `json:"status"`
	ETAMinutes *int    `json:"eta_minutes,omitempty"`
	Timestamp  string  `json:"ts"`
}

// PatientVitalsUpdate is published periodically on
// dispatch.updates.patient_vitals while a dispatch is in flight.
type PatientVitalsUpdate struct {
	DispatchID string  `json:"dispatch_id"`
	PatientID  string  `json:"patient_id"`
	Vitals     Metrics `json:"vitals"`
	RecordedAt string  `json:"recorded_at"`
	Timestamp  int64   `json:"timestamp"`
}

// InitiateBilling is the cmd.billing.initiate command. Amount is optional on
// the wire: the events-manager orchestrator never computes a price itself
// (dispatch lifecycle events carry no cost data), so it omits Amount and
// lets the billing saga apply its configured default; a caller driving the
// saga directly (as in the documented NO_POLICY/declined/DB-failure test
// scenarios) sets Amount explicitly.
type InitiateBilling struct {
	Type       string   `json:"type"`
	IncidentID string   `json:"incident_id"`
	PatientID  string   `json:"patient_id"`
	HospitalID *string  `json:"hospital_id,omitempty"`
	Summary    *string  `json:"summary,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
}

// BillingEvent covers event.billing.completed and event.billing.failed.
type BillingEvent struct {
	BillingID        string  `json:"billing_id"`
	IncidentID       string  `json:"incident_id"`
	PatientID        string  `json:"patient_id"`
	AmountCents      int64   `json:"amount"`
	Status           string  `json:"status"`
	PaymentReference *string `json:"payment_reference,omitempty"`
	Error            *string `json:"error,omitempty"`
	Timestamp        string  `json:"timestamp"`
}
