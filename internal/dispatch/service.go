package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/geo"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/messages"
	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
	"github.com/mattw23n/emergency-dispatch-app/pkg/monitoring"
)

const QueueRequestAmbulance = "dispatch-requests"

const defaultSeverity = 1

// Service consumes cmd.dispatch.request_ambulance and runs the per-incident
// workflow of §4.4.
type Service struct {
	conn         *broker.Conn
	hospitals    HospitalStore
	places       PlacesClient
	active       *ActiveDispatches
	cancelled    atomic.Bool
	logger       logging.Logger
	wg           sync.WaitGroup
	timings      workflowTimings
	newPublisher func() (broker.Publishable, error)
	metrics      *monitoring.DomainMetrics
}

// SetMetrics wires dm into the consume/publish path and into the
// active-dispatch-workflow gauge, which is updated on every Register/Remove.
// Every publisher this service opens afterward — for the request handler,
// the per-incident workflow, and the vitals task — is instrumented, since
// all three share newPublisher.
func (s *Service) SetMetrics(dm *monitoring.DomainMetrics) {
	s.metrics = dm
	s.active.gauge = dm.ActiveDispatch
	orig := s.newPublisher
	s.newPublisher = func() (broker.Publishable, error) {
		pub, err := orig()
		if err != nil {
			return nil, err
		}
		return monitoring.InstrumentPublisher(dm, pub), nil
	}
}

func NewService(conn *broker.Conn, hospitals HospitalStore, places PlacesClient, logger logging.Logger) *Service {
	return &Service{
		conn:      conn,
		hospitals: hospitals,
		places:    places,
		active:    NewActiveDispatches(),
		logger:    logger,
		timings:   defaultTimings(),
		newPublisher: func() (broker.Publishable, error) {
			return conn.NewPublisher()
		},
	}
}

func (s *Service) Topology() broker.Topology {
	return broker.Topology{
		Queues: []broker.QueueBinding{
			{Name: QueueRequestAmbulance, RoutingKeys: []string{messages.RoutingDispatchRequest}},
		},
	}
}

// Run blocks consuming QueueRequestAmbulance until ctx is cancelled, then
// flips the process-wide cancellation flag and waits for every in-flight
// workflow/vitals task to observe it at its next sleep boundary.
func (s *Service) Run(ctx context.Context) error {
	pub, err := s.newPublisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	consumeHandler := s.makeHandler(pub)
	if s.metrics != nil {
		consumeHandler = monitoring.InstrumentHandler(s.metrics, QueueRequestAmbulance, consumeHandler)
	}

	err = s.conn.Consume(ctx, QueueRequestAmbulance, consumeHandler)
	s.cancelled.Store(true)
	s.wg.Wait()
	return err
}

func (s *Service) makeHandler(pub broker.Publishable) broker.Handler {
	return func(ctx context.Context, routingKey, correlationID string, body []byte) broker.HandlerResult {
		var req messages.RequestAmbulance
		if err := json.Unmarshal(body, &req); err != nil {
			s.logger.WithError(err).Warn("dropping malformed ambulance request")
			return broker.ResultDrop
		}
		if req.IncidentID == "" || req.PatientID == "" {
			s.logger.Warn("dropping ambulance request missing required fields")
			return broker.ResultDrop
		}

		patientLoc := geo.Point{Lat: req.Location.Lat, Lng: req.Location.Lng}
		sel, err := SelectHospital(ctx, s.hospitals, s.places, patientLoc, defaultSeverity)
		if err != nil {
			s.logger.WithError(err).WithField("incident_id", req.IncidentID).Warn("no hospital available for dispatch")
			return broker.ResultDrop
		}

		dispatchID := uuid.NewString()
		unitID := "amb-" + dispatchID[:8]

		rec := &models.DispatchRecord{
			IncidentID: req.IncidentID,
			PatientID:  req.PatientID,
			UnitID:     unitID,
			HospitalID: sel.Hospital.ID,
		}
		s.active.Register(rec)

		ic := incidentContext{
			incidentID: req.IncidentID,
			dispatchID: dispatchID,
			patientID:  req.PatientID,
			unitID:     unitID,
			hospitalID: sel.Hospital.ID,
		}

		eta := sel.ETAMinutes
		if err := s.publishLifecycleEvent(pub, ic, "unit_assigned", messages.RoutingDispatchUnitAssigned, &eta); err != nil {
			s.logger.WithError(err).Error("failed to publish unit_assigned")
			s.active.Remove(req.IncidentID)
			return broker.ResultRetry
		}
		if err := s.publishLifecycleEvent(pub, ic, "enroute", messages.RoutingDispatchEnroute, &eta); err != nil {
			s.logger.WithError(err).Error("failed to publish enroute")
			s.active.Remove(req.IncidentID)
			return broker.ResultRetry
		}

		s.wg.Add(1)
		go s.runWorkflow(ic, s.timings)

		return broker.ResultOK
	}
}
