package billing

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
	"github.com/mattw23n/emergency-dispatch-app/pkg/money"
)

// BillingStore persists the row a saga run owns, per §3's BillingRecord and
// §4.5's Create/Update steps.
type BillingStore interface {
	Create(ctx context.Context, incidentID, patientID string, amount money.Cents) (billingID string, err error)
	MarkPaid(ctx context.Context, billingID, paymentReference string) error
	MarkCancelled(ctx context.Context, billingID string) error
	Get(ctx context.Context, billingID string) (models.BillingRecord, error)
}

// PostgresStore is the production BillingStore, grounded on the teacher's
// pkg/database connection pool.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, incidentID, patientID string, amount money.Cents) (string, error) {
	billingID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO billing_records (billing_id, incident_id, patient_id, amount_cents, status) VALUES ($1, $2, $3, $4, $5)`,
		billingID, incidentID, patientID, int64(amount), models.BillingPending)
	if err != nil {
		return "", fmt.Errorf("create billing row: %w", err)
	}
	return billingID, nil
}

func (s *PostgresStore) MarkPaid(ctx context.Context, billingID, paymentReference string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE billing_records SET status = $1, payment_reference = $2 WHERE billing_id = $3 AND status = $4`,
		models.BillingPaid, paymentReference, billingID, models.BillingPending)
	if err != nil {
		return fmt.Errorf("mark billing row paid: %w", err)
	}
	return checkRowsAffected(res, billingID)
}

func (s *PostgresStore) MarkCancelled(ctx context.Context, billingID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE billing_records SET status = $1 WHERE billing_id = $2 AND status <> $3`,
		models.BillingCancelled, billingID, models.BillingPaid)
	if err != nil {
		return fmt.Errorf("mark billing row cancelled: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, billingID string) (models.BillingRecord, error) {
	var rec models.BillingRecord
	var paymentRef sql.NullString
	var amountCents int64
	row := s.db.QueryRowContext(ctx,
		`SELECT billing_id, incident_id, patient_id, amount_cents, status, payment_reference FROM billing_records WHERE billing_id = $1`,
		billingID)
	if err := row.Scan(&rec.BillingID, &rec.IncidentID, &rec.PatientID, &amountCents, &rec.Status, &paymentRef); err != nil {
		return models.BillingRecord{}, err
	}
	rec.Amount = money.Cents(amountCents)
	rec.PaymentReference = paymentRef.String
	return rec, nil
}

func checkRowsAffected(res sql.Result, billingID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("billing row %s not found or not in expected state", billingID)
	}
	return nil
}

// MemoryStore is the in-process BillingStore used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.BillingRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.BillingRecord)}
}

func (s *MemoryStore) Create(_ context.Context, incidentID, patientID string, amount money.Cents) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	billingID := uuid.NewString()
	s.records[billingID] = &models.BillingRecord{
		BillingID:  billingID,
		IncidentID: incidentID,
		PatientID:  patientID,
		Amount:     amount,
		Status:     models.BillingPending,
	}
	return billingID, nil
}

func (s *MemoryStore) MarkPaid(_ context.Context, billingID, paymentReference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[billingID]
	if !ok {
		return fmt.Errorf("billing row %s not found", billingID)
	}
	rec.Status = models.BillingPaid
	rec.PaymentReference = paymentReference
	return nil
}

func (s *MemoryStore) MarkCancelled(_ context.Context, billingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[billingID]
	if !ok {
		return fmt.Errorf("billing row %s not found", billingID)
	}
	rec.Status = models.BillingCancelled
	return nil
}

func (s *MemoryStore) Get(_ context.Context, billingID string) (models.BillingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[billingID]
	if !ok {
		return models.BillingRecord{}, fmt.Errorf("billing row %s not found", billingID)
	}
	return *rec, nil
}

// FailingMarkPaidStore wraps a MemoryStore but fails every MarkPaid call, for
// exercising §8 scenario 4 (DB failure after payment).
type FailingMarkPaidStore struct {
	*MemoryStore
}

func NewFailingMarkPaidStore() *FailingMarkPaidStore {
	return &FailingMarkPaidStore{MemoryStore: NewMemoryStore()}
}

func (s *FailingMarkPaidStore) MarkPaid(context.Context, string, string) error {
	return fmt.Errorf("database update to PAID failed")
}
