package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// dbtx is the subset of *sqlx.DB and *sqlx.Tx the repositories need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

var (
	_ dbtx = (*sqlx.DB)(nil)
	_ dbtx = (*sqlx.Tx)(nil)
)

type sqlStore struct {
	db   *sqlx.DB
	q    dbtx
	inTx bool
}

// NewStore returns a Postgres-backed Store.
func NewStore(db *sqlx.DB) Store {
	return &sqlStore{db: db, q: db}
}

func (s *sqlStore) Payments() PaymentRepository         { return &paymentRepository{db: s.q} }
func (s *sqlStore) Invoices() InvoiceRepository         { return &invoiceRepository{db: s.q} }
func (s *sqlStore) Appointments() AppointmentRepository { return &appointmentRepository{db: s.q} }
func (s *sqlStore) Leases() LeaseRepository             { return &leaseRepository{db: s.q} }
func (s *sqlStore) Properties() PropertyRepository      { return &propertyRepository{db: s.q} }
func (s *sqlStore) Contacts() ContactRepository         { return &contactRepository{db: s.q} }
func (s *sqlStore) Reminders() ReminderRepository       { return &reminderRepository{db: s.q} }
func (s *sqlStore) Audit() AuditRepository              { return &auditRepository{db: s.q} }
func (s *sqlStore) Settings() SettingsRepository        { return &settingsRepository{db: s.q} }

func (s *sqlStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
