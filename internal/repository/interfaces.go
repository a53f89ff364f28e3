package repository

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/rental-billing/internal/domain"
)

// Store groups the repositories and runs units of work atomically.
type Store interface {
	Payments() PaymentRepository
	Invoices() InvoiceRepository
	Appointments() AppointmentRepository
	Leases() LeaseRepository
	Properties() PropertyRepository
	Contacts() ContactRepository
	Reminders() ReminderRepository
	Audit() AuditRepository
	Settings() SettingsRepository

	// WithinTx runs fn against a Store bound to one transaction. A non-nil
	// error from fn rolls everything back. Nested calls join the outer
	// transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Cursor is the sort key of the last row of a keyset page. The zero Cursor
// starts at the beginning.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// Before reports whether a row keyed (at, id) sorts after the cursor.
func (c Cursor) Before(at time.Time, id uuid.UUID) bool {
	if !at.Equal(c.At) {
		return c.At.Before(at)
	}
	return bytes.Compare(c.ID[:], id[:]) < 0
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create creates a new payment record. Returns ErrDuplicate when the
	// transaction id is taken.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByTransactionID retrieves a payment by its merchant transaction id
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)

	// GetByTransactionIDForUpdate is GetByTransactionID holding a row lock
	// until the surrounding transaction ends
	GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*domain.Payment, error)

	// Update persists status, provider fields and metadata
	Update(ctx context.Context, payment *domain.Payment) error

	// ListStale returns open payments untouched since before, least recently
	// updated first, starting after the cursor
	ListStale(ctx context.Context, before time.Time, after Cursor, limit int) ([]*domain.Payment, error)
}

// InvoiceRepository defines the interface for invoice data operations
type InvoiceRepository interface {
	// Create creates an invoice. Returns ErrDuplicate on a number or period collision.
	Create(ctx context.Context, invoice *domain.Invoice) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)

	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)

	Update(ctx context.Context, invoice *domain.Invoice) error

	// ExistsForPeriod reports whether the lease already has an invoice of the
	// type starting on periodStart
	ExistsForPeriod(ctx context.Context, leaseID uuid.UUID, invoiceType domain.InvoiceType, periodStart time.Time) (bool, error)

	// ListPendingDueBefore returns pending invoices whose due date is before
	// now, ordered by due date, starting after the cursor
	ListPendingDueBefore(ctx context.Context, now time.Time, after Cursor, limit int) ([]*domain.Invoice, error)
}

// AppointmentRepository defines the interface for appointment data operations
type AppointmentRepository interface {
	Create(ctx context.Context, appointment *domain.Appointment) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)

	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)

	Update(ctx context.Context, appointment *domain.Appointment) error

	// ListConfirmedBetween returns confirmed appointments scheduled in [from, to]
	ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*domain.Appointment, error)
}

// LeaseRepository defines the interface for lease data operations
type LeaseRepository interface {
	Create(ctx context.Context, lease *domain.Lease) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lease, error)

	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Lease, error)

	Update(ctx context.Context, lease *domain.Lease) error

	// ListActive returns every active lease
	ListActive(ctx context.Context) ([]*domain.Lease, error)

	// ListEndedBefore returns active leases whose end date is before the cutoff
	ListEndedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Lease, error)

	// HasOtherActive reports whether the property has an active lease other than exceptID
	HasOtherActive(ctx context.Context, propertyID, exceptID uuid.UUID) (bool, error)
}

// PropertyRepository covers the property fields billing reads and flips
type PropertyRepository interface {
	Create(ctx context.Context, property *domain.Property) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Property, error)

	SetStatus(ctx context.Context, id uuid.UUID, status domain.PropertyStatus) error
}

// ContactRepository resolves notification recipients
type ContactRepository interface {
	Create(ctx context.Context, contact *domain.Contact) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
}

// ReminderRepository records sent appointment reminders
type ReminderRepository interface {
	// SentSince reports whether a reminder of kind went out at or after since
	SentSince(ctx context.Context, appointmentID uuid.UUID, kind domain.ReminderKind, since time.Time) (bool, error)

	Record(ctx context.Context, reminder *domain.AppointmentReminder) error
}

// AuditRepository is the append-only change log
type AuditRepository interface {
	Record(ctx context.Context, entry *domain.AuditEntry) error

	ListByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]*domain.AuditEntry, error)
}

// SettingsRepository stores runtime business settings as key/value rows
type SettingsRepository interface {
	All(ctx context.Context) ([]domain.Setting, error)

	Upsert(ctx context.Context, key, value string, now time.Time) error
}
