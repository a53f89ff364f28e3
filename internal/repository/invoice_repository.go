package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/rental-billing/internal/domain"
)

const invoiceColumns = `id, invoice_number, lease_id, tenant_id, type, description, amount, amount_paid,
		due_date, period_start, period_end, status, paid_at, payment_reference, created_at, updated_at`

type invoiceRepository struct {
	db dbtx
}

func NewInvoiceRepository(db *sqlx.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.InvoiceNumber,
		invoice.LeaseID,
		invoice.TenantID,
		invoice.Type,
		invoice.Description,
		invoice.Amount,
		invoice.AmountPaid,
		invoice.DueDate,
		dateOnly(invoice.PeriodStart),
		dateOnly(invoice.PeriodEnd),
		invoice.Status,
		invoice.PaidAt,
		invoice.PaymentReference,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)

	return translate(err)
}

func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	var invoice domain.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, translate(err)
	}

	return &invoice, nil
}

func (r *invoiceRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`

	var invoice domain.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, translate(err)
	}

	return &invoice, nil
}

func (r *invoiceRepository) Update(ctx context.Context, invoice *domain.Invoice) error {
	query := `
		UPDATE invoices
		SET amount_paid = $2, status = $3, paid_at = $4, payment_reference = $5, updated_at = $6
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.AmountPaid,
		invoice.Status,
		invoice.PaidAt,
		invoice.PaymentReference,
		invoice.UpdatedAt,
	)

	return expectOne(res, err)
}

func (r *invoiceRepository) ExistsForPeriod(ctx context.Context, leaseID uuid.UUID, invoiceType domain.InvoiceType, periodStart time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM invoices
			WHERE lease_id = $1 AND type = $2 AND period_start = $3::date
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, leaseID, invoiceType, dateOnly(periodStart)); err != nil {
		return false, err
	}

	return exists, nil
}

func (r *invoiceRepository) ListPendingDueBefore(ctx context.Context, now time.Time, after Cursor, limit int) ([]*domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status = 'pending' AND due_date < $1
			AND (due_date, id) > ($2::date, $3)
		ORDER BY due_date, id
		LIMIT NULLIF($4, 0)
	`

	var invoices []*domain.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, now, dateOnly(after.At), after.ID, limit); err != nil {
		return nil, err
	}

	return invoices, nil
}
