package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/rental-billing/internal/domain"
)

const leaseColumns = `id, property_id, tenant_id, landlord_id, start_date, end_date, monthly_rent, status,
		approved_at, approved_by, created_at, updated_at`

type leaseRepository struct {
	db dbtx
}

func NewLeaseRepository(db *sqlx.DB) LeaseRepository {
	return &leaseRepository{db: db}
}

func (r *leaseRepository) Create(ctx context.Context, lease *domain.Lease) error {
	query := `
		INSERT INTO leases (` + leaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		lease.ID,
		lease.PropertyID,
		lease.TenantID,
		lease.LandlordID,
		dateOnly(lease.StartDate),
		dateOnly(lease.EndDate),
		lease.MonthlyRent,
		lease.Status,
		lease.ApprovedAt,
		lease.ApprovedBy,
		lease.CreatedAt,
		lease.UpdatedAt,
	)

	return translate(err)
}

func (r *leaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE id = $1`

	var lease domain.Lease
	if err := r.db.GetContext(ctx, &lease, query, id); err != nil {
		return nil, translate(err)
	}

	return &lease, nil
}

func (r *leaseRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE id = $1 FOR UPDATE`

	var lease domain.Lease
	if err := r.db.GetContext(ctx, &lease, query, id); err != nil {
		return nil, translate(err)
	}

	return &lease, nil
}

// Update persists status changes. The partial unique index on active leases
// surfaces as ErrDuplicate.
func (r *leaseRepository) Update(ctx context.Context, lease *domain.Lease) error {
	query := `
		UPDATE leases
		SET status = $2, approved_at = $3, approved_by = $4, updated_at = $5
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		lease.ID,
		lease.Status,
		lease.ApprovedAt,
		lease.ApprovedBy,
		lease.UpdatedAt,
	)

	return expectOne(res, err)
}

func (r *leaseRepository) ListActive(ctx context.Context) ([]*domain.Lease, error) {
	query := `
		SELECT ` + leaseColumns + `
		FROM leases
		WHERE status = 'active'
		ORDER BY created_at
	`

	var leases []*domain.Lease
	if err := r.db.SelectContext(ctx, &leases, query); err != nil {
		return nil, err
	}

	return leases, nil
}

func (r *leaseRepository) ListEndedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Lease, error) {
	query := `
		SELECT ` + leaseColumns + `
		FROM leases
		WHERE status = 'active' AND end_date < $1::date
		ORDER BY end_date
	`

	var leases []*domain.Lease
	if err := r.db.SelectContext(ctx, &leases, query, dateOnly(cutoff)); err != nil {
		return nil, err
	}

	return leases, nil
}

func (r *leaseRepository) HasOtherActive(ctx context.Context, propertyID, exceptID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM leases
			WHERE property_id = $1 AND status = 'active' AND id <> $2
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, propertyID, exceptID); err != nil {
		return false, err
	}

	return exists, nil
}
