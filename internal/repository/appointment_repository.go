package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/rental-billing/internal/domain"
)

const appointmentColumns = `id, client_id, property_id, scheduled_at, status, payment_status, amount_paid,
		payment_reference, paid_at, reminder_sent_at, created_at, updated_at`

type appointmentRepository struct {
	db dbtx
}

func NewAppointmentRepository(db *sqlx.DB) AppointmentRepository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) Create(ctx context.Context, a *domain.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.ClientID,
		a.PropertyID,
		a.ScheduledAt,
		a.Status,
		a.PaymentStatus,
		a.AmountPaid,
		a.PaymentReference,
		a.PaidAt,
		a.ReminderSentAt,
		a.CreatedAt,
		a.UpdatedAt,
	)

	return translate(err)
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var a domain.Appointment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, translate(err)
	}

	return &a, nil
}

func (r *appointmentRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`

	var a domain.Appointment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, translate(err)
	}

	return &a, nil
}

func (r *appointmentRepository) Update(ctx context.Context, a *domain.Appointment) error {
	query := `
		UPDATE appointments
		SET status = $2, payment_status = $3, amount_paid = $4, payment_reference = $5,
			paid_at = $6, reminder_sent_at = $7, updated_at = $8
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Status,
		a.PaymentStatus,
		a.AmountPaid,
		a.PaymentReference,
		a.PaidAt,
		a.ReminderSentAt,
		a.UpdatedAt,
	)

	return expectOne(res, err)
}

func (r *appointmentRepository) ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*domain.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'confirmed' AND scheduled_at BETWEEN $1 AND $2
		ORDER BY scheduled_at
	`

	var appointments []*domain.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, from, to); err != nil {
		return nil, err
	}

	return appointments, nil
}
