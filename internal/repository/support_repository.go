package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/rental-billing/internal/domain"
)

type propertyRepository struct {
	db dbtx
}

func (r *propertyRepository) Create(ctx context.Context, p *domain.Property) error {
	query := `
		INSERT INTO properties (id, landlord_id, title, status)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, p.ID, p.LandlordID, p.Title, p.Status)
	return translate(err)
}

func (r *propertyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	query := `SELECT id, landlord_id, title, status FROM properties WHERE id = $1`

	var p domain.Property
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, translate(err)
	}

	return &p, nil
}

func (r *propertyRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.PropertyStatus) error {
	query := `UPDATE properties SET status = $2, updated_at = NOW() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, status)
	return expectOne(res, err)
}

type contactRepository struct {
	db dbtx
}

func (r *contactRepository) Create(ctx context.Context, c *domain.Contact) error {
	query := `INSERT INTO users (id, name, email, phone) VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Email, c.Phone)
	return translate(err)
}

func (r *contactRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	query := `SELECT id, name, email, phone FROM users WHERE id = $1`

	var c domain.Contact
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, translate(err)
	}

	return &c, nil
}

type reminderRepository struct {
	db dbtx
}

func (r *reminderRepository) SentSince(ctx context.Context, appointmentID uuid.UUID, kind domain.ReminderKind, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointment_reminders
			WHERE appointment_id = $1 AND kind = $2 AND sent_at >= $3
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, appointmentID, kind, since); err != nil {
		return false, err
	}

	return exists, nil
}

func (r *reminderRepository) Record(ctx context.Context, reminder *domain.AppointmentReminder) error {
	query := `
		INSERT INTO appointment_reminders (id, appointment_id, kind, sent_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, reminder.ID, reminder.AppointmentID, reminder.Kind, reminder.SentAt)
	return translate(err)
}

type auditRepository struct {
	db dbtx
}

func (r *auditRepository) Record(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, before_state, after_state, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Before,
		entry.After,
		entry.Note,
		entry.CreatedAt,
	)

	return translate(err)
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, action, entity_type, entity_id, before_state, after_state, note, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at
	`

	var entries []*domain.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, entityType, entityID); err != nil {
		return nil, err
	}

	return entries, nil
}

type settingsRepository struct {
	db dbtx
}

func (r *settingsRepository) All(ctx context.Context) ([]domain.Setting, error) {
	query := `SELECT key, value, updated_at FROM settings ORDER BY key`

	var settings []domain.Setting
	if err := r.db.SelectContext(ctx, &settings, query); err != nil {
		return nil, err
	}

	return settings, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, key, value string, now time.Time) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, key, value, now)
	return err
}
