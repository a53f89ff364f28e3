package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditCreated          AuditAction = "created"
	AuditUpdated          AuditAction = "updated"
	AuditPaymentApplied   AuditAction = "payment_applied"
	AuditFlaggedForReview AuditAction = "flagged_for_review"
)

type EntityType string

const (
	EntityPayment     EntityType = "payment"
	EntityInvoice     EntityType = "invoice"
	EntityAppointment EntityType = "appointment"
	EntityLease       EntityType = "lease"
	EntityProperty    EntityType = "property"
	EntitySettings    EntityType = "settings"
)

// AuditEntry is one row of the change log.
type AuditEntry struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	Action     AuditAction `json:"action" db:"action"`
	EntityType EntityType  `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID   `json:"entity_id" db:"entity_id"`
	Before     RawJSON     `json:"before,omitempty" db:"before_state"`
	After      RawJSON     `json:"after,omitempty" db:"after_state"`
	Note       string      `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// NewAuditEntry snapshots before and after as JSON. A nil side stays empty.
func NewAuditEntry(action AuditAction, entity EntityType, id uuid.UUID, before, after interface{}, now time.Time) *AuditEntry {
	return &AuditEntry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entity,
		EntityID:   id,
		Before:     snapshot(before),
		After:      snapshot(after),
		CreatedAt:  now,
	}
}

func snapshot(v interface{}) RawJSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
