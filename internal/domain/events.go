package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventPaymentConfirmed    EventType = "payment.confirmed"
	EventInvoiceGenerated    EventType = "invoice.generated"
	EventInvoiceOverdue      EventType = "invoice.overdue"
	EventAppointmentReminder EventType = "appointment.reminder"
	EventLeaseApproved       EventType = "lease.approved"
)

// Recipient roles used when one change notifies several parties.
const (
	RoleTenant   = "tenant"
	RoleLandlord = "landlord"
	RoleClient   = "client"
)

// Event is what the billing flows hand to the notification dispatcher.
// Delivery is best effort and never blocks a state change.
type Event struct {
	ID            uuid.UUID        `json:"id"`
	Type          EventType        `json:"type"`
	RecipientID   uuid.UUID        `json:"recipient_id"`
	RecipientName string           `json:"recipient_name"`
	RecipientRole string           `json:"recipient_role,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	ScheduledAt   *time.Time       `json:"scheduled_at,omitempty"`
	Reference     string           `json:"reference,omitempty"`
	PayableType   PayableKind      `json:"payable_type,omitempty"`
	PayableID     *uuid.UUID       `json:"payable_id,omitempty"`
	ReminderKind  ReminderKind     `json:"reminder_kind,omitempty"`
}

func NewEvent(t EventType, recipient Contact, now time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          t,
		RecipientID:   recipient.ID,
		RecipientName: recipient.Name,
		OccurredAt:    now,
	}
}

func (e Event) WithAmount(amount decimal.Decimal, currency string) Event {
	e.Amount = &amount
	e.Currency = currency
	return e
}

func (e Event) WithPayable(ref PayableRef) Event {
	id := ref.ID
	e.PayableType = ref.Kind
	e.PayableID = &id
	return e
}

func (e Event) WithDueDate(due time.Time) Event {
	e.DueDate = &due
	return e
}

func (e Event) WithRole(role string) Event {
	e.RecipientRole = role
	return e
}
