package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	AppointmentStatusPendingPayment AppointmentStatus = "pending_payment"
	AppointmentStatusPaid           AppointmentStatus = "paid"
	AppointmentStatusConfirmed      AppointmentStatus = "confirmed"
	AppointmentStatusCompleted      AppointmentStatus = "completed"
	AppointmentStatusCancelled      AppointmentStatus = "cancelled"
	AppointmentStatusNoShow         AppointmentStatus = "no_show"
)

type AppointmentPaymentStatus string

const (
	AppointmentUnpaid AppointmentPaymentStatus = "unpaid"
	AppointmentPaid   AppointmentPaymentStatus = "paid"
	AppointmentFailed AppointmentPaymentStatus = "failed"
)

// appointmentRank orders the forward path. Cancelled and no_show sit outside it.
var appointmentRank = map[AppointmentStatus]int{
	AppointmentStatusPendingPayment: 0,
	AppointmentStatusPaid:           1,
	AppointmentStatusConfirmed:      2,
	AppointmentStatusCompleted:      3,
}

// Appointment is a paid property visit.
type Appointment struct {
	ID               uuid.UUID                `json:"id" db:"id"`
	ClientID         uuid.UUID                `json:"client_id" db:"client_id"`
	PropertyID       uuid.UUID                `json:"property_id" db:"property_id"`
	ScheduledAt      time.Time                `json:"scheduled_at" db:"scheduled_at"`
	Status           AppointmentStatus        `json:"status" db:"status"`
	PaymentStatus    AppointmentPaymentStatus `json:"payment_status" db:"payment_status"`
	AmountPaid       decimal.Decimal          `json:"amount_paid" db:"amount_paid"`
	PaymentReference string                   `json:"payment_reference,omitempty" db:"payment_reference"`
	PaidAt           *time.Time               `json:"paid_at,omitempty" db:"paid_at"`
	ReminderSentAt   *time.Time               `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	CreatedAt        time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at" db:"updated_at"`
}

// CanTransitionTo enforces forward-only movement along
// pending_payment, paid, confirmed, completed. Cancelled and no_show are
// reachable from anything not yet completed.
func (a *Appointment) CanTransitionTo(next AppointmentStatus) bool {
	switch a.Status {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return false
	}
	if next == AppointmentStatusCancelled || next == AppointmentStatusNoShow {
		return true
	}
	cur, ok := appointmentRank[a.Status]
	if !ok {
		return false
	}
	to, ok := appointmentRank[next]
	return ok && to > cur
}

func (a *Appointment) transition(next AppointmentStatus, now time.Time) error {
	if !a.CanTransitionTo(next) {
		return fmt.Errorf("%w: appointment %s from %s to %s", ErrInvalidTransition, a.ID, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// IsPayable reports whether a visit fee can be collected.
func (a *Appointment) IsPayable() bool {
	return a.Status == AppointmentStatusPendingPayment
}

// ConfirmPayment records the visit fee and confirms the visit.
func (a *Appointment) ConfirmPayment(amount decimal.Decimal, reference string, now time.Time) error {
	if a.PaymentStatus == AppointmentPaid {
		return fmt.Errorf("%w: appointment %s already paid by %s", ErrInvalidTransition, a.ID, a.PaymentReference)
	}
	if err := a.transition(AppointmentStatusConfirmed, now); err != nil {
		return err
	}
	a.PaymentStatus = AppointmentPaid
	a.AmountPaid = amount
	a.PaymentReference = reference
	a.PaidAt = &now
	return nil
}

// MarkPaymentFailed leaves the status alone so the client can retry.
func (a *Appointment) MarkPaymentFailed(now time.Time) {
	if a.PaymentStatus == AppointmentPaid {
		return
	}
	a.PaymentStatus = AppointmentFailed
	a.UpdatedAt = now
}

func (a *Appointment) Complete(now time.Time) error {
	return a.transition(AppointmentStatusCompleted, now)
}

func (a *Appointment) Cancel(now time.Time) error {
	return a.transition(AppointmentStatusCancelled, now)
}

func (a *Appointment) MarkNoShow(now time.Time) error {
	return a.transition(AppointmentStatusNoShow, now)
}

type ReminderKind string

const (
	Reminder24h ReminderKind = "24h"
	Reminder1h  ReminderKind = "1h"
)

// ParseReminderKind validates a reminder kind.
func ParseReminderKind(s string) (ReminderKind, error) {
	switch ReminderKind(s) {
	case Reminder24h, Reminder1h:
		return ReminderKind(s), nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", s)
}

// Window returns the lead-time range, relative to now, that an appointment
// must fall into to receive this reminder.
func (k ReminderKind) Window() (from, to time.Duration) {
	switch k {
	case Reminder1h:
		return 55 * time.Minute, 65 * time.Minute
	default:
		return 23 * time.Hour, 25 * time.Hour
	}
}

// Lookback is how far back a recorded reminder suppresses a resend: twice the
// window's half-width.
func (k ReminderKind) Lookback() time.Duration {
	from, to := k.Window()
	return to - from
}

// AppointmentReminder records that a reminder of a kind went out.
type AppointmentReminder struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	AppointmentID uuid.UUID    `json:"appointment_id" db:"appointment_id"`
	Kind          ReminderKind `json:"kind" db:"kind"`
	SentAt        time.Time    `json:"sent_at" db:"sent_at"`
}
