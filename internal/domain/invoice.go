package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceType string

const (
	InvoiceTypeRent        InvoiceType = "rent"
	InvoiceTypeWater       InvoiceType = "water"
	InvoiceTypeElectricity InvoiceType = "electricity"
	InvoiceTypeOther       InvoiceType = "other"
)

// IsLandlordIssued reports whether a landlord raises this type by hand. Rent
// comes from the billing jobs only.
func (t InvoiceType) IsLandlordIssued() bool {
	switch t {
	case InvoiceTypeWater, InvoiceTypeElectricity, InvoiceTypeOther:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	InvoiceStatusPending       InvoiceStatus = "pending"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

// Invoice is a billable charge against a lease for one period.
type Invoice struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	InvoiceNumber    string          `json:"invoice_number" db:"invoice_number"`
	LeaseID          uuid.UUID       `json:"lease_id" db:"lease_id"`
	TenantID         uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	Type             InvoiceType     `json:"type" db:"type"`
	Description      string          `json:"description" db:"description"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	AmountPaid       decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	DueDate          time.Time       `json:"due_date" db:"due_date"`
	PeriodStart      time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd        time.Time       `json:"period_end" db:"period_end"`
	Status           InvoiceStatus   `json:"status" db:"status"`
	PaidAt           *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	PaymentReference string          `json:"payment_reference,omitempty" db:"payment_reference"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Outstanding is the balance still owed. Never negative.
func (i *Invoice) Outstanding() decimal.Decimal {
	rest := i.Amount.Sub(i.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// IsPayable reports whether a new payment may be started against the invoice.
func (i *Invoice) IsPayable() bool {
	switch i.Status {
	case InvoiceStatusPending, InvoiceStatusOverdue, InvoiceStatusPartiallyPaid:
		return true
	}
	return false
}

// AcceptsPayment reports whether a confirmed payment may still be applied.
// Paid and cancelled invoices are closed for accounting.
func (i *Invoice) AcceptsPayment() bool {
	return i.Status != InvoiceStatusPaid && i.Status != InvoiceStatusCancelled
}

// EffectiveStatus projects overdue from a pending invoice whose due date has
// passed. The stored status may lag until the overdue job runs.
func (i *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status == InvoiceStatusPending && i.DueDate.Before(now) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// MarkOverdue materializes the overdue projection.
func (i *Invoice) MarkOverdue(now time.Time) error {
	if i.Status != InvoiceStatusPending || !i.DueDate.Before(now) {
		return fmt.Errorf("%w: invoice %s is %s due %s", ErrInvalidTransition,
			i.InvoiceNumber, i.Status, i.DueDate.Format(time.RFC3339))
	}
	i.Status = InvoiceStatusOverdue
	i.UpdatedAt = now
	return nil
}

// ApplyPayment adds a confirmed amount. amount_paid only ever grows.
func (i *Invoice) ApplyPayment(amount decimal.Decimal, reference string, now time.Time) error {
	if !i.AcceptsPayment() {
		return fmt.Errorf("%w: invoice %s is %s", ErrInvalidTransition, i.InvoiceNumber, i.Status)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("invoice %s: payment amount must be positive, got %s", i.InvoiceNumber, amount)
	}

	i.AmountPaid = i.AmountPaid.Add(amount)
	i.PaymentReference = reference
	if i.AmountPaid.GreaterThanOrEqual(i.Amount) {
		i.Status = InvoiceStatusPaid
		i.PaidAt = &now
	} else {
		i.Status = InvoiceStatusPartiallyPaid
	}
	i.UpdatedAt = now
	return nil
}

// Cancel voids an invoice that has not received any money.
func (i *Invoice) Cancel(now time.Time) error {
	if !i.AmountPaid.IsZero() || !i.AcceptsPayment() {
		return fmt.Errorf("%w: invoice %s is %s with %s paid", ErrInvalidTransition,
			i.InvoiceNumber, i.Status, i.AmountPaid)
	}
	i.Status = InvoiceStatusCancelled
	i.UpdatedAt = now
	return nil
}

// MonthPeriod returns the first and last calendar day of the month holding t,
// in t's location.
func MonthPeriod(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, -1)
	return start, end
}

// CreateInvoiceRequest is a landlord-issued utility charge against a lease.
type CreateInvoiceRequest struct {
	LandlordID  string          `json:"landlord_id" validate:"required,uuid"`
	Type        string          `json:"type" validate:"required,oneof=water electricity other"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=500"`
	DueDate     string          `json:"due_date" validate:"required,datetime=2006-01-02"`
}
