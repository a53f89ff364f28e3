package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

type PaymentType string

const (
	PaymentTypeVisit       PaymentType = "visit"
	PaymentTypeRent        PaymentType = "rent"
	PaymentTypeWater       PaymentType = "water"
	PaymentTypeElectricity PaymentType = "electricity"
	PaymentTypeDeposit     PaymentType = "deposit"
	PaymentTypeOther       PaymentType = "other"
)

type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
)

// ErrInvalidTransition is returned by entity mutators that refuse a state change.
var ErrInvalidTransition = errors.New("invalid status transition")

// Payment is a single attempt to settle a payable through the gateway.
type Payment struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	TransactionID         string          `json:"transaction_id" db:"transaction_id"`
	UserID                uuid.UUID       `json:"user_id" db:"user_id"`
	PayableType           PayableKind     `json:"payable_type" db:"payable_type"`
	PayableID             uuid.UUID       `json:"payable_id" db:"payable_id"`
	Amount                decimal.Decimal `json:"amount" db:"amount"`
	Currency              string          `json:"currency" db:"currency"`
	Type                  PaymentType     `json:"type" db:"type"`
	Method                PaymentMethod   `json:"method" db:"method"`
	Status                PaymentStatus   `json:"status" db:"status"`
	Provider              string          `json:"provider" db:"provider"`
	ProviderTransactionID string          `json:"provider_transaction_id" db:"provider_transaction_id"`
	ProviderResponse      RawJSON         `json:"provider_response,omitempty" db:"provider_response"`
	PhoneNumber           string          `json:"phone_number" db:"phone_number"`
	ErrorMessage          string          `json:"error_message,omitempty" db:"error_message"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	DueDate               *time.Time      `json:"due_date,omitempty" db:"due_date"`
	Metadata              Metadata        `json:"metadata,omitempty" db:"metadata"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// Payable returns the tagged reference to the entity this payment settles.
func (p *Payment) Payable() PayableRef {
	return PayableRef{Kind: p.PayableType, ID: p.PayableID}
}

// IsTerminal reports whether the payment can no longer change state.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

// IsOpen reports whether the payment is still waiting on the provider.
func (p *Payment) IsOpen() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusProcessing
}

// MarkProcessing records that the provider acknowledged the payment request.
func (p *Payment) MarkProcessing(providerTransactionID string, response RawJSON, now time.Time) error {
	if p.Status != PaymentStatusPending {
		return fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, p.TransactionID, p.Status)
	}
	p.Status = PaymentStatusProcessing
	p.ProviderTransactionID = providerTransactionID
	p.ProviderResponse = response
	p.UpdatedAt = now
	return nil
}

// Complete moves an open payment to completed. Amount and payable are left
// untouched here and are immutable afterwards.
func (p *Payment) Complete(method PaymentMethod, operatorID string, response RawJSON, now time.Time) error {
	if !p.IsOpen() {
		return fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, p.TransactionID, p.Status)
	}
	p.Status = PaymentStatusCompleted
	p.CompletedAt = &now
	if method != "" {
		p.Method = method
	}
	if operatorID != "" {
		p.ProviderTransactionID = operatorID
	}
	if len(response) > 0 {
		p.ProviderResponse = response
	}
	p.ErrorMessage = ""
	p.UpdatedAt = now
	return nil
}

// Fail moves an open payment to failed with a human readable reason.
func (p *Payment) Fail(reason string, response RawJSON, now time.Time) error {
	if !p.IsOpen() {
		return fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, p.TransactionID, p.Status)
	}
	p.Status = PaymentStatusFailed
	p.ErrorMessage = reason
	if len(response) > 0 {
		p.ProviderResponse = response
	}
	p.UpdatedAt = now
	return nil
}

// Cancel abandons an open payment at the payer's request.
func (p *Payment) Cancel(now time.Time) error {
	if !p.IsOpen() {
		return fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, p.TransactionID, p.Status)
	}
	p.Status = PaymentStatusCancelled
	p.UpdatedAt = now
	return nil
}

// SetMeta sets a metadata key, allocating the map on first use.
func (p *Payment) SetMeta(key string, value interface{}) {
	if p.Metadata == nil {
		p.Metadata = Metadata{}
	}
	p.Metadata[key] = value
}

// PaymentTypeForInvoice maps an invoice type to the payment type recorded for it.
func PaymentTypeForInvoice(t InvoiceType) PaymentType {
	switch t {
	case InvoiceTypeRent:
		return PaymentTypeRent
	case InvoiceTypeWater:
		return PaymentTypeWater
	case InvoiceTypeElectricity:
		return PaymentTypeElectricity
	default:
		return PaymentTypeOther
	}
}

// DTOs for requests and responses

type InitiatePaymentRequest struct {
	PayableType string `json:"payable_type" validate:"required,oneof=appointment invoice"`
	PayableID   string `json:"payable_id" validate:"required,uuid"`
	Phone       string `json:"phone" validate:"required,min=8,max=20"`
	Method      string `json:"method" validate:"omitempty,oneof=mobile_money card"`
}

type InitiatePaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	PaymentToken  string `json:"payment_token"`
}

type PaymentStatusResponse struct {
	TransactionID string          `json:"transaction_id"`
	Status        PaymentStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PayableType   PayableKind     `json:"payable_type"`
	PayableID     uuid.UUID       `json:"payable_id"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

func NewPaymentStatusResponse(p *Payment) *PaymentStatusResponse {
	return &PaymentStatusResponse{
		TransactionID: p.TransactionID,
		Status:        p.Status,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PayableType:   p.PayableType,
		PayableID:     p.PayableID,
		ErrorMessage:  p.ErrorMessage,
		CompletedAt:   p.CompletedAt,
	}
}
