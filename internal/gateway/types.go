package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/pkg/utils"
)

// ErrUnavailable covers network errors, timeouts, 5xx answers and bodies
// that cannot be parsed. The outcome of the call is unknown.
var ErrUnavailable = errors.New("gateway: unavailable")

// RejectedError is a definitive refusal from the provider.
type RejectedError struct {
	Code    string
	Message string
	Raw     domain.RawJSON
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway: rejected with code %s: %s", e.Code, e.Message)
}

// Status is the provider's verdict on a transaction, reduced to what the
// reconciler acts on.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// ClassifyStatus maps a provider status string onto Status. Anything not
// explicitly final is pending.
func ClassifyStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ACCEPTED", "APPROVED", "SUCCESSFUL", "SUCCESS":
		return StatusSucceeded
	case "REFUSED", "FAILED", "CANCELED", "CANCELLED":
		return StatusFailed
	default:
		return StatusPending
	}
}

type InitRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Metadata      string
}

type InitResult struct {
	PaymentURL   string
	PaymentToken string
	Raw          domain.RawJSON
}

type CheckResult struct {
	Status        Status
	RawStatus     string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	OperatorID    string
	Message       string
	Raw           domain.RawJSON
}

// Gateway is the outbound contract to the mobile-money provider.
type Gateway interface {
	Initiate(ctx context.Context, req InitRequest) (*InitResult, error)
	Check(ctx context.Context, transactionID string) (*CheckResult, error)
}

// flexString accepts a JSON string or number. The provider is not
// consistent about which one it sends for codes and amounts.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		*f = flexString(strings.Trim(string(b), `"`))
		return nil
	}
	*f = flexString(b)
	return nil
}

func (f flexString) String() string { return string(f) }

func (f flexString) Decimal() (decimal.Decimal, error) {
	if f == "" {
		return decimal.Zero, errors.New("gateway: empty amount")
	}
	return utils.DecimalFromString(string(f))
}
