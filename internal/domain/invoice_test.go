package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoice(amount, paid int64, status InvoiceStatus, due time.Time) *Invoice {
	return &Invoice{
		InvoiceNumber: "INV-20250101-ABC123",
		Amount:        decimal.NewFromInt(amount),
		AmountPaid:    decimal.NewFromInt(paid),
		Status:        status,
		DueDate:       due,
	}
}

func TestInvoiceApplyPayment(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		invoice      *Invoice
		amount       decimal.Decimal
		expectStatus InvoiceStatus
		expectPaid   decimal.Decimal
		expectErr    bool
	}{
		{
			name:         "full payment closes invoice",
			invoice:      newInvoice(150000, 0, InvoiceStatusPending, now),
			amount:       decimal.NewFromInt(150000),
			expectStatus: InvoiceStatusPaid,
			expectPaid:   decimal.NewFromInt(150000),
		},
		{
			name:         "partial payment",
			invoice:      newInvoice(150000, 0, InvoiceStatusOverdue, now),
			amount:       decimal.NewFromInt(50000),
			expectStatus: InvoiceStatusPartiallyPaid,
			expectPaid:   decimal.NewFromInt(50000),
		},
		{
			name:         "second partial completes",
			invoice:      newInvoice(150000, 100000, InvoiceStatusPartiallyPaid, now),
			amount:       decimal.NewFromInt(50000),
			expectStatus: InvoiceStatusPaid,
			expectPaid:   decimal.NewFromInt(150000),
		},
		{
			name:         "already paid is refused",
			invoice:      newInvoice(150000, 150000, InvoiceStatusPaid, now),
			amount:       decimal.NewFromInt(1),
			expectStatus: InvoiceStatusPaid,
			expectPaid:   decimal.NewFromInt(150000),
			expectErr:    true,
		},
		{
			name:         "cancelled is refused",
			invoice:      newInvoice(150000, 0, InvoiceStatusCancelled, now),
			amount:       decimal.NewFromInt(1),
			expectStatus: InvoiceStatusCancelled,
			expectPaid:   decimal.Zero,
			expectErr:    true,
		},
		{
			name:         "zero amount is refused",
			invoice:      newInvoice(150000, 0, InvoiceStatusPending, now),
			amount:       decimal.Zero,
			expectStatus: InvoiceStatusPending,
			expectPaid:   decimal.Zero,
			expectErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.invoice.ApplyPayment(tt.amount, "HC-REF", now)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectStatus, tt.invoice.Status)
			assert.True(t, tt.expectPaid.Equal(tt.invoice.AmountPaid),
				"Expected %v, but got %v", tt.expectPaid, tt.invoice.AmountPaid)
		})
	}
}

func TestInvoiceApplyPayment_SetsPaidAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	inv := newInvoice(1000, 0, InvoiceStatusPending, now)

	require.NoError(t, inv.ApplyPayment(decimal.NewFromInt(1000), "HC-1", now))
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, now, *inv.PaidAt)
	assert.Equal(t, "HC-1", inv.PaymentReference)
	assert.True(t, inv.Outstanding().IsZero())
}

func TestInvoiceEffectiveStatus(t *testing.T) {
	due := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, InvoiceStatusPending, newInvoice(1, 0, InvoiceStatusPending, due).EffectiveStatus(due))
	assert.Equal(t, InvoiceStatusOverdue, newInvoice(1, 0, InvoiceStatusPending, due).EffectiveStatus(due.Add(time.Second)))
	assert.Equal(t, InvoiceStatusPartiallyPaid, newInvoice(2, 1, InvoiceStatusPartiallyPaid, due).EffectiveStatus(due.AddDate(0, 1, 0)))
	assert.Equal(t, InvoiceStatusPaid, newInvoice(1, 1, InvoiceStatusPaid, due).EffectiveStatus(due.AddDate(0, 1, 0)))
}

func TestInvoiceMarkOverdue(t *testing.T) {
	due := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	inv := newInvoice(1, 0, InvoiceStatusPending, due)
	assert.Error(t, inv.MarkOverdue(due.Add(-time.Hour)))
	assert.Equal(t, InvoiceStatusPending, inv.Status)

	require.NoError(t, inv.MarkOverdue(due.Add(time.Hour)))
	assert.Equal(t, InvoiceStatusOverdue, inv.Status)

	// paid never goes back to overdue
	paid := newInvoice(1, 1, InvoiceStatusPaid, due)
	err := paid.MarkOverdue(due.Add(time.Hour))
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestInvoiceIsPayable(t *testing.T) {
	for status, want := range map[InvoiceStatus]bool{
		InvoiceStatusPending:       true,
		InvoiceStatusOverdue:       true,
		InvoiceStatusPartiallyPaid: true,
		InvoiceStatusPaid:          false,
		InvoiceStatusCancelled:     false,
	} {
		inv := &Invoice{Status: status}
		assert.Equal(t, want, inv.IsPayable(), string(status))
	}
}

func TestMonthPeriod(t *testing.T) {
	start, end := MonthPeriod(time.Date(2024, 2, 17, 15, 4, 5, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), end)
}

func TestInvoiceTypeIsLandlordIssued(t *testing.T) {
	assert.False(t, InvoiceTypeRent.IsLandlordIssued())
	assert.True(t, InvoiceTypeWater.IsLandlordIssued())
	assert.True(t, InvoiceTypeElectricity.IsLandlordIssued())
	assert.True(t, InvoiceTypeOther.IsLandlordIssued())
	assert.False(t, InvoiceType("gas").IsLandlordIssued())
}

func TestInvoiceCancel(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	open := newInvoice(20000, 0, InvoiceStatusOverdue, now)
	require.NoError(t, open.Cancel(now))
	assert.Equal(t, InvoiceStatusCancelled, open.Status)
	assert.True(t, errors.Is(open.Cancel(now), ErrInvalidTransition))

	partial := newInvoice(20000, 5000, InvoiceStatusPartiallyPaid, now)
	assert.True(t, errors.Is(partial.Cancel(now), ErrInvalidTransition))
	assert.Equal(t, InvoiceStatusPartiallyPaid, partial.Status)

	paid := newInvoice(20000, 20000, InvoiceStatusPaid, now)
	assert.Error(t, paid.Cancel(now))
}
