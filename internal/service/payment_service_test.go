package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/gateway"
	"github.com/segyhp/rental-billing/internal/repository"
	customError "github.com/segyhp/rental-billing/pkg/errors"
)

func TestInitiate_Appointment(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t, domain.AppointmentStatusPendingPayment, f.now.Add(48*time.Hour))
	ref := domain.AppointmentRef(appt.ID)

	f.gateway.On("Initiate", mock.Anything, mock.MatchedBy(func(req gateway.InitRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(5000)) &&
			req.Currency == "XAF" &&
			req.Metadata == ref.String() &&
			req.CustomerName == "Client" &&
			strings.HasPrefix(req.TransactionID, "HC-20250310-")
	})).Return(&gateway.InitResult{
		PaymentURL:   "https://checkout.example/pay/abc",
		PaymentToken: "tok-abc",
		Raw:          domain.RawJSON(`{"code":"201"}`),
	}, nil)

	resp, err := f.initiator.Initiate(f.ctx, InitiateRequest{Payable: ref, Phone: "241 06 00 00 00"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/pay/abc", resp.PaymentURL)
	assert.Equal(t, "tok-abc", resp.PaymentToken)

	p := f.reloadPayment(t, resp.TransactionID)
	assert.Equal(t, domain.PaymentStatusProcessing, p.Status)
	assert.Equal(t, "tok-abc", p.ProviderTransactionID)
	assert.Equal(t, "24106000000", p.PhoneNumber)
	assert.Equal(t, domain.PaymentMethodMobileMoney, p.Method)
	assert.Equal(t, domain.PaymentTypeVisit, p.Type)
	assert.Equal(t, ref, p.Payable())
	assert.Equal(t, appt.ClientID, p.UserID)

	entries, err := f.store.Audit().ListByEntity(f.ctx, domain.EntityPayment, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditCreated, entries[0].Action)
	f.gateway.AssertExpectations(t)
}

func TestInitiate_InvoiceChargesOutstandingBalance(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, 150000, 50000, domain.InvoiceStatusPartiallyPaid, f.now.AddDate(0, 0, 3))

	f.gateway.On("Initiate", mock.Anything, mock.MatchedBy(func(req gateway.InitRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(100000))
	})).Return(&gateway.InitResult{PaymentURL: "u", PaymentToken: "t"}, nil)

	resp, err := f.initiator.Initiate(f.ctx, InitiateRequest{Payable: domain.InvoiceRef(inv.ID), Phone: "06000000"})
	require.NoError(t, err)

	p := f.reloadPayment(t, resp.TransactionID)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, domain.PaymentTypeRent, p.Type)
	require.NotNil(t, p.DueDate)
	assert.Equal(t, inv.TenantID, p.UserID)
}

func TestInitiate_Refused(t *testing.T) {
	f := newFixture(t)
	confirmed := f.appointment(t, domain.AppointmentStatusConfirmed, f.now.Add(time.Hour))
	pending := f.appointment(t, domain.AppointmentStatusPendingPayment, f.now.Add(time.Hour))
	paid := f.invoice(t, 1000, 1000, domain.InvoiceStatusPaid, f.now)
	cancelled := f.invoice(t, 1000, 0, domain.InvoiceStatusCancelled, f.now)

	tests := []struct {
		name    string
		req     InitiateRequest
		errCode string
	}{
		{
			name:    "confirmed appointment",
			req:     InitiateRequest{Payable: domain.AppointmentRef(confirmed.ID), Phone: "06000000"},
			errCode: customError.ErrCodePayableNotEligible,
		},
		{
			name:    "paid invoice",
			req:     InitiateRequest{Payable: domain.InvoiceRef(paid.ID), Phone: "06000000"},
			errCode: customError.ErrCodePayableNotEligible,
		},
		{
			name:    "cancelled invoice",
			req:     InitiateRequest{Payable: domain.InvoiceRef(cancelled.ID), Phone: "06000000"},
			errCode: customError.ErrCodePayableNotEligible,
		},
		{
			name:    "unknown appointment",
			req:     InitiateRequest{Payable: domain.AppointmentRef(uuid.New()), Phone: "06000000"},
			errCode: customError.ErrCodePayableNotFound,
		},
		{
			name:    "missing phone",
			req:     InitiateRequest{Payable: domain.AppointmentRef(pending.ID)},
			errCode: customError.ErrCodeValidation,
		},
		{
			name:    "phone with letters",
			req:     InitiateRequest{Payable: domain.AppointmentRef(pending.ID), Phone: "06ABC0000"},
			errCode: customError.ErrCodeValidation,
		},
		{
			name:    "unknown payable kind",
			req:     InitiateRequest{Payable: domain.PayableRef{Kind: "deposit", ID: uuid.New()}, Phone: "06000000"},
			errCode: customError.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.initiator.Initiate(f.ctx, tt.req)
			assertCode(t, err, tt.errCode)
		})
	}
	f.gateway.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestInitiate_GatewayUnavailableLeavesPaymentPending(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t, domain.AppointmentStatusPendingPayment, f.now.Add(48*time.Hour))

	f.gateway.On("Initiate", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: timeout", gateway.ErrUnavailable))

	_, err := f.initiator.Initiate(f.ctx, InitiateRequest{Payable: domain.AppointmentRef(appt.ID), Phone: "06000000"})
	assertCode(t, err, customError.ErrCodeGatewayUnavailable)
	assert.True(t, customError.IsRetryable(err))

	open, err := f.store.Payments().ListStale(f.ctx, f.now.Add(time.Second), repository.Cursor{}, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.PaymentStatusPending, open[0].Status)
}

func TestInitiate_GatewayRejectedFailsPayment(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t, domain.AppointmentStatusPendingPayment, f.now.Add(48*time.Hour))

	var txID string
	f.gateway.On("Initiate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { txID = args.Get(1).(gateway.InitRequest).TransactionID }).
		Return(nil, &gateway.RejectedError{Code: "608", Message: "MINIMUM_REQUIRED_FIELDS"})

	_, err := f.initiator.Initiate(f.ctx, InitiateRequest{Payable: domain.AppointmentRef(appt.ID), Phone: "06000000"})
	assertCode(t, err, customError.ErrCodeGatewayRejected)

	p := f.reloadPayment(t, txID)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Equal(t, "MINIMUM_REQUIRED_FIELDS", p.ErrorMessage)
	assert.Equal(t, "608", p.Metadata["gateway_code"])
}

func TestCancelAndGetStatus(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t, domain.AppointmentStatusPendingPayment, f.now.Add(48*time.Hour))
	p := f.payment(t, domain.AppointmentRef(appt.ID), appt.ClientID, 5000, f.now)

	got, err := f.initiator.GetStatus(f.ctx, p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusProcessing, got.Status)

	cancelled, err := f.initiator.Cancel(f.ctx, p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentStatusCancelled, f.reloadPayment(t, p.TransactionID).Status)

	_, err = f.initiator.Cancel(f.ctx, p.TransactionID)
	assertCode(t, err, customError.ErrCodeInvalidStateChange)

	_, err = f.initiator.GetStatus(f.ctx, "HC-19700101-00000000")
	assertCode(t, err, customError.ErrCodePaymentNotFound)

	_, err = f.initiator.Cancel(f.ctx, "HC-19700101-00000000")
	assertCode(t, err, customError.ErrCodePaymentNotFound)
}
