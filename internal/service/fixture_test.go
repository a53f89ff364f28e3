package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/cache"
	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/mocks"
	"github.com/segyhp/rental-billing/internal/repository"
	customError "github.com/segyhp/rental-billing/pkg/errors"
)

const testSecret = "test-secret"

type fixture struct {
	ctx        context.Context
	now        time.Time
	store      *repository.MemoryStore
	gateway    *mocks.MockGateway
	dispatcher *mocks.MockDispatcher
	failures   *cache.MemoryFailureTracker
	settings   *SettingsProvider
	initiator  *PaymentInitiator
	reconciler *Reconciler
	jobs       *BillingJobs
	leases     *LeaseService
	invoices   *InvoiceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:        context.Background(),
		now:        time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		store:      repository.NewMemoryStore(),
		gateway:    &mocks.MockGateway{},
		dispatcher: &mocks.MockDispatcher{},
		failures:   cache.NewMemoryFailureTracker(),
	}
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Maybe()

	log := zap.NewNop()
	clock := func() time.Time { return f.now }

	f.settings = NewSettingsProvider(f.store, cache.NewMemorySettingsCache(), domain.Settings{
		VisitPrice:       decimal.NewFromInt(5000),
		Currency:         "XAF",
		InvoiceDueDays:   5,
		RemindersEnabled: true,
	}, time.Minute, log)
	f.settings.now = clock

	f.initiator = NewPaymentInitiator(f.store, f.gateway, f.settings, nil, log, "cinetpay")
	f.initiator.now = clock

	f.reconciler = NewReconciler(f.store, f.gateway, f.dispatcher, testSecret, nil, log)
	f.reconciler.now = clock

	f.jobs = NewBillingJobs(f.store, f.reconciler, f.settings, f.failures, f.dispatcher, nil, log, JobsConfig{
		Location:          time.UTC,
		MaxEntityFailures: 3,
		StaleAfter:        24 * time.Hour,
		BatchSize:         50,
	})

	f.leases = NewLeaseService(f.store, f.settings, f.dispatcher, time.UTC, log)
	f.leases.now = clock

	f.invoices = NewInvoiceService(f.store, f.settings, f.dispatcher, time.UTC, log)
	f.invoices.now = clock
	return f
}

func (f *fixture) contact(t *testing.T, name string) domain.Contact {
	t.Helper()
	c := domain.Contact{ID: uuid.New(), Name: name, Phone: "24106000000"}
	require.NoError(t, f.store.Contacts().Create(f.ctx, &c))
	return c
}

func (f *fixture) appointment(t *testing.T, status domain.AppointmentStatus, scheduledAt time.Time) *domain.Appointment {
	t.Helper()
	client := f.contact(t, "Client")
	a := &domain.Appointment{
		ID:            uuid.New(),
		ClientID:      client.ID,
		PropertyID:    uuid.New(),
		ScheduledAt:   scheduledAt,
		Status:        status,
		PaymentStatus: domain.AppointmentUnpaid,
		AmountPaid:    decimal.Zero,
		CreatedAt:     f.now,
		UpdatedAt:     f.now,
	}
	if status == domain.AppointmentStatusConfirmed {
		a.PaymentStatus = domain.AppointmentPaid
	}
	require.NoError(t, f.store.Appointments().Create(f.ctx, a))
	return a
}

func (f *fixture) lease(t *testing.T, status domain.LeaseStatus, rent int64) *domain.Lease {
	t.Helper()
	tenant := f.contact(t, "Tenant")
	landlord := f.contact(t, "Landlord")
	property := &domain.Property{ID: uuid.New(), LandlordID: landlord.ID, Title: "Studio", Status: domain.PropertyAvailable}
	require.NoError(t, f.store.Properties().Create(f.ctx, property))

	l := &domain.Lease{
		ID:          uuid.New(),
		PropertyID:  property.ID,
		TenantID:    tenant.ID,
		LandlordID:  landlord.ID,
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		MonthlyRent: decimal.NewFromInt(rent),
		Status:      status,
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	}
	require.NoError(t, f.store.Leases().Create(f.ctx, l))
	return l
}

func (f *fixture) invoice(t *testing.T, amount, paid int64, status domain.InvoiceStatus, due time.Time) *domain.Invoice {
	t.Helper()
	l := f.lease(t, domain.LeaseStatusActive, amount)
	start, end := domain.MonthPeriod(due)
	inv := &domain.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: "INV-" + uuid.NewString()[:8],
		LeaseID:       l.ID,
		TenantID:      l.TenantID,
		Type:          domain.InvoiceTypeRent,
		Amount:        decimal.NewFromInt(amount),
		AmountPaid:    decimal.NewFromInt(paid),
		DueDate:       due,
		PeriodStart:   start,
		PeriodEnd:     end,
		Status:        status,
		CreatedAt:     f.now,
		UpdatedAt:     f.now,
	}
	require.NoError(t, f.store.Invoices().Create(f.ctx, inv))
	return inv
}

// payment stores an open payment against ref, as Initiate would have left it.
func (f *fixture) payment(t *testing.T, ref domain.PayableRef, userID uuid.UUID, amount int64, createdAt time.Time) *domain.Payment {
	t.Helper()
	p := &domain.Payment{
		ID:                    uuid.New(),
		TransactionID:         "HC-20250310-" + uuid.NewString()[:8],
		UserID:                userID,
		PayableType:           ref.Kind,
		PayableID:             ref.ID,
		Amount:                decimal.NewFromInt(amount),
		Currency:              "XAF",
		Type:                  domain.PaymentTypeVisit,
		Method:                domain.PaymentMethodMobileMoney,
		Status:                domain.PaymentStatusProcessing,
		Provider:              "cinetpay",
		ProviderTransactionID: "token",
		PhoneNumber:           "24106000000",
		Metadata:              domain.Metadata{},
		CreatedAt:             createdAt,
		UpdatedAt:             createdAt,
	}
	require.NoError(t, f.store.Payments().Create(f.ctx, p))
	return p
}

func (f *fixture) reloadPayment(t *testing.T, transactionID string) *domain.Payment {
	t.Helper()
	p, err := f.store.Payments().GetByTransactionID(f.ctx, transactionID)
	require.NoError(t, err)
	return p
}

func (f *fixture) reloadInvoice(t *testing.T, id uuid.UUID) *domain.Invoice {
	t.Helper()
	inv, err := f.store.Invoices().GetByID(f.ctx, id)
	require.NoError(t, err)
	return inv
}

func (f *fixture) reloadAppointment(t *testing.T, id uuid.UUID) *domain.Appointment {
	t.Helper()
	a, err := f.store.Appointments().GetByID(f.ctx, id)
	require.NoError(t, err)
	return a
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	be, ok := customError.As(err)
	require.True(t, ok, "expected a business error, got %v", err)
	assert.Equal(t, code, be.Code)
}
