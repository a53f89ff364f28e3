package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/internal/notify"
	"github.com/segyhp/rental-billing/internal/repository"
	customError "github.com/segyhp/rental-billing/pkg/errors"
	"github.com/segyhp/rental-billing/pkg/utils"
)

// InvoiceService handles invoices a landlord raises by hand, such as water
// and electricity charges, and their cancellation.
type InvoiceService struct {
	store    repository.Store
	settings *SettingsProvider
	notifier notifier
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func NewInvoiceService(store repository.Store, settings *SettingsProvider, dispatcher notify.Dispatcher, location *time.Location, logger *zap.Logger) *InvoiceService {
	if location == nil {
		location = time.UTC
	}
	return &InvoiceService{
		store:    store,
		settings: settings,
		notifier: notifier{store: store, dispatcher: dispatcher, logger: logger},
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// InvoiceRequest describes a utility charge against a lease.
type InvoiceRequest struct {
	LeaseID     uuid.UUID
	LandlordID  uuid.UUID
	Type        domain.InvoiceType
	Amount      decimal.Decimal
	Description string
	DueDate     time.Time
}

// CreateForLease issues a landlord's utility invoice against one of their
// active leases and tells the tenant once it is stored.
func (s *InvoiceService) CreateForLease(ctx context.Context, req InvoiceRequest) (*domain.Invoice, error) {
	now := s.now()
	due, err := s.validate(req, now)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	var created *domain.Invoice
	for attempt := 0; attempt < maxInvoiceNumberAttempts && created == nil; attempt++ {
		err = s.store.WithinTx(ctx, func(tx repository.Store) error {
			lease, err := tx.Leases().GetByID(ctx, req.LeaseID)
			if errors.Is(err, repository.ErrNotFound) {
				return customError.WrapLeaseNotFound(req.LeaseID.String())
			}
			if err != nil {
				return customError.WrapDatabaseError(err)
			}
			// Another landlord's lease is reported as missing.
			if lease.LandlordID != req.LandlordID {
				return customError.WrapLeaseNotFound(req.LeaseID.String())
			}
			if lease.Status != domain.LeaseStatusActive {
				return customError.WrapInvalidStateChange(fmt.Errorf("%w: lease %s is %s",
					domain.ErrInvalidTransition, lease.ID, lease.Status))
			}

			inv := newUtilityInvoice(lease, req, due, now.In(s.location))
			if err := tx.Invoices().Create(ctx, inv); err != nil {
				return err
			}
			if err := audit(ctx, tx, domain.AuditCreated, domain.EntityInvoice, inv.ID, nil, inv, "issued by landlord", now); err != nil {
				return err
			}
			created = inv
			return nil
		})
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return nil, dbError(err)
		}
	}
	if created == nil {
		return nil, customError.WrapDatabaseError(fmt.Errorf("could not allocate an invoice number for lease %s", req.LeaseID))
	}

	logger.FromContext(ctx, s.logger).Info("utility invoice issued",
		zap.String("invoice_number", created.InvoiceNumber),
		zap.String("lease_id", created.LeaseID.String()),
		zap.String("type", string(created.Type)),
		zap.String("amount", created.Amount.String()))

	invoiceGenerated(ctx, s.notifier, created, settings.Currency, now)
	return created, nil
}

// validate checks the request and returns the due date as a calendar day in
// the billing location. The due date must be after today.
func (s *InvoiceService) validate(req InvoiceRequest, now time.Time) (time.Time, error) {
	if !req.Type.IsLandlordIssued() {
		return time.Time{}, customError.WrapValidation(
			fmt.Sprintf("invoice type must be water, electricity or other, got %q", req.Type), nil)
	}
	if !req.Amount.IsPositive() {
		return time.Time{}, customError.WrapValidation("amount must be positive", nil)
	}
	if strings.TrimSpace(req.Description) == "" {
		return time.Time{}, customError.WrapValidation("description is required", nil)
	}

	local := now.In(s.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	due := time.Date(req.DueDate.Year(), req.DueDate.Month(), req.DueDate.Day(), 0, 0, 0, 0, s.location)
	if !due.After(today) {
		return time.Time{}, customError.WrapValidation("due_date must be after today", nil)
	}
	return due, nil
}

func newUtilityInvoice(lease *domain.Lease, req InvoiceRequest, due, now time.Time) *domain.Invoice {
	periodStart, periodEnd := domain.MonthPeriod(now)
	return &domain.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: utils.GenerateInvoiceNumber(now),
		LeaseID:       lease.ID,
		TenantID:      lease.TenantID,
		Type:          req.Type,
		Description:   strings.TrimSpace(req.Description),
		Amount:        req.Amount,
		AmountPaid:    decimal.Zero,
		DueDate:       due,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Status:        domain.InvoiceStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Cancel voids an invoice that has not received any money.
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	now := s.now()
	var cancelled *domain.Invoice
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		inv, err := tx.Invoices().GetByIDForUpdate(ctx, invoiceID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapPayableNotFound(domain.InvoiceRef(invoiceID))
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		before := *inv
		if err := inv.Cancel(now); err != nil {
			return customError.WrapInvalidStateChange(err)
		}
		if err := tx.Invoices().Update(ctx, inv); err != nil {
			return customError.WrapDatabaseError(err)
		}
		cancelled = inv
		return audit(ctx, tx, domain.AuditUpdated, domain.EntityInvoice, inv.ID, before, inv, "cancelled", now)
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.logger).Info("invoice cancelled", zap.String("invoice_number", cancelled.InvoiceNumber))
	return cancelled, nil
}
