package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/internal/notify"
	"github.com/segyhp/rental-billing/internal/repository"
	customError "github.com/segyhp/rental-billing/pkg/errors"
)

// LeaseService handles the lease transitions that touch billing: approval
// opens the first rent invoice, termination frees the property.
type LeaseService struct {
	store    repository.Store
	settings *SettingsProvider
	notifier notifier
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func NewLeaseService(store repository.Store, settings *SettingsProvider, dispatcher notify.Dispatcher, location *time.Location, logger *zap.Logger) *LeaseService {
	if location == nil {
		location = time.UTC
	}
	return &LeaseService{
		store:    store,
		settings: settings,
		notifier: notifier{store: store, dispatcher: dispatcher, logger: logger},
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// Approve activates a pending lease, marks the property rented and issues
// the current month's rent invoice.
func (s *LeaseService) Approve(ctx context.Context, leaseID, approvedBy uuid.UUID) (*domain.Lease, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		approved *domain.Lease
		invoice  *domain.Invoice
	)
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		lease, err := tx.Leases().GetByIDForUpdate(ctx, leaseID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapLeaseNotFound(leaseID.String())
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}

		before := *lease
		if err := lease.Approve(approvedBy, now); err != nil {
			return customError.WrapInvalidStateChange(err)
		}
		taken, err := tx.Leases().HasOtherActive(ctx, lease.PropertyID, lease.ID)
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		if taken {
			return customError.WrapPropertyAlreadyLeased(lease.PropertyID.String())
		}
		if err := tx.Leases().Update(ctx, lease); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return customError.WrapPropertyAlreadyLeased(lease.PropertyID.String())
			}
			return customError.WrapDatabaseError(err)
		}
		if err := tx.Properties().SetStatus(ctx, lease.PropertyID, domain.PropertyRented); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return customError.WrapDatabaseError(err)
		}
		if err := audit(ctx, tx, domain.AuditUpdated, domain.EntityLease, lease.ID, before, lease, "approved", now); err != nil {
			return err
		}

		// Nested WithinTx calls join this transaction.
		inv, err := createRentInvoice(ctx, tx, lease, settings, now, s.location)
		if err != nil {
			return err
		}
		approved, invoice = lease, inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("lease approved",
		zap.String("lease_id", approved.ID.String()),
		zap.String("property_id", approved.PropertyID.String()))

	s.notifier.send(ctx, approved.TenantID, func(c domain.Contact) domain.Event {
		return domain.NewEvent(domain.EventLeaseApproved, c, now).
			WithAmount(approved.MonthlyRent, settings.Currency).
			WithRole(domain.RoleTenant)
	})
	if invoice != nil {
		invoiceGenerated(ctx, s.notifier, invoice, settings.Currency, now)
	}
	return approved, nil
}

// Terminate ends an active lease early and frees the property.
func (s *LeaseService) Terminate(ctx context.Context, leaseID uuid.UUID) (*domain.Lease, error) {
	now := s.now()
	var terminated *domain.Lease
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		lease, err := tx.Leases().GetByIDForUpdate(ctx, leaseID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapLeaseNotFound(leaseID.String())
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		before := *lease
		if err := lease.Terminate(now); err != nil {
			return customError.WrapInvalidStateChange(err)
		}
		if err := tx.Leases().Update(ctx, lease); err != nil {
			return customError.WrapDatabaseError(err)
		}
		if err := releaseProperty(ctx, tx, lease); err != nil {
			return err
		}
		terminated = lease
		return audit(ctx, tx, domain.AuditUpdated, domain.EntityLease, lease.ID, before, lease, "terminated", now)
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.logger).Info("lease terminated", zap.String("lease_id", leaseID.String()))
	return terminated, nil
}
