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

// audit appends one change-log row through the given (usually transactional) store.
func audit(ctx context.Context, tx repository.Store, action domain.AuditAction, entity domain.EntityType,
	id uuid.UUID, before, after interface{}, note string, now time.Time) error {
	entry := domain.NewAuditEntry(action, entity, id, before, after, now)
	entry.Note = note
	if err := tx.Audit().Record(ctx, entry); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

// snapshotPayment copies p for an audit before-image.
func snapshotPayment(p *domain.Payment) domain.Payment {
	cp := *p
	cp.Metadata = p.Metadata.Clone()
	return cp
}

// dbError maps repository sentinels that callers never expect to surface.
func dbError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := customError.As(err); ok {
		return err
	}
	return customError.WrapDatabaseError(err)
}

// notifier resolves recipients and hands events to the dispatcher. Delivery
// problems are logged and never returned: the state change they describe has
// already been committed.
type notifier struct {
	store      repository.Store
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

func (n notifier) contact(ctx context.Context, id uuid.UUID) domain.Contact {
	c, err := n.store.Contacts().GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.FromContext(ctx, n.logger).Warn("failed to load notification recipient",
				zap.String("contact_id", id.String()), zap.Error(err))
		}
		return domain.Contact{ID: id}
	}
	return *c
}

// send looks up the recipient and dispatches the event built for them.
func (n notifier) send(ctx context.Context, recipientID uuid.UUID, build func(domain.Contact) domain.Event) {
	if n.dispatcher == nil {
		return
	}
	event := build(n.contact(ctx, recipientID))
	if err := n.dispatcher.Dispatch(ctx, event); err != nil {
		logger.FromContext(ctx, n.logger).Error("failed to dispatch notification",
			zap.String("type", string(event.Type)),
			zap.String("recipient_id", recipientID.String()),
			zap.Error(err))
	}
}
