package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/gateway"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/internal/metrics"
	"github.com/segyhp/rental-billing/internal/notify"
	"github.com/segyhp/rental-billing/internal/repository"
	customError "github.com/segyhp/rental-billing/pkg/errors"
	"github.com/segyhp/rental-billing/pkg/utils"
)

const (
	reasonAmountMismatch = "amount mismatch"
	reasonRefused        = "payment refused by provider"

	// metaRefundReview marks a completed payment whose payable could not take it.
	metaRefundReview = "requires_refund_review"
)

// WebhookResult is what the gateway callback is acknowledged with.
type WebhookResult struct {
	TransactionID string               `json:"transaction_id"`
	Processed     bool                 `json:"processed"`
	Status        domain.PaymentStatus `json:"status"`
	Message       string               `json:"message,omitempty"`
}

// Reconciler turns gateway notifications into payment and payable state.
type Reconciler struct {
	store    repository.Store
	gateway  gateway.Gateway
	notifier notifier
	secret   string
	metrics  *metrics.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(
	store repository.Store,
	gw gateway.Gateway,
	dispatcher notify.Dispatcher,
	secret string,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		gateway:  gw,
		notifier: notifier{store: store, dispatcher: dispatcher, logger: logger},
		secret:   secret,
		metrics:  recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleWebhook authenticates, parses and applies one provider callback.
// Replays of a settled transaction are acknowledged without side effects.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature, contentType string) (*WebhookResult, error) {
	log := logger.FromContext(ctx, r.logger)

	if !gateway.VerifySignature(r.secret, body, signature) {
		r.metrics.Webhook("invalid_signature")
		log.Warn("rejected webhook with invalid signature")
		return nil, customError.WrapInvalidSignature()
	}

	n, err := gateway.ParseNotification(body, contentType)
	if err != nil {
		r.metrics.Webhook("malformed")
		return nil, customError.WrapValidation("malformed payment notification", err)
	}
	log = log.With(zap.String("transaction_id", n.TransactionID))

	payment, err := r.store.Payments().GetByTransactionID(ctx, n.TransactionID)
	if errors.Is(err, repository.ErrNotFound) {
		r.metrics.Webhook("unknown_transaction")
		log.Warn("webhook for unknown transaction")
		return nil, customError.WrapPaymentNotFound(n.TransactionID)
	}
	if err != nil {
		r.metrics.Webhook("error")
		return nil, customError.WrapDatabaseError(err)
	}

	if payment.IsTerminal() {
		r.metrics.Webhook("duplicate")
		log.Info("webhook for settled payment ignored", zap.String("status", string(payment.Status)))
		return &WebhookResult{
			TransactionID: payment.TransactionID,
			Status:        payment.Status,
			Message:       "already processed",
		}, nil
	}

	// A callback without an amount cannot prove it paid what was asked.
	if !n.HasAmount() || !utils.AmountsEqual(n.Amount, payment.Amount) {
		r.metrics.Webhook("amount_mismatch")
		log.Error("notified amount does not match payment",
			zap.String("expected", payment.Amount.String()),
			zap.String("notified", n.Amount.String()),
			zap.Bool("amount_present", n.HasAmount()))
		return r.fail(ctx, payment.TransactionID, reasonAmountMismatch, nil, false, "webhook")
	}

	result, err := r.Verify(ctx, payment.TransactionID, "webhook")
	if err != nil {
		r.metrics.Webhook("error")
		return nil, err
	}
	r.metrics.Webhook("processed")
	return result, nil
}

// Verify asks the gateway for the authoritative status of a transaction and
// applies a definitive answer. A refused check is treated as inconclusive.
func (r *Reconciler) Verify(ctx context.Context, transactionID, source string) (*WebhookResult, error) {
	log := logger.FromContext(ctx, r.logger).With(zap.String("transaction_id", transactionID))

	check, err := r.gateway.Check(ctx, transactionID)
	if err != nil {
		var rejected *gateway.RejectedError
		if errors.As(err, &rejected) {
			log.Warn("payment check refused, leaving payment open",
				zap.String("code", rejected.Code), zap.String("message", rejected.Message))
			return r.unchanged(ctx, transactionID, "verification inconclusive")
		}
		log.Error("payment check unavailable", zap.Error(err))
		return nil, customError.WrapVerificationUnavailable(err)
	}

	switch check.Status {
	case gateway.StatusSucceeded:
		return r.complete(ctx, transactionID, check, source)
	case gateway.StatusFailed:
		reason := check.Message
		if reason == "" {
			reason = reasonRefused
		}
		return r.fail(ctx, transactionID, reason, check.Raw, true, source)
	default:
		return r.unchanged(ctx, transactionID, "payment still pending")
	}
}

func (r *Reconciler) unchanged(ctx context.Context, transactionID, message string) (*WebhookResult, error) {
	p, err := r.store.Payments().GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, dbError(err)
	}
	return &WebhookResult{TransactionID: transactionID, Status: p.Status, Message: message}, nil
}

// complete settles the payment and its payable in one transaction. The
// payment row lock serializes concurrent deliveries for the same transaction.
func (r *Reconciler) complete(ctx context.Context, transactionID string, check *gateway.CheckResult, source string) (*WebhookResult, error) {
	log := logger.FromContext(ctx, r.logger).With(zap.String("transaction_id", transactionID))
	now := r.now()

	var (
		settled  *domain.Payment
		result   *WebhookResult
		mismatch bool
	)
	err := r.store.WithinTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().GetByTransactionIDForUpdate(ctx, transactionID)
		if err != nil {
			return dbError(err)
		}
		if p.IsTerminal() {
			result = &WebhookResult{TransactionID: transactionID, Status: p.Status, Message: "already processed"}
			return nil
		}
		if !utils.AmountsEqual(check.Amount, p.Amount) {
			mismatch = true
			return nil
		}

		before := snapshotPayment(p)
		if err := p.Complete("", check.OperatorID, check.Raw, now); err != nil {
			return customError.WrapInvalidStateChange(err)
		}
		if check.PaymentMethod != "" {
			p.SetMeta("provider_payment_method", check.PaymentMethod)
		}

		if err := r.applyToPayable(ctx, tx, p, now); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return customError.WrapDatabaseError(err)
		}
		if err := audit(ctx, tx, domain.AuditUpdated, domain.EntityPayment, p.ID, before, p, source, now); err != nil {
			return err
		}

		settled = p
		result = &WebhookResult{TransactionID: transactionID, Processed: true, Status: p.Status, Message: "payment confirmed"}
		return nil
	})
	if err != nil {
		log.Error("failed to settle payment", zap.Error(err))
		return nil, err
	}

	if mismatch {
		log.Error("verified amount does not match payment", zap.String("verified", check.Amount.String()))
		return r.fail(ctx, transactionID, reasonAmountMismatch, check.Raw, false, source)
	}

	if settled != nil {
		r.metrics.Reconciled(source, string(domain.PaymentStatusCompleted))
		log.Info("payment confirmed",
			zap.String("payable", settled.Payable().String()),
			zap.String("amount", settled.Amount.String()))

		p := *settled
		r.notifier.send(ctx, p.UserID, func(c domain.Contact) domain.Event {
			e := domain.NewEvent(domain.EventPaymentConfirmed, c, now).
				WithAmount(p.Amount, p.Currency).
				WithPayable(p.Payable())
			e.Reference = p.TransactionID
			return e
		})
	}
	return result, nil
}

// applyToPayable credits the payable. A payable that can no longer take the
// money keeps its state and the payment is flagged for refund review.
func (r *Reconciler) applyToPayable(ctx context.Context, tx repository.Store, p *domain.Payment, now time.Time) error {
	ref := p.Payable()

	switch ref.Kind {
	case domain.PayableAppointment:
		appt, err := tx.Appointments().GetByIDForUpdate(ctx, ref.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapPayableNotFound(ref)
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		before := *appt
		if err := appt.ConfirmPayment(p.Amount, p.TransactionID, now); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return r.flagForRefund(ctx, tx, p, err, now)
			}
			return err
		}
		if err := tx.Appointments().Update(ctx, appt); err != nil {
			return customError.WrapDatabaseError(err)
		}
		return audit(ctx, tx, domain.AuditPaymentApplied, domain.EntityAppointment, appt.ID, before, appt, p.TransactionID, now)

	case domain.PayableInvoice:
		inv, err := tx.Invoices().GetByIDForUpdate(ctx, ref.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapPayableNotFound(ref)
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		before := *inv
		if err := inv.ApplyPayment(p.Amount, p.TransactionID, now); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return r.flagForRefund(ctx, tx, p, err, now)
			}
			return err
		}
		if err := tx.Invoices().Update(ctx, inv); err != nil {
			return customError.WrapDatabaseError(err)
		}
		return audit(ctx, tx, domain.AuditPaymentApplied, domain.EntityInvoice, inv.ID, before, inv, p.TransactionID, now)

	default:
		return customError.WrapPayableNotFound(ref)
	}
}

func (r *Reconciler) flagForRefund(ctx context.Context, tx repository.Store, p *domain.Payment, cause error, now time.Time) error {
	p.SetMeta(metaRefundReview, true)
	p.SetMeta("review_reason", cause.Error())
	logger.FromContext(ctx, r.logger).Warn("confirmed payment could not be applied, flagged for refund review",
		zap.String("transaction_id", p.TransactionID),
		zap.String("payable", p.Payable().String()),
		zap.Error(cause))
	return audit(ctx, tx, domain.AuditFlaggedForReview, domain.EntityPayment, p.ID, nil, p, cause.Error(), now)
}

// fail closes an open payment. When markPayable is set, an appointment also
// records the failed attempt so the client can retry.
func (r *Reconciler) fail(ctx context.Context, transactionID, reason string, raw domain.RawJSON, markPayable bool, source string) (*WebhookResult, error) {
	now := r.now()
	var result *WebhookResult
	err := r.store.WithinTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().GetByTransactionIDForUpdate(ctx, transactionID)
		if err != nil {
			return dbError(err)
		}
		if p.IsTerminal() {
			result = &WebhookResult{TransactionID: transactionID, Status: p.Status, Message: "already processed"}
			return nil
		}

		before := snapshotPayment(p)
		if err := p.Fail(reason, raw, now); err != nil {
			return customError.WrapInvalidStateChange(err)
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return customError.WrapDatabaseError(err)
		}
		if err := audit(ctx, tx, domain.AuditUpdated, domain.EntityPayment, p.ID, before, p, source+": "+reason, now); err != nil {
			return err
		}

		if markPayable && p.PayableType == domain.PayableAppointment {
			appt, err := tx.Appointments().GetByIDForUpdate(ctx, p.PayableID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
			case err != nil:
				return customError.WrapDatabaseError(err)
			default:
				appt.MarkPaymentFailed(now)
				if err := tx.Appointments().Update(ctx, appt); err != nil {
					return customError.WrapDatabaseError(err)
				}
			}
		}

		result = &WebhookResult{TransactionID: transactionID, Processed: true, Status: p.Status, Message: reason}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Processed {
		r.metrics.Reconciled(source, string(domain.PaymentStatusFailed))
		logger.FromContext(ctx, r.logger).Info("payment failed",
			zap.String("transaction_id", transactionID), zap.String("reason", reason))
	}
	return result, nil
}
