package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/gateway"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/internal/metrics"
	"github.com/segyhp/rental-billing/internal/repository"
	customError "github.com/segyhp/rental-billing/pkg/errors"
	"github.com/segyhp/rental-billing/pkg/utils"
)

// maxTransactionIDAttempts bounds regeneration after a unique-constraint collision.
const maxTransactionIDAttempts = 3

type InitiateRequest struct {
	Payable domain.PayableRef
	Phone   string
	Method  domain.PaymentMethod
}

// PaymentInitiator opens payments against appointments and invoices and
// hands them to the gateway.
type PaymentInitiator struct {
	store    repository.Store
	gateway  gateway.Gateway
	settings *SettingsProvider
	metrics  *metrics.Recorder
	logger   *zap.Logger
	validate *validator.Validate
	provider string
	now      func() time.Time
}

func NewPaymentInitiator(
	store repository.Store,
	gw gateway.Gateway,
	settings *SettingsProvider,
	recorder *metrics.Recorder,
	logger *zap.Logger,
	provider string,
) *PaymentInitiator {
	return &PaymentInitiator{
		store:    store,
		gateway:  gw,
		settings: settings,
		metrics:  recorder,
		logger:   logger,
		validate: validator.New(),
		provider: provider,
		now:      time.Now,
	}
}

// payable is what Initiate needs to know about the entity being paid.
type payable struct {
	ref         domain.PayableRef
	payerID     uuid.UUID
	amount      decimal.Decimal
	paymentType domain.PaymentType
	description string
	dueDate     *time.Time
}

// Initiate creates a pending payment for the payable's current amount and
// asks the gateway for a checkout URL.
func (s *PaymentInitiator) Initiate(ctx context.Context, req InitiateRequest) (*domain.InitiatePaymentResponse, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String("payable", req.Payable.String()))

	phone := strings.ReplaceAll(strings.TrimSpace(req.Phone), " ", "")
	if err := s.validate.Var(phone, "required,numeric,min=8,max=20"); err != nil {
		return nil, customError.WrapValidation("phone must be 8 to 20 digits", err)
	}
	method := req.Method
	if method == "" {
		method = domain.PaymentMethodMobileMoney
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	target, err := s.resolve(ctx, req.Payable, settings)
	if err != nil {
		return nil, err
	}

	payer := notifier{store: s.store, logger: s.logger}.contact(ctx, target.payerID)

	payment, err := s.createPending(ctx, target, phone, method, settings.Currency)
	if err != nil {
		s.metrics.PaymentInitiated(string(req.Payable.Kind), "error")
		return nil, err
	}
	log = log.With(zap.String("transaction_id", payment.TransactionID))

	result, err := s.gateway.Initiate(ctx, gateway.InitRequest{
		TransactionID: payment.TransactionID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Description:   target.description,
		CustomerID:    payer.ID.String(),
		CustomerName:  payer.Name,
		CustomerEmail: payer.Email,
		CustomerPhone: phone,
		Metadata:      target.ref.String(),
	})
	if err != nil {
		var rejected *gateway.RejectedError
		if errors.As(err, &rejected) {
			s.metrics.PaymentInitiated(string(req.Payable.Kind), "rejected")
			s.markRejected(ctx, payment.TransactionID, rejected)
			log.Warn("gateway rejected payment", zap.String("code", rejected.Code), zap.String("message", rejected.Message))
			return nil, customError.WrapGatewayRejected(rejected.Message, err)
		}
		s.metrics.PaymentInitiated(string(req.Payable.Kind), "unavailable")
		log.Error("gateway unavailable, payment left pending", zap.Error(err))
		return nil, customError.WrapGatewayUnavailable(err)
	}

	if err := s.recordAcknowledgement(ctx, payment.TransactionID, result); err != nil {
		// The provider already holds the transaction; reconciliation
		// accepts a pending payment just as well.
		log.Error("failed to record gateway acknowledgement", zap.Error(err))
	}

	s.metrics.PaymentInitiated(string(req.Payable.Kind), "ok")
	log.Info("payment initiated", zap.String("amount", payment.Amount.String()))

	return &domain.InitiatePaymentResponse{
		TransactionID: payment.TransactionID,
		PaymentURL:    result.PaymentURL,
		PaymentToken:  result.PaymentToken,
	}, nil
}

func (s *PaymentInitiator) resolve(ctx context.Context, ref domain.PayableRef, settings domain.Settings) (*payable, error) {
	switch ref.Kind {
	case domain.PayableAppointment:
		appt, err := s.store.Appointments().GetByID(ctx, ref.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapPayableNotFound(ref)
		}
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		if !appt.IsPayable() {
			return nil, customError.WrapPayableNotEligible(ref, string(appt.Status))
		}
		return &payable{
			ref:         ref,
			payerID:     appt.ClientID,
			amount:      settings.VisitPrice,
			paymentType: domain.PaymentTypeVisit,
			description: "Property visit fee",
		}, nil

	case domain.PayableInvoice:
		inv, err := s.store.Invoices().GetByID(ctx, ref.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapPayableNotFound(ref)
		}
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		outstanding := inv.Outstanding()
		if !inv.IsPayable() || !outstanding.IsPositive() {
			return nil, customError.WrapPayableNotEligible(ref, string(inv.Status))
		}
		due := inv.DueDate
		description := inv.Description
		if description == "" {
			description = "Invoice " + inv.InvoiceNumber
		}
		return &payable{
			ref:         ref,
			payerID:     inv.TenantID,
			amount:      outstanding,
			paymentType: domain.PaymentTypeForInvoice(inv.Type),
			description: description,
			dueDate:     &due,
		}, nil

	default:
		return nil, customError.WrapValidation(fmt.Sprintf("unknown payable type %q", ref.Kind), nil)
	}
}

func (s *PaymentInitiator) createPending(ctx context.Context, target *payable, phone string, method domain.PaymentMethod, currency string) (*domain.Payment, error) {
	now := s.now()
	payment := &domain.Payment{
		ID:          uuid.New(),
		UserID:      target.payerID,
		PayableType: target.ref.Kind,
		PayableID:   target.ref.ID,
		Amount:      target.amount,
		Currency:    currency,
		Type:        target.paymentType,
		Method:      method,
		Status:      domain.PaymentStatusPending,
		Provider:    s.provider,
		PhoneNumber: phone,
		DueDate:     target.dueDate,
		Metadata:    domain.Metadata{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var err error
	for attempt := 0; attempt < maxTransactionIDAttempts; attempt++ {
		payment.TransactionID = utils.GenerateTransactionID(now)
		err = s.store.WithinTx(ctx, func(tx repository.Store) error {
			if err := tx.Payments().Create(ctx, payment); err != nil {
				return err
			}
			return audit(ctx, tx, domain.AuditCreated, domain.EntityPayment, payment.ID, nil, payment, "", now)
		})
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, dbError(err)
	}
	return payment, nil
}

// recordAcknowledgement moves the payment to processing unless a webhook
// already settled it in the meantime.
func (s *PaymentInitiator) recordAcknowledgement(ctx context.Context, transactionID string, result *gateway.InitResult) error {
	now := s.now()
	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().GetByTransactionIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentStatusPending {
			return nil
		}
		if err := p.MarkProcessing(result.PaymentToken, result.Raw, now); err != nil {
			return err
		}
		p.SetMeta("payment_url", result.PaymentURL)
		return tx.Payments().Update(ctx, p)
	})
}

// markRejected records the provider's refusal. The payment row is kept.
func (s *PaymentInitiator) markRejected(ctx context.Context, transactionID string, rejected *gateway.RejectedError) {
	now := s.now()
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().GetByTransactionIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		before := snapshotPayment(p)
		if err := p.Fail(rejected.Message, rejected.Raw, now); err != nil {
			return nil
		}
		p.SetMeta("gateway_code", rejected.Code)
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}
		return audit(ctx, tx, domain.AuditUpdated, domain.EntityPayment, p.ID, before, p, "gateway rejected", now)
	})
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("failed to record gateway rejection",
			zap.String("transaction_id", transactionID), zap.Error(err))
	}
}

// GetStatus returns the stored payment. It never calls the gateway.
func (s *PaymentInitiator) GetStatus(ctx context.Context, transactionID string) (*domain.Payment, error) {
	p, err := s.store.Payments().GetByTransactionID(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapPaymentNotFound(transactionID)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return p, nil
}

// Cancel abandons a payment the payer no longer wants to complete.
func (s *PaymentInitiator) Cancel(ctx context.Context, transactionID string) (*domain.Payment, error) {
	now := s.now()
	var cancelled *domain.Payment
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().GetByTransactionIDForUpdate(ctx, transactionID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapPaymentNotFound(transactionID)
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		before := snapshotPayment(p)
		if err := p.Cancel(now); err != nil {
			return customError.WrapInvalidStateChange(err)
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return customError.WrapDatabaseError(err)
		}
		cancelled = p
		return audit(ctx, tx, domain.AuditUpdated, domain.EntityPayment, p.ID, before, p, "cancelled by payer", now)
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.logger).Info("payment cancelled", zap.String("transaction_id", transactionID))
	return cancelled, nil
}
