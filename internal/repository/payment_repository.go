package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/rental-billing/internal/domain"
)

const paymentColumns = `id, transaction_id, user_id, payable_type, payable_id, amount, currency, type, method,
		status, provider, provider_transaction_id, provider_response, phone_number, error_message,
		completed_at, due_date, metadata, created_at, updated_at`

type paymentRepository struct {
	db dbtx
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.TransactionID,
		payment.UserID,
		payment.PayableType,
		payment.PayableID,
		payment.Amount,
		payment.Currency,
		payment.Type,
		payment.Method,
		payment.Status,
		payment.Provider,
		payment.ProviderTransactionID,
		payment.ProviderResponse,
		payment.PhoneNumber,
		payment.ErrorMessage,
		payment.CompletedAt,
		payment.DueDate,
		payment.Metadata,
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	return translate(err)
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`

	var payment domain.Payment
	if err := r.db.GetContext(ctx, &payment, query, transactionID); err != nil {
		return nil, translate(err)
	}

	return &payment, nil
}

func (r *paymentRepository) GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1 FOR UPDATE`

	var payment domain.Payment
	if err := r.db.GetContext(ctx, &payment, query, transactionID); err != nil {
		return nil, translate(err)
	}

	return &payment, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET method = $2, status = $3, provider_transaction_id = $4, provider_response = $5,
			error_message = $6, completed_at = $7, metadata = $8, updated_at = $9
		WHERE transaction_id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		payment.TransactionID,
		payment.Method,
		payment.Status,
		payment.ProviderTransactionID,
		payment.ProviderResponse,
		payment.ErrorMessage,
		payment.CompletedAt,
		payment.Metadata,
		payment.UpdatedAt,
	)

	return expectOne(res, err)
}

func (r *paymentRepository) ListStale(ctx context.Context, before time.Time, after Cursor, limit int) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN ('pending', 'processing') AND updated_at < $1
			AND (updated_at, id) > ($2, $3)
		ORDER BY updated_at, id
		LIMIT NULLIF($4, 0)
	`

	var payments []*domain.Payment
	if err := r.db.SelectContext(ctx, &payments, query, before, after.At, after.ID, limit); err != nil {
		return nil, err
	}

	return payments, nil
}
