package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/rental-billing/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var paymentRowColumns = []string{
	"id", "transaction_id", "user_id", "payable_type", "payable_id", "amount", "currency", "type", "method",
	"status", "provider", "provider_transaction_id", "provider_response", "phone_number", "error_message",
	"completed_at", "due_date", "metadata", "created_at", "updated_at",
}

func TestPaymentRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	now := time.Now()

	payment := &domain.Payment{
		ID:            uuid.New(),
		TransactionID: "HC-20250101-ABCDEF12",
		UserID:        uuid.New(),
		PayableType:   domain.PayableAppointment,
		PayableID:     uuid.New(),
		Amount:        decimal.NewFromInt(5000),
		Currency:      "XAF",
		Status:        domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tests := []struct {
		name      string
		setupMock func()
		expectErr error
	}{
		{
			name: "inserted",
			setupMock: func() {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "duplicate transaction id",
			setupMock: func() {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
					WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
			},
			expectErr: ErrDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()
			err := repo.Create(context.Background(), payment)
			if tt.expectErr != nil {
				assert.True(t, errors.Is(err, tt.expectErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPaymentRepository_GetByTransactionIDForUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	now := time.Now().UTC()
	payableID := uuid.New()

	rows := sqlmock.NewRows(paymentRowColumns).AddRow(
		uuid.New().String(), "HC-20250101-ABCDEF12", uuid.New().String(), "invoice", payableID.String(),
		"150000.00", "XAF", "rent", "mobile_money", "processing", "cinetpay", "tok_1",
		[]byte(`{"code":"201"}`), "+24106000000", "", nil, nil, []byte(`{}`), now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE transaction_id = $1 FOR UPDATE")).
		WithArgs("HC-20250101-ABCDEF12").
		WillReturnRows(rows)

	p, err := repo.GetByTransactionIDForUpdate(context.Background(), "HC-20250101-ABCDEF12")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceRef(payableID), p.Payable())
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, domain.PaymentStatusProcessing, p.Status)
	assert.Nil(t, p.CompletedAt)
	assert.JSONEq(t, `{"code":"201"}`, string(p.ProviderResponse))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE transaction_id = $1")).
		WithArgs("HC-missing").
		WillReturnRows(sqlmock.NewRows(paymentRowColumns))

	_, err := repo.GetByTransactionID(context.Background(), "HC-missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Update(context.Background(), &domain.Payment{TransactionID: "HC-missing"})
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_ListStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	now := time.Now().UTC()
	cursor := Cursor{At: now.Add(-48 * time.Hour), ID: uuid.New()}

	rows := sqlmock.NewRows(paymentRowColumns).AddRow(
		uuid.New().String(), "HC-20250101-ABCDEF12", uuid.New().String(), "appointment", uuid.New().String(),
		"5000.00", "XAF", "visit", "mobile_money", "processing", "cinetpay", "tok_1",
		[]byte(`{}`), "+24106000000", "", nil, nil, []byte(`{}`), now.Add(-72*time.Hour), now.Add(-30*time.Hour),
	)
	mock.ExpectQuery(regexp.QuoteMeta("AND (updated_at, id) > ($2, $3) ORDER BY updated_at, id LIMIT NULLIF($4, 0)")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), cursor.ID.String(), 1).
		WillReturnRows(rows)

	payments, err := repo.ListStale(context.Background(), now.Add(-24*time.Hour), cursor, 1)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusProcessing, payments[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_ExistsForPeriod(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db)
	leaseID := uuid.New()
	loc := time.FixedZone("WAT", 3600)
	periodStart := time.Date(2025, 3, 1, 0, 0, 0, 0, loc)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(leaseID, domain.InvoiceTypeRent, "2025-03-01").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForPeriod(context.Background(), leaseID, domain.InvoiceTypeRent, periodStart)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaseRepository_UpdateActiveConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLeaseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE leases")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "leases_one_active_per_property"})

	err := repo.Update(context.Background(), &domain.Lease{ID: uuid.New(), Status: domain.LeaseStatusActive})
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(context.Background(), func(tx Store) error {
			// nested calls join the outer transaction
			return tx.WithinTx(context.Background(), func(inner Store) error {
				entry := domain.NewAuditEntry(domain.AuditCreated, domain.EntityPayment, uuid.New(), nil, map[string]string{"a": "b"}, time.Now())
				return inner.Audit().Record(context.Background(), entry)
			})
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewStore(db)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.WithinTx(context.Background(), func(tx Store) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
