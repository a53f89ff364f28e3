package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var outcomes []string
	client := NewClient(Config{
		BaseURL:   server.URL,
		APIKey:    "key",
		SiteID:    "site",
		NotifyURL: "https://app.test/api/v1/webhooks/payment",
		ReturnURL: "https://app.test/return",
		Timeout:   2 * time.Second,
	}, WithObserver(func(op, outcome string, _ time.Duration) {
		outcomes = append(outcomes, op+":"+outcome)
	}))
	return client, &outcomes
}

func TestClient_Initiate(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectToken string
		expectErr   func(t *testing.T, err error)
	}{
		{
			name:        "created",
			status:      http.StatusOK,
			body:        `{"code":"201","message":"CREATED","data":{"payment_token":"tok_1","payment_url":"https://checkout.test/tok_1"}}`,
			expectToken: "tok_1",
		},
		{
			name:        "numeric code is accepted",
			status:      http.StatusOK,
			body:        `{"code":201,"data":{"payment_token":"tok_2","payment_url":"https://checkout.test/tok_2"}}`,
			expectToken: "tok_2",
		},
		{
			name:   "provider refusal",
			status: http.StatusBadRequest,
			body:   `{"code":"608","message":"MINIMUM_REQUIRED_FIELDS","description":"customer_phone_number is invalid"}`,
			expectErr: func(t *testing.T, err error) {
				var rejected *RejectedError
				require.True(t, errors.As(err, &rejected))
				assert.Equal(t, "608", rejected.Code)
				assert.Contains(t, rejected.Message, "customer_phone_number")
			},
		},
		{
			name:   "server error is unavailable",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			expectErr: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrUnavailable))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payment", r.URL.Path)
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "HC-20250101-AAAA0000", body["transaction_id"])
				assert.Equal(t, "ALL", body["channels"])
				assert.Equal(t, float64(5000), body["amount"])
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			result, err := client.Initiate(context.Background(), InitRequest{
				TransactionID: "HC-20250101-AAAA0000",
				Amount:        decimal.NewFromInt(5000),
				Currency:      "XAF",
				Description:   "Visit fee",
				CustomerPhone: "+24106000000",
			})

			if tt.expectErr != nil {
				require.Error(t, err)
				tt.expectErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectToken, result.PaymentToken)
			assert.NotEmpty(t, result.PaymentURL)
			assert.NotEmpty(t, result.Raw)
		})
	}
}

func TestClient_Check(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		expectStatus Status
		expectAmount decimal.Decimal
		expectErr    error
	}{
		{
			name:         "accepted",
			status:       http.StatusOK,
			body:         `{"code":"00","message":"SUCCES","data":{"amount":"5000","currency":"XAF","status":"ACCEPTED","payment_method":"OM","operator_id":"MP2501"}}`,
			expectStatus: StatusSucceeded,
			expectAmount: decimal.NewFromInt(5000),
		},
		{
			name:         "refused",
			status:       http.StatusOK,
			body:         `{"code":"600","message":"PAYMENT_FAILED","data":{"amount":5000,"currency":"XAF","status":"REFUSED"}}`,
			expectStatus: StatusFailed,
			expectAmount: decimal.NewFromInt(5000),
		},
		{
			name:         "waiting",
			status:       http.StatusOK,
			body:         `{"code":"662","message":"WAITING_CUSTOMER_PAYMENT","data":{"amount":"5000","status":"WAITING_FOR_CUSTOMER"}}`,
			expectStatus: StatusPending,
			expectAmount: decimal.NewFromInt(5000),
		},
		{
			name:      "success without amount is not trusted",
			status:    http.StatusOK,
			body:      `{"code":"00","data":{"status":"ACCEPTED"}}`,
			expectErr: ErrUnavailable,
		},
		{
			name:      "unavailable",
			status:    http.StatusServiceUnavailable,
			body:      ``,
			expectErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payment/check", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			result, err := client.Check(context.Background(), "HC-1")
			if tt.expectErr != nil {
				assert.True(t, errors.Is(err, tt.expectErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectStatus, result.Status)
			assert.True(t, tt.expectAmount.Equal(result.Amount), "Expected %v, but got %v", tt.expectAmount, result.Amount)
		})
	}
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})

	_, err := client.Check(context.Background(), "HC-1")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestClient_ObserverOutcomes(t *testing.T) {
	client, outcomes := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, _ = client.Check(context.Background(), "HC-1")
	assert.Equal(t, []string{"check:unavailable"}, *outcomes)
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, StatusSucceeded, ClassifyStatus("accepted"))
	assert.Equal(t, StatusSucceeded, ClassifyStatus("APPROVED"))
	assert.Equal(t, StatusSucceeded, ClassifyStatus("SUCCESSFUL"))
	assert.Equal(t, StatusFailed, ClassifyStatus("REFUSED"))
	assert.Equal(t, StatusFailed, ClassifyStatus("CANCELLED"))
	assert.Equal(t, StatusPending, ClassifyStatus("WAITING_FOR_CUSTOMER"))
	assert.Equal(t, StatusPending, ClassifyStatus(""))
}
