package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	paymentPath = "payment"
	checkPath   = "payment/check"

	codeCreated = "201"
)

// Config carries the merchant credentials and callback URLs.
type Config struct {
	BaseURL   string
	APIKey    string
	SiteID    string
	NotifyURL string
	ReturnURL string
	Timeout   time.Duration
}

// Observer receives one call per outbound request.
type Observer func(operation, outcome string, elapsed time.Duration)

type Option func(*Client)

// WithHTTPClient replaces the default client. Tests use it to point at httptest.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithObserver(o Observer) Option {
	return func(cl *Client) { cl.observe = o }
}

// Client talks to the CinetPay checkout API.
type Client struct {
	config     Config
	httpClient *http.Client
	observe    Observer
}

var _ Gateway = (*Client)(nil)

func NewClient(config Config, opts ...Option) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		observe: func(string, string, time.Duration) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type initBody struct {
	APIKey              string      `json:"apikey"`
	SiteID              string      `json:"site_id"`
	TransactionID       string      `json:"transaction_id"`
	Amount              json.Number `json:"amount"`
	Currency            string      `json:"currency"`
	Description         string      `json:"description"`
	CustomerID          string      `json:"customer_id,omitempty"`
	CustomerName        string      `json:"customer_name,omitempty"`
	CustomerEmail       string      `json:"customer_email,omitempty"`
	CustomerPhoneNumber string      `json:"customer_phone_number"`
	NotifyURL           string      `json:"notify_url"`
	ReturnURL           string      `json:"return_url"`
	Channels            string      `json:"channels"`
	Metadata            string      `json:"metadata,omitempty"`
}

type apiResponse struct {
	Code        flexString      `json:"code"`
	Message     string          `json:"message"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data"`
}

type initData struct {
	PaymentToken string `json:"payment_token"`
	PaymentURL   string `json:"payment_url"`
}

type checkData struct {
	Status        string     `json:"status"`
	Amount        flexString `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"payment_method"`
	OperatorID    string     `json:"operator_id"`
}

// Initiate registers the transaction with the provider and returns the
// checkout URL the payer is redirected to.
func (c *Client) Initiate(ctx context.Context, req InitRequest) (*InitResult, error) {
	body := initBody{
		APIKey:              c.config.APIKey,
		SiteID:              c.config.SiteID,
		TransactionID:       req.TransactionID,
		Amount:              json.Number(req.Amount.String()),
		Currency:            req.Currency,
		Description:         req.Description,
		CustomerID:          req.CustomerID,
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerPhoneNumber: req.CustomerPhone,
		NotifyURL:           c.config.NotifyURL,
		ReturnURL:           c.config.ReturnURL,
		Channels:            "ALL",
		Metadata:            req.Metadata,
	}

	status, raw, resp, err := c.post(ctx, "initiate", paymentPath, body)
	if err != nil {
		return nil, err
	}

	if resp.Code.String() != codeCreated {
		return nil, &RejectedError{Code: resp.Code.String(), Message: describe(resp, status), Raw: raw}
	}

	var data initData
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.PaymentURL == "" {
		return nil, fmt.Errorf("%w: initiate response missing payment_url", ErrUnavailable)
	}

	return &InitResult{
		PaymentURL:   data.PaymentURL,
		PaymentToken: data.PaymentToken,
		Raw:          raw,
	}, nil
}

// Check asks the provider for the authoritative state of a transaction.
func (c *Client) Check(ctx context.Context, transactionID string) (*CheckResult, error) {
	body := map[string]string{
		"apikey":         c.config.APIKey,
		"site_id":        c.config.SiteID,
		"transaction_id": transactionID,
	}

	status, raw, resp, err := c.post(ctx, "check", checkPath, body)
	if err != nil {
		return nil, err
	}

	var data checkData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: check response data: %v", ErrUnavailable, err)
		}
	}

	if data.Status == "" {
		if status >= 400 {
			return nil, &RejectedError{Code: resp.Code.String(), Message: describe(resp, status), Raw: raw}
		}
		return &CheckResult{Status: StatusPending, Message: describe(resp, status), Raw: raw}, nil
	}

	result := &CheckResult{
		Status:        ClassifyStatus(data.Status),
		RawStatus:     data.Status,
		Currency:      data.Currency,
		PaymentMethod: data.PaymentMethod,
		OperatorID:    data.OperatorID,
		Message:       describe(resp, status),
		Raw:           raw,
	}
	if amount, err := data.Amount.Decimal(); err == nil {
		result.Amount = amount
	} else if result.Status == StatusSucceeded {
		// a success without a readable amount cannot be trusted
		return nil, fmt.Errorf("%w: check response amount %q", ErrUnavailable, data.Amount)
	}

	return result, nil
}

func (c *Client) post(ctx context.Context, op, path string, payload interface{}) (int, []byte, *apiResponse, error) {
	start := time.Now()
	status, raw, resp, err := c.doRequest(ctx, path, payload)

	var rejected *RejectedError
	outcome := "ok"
	switch {
	case errors.Is(err, ErrUnavailable):
		outcome = "unavailable"
	case errors.As(err, &rejected), err == nil && status >= 400:
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	c.observe(op, outcome, time.Since(start))

	return status, raw, resp, err
}

func (c *Client) doRequest(ctx context.Context, path string, payload interface{}) (int, []byte, *apiResponse, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("gateway: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("gateway: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return resp.StatusCode, respBody, nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return resp.StatusCode, respBody, nil, &RejectedError{
				Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
				Message: http.StatusText(resp.StatusCode),
			}
		}
		return resp.StatusCode, respBody, nil, fmt.Errorf("%w: failed to parse response: %v", ErrUnavailable, err)
	}

	return resp.StatusCode, respBody, &parsed, nil
}

func describe(resp *apiResponse, status int) string {
	parts := make([]string, 0, 2)
	if resp.Message != "" {
		parts = append(parts, resp.Message)
	}
	if resp.Description != "" {
		parts = append(parts, resp.Description)
	}
	if len(parts) == 0 {
		return http.StatusText(status)
	}
	return strings.Join(parts, ": ")
}
