package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.Webhook("processed")
	r.Webhook("processed")
	r.Webhook("invalid_signature")
	r.GatewayRequest("check", "ok", 120*time.Millisecond)
	r.JobRun("monthly_invoices", "ok", time.Second)
	r.JobEntities("monthly_invoices", "processed", 4)
	r.JobEntities("monthly_invoices", "failed", 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.webhooks.WithLabelValues("processed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.webhooks.WithLabelValues("invalid_signature")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.gatewayRequests.WithLabelValues("check", "ok")))
	assert.Equal(t, float64(4), testutil.ToFloat64(r.jobEntities.WithLabelValues("monthly_invoices", "processed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobEntities))
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Webhook("processed")
		r.PaymentInitiated("invoice", "ok")
		r.Reconciled("webhook", "completed")
		r.GatewayRequest("payment", "ok", time.Millisecond)
		r.JobRun("job", "ok", time.Millisecond)
		r.JobEntities("job", "processed", 1)
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.Reconciled("webhook", "completed")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `rental_billing_payments_reconciled_total{source="webhook",status="completed"} 1`))
}
