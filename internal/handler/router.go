package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/pkg/response"
)

type Handlers struct {
	Payments *PaymentHandler
	Webhooks *WebhookHandler
	Leases   *LeaseHandler
	Invoices *InvoiceHandler
	Settings *SettingsHandler
	Health   *HealthHandler
	Metrics  http.Handler
}

func NewRouter(h Handlers, log *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestIDMiddleware(log))
	router.Use(response.LoggingMiddleware(log))

	// Health check
	router.HandleFunc("/health", h.Health.Health).Methods("GET")
	router.HandleFunc("/health/ready", h.Health.Ready).Methods("GET")
	if h.Metrics != nil {
		router.Handle("/metrics", h.Metrics).Methods("GET")
	}

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(response.JSONMiddleware)

	api.HandleFunc("/payments/initiate", h.Payments.Initiate).Methods("POST")
	api.HandleFunc("/payments/{transactionId}", h.Payments.Get).Methods("GET")
	api.HandleFunc("/payments/{transactionId}/cancel", h.Payments.Cancel).Methods("POST")

	api.HandleFunc("/webhooks/payment", h.Webhooks.Payment).Methods("POST")

	api.HandleFunc("/leases/{leaseId}/approve", h.Leases.Approve).Methods("POST")
	api.HandleFunc("/leases/{leaseId}/terminate", h.Leases.Terminate).Methods("POST")
	api.HandleFunc("/leases/{leaseId}/invoices", h.Invoices.CreateForLease).Methods("POST")

	api.HandleFunc("/invoices/{invoiceId}/cancel", h.Invoices.Cancel).Methods("POST")

	api.HandleFunc("/settings", h.Settings.Get).Methods("GET")
	api.HandleFunc("/settings/{key}", h.Settings.Update).Methods("PUT")

	return router
}
