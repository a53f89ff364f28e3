package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/service"
	customError "github.com/segyhp/rental-billing/pkg/errors"
	"github.com/segyhp/rental-billing/pkg/response"
)

type InvoiceHandler struct {
	invoices  *service.InvoiceService
	validator *validator.Validate
}

func NewInvoiceHandler(invoices *service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{
		invoices:  invoices,
		validator: validator.New(),
	}
}

// CreateForLease issues a landlord's utility invoice against a lease
func (h *InvoiceHandler) CreateForLease(w http.ResponseWriter, r *http.Request) {
	id, err := leaseID(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	var req domain.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.FromError(w, customError.WrapValidation("Invalid request body", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.FromError(w, customError.WrapValidation(err.Error(), err))
		return
	}
	due, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		response.FromError(w, customError.WrapValidation("due_date must be YYYY-MM-DD", err))
		return
	}

	invoice, err := h.invoices.CreateForLease(r.Context(), service.InvoiceRequest{
		LeaseID:     id,
		LandlordID:  uuid.MustParse(req.LandlordID),
		Type:        domain.InvoiceType(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
		DueDate:     due,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, invoice)
}

// Cancel voids an unpaid invoice
func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["invoiceId"])
	if err != nil {
		response.FromError(w, customError.WrapValidation("invoiceId must be a UUID", err))
		return
	}

	invoice, err := h.invoices.Cancel(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, invoice)
}
