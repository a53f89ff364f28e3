package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/service"
	customError "github.com/segyhp/rental-billing/pkg/errors"
	"github.com/segyhp/rental-billing/pkg/response"
)

type PaymentHandler struct {
	initiator *service.PaymentInitiator
	validator *validator.Validate
}

func NewPaymentHandler(initiator *service.PaymentInitiator) *PaymentHandler {
	return &PaymentHandler{
		initiator: initiator,
		validator: validator.New(),
	}
}

// Initiate opens a payment against an appointment or invoice
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req domain.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.FromError(w, customError.WrapValidation("Invalid request body", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.FromError(w, customError.WrapValidation(err.Error(), err))
		return
	}

	kind, err := domain.ParsePayableKind(req.PayableType)
	if err != nil {
		response.FromError(w, customError.WrapValidation(err.Error(), err))
		return
	}
	id, err := uuid.Parse(req.PayableID)
	if err != nil {
		response.FromError(w, customError.WrapValidation("payable_id must be a UUID", err))
		return
	}

	result, err := h.initiator.Initiate(r.Context(), service.InitiateRequest{
		Payable: domain.PayableRef{Kind: kind, ID: id},
		Phone:   req.Phone,
		Method:  domain.PaymentMethod(req.Method),
	})
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, result)
}

// Get returns the stored status of a payment
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.initiator.GetStatus(r.Context(), mux.Vars(r)["transactionId"])
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, domain.NewPaymentStatusResponse(p))
}

// Cancel abandons an open payment
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, err := h.initiator.Cancel(r.Context(), mux.Vars(r)["transactionId"])
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, domain.NewPaymentStatusResponse(p))
}
