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

type LeaseHandler struct {
	leases    *service.LeaseService
	validator *validator.Validate
}

func NewLeaseHandler(leases *service.LeaseService) *LeaseHandler {
	return &LeaseHandler{
		leases:    leases,
		validator: validator.New(),
	}
}

func leaseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["leaseId"])
	if err != nil {
		return uuid.Nil, customError.WrapValidation("leaseId must be a UUID", err)
	}
	return id, nil
}

// Approve activates a pending lease and issues its first rent invoice
func (h *LeaseHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := leaseID(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	var req domain.ApproveLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.FromError(w, customError.WrapValidation("Invalid request body", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.FromError(w, customError.WrapValidation(err.Error(), err))
		return
	}

	lease, err := h.leases.Approve(r.Context(), id, uuid.MustParse(req.ApprovedBy))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, lease)
}

// Terminate ends an active lease
func (h *LeaseHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	id, err := leaseID(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	lease, err := h.leases.Terminate(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, lease)
}
