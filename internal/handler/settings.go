package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/segyhp/rental-billing/internal/service"
	customError "github.com/segyhp/rental-billing/pkg/errors"
	"github.com/segyhp/rental-billing/pkg/response"
)

type SettingsHandler struct {
	settings *service.SettingsProvider
}

func NewSettingsHandler(settings *service.SettingsProvider) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

type updateSettingRequest struct {
	Value string `json:"value"`
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, s)
}

// Update sets one business setting, e.g. PUT /settings/visit_price {"value":"7500"}
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.FromError(w, customError.WrapValidation("Invalid request body", err))
		return
	}

	s, err := h.settings.Update(r.Context(), mux.Vars(r)["key"], req.Value)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, s)
}
