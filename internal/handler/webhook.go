package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/segyhp/rental-billing/internal/service"
	customError "github.com/segyhp/rental-billing/pkg/errors"
	"github.com/segyhp/rental-billing/pkg/response"
)

// maxWebhookBody caps what the provider may post to us.
const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	reconciler      *service.Reconciler
	signatureHeader string
}

func NewWebhookHandler(reconciler *service.Reconciler, signatureHeader string) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = "X-Signature"
	}
	return &WebhookHandler{
		reconciler:      reconciler,
		signatureHeader: signatureHeader,
	}
}

// Payment receives the gateway's payment notification. The raw body is
// authenticated before anything is parsed.
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "Notification too large", nil)
			return
		}
		response.FromError(w, customError.WrapValidation("Unreadable notification body", err))
		return
	}

	result, err := h.reconciler.HandleWebhook(r.Context(), body,
		r.Header.Get(h.signatureHeader), r.Header.Get("Content-Type"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, result)
}
