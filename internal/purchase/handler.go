// internal/purchase/handler.go
package purchase

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandlePaymentWebhook accepts payment confirmations from the provider. It
// answers 200 for any processed event, including full redeliveries, so the
// provider stops retrying; per-line rejections are carried in the body.
func (h *Handler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var evt PaymentConfirmedEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.service.HandlePaymentConfirmed(r.Context(), evt)
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": message},
	})
}
