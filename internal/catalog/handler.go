// internal/catalog/handler.go
package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid book ID")
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing search query")
		return
	}

	books, err := h.service.Search(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if books == nil {
		books = []*Book{}
	}

	writeJSON(w, http.StatusOK, books)
}

func (h *Handler) HandleAdjustInventory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid book ID")
		return
	}

	var req struct {
		Direction string `json:"direction"`
		Amount    int    `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	summary, err := h.service.AdjustInventory(r.Context(), id, Direction(req.Direction), req.Amount)
	if err != nil {
		var invalid *InvalidAdjustmentError
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error": map[string]interface{}{
					"code":         "invalid_adjustment",
					"message":      invalid.Error(),
					"total_copies": invalid.TotalCopies,
					"sold":         invalid.Sold,
					"direction":    invalid.Direction,
					"amount":       invalid.Amount,
				},
			})
		default:
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, summary)
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
