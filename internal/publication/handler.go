// internal/publication/handler.go
package publication

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sarpay/internal/catalog"
	"sarpay/internal/manuscript"
	"sarpay/internal/steplog"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandlePublish runs the saga. The response always distinguishes full
// success, success with degraded soft steps, and rolled-back failure.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.service.Publish(r.Context(), req)
	if err != nil {
		h.writePublishError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) writePublishError(w http.ResponseWriter, err error) {
	var (
		validation *ValidationError
		conflict   *manuscript.StatusConflictError
		sagaErr    *SagaError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{
				"code":    "validation_failed",
				"message": validation.Error(),
				"field":   validation.Field,
			},
		})
	case errors.Is(err, manuscript.ErrNotFound):
		writeError(w, http.StatusNotFound, "manuscript_not_found", err.Error())
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": map[string]interface{}{
				"code":     "manuscript_not_publishable",
				"message":  conflict.Error(),
				"expected": conflict.Expected,
				"actual":   conflict.Actual,
			},
		})
	case errors.Is(err, catalog.ErrManuscriptAlreadyPublished):
		writeError(w, http.StatusConflict, "manuscript_already_published", err.Error())
	case errors.As(err, &sagaErr):
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": map[string]interface{}{
				"code":               "publication_failed",
				"message":            sagaErr.Error(),
				"book_id":            sagaErr.BookID,
				"step":               sagaErr.Step,
				"rollback_performed": sagaErr.Report.RollbackPerformed,
				"compensation":       sagaErr.Report.Outcomes,
			},
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// HandleRetryEmbedding re-triggers the embedding step for a book.
func (h *Handler) HandleRetryEmbedding(w http.ResponseWriter, r *http.Request) {
	h.handleRetry(w, r, steplog.StepEmbedding)
}

// HandleRetryMarketing re-triggers the marketing step for a book.
func (h *Handler) HandleRetryMarketing(w http.ResponseWriter, r *http.Request) {
	h.handleRetry(w, r, steplog.StepMarketing)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request, step steplog.Step) {
	id, err := uuid.Parse(chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid book ID")
		return
	}

	result, err := h.service.RetryStep(r.Context(), id, step)
	if err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, http.StatusNotFound, "book_not_found", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleAttemptHistory serves the durable step log for a book, including
// books a rollback has since deleted.
func (h *Handler) HandleAttemptHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid book ID")
		return
	}

	history, err := h.service.AttemptHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, history)
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
