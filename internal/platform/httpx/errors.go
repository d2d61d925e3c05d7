package httpx

import (
	"errors"
	"net/http"

	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// RespondError maps ledger domain errors to HTTP responses using RFC7807.
// Contention is surfaced as 503 with a retryable marker so callers can
// distinguish it from terminal failures.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrTenantMismatch):
		Problem(w, http.StatusForbidden, "Tenant Mismatch", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrContention):
		w.Header().Set("Retry-After", "1")
		JSON(w, http.StatusServiceUnavailable, ProblemDetail{
			Title:     "Contention",
			Status:    http.StatusServiceUnavailable,
			Detail:    err.Error(),
			Retryable: true,
		})
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
