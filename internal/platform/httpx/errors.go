// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/comercia/comercia/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var conflict *shared.ConflictError
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &conflict):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:    "Conflict",
			Status:   http.StatusConflict,
			Detail:   conflict.Reason,
			Blocking: conflict.Blocking,
		})
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Unprocessable reports a request that is well formed but cannot proceed
// until the listed fields are supplied.
func Unprocessable(w http.ResponseWriter, detail string, missing []string) {
	JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
		Title:   "Unprocessable Entity",
		Status:  http.StatusUnprocessableEntity,
		Detail:  detail,
		Missing: missing,
	})
}
