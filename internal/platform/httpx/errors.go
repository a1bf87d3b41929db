package httpx

import (
	"errors"
	"net/http"

	"github.com/vela-pos/vela-pos/internal/platform/db"
)

// Sentinel errors shared across handlers.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

// RespondError maps common errors to HTTP responses using RFC7807. Handlers
// map their own domain validation errors before falling back to this.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, db.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", "the operation hit concurrent activity; retry the request")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
