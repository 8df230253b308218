package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest        = errors.New("bad request")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrRateLimited       = errors.New("too many render requests")
)

// wrap annotates err with the failing operation.
func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidUserID):
		return http.StatusBadRequest, "invalid_user_id"
	case errors.Is(err, model.ErrUnknownWindow):
		return http.StatusBadRequest, "unknown_window"
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrWrite):
		return http.StatusInternalServerError, "write_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
