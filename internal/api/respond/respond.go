package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/domain/events"
	"github.com/gatherly/server/internal/domain/users"
)

type messageBody struct {
	Message string `json:"message"`
}

// JSON writes the value as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if value == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(value)
}

// Message writes a plain {"message": ...} body.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, messageBody{Message: message})
}

// Error maps a domain error onto an HTTP status and writes the response.
// Unrecognized errors become opaque 500s; the cause is logged, never leaked.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("internal error")
		message = "internal server error"
	}
	Message(w, status, message)
}

func classify(err error) (int, string) {
	var validationErr events.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, validationErr.Error()
	}
	var filterErr events.FilterError
	if errors.As(err, &filterErr) {
		return http.StatusBadRequest, filterErr.Error()
	}
	var userValidationErr users.ValidationError
	if errors.As(err, &userValidationErr) {
		return http.StatusBadRequest, userValidationErr.Error()
	}

	switch {
	case errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, users.ErrEmailTaken):
		return http.StatusConflict, "email is already registered"
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, users.ErrCodeNotFound):
		return http.StatusNotFound, "connection code not found or expired"
	case errors.Is(err, users.ErrSelfConnection):
		return http.StatusBadRequest, "cannot connect to yourself"
	case errors.Is(err, users.ErrAlreadyConnected):
		return http.StatusBadRequest, "already connected to this user"
	case errors.Is(err, users.ErrConnectionNotFound):
		return http.StatusNotFound, "connection not found"
	case errors.Is(err, users.ErrNotConnected):
		return http.StatusBadRequest, "not connected to this user"

	case errors.Is(err, events.ErrNotFound):
		return http.StatusNotFound, "event not found"
	case errors.Is(err, events.ErrForbidden):
		return http.StatusForbidden, "you do not own this event"
	case errors.Is(err, events.ErrCategoryNotFound):
		return http.StatusBadRequest, "unknown category"
	case errors.Is(err, events.ErrAlreadyCopied):
		return http.StatusBadRequest, "event was already copied"
	case errors.Is(err, events.ErrSelfCopy):
		return http.StatusBadRequest, "cannot copy your own event"

	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid or missing token"
	}
	return http.StatusInternalServerError, ""
}

// Decode reads a JSON request body into dst, limiting its size.
func Decode(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

// BadRequest is for malformed request bodies and parameters.
func BadRequest(w http.ResponseWriter, message string) {
	Message(w, http.StatusBadRequest, message)
}
