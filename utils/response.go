package utils

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"petpet/apperr"
)

// Envelope is the body shape of every JSON response.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data"`
	Errors  []string `json:"errors,omitempty"`
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// SendResponse wraps data in a successful envelope.
func SendResponse(w http.ResponseWriter, status int, data any, message string) {
	RespondWithJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// SendError writes a failed envelope with an explicit status.
func SendError(w http.ResponseWriter, status int, message string, errs ...string) {
	RespondWithJSON(w, status, Envelope{Success: false, Message: message, Errors: errs})
}

// RespondWithError maps a service error onto a status code. Anything that is
// not an *apperr.Error is logged and reported as an opaque 500.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.Internal {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		SendError(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}
	SendError(w, StatusFor(e.Kind), e.Message, e.Details...)
}

func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidArgument, apperr.EmptyCart, apperr.InsufficientStock:
		return http.StatusBadRequest
	case apperr.Conflict, apperr.InvalidTransition:
		return http.StatusConflict
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads a JSON request body of at most 1 MB into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.E(apperr.InvalidArgument, "Invalid JSON payload", err.Error())
	}
	return nil
}
