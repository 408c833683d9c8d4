// Package response writes the JSON envelope used by every API endpoint.
//
// ENVELOPE:
// Every JSON response, success or error, has the same shape:
//
//	{"success": true, "message": "Login successful", "data": {...}, "statusCode": 200}
//
// Clients branch on "success" alone; "statusCode" mirrors the HTTP status so
// it survives proxies that rewrite headers.
//
// It lives outside internal/handler so the auth middleware can use it too
// without an import cycle.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/petadopt/internal/apperror"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	StatusCode int    `json:"statusCode"`
}

// JSON sends a successful envelope with the given status code.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, Envelope{
		Success:    status < http.StatusBadRequest,
		Message:    message,
		Data:       data,
		StatusCode: status,
	})
}

// write sets headers before the body; once Encode writes, headers are sent.
func write(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		// Headers are already out; all we can do is log.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// StatusOf maps a domain error to its HTTP status code.
//
// errors.Is walks the whole chain, so a service error like
//
//	fmt.Errorf("service/identity: registering: %w", apperror.Conflict(...))
//
// still resolves to 409.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Error maps err to a status code and sends the error envelope.
//
// Anything that maps to 500 (upstream failures and unknown errors) gets a
// generic message. The raw error may contain SQL, file paths or provider
// responses, so it is only ever logged by the caller, never sent.
func Error(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	env := Envelope{
		Success:    false,
		Message:    "Internal server error",
		StatusCode: status,
	}

	var appErr *apperror.AppError
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		env.Message = appErr.Message
		if appErr.Field != "" && errors.Is(err, apperror.ErrValidation) {
			env.Data = map[string]string{"field": appErr.Field}
		}
	}

	write(w, env)
}
