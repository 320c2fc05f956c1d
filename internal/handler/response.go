package handler

// RESPONSE HELPERS:
// Every response from the API uses one envelope.
//
// Success:
//   {"statusCode":200,"data":{...},"message":"User logged in successfully","success":true}
//
// Failure:
//   {"statusCode":409,"message":"User with email or username already exists","success":false,
//    "errors":[{"field":"username","message":"User with email or username already exists"}]}
//
// success is always statusCode < 400, so clients can check either one.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/videotube/internal/apperror"
)

// Response is the success envelope.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	StatusCode int          `json:"statusCode"`
	Message    string       `json:"message"`
	Success    bool         `json:"success"`
	Errors     []FieldError `json:"errors"`
}

// FieldError points at the input that caused a failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set BEFORE the body: once Encode writes,
// header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, status, Response{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUpload):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to a failure envelope.
//
// Services never know about status codes; this is the one place they are
// decided. errors.Is walks the whole %w chain, so however many layers wrapped
// the AppError, its sentinel is still found.
//
// Internal and unknown errors are logged in full and answered with a generic
// message: their text may contain SQL, paths or driver detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || status == http.StatusInternalServerError {
		logger.Error("request failed", slog.String("error", err.Error()))
		message := "Something went wrong"
		if appErr != nil && appErr.Message != "" {
			message = appErr.Message
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Message:    message,
			Errors:     []FieldError{},
		})
		return
	}

	fieldErrs := []FieldError{}
	if appErr.Field != "" {
		fieldErrs = append(fieldErrs, FieldError{Field: appErr.Field, Message: appErr.Message})
	}

	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Message:    appErr.Message,
		Success:    false,
		Errors:     fieldErrs,
	})
}
