package http

import (
	"fmt"
	"net/http"
)

// AppError carries the status and reason code an error is reported with.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Status  int            `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func BadRequestError(message string) *AppError {
	return NewAppError("INVALID_INPUT", "", message, http.StatusBadRequest)
}

func NotFoundError(message string) *AppError {
	return NewAppError("NOT_FOUND", "", message, http.StatusNotFound)
}

func NotFoundErrorf(format string, a ...any) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

// UpstreamError is a 502 for a failed data source.
func UpstreamError(message string) *AppError {
	return NewAppError("UPSTREAM_ERROR", "", message, http.StatusBadGateway)
}

func InternalError(message string) *AppError {
	return NewAppError("INTERNAL", "", message, http.StatusInternalServerError)
}
