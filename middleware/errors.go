package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mrpasztoradam/goadsrt"
)

// Error codes.
const (
	ErrCodeSymbolNotFound     = "SYMBOL_NOT_FOUND"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeSizeMismatch       = "SIZE_MISMATCH"
	ErrCodeWriteFailed        = "WRITE_FAILED"
	ErrCodeSubscriptionLimit  = "SUBSCRIPTION_LIMIT_REACHED"
	ErrCodePLCConnectionError = "PLC_CONNECTION_ERROR"
	ErrCodePLCTimeout         = "PLC_TIMEOUT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// HTTPError is an error with an HTTP status code and a JSON envelope.
type HTTPError struct {
	StatusCode int
	Response   ErrorResponse
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Response.Error.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, code, message string, details map[string]any) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Response: ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: message,
				Details: details,
			},
		},
	}
}

// NewSymbolNotFoundError creates a symbol not found error.
func NewSymbolNotFoundError(symbol string) *HTTPError {
	return NewHTTPError(
		http.StatusNotFound,
		ErrCodeSymbolNotFound,
		"Symbol not found in PLC",
		map[string]any{"symbol": symbol},
	)
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *HTTPError {
	return NewHTTPError(
		http.StatusBadRequest,
		ErrCodeInvalidRequest,
		message,
		nil,
	)
}

// NewSubscriptionLimitError creates a subscription limit error.
func NewSubscriptionLimitError(max int) *HTTPError {
	return NewHTTPError(
		http.StatusTooManyRequests,
		ErrCodeSubscriptionLimit,
		"Maximum subscription limit reached",
		map[string]any{"maximum": max},
	)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *HTTPError {
	return NewHTTPError(
		http.StatusInternalServerError,
		ErrCodeInternalError,
		message,
		nil,
	)
}

// FromClientError maps a goadsrt error to an HTTP error.
func FromClientError(symbol string, err error) *HTTPError {
	switch goadsrt.Classify(err) {
	case goadsrt.CategoryConnection, goadsrt.CategoryClosed:
		return NewHTTPError(
			http.StatusServiceUnavailable,
			ErrCodePLCConnectionError,
			"PLC connection unavailable",
			map[string]any{"reason": err.Error()},
		)
	case goadsrt.CategoryTimeout:
		return NewHTTPError(
			http.StatusGatewayTimeout,
			ErrCodePLCTimeout,
			"PLC did not respond in time",
			nil,
		)
	case goadsrt.CategoryValidation:
		return NewHTTPError(
			http.StatusBadRequest,
			ErrCodeSizeMismatch,
			err.Error(),
			map[string]any{"symbol": symbol},
		)
	case goadsrt.CategoryDevice:
		if errors.Is(err, goadsrt.ErrInvalidHandle) || errors.Is(err, goadsrt.ErrDeviceSymbolNotFound) {
			return NewSymbolNotFoundError(symbol)
		}
		return NewHTTPError(
			http.StatusBadGateway,
			ErrCodeWriteFailed,
			"PLC rejected the command",
			map[string]any{"symbol": symbol, "reason": err.Error()},
		)
	}
	return NewInternalError(err.Error())
}

// WriteError writes an error response to the HTTP response writer.
func WriteError(w http.ResponseWriter, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = NewInternalError(err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.StatusCode)
	json.NewEncoder(w).Encode(httpErr.Response)
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}
