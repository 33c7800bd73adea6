package goadsrt

import (
	"context"
	"errors"

	"github.com/mrpasztoradam/goadsrt/internal/ads"
	"github.com/mrpasztoradam/goadsrt/internal/ams"
	"github.com/mrpasztoradam/goadsrt/internal/transport"
)

// AdsError is a device-reported ADS error code, carried either in the AMS
// header or in a command's Result field. Match with errors.As:
//
//	var adsErr goadsrt.AdsError
//	if errors.As(err, &adsErr) { ... }
type AdsError = ads.Error

// Device error codes callers most often branch on.
const (
	ErrDeviceSymbolNotFound = ads.ErrDeviceSymbolNotFound
	ErrDeviceInvalidSize    = ads.ErrDeviceInvalidSize
	ErrDeviceNotifyHandle   = ads.ErrDeviceNotifyHandle
)

// Connection and framing failures, re-exported for errors.Is.
var (
	// ErrConnectFailed: no session could be established in time.
	ErrConnectFailed = transport.ErrConnectFailed

	// ErrNotConnected: a request was issued while the transport was
	// between sessions.
	ErrNotConnected = transport.ErrNotConnected

	// ErrConnectionLost: the socket failed while the request was in
	// flight; whether the command took effect on the device is unknown.
	ErrConnectionLost = transport.ErrConnectionLost

	// ErrTimeout: no response within the request's deadline. The
	// connection itself remains healthy.
	ErrTimeout = transport.ErrTimeout

	// ErrClosed: the client was closed.
	ErrClosed = transport.ErrClosed

	// ErrMalformedFrame: the byte stream desynchronized and the
	// connection was torn down.
	ErrMalformedFrame = ams.ErrMalformedFrame
)

// Failures raised by this package on top of the wire protocol.
var (
	// ErrInvalidHandle marks a symbol handle the device rejected. The
	// local cache is dropped so the next use resolves anew; the device
	// error code is attached and also matches errors.As.
	ErrInvalidHandle = errors.New("goadsrt: symbol handle invalid")

	// ErrSizeMismatch marks a typed transfer whose encoded size does not
	// match the expected byte count. Raised before any network traffic.
	ErrSizeMismatch = errors.New("goadsrt: size mismatch")
)

// ErrorCategory groups failures by what a caller can do about them.
type ErrorCategory string

const (
	// CategoryConnection: the session is down or dying; retry after
	// reconnection.
	CategoryConnection ErrorCategory = "connection"
	// CategoryTimeout: this request expired; the session is fine.
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryDevice: the device rejected the command.
	CategoryDevice ErrorCategory = "device"
	// CategoryValidation: the caller's arguments cannot be sent.
	CategoryValidation ErrorCategory = "validation"
	// CategoryClosed: the client is shut down; no retry will help.
	CategoryClosed ErrorCategory = "closed"
	// CategoryUnknown: none of the above.
	CategoryUnknown ErrorCategory = "unknown"
)

// Classify maps an error returned by this package to its category.
func Classify(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrClosed):
		return CategoryClosed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, ErrConnectionLost), errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrConnectFailed), errors.Is(err, ErrMalformedFrame):
		return CategoryConnection
	case errors.Is(err, ErrSizeMismatch):
		return CategoryValidation
	}
	var adsErr AdsError
	if errors.As(err, &adsErr) {
		return CategoryDevice
	}
	return CategoryUnknown
}

// Retryable reports whether retrying the same request can plausibly succeed
// without caller-side changes.
func Retryable(err error) bool {
	switch Classify(err) {
	case CategoryConnection, CategoryTimeout:
		return true
	case CategoryDevice:
		var adsErr AdsError
		if errors.As(err, &adsErr) {
			return adsErr == ads.ErrDeviceBusy || adsErr == ads.ErrDeviceNotReady
		}
	}
	return false
}
