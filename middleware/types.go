package middleware

import "time"

// ReadSymbolRequest asks for a symbol value of a known size.
type ReadSymbolRequest struct {
	// Size is the value size in bytes.
	Size int `json:"size"`
}

// SymbolValueResponse carries a symbol value as base64 bytes.
type SymbolValueResponse struct {
	Symbol    string    `json:"symbol"`
	Data      []byte    `json:"data"` // base64 in JSON
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteSymbolRequest carries a value to write, as base64 bytes.
type WriteSymbolRequest struct {
	Data []byte `json:"data"`
}

// WriteSymbolResponse acknowledges a symbol write.
type WriteSymbolResponse struct {
	Symbol  string `json:"symbol"`
	Written int    `json:"written"`
}

// HealthResponse reports gateway and PLC connection health.
type HealthResponse struct {
	Status     string    `json:"status"` // "healthy" or "degraded"
	Connection string    `json:"connection"`
	Timestamp  time.Time `json:"timestamp"`
}

// InfoResponse reports PLC device identity.
type InfoResponse struct {
	Target     string `json:"target"`
	AMSNetID   string `json:"ams_net_id"`
	AMSPort    uint16 `json:"ams_port"`
	DeviceName string `json:"device_name"`
	Version    string `json:"version"`
}

// StateResponse reports the PLC run state.
type StateResponse struct {
	ADSState    string `json:"ads_state"`
	DeviceState uint16 `json:"device_state"`
}

// ControlRequest asks for a PLC state transition.
type ControlRequest struct {
	// Command is one of "start", "stop", "reset".
	Command string `json:"command"`
}

// ControlResponse acknowledges a control command.
type ControlResponse struct {
	Command  string `json:"command"`
	ADSState string `json:"ads_state"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
