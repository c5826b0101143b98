// Package protocol defines the newline-delimited JSON command envelope
// exchanged with the parent process over stdin/stdout.
package protocol

import "encoding/json"

// ErrorKind is the closed set of error kinds command handlers can return.
type ErrorKind string

const (
	ErrInvalidParams      ErrorKind = "invalid_params"
	ErrUnsupported        ErrorKind = "unsupported"
	ErrNotFound           ErrorKind = "not_found"
	ErrSessionMismatch    ErrorKind = "session_mismatch"
	ErrPlatformInitFailed ErrorKind = "platform_init_failure"
	ErrDeviceLost         ErrorKind = "device_lost"
	ErrTargetExited       ErrorKind = "target_exited"
	ErrCaptureError       ErrorKind = "capture_error"
)

// Request is an inbound command. ID is optional — requests without an ID
// get no response, only side effects.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorBody is the error payload of a failed Response.
type ErrorBody struct {
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message"`
}

// Response is the reply to a Request carrying a non-empty ID.
type Response struct {
	ID     string      `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// Event is an unsolicited, asynchronously emitted notification.
type Event struct {
	Event  string      `json:"event"`
	Params interface{} `json:"params"`
}

// Error constructs a failed Response for request id with the given kind and
// message.
func Error(id string, kind ErrorKind, message string) Response {
	return Response{ID: id, OK: false, Error: &ErrorBody{Kind: kind, Message: message}}
}

// OK constructs a successful Response carrying result.
func OK(id string, result interface{}) Response {
	return Response{ID: id, OK: true, Result: result}
}
