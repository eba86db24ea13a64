package socket

import "encoding/json"

const (
	EventAck   = "ack"
	EventError = "error"

	EventRegister     = "register"
	EventLogin        = "login"
	EventRefreshToken = "refresh_token"
	EventLogout       = "logout"
	EventMe           = "me"
)

// Message tags sent back in acks and error frames.
const (
	MessageRegistered     = "register_successfully"
	MessageLoggedIn       = "login_successfully"
	MessageTokenRefreshed = "token_refreshed_successfully"
	MessageLoggedOut      = "logout_successfully"
	MessageAuthenticated  = "authenticated_successfully"
	MessageUnknownEvent   = "unknown_event"
	MessageInvalidFrame   = "invalid_frame"
)

// Inbound is a client event. ID is echoed back on the ack untouched.
type Inbound struct {
	Event string          `json:"event"`
	ID    json.RawMessage `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Ack struct {
	Event   string          `json:"event"`
	ID      json.RawMessage `json:"id,omitempty"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Payload Payload         `json:"payload"`
}

type Payload struct {
	Result any `json:"result,omitempty"`
	Error  any `json:"error,omitempty"`
}

// ErrorFrame is pushed when something fails outside of an event.
type ErrorFrame struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
