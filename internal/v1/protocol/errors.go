package protocol

// Wire error reasons. These travel to clients in an error frame's payload;
// internal error text never does.
const (
	ErrInvalidJSON    = "invalid_json"
	ErrInvalidMessage = "invalid_message"
	ErrUnknownType    = "unknown_type"
	ErrAuthRequired   = "auth_required"
	ErrAuthFailed     = "auth_failed"
	ErrTokenExpired   = "token_expired"
	ErrRateLimited    = "rate_limited"
	ErrServerError    = "server_error"

	// ErrJoinRequiresRoom is its own reason rather than a message under
	// invalid_message; clients match on it.
	ErrJoinRequiresRoom = "join requires roomId"
)

// DecodeError describes why a frame failed decoding. Reason is one of the
// wire error reasons above; Details carries the schema violation for the
// client.
type DecodeError struct {
	Reason  string
	Details string
}

func (e *DecodeError) Error() string {
	return e.Reason + ": " + e.Details
}

// ErrorPayload is the payload of an error frame.
type ErrorPayload struct {
	Reason     string `json:"reason"`
	Message    string `json:"message,omitempty"`
	Details    string `json:"details,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// NewError builds a server-originated error frame.
func NewError(reason, message string) *Outbound {
	return NewOutbound(TypeError, ServerSender, ErrorPayload{Reason: reason, Message: message})
}

// NewErrorDetails builds an error frame carrying schema violation details.
func NewErrorDetails(reason, message, details string) *Outbound {
	return NewOutbound(TypeError, ServerSender, ErrorPayload{Reason: reason, Message: message, Details: details})
}

// NewRateLimited builds the rate_limited error frame with the seconds the
// client should wait before retrying.
func NewRateLimited(retryAfter int) *Outbound {
	return NewOutbound(TypeError, ServerSender, ErrorPayload{Reason: ErrRateLimited, RetryAfter: retryAfter})
}
