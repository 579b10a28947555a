package domain

import "errors"

// Error taxonomy of the real-time core. Callers wrap these with context
// using fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrAuthentication  = errors.New("authentication error")
	ErrAccessDenied    = errors.New("access denied")
	ErrValidation      = errors.New("validation error")
	ErrPersistence     = errors.New("persistence error")
	ErrDeliveryFailure = errors.New("delivery failure")
)

// Store level errors.
var (
	ErrInvalidRoomID      = errors.New("invalid room id")
	ErrInvalidMessageID   = errors.New("invalid message id")
	ErrInvalidPrincipalID = errors.New("invalid principal id")
	ErrRoomNotFound       = errors.New("room not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrParticipantMissing = errors.New("participant not found")
)

// Transport level errors.
var (
	ErrClientClosed = errors.New("client closed")
	ErrBufferFull   = errors.New("client send buffer full")
	ErrUnknownEvent = errors.New("unknown event")
)

const (
	CodeAuthentication = "authentication_error"
	CodeAccessDenied   = "access_denied"
	CodeValidation     = "validation_error"
	CodePersistence    = "persistence_error"
	CodeInternal       = "internal_error"
)

// ErrorCode maps an error to the code sent to clients in an error event.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, ErrAccessDenied):
		return CodeAccessDenied
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownEvent):
		return CodeValidation
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	default:
		return CodeInternal
	}
}
