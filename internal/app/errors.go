package app

import (
	"errors"
	"fmt"

	"orderchat/pkg/domain"
)

// Domain failures raised at the point of detection and mapped to HTTP or
// socket error envelopes only at the boundary. Messages are user-facing.
var (
	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailExists              = errors.New("User with this email already exists")
	ErrUserNotFound             = errors.New("User not found")
	ErrInvalidPassword          = errors.New("Invalid email or password")
	ErrTokenInvalid             = errors.New("Invalid or expired token, please login")

	ErrOrderFieldsRequired = errors.New("description and a positive quantity are required")
	ErrOrderNotFound       = errors.New("Order not found.")

	ErrChatRoomNotFound      = errors.New("Chat room not found.")
	ErrChatRoomClosed        = errors.New("Chat room is closed.")
	ErrChatAlreadyClosed     = errors.New("Chat room is already closed.")
	ErrChatAccessDenied      = errors.New("You do not have access to this chat room.")
	ErrMessageFieldsRequired = errors.New("chatRoomId and content are required")
)

// InvalidTransitionError reports a rejected order status transition and
// names the current state for diagnostics.
type InvalidTransitionError struct {
	Current  domain.OrderStatus
	Required domain.OrderStatus
	Target   domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("Order must be in %s state to be marked as %s. Current state: %s",
		e.Required, e.Target, e.Current)
}
