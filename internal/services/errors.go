// Package services defines the business logic for chatrooms, messaging,
// subscriptions, and quota enforcement. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrChatroomNotFound indicates that the requested chatroom does not
	// exist or is not accessible to the current user.
	ErrChatroomNotFound = errors.New("chatroom not found")

	// ErrEmptyPrompt is returned when a request to send a message contains
	// an empty prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a message exceeds the maximum configured
	// length limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrQuotaExceeded is returned when a basic-plan user has used up the
	// daily prompt allowance. The caller cannot retry before the next
	// UTC day.
	ErrQuotaExceeded = errors.New("daily limit exceeded, upgrade to Pro for unlimited access")
)
