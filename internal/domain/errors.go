package domain

import (
	"fmt"
	"time"
)

// Error types for consistent error handling across the bot.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates the banking API rejected the credential.
// It is terminal: callers must not retry with the same credential.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "invalid token"
}

// DefaultRetryAfter is used when a 429 response carries no usable Retry-After.
const DefaultRetryAfter = 60 * time.Second

// ErrRateLimited indicates the banking API asked us to back off.
type ErrRateLimited struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// ErrAPI is any other non-2xx answer from the banking API.
type ErrAPI struct {
	Status int
	Body   string
}

func (e *ErrAPI) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.Status, e.Body)
}

// ErrStoreUnavailable means no chat-scoped store could be resolved for the call.
type ErrStoreUnavailable struct {
	ChatID int64
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("chat store unavailable for chat %d", e.ChatID)
}

// ErrUserUnreachable means the chat platform refused delivery (bot blocked, chat gone).
type ErrUserUnreachable struct {
	ChatID int64
	Err    error
}

func (e *ErrUserUnreachable) Error() string {
	return fmt.Sprintf("user %d unreachable: %v", e.ChatID, e.Err)
}

func (e *ErrUserUnreachable) Unwrap() error {
	return e.Err
}
