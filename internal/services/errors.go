package services

import (
	"fmt"
	"time"

	"github.com/abrezinsky/voterewards/internal/errors"
)

// Service errors
var (
	ErrUnauthenticated    = errors.Unauthenticated("unknown user")
	ErrSiteNotFound       = errors.NotFound("site not found")
	ErrUserNotFound       = errors.NotFound("user not found")
	ErrRewardNotFound     = errors.NotFound("reward not found")
	ErrVoteNotVerified    = &ServiceError{Message: "Your vote could not be verified on the voting site"}
	ErrInvalidServer      = &ServiceError{Message: "invalid server"}
	ErrNoPingback         = errors.NotFound("no pingback verifier for this domain")
	ErrInvalidPingbackKey = errors.Unauthenticated("invalid pingback key")
	ErrCommandNotFound    = errors.NotFound("command not found")
)

// ServiceError represents a service-level error
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TooSoonError is returned when the user or IP is still in a cooldown window
type TooSoonError struct {
	Next      time.Time
	Remaining time.Duration
	Message   string
}

func newTooSoonError(next, now time.Time) *TooSoonError {
	remaining := next.Sub(now)
	return &TooSoonError{
		Next:      next,
		Remaining: remaining,
		Message:   fmt.Sprintf("You already voted, you can vote again in %s !", FormatRemaining(remaining)),
	}
}

func (e *TooSoonError) Error() string {
	return e.Message
}
