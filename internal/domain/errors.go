package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLockHeld         = errors.New("lock already held")
	ErrDuplicateTrigger = errors.New("duplicate trigger")
	ErrInvalidCoupon    = errors.New("invalid coupon")
	ErrInvalidInput     = errors.New("invalid input")
)

// ConfigurationError reports that no usable weights could be resolved. The
// operator has to fix the configuration; retrying does not help.
type ConfigurationError struct {
	League    string
	Market    Market
	MatchType string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: league=%q market=%s match_type=%q: %s",
		e.League, e.Market, e.MatchType, e.Reason)
}

// InsufficientDataError reports that no agent submitted an opinion for a
// market. It is retryable once more opinions arrive.
type InsufficientDataError struct {
	FixtureID int64
	Market    Market
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: fixture %d market %s has no agent opinions", e.FixtureID, e.Market)
}

// UnresolvedFixtureError reports a settlement attempt before a final score
// exists. Nothing is mutated and the call can be retried later.
type UnresolvedFixtureError struct {
	FixtureID int64
	Reason    string
}

func (e *UnresolvedFixtureError) Error() string {
	return fmt.Sprintf("unresolved fixture %d: %s", e.FixtureID, e.Reason)
}

// AlreadySettledWarning is raised when a terminal record is graded again. It is
// logged and ignored, never surfaced as a failure.
type AlreadySettledWarning struct {
	FixtureID int64
	Market    Market
}

func (e *AlreadySettledWarning) Error() string {
	return fmt.Sprintf("fixture %d market %s already settled", e.FixtureID, e.Market)
}

// IsRetryable reports whether err is expected to clear up on its own.
func IsRetryable(err error) bool {
	var insufficient *InsufficientDataError
	var unresolved *UnresolvedFixtureError
	switch {
	case errors.As(err, &insufficient), errors.As(err, &unresolved):
		return true
	case errors.Is(err, ErrLockHeld), errors.Is(err, ErrRateLimited):
		return true
	default:
		return false
	}
}
