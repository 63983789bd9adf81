package domain

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrPastTravelDate       = errors.New("travel date cannot be in the past")
	ErrSdkLoadFailed        = errors.New("payment widget failed to load")
	ErrOrderCreationFailed  = errors.New("unable to create payment order")
	ErrWidgetFailure        = errors.New("payment failed")
	ErrVerificationFailed   = errors.New("payment verification failed")
	ErrAlreadySettled       = errors.New("widget session already settled")
)

// Kind classifies err into a stable, lower-case label used in logs,
// metrics and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPastTravelDate):
		return "past_travel_date"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSdkLoadFailed):
		return "sdk_load_failed"
	case errors.Is(err, ErrOrderCreationFailed):
		return "order_creation_failed"
	case errors.Is(err, ErrWidgetFailure):
		return "widget_failure"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrSerializationFailure):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

// Invalid returns an ErrInvalidInput carrying msg as its message.
func Invalid(msg string) error {
	return errors.Mark(errors.New(msg), ErrInvalidInput)
}
