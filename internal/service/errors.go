package service

import (
	"errors"
	"fmt"

	"github.com/internflow/internflow-api/internal/models"
)

// ErrPermissionDenied indicates the caller may not perform the operation on
// the targeted pair of users.
var ErrPermissionDenied = errors.New("permission denied")

// ErrDuplicateEvaluation indicates a non-rejected rating already occupies the
// (evaluator, evaluated, type, period) slot.
var ErrDuplicateEvaluation = errors.New("an active evaluation already exists for this slot")

// ErrRatingNotFound indicates the referenced rating id does not exist.
var ErrRatingNotFound = errors.New("rating not found")

// ErrUserNotFound indicates the user directory has no record for the id.
var ErrUserNotFound = errors.New("user not found")

// ErrNotEditable indicates a mutation was attempted on a rating that already
// left the draft state.
var ErrNotEditable = errors.New("rating is no longer editable")

// ErrAlreadyResponded indicates the evaluated user already used their one-time
// response.
var ErrAlreadyResponded = errors.New("a response was already recorded for this rating")

// ErrStoreUnavailable wraps infrastructure faults from the rating store so
// callers can retry with backoff; business errors are never wrapped in it.
var ErrStoreUnavailable = errors.New("rating store unavailable")

// InvalidTransitionError reports a lifecycle edge that does not exist from the
// rating's current state.
type InvalidTransitionError struct {
	From      models.RatingStatus
	Requested LifecycleEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a rating in status %q", e.Requested, e.From)
}

// ValidationError reports business-rule validation failures such as scores out
// of range or an unpaired evaluation period.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidTransition reports whether err is a lifecycle transition failure.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a business validation failure.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
