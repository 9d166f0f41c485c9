package events

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("event not found")

// ErrForbidden is returned when a caller tries to mutate an event they do
// not own.
var ErrForbidden = errors.New("you do not have permission to modify this event")

var ErrCategoryNotFound = errors.New("event category not found")

// ErrAlreadyCopied is returned when a user tries to claim a second personal
// copy of the same source event.
var ErrAlreadyCopied = errors.New("event already added to your events")

var ErrSelfCopy = errors.New("cannot copy your own event")

// ValidationError carries a field-level input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// FilterError reports an invalid query-string filter.
type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
