package events

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gatherly/server/internal/sanitize"
)

type DateInput struct {
	Start time.Time  `json:"start" validate:"required"`
	End   *time.Time `json:"end"`
}

type LocationInput struct {
	Venue string `json:"venue" validate:"max=150"`
	City  string `json:"city" validate:"max=50"`
}

type RecurrencePatternInput struct {
	Frequency  string     `json:"frequency" validate:"omitempty,oneof=daily weekly monthly yearly"`
	Interval   int        `json:"interval" validate:"omitempty,min=1"`
	DaysOfWeek []int      `json:"daysOfWeek" validate:"omitempty,dive,min=0,max=6"`
	StartDate  *time.Time `json:"startDate"`
	EndDate    *time.Time `json:"endDate"`
	Count      *int       `json:"count" validate:"omitempty,min=1"`
}

type RecurrenceInput struct {
	IsRecurring bool                    `json:"isRecurring"`
	Pattern     *RecurrencePatternInput `json:"pattern"`
}

type CreateEventInput struct {
	Title       string           `json:"title" validate:"required,min=3,max=100"`
	Date        DateInput        `json:"date" validate:"required"`
	Location    *LocationInput   `json:"location"`
	Description string           `json:"description" validate:"max=2000"`
	Category    uuid.UUID        `json:"category" validate:"required"`
	Attributes  map[string]any   `json:"additionalAttributes"`
	Private     bool             `json:"private"`
	Unconfirmed bool             `json:"unConfirmed"`
	Recurrence  *RecurrenceInput `json:"recurrence"`
}

// UpdateEventInput is a partial patch; nil fields are left untouched.
type UpdateEventInput struct {
	Title       *string          `json:"title" validate:"omitempty,min=3,max=100"`
	Date        *DateInput       `json:"date"`
	Location    *LocationInput   `json:"location"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Category    *uuid.UUID       `json:"category"`
	Attributes  map[string]any   `json:"additionalAttributes"`
	Private     *bool            `json:"private"`
	Unconfirmed *bool            `json:"unConfirmed"`
	Recurrence  *RecurrenceInput `json:"recurrence"`
}

func validateDateRange(date DateInput) error {
	if date.Start.IsZero() {
		return ValidationError{Field: "date.start", Message: "is required"}
	}
	if date.End != nil && date.End.Before(date.Start) {
		return ValidationError{Field: "date.end", Message: "must be the same as or after the start date"}
	}
	return nil
}

func toRecurrence(input *RecurrenceInput) Recurrence {
	if input == nil || !input.IsRecurring {
		return Recurrence{}
	}
	rec := Recurrence{IsRecurring: true}
	if input.Pattern != nil {
		rec.Pattern = &RecurrencePattern{
			Frequency:  input.Pattern.Frequency,
			Interval:   input.Pattern.Interval,
			DaysOfWeek: input.Pattern.DaysOfWeek,
			StartDate:  input.Pattern.StartDate,
			EndDate:    input.Pattern.EndDate,
			Count:      input.Pattern.Count,
		}
		if rec.Pattern.Frequency == "" {
			rec.Pattern.Frequency = FrequencyWeekly
		}
		if rec.Pattern.Interval < 1 {
			rec.Pattern.Interval = 1
		}
	}
	return rec
}

func toLocation(input *LocationInput) Location {
	if input == nil {
		return Location{}
	}
	return Location{
		Venue: sanitize.Text(strings.TrimSpace(input.Venue)),
		City:  sanitize.Text(strings.TrimSpace(input.City)),
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return ValidationError{
			Field:   strings.ToLower(first.Field()),
			Message: validationMessage(first),
		}
	}
	return ValidationError{Message: err.Error()}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters long"
	case "max":
		return "cannot exceed " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
