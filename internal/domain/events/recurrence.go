package events

import (
	"time"

	"github.com/teambition/rrule-go"
)

// daysOfWeek uses 0=Sunday..6=Saturday, as the clients send it.
var rruleWeekdays = []rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

func rruleFrequency(frequency string) (rrule.Frequency, bool) {
	switch frequency {
	case FrequencyDaily:
		return rrule.DAILY, true
	case FrequencyWeekly:
		return rrule.WEEKLY, true
	case FrequencyMonthly:
		return rrule.MONTHLY, true
	case FrequencyYearly:
		return rrule.YEARLY, true
	default:
		return 0, false
	}
}

func buildRule(pattern RecurrencePattern, eventStart time.Time) (*rrule.RRule, error) {
	freq, ok := rruleFrequency(pattern.Frequency)
	if !ok {
		return nil, ValidationError{Field: "recurrence.pattern.frequency", Message: "must be one of daily, weekly, monthly, yearly"}
	}

	interval := pattern.Interval
	if interval < 1 {
		interval = 1
	}

	dtstart := eventStart
	if pattern.StartDate != nil {
		dtstart = *pattern.StartDate
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  dtstart.UTC(),
	}
	if pattern.EndDate != nil {
		opt.Until = pattern.EndDate.UTC()
	}
	if pattern.Count != nil {
		opt.Count = *pattern.Count
	}
	for _, day := range pattern.DaysOfWeek {
		if day < 0 || day > 6 {
			return nil, ValidationError{Field: "recurrence.pattern.daysOfWeek", Message: "days must be between 0 (Sunday) and 6 (Saturday)"}
		}
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[day])
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, ValidationError{Field: "recurrence.pattern", Message: err.Error()}
	}
	return rule, nil
}

func validateRecurrence(rec Recurrence, eventStart time.Time) error {
	if !rec.IsRecurring {
		return nil
	}
	if rec.Pattern == nil {
		return ValidationError{Field: "recurrence.pattern", Message: "is required when isRecurring is true"}
	}
	_, err := buildRule(*rec.Pattern, eventStart)
	return err
}

// NextOccurrence computes the first occurrence of a recurring event on or
// after the given instant. Returns nil for non-recurring events or when the
// series has run out.
func NextOccurrence(event Event, from time.Time) *time.Time {
	if !event.Recurrence.IsRecurring || event.Recurrence.Pattern == nil {
		return nil
	}
	rule, err := buildRule(*event.Recurrence.Pattern, event.Date.Start)
	if err != nil {
		return nil
	}
	next := rule.After(from.UTC(), true)
	if next.IsZero() {
		return nil
	}
	return &next
}
