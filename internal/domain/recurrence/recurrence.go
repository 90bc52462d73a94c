// Package recurrence computes the next occurrence of recurring reminders and bills.
package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Frequency is the step unit of a recurrence rule.
type Frequency string

const (
	FrequencyOnce        Frequency = "once"
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
	FrequencyFortnightly Frequency = "fortnightly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyQuarterly   Frequency = "quarterly"
	FrequencyYearly      Frequency = "yearly"
)

var ErrUnsupportedFrequency = errors.New("unsupported recurrence frequency")

// Rule describes how a reminder repeats. It is stored as JSON on the reminder row.
type Rule struct {
	Frequency Frequency `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	Interval  int       `json:"interval" validate:"min=1"`
	// DaysOfWeek is accepted and persisted but not consulted by NextOccurrence.
	DaysOfWeek []int      `json:"daysOfWeek,omitempty" validate:"omitempty,dive,min=0,max=6"`
	EndDate    *time.Time `json:"endDate,omitempty"`
}

// interval guards NextOccurrence against rows stored before Interval was validated.
func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// NextOccurrence returns the occurrence following anchor.
// Month arithmetic uses time.AddDate normalisation: Jan 31 + 1 month lands in early March.
func NextOccurrence(anchor time.Time, rule Rule) (time.Time, error) {
	n := rule.interval()
	switch rule.Frequency {
	case FrequencyDaily:
		return anchor.AddDate(0, 0, n), nil
	case FrequencyWeekly:
		return anchor.AddDate(0, 0, 7*n), nil
	case FrequencyMonthly:
		return anchor.AddDate(0, n, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedFrequency, rule.Frequency)
	}
}

// NextBillDue returns the due date following dueDate for a bill frequency.
// ok is false for one-off bills, which never advance.
func NextBillDue(dueDate time.Time, freq Frequency) (next time.Time, ok bool, err error) {
	switch freq {
	case FrequencyOnce:
		return time.Time{}, false, nil
	case FrequencyWeekly:
		return dueDate.AddDate(0, 0, 7), true, nil
	case FrequencyFortnightly:
		return dueDate.AddDate(0, 0, 14), true, nil
	case FrequencyMonthly:
		return dueDate.AddDate(0, 1, 0), true, nil
	case FrequencyQuarterly:
		return dueDate.AddDate(0, 3, 0), true, nil
	case FrequencyYearly:
		return dueDate.AddDate(1, 0, 0), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("%w: %q", ErrUnsupportedFrequency, freq)
	}
}

// ShouldContinue reports whether next is still inside the series. endDate is inclusive.
func ShouldContinue(next time.Time, endDate *time.Time) bool {
	return endDate == nil || !next.After(*endDate)
}

// IsBillFrequency reports whether freq is a valid bill frequency.
func IsBillFrequency(freq Frequency) bool {
	switch freq {
	case FrequencyOnce, FrequencyWeekly, FrequencyFortnightly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}
