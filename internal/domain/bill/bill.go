package bill

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"household_scheduler/internal/domain/recurrence"
)

var ErrNotFound = errors.New("bill not found")

// Status is the persisted payment state of a bill.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusPaid     Status = "paid"
	// StatusOverdue is never stored; see EffectiveStatus.
	StatusOverdue Status = "overdue"
)

// Bill corresponds to the 'bills' table.
type Bill struct {
	ID                 string
	FamilyID           string
	Name               string
	Description        *string
	Amount             decimal.Decimal
	Currency           string
	DueDate            time.Time
	Frequency          recurrence.Frequency
	RecurrenceEndDate  *time.Time
	Status             Status
	PaidAt             *time.Time
	PaidByID           *string
	ReminderID         *string
	ReminderDaysBefore int
	CreatedByID        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EffectiveStatus derives the display status, reporting unpaid bills past their due date as overdue.
func (b *Bill) EffectiveStatus(now time.Time) Status {
	if b.Status == StatusPaid {
		return StatusPaid
	}
	if b.DueDate.Before(now) {
		return StatusOverdue
	}
	return StatusUpcoming
}

// IsRecurring returns false for one-off bills.
func (b *Bill) IsRecurring() bool {
	return b.Frequency != recurrence.FrequencyOnce
}

// RemindAt is the instant the bill's reminder fires for a given due date.
func (b *Bill) RemindAt(dueDate time.Time) time.Time {
	return dueDate.AddDate(0, 0, -b.ReminderDaysBefore)
}
