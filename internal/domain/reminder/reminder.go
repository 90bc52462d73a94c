// internal/domain/reminder/reminder.go
package reminder

import (
	"errors"
	"time"

	"household_scheduler/internal/domain/recurrence"
)

var (
	ErrNotFound      = errors.New("reminder not found")
	ErrResourceOwned = errors.New("reminder is owned by another resource")
)

// Source records who created a reminder and therefore who may change it.
type Source string

const (
	SourceUser   Source = "user"
	SourceRecipe Source = "recipe"
	SourceBill   Source = "bill"
	SourceTask   Source = "task"
)

const DefaultBody = "You have a reminder!"

// Reminder corresponds to the 'reminders' table.
type Reminder struct {
	ID               string
	FamilyID         string
	Title            string
	Description      *string
	RemindAt         time.Time
	Source           Source
	SourceEntityType *string
	SourceEntityID   *string
	Recurrence       *recurrence.Rule
	NextOccurrence   *time.Time // equals RemindAt while a recurring series is pending advancement
	Dismissed        bool
	NotifiedAt       *time.Time // set once the current occurrence has been delivered
	CreatedByID      string
	CreatedAt        time.Time
}

// IsRecurring returns true if this reminder has a recurrence rule.
func (r *Reminder) IsRecurring() bool {
	return r.Recurrence != nil
}

// ResourceOwned reports whether the reminder belongs to a bill, task or recipe.
// Only RemindAt and assignees of such reminders may change, and they are
// deleted through their owning resource.
func (r *Reminder) ResourceOwned() bool {
	return r.Source != SourceUser
}

// Anchor is the instant the next occurrence is computed from.
func (r *Reminder) Anchor() time.Time {
	if r.NextOccurrence != nil {
		return *r.NextOccurrence
	}
	return r.RemindAt
}

// Body is the notification body for this reminder.
func (r *Reminder) Body() string {
	if r.Description != nil {
		return *r.Description
	}
	return DefaultBody
}

// Assignee corresponds to the 'reminder_assignees' table.
type Assignee struct {
	ReminderID string
	UserID     string
}
