package reminder

import (
	"context"
	"time"
)

// Repository defines operations for Reminder and its assignees.
type Repository interface {
	Create(ctx context.Context, r *Reminder, assigneeIDs []string) error
	GetByID(ctx context.Context, id string) (*Reminder, error)
	Delete(ctx context.Context, id string) error

	// ListDue fetches reminders with remind_at <= now that are neither notified nor dismissed.
	ListDue(ctx context.Context, now time.Time) ([]*Reminder, error)
	// ListNotifiedRecurring fetches notified, recurring, non-dismissed reminders awaiting advancement.
	ListNotifiedRecurring(ctx context.Context) ([]*Reminder, error)
	ListAssigneeIDs(ctx context.Context, reminderID string) ([]string, error)
	AddAssignee(ctx context.Context, reminderID, userID string) error

	// MarkNotified sets notified_at only if it is still unset.
	// claimed is false when another worker committed the occurrence first.
	MarkNotified(ctx context.Context, id string, at time.Time) (claimed bool, err error)
	// Advance re-arms a reminder for its next occurrence and clears notified_at.
	Advance(ctx context.Context, id string, next time.Time) error
	SetDismissed(ctx context.Context, id string, dismissed bool) error
}
