package bill

import (
	"context"

	"household_scheduler/internal/domain/reminder"
)

// Repository defines the operations for persisting and retrieving Bill entities.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Bill, error)
	ListByFamily(ctx context.Context, familyID string) ([]*Bill, error)

	// CreateWithReminder inserts b and, when rem is non-nil, its reminder and
	// assignees, linking b.ReminderID. All rows are written or none are.
	CreateWithReminder(ctx context.Context, b *Bill, rem *reminder.Reminder, assigneeIDs []string) error

	// UpdatePayment writes b's status and payment fields and sets the dismissed
	// flag of its linked reminder in one transaction. A linked reminder that no
	// longer exists is skipped.
	UpdatePayment(ctx context.Context, b *Bill, reminderDismissed bool) error
}
