// Package memory is an in-process ObligationStore used by the memory store driver and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"household_scheduler/internal/domain/bill"
	"household_scheduler/internal/domain/push"
	"household_scheduler/internal/domain/reminder"
)

// Store keeps every table in maps guarded by a single mutex.
type Store struct {
	mu            sync.Mutex
	reminders     map[string]*reminder.Reminder
	assignees     map[string][]string
	bills         map[string]*bill.Bill
	subscriptions map[string]*push.Subscription
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		reminders:     make(map[string]*reminder.Reminder),
		assignees:     make(map[string][]string),
		bills:         make(map[string]*bill.Bill),
		subscriptions: make(map[string]*push.Subscription),
		now:           time.Now,
	}
}

func (s *Store) Reminders() *ReminderRepository         { return &ReminderRepository{s: s} }
func (s *Store) Bills() *BillRepository                 { return &BillRepository{s: s} }
func (s *Store) Subscriptions() *SubscriptionRepository { return &SubscriptionRepository{s: s} }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyReminder(r *reminder.Reminder) *reminder.Reminder {
	c := *r
	c.Description = copyString(r.Description)
	c.SourceEntityType = copyString(r.SourceEntityType)
	c.SourceEntityID = copyString(r.SourceEntityID)
	c.NextOccurrence = copyTime(r.NextOccurrence)
	c.NotifiedAt = copyTime(r.NotifiedAt)
	if r.Recurrence != nil {
		rule := *r.Recurrence
		rule.DaysOfWeek = append([]int(nil), r.Recurrence.DaysOfWeek...)
		rule.EndDate = copyTime(r.Recurrence.EndDate)
		c.Recurrence = &rule
	}
	return &c
}

func copyBill(b *bill.Bill) *bill.Bill {
	c := *b
	c.Description = copyString(b.Description)
	c.RecurrenceEndDate = copyTime(b.RecurrenceEndDate)
	c.PaidAt = copyTime(b.PaidAt)
	c.PaidByID = copyString(b.PaidByID)
	c.ReminderID = copyString(b.ReminderID)
	return &c
}

func (s *Store) sortedReminders(keep func(*reminder.Reminder) bool) []*reminder.Reminder {
	out := make([]*reminder.Reminder, 0)
	for _, r := range s.reminders {
		if keep(r) {
			out = append(out, copyReminder(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RemindAt.Equal(out[j].RemindAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RemindAt.Before(out[j].RemindAt)
	})
	return out
}

// --- Reminders ---

type ReminderRepository struct{ s *Store }

var _ reminder.Repository = (*ReminderRepository)(nil)

func (r *ReminderRepository) Create(_ context.Context, rem *reminder.Reminder, assigneeIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.insertReminder(rem, assigneeIDs)
	return nil
}

func (s *Store) insertReminder(rem *reminder.Reminder, assigneeIDs []string) {
	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = s.now()
	}
	s.reminders[rem.ID] = copyReminder(rem)
	s.assignees[rem.ID] = append([]string(nil), assigneeIDs...)
}

func (r *ReminderRepository) GetByID(_ context.Context, id string) (*reminder.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rem, ok := r.s.reminders[id]
	if !ok {
		return nil, reminder.ErrNotFound
	}
	return copyReminder(rem), nil
}

func (r *ReminderRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reminders[id]; !ok {
		return reminder.ErrNotFound
	}
	delete(r.s.reminders, id)
	delete(r.s.assignees, id)
	return nil
}

func (r *ReminderRepository) ListDue(_ context.Context, now time.Time) ([]*reminder.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedReminders(func(rem *reminder.Reminder) bool {
		return !rem.RemindAt.After(now) && rem.NotifiedAt == nil && !rem.Dismissed
	}), nil
}

func (r *ReminderRepository) ListNotifiedRecurring(_ context.Context) ([]*reminder.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedReminders(func(rem *reminder.Reminder) bool {
		return rem.NotifiedAt != nil && rem.Recurrence != nil && !rem.Dismissed
	}), nil
}

func (r *ReminderRepository) ListAssigneeIDs(_ context.Context, reminderID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]string{}, r.s.assignees[reminderID]...), nil
}

func (r *ReminderRepository) AddAssignee(_ context.Context, reminderID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reminders[reminderID]; !ok {
		return reminder.ErrNotFound
	}
	for _, existing := range r.s.assignees[reminderID] {
		if existing == userID {
			return nil
		}
	}
	r.s.assignees[reminderID] = append(r.s.assignees[reminderID], userID)
	return nil
}

func (r *ReminderRepository) MarkNotified(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rem, ok := r.s.reminders[id]
	if !ok {
		return false, reminder.ErrNotFound
	}
	if rem.NotifiedAt != nil {
		return false, nil
	}
	rem.NotifiedAt = copyTime(&at)
	return true, nil
}

func (r *ReminderRepository) Advance(_ context.Context, id string, next time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rem, ok := r.s.reminders[id]
	if !ok {
		return reminder.ErrNotFound
	}
	rem.RemindAt = next
	rem.NextOccurrence = copyTime(&next)
	rem.NotifiedAt = nil
	return nil
}

func (r *ReminderRepository) SetDismissed(_ context.Context, id string, dismissed bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rem, ok := r.s.reminders[id]
	if !ok {
		return reminder.ErrNotFound
	}
	rem.Dismissed = dismissed
	return nil
}

// --- Bills ---

type BillRepository struct{ s *Store }

var _ bill.Repository = (*BillRepository)(nil)

func (r *BillRepository) GetByID(_ context.Context, id string) (*bill.Bill, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bills[id]
	if !ok {
		return nil, bill.ErrNotFound
	}
	return copyBill(b), nil
}

func (r *BillRepository) UpdatePayment(_ context.Context, b *bill.Bill, reminderDismissed bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bills[b.ID]; !ok {
		return bill.ErrNotFound
	}
	if b.ReminderID != nil {
		if rem, ok := r.s.reminders[*b.ReminderID]; ok {
			rem.Dismissed = reminderDismissed
		}
	}
	b.UpdatedAt = r.s.now()
	r.s.bills[b.ID] = copyBill(b)
	return nil
}

func (r *BillRepository) CreateWithReminder(_ context.Context, b *bill.Bill, rem *reminder.Reminder, assigneeIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := r.s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	if rem != nil {
		entityType := "bill"
		rem.Source = reminder.SourceBill
		rem.SourceEntityType = &entityType
		rem.SourceEntityID = copyString(&b.ID)
		r.s.insertReminder(rem, assigneeIDs)
		b.ReminderID = copyString(&rem.ID)
	}
	r.s.bills[b.ID] = copyBill(b)
	return nil
}

// ListByFamily returns a family's bills ordered by due date.
func (r *BillRepository) ListByFamily(_ context.Context, familyID string) ([]*bill.Bill, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*bill.Bill, 0)
	for _, b := range r.s.bills {
		if b.FamilyID == familyID {
			out = append(out, copyBill(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// --- Push subscriptions ---

type SubscriptionRepository struct{ s *Store }

var _ push.Repository = (*SubscriptionRepository)(nil)

func (r *SubscriptionRepository) ListByUser(_ context.Context, userID string) ([]*push.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*push.Subscription, 0)
	for _, sub := range r.s.subscriptions {
		if sub.UserID == userID {
			c := *sub
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (r *SubscriptionRepository) Upsert(_ context.Context, sub *push.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	for _, existing := range r.s.subscriptions {
		if existing.Endpoint == sub.Endpoint {
			existing.UserID, existing.P256dh, existing.Auth = sub.UserID, sub.P256dh, sub.Auth
			existing.UpdatedAt = now
			*sub = *existing
			return nil
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt, sub.UpdatedAt = now, now
	c := *sub
	r.s.subscriptions[sub.ID] = &c
	return nil
}

func (r *SubscriptionRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.subscriptions, id)
	return nil
}
