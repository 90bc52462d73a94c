package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"household_scheduler/internal/domain/recurrence"
	"household_scheduler/internal/domain/reminder"
)

var ErrInvalidReminder = errors.New("invalid reminder")

// NewReminder is the input for creating a user reminder.
type NewReminder struct {
	FamilyID    string  `validate:"required"`
	Title       string  `validate:"required,max=200"`
	Description *string `validate:"omitempty,max=2000"`
	RemindAt    time.Time
	Recurrence  *recurrence.Rule `validate:"omitempty"`
	CreatedByID string           `validate:"required"`
	AssigneeIDs []string         `validate:"dive,required"`
}

// ReminderService covers the reminder operations the scheduler owns invariants for.
type ReminderService struct {
	reminderRepo reminder.Repository
	validate     *validator.Validate
	logger       *logrus.Entry
}

func NewReminderService(rr reminder.Repository, logger *logrus.Entry) *ReminderService {
	return &ReminderService{
		reminderRepo: rr,
		validate:     validator.New(),
		logger:       logger.WithField("component", "reminder_service"),
	}
}

// Create stores a user reminder. A recurring reminder starts with NextOccurrence equal to RemindAt.
func (s *ReminderService) Create(ctx context.Context, in NewReminder) (*reminder.Reminder, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}
	if in.RemindAt.IsZero() {
		return nil, fmt.Errorf("%w: remind time is required", ErrInvalidReminder)
	}

	r := &reminder.Reminder{
		FamilyID:    in.FamilyID,
		Title:       in.Title,
		Description: in.Description,
		RemindAt:    in.RemindAt,
		Source:      reminder.SourceUser,
		Recurrence:  in.Recurrence,
		CreatedByID: in.CreatedByID,
	}
	if r.Recurrence != nil {
		next := r.RemindAt
		r.NextOccurrence = &next
	}
	if err := s.reminderRepo.Create(ctx, r, in.AssigneeIDs); err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	s.logger.WithField("reminder_id", r.ID).Info("Reminder created")
	return r, nil
}

// Delete removes a user reminder. Reminders owned by a bill, task or recipe are
// removed together with their owner and are rejected here.
func (s *ReminderService) Delete(ctx context.Context, id string) error {
	r, err := s.reminderRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r.ResourceOwned() {
		return fmt.Errorf("%w: source %s", reminder.ErrResourceOwned, r.Source)
	}
	if err := s.reminderRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete reminder %s: %w", id, err)
	}
	s.logger.WithField("reminder_id", id).Info("Reminder deleted")
	return nil
}
