// internal/app/due_item_scanner.go
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"household_scheduler/internal/domain/push"
	"household_scheduler/internal/domain/recurrence"
	"household_scheduler/internal/domain/reminder"
)

// ScanSummary reports what a single scan pass did.
type ScanSummary struct {
	DueProcessed     int `json:"dueProcessed"`
	RecurringUpdated int `json:"recurringUpdated"`
	Failed           int `json:"failed"`
}

// Scanner runs one due-item pass.
type Scanner interface {
	Run(ctx context.Context) ScanSummary
}

// DueItemScanner notifies assignees of due reminders and advances recurring ones.
type DueItemScanner struct {
	reminderRepo  reminder.Repository
	dispatcher    Dispatcher
	logger        *logrus.Entry
	now           func() time.Time
	maxConcurrent int
}

func NewDueItemScanner(rr reminder.Repository, d Dispatcher, logger *logrus.Entry, maxConcurrent int) *DueItemScanner {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxDeliveries
	}
	return &DueItemScanner{
		reminderRepo:  rr,
		dispatcher:    d,
		logger:        logger.WithField("component", "scanner"),
		now:           time.Now,
		maxConcurrent: maxConcurrent,
	}
}

// WithClock replaces the scanner's time source.
func (s *DueItemScanner) WithClock(now func() time.Time) *DueItemScanner {
	s.now = now
	return s
}

// Run executes one pass: due detection first, then recurrence advancement.
// It never returns an error; per-item failures are logged and counted.
func (s *DueItemScanner) Run(ctx context.Context) ScanSummary {
	now := s.now()
	summary := ScanSummary{}

	due, err := s.reminderRepo.ListDue(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list due reminders")
		summary.Failed++
	}
	for _, r := range due {
		summary.DueProcessed++
		if err := s.isolate(func() error { return s.notifyReminder(ctx, r, now) }); err != nil {
			s.logger.WithField("reminder_id", r.ID).WithError(err).Error("Failed to process due reminder")
			summary.Failed++
		}
	}

	recurring, err := s.reminderRepo.ListNotifiedRecurring(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list notified recurring reminders")
		summary.Failed++
	}
	for _, r := range recurring {
		if err := s.isolate(func() error { return s.advanceReminder(ctx, r) }); err != nil {
			s.logger.WithField("reminder_id", r.ID).WithError(err).Error("Failed to advance recurring reminder")
			summary.Failed++
			continue
		}
		summary.RecurringUpdated++
	}

	s.logger.WithFields(logrus.Fields{
		"due_processed":     summary.DueProcessed,
		"recurring_updated": summary.RecurringUpdated,
		"failed":            summary.Failed,
	}).Info("Scan pass complete")
	return summary
}

// isolate turns a panic in one item into an error so the pass can continue.
func (s *DueItemScanner) isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// ReminderPayload builds the push payload for a reminder occurrence.
func ReminderPayload(r *reminder.Reminder) push.Payload {
	return push.Payload{
		Title: r.Title,
		Body:  r.Body(),
		Data: push.PayloadData{
			Type:             push.PayloadTypeReminder,
			ReminderID:       r.ID,
			Source:           string(r.Source),
			SourceEntityType: r.SourceEntityType,
			SourceEntityID:   r.SourceEntityID,
		},
	}
}

func (s *DueItemScanner) notifyReminder(ctx context.Context, r *reminder.Reminder, now time.Time) error {
	logCtx := s.logger.WithField("reminder_id", r.ID)

	assigneeIDs, err := s.reminderRepo.ListAssigneeIDs(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("failed to list assignees: %w", err)
	}
	if len(assigneeIDs) == 0 {
		// notified_at stays unset, so the reminder is picked up again next pass.
		logCtx.Warn("Due reminder has no assignees; skipping notification")
		return nil
	}

	payload := ReminderPayload(r)

	var (
		mu    sync.Mutex
		sent  int
		total int
	)
	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for _, userID := range assigneeIDs {
		userID := userID
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					logCtx.WithField("user_id", userID).Errorf("Dispatch panicked: %v", rec)
				}
			}()
			res, err := s.dispatcher.Dispatch(ctx, userID, payload)
			if err != nil {
				logCtx.WithField("user_id", userID).WithError(err).Error("Failed to dispatch reminder to assignee")
				return nil
			}
			mu.Lock()
			sent += res.Sent
			total += res.Total
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	claimed, err := s.reminderRepo.MarkNotified(ctx, r.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark reminder notified: %w", err)
	}
	if !claimed {
		logCtx.Warn("Reminder was already marked notified by another worker")
	}
	logCtx.WithFields(logrus.Fields{
		"assignees": len(assigneeIDs),
		"sent":      sent,
		"total":     total,
	}).Info("Reminder notified")
	return nil
}

func (s *DueItemScanner) advanceReminder(ctx context.Context, r *reminder.Reminder) error {
	logCtx := s.logger.WithField("reminder_id", r.ID)

	next, err := recurrence.NextOccurrence(r.Anchor(), *r.Recurrence)
	if err != nil {
		return fmt.Errorf("failed to compute next occurrence: %w", err)
	}

	if !recurrence.ShouldContinue(next, r.Recurrence.EndDate) {
		if err := s.reminderRepo.SetDismissed(ctx, r.ID, true); err != nil {
			return fmt.Errorf("failed to dismiss finished series: %w", err)
		}
		logCtx.WithField("next", next.Format(time.RFC3339)).Info("Recurring reminder passed its end date; series dismissed")
		return nil
	}

	if err := s.reminderRepo.Advance(ctx, r.ID, next); err != nil {
		return fmt.Errorf("failed to advance reminder: %w", err)
	}
	logCtx.WithField("next", next.Format(time.RFC3339)).Info("Recurring reminder re-armed")
	return nil
}
