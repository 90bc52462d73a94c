package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"household_scheduler/internal/domain/bill"
	"household_scheduler/internal/domain/recurrence"
	"household_scheduler/internal/domain/reminder"
)

var (
	ErrInvalidBill     = errors.New("invalid bill")
	ErrBillAlreadyPaid = errors.New("bill is already paid")
)

// NewBill is the input for BillLifecycleManager.Create.
type NewBill struct {
	FamilyID           string  `validate:"required"`
	Name               string  `validate:"required,max=200"`
	Description        *string `validate:"omitempty,max=2000"`
	Amount             decimal.Decimal
	Currency           string `validate:"required,len=3,uppercase"`
	DueDate            time.Time
	Frequency          recurrence.Frequency `validate:"required,oneof=once weekly fortnightly monthly quarterly yearly"`
	RecurrenceEndDate  *time.Time
	ReminderDaysBefore int      `validate:"min=0,max=30"`
	CreatedByID        string   `validate:"required"`
	AssigneeIDs        []string `validate:"dive,required"`
}

// BillLifecycleManager handles payment state of bills and regenerates recurring ones.
type BillLifecycleManager struct {
	billRepo     bill.Repository
	reminderRepo reminder.Repository
	validate     *validator.Validate
	logger       *logrus.Entry
	now          func() time.Time
}

func NewBillLifecycleManager(br bill.Repository, rr reminder.Repository, logger *logrus.Entry) *BillLifecycleManager {
	return &BillLifecycleManager{
		billRepo:     br,
		reminderRepo: rr,
		validate:     validator.New(),
		logger:       logger.WithField("component", "bill_lifecycle"),
		now:          time.Now,
	}
}

// WithClock replaces the manager's time source.
func (m *BillLifecycleManager) WithClock(now func() time.Time) *BillLifecycleManager {
	m.now = now
	return m
}

// Create stores a new upcoming bill. Its reminder is created alongside when the
// reminder date is still in the future.
func (m *BillLifecycleManager) Create(ctx context.Context, in NewBill) (*bill.Bill, error) {
	if err := m.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBill, err)
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidBill)
	}
	if in.DueDate.IsZero() {
		return nil, fmt.Errorf("%w: due date is required", ErrInvalidBill)
	}

	b := &bill.Bill{
		FamilyID:           in.FamilyID,
		Name:               in.Name,
		Description:        in.Description,
		Amount:             in.Amount,
		Currency:           in.Currency,
		DueDate:            in.DueDate,
		Frequency:          in.Frequency,
		RecurrenceEndDate:  in.RecurrenceEndDate,
		Status:             bill.StatusUpcoming,
		ReminderDaysBefore: in.ReminderDaysBefore,
		CreatedByID:        in.CreatedByID,
	}
	rem := m.reminderFor(b, m.now())
	if err := m.billRepo.CreateWithReminder(ctx, b, rem, in.AssigneeIDs); err != nil {
		return nil, fmt.Errorf("failed to create bill: %w", err)
	}
	m.logger.WithField("bill_id", b.ID).WithField("has_reminder", rem != nil).Info("Bill created")
	return b, nil
}

// Pay marks the bill paid by userID and dismisses its reminder in one store
// write, so a failed call leaves the bill upcoming and can be retried. For
// recurring bills the successor is generated on a best-effort basis: a failure
// there is logged and does not fail the payment.
func (m *BillLifecycleManager) Pay(ctx context.Context, billID, userID string) (*bill.Bill, error) {
	logCtx := m.logger.WithField("bill_id", billID).WithField("user_id", userID)

	b, err := m.billRepo.GetByID(ctx, billID)
	if err != nil {
		if errors.Is(err, bill.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get bill %s: %w", billID, err)
	}
	if b.Status == bill.StatusPaid {
		return b, ErrBillAlreadyPaid
	}

	now := m.now()
	b.Status = bill.StatusPaid
	b.PaidAt = &now
	b.PaidByID = &userID
	if err := m.billRepo.UpdatePayment(ctx, b, true); err != nil {
		return nil, fmt.Errorf("failed to mark bill %s paid: %w", billID, err)
	}
	logCtx.Info("Bill marked paid")

	if b.IsRecurring() {
		if err := m.regenerate(ctx, b, now); err != nil {
			logCtx.WithError(err).Error("Failed to regenerate recurring bill; payment kept")
		}
	}
	return b, nil
}

// Unpay reverts a payment and re-arms the linked reminder. notified_at is left untouched.
func (m *BillLifecycleManager) Unpay(ctx context.Context, billID string) (*bill.Bill, error) {
	logCtx := m.logger.WithField("bill_id", billID)

	b, err := m.billRepo.GetByID(ctx, billID)
	if err != nil {
		if errors.Is(err, bill.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get bill %s: %w", billID, err)
	}

	b.Status = bill.StatusUpcoming
	b.PaidAt = nil
	b.PaidByID = nil
	if err := m.billRepo.UpdatePayment(ctx, b, false); err != nil {
		return nil, fmt.Errorf("failed to mark bill %s unpaid: %w", billID, err)
	}
	logCtx.Info("Bill marked unpaid")
	return b, nil
}

func (m *BillLifecycleManager) regenerate(ctx context.Context, paid *bill.Bill, now time.Time) error {
	logCtx := m.logger.WithField("bill_id", paid.ID)

	nextDue, ok, err := recurrence.NextBillDue(paid.DueDate, paid.Frequency)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if !recurrence.ShouldContinue(nextDue, paid.RecurrenceEndDate) {
		logCtx.WithField("next_due", nextDue.Format("2006-01-02")).Info("Bill series ended; no successor created")
		return nil
	}

	var assigneeIDs []string
	if paid.ReminderID != nil {
		assigneeIDs, err = m.reminderRepo.ListAssigneeIDs(ctx, *paid.ReminderID)
		if err != nil {
			return fmt.Errorf("failed to list assignees of reminder %s: %w", *paid.ReminderID, err)
		}
	}

	next := &bill.Bill{
		FamilyID:           paid.FamilyID,
		Name:               paid.Name,
		Description:        paid.Description,
		Amount:             paid.Amount,
		Currency:           paid.Currency,
		DueDate:            nextDue,
		Frequency:          paid.Frequency,
		RecurrenceEndDate:  paid.RecurrenceEndDate,
		Status:             bill.StatusUpcoming,
		ReminderDaysBefore: paid.ReminderDaysBefore,
		CreatedByID:        paid.CreatedByID,
	}
	rem := m.reminderFor(next, now)
	if rem == nil {
		assigneeIDs = nil
	}
	if err := m.billRepo.CreateWithReminder(ctx, next, rem, assigneeIDs); err != nil {
		return fmt.Errorf("failed to create successor bill: %w", err)
	}
	logCtx.WithFields(logrus.Fields{
		"successor_id": next.ID,
		"next_due":     nextDue.Format("2006-01-02"),
		"has_reminder": rem != nil,
		"assignees":    len(assigneeIDs),
	}).Info("Successor bill created")
	return nil
}

// reminderFor builds the bill's reminder, or nil when its fire date is not in the future.
func (m *BillLifecycleManager) reminderFor(b *bill.Bill, now time.Time) *reminder.Reminder {
	remindAt := b.RemindAt(b.DueDate)
	if !remindAt.After(now) {
		return nil
	}
	desc := fmt.Sprintf("%s %s due on %s", b.Amount.StringFixed(2), b.Currency, b.DueDate.Format("2006-01-02"))
	return &reminder.Reminder{
		FamilyID:    b.FamilyID,
		Title:       "Bill due: " + b.Name,
		Description: &desc,
		RemindAt:    remindAt,
		Source:      reminder.SourceBill,
		CreatedByID: b.CreatedByID,
	}
}
