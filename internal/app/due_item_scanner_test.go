package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household_scheduler/internal/domain/push"
	"household_scheduler/internal/domain/recurrence"
	"household_scheduler/internal/domain/reminder"
	"household_scheduler/internal/infra/memory"
)

var scanNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type scanFixture struct {
	store     *memory.Store
	reminders *memory.ReminderRepository
	transport *fakeTransport
	scanner   *DueItemScanner
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	store := memory.NewStore()
	tr := newFakeTransport()
	d := NewNotificationDispatcher(store.Subscriptions(), tr, testLogger(), time.Second, 4)
	f := &scanFixture{
		store:     store,
		reminders: store.Reminders(),
		transport: tr,
		scanner:   NewDueItemScanner(store.Reminders(), d, testLogger(), 4).WithClock(fixedClock(scanNow)),
	}
	return f
}

func (f *scanFixture) addReminder(t *testing.T, r *reminder.Reminder, assignees ...string) *reminder.Reminder {
	t.Helper()
	if r.Source == "" {
		r.Source = reminder.SourceUser
	}
	if r.Recurrence != nil && r.NextOccurrence == nil {
		next := r.RemindAt
		r.NextOccurrence = &next
	}
	require.NoError(t, f.reminders.Create(context.Background(), r, assignees))
	return r
}

func (f *scanFixture) get(t *testing.T, id string) *reminder.Reminder {
	t.Helper()
	r, err := f.reminders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func TestScanner_NotifiesDueReminderOnce(t *testing.T) {
	f := newScanFixture(t)
	registerDevice(t, f.store.Subscriptions(), "u1", "https://push.example/u1-phone")
	r := f.addReminder(t, &reminder.Reminder{Title: "Take out bins", RemindAt: scanNow.Add(-time.Minute)}, "u1")

	first := f.scanner.Run(context.Background())
	assert.Equal(t, ScanSummary{DueProcessed: 1}, first)
	assert.Equal(t, 1, f.transport.attemptCount())

	got := f.get(t, r.ID)
	require.NotNil(t, got.NotifiedAt)
	assert.True(t, scanNow.Equal(*got.NotifiedAt))

	second := f.scanner.Run(context.Background())
	assert.Equal(t, ScanSummary{}, second)
	assert.Equal(t, 1, f.transport.attemptCount(), "already notified reminders are not delivered again")
}

func TestScanner_IgnoresFutureAndDismissedReminders(t *testing.T) {
	f := newScanFixture(t)
	registerDevice(t, f.store.Subscriptions(), "u1", "https://push.example/u1")
	f.addReminder(t, &reminder.Reminder{Title: "later", RemindAt: scanNow.Add(time.Hour)}, "u1")
	f.addReminder(t, &reminder.Reminder{Title: "dismissed", RemindAt: scanNow.Add(-time.Hour), Dismissed: true}, "u1")

	summary := f.scanner.Run(context.Background())
	assert.Equal(t, ScanSummary{}, summary)
	assert.Zero(t, f.transport.attemptCount())
}

func TestScanner_FansOutToEveryAssigneeAndDevice(t *testing.T) {
	f := newScanFixture(t)
	subs := f.store.Subscriptions()
	registerDevice(t, subs, "u1", "https://push.example/u1-phone")
	registerDevice(t, subs, "u1", "https://push.example/u1-laptop")
	registerDevice(t, subs, "u2", "https://push.example/u2-phone")
	f.transport.errs["https://push.example/u2-phone"] = errors.New("unreachable")

	r := f.addReminder(t, &reminder.Reminder{Title: "Family dinner", RemindAt: scanNow}, "u1", "u2")

	summary := f.scanner.Run(context.Background())
	assert.Equal(t, 1, summary.DueProcessed)
	assert.Zero(t, summary.Failed, "delivery failures are not item failures")
	assert.ElementsMatch(t, []string{
		"https://push.example/u1-phone",
		"https://push.example/u1-laptop",
		"https://push.example/u2-phone",
	}, f.transport.attempts)
	assert.NotNil(t, f.get(t, r.ID).NotifiedAt, "notified_at is committed even when some deliveries fail")
}

func TestScanner_ZeroAssigneeReminderIsRescannedEveryPass(t *testing.T) {
	f := newScanFixture(t)
	registerDevice(t, f.store.Subscriptions(), "u1", "https://push.example/u1")
	r := f.addReminder(t, &reminder.Reminder{Title: "Orphan", RemindAt: scanNow.Add(-time.Hour)})

	for i := 0; i < 3; i++ {
		summary := f.scanner.Run(context.Background())
		assert.Equal(t, 1, summary.DueProcessed, "pass %d", i)
		assert.Nil(t, f.get(t, r.ID).NotifiedAt, "pass %d", i)
	}
	assert.Zero(t, f.transport.attemptCount())

	require.NoError(t, f.reminders.AddAssignee(context.Background(), r.ID, "u1"))
	summary := f.scanner.Run(context.Background())
	assert.Equal(t, 1, summary.DueProcessed)
	assert.NotNil(t, f.get(t, r.ID).NotifiedAt)
	assert.Equal(t, 1, f.transport.attemptCount())

	summary = f.scanner.Run(context.Background())
	assert.Zero(t, summary.DueProcessed)
}

func TestScanner_RecurringReminderIsRearmed(t *testing.T) {
	f := newScanFixture(t)
	registerDevice(t, f.store.Subscriptions(), "u1", "https://push.example/u1")
	remindAt := scanNow.Add(-5 * time.Minute)
	r := f.addReminder(t, &reminder.Reminder{
		Title:      "Vitamins",
		RemindAt:   remindAt,
		Recurrence: &recurrence.Rule{Frequency: recurrence.FrequencyDaily, Interval: 1},
	}, "u1")

	summary := f.scanner.Run(context.Background())
	assert.Equal(t, ScanSummary{DueProcessed: 1, RecurringUpdated: 1}, summary)

	got := f.get(t, r.ID)
	want := remindAt.AddDate(0, 0, 1)
	assert.True(t, want.Equal(got.RemindAt), "remind_at advanced to %s, got %s", want, got.RemindAt)
	require.NotNil(t, got.NextOccurrence)
	assert.True(t, want.Equal(*got.NextOccurrence))
	assert.Nil(t, got.NotifiedAt, "advancement re-arms the reminder")
	assert.False(t, got.Dismissed)

	again := f.scanner.Run(context.Background())
	assert.Equal(t, ScanSummary{}, again, "the next occurrence is not due yet")
	assert.Equal(t, 1, f.transport.attemptCount())

	tomorrow := NewDueItemScanner(f.reminders,
		NewNotificationDispatcher(f.store.Subscriptions(), f.transport, testLogger(), time.Second, 1),
		testLogger(), 1).WithClock(fixedClock(want))
	assert.Equal(t, ScanSummary{DueProcessed: 1, RecurringUpdated: 1}, tomorrow.Run(context.Background()))
	assert.Equal(t, 2, f.transport.attemptCount())
}

func TestScanner_RecurringSeriesEndsAfterEndDate(t *testing.T) {
	f := newScanFixture(t)
	registerDevice(t, f.store.Subscriptions(), "u1", "https://push.example/u1")
	end := scanNow.AddDate(0, 0, 3)
	r := f.addReminder(t, &reminder.Reminder{
		Title:      "Weekly sync",
		RemindAt:   scanNow.Add(-time.Minute),
		Recurrence: &recurrence.Rule{Frequency: recurrence.FrequencyWeekly, Interval: 1, EndDate: &end},
	}, "u1")

	summary := f.scanner.Run(context.Background())
	assert.Equal(t, ScanSummary{DueProcessed: 1, RecurringUpdated: 1}, summary)

	got := f.get(t, r.ID)
	assert.True(t, got.Dismissed, "series past its end date is dismissed")
	assert.NotNil(t, got.NotifiedAt, "dismissed series is not re-armed")
	assert.True(t, got.RemindAt.Equal(scanNow.Add(-time.Minute)))

	assert.Equal(t, ScanSummary{}, f.scanner.Run(context.Background()))
}

func TestScanner_AdvancementUsesNextOccurrenceAsAnchor(t *testing.T) {
	f := newScanFixture(t)
	anchor := time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)
	notified := scanNow
	r := f.addReminder(t, &reminder.Reminder{
		Title:          "Rent",
		RemindAt:       anchor,
		NextOccurrence: &anchor,
		NotifiedAt:     &notified,
		Recurrence:     &recurrence.Rule{Frequency: recurrence.FrequencyMonthly, Interval: 1},
	}, "u1")

	summary := f.scanner.Run(context.Background())
	assert.Equal(t, ScanSummary{RecurringUpdated: 1}, summary)
	assert.True(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC).Equal(f.get(t, r.ID).RemindAt))
}

// flakyReminders fails chosen operations for chosen reminders.
type flakyReminders struct {
	*memory.ReminderRepository
	failAssignees map[string]bool
	lostClaims    map[string]bool
}

func (f *flakyReminders) ListAssigneeIDs(ctx context.Context, id string) ([]string, error) {
	if f.failAssignees[id] {
		return nil, errors.New("assignee lookup failed")
	}
	return f.ReminderRepository.ListAssigneeIDs(ctx, id)
}

func (f *flakyReminders) MarkNotified(ctx context.Context, id string, at time.Time) (bool, error) {
	if f.lostClaims[id] {
		return false, nil
	}
	return f.ReminderRepository.MarkNotified(ctx, id, at)
}

func TestScanner_BatchIsolation(t *testing.T) {
	f := newScanFixture(t)
	registerDevice(t, f.store.Subscriptions(), "u1", "https://push.example/u1")
	bad := f.addReminder(t, &reminder.Reminder{ID: "a-bad", Title: "bad", RemindAt: scanNow.Add(-2 * time.Minute)}, "u1")
	good := f.addReminder(t, &reminder.Reminder{ID: "b-good", Title: "good", RemindAt: scanNow.Add(-time.Minute)}, "u1")

	repo := &flakyReminders{ReminderRepository: f.reminders, failAssignees: map[string]bool{bad.ID: true}}
	d := NewNotificationDispatcher(f.store.Subscriptions(), f.transport, testLogger(), time.Second, 1)
	s := NewDueItemScanner(repo, d, testLogger(), 1).WithClock(fixedClock(scanNow))

	summary := s.Run(context.Background())
	assert.Equal(t, ScanSummary{DueProcessed: 2, Failed: 1}, summary)
	assert.Nil(t, f.get(t, bad.ID).NotifiedAt)
	assert.NotNil(t, f.get(t, good.ID).NotifiedAt)
}

type panickingDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (p *panickingDispatcher) Dispatch(_ context.Context, userID string, _ push.Payload) (DispatchResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, userID)
	p.mu.Unlock()
	if userID == "boom" {
		panic("dispatcher exploded")
	}
	if userID == "err" {
		return DispatchResult{}, errors.New("subscriptions unavailable")
	}
	return DispatchResult{Sent: 1, Total: 1}, nil
}

func TestScanner_AssigneeFailuresAreIndependent(t *testing.T) {
	f := newScanFixture(t)
	r := f.addReminder(t, &reminder.Reminder{Title: "Chores", RemindAt: scanNow}, "boom", "err", "fine")

	d := &panickingDispatcher{}
	s := NewDueItemScanner(f.reminders, d, testLogger(), 1).WithClock(fixedClock(scanNow))

	summary := s.Run(context.Background())
	assert.Equal(t, ScanSummary{DueProcessed: 1}, summary)
	assert.ElementsMatch(t, []string{"boom", "err", "fine"}, d.calls)
	assert.NotNil(t, f.get(t, r.ID).NotifiedAt)
}

func TestScanner_LostClaimIsNotAFailure(t *testing.T) {
	f := newScanFixture(t)
	r := f.addReminder(t, &reminder.Reminder{Title: "Raced", RemindAt: scanNow}, "u1")

	repo := &flakyReminders{ReminderRepository: f.reminders, lostClaims: map[string]bool{r.ID: true}}
	s := NewDueItemScanner(repo, &panickingDispatcher{}, testLogger(), 1).WithClock(fixedClock(scanNow))

	assert.Equal(t, ScanSummary{DueProcessed: 1}, s.Run(context.Background()))
}
