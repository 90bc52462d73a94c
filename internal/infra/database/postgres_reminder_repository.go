// internal/infra/database/postgres_reminder_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // For pq.Array and driver registration

	"household_scheduler/internal/domain/recurrence"
	"household_scheduler/internal/domain/reminder"
)

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresReminderRepository struct {
	db *sql.DB
}

var _ reminder.Repository = (*PostgresReminderRepository)(nil)

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

const reminderColumns = `id, family_id, title, description, remind_at, source, source_entity_type,
       source_entity_id, recurrence, next_occurrence, is_dismissed, notified_at, created_by_id, created_at`

func (r *PostgresReminderRepository) Create(ctx context.Context, rem *reminder.Reminder, assigneeIDs []string) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for reminder create: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if err := insertReminder(ctx, txn, rem, assigneeIDs); err != nil {
		return err
	}
	return txn.Commit()
}

// insertReminder writes the reminder row and its assignee rows through q.
func insertReminder(ctx context.Context, q queryer, rem *reminder.Reminder, assigneeIDs []string) error {
	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	rule, err := encodeRule(rem.Recurrence)
	if err != nil {
		return err
	}

	query := `INSERT INTO reminders (id, family_id, title, description, remind_at, source, source_entity_type,
                  source_entity_id, recurrence, next_occurrence, is_dismissed, notified_at, created_by_id)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
              RETURNING created_at`
	err = q.QueryRowContext(ctx, query,
		rem.ID, rem.FamilyID, rem.Title, rem.Description, rem.RemindAt, rem.Source, rem.SourceEntityType,
		rem.SourceEntityID, rule, rem.NextOccurrence, rem.Dismissed, rem.NotifiedAt, rem.CreatedByID,
	).Scan(&rem.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating reminder: %w", err)
	}

	if len(assigneeIDs) == 0 {
		return nil
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO reminder_assignees (reminder_id, user_id)
         SELECT $1, u FROM unnest($2::text[]) AS u
         ON CONFLICT DO NOTHING`,
		rem.ID, pq.Array(assigneeIDs))
	if err != nil {
		return fmt.Errorf("error creating reminder assignees: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) GetByID(ctx context.Context, id string) (*reminder.Reminder, error) {
	if !isUUID(id) {
		return nil, reminder.ErrNotFound
	}
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1`
	rem, err := scanReminder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reminder.ErrNotFound
		}
		return nil, fmt.Errorf("error getting reminder by ID: %w", err)
	}
	return rem, nil
}

func (r *PostgresReminderRepository) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return reminder.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting reminder: %w", err)
	}
	return requireAffected(res, reminder.ErrNotFound)
}

func (r *PostgresReminderRepository) ListDue(ctx context.Context, now time.Time) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
               FROM reminders
               WHERE remind_at <= $1 AND notified_at IS NULL AND is_dismissed = FALSE
               ORDER BY remind_at, id`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error querying due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (r *PostgresReminderRepository) ListNotifiedRecurring(ctx context.Context) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
               FROM reminders
               WHERE notified_at IS NOT NULL AND recurrence IS NOT NULL AND is_dismissed = FALSE
               ORDER BY remind_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying notified recurring reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (r *PostgresReminderRepository) ListAssigneeIDs(ctx context.Context, reminderID string) ([]string, error) {
	var ids []string
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(array_agg(user_id ORDER BY user_id), '{}') FROM reminder_assignees WHERE reminder_id = $1`,
		reminderID,
	).Scan(pq.Array(&ids))
	if err != nil {
		return nil, fmt.Errorf("error listing reminder assignees: %w", err)
	}
	return ids, nil
}

func (r *PostgresReminderRepository) AddAssignee(ctx context.Context, reminderID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reminder_assignees (reminder_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		reminderID, userID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return reminder.ErrNotFound
		}
		return fmt.Errorf("error adding reminder assignee: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) MarkNotified(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET notified_at = $2 WHERE id = $1 AND notified_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("error marking reminder notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reminders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking reminder existence: %w", err)
	}
	if !exists {
		return false, reminder.ErrNotFound
	}
	return false, nil
}

func (r *PostgresReminderRepository) Advance(ctx context.Context, id string, next time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET remind_at = $2, next_occurrence = $2, notified_at = NULL WHERE id = $1`, id, next)
	if err != nil {
		return fmt.Errorf("error advancing reminder: %w", err)
	}
	return requireAffected(res, reminder.ErrNotFound)
}

func (r *PostgresReminderRepository) SetDismissed(ctx context.Context, id string, dismissed bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE reminders SET is_dismissed = $2 WHERE id = $1`, id, dismissed)
	if err != nil {
		return fmt.Errorf("error updating reminder dismissal: %w", err)
	}
	return requireAffected(res, reminder.ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*reminder.Reminder, error) {
	rem := reminder.Reminder{}
	var rule []byte
	err := row.Scan(
		&rem.ID, &rem.FamilyID, &rem.Title, &rem.Description, &rem.RemindAt, &rem.Source, &rem.SourceEntityType,
		&rem.SourceEntityID, &rule, &rem.NextOccurrence, &rem.Dismissed, &rem.NotifiedAt, &rem.CreatedByID, &rem.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rem.Recurrence, err = decodeRule(rule); err != nil {
		return nil, fmt.Errorf("reminder %s: %w", rem.ID, err)
	}
	return &rem, nil
}

// Helper to scan multiple rows
func scanReminders(rows *sql.Rows) ([]*reminder.Reminder, error) {
	reminders := make([]*reminder.Reminder, 0)
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reminder row: %w", err)
		}
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder rows: %w", err)
	}
	return reminders, nil
}

func encodeRule(rule *recurrence.Rule) (any, error) {
	if rule == nil {
		return nil, nil
	}
	b, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("error encoding recurrence rule: %w", err)
	}
	return string(b), nil
}

func decodeRule(raw []byte) (*recurrence.Rule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rule recurrence.Rule
	if err := json.Unmarshal(raw, &rule); err != nil {
		return nil, fmt.Errorf("error decoding recurrence rule: %w", err)
	}
	return &rule, nil
}

// isUUID guards id columns, which reject malformed input with a syntax error instead of no rows.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
