package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"household_scheduler/internal/domain/bill"
	"household_scheduler/internal/domain/reminder"
)

type PostgresBillRepository struct {
	db *sql.DB
}

var _ bill.Repository = (*PostgresBillRepository)(nil)

func NewPostgresBillRepository(db *sql.DB) *PostgresBillRepository {
	return &PostgresBillRepository{db: db}
}

const billColumns = `id, family_id, name, description, amount, currency, due_date, frequency, recurrence_end_date,
       status, paid_at, paid_by_id, reminder_id, reminder_days_before, created_by_id, created_at, updated_at`

func scanBill(row rowScanner) (*bill.Bill, error) {
	b := bill.Bill{}
	err := row.Scan(
		&b.ID, &b.FamilyID, &b.Name, &b.Description, &b.Amount, &b.Currency, &b.DueDate, &b.Frequency,
		&b.RecurrenceEndDate, &b.Status, &b.PaidAt, &b.PaidByID, &b.ReminderID, &b.ReminderDaysBefore,
		&b.CreatedByID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PostgresBillRepository) GetByID(ctx context.Context, id string) (*bill.Bill, error) {
	if !isUUID(id) {
		return nil, bill.ErrNotFound
	}
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1`
	b, err := scanBill(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bill.ErrNotFound
		}
		return nil, fmt.Errorf("error getting bill by ID: %w", err)
	}
	return b, nil
}

func (r *PostgresBillRepository) ListByFamily(ctx context.Context, familyID string) ([]*bill.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE family_id = $1 ORDER BY due_date, created_at`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("error querying bills by family: %w", err)
	}
	defer rows.Close()

	bills := make([]*bill.Bill, 0)
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning bill row: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bill rows: %w", err)
	}
	return bills, nil
}

func (r *PostgresBillRepository) UpdatePayment(ctx context.Context, b *bill.Bill, reminderDismissed bool) error {
	if !isUUID(b.ID) {
		return bill.ErrNotFound
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for bill payment: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	query := `UPDATE bills
               SET status = $2, paid_at = $3, paid_by_id = $4, updated_at = NOW()
               WHERE id = $1
               RETURNING reminder_id, updated_at`
	err = txn.QueryRowContext(ctx, query, b.ID, b.Status, b.PaidAt, b.PaidByID).Scan(&b.ReminderID, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bill.ErrNotFound
		}
		return fmt.Errorf("error updating bill payment: %w", err)
	}

	if b.ReminderID != nil {
		_, err = txn.ExecContext(ctx, `UPDATE reminders SET is_dismissed = $2 WHERE id = $1`, *b.ReminderID, reminderDismissed)
		if err != nil {
			return fmt.Errorf("error updating reminder dismissal: %w", err)
		}
	}

	return txn.Commit()
}

func (r *PostgresBillRepository) CreateWithReminder(ctx context.Context, b *bill.Bill, rem *reminder.Reminder, assigneeIDs []string) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for bill create: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if rem != nil {
		entityType := "bill"
		rem.Source = reminder.SourceBill
		rem.SourceEntityType = &entityType
		rem.SourceEntityID = &b.ID
		if err := insertReminder(ctx, txn, rem, assigneeIDs); err != nil {
			return err
		}
		b.ReminderID = &rem.ID
	}

	query := `INSERT INTO bills (id, family_id, name, description, amount, currency, due_date, frequency,
                  recurrence_end_date, status, paid_at, paid_by_id, reminder_id, reminder_days_before, created_by_id)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
              RETURNING created_at, updated_at`
	err = txn.QueryRowContext(ctx, query,
		b.ID, b.FamilyID, b.Name, b.Description, b.Amount, b.Currency, b.DueDate, b.Frequency,
		b.RecurrenceEndDate, b.Status, b.PaidAt, b.PaidByID, b.ReminderID, b.ReminderDaysBefore, b.CreatedByID,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating bill: %w", err)
	}

	return txn.Commit()
}
