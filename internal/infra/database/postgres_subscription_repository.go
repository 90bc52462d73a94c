package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"household_scheduler/internal/domain/push"
)

type PostgresSubscriptionRepository struct {
	db *sql.DB
}

var _ push.Repository = (*PostgresSubscriptionRepository)(nil)

func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

func (r *PostgresSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*push.Subscription, error) {
	query := `SELECT id, user_id, endpoint, p256dh, auth, created_at, updated_at
               FROM push_subscriptions
               WHERE user_id = $1 ORDER BY endpoint`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying push subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*push.Subscription, 0)
	for rows.Next() {
		s := push.Subscription{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning push subscription row: %w", err)
		}
		subs = append(subs, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push subscription rows: %w", err)
	}
	return subs, nil
}

// Upsert keys on endpoint: a device that re-registers, possibly under another user, keeps its row.
func (r *PostgresSubscriptionRepository) Upsert(ctx context.Context, sub *push.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	query := `INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT (endpoint) DO UPDATE
                   SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, updated_at = NOW()
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting push subscription: %w", err)
	}
	return nil
}

// Delete is idempotent; a subscription already pruned by a concurrent delivery is not an error.
func (r *PostgresSubscriptionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting push subscription: %w", err)
	}
	return nil
}
