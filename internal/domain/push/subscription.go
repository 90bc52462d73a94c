package push

import (
	"context"
	"time"
)

// Subscription is one registered device endpoint of a user.
// Corresponds to the 'push_subscriptions' table.
type Subscription struct {
	ID        string
	UserID    string
	Endpoint  string // unique across users
	P256dh    string
	Auth      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines operations for PushSubscription.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)
	// Upsert registers sub, or refreshes keys and owner when the endpoint is already known.
	Upsert(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}
