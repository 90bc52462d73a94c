// internal/app/notification_dispatcher.go
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"household_scheduler/internal/domain/push"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	defaultMaxDeliveries   = 8
)

// Dispatcher delivers a payload to every device of a user.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, payload push.Payload) (DispatchResult, error)
}

// DispatchResult counts successful deliveries out of all registered devices.
type DispatchResult struct {
	Sent  int `json:"sent"`
	Total int `json:"total"`
}

type deliveryOutcome int

const (
	outcomeFailed deliveryOutcome = iota
	outcomeSent
	outcomePruned
)

// NotificationDispatcher fans a payload out to a user's push subscriptions.
type NotificationDispatcher struct {
	subRepo         push.Repository
	transport       push.Transport
	logger          *logrus.Entry
	deliveryTimeout time.Duration
	maxConcurrent   int
}

func NewNotificationDispatcher(
	sr push.Repository,
	tr push.Transport,
	logger *logrus.Entry,
	deliveryTimeout time.Duration,
	maxConcurrent int,
) *NotificationDispatcher {
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxDeliveries
	}
	return &NotificationDispatcher{
		subRepo:         sr,
		transport:       tr,
		logger:          logger.WithField("component", "dispatcher"),
		deliveryTimeout: deliveryTimeout,
		maxConcurrent:   maxConcurrent,
	}
}

// Dispatch sends payload to all subscriptions of userID and waits for every attempt to settle.
// Expired endpoints (404/410) are deleted. Partial failure is not an error; only a failure to
// load the user's subscriptions is returned.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, userID string, payload push.Payload) (DispatchResult, error) {
	logCtx := d.logger.WithField("user_id", userID)

	subs, err := d.subRepo.ListByUser(ctx, userID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("failed to list push subscriptions for user %s: %w", userID, err)
	}
	if len(subs) == 0 {
		logCtx.Debug("No push subscriptions registered for user")
		return DispatchResult{}, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return DispatchResult{Total: len(subs)}, fmt.Errorf("failed to encode push payload: %w", err)
	}

	outcomes := make([]deliveryOutcome, len(subs))
	var g errgroup.Group // no derived context: one failure must not cancel the others
	g.SetLimit(d.maxConcurrent)
	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, logCtx, sub, body)
			return nil
		})
	}
	_ = g.Wait()

	result := DispatchResult{Total: len(subs)}
	pruned := 0
	for _, o := range outcomes {
		switch o {
		case outcomeSent:
			result.Sent++
		case outcomePruned:
			pruned++
		}
	}
	logCtx.WithFields(logrus.Fields{
		"sent":   result.Sent,
		"total":  result.Total,
		"pruned": pruned,
	}).Info("Push dispatch settled")
	return result, nil
}

func (d *NotificationDispatcher) deliver(ctx context.Context, logCtx *logrus.Entry, sub *push.Subscription, body []byte) (outcome deliveryOutcome) {
	logCtx = logCtx.WithField("subscription_id", sub.ID)
	defer func() {
		if r := recover(); r != nil {
			logCtx.Errorf("Push delivery panicked: %v", r)
			outcome = outcomeFailed
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	err := d.transport.Send(sendCtx, sub, body)
	switch {
	case err == nil:
		return outcomeSent
	case push.IsExpired(err):
		logCtx.WithError(err).Info("Push endpoint expired, removing subscription")
		if delErr := d.subRepo.Delete(ctx, sub.ID); delErr != nil {
			logCtx.WithError(delErr).Error("Failed to delete expired push subscription")
		}
		return outcomePruned
	default:
		logCtx.WithError(err).Warn("Push delivery failed")
		return outcomeFailed
	}
}
