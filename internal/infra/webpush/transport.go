// Package webpush delivers push payloads to browser endpoints over the Web Push protocol.
package webpush

import (
	"context"
	"io"
	"net/http"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"

	"household_scheduler/internal/domain/push"
)

const maxErrorBody = 4096

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // mailto: or https: contact for the push service
	TTL             int    // seconds
}

// Transport implements push.Transport with VAPID-signed, encrypted requests.
type Transport struct {
	cfg    Config
	client webpushgo.HTTPClient
}

var _ push.Transport = (*Transport)(nil)

func NewTransport(cfg Config, client webpushgo.HTTPClient) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{cfg: cfg, client: client}
}

// Send encrypts payload for sub and posts it. A non-2xx answer becomes a *push.DeliveryError.
func (t *Transport) Send(ctx context.Context, sub *push.Subscription, payload []byte) error {
	s := &webpushgo.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}
	resp, err := webpushgo.SendNotificationWithContext(ctx, payload, s, &webpushgo.Options{
		HTTPClient:      t.client,
		Subscriber:      t.cfg.Subscriber,
		TTL:             t.cfg.TTL,
		Urgency:         webpushgo.UrgencyNormal,
		VAPIDPublicKey:  t.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: t.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return errors.Wrapf(err, "Send: error sending web push to subscription %s", sub.ID)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &push.DeliveryError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
