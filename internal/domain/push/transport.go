package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Transport delivers an encoded payload to a single device endpoint.
type Transport interface {
	Send(ctx context.Context, sub *Subscription, payload []byte) error
}

// DeliveryError is returned by a Transport when the push service answered with an error status.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push service responded with status %d: %s", e.StatusCode, e.Body)
}

// IsExpired reports whether err means the endpoint no longer exists (404 or 410).
func IsExpired(err error) bool {
	var de *DeliveryError
	if !errors.As(err, &de) {
		return false
	}
	return de.StatusCode == http.StatusNotFound || de.StatusCode == http.StatusGone
}
