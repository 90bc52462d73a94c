package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"household_scheduler/internal/domain/push"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string { return &s }

// fakeTransport answers per endpoint and records every attempt.
type fakeTransport struct {
	mu       sync.Mutex
	errs     map[string]error
	attempts []string
	payloads [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{errs: make(map[string]error)}
}

func (f *fakeTransport) Send(_ context.Context, sub *push.Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, sub.Endpoint)
	f.payloads = append(f.payloads, payload)
	return f.errs[sub.Endpoint]
}

func (f *fakeTransport) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}
