package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household_scheduler/internal/app"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type stubScanner struct {
	runs    atomic.Int32
	summary app.ScanSummary
}

func (s *stubScanner) Run(context.Context) app.ScanSummary {
	s.runs.Add(1)
	return s.summary
}

type stubLease struct {
	ok       bool
	err      error
	released int
}

func (l *stubLease) Acquire(context.Context) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, l.ok, l.err
	}
	return func() { l.released++ }, true, nil
}

type recordingAlerter struct {
	alerts []app.ScanSummary
}

func (a *recordingAlerter) AlertScanFailures(_ context.Context, s app.ScanSummary) error {
	a.alerts = append(a.alerts, s)
	return nil
}

func TestRunOnce_WithoutLease(t *testing.T) {
	sc := &stubScanner{summary: app.ScanSummary{DueProcessed: 2}}
	s := NewScanScheduler(sc, quietLogger(), "@every 1m", time.Second)

	summary, ran := s.RunOnce(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 2, summary.DueProcessed)
	assert.EqualValues(t, 1, sc.runs.Load())
}

func TestRunOnce_LeaseHeldElsewhereSkipsPass(t *testing.T) {
	sc := &stubScanner{}
	s := NewScanScheduler(sc, quietLogger(), "@every 1m", time.Second, WithLease(&stubLease{ok: false}))

	_, ran := s.RunOnce(context.Background())
	assert.False(t, ran)
	assert.Zero(t, sc.runs.Load())
}

func TestRunOnce_LeaseIsReleased(t *testing.T) {
	sc := &stubScanner{}
	lease := &stubLease{ok: true}
	s := NewScanScheduler(sc, quietLogger(), "@every 1m", time.Second, WithLease(lease))

	_, ran := s.RunOnce(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 1, lease.released)
}

func TestRunOnce_LeaseStoreDownStillScans(t *testing.T) {
	sc := &stubScanner{}
	s := NewScanScheduler(sc, quietLogger(), "@every 1m", time.Second, WithLease(&stubLease{err: errors.New("redis: connection refused")}))

	_, ran := s.RunOnce(context.Background())
	assert.True(t, ran)
	assert.EqualValues(t, 1, sc.runs.Load())
}

func TestRunOnce_AlertsOnlyOnFailures(t *testing.T) {
	alerter := &recordingAlerter{}

	clean := NewScanScheduler(&stubScanner{summary: app.ScanSummary{DueProcessed: 3}}, quietLogger(), "@every 1m", time.Second, WithAlerter(alerter))
	clean.RunOnce(context.Background())
	assert.Empty(t, alerter.alerts)

	failing := NewScanScheduler(&stubScanner{summary: app.ScanSummary{DueProcessed: 3, Failed: 1}}, quietLogger(), "@every 1m", time.Second, WithAlerter(alerter))
	failing.RunOnce(context.Background())
	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, 1, alerter.alerts[0].Failed)
}

func TestStart_RejectsInvalidCronExpression(t *testing.T) {
	s := NewScanScheduler(&stubScanner{}, quietLogger(), "not a cron spec", time.Second)
	assert.Error(t, s.Start())
}

func TestStart_RunsPassesOnSchedule(t *testing.T) {
	sc := &stubScanner{}
	s := NewScanScheduler(sc, quietLogger(), "@every 1s", time.Second)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return sc.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
