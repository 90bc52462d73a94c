package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"household_scheduler/internal/app" // For Scanner interface
)

// Lease guards a scan pass across processes. release is nil when ok is false.
type Lease interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Alerter reports scan passes that left failed items behind.
type Alerter interface {
	AlertScanFailures(ctx context.Context, summary app.ScanSummary) error
}

type ScanScheduler struct {
	cronEngine  *cron.Cron
	scanner     app.Scanner
	lease       Lease
	alerter     Alerter
	logger      *logrus.Entry
	cronSpec    string
	scanTimeout time.Duration
}

type Option func(*ScanScheduler)

// WithLease makes every pass acquire l first and skip when another process holds it.
func WithLease(l Lease) Option {
	return func(s *ScanScheduler) { s.lease = l }
}

func WithAlerter(a Alerter) Option {
	return func(s *ScanScheduler) { s.alerter = a }
}

func NewScanScheduler(
	scanner app.Scanner,
	logger *logrus.Entry,
	cronSpec string, // e.g. "@every 60s"
	scanTimeout time.Duration,
	opts ...Option,
) *ScanScheduler {
	logger = logger.WithField("component", "scheduler")
	s := &ScanScheduler{
		// Overlapping passes are skipped rather than queued.
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		scanner:     scanner,
		logger:      logger,
		cronSpec:    cronSpec,
		scanTimeout: scanTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ScanScheduler) Start() error {
	s.logger.Info("Starting scan scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Debug("Cron job triggered for due-item scan.")
		ctx, cancel := context.WithTimeout(context.Background(), s.scanTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("could not add scan cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.cronSpec).Info("Scan scheduler started.")
	return nil
}

// RunOnce executes a single pass under the lease, if one is configured.
// ran is false when the lease was held elsewhere.
func (s *ScanScheduler) RunOnce(ctx context.Context) (summary app.ScanSummary, ran bool) {
	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx)
		if err != nil {
			// Without the lease store the per-reminder claim still prevents double delivery.
			s.logger.WithError(err).Warn("Could not acquire scan lease; running pass anyway")
		} else if !ok {
			s.logger.Debug("Scan lease held by another instance; skipping pass")
			return app.ScanSummary{}, false
		} else {
			defer release()
		}
	}

	summary = s.scanner.Run(ctx)

	if summary.Failed > 0 && s.alerter != nil {
		if err := s.alerter.AlertScanFailures(ctx, summary); err != nil {
			s.logger.WithError(err).Error("Failed to send scan failure alert")
		}
	}
	return summary, true
}

func (s *ScanScheduler) Stop() {
	s.logger.Info("Stopping scan scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Scan scheduler gracefully stopped.")
}
