// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Clark-Hu/teacher-ratings/internal/service"
)

const defaultJobTimeout = 5 * time.Minute

// Reconciler recomputes cached teacher averages.
type Reconciler interface {
	ReconcileAverages(ctx context.Context) (service.ReconcileReport, error)
}

// ReconcileScheduler triggers a Reconciler on a cron schedule.
type ReconcileScheduler struct {
	cronEngine *cron.Cron
	reconciler Reconciler
	logger     logrus.FieldLogger
	spec       string
	timeout    time.Duration
}

// NewReconcileScheduler builds a scheduler for the given standard cron spec.
func NewReconcileScheduler(reconciler Reconciler, spec string, logger logrus.FieldLogger) *ReconcileScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ReconcileScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		reconciler: reconciler,
		logger:     logger.WithField("component", "reconciler"),
		spec:       spec,
		timeout:    defaultJobTimeout,
	}
}

// Start registers the job and starts the cron engine.
func (s *ReconcileScheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("add reconcile job %q: %w", s.spec, err)
	}
	s.cronEngine.Start()
	s.logger.WithField("schedule", s.spec).Info("reconcile scheduler started")
	return nil
}

// RunOnce performs a single reconciliation and logs its outcome.
func (s *ReconcileScheduler) RunOnce(ctx context.Context) (service.ReconcileReport, error) {
	started := time.Now()
	report, err := s.reconciler.ReconcileAverages(ctx)
	fields := logrus.Fields{
		"checked":  report.Checked,
		"repaired": report.Repaired,
		"duration": time.Since(started).String(),
	}
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("average reconciliation failed")
		return report, err
	}
	s.logger.WithFields(fields).Info("average reconciliation finished")
	return report, nil
}

// Stop halts the scheduler and waits for a running job to finish or ctx to expire.
func (s *ReconcileScheduler) Stop(ctx context.Context) {
	done := s.cronEngine.Stop()
	select {
	case <-done.Done():
		s.logger.Info("reconcile scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("reconcile scheduler stop timed out")
	}
}
