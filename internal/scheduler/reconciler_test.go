package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Clark-Hu/teacher-ratings/internal/logging"
	"github.com/Clark-Hu/teacher-ratings/internal/service"
)

type countingReconciler struct {
	calls  atomic.Int32
	report service.ReconcileReport
	err    error
}

func (r *countingReconciler) ReconcileAverages(context.Context) (service.ReconcileReport, error) {
	r.calls.Add(1)
	return r.report, r.err
}

func TestRunOnce(t *testing.T) {
	rec := &countingReconciler{report: service.ReconcileReport{Checked: 3, Repaired: 1}}
	s := NewReconcileScheduler(rec, "@every 1h", logging.Discard())

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Checked != 3 || report.Repaired != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	rec.err = errors.New("boom")
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := NewReconcileScheduler(&countingReconciler{}, "not a cron spec", logging.Discard())
	if err := s.Start(); err == nil {
		t.Fatalf("expected invalid spec to be rejected")
	}
}

func TestScheduledRun(t *testing.T) {
	rec := &countingReconciler{}
	s := NewReconcileScheduler(rec, "@every 1s", logging.Discard())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rec.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)

	if rec.calls.Load() == 0 {
		t.Fatalf("expected scheduled job to run")
	}
}
