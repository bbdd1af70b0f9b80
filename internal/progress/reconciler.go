package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/p-n-ai/pai-learn/internal/enrollment"
)

const reconcileTimeout = 4 * time.Minute

// Ledger is what the reconciler needs from the enrollment ledger.
type Ledger interface {
	All(ctx context.Context) ([]enrollment.Enrollment, error)
	Sync(ctx context.Context, learnerID, courseID string) (enrollment.Enrollment, error)
}

// ReconcileResult summarizes one reconcile pass.
type ReconcileResult struct {
	Checked int
	Changed int
	Failed  int
}

// Reconciler repairs cached enrollment percentages from lesson facts, for
// example after a course gains or loses lessons.
type Reconciler struct {
	ledger Ledger
}

// NewReconciler creates a reconciler over the ledger.
func NewReconciler(ledger Ledger) *Reconciler {
	return &Reconciler{ledger: ledger}
}

// Run recomputes every enrollment once. A failing enrollment is logged and
// skipped; the pass continues.
func (r *Reconciler) Run(ctx context.Context) (ReconcileResult, error) {
	all, err := r.ledger.All(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list enrollments: %w", err)
	}

	var res ReconcileResult
	for _, before := range all {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		after, err := r.ledger.Sync(ctx, before.LearnerID, before.CourseID)
		if err != nil {
			res.Failed++
			slog.Warn("reconcile enrollment failed",
				"learner_id", before.LearnerID,
				"course_id", before.CourseID,
				"error", err,
			)
			continue
		}
		if after.ProgressPercentage != before.ProgressPercentage || after.Status != before.Status {
			res.Changed++
		}
	}
	return res, nil
}

// Schedule starts a cron that runs the reconciler on spec (for example
// "@every 1h"). Overlapping runs are skipped. Stop the returned cron on
// shutdown.
func (r *Reconciler) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()

		res, err := r.Run(ctx)
		if err != nil {
			slog.Error("reconcile pass failed", "error", err)
			return
		}
		slog.Info("reconcile pass finished",
			"checked", res.Checked,
			"changed", res.Changed,
			"failed", res.Failed,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}

	c.Start()
	return c, nil
}
