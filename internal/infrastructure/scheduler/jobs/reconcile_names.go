// Package jobs contains implementations of scheduled jobs for the rank hub.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE NAMES JOB
// ══════════════════════════════════════════════════════════════════════════════

// Reconciler is the slice of the ranking service this job needs.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// ReconcileNamesJob periodically aligns every member's visible name with the
// rank table. Renames lost to members leaving, manual nickname edits, or
// earlier soft failures heal on the next pass.
type ReconcileNamesJob struct {
	ranks   Reconciler
	timeout time.Duration
	logger  *slog.Logger
}

// NewReconcileNamesJob creates the job.
func NewReconcileNamesJob(ranks Reconciler, timeout time.Duration, logger *slog.Logger) *ReconcileNamesJob {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileNamesJob{ranks: ranks, timeout: timeout, logger: logger}
}

// Name returns the unique name of the job.
func (j *ReconcileNamesJob) Name() string {
	return "reconcile_names"
}

// Description returns a human-readable description of the job.
func (j *ReconcileNamesJob) Description() string {
	return "Aligns member display names with the authoritative rank table"
}

// Run executes one reconciliation pass.
func (j *ReconcileNamesJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if err := j.ranks.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile names: %w", err)
	}
	return nil
}
