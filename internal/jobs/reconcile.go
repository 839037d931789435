// Package jobs contains background workers that run on a schedule.
// The metrics reconciler recounts the store and corrects aggregate counters that
// drifted from the records actually held. Runs are idempotent: a second pass over
// an unchanged store finds nothing to correct.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/registry"
	"github.com/modlink/registry-engine/internal/safego"
	"github.com/modlink/registry-engine/internal/telemetry"
)

// ReconcileResult describes one reconciliation pass.
type ReconcileResult struct {
	Counts     map[address.Kind]int64
	Adjustment registry.MetricsAdjustment
	Corrected  bool
}

// MetricsReconciler periodically aligns total_repos, total_modules and
// total_forks with the number of records in the store.
type MetricsReconciler struct {
	engine   *registry.Engine
	actor    address.Key
	interval time.Duration
	mu       sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsReconciler creates a reconciler that writes corrections as actor.
// actor must pass the engine's reconciler policy.
func NewMetricsReconciler(engine *registry.Engine, actor address.Key, interval time.Duration) *MetricsReconciler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &MetricsReconciler{
		engine:   engine,
		actor:    actor,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (j *MetricsReconciler) Start(ctx context.Context) {
	slog.Info("starting metrics reconciler", "interval", j.interval)

	j.wg.Add(1)
	safego.Go("metrics-reconciler", func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.run(ctx)

		for {
			select {
			case <-ticker.C:
				j.run(ctx)
			case <-j.stopCh:
				slog.Info("metrics reconciler stopped")
				return
			case <-ctx.Done():
				slog.Info("metrics reconciler context cancelled")
				return
			}
		}
	})
}

// Stop stops the loop and waits for an in-flight pass to finish.
func (j *MetricsReconciler) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *MetricsReconciler) run(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		slog.Error("metrics reconciliation failed", "error", err)
	}
}

// RunOnce performs a single pass. Passes never overlap.
func (j *MetricsReconciler) RunOnce(ctx context.Context) (*ReconcileResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.reconcile(ctx)
	switch {
	case err != nil:
		telemetry.ReconcileRunsTotal.WithLabelValues("error").Inc()
	case res.Corrected:
		telemetry.ReconcileRunsTotal.WithLabelValues("drift").Inc()
	default:
		telemetry.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	}
	return res, err
}

func (j *MetricsReconciler) reconcile(ctx context.Context) (*ReconcileResult, error) {
	rc, err := j.engine.ReconcileCounts(ctx, j.actor)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile counters: %w", err)
	}
	for kind, n := range rc.Counts {
		telemetry.RegistryRecords.WithLabelValues(string(kind)).Set(float64(n))
	}

	res := &ReconcileResult{Counts: rc.Counts, Adjustment: rc.Adjustment, Corrected: rc.Corrected()}
	if res.Corrected {
		slog.Warn("aggregate counters drifted from store, corrected",
			"total_repos", rc.Before.TotalRepos, "repo_records", rc.Counts[address.KindRepo],
			"total_modules", rc.Before.TotalModules, "module_records", rc.Counts[address.KindModule],
			"total_forks", rc.Before.TotalForks, "fork_records", rc.Counts[address.KindFork],
		)
	}
	return res, nil
}
