package registry

import (
	"context"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
)

// RecordObservation adds one code observation of a repository to the aggregate.
// The observer must pass the policy and the repo must be active and opted in.
func (e *Engine) RecordObservation(ctx context.Context, actor, repoAddr address.Key, lines uint64, files uint32) (*MetricsSummary, error) {
	var summary MetricsSummary
	err := e.mutate(ctx, "record_observation", func(t *txn) error {
		if _, err := t.gate(); err != nil {
			return err
		}
		if !e.policy.CanObserve(actor) {
			return newError(CodeInvalidAuthority, "caller %s may not record observations", actor.Short())
		}
		repo, err := t.repo(repoAddr)
		if err != nil {
			return err
		}
		if err := repo.AssertActive(); err != nil {
			return err
		}
		if !repo.AllowObservation {
			return newError(CodeObservationDisabled, "repo %s does not accept observations", repo.Name)
		}

		m, err := t.metrics()
		if err != nil {
			return err
		}
		if err := m.RecordObservation(lines, files, e.limits, t.now); err != nil {
			return err
		}
		if err := t.putMetrics(m); err != nil {
			return err
		}
		summary = m.Summary()

		t.emit(events.ObservationRecorded{
			Repo:           repoAddr,
			Observer:       actor,
			LinesOfCode:    lines,
			FilesProcessed: files,
			ObservedAt:     t.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// RecordMetrics overwrites aggregate counters. It is meant for trusted reconciliation.
func (e *Engine) RecordMetrics(ctx context.Context, actor address.Key, adj MetricsAdjustment) (*MetricsSummary, error) {
	var summary MetricsSummary
	err := e.mutate(ctx, "record_metrics", func(t *txn) error {
		m, err := t.reconcilable(e.policy, actor)
		if err != nil {
			return err
		}
		summary, err = t.overwriteMetrics(actor, m, adj)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// CountReconciliation is the outcome of one ReconcileCounts call.
type CountReconciliation struct {
	Counts     map[address.Kind]int64
	Before     MetricsSummary
	Adjustment MetricsAdjustment
}

// Corrected reports whether any counter was overwritten.
func (r *CountReconciliation) Corrected() bool { return !r.Adjustment.IsEmpty() }

// ReconcileCounts recounts repos, modules and forks and overwrites the
// aggregate counters that disagree, in one transaction. The metrics record is
// locked before the count, so a registration racing the pass is either counted
// or increments the corrected value after commit.
func (e *Engine) ReconcileCounts(ctx context.Context, actor address.Key) (*CountReconciliation, error) {
	var res CountReconciliation
	err := e.mutate(ctx, "reconcile_counts", func(t *txn) error {
		m, err := t.reconcilable(e.policy, actor)
		if err != nil {
			return err
		}
		counts, err := t.tx.Count(t.ctx)
		if err != nil {
			return internalError("failed to count records", err)
		}

		res = CountReconciliation{Counts: counts, Before: m.Summary()}
		res.Adjustment.TotalRepos = countDrift(m.TotalRepos, counts[address.KindRepo])
		res.Adjustment.TotalModules = countDrift(m.TotalModules, counts[address.KindModule])
		res.Adjustment.TotalForks = countDrift(m.TotalForks, counts[address.KindFork])
		if res.Adjustment.IsEmpty() {
			return nil
		}
		_, err = t.overwriteMetrics(actor, m, res.Adjustment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// countDrift returns the record count when it differs from the stored counter.
func countDrift(stored uint64, records int64) *uint64 {
	if records < 0 || stored == uint64(records) {
		return nil
	}
	v := uint64(records)
	return &v
}

// reconcilable applies the write gate and the reconciler policy, then loads
// and locks the aggregate.
func (t *txn) reconcilable(p Policy, actor address.Key) (*Metrics, error) {
	if _, err := t.gate(); err != nil {
		return nil, err
	}
	if !p.CanReconcile(actor) {
		return nil, newError(CodeInvalidAuthority, "caller %s may not reconcile metrics", actor.Short())
	}
	return t.metrics()
}

func (t *txn) overwriteMetrics(actor address.Key, m *Metrics, adj MetricsAdjustment) (MetricsSummary, error) {
	m.AdjustAggregate(adj, t.now)
	if err := t.putMetrics(m); err != nil {
		return MetricsSummary{}, err
	}
	t.emit(events.MetricsUpdated{
		UpdatedBy:           actor,
		TotalRepos:          m.TotalRepos,
		TotalModules:        m.TotalModules,
		TotalForks:          m.TotalForks,
		TotalObservations:   m.TotalObservations,
		TotalLinesOfCode:    m.TotalLinesOfCode,
		TotalFilesProcessed: m.TotalFilesProcessed,
		UpdatedAt:           t.now,
	})
	return m.Summary(), nil
}
