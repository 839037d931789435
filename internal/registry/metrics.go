package registry

import (
	"math"
	"math/bits"
	"time"
)

// Metrics holds the deployment-wide aggregate counters.
type Metrics struct {
	TotalRepos          uint64     `json:"total_repos"`
	TotalModules        uint64     `json:"total_modules"`
	TotalForks          uint64     `json:"total_forks"`
	TotalObservations   uint64     `json:"total_observations"`
	TotalLinesOfCode    uint64     `json:"total_lines_of_code"`
	TotalFilesProcessed uint64     `json:"total_files_processed"`
	LastObservationAt   *time.Time `json:"last_observation_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MetricsAdjustment overwrites any subset of the counters.
type MetricsAdjustment struct {
	TotalRepos          *uint64 `json:"total_repos,omitempty"`
	TotalModules        *uint64 `json:"total_modules,omitempty"`
	TotalForks          *uint64 `json:"total_forks,omitempty"`
	TotalObservations   *uint64 `json:"total_observations,omitempty"`
	TotalLinesOfCode    *uint64 `json:"total_lines_of_code,omitempty"`
	TotalFilesProcessed *uint64 `json:"total_files_processed,omitempty"`
}

// IsEmpty reports whether the adjustment sets nothing.
func (a MetricsAdjustment) IsEmpty() bool {
	return a == MetricsAdjustment{}
}

// MetricsSummary is a point-in-time copy of the counters.
type MetricsSummary struct {
	TotalRepos          uint64     `json:"total_repos"`
	TotalModules        uint64     `json:"total_modules"`
	TotalForks          uint64     `json:"total_forks"`
	TotalObservations   uint64     `json:"total_observations"`
	TotalLinesOfCode    uint64     `json:"total_lines_of_code"`
	TotalFilesProcessed uint64     `json:"total_files_processed"`
	LastObservationAt   *time.Time `json:"last_observation_at,omitempty"`
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return a, newError(CodeCounterOverflow, "counter overflow")
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return a, newError(CodeCounterOverflow, "counter underflow")
	}
	return diff, nil
}

func checkedInc32(v uint32) (uint32, error) {
	if v == math.MaxUint32 {
		return v, newError(CodeCounterOverflow, "counter overflow")
	}
	return v + 1, nil
}

func incr(counter *uint64) error {
	v, err := checkedAdd(*counter, 1)
	if err != nil {
		return err
	}
	*counter = v
	return nil
}

func decr(counter *uint64) error {
	v, err := checkedSub(*counter, 1)
	if err != nil {
		return err
	}
	*counter = v
	return nil
}

func (m *Metrics) IncrementRepos() error   { return incr(&m.TotalRepos) }
func (m *Metrics) IncrementModules() error { return incr(&m.TotalModules) }
func (m *Metrics) IncrementForks() error   { return incr(&m.TotalForks) }
func (m *Metrics) DecrementRepos() error   { return decr(&m.TotalRepos) }
func (m *Metrics) DecrementModules() error { return decr(&m.TotalModules) }
func (m *Metrics) DecrementForks() error   { return decr(&m.TotalForks) }

// RecordObservation adds one observation. Either all three counters change or none do.
func (m *Metrics) RecordObservation(lines uint64, files uint32, limits ObservationLimits, now time.Time) error {
	if lines > limits.MaxLinesOfCode {
		return newError(CodeObservationDataTooLarge, "lines of code %d exceeds %d", lines, limits.MaxLinesOfCode)
	}
	if files > limits.MaxFilesProcessed {
		return newError(CodeObservationDataTooLarge, "files processed %d exceeds %d", files, limits.MaxFilesProcessed)
	}

	observations, err := checkedAdd(m.TotalObservations, 1)
	if err != nil {
		return err
	}
	loc, err := checkedAdd(m.TotalLinesOfCode, lines)
	if err != nil {
		return err
	}
	processed, err := checkedAdd(m.TotalFilesProcessed, uint64(files))
	if err != nil {
		return err
	}

	m.TotalObservations = observations
	m.TotalLinesOfCode = loc
	m.TotalFilesProcessed = processed
	m.LastObservationAt = &now
	m.UpdatedAt = now
	return nil
}

// AdjustAggregate overwrites the counters named in adj and stamps UpdatedAt.
func (m *Metrics) AdjustAggregate(adj MetricsAdjustment, now time.Time) {
	set := func(dst *uint64, v *uint64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&m.TotalRepos, adj.TotalRepos)
	set(&m.TotalModules, adj.TotalModules)
	set(&m.TotalForks, adj.TotalForks)
	set(&m.TotalObservations, adj.TotalObservations)
	set(&m.TotalLinesOfCode, adj.TotalLinesOfCode)
	set(&m.TotalFilesProcessed, adj.TotalFilesProcessed)
	m.UpdatedAt = now
}

func (m *Metrics) Summary() MetricsSummary {
	return MetricsSummary{
		TotalRepos:          m.TotalRepos,
		TotalModules:        m.TotalModules,
		TotalForks:          m.TotalForks,
		TotalObservations:   m.TotalObservations,
		TotalLinesOfCode:    m.TotalLinesOfCode,
		TotalFilesProcessed: m.TotalFilesProcessed,
		LastObservationAt:   m.LastObservationAt,
	}
}
