package model

import "time"

// RunStatus is the outcome of a count run.
type RunStatus string

const (
	RunStatusPassed RunStatus = "passed"
	// RunStatusFailed means the method count exceeded the configured maximum.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCountFailed means the artifact could not be counted.
	RunStatusCountFailed RunStatus = "count_failed"
)

// CountRun records the totals of one count run.
type CountRun struct {
	ID       string
	Artifact string
	Variant  string

	Methods         int
	Fields          int
	Classes         int
	DeclaredMethods int
	DeclaredFields  int

	// MaxMethodCount is the threshold in force, 0 when none.
	MaxMethodCount int
	Status         RunStatus

	TreeURL   string
	ReportURL string

	Duration  time.Duration
	CreatedAt time.Time
}

// Passed reports whether the run stayed within the threshold.
func (r *CountRun) Passed() bool {
	return r.Status == RunStatusPassed
}

// Remaining returns how many methods can still be added before the
// threshold is hit. It is negative once exceeded and 0 without a threshold.
func (r *CountRun) Remaining() int {
	if r.MaxMethodCount <= 0 {
		return 0
	}
	return r.MaxMethodCount - r.Methods
}
