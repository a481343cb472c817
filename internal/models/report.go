package models

import "time"

// Outcome is what happened to one record during an import run
type Outcome string

const (
	OutcomeImported         Outcome = "imported"
	OutcomeSkippedDuplicate Outcome = "skippedDuplicate"
	OutcomeInvalidRejected  Outcome = "invalidRejected"
	OutcomeFilteredExcluded Outcome = "filteredExcluded"
	OutcomeErrored          Outcome = "errored"
)

// Reason explains why a record was not turned into a canonical event
type Reason string

const (
	ReasonMissingTitle       Reason = "missingTitle"
	ReasonInvalidCoordinates Reason = "invalidCoordinates"
	ReasonMissingStart       Reason = "missingStart"
	ReasonOutOfWindow        Reason = "outOfWindow"
	ReasonMalformed          Reason = "malformed"
	ReasonExcluded           Reason = "excluded"
	ReasonNoCategory         Reason = "noCategory"
)

// Outcome maps a rejection reason onto the report counter it feeds.
func (r Reason) Outcome() Outcome {
	switch r {
	case ReasonExcluded, ReasonNoCategory:
		return OutcomeFilteredExcluded
	default:
		return OutcomeInvalidRejected
	}
}

// RunState is the lifecycle of one import run
type RunState string

const (
	RunIdle                RunState = "idle"
	RunRunning             RunState = "running"
	RunCompleted           RunState = "completed"
	RunCompletedWithErrors RunState = "completedWithErrors"
	RunFailed              RunState = "failed"
)

// Counts tallies record outcomes
type Counts struct {
	Imported         int `json:"imported"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	InvalidRejected  int `json:"invalid_rejected"`
	FilteredExcluded int `json:"filtered_excluded"`
	Errored          int `json:"errored"`
}

// Inc increments the counter for outcome o
func (c *Counts) Inc(o Outcome) {
	switch o {
	case OutcomeImported:
		c.Imported++
	case OutcomeSkippedDuplicate:
		c.SkippedDuplicate++
	case OutcomeInvalidRejected:
		c.InvalidRejected++
	case OutcomeFilteredExcluded:
		c.FilteredExcluded++
	case OutcomeErrored:
		c.Errored++
	}
}

// Add sums other into c
func (c *Counts) Add(other Counts) {
	c.Imported += other.Imported
	c.SkippedDuplicate += other.SkippedDuplicate
	c.InvalidRejected += other.InvalidRejected
	c.FilteredExcluded += other.FilteredExcluded
	c.Errored += other.Errored
}

// Total is the number of records seen
func (c Counts) Total() int {
	return c.Imported + c.SkippedDuplicate + c.InvalidRejected + c.FilteredExcluded + c.Errored
}

// SourceReport is one source's section of an import run report
type SourceReport struct {
	Source     string `json:"source"`
	Counts     Counts `json:"counts"`
	Failure    string `json:"failure,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ImportRunReport summarises one import run. It is kept in memory and
// logged, never persisted.
type ImportRunReport struct {
	RunID       string         `json:"run_id"`
	State       RunState       `json:"state"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Window      Window         `json:"window"`
	Sources     []SourceReport `json:"sources"`
	Totals      Counts         `json:"totals"`
	StoredTotal int            `json:"stored_total"`
	Error       string         `json:"error,omitempty"`
}

// Finalize sums the per-source counts and settles the terminal state.
func (r *ImportRunReport) Finalize(finishedAt time.Time, storedTotal int) {
	r.FinishedAt = finishedAt
	r.StoredTotal = storedTotal
	r.Totals = Counts{}
	degraded := false
	for _, s := range r.Sources {
		r.Totals.Add(s.Counts)
		if s.Failure != "" || s.Counts.Errored > 0 {
			degraded = true
		}
	}
	switch {
	case r.Error != "":
		r.State = RunFailed
	case degraded:
		r.State = RunCompletedWithErrors
	default:
		r.State = RunCompleted
	}
}

// Source returns the report section for name, or nil.
func (r *ImportRunReport) Source(name string) *SourceReport {
	for i := range r.Sources {
		if r.Sources[i].Source == name {
			return &r.Sources[i]
		}
	}
	return nil
}
