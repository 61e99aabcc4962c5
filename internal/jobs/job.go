// Package jobs coordinates per-owner enrichment runs: admission, progress
// snapshots, cooperative cancellation and eviction of finished runs.
package jobs

import (
	"time"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Progress holds a run's counters.
type Progress struct {
	Total        int    `json:"total"`
	Enriched     int    `json:"enriched"`
	Skipped      int    `json:"skipped"`
	Errors       int    `json:"errors"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Processed is the number of contacts that reached an outcome.
func (p Progress) Processed() int {
	return p.Enriched + p.Skipped + p.Errors
}

// atLeast returns p with every counter raised to at least the value in
// floor, so a snapshot never moves backwards.
func (p Progress) atLeast(floor Progress) Progress {
	p.Total = max(p.Total, floor.Total)
	p.Enriched = max(p.Enriched, floor.Enriched)
	p.Skipped = max(p.Skipped, floor.Skipped)
	p.Errors = max(p.Errors, floor.Errors)
	if p.ErrorMessage == "" {
		p.ErrorMessage = floor.ErrorMessage
	}
	return p
}

// Job is one owner's enrichment run. At most one non-terminal Job exists
// per owner.
type Job struct {
	OwnerID    string     `json:"owner_id"`
	RunID      string     `json:"run_id"`
	Status     Status     `json:"status"`
	Progress   Progress   `json:"progress"`
	Force      bool       `json:"force"`
	Stopped    bool       `json:"stopped"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job will not process further contacts.
func (j *Job) Terminal() bool {
	return j != nil && j.Status.Terminal()
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
