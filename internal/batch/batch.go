// Package batch runs packaging jobs end to end: scan, hash, assemble,
// and write, with bounded job parallelism over one shared worker budget.
package batch

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusHashing    Status = "hashing"
	StatusAssembling Status = "assembling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Options carries the per-job descriptor settings.
type Options struct {
	Trackers       []string
	Private        bool
	Comment        string
	CreatedBy      string
	RequireTracker bool

	// PieceLength overrides automatic selection when positive.
	PieceLength int64

	// CreatedAt pins the descriptor creation time. Zero stamps assembly
	// time; pin it when repeated runs must serialize byte-identically.
	CreatedAt time.Time
}

// Job is one packaging request.
type Job struct {
	ID           string
	Source       string
	NameOverride string
	OutputDir    string
	Options      Options
}

// NewJob builds a job with a fresh id.
func NewJob(source string) Job {
	return Job{ID: uuid.NewString(), Source: source}
}

// Outcome is the terminal record of one job. Err is nil exactly when
// Status is StatusCompleted.
type Outcome struct {
	JobID          string
	Source         string
	Name           string
	Status         Status
	DescriptorPath string
	InfoHash       string
	PieceCount     int
	PieceLength    int64
	TotalBytes     int64
	Elapsed        time.Duration
	Err            error
}

// Summary tallies terminal statuses across a batch.
type Summary struct {
	Completed int
	Failed    int
	Cancelled int
}

// Result is the full output of a batch run. Outcomes is parallel to the
// submitted job slice.
type Result struct {
	Outcomes []Outcome
	Summary  Summary
}

func (r *Result) tally() {
	for _, outcome := range r.Outcomes {
		switch outcome.Status {
		case StatusCompleted:
			r.Summary.Completed++
		case StatusCancelled:
			r.Summary.Cancelled++
		default:
			r.Summary.Failed++
		}
	}
}

// ProgressFunc receives per-job piece completion events.
type ProgressFunc func(jobID string, completed, total int)
