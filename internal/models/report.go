package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RepoState tracks where a repository's collection pipeline currently is
type RepoState string

const (
	StatePending       RepoState = "PENDING"
	StateListing       RepoState = "LISTING_COMMITS"
	StateFetchingDiffs RepoState = "FETCHING_DIFFS"
	StateMapping       RepoState = "MAPPING"
	StatePersisting    RepoState = "PERSISTING"
	StateDone          RepoState = "DONE"
	StateErrored       RepoState = "ERRORED"
)

// RepoStatus is the scheduler-facing result for one repository
type RepoStatus string

const (
	StatusCompleted    RepoStatus = "completed"
	StatusWithWarnings RepoStatus = "completed_with_warnings"
	StatusErrored      RepoStatus = "errored"
)

// Outcome is the aggregate result of a batch run
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// ExitCode maps a batch outcome to the process exit code consumed by the
// external scheduler.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomePartial:
		return 3
	default:
		return 1
	}
}

// RepoReport describes the collection result for one repository
type RepoReport struct {
	RepositoryID     string     `json:"repository_id,omitempty"`
	Owner            string     `json:"owner"`
	Name             string     `json:"name"`
	State            RepoState  `json:"state"`
	Status           RepoStatus `json:"status,omitempty"`
	CommitsCollected int        `json:"commits_collected"`
	CommitsSkipped   int        `json:"commits_skipped"`
	Warnings         []string   `json:"warnings,omitempty"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at,omitempty"`
	FinishedAt       time.Time  `json:"finished_at,omitempty"`
}

// String returns the JSON representation of the report
func (r *RepoReport) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal repo report: %v"}`, err)
	}
	return string(data)
}

// BatchReport aggregates per-repository reports for one batch run
type BatchReport struct {
	Outcome      Outcome      `json:"outcome"`
	Repositories []RepoReport `json:"repositories"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// ResolveOutcome derives the aggregate outcome from the per-repository
// statuses: all good is success, a mix is partial, all errored is failure.
func (b *BatchReport) ResolveOutcome() {
	errored := 0
	for _, r := range b.Repositories {
		if r.Status == StatusErrored {
			errored++
		}
	}
	switch {
	case errored == 0:
		b.Outcome = OutcomeSuccess
	case errored == len(b.Repositories):
		b.Outcome = OutcomeFailure
	default:
		b.Outcome = OutcomePartial
	}
}
