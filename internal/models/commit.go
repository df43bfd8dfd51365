package models

import "time"

// Commit is the normalized record for one commit. CommitHash is
// content-addressed by the host, so collection is idempotent on it.
// The stats_* fields are always derived by summing the commit's FileChange
// rows, never taken from upstream aggregates.
type Commit struct {
	CommitHash        string    `json:"commit_hash"`
	RepositoryID      string    `json:"repository_id"`
	AuthorID          string    `json:"author_id"`
	CommitterID       string    `json:"committer_id"`
	Message           string    `json:"message"`
	AuthoredAt        time.Time `json:"authored_timestamp"`
	CommittedAt       time.Time `json:"committed_timestamp"`
	ParentHashes      []string  `json:"parent_hashes"`
	TreeHash          string    `json:"tree_hash"`
	StatsLinesAdded   int       `json:"stats_lines_added"`
	StatsLinesDeleted int       `json:"stats_lines_deleted"`
	StatsFilesChanged int       `json:"stats_files_changed"`
}
