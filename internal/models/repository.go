package models

import "time"

// Repository is the normalized record for one source-control repository.
// RepositoryID is derived from host, owner and name and is never regenerated
// once created; metadata refreshes are upserts keyed on it.
type Repository struct {
	RepositoryID    string            `json:"repository_id"`
	Name            string            `json:"name"`
	Owner           string            `json:"owner"`
	Description     string            `json:"description"`
	PrimaryLanguage string            `json:"primary_language"`
	CloneURL        string            `json:"clone_url"`
	CreatedAt       time.Time         `json:"created_at"`
	LastUpdatedAt   time.Time         `json:"last_updated_at"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// RepoRef identifies a repository to collect.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}
