package storage

import (
	"encoding/json"
	"time"

	"github.com/LukasIV/github-commit-collector/internal/models"
)

// Parquet row shapes for the metadata tables. The column set is the stable
// contract consumed by the downstream training pipeline; extension metadata
// is carried as a single JSON column so the fixed schema never grows
// per-record columns.

type repositoryRow struct {
	RepositoryID    string    `parquet:"repository_id"`
	Name            string    `parquet:"name"`
	Owner           string    `parquet:"owner"`
	Description     string    `parquet:"description"`
	PrimaryLanguage string    `parquet:"primary_language"`
	CloneURL        string    `parquet:"clone_url"`
	CreatedAt       time.Time `parquet:"created_at"`
	LastUpdatedAt   time.Time `parquet:"last_updated_at"`
	Metadata        string    `parquet:"metadata"`
}

type authorRow struct {
	AuthorID string `parquet:"author_id"`
	Name     string `parquet:"name"`
	Username string `parquet:"username"`
	Email    string `parquet:"email"`
	Metadata string `parquet:"metadata"`
}

type commitRow struct {
	CommitHash        string    `parquet:"commit_hash"`
	RepositoryID      string    `parquet:"repository_id"`
	AuthorID          string    `parquet:"author_id"`
	CommitterID       string    `parquet:"committer_id"`
	Message           string    `parquet:"message"`
	AuthoredAt        time.Time `parquet:"authored_timestamp"`
	CommittedAt       time.Time `parquet:"committed_timestamp"`
	ParentHashes      []string  `parquet:"parent_hashes,list"`
	TreeHash          string    `parquet:"tree_hash"`
	StatsLinesAdded   int64     `parquet:"stats_lines_added"`
	StatsLinesDeleted int64     `parquet:"stats_lines_deleted"`
	StatsFilesChanged int64     `parquet:"stats_files_changed"`
}

type fileChangeRow struct {
	FileChangeID string  `parquet:"file_change_id"`
	CommitHash   string  `parquet:"commit_hash"`
	FilePath     string  `parquet:"file_path"`
	ChangeType   string  `parquet:"change_type"`
	OldFilePath  *string `parquet:"old_file_path,optional"`
	LinesAdded   int64   `parquet:"lines_added"`
	LinesDeleted int64   `parquet:"lines_deleted"`

	FileModeBefore *string `parquet:"file_mode_before,optional"`
	FileModeAfter  *string `parquet:"file_mode_after,optional"`
	BlobHashBefore *string `parquet:"blob_hash_before,optional"`
	BlobHashAfter  *string `parquet:"blob_hash_after,optional"`

	ContentBeforeKey    *string `parquet:"content_before_key,optional"`
	ContentAfterKey     *string `parquet:"content_after_key,optional"`
	PatchKey            *string `parquet:"patch_key,optional"`
	ContentBeforeInline []byte  `parquet:"content_before_inline,optional"`
	ContentAfterInline  []byte  `parquet:"content_after_inline,optional"`

	FileType string `parquet:"file_type"`
	IsBinary bool   `parquet:"is_binary"`
}

func metadataJSON(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func toRepositoryRow(r *models.Repository) repositoryRow {
	return repositoryRow{
		RepositoryID:    r.RepositoryID,
		Name:            r.Name,
		Owner:           r.Owner,
		Description:     r.Description,
		PrimaryLanguage: r.PrimaryLanguage,
		CloneURL:        r.CloneURL,
		CreatedAt:       r.CreatedAt,
		LastUpdatedAt:   r.LastUpdatedAt,
		Metadata:        metadataJSON(r.Metadata),
	}
}

func toAuthorRow(a *models.Author) authorRow {
	return authorRow{
		AuthorID: a.AuthorID,
		Name:     a.Name,
		Username: a.Username,
		Email:    a.Email,
		Metadata: metadataJSON(a.Metadata),
	}
}

func toCommitRow(c *models.Commit) commitRow {
	return commitRow{
		CommitHash:        c.CommitHash,
		RepositoryID:      c.RepositoryID,
		AuthorID:          c.AuthorID,
		CommitterID:       c.CommitterID,
		Message:           c.Message,
		AuthoredAt:        c.AuthoredAt,
		CommittedAt:       c.CommittedAt,
		ParentHashes:      c.ParentHashes,
		TreeHash:          c.TreeHash,
		StatsLinesAdded:   int64(c.StatsLinesAdded),
		StatsLinesDeleted: int64(c.StatsLinesDeleted),
		StatsFilesChanged: int64(c.StatsFilesChanged),
	}
}

func toFileChangeRow(fc *models.FileChange) fileChangeRow {
	return fileChangeRow{
		FileChangeID:        fc.FileChangeID,
		CommitHash:          fc.CommitHash,
		FilePath:            fc.FilePath,
		ChangeType:          string(fc.ChangeType),
		OldFilePath:         fc.OldFilePath,
		LinesAdded:          int64(fc.LinesAdded),
		LinesDeleted:        int64(fc.LinesDeleted),
		FileModeBefore:      fc.FileModeBefore,
		FileModeAfter:       fc.FileModeAfter,
		BlobHashBefore:      fc.BlobHashBefore,
		BlobHashAfter:       fc.BlobHashAfter,
		ContentBeforeKey:    fc.ContentBeforeKey,
		ContentAfterKey:     fc.ContentAfterKey,
		PatchKey:            fc.PatchKey,
		ContentBeforeInline: fc.ContentBeforeInline,
		ContentAfterInline:  fc.ContentAfterInline,
		FileType:            fc.FileType,
		IsBinary:            fc.IsBinary,
	}
}
