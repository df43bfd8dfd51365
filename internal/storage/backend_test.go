package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/LukasIV/github-commit-collector/internal/errors"
	"github.com/LukasIV/github-commit-collector/internal/models"
	"github.com/LukasIV/github-commit-collector/internal/objectstore"
)

func newTestBackend(t *testing.T, opts ...Option) (*Backend, objectstore.Store) {
	t.Helper()
	store, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewBackend(store, logger, opts...), store
}

func strPtr(s string) *string { return &s }

func testCommit(hash string) (*models.Commit, []*models.FileChange) {
	commit := &models.Commit{
		CommitHash:        hash,
		RepositoryID:      "github.com/octocat/hello-world",
		AuthorID:          "octo@example.com",
		CommitterID:       "octo@example.com",
		Message:           "Add greeting",
		AuthoredAt:        time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
		CommittedAt:       time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC),
		ParentHashes:      []string{"parent0"},
		TreeHash:          "tree0",
		StatsLinesAdded:   7,
		StatsLinesDeleted: 2,
		StatsFilesChanged: 2,
	}
	changes := []*models.FileChange{
		{
			FileChangeID:   hash + "_main.go",
			CommitHash:     hash,
			FilePath:       "main.go",
			ChangeType:     models.ChangeModified,
			LinesAdded:     5,
			LinesDeleted:   2,
			BlobHashBefore: strPtr("before0"),
			BlobHashAfter:  strPtr("after0"),
			FileType:       "go",
		},
		{
			FileChangeID:  hash + "_README.md",
			CommitHash:    hash,
			FilePath:      "README.md",
			ChangeType:    models.ChangeAdded,
			LinesAdded:    2,
			BlobHashAfter: strPtr("after1"),
			FileType:      "md",
		},
	}
	return commit, changes
}

func TestAppendCommit_WritesPartitionedTables(t *testing.T) {
	backend, store := newTestBackend(t)
	ctx := context.Background()

	commit, changes := testCommit("abc123")
	appended, err := backend.AppendCommit(ctx, commit, changes)
	require.NoError(t, err)
	assert.True(t, appended)

	// Partition is derived from the committed timestamp.
	key := "commits_metadata/repository_id=github.com_octocat_hello-world/year=2024/month=03/commits.parquet"
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	rows, err := readTable[commitRow](ctx, store, key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "abc123", rows[0].CommitHash)
	assert.Equal(t, []string{"parent0"}, rows[0].ParentHashes)
	assert.Equal(t, int64(7), rows[0].StatsLinesAdded)

	fcRows, err := readTable[fileChangeRow](ctx, store, fileChangesKey(commit.RepositoryID))
	require.NoError(t, err)
	require.Len(t, fcRows, 2)
}

func TestAppendCommit_IdempotentOnCommitHash(t *testing.T) {
	backend, store := newTestBackend(t)
	ctx := context.Background()

	commit, changes := testCommit("abc123")
	appended, err := backend.AppendCommit(ctx, commit, changes)
	require.NoError(t, err)
	require.True(t, appended)

	appended, err = backend.AppendCommit(ctx, commit, changes)
	require.NoError(t, err)
	assert.False(t, appended)

	rows, err := readTable[commitRow](ctx, store, commitPartitionKey(commit.RepositoryID, commit.CommittedAt))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	fcRows, err := readTable[fileChangeRow](ctx, store, fileChangesKey(commit.RepositoryID))
	require.NoError(t, err)
	assert.Len(t, fcRows, 2)
}

func TestAppendCommit_DeduplicatesFileChangesAfterPartialWrite(t *testing.T) {
	backend, store := newTestBackend(t)
	ctx := context.Background()

	commit, changes := testCommit("abc123")

	// Simulate a run that wrote the file changes but died before the commit
	// row landed.
	require.NoError(t, backend.appendFileChanges(ctx, commit.RepositoryID, changes))

	appended, err := backend.AppendCommit(ctx, commit, changes)
	require.NoError(t, err)
	assert.True(t, appended)

	fcRows, err := readTable[fileChangeRow](ctx, store, fileChangesKey(commit.RepositoryID))
	require.NoError(t, err)
	assert.Len(t, fcRows, 2)
}

func TestAppendCommit_RejectsStatsMismatch(t *testing.T) {
	backend, store := newTestBackend(t)
	ctx := context.Background()

	commit, changes := testCommit("abc123")
	commit.StatsLinesAdded = 99

	_, err := backend.AppendCommit(ctx, commit, changes)
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegrity(err))

	// Nothing may be written on an integrity violation.
	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAppendCommit_RejectsDuplicateFileChangeID(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	commit, changes := testCommit("abc123")
	changes[1].FileChangeID = changes[0].FileChangeID
	commit.StatsFilesChanged = 2

	_, err := backend.AppendCommit(ctx, commit, changes)
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegrity(err))
}

func TestUpsertRepository_ReplacesExistingRecord(t *testing.T) {
	backend, store := newTestBackend(t)
	ctx := context.Background()

	repo := &models.Repository{
		RepositoryID: "github.com/octocat/hello-world",
		Name:         "hello-world",
		Owner:        "octocat",
		Description:  "first pass",
	}
	require.NoError(t, backend.UpsertRepository(ctx, repo))

	repo.Description = "second pass"
	require.NoError(t, backend.UpsertRepository(ctx, repo))

	rows, err := readTable[repositoryRow](ctx, store, repositoryKey(repo.RepositoryID))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "second pass", rows[0].Description)
}

func TestUpsertAuthors_MergesOnAuthorID(t *testing.T) {
	backend, store := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.UpsertAuthors(ctx,
		&models.Author{AuthorID: "octo@example.com", Name: "Octo Cat", Email: "octo@example.com"},
		&models.Author{AuthorID: "zed@example.com", Name: "Zed", Email: "zed@example.com"},
	))

	// Display fields take the latest non-empty value; email never changes.
	require.NoError(t, backend.UpsertAuthors(ctx,
		&models.Author{AuthorID: "octo@example.com", Name: "The Octocat", Username: "octocat", Email: "other@example.com"},
	))

	rows, err := readTable[authorRow](ctx, store, authorsKey)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Rows come back sorted by author_id.
	assert.Equal(t, "octo@example.com", rows[0].AuthorID)
	assert.Equal(t, "The Octocat", rows[0].Name)
	assert.Equal(t, "octocat", rows[0].Username)
	assert.Equal(t, "octo@example.com", rows[0].Email)
	assert.Equal(t, "zed@example.com", rows[1].AuthorID)
}

func TestUpsertAuthors_LowConfidenceMerge(t *testing.T) {
	ctx := context.Background()
	lowConf := &models.Author{
		AuthorID: "synthetic:deadbeef",
		Name:     "Octo Cat",
		Username: "octocat",
		Metadata: map[string]string{"low_confidence": "true"},
	}

	t.Run("disabled keeps separate rows", func(t *testing.T) {
		backend, store := newTestBackend(t)
		require.NoError(t, backend.UpsertAuthors(ctx,
			&models.Author{AuthorID: "octo@example.com", Name: "Octo Cat", Email: "octo@example.com"}))
		require.NoError(t, backend.UpsertAuthors(ctx, lowConf))

		rows, err := readTable[authorRow](ctx, store, authorsKey)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("enabled folds into email-backed author", func(t *testing.T) {
		backend, store := newTestBackend(t, WithLowConfidenceMerge(true))
		require.NoError(t, backend.UpsertAuthors(ctx,
			&models.Author{AuthorID: "octo@example.com", Name: "Octo Cat", Email: "octo@example.com"}))
		require.NoError(t, backend.UpsertAuthors(ctx, lowConf))

		rows, err := readTable[authorRow](ctx, store, authorsKey)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "octo@example.com", rows[0].AuthorID)
		assert.Equal(t, "octocat", rows[0].Username)
	})
}

func TestPutContent_WriteOnce(t *testing.T) {
	backend, store := newTestBackend(t)
	ctx := context.Background()

	key := "file_blobs/da39a3ee"
	wrote, err := backend.PutContent(ctx, key, []byte("package main"))
	require.NoError(t, err)
	assert.True(t, wrote)

	// A second write for the same content-addressed key is a no-op.
	wrote, err = backend.PutContent(ctx, key, []byte("package main"))
	require.NoError(t, err)
	assert.False(t, wrote)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("package main"), data)
}

func TestCommitExists(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	commit, changes := testCommit("abc123")
	exists, err := backend.CommitExists(ctx, commit.RepositoryID, commit.CommitHash, commit.CommittedAt)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = backend.AppendCommit(ctx, commit, changes)
	require.NoError(t, err)

	exists, err = backend.CommitExists(ctx, commit.RepositoryID, commit.CommitHash, commit.CommittedAt)
	require.NoError(t, err)
	assert.True(t, exists)
}
