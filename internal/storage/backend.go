package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	apperrors "github.com/LukasIV/github-commit-collector/internal/errors"
	"github.com/LukasIV/github-commit-collector/internal/models"
	"github.com/LukasIV/github-commit-collector/internal/objectstore"
)

const (
	authorsKey = "authors_metadata/authors.parquet"

	blobContentType    = "application/octet-stream"
	patchContentType   = "text/plain"
	parquetContentType = "application/vnd.apache.parquet"
)

// Backend persists the normalized entities into partitioned parquet tables
// plus content-addressed blob and patch objects, all through an
// objectstore.Store. Every write is idempotent: upserts for repositories and
// authors, append-once keyed on commit_hash for commits and file changes, and
// write-once for content objects.
type Backend struct {
	store  objectstore.Store
	logger *logrus.Logger

	// mergeLowConfidence folds synthesized author identities into an existing
	// email-backed author with the same display name.
	mergeLowConfidence bool

	// Serializes read-modify-write cycles on the parquet tables.
	mu sync.Mutex
}

// Option customizes a Backend
type Option func(*Backend)

// WithLowConfidenceMerge enables merging synthesized author identities into
// matching email-backed authors instead of keeping them as separate rows.
func WithLowConfidenceMerge(enabled bool) Option {
	return func(b *Backend) {
		b.mergeLowConfidence = enabled
	}
}

// NewBackend creates a storage backend over the given object store
func NewBackend(store objectstore.Store, logger *logrus.Logger, opts ...Option) *Backend {
	b := &Backend{store: store, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// partitionID makes a repository ID safe for use inside a key path segment
func partitionID(repositoryID string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(repositoryID)
}

func repositoryKey(repositoryID string) string {
	return fmt.Sprintf("repositories_metadata/repository_id=%s/repository.parquet", partitionID(repositoryID))
}

func fileChangesKey(repositoryID string) string {
	return fmt.Sprintf("file_changes_metadata/repository_id=%s/file_changes.parquet", partitionID(repositoryID))
}

// commitPartitionKey places a commit in its repository/year/month partition
// by committed timestamp, in UTC.
func commitPartitionKey(repositoryID string, committedAt time.Time) string {
	t := committedAt.UTC()
	return fmt.Sprintf("commits_metadata/repository_id=%s/year=%04d/month=%02d/commits.parquet",
		partitionID(repositoryID), t.Year(), int(t.Month()))
}

// readTable loads all rows of a parquet table, returning nil for a missing key
func readTable[T any](ctx context.Context, store objectstore.Store, key string) ([]T, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, objectstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode parquet table %s: %w", key, err)
	}
	return rows, nil
}

// writeTable replaces a parquet table with the given rows
func writeTable[T any](ctx context.Context, store objectstore.Store, key string, rows []T) error {
	var buf bytes.Buffer
	if err := parquet.Write[T](&buf, rows); err != nil {
		return fmt.Errorf("failed to encode parquet table %s: %w", key, err)
	}
	return store.Put(ctx, key, buf.Bytes(), parquetContentType)
}

// UpsertRepository inserts or replaces the repository record keyed on
// repository_id.
func (b *Backend) UpsertRepository(ctx context.Context, repo *models.Repository) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := repositoryKey(repo.RepositoryID)
	rows, err := readTable[repositoryRow](ctx, b.store, key)
	if err != nil {
		return err
	}

	row := toRepositoryRow(repo)
	replaced := false
	for i := range rows {
		if rows[i].RepositoryID == repo.RepositoryID {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, row)
	}

	if err := writeTable(ctx, b.store, key, rows); err != nil {
		return err
	}
	b.logger.WithField("repository_id", repo.RepositoryID).Debug("Upserted repository record")
	return nil
}

// UpsertAuthors merges author records into the shared authors table keyed on
// author_id. Display fields take the latest non-empty value; an email, once
// recorded, is never overwritten.
func (b *Backend) UpsertAuthors(ctx context.Context, authors ...*models.Author) error {
	if len(authors) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := readTable[authorRow](ctx, b.store, authorsKey)
	if err != nil {
		return err
	}

	byID := make(map[string]int, len(rows))
	for i, row := range rows {
		byID[row.AuthorID] = i
	}

	changed := false
	for _, author := range authors {
		if author == nil || author.AuthorID == "" {
			continue
		}

		if b.mergeLowConfidence && author.LowConfidence() {
			if i, ok := findByName(rows, author.Name); ok {
				if rows[i].Username == "" && author.Username != "" {
					rows[i].Username = author.Username
					changed = true
				}
				continue
			}
		}

		row := toAuthorRow(author)
		i, ok := byID[author.AuthorID]
		if !ok {
			byID[author.AuthorID] = len(rows)
			rows = append(rows, row)
			changed = true
			continue
		}
		if row.Name != "" && row.Name != rows[i].Name {
			rows[i].Name = row.Name
			changed = true
		}
		if row.Username != "" && row.Username != rows[i].Username {
			rows[i].Username = row.Username
			changed = true
		}
		if rows[i].Email == "" && row.Email != "" {
			rows[i].Email = row.Email
			changed = true
		}
	}
	if !changed {
		return nil
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].AuthorID < rows[j].AuthorID })
	return writeTable(ctx, b.store, authorsKey, rows)
}

// findByName locates an email-backed author row with the given display name
func findByName(rows []authorRow, name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i, row := range rows {
		if row.Email != "" && row.Name == name {
			return i, true
		}
	}
	return 0, false
}

// AppendCommit persists a commit and its file changes. It returns false with
// no error when the commit hash is already present in its partition, so
// re-collection runs are no-ops. The commit's aggregate stats must equal the
// sums over its file changes; a mismatch is an integrity violation and nothing
// is written.
func (b *Backend) AppendCommit(ctx context.Context, commit *models.Commit, changes []*models.FileChange) (bool, error) {
	if err := validateCommit(commit, changes); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := commitPartitionKey(commit.RepositoryID, commit.CommittedAt)
	rows, err := readTable[commitRow](ctx, b.store, key)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.CommitHash == commit.CommitHash {
			b.logger.WithFields(logrus.Fields{
				"repository_id": commit.RepositoryID,
				"commit_hash":   commit.CommitHash,
			}).Debug("Commit already persisted, skipping")
			return false, nil
		}
	}

	// File changes go in first. If the run dies between the two writes, a
	// retry still sees the commit row missing and completes both tables; the
	// duplicate change rows are deduplicated on file_change_id.
	if err := b.appendFileChanges(ctx, commit.RepositoryID, changes); err != nil {
		return false, err
	}

	rows = append(rows, toCommitRow(commit))
	if err := writeTable(ctx, b.store, key, rows); err != nil {
		return false, err
	}

	b.logger.WithFields(logrus.Fields{
		"repository_id": commit.RepositoryID,
		"commit_hash":   commit.CommitHash,
		"file_changes":  len(changes),
	}).Debug("Persisted commit")
	return true, nil
}

func (b *Backend) appendFileChanges(ctx context.Context, repositoryID string, changes []*models.FileChange) error {
	if len(changes) == 0 {
		return nil
	}

	key := fileChangesKey(repositoryID)
	rows, err := readTable[fileChangeRow](ctx, b.store, key)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		seen[row.FileChangeID] = struct{}{}
	}

	added := 0
	for _, fc := range changes {
		if _, ok := seen[fc.FileChangeID]; ok {
			continue
		}
		seen[fc.FileChangeID] = struct{}{}
		rows = append(rows, toFileChangeRow(fc))
		added++
	}
	if added == 0 {
		return nil
	}
	return writeTable(ctx, b.store, key, rows)
}

// validateCommit enforces the stats-sum and per-commit uniqueness invariants
// before any write happens.
func validateCommit(commit *models.Commit, changes []*models.FileChange) error {
	var linesAdded, linesDeleted int
	ids := make(map[string]struct{}, len(changes))
	for _, fc := range changes {
		if fc.CommitHash != commit.CommitHash {
			return apperrors.NewIntegrity(fmt.Sprintf(
				"file change %s belongs to commit %s, not %s", fc.FileChangeID, fc.CommitHash, commit.CommitHash))
		}
		if _, ok := ids[fc.FileChangeID]; ok {
			return apperrors.NewIntegrity(fmt.Sprintf("duplicate file change %s in commit %s", fc.FileChangeID, commit.CommitHash))
		}
		ids[fc.FileChangeID] = struct{}{}
		linesAdded += fc.LinesAdded
		linesDeleted += fc.LinesDeleted
	}
	if commit.StatsLinesAdded != linesAdded || commit.StatsLinesDeleted != linesDeleted || commit.StatsFilesChanged != len(changes) {
		return apperrors.NewIntegrity(fmt.Sprintf(
			"commit %s stats (+%d/-%d, %d files) do not match file changes (+%d/-%d, %d files)",
			commit.CommitHash,
			commit.StatsLinesAdded, commit.StatsLinesDeleted, commit.StatsFilesChanged,
			linesAdded, linesDeleted, len(changes)))
	}
	return nil
}

// PutContent writes a content-addressed blob unless it already exists. The
// returned bool reports whether a write happened.
func (b *Backend) PutContent(ctx context.Context, key string, data []byte) (bool, error) {
	return b.putOnce(ctx, key, data, blobContentType)
}

// PutPatch writes a patch object unless it already exists
func (b *Backend) PutPatch(ctx context.Context, key string, data []byte) (bool, error) {
	return b.putOnce(ctx, key, data, patchContentType)
}

func (b *Backend) putOnce(ctx context.Context, key string, data []byte, contentType string) (bool, error) {
	exists, err := b.store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := b.store.Put(ctx, key, data, contentType); err != nil {
		return false, err
	}
	return true, nil
}

// CommitExists reports whether the commit is already persisted in its
// partition. The committed timestamp selects the partition to probe.
func (b *Backend) CommitExists(ctx context.Context, repositoryID, commitHash string, committedAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := readTable[commitRow](ctx, b.store, commitPartitionKey(repositoryID, committedAt))
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.CommitHash == commitHash {
			return true, nil
		}
	}
	return false, nil
}
