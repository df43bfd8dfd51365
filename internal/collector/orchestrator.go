package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LukasIV/github-commit-collector/internal/content"
	apperrors "github.com/LukasIV/github-commit-collector/internal/errors"
	"github.com/LukasIV/github-commit-collector/internal/github"
	"github.com/LukasIV/github-commit-collector/internal/mapper"
	"github.com/LukasIV/github-commit-collector/internal/models"
)

const listPageSize = 100

// Client is the upstream API surface the orchestrator drives
type Client interface {
	GetRepository(ctx context.Context, owner, name string) (*github.RawRepository, error)
	ListCommits(ctx context.Context, owner, name string, page, perPage int) ([]github.RawCommit, error)
	GetCommit(ctx context.Context, owner, name, sha string) (*github.RawCommitDetail, error)
	GetFileContent(ctx context.Context, owner, name, ref, path string) ([]byte, error)
}

// Storage is the persistence surface the orchestrator writes into
type Storage interface {
	UpsertRepository(ctx context.Context, repo *models.Repository) error
	UpsertAuthors(ctx context.Context, authors ...*models.Author) error
	AppendCommit(ctx context.Context, commit *models.Commit, changes []*models.FileChange) (bool, error)
	CommitExists(ctx context.Context, repositoryID, commitHash string, committedAt time.Time) (bool, error)
	PutContent(ctx context.Context, key string, data []byte) (bool, error)
	PutPatch(ctx context.Context, key string, data []byte) (bool, error)
}

// Orchestrator runs the collection pipeline for one repository at a time:
// list commits, fetch diffs and content, map to the entity schema and persist.
type Orchestrator struct {
	client   Client
	storage  Storage
	mapper   *mapper.Mapper
	resolver *content.Resolver
	logger   *logrus.Logger

	maxCommits   int
	pageSize     int
	fetchContent bool
	maxRetries   int
	retryBackoff time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// OrchestratorOption customizes an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithMaxCommits caps how many commits are collected per repository;
// zero means no cap.
func WithMaxCommits(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxCommits = n
	}
}

// WithPageSize overrides the commit listing page size
func WithPageSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithContentFetching toggles fetching full before/after file content
func WithContentFetching(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.fetchContent = enabled
	}
}

// WithCommitRetries bounds how often one commit's processing is retried on
// transient failures before the repository run errors out
func WithCommitRetries(maxRetries int, backoff time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxRetries = maxRetries
		o.retryBackoff = backoff
	}
}

// WithSleep substitutes the retry sleeper (used by tests)
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// NewOrchestrator creates a collection orchestrator
func NewOrchestrator(client Client, storage Storage, m *mapper.Mapper, resolver *content.Resolver, logger *logrus.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:       client,
		storage:      storage,
		mapper:       m,
		resolver:     resolver,
		logger:       logger,
		pageSize:     listPageSize,
		fetchContent: true,
		maxRetries:   2,
		retryBackoff: 2 * time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Collect runs the pipeline for one repository. The observe callback, when
// non-nil, receives every state transition. The returned report is always
// non-nil; a non-nil error means the repository ended in ERRORED.
func (o *Orchestrator) Collect(ctx context.Context, owner, name string, observe func(models.RepoState)) (*models.RepoReport, error) {
	report := &models.RepoReport{
		Owner:     owner,
		Name:      name,
		State:     models.StatePending,
		StartedAt: time.Now().UTC(),
	}
	setState := func(s models.RepoState) {
		report.State = s
		if observe != nil {
			observe(s)
		}
	}

	err := o.collect(ctx, owner, name, report, setState)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		setState(models.StateErrored)
		report.Status = models.StatusErrored
		report.Error = err.Error()
		o.logger.WithFields(logrus.Fields{
			"repository": owner + "/" + name,
			"error":      err.Error(),
		}).Error("Repository collection failed")
		return report, err
	}

	setState(models.StateDone)
	if len(report.Warnings) > 0 {
		report.Status = models.StatusWithWarnings
	} else {
		report.Status = models.StatusCompleted
	}
	o.logger.WithFields(logrus.Fields{
		"repository": owner + "/" + name,
		"collected":  report.CommitsCollected,
		"skipped":    report.CommitsSkipped,
	}).Info("Repository collection finished")
	return report, nil
}

func (o *Orchestrator) collect(ctx context.Context, owner, name string, report *models.RepoReport, setState func(models.RepoState)) error {
	rawRepo, err := o.client.GetRepository(ctx, owner, name)
	if err != nil {
		return err
	}

	repo := o.mapper.MapRepository(rawRepo)
	report.RepositoryID = repo.RepositoryID
	if err := o.storage.UpsertRepository(ctx, repo); err != nil {
		return err
	}

	setState(models.StateListing)
	for page := 1; ; page++ {
		commits, err := o.client.ListCommits(ctx, owner, name, page, o.pageSize)
		if err != nil {
			return err
		}
		if len(commits) == 0 {
			return nil
		}

		for _, raw := range commits {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if o.maxCommits > 0 && report.CommitsCollected+report.CommitsSkipped >= o.maxCommits {
				return nil
			}

			// Already-persisted commits are skipped before any diff fetch, so
			// re-collection runs cost one listing pass.
			exists, err := o.storage.CommitExists(ctx, repo.RepositoryID, raw.SHA, raw.Commit.Committer.Date)
			if err != nil {
				return err
			}
			if exists {
				report.CommitsSkipped++
				continue
			}

			if err := o.processWithRetry(ctx, owner, name, repo.RepositoryID, raw.SHA, report, setState); err != nil {
				return err
			}
		}
		setState(models.StateListing)

		if len(commits) < o.pageSize {
			return nil
		}
	}
}

// processWithRetry retries one commit's processing on transient failures with
// a bounded linear backoff. Fatal and integrity errors abort immediately.
func (o *Orchestrator) processWithRetry(ctx context.Context, owner, name, repositoryID, sha string, report *models.RepoReport, setState func(models.RepoState)) error {
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			o.logger.WithFields(logrus.Fields{
				"commit":  sha,
				"attempt": attempt + 1,
			}).Warn("Retrying commit processing")
			if err := o.sleep(ctx, o.retryBackoff*time.Duration(attempt)); err != nil {
				return err
			}
		}

		err := o.processCommit(ctx, owner, name, repositoryID, sha, report, setState)
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return apperrors.NewTransient(fmt.Sprintf("commit %s failed after %d attempts", sha, o.maxRetries+1), lastErr)
}

func (o *Orchestrator) processCommit(ctx context.Context, owner, name, repositoryID, sha string, report *models.RepoReport, setState func(models.RepoState)) error {
	setState(models.StateFetchingDiffs)
	detail, err := o.client.GetCommit(ctx, owner, name, sha)
	if err != nil {
		return err
	}

	setState(models.StateMapping)
	commit, author, committer, changes, warnings := o.mapper.MapCommit(repositoryID, detail)
	report.Warnings = append(report.Warnings, warnings...)

	var objects []content.PendingObject
	for i, change := range changes {
		before, after, err := o.fetchSides(ctx, owner, name, detail, change)
		if err != nil {
			return err
		}
		resolved, err := o.resolver.Resolve(change, before, after, detail.Files[i].Patch)
		if err != nil {
			return err
		}
		objects = append(objects, resolved.Objects...)
	}

	// Resolution can zero line counts once fetched bytes sniff binary, so the
	// aggregate stats are re-derived from the final rows before persisting.
	linesAdded, linesDeleted := 0, 0
	for _, fc := range changes {
		linesAdded += fc.LinesAdded
		linesDeleted += fc.LinesDeleted
	}
	commit.StatsLinesAdded = linesAdded
	commit.StatsLinesDeleted = linesDeleted

	setState(models.StatePersisting)
	if err := o.storage.UpsertAuthors(ctx, author, committer); err != nil {
		return err
	}
	for _, obj := range objects {
		if err := o.putObject(ctx, obj); err != nil {
			return err
		}
	}

	// Commit metadata lands last so a partially persisted commit is always
	// re-processed on the next run.
	appended, err := o.storage.AppendCommit(ctx, commit, changes)
	if err != nil {
		return err
	}
	if appended {
		report.CommitsCollected++
	} else {
		report.CommitsSkipped++
	}
	return nil
}

// fetchSides retrieves the before and after content for one file change.
// The before side is read at the first parent under the pre-change path; a
// root commit has no before side.
func (o *Orchestrator) fetchSides(ctx context.Context, owner, name string, detail *github.RawCommitDetail, change *models.FileChange) ([]byte, []byte, error) {
	if !o.fetchContent {
		return nil, nil, nil
	}

	var before, after []byte
	var err error

	if change.ChangeType != models.ChangeAdded && len(detail.Parents) > 0 {
		beforePath := change.FilePath
		if change.OldFilePath != nil {
			beforePath = *change.OldFilePath
		}
		before, err = o.client.GetFileContent(ctx, owner, name, detail.Parents[0].SHA, beforePath)
		if err != nil {
			return nil, nil, err
		}
	}
	if change.ChangeType != models.ChangeDeleted {
		after, err = o.client.GetFileContent(ctx, owner, name, detail.SHA, change.FilePath)
		if err != nil {
			return nil, nil, err
		}
	}
	return before, after, nil
}

func (o *Orchestrator) putObject(ctx context.Context, obj content.PendingObject) error {
	var err error
	if obj.ContentType == "text/plain" {
		_, err = o.storage.PutPatch(ctx, obj.Key, obj.Data)
	} else {
		_, err = o.storage.PutContent(ctx, obj.Key, obj.Data)
	}
	return err
}
