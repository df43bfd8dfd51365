package collector

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/LukasIV/github-commit-collector/internal/models"
)

// Progress is a live view over the per-repository states of a batch run
type Progress struct {
	mu      sync.RWMutex
	order   []string
	reports map[string]*models.RepoReport
}

// NewProgress creates a progress board with every repository pending
func NewProgress(refs []models.RepoRef) *Progress {
	p := &Progress{reports: make(map[string]*models.RepoReport, len(refs))}
	for _, ref := range refs {
		key := ref.String()
		p.order = append(p.order, key)
		p.reports[key] = &models.RepoReport{
			Owner: ref.Owner,
			Name:  ref.Name,
			State: models.StatePending,
		}
	}
	return p
}

func (p *Progress) setState(key string, state models.RepoState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.reports[key]; ok {
		r.State = state
	}
}

func (p *Progress) setReport(key string, report *models.RepoReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports[key] = report
}

// Snapshot returns a copy of all reports in submission order
func (p *Progress) Snapshot() []models.RepoReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.RepoReport, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, *p.reports[key])
	}
	return out
}

// Runner collects a batch of repositories with bounded concurrency. One
// repository failing never interrupts the others; failures surface in the
// aggregate report instead.
type Runner struct {
	orchestrator *Orchestrator
	concurrency  int
	logger       *logrus.Logger
}

// NewRunner creates a batch runner over the given orchestrator
func NewRunner(orchestrator *Orchestrator, concurrency int, logger *logrus.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{orchestrator: orchestrator, concurrency: concurrency, logger: logger}
}

// Run collects every repository in refs and returns the aggregate report
func (r *Runner) Run(ctx context.Context, refs []models.RepoRef) *models.BatchReport {
	return r.RunWithProgress(ctx, refs, NewProgress(refs))
}

// RunWithProgress is Run over a caller-held progress board, so live state can
// be observed while the batch executes.
func (r *Runner) RunWithProgress(ctx context.Context, refs []models.RepoRef, progress *Progress) *models.BatchReport {
	started := time.Now().UTC()

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			key := ref.String()
			report, err := r.orchestrator.Collect(ctx, ref.Owner, ref.Name, func(s models.RepoState) {
				progress.setState(key, s)
			})
			progress.setReport(key, report)
			if err != nil {
				r.logger.WithFields(logrus.Fields{
					"repository": key,
					"error":      err.Error(),
				}).Error("Batch repository errored")
			}
			// Errors stay in the report; returning nil keeps the rest of
			// the batch running.
			return nil
		})
	}
	_ = g.Wait()

	batch := &models.BatchReport{
		Repositories: progress.Snapshot(),
		StartedAt:    started,
		FinishedAt:   time.Now().UTC(),
	}
	batch.ResolveOutcome()
	return batch
}
