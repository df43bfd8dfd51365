package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/LukasIV/github-commit-collector/internal/collector"
	"github.com/LukasIV/github-commit-collector/internal/models"
	"github.com/LukasIV/github-commit-collector/pkg/utils"
)

// Handler exposes the batch collector over HTTP: trigger a run, watch its
// progress and read the last result. One run executes at a time.
type Handler struct {
	runner  *collector.Runner
	targets []models.RepoRef
	logger  *logrus.Logger

	mu       sync.Mutex
	running  bool
	progress *collector.Progress
	last     *models.BatchReport
}

// NewHandler creates an API handler over the batch runner. The targets are
// the default repositories collected when a trigger names none.
func NewHandler(runner *collector.Runner, targets []models.RepoRef, logger *logrus.Logger) *Handler {
	return &Handler{runner: runner, targets: targets, logger: logger}
}

type collectRequest struct {
	Repositories []string `json:"repositories"`
}

// TriggerCollection starts a batch run in the background.
// POST /api/v1/collect
func (h *Handler) TriggerCollection(c *gin.Context) {
	var req collectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	refs := h.targets
	if len(req.Repositories) > 0 {
		refs = make([]models.RepoRef, 0, len(req.Repositories))
		for _, raw := range req.Repositories {
			owner, name, err := utils.ParseRepoRef(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			refs = append(refs, models.RepoRef{Owner: owner, Name: name})
		}
	}
	if len(refs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no repositories to collect"})
		return
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a collection run is already in progress"})
		return
	}
	h.running = true
	h.progress = nil
	h.mu.Unlock()

	go h.runBatch(refs)

	c.JSON(http.StatusAccepted, gin.H{
		"status":       "started",
		"repositories": len(refs),
	})
}

func (h *Handler) runBatch(refs []models.RepoRef) {
	// The run outlives the triggering request.
	ctx := context.Background()

	progress := collector.NewProgress(refs)
	h.mu.Lock()
	h.progress = progress
	h.mu.Unlock()

	h.logger.WithField("repositories", len(refs)).Info("Starting collection run")
	report := h.runner.RunWithProgress(ctx, refs, progress)

	h.mu.Lock()
	h.running = false
	h.last = report
	h.mu.Unlock()
	h.logger.WithField("outcome", report.Outcome).Info("Collection run finished")
}

// Status reports whether a run is active, its live per-repository states and
// the last finished report.
// GET /api/v1/status
func (h *Handler) Status(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	resp := gin.H{"running": h.running}
	if h.progress != nil {
		resp["repositories"] = h.progress.Snapshot()
	}
	if h.last != nil {
		resp["last_run"] = h.last
	}
	c.JSON(http.StatusOK, resp)
}

// Health is the liveness probe.
// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
