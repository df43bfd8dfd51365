package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LukasIV/github-commit-collector/internal/collector"
	"github.com/LukasIV/github-commit-collector/internal/content"
	apperrors "github.com/LukasIV/github-commit-collector/internal/errors"
	"github.com/LukasIV/github-commit-collector/internal/github"
	"github.com/LukasIV/github-commit-collector/internal/mapper"
	"github.com/LukasIV/github-commit-collector/internal/models"
)

// stubClient serves one empty repository for any owner/name. When gate is
// non-nil, GetRepository blocks until the gate closes, keeping a run active.
type stubClient struct {
	gate chan struct{}
}

func (s *stubClient) GetRepository(_ context.Context, owner, name string) (*github.RawRepository, error) {
	if s.gate != nil {
		<-s.gate
	}
	repo := &github.RawRepository{Name: name}
	repo.Owner.Login = owner
	return repo, nil
}

func (s *stubClient) ListCommits(context.Context, string, string, int, int) ([]github.RawCommit, error) {
	return nil, nil
}

func (s *stubClient) GetCommit(_ context.Context, _, _, sha string) (*github.RawCommitDetail, error) {
	return nil, apperrors.NewFatalStatus(404, "commit not found: "+sha)
}

func (s *stubClient) GetFileContent(context.Context, string, string, string, string) ([]byte, error) {
	return nil, nil
}

type stubStorage struct{}

func (stubStorage) UpsertRepository(context.Context, *models.Repository) error { return nil }
func (stubStorage) UpsertAuthors(context.Context, ...*models.Author) error     { return nil }
func (stubStorage) AppendCommit(context.Context, *models.Commit, []*models.FileChange) (bool, error) {
	return true, nil
}
func (stubStorage) CommitExists(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}
func (stubStorage) PutContent(context.Context, string, []byte) (bool, error) { return true, nil }
func (stubStorage) PutPatch(context.Context, string, []byte) (bool, error)   { return true, nil }

func setupRouter(t *testing.T, client collector.Client, targets []models.RepoRef) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	orch := collector.NewOrchestrator(client, stubStorage{}, mapper.New(logger), content.NewResolver(1024), logger)
	runner := collector.NewRunner(orch, 2, logger)
	return NewRouter(NewHandler(runner, targets, logger))
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := setupRouter(t, &stubClient{}, nil)
	w := doRequest(router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerCollection_NoRepositories(t *testing.T) {
	router := setupRouter(t, &stubClient{}, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/collect", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerCollection_InvalidReference(t *testing.T) {
	router := setupRouter(t, &stubClient{}, nil)
	body, _ := json.Marshal(map[string]interface{}{"repositories": []string{"not-a-ref"}})
	w := doRequest(router, http.MethodPost, "/api/v1/collect", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerCollection_RunsToCompletion(t *testing.T) {
	router := setupRouter(t, &stubClient{}, []models.RepoRef{{Owner: "octocat", Name: "hello"}})

	w := doRequest(router, http.MethodPost, "/api/v1/collect", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		w := doRequest(router, http.MethodGet, "/api/v1/status", nil)
		var resp struct {
			Running bool                `json:"running"`
			LastRun *models.BatchReport `json:"last_run"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return !resp.Running && resp.LastRun != nil && resp.LastRun.Outcome == models.OutcomeSuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTriggerCollection_ConflictWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	client := &stubClient{gate: gate}
	router := setupRouter(t, client, []models.RepoRef{{Owner: "octocat", Name: "hello"}})

	w := doRequest(router, http.MethodPost, "/api/v1/collect", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/collect", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Live progress is visible while the run is active.
	w = doRequest(router, http.MethodGet, "/api/v1/status", nil)
	var resp struct {
		Running      bool                `json:"running"`
		Repositories []models.RepoReport `json:"repositories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Running)

	close(gate)
	assert.Eventually(t, func() bool {
		w := doRequest(router, http.MethodGet, "/api/v1/status", nil)
		var resp struct {
			Running bool `json:"running"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return !resp.Running
	}, 2*time.Second, 10*time.Millisecond)
}
