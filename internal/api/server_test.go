package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/dispatcher"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/memory"
)

type fakeRuns struct {
	mu       sync.Mutex
	started  []crawler.RunParams
	startErr error
	runs     map[string]crawler.Run
	active   string
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: map[string]crawler.Run{}}
}

func (f *fakeRuns) Start(_ context.Context, params crawler.RunParams) (crawler.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return crawler.Run{}, f.startErr
	}
	params.RunID = "run-1"
	f.started = append(f.started, params)
	run := crawler.Run{ID: "run-1", Status: crawler.RunStatusRunning, Params: params}
	f.runs[run.ID] = run
	f.active = run.ID
	return run, nil
}

func (f *fakeRuns) Cancel(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[runID]; !ok {
		return crawler.ErrNotFound
	}
	if f.active != runID {
		return dispatcher.ErrRunNotActive
	}
	f.active = ""
	return nil
}

func (f *fakeRuns) Get(_ context.Context, runID string) (crawler.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return crawler.Run{}, crawler.ErrNotFound
	}
	return run, nil
}

func (f *fakeRuns) Active() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.active != ""
}

type failingCounter struct{}

func (failingCounter) Counts(context.Context) (crawler.StoreCounts, error) {
	return crawler.StoreCounts{}, errors.New("connection refused")
}

var defaults = crawler.RunParams{
	Query:       crawler.ListingQuery{Keyword: "백엔드", PageSize: 40},
	MaxPages:    10,
	MaxPostings: 100,
}

func newTestServer(runs RunManager, counter Counter) *Server {
	return NewServer(runs, counter, defaults, zap.NewNop())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeRuns(), memory.NewPostingStore())
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	s = newTestServer(newFakeRuns(), failingCounter{})
	rec = do(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeRuns(), nil)
	_ = do(t, s, http.MethodGet, "/healthz", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestStartRunAppliesOverrides(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	s := newTestServer(runs, nil)

	rec := do(t, s, http.MethodPost, "/v1/runs", `{"keyword":"데이터","max_postings":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "run-1", resp["run_id"])

	require.Len(t, runs.started, 1)
	require.Equal(t, "데이터", runs.started[0].Query.Keyword)
	require.Equal(t, 40, runs.started[0].Query.PageSize)
	require.Equal(t, 10, runs.started[0].MaxPages)
	require.Equal(t, 5, runs.started[0].MaxPostings)
}

func TestStartRunWithoutBodyUsesDefaults(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	s := newTestServer(runs, nil)

	rec := do(t, s, http.MethodPost, "/v1/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "백엔드", runs.started[0].Query.Keyword)
}

func TestStartRunRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeRuns(), nil)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/runs", `{`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/runs", `{"max_pages":0}`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/runs", `{"max_postings":-2}`).Code)
}

func TestStartRunConflict(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	runs.startErr = dispatcher.ErrRunInProgress
	s := newTestServer(runs, nil)

	require.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/runs", `{}`).Code)
}

func TestGetAndCancelRun(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	s := newTestServer(runs, memory.NewPostingStore())
	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/runs", `{}`).Code)

	rec := do(t, s, http.MethodGet, "/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run crawler.Run `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, crawler.RunStatusRunning, body.Run.Status)

	rec = do(t, s, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"active_run_id":"run-1"`)

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/runs/run-1/cancel", "").Code)
	require.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/runs/run-1/cancel", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/v1/runs/nope/cancel", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/runs/nope", "").Code)
}

func TestStatsWithoutStore(t *testing.T) {
	t.Parallel()

	s := newTestServer(newFakeRuns(), nil)
	require.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/stats", "").Code)
}
