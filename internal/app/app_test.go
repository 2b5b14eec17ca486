package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Harvest.Keyword = "백엔드"
	cfg.Archive.Backend = "memory"
	cfg.Publisher.Backend = "memory"
	return cfg
}

func TestBuildWiresMemoryStack(t *testing.T) {
	cfg := testConfig(t)

	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	require.NotNil(t, a.Harvester)
	require.NotNil(t, a.Store)
	require.NotNil(t, a.Runs)
	require.NotNil(t, a.Dispatcher)

	params := a.DefaultParams()
	require.Equal(t, "백엔드", params.Query.Keyword)
	require.Equal(t, cfg.Harvest.MaxPages, params.MaxPages)
	require.Equal(t, cfg.Harvest.MaxPostings, params.MaxPostings)

	rec := httptest.NewRecorder()
	a.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRejectsBadSegmenterTable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segmenter.Noise = []string{""}

	_, err := Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "segmenter")
}

func TestBuildLocalArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Backend = "local"
	cfg.Archive.Local.BaseDir = t.TempDir()

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	a.Close(context.Background())
}
