package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/openfetch/fetchcore/cleaner"
	"github.com/openfetch/fetchcore/config"
	"github.com/openfetch/fetchcore/engine"
	"github.com/openfetch/fetchcore/escalate"
	"github.com/openfetch/fetchcore/models"
	"github.com/openfetch/fetchcore/profile"
)

type fakeEngine struct {
	name    string
	content string
	status  int
	err     error
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &engine.FetchResult{StatusCode: f.status, Content: f.content, EngineName: f.name, FinalURL: req.URL, ResponseType: "text"}, nil
}

func newTestScheduler(t *testing.T) *escalate.Scheduler {
	t.Helper()
	store, err := profile.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fast := &fakeEngine{name: "fast", content: "<html><body><article>" + strings.Repeat("word ", 200) + "</article></body></html>", status: 200}
	runtime := config.NewRuntimeStore(config.RuntimeConfig{DefaultEngine: "auto"})
	return escalate.New(fast, nil, nil, nil, store, runtime)
}

func TestFetch_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/fetch", Fetch(newTestScheduler(t), cleaner.NewCleaner()))

	body, _ := json.Marshal(models.FetchRequest{URL: "https://example.com/page"})
	req := httptest.NewRequest(http.MethodPost, "/api/fetch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.FetchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.Equal(t, "fast:direct", result.EngineUsed)
}

func TestFetch_BadBodyStillReturns200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/fetch", Fetch(newTestScheduler(t), cleaner.NewCleaner()))

	req := httptest.NewRequest(http.MethodPost, "/api/fetch", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var failure models.FetchFailure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failure))
	require.False(t, failure.Success)
}
