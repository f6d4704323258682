package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/openfetch/fetchcore/models"
	"github.com/openfetch/fetchcore/profile"
)

func newTestStore(t *testing.T) *profile.Store {
	t.Helper()
	store, err := profile.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertThenGetProfile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)

	r := gin.New()
	r.POST("/api/domain-profiles", UpsertProfile(store))
	r.GET("/api/domain-profiles/:domain", GetProfile(store))

	body, _ := json.Marshal(models.DomainProfile{Domain: "example.com", Engine: "stealth", RenderDelayMs: 3000})
	req := httptest.NewRequest(http.MethodPost, "/api/domain-profiles", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/domain-profiles/example.com", nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var got models.DomainProfile
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	require.Equal(t, "stealth", got.Engine)
	require.Equal(t, 3000, got.RenderDelayMs)
}

func TestUpsertProfile_MissingDomain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)

	r := gin.New()
	r.POST("/api/domain-profiles", UpsertProfile(store))

	body, _ := json.Marshal(models.DomainProfile{Engine: "stealth"})
	req := httptest.NewRequest(http.MethodPost, "/api/domain-profiles", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProfile_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)

	r := gin.New()
	r.GET("/api/domain-profiles/:domain", GetProfile(store))

	req := httptest.NewRequest(http.MethodGet, "/api/domain-profiles/nowhere.example", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
