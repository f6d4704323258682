package escalate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfetch/fetchcore/config"
	"github.com/openfetch/fetchcore/engine"
	"github.com/openfetch/fetchcore/models"
	"github.com/openfetch/fetchcore/profile"
)

// fakeEngine returns a canned result or error every call, recording how many
// times it was invoked.
type fakeEngine struct {
	name    string
	results []fakeResult
	calls   int
}

type fakeResult struct {
	content    string
	statusCode int
	err        error
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	r := f.results[f.calls]
	f.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &engine.FetchResult{StatusCode: r.statusCode, Content: r.content, EngineName: f.name, FinalURL: req.URL, ResponseType: "text"}, nil
}

func newStore(t *testing.T) *profile.Store {
	t.Helper()
	st, err := profile.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newRuntime(remoteConfigured bool) *config.RuntimeStore {
	rt := config.RuntimeConfig{DefaultEngine: "auto"}
	if remoteConfigured {
		rt.BrowserlessURL = "wss://browser.example.com"
	}
	return config.NewRuntimeStore(rt)
}

func newRuntimeWithProxy() *config.RuntimeStore {
	return config.NewRuntimeStore(config.RuntimeConfig{DefaultEngine: "auto", ProxyURL: "http://proxy.example.com:8080"})
}

func TestScheduler_NonDefaultWinPersists(t *testing.T) {
	store := newStore(t)
	fast := &fakeEngine{name: "fast", results: []fakeResult{{content: strings.Repeat("x", 50), statusCode: 200}}}
	browserEng := &fakeEngine{name: "browser", results: []fakeResult{{content: "<article>" + strings.Repeat("word ", 300) + "</article>", statusCode: 200}}}
	stealthEng := &fakeEngine{name: "stealth"}

	sched := New(fast, browserEng, stealthEng, nil, store, newRuntime(true))

	req := &models.FetchRequest{URL: "https://example.com/page", Engine: "auto", ResponseType: "text"}
	result, err := sched.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "browser", result.EngineUsed)

	got, err := store.Get("example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "browser", got.Engine)
}

func TestScheduler_DefaultWinNotPersisted(t *testing.T) {
	store := newStore(t)
	fast := &fakeEngine{name: "fast", results: []fakeResult{
		{content: "<article>" + strings.Repeat("word ", 2000) + "</article>", statusCode: 200},
	}}
	sched := New(fast, nil, nil, nil, store, newRuntimeWithProxy())

	req := &models.FetchRequest{URL: "https://example.com/page", Engine: "auto", ResponseType: "text"}
	result, err := sched.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := store.Get("example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScheduler_CachedProfileSkipsLadder(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Upsert("example.com", models.DomainProfile{
		Engine: "stealth", RenderDelayMs: 3000, UseProxy: false,
	}))

	fast := &fakeEngine{name: "fast"}
	stealthEng := &fakeEngine{name: "stealth", results: []fakeResult{
		{content: strings.Repeat("y", 6000), statusCode: 200},
	}}
	sched := New(fast, nil, stealthEng, nil, store, newRuntime(true))

	req := &models.FetchRequest{URL: "https://example.com/other-page", Engine: "auto", ResponseType: "text"}
	result, err := sched.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, fast.calls)
	assert.Equal(t, 1, stealthEng.calls)

	got, err := store.Get("example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, got.HitCount)
}

func TestScheduler_CachedProfileFailureStillIncrementsHit(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Upsert("example.com", models.DomainProfile{
		Engine: "stealth", RenderDelayMs: 3000, UseProxy: false,
	}))

	fast := &fakeEngine{name: "fast"}
	stealthEng := &fakeEngine{name: "stealth", results: []fakeResult{
		{err: assert.AnError},
	}}
	sched := New(fast, nil, stealthEng, nil, store, newRuntime(true))

	req := &models.FetchRequest{URL: "https://example.com/other-page", Engine: "auto", ResponseType: "text"}
	_, err := sched.Fetch(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, fast.calls)
	assert.Equal(t, 1, stealthEng.calls)

	got, err := store.Get("example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.HitCount)
}

func TestScheduler_ExhaustedEscalation(t *testing.T) {
	store := newStore(t)
	fast := &fakeEngine{name: "fast", results: []fakeResult{{content: "too short", statusCode: 200}}}
	sched := New(fast, nil, nil, nil, store, newRuntime(false))

	req := &models.FetchRequest{URL: "https://example.com/page", Engine: "auto", ResponseType: "text"}
	_, err := sched.Fetch(context.Background(), req)
	require.Error(t, err)
	fetchErr, ok := err.(*models.FetchError)
	require.True(t, ok)
	assert.Equal(t, models.ErrCodeExhausted, fetchErr.Code)
}
