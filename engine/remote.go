package engine

import (
	"context"
	"fmt"

	"github.com/openfetch/fetchcore/pool"
)

// RemoteBrowserEngine delegates to the shared browser pool: a tab on one of
// the pool's long-lived remote connections, instead of a fresh local
// process per request.
type RemoteBrowserEngine struct {
	pool *pool.BrowserPool
}

// NewRemoteBrowserEngine wraps an already-constructed pool.
func NewRemoteBrowserEngine(p *pool.BrowserPool) *RemoteBrowserEngine {
	return &RemoteBrowserEngine{pool: p}
}

func (e *RemoteBrowserEngine) Name() string { return "browser" }

func (e *RemoteBrowserEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	fetchCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	result, err := e.pool.FetchInTab(fetchCtx, req.URL, pool.FetchOpts{
		Headers:       req.Headers,
		RenderDelayMs: req.RenderDelayMs,
	})
	if err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("pool fetch: %w", err)}
	}

	return &FetchResult{
		StatusCode:   result.StatusCode,
		Content:      result.HTML,
		FinalURL:     result.FinalURL,
		EngineName:   e.Name(),
		ResponseType: "text",
	}, nil
}
