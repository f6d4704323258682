package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openfetch/fetchcore/pool"
)

// UnblockEngine delegates to the remote browser provider's managed unblock
// endpoint: a single POST that runs the provider's own anti-bot bypass and
// hands back rendered HTML. It is the ladder's last resort before the
// request is declared exhausted.
type UnblockEngine struct {
	endpoint string
	client   *http.Client
}

// NewUnblockEngine derives the unblock REST endpoint from a ws/wss
// browserless base URL via pool.UnblockURL (scheme swapped to http/https,
// /chrome/unblock appended to the path) and builds a client around it.
func NewUnblockEngine(browserlessURL string) *UnblockEngine {
	return &UnblockEngine{
		endpoint: pool.UnblockURL(browserlessURL),
		client:   &http.Client{Timeout: 45 * time.Second},
	}
}

func (e *UnblockEngine) Name() string { return "unblock" }

type unblockRequest struct {
	URL            string `json:"url"`
	BestAttempt    bool   `json:"bestAttempt"`
	Content        bool   `json:"content"`
	WaitForTimeout int    `json:"waitForTimeout"`
}

type unblockResponse struct {
	Content    string `json:"content"`
	StatusCode int    `json:"status"`
}

func (e *UnblockEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	fetchCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(unblockRequest{
		URL:            req.URL,
		BestAttempt:    true,
		Content:        true,
		WaitForTimeout: 5000,
	})
	if err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(fetchCtx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("unblock endpoint returned status %d", resp.StatusCode)}
	}

	var parsed unblockResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// Some unblock deployments return the rendered HTML directly
		// instead of a wrapping JSON envelope.
		return &FetchResult{
			StatusCode:   200,
			Content:      string(respBody),
			FinalURL:     req.URL,
			EngineName:   e.Name(),
			ResponseType: "text",
		}, nil
	}

	statusCode := parsed.StatusCode
	if statusCode == 0 {
		statusCode = 200
	}

	return &FetchResult{
		StatusCode:   statusCode,
		Content:      parsed.Content,
		FinalURL:     req.URL,
		EngineName:   e.Name(),
		ResponseType: "text",
	}, nil
}
