// Package advanced implements the advanced-fetch orchestrator: API-response
// capture, JS injection, binary downloads through the live browser context,
// and upload fan-out to a caller-named sink.
//
// Grounded on Easonliuliang-purify's scraper/hijack.go (HijackRouter
// pattern, adapted here from resource-blocking to response-capture) and
// scraper/actions.go (execJS's page.Eval idiom), run against a
// pool.BrowserPool.Borrow session instead of a single local browser so the
// main page and every download tab share one browser context (and
// therefore cookies).
package advanced

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/openfetch/fetchcore/models"
	"github.com/openfetch/fetchcore/pool"
)

// Orchestrator runs advanced fetches against a shared browser pool.
type Orchestrator struct {
	pool   *pool.BrowserPool
	client *http.Client
}

// New builds an Orchestrator over the given pool.
func New(p *pool.BrowserPool) *Orchestrator {
	return &Orchestrator{pool: p, client: &http.Client{Timeout: 60 * time.Second}}
}

// Run executes the full advanced-fetch sequence (spec §4.6): API capture
// hooks install before navigation, jsAction runs after navigation, binary
// downloads run after jsAction, and the main page's DOM is read last.
func (o *Orchestrator) Run(ctx context.Context, req *models.AdvancedFetchRequest) (*models.AdvancedFetchResult, error) {
	if o.pool == nil {
		return nil, models.NewFetchError(models.ErrCodePoolDown, "no browser pool configured (BROWSERLESS_URL unset)", nil)
	}

	sess, err := o.pool.Borrow(ctx)
	if err != nil {
		return nil, models.NewFetchError(models.ErrCodePoolDown, "browser pool unavailable", err)
	}
	defer sess.Release()

	page, err := sess.Browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, models.NewFetchError(models.ErrCodeEngine, "open main page", err)
	}
	defer func() { _ = page.Close() }()

	patterns, err := compilePatterns(req.APIPatterns)
	if err != nil {
		return nil, models.NewFetchError(models.ErrCodeBadRequest, "invalid apiPatterns", err)
	}

	calls := make([]models.APICallRecord, 0)
	router := installAPICapture(page, patterns, &calls)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	if err := page.Navigate(req.URL); err != nil {
		return nil, models.NewFetchError(models.ErrCodeEngine, "navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		slog.Debug("advanced: wait load did not settle", "error", err)
	}
	if req.RenderDelayMs > 0 {
		sleepOrCancel(ctx, time.Duration(req.RenderDelayMs)*time.Millisecond)
	}

	if req.JSAction != "" {
		if _, err := page.Eval(req.JSAction); err != nil {
			slog.Warn("advanced: jsAction failed", "error", err)
		}
		sleepOrCancel(ctx, 2000*time.Millisecond)
	}

	resources := o.downloadAndUpload(ctx, sess.Browser, req)

	html, err := page.HTML()
	if err != nil {
		return nil, models.NewFetchError(models.ErrCodeEngine, "extract html", err)
	}

	finalURL := req.URL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &models.AdvancedFetchResult{
		FetchResult: models.FetchResult{
			Success:      true,
			StatusCode:   200,
			Content:      html,
			URL:          finalURL,
			EngineUsed:   "browser:advanced",
			ResponseType: "text",
		},
		APICalls:  calls,
		Resources: resources,
	}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchesAny(patterns []*regexp.Regexp, url string) bool {
	for _, re := range patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// installAPICapture mounts a hijack router that lets every request through
// unmodified but records responses whose URL matches a caller pattern. It
// returns nil (installing nothing) when there are no patterns to match.
func installAPICapture(page *rod.Page, patterns []*regexp.Regexp, calls *[]models.APICallRecord) *rod.HijackRouter {
	if len(patterns) == 0 {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		url := ctx.Request.URL().String()
		if !matchesAny(patterns, url) {
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}

		if err := ctx.LoadResponse(http.DefaultClient, true); err != nil {
			slog.Debug("advanced: api capture failed to load response", "url", url, "error", err)
			return
		}

		body := ctx.Response.Body()
		var decoded any
		if err := json.Unmarshal([]byte(body), &decoded); err != nil {
			decoded = body
		}
		*calls = append(*calls, models.APICallRecord{
			URL:          url,
			Method:       ctx.Request.Method(),
			Status:       int(ctx.Response.Payload().ResponseCode),
			ResponseBody: decoded,
			Timestamp:    time.Now().UnixMilli(),
		})
	})

	go router.Run()
	return router
}

// downloadAndUpload fetches every imagesToDownload URL through a fresh tab
// in the same browser context, then (if uploadConfig is set) forwards each
// successful download to the upload sink. Per-item failures are reported
// in-place and never fail the whole request.
func (o *Orchestrator) downloadAndUpload(ctx context.Context, browser *rod.Browser, req *models.AdvancedFetchRequest) []models.ResourceResult {
	resources := make([]models.ResourceResult, 0, len(req.ImagesToDownload))

	for _, url := range req.ImagesToDownload {
		data, mimeType, err := downloadOne(ctx, browser, url)
		if err != nil {
			resources = append(resources, models.ResourceResult{
				OriginalURL: url,
				Status:      "error",
				Error:       err.Error(),
			})
			continue
		}

		result := models.ResourceResult{
			OriginalURL: url,
			Status:      "success",
			MimeType:    mimeType,
			Size:        len(data),
		}

		if req.UploadConfig != nil {
			uploadedURL, err := o.upload(ctx, *req.UploadConfig, url, mimeType, data)
			if err != nil {
				result.Status = "error"
				result.Error = fmt.Sprintf("upload failed: %v", err)
			} else {
				result.UploadedURL = uploadedURL
			}
		}

		resources = append(resources, result)
	}

	return resources
}

// downloadOne opens a new tab in the given browser context, navigates to
// url, and reads the raw bytes and content-type of the response. The tab is
// closed on every exit path.
func downloadOne(ctx context.Context, browser *rod.Browser, url string) (data []byte, mimeType string, err error) {
	downloadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	page, err := browser.Context(downloadCtx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, "", fmt.Errorf("open download tab: %w", err)
	}
	defer func() { _ = page.Close() }()

	var capturedBody []byte
	var capturedType string
	router := page.HijackRequests()
	_ = router.Add("*", "", func(hctx *rod.Hijack) {
		if hctx.Request.URL().String() != url {
			hctx.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		if err := hctx.LoadResponse(http.DefaultClient, true); err != nil {
			slog.Debug("advanced: download failed to load response", "url", url, "error", err)
			return
		}
		capturedType = hctx.Response.Headers().Get("Content-Type")
		capturedBody = []byte(hctx.Response.Body())
	})
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := page.Navigate(url); err != nil {
		return nil, "", fmt.Errorf("navigate to resource: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		slog.Debug("advanced: download wait load did not settle", "url", url, "error", err)
	}

	if len(capturedBody) == 0 {
		return nil, "", fmt.Errorf("no response body captured for %s", url)
	}
	return capturedBody, capturedType, nil
}

// upload POSTs data as multipart field "files" to the configured sink and
// returns the uploaded URL parsed from the response envelope.
func (o *Orchestrator) upload(ctx context.Context, cfg models.UploadConfig, originalURL, mimeType string, data []byte) (string, error) {
	filename := fmt.Sprintf("crawl_%d_%d%s", time.Now().Unix(), rand.Intn(1_000_000), extFromMime(mimeType))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/files/%s/upload", trimTrailingSlash(cfg.BaseURL), cfg.Bucket)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("X-API-Key", cfg.APIKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("do upload request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload sink returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Files []struct {
			URLs struct {
				Original string `json:"original"`
			} `json:"urls"`
		} `json:"files"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if len(parsed.Files) == 0 {
		return "", fmt.Errorf("upload response carried no files")
	}
	return parsed.Files[0].URLs.Original, nil
}

func sleepOrCancel(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func extFromMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
