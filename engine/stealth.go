package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// stealthUA is a modern Chrome UA string applied to every local stealth
// launch; kept in lockstep with the fast engine's header preset.
const stealthUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// LocalStealthEngine launches a fresh go-rod browser, patched with
// go-rod/stealth, for every request. Unlike RemoteBrowserEngine it does not
// pool connections: it is the ladder's last local rung, tried after the fast
// engine and (when configured) the remote browser pool; only the remote
// unblock engine comes after it.
type LocalStealthEngine struct {
	browserBin string
	noSandbox  bool
}

// NewLocalStealthEngine creates a LocalStealthEngine. browserBin may be empty
// to let go-rod download/locate Chromium itself.
func NewLocalStealthEngine(browserBin string, noSandbox bool) *LocalStealthEngine {
	return &LocalStealthEngine{browserBin: browserBin, noSandbox: noSandbox}
}

func (e *LocalStealthEngine) Name() string { return "stealth" }

func (e *LocalStealthEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	fetchCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	l := launcher.New().Headless(true).NoSandbox(e.noSandbox)
	if e.browserBin != "" {
		l = l.Bin(e.browserBin)
	}
	if req.Proxy != "" {
		l = l.Proxy(req.Proxy)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("launch: %w", err)}
	}

	browser := rod.New().ControlURL(controlURL).Context(fetchCtx)
	if err := browser.Connect(); err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("connect: %w", err)}
	}
	defer func() {
		// Close the whole browser, not just the page: this browser process
		// has no other tabs or callers and must not linger after one request.
		browser.MustClose()
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("open page: %w", err)}
	}
	defer func() {
		_ = page.Close()
	}()

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth: injection failed, continuing unprotected", "error", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  1920,
		Height: 1080,
	}); err != nil {
		slog.Debug("stealth: set viewport failed", "error", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      stealthUA,
		AcceptLanguage: "en-US,en;q=0.9",
	}); err != nil {
		slog.Debug("stealth: set user agent failed", "error", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: "America/New_York"}).Call(page); err != nil {
		slog.Debug("stealth: set timezone failed", "error", err)
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: "en-US"}).Call(page); err != nil {
		slog.Debug("stealth: set locale failed", "error", err)
	}

	if len(req.Headers) > 0 {
		headers := make([]string, 0, len(req.Headers)*2)
		for k, v := range req.Headers {
			headers = append(headers, k, v)
		}
		if _, err := page.SetExtraHeaders(headers); err != nil {
			slog.Debug("stealth: set extra headers failed", "error", err)
		}
	}

	p := page.Context(fetchCtx)
	if err := p.Navigate(req.URL); err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("navigate: %w", err)}
	}

	// Three-branch wait strategy: explicit JS wait takes precedence over a
	// fixed delay, which in turn takes precedence over network-idle
	// detection (with a DOM-stable fallback if idle never converges).
	switch {
	case req.WaitForJS:
		if err := p.WaitLoad(); err != nil {
			slog.Debug("stealth: wait load did not settle", "error", err)
		}
		if req.RenderDelayMs > 0 {
			sleepOrCancel(fetchCtx, time.Duration(req.RenderDelayMs)*time.Millisecond)
		} else {
			sleepOrCancel(fetchCtx, 1*time.Second)
		}
	case req.RenderDelayMs > 0:
		if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
			slog.Debug("stealth: dom stable wait failed", "error", err)
		}
		sleepOrCancel(fetchCtx, time.Duration(req.RenderDelayMs)*time.Millisecond)
	default:
		wait := p.WaitRequestIdle(5*time.Second, nil, nil, nil)
		idleDone := make(chan struct{})
		go func() {
			wait()
			close(idleDone)
		}()
		select {
		case <-idleDone:
		case <-time.After(10 * time.Second):
			if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
				slog.Debug("stealth: dom stable fallback failed", "error", err)
			}
		}
	}

	html, err := p.HTML()
	if err != nil {
		return nil, &Error{Engine: e.Name(), Err: fmt.Errorf("extract html: %w", err)}
	}

	finalURL := req.URL
	if info, err := p.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &FetchResult{
		StatusCode:   200,
		Content:      html,
		FinalURL:     finalURL,
		EngineName:   e.Name(),
		ResponseType: "text",
	}, nil
}

func sleepOrCancel(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
