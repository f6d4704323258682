// Package escalate walks the auto-escalation ladder on a domain cache miss,
// applying the content quality judge after every attempt and persisting the
// winning step to the domain profile store.
//
// Grounded on Easonliuliang-purify's engine.Dispatcher, but deliberately
// restructured from its racing dispatch into a strictly sequential walk —
// the escalation ladder's success predicate is content shape, not "first
// response wins", so racing would waste browser capacity on steps whose
// result gets discarded anyway.
package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openfetch/fetchcore/config"
	"github.com/openfetch/fetchcore/engine"
	"github.com/openfetch/fetchcore/models"
	"github.com/openfetch/fetchcore/profile"
	"github.com/openfetch/fetchcore/quality"
)

// Scheduler owns the engine registry and profile store and drives both the
// forced-path and auto-escalation request flows.
type Scheduler struct {
	fast    engine.Engine
	browser engine.Engine // nil if no remote endpoint configured
	stealth engine.Engine
	unblock engine.Engine // nil if no remote endpoint configured

	store   *profile.Store
	runtime *config.RuntimeStore
}

// New builds a Scheduler. browser and unblock may be nil when no remote
// browser endpoint is configured; the ladder and forced-engine paths both
// treat that as "unavailable" rather than panicking.
func New(fast, browser, stealth, unblock engine.Engine, store *profile.Store, runtime *config.RuntimeStore) *Scheduler {
	return &Scheduler{
		fast:    fast,
		browser: browser,
		stealth: stealth,
		unblock: unblock,
		store:   store,
		runtime: runtime,
	}
}

func (s *Scheduler) engineFor(name string) engine.Engine {
	switch name {
	case "fast":
		return s.fast
	case "browser":
		return s.browser
	case "stealth":
		return s.stealth
	case "unblock":
		return s.unblock
	default:
		return nil
	}
}

// Fetch resolves a FetchRequest per the forced-path and auto-escalation
// rules (spec §4.4): explicit engine bypasses the ladder entirely;
// responseType=base64 forces one fast-engine call regardless of any cached
// profile; a cached profile is replayed directly with no re-escalation on
// failure; otherwise the ladder is walked from the top.
func (s *Scheduler) Fetch(ctx context.Context, req *models.FetchRequest) (*models.FetchResult, error) {
	rt := s.runtime.Get()

	if req.ResponseType == "base64" {
		return s.runOnce(ctx, s.fast, req, req.Proxy, 0, "fast")
	}

	if req.Engine != "" && req.Engine != "auto" {
		eng := s.engineFor(req.Engine)
		if eng == nil {
			return nil, models.NewFetchError(models.ErrCodeEngine, fmt.Sprintf("engine %q is not configured", req.Engine), nil)
		}
		return s.runOnce(ctx, eng, req, req.Proxy, req.RenderDelayMs, req.Engine)
	}

	domain := profile.ExtractDomain(req.URL)

	cached, err := s.store.Get(domain)
	if err != nil {
		return nil, models.NewFetchError(models.ErrCodeInternal, "profile lookup failed", err)
	}
	if cached != nil {
		return s.runCached(ctx, domain, cached, req)
	}

	return s.runLadder(ctx, domain, req, rt)
}

func (s *Scheduler) runCached(ctx context.Context, domain string, cached *models.DomainProfile, req *models.FetchRequest) (*models.FetchResult, error) {
	eng := s.engineFor(cached.Engine)
	if eng == nil {
		return nil, models.NewFetchError(models.ErrCodeEngine, fmt.Sprintf("cached engine %q is not configured", cached.Engine), nil)
	}

	proxy := ""
	if cached.UseProxy {
		proxy = req.Proxy
	}

	// The hit count and timestamp reflect every cached-path reuse, not just
	// the ones that succeed — a cached profile is only ever retired by the
	// admin API, never by the scheduler itself on failure.
	if incErr := s.store.IncrementHit(domain); incErr != nil {
		slog.Warn("escalate: failed to increment hit count", "domain", domain, "error", incErr)
	}

	result, err := s.runOnce(ctx, eng, req, proxy, cached.RenderDelayMs, cached.Engine)
	if err != nil {
		// A cached-profile failure is reported to the caller, not
		// re-escalated — repeated failures on a stale profile must surface
		// so an operator can evict it via the admin API.
		return nil, err
	}
	return result, nil
}

func (s *Scheduler) runLadder(ctx context.Context, domain string, req *models.FetchRequest, rt config.RuntimeConfig) (*models.FetchResult, error) {
	ladder := Ladder(Config{
		ProxyConfigured:  rt.ProxyURL != "" || req.Proxy != "",
		RemoteConfigured: rt.BrowserlessURL != "",
	})

	for _, step := range ladder {
		eng := s.engineFor(step.Engine)
		if eng == nil {
			continue
		}

		proxy := ""
		if step.UseProxy {
			proxy = req.Proxy
			if proxy == "" {
				proxy = rt.ProxyURL
			}
		}

		fetchReq := &engine.FetchRequest{
			URL:           req.URL,
			Headers:       req.Headers,
			Preset:        req.Preset,
			ResponseType:  req.ResponseType,
			RenderDelayMs: step.RenderDelayMs,
			WaitForJS:     req.WaitForJS,
			Proxy:         proxy,
			Timeout:       30 * time.Second,
		}

		result, err := eng.Fetch(ctx, fetchReq)
		if err != nil {
			slog.Debug("escalate: step failed, continuing", "domain", domain, "step", step.Label, "error", err)
			continue
		}

		if !quality.Sufficient(result.Content, result.StatusCode) {
			slog.Debug("escalate: step insufficient, continuing",
				"domain", domain, "step", step.Label, "reason", quality.Reason(result.Content, result.StatusCode))
			continue
		}

		s.maybePersist(domain, step, result.StatusCode)

		return &models.FetchResult{
			Success:      true,
			StatusCode:   result.StatusCode,
			Content:      result.Content,
			Headers:      result.Headers,
			URL:          result.FinalURL,
			EngineUsed:   step.Label,
			ResponseType: result.ResponseType,
		}, nil
	}

	return nil, models.NewFetchError(models.ErrCodeExhausted, "every escalation step failed or returned insufficient content", nil)
}

func (s *Scheduler) maybePersist(domain string, step Step, statusCode int) {
	if isDefaultStartingStep(step) {
		return
	}
	err := s.store.Upsert(domain, models.DomainProfile{
		Engine:         step.Engine,
		RenderJS:       step.RenderDelayMs > 0,
		RenderDelayMs:  step.RenderDelayMs,
		UseProxy:       step.UseProxy,
		LastStatusCode: statusCode,
	})
	if err != nil {
		slog.Warn("escalate: failed to persist winning step", "domain", domain, "step", step.Label, "error", err)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, eng engine.Engine, req *models.FetchRequest, proxy string, renderDelayMs int, label string) (*models.FetchResult, error) {
	fetchReq := &engine.FetchRequest{
		URL:           req.URL,
		Headers:       req.Headers,
		Preset:        req.Preset,
		ResponseType:  req.ResponseType,
		RenderDelayMs: renderDelayMs,
		WaitForJS:     req.WaitForJS,
		Proxy:         proxy,
		Timeout:       30 * time.Second,
	}

	result, err := eng.Fetch(ctx, fetchReq)
	if err != nil {
		return nil, models.NewFetchError(models.ErrCodeEngine, fmt.Sprintf("%s engine failed", label), err)
	}

	return &models.FetchResult{
		Success:      true,
		StatusCode:   result.StatusCode,
		Content:      result.Content,
		Headers:      result.Headers,
		URL:          result.FinalURL,
		EngineUsed:   result.EngineName,
		ResponseType: result.ResponseType,
	}, nil
}
