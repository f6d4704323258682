// Package pool implements the browser pool: a process-wide singleton
// holding N long-lived connections to a remote browser endpoint, multiplexed
// over a tab-per-request discipline with round-robin dispatch, generation
// based recycling, keepalive tabs and automatic reconnection.
//
// Grounded on Easonliuliang-purify's scraper.Scraper lifecycle (launcher
// flags, drain-on-close discipline) and muqo16-vg-hitbot's browser pool
// (channel-free per-slot acquire/release, session counters, age/session
// based recycling), adapted to this system's slot/tab/keepalive model.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// MaxTabsBeforeRecycle is the tab count at which a slot is marked stale.
const MaxTabsBeforeRecycle = 200

// Config carries the remote browser endpoint and feature toggles that shape
// the derived CDP URL.
type Config struct {
	BrowserlessURL string // ws/wss base URL
	Stealth        bool
	Proxy          string
	Slots          int // default 4
}

func (c Config) slotCount() int {
	if c.Slots <= 0 {
		return 4
	}
	return c.Slots
}

// buildEndpoint derives the per-connection CDP URL from the configured base:
// appends /chrome/stealth when stealth is enabled, URL-encodes and attaches
// --proxy-server=... if a proxy is configured, and appends a launch-option
// blob with window size and disable-automation flags.
func buildEndpoint(cfg Config) string {
	base := cfg.BrowserlessURL
	if cfg.Stealth {
		base = strings.TrimRight(base, "/") + "/chrome/stealth"
	}

	args := []string{"--window-size=1920,1080", "--disable-blink-features=AutomationControlled"}
	if cfg.Proxy != "" {
		args = append(args, "--proxy-server="+cfg.Proxy)
	}

	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("launch", "{\"args\":"+encodeArgs(args)+"}")
	u.RawQuery = q.Encode()
	return u.String()
}

func encodeArgs(args []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(a, `"`, `\"`))
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}

// UnblockURL derives the unblock REST endpoint from the browserless base by
// swapping ws/wss for http/https and appending /chrome/unblock.
func UnblockURL(browserlessURL string) string {
	u, err := url.Parse(browserlessURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/chrome/unblock"
	u.RawQuery = ""
	return u.String()
}

// slot is one persistent connection to the remote browser.
type slot struct {
	id             int
	mu             sync.Mutex
	browser        *rod.Browser
	keepalivePage  *rod.Page
	connected      bool
	connecting     bool
	activeTabCount int32
	tabsUsed       int64
	stale          bool
}

// BrowserPool multiplexes fetches over N remote-browser slots.
type BrowserPool struct {
	cfg      atomic.Pointer[Config]
	slots    []*slot
	nextSlot atomic.Int64
}

// New creates a pool with N disconnected slots (N from cfg.Slots, default 4).
func New(cfg Config) *BrowserPool {
	p := &BrowserPool{}
	p.cfg.Store(&cfg)
	n := cfg.slotCount()
	p.slots = make([]*slot, n)
	for i := range p.slots {
		p.slots[i] = &slot{id: i}
	}
	return p
}

// Connect eagerly warms all slots in parallel. Idempotent: slots already
// connected are left untouched.
func (p *BrowserPool) Connect(ctx context.Context) error {
	cfg := *p.cfg.Load()
	var wg sync.WaitGroup
	errs := make([]error, len(p.slots))
	for i, s := range p.slots {
		wg.Add(1)
		go func(i int, s *slot) {
			defer wg.Done()
			errs[i] = p.ensureConnected(ctx, s, cfg)
		}(i, s)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ensureConnected is the single-flight connect path: a per-slot `connecting`
// sentinel prevents two concurrent callers from opening duplicate
// connections to the same slot.
func (p *BrowserPool) ensureConnected(ctx context.Context, s *slot, cfg Config) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	if s.connecting {
		s.mu.Unlock()
		// Another goroutine is already dialing this slot; wait briefly and
		// re-check rather than racing a second connection attempt.
		for i := 0; i < 100; i++ {
			time.Sleep(50 * time.Millisecond)
			s.mu.Lock()
			connected := s.connected
			connecting := s.connecting
			s.mu.Unlock()
			if connected {
				return nil
			}
			if !connecting {
				break
			}
		}
		return fmt.Errorf("pool: slot %d: timed out waiting for in-flight connect", s.id)
	}
	s.connecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	endpoint := buildEndpoint(cfg)
	browser := rod.New().ControlURL(endpoint).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("pool: slot %d: connect: %w", s.id, err)
	}

	// Keepalive tab: a blank page held open so the remote browser instance
	// doesn't shut down when all work tabs are momentarily closed.
	keepalive, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("pool: slot %d: keepalive page: %w", s.id, err)
	}

	s.mu.Lock()
	s.browser = browser
	s.keepalivePage = keepalive
	s.connected = true
	s.tabsUsed = 0
	s.stale = false
	s.mu.Unlock()

	slog.Info("pool: slot connected", "slot", s.id)
	return nil
}

// recycle tears down and reconnects a stale, idle slot.
func (p *BrowserPool) recycle(ctx context.Context, s *slot, cfg Config) error {
	s.mu.Lock()
	browser := s.browser
	s.connected = false
	s.browser = nil
	s.keepalivePage = nil
	s.mu.Unlock()

	if browser != nil {
		_ = browser.Close()
	}
	slog.Info("pool: recycling slot", "slot", s.id)
	return p.ensureConnected(ctx, s, cfg)
}

// FetchOpts carries per-request navigation parameters.
type FetchOpts struct {
	Headers       map[string]string
	RenderDelayMs int
}

// FetchResult is the outcome of a tab fetch.
type FetchResult struct {
	HTML       string
	StatusCode int
	FinalURL   string
}

// FetchInTab picks the next slot round-robin, ensures it is connected
// (recycling if stale and idle, reconnecting if disconnected), opens a new
// page, navigates, applies RenderDelayMs, returns DOM content, closes the
// page. If the connection drops mid-navigation, it reconnects and retries
// once on the same slot.
func (p *BrowserPool) FetchInTab(ctx context.Context, targetURL string, opts FetchOpts) (*FetchResult, error) {
	idx := int(p.nextSlot.Add(1)-1) % len(p.slots)
	s := p.slots[idx]
	cfg := *p.cfg.Load()

	s.mu.Lock()
	needsRecycle := s.stale && s.activeTabCount == 0
	connected := s.connected
	s.mu.Unlock()

	if needsRecycle {
		if err := p.recycle(ctx, s, cfg); err != nil {
			return nil, err
		}
	} else if !connected {
		if err := p.ensureConnected(ctx, s, cfg); err != nil {
			return nil, err
		}
	}

	result, err := p.doFetch(ctx, s, targetURL, opts)
	if err != nil {
		// Connection dropped mid-navigation: reconnect and retry once on
		// the same slot. A second failure propagates.
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		if rerr := p.ensureConnected(ctx, s, cfg); rerr != nil {
			return nil, fmt.Errorf("pool: slot %d: reconnect after failed fetch: %w", s.id, rerr)
		}
		return p.doFetch(ctx, s, targetURL, opts)
	}
	return result, nil
}

func (p *BrowserPool) doFetch(ctx context.Context, s *slot, targetURL string, opts FetchOpts) (*FetchResult, error) {
	s.mu.Lock()
	browser := s.browser
	s.mu.Unlock()
	if browser == nil {
		return nil, fmt.Errorf("pool: slot %d: not connected", s.id)
	}

	atomic.AddInt32(&s.activeTabCount, 1)
	used := atomic.AddInt64(&s.tabsUsed, 1)
	defer atomic.AddInt32(&s.activeTabCount, -1)

	if used >= MaxTabsBeforeRecycle {
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("pool: slot %d: open page: %w", s.id, err)
	}
	defer func() {
		_ = page.Close()
	}()

	if len(opts.Headers) > 0 {
		if _, err := page.SetExtraHeaders(flattenHeaders(opts.Headers)); err != nil {
			slog.Debug("pool: set extra headers failed", "slot", s.id, "error", err)
		}
	}

	if err := page.Navigate(targetURL); err != nil {
		return nil, fmt.Errorf("pool: slot %d: navigate: %w", s.id, err)
	}
	if err := page.WaitLoad(); err != nil {
		slog.Debug("pool: wait load did not settle", "slot", s.id, "error", err)
	}

	if opts.RenderDelayMs > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(opts.RenderDelayMs) * time.Millisecond):
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("pool: slot %d: read html: %w", s.id, err)
	}

	finalURL := targetURL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &FetchResult{HTML: html, StatusCode: 200, FinalURL: finalURL}, nil
}

// Session is a borrowed slot's browser handle for callers that need more
// than one tab per logical request (the advanced-fetch orchestrator opens a
// main tab plus one per downloaded resource, all in the same browser
// context so session cookies are shared). Release must be called exactly
// once to return the slot's tab-count bookkeeping to a consistent state.
type Session struct {
	Browser *rod.Browser
	release func()
}

// Release returns the session's borrowed tab slot.
func (sess *Session) Release() {
	sess.release()
}

// Borrow picks the next slot round-robin, ensures it is connected, and
// returns its underlying browser for direct multi-tab use. Unlike
// FetchInTab it does not itself open or close a page — the caller owns
// that lifecycle entirely, which is what the advanced orchestrator needs to
// interleave a hijack router, JS evaluation, and sibling download tabs.
func (p *BrowserPool) Borrow(ctx context.Context) (*Session, error) {
	idx := int(p.nextSlot.Add(1)-1) % len(p.slots)
	s := p.slots[idx]
	cfg := *p.cfg.Load()

	s.mu.Lock()
	needsRecycle := s.stale && s.activeTabCount == 0
	connected := s.connected
	s.mu.Unlock()

	if needsRecycle {
		if err := p.recycle(ctx, s, cfg); err != nil {
			return nil, err
		}
	} else if !connected {
		if err := p.ensureConnected(ctx, s, cfg); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	browser := s.browser
	s.mu.Unlock()
	if browser == nil {
		return nil, fmt.Errorf("pool: slot %d: not connected", s.id)
	}

	atomic.AddInt32(&s.activeTabCount, 1)
	used := atomic.AddInt64(&s.tabsUsed, 1)
	if used >= MaxTabsBeforeRecycle {
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
	}

	return &Session{
		Browser: browser.Context(ctx),
		release: func() { atomic.AddInt32(&s.activeTabCount, -1) },
	}, nil
}

// Disconnect closes keepalives and detaches from all slots.
func (p *BrowserPool) Disconnect() {
	for _, s := range p.slots {
		s.mu.Lock()
		browser := s.browser
		s.browser = nil
		s.keepalivePage = nil
		s.connected = false
		s.mu.Unlock()
		if browser != nil {
			_ = browser.Close()
		}
	}
}

// Status returns per-slot state plus totals.
func (p *BrowserPool) Status() (slots []SlotInfo, totalActive int, totalUsed int64) {
	for _, s := range p.slots {
		s.mu.Lock()
		info := SlotInfo{
			ID:         s.id,
			Connected:  s.connected,
			ActiveTabs: int(atomic.LoadInt32(&s.activeTabCount)),
			TabsUsed:   atomic.LoadInt64(&s.tabsUsed),
			Stale:      s.stale,
		}
		s.mu.Unlock()
		slots = append(slots, info)
		totalActive += info.ActiveTabs
		totalUsed += info.TabsUsed
	}
	return slots, totalActive, totalUsed
}

// SlotInfo is a snapshot of one slot's state.
type SlotInfo struct {
	ID         int
	Connected  bool
	ActiveTabs int
	TabsUsed   int64
	Stale      bool
}

// SetConfig atomically swaps the pool's configuration. Runtime changes take
// effect on next reconnect, not on in-flight tabs.
func (p *BrowserPool) SetConfig(cfg Config) {
	p.cfg.Store(&cfg)
}

func flattenHeaders(headers map[string]string) []string {
	out := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		out = append(out, k, v)
	}
	return out
}

// StealthJS re-exports the go-rod/stealth patch script, the same script the
// local stealth engine injects (as stealth.JS). The pool does not inject it
// into its own tabs.
var StealthJS = stealth.JS
