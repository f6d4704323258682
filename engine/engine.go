// Package engine implements the four concrete fetch strategies behind a
// single contract: a fast HTTP engine, a pooled remote browser engine, a
// local stealth browser engine, and a remote unblock engine.
package engine

import (
	"context"
	"time"
)

// Engine is the contract every fetch strategy implements.
type Engine interface {
	// Name returns a stable identifier used for observability and cache
	// labels (e.g. "fast", "browser", "stealth", "unblock"). Never
	// user-visible prose.
	Name() string

	// Fetch retrieves the page content for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL           string
	Headers       map[string]string
	Preset        string
	ResponseType  string // "text" | "base64"
	RenderDelayMs int
	WaitForJS     bool
	Proxy         string
	Timeout       time.Duration
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	StatusCode   int
	Content      string // HTML, or base64 payload when ResponseType == "base64"
	Headers      map[string]string
	FinalURL     string
	EngineName   string
	ResponseType string
}

// Error is the engine-level failure type. The escalation scheduler treats
// any Error as "insufficient, continue" during auto mode; in explicit-engine
// mode it is returned to the caller as models.ErrCodeEngine.
type Error struct {
	Engine string
	Err    error
}

func (e *Error) Error() string {
	return e.Engine + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
