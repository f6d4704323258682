// Package logging wires log/slog into a bounded in-process ring buffer so
// the admin API can serve GET /api/logs/stream without holding every log
// line the process has ever emitted. Grounded on Easonliuliang-purify's
// cmd/purify/main.go:initLogger for the JSON/text slog handler split, and
// on its api/handler/scrape.go writeSSE idiom for the broadcast shape.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// ringCapacity bounds memory use; the oldest entry is evicted on overflow.
const ringCapacity = 500

// Ring is a fixed-capacity circular buffer of log entries with fan-out to
// live subscribers. An entry is dropped for a subscriber whose channel is
// full rather than allowed to block a fetch; the subscriber stays subscribed.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	head    int
	size    int
	subs    map[chan Entry]struct{}
}

// NewRing builds an empty ring buffer.
func NewRing() *Ring {
	return &Ring{
		entries: make([]Entry, ringCapacity),
		subs:    make(map[chan Entry]struct{}),
	}
}

// Push appends an entry, evicting the oldest on overflow, and fans it out
// to every live subscriber without blocking on a full channel.
func (r *Ring) Push(e Entry) {
	r.mu.Lock()
	idx := (r.head + r.size) % ringCapacity
	if r.size < ringCapacity {
		r.size++
	} else {
		r.head = (r.head + 1) % ringCapacity
	}
	r.entries[idx] = e

	for ch := range r.subs {
		select {
		case ch <- e:
		default:
			// Subscriber too slow; drop this entry for them rather than
			// stall the writer that produced it.
		}
	}
	r.mu.Unlock()
}

// Snapshot returns the currently buffered entries oldest-first.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.entries[(r.head+i)%ringCapacity]
	}
	return out
}

// Subscribe registers a new live-tail channel. Callers must call the
// returned unsubscribe function when done to avoid leaking the channel.
func (r *Ring) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 32)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	unsubscribe := func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

// ringHandler wraps another slog.Handler, forwarding every record to it
// unchanged while also pushing a flattened copy into the ring buffer.
type ringHandler struct {
	next  slog.Handler
	ring  *Ring
	attrs []slog.Attr
}

func (h *ringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ringHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make(map[string]any, record.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.ring.Push(Entry{
		Time:    record.Time,
		Level:   record.Level.String(),
		Message: record.Message,
		Attrs:   attrs,
	})

	return h.next.Handle(ctx, record)
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringHandler{next: h.next.WithAttrs(attrs), ring: h.ring, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	return &ringHandler{next: h.next.WithGroup(name), ring: h.ring, attrs: h.attrs}
}

// Init configures slog with a JSON or text handler on stdout (teacher's
// cmd/purify/main.go:initLogger split) plus a plain-line handler appending
// to <logsDir>/app.log in the "[<iso8601>] [<level>] <msg>\n" format, tees
// every record into a Ring, and installs the result as the default logger.
// format is "json" or "text"; level is "debug", "info", "warn", or "error".
func Init(level, format, logsDir string) (*Ring, error) {
	ring := NewRing()

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var stdoutHandler slog.Handler
	if format == "text" {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	}

	handlers := []slog.Handler{stdoutHandler}
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create logs dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(logsDir, "app.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open app.log: %w", err)
		}
		handlers = append(handlers, &lineHandler{w: f, level: lvl})
	}

	slog.SetDefault(slog.New(&ringHandler{next: &multiHandler{handlers: handlers}, ring: ring}))
	return ring, nil
}

// multiHandler fans out each record to every wrapped handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// lineHandler writes "[<iso8601>] [<level>] <msg>\n" lines, the app.log
// wire format.
type lineHandler struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Level
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.w, "[%s] [%s] %s\n",
		record.Time.UTC().Format(time.RFC3339), record.Level.String(), record.Message)
	return err
}

func (h *lineHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *lineHandler) WithGroup(_ string) slog.Handler      { return h }
