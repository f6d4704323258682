// Package profile persists the ladder step that worked for each domain, so
// repeat requests to the same host can skip straight to a known-good
// engine instead of re-walking the escalation ladder from scratch.
//
// Grounded on kashifinayat006-vessel's internal/database package: a
// modernc.org/sqlite (pure-Go, no cgo) connection opened with WAL-mode
// pragmas in the DSN, migrations run as idempotent CREATE ... IF NOT EXISTS
// statements (table and index) at startup.
package profile

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openfetch/fetchcore/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS domain_profiles (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    domain           TEXT NOT NULL UNIQUE,
    engine           TEXT NOT NULL,
    render_js        INTEGER NOT NULL DEFAULT 0,
    render_delay_ms  INTEGER NOT NULL DEFAULT 0,
    use_proxy        INTEGER NOT NULL DEFAULT 0,
    preset           TEXT NOT NULL DEFAULT '',
    hit_count        INTEGER NOT NULL DEFAULT 1,
    last_status_code INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_domain_profiles_domain ON domain_profiles(domain);
`

// Store is a sqlite-backed table of per-domain winning ladder steps.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the profile database at path, enabling
// WAL mode, a busy timeout, and foreign keys via DSN parameters.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("profile: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("profile: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer, avoid lock contention

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ExtractDomain canonicalizes a URL's host into a domain key: lowercased,
// with a single leading "www." stripped and any port suffix dropped.
func ExtractDomain(rawURL string) string {
	host := rawURL
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.LastIndex(host, "@"); idx >= 0 {
		host = host[idx+1:]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		// Guard against stripping a port out of an IPv6 literal; domains
		// never contain ']'.
		if !strings.Contains(host[idx:], "]") {
			host = host[:idx]
		}
	}
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host
}

// Get returns the stored profile for domain, or nil if none exists.
func (s *Store) Get(domain string) (*models.DomainProfile, error) {
	row := s.db.QueryRow(`
		SELECT id, domain, engine, render_js, render_delay_ms, use_proxy,
		       preset, hit_count, last_status_code, created_at, updated_at
		FROM domain_profiles WHERE domain = ?`, domain)

	var p models.DomainProfile
	var renderJS, useProxy int
	err := row.Scan(&p.ID, &p.Domain, &p.Engine, &renderJS, &p.RenderDelayMs,
		&useProxy, &p.Preset, &p.HitCount, &p.LastStatusCode, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get %q: %w", domain, err)
	}
	p.RenderJS = renderJS != 0
	p.UseProxy = useProxy != 0
	return &p, nil
}

// Upsert inserts or overwrites the winning step for domain, bumping
// hit_count and refreshing updated_at. created_at is set once on first
// insert and never changed afterward.
func (s *Store) Upsert(domain string, p models.DomainProfile) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO domain_profiles
			(domain, engine, render_js, render_delay_ms, use_proxy, preset,
			 hit_count, last_status_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			engine           = excluded.engine,
			render_js        = excluded.render_js,
			render_delay_ms  = excluded.render_delay_ms,
			use_proxy        = excluded.use_proxy,
			preset           = excluded.preset,
			hit_count        = domain_profiles.hit_count + 1,
			last_status_code = excluded.last_status_code,
			updated_at       = excluded.updated_at`,
		domain, p.Engine, boolToInt(p.RenderJS), p.RenderDelayMs, boolToInt(p.UseProxy),
		p.Preset, p.LastStatusCode, now, now)
	if err != nil {
		return fmt.Errorf("profile: upsert %q: %w", domain, err)
	}
	return nil
}

// IncrementHit bumps hit_count and updated_at for an existing profile
// without changing its ladder step — used when a cached profile is reused
// as-is (no re-escalation needed).
func (s *Store) IncrementHit(domain string) error {
	_, err := s.db.Exec(`
		UPDATE domain_profiles SET hit_count = hit_count + 1, updated_at = ?
		WHERE domain = ?`, time.Now().Unix(), domain)
	if err != nil {
		return fmt.Errorf("profile: increment hit %q: %w", domain, err)
	}
	return nil
}

// Delete removes the stored profile for domain, if any.
func (s *Store) Delete(domain string) error {
	_, err := s.db.Exec(`DELETE FROM domain_profiles WHERE domain = ?`, domain)
	if err != nil {
		return fmt.Errorf("profile: delete %q: %w", domain, err)
	}
	return nil
}

// All returns every stored profile, ordered by most recently updated.
func (s *Store) All() ([]models.DomainProfile, error) {
	rows, err := s.db.Query(`
		SELECT id, domain, engine, render_js, render_delay_ms, use_proxy,
		       preset, hit_count, last_status_code, created_at, updated_at
		FROM domain_profiles ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("profile: list: %w", err)
	}
	defer rows.Close()

	var out []models.DomainProfile
	for rows.Next() {
		var p models.DomainProfile
		var renderJS, useProxy int
		if err := rows.Scan(&p.ID, &p.Domain, &p.Engine, &renderJS, &p.RenderDelayMs,
			&useProxy, &p.Preset, &p.HitCount, &p.LastStatusCode, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("profile: scan row: %w", err)
		}
		p.RenderJS = renderJS != 0
		p.UseProxy = useProxy != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
