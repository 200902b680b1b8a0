// Package history persists sync outcomes to Postgres. The store is
// optional: without a DATABASE_URL every operation is a no-op, so callers
// never branch on whether persistence is configured.
package history

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_history (
	id             BIGSERIAL PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	media_path     TEXT NOT NULL,
	subtitle_path  TEXT NOT NULL DEFAULT '',
	offset_seconds DOUBLE PRECISION NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	method         TEXT NOT NULL,
	applied        BOOLEAN NOT NULL,
	duration_ms    INTEGER NOT NULL,
	warnings       TEXT[]
);
CREATE INDEX IF NOT EXISTS sync_history_created_at_idx ON sync_history (created_at DESC);
`

// Entry is one recorded sync outcome.
type Entry struct {
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	MediaPath     string    `json:"media_path"`
	SubtitlePath  string    `json:"subtitle_path"`
	OffsetSeconds float64   `json:"offset_seconds"`
	Confidence    float64   `json:"confidence"`
	Method        string    `json:"method"`
	Applied       bool      `json:"applied"`
	DurationMs    int       `json:"duration_ms"`
	Warnings      []string  `json:"warnings,omitempty"`
}

// Store writes and reads sync history. A disabled store has a nil pool.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects to databaseURL and ensures the schema. An empty URL
// returns a disabled store and no error.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "history").Logger()
	if databaseURL == "" {
		log.Debug().Msg("no database configured, history disabled")
		return &Store{log: log}, nil
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Msg("history store connected")
	return &Store{pool: pool, log: log}, nil
}

// Enabled reports whether outcomes are being persisted.
func (s *Store) Enabled() bool { return s != nil && s.pool != nil }

// Record inserts one sync outcome. No-op when disabled.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_history
			(media_path, subtitle_path, offset_seconds, confidence, method, applied, duration_ms, warnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.MediaPath, e.SubtitlePath, e.OffsetSeconds, e.Confidence, e.Method, e.Applied, e.DurationMs, e.Warnings)
	if err != nil {
		return err
	}
	s.log.Debug().Str("media", e.MediaPath).Float64("offset", e.OffsetSeconds).Msg("history recorded")
	return nil
}

// Recent returns the newest entries, most recent first. Empty when disabled.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit < 1 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, media_path, subtitle_path, offset_seconds,
		       confidence, method, applied, duration_ms, warnings
		FROM sync_history
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.MediaPath, &e.SubtitlePath,
			&e.OffsetSeconds, &e.Confidence, &e.Method, &e.Applied, &e.DurationMs, &e.Warnings); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HealthCheck pings the pool with a short deadline. Nil when disabled.
func (s *Store) HealthCheck(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the pool. Safe on a disabled store.
func (s *Store) Close() {
	if !s.Enabled() {
		return
	}
	s.log.Info().Msg("closing history pool")
	s.pool.Close()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
