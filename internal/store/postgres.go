package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore wraps a pgx connection pool, adapted from the teacher's
// internal/db.DB connect/migrate/CRUD shape.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// ConnectPostgres opens the pool, pings it, and applies the embedded
// migration.
func ConnectPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	s.logger.Info("store migrated")
	return nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// InsertIngestedURL records a submission from POST /ingest.
func (s *PostgresStore) InsertIngestedURL(ctx context.Context, url, source string, label int) (string, error) {
	id := newID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingested_urls (id, url, source, label, submitted_at) VALUES ($1, $2, $3, $4, now())`,
		id, url, source, label)
	if err != nil {
		return "", fmt.Errorf("store: insert ingested url: %w", err)
	}
	return id, nil
}

// InsertReport records a submission from POST /report.
func (s *PostgresStore) InsertReport(ctx context.Context, url, reportType, comment, contact string) (string, error) {
	id := newID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, url, report_type, comment, contact, submitted_at) VALUES ($1, $2, $3, $4, $5, now())`,
		id, url, reportType, comment, contact)
	if err != nil {
		return "", fmt.Errorf("store: insert report: %w", err)
	}
	return id, nil
}

// InsertAnalysisResult records a completed /analyze call.
func (s *PostgresStore) InsertAnalysisResult(ctx context.Context, r AnalysisResult) error {
	if r.ID == "" {
		r.ID = newID()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_results (id, url, normalized_url, score, risk_level, model_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		r.ID, r.URL, r.NormalizedURL, r.Score, r.RiskLevel, r.ModelUsed)
	if err != nil {
		return fmt.Errorf("store: insert analysis result: %w", err)
	}
	return nil
}

// GetWHOISAgeOverride reads a test-only override for a domain's WHOIS age,
// letting integration tests pin a deterministic age without a live lookup.
func (s *PostgresStore) GetWHOISAgeOverride(ctx context.Context, domain string) (int, bool, error) {
	var days int
	err := s.pool.QueryRow(ctx,
		`SELECT age_days FROM whois_age_overrides WHERE domain = $1`, domain).Scan(&days)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: get whois override: %w", err)
	}
	return days, true, nil
}
