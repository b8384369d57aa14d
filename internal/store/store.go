// Package store implements ALERTA-LINK's persistence collaborator (§6.3).
// Store is the interface both implementations satisfy; PostgresStore is
// adapted from the teacher's internal/db.DB (pgx pool, embedded migrations,
// the same ErrNotFound sentinel); FileStore is a JSON-lines fallback used
// when no DATABASE_URL is configured.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a queried entity does not exist.
var ErrNotFound = errors.New("store: not found")

// IngestedURL is a single submission recorded via POST /ingest.
type IngestedURL struct {
	ID          string
	URL         string
	Label       int // 0/1 ground-truth label for training
	Source      string
	SubmittedAt time.Time
}

// Report is a user-submitted report about a URL, recorded via POST /report.
type Report struct {
	ID          string
	URL         string
	ReportType  string // report label; /report accepts "phishing" | "malware" | "scam" | "spam" | "unknown"
	Comment     string
	Contact     string
	SubmittedAt time.Time
}

// AnalysisResult is a persisted record of a completed /analyze call, kept
// for audit.
type AnalysisResult struct {
	ID            string
	URL           string
	NormalizedURL string
	Score         int
	RiskLevel     string
	ModelUsed     string
	CreatedAt     time.Time
}

// Store is the persistence contract the HTTP layer depends on;
// PostgresStore and FileStore both satisfy it.
type Store interface {
	InsertIngestedURL(ctx context.Context, url, source string, label int) (string, error)
	InsertReport(ctx context.Context, url, reportType, comment, contact string) (string, error)
	InsertAnalysisResult(ctx context.Context, r AnalysisResult) error
	GetWHOISAgeOverride(ctx context.Context, domain string) (days int, ok bool, err error)
	Close()
}

func newID() string {
	return uuid.NewString()
}
