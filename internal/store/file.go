package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore is an append-only JSON-lines fallback used when no
// DATABASE_URL is configured. Each kind is its own file under dir.
type FileStore struct {
	mu        sync.Mutex
	dir       string
	overrides map[string]int
}

// NewFileStore opens (creating if necessary) the JSON-lines files under dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	return &FileStore{dir: dir, overrides: make(map[string]int)}, nil
}

// Close is a no-op for FileStore; each write opens and closes its own file.
func (s *FileStore) Close() {}

func (s *FileStore) appendLine(filename string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// InsertIngestedURL appends a record to ingested.jsonl.
func (s *FileStore) InsertIngestedURL(ctx context.Context, url, source string, label int) (string, error) {
	id := newID()
	rec := IngestedURL{ID: id, URL: url, Label: label, Source: source, SubmittedAt: time.Now()}
	if err := s.appendLine("ingested.jsonl", rec); err != nil {
		return "", fmt.Errorf("store: insert ingested url: %w", err)
	}
	return id, nil
}

// InsertReport appends a record to reports.jsonl.
func (s *FileStore) InsertReport(ctx context.Context, url, reportType, comment, contact string) (string, error) {
	id := newID()
	rec := Report{ID: id, URL: url, ReportType: reportType, Comment: comment, Contact: contact, SubmittedAt: time.Now()}
	if err := s.appendLine("reports.jsonl", rec); err != nil {
		return "", fmt.Errorf("store: insert report: %w", err)
	}
	return id, nil
}

// InsertAnalysisResult appends a record to analyses.jsonl.
func (s *FileStore) InsertAnalysisResult(ctx context.Context, r AnalysisResult) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if err := s.appendLine("analyses.jsonl", r); err != nil {
		return fmt.Errorf("store: insert analysis result: %w", err)
	}
	return nil
}

// GetWHOISAgeOverride looks up an in-memory override set via SetWHOISAgeOverride
// (test hook; FileStore has no query surface over its append-only files).
func (s *FileStore) GetWHOISAgeOverride(ctx context.Context, domain string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, ok := s.overrides[domain]
	return days, ok, nil
}

// SetWHOISAgeOverride is a test hook mirroring the Postgres
// whois_age_overrides table for FileStore-backed test runs.
func (s *FileStore) SetWHOISAgeOverride(domain string, days int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[domain] = days
}
