package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_InsertIngestedURL_WritesLine(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	defer s.Close()

	id, err := s.InsertIngestedURL(context.Background(), "https://example.com", "manual", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	lines := readLines(t, filepath.Join(dir, "ingested.jsonl"))
	require.Len(t, lines, 1)

	var rec IngestedURL
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "https://example.com", rec.URL)
	assert.Equal(t, "manual", rec.Source)
	assert.Equal(t, 1, rec.Label)
}

func TestFileStore_InsertReport_AppendsMultiple(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.InsertReport(context.Background(), "https://a.com", "false_positive", "looked fine to me", "user@example.com")
	require.NoError(t, err)
	_, err = s.InsertReport(context.Background(), "https://b.com", "false_negative", "missed this one", "")
	require.NoError(t, err)

	lines := readLines(t, filepath.Join(dir, "reports.jsonl"))
	require.Len(t, lines, 2)

	var rec Report
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "user@example.com", rec.Contact)
}

func TestFileStore_InsertAnalysisResult_GeneratesIDWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	defer s.Close()

	err = s.InsertAnalysisResult(context.Background(), AnalysisResult{
		URL: "https://example.com", NormalizedURL: "https://example.com/", Score: 42, RiskLevel: "medium",
	})
	require.NoError(t, err)

	lines := readLines(t, filepath.Join(dir, "analyses.jsonl"))
	require.Len(t, lines, 1)

	var rec AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestFileStore_WHOISAgeOverride_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.GetWHOISAgeOverride(context.Background(), "example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	s.SetWHOISAgeOverride("example.com", 5)
	days, ok, err := s.GetWHOISAgeOverride(context.Background(), "example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, days)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}
