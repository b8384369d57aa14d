package engine

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alerta-link/alerta-link/internal/catalog"
	"github.com/alerta-link/alerta-link/internal/verdict"
	"github.com/alerta-link/alerta-link/internal/virustotal"
	"github.com/alerta-link/alerta-link/internal/whois"
)

type stubResolver struct{}

func (stubResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return &Engine{
		Catalog:         cat,
		Resolver:        stubResolver{},
		TrancoThreshold: 100000,
	}
}

func TestAnalyze_PlainURLIsLowRisk(t *testing.T) {
	e := testEngine(t)
	v, err := e.Analyze(context.Background(), "https://example.com/safe-path-here", Options{Model: ModelHeuristic})
	require.NoError(t, err)

	assert.Equal(t, "heuristic", v.ModelUsed)
	assert.Equal(t, "auto", v.ModeUsed)
	assert.LessOrEqual(t, v.Score, 30)
	assert.NotNil(t, v.Recommendations)
}

func TestAnalyze_IPHostRaisesRisk(t *testing.T) {
	e := testEngine(t)
	v, err := e.Analyze(context.Background(), "http://93.184.216.34/wp-login.php", Options{Model: ModelHeuristic})
	require.NoError(t, err)

	assert.Greater(t, v.Score, 30)
	var gotIPSignal bool
	for _, s := range v.Signals {
		if s.ID == "IP_AS_HOST" {
			gotIPSignal = true
		}
	}
	assert.True(t, gotIPSignal)
}

func TestAnalyze_InvalidURLReturnsErrorVerdict(t *testing.T) {
	e := testEngine(t)
	_, err := e.Analyze(context.Background(), "not-a-url", Options{Model: ModelHeuristic})
	require.Error(t, err)
	var ev *ErrorVerdict
	assert.ErrorAs(t, err, &ev)
}

func TestAnalyze_BlockedTargetReturnsErrorVerdict(t *testing.T) {
	e := testEngine(t)
	_, err := e.Analyze(context.Background(), "http://127.0.0.1/admin", Options{Model: ModelHeuristic})
	require.Error(t, err)
	var ev *ErrorVerdict
	assert.ErrorAs(t, err, &ev)
}

func TestAnalyze_RecordsRequestedMode(t *testing.T) {
	e := testEngine(t)
	v, err := e.Analyze(context.Background(), "https://example.com/path", Options{Model: ModelHeuristic, Mode: "offline"})
	require.NoError(t, err)
	assert.Equal(t, "offline", v.ModeUsed)
}

func TestSeverityForScore(t *testing.T) {
	assert.Equal(t, verdict.SeverityHigh, severityForScore(80))
	assert.Equal(t, verdict.SeverityMedium, severityForScore(50))
	assert.Equal(t, verdict.SeverityLow, severityForScore(10))
}

func TestSortSignals_OrdersByAbsWeightThenID(t *testing.T) {
	signals := []verdict.Signal{
		{ID: "B", Weight: -10},
		{ID: "A", Weight: 10},
		{ID: "C", Weight: 40},
	}
	sortSignals(signals)
	assert.Equal(t, []string{"C", "A", "B"}, []string{signals[0].ID, signals[1].ID, signals[2].ID})
}

func TestAppendVTSignal_CriticalThreshold(t *testing.T) {
	signals := appendVTSignal(nil, virustotal.Payload{Malicious: 12, TotalEngines: 70}, nil, 3)
	require.Len(t, signals, 1)
	assert.Equal(t, "VIRUSTOTAL_MALICIOUS_CRIT", signals[0].ID)
}

func TestAppendVTSignal_BelowThresholdProducesNoSignal(t *testing.T) {
	signals := appendVTSignal(nil, virustotal.Payload{Malicious: 2, TotalEngines: 70}, nil, 3)
	assert.Empty(t, signals)
}

func TestAppendWHOISSignal_NewDomain(t *testing.T) {
	signals := appendWHOISSignal(nil, whois.Payload{Known: true, AgeDays: 5}, nil)
	require.Len(t, signals, 1)
	assert.Equal(t, "DOMAIN_TOO_NEW", signals[0].ID)
}

func TestAppendWHOISSignal_UnknownProducesNoSignal(t *testing.T) {
	signals := appendWHOISSignal(nil, whois.Payload{Known: false}, nil)
	assert.Empty(t, signals)
}

func TestCrawlCrossesDomain(t *testing.T) {
	assert.True(t, crawlCrossesDomain("example.com", "https://evil.example/x"))
	assert.False(t, crawlCrossesDomain("example.com", "https://example.com/landing"))
}
