package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SECRET_KEY", "DATABASE_URL", "TRANCO_API_KEY", "TRANCO_API_EMAIL",
		"TRANCO_RANK_THRESHOLD", "VIRUSTOTAL_API_KEY", "VIRUSTOTAL_THRESHOLD",
		"VIRUSTOTAL_UNCERTAINTY_MIN", "VIRUSTOTAL_UNCERTAINTY_MAX",
		"MODEL_PATH", "MODEL_SHA256", "WEIGHTS_PATH", "CORS_ORIGINS",
		"LOG_LEVEL", "ALERTA_TLS_DOMAIN", "ACME_EMAIL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_RequiresSecretKey(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsWildcardCORS(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_KEY", "s3cr3t")
	t.Setenv("CORS_ORIGINS", "https://a.com,*")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_KEY", "s3cr3t")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100000, cfg.TrancoRankThreshold)
	assert.Equal(t, "artifacts/model.gob", cfg.ModelPath)
	assert.Equal(t, "artifacts/weights.json", cfg.WeightsPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_ParsesCORSList(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_KEY", "s3cr3t")
	t.Setenv("CORS_ORIGINS", "https://a.com,https://b.com")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, cfg.CORSOrigins)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_KEY", "s3cr3t")
	t.Setenv("TRANCO_RANK_THRESHOLD", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100000, cfg.TrancoRankThreshold)
}
