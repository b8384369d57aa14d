// Package config loads ALERTA-LINK's environment-variable configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the process-wide, immutable-after-load configuration.
type Config struct {
	SecretKey string

	DatabaseURL string

	TrancoAPIKey        string
	TrancoAPIEmail      string
	TrancoRankThreshold int

	VirusTotalAPIKey        string
	VirusTotalThreshold     int
	VirusTotalUncertainMin  int
	VirusTotalUncertainMax  int

	ModelPath   string
	ModelSHA256 string

	WeightsPath string

	CORSOrigins []string

	LogLevel string

	TLSDomain string
	ACMEEmail string
}

// Load reads .env (if present) then the environment, and validates the
// fatal-at-boot invariants from the error taxonomy (§7): a missing
// SECRET_KEY refuses to start the process.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SecretKey:              os.Getenv("SECRET_KEY"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		TrancoAPIKey:            os.Getenv("TRANCO_API_KEY"),
		TrancoAPIEmail:          os.Getenv("TRANCO_API_EMAIL"),
		TrancoRankThreshold:     envInt("TRANCO_RANK_THRESHOLD", 100000),
		VirusTotalAPIKey:        os.Getenv("VIRUSTOTAL_API_KEY"),
		VirusTotalThreshold:     envInt("VIRUSTOTAL_THRESHOLD", 3),
		VirusTotalUncertainMin:  envInt("VIRUSTOTAL_UNCERTAINTY_MIN", 30),
		VirusTotalUncertainMax:  envInt("VIRUSTOTAL_UNCERTAINTY_MAX", 70),
		ModelPath:               envOr("MODEL_PATH", "artifacts/model.gob"),
		ModelSHA256:             os.Getenv("MODEL_SHA256"),
		WeightsPath:             envOr("WEIGHTS_PATH", "artifacts/weights.json"),
		CORSOrigins:             envList("CORS_ORIGINS"),
		LogLevel:                envOr("LOG_LEVEL", "info"),
		TLSDomain:               os.Getenv("ALERTA_TLS_DOMAIN"),
		ACMEEmail:               os.Getenv("ACME_EMAIL"),
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("config: SECRET_KEY is required, refusing to start")
	}
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			return nil, fmt.Errorf("config: CORS_ORIGINS wildcard is forbidden")
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
