package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alerta-link/alerta-link/internal/catalog"
	"github.com/alerta-link/alerta-link/internal/config"
	"github.com/alerta-link/alerta-link/internal/crawler"
	"github.com/alerta-link/alerta-link/internal/engine"
	"github.com/alerta-link/alerta-link/internal/heuristic"
	"github.com/alerta-link/alerta-link/internal/httpapi"
	"github.com/alerta-link/alerta-link/internal/mlmodel"
	"github.com/alerta-link/alerta-link/internal/ratelimit"
	"github.com/alerta-link/alerta-link/internal/safedial"
	"github.com/alerta-link/alerta-link/internal/server"
	"github.com/alerta-link/alerta-link/internal/store"
	"github.com/alerta-link/alerta-link/internal/tlsmanager"
	"github.com/alerta-link/alerta-link/internal/tranco"
	"github.com/alerta-link/alerta-link/internal/virustotal"
	"github.com/alerta-link/alerta-link/internal/whois"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect to database", "err", err)
			os.Exit(1)
		}
		st = pg
	} else {
		fs, err := store.NewFileStore("data")
		if err != nil {
			logger.Error("failed to open file store", "err", err)
			os.Exit(1)
		}
		logger.Warn("DATABASE_URL not set, using file-backed store")
		st = fs
	}
	defer st.Close()

	cat, err := catalog.Load()
	if err != nil {
		logger.Error("failed to load catalog", "err", err)
		os.Exit(1)
	}

	ml, err := mlmodel.Load(cfg.ModelPath, cfg.ModelSHA256)
	if err != nil {
		logger.Warn("ML model unavailable, falling back to heuristic model", "err", err)
	}

	weights, err := heuristic.LoadWeights(cfg.WeightsPath)
	if err != nil {
		logger.Warn("weights artifact unavailable, using defaults", "err", err)
	}

	trancoClient := tranco.New(cfg.TrancoAPIKey, cfg.TrancoAPIEmail, cfg.TrancoRankThreshold)
	vtClient := virustotal.New(cfg.VirusTotalAPIKey, 4)
	whoisClient := whois.New(safedial.DialContext)
	crawlerInstance := crawler.New(cat)

	eng := &engine.Engine{
		Catalog:                cat,
		Resolver:               net.DefaultResolver,
		ML:                     ml,
		Weights:                weights,
		Tranco:                 trancoClient,
		VirusTotal:             vtClient,
		WHOIS:                  whoisClient,
		Crawler:                crawlerInstance,
		TrancoThreshold:        cfg.TrancoRankThreshold,
		VirusTotalThreshold:    cfg.VirusTotalThreshold,
		VirusTotalUncertainMin: cfg.VirusTotalUncertainMin,
		VirusTotalUncertainMax: cfg.VirusTotalUncertainMax,
	}

	limiter := ratelimit.New()

	apiServer := &httpapi.Server{
		Engine:  eng,
		Store:   st,
		Limiter: limiter,
		Logger:  logger,
		Version: version,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Mount("/", httpapi.NewRouter(apiServer))

	go server.RunWithRecovery(ctx, logger, "cache-janitor", func(ctx context.Context) {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				trancoClient.PurgeExpired()
				vtClient.PurgeExpired()
				whoisClient.PurgeExpired()
			}
		}
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	if cfg.TLSDomain != "" {
		tm := tlsmanager.New(cfg.TLSDomain, cfg.ACMEEmail, os.Getenv("ALERTA_ENV") == "production", logger)
		logger.Info("server starting with managed TLS", "domain", cfg.TLSDomain)
		if err := tm.ListenAndServe(r); err != nil {
			logger.Error("tls server failed", "err", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("server starting", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowedSet := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		allowedSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowedSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
