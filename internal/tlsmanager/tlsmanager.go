// Package tlsmanager provides optional on-demand TLS via certmagic, adapted
// from the teacher's tls.CertManager. Instead of gating certificate
// issuance on a per-site status row in Postgres, it gates on a single
// configured public domain — most deployments sit behind a load balancer
// that already terminates TLS, so this is off by default.
package tlsmanager

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/caddyserver/certmagic"
)

// Manager wraps a certmagic config scoped to a single allowed domain.
type Manager struct {
	logger *slog.Logger
	cfg    *certmagic.Config
	domain string
}

// New builds a Manager for domain. acmeEmail registers with Let's Encrypt;
// production selects the production ACME directory instead of staging.
func New(domain, acmeEmail string, production bool, logger *slog.Logger) *Manager {
	certmagic.DefaultACME.Email = acmeEmail
	certmagic.DefaultACME.Agreed = true
	if !production {
		certmagic.DefaultACME.CA = certmagic.LetsEncryptStagingCA
	}

	cfg := certmagic.NewDefault()
	m := &Manager{logger: logger, cfg: cfg, domain: domain}
	cfg.OnDemand = &certmagic.OnDemandConfig{DecisionFunc: m.allowCert}
	return m
}

func (m *Manager) allowCert(ctx context.Context, name string) error {
	if name != m.domain {
		return fmt.Errorf("tlsmanager: unconfigured domain %q", name)
	}
	return nil
}

// ListenAndServe pre-manages the configured domain, then serves handler
// over TLS on the standard HTTPS port.
func (m *Manager) ListenAndServe(handler http.Handler) error {
	m.logger.Info("starting TLS server", "domain", m.domain)

	if err := m.cfg.ManageSync(context.Background(), []string{m.domain}); err != nil {
		return fmt.Errorf("tlsmanager: manage domain: %w", err)
	}

	ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", certmagic.HTTPSPort), m.cfg.TLSConfig())
	if err != nil {
		return fmt.Errorf("tlsmanager: tls listen: %w", err)
	}

	m.logger.Info("serving HTTPS", "port", certmagic.HTTPSPort)
	return http.Serve(ln, handler)
}
