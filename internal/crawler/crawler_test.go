package crawler

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alerta-link/alerta-link/internal/catalog"
	"github.com/alerta-link/alerta-link/internal/verdict"
)

func parseHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractEvidence_LoginFormDetected(t *testing.T) {
	doc := parseHTML(t, `<html><body><form action="/login"><input type="password" name="pw"></form></body></html>`)
	ev := extractEvidence(doc, "https://example.com/login", nil)
	assert.True(t, ev.HasLoginForm)
	assert.True(t, ev.HasPasswordField)
}

func TestExtractEvidence_ExternalFormSubmission(t *testing.T) {
	doc := parseHTML(t, `<html><body><form action="https://evil.example/collect"><input type="text" name="x"></form></body></html>`)
	ev := extractEvidence(doc, "https://shop.example.com/checkout", nil)
	assert.True(t, ev.FormSubmitsExternally)
}

func TestExtractEvidence_SameDomainFormNotFlagged(t *testing.T) {
	doc := parseHTML(t, `<html><body><form action="https://shop.example.com/submit"><input type="text" name="x"></form></body></html>`)
	ev := extractEvidence(doc, "https://shop.example.com/checkout", nil)
	assert.False(t, ev.FormSubmitsExternally)
}

func TestExtractEvidence_CreditCardField(t *testing.T) {
	doc := parseHTML(t, `<html><body><form><input type="text" name="card_number"></form></body></html>`)
	ev := extractEvidence(doc, "https://example.com", nil)
	assert.True(t, ev.HasCreditCardField)
}

func TestExtractEvidence_SuspiciousInputs(t *testing.T) {
	doc := parseHTML(t, `<html><body><form><input type="text" name="ssn"></form></body></html>`)
	ev := extractEvidence(doc, "https://example.com", nil)
	assert.True(t, ev.HasSuspiciousInputs)
}

func TestExtractEvidence_PhishingPhrase(t *testing.T) {
	doc := parseHTML(t, `<html><body><p>Please verify your account immediately.</p></body></html>`)
	ev := extractEvidence(doc, "https://example.com", nil)
	assert.Equal(t, 1, ev.PhishingPhrasesCount)
}

func TestExtractEvidence_BrandDetection(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)
	doc := parseHTML(t, `<html><body><p>Sign in with your paypal account to continue.</p></body></html>`)
	ev := extractEvidence(doc, "https://example.com", cat)
	assert.Contains(t, ev.BrandsDetected, "paypal")
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "shop.example.com", hostOf("https://shop.example.com/checkout?x=1"))
	assert.Equal(t, "example.com", hostOf("http://example.com"))
}

func TestSignalsFromEvidence_NotInTopK_FullSignalSet(t *testing.T) {
	report := &verdict.CrawlReport{
		Evidence: verdict.CrawlEvidence{
			HasLoginForm:       true,
			HasCreditCardField: true,
			BrandsDetected:     []string{"paypal"},
		},
	}
	signals := SignalsFromEvidence(report, false, false, nil)

	var ids []string
	for _, s := range signals {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "LOGIN_FORM_DETECTED")
	assert.Contains(t, ids, "CREDIT_CARD_FORM")
	assert.Contains(t, ids, "BRAND_CONTENT_DETECTED")
}

func TestSignalsFromEvidence_InTopK_OnlyCriticalSignals(t *testing.T) {
	report := &verdict.CrawlReport{
		Evidence: verdict.CrawlEvidence{
			HasLoginForm:       true,
			HasCreditCardField: true,
			SSLError:           true,
		},
	}
	signals := SignalsFromEvidence(report, true, false, nil)

	var ids []string
	for _, s := range signals {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "SSL_CERTIFICATE_ERROR")
	assert.NotContains(t, ids, "LOGIN_FORM_DETECTED")
	assert.NotContains(t, ids, "CREDIT_CARD_FORM")
}

func TestSignalsFromEvidence_CrossDomainRedirect(t *testing.T) {
	report := &verdict.CrawlReport{}
	signals := SignalsFromEvidence(report, false, true, nil)

	require.Len(t, signals, 1)
	assert.Equal(t, "REDIRECT_CROSS_DOMAIN", signals[0].ID)
}

func TestIsTLSError(t *testing.T) {
	assert.True(t, isTLSError(assertError("x509: certificate signed by unknown authority")))
	assert.False(t, isTLSError(assertError("connection refused")))
}

func assertError(s string) error {
	return &testError{s}
}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }
