package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"leadscout/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	page *Page
	err  error
}

func (f fakeLoader) Load(ctx context.Context, pageURL string) (*Page, error) {
	return f.page, f.err
}

func (f fakeLoader) Capture(ctx context.Context, page *Page, kind CaptureKind) ([]byte, error) {
	return page.Raw, nil
}

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{"example.com", "https://example.com"},
		{"  example.com/about ", "https://example.com/about"},
		{"http://example.com", "http://example.com"},
		{"https://example.com", "https://example.com"},
		{"", ""},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, NormalizeURL(test.in))
	}
}

func TestEvaluateUnreachable(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:audit")
	defer cleanup()

	e := NewEvaluator(fakeLoader{err: fmt.Errorf("dial tcp: lookup example.invalid: no such host")})
	result, page := e.Evaluate(context.Background(), "example.invalid")

	require.Nil(t, page)
	require.Equal(t, ScoreUnreachable, result.Score)
	// exactly one diagnostic issue, no probe ever ran
	require.Len(t, result.Issues, 1)
	require.Contains(t, result.Issues[0], "site unreachable")
}

func TestEvaluateCertificateFailure(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:audit")
	defer cleanup()

	e := NewEvaluator(fakeLoader{err: fmt.Errorf(`tls: failed to verify certificate: x509: certificate has expired`)})
	result, _ := e.Evaluate(context.Background(), "expired.example.com")

	require.Equal(t, ScoreUnreachable, result.Score)
	require.Len(t, result.Issues, 1)
	require.Contains(t, result.Issues[0], "certificate error")
}

func TestEvaluateHTTPError(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:audit")
	defer cleanup()

	page := newHealthyPage(t)
	page.Status = 404

	e := NewEvaluator(fakeLoader{page: page})
	result, _ := e.Evaluate(context.Background(), "https://cedargroveplumbing.example/")

	// every probe passes, so the fixed error base survives untouched
	require.Equal(t, ScoreHTTPError, result.Score)
	require.Contains(t, result.Issues, "website returned HTTP 404")
}

func TestEvaluateHealthyPage(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:audit")
	defer cleanup()

	e := NewEvaluator(fakeLoader{page: newHealthyPage(t)})
	result, page := e.Evaluate(context.Background(), "cedargroveplumbing.example")

	require.NotNil(t, page)
	require.Equal(t, 100, result.Score)
	require.Empty(t, result.Issues)
}

func TestEvaluateScoreStaysBounded(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:audit")
	defer cleanup()

	// a page that trips nearly every probe
	page := newTestPage(t, "http://bad.example/", `<html><head></head><body>
<img><img><img><img><img>
<p>nothing here</p>
</body></html>`)
	page.Status = 500
	page.LoadTime = time.Second * 10

	e := NewEvaluator(fakeLoader{page: page})
	result, _ := e.Evaluate(context.Background(), "bad.example")

	require.GreaterOrEqual(t, result.Score, 0)
	require.LessOrEqual(t, result.Score, 100)
	require.NotEmpty(t, result.Issues)
	require.Equal(t, "website returned HTTP 500", result.Issues[0])
}
