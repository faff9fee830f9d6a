package audit

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"leadscout/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func newTestPage(t testing.TB, rawURL, rawHTML string) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	require.NoError(t, err)
	u, err := url.Parse(rawURL)
	require.NoError(t, err)

	return &Page{
		URL:         u,
		Status:      200,
		Doc:         doc,
		Raw:         []byte(rawHTML),
		LoadTime:    time.Millisecond * 400,
		ImageStatus: map[string]int{},
		FetchedAt:   time.Now(),
	}
}

// a page that triggers no probe at all
func healthyHTML(year int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head>
<title>Cedar Grove Plumbing | Licensed Local Plumbers</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="description" content="Cedar Grove Plumbing offers licensed residential and commercial plumbing across the metro area.">
<meta name="robots" content="index, follow">
<meta property="og:title" content="Cedar Grove Plumbing">
<meta property="og:image" content="https://cedargroveplumbing.example/preview.jpg">
<link rel="canonical" href="https://cedargroveplumbing.example/">
<script type="application/ld+json">{"@type":"LocalBusiness"}</script>
</head><body>
<h1>Cedar Grove Plumbing</h1>
<h2>Our Services</h2>
<img src="https://cedargroveplumbing.example/crew.jpg" alt="Our crew at work">
<a href="https://facebook.com/cedargroveplumbing">Facebook</a>
<a href="tel:+15551234567">Call us</a>
<form action="/contact"><input name="email"></form>
<footer>© %d Cedar Grove Plumbing</footer>
</body></html>`, year)
}

func newHealthyPage(t testing.TB) *Page {
	page := newTestPage(t, "https://cedargroveplumbing.example/", healthyHTML(time.Now().Year()))
	page.ImageStatus["https://cedargroveplumbing.example/crew.jpg"] = 200
	return page
}

func TestHealthyPageHasNoFindings(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:audit")
	defer cleanup()

	page := newHealthyPage(t)
	for _, probe := range Battery() {
		findings := probe.Run(context.Background(), page)
		require.Empty(t, findings, "probe %q flagged a healthy page", probe.Name)
	}
}

func TestProbeViewport(t *testing.T) {
	page := newTestPage(t, "https://example.com/", `<html><head></head><body></body></html>`)
	findings := probeViewport(context.Background(), page)
	require.Len(t, findings, 1)
	require.Equal(t, penaltyNoViewport, findings[0].Penalty)
}

func TestProbeLoadTime(t *testing.T) {
	page := newHealthyPage(t)
	page.LoadTime = time.Second * 5
	findings := probeLoadTime(context.Background(), page)
	require.Len(t, findings, 1)
	require.Contains(t, findings[0].Message, "5000ms")
}

func TestProbeTransportSecurity(t *testing.T) {
	t.Run("plain http", func(t *testing.T) {
		page := newTestPage(t, "http://example.com/", `<html></html>`)
		findings := probeTransportSecurity(context.Background(), page)
		require.Len(t, findings, 1)
		require.Equal(t, penaltyNoHTTPS, findings[0].Penalty)
	})

	t.Run("certificate expired 10 days ago", func(t *testing.T) {
		page := newTestPage(t, "https://example.com/", `<html></html>`)
		page.TLS = &tls.ConnectionState{
			PeerCertificates: []*x509.Certificate{
				{NotAfter: page.FetchedAt.Add(-10 * 24 * time.Hour)},
			},
		}
		findings := probeTransportSecurity(context.Background(), page)
		require.Len(t, findings, 1)
		require.Equal(t, penaltyCertExpired, findings[0].Penalty)
		require.Equal(t, "SSL certificate expired 10 days ago", findings[0].Message)
	})

	t.Run("certificate expiring soon", func(t *testing.T) {
		page := newTestPage(t, "https://example.com/", `<html></html>`)
		page.TLS = &tls.ConnectionState{
			PeerCertificates: []*x509.Certificate{
				{NotAfter: page.FetchedAt.Add(12*24*time.Hour + time.Hour)},
			},
		}
		findings := probeTransportSecurity(context.Background(), page)
		require.Len(t, findings, 1)
		require.Equal(t, penaltyCertExpiring, findings[0].Penalty)
		require.Equal(t, "SSL certificate expires in 12 days", findings[0].Message)
	})

	t.Run("mixed content", func(t *testing.T) {
		page := newTestPage(t, "https://example.com/",
			`<html><body><img src="http://cdn.example.com/a.jpg"><script src="http://cdn.example.com/a.js"></script></body></html>`)
		findings := probeTransportSecurity(context.Background(), page)
		require.Len(t, findings, 1)
		require.Contains(t, findings[0].Message, "2 resources")
	})
}

func TestProbeNarrowViewport(t *testing.T) {
	page := newTestPage(t, "https://example.com/",
		`<html><body><table width="960"><tr><td>wide</td></tr></table></body></html>`)
	findings := probeNarrowViewport(context.Background(), page)
	require.Len(t, findings, 1)
	require.Contains(t, findings[0].Message, "960px")

	page = newTestPage(t, "https://example.com/",
		`<html><body><div style="width: 320px">narrow</div></body></html>`)
	require.Empty(t, probeNarrowViewport(context.Background(), page))
}

func TestProbeSEO(t *testing.T) {
	page := newTestPage(t, "https://example.com/", `<html><head></head><body></body></html>`)
	findings := probeSEO(context.Background(), page)

	messages := make([]string, len(findings))
	for i, f := range findings {
		require.True(t, f.SEO, "all findings from the SEO probe must be damped")
		messages[i] = f.Message
	}

	require.Contains(t, messages, "missing page title")
	require.Contains(t, messages, "missing meta description")
	require.Contains(t, messages, "no H1 heading")
	require.Contains(t, messages, "no H2 headings")
	require.Contains(t, messages, "missing canonical link")
	require.Contains(t, messages, "missing robots meta tag")
	require.Contains(t, messages, "no structured data (JSON-LD) found")
	require.Contains(t, messages, "missing social preview (Open Graph) tags")
	require.Contains(t, messages, "viewport meta tag missing from head")
}

func TestProbeSEOTitleRuneCount(t *testing.T) {
	// 9 letters but 10 bytes, still a short title
	page := newTestPage(t, "https://example.com/",
		`<html><head><title>Plombería</title></head><body></body></html>`)
	findings := probeSEO(context.Background(), page)
	messages := make([]string, len(findings))
	for i, f := range findings {
		messages[i] = f.Message
	}
	require.Contains(t, messages, "page title is too short (9 chars)")

	// 36 two-byte letters, within the 70 char bound even though the
	// byte length is not
	page = newTestPage(t, "https://example.com/",
		fmt.Sprintf(`<html><head><title>%s</title></head><body></body></html>`, strings.Repeat("é", 36)))
	for _, f := range probeSEO(context.Background(), page) {
		require.NotContains(t, f.Message, "page title is too long")
	}
}

func TestProbeSEONoindex(t *testing.T) {
	page := newTestPage(t, "https://example.com/",
		`<html><head><meta name="robots" content="noindex, nofollow"></head></html>`)
	findings := probeSEO(context.Background(), page)

	found := false
	for _, f := range findings {
		if f.Message == "robots meta tag blocks indexing" {
			found = true
			require.Equal(t, seoPenaltyNoindex, f.Penalty)
		}
	}
	require.True(t, found)
}

func TestProbeImageAlt(t *testing.T) {
	testCases := []struct {
		name    string
		html    string
		flagged bool
	}{
		{
			name:    "half missing",
			html:    `<html><body><img src="a.jpg"><img src="b.jpg" alt="b"></body></html>`,
			flagged: true,
		},
		{
			// 3 of 10 is exactly the 30% threshold, only strictly
			// above it gets flagged
			name:    "exactly at threshold",
			html:    `<html><body><img src="a.jpg"><img src="b.jpg"><img src="c.jpg"><img src="d.jpg" alt="d"><img src="e.jpg" alt="e"><img src="f.jpg" alt="f"><img src="g.jpg" alt="g"><img src="h.jpg" alt="h"><img src="i.jpg" alt="i"><img src="j.jpg" alt="j"></body></html>`,
			flagged: false,
		},
		{
			name:    "no images",
			html:    `<html><body></body></html>`,
			flagged: false,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			page := newTestPage(t, "https://example.com/", test.html)
			findings := probeImageAlt(context.Background(), page)
			if test.flagged {
				require.Len(t, findings, 1)
			} else {
				require.Empty(t, findings)
			}
		})
	}
}

func TestProbeContactChannels(t *testing.T) {
	page := newTestPage(t, "https://example.com/",
		`<html><body><p>Welcome to our site.</p></body></html>`)
	findings := probeContactChannels(context.Background(), page)
	require.Len(t, findings, 1)
	require.Equal(t, penaltyNoContact, findings[0].Penalty)

	// any single channel is enough
	page = newTestPage(t, "https://example.com/",
		`<html><body><form action="/contact"></form></body></html>`)
	require.Empty(t, probeContactChannels(context.Background(), page))

	page = newTestPage(t, "https://example.com/",
		`<html><body><p>Call (555) 123-4567 today</p></body></html>`)
	require.Empty(t, probeContactChannels(context.Background(), page))

	page = newTestPage(t, "https://example.com/",
		`<html><body><p>write to info@example.com</p></body></html>`)
	require.Empty(t, probeContactChannels(context.Background(), page))
}

func TestProbeCopyrightYear(t *testing.T) {
	year := time.Now().Year()

	page := newTestPage(t, "https://example.com/",
		fmt.Sprintf(`<html><body><footer>© %d Example Co</footer></body></html>`, year-3))
	findings := probeCopyrightYear(context.Background(), page)
	require.Len(t, findings, 1)
	require.Contains(t, findings[0].Message, fmt.Sprintf("%d", year-3))

	// one year behind is still acceptable
	page = newTestPage(t, "https://example.com/",
		fmt.Sprintf(`<html><body><footer>© %d Example Co</footer></body></html>`, year-1))
	require.Empty(t, probeCopyrightYear(context.Background(), page))

	// no year found, nothing to flag
	page = newTestPage(t, "https://example.com/",
		`<html><body><footer>Example Co</footer></body></html>`)
	require.Empty(t, probeCopyrightYear(context.Background(), page))
}

func TestProbeBrokenImages(t *testing.T) {
	page := newTestPage(t, "https://example.com/", `<html><body>
<img>
<img src="/found.jpg">
<img src="/missing.jpg">
<img src="/logo.svg">
<img src="data:image/png;base64,xyz">
<img src="/pixel.gif" width="1" height="1">
</body></html>`)
	page.ImageStatus["https://example.com/found.jpg"] = 200
	page.ImageStatus["https://example.com/missing.jpg"] = 404

	// sourceless + 404: svg, data uri and tracking pixel are excluded
	findings := probeBrokenImages(context.Background(), page)
	require.Len(t, findings, 1)
	require.Contains(t, findings[0].Message, "2 broken images")
	require.Equal(t, 2*penaltyBrokenImage, findings[0].Penalty)
}

func TestProbeBrokenImagesPenaltyCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		b.WriteString("<img>")
	}
	b.WriteString("</body></html>")

	page := newTestPage(t, "https://example.com/", b.String())
	findings := probeBrokenImages(context.Background(), page)
	require.Len(t, findings, 1)
	require.Equal(t, brokenImagePenaltyCap, findings[0].Penalty)
}
