package audit

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"strings"
	"time"

	"leadscout/lib/htmlutil"
	"leadscout/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

type LoaderOptions struct {
	// per-document load timeout, defaults to 15s
	Timeout time.Duration
	// how many <img> sources to verify per page, defaults to 8
	MaxImageChecks int
	UserAgent      string
}

// Loader fetches third-party pages over plain HTTP. One short-lived
// request cycle per evaluated site; only the client is reused.
type Loader struct {
	http           *resty.Client
	maxImageChecks int
}

func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 15
	}
	if opts.MaxImageChecks == 0 {
		opts.MaxImageChecks = 8
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	telemetry.InstrumentResty(client, "services/audit/loader")

	return &Loader{
		http:           client,
		maxImageChecks: opts.MaxImageChecks,
	}, nil
}

func (l *Loader) Load(ctx context.Context, pageURL string) (*Page, error) {
	start := time.Now()
	res, err := l.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, err
	}
	loadTime := time.Since(start)

	body := res.Body()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	page := &Page{
		URL:       res.RawResponse.Request.URL,
		Status:    res.StatusCode(),
		Doc:       doc,
		Raw:       body,
		LoadTime:  loadTime,
		TLS:       res.RawResponse.TLS,
		FetchedAt: time.Now(),
	}
	page.ImageStatus = l.checkImages(ctx, page)
	return page, nil
}

// verifies a bounded sample of image sources so the broken-image probe
// can stay a pure function of the page
func (l *Loader) checkImages(ctx context.Context, page *Page) map[string]int {
	statuses := map[string]int{}

	page.Doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(statuses) >= l.maxImageChecks {
			return false
		}
		src, ok := sel.Attr("src")
		if !ok || skipImageSource(src) {
			return true
		}
		ref, err := page.URL.Parse(src)
		if err != nil {
			return true
		}
		abs := ref.String()
		if _, seen := statuses[abs]; seen {
			return true
		}

		res, err := l.http.R().SetContext(ctx).Get(abs)
		if err != nil {
			statuses[abs] = 0
			return true
		}
		statuses[abs] = res.StatusCode()
		return true
	})

	return statuses
}

// SVGs, inline data URIs and tracking pixels are excluded from
// broken-image accounting
func skipImageSource(src string) bool {
	src = strings.ToLower(strings.TrimSpace(src))
	return src == "" ||
		strings.HasPrefix(src, "data:") ||
		strings.HasSuffix(src, ".svg") ||
		strings.Contains(src, ".svg?")
}

func (l *Loader) Capture(ctx context.Context, page *Page, kind CaptureKind) ([]byte, error) {
	switch kind {
	case CaptureDocument:
		return page.Raw, nil
	case CapturePreview:
		imageURL, ok := htmlutil.MetaContent(page.Doc, "og:image")
		if !ok || imageURL == "" {
			return nil, fmt.Errorf("page advertises no preview image")
		}
		ref, err := page.URL.Parse(imageURL)
		if err != nil {
			return nil, err
		}
		res, err := l.http.R().SetContext(ctx).Get(ref.String())
		if err != nil {
			return nil, err
		}
		if res.StatusCode() >= 400 {
			return nil, fmt.Errorf("preview image returned HTTP %d", res.StatusCode())
		}
		return res.Body(), nil
	}
	return nil, fmt.Errorf("unknown capture kind %d", kind)
}
