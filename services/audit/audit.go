// Package audit loads a candidate business website and reduces a fixed
// battery of heuristic probes into a single bounded quality score with a
// human-readable issue list.
package audit

import (
	"context"
	"crypto/tls"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Finding is one penalty-bearing observation produced by a probe. SEO
// findings are pooled into a damped sub-score instead of applying
// point-for-point.
type Finding struct {
	Penalty int
	Message string
	SEO     bool
}

// Result is the outcome of one website load attempt. Score is always
// within [0, 100]; Issues keep probe execution order.
type Result struct {
	Score  int
	Issues []string
}

// Page is one loaded website plus the connection metadata probes inspect.
type Page struct {
	// final url after redirects
	URL    *url.URL
	Status int
	Doc    *goquery.Document
	Raw    []byte
	// wall time of the initial document request
	LoadTime time.Duration
	TLS      *tls.ConnectionState
	// status per sampled <img> source, keyed by resolved absolute url.
	// 0 means the fetch itself failed.
	ImageStatus map[string]int
	FetchedAt   time.Time
}

type CaptureKind int

const (
	// the raw document bytes as served
	CaptureDocument CaptureKind = iota
	// the social preview image advertised by the page, if any
	CapturePreview
)

type PageLoader interface {
	Load(ctx context.Context, pageURL string) (*Page, error)
	Capture(ctx context.Context, page *Page, kind CaptureKind) ([]byte, error)
}
