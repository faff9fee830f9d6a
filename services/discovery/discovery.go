// Package discovery pages through a map-style result feed, deduplicates
// business listings across scroll boundaries, evaluates each discovered
// website, and decides when the feed is exhausted.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"leadscout/lib/htmlutil"
	"leadscout/services/audit"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/discovery")

// Details are the fields a feed entry reveals on demand. Absent fields
// stay nil so "missing" is distinguishable from "empty".
type Details struct {
	Address *string
	Phone   *string
	Rating  *string
	Website *string
}

// Entry is one visible feed result: a display name plus a trigger to
// reveal its detail fields.
type Entry interface {
	Name() string
	Details(ctx context.Context) (Details, error)
}

// Feed is the navigation contract over an incrementally-loading result
// list.
type Feed interface {
	VisibleEntries(ctx context.Context) ([]Entry, error)
	RequestMore(ctx context.Context) (bool, error)
	ReachedEnd() bool
}

type Evaluator interface {
	Evaluate(ctx context.Context, url string) (audit.Result, *audit.Page)
}

// Listing is immutable once created. Category and Location are session
// tags, not business attributes.
type Listing struct {
	Name     string
	Address  *string
	Phone    *string
	Rating   *string
	Website  *string
	Category string
	Location string
}

type Lead struct {
	Listing    Listing
	Evaluation *audit.Result
	// raw bytes of the evaluated page, for report handoff
	Snapshot []byte
	// no website at all, or a website scoring at or below the session
	// quality threshold
	Qualified bool
}

type Request struct {
	Query    string
	Location string
	MaxItems int
	// scores at or below this mark a lead as qualified
	QualityThreshold int
}

const (
	// consecutive no-new-name iterations before giving up on the feed
	noProgressLimit = 5
	feedRetryLimit  = 3
	// jaro-winkler similarity above which two distinct names are flagged
	// as probable duplicates
	nearDuplicateSimilarity = 0.93

	defaultMaxItems = 20
)

type Engine struct {
	feed      Feed
	evaluator Evaluator
}

func NewEngine(feed Feed, evaluator Evaluator) *Engine {
	return &Engine{feed: feed, evaluator: evaluator}
}

// session state is owned by one Discover call and discarded at its end
type session struct {
	seenNames    map[string]struct{}
	seenWebsites map[string]struct{}
	collected    []Lead
	noProgress   int
}

// Discover sweeps the feed until MaxItems listings are collected, the
// feed reports its end, or noProgressLimit consecutive sweeps add
// nothing new. Per-entry failures are logged and skipped; feed
// navigation failures after retries end the run with whatever has been
// collected. Only a feed that cannot be read at all at session start is
// an error.
func (e *Engine) Discover(ctx context.Context, req Request) ([]Lead, error) {
	ctx, span := tracer.Start(ctx, "Discover")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", req.Query),
		attribute.String("location", req.Location),
		attribute.Int("max_items", req.MaxItems),
	)

	if req.MaxItems <= 0 {
		req.MaxItems = defaultMaxItems
	}

	s := &session{
		seenNames:    map[string]struct{}{},
		seenWebsites: map[string]struct{}{},
	}

	entries, err := e.visibleWithRetry(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed unreachable at session start")
		return nil, fmt.Errorf("reach feed: %w", err)
	}

	for {
		newNames := e.sweep(ctx, entries, req, s)

		if len(s.collected) >= req.MaxItems {
			slog.InfoContext(ctx, "discovery reached item limit", "collected", len(s.collected))
			break
		}
		if e.feed.ReachedEnd() {
			slog.InfoContext(ctx, "feed reported end of results", "collected", len(s.collected))
			break
		}

		if newNames == 0 {
			s.noProgress++
			if s.noProgress >= noProgressLimit {
				slog.InfoContext(ctx, "no new listings after repeated sweeps, stopping",
					"iterations", s.noProgress, "collected", len(s.collected))
				break
			}
		} else {
			s.noProgress = 0
		}

		if _, err := e.requestMoreWithRetry(ctx); err != nil {
			slog.WarnContext(ctx, "feed navigation failed, keeping partial results", "err", err)
			break
		}

		entries, err = e.visibleWithRetry(ctx)
		if err != nil {
			slog.WarnContext(ctx, "feed became unreadable, keeping partial results", "err", err)
			break
		}
	}

	span.SetAttributes(attribute.Int("collected", len(s.collected)))
	return s.collected, nil
}

// one pass over the currently-visible entries; returns how many
// previously-unseen names it added
func (e *Engine) sweep(ctx context.Context, entries []Entry, req Request, s *session) int {
	newNames := 0
	for _, entry := range entries {
		if len(s.collected) >= req.MaxItems {
			break
		}

		name := normalizeName(entry.Name())
		if name == "" {
			continue
		}
		if _, seen := s.seenNames[name]; seen {
			continue
		}
		s.flagNearDuplicates(ctx, name)
		s.seenNames[name] = struct{}{}
		newNames++

		lead, ok := e.superviseEntry(ctx, entry, req, s)
		if !ok {
			continue
		}
		s.collected = append(s.collected, lead)
	}
	return newNames
}

// isolates one entry: a panic or failure here is logged and the sweep
// moves on
func (e *Engine) superviseEntry(ctx context.Context, entry Entry, req Request, s *session) (lead Lead, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "entry processing panicked, skipping entry",
				"name", entry.Name(), "panic", r)
			ok = false
		}
	}()
	return e.processEntry(ctx, entry, req, s), true
}

func (e *Engine) processEntry(ctx context.Context, entry Entry, req Request, s *session) Lead {
	ctx, span := tracer.Start(ctx, "processEntry")
	defer span.End()

	listing := Listing{
		Name:     strings.TrimSpace(entry.Name()),
		Category: req.Query,
		Location: req.Location,
	}
	span.SetAttributes(attribute.String("name", listing.Name))

	details, err := entry.Details(ctx)
	if err != nil {
		// feeds hand back whatever card fields they already parsed
		// alongside the error, keep them
		span.RecordError(err)
		slog.WarnContext(ctx, "detail extraction failed, keeping partial listing",
			"name", listing.Name, "err", err)
	}

	listing.Address = details.Address
	listing.Phone = details.Phone
	listing.Rating = details.Rating
	listing.Website = details.Website

	if details.Website == nil || strings.TrimSpace(*details.Website) == "" {
		listing.Website = nil
		return Lead{Listing: listing, Qualified: true}
	}

	target := audit.NormalizeURL(*details.Website)
	key := websiteKey(target)
	if _, dup := s.seenWebsites[key]; dup {
		// a different listing already resolved to this site this run;
		// record the listing but leave it unscored
		slog.DebugContext(ctx, "website already evaluated this run, leaving listing unscored",
			"name", listing.Name, "url", target)
		return Lead{Listing: listing}
	}
	s.seenWebsites[key] = struct{}{}

	result, page := e.evaluator.Evaluate(ctx, target)

	lead := Lead{
		Listing:    listing,
		Evaluation: &result,
		Qualified:  result.Score <= req.QualityThreshold,
	}
	if page != nil {
		s.seenWebsites[websiteKey(page.URL.String())] = struct{}{}
		lead.Snapshot = page.Raw
	}

	span.SetAttributes(attribute.Int("score", result.Score))
	return lead
}

func (e *Engine) visibleWithRetry(ctx context.Context) ([]Entry, error) {
	var lastErr error
	for attempt := 0; attempt < feedRetryLimit; attempt++ {
		entries, err := e.feed.VisibleEntries(ctx)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "reading visible entries failed", "attempt", attempt+1, "err", err)
	}
	return nil, lastErr
}

func (e *Engine) requestMoreWithRetry(ctx context.Context) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < feedRetryLimit; attempt++ {
		more, err := e.feed.RequestMore(ctx)
		if err == nil {
			return more, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "requesting more feed results failed", "attempt", attempt+1, "err", err)
	}
	return false, lastErr
}

// dedup identity within one run: trimmed, case-folded, whitespace
// collapsed
func normalizeName(name string) string {
	return strings.ToLower(htmlutil.NormalizeText(name))
}

// cross-listing website identity ignores scheme, www prefix and
// trailing slashes
func websiteKey(rawURL string) string {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

// exact-match dedup only; near-misses are logged so a later session can
// union them manually
func (s *session) flagNearDuplicates(ctx context.Context, name string) {
	for seen := range s.seenNames {
		if matchr.JaroWinkler(seen, name, false) > nearDuplicateSimilarity {
			slog.DebugContext(ctx, "listing name is a probable duplicate",
				"name", name, "existing", seen)
			return
		}
	}
}
