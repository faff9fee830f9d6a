// Package gmaps implements feed navigation over a map-search results
// frontend. Retrieval is paged: every RequestMore fetches the next page
// of result cards and appends them to the visible set, mirroring how
// the live feed loads more entries as you scroll.
package gmaps

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"leadscout/lib/htmlutil"
	"leadscout/lib/telemetry"
	"leadscout/services/discovery"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/feeds/gmaps")

// result card markup served by the maps-proxy frontend
const (
	selResultCard   = "div[data-result-id]"
	selTitle        = ".result-title"
	selRating       = ".result-rating"
	selAddress      = ".result-address"
	selPhone        = ".result-phone"
	selWebsite      = "a.result-website"
	selDetailLink   = "a.result-detail"
	selEndOfResults = ".no-more-results"
)

type ClientOptions struct {
	// search frontend endpoint, e.g. http://localhost:8090/search
	BaseURL  string
	Query    string
	Location string
	// results requested per page, defaults to 20
	PageSize int
	// base pause between page fetches, jittered upward; defaults to 2s
	PageDelay time.Duration
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	http *resty.Client
	opts ClientOptions

	offset     int
	entries    []discovery.Entry
	fetched    bool
	reachedEnd bool
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("feed base url is required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.PageDelay == 0 {
		opts.PageDelay = time.Second * 2
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
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

	telemetry.InstrumentResty(client, "lib/feeds/gmaps")

	return &Client{http: client, opts: opts}, nil
}

func (c *Client) VisibleEntries(ctx context.Context) ([]discovery.Entry, error) {
	if !c.fetched {
		if err := c.fetchPage(ctx); err != nil {
			return nil, err
		}
		c.fetched = true
	}
	return c.entries, nil
}

// fetches the next result page. returns false once the feed has
// signalled its end; duplicate cards across pages are fine, the
// discovery engine dedups.
func (c *Client) RequestMore(ctx context.Context) (bool, error) {
	if c.reachedEnd {
		return false, nil
	}

	sleepJittered(ctx, c.opts.PageDelay)

	c.offset += c.opts.PageSize
	if err := c.fetchPage(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) ReachedEnd() bool {
	return c.reachedEnd
}

func (c *Client) fetchPage(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "fetchPage")
	defer span.End()
	span.SetAttributes(attribute.Int("offset", c.offset))

	query := url.Values{}
	query.Set("q", fmt.Sprintf("%s %s", c.opts.Query, c.opts.Location))
	query.Set("start", strconv.Itoa(c.offset))
	query.Set("num", strconv.Itoa(c.opts.PageSize))

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Get(c.opts.BaseURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed page fetch failed")
		return err
	}
	if res.StatusCode() >= 400 {
		err := fmt.Errorf("feed returned HTTP %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed rejected page request")
		return err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("parse feed page: %w", err)
	}

	cards := doc.Find(selResultCard)
	if cards.Length() == 0 || doc.Find(selEndOfResults).Length() > 0 {
		c.reachedEnd = true
	}

	cards.Each(func(_ int, card *goquery.Selection) {
		e := c.parseCard(card)
		if e != nil {
			c.entries = append(c.entries, e)
		}
	})

	span.SetAttributes(
		attribute.Int("cards", cards.Length()),
		attribute.Int("visible", len(c.entries)),
	)
	return nil
}

func (c *Client) parseCard(card *goquery.Selection) *entry {
	name := htmlutil.NormalizeText(card.Find(selTitle).First().Text())
	if name == "" {
		return nil
	}

	e := &entry{client: c, name: name}
	e.address = optionalText(card, selAddress)
	e.phone = optionalText(card, selPhone)
	e.rating = optionalText(card, selRating)

	if href, ok := card.Find(selWebsite).First().Attr("href"); ok && href != "" {
		e.website = &href
	}
	if href, ok := card.Find(selDetailLink).First().Attr("href"); ok && href != "" {
		if resolved, err := url.Parse(c.opts.BaseURL); err == nil {
			if ref, err := resolved.Parse(href); err == nil {
				e.detailURL = ref.String()
			}
		}
	}
	return e
}

func optionalText(card *goquery.Selection, selector string) *string {
	text := htmlutil.NormalizeText(card.Find(selector).First().Text())
	if text == "" {
		return nil
	}
	return &text
}

type entry struct {
	client *Client

	name      string
	address   *string
	phone     *string
	rating    *string
	website   *string
	detailURL string
	revealed  bool
}

func (e *entry) Name() string {
	return e.name
}

// returns the card's fields, fetching the detail page once when the
// card itself left some of them blank
func (e *entry) Details(ctx context.Context) (discovery.Details, error) {
	missing := e.address == nil || e.phone == nil || e.website == nil
	if missing && e.detailURL != "" && !e.revealed {
		e.revealed = true
		if err := e.fetchDetail(ctx); err != nil {
			// partial card data is still usable
			return e.details(), err
		}
	}
	return e.details(), nil
}

func (e *entry) details() discovery.Details {
	return discovery.Details{
		Address: e.address,
		Phone:   e.phone,
		Rating:  e.rating,
		Website: e.website,
	}
}

func (e *entry) fetchDetail(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "fetchDetail")
	defer span.End()
	span.SetAttributes(attribute.String("url", e.detailURL))

	res, err := e.client.http.R().SetContext(ctx).Get(e.detailURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detail fetch failed")
		return err
	}
	if res.StatusCode() >= 400 {
		err := fmt.Errorf("detail page returned HTTP %d", res.StatusCode())
		span.RecordError(err)
		return err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("parse detail page: %w", err)
	}

	if e.address == nil {
		e.address = optionalText(doc.Selection, selAddress)
	}
	if e.phone == nil {
		e.phone = optionalText(doc.Selection, selPhone)
	}
	if e.rating == nil {
		e.rating = optionalText(doc.Selection, selRating)
	}
	if e.website == nil {
		if href, ok := doc.Find(selWebsite).First().Attr("href"); ok && href != "" {
			e.website = &href
		}
	}
	return nil
}
