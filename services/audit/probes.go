package audit

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"leadscout/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	penaltyNoViewport     = 15
	penaltySlowLoad       = 10
	penaltyNoHTTPS        = 20
	penaltyCertExpired    = 15
	penaltyCertExpiring   = 5
	penaltyMixedContent   = 8
	penaltyNarrowOverflow = 8
	penaltyMissingAlt     = 8
	penaltyNoSocial       = 5
	penaltyNoContact      = 10
	penaltyStaleFooter    = 5
	penaltyBrokenImage    = 3
	brokenImagePenaltyCap = 12

	seoPenaltyNoTitle        = 10
	seoPenaltyShortTitle     = 5
	seoPenaltyLongTitle      = 3
	seoPenaltyNoDescription  = 8
	seoPenaltyBadDescription = 4
	seoPenaltyNoH1           = 6
	seoPenaltyMultipleH1     = 4
	seoPenaltyNoH2           = 3
	seoPenaltyNoCanonical    = 3
	seoPenaltyNoRobots       = 2
	seoPenaltyNoindex        = 10
	seoPenaltyNoJSONLD       = 4
	seoPenaltyNoOpenGraph    = 3
	seoPenaltyNoViewport     = 5

	slowLoadThreshold    = 3 * time.Second
	certExpiryWindowDays = 30
	missingAltThreshold  = 0.30
	narrowViewportWidth  = 480
)

// Probe is a single stateless heuristic check over a loaded page.
type Probe struct {
	Name string
	Run  func(ctx context.Context, page *Page) []Finding
}

// Battery returns the probes in their fixed execution order. Issue
// ordering in results depends on this order, do not shuffle it.
func Battery() []Probe {
	return []Probe{
		{Name: "viewport", Run: probeViewport},
		{Name: "load_time", Run: probeLoadTime},
		{Name: "transport_security", Run: probeTransportSecurity},
		{Name: "narrow_viewport", Run: probeNarrowViewport},
		{Name: "seo", Run: probeSEO},
		{Name: "image_alt", Run: probeImageAlt},
		{Name: "social_links", Run: probeSocialLinks},
		{Name: "contact_channels", Run: probeContactChannels},
		{Name: "copyright_year", Run: probeCopyrightYear},
		{Name: "broken_images", Run: probeBrokenImages},
	}
}

func hasViewportMeta(doc *goquery.Document) bool {
	_, ok := htmlutil.MetaContent(doc, "viewport")
	return ok
}

func probeViewport(_ context.Context, page *Page) []Finding {
	if hasViewportMeta(page.Doc) {
		return nil
	}
	return []Finding{{
		Penalty: penaltyNoViewport,
		Message: "missing mobile viewport meta tag",
	}}
}

func probeLoadTime(_ context.Context, page *Page) []Finding {
	if page.LoadTime <= slowLoadThreshold {
		return nil
	}
	return []Finding{{
		Penalty: penaltySlowLoad,
		Message: fmt.Sprintf("page took %dms to load", page.LoadTime.Milliseconds()),
	}}
}

func probeTransportSecurity(_ context.Context, page *Page) []Finding {
	var findings []Finding

	if page.URL.Scheme != "https" {
		findings = append(findings, Finding{
			Penalty: penaltyNoHTTPS,
			Message: "site is not served over HTTPS",
		})
	} else if page.TLS != nil && len(page.TLS.PeerCertificates) > 0 {
		cert := page.TLS.PeerCertificates[0]
		// whole days, floored, negative once expired
		days := int(math.Floor(cert.NotAfter.Sub(page.FetchedAt).Seconds() / 86400))
		if days < 0 {
			findings = append(findings, Finding{
				Penalty: penaltyCertExpired,
				Message: fmt.Sprintf("SSL certificate expired %d days ago", -days),
			})
		} else if days <= certExpiryWindowDays {
			findings = append(findings, Finding{
				Penalty: penaltyCertExpiring,
				Message: fmt.Sprintf("SSL certificate expires in %d days", days),
			})
		}
	}

	if page.URL.Scheme == "https" {
		mixed := countInsecureResources(page.Doc)
		if mixed > 0 {
			findings = append(findings, Finding{
				Penalty: penaltyMixedContent,
				Message: fmt.Sprintf("%d resources loaded over insecure HTTP", mixed),
			})
		}
	}

	return findings
}

func countInsecureResources(doc *goquery.Document) int {
	count := 0
	doc.Find("img[src], script[src], iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if strings.HasPrefix(strings.ToLower(src), "http://") {
			count++
		}
	})
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if strings.HasPrefix(strings.ToLower(href), "http://") {
			count++
		}
	})
	return count
}

func probeNarrowViewport(_ context.Context, page *Page) []Finding {
	width := htmlutil.MaxDeclaredWidth(page.Doc.Find("body *"))
	if width <= narrowViewportWidth {
		return nil
	}
	return []Finding{{
		Penalty: penaltyNarrowOverflow,
		Message: fmt.Sprintf("fixed-width element (%dpx) overflows a %dpx viewport", width, narrowViewportWidth),
	}}
}

func probeSEO(_ context.Context, page *Page) []Finding {
	doc := page.Doc
	var findings []Finding
	seo := func(penalty int, message string) {
		findings = append(findings, Finding{Penalty: penalty, Message: message, SEO: true})
	}

	// character bounds count runes, accented titles are not longer than
	// they look
	title := htmlutil.NormalizeText(doc.Find("title").First().Text())
	titleLen := utf8.RuneCountInString(title)
	switch {
	case title == "":
		seo(seoPenaltyNoTitle, "missing page title")
	case titleLen < 10:
		seo(seoPenaltyShortTitle, fmt.Sprintf("page title is too short (%d chars)", titleLen))
	case titleLen > 70:
		seo(seoPenaltyLongTitle, fmt.Sprintf("page title is too long (%d chars)", titleLen))
	}

	desc, hasDesc := htmlutil.MetaContent(doc, "description")
	descLen := utf8.RuneCountInString(desc)
	switch {
	case !hasDesc || desc == "":
		seo(seoPenaltyNoDescription, "missing meta description")
	case descLen < 50 || descLen > 160:
		seo(seoPenaltyBadDescription, fmt.Sprintf("meta description length out of range (%d chars)", descLen))
	}

	switch h1 := doc.Find("h1").Length(); {
	case h1 == 0:
		seo(seoPenaltyNoH1, "no H1 heading")
	case h1 > 1:
		seo(seoPenaltyMultipleH1, fmt.Sprintf("multiple H1 headings (%d)", h1))
	}
	if doc.Find("h2").Length() == 0 {
		seo(seoPenaltyNoH2, "no H2 headings")
	}

	if doc.Find(`link[rel="canonical"]`).Length() == 0 {
		seo(seoPenaltyNoCanonical, "missing canonical link")
	}

	robots, hasRobots := htmlutil.MetaContent(doc, "robots")
	if !hasRobots {
		seo(seoPenaltyNoRobots, "missing robots meta tag")
	} else if strings.Contains(strings.ToLower(robots), "noindex") {
		seo(seoPenaltyNoindex, "robots meta tag blocks indexing")
	}

	if doc.Find(`script[type="application/ld+json"]`).Length() == 0 {
		seo(seoPenaltyNoJSONLD, "no structured data (JSON-LD) found")
	}

	_, hasOgTitle := htmlutil.MetaContent(doc, "og:title")
	_, hasOgImage := htmlutil.MetaContent(doc, "og:image")
	if !hasOgTitle && !hasOgImage {
		seo(seoPenaltyNoOpenGraph, "missing social preview (Open Graph) tags")
	}

	if !hasViewportMeta(doc) {
		seo(seoPenaltyNoViewport, "viewport meta tag missing from head")
	}

	return findings
}

func probeImageAlt(_ context.Context, page *Page) []Finding {
	images := page.Doc.Find("img")
	total := images.Length()
	if total == 0 {
		return nil
	}

	missing := 0
	images.Each(func(_ int, sel *goquery.Selection) {
		alt, ok := sel.Attr("alt")
		if !ok || strings.TrimSpace(alt) == "" {
			missing++
		}
	})

	ratio := float64(missing) / float64(total)
	if ratio <= missingAltThreshold {
		return nil
	}
	return []Finding{{
		Penalty: penaltyMissingAlt,
		Message: fmt.Sprintf("%d%% of images lack alt text", int(ratio*100)),
	}}
}

var socialHosts = []string{
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"linkedin.com",
	"youtube.com",
	"tiktok.com",
}

func probeSocialLinks(_ context.Context, page *Page) []Finding {
	found := false
	page.Doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.ToLower(href)
		for _, host := range socialHosts {
			if strings.Contains(href, host) {
				found = true
				return false
			}
		}
		return true
	})

	if found {
		return nil
	}
	return []Finding{{
		Penalty: penaltyNoSocial,
		Message: "no social media links found",
	}}
}

var phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func probeContactChannels(_ context.Context, page *Page) []Finding {
	doc := page.Doc

	hasForm := doc.Find("form").Length() > 0
	hasTelLink := doc.Find(`a[href^="tel:"]`).Length() > 0
	hasMailLink := doc.Find(`a[href^="mailto:"]`).Length() > 0

	text := doc.Find("body").Text()
	hasPhone := hasTelLink || phonePattern.MatchString(text)
	hasEmail := hasMailLink || emailPattern.MatchString(text)

	// only penalized when every channel is absent
	if hasPhone || hasEmail || hasForm {
		return nil
	}
	return []Finding{{
		Penalty: penaltyNoContact,
		Message: "no contact channel (phone, email, or form) found",
	}}
}

func probeCopyrightYear(_ context.Context, page *Page) []Finding {
	text := page.Doc.Find("footer, .footer, #footer, .copyright, #copyright, small").Text()
	years := htmlutil.ExtractYears(text)
	if len(years) == 0 {
		return nil
	}

	latest := years[0]
	for _, y := range years[1:] {
		if y > latest {
			latest = y
		}
	}

	if latest >= page.FetchedAt.Year()-1 {
		return nil
	}
	return []Finding{{
		Penalty: penaltyStaleFooter,
		Message: fmt.Sprintf("copyright year %d is out of date", latest),
	}}
}

func probeBrokenImages(_ context.Context, page *Page) []Finding {
	broken := 0
	page.Doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		if isTrackingPixel(sel) {
			return
		}
		src, ok := sel.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			broken++
			return
		}
		if skipImageSource(src) {
			return
		}
		ref, err := page.URL.Parse(src)
		if err != nil {
			broken++
			return
		}
		status, checked := page.ImageStatus[ref.String()]
		if checked && (status == 0 || status >= 400) {
			broken++
		}
	})

	if broken == 0 {
		return nil
	}
	penalty := broken * penaltyBrokenImage
	if penalty > brokenImagePenaltyCap {
		penalty = brokenImagePenaltyCap
	}
	return []Finding{{
		Penalty: penalty,
		Message: fmt.Sprintf("%d broken images on the page", broken),
	}}
}

func isTrackingPixel(sel *goquery.Selection) bool {
	small := func(attr string) bool {
		v, ok := sel.Attr(attr)
		if !ok {
			return false
		}
		return v == "0" || v == "1" || v == "2"
	}
	return small("width") && small("height")
}
