package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("leadscout.lib.htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// non-printable runes become spaces so words separated only by a
// newline or tab do not get glued together
func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		} else {
			newStr.WriteRune(' ')
		}
	}
	return newStr.String()
}

// collapses runs of whitespace and strips non-printable runes,
// feed markup is full of both.
func NormalizeText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

type Anchor struct {
	Name string
	Href string
}

func GetAnchors(ctx context.Context, sel *goquery.Selection) []Anchor {
	ctx, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}

		anchors = append(anchors, Anchor{
			Name: NormalizeText(GetText(n)),
			Href: link.String(),
		})
	}

	return anchors
}

// content of the first matching <meta name=...> or <meta property=...> tag
func MetaContent(doc *goquery.Document, name string) (string, bool) {
	var content string
	var found bool
	doc.Find("meta").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		n, _ := sel.Attr("name")
		p, _ := sel.Attr("property")
		if !strings.EqualFold(n, name) && !strings.EqualFold(p, name) {
			return true
		}
		content, found = sel.Attr("content")
		return false
	})
	return strings.TrimSpace(content), found
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// pulls every plausible 4-digit year out of a blob of text
func ExtractYears(text string) []int {
	var years []int
	for _, m := range yearPattern.FindAllString(text, -1) {
		y, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	return years
}

var pixelWidth = regexp.MustCompile(`width\s*:\s*(\d+)px`)

// the largest explicit pixel width declared on the selection, either
// through a width attribute or an inline style. 0 when none is declared.
func MaxDeclaredWidth(sel *goquery.Selection) int {
	max := 0
	sel.Each(func(_ int, s *goquery.Selection) {
		if attr, ok := s.Attr("width"); ok {
			if w, err := strconv.Atoi(strings.TrimSuffix(attr, "px")); err == nil && w > max {
				max = w
			}
		}
		if style, ok := s.Attr("style"); ok {
			groups := pixelWidth.FindStringSubmatch(style)
			if len(groups) > 1 {
				if w, err := strconv.Atoi(groups[1]); err == nil && w > max {
					max = w
				}
			}
		}
	})
	return max
}
