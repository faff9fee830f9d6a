package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/audit")

// Evaluator runs the probe battery against a candidate website. It has
// exactly three terminal paths: unreachable, reachable-with-error-status
// (probes still run) and reachable.
type Evaluator struct {
	loader PageLoader
	probes []Probe
}

func NewEvaluator(loader PageLoader) Evaluator {
	return Evaluator{
		loader: loader,
		probes: Battery(),
	}
}

// prepends https:// when the scheme is absent
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

// Evaluate is total: every internal fault is converted into a degraded
// Result, it never returns an error to the discovery loop. The returned
// Page is nil when the site could not be loaded.
func (e Evaluator) Evaluate(ctx context.Context, rawURL string) (Result, *Page) {
	ctx, span := tracer.Start(ctx, "Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	target := NormalizeURL(rawURL)

	page, err := e.loader.Load(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page load failed")
		slog.WarnContext(ctx, "page load failed", "url", target, "err", err)
		return Result{
			Score:  ScoreUnreachable,
			Issues: []string{classifyLoadFailure(err)},
		}, nil
	}

	base := ScoreCeiling
	var findings []Finding
	if page.Status >= 400 {
		base = ScoreHTTPError
		findings = append(findings, Finding{
			Message: fmt.Sprintf("website returned HTTP %d", page.Status),
		})
	}

	for _, probe := range e.probes {
		findings = append(findings, probe.Run(ctx, page)...)
	}

	score, issues := Reduce(base, findings)
	span.SetAttributes(
		attribute.Int("score", score),
		attribute.Int("issues", len(issues)),
	)
	slog.DebugContext(ctx, "evaluated website",
		"url", target, "status", page.Status, "score", score, "issues", len(issues))

	return Result{Score: score, Issues: issues}, page
}

// a certificate problem reads very differently to a lead than a site
// that is simply down, keep the classes apart
func classifyLoadFailure(err error) string {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "x509") ||
		strings.Contains(lower, "certificate") ||
		strings.Contains(lower, "tls:") {
		return fmt.Sprintf("certificate error: %s", msg)
	}
	return fmt.Sprintf("site unreachable: %s", msg)
}
