package audit

const (
	// ceiling for a page that loaded without incident
	ScoreCeiling = 100
	// fixed floor when the page cannot be reached at all
	ScoreUnreachable = 10
	// fixed base when the page loads but reports an HTTP error status
	ScoreHTTPError = 15

	seoContributionCap = 20
	seoDampingDivisor  = 4
)

// Reduce folds findings into a bounded score and an issue list, pure and
// idempotent. base is ScoreCeiling for a healthy load or the fixed base
// set by the evaluator when the load already failed in a known way.
// General penalties subtract point-for-point; SEO penalties are summed,
// damped by seoDampingDivisor and capped at seoContributionCap so SEO
// issues alone cannot dominate the score. Issues keep input order.
func Reduce(base int, findings []Finding) (int, []string) {
	score := base
	seoTotal := 0
	issues := make([]string, 0, len(findings))

	for _, f := range findings {
		issues = append(issues, f.Message)
		if f.SEO {
			seoTotal += f.Penalty
			continue
		}
		score -= f.Penalty
	}

	if seoTotal > 0 {
		damped := seoTotal / seoDampingDivisor
		if damped > seoContributionCap {
			damped = seoContributionCap
		}
		score -= damped
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, issues
}
