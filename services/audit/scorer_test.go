package audit

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestReduce(t *testing.T) {
	testCases := []struct {
		name     string
		base     int
		findings []Finding
		score    int
		issues   []string
	}{
		{
			name:   "no findings keeps the ceiling",
			base:   100,
			score:  100,
			issues: []string{},
		},
		{
			name: "general penalties subtract point for point",
			base: 100,
			findings: []Finding{
				{Penalty: 15, Message: "missing mobile viewport meta tag"},
				{Penalty: 10, Message: "page took 4000ms to load"},
			},
			score:  75,
			issues: []string{"missing mobile viewport meta tag", "page took 4000ms to load"},
		},
		{
			name: "seo penalties are damped",
			base: 100,
			findings: []Finding{
				{Penalty: 10, Message: "missing page title", SEO: true},
				{Penalty: 6, Message: "no H1 heading", SEO: true},
			},
			// (10 + 6) / 4 = 4
			score:  96,
			issues: []string{"missing page title", "no H1 heading"},
		},
		{
			name: "seo contribution is capped at 20",
			base: 100,
			findings: []Finding{
				{Penalty: 60, Message: "a", SEO: true},
				{Penalty: 60, Message: "b", SEO: true},
			},
			score:  80,
			issues: []string{"a", "b"},
		},
		{
			name: "score floors at zero",
			base: 15,
			findings: []Finding{
				{Penalty: 20, Message: "site is not served over HTTPS"},
				{Penalty: 10, Message: "no contact channel (phone, email, or form) found"},
			},
			score:  0,
			issues: []string{"site is not served over HTTPS", "no contact channel (phone, email, or form) found"},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			score, issues := Reduce(test.base, test.findings)
			require.Equal(t, test.score, score)
			diff := cmp.Diff(test.issues, issues)
			if diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestReduceIdempotent(t *testing.T) {
	findings := []Finding{
		{Penalty: 15, Message: "missing mobile viewport meta tag"},
		{Penalty: 8, Message: "missing meta description", SEO: true},
		{Penalty: 5, Message: "no social media links found"},
	}

	score1, issues1 := Reduce(100, findings)
	score2, issues2 := Reduce(100, findings)
	require.Equal(t, score1, score2)
	require.Equal(t, issues1, issues2)
}

func TestReduceMonotone(t *testing.T) {
	base := []Finding{
		{Penalty: 10, Message: "page took 5000ms to load"},
		{Penalty: 4, Message: "meta description length out of range", SEO: true},
	}
	extras := []Finding{
		{Penalty: 5, Message: "no social media links found"},
		{Penalty: 3, Message: "missing canonical link", SEO: true},
		{Penalty: 0, Message: "website returned HTTP 500"},
	}

	baseScore, _ := Reduce(100, base)
	for _, extra := range extras {
		score, _ := Reduce(100, append(append([]Finding{}, base...), extra))
		require.LessOrEqual(t, score, baseScore, "adding %q must never raise the score", extra.Message)
	}
}

func TestReduceBounds(t *testing.T) {
	score, _ := Reduce(100, []Finding{{Penalty: 500, Message: "x"}})
	require.Equal(t, 0, score)

	score, _ = Reduce(100, nil)
	require.Equal(t, 100, score)
}
