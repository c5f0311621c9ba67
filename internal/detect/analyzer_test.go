package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobcheck/internal/config"
	"github.com/sells-group/jobcheck/internal/model"
)

var jackknife = model.Position{Role: "VP of HR", Company: "Jackknife, Inc"}

func TestAnalyze_SingleDatedJoinScores60(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	h := a.Analyze([]model.SearchResult{{
		Title:   "Jim Hanson",
		Snippet: "Jim Hanson joins Realknife, LLC as Talent Business Partner in March 2024",
		Link:    "https://example.com/news",
	}}, jackknife, "Jim Hanson")

	require.Len(t, h.Evidence, 1)
	ev := h.Evidence[0]
	assert.Equal(t, []string{"joins"}, ev.Keywords)
	assert.True(t, ev.HasDate)
	assert.Equal(t, model.EvidenceCompanyChange, ev.Kind)
	assert.Equal(t, "https://example.com/news", ev.Link)

	assert.Equal(t, 60, h.Confidence)
	assert.True(t, h.Detected)
	assert.Equal(t, "Realknife, LLC", h.Company)
	assert.Equal(t, "Talent Business Partner in March 2024", h.Role)
}

func TestAnalyze_NoKeywordsNeverDetected(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	results := []model.SearchResult{
		{Title: "Jim Hanson - CTO at Globex - LinkedIn", Snippet: "Experienced leader since 2019."},
		{Title: "Jim Hanson - Director at Initech", Snippet: "March 2024 profile update"},
	}
	h := a.Analyze(results, jackknife, "Jim Hanson")

	assert.False(t, h.Detected)
	assert.Zero(t, h.Confidence)
	assert.Empty(t, h.Evidence)
	assert.Len(t, h.Candidates, 2)
}

func TestAnalyze_SamePositionNeverDetected(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	results := []model.SearchResult{
		{Title: "Jim Hanson - VP of HR at Jackknife", Snippet: "Jim Hanson joined Jackknife in March 2024 and was promoted recently."},
		{Title: "News", Snippet: "Jim Hanson is now VP of HR at Jackknife, Inc."},
	}
	h := a.Analyze(results, jackknife, "Jim Hanson")

	assert.False(t, h.Detected)
	assert.Empty(t, h.Evidence)
	assert.NotEmpty(t, h.Candidates)
}

func TestAnalyze_RoleChangeKind(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	h := a.Analyze([]model.SearchResult{{
		Title:   "Jim Hanson - Chief People Officer at Jackknife",
		Snippet: "Jim Hanson promoted recently",
	}}, jackknife, "Jim Hanson")

	require.Len(t, h.Evidence, 1)
	assert.Equal(t, model.EvidenceRoleChange, h.Evidence[0].Kind)
	// promoted (20) + date (30) + role (10)
	assert.Equal(t, 60, h.Confidence)
	assert.True(t, h.Detected)
	assert.Equal(t, "Chief People Officer", h.Role)
	assert.Equal(t, "Jackknife", h.Company)
}

func TestAnalyze_FallsBackToCurrentValues(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	// Role rejected for containing the name, so only a company is extracted.
	h := a.Analyze([]model.SearchResult{
		{Title: "Profile - Jim Hanson Advisory at Realknife", Snippet: "Jim Hanson joined and was named lead this year"},
	}, jackknife, "Jim Hanson")

	require.Len(t, h.Evidence, 1)
	assert.Empty(t, h.Evidence[0].Role)
	// joined + named (40) + date (30)
	assert.Equal(t, 70, h.Confidence)
	assert.True(t, h.Detected)
	assert.Equal(t, "VP of HR", h.Role)
	assert.Equal(t, "Realknife", h.Company)
}

func TestAnalyze_BelowThresholdNotDetected(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	h := a.Analyze([]model.SearchResult{{
		Title:   "Jim Hanson - Partner at Realknife",
		Snippet: "Jim Hanson joins a new team",
	}}, jackknife, "Jim Hanson")

	require.Len(t, h.Evidence, 1)
	// joins (20) + role (10), no date
	assert.Equal(t, 30, h.Confidence)
	assert.False(t, h.Detected)
	assert.Empty(t, h.Role)
	assert.Empty(t, h.Company)
}

func TestAnalyze_EvidenceSortedStrongestFirst(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	results := []model.SearchResult{
		{Title: "Jim Hanson - Partner at Weakco", Snippet: "joins", Link: "weak"},
		{Title: "Jim Hanson - Partner at Datedco", Snippet: "joins in 2024", Link: "dated"},
		{Title: "Jim Hanson - Partner at Strongco", Snippet: "joined and became partner", Link: "strong"},
		{Title: "Jim Hanson - Partner at Tieco", Snippet: "joins today", Link: "tie"},
	}
	h := a.Analyze(results, jackknife, "Jim Hanson")

	require.Len(t, h.Evidence, 4)
	links := make([]string, len(h.Evidence))
	for i, ev := range h.Evidence {
		links[i] = ev.Link
	}
	assert.Equal(t, []string{"strong", "dated", "weak", "tie"}, links)

	// joined + became (40) + corroboration (20) + role (10)
	assert.Equal(t, 70, h.Confidence)
	assert.Equal(t, "Strongco", h.Company)
}

func TestAnalyze_ConfidenceMonotonicInKeywords(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	snippets := []string{
		"update",
		"joins",
		"joins appointed",
		"joins appointed promoted",
		"joins appointed promoted becomes announced",
	}

	prev := -1
	for _, s := range snippets {
		h := a.Analyze([]model.SearchResult{{Title: "Jim Hanson - Partner at Realknife", Snippet: s}}, jackknife, "Jim Hanson")
		assert.GreaterOrEqual(t, h.Confidence, prev, s)
		assert.LessOrEqual(t, h.Confidence, 100)
		prev = h.Confidence
	}
}

func TestAnalyze_SaturatesAt100(t *testing.T) {
	t.Parallel()

	p := Policy{Threshold: 50, KeywordWeight: 40, KeywordCap: 5, DateWeight: 30, CorroborationWeight: 20, RoleWeight: 10}
	a := NewAnalyzer(p)
	results := []model.SearchResult{
		{Title: "Jim Hanson - Partner at Realknife", Snippet: "joins appointed promoted becomes announced recently"},
		{Title: "Jim Hanson - Partner at Realknife", Snippet: "joined this month"},
	}
	h := a.Analyze(results, jackknife, "Jim Hanson")

	assert.Equal(t, 100, h.Confidence)
	assert.True(t, h.Detected)
}

func TestAnalyze_SnippetExcerptTruncated(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(DefaultPolicy())
	long := "Jim Hanson joins Realknife as Partner. " + strings.Repeat("x", 400)
	h := a.Analyze([]model.SearchResult{{Title: "News", Snippet: long}}, jackknife, "Jim Hanson")

	require.Len(t, h.Evidence, 1)
	assert.Len(t, []rune(h.Evidence[0].Snippet), 200)
}

func TestAnalyze_EmptyResults(t *testing.T) {
	t.Parallel()

	h := NewAnalyzer(DefaultPolicy()).Analyze(nil, jackknife, "Jim Hanson")
	assert.False(t, h.Detected)
	assert.Empty(t, h.Evidence)
	_, ok := h.Strongest()
	assert.False(t, ok)
}

func TestDiffers(t *testing.T) {
	t.Parallel()

	assert.True(t, differs("Realknife", "Jackknife, Inc"))
	assert.False(t, differs("jackknife", "Jackknife, Inc"))
	assert.False(t, differs("Jackknife, Inc.", "JACKKNIFE, INC"))
	assert.False(t, differs("", "Jackknife"))
	assert.False(t, differs("Realknife", ""))
}

func TestHasDateSignal(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"in january 2024", "sep. 2023", "on 3/14/2024", "q2 2025", "since 2021", "recently", "last week", "this year"} {
		assert.True(t, hasDateSignal(s), s)
	}
	for _, s := range []string{"no date here", "room 12345", "recent news"} {
		assert.False(t, hasDateSignal(s), s)
	}
}

func TestPolicy_Score(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	ev := model.Evidence{Keywords: []string{"joins"}, HasDate: true, Role: "VP"}
	assert.Equal(t, 60, p.Score(ev, 1))
	assert.Equal(t, 80, p.Score(ev, 2))

	ev.Keywords = []string{"joins", "named", "becomes"}
	assert.Equal(t, 100, p.Score(ev, 3))
	assert.True(t, p.Detected(50))
	assert.False(t, p.Detected(49))
}

func TestNewPolicy_FromConfig(t *testing.T) {
	t.Parallel()

	p := NewPolicy(config.DetectConfig{Threshold: 70, DateWeight: 40})
	assert.Equal(t, 70, p.Threshold)
	assert.Equal(t, 40, p.DateWeight)
	assert.Equal(t, 20, p.KeywordWeight)
	assert.Equal(t, 2, p.KeywordCap)
}
