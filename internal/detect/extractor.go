// Package detect turns raw search results into a scored job-change hypothesis.
package detect

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Candidate is a (role, company) pair extracted from one search result.
// Empty strings mean the field was not found.
type Candidate struct {
	Role    string `json:"role,omitempty"`
	Company string `json:"company,omitempty"`
}

// Empty reports whether neither field was extracted.
func (c Candidate) Empty() bool {
	return c.Role == "" && c.Company == ""
}

// Template is one phrasal pattern with the capture groups holding the
// company and the role.
type Template struct {
	Name         string
	Pattern      *regexp.Regexp
	CompanyGroup int
	RoleGroup    int
}

// Match applies the template to text.
func (t Template) Match(text string) (Candidate, bool) {
	m := t.Pattern.FindStringSubmatch(text)
	if m == nil {
		return Candidate{}, false
	}
	return Candidate{
		Role:    strings.TrimSpace(m[t.RoleGroup]),
		Company: strings.TrimSpace(m[t.CompanyGroup]),
	}, true
}

var (
	// "<name> - <role> at <company> | ..." or "... - LinkedIn"
	profileTitle = Template{
		Name:         "profile_title",
		Pattern:      regexp.MustCompile(`(?i)^.+?\s*[-–]\s*(.+?)\s+at\s+(.+?)(?:\s*\||\s*-\s*LinkedIn|$)`),
		RoleGroup:    1,
		CompanyGroup: 2,
	}

	pipeSuffix     = regexp.MustCompile(`\s*\|.*$`)
	linkedInSuffix = regexp.MustCompile(`(?i)\s*-\s*LinkedIn.*$`)
	quoteReplacer  = strings.NewReplacer(`"`, "", "“", "", "”", "")
)

// DefaultTemplates returns the snippet templates in evaluation order.
// Earlier templates are more specific and must not be shadowed by later ones.
func DefaultTemplates() []Template {
	return []Template{
		{
			Name:         "joins_as",
			Pattern:      regexp.MustCompile(`(?i)\bjoins?\s+(.+?)\s+as\s+(.+?)(?:\.|,|$)`),
			CompanyGroup: 1,
			RoleGroup:    2,
		},
		{
			Name:         "appointed_at",
			Pattern:      regexp.MustCompile(`(?i)\b(?:appointed|named|promoted to)\s+(.+?)\s+(?:at|of)\s+(.+?)(?:\.|,|$)`),
			RoleGroup:    1,
			CompanyGroup: 2,
		},
		{
			Name:         "new_role_at",
			Pattern:      regexp.MustCompile(`(?i)\bnew\s+(.+?)\s+at\s+(.+?)(?:\.|,|$)`),
			RoleGroup:    1,
			CompanyGroup: 2,
		},
		{
			Name:         "is_now_at",
			Pattern:      regexp.MustCompile(`(?i)\bis\s+now\s+(.+?)\s+at\s+(.+?)(?:\.|,|$)`),
			RoleGroup:    1,
			CompanyGroup: 2,
		},
		{
			Name:         "starts_as_at",
			Pattern:      regexp.MustCompile(`(?i)\bstarts?\s+as\s+(.+?)\s+at\s+(.+?)(?:\.|,|$)`),
			RoleGroup:    1,
			CompanyGroup: 2,
		},
	}
}

// Extractor pulls a candidate position out of a search result.
type Extractor struct {
	templates []Template
}

// NewExtractor returns an Extractor using the given snippet templates, or
// DefaultTemplates when none are given.
func NewExtractor(templates ...Template) *Extractor {
	if len(templates) == 0 {
		templates = DefaultTemplates()
	}
	return &Extractor{templates: templates}
}

// Extract returns the candidate found in title or snippet. It never fails;
// fields that cannot be found are left empty.
func (e *Extractor) Extract(title, snippet, personName string) Candidate {
	c, _ := profileTitle.Match(title)

	if c.Role == "" {
		for _, t := range e.templates {
			if m, ok := t.Match(snippet); ok {
				c = m
				break
			}
		}
	}

	c.Role = clean(c.Role)
	c.Company = clean(c.Company)

	if c.Role != "" && overlaps(c.Role, personName) {
		c.Role = ""
	}
	return c
}

func clean(s string) string {
	if s == "" {
		return s
	}
	s = pipeSuffix.ReplaceAllString(s, "")
	s = linkedInSuffix.ReplaceAllString(s, "")
	s = quoteReplacer.Replace(s)
	return strings.TrimSpace(s)
}

// overlaps reports whether either string contains the other, ignoring case.
// An empty string overlaps nothing.
func overlaps(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	fold := cases.Fold()
	fa, fb := fold.String(a), fold.String(b)
	return strings.Contains(fa, fb) || strings.Contains(fb, fa)
}
