package detect

import (
	"regexp"
	"strings"
)

// ChangeKeywords are phrases whose presence in search text suggests a job
// transition. Matching is by substring on lower-cased text.
var ChangeKeywords = []string{
	"joins", "joined", "joining",
	"appointed", "named", "promoted",
	"new role", "new position", "new job",
	"now serves", "now works", "now leads",
	"starts as", "started as", "starting as",
	"announces", "announced",
	"hired as", "hired to",
	"moves to", "moved to",
	"takes over", "taking over",
	"becomes", "became",
}

// datePatterns detect a recency signal in lower-cased text.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{4}\b`),
	regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\.?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
	regexp.MustCompile(`\bq[1-4]\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{4}\b`),
	regexp.MustCompile(`\brecently\b`),
	regexp.MustCompile(`\b(this|last) (month|year|week)\b`),
}

// matchKeywords returns the change keywords present in lower, in vocabulary order.
func matchKeywords(lower string) []string {
	var found []string
	for _, kw := range ChangeKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// hasDateSignal reports whether lower mentions a date or relative recency term.
func hasDateSignal(lower string) bool {
	for _, re := range datePatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
