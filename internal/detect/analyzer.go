package detect

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/jobcheck/internal/model"
)

// snippetExcerptLen bounds the snippet copied into evidence.
const snippetExcerptLen = 200

// Hypothesis is the analyzer's verdict over one person's search results.
type Hypothesis struct {
	Detected   bool             `json:"detected"`
	Confidence int              `json:"confidence"`
	Role       string           `json:"proposed_role,omitempty"`
	Company    string           `json:"proposed_company,omitempty"`
	Evidence   []model.Evidence `json:"evidence"`
	Candidates []Candidate      `json:"candidates"`
}

// Strongest returns the top-ranked evidence item, if any.
func (h Hypothesis) Strongest() (model.Evidence, bool) {
	if len(h.Evidence) == 0 {
		return model.Evidence{}, false
	}
	return h.Evidence[0], true
}

// Analyzer aggregates extracted candidates into a Hypothesis.
type Analyzer struct {
	extractor *Extractor
	policy    Policy
}

// NewAnalyzer creates an Analyzer with the given policy and the default extractor.
func NewAnalyzer(policy Policy) *Analyzer {
	return &Analyzer{extractor: NewExtractor(), policy: policy}
}

// Policy returns the scoring policy in use.
func (a *Analyzer) Policy() Policy {
	return a.policy
}

// Analyze scores results against the person's current position.
func (a *Analyzer) Analyze(results []model.SearchResult, current model.Position, personName string) Hypothesis {
	h := Hypothesis{}

	for _, r := range results {
		lower := strings.ToLower(r.Title + " " + r.Snippet)
		keywords := matchKeywords(lower)
		dated := hasDateSignal(lower)

		c := a.extractor.Extract(r.Title, r.Snippet, personName)
		if !c.Empty() {
			h.Candidates = append(h.Candidates, c)
		}
		if len(keywords) == 0 {
			continue
		}

		companyChanged := differs(c.Company, current.Company)
		roleChanged := differs(c.Role, current.Role)
		if !companyChanged && !roleChanged {
			continue
		}

		kind := model.EvidenceRoleChange
		if companyChanged {
			kind = model.EvidenceCompanyChange
		}
		h.Evidence = append(h.Evidence, model.Evidence{
			Kind:     kind,
			Link:     r.Link,
			Snippet:  excerpt(r.Snippet, snippetExcerptLen),
			Role:     c.Role,
			Company:  c.Company,
			Keywords: keywords,
			HasDate:  dated,
		})
	}

	if len(h.Evidence) == 0 {
		return h
	}

	slices.SortStableFunc(h.Evidence, func(x, y model.Evidence) int {
		if n := len(y.Keywords) - len(x.Keywords); n != 0 {
			return n
		}
		return boolRank(y.HasDate) - boolRank(x.HasDate)
	})

	strongest := h.Evidence[0]
	h.Confidence = a.policy.Score(strongest, len(h.Evidence))
	if a.policy.Detected(h.Confidence) {
		h.Detected = true
		h.Role = strongest.Role
		if h.Role == "" {
			h.Role = current.Role
		}
		h.Company = strongest.Company
		if h.Company == "" {
			h.Company = current.Company
		}
	}
	return h
}

// differs reports whether extracted names something other than current:
// extracted is non-empty and neither contains the other, ignoring case.
// An empty current value is contained in everything, so nothing differs from it.
func differs(extracted, current string) bool {
	if extracted == "" {
		return false
	}
	fold := cases.Fold()
	fe, fc := fold.String(extracted), fold.String(current)
	return !strings.Contains(fe, fc) && !strings.Contains(fc, fe)
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
