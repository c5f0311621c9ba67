package detect

import (
	"github.com/sells-group/jobcheck/internal/config"
	"github.com/sells-group/jobcheck/internal/model"
)

// Policy holds the confidence weights and the detection threshold.
type Policy struct {
	Threshold           int
	KeywordWeight       int
	KeywordCap          int
	DateWeight          int
	CorroborationWeight int
	RoleWeight          int
}

// DefaultPolicy returns the standard scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:           50,
		KeywordWeight:       20,
		KeywordCap:          2,
		DateWeight:          30,
		CorroborationWeight: 20,
		RoleWeight:          10,
	}
}

// NewPolicy builds a Policy from config, keeping defaults for zero weights.
func NewPolicy(cfg config.DetectConfig) Policy {
	p := DefaultPolicy()
	if cfg.Threshold > 0 {
		p.Threshold = cfg.Threshold
	}
	if cfg.KeywordWeight > 0 {
		p.KeywordWeight = cfg.KeywordWeight
	}
	if cfg.KeywordCap > 0 {
		p.KeywordCap = cfg.KeywordCap
	}
	if cfg.DateWeight > 0 {
		p.DateWeight = cfg.DateWeight
	}
	if cfg.CorroborationWeight > 0 {
		p.CorroborationWeight = cfg.CorroborationWeight
	}
	if cfg.RoleWeight > 0 {
		p.RoleWeight = cfg.RoleWeight
	}
	return p
}

// Score computes the confidence (0-100) for the strongest evidence item
// given how many evidence items were found in total.
func (p Policy) Score(strongest model.Evidence, evidenceCount int) int {
	score := p.KeywordWeight * min(len(strongest.Keywords), p.KeywordCap)
	if strongest.HasDate {
		score += p.DateWeight
	}
	if evidenceCount > 1 {
		score += p.CorroborationWeight
	}
	if strongest.Role != "" {
		score += p.RoleWeight
	}
	return max(0, min(100, score))
}

// Detected reports whether confidence clears the threshold.
func (p Policy) Detected(confidence int) bool {
	return confidence >= p.Threshold
}
