package testrecord

import (
	"fmt"

	"hypolab/domain/hypothesis"
)

// InflationPolicy tunes when an evidence-per-week score looks too good to be true
type InflationPolicy struct {
	// SuspiciousTotal flags totals at or above this value; the maximum is always flagged
	SuspiciousTotal int `yaml:"suspicious_total" json:"suspicious_total" validate:"min=0,max=12"`
	// FlagCheapAndFast flags cost=3 together with speed=3
	FlagCheapAndFast bool `yaml:"flag_cheap_and_fast" json:"flag_cheap_and_fast"`
}

// DefaultInflationPolicy flags totals of 11+ and cheap-and-fast designs
func DefaultInflationPolicy() InflationPolicy {
	return InflationPolicy{SuspiciousTotal: 11, FlagCheapAndFast: true}
}

// Inflation reports whether a score looks inflated and why
type Inflation struct {
	Inflated bool     `json:"inflated"`
	Total    int      `json:"total"`
	Reasons  []string `json:"reasons,omitempty"`
}

// DetectInflatedScores flags perfect totals, near-perfect totals and
// simultaneously maximal cost and speed ratings
func DetectInflatedScores(s hypothesis.EvidencePerWeekScore, policy InflationPolicy) Inflation {
	total := s.Total()
	result := Inflation{Total: total}

	switch {
	case total >= hypothesis.MaxEvidencePerWeek:
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("perfect evidence-per-week score %d/%d is implausible", total, hypothesis.MaxEvidencePerWeek))
	case policy.SuspiciousTotal > 0 && total >= policy.SuspiciousTotal:
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("evidence-per-week score %d/%d is suspiciously high", total, hypothesis.MaxEvidencePerWeek))
	}

	if policy.FlagCheapAndFast && s.Cost == 3 && s.Speed == 3 {
		result.Reasons = append(result.Reasons, "cost=3 and speed=3: tests that are both cheap and fast are rare")
	}

	result.Inflated = len(result.Reasons) > 0
	return result
}
