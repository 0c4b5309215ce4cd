// Package scorecard scores individual contributions against the weighted
// rubric and whole sessions against the seven discipline dimensions.
package scorecard

// Role is the part an agent played when making a contribution
type Role string

const (
	RoleUniversal           Role = "universal"
	RoleHypothesisGenerator Role = "hypothesis_generator"
	RoleTestDesigner        Role = "test_designer"
	RoleAdversarialCritic   Role = "adversarial_critic"
)

// Valid reports whether r is a contributor role
func (r Role) Valid() bool {
	switch r {
	case RoleHypothesisGenerator, RoleTestDesigner, RoleAdversarialCritic:
		return true
	}
	return false
}

// Criterion names
const (
	StructuralCorrectness    = "structural_correctness"
	CitationCompliance       = "citation_compliance"
	RationaleQuality         = "rationale_quality"
	MechanismSpecificity     = "mechanism_specificity"
	Falsifiability           = "falsifiability"
	CompetingAlternatives    = "competing_alternatives"
	ParadoxExploitation      = "paradox_exploitation"
	DiscriminativePower      = "discriminative_power"
	PotencyCheck             = "potency_check"
	EvidencePerWeek          = "evidence_per_week"
	ObjectTransposition      = "object_transposition"
	AttackSpecificity        = "attack_specificity"
	CounterexampleQuality    = "counterexample_quality"
	ThirdAlternativeProposal = "third_alternative_proposal"
	KillJustification        = "kill_justification"
)

// Criterion is one row of the rubric. Required criteria score 0–3, optional 0–2.
type Criterion struct {
	Name     string  `json:"name"`
	Role     Role    `json:"role"`
	Weight   float64 `json:"weight"`
	Optional bool    `json:"optional,omitempty"`
}

// MaxScore is the highest raw score the criterion accepts
func (c Criterion) MaxScore() int {
	if c.Optional {
		return 2
	}
	return 3
}

var rubric = []Criterion{
	{Name: StructuralCorrectness, Role: RoleUniversal, Weight: 1.0},
	{Name: CitationCompliance, Role: RoleUniversal, Weight: 1.0},
	{Name: RationaleQuality, Role: RoleUniversal, Weight: 0.5},

	{Name: MechanismSpecificity, Role: RoleHypothesisGenerator, Weight: 1.5},
	{Name: Falsifiability, Role: RoleHypothesisGenerator, Weight: 1.5},
	{Name: CompetingAlternatives, Role: RoleHypothesisGenerator, Weight: 1.0},
	{Name: ParadoxExploitation, Role: RoleHypothesisGenerator, Weight: 1.0, Optional: true},

	{Name: DiscriminativePower, Role: RoleTestDesigner, Weight: 2.0},
	{Name: PotencyCheck, Role: RoleTestDesigner, Weight: 2.0},
	{Name: EvidencePerWeek, Role: RoleTestDesigner, Weight: 1.0},
	{Name: ObjectTransposition, Role: RoleTestDesigner, Weight: 0.5, Optional: true},

	{Name: AttackSpecificity, Role: RoleAdversarialCritic, Weight: 1.5},
	{Name: CounterexampleQuality, Role: RoleAdversarialCritic, Weight: 1.0},
	{Name: ThirdAlternativeProposal, Role: RoleAdversarialCritic, Weight: 1.0},
	{Name: KillJustification, Role: RoleAdversarialCritic, Weight: 1.5, Optional: true},
}

// Rubric returns a copy of the full criterion table in rubric order
func Rubric() []Criterion {
	return append([]Criterion(nil), rubric...)
}

// CriteriaFor returns the universal criteria followed by those of role
func CriteriaFor(role Role) []Criterion {
	var out []Criterion
	for _, c := range rubric {
		if c.Role == RoleUniversal || c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// Lookup finds a criterion by name
func Lookup(name string) (Criterion, bool) {
	for _, c := range rubric {
		if c.Name == name {
			return c, true
		}
	}
	return Criterion{}, false
}
