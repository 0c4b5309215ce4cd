package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"hypolab/domain/hypothesis"
	"hypolab/internal/binding"
	"hypolab/internal/errors"
	"hypolab/internal/scorecard"
)

// Policy is the YAML-tunable behaviour of scoring and suggestion application
type Policy struct {
	Scoring scorecard.Policy `yaml:"scoring" json:"scoring"`
	Apply   ApplyPolicy      `yaml:"apply" json:"apply"`
}

// ApplyPolicy is the default filter for applying binding suggestions
type ApplyPolicy struct {
	MinConfidence hypothesis.Confidence `yaml:"min_confidence" json:"min_confidence" validate:"omitempty,oneof=high medium low speculative"`
	KillsOnly     bool                  `yaml:"kills_only" json:"kills_only"`
}

// Options converts the policy into binding apply options
func (a ApplyPolicy) Options() binding.ApplyOptions {
	return binding.ApplyOptions{MinConfidence: a.MinConfidence, KillsOnly: a.KillsOnly}
}

// DefaultPolicy applies every suggestion and scores with the stock thresholds
func DefaultPolicy() Policy {
	return Policy{Scoring: scorecard.DefaultPolicy()}
}

// LoadPolicy reads a YAML policy on top of the defaults. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read policy %s", path)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML policy bytes over the defaults and validates them
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to parse policy")
	}
	if err := validateStruct(&policy); err != nil {
		return Policy{}, errors.Wrap(err, "policy validation failed")
	}
	return policy, nil
}
