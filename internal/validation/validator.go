// Package validation performs structural checks on session records: field
// presence, identifier formats, enum membership and cross-references. It
// never panics and never stops at the first problem; every failure is listed.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
)

// FieldError is one structural problem
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Report lists every structural problem found
type Report struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Err joins the report's errors, or returns nil when valid
func (r Report) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.String()
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// ErrInvalid is wrapped by Report.Err
var ErrInvalid = errors.New("structural validation failed")

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	formats := map[string]func(string) bool{
		"hypothesis_id": func(s string) bool { return core.HypothesisID(s).Valid() },
		"prediction_id": func(s string) bool { return core.PredictionID(s).Valid() },
		"test_id":       func(s string) bool { return core.TestID(s).Valid() },
		"assumption_id": func(s string) bool { return core.AssumptionID(s).Valid() },
		"anchor":        func(s string) bool { return core.Anchor(s).Valid() },
		"session":       core.ValidSession,
	}
	for tag, valid := range formats {
		valid := valid
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		})
	}
	return v
}

func check(v interface{}) Report {
	err := validate.Struct(v)
	if err == nil {
		return Report{Valid: true}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Report{Errors: []FieldError{{Field: "", Rule: "internal", Message: err.Error()}}}
	}

	report := Report{}
	for _, fe := range verrs {
		report.Errors = append(report.Errors, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: describe(fe),
		})
	}
	return report
}

// fieldPath drops the root type name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("needs at least %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q must be one of: %s", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "hypothesis_id":
		return fmt.Sprintf("%q is not of the form H-{session}-{nnn}", fe.Value())
	case "prediction_id":
		return fmt.Sprintf("%q is not of the form P-{session}-{nnn}", fe.Value())
	case "test_id":
		return fmt.Sprintf("%q is not of the form T-{session}-{nnn}", fe.Value())
	case "assumption_id":
		return fmt.Sprintf("%q is not of the form A-{session}-{nnn} or A{n}", fe.Value())
	case "anchor":
		return fmt.Sprintf("%q is not a transcript anchor like §3 or §3-5", fe.Value())
	case "session":
		return fmt.Sprintf("%q is not a valid session token", fe.Value())
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}

func merge(reports ...Report) Report {
	out := Report{}
	for _, r := range reports {
		out.Errors = append(out.Errors, r.Errors...)
	}
	out.Valid = len(out.Errors) == 0
	return out
}

func fieldErr(field, rule, format string, args ...interface{}) FieldError {
	return FieldError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// Hypothesis checks a single hypothesis
func Hypothesis(h hypothesis.Hypothesis) Report {
	return check(h)
}

// Prediction checks a prediction. Every participating hypothesis must appear once.
func Prediction(p hypothesis.Prediction) Report {
	report := check(p)
	seen := make(map[core.HypothesisID]bool, len(p.Predictions))
	for i, entry := range p.Predictions {
		if seen[entry.HypothesisID] {
			report.Errors = append(report.Errors, fieldErr(
				fmt.Sprintf("predictions[%d].hypothesis_id", i), "unique",
				"%s appears more than once", entry.HypothesisID))
		}
		seen[entry.HypothesisID] = true
	}
	return merge(report)
}

// TestRecord checks a test design. A missing potency check or positive
// control fails here, independent of any score.
func TestRecord(t hypothesis.TestRecord) Report {
	report := check(t)

	discriminated := make(map[core.HypothesisID]bool, len(t.DiscriminatesBetween))
	for i, id := range t.DiscriminatesBetween {
		if discriminated[id] {
			report.Errors = append(report.Errors, fieldErr(
				fmt.Sprintf("discriminates_between[%d]", i), "unique", "%s appears more than once", id))
		}
		discriminated[id] = true
	}

	covered := make(map[core.HypothesisID]bool, len(t.ExpectedOutcomes))
	for i, o := range t.ExpectedOutcomes {
		if !discriminated[o.HypothesisID] {
			report.Errors = append(report.Errors, fieldErr(
				fmt.Sprintf("expected_outcomes[%d].hypothesis_id", i), "discriminated",
				"%s is not among the discriminated hypotheses", o.HypothesisID))
		}
		if covered[o.HypothesisID] {
			report.Errors = append(report.Errors, fieldErr(
				fmt.Sprintf("expected_outcomes[%d].hypothesis_id", i), "unique",
				"%s has more than one expected outcome", o.HypothesisID))
		}
		covered[o.HypothesisID] = true
	}
	for _, id := range t.DiscriminatesBetween {
		if !covered[id] {
			report.Errors = append(report.Errors, fieldErr(
				"expected_outcomes", "coverage", "no expected outcome for %s", id))
		}
	}
	return merge(report)
}

// Transition checks a transition record's shape. Edge legality is the lifecycle's concern.
func Transition(tr hypothesis.Transition) Report {
	return check(tr)
}

// Assumption checks an assumption
func Assumption(a hypothesis.Assumption) Report {
	return check(a)
}

// Critique checks a critique
func Critique(c hypothesis.Critique) Report {
	return check(c)
}

// Bundle is the set of records one session submits together
type Bundle struct {
	Hypotheses  []hypothesis.Hypothesis `json:"hypotheses"`
	Predictions []hypothesis.Prediction `json:"predictions,omitempty"`
	Tests       []hypothesis.TestRecord `json:"tests,omitempty"`
	Assumptions []hypothesis.Assumption `json:"assumptions,omitempty"`
	Critiques   []hypothesis.Critique   `json:"critiques,omitempty"`
}

// ValidateBundle checks every record and then the references between them:
// ids are unique and every referenced hypothesis exists.
func ValidateBundle(b Bundle) Report {
	var reports []Report
	prefix := func(p string, r Report) Report {
		for i := range r.Errors {
			if r.Errors[i].Field == "" {
				r.Errors[i].Field = p
			} else {
				r.Errors[i].Field = p + "." + r.Errors[i].Field
			}
		}
		return r
	}

	known := make(map[core.HypothesisID]bool, len(b.Hypotheses))
	var refs []FieldError
	for i, h := range b.Hypotheses {
		path := fmt.Sprintf("hypotheses[%d]", i)
		reports = append(reports, prefix(path, Hypothesis(h)))
		if known[h.ID] {
			refs = append(refs, fieldErr(path+".id", "unique", "duplicate hypothesis id %s", h.ID))
		}
		known[h.ID] = true
	}

	missing := func(path string, id core.HypothesisID) {
		if id != "" && !known[id] {
			refs = append(refs, fieldErr(path, "reference", "hypothesis %s does not exist", id))
		}
	}

	predictionIDs := make(map[core.PredictionID]bool, len(b.Predictions))
	for i, p := range b.Predictions {
		path := fmt.Sprintf("predictions[%d]", i)
		reports = append(reports, prefix(path, Prediction(p)))
		if predictionIDs[p.ID] {
			refs = append(refs, fieldErr(path+".id", "unique", "duplicate prediction id %s", p.ID))
		}
		predictionIDs[p.ID] = true
		for j, entry := range p.Predictions {
			missing(fmt.Sprintf("%s.predictions[%d].hypothesis_id", path, j), entry.HypothesisID)
		}
	}

	testIDs := make(map[core.TestID]bool, len(b.Tests))
	for i, t := range b.Tests {
		path := fmt.Sprintf("tests[%d]", i)
		reports = append(reports, prefix(path, TestRecord(t)))
		if testIDs[t.ID] {
			refs = append(refs, fieldErr(path+".id", "unique", "duplicate test id %s", t.ID))
		}
		testIDs[t.ID] = true
		for j, id := range t.DiscriminatesBetween {
			missing(fmt.Sprintf("%s.discriminates_between[%d]", path, j), id)
		}
	}

	for i, a := range b.Assumptions {
		path := fmt.Sprintf("assumptions[%d]", i)
		reports = append(reports, prefix(path, Assumption(a)))
		for j, id := range a.HypothesisIDs {
			missing(fmt.Sprintf("%s.hypothesis_ids[%d]", path, j), id)
		}
	}

	for i, c := range b.Critiques {
		path := fmt.Sprintf("critiques[%d]", i)
		reports = append(reports, prefix(path, Critique(c)))
		missing(path+".hypothesis_id", c.HypothesisID)
	}

	reports = append(reports, Report{Errors: refs})
	return merge(reports...)
}
