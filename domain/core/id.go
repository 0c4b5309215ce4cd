package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID represents an opaque domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Session-scoped identifiers
type (
	HypothesisID ID
	PredictionID ID
	TestID       ID
	AssumptionID ID
	RecordID     ID
	Anchor       string
)

func (id HypothesisID) String() string { return string(id) }
func (id PredictionID) String() string { return string(id) }
func (id TestID) String() string       { return string(id) }
func (id AssumptionID) String() string { return string(id) }
func (id RecordID) String() string     { return string(id) }
func (a Anchor) String() string        { return string(a) }

const sessionToken = `[A-Za-z0-9][A-Za-z0-9_-]*`

var (
	hypothesisIDPattern = regexp.MustCompile(`^H-` + sessionToken + `-\d{3}$`)
	predictionIDPattern = regexp.MustCompile(`^P-` + sessionToken + `-\d{3}$`)
	testIDPattern       = regexp.MustCompile(`^T-` + sessionToken + `-\d{3}$`)
	assumptionIDPattern = regexp.MustCompile(`^(A-` + sessionToken + `-\d{3}|A\d+)$`)
	recordIDPattern     = regexp.MustCompile(`^REC-` + sessionToken + `-\d+$`)
	anchorPattern       = regexp.MustCompile(`^§(\d+)(?:-(\d+))?$`)
	sessionPattern      = regexp.MustCompile(`^` + sessionToken + `$`)
)

// Valid reports whether the id has the H-{session}-{seq} shape
func (id HypothesisID) Valid() bool { return hypothesisIDPattern.MatchString(string(id)) }

// Valid reports whether the id has the P-{session}-{seq} shape
func (id PredictionID) Valid() bool { return predictionIDPattern.MatchString(string(id)) }

// Valid reports whether the id has the T-{session}-{seq} shape
func (id TestID) Valid() bool { return testIDPattern.MatchString(string(id)) }

// Valid reports whether the id has the A-{session}-{seq} or A{n} shape
func (id AssumptionID) Valid() bool { return assumptionIDPattern.MatchString(string(id)) }

// Valid reports whether the id has the REC-{session}-{unix} shape
func (id RecordID) Valid() bool { return recordIDPattern.MatchString(string(id)) }

// Valid reports whether the anchor is §n or §n-m with n <= m
func (a Anchor) Valid() bool {
	_, _, err := a.Span()
	return err == nil
}

// Span returns the first and last transcript section covered by the anchor
func (a Anchor) Span() (int, int, error) {
	m := anchorPattern.FindStringSubmatch(string(a))
	if m == nil {
		return 0, 0, fmt.Errorf("anchor %q must look like §n or §n-m", string(a))
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("anchor %q: %w", string(a), err)
	}
	end := start
	if m[2] != "" {
		if end, err = strconv.Atoi(m[2]); err != nil {
			return 0, 0, fmt.Errorf("anchor %q: %w", string(a), err)
		}
	}
	if start < 1 || end < start {
		return 0, 0, fmt.Errorf("anchor %q has an empty range", string(a))
	}
	return start, end, nil
}

// ValidSession reports whether s can be used as the session part of an identifier
func ValidSession(s string) bool {
	return sessionPattern.MatchString(s)
}

// NewHypothesisID formats a hypothesis identifier for a session
func NewHypothesisID(session string, seq int) HypothesisID {
	return HypothesisID(fmt.Sprintf("H-%s-%03d", session, seq))
}

// NewPredictionID formats a prediction identifier for a session
func NewPredictionID(session string, seq int) PredictionID {
	return PredictionID(fmt.Sprintf("P-%s-%03d", session, seq))
}

// NewTestID formats a test identifier for a session
func NewTestID(session string, seq int) TestID {
	return TestID(fmt.Sprintf("T-%s-%03d", session, seq))
}

// NewRecordID formats a session record identifier
func NewRecordID(session string, at time.Time) RecordID {
	return RecordID(fmt.Sprintf("REC-%s-%d", session, at.Unix()))
}

// ParseHypothesisID parses and validates a hypothesis identifier
func ParseHypothesisID(s string) (HypothesisID, error) {
	id := HypothesisID(strings.TrimSpace(s))
	if id == "" {
		return "", fmt.Errorf("hypothesis ID cannot be empty")
	}
	if !id.Valid() {
		return "", fmt.Errorf("%w: hypothesis ID %q", ErrMalformedID, s)
	}
	return id, nil
}

// ParseTestID parses and validates a test identifier
func ParseTestID(s string) (TestID, error) {
	id := TestID(strings.TrimSpace(s))
	if id == "" {
		return "", fmt.Errorf("test ID cannot be empty")
	}
	if !id.Valid() {
		return "", fmt.Errorf("%w: test ID %q", ErrMalformedID, s)
	}
	return id, nil
}
