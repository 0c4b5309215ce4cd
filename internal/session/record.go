// Package session holds the replayable record of a research session: its
// inputs, the message trace and the sealed hashes that let it be verified.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"hypolab/domain/core"
)

// hashConcurrency bounds concurrent hashing of trace messages
const hashConcurrency = 8

// Inputs is what the session started from
type Inputs struct {
	Kickoff           string            `json:"kickoff"`
	EvidenceSummaries []string          `json:"evidence_summaries,omitempty"`
	AgentRoster       []string          `json:"agent_roster,omitempty"`
	ProtocolVersions  map[string]string `json:"protocol_versions,omitempty"`
}

// Message is one agent turn in the trace
type Message struct {
	Agent   string    `json:"agent"`
	Content string    `json:"content"`
	Hash    core.Hash `json:"hash,omitempty"`
}

// Round groups the messages exchanged in one round
type Round struct {
	Number   int       `json:"number"`
	Messages []Message `json:"messages"`
}

// Trace is the ordered conversation
type Trace struct {
	Rounds []Round `json:"rounds"`
}

// Lint is the structural check result of the final artifact
type Lint struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Outputs is what the session produced
type Outputs struct {
	ArtifactHash core.Hash      `json:"artifact_hash,omitempty"`
	Lint         Lint           `json:"lint"`
	EntityCounts map[string]int `json:"entity_counts,omitempty"`
}

// Record is the replay format of one session
type Record struct {
	ID        core.RecordID `json:"id"`
	SessionID string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	Inputs    Inputs        `json:"inputs"`
	Trace     Trace         `json:"trace"`
	Outputs   Outputs       `json:"outputs"`
}

// NewRecord starts an empty record for session at the given time
func NewRecord(sessionID string, at time.Time) Record {
	at = at.UTC()
	return Record{
		ID:        core.NewRecordID(sessionID, at),
		SessionID: sessionID,
		CreatedAt: at,
	}
}

// HashContent is the content hash used for messages and artifacts
func HashContent(content string) core.Hash {
	return core.NewHash([]byte(content))
}

// Seal returns a copy of r with every message hash and the artifact hash filled in
func Seal(ctx context.Context, r Record, artifact []byte) (Record, error) {
	sealed := r
	sealed.Trace.Rounds = make([]Round, len(r.Trace.Rounds))
	for i, round := range r.Trace.Rounds {
		sealed.Trace.Rounds[i] = Round{
			Number:   round.Number,
			Messages: append([]Message(nil), round.Messages...),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hashConcurrency)
	for i := range sealed.Trace.Rounds {
		for j := range sealed.Trace.Rounds[i].Messages {
			msg := &sealed.Trace.Rounds[i].Messages[j]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				msg.Hash = HashContent(msg.Content)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Record{}, fmt.Errorf("seal %s: %w", r.ID, err)
	}

	if artifact != nil {
		sealed.Outputs.ArtifactHash = core.NewHash(artifact)
	}
	return sealed, nil
}

// Mismatch is a stored hash that does not match its content
type Mismatch struct {
	Round    int       `json:"round"`
	Message  int       `json:"message"`
	Expected core.Hash `json:"expected"`
	Actual   core.Hash `json:"actual"`
}

// Verification is the result of replaying a record's hashes
type Verification struct {
	Valid            bool       `json:"valid"`
	Mismatches       []Mismatch `json:"mismatches,omitempty"`
	ArtifactMismatch bool       `json:"artifact_mismatch,omitempty"`
}

// Err returns nil for a valid verification and wraps core.ErrHashMismatch otherwise
func (v Verification) Err() error {
	if v.Valid {
		return nil
	}
	if v.ArtifactMismatch {
		return fmt.Errorf("%w: artifact and %d message(s)", core.ErrHashMismatch, len(v.Mismatches))
	}
	return fmt.Errorf("%w: %d message(s)", core.ErrHashMismatch, len(v.Mismatches))
}

// Verify recomputes every hash in r. A nil artifact skips the artifact check.
func Verify(ctx context.Context, r Record, artifact []byte) (Verification, error) {
	type slot struct {
		round, message int
		actual         core.Hash
	}

	var slots []*slot
	for i, round := range r.Trace.Rounds {
		for j := range round.Messages {
			slots = append(slots, &slot{round: i, message: j})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hashConcurrency)
	for _, s := range slots {
		s := s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.actual = HashContent(r.Trace.Rounds[s.round].Messages[s.message].Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Verification{}, fmt.Errorf("verify %s: %w", r.ID, err)
	}

	var result Verification
	for _, s := range slots {
		msg := r.Trace.Rounds[s.round].Messages[s.message]
		if !msg.Hash.Equals(s.actual) {
			result.Mismatches = append(result.Mismatches, Mismatch{
				Round:    r.Trace.Rounds[s.round].Number,
				Message:  s.message,
				Expected: msg.Hash,
				Actual:   s.actual,
			})
		}
	}
	if artifact != nil && !r.Outputs.ArtifactHash.Equals(core.NewHash(artifact)) {
		result.ArtifactMismatch = true
	}
	result.Valid = len(result.Mismatches) == 0 && !result.ArtifactMismatch
	return result, nil
}

// Validate checks the record's identity and trace ordering
func Validate(r Record) []string {
	var issues []string
	if !core.ValidSession(r.SessionID) {
		issues = append(issues, fmt.Sprintf("session id %q is malformed", r.SessionID))
	}
	if !r.ID.Valid() {
		issues = append(issues, fmt.Sprintf("record id %q is malformed", r.ID))
	} else if !strings.HasPrefix(string(r.ID), "REC-"+r.SessionID+"-") {
		issues = append(issues, fmt.Sprintf("record id %s does not belong to session %s", r.ID, r.SessionID))
	}
	if r.CreatedAt.IsZero() {
		issues = append(issues, "created_at is required")
	}
	if strings.TrimSpace(r.Inputs.Kickoff) == "" {
		issues = append(issues, "kickoff is required")
	}

	numbers := make([]int, len(r.Trace.Rounds))
	for i, round := range r.Trace.Rounds {
		numbers[i] = round.Number
		if round.Number < 1 {
			issues = append(issues, fmt.Sprintf("round %d has a non-positive number", i))
		}
		for j, msg := range round.Messages {
			if strings.TrimSpace(msg.Agent) == "" {
				issues = append(issues, fmt.Sprintf("round %d message %d has no agent", round.Number, j))
			}
		}
	}
	if !sort.SliceIsSorted(numbers, func(i, j int) bool { return numbers[i] < numbers[j] }) {
		issues = append(issues, "rounds are not in order")
	}
	for i := 1; i < len(numbers); i++ {
		if numbers[i] == numbers[i-1] {
			issues = append(issues, fmt.Sprintf("round %d appears more than once", numbers[i]))
		}
	}
	return issues
}
