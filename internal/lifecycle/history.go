package lifecycle

import (
	"sort"
	"sync"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	apperrors "hypolab/internal/errors"
)

// History is the exported shape of a store: hypothesis id -> ordered transitions
type History map[core.HypothesisID][]hypothesis.Transition

// HistoryStore is a caller-owned, append-only index of transitions by hypothesis.
// Add is a single atomic append so the store may be shared between goroutines.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[core.HypothesisID][]entry
	seq     uint64
}

// entry remembers insertion order to keep equal timestamps stable in All
type entry struct {
	seq        uint64
	transition hypothesis.Transition
}

// NewHistoryStore creates an empty store
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{entries: make(map[core.HypothesisID][]entry)}
}

// Add appends a transition to its hypothesis' history
func (s *HistoryStore) Add(tr hypothesis.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries[tr.HypothesisID] = append(s.entries[tr.HypothesisID], entry{seq: s.seq, transition: tr})
}

// History returns the transitions of one hypothesis in insertion order
func (s *HistoryStore) History(id core.HypothesisID) []hypothesis.Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return unwrap(s.entries[id])
}

// Latest returns the most recently added transition of a hypothesis
func (s *HistoryStore) Latest(id core.HypothesisID) (hypothesis.Transition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[id]
	if len(list) == 0 {
		return hypothesis.Transition{}, false
	}
	return list[len(list)-1].transition, true
}

// ByTestResult returns every transition that cites the given test result, chronologically
func (s *HistoryStore) ByTestResult(testResultID string) []hypothesis.Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []entry
	for _, list := range s.entries {
		for _, e := range list {
			if e.transition.TestResultID == testResultID {
				matched = append(matched, e)
			}
		}
	}
	return chronological(matched)
}

// All lists every transition sorted by timestamp; equal timestamps keep insertion order
func (s *HistoryStore) All() []hypothesis.Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []entry
	for _, list := range s.entries {
		all = append(all, list...)
	}
	return chronological(all)
}

// HypothesisIDs returns the ids with recorded history, sorted
func (s *HistoryStore) HypothesisIDs() []core.HypothesisID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]core.HypothesisID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the total number of stored transitions
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.entries {
		n += len(list)
	}
	return n
}

// Export copies the store into its persisted shape
func (s *HistoryStore) Export() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(History, len(s.entries))
	for id, list := range s.entries {
		out[id] = unwrap(list)
	}
	return out
}

// Import validates every record in data and, only if all pass, replaces the
// store contents. A malformed entry is returned as an INVALID_IMPORTED_HISTORY
// AppError and leaves the store untouched.
func (s *HistoryStore) Import(data History) error {
	ids := make([]core.HypothesisID, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if !id.Valid() {
			return apperrors.InvalidHistory(string(id), -1, "hypothesis id is malformed")
		}
		for i, tr := range data[id] {
			if tr.HypothesisID != id {
				return apperrors.InvalidHistory(string(id), i,
					"transition belongs to "+string(tr.HypothesisID))
			}
			if err := validateRecord(tr); err != nil {
				return apperrors.InvalidHistory(string(id), i, err.Error())
			}
			if i > 0 && data[id][i-1].ToState != tr.FromState {
				return apperrors.InvalidHistory(string(id), i, "history is not contiguous")
			}
		}
	}

	entries := make(map[core.HypothesisID][]entry, len(data))
	var seq uint64
	for _, id := range ids {
		list := make([]entry, 0, len(data[id]))
		for _, tr := range data[id] {
			seq++
			list = append(list, entry{seq: seq, transition: tr})
		}
		entries[id] = list
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.seq = seq
	return nil
}

func unwrap(list []entry) []hypothesis.Transition {
	if len(list) == 0 {
		return nil
	}
	out := make([]hypothesis.Transition, len(list))
	for i, e := range list {
		out[i] = e.transition
	}
	return out
}

func chronological(list []entry) []hypothesis.Transition {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].transition.Timestamp, list[j].transition.Timestamp
		if !a.Equal(b) {
			return a.Before(b)
		}
		return list[i].seq < list[j].seq
	})
	return unwrap(list)
}
