package resolution

import (
	"sort"
	"sync"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"

	"github.com/google/uuid"
)

// SuggestionStore owns the suggestion map. Readers get copies; the map only
// changes when a pass completes or the workflow moves a contact out of it.
// Every change is announced to the registered sinks.
type SuggestionStore struct {
	mu          sync.RWMutex
	generation  uint64
	suggestions map[int64]*domain.Suggestion
	states      map[int64]domain.SuggestionState
	claims      map[int64]struct{}
	appliedAt   time.Time

	sinks []out.SuggestionEventSink
	now   func() time.Time
}

// NewSuggestionStore creates an empty store.
func NewSuggestionStore(sinks ...out.SuggestionEventSink) *SuggestionStore {
	return &SuggestionStore{
		suggestions: make(map[int64]*domain.Suggestion),
		states:      make(map[int64]domain.SuggestionState),
		claims:      make(map[int64]struct{}),
		sinks:       sinks,
		now:         time.Now,
	}
}

// AddSink registers another event sink.
func (s *SuggestionStore) AddSink(sink out.SuggestionEventSink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// BeginPass starts a new generation. Results of older generations are
// rejected by Apply from now on.
func (s *SuggestionStore) BeginPass() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// Generation returns the newest generation handed out by BeginPass.
func (s *SuggestionStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// IsCurrent reports whether gen is still the newest generation.
func (s *SuggestionStore) IsCurrent(gen uint64) bool {
	return s.Generation() == gen
}

// Apply replaces the map with the results of pass gen. It returns false and
// leaves the map untouched when gen has been superseded.
func (s *SuggestionStore) Apply(gen uint64, results map[int64]*domain.Suggestion) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}

	next := make(map[int64]*domain.Suggestion, len(results))
	ids := make([]int64, 0, len(results))
	for id, sug := range results {
		if sug == nil {
			continue
		}
		cp := *sug
		cp.Generation = gen
		next[id] = &cp
		if _, held := s.claims[id]; held {
			s.states[id] = domain.StateConfirming
		} else {
			s.states[id] = domain.StateSuggested
		}
		ids = append(ids, id)
	}
	s.suggestions = next
	s.appliedAt = s.now()
	sinks := s.sinks
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.emit(sinks, out.EventPassCompleted, gen, ids, len(ids))
	return true
}

// Get returns a copy of the suggestion for a contact.
func (s *SuggestionStore) Get(contactID int64) (*domain.Suggestion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sug, ok := s.suggestions[contactID]
	if !ok {
		return nil, false
	}
	cp := *sug
	return &cp, true
}

// Snapshot returns a copy of the whole map and its generation.
func (s *SuggestionStore) Snapshot() (map[int64]*domain.Suggestion, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[int64]*domain.Suggestion, len(s.suggestions))
	for id, sug := range s.suggestions {
		cp := *sug
		snap[id] = &cp
	}
	return snap, s.generation
}

// Len returns the number of pending suggestions.
func (s *SuggestionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.suggestions)
}

// AppliedAt returns when the map was last replaced.
func (s *SuggestionStore) AppliedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appliedAt
}

// State returns the workflow state of a contact, or "" when unknown.
func (s *SuggestionStore) State(contactID int64) domain.SuggestionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[contactID]
}

// Claim reserves contactID for one accept or reject. It returns false while
// another caller holds the claim. The claim ends with MarkAccepted,
// MarkRejected, Drop or Release.
func (s *SuggestionStore) Claim(contactID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.claims[contactID]; held {
		return false
	}
	s.claims[contactID] = struct{}{}
	if _, ok := s.suggestions[contactID]; ok {
		s.states[contactID] = domain.StateConfirming
	}
	return true
}

// Release ends a claim without a transition. A suggestion still in the map
// returns to the suggested state so the caller can retry.
func (s *SuggestionStore) Release(contactID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, contactID)
	if _, ok := s.suggestions[contactID]; ok {
		s.states[contactID] = domain.StateSuggested
	}
}

// MarkAccepted removes the contact's suggestion after a successful accept.
func (s *SuggestionStore) MarkAccepted(contactID int64) {
	s.transition(contactID, domain.StateAccepted, out.EventAccepted)
}

// MarkRejected removes the contact's suggestion and returns it.
func (s *SuggestionStore) MarkRejected(contactID int64) (*domain.Suggestion, bool) {
	return s.transition(contactID, domain.StateRejected, out.EventRejected)
}

// Drop removes a suggestion that no longer applies.
func (s *SuggestionStore) Drop(contactID int64) {
	s.transition(contactID, "", out.EventDropped)
}

func (s *SuggestionStore) transition(contactID int64, state domain.SuggestionState, event out.SuggestionEventType) (*domain.Suggestion, bool) {
	s.mu.Lock()
	sug, ok := s.suggestions[contactID]
	delete(s.suggestions, contactID)
	delete(s.claims, contactID)
	if state == "" {
		delete(s.states, contactID)
	} else {
		s.states[contactID] = state
	}
	gen := s.generation
	remaining := len(s.suggestions)
	sinks := s.sinks
	s.mu.Unlock()

	s.emit(sinks, event, gen, []int64{contactID}, remaining)
	return sug, ok
}

func (s *SuggestionStore) emit(sinks []out.SuggestionEventSink, typ out.SuggestionEventType, gen uint64, ids []int64, count int) {
	if len(sinks) == 0 {
		return
	}
	event := &out.SuggestionsUpdatedEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Generation: gen,
		ContactIDs: ids,
		Count:      count,
		OccurredAt: s.now(),
	}
	for _, sink := range sinks {
		sink.Notify(event)
	}
}
