package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/jackzampolin/syncbridge/internal/atomicfile"
)

// ProgressStore is the persistent mapping registry and per-mapping
// reconciliation state. Both backing files are rewritten
// atomically; a missing or truncated file is treated as empty state.
type ProgressStore struct {
	mu           sync.RWMutex
	mappingsPath string
	statesPath   string
	mappings     []Mapping
	states       statesDoc
}

// Open loads (or initializes) the two backing files at mappingsPath and
// statesPath and applies startup recovery.
func Open(mappingsPath, statesPath string) (*ProgressStore, error) {
	s := &ProgressStore{
		mappingsPath: mappingsPath,
		statesPath:   statesPath,
		states:       make(statesDoc),
	}

	var md mappingsDoc
	found, err := atomicfile.ReadJSON(mappingsPath, &md)
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}
	if found {
		s.mappings = md.Mappings
	}

	var sd statesDoc
	found, err = atomicfile.ReadJSON(statesPath, &sd)
	if err != nil {
		return nil, fmt.Errorf("failed to load states: %w", err)
	}
	if found && sd != nil {
		for id, state := range sd {
			state.Normalize()
			s.states[id] = state
		}
	}

	if err := s.recoverStaleJobs(); err != nil {
		return nil, err
	}

	return s, nil
}

// recoverStaleJobs rewrites any mapping stuck in "processing" back to
// "active", forgiving a crash mid-cycle. "pending_transcript" mappings are
// left untouched until their transcript artifact appears.
func (s *ProgressStore) recoverStaleJobs() error {
	s.mu.Lock()
	changed := false
	for i := range s.mappings {
		if s.mappings[i].Status == StatusProcessing || s.mappings[i].Status == StatusCrashed {
			s.mappings[i].Status = StatusActive
			changed = true
		}
	}
	s.mu.Unlock()

	if !changed {
		return nil
	}
	return s.saveMappings()
}

// AddMapping appends a new mapping in pending_transcript status and
// persists it.
func (s *ProgressStore) AddMapping(m Mapping) error {
	s.mu.Lock()
	m.Status = StatusPendingTranscript
	s.mappings = append(s.mappings, m)
	s.mu.Unlock()

	return s.saveMappings()
}

// RemoveMapping deletes the mapping with the given ab_id and its
// ReconState, if present. Returns false if no such mapping existed.
func (s *ProgressStore) RemoveMapping(abID string) (bool, error) {
	s.mu.Lock()
	kept := s.mappings[:0:0]
	removed := false
	for _, m := range s.mappings {
		if m.ABID == abID {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	s.mappings = kept
	_, hadState := s.states[abID]
	delete(s.states, abID)
	s.mu.Unlock()

	if !removed {
		return false, nil
	}

	if err := s.saveMappings(); err != nil {
		return false, err
	}
	if hadState {
		if err := s.saveStates(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ListMappings returns a snapshot of all mappings.
func (s *ProgressStore) ListMappings() []Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Mapping, len(s.mappings))
	copy(out, s.mappings)
	return out
}

// SetStatus updates abID's status in place and persists the mappings file.
func (s *ProgressStore) SetStatus(abID string, status Status) error {
	s.mu.Lock()
	found := false
	for i := range s.mappings {
		if s.mappings[i].ABID == abID {
			s.mappings[i].Status = status
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("no mapping with ab_id %q", abID)
	}
	return s.saveMappings()
}

// SetTranscriptRef records the transcript handle for abID and persists it.
func (s *ProgressStore) SetTranscriptRef(abID, ref string) error {
	s.mu.Lock()
	found := false
	for i := range s.mappings {
		if s.mappings[i].ABID == abID {
			s.mappings[i].TranscriptRef = ref
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("no mapping with ab_id %q", abID)
	}
	return s.saveMappings()
}

// GetState returns abID's ReconState, defaulted to the zero value if no
// cycle has reconciled this mapping yet.
func (s *ProgressStore) GetState(abID string) ReconState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.states[abID]
	return state
}

// PutState overwrites abID's ReconState and persists it. LastUpdated is
// always set to now.
func (s *ProgressStore) PutState(abID string, state ReconState, now time.Time) error {
	state.LastUpdated = now

	s.mu.Lock()
	s.states[abID] = state
	s.mu.Unlock()

	return s.saveStates()
}

func (s *ProgressStore) saveMappings() error {
	s.mu.RLock()
	doc := mappingsDoc{Mappings: append([]Mapping(nil), s.mappings...)}
	s.mu.RUnlock()

	if err := atomicfile.WriteJSON(s.mappingsPath, doc); err != nil {
		return fmt.Errorf("failed to save mappings: %w", err)
	}
	return nil
}

func (s *ProgressStore) saveStates() error {
	s.mu.RLock()
	doc := make(statesDoc, len(s.states))
	for k, v := range s.states {
		doc[k] = v
	}
	s.mu.RUnlock()

	if err := atomicfile.WriteJSON(s.statesPath, doc); err != nil {
		return fmt.Errorf("failed to save states: %w", err)
	}
	return nil
}
