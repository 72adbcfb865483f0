package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/stagecraft/internal/rules"
)

// SuggestionSource exposes pending rule suggestions. The rule store
// implements it; decision stores delegate so callers can read proposals
// through the decision registry surface.
type SuggestionSource interface {
	PendingSuggestions(ctx context.Context) ([]rules.Suggestion, error)
}

// MemoryStore is an in-memory decision registry for tests and embedding.
type MemoryStore struct {
	mu          sync.RWMutex
	decisions   []Decision
	outcomes    map[string]Outcome
	suggestions SuggestionSource
}

// NewMemoryStore creates an empty in-memory decision store.
// suggestions may be nil, in which case PendingSuggestions returns empty.
func NewMemoryStore(suggestions SuggestionSource) *MemoryStore {
	return &MemoryStore{
		outcomes:    make(map[string]Outcome),
		suggestions: suggestions,
	}
}

// Record assigns id and time to the input and stores the decision.
func (s *MemoryStore) Record(ctx context.Context, input Input) (*Decision, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := fromInput(input)
	s.decisions = append(s.decisions, *d)
	return d, nil
}

// UpdateOutcome attaches an outcome to a recorded decision.
func (s *MemoryStore) UpdateOutcome(ctx context.Context, decisionID string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.decisions {
		if d.ID == decisionID {
			s.outcomes[decisionID] = outcome
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, decisionID)
}

// Outcome returns the recorded outcome for a decision, if any.
func (s *MemoryStore) Outcome(decisionID string) (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outcomes[decisionID]
	return o, ok
}

// Decisions returns a copy of all recorded decisions.
func (s *MemoryStore) Decisions() []Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Decision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// PendingSuggestions returns rule proposals awaiting review.
func (s *MemoryStore) PendingSuggestions(ctx context.Context) ([]rules.Suggestion, error) {
	if s.suggestions == nil {
		return nil, nil
	}
	return s.suggestions.PendingSuggestions(ctx)
}

// decisionFileData is the persisted decision store structure.
type decisionFileData struct {
	Version   int                `json:"version"`
	Decisions []Decision         `json:"decisions"`
	Outcomes  map[string]Outcome `json:"outcomes"`
}

// FileStore is a JSON-file-backed decision registry.
type FileStore struct {
	mu          sync.RWMutex
	filePath    string
	data        decisionFileData
	suggestions SuggestionSource
}

// NewFileStore opens (or initializes) a decision store at the given path.
// suggestions may be nil, in which case PendingSuggestions returns empty.
func NewFileStore(path string, suggestions SuggestionSource) (*FileStore, error) {
	s := &FileStore{
		filePath: path,
		data: decisionFileData{
			Version:  1,
			Outcomes: make(map[string]Outcome),
		},
		suggestions: suggestions,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create decision store directory: %w", err)
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load decision store: %w", err)
	}

	return s, nil
}

// Record assigns id and time to the input, stores and persists the decision.
func (s *FileStore) Record(ctx context.Context, input Input) (*Decision, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A failed save must not leave a phantom decision in memory.
	d := fromInput(input)
	s.data.Decisions = append(s.data.Decisions, *d)
	if err := s.save(); err != nil {
		s.data.Decisions = s.data.Decisions[:len(s.data.Decisions)-1]
		return nil, err
	}
	return d, nil
}

// UpdateOutcome attaches an outcome to a recorded decision and persists it.
func (s *FileStore) UpdateOutcome(ctx context.Context, decisionID string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, d := range s.data.Decisions {
		if d.ID == decisionID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, decisionID)
	}

	prev, had := s.data.Outcomes[decisionID]
	s.data.Outcomes[decisionID] = outcome
	if err := s.save(); err != nil {
		if had {
			s.data.Outcomes[decisionID] = prev
		} else {
			delete(s.data.Outcomes, decisionID)
		}
		return err
	}
	return nil
}

// PendingSuggestions returns rule proposals awaiting review.
func (s *FileStore) PendingSuggestions(ctx context.Context) ([]rules.Suggestion, error) {
	if s.suggestions == nil {
		return nil, nil
	}
	return s.suggestions.PendingSuggestions(ctx)
}

// fromInput builds a Decision with assigned identity and UTC time.
func fromInput(input Input) *Decision {
	return &Decision{
		ID:            uuid.New().String(),
		StageCategory: input.StageCategory,
		Type:          input.Type,
		Context:       input.Context,
		Options:       input.Options,
		Selection:     input.Selection,
		Reasoning:     input.Reasoning,
		Confidence:    input.Confidence,
		DecidedAt:     time.Now().UTC(),
	}
}

// load reads the store from disk.
func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var fd decisionFileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("decision store corrupted: %w", err)
	}
	if fd.Outcomes == nil {
		fd.Outcomes = make(map[string]Outcome)
	}
	s.data = fd
	return nil
}

// save writes the store to disk atomically.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal decision store: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write decision store: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename decision store: %w", err)
	}
	return nil
}

// Ensure implementations satisfy the Registry port.
var (
	_ Registry = (*MemoryStore)(nil)
	_ Registry = (*FileStore)(nil)
)
