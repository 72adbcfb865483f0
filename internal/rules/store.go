package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory rule registry for tests and embedding.
type MemoryStore struct {
	mu          sync.RWMutex
	rules       []StageRule
	suggestions []Suggestion
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add registers a rule, assigning an id and timestamp if missing.
func (s *MemoryStore) Add(r StageRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.rules = append(s.rules, r)
	return nil
}

// LoadRules returns all rules for the category.
func (s *MemoryStore) LoadRules(ctx context.Context, category string) ([]StageRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StageRule
	for _, r := range s.rules {
		if category == "" || r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

// SuggestRule records a rule proposal with pending status.
func (s *MemoryStore) SuggestRule(ctx context.Context, input SuggestionInput) (*Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sg := newSuggestion(input)
	s.suggestions = append(s.suggestions, *sg)
	return sg, nil
}

// PendingSuggestions returns suggestions awaiting review.
func (s *MemoryStore) PendingSuggestions(ctx context.Context) ([]Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Suggestion
	for _, sg := range s.suggestions {
		if sg.Status == SuggestionPending {
			out = append(out, sg)
		}
	}
	return out, nil
}

// ruleFileData is the persisted rule store structure.
type ruleFileData struct {
	Version     int          `json:"version"`
	Rules       []StageRule  `json:"rules"`
	Suggestions []Suggestion `json:"suggestions"`
}

// FileStore is a JSON-file-backed rule registry.
type FileStore struct {
	mu       sync.RWMutex
	filePath string
	data     ruleFileData
}

// NewFileStore opens (or initializes) a rule store at the given path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		filePath: path,
		data:     ruleFileData{Version: 1},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create rule store directory: %w", err)
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load rule store: %w", err)
	}

	return s, nil
}

// Add registers a rule and persists the store.
func (s *FileStore) Add(r StageRule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	// A failed save must not leave a phantom rule in memory.
	s.data.Rules = append(s.data.Rules, r)
	if err := s.save(); err != nil {
		s.data.Rules = s.data.Rules[:len(s.data.Rules)-1]
		return err
	}
	return nil
}

// LoadRules returns all rules for the category.
func (s *FileStore) LoadRules(ctx context.Context, category string) ([]StageRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StageRule
	for _, r := range s.data.Rules {
		if category == "" || r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

// SuggestRule records a rule proposal with pending status and persists it.
func (s *FileStore) SuggestRule(ctx context.Context, input SuggestionInput) (*Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sg := newSuggestion(input)
	s.data.Suggestions = append(s.data.Suggestions, *sg)
	if err := s.save(); err != nil {
		s.data.Suggestions = s.data.Suggestions[:len(s.data.Suggestions)-1]
		return nil, err
	}
	return sg, nil
}

// PendingSuggestions returns suggestions awaiting review.
func (s *FileStore) PendingSuggestions(ctx context.Context) ([]Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Suggestion
	for _, sg := range s.data.Suggestions {
		if sg.Status == SuggestionPending {
			out = append(out, sg)
		}
	}
	return out, nil
}

// newSuggestion assigns identity, status and time to a proposal.
func newSuggestion(input SuggestionInput) *Suggestion {
	return &Suggestion{
		ID:         uuid.New().String(),
		Category:   input.Category,
		Name:       input.Name,
		Condition:  input.Condition,
		Effect:     input.Effect,
		Magnitude:  input.Magnitude,
		Confidence: input.Confidence,
		Source:     input.Source,
		Evidence:   input.Evidence,
		Status:     SuggestionPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// load reads the store from disk.
func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var fd ruleFileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("rule store corrupted: %w", err)
	}
	s.data = fd
	return nil
}

// save writes the store to disk atomically.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rule store: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write rule store: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename rule store: %w", err)
	}
	return nil
}

// Ensure implementations satisfy the Registry port.
var (
	_ Registry = (*MemoryStore)(nil)
	_ Registry = (*FileStore)(nil)
)
