package flavor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryRegistry is an in-memory Registry, used in tests and as the
// backing for embedded setups.
type MemoryRegistry struct {
	mu      sync.RWMutex
	flavors map[string]*Flavor // key: category/name
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{flavors: make(map[string]*Flavor)}
}

// Put registers or replaces a flavor definition.
func (r *MemoryRegistry) Put(f *Flavor) error {
	if err := f.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.flavors[Key(f.StageCategory, f.Name)] = &cp
	return nil
}

// Get returns the flavor for category/name, or ErrNotFound.
func (r *MemoryRegistry) Get(ctx context.Context, category, name string) (*Flavor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flavors[Key(category, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}
	cp := *f
	return &cp, nil
}

// List returns all flavors, optionally filtered by category.
func (r *MemoryRegistry) List(ctx context.Context, category string) ([]*Flavor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Flavor
	for _, f := range r.flavors {
		if category != "" && f.StageCategory != category {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// fileData is the persisted registry structure.
type fileData struct {
	Version int       `json:"version"`
	Flavors []*Flavor `json:"flavors"`
}

// FileRegistry is a JSON-file-backed Registry.
type FileRegistry struct {
	mu       sync.RWMutex
	filePath string
	flavors  map[string]*Flavor
}

// NewFileRegistry opens (or initializes) a registry at the given path.
func NewFileRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{
		filePath: path,
		flavors:  make(map[string]*Flavor),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	if err := r.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load flavor registry: %w", err)
	}

	return r, nil
}

// Put registers or replaces a flavor definition and persists the registry.
func (r *FileRegistry) Put(f *Flavor) error {
	if err := f.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A failed save must not leave a phantom entry in memory.
	key := Key(f.StageCategory, f.Name)
	prev, had := r.flavors[key]
	cp := *f
	r.flavors[key] = &cp
	if err := r.save(); err != nil {
		if had {
			r.flavors[key] = prev
		} else {
			delete(r.flavors, key)
		}
		return err
	}
	return nil
}

// Get returns the flavor for category/name, or ErrNotFound.
func (r *FileRegistry) Get(ctx context.Context, category, name string) (*Flavor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flavors[Key(category, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}
	cp := *f
	return &cp, nil
}

// List returns all flavors, optionally filtered by category.
func (r *FileRegistry) List(ctx context.Context, category string) ([]*Flavor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Flavor
	for _, f := range r.flavors {
		if category != "" && f.StageCategory != category {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// load reads the registry from disk.
func (r *FileRegistry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("flavor registry corrupted: %w", err)
	}

	for _, f := range fd.Flavors {
		r.flavors[Key(f.StageCategory, f.Name)] = f
	}
	return nil
}

// save writes the registry to disk atomically.
func (r *FileRegistry) save() error {
	fd := fileData{Version: 1}
	for _, f := range r.flavors {
		fd.Flavors = append(fd.Flavors, f)
	}
	sort.Slice(fd.Flavors, func(i, j int) bool {
		return Key(fd.Flavors[i].StageCategory, fd.Flavors[i].Name) < Key(fd.Flavors[j].StageCategory, fd.Flavors[j].Name)
	})

	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flavor registry: %w", err)
	}

	tmpPath := r.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write flavor registry: %w", err)
	}
	if err := os.Rename(tmpPath, r.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename flavor registry: %w", err)
	}
	return nil
}

// Ensure implementations satisfy the Registry port.
var (
	_ Registry = (*MemoryRegistry)(nil)
	_ Registry = (*FileRegistry)(nil)
)
