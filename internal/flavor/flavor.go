// Package flavor defines execution flavors and their registry.
//
// A flavor is a named, concrete execution strategy for a stage. Many
// flavors may exist per stage category; the orchestrator resolves them
// by category and name through a Registry.
package flavor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Errors for flavor operations.
var (
	ErrNotFound      = errors.New("flavor not found")
	ErrEmptyName     = errors.New("flavor name cannot be empty")
	ErrEmptyCategory = errors.New("stage category cannot be empty")
	ErrNoSteps       = errors.New("flavor must define at least one step")
)

// Flavor is an immutable execution strategy definition.
//
// Kataka is an optional agent affinity: when set, the orchestrator runs
// this flavor under that agent id instead of the run-level one.
type Flavor struct {
	Name              string   `json:"name" koanf:"name"`
	StageCategory     string   `json:"stage_category" koanf:"stage_category"`
	Steps             []string `json:"steps" koanf:"steps"`
	SynthesisArtifact string   `json:"synthesis_artifact" koanf:"synthesis_artifact"`
	Description       string   `json:"description,omitempty" koanf:"description"`
	Kataka            string   `json:"kataka,omitempty" koanf:"kataka"`
}

// Validate checks the flavor definition for required fields.
func (f *Flavor) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(f.StageCategory) == "" {
		return ErrEmptyCategory
	}
	if len(f.Steps) == 0 {
		return ErrNoSteps
	}
	if strings.TrimSpace(f.SynthesisArtifact) == "" {
		return fmt.Errorf("flavor %s: synthesis artifact name cannot be empty", f.Name)
	}
	return nil
}

// Key returns the registry key for a category/name pair.
func Key(category, name string) string {
	return category + "/" + name
}

// Registry resolves flavor definitions by category and name.
//
// Get returns ErrNotFound (via errors.Is) when no flavor matches; the
// orchestrator treats only that kind as recoverable.
type Registry interface {
	Get(ctx context.Context, category, name string) (*Flavor, error)
	List(ctx context.Context, category string) ([]*Flavor, error)
}
