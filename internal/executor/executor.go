// Package executor provides adapters for the orchestrator's executor
// port. The real work a flavor represents lives behind this boundary;
// these implementations cover tests and dry runs.
package executor

import (
	"context"

	"github.com/fyrsmithlabs/stagecraft/internal/flavor"
	"github.com/fyrsmithlabs/stagecraft/internal/orchestrator"
)

// Func adapts a plain function to the Executor port.
type Func func(ctx context.Context, f *flavor.Flavor, runCtx orchestrator.Context) (*orchestrator.ExecutionResult, error)

// Execute calls the wrapped function.
func (fn Func) Execute(ctx context.Context, f *flavor.Flavor, runCtx orchestrator.Context) (*orchestrator.ExecutionResult, error) {
	return fn(ctx, f, runCtx)
}

// Static returns pre-configured synthesis values per flavor name. It
// backs dry runs from the CLI and fixture-driven tests.
type Static struct {
	// Values maps flavor name to its synthesis value. Flavors without
	// an entry get DefaultValue.
	Values map[string]any

	// DefaultValue is used when Values has no entry for a flavor.
	// Defaults to the string "completed".
	DefaultValue any
}

// Execute returns a result carrying the configured synthesis value and
// an artifact noting which agent the flavor ran under.
func (s *Static) Execute(ctx context.Context, f *flavor.Flavor, runCtx orchestrator.Context) (*orchestrator.ExecutionResult, error) {
	value, ok := s.Values[f.Name]
	if !ok {
		value = s.DefaultValue
	}
	if value == nil {
		value = "completed"
	}

	artifacts := map[string]any{
		"steps_planned": len(f.Steps),
	}
	if runCtx.ActiveKatakaID != "" {
		artifacts["kataka_id"] = runCtx.ActiveKatakaID
	}

	return &orchestrator.ExecutionResult{
		FlavorName: f.Name,
		Artifacts:  artifacts,
		Synthesis: orchestrator.SynthesisArtifact{
			Name:  f.SynthesisArtifact,
			Value: value,
		},
	}, nil
}

// Ensure implementations satisfy the Executor port.
var (
	_ orchestrator.Executor = (Func)(nil)
	_ orchestrator.Executor = (*Static)(nil)
)
