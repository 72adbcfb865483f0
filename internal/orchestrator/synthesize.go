package orchestrator

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/stagecraft/internal/decision"
)

// Synthesis approaches offered by the default strategy chooser.
const (
	SynthesisMergeAll  = "merge-all"
	SynthesisFirstWins = "first-wins"
	SynthesisCascade   = "cascade"
)

// DefaultSynthesisChooser picks merge-all with the standard set of
// alternatives.
func DefaultSynthesisChooser(results []ExecutionResult, runCtx Context) SynthesisStrategy {
	return SynthesisStrategy{
		Approach:     SynthesisMergeAll,
		Alternatives: []string{SynthesisMergeAll, SynthesisFirstWins, SynthesisCascade},
		Reasoning:    "merge-all keeps every flavor's synthesis output keyed by flavor name",
		Confidence:   0.8,
	}
}

// synthesize validates and merges per-flavor outputs into one
// stage-level artifact, and records the synthesis-approach decision.
func (o *Orchestrator) synthesize(ctx context.Context, stage Stage, runCtx Context, results []ExecutionResult) (StageArtifact, *decision.Decision, error) {
	// A missing synthesis value is a configuration error in the flavor
	// or executor; zero values like 0 and false are valid.
	for _, r := range results {
		if r.Synthesis.Value == nil {
			return StageArtifact{}, nil, fmt.Errorf("synthesize: flavor %s produced no synthesis value", r.FlavorName)
		}
	}

	strategy := o.chooseSynth(results, runCtx)
	if !containsString(strategy.Alternatives, strategy.Approach) {
		return StageArtifact{}, nil, fmt.Errorf("synthesize: approach %q is not among its own alternatives %v",
			strategy.Approach, strategy.Alternatives)
	}

	values := make(map[string]any, len(results))
	for _, r := range results {
		values[r.FlavorName] = r.Synthesis.Value
	}

	artifact := StageArtifact{
		Name:   stage.Category + "-synthesis",
		Values: values,
	}

	dec, err := o.decisions.Record(ctx, decision.Input{
		StageCategory: stage.Category,
		Type:          decision.TypeSynthesisApproach,
		Context:       decisionContext(runCtx),
		Options:       strategy.Alternatives,
		Selection:     strategy.Approach,
		Reasoning:     strategy.Reasoning,
		Confidence:    strategy.Confidence,
	})
	if err != nil {
		return StageArtifact{}, nil, fmt.Errorf("synthesize: failed to record synthesis-approach decision: %w", err)
	}

	return artifact, dec, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
