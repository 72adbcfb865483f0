// Package decision defines the immutable, replayable decision records
// the orchestrator produces, and the registry that persists them.
//
// Every non-deterministic judgment the engine makes is captured as a
// Decision: what the options were, what was selected, why, and with
// what confidence. Decisions are never mutated after recording; their
// outcomes arrive later through UpdateOutcome.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/stagecraft/internal/rules"
)

// Errors for decision operations.
var (
	ErrNotFound          = errors.New("decision not found")
	ErrInvalidType       = errors.New("invalid decision type")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
)

// Type identifies what kind of judgment a decision records.
type Type string

const (
	// TypeCapabilityAnalysis snapshots context and active rules before matching.
	TypeCapabilityAnalysis Type = "capability-analysis"

	// TypeFlavorSelection records which flavor set was chosen and why.
	TypeFlavorSelection Type = "flavor-selection"

	// TypeExecutionMode records the sequential-vs-parallel choice.
	TypeExecutionMode Type = "execution-mode"

	// TypeSynthesisApproach records how flavor outputs were merged.
	TypeSynthesisApproach Type = "synthesis-approach"

	// TypeGapAssessment records vocabulary coverage gaps. Recording it
	// is attempted on every run but failure to persist is non-fatal.
	TypeGapAssessment Type = "gap-assessment"
)

// IsValid checks if the type is one of the defined constants.
func (t Type) IsValid() bool {
	switch t {
	case TypeCapabilityAnalysis, TypeFlavorSelection, TypeExecutionMode,
		TypeSynthesisApproach, TypeGapAssessment:
		return true
	default:
		return false
	}
}

// Input is a decision before the registry assigns identity and time.
type Input struct {
	StageCategory string            `json:"stage_category"`
	Type          Type              `json:"decision_type"`
	Context       map[string]string `json:"context,omitempty"`
	Options       []string          `json:"options"`
	Selection     string            `json:"selection"`
	Reasoning     string            `json:"reasoning"`
	Confidence    float64           `json:"confidence"`
}

// Validate checks the input for well-formedness.
func (in *Input) Validate() error {
	if !in.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, in.Type)
	}
	if in.Confidence < 0.0 || in.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	if strings.TrimSpace(in.Reasoning) == "" {
		return errors.New("reasoning is required")
	}
	return nil
}

// Decision is an immutable, timestamped record of a judgment.
type Decision struct {
	ID            string            `json:"id"`
	StageCategory string            `json:"stage_category"`
	Type          Type              `json:"decision_type"`
	Context       map[string]string `json:"context,omitempty"`
	Options       []string          `json:"options"`
	Selection     string            `json:"selection"`
	Reasoning     string            `json:"reasoning"`
	Confidence    float64           `json:"confidence"`
	DecidedAt     time.Time         `json:"decided_at"`
}

// String returns a human-readable representation of the decision.
func (d *Decision) String() string {
	if d == nil {
		return "<nil decision>"
	}
	return fmt.Sprintf("Decision{Type: %s, Selection: %s, Confidence: %.2f}",
		d.Type, d.Selection, d.Confidence)
}

// ArtifactQuality grades the artifact a decision led to.
type ArtifactQuality string

const (
	QualityGood    ArtifactQuality = "good"
	QualityPartial ArtifactQuality = "partial"
	QualityPoor    ArtifactQuality = "poor"
)

// Outcome is the post-execution result attached to a decision.
//
// GateResult is "passed" for good outcomes and empty otherwise.
type Outcome struct {
	ArtifactQuality ArtifactQuality `json:"artifact_quality"`
	GateResult      string          `json:"gate_result,omitempty"`
	ReworkRequired  bool            `json:"rework_required"`
}

// Registry persists decisions and their outcomes.
//
// Record assigns id and time. The registry may be backed by concurrent
// storage; callers assume its methods are safe to invoke from
// concurrent flavor dispatch.
type Registry interface {
	Record(ctx context.Context, input Input) (*Decision, error)
	UpdateOutcome(ctx context.Context, decisionID string, outcome Outcome) error
	PendingSuggestions(ctx context.Context) ([]rules.Suggestion, error)
}
