package orchestrator

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/stagecraft/internal/decision"
	"github.com/fyrsmithlabs/stagecraft/internal/flavor"
	"github.com/fyrsmithlabs/stagecraft/internal/scoring"
)

// HintStrategy controls how a flavor hint shapes the candidate set.
type HintStrategy string

const (
	// HintRestrict narrows candidates to the recommended names only.
	HintRestrict HintStrategy = "restrict"

	// HintPrefer leaves candidates untouched but scores recommended
	// names higher.
	HintPrefer HintStrategy = "prefer"
)

// FlavorHint is an optional caller nudge toward specific flavors.
type FlavorHint struct {
	Recommended []string     `json:"recommended" koanf:"recommended"`
	Strategy    HintStrategy `json:"strategy" koanf:"strategy"`
}

// Context is the per-run input to the orchestrator. It is read-only
// for the duration of a run.
type Context struct {
	// BetTitle and BetDescription describe the current bet/task.
	BetTitle       string `json:"bet_title,omitempty" koanf:"bet_title"`
	BetDescription string `json:"bet_description,omitempty" koanf:"bet_description"`

	// Artifacts are the names of artifacts available to the stage.
	Artifacts []string `json:"artifacts,omitempty" koanf:"artifacts"`

	// Learnings are prior learnings relevant to this run.
	Learnings []string `json:"learnings,omitempty" koanf:"learnings"`

	// Hint optionally restricts or biases flavor selection.
	Hint *FlavorHint `json:"hint,omitempty" koanf:"hint"`

	// ActiveKatakaID is the agent running this stage, if any. A
	// flavor's own agent affinity overrides it during execution.
	ActiveKatakaID string `json:"active_kataka_id,omitempty" koanf:"active_kataka_id"`
}

// Text returns the free-text surface of the context used for rule and
// keyword matching.
func (c Context) Text() string {
	return strings.TrimSpace(c.BetTitle + " " + c.BetDescription)
}

// Stage is the definition of one stage to orchestrate.
type Stage struct {
	Category         string              `json:"category" koanf:"category"`
	AvailableFlavors []string            `json:"available_flavors" koanf:"available_flavors"`
	PinnedFlavors    []string            `json:"pinned_flavors,omitempty" koanf:"pinned_flavors"`
	ExcludedFlavors  []string            `json:"excluded_flavors,omitempty" koanf:"excluded_flavors"`
	Vocabulary       *scoring.Vocabulary `json:"vocabulary,omitempty" koanf:"vocabulary"`
}

// ExecutionMode is how selected flavors are dispatched.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// MatchReport explains the score assigned to one candidate flavor.
// Scores are always clamped to [0, 1].
type MatchReport struct {
	FlavorName     string   `json:"flavor_name"`
	Score          float64  `json:"score"`
	KeywordHits    []string `json:"keyword_hits,omitempty"`
	RuleAdjustment float64  `json:"rule_adjustment"`
	LearningBoost  float64  `json:"learning_boost"`
	Reasoning      string   `json:"reasoning"`
}

// CapabilityProfile snapshots the context and active rules used for the
// capability-analysis decision. It is discarded after the run.
type CapabilityProfile struct {
	StageCategory string   `json:"stage_category"`
	BetTitle      string   `json:"bet_title,omitempty"`
	Artifacts     []string `json:"artifacts,omitempty"`
	LearningCount int      `json:"learning_count"`
	ActiveRuleIDs []string `json:"active_rule_ids,omitempty"`
	HintStrategy  string   `json:"hint_strategy,omitempty"`
}

// SynthesisArtifact is one flavor's contribution to the stage artifact.
// Value must be present; zero values like 0 or false are valid, nil is
// not.
type SynthesisArtifact struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// ExecutionResult is the output of running one flavor.
type ExecutionResult struct {
	FlavorName string            `json:"flavor_name"`
	Artifacts  map[string]any    `json:"artifacts,omitempty"`
	Synthesis  SynthesisArtifact `json:"synthesis_artifact"`
}

// StageArtifact is the merged, stage-level output of all flavors.
type StageArtifact struct {
	Name   string         `json:"name"`
	Values map[string]any `json:"values"`
}

// SynthesisStrategy is the pluggable choice of how to merge flavor
// outputs. Approach must be a member of Alternatives; the orchestrator
// rejects a strategy that is not, guarding against misconfigured
// overrides.
type SynthesisStrategy struct {
	Approach     string   `json:"approach"`
	Alternatives []string `json:"alternatives"`
	Reasoning    string   `json:"reasoning"`
	Confidence   float64  `json:"confidence"`
}

// OutcomeRecord pairs a decision with the outcome pushed for it.
type OutcomeRecord struct {
	DecisionID string           `json:"decision_id"`
	Outcome    decision.Outcome `json:"outcome"`
}

// Reflection is the post-execution bookkeeping result.
type Reflection struct {
	DecisionOutcomes []OutcomeRecord          `json:"decision_outcomes"`
	Learnings        []string                 `json:"learnings"`
	RuleSuggestions  []string                 `json:"rule_suggestions,omitempty"`
	OverallQuality   decision.ArtifactQuality `json:"overall_quality"`
}

// Result is the full output of one orchestration run.
type Result struct {
	StageCategory   string               `json:"stage_category"`
	SelectedFlavors []string             `json:"selected_flavors"`
	Decisions       []*decision.Decision `json:"decisions"`
	FlavorResults   []ExecutionResult    `json:"flavor_results"`
	StageArtifact   StageArtifact        `json:"stage_artifact"`
	ExecutionMode   ExecutionMode        `json:"execution_mode"`
	Capability      CapabilityProfile    `json:"capability_profile"`
	MatchReports    []MatchReport        `json:"match_reports"`
	Reflection      Reflection           `json:"reflection"`
	Gaps            []scoring.GapReport  `json:"gaps,omitempty"`
}

// Executor is the sole work-performing boundary. Its internals are out
// of the engine's scope; the engine only dispatches and aggregates.
type Executor interface {
	Execute(ctx context.Context, f *flavor.Flavor, runCtx Context) (*ExecutionResult, error)
}

// ScoreFunc computes a flavor's relevance. The default delegates to the
// stage vocabulary; injecting one customizes scoring per category
// without subclassing.
type ScoreFunc func(vocab *scoring.Vocabulary, in scoring.Input) scoring.Breakdown

// SynthesisChooser picks the synthesis strategy for a set of results.
type SynthesisChooser func(results []ExecutionResult, runCtx Context) SynthesisStrategy
