// Package rules defines stage rules, their evaluation against run
// context, and the rule registry.
//
// Rules are data, never code: a rule's condition is free text matched
// by simple substring tokenization, not a DSL.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors for rule operations.
var (
	ErrInvalidEffect     = errors.New("effect must be exclude, require, boost or penalize")
	ErrInvalidMagnitude  = errors.New("magnitude must be between 0.0 and 1.0")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrEmptyTarget       = errors.New("rule target flavor name cannot be empty")
)

// Effect is what a firing rule does to its target flavor.
type Effect string

const (
	// EffectExclude removes the target flavor from consideration.
	EffectExclude Effect = "exclude"

	// EffectRequire pins the target flavor into the selection.
	EffectRequire Effect = "require"

	// EffectBoost raises the target flavor's relevance score.
	EffectBoost Effect = "boost"

	// EffectPenalize lowers the target flavor's relevance score.
	EffectPenalize Effect = "penalize"
)

// IsValid checks if the effect is one of the defined constants.
func (e Effect) IsValid() bool {
	switch e {
	case EffectExclude, EffectRequire, EffectBoost, EffectPenalize:
		return true
	default:
		return false
	}
}

// StageRule maps a free-text condition to an effect on a flavor.
//
// Magnitude and Confidence are multiplied when the rule adjusts a
// score, so a low-confidence rule moves the score less.
type StageRule struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Name       string    `json:"name"` // target flavor name
	Condition  string    `json:"condition"`
	Effect     Effect    `json:"effect"`
	Magnitude  float64   `json:"magnitude"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	Evidence   []string  `json:"evidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the rule for well-formedness.
func (r *StageRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyTarget
	}
	if !r.Effect.IsValid() {
		return fmt.Errorf("%w, got %q", ErrInvalidEffect, r.Effect)
	}
	if r.Magnitude < 0.0 || r.Magnitude > 1.0 {
		return ErrInvalidMagnitude
	}
	if r.Confidence < 0.0 || r.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	return nil
}

// Weight is the score delta a firing boost/penalize rule contributes.
func (r *StageRule) Weight() float64 {
	return r.Magnitude * r.Confidence
}

// SuggestionStatus is the review state of a proposed rule.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// SuggestionInput is a rule proposal before the registry assigns
// identity and status.
type SuggestionInput struct {
	Category   string   `json:"category"`
	Name       string   `json:"name"`
	Condition  string   `json:"condition"`
	Effect     Effect   `json:"effect"`
	Magnitude  float64  `json:"magnitude"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
}

// Suggestion is a persisted rule proposal awaiting review.
type Suggestion struct {
	ID         string           `json:"id"`
	Category   string           `json:"category"`
	Name       string           `json:"name"`
	Condition  string           `json:"condition"`
	Effect     Effect           `json:"effect"`
	Magnitude  float64          `json:"magnitude"`
	Confidence float64          `json:"confidence"`
	Source     string           `json:"source,omitempty"`
	Evidence   []string         `json:"evidence,omitempty"`
	Status     SuggestionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Registry loads active rules and records rule proposals.
//
// Rules are loaded fresh for every orchestration run; the registry owns
// their lifecycle and the engine never mutates them.
type Registry interface {
	LoadRules(ctx context.Context, category string) ([]StageRule, error)
	SuggestRule(ctx context.Context, input SuggestionInput) (*Suggestion, error)
}
