package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stagecraft/internal/flavor"
	"github.com/fyrsmithlabs/stagecraft/internal/logging"
	"github.com/fyrsmithlabs/stagecraft/internal/rules"
	"github.com/fyrsmithlabs/stagecraft/internal/scoring"
)

// matchOutcome is the match phase's hand-off to planning.
type matchOutcome struct {
	// Pinned flavors, in pin order. Always part of the selection.
	Pinned []*flavor.Flavor

	// Candidates are the resolved, non-pinned flavors, in stage order.
	Candidates []*flavor.Flavor

	// Reports holds one MatchReport per scored candidate.
	Reports []MatchReport

	// Scores indexes candidate scores by flavor name.
	Scores map[string]float64
}

// match resolves, filters and scores the stage's flavors against the
// run context and the classified rule effects.
func (o *Orchestrator) match(ctx context.Context, stage Stage, runCtx Context, cls rules.Classification, log *logging.Logger) (*matchOutcome, error) {
	excluded := make(map[string]bool)
	for _, name := range stage.ExcludedFlavors {
		excluded[name] = true
	}
	for name := range cls.Excluded {
		excluded[name] = true
	}

	// Pin order: stage config first, then rule-required names.
	// Exclusion always wins over pinning and requirement.
	var pinnedNames []string
	pinnedSeen := make(map[string]bool)
	for _, name := range stage.PinnedFlavors {
		if excluded[name] {
			log.Warn("flavor is both pinned and excluded; exclusion wins", zap.String("flavor", name))
			continue
		}
		if !pinnedSeen[name] {
			pinnedSeen[name] = true
			pinnedNames = append(pinnedNames, name)
		}
	}
	for _, name := range sortedNames(cls.Required) {
		if excluded[name] || pinnedSeen[name] {
			continue
		}
		pinnedSeen[name] = true
		pinnedNames = append(pinnedNames, name)
	}

	var candidateNames []string
	for _, name := range stage.AvailableFlavors {
		if !excluded[name] && !pinnedSeen[name] {
			candidateNames = append(candidateNames, name)
		}
	}

	pinned, err := o.resolveFlavors(ctx, stage.Category, pinnedNames, log)
	if err != nil {
		return nil, err
	}

	if len(candidateNames) == 0 && len(pinned) == 0 {
		return nil, fmt.Errorf("match: no candidate flavors for %s: all available flavors excluded and no pinned fallback", stage.Category)
	}

	candidates, err := o.resolveFlavors(ctx, stage.Category, candidateNames, log)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 && len(pinned) == 0 {
		return nil, fmt.Errorf("match: no flavors resolved for %s", stage.Category)
	}

	// A restrict hint narrows candidates to the recommended set only; a
	// prefer hint is applied later as a score boost.
	preferred := make(map[string]bool)
	if runCtx.Hint != nil {
		recommended := make(map[string]bool)
		for _, name := range runCtx.Hint.Recommended {
			recommended[name] = true
		}

		switch runCtx.Hint.Strategy {
		case HintRestrict:
			var narrowed []*flavor.Flavor
			for _, c := range candidates {
				if recommended[c.Name] {
					narrowed = append(narrowed, c)
				}
			}
			if len(narrowed) == 0 && len(pinned) == 0 {
				return nil, fmt.Errorf("match: restrict hint for %s leaves no resolvable flavors", stage.Category)
			}
			candidates = narrowed
		case HintPrefer:
			preferred = recommended
		}
	}

	out := &matchOutcome{
		Pinned:     pinned,
		Candidates: candidates,
		Scores:     make(map[string]float64),
	}

	for _, c := range candidates {
		breakdown := o.score(stage.Vocabulary, scoring.Input{
			FlavorName:        c.Name,
			FlavorDescription: c.Description,
			ContextText:       runCtx.Text(),
			Artifacts:         runCtx.Artifacts,
			Learnings:         runCtx.Learnings,
			RuleAdjustment:    cls.Adjustments[c.Name],
			HintPreferred:     preferred[c.Name],
		})

		out.Scores[c.Name] = breakdown.Score
		out.Reports = append(out.Reports, MatchReport{
			FlavorName:     c.Name,
			Score:          breakdown.Score,
			KeywordHits:    breakdown.KeywordHits,
			RuleAdjustment: breakdown.RuleAdjustment,
			LearningBoost:  breakdown.LearningBoost,
			Reasoning:      matchReasoning(c.Name, breakdown, cls.FiredFor[c.Name]),
		})
	}

	return out, nil
}

// resolveFlavors looks names up in the registry. Not-found names are
// logged and dropped; any other registry error is fatal.
func (o *Orchestrator) resolveFlavors(ctx context.Context, category string, names []string, log *logging.Logger) ([]*flavor.Flavor, error) {
	var resolved []*flavor.Flavor
	for _, name := range names {
		f, err := o.flavors.Get(ctx, category, name)
		if err != nil {
			if errors.Is(err, flavor.ErrNotFound) {
				log.Warn("flavor not found in registry; dropping", zap.String("flavor", name))
				continue
			}
			return nil, fmt.Errorf("match: failed to resolve flavor %s/%s: %w", category, name, err)
		}
		resolved = append(resolved, f)
	}
	return resolved, nil
}

// matchReasoning renders a human-readable explanation of a score.
func matchReasoning(name string, b scoring.Breakdown, ruleFired bool) string {
	var parts []string
	if len(b.KeywordHits) > 0 {
		parts = append(parts, fmt.Sprintf("keywords hit: %s", strings.Join(b.KeywordHits, ", ")))
	} else {
		parts = append(parts, "no keyword hits")
	}
	if b.ArtifactBoost != 0 {
		parts = append(parts, fmt.Sprintf("artifact boost %+.2f", b.ArtifactBoost))
	}
	if b.LearningBoost != 0 {
		parts = append(parts, fmt.Sprintf("learning boost %+.2f", b.LearningBoost))
	}
	if b.RuleAdjustment != 0 {
		parts = append(parts, fmt.Sprintf("rule adjustment %+.2f", b.RuleAdjustment))
	}
	if b.HintBoost != 0 {
		parts = append(parts, fmt.Sprintf("hint boost %+.2f", b.HintBoost))
	}
	parts = append(parts, fmt.Sprintf("rule fired: %t", ruleFired))
	return fmt.Sprintf("%s scored %.2f (%s)", name, b.Score, strings.Join(parts, "; "))
}

// sortedNames returns the keys of a set in deterministic order.
func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
