package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stagecraft/internal/decision"
	"github.com/fyrsmithlabs/stagecraft/internal/logging"
	"github.com/fyrsmithlabs/stagecraft/internal/rules"
)

// suggestionMagnitude is the weight proposed for rules derived from
// run outcomes.
const suggestionMagnitude = 0.2

// conditionMaxLen bounds the condition text derived from the bet.
const conditionMaxLen = 50

// reflect updates decision outcomes, derives learnings, and generates
// rule-suggestion proposals from the run's outcome.
//
// Reflection never aborts the run: failures to persist an outcome or a
// suggestion are logged and that item is skipped.
func (o *Orchestrator) reflect(ctx context.Context, stage Stage, decisions []*decision.Decision, results []ExecutionResult, log *logging.Logger) Reflection {
	quality := decision.QualityGood
	for _, r := range results {
		if r.Synthesis.Value == nil {
			quality = decision.QualityPartial
			break
		}
	}

	gateResult := ""
	if quality == decision.QualityGood {
		gateResult = "passed"
	}

	outcomeByDecision := make(map[string]decision.Outcome, len(decisions))
	var outcomes []OutcomeRecord
	for _, d := range decisions {
		outcome := decision.Outcome{
			ArtifactQuality: quality,
			GateResult:      gateResult,
			ReworkRequired:  quality != decision.QualityGood,
		}
		if err := o.decisions.UpdateOutcome(ctx, d.ID, outcome); err != nil {
			log.Warn("failed to persist decision outcome; omitting",
				zap.String("decision_id", d.ID),
				zap.String("decision_type", string(d.Type)),
				zap.Error(err))
			continue
		}
		outcomeByDecision[d.ID] = outcome
		outcomes = append(outcomes, OutcomeRecord{DecisionID: d.ID, Outcome: outcome})
	}

	flavorNames := make([]string, len(results))
	for i, r := range results {
		flavorNames[i] = r.FlavorName
	}
	var learning string
	if quality == decision.QualityGood {
		learning = fmt.Sprintf("Stage %s completed successfully with flavors %s.",
			stage.Category, strings.Join(flavorNames, ", "))
	} else {
		learning = fmt.Sprintf("Stage %s completed partially with flavors %s; some synthesis values were missing.",
			stage.Category, strings.Join(flavorNames, ", "))
	}

	suggestions := o.suggestRules(ctx, stage, decisions, outcomeByDecision, log)

	return Reflection{
		DecisionOutcomes: outcomes,
		Learnings:        []string{learning},
		RuleSuggestions:  suggestions,
		OverallQuality:   quality,
	}
}

// suggestRules proposes a boost rule for each flavor-selection decision
// with a good outcome, and a penalize rule for a poor one. Partial
// outcomes produce nothing.
func (o *Orchestrator) suggestRules(ctx context.Context, stage Stage, decisions []*decision.Decision, outcomes map[string]decision.Outcome, log *logging.Logger) []string {
	var ids []string
	for _, d := range decisions {
		if d.Type != decision.TypeFlavorSelection || d.Selection == "" {
			continue
		}
		outcome, ok := outcomes[d.ID]
		if !ok {
			continue
		}

		var effect rules.Effect
		switch outcome.ArtifactQuality {
		case decision.QualityGood:
			effect = rules.EffectBoost
		case decision.QualityPoor:
			effect = rules.EffectPenalize
		default:
			continue
		}

		suggestion, err := o.rules.SuggestRule(ctx, rules.SuggestionInput{
			Category:   stage.Category,
			Name:       d.Selection,
			Condition:  conditionFromDecision(d),
			Effect:     effect,
			Magnitude:  suggestionMagnitude,
			Confidence: d.Confidence,
			Source:     "reflection",
			Evidence:   []string{d.ID},
		})
		if err != nil {
			log.Warn("failed to persist rule suggestion; skipping",
				zap.String("decision_id", d.ID),
				zap.Error(err))
			continue
		}
		ids = append(ids, suggestion.ID)
	}
	return ids
}

// conditionFromDecision derives a rule condition from the bet text
// recorded on the decision, truncated to conditionMaxLen runes so a
// multibyte title never yields invalid UTF-8.
func conditionFromDecision(d *decision.Decision) string {
	text := strings.TrimSpace(d.Context["bet_title"] + " " + d.Context["bet_description"])
	runes := []rune(text)
	if len(runes) > conditionMaxLen {
		return string(runes[:conditionMaxLen])
	}
	return text
}
