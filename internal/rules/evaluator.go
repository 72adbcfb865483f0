package rules

import "strings"

// stopWords are condition tokens that never contribute to a match.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "when": true,
	"this": true, "that": true, "are": true, "was": true, "has": true,
	"have": true, "not": true, "you": true, "all": true, "any": true,
	"but": true, "can": true, "use": true, "from": true, "into": true,
}

// EvalContext is the run context a rule condition is matched against.
type EvalContext struct {
	// Text is the free-text description of the current bet/task.
	Text string

	// Category is the stage category being orchestrated.
	Category string

	// Artifacts are the names of artifacts available to the stage.
	Artifacts []string
}

// haystack concatenates the matchable context surfaces, lower-cased.
func (c EvalContext) haystack() string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(c.Text))
	sb.WriteString(" ")
	sb.WriteString(strings.ToLower(c.Category))
	for _, a := range c.Artifacts {
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(a))
	}
	return sb.String()
}

// conditionTokens splits a condition on whitespace and drops tokens of
// length <= 2 or in the stop-word set.
func conditionTokens(condition string) []string {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(condition)) {
		if len(tok) <= 2 || stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Evaluate reports whether the rule's condition fires against the
// context. A condition with no surviving tokens never fires.
func Evaluate(rule StageRule, evalCtx EvalContext) bool {
	tokens := conditionTokens(rule.Condition)
	if len(tokens) == 0 {
		return false
	}

	haystack := evalCtx.haystack()
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			return true
		}
	}
	return false
}

// Classification holds the aggregated effects of all firing rules.
type Classification struct {
	// Excluded flavor names. Exclusion always wins over requirement.
	Excluded map[string]bool

	// Required flavor names, to be promoted into the pinned set unless
	// also excluded.
	Required map[string]bool

	// Adjustments is the net score delta per flavor name. Boosts and
	// penalties from multiple rules accumulate additively.
	Adjustments map[string]float64

	// Fired are the ids of rules that fired, in evaluation order.
	Fired []string

	// FiredFor records which flavor names had at least one firing rule.
	FiredFor map[string]bool
}

// Classify evaluates every rule against the context and buckets the
// firing ones by effect.
func Classify(ruleSet []StageRule, evalCtx EvalContext) Classification {
	cls := Classification{
		Excluded:    make(map[string]bool),
		Required:    make(map[string]bool),
		Adjustments: make(map[string]float64),
		FiredFor:    make(map[string]bool),
	}

	for _, r := range ruleSet {
		if !Evaluate(r, evalCtx) {
			continue
		}
		cls.Fired = append(cls.Fired, r.ID)
		cls.FiredFor[r.Name] = true

		switch r.Effect {
		case EffectExclude:
			cls.Excluded[r.Name] = true
		case EffectRequire:
			cls.Required[r.Name] = true
		case EffectBoost:
			cls.Adjustments[r.Name] += r.Weight()
		case EffectPenalize:
			cls.Adjustments[r.Name] -= r.Weight()
		}
	}

	return cls
}
