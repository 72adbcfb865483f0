// Package scoring computes flavor relevance scores from a stage
// vocabulary and detects vocabulary-coverage gaps in a selection.
package scoring

import (
	"fmt"
	"strings"
)

// Boosts applied on top of the vocabulary base score.
const (
	// LearningBoost is added when any learning text mentions the flavor.
	LearningBoost = 0.1

	// HintBoost is added when a "prefer" hint recommends the flavor.
	HintBoost = 0.2

	// NeutralScore is the relevance for a flavor with no vocabulary.
	NeutralScore = 0.5
)

// BoostRule raises the base score when an artifact matches its pattern.
// The pattern "*" matches any artifact being present; any other pattern
// matches as a literal substring of some artifact name.
type BoostRule struct {
	ArtifactPattern string  `json:"artifact_pattern" koanf:"artifact_pattern"`
	Magnitude       float64 `json:"magnitude" koanf:"magnitude"`
}

// Vocabulary is a stage category's scoring configuration. Keywords are
// ordered by importance; position drives gap severity.
type Vocabulary struct {
	Keywords   []string    `json:"keywords" koanf:"keywords"`
	BoostRules []BoostRule `json:"boost_rules" koanf:"boost_rules"`
}

// Input carries everything score computation looks at for one flavor.
type Input struct {
	FlavorName        string
	FlavorDescription string
	ContextText       string
	Artifacts         []string
	Learnings         []string
	RuleAdjustment    float64
	HintPreferred     bool
}

// Breakdown is the per-component result of scoring one flavor.
type Breakdown struct {
	Score          float64
	KeywordHits    []string
	ArtifactBoost  float64
	LearningBoost  float64
	RuleAdjustment float64
	HintBoost      float64
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Score computes the relevance of a flavor for the current context.
//
// Without a vocabulary the base is the neutral 0.5. With one, the base
// is the fraction of keywords found in the flavor name, description or
// context text, plus artifact boosts, capped at 1.0. Learning mentions,
// rule adjustments and prefer-hints are then added and the total
// clamped to [0, 1].
func (v *Vocabulary) Score(in Input) Breakdown {
	b := Breakdown{RuleAdjustment: in.RuleAdjustment}

	base := NeutralScore
	if v != nil && len(v.Keywords) > 0 {
		searchable := strings.ToLower(in.FlavorName + " " + in.FlavorDescription + " " + in.ContextText)
		for _, kw := range v.Keywords {
			if strings.Contains(searchable, strings.ToLower(kw)) {
				b.KeywordHits = append(b.KeywordHits, kw)
			}
		}
		base = float64(len(b.KeywordHits)) / float64(len(v.Keywords))
	}

	if v != nil {
		b.ArtifactBoost = v.artifactBoost(in.Artifacts)
	}
	base += b.ArtifactBoost
	if base > 1.0 {
		base = 1.0
	}

	flavorName := strings.ToLower(in.FlavorName)
	for _, l := range in.Learnings {
		if strings.Contains(strings.ToLower(l), flavorName) {
			b.LearningBoost = LearningBoost
			break
		}
	}

	if in.HintPreferred {
		b.HintBoost = HintBoost
	}

	b.Score = Clamp01(base + b.LearningBoost + b.RuleAdjustment + b.HintBoost)
	return b
}

// artifactBoost sums the magnitudes of matching boost rules.
func (v *Vocabulary) artifactBoost(artifacts []string) float64 {
	total := 0.0
	for _, rule := range v.BoostRules {
		if rule.ArtifactPattern == "*" {
			if len(artifacts) > 0 {
				total += rule.Magnitude
			}
			continue
		}
		pattern := strings.ToLower(rule.ArtifactPattern)
		for _, a := range artifacts {
			if strings.Contains(strings.ToLower(a), pattern) {
				total += rule.Magnitude
				break
			}
		}
	}
	return total
}

// GapSeverity grades how important an uncovered keyword is.
type GapSeverity string

const (
	SeverityHigh   GapSeverity = "high"
	SeverityMedium GapSeverity = "medium"
	SeverityLow    GapSeverity = "low"
)

// GapReport describes a vocabulary keyword present in the context that
// no selected flavor covers.
type GapReport struct {
	Description      string      `json:"description"`
	Severity         GapSeverity `json:"severity"`
	SuggestedFlavors []string    `json:"suggested_flavors,omitempty"`
}

// Candidate is the minimal flavor view gap detection needs.
type Candidate struct {
	Name        string
	Description string
}

// DetectGaps finds vocabulary keywords that appear in the context text
// but are uncovered by the selected flavors.
//
// Keywords are assumed ordered by importance: the first third of the
// list is high severity, the second third medium, the rest low, using
// ceiling division on thirds. Suggested flavors are the unselected
// candidates whose name or description contains the keyword.
func (v *Vocabulary) DetectGaps(contextText string, selected, unselected []Candidate) []GapReport {
	if v == nil || len(v.Keywords) == 0 {
		return nil
	}

	contextLower := strings.ToLower(contextText)

	var covered strings.Builder
	for _, c := range selected {
		covered.WriteString(strings.ToLower(c.Name))
		covered.WriteString(" ")
		covered.WriteString(strings.ToLower(c.Description))
		covered.WriteString(" ")
	}
	coveredText := covered.String()

	third := (len(v.Keywords) + 2) / 3

	var gaps []GapReport
	for i, kw := range v.Keywords {
		kwLower := strings.ToLower(kw)
		if !strings.Contains(contextLower, kwLower) {
			continue
		}
		if strings.Contains(coveredText, kwLower) {
			continue
		}

		severity := SeverityLow
		switch {
		case i < third:
			severity = SeverityHigh
		case i < 2*third:
			severity = SeverityMedium
		}

		var suggested []string
		for _, c := range unselected {
			if strings.Contains(strings.ToLower(c.Name), kwLower) ||
				strings.Contains(strings.ToLower(c.Description), kwLower) {
				suggested = append(suggested, c.Name)
			}
		}

		gaps = append(gaps, GapReport{
			Description:      fmt.Sprintf("context mentions %q but no selected flavor covers it", kw),
			Severity:         severity,
			SuggestedFlavors: suggested,
		})
	}

	return gaps
}
