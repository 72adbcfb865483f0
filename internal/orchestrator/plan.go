package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stagecraft/internal/decision"
	"github.com/fyrsmithlabs/stagecraft/internal/flavor"
	"github.com/fyrsmithlabs/stagecraft/internal/logging"
	"github.com/fyrsmithlabs/stagecraft/internal/scoring"
)

// planOutcome is the plan phase's hand-off to execution.
type planOutcome struct {
	Selected          []*flavor.Flavor
	Mode              ExecutionMode
	SelectionDecision *decision.Decision
	ModeDecision      *decision.Decision

	// GapDecision is nil when recording it failed; the run proceeds
	// without it.
	GapDecision *decision.Decision

	Gaps []scoring.GapReport
}

// plan picks the final flavor set, decides the execution mode, records
// both decisions, and runs gap detection over the selection.
func (o *Orchestrator) plan(ctx context.Context, stage Stage, runCtx Context, matched *matchOutcome, log *logging.Logger) (*planOutcome, error) {
	// Sort non-pinned candidates by descending score; stable sort keeps
	// the original order on ties.
	ranked := make([]*flavor.Flavor, len(matched.Candidates))
	copy(ranked, matched.Candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return matched.Scores[ranked[i].Name] > matched.Scores[ranked[j].Name]
	})

	// Selection = pinned flavors plus the top-scored candidate,
	// deduplicated by name, pinned first.
	var selected []*flavor.Flavor
	selectedNames := make(map[string]bool)
	for _, f := range matched.Pinned {
		if !selectedNames[f.Name] {
			selectedNames[f.Name] = true
			selected = append(selected, f)
		}
	}
	if len(ranked) > 0 && !selectedNames[ranked[0].Name] {
		selectedNames[ranked[0].Name] = true
		selected = append(selected, ranked[0])
	}

	// When every candidate is pinned there is nothing scored to be
	// confident about.
	confidence := 0.0
	if len(ranked) > 0 {
		confidence = scoring.Clamp01(matched.Scores[ranked[0].Name])
	}

	options := make([]string, 0, len(matched.Pinned)+len(matched.Candidates))
	for _, f := range matched.Pinned {
		options = append(options, f.Name)
	}
	for _, f := range matched.Candidates {
		options = append(options, f.Name)
	}

	topSelection := ""
	if len(ranked) > 0 {
		topSelection = ranked[0].Name
	} else if len(selected) > 0 {
		topSelection = selected[0].Name
	}

	selectionDec, err := o.decisions.Record(ctx, decision.Input{
		StageCategory: stage.Category,
		Type:          decision.TypeFlavorSelection,
		Context:       decisionContext(runCtx),
		Options:       options,
		Selection:     topSelection,
		Reasoning:     selectionReasoning(ranked, matched.Scores, len(matched.Pinned)),
		Confidence:    confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("plan: failed to record flavor-selection decision: %w", err)
	}

	mode := ModeSequential
	if len(selected) > 1 && len(selected) <= o.maxParallel {
		mode = ModeParallel
	}

	modeDec, err := o.decisions.Record(ctx, decision.Input{
		StageCategory: stage.Category,
		Type:          decision.TypeExecutionMode,
		Context:       decisionContext(runCtx),
		Options:       []string{string(ModeSequential), string(ModeParallel)},
		Selection:     string(mode),
		Reasoning: fmt.Sprintf("%d flavors selected; parallel threshold is %d flavors",
			len(selected), o.maxParallel),
		Confidence: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("plan: failed to record execution-mode decision: %w", err)
	}

	gaps := o.detectGaps(stage, runCtx, matched, selectedNames)

	gapSelection := "no-gaps"
	if len(gaps) > 0 {
		gapSelection = "gaps-found"
	}
	// The gap-assessment decision is best-effort: a persistence failure
	// is logged and swallowed, and the gaps are still returned.
	gapDec, err := o.decisions.Record(ctx, decision.Input{
		StageCategory: stage.Category,
		Type:          decision.TypeGapAssessment,
		Context:       decisionContext(runCtx),
		Options:       []string{"gaps-found", "no-gaps"},
		Selection:     gapSelection,
		Reasoning:     fmt.Sprintf("%d vocabulary gaps detected in selection", len(gaps)),
		Confidence:    1.0,
	})
	if err != nil {
		log.Warn("failed to record gap-assessment decision", zap.Error(err))
		gapDec = nil
	}

	return &planOutcome{
		Selected:          selected,
		Mode:              mode,
		SelectionDecision: selectionDec,
		ModeDecision:      modeDec,
		GapDecision:       gapDec,
		Gaps:              gaps,
	}, nil
}

// detectGaps compares the vocabulary coverage of the final selection
// against the full candidate-plus-pinned set.
func (o *Orchestrator) detectGaps(stage Stage, runCtx Context, matched *matchOutcome, selectedNames map[string]bool) []scoring.GapReport {
	var selected, unselected []scoring.Candidate
	for _, f := range append(append([]*flavor.Flavor{}, matched.Pinned...), matched.Candidates...) {
		c := scoring.Candidate{Name: f.Name, Description: f.Description}
		if selectedNames[f.Name] {
			selected = append(selected, c)
		} else {
			unselected = append(unselected, c)
		}
	}
	return stage.Vocabulary.DetectGaps(runCtx.Text(), selected, unselected)
}

// selectionReasoning cites the top three candidate scores.
func selectionReasoning(ranked []*flavor.Flavor, scores map[string]float64, pinnedCount int) string {
	if len(ranked) == 0 {
		return fmt.Sprintf("no scored candidates; selection is the %d pinned flavor(s)", pinnedCount)
	}

	top := ranked
	if len(top) > 3 {
		top = top[:3]
	}
	parts := make([]string, len(top))
	for i, f := range top {
		parts[i] = fmt.Sprintf("%s=%.2f", f.Name, scores[f.Name])
	}
	return fmt.Sprintf("top scores: %s; %d pinned flavor(s) included", strings.Join(parts, ", "), pinnedCount)
}
