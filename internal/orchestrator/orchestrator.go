package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stagecraft/internal/decision"
	"github.com/fyrsmithlabs/stagecraft/internal/flavor"
	"github.com/fyrsmithlabs/stagecraft/internal/logging"
	"github.com/fyrsmithlabs/stagecraft/internal/rules"
	"github.com/fyrsmithlabs/stagecraft/internal/scoring"
)

// DefaultMaxParallelFlavors is the parallel-execution threshold used
// when the config leaves it unset.
const DefaultMaxParallelFlavors = 3

// Config wires the orchestrator's collaborators.
type Config struct {
	Flavors   flavor.Registry
	Rules     rules.Registry
	Decisions decision.Registry
	Executor  Executor

	// Logger receives run warnings. Defaults to a no-op logger.
	Logger *logging.Logger

	// MaxParallelFlavors is the largest selection that still runs in
	// parallel. Defaults to DefaultMaxParallelFlavors.
	MaxParallelFlavors int

	// Score overrides the vocabulary-driven relevance scoring.
	Score ScoreFunc

	// ChooseSynthesis overrides the synthesis strategy choice.
	ChooseSynthesis SynthesisChooser

	// Metrics is optional run instrumentation.
	Metrics *Metrics
}

// Orchestrator runs the six-phase decision pipeline for one stage:
// rule classification, match, plan, execute, synthesize, reflect.
//
// An Orchestrator holds no shared mutable state between runs; each Run
// is independent and side-effect-free except through the injected
// collaborators.
type Orchestrator struct {
	flavors     flavor.Registry
	rules       rules.Registry
	decisions   decision.Registry
	executor    Executor
	log         *logging.Logger
	maxParallel int
	score       ScoreFunc
	chooseSynth SynthesisChooser
	metrics     *Metrics
}

// New creates an orchestrator from config, applying defaults for the
// optional fields.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Flavors == nil {
		return nil, fmt.Errorf("flavor registry is required")
	}
	if cfg.Rules == nil {
		return nil, fmt.Errorf("rule registry is required")
	}
	if cfg.Decisions == nil {
		return nil, fmt.Errorf("decision registry is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	maxParallel := cfg.MaxParallelFlavors
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelFlavors
	}
	score := cfg.Score
	if score == nil {
		score = func(vocab *scoring.Vocabulary, in scoring.Input) scoring.Breakdown {
			return vocab.Score(in)
		}
	}
	chooseSynth := cfg.ChooseSynthesis
	if chooseSynth == nil {
		chooseSynth = DefaultSynthesisChooser
	}

	return &Orchestrator{
		flavors:     cfg.Flavors,
		rules:       cfg.Rules,
		decisions:   cfg.Decisions,
		executor:    cfg.Executor,
		log:         log.Named("orchestrator"),
		maxParallel: maxParallel,
		score:       score,
		chooseSynth: chooseSynth,
		metrics:     cfg.Metrics,
	}, nil
}

// Run orchestrates one stage: classifies rules against the context,
// matches and scores flavors, plans the selection and execution mode,
// executes, synthesizes the stage artifact, and reflects on the
// outcome. The caller receives either a complete Result or a single
// error naming which phase failed; partial results are never returned
// as success.
func (o *Orchestrator) Run(ctx context.Context, stage Stage, runCtx Context) (*Result, error) {
	start := time.Now()
	log := o.log.With(zap.String("stage_category", stage.Category))

	result, err := o.run(ctx, stage, runCtx, log)
	o.metrics.observeRun(stage.Category, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, stage Stage, runCtx Context, log *logging.Logger) (*Result, error) {
	// Rules are loaded fresh for every run; they are data, never code.
	ruleSet, err := o.rules.LoadRules(ctx, stage.Category)
	if err != nil {
		return nil, fmt.Errorf("match: failed to load rules for %s: %w", stage.Category, err)
	}

	evalCtx := rules.EvalContext{
		Text:      runCtx.Text(),
		Category:  stage.Category,
		Artifacts: runCtx.Artifacts,
	}
	cls := rules.Classify(ruleSet, evalCtx)

	profile := buildCapabilityProfile(stage, runCtx, cls)
	capDec, err := o.recordCapabilityAnalysis(ctx, stage, runCtx, profile)
	if err != nil {
		return nil, fmt.Errorf("match: failed to record capability-analysis decision: %w", err)
	}

	matched, err := o.match(ctx, stage, runCtx, cls, log)
	if err != nil {
		return nil, err
	}

	planned, err := o.plan(ctx, stage, runCtx, matched, log)
	if err != nil {
		return nil, err
	}

	flavorResults, err := o.executeFlavors(ctx, planned.Selected, planned.Mode, runCtx)
	if err != nil {
		return nil, err
	}

	artifact, synthDec, err := o.synthesize(ctx, stage, runCtx, flavorResults)
	if err != nil {
		return nil, err
	}

	// The four structurally required decisions, in pipeline order. The
	// optional gap-assessment decision is persisted but not part of the
	// run's decision set.
	decisions := []*decision.Decision{capDec, planned.SelectionDecision, planned.ModeDecision, synthDec}

	// Reflection pushes an outcome to every decision recorded this run,
	// the gap-assessment one included when it persisted.
	reflected := decisions
	if planned.GapDecision != nil {
		reflected = append(append([]*decision.Decision{}, decisions...), planned.GapDecision)
	}
	reflection := o.reflect(ctx, stage, reflected, flavorResults, log)

	selected := make([]string, len(planned.Selected))
	for i, f := range planned.Selected {
		selected[i] = f.Name
	}

	log.Info("stage run complete",
		zap.Strings("selected_flavors", selected),
		zap.String("execution_mode", string(planned.Mode)),
		zap.Int("gaps", len(planned.Gaps)),
	)

	return &Result{
		StageCategory:   stage.Category,
		SelectedFlavors: selected,
		Decisions:       decisions,
		FlavorResults:   flavorResults,
		StageArtifact:   artifact,
		ExecutionMode:   planned.Mode,
		Capability:      profile,
		MatchReports:    matched.Reports,
		Reflection:      reflection,
		Gaps:            planned.Gaps,
	}, nil
}

// buildCapabilityProfile snapshots the run context and active rules.
func buildCapabilityProfile(stage Stage, runCtx Context, cls rules.Classification) CapabilityProfile {
	profile := CapabilityProfile{
		StageCategory: stage.Category,
		BetTitle:      runCtx.BetTitle,
		Artifacts:     runCtx.Artifacts,
		LearningCount: len(runCtx.Learnings),
		ActiveRuleIDs: cls.Fired,
	}
	if runCtx.Hint != nil {
		profile.HintStrategy = string(runCtx.Hint.Strategy)
	}
	return profile
}

// recordCapabilityAnalysis records the first of the four structural
// decisions. Failure here is fatal.
func (o *Orchestrator) recordCapabilityAnalysis(ctx context.Context, stage Stage, runCtx Context, profile CapabilityProfile) (*decision.Decision, error) {
	reasoning := fmt.Sprintf("analyzed context for %s: %d artifacts, %d learnings, %d firing rules",
		stage.Category, len(profile.Artifacts), profile.LearningCount, len(profile.ActiveRuleIDs))

	return o.decisions.Record(ctx, decision.Input{
		StageCategory: stage.Category,
		Type:          decision.TypeCapabilityAnalysis,
		Context:       decisionContext(runCtx),
		Options:       stage.AvailableFlavors,
		Selection:     "context-analyzed",
		Reasoning:     reasoning,
		Confidence:    1.0,
	})
}

// decisionContext captures the bet text on a decision so reflection can
// later derive rule conditions from it.
func decisionContext(runCtx Context) map[string]string {
	m := map[string]string{}
	if runCtx.BetTitle != "" {
		m["bet_title"] = runCtx.BetTitle
	}
	if runCtx.BetDescription != "" {
		m["bet_description"] = runCtx.BetDescription
	}
	if runCtx.ActiveKatakaID != "" {
		m["active_kataka_id"] = runCtx.ActiveKatakaID
	}
	return m
}
