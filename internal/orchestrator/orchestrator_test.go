package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/stagecraft/internal/decision"
	"github.com/fyrsmithlabs/stagecraft/internal/flavor"
	"github.com/fyrsmithlabs/stagecraft/internal/rules"
	"github.com/fyrsmithlabs/stagecraft/internal/scoring"
)

// stubExecutor records dispatch order and delegates to fn when set.
type stubExecutor struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, f *flavor.Flavor, runCtx Context) (*ExecutionResult, error)
}

func (e *stubExecutor) Execute(ctx context.Context, f *flavor.Flavor, runCtx Context) (*ExecutionResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, f.Name)
	e.mu.Unlock()

	if e.fn != nil {
		return e.fn(ctx, f, runCtx)
	}
	return &ExecutionResult{
		FlavorName: f.Name,
		Synthesis:  SynthesisArtifact{Name: f.SynthesisArtifact, Value: "done-" + f.Name},
	}, nil
}

func (e *stubExecutor) callNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

// stubDecisions is an in-memory decision registry with per-type
// injectable record failures.
type stubDecisions struct {
	mu          sync.Mutex
	recorded    []*decision.Decision
	outcomes    map[string]decision.Outcome
	failRecord  map[decision.Type]error
	failOutcome error
	seq         int
}

func newStubDecisions() *stubDecisions {
	return &stubDecisions{outcomes: make(map[string]decision.Outcome)}
}

func (s *stubDecisions) Record(ctx context.Context, input decision.Input) (*decision.Decision, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failRecord[input.Type]; err != nil {
		return nil, err
	}

	s.seq++
	d := &decision.Decision{
		ID:            fmt.Sprintf("dec-%d", s.seq),
		StageCategory: input.StageCategory,
		Type:          input.Type,
		Context:       input.Context,
		Options:       input.Options,
		Selection:     input.Selection,
		Reasoning:     input.Reasoning,
		Confidence:    input.Confidence,
	}
	s.recorded = append(s.recorded, d)
	return d, nil
}

func (s *stubDecisions) UpdateOutcome(ctx context.Context, decisionID string, outcome decision.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failOutcome != nil {
		return s.failOutcome
	}
	s.outcomes[decisionID] = outcome
	return nil
}

func (s *stubDecisions) PendingSuggestions(ctx context.Context) ([]rules.Suggestion, error) {
	return nil, nil
}

func (s *stubDecisions) recordedOfType(t decision.Type) []*decision.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*decision.Decision
	for _, d := range s.recorded {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// stubRules serves a fixed rule set and records suggestions.
type stubRules struct {
	mu         sync.Mutex
	rules      []rules.StageRule
	loadErr    error
	suggestErr error
	suggested  []rules.SuggestionInput
	seq        int
}

func (s *stubRules) LoadRules(ctx context.Context, category string) ([]rules.StageRule, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.rules, nil
}

func (s *stubRules) SuggestRule(ctx context.Context, input rules.SuggestionInput) (*rules.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suggestErr != nil {
		return nil, s.suggestErr
	}
	s.seq++
	s.suggested = append(s.suggested, input)
	return &rules.Suggestion{ID: fmt.Sprintf("sug-%d", s.seq), Status: rules.SuggestionPending}, nil
}

// failingFlavors returns the same error for every lookup.
type failingFlavors struct{ err error }

func (r failingFlavors) Get(ctx context.Context, category, name string) (*flavor.Flavor, error) {
	return nil, r.err
}

func (r failingFlavors) List(ctx context.Context, category string) ([]*flavor.Flavor, error) {
	return nil, r.err
}

// testEnv bundles an orchestrator with its stub collaborators.
type testEnv struct {
	flavors   *flavor.MemoryRegistry
	rules     *stubRules
	decisions *stubDecisions
	exec      *stubExecutor
}

func newTestEnv(t *testing.T, flavorNames ...string) *testEnv {
	t.Helper()

	env := &testEnv{
		flavors:   flavor.NewMemoryRegistry(),
		rules:     &stubRules{},
		decisions: newStubDecisions(),
		exec:      &stubExecutor{},
	}
	for _, name := range flavorNames {
		require.NoError(t, env.flavors.Put(&flavor.Flavor{
			Name:              name,
			StageCategory:     "build",
			Steps:             []string{"plan", "do"},
			SynthesisArtifact: name + "-notes",
			Description:       "the " + name + " strategy",
		}))
	}
	return env
}

func (env *testEnv) orchestrator(t *testing.T, mutate ...func(*Config)) *Orchestrator {
	t.Helper()

	cfg := Config{
		Flavors:   env.flavors,
		Rules:     env.rules,
		Decisions: env.decisions,
		Executor:  env.exec,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

func buildStage(available ...string) Stage {
	return Stage{Category: "build", AvailableFlavors: available}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	env := newTestEnv(t)

	base := Config{
		Flavors:   env.flavors,
		Rules:     env.rules,
		Decisions: env.decisions,
		Executor:  env.exec,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing flavors", func(c *Config) { c.Flavors = nil }},
		{"missing rules", func(c *Config) { c.Rules = nil }},
		{"missing decisions", func(c *Config) { c.Decisions = nil }},
		{"missing executor", func(c *Config) { c.Executor = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestRun_RecordsFourStructuralDecisions(t *testing.T) {
	env := newTestEnv(t, "tdd", "spike")
	o := env.orchestrator(t)

	result, err := o.Run(context.Background(), buildStage("tdd", "spike"), Context{BetTitle: "Add rate limiting"})
	require.NoError(t, err)

	require.Len(t, result.Decisions, 4)
	assert.Equal(t, decision.TypeCapabilityAnalysis, result.Decisions[0].Type)
	assert.Equal(t, decision.TypeFlavorSelection, result.Decisions[1].Type)
	assert.Equal(t, decision.TypeExecutionMode, result.Decisions[2].Type)
	assert.Equal(t, decision.TypeSynthesisApproach, result.Decisions[3].Type)

	// gap-assessment is persisted on every run but never part of the
	// result's decision set
	assert.Len(t, env.decisions.recordedOfType(decision.TypeGapAssessment), 1)
	for _, d := range result.Decisions {
		assert.NotEqual(t, decision.TypeGapAssessment, d.Type)
	}

	// one flavor selected, so sequential
	assert.Len(t, result.SelectedFlavors, 1)
	assert.Equal(t, ModeSequential, result.ExecutionMode)

	assert.Equal(t, "build-synthesis", result.StageArtifact.Name)
	assert.Contains(t, result.StageArtifact.Values, result.SelectedFlavors[0])
}

func TestRun_PinnedSelectedAndExclusionWins(t *testing.T) {
	env := newTestEnv(t, "a", "b", "c")
	o := env.orchestrator(t)

	stage := buildStage("a", "b", "c")
	stage.PinnedFlavors = []string{"a", "b"}
	stage.ExcludedFlavors = []string{"b"}

	result, err := o.Run(context.Background(), stage, Context{BetTitle: "anything"})
	require.NoError(t, err)

	assert.Contains(t, result.SelectedFlavors, "a")
	assert.NotContains(t, result.SelectedFlavors, "b")
	assert.Equal(t, []string{"a", "c"}, result.SelectedFlavors)
	assert.Equal(t, ModeParallel, result.ExecutionMode)
}

func TestRun_AllExcludedWithoutPinnedFails(t *testing.T) {
	env := newTestEnv(t, "a")
	o := env.orchestrator(t)

	stage := buildStage("a")
	stage.ExcludedFlavors = []string{"a"}

	_, err := o.Run(context.Background(), stage, Context{BetTitle: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidate flavors")
}

func TestRun_AllExcludedWithPinnedFallback(t *testing.T) {
	env := newTestEnv(t, "a", "b")
	o := env.orchestrator(t)

	stage := buildStage("a")
	stage.ExcludedFlavors = []string{"a"}
	stage.PinnedFlavors = []string{"b"}

	result, err := o.Run(context.Background(), stage, Context{BetTitle: "anything"})
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, result.SelectedFlavors)
	assert.Equal(t, ModeSequential, result.ExecutionMode)

	// nothing scored, so selection confidence is zero
	selections := env.decisions.recordedOfType(decision.TypeFlavorSelection)
	require.Len(t, selections, 1)
	assert.Zero(t, selections[0].Confidence)
}

func TestRun_RuleEffectsShapeSelection(t *testing.T) {
	env := newTestEnv(t, "tdd", "spike", "docs")
	env.rules.rules = []rules.StageRule{
		{ID: "r1", Category: "build", Name: "spike", Condition: "limiter", Effect: rules.EffectExclude, Magnitude: 1, Confidence: 1},
		{ID: "r2", Category: "build", Name: "docs", Condition: "limiter", Effect: rules.EffectRequire, Magnitude: 1, Confidence: 1},
	}
	o := env.orchestrator(t)

	result, err := o.Run(context.Background(), buildStage("tdd", "spike"), Context{BetTitle: "Add rate limiter"})
	require.NoError(t, err)

	assert.Equal(t, []string{"docs", "tdd"}, result.SelectedFlavors)
	assert.NotContains(t, result.SelectedFlavors, "spike")
	assert.Equal(t, []string{"r1", "r2"}, result.Capability.ActiveRuleIDs)
}

func TestRun_RestrictHintNarrowsCandidates(t *testing.T) {
	env := newTestEnv(t, "tdd", "spike")
	o := env.orchestrator(t)

	runCtx := Context{
		BetTitle: "anything",
		Hint:     &FlavorHint{Recommended: []string{"spike"}, Strategy: HintRestrict},
	}

	result, err := o.Run(context.Background(), buildStage("tdd", "spike"), runCtx)
	require.NoError(t, err)
	assert.Equal(t, []string{"spike"}, result.SelectedFlavors)
}

func TestRun_RestrictHintWithNoSurvivorsFails(t *testing.T) {
	env := newTestEnv(t, "tdd")
	o := env.orchestrator(t)

	runCtx := Context{
		BetTitle: "anything",
		Hint:     &FlavorHint{Recommended: []string{"ghost"}, Strategy: HintRestrict},
	}

	_, err := o.Run(context.Background(), buildStage("tdd"), runCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restrict hint")
}

func TestRun_PreferHintBiasesScoring(t *testing.T) {
	env := newTestEnv(t, "tdd", "spike")
	o := env.orchestrator(t)

	runCtx := Context{
		BetTitle: "anything",
		Hint:     &FlavorHint{Recommended: []string{"spike"}, Strategy: HintPrefer},
	}

	result, err := o.Run(context.Background(), buildStage("tdd", "spike"), runCtx)
	require.NoError(t, err)

	assert.Equal(t, []string{"spike"}, result.SelectedFlavors)

	// neutral 0.5 plus the prefer boost
	for _, report := range result.MatchReports {
		if report.FlavorName == "spike" {
			assert.InDelta(t, 0.7, report.Score, 1e-9)
		}
	}
}

func TestRun_ExecutionModeThresholds(t *testing.T) {
	tests := []struct {
		name        string
		pinned      []string
		available   []string
		maxParallel int
		wantMode    ExecutionMode
		wantCount   int
	}{
		{"two selected under threshold", []string{"a"}, []string{"b"}, 5, ModeParallel, 2},
		{"three selected over threshold", []string{"a", "b"}, []string{"c"}, 1, ModeSequential, 3},
		{"single always sequential", nil, []string{"a", "b"}, 5, ModeSequential, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "a", "b", "c")
			o := env.orchestrator(t, func(c *Config) { c.MaxParallelFlavors = tt.maxParallel })

			stage := buildStage(tt.available...)
			stage.PinnedFlavors = tt.pinned

			result, err := o.Run(context.Background(), stage, Context{BetTitle: "anything"})
			require.NoError(t, err)

			assert.Equal(t, tt.wantMode, result.ExecutionMode)
			assert.Len(t, result.SelectedFlavors, tt.wantCount)
		})
	}
}

func TestRun_StructuralDecisionFailureIsFatal(t *testing.T) {
	types := []decision.Type{
		decision.TypeCapabilityAnalysis,
		decision.TypeFlavorSelection,
		decision.TypeExecutionMode,
		decision.TypeSynthesisApproach,
	}

	for _, dt := range types {
		t.Run(string(dt), func(t *testing.T) {
			env := newTestEnv(t, "tdd")
			env.decisions.failRecord = map[decision.Type]error{dt: errors.New("store down")}
			o := env.orchestrator(t)

			_, err := o.Run(context.Background(), buildStage("tdd"), Context{BetTitle: "anything"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), string(dt))
		})
	}
}

func TestRun_GapAssessmentFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, "tdd")
	env.decisions.failRecord = map[decision.Type]error{
		decision.TypeGapAssessment: errors.New("store down"),
	}
	o := env.orchestrator(t)

	stage := buildStage("tdd")
	stage.Vocabulary = &scoring.Vocabulary{Keywords: []string{"security"}}

	result, err := o.Run(context.Background(), stage, Context{BetTitle: "security audit"})
	require.NoError(t, err)

	// the gaps are still reported even though the decision was lost
	require.Len(t, result.Gaps, 1)
	assert.Len(t, result.Decisions, 4)
	// with no gap decision recorded, only the structural four get outcomes
	assert.Len(t, result.Reflection.DecisionOutcomes, 4)
}

func TestRun_UnknownFlavorDropped(t *testing.T) {
	env := newTestEnv(t, "tdd")
	o := env.orchestrator(t)

	result, err := o.Run(context.Background(), buildStage("tdd", "ghost"), Context{BetTitle: "anything"})
	require.NoError(t, err)

	assert.Equal(t, []string{"tdd"}, result.SelectedFlavors)
	require.Len(t, result.MatchReports, 1)
	assert.Equal(t, "tdd", result.MatchReports[0].FlavorName)
}

func TestRun_FlavorRegistryErrorIsFatal(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(t, func(c *Config) {
		c.Flavors = failingFlavors{err: errors.New("disk corrupt")}
	})

	_, err := o.Run(context.Background(), buildStage("tdd"), Context{BetTitle: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve flavor")
}

func TestRun_RuleLoadErrorIsFatal(t *testing.T) {
	env := newTestEnv(t, "tdd")
	env.rules.loadErr = errors.New("store down")
	o := env.orchestrator(t)

	_, err := o.Run(context.Background(), buildStage("tdd"), Context{BetTitle: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load rules")
}

func TestRun_ZeroValuedSynthesisIsValid(t *testing.T) {
	env := newTestEnv(t, "a", "b")
	env.exec.fn = func(ctx context.Context, f *flavor.Flavor, runCtx Context) (*ExecutionResult, error) {
		value := any(0)
		if f.Name == "b" {
			value = false
		}
		return &ExecutionResult{
			FlavorName: f.Name,
			Synthesis:  SynthesisArtifact{Name: f.SynthesisArtifact, Value: value},
		}, nil
	}
	o := env.orchestrator(t)

	stage := buildStage("a")
	stage.PinnedFlavors = []string{"b"}

	result, err := o.Run(context.Background(), stage, Context{BetTitle: "anything"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.StageArtifact.Values["a"])
	assert.Equal(t, false, result.StageArtifact.Values["b"])
	assert.Equal(t, decision.QualityGood, result.Reflection.OverallQuality)
}

func TestRun_NilSynthesisValueIsFatal(t *testing.T) {
	env := newTestEnv(t, "tdd")
	env.exec.fn = func(ctx context.Context, f *flavor.Flavor, runCtx Context) (*ExecutionResult, error) {
		return &ExecutionResult{FlavorName: f.Name}, nil
	}
	o := env.orchestrator(t)

	_, err := o.Run(context.Background(), buildStage("tdd"), Context{BetTitle: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced no synthesis value")
}

func TestRun_ReflectionRecordsOutcomesAndSuggestion(t *testing.T) {
	env := newTestEnv(t, "tdd")
	o := env.orchestrator(t)

	result, err := o.Run(context.Background(), buildStage("tdd"), Context{
		BetTitle:       "Add rate limiting",
		BetDescription: "to the public API",
	})
	require.NoError(t, err)

	// four structural decisions plus the persisted gap-assessment one
	require.Len(t, result.Reflection.DecisionOutcomes, 5)
	for _, rec := range result.Reflection.DecisionOutcomes {
		assert.Equal(t, decision.QualityGood, rec.Outcome.ArtifactQuality)
		assert.Equal(t, "passed", rec.Outcome.GateResult)
		assert.False(t, rec.Outcome.ReworkRequired)
	}

	gapDecisions := env.decisions.recordedOfType(decision.TypeGapAssessment)
	require.Len(t, gapDecisions, 1)
	assert.Contains(t, env.decisions.outcomes, gapDecisions[0].ID)

	require.Len(t, env.rules.suggested, 1)
	sg := env.rules.suggested[0]
	assert.Equal(t, rules.EffectBoost, sg.Effect)
	assert.Equal(t, "tdd", sg.Name)
	assert.Equal(t, "Add rate limiting to the public API", sg.Condition)
	assert.Len(t, result.Reflection.RuleSuggestions, 1)
	assert.Len(t, result.Reflection.Learnings, 1)
}

func TestRun_OutcomePersistFailureOmitsRecord(t *testing.T) {
	env := newTestEnv(t, "tdd")
	env.decisions.failOutcome = errors.New("store down")
	o := env.orchestrator(t)

	result, err := o.Run(context.Background(), buildStage("tdd"), Context{BetTitle: "anything"})
	require.NoError(t, err)

	assert.Empty(t, result.Reflection.DecisionOutcomes)
	// no outcome means no rule suggestion either
	assert.Empty(t, result.Reflection.RuleSuggestions)
}
