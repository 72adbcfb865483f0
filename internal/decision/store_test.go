package decision

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/stagecraft/internal/rules"
)

func validInput() Input {
	return Input{
		StageCategory: "build",
		Type:          TypeFlavorSelection,
		Context:       map[string]string{"bet_title": "Add rate limiting"},
		Options:       []string{"tdd", "spike"},
		Selection:     "tdd",
		Reasoning:     "tdd scored highest",
		Confidence:    0.85,
	}
}

func TestInput_Validate(t *testing.T) {
	valid := validInput()
	require.NoError(t, valid.Validate())

	badType := validInput()
	badType.Type = "guesswork"
	assert.ErrorIs(t, badType.Validate(), ErrInvalidType)

	badConfidence := validInput()
	badConfidence.Confidence = 1.2
	assert.ErrorIs(t, badConfidence.Validate(), ErrInvalidConfidence)

	noReasoning := validInput()
	noReasoning.Reasoning = "  "
	assert.Error(t, noReasoning.Validate())
}

func TestMemoryStore_RecordAssignsIdentity(t *testing.T) {
	store := NewMemoryStore(nil)

	d, err := store.Record(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, d.ID)
	assert.False(t, d.DecidedAt.IsZero())
	assert.Equal(t, TypeFlavorSelection, d.Type)
	assert.Equal(t, "tdd", d.Selection)
}

func TestMemoryStore_UpdateOutcome(t *testing.T) {
	store := NewMemoryStore(nil)

	d, err := store.Record(context.Background(), validInput())
	require.NoError(t, err)

	outcome := Outcome{ArtifactQuality: QualityGood, GateResult: "passed"}
	require.NoError(t, store.UpdateOutcome(context.Background(), d.ID, outcome))

	got, ok := store.Outcome(d.ID)
	require.True(t, ok)
	assert.Equal(t, QualityGood, got.ArtifactQuality)
}

func TestMemoryStore_UpdateOutcomeUnknownDecision(t *testing.T) {
	store := NewMemoryStore(nil)

	err := store.UpdateOutcome(context.Background(), "no-such-id", Outcome{ArtifactQuality: QualityGood})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PendingSuggestionsDelegates(t *testing.T) {
	ruleStore := rules.NewMemoryStore()
	_, err := ruleStore.SuggestRule(context.Background(), rules.SuggestionInput{
		Category: "build", Name: "tdd", Effect: rules.EffectBoost, Magnitude: 0.2, Confidence: 0.8,
	})
	require.NoError(t, err)

	store := NewMemoryStore(ruleStore)

	pending, err := store.PendingSuggestions(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// nil source reads as empty
	empty := NewMemoryStore(nil)
	pending, err = empty.PendingSuggestions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")

	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	d, err := store.Record(context.Background(), validInput())
	require.NoError(t, err)
	require.NoError(t, store.UpdateOutcome(context.Background(), d.ID, Outcome{ArtifactQuality: QualityPartial, ReworkRequired: true}))

	reopened, err := NewFileStore(path, nil)
	require.NoError(t, err)

	// outcome attached before reopen survives
	err = reopened.UpdateOutcome(context.Background(), d.ID, Outcome{ArtifactQuality: QualityGood, GateResult: "passed"})
	require.NoError(t, err)

	err = reopened.UpdateOutcome(context.Background(), "ghost", Outcome{ArtifactQuality: QualityGood})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_FailedSaveRollsBack(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "decisions.json"), nil)
	require.NoError(t, err)

	d, err := store.Record(context.Background(), validInput())
	require.NoError(t, err)

	// point the store at an unwritable path so save fails
	store.filePath = filepath.Join(dir, "missing", "decisions.json")

	_, err = store.Record(context.Background(), validInput())
	require.Error(t, err)
	assert.Len(t, store.data.Decisions, 1)

	err = store.UpdateOutcome(context.Background(), d.ID, Outcome{ArtifactQuality: QualityGood})
	require.Error(t, err)
	assert.NotContains(t, store.data.Outcomes, d.ID)
}

func TestDecision_String(t *testing.T) {
	var nilDecision *Decision
	assert.Equal(t, "<nil decision>", nilDecision.String())

	d := &Decision{Type: TypeExecutionMode, Selection: "parallel", Confidence: 0.9}
	assert.Equal(t, "Decision{Type: execution-mode, Selection: parallel, Confidence: 0.90}", d.String())
}
