package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlud/pkg/types"
)

func testIntents() []types.IntentDefinition {
	return []types.IntentDefinition{
		{
			Name:     "book_flight",
			Contexts: []string{"global", "travel"},
			Utterances: map[string][]string{
				"en": {"book a flight", "i want to fly to paris", "get me a plane ticket", "flight to london please"},
				"fr": {"réserver un vol", "je veux prendre l'avion"},
			},
		},
		{
			Name:     "greeting",
			Contexts: []string{"global"},
			Utterances: map[string][]string{
				"en": {"hello", "hi there", "good morning", "hey"},
				"fr": {"bonjour", "salut"},
			},
		},
	}
}

func testEntities() []types.EntityDefinition {
	return []types.EntityDefinition{{
		Name: "city",
		Type: "list",
		Occurrences: []types.EntityOccurrence{
			{Name: "Paris", Synonyms: []string{"city of light"}},
			{Name: "London"},
		},
	}}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	rt := NewRuntime(Options{Languages: []string{"en", "fr"}, Epochs: 5, BatchSize: 2})
	return rt.NewEngine("b1")
}

func TestComputeModelHash_Deterministic(t *testing.T) {
	e := newTestEngine(t)
	h1 := e.ComputeModelHash(testIntents(), testEntities(), "en")
	h2 := e.ComputeModelHash(testIntents(), testEntities(), "en")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)

	// a fresh engine for the same bot (i.e. after a restart) agrees
	other := NewRuntime(Options{}).NewEngine("b1")
	assert.Equal(t, h1, other.ComputeModelHash(testIntents(), testEntities(), "en"))
}

func TestComputeModelHash_Sensitive(t *testing.T) {
	e := newTestEngine(t)
	base := e.ComputeModelHash(testIntents(), testEntities(), "en")

	changed := testIntents()
	changed[1].Utterances["en"][0] = "hello!"
	assert.NotEqual(t, base, e.ComputeModelHash(changed, testEntities(), "en"))

	assert.NotEqual(t, base, e.ComputeModelHash(testIntents(), nil, "en"))
	assert.NotEqual(t, base, e.ComputeModelHash(testIntents(), testEntities(), "fr"))
	assert.NotEqual(t, base, NewRuntime(Options{}).NewEngine("b2").ComputeModelHash(testIntents(), testEntities(), "en"))
}

func TestTrain_EmptyIntentsIsNoop(t *testing.T) {
	e := newTestEngine(t)
	m, err := e.Train(context.Background(), "s1", nil, testEntities(), "en", TrainOptions{})
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.False(t, e.HasModelForLang("en"))
}

func TestTrainAndPredict(t *testing.T) {
	e := newTestEngine(t)
	var progress []float64
	m, err := e.Train(context.Background(), "s1", testIntents(), testEntities(), "en", TrainOptions{
		Progress: func(p float64) { progress = append(progress, p) },
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "en", m.LanguageCode)
	assert.Equal(t, e.ComputeModelHash(testIntents(), testEntities(), "en"), m.Hash)
	assert.True(t, e.HasModel("en", m.Hash))
	assert.True(t, e.HasModelForLang("en"))
	assert.False(t, e.HasModelForLang("fr"))
	require.NotEmpty(t, progress)
	assert.InDelta(t, 1.0, progress[len(progress)-1], 1e-9)

	pred, err := e.Predict("book a flight to Paris", []string{"global", "travel", "unknown"}, "en")
	require.NoError(t, err)
	assert.Equal(t, "en", pred.Language)
	require.Contains(t, pred.Predictions, "global")
	assert.Equal(t, "book_flight", pred.Predictions["global"].Intents[0].Label)
	assert.Len(t, pred.Predictions["travel"].Intents, 1)

	unknown, ok := pred.Predictions["unknown"]
	require.True(t, ok, "uncovered contexts must still receive an entry")
	assert.Empty(t, unknown.Intents)
	assert.Equal(t, 0.0, unknown.Confidence)

	require.Len(t, pred.Entities, 1)
	assert.Equal(t, "Paris", pred.Entities[0].Value)
	assert.Equal(t, "city", pred.Entities[0].Name)
}

func TestPredict_WithoutModel(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Predict("hello", nil, "en")
	require.Error(t, err)
	assert.True(t, IsModelNotLoaded(err))
}

func TestPredict_DefaultContexts(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Train(context.Background(), "s1", testIntents(), nil, "en", TrainOptions{})
	require.NoError(t, err)
	pred, err := e.Predict("hello", nil, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"global", "travel"}, pred.IncludedContexts)
}

func TestPredict_IntentsWithoutContextsAreGlobal(t *testing.T) {
	e := newTestEngine(t)
	intents := testIntents()
	for i := range intents {
		intents[i].Contexts = nil
	}
	_, err := e.Train(context.Background(), "s1", intents, nil, "en", TrainOptions{})
	require.NoError(t, err)

	pred, err := e.Predict("hello", nil, "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"global"}, pred.IncludedContexts)
	global := pred.Predictions["global"]
	require.Len(t, global.Intents, 2)
	assert.Equal(t, "greeting", global.Intents[0].Label)
	assert.Greater(t, global.Confidence, 0.0)
	assert.Less(t, global.Oos, 1.0)
}

func TestLoadModel_RoundTrip(t *testing.T) {
	src := newTestEngine(t)
	m, err := src.Train(context.Background(), "s1", testIntents(), testEntities(), "en", TrainOptions{})
	require.NoError(t, err)

	dst := newTestEngine(t)
	require.NoError(t, dst.LoadModel(m))
	assert.True(t, dst.HasModel("en", m.Hash))

	want, _ := src.Predict("hi there", []string{"global"}, "en")
	got, err := dst.Predict("hi there", []string{"global"}, "en")
	require.NoError(t, err)
	assert.Equal(t, want.Predictions["global"].Intents[0].Label, got.Predictions["global"].Intents[0].Label)
}

func TestLoadModel_FailureKeepsPrevious(t *testing.T) {
	e := newTestEngine(t)
	m, err := e.Train(context.Background(), "s1", testIntents(), nil, "en", TrainOptions{})
	require.NoError(t, err)

	assert.Error(t, e.LoadModel(nil))
	assert.Error(t, e.LoadModel(&types.Model{Hash: "x"}))

	corrupt := *m
	corrupt.Hash = "other"
	corrupt.Data.Output = "{not json"
	err = e.LoadModel(&corrupt)
	require.Error(t, err)
	assert.True(t, IsInvalidModel(err))
	assert.True(t, e.HasModel("en", m.Hash), "previous model must remain authoritative")

	future := *m
	future.Hash = "other"
	future.Data.Output = `{"version":99,"net":{}}`
	assert.Error(t, e.LoadModel(&future))
	assert.True(t, e.HasModel("en", m.Hash))
}

// blockingNet trains until its context is canceled.
type blockingNet struct {
	started chan struct{}
}

func (n *blockingNet) Train(ctx context.Context, _ []Sample, _ func(float64)) error {
	close(n.started)
	<-ctx.Done()
	return ctx.Err()
}
func (n *blockingNet) Predict(string) []types.IntentPrediction { return nil }
func (n *blockingNet) Labels() []string                        { return nil }
func (n *blockingNet) Marshal() ([]byte, error)                { return []byte("{}"), nil }
func (n *blockingNet) Unmarshal([]byte) error                  { return nil }
func (n *blockingNet) Clone() Net                              { return n }

func TestCancelTraining(t *testing.T) {
	net := &blockingNet{started: make(chan struct{})}
	rt := NewRuntime(Options{NetFactory: func(string) Net { return net }})
	e := rt.NewEngine("b1")

	done := make(chan error, 1)
	go func() {
		_, err := e.Train(context.Background(), "s1", testIntents(), nil, "en", TrainOptions{})
		done <- err
	}()
	<-net.started

	e.CancelTraining("unknown") // no-op
	e.CancelTraining("s1")
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("training did not observe cancellation")
	}
	assert.False(t, e.HasModelForLang("en"))
	// cancelling a finished session is a no-op
	e.CancelTraining("s1")
}

func TestBowNet_CancelBetweenBatches(t *testing.T) {
	n := newBowNet("en", 1000, 1)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := n.Train(ctx, buildSamples(testIntents(), "en"), func(float64) {
		calls++
		if calls == 3 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls, "cancellation must be observed at the next batch")
}

func TestRuntimeHealth(t *testing.T) {
	h := NewRuntime(Options{Languages: []string{"en", "fr"}}).Health()
	assert.True(t, h.IsEnabled)
	assert.Equal(t, 1, h.ValidProvidersCount)
	assert.Equal(t, []string{"en", "fr"}, h.ValidLanguages)

	off := NewRuntime(Options{Backend: BackendNone})
	assert.False(t, off.Health().IsEnabled)
	assert.Equal(t, 0, off.Health().ValidProvidersCount)

	_, err := off.NewEngine("b1").Train(context.Background(), "s", testIntents(), nil, "en", TrainOptions{})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestDetectLanguage(t *testing.T) {
	rt := NewRuntime(Options{Languages: []string{"en", "fr"}, DefaultLanguage: "en"})
	assert.Equal(t, "fr", rt.DetectLanguage("je veux un billet pour le train"))
	assert.Equal(t, "en", rt.DetectLanguage("i want to book the train"))
	assert.Equal(t, "en", rt.DetectLanguage("zzz qqq"))
}
