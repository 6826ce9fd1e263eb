package nlp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyai/parley-platform/pkg/logging"
)

func classifierCorpus() []TrainingExample {
	return []TrainingExample{
		{Text: "Hello there friend", Intent: "greeting"},
		{Text: "hello good morning", Intent: "greeting"},
		{Text: "hey hello howdy", Intent: "greeting"},
		{Text: "goodbye see everyone later", Intent: "farewell"},
		{Text: "bye goodbye farewell", Intent: "farewell"},
		{Text: "goodbye leaving now", Intent: "farewell"},
	}
}

func newTestClassifier(t *testing.T, store ArtifactStore, threshold float64) *IntentClassifier {
	t.Helper()
	return NewIntentClassifier("bot1", NewHashingEmbedder(0), store, threshold, logging.Discard())
}

func TestClassifierUntrained(t *testing.T) {
	c := newTestClassifier(t, nil, 0)
	assert.False(t, c.Trained())
	assert.Empty(t, c.Version())

	intent, confidence, err := c.Predict(context.Background(), "hello")
	require.NoError(t, err)
	assert.Empty(t, intent)
	assert.Zero(t, confidence)

	suggestions, err := c.GetSuggestions(context.Background(), "hello", 3)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestClassifierTrainAndPredict(t *testing.T) {
	ctx := context.Background()
	c := newTestClassifier(t, nil, 0)

	metrics, err := c.Train(ctx, classifierCorpus())
	require.NoError(t, err)
	assert.True(t, c.Trained())
	assert.Equal(t, 2, metrics.NumIntents)
	assert.Equal(t, 6, metrics.NumExamples)
	assert.Greater(t, metrics.Accuracy, 0.0)
	assert.Regexp(t, `^bot_bot1_[0-9a-f]{8}$`, metrics.Version)
	assert.Equal(t, metrics.Version, c.Version())

	intent, confidence, err := c.Predict(ctx, "hello good morning")
	require.NoError(t, err)
	assert.Equal(t, "greeting", intent)
	assert.Greater(t, confidence, defaultConfidenceThreshold)

	intent, confidence, err = c.Predict(ctx, "bye goodbye farewell")
	require.NoError(t, err)
	assert.Equal(t, "farewell", intent)
	assert.Greater(t, confidence, defaultConfidenceThreshold)
}

func TestClassifierTrainRejectsEmptyCorpus(t *testing.T) {
	c := newTestClassifier(t, nil, 0)

	_, err := c.Train(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoTrainingData)

	_, err = c.Train(context.Background(), []TrainingExample{
		{Text: "   ", Intent: "greeting"},
		{Text: "hello", Intent: ""},
	})
	assert.ErrorIs(t, err, ErrNoTrainingData, "blank texts and unlabeled examples are dropped")
	assert.False(t, c.Trained())
}

func TestClassifierVersionStableAcrossRetrain(t *testing.T) {
	ctx := context.Background()
	a := newTestClassifier(t, nil, 0)
	b := newTestClassifier(t, nil, 0)

	ma, err := a.Train(ctx, classifierCorpus())
	require.NoError(t, err)
	mb, err := b.Train(ctx, classifierCorpus())
	require.NoError(t, err)
	assert.Equal(t, ma.Version, mb.Version, "identical corpus yields identical version")

	mc, err := b.Train(ctx, append(classifierCorpus(), TrainingExample{Text: "thanks a lot", Intent: "thanks"}))
	require.NoError(t, err)
	assert.NotEqual(t, ma.Version, mc.Version)
}

func TestClassifierThresholdGatesIntentOnly(t *testing.T) {
	ctx := context.Background()
	c := newTestClassifier(t, nil, 0)
	_, err := c.Train(ctx, classifierCorpus())
	require.NoError(t, err)

	intent, confidence, err := c.PredictWithThreshold(ctx, "hello good morning", 0.99)
	require.NoError(t, err)
	assert.Empty(t, intent, "intent is withheld below threshold")
	assert.Greater(t, confidence, 0.0, "confidence is still reported")

	intent, lenientConfidence, err := c.PredictWithThreshold(ctx, "hello good morning", 0.1)
	require.NoError(t, err)
	assert.Equal(t, "greeting", intent)
	assert.Equal(t, confidence, lenientConfidence, "threshold never changes the reported confidence")
}

func TestClassifierGetSuggestions(t *testing.T) {
	ctx := context.Background()
	c := newTestClassifier(t, nil, 0)
	_, err := c.Train(ctx, classifierCorpus())
	require.NoError(t, err)

	suggestions, err := c.GetSuggestions(ctx, "hello good morning", 3)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 3)
	assert.Equal(t, "greeting", suggestions[0].Intent)
	for i := 1; i < len(suggestions); i++ {
		assert.GreaterOrEqual(t, suggestions[i-1].Score, suggestions[i].Score, "descending order")
	}

	one, err := c.GetSuggestions(ctx, "hello good morning", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestClassifierSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)

	trained := newTestClassifier(t, store, 0)
	metrics, err := trained.Train(ctx, classifierCorpus())
	require.NoError(t, err)

	wantIntent, wantConfidence, err := trained.Predict(ctx, "hello good morning")
	require.NoError(t, err)

	restored := newTestClassifier(t, store, 0)
	ok, err := restored.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, metrics.Version, restored.Version())

	gotIntent, gotConfidence, err := restored.Predict(ctx, "hello good morning")
	require.NoError(t, err)
	assert.Equal(t, wantIntent, gotIntent)
	assert.InDelta(t, wantConfidence, gotConfidence, 1e-9, "restored model predicts identically")
}

func TestClassifierLoadMissingArtifact(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)

	c := newTestClassifier(t, store, 0)
	ok, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "no artifact leaves the classifier untrained")
	assert.False(t, c.Trained())
}
