package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingCorpus() ([]string, []string) {
	texts := []string{
		"hello there friend",
		"hello good morning",
		"hey hello howdy",
		"goodbye see everyone later",
		"bye goodbye farewell",
		"goodbye leaving now",
	}
	labels := []string{
		"greeting", "greeting", "greeting",
		"farewell", "farewell", "farewell",
	}
	return texts, labels
}

func fitCorpus(t *testing.T) (*Vectorizer, []SparseVector, []string) {
	t.Helper()
	texts, labels := trainingCorpus()
	v := NewVectorizer()
	vectors, err := v.Fit(texts)
	require.NoError(t, err)
	return v, vectors, labels
}

func TestTrainForest(t *testing.T) {
	v, vectors, labels := fitCorpus(t)

	forest, err := TrainForest(vectors, labels, v.NumFeatures())
	require.NoError(t, err)
	assert.Equal(t, []string{"farewell", "greeting"}, forest.Classes)
	assert.Len(t, forest.Trees, forestTrees)

	for i, vec := range vectors {
		assert.Equal(t, labels[i], forest.Predict(vec), "training example %d", i)
	}
	assert.Equal(t, 1.0, forest.Score(vectors, labels))
}

func TestTrainForestEmptyCorpus(t *testing.T) {
	_, err := TrainForest(nil, nil, 0)
	assert.Error(t, err)

	_, err = TrainForest([]SparseVector{{}}, []string{"a", "b"}, 1)
	assert.Error(t, err, "misaligned corpus is rejected")
}

func TestForestPredictProba(t *testing.T) {
	v, vectors, labels := fitCorpus(t)
	forest, err := TrainForest(vectors, labels, v.NumFeatures())
	require.NoError(t, err)

	probs := forest.PredictProba(v.Transform("hello hello"))
	var total float64
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9, "probabilities form a distribution")
	assert.Greater(t, probs["greeting"], probs["farewell"])
}

func TestForestDeterministic(t *testing.T) {
	v, vectors, labels := fitCorpus(t)

	a, err := TrainForest(vectors, labels, v.NumFeatures())
	require.NoError(t, err)
	b, err := TrainForest(vectors, labels, v.NumFeatures())
	require.NoError(t, err)

	for _, vec := range vectors {
		assert.Equal(t, a.PredictProba(vec), b.PredictProba(vec))
	}
}
