package nlp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorizerFit(t *testing.T) {
	v := NewVectorizer()
	corpus := []string{
		"book an appointment tomorrow",
		"cancel my appointment",
		"what are your opening hours",
	}

	vectors, err := v.Fit(corpus)
	require.NoError(t, err)
	require.Len(t, vectors, len(corpus))

	assert.Greater(t, v.NumFeatures(), 0)
	_, hasStopword := v.Vocabulary["my"]
	assert.False(t, hasStopword, "stop-words never enter the vocabulary")
	_, hasUnigram := v.Vocabulary["appointment"]
	assert.True(t, hasUnigram)
	_, hasBigram := v.Vocabulary["cancel appointment"]
	assert.True(t, hasBigram, "n-grams are built after stop-word removal")

	for _, vec := range vectors {
		var norm float64
		for _, w := range vec {
			norm += w * w
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9, "fitted vectors are L2-normalized")
	}
}

func TestVectorizerFitEmptyCorpus(t *testing.T) {
	_, err := NewVectorizer().Fit(nil)
	assert.Error(t, err)
}

func TestVectorizerTransform(t *testing.T) {
	v := NewVectorizer()
	_, err := v.Fit([]string{"book an appointment", "cancel the appointment"})
	require.NoError(t, err)

	t.Run("known terms map onto fitted space", func(t *testing.T) {
		vec := v.Transform("please book an appointment")
		assert.NotEmpty(t, vec)
	})

	t.Run("unknown terms are ignored", func(t *testing.T) {
		vec := v.Transform("zebra quantum flux")
		assert.Empty(t, vec)
	})

	t.Run("unfitted vectorizer yields empty vector", func(t *testing.T) {
		assert.Empty(t, NewVectorizer().Transform("book an appointment"))
	})
}

func TestVectorizerDeterministicVocabulary(t *testing.T) {
	corpus := []string{"alpha beta", "beta gamma", "gamma alpha"}

	a := NewVectorizer()
	_, err := a.Fit(corpus)
	require.NoError(t, err)
	b := NewVectorizer()
	_, err = b.Fit(corpus)
	require.NoError(t, err)

	assert.Equal(t, a.Vocabulary, b.Vocabulary)
	assert.Equal(t, a.IDF, b.IDF)
}

func TestVectorizerMaxFeaturesCap(t *testing.T) {
	v := &Vectorizer{MaxFeatures: 2, MaxNGram: 1}
	_, err := v.Fit([]string{"alpha alpha beta gamma", "alpha beta"})
	require.NoError(t, err)
	assert.Equal(t, 2, v.NumFeatures())
	_, hasAlpha := v.Vocabulary["alpha"]
	assert.True(t, hasAlpha, "most frequent terms survive the cap")
}
