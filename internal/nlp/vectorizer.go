package nlp

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	defaultMaxFeatures = 5000
	defaultMaxNGram    = 3
)

var tokenPattern = regexp.MustCompile(`[a-z0-9']+`)

// Vectorizer maps text onto a sparse TF-IDF feature space built from word
// n-grams (up to trigrams), with English stop-words removed and the
// vocabulary capped at the most frequent terms across the fitted corpus.
type Vectorizer struct {
	MaxFeatures int            `json:"max_features"`
	MaxNGram    int            `json:"max_ngram"`
	Vocabulary  map[string]int `json:"vocabulary"` // term -> feature index
	IDF         []float64      `json:"idf"`        // indexed by feature
	fitted      bool
}

// SparseVector is a feature-index -> weight map. Vectors produced by a
// fitted Vectorizer are L2-normalized.
type SparseVector map[int]float64

// NewVectorizer creates an unfitted vectorizer with default limits.
func NewVectorizer() *Vectorizer {
	return &Vectorizer{
		MaxFeatures: defaultMaxFeatures,
		MaxNGram:    defaultMaxNGram,
	}
}

// Fit learns the vocabulary and inverse document frequencies from the
// corpus, then returns the transformed corpus.
func (v *Vectorizer) Fit(texts []string) ([]SparseVector, error) {
	if len(texts) == 0 {
		return nil, errors.New("nlp: cannot fit vectorizer on empty corpus")
	}
	if v.MaxFeatures <= 0 {
		v.MaxFeatures = defaultMaxFeatures
	}
	if v.MaxNGram <= 0 {
		v.MaxNGram = defaultMaxNGram
	}

	// Count raw term frequency and document frequency across the corpus.
	termCounts := make(map[string]int)
	docFreq := make(map[string]int)
	docs := make([][]string, len(texts))
	for i, text := range texts {
		terms := v.terms(text)
		docs[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			termCounts[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				docFreq[term]++
			}
		}
	}

	// Keep the most frequent terms; ties break alphabetically so the
	// vocabulary is deterministic for a given corpus.
	type termCount struct {
		term  string
		count int
	}
	ranked := make([]termCount, 0, len(termCounts))
	for term, count := range termCounts {
		ranked = append(ranked, termCount{term, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})
	if len(ranked) > v.MaxFeatures {
		ranked = ranked[:v.MaxFeatures]
	}

	v.Vocabulary = make(map[string]int, len(ranked))
	v.IDF = make([]float64, len(ranked))
	n := float64(len(texts))
	for i, tc := range ranked {
		v.Vocabulary[tc.term] = i
		// Smoothed IDF, matching the conventional formulation.
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[tc.term]))) + 1
	}
	v.fitted = true

	out := make([]SparseVector, len(docs))
	for i, terms := range docs {
		out[i] = v.vectorize(terms)
	}
	return out, nil
}

// Transform maps a single text onto the fitted feature space. Unknown terms
// are ignored; an unfitted vectorizer yields an empty vector.
func (v *Vectorizer) Transform(text string) SparseVector {
	if len(v.Vocabulary) == 0 {
		return SparseVector{}
	}
	return v.vectorize(v.terms(text))
}

// NumFeatures returns the fitted vocabulary size.
func (v *Vectorizer) NumFeatures() int {
	return len(v.Vocabulary)
}

func (v *Vectorizer) vectorize(terms []string) SparseVector {
	vec := make(SparseVector)
	for _, term := range terms {
		if idx, ok := v.Vocabulary[term]; ok {
			vec[idx]++
		}
	}
	var norm float64
	for idx, tf := range vec {
		weighted := tf * v.IDF[idx]
		vec[idx] = weighted
		norm += weighted * weighted
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for idx := range vec {
			vec[idx] *= inv
		}
	}
	return vec
}

// terms tokenizes, removes stop-words, and expands word n-grams up to
// MaxNGram.
func (v *Vectorizer) terms(text string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	kept := tokens[:0:len(tokens)]
	for _, tok := range tokens {
		if !isStopword(tok) {
			kept = append(kept, tok)
		}
	}

	var terms []string
	for n := 1; n <= v.MaxNGram; n++ {
		for i := 0; i+n <= len(kept); i++ {
			terms = append(terms, strings.Join(kept[i:i+n], " "))
		}
	}
	return terms
}
