package nlp

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder turns text into fixed-dimension vectors comparable via cosine
// similarity. Implementations must be deterministic for identical input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	var normA float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

const hashingDim = 256

// HashingEmbedder is a cheap, fully deterministic embedder that projects
// token unigrams and bigrams onto a fixed-size vector by hashing. It has no
// semantic knowledge but preserves lexical similarity, which makes it useful
// for local development and tests where calling a hosted embedding model is
// not an option.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a hashing embedder. A non-positive dim falls
// back to the default dimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = hashingDim
	}
	return &HashingEmbedder{dim: dim}
}

// Embed never fails; it exists to satisfy the Embedder contract.
func (e *HashingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashingEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dim)
	tokens := strings.Fields(strings.ToLower(text))
	for i, tok := range tokens {
		e.bump(vec, tok)
		if i+1 < len(tokens) {
			e.bump(vec, tok+" "+tokens[i+1])
		}
	}
	// L2 normalize so cosine similarity behaves across lengths.
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func (e *HashingEmbedder) bump(vec []float32, term string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	// Use one hash bit as the sign so colliding terms can cancel instead of
	// always accumulating, which keeps the projection closer to random.
	if sum&(1<<63) != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}
