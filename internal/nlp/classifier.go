package nlp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/parleyai/parley-platform/pkg/logging"
)

// Ensemble weights. Semantic and lexical signals dominate; the direct
// best-example match acts as a tie-breaker for short inputs.
const (
	weightSemantic = 0.4
	weightLexical  = 0.4
	weightDirect   = 0.2
)

const defaultConfidenceThreshold = 0.6

// ErrNoTrainingData is returned by Train when the corpus is empty.
var ErrNoTrainingData = errors.New("nlp: no training examples")

// TrainingExample is one labeled utterance in a bot's corpus.
type TrainingExample struct {
	Text   string `json:"text"`
	Intent string `json:"intent"`
}

// Suggestion is a near-miss intent offered when no intent clears the
// confidence threshold.
type Suggestion struct {
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
}

// TrainingMetrics summarizes a completed training run.
type TrainingMetrics struct {
	Accuracy    float64 `json:"accuracy"`
	NumIntents  int     `json:"num_intents"`
	NumExamples int     `json:"num_examples"`
	Version     string  `json:"version"`
}

type retainedExample struct {
	Text      string    `json:"text"`
	Intent    string    `json:"intent"`
	Embedding []float32 `json:"embedding"`
}

// trainedModel is the immutable state produced by one training run. Predict
// reads it under RLock; Train swaps the whole value under Lock, so an
// in-flight Predict always sees a consistent model.
type trainedModel struct {
	Version    string               `json:"version"`
	Centroids  map[string][]float32 `json:"centroids"`
	Vectorizer *Vectorizer          `json:"vectorizer"`
	Forest     *Forest              `json:"forest"`
	Examples   []retainedExample    `json:"examples"`
	Metrics    TrainingMetrics      `json:"metrics"`
}

// IntentClassifier scores a message against a bot's trained intents using an
// ensemble of three signals: cosine similarity against per-intent embedding
// centroids, a random forest over TF-IDF n-grams, and similarity to the
// single closest training example.
type IntentClassifier struct {
	botID     string
	embedder  Embedder
	store     ArtifactStore
	logger    *logging.Logger
	threshold float64

	mu    sync.RWMutex
	model *trainedModel
}

// NewIntentClassifier creates an untrained classifier for one bot. The
// artifact store may be nil, in which case Save and Load are no-ops. A
// non-positive threshold falls back to the default.
func NewIntentClassifier(botID string, embedder Embedder, store ArtifactStore, threshold float64, logger *logging.Logger) *IntentClassifier {
	if embedder == nil {
		panic("nlp: embedder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	return &IntentClassifier{
		botID:     botID,
		embedder:  embedder,
		store:     store,
		logger:    logger,
		threshold: threshold,
	}
}

// Trained reports whether the classifier holds a usable model.
func (c *IntentClassifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model != nil
}

// Version returns the active model version, or "" when untrained.
func (c *IntentClassifier) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == nil {
		return ""
	}
	return c.model.Version
}

// Train fits all three ensemble members on the corpus, swaps in the new
// model, and persists it to the artifact store. The previous model keeps
// serving predictions until the swap.
func (c *IntentClassifier) Train(ctx context.Context, examples []TrainingExample) (TrainingMetrics, error) {
	corpus := make([]TrainingExample, 0, len(examples))
	for _, ex := range examples {
		text := strings.ToLower(strings.TrimSpace(ex.Text))
		if text == "" || ex.Intent == "" {
			continue
		}
		corpus = append(corpus, TrainingExample{Text: text, Intent: ex.Intent})
	}
	if len(corpus) == 0 {
		return TrainingMetrics{}, ErrNoTrainingData
	}

	texts := make([]string, len(corpus))
	labels := make([]string, len(corpus))
	for i, ex := range corpus {
		texts[i] = ex.Text
		labels[i] = ex.Intent
	}

	embeddings, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return TrainingMetrics{}, fmt.Errorf("nlp: embed training corpus: %w", err)
	}
	if len(embeddings) != len(texts) {
		return TrainingMetrics{}, fmt.Errorf("nlp: embedder returned %d vectors for %d texts", len(embeddings), len(texts))
	}

	centroids := computeCentroids(labels, embeddings)

	vectorizer := NewVectorizer()
	vectors, err := vectorizer.Fit(texts)
	if err != nil {
		return TrainingMetrics{}, fmt.Errorf("nlp: fit vectorizer: %w", err)
	}

	forest, err := TrainForest(vectors, labels, vectorizer.NumFeatures())
	if err != nil {
		return TrainingMetrics{}, fmt.Errorf("nlp: train forest: %w", err)
	}

	retained := make([]retainedExample, len(corpus))
	for i, ex := range corpus {
		retained[i] = retainedExample{Text: ex.Text, Intent: ex.Intent, Embedding: embeddings[i]}
	}

	metrics := TrainingMetrics{
		Accuracy:    forest.Score(vectors, labels),
		NumIntents:  len(centroids),
		NumExamples: len(corpus),
		Version:     modelVersion(c.botID, texts, labels),
	}

	model := &trainedModel{
		Version:    metrics.Version,
		Centroids:  centroids,
		Vectorizer: vectorizer,
		Forest:     forest,
		Examples:   retained,
		Metrics:    metrics,
	}

	c.mu.Lock()
	c.model = model
	c.mu.Unlock()

	if err := c.Save(ctx); err != nil {
		// The in-memory model is live either way; persistence failure only
		// costs us a warm start after restart.
		c.logger.Error("failed to persist trained model", "bot_id", c.botID, "error", err)
	}

	c.logger.Info("intent model trained",
		"bot_id", c.botID,
		"version", metrics.Version,
		"intents", metrics.NumIntents,
		"examples", metrics.NumExamples,
		"accuracy", metrics.Accuracy)
	return metrics, nil
}

// Predict scores the message using the configured threshold. See
// PredictWithThreshold.
func (c *IntentClassifier) Predict(ctx context.Context, text string) (string, float64, error) {
	return c.PredictWithThreshold(ctx, text, c.threshold)
}

// PredictWithThreshold scores the message and returns the winning intent
// with its ensemble confidence. The confidence is always reported; the
// intent is empty when it fails to clear the threshold, and an untrained
// classifier returns ("", 0).
func (c *IntentClassifier) PredictWithThreshold(ctx context.Context, text string, threshold float64) (string, float64, error) {
	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()
	if model == nil {
		return "", 0, nil
	}

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", 0, nil
	}

	scores, err := c.ensembleScores(ctx, model, text)
	if err != nil {
		return "", 0, err
	}

	best := ""
	bestScore := 0.0
	for intent, score := range scores {
		if score > bestScore || (score == bestScore && best == "") {
			best = intent
			bestScore = score
		}
	}

	if bestScore < threshold {
		return "", bestScore, nil
	}
	return best, bestScore, nil
}

// GetSuggestions ranks all intents by centroid similarity alone, best
// first, truncated to limit. Meant for "did you mean" responses when
// Predict comes back empty or weak; callers apply their own score floor.
func (c *IntentClassifier) GetSuggestions(ctx context.Context, text string, limit int) ([]Suggestion, error) {
	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()
	if model == nil {
		return nil, nil
	}

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, nil
	}

	embeddings, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("nlp: embed message: %w", err)
	}
	query := embeddings[0]

	suggestions := make([]Suggestion, 0, len(model.Centroids))
	for intent, centroid := range model.Centroids {
		suggestions = append(suggestions, Suggestion{
			Intent: intent,
			Score:  CosineSimilarity(query, centroid),
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Intent < suggestions[j].Intent
	})
	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func (c *IntentClassifier) ensembleScores(ctx context.Context, model *trainedModel, text string) (map[string]float64, error) {
	embeddings, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("nlp: embed message: %w", err)
	}
	query := embeddings[0]

	scores := make(map[string]float64, len(model.Centroids))

	// Semantic: cosine against each intent centroid, negatives clamped.
	for intent, centroid := range model.Centroids {
		scores[intent] += weightSemantic * clampScore(CosineSimilarity(query, centroid))
	}

	// Lexical: random-forest class probabilities over the TF-IDF vector.
	vec := model.Vectorizer.Transform(text)
	for intent, p := range model.Forest.PredictProba(vec) {
		scores[intent] += weightLexical * p
	}

	// Direct: only the label of the single closest retained example earns
	// this term; every other intent gets nothing from it.
	bestLabel := ""
	bestSim := 0.0
	for _, ex := range model.Examples {
		sim := clampScore(CosineSimilarity(query, ex.Embedding))
		if sim > bestSim {
			bestSim = sim
			bestLabel = ex.Intent
		}
	}
	if bestLabel != "" {
		scores[bestLabel] += weightDirect * bestSim
	}

	return scores, nil
}

// Save writes the active model to the artifact store. Without a store or a
// model it does nothing.
func (c *IntentClassifier) Save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()
	if model == nil {
		return nil
	}

	data, err := encodeArtifact(model)
	if err != nil {
		return fmt.Errorf("nlp: encode model artifact: %w", err)
	}
	if err := c.store.Put(ctx, c.botID, data); err != nil {
		return fmt.Errorf("nlp: store model artifact: %w", err)
	}
	return nil
}

// Load restores the bot's model from the artifact store. It returns false
// with a nil error when no artifact exists, leaving the classifier untrained.
func (c *IntentClassifier) Load(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}

	data, ok, err := c.store.Get(ctx, c.botID)
	if err != nil {
		return false, fmt.Errorf("nlp: fetch model artifact: %w", err)
	}
	if !ok {
		return false, nil
	}

	model, err := decodeArtifact(data)
	if err != nil {
		return false, fmt.Errorf("nlp: decode model artifact: %w", err)
	}

	c.mu.Lock()
	c.model = model
	c.mu.Unlock()

	c.logger.Info("intent model loaded", "bot_id", c.botID, "version", model.Version)
	return true, nil
}

func computeCentroids(labels []string, embeddings [][]float32) map[string][]float32 {
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for i, label := range labels {
		if sums[label] == nil {
			sums[label] = make([]float64, len(embeddings[i]))
		}
		for j, v := range embeddings[i] {
			sums[label][j] += float64(v)
		}
		counts[label]++
	}

	centroids := make(map[string][]float32, len(sums))
	for label, sum := range sums {
		n := float64(counts[label])
		centroid := make([]float32, len(sum))
		for j, v := range sum {
			centroid[j] = float32(v / n)
		}
		centroids[label] = centroid
	}
	return centroids
}

// modelVersion derives a stable version tag from the bot and its corpus, so
// retraining on identical data produces an identical tag.
func modelVersion(botID string, texts, labels []string) string {
	h := sha256.New()
	for i := range texts {
		h.Write([]byte(texts[i]))
		h.Write([]byte{0})
		h.Write([]byte(labels[i]))
		h.Write([]byte{0})
	}
	digest := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("bot_%s_%s", botID, digest[:8])
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	return s
}
