package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiEmbedder produces sentence embeddings via Google's Gemini embedding
// models. Alternative to Bedrock for deployments without AWS access.
type GeminiEmbedder struct {
	client  *genai.Client
	modelID string
}

// NewGeminiEmbedder creates a Gemini-backed embedder.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelID string) (*GeminiEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("nlp: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("nlp: failed to create gemini client: %w", err)
	}

	return &GeminiEmbedder{client: client, modelID: modelID}, nil
}

// Embed batches all texts into a single EmbedContent batch call.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := e.client.EmbeddingModel(e.modelID)
	batch := model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("nlp: gemini embedding request: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, errors.New("nlp: gemini embedding response size mismatch")
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, errors.New("nlp: gemini embedding response was empty")
		}
		out[i] = emb.Values
	}
	return out, nil
}

// Close releases the underlying client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
