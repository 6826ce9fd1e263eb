package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type bedrockInvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEmbedder produces sentence embeddings via an Amazon Bedrock text
// embedding model (e.g. Titan).
type BedrockEmbedder struct {
	api     bedrockInvokeModelAPI
	modelID string
}

// NewBedrockEmbedder wraps the provided Bedrock runtime client.
func NewBedrockEmbedder(api bedrockInvokeModelAPI, modelID string) *BedrockEmbedder {
	if api == nil {
		panic("nlp: bedrock runtime client cannot be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		panic("nlp: bedrock embedding model id cannot be empty")
	}
	return &BedrockEmbedder{api: api, modelID: modelID}
}

// Embed invokes the model once per text; Bedrock embedding models accept a
// single input per request.
func (e *BedrockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		payload, err := json.Marshal(map[string]any{
			"inputText": text,
		})
		if err != nil {
			return nil, fmt.Errorf("nlp: embedding request marshal: %w", err)
		}

		out, err := e.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(e.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        payload,
		})
		if err != nil {
			return nil, fmt.Errorf("nlp: bedrock embedding invoke: %w", err)
		}

		var decoded struct {
			Embedding []float64 `json:"embedding"`
		}
		if err := json.Unmarshal(out.Body, &decoded); err != nil {
			return nil, fmt.Errorf("nlp: embedding response parse: %w", err)
		}
		if len(decoded.Embedding) == 0 {
			return nil, errors.New("nlp: embedding response was empty")
		}

		vec := make([]float32, len(decoded.Embedding))
		for i, f := range decoded.Embedding {
			vec[i] = float32(f)
		}
		embeddings = append(embeddings, vec)
	}

	return embeddings, nil
}
