package nlp

import (
	"context"
	"encoding/json"
	"fmt"
)

// artifactFormatVersion guards against loading artifacts written by an
// incompatible build.
const artifactFormatVersion = 1

type modelArtifact struct {
	Format int           `json:"format"`
	Model  *trainedModel `json:"model"`
}

func encodeArtifact(model *trainedModel) ([]byte, error) {
	return json.Marshal(modelArtifact{Format: artifactFormatVersion, Model: model})
}

func decodeArtifact(data []byte) (*trainedModel, error) {
	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	if artifact.Format != artifactFormatVersion {
		return nil, fmt.Errorf("unsupported artifact format %d", artifact.Format)
	}
	if artifact.Model == nil {
		return nil, fmt.Errorf("artifact has no model payload")
	}
	if artifact.Model.Vectorizer != nil {
		artifact.Model.Vectorizer.fitted = len(artifact.Model.Vectorizer.Vocabulary) > 0
	}
	return artifact.Model, nil
}

// ArtifactStore persists serialized model artifacts keyed by bot. Get
// reports ok=false when no artifact exists for the bot.
type ArtifactStore interface {
	Put(ctx context.Context, botID string, data []byte) error
	Get(ctx context.Context, botID string) (data []byte, ok bool, err error)
}
