package mainconfig

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/parleyai/parley-platform/internal/config"
	"github.com/parleyai/parley-platform/internal/nlp"
	"github.com/parleyai/parley-platform/pkg/logging"
)

// BuildEmbedder picks the embedding backend from configuration: Bedrock when
// a model ID is set, Gemini when an API key is set, otherwise the local
// hashing embedder (dev/test only).
func BuildEmbedder(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (nlp.Embedder, error) {
	if cfg.BedrockEmbeddingModelID != "" {
		logger.Info("using bedrock embedder", "model_id", cfg.BedrockEmbeddingModelID)
		return nlp.NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockEmbeddingModelID), nil
	}
	if cfg.GeminiAPIKey != "" {
		logger.Info("using gemini embedder", "model_id", cfg.GeminiEmbeddingModel)
		return nlp.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModel)
	}
	logger.Warn("no embedding backend configured, falling back to hashing embedder")
	return nlp.NewHashingEmbedder(0), nil
}

// BuildRecognizer wires the Comprehend NER backend, or nil when disabled.
func BuildRecognizer(cfg *appconfig.Config, awsCfg aws.Config) nlp.Recognizer {
	if cfg.ComprehendLanguageCode == "" {
		return nil
	}
	return nlp.NewComprehendRecognizer(comprehend.NewFromConfig(awsCfg), cfg.ComprehendLanguageCode)
}

// BuildArtifactStore stores trained models in S3 when a bucket is configured,
// otherwise on the local filesystem.
func BuildArtifactStore(cfg *appconfig.Config, awsCfg aws.Config) (nlp.ArtifactStore, error) {
	if cfg.ModelBucket != "" {
		return nlp.NewS3ArtifactStore(s3.NewFromConfig(awsCfg), cfg.ModelBucket), nil
	}
	return nlp.NewFSArtifactStore(cfg.ModelsDir)
}
