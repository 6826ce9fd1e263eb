package nlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ArtifactStore keeps model artifacts in an S3 bucket under
// models/<botID>.json.
type S3ArtifactStore struct {
	api    s3API
	bucket string
}

// NewS3ArtifactStore wraps the provided S3 client.
func NewS3ArtifactStore(api s3API, bucket string) *S3ArtifactStore {
	if api == nil {
		panic("nlp: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("nlp: s3 bucket cannot be empty")
	}
	return &S3ArtifactStore{api: api, bucket: bucket}
}

func (s *S3ArtifactStore) key(botID string) string {
	return "models/" + botID + ".json"
}

// Put uploads the artifact, overwriting any previous version.
func (s *S3ArtifactStore) Put(ctx context.Context, botID string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(botID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("nlp: put artifact for bot %s: %w", botID, err)
	}
	return nil
}

// Get downloads the artifact. A missing key is not an error; ok is false.
func (s *S3ArtifactStore) Get(ctx context.Context, botID string) ([]byte, bool, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(botID)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("nlp: get artifact for bot %s: %w", botID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("nlp: read artifact for bot %s: %w", botID, err)
	}
	return data, true, nil
}

// FSArtifactStore keeps model artifacts on local disk, one JSON file per
// bot. Intended for development and single-node deployments.
type FSArtifactStore struct {
	dir string
}

// NewFSArtifactStore creates the directory if needed.
func NewFSArtifactStore(dir string) (*FSArtifactStore, error) {
	if dir == "" {
		return nil, errors.New("nlp: artifact directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("nlp: create artifact directory: %w", err)
	}
	return &FSArtifactStore{dir: dir}, nil
}

func (s *FSArtifactStore) path(botID string) string {
	return filepath.Join(s.dir, botID+".json")
}

// Put writes atomically via a temp file rename so a crash mid-write never
// leaves a torn artifact.
func (s *FSArtifactStore) Put(_ context.Context, botID string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, botID+".*.tmp")
	if err != nil {
		return fmt.Errorf("nlp: create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("nlp: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("nlp: close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(botID)); err != nil {
		return fmt.Errorf("nlp: rename artifact: %w", err)
	}
	return nil
}

// Get reads the artifact; a missing file reports ok=false.
func (s *FSArtifactStore) Get(_ context.Context, botID string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(botID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("nlp: read artifact: %w", err)
	}
	return data, true, nil
}
