package nlp

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3API struct {
	put func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	get func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.put(ctx, params, optFns...)
}

func (m *mockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.get(ctx, params, optFns...)
}

func TestS3ArtifactStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put uses models key", func(t *testing.T) {
		api := &mockS3API{
			put: func(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				assert.Equal(t, "model-bucket", *params.Bucket)
				assert.Equal(t, "models/bot1.json", *params.Key)
				body, err := io.ReadAll(params.Body)
				require.NoError(t, err)
				assert.Equal(t, `{"v":1}`, string(body))
				return &s3.PutObjectOutput{}, nil
			},
		}

		store := NewS3ArtifactStore(api, "model-bucket")
		require.NoError(t, store.Put(ctx, "bot1", []byte(`{"v":1}`)))
	})

	t.Run("get returns payload", func(t *testing.T) {
		api := &mockS3API{
			get: func(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
				assert.Equal(t, "models/bot1.json", *params.Key)
				return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(`{"v":1}`))}, nil
			},
		}

		store := NewS3ArtifactStore(api, "model-bucket")
		data, ok, err := store.Get(ctx, "bot1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"v":1}`, string(data))
	})

	t.Run("missing key is not an error", func(t *testing.T) {
		api := &mockS3API{
			get: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
				return nil, &types.NoSuchKey{}
			},
		}

		store := NewS3ArtifactStore(api, "model-bucket")
		data, ok, err := store.Get(ctx, "bot1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, data)
	})
}

func TestFSArtifactStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSArtifactStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "bot1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "bot1", []byte(`{"v":1}`)))
	data, ok, err := store.Get(ctx, "bot1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"v":1}`, string(data))

	require.NoError(t, store.Put(ctx, "bot1", []byte(`{"v":2}`)))
	data, _, err = store.Get(ctx, "bot1")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data), "put overwrites")
}
