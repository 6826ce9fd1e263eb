package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBedrockAPI struct {
	invoke func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

func (m *mockBedrockAPI) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return m.invoke(ctx, params, optFns...)
}

func TestBedrockEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("one invoke per text", func(t *testing.T) {
		var calls int
		api := &mockBedrockAPI{
			invoke: func(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
				calls++
				assert.Equal(t, "amazon.titan-embed-text-v2:0", *params.ModelId)

				var req struct {
					InputText string `json:"inputText"`
				}
				require.NoError(t, json.Unmarshal(params.Body, &req))
				assert.NotEmpty(t, req.InputText)

				return &bedrockruntime.InvokeModelOutput{
					Body: []byte(`{"embedding":[0.1,0.2,0.3]}`),
				}, nil
			},
		}

		e := NewBedrockEmbedder(api, "amazon.titan-embed-text-v2:0")
		vecs, err := e.Embed(ctx, []string{"hello", "goodbye"})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		require.Len(t, vecs, 2)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[0])
	})

	t.Run("invoke error is wrapped", func(t *testing.T) {
		api := &mockBedrockAPI{
			invoke: func(context.Context, *bedrockruntime.InvokeModelInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
				return nil, errors.New("throttled")
			},
		}

		e := NewBedrockEmbedder(api, "amazon.titan-embed-text-v2:0")
		_, err := e.Embed(ctx, []string{"hello"})
		assert.ErrorContains(t, err, "bedrock embedding invoke")
	})

	t.Run("empty embedding is rejected", func(t *testing.T) {
		api := &mockBedrockAPI{
			invoke: func(context.Context, *bedrockruntime.InvokeModelInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
				return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"embedding":[]}`)}, nil
			},
		}

		e := NewBedrockEmbedder(api, "amazon.titan-embed-text-v2:0")
		_, err := e.Embed(ctx, []string{"hello"})
		assert.Error(t, err)
	})

	t.Run("no texts no calls", func(t *testing.T) {
		e := NewBedrockEmbedder(&mockBedrockAPI{
			invoke: func(context.Context, *bedrockruntime.InvokeModelInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
				t.Fatal("unexpected invoke")
				return nil, nil
			},
		}, "amazon.titan-embed-text-v2:0")

		vecs, err := e.Embed(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, vecs)
	})
}
