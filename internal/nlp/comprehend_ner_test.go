package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockComprehendAPI struct {
	detect func(ctx context.Context, params *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error)
}

func (m *mockComprehendAPI) DetectEntities(ctx context.Context, params *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error) {
	return m.detect(ctx, params, optFns...)
}

func int32Ptr(v int32) *int32 { return &v }

func TestComprehendRecognizer(t *testing.T) {
	ctx := context.Background()
	text := "Alice flew to Paris"

	t.Run("maps entities to spans", func(t *testing.T) {
		api := &mockComprehendAPI{
			detect: func(_ context.Context, params *comprehend.DetectEntitiesInput, _ ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error) {
				assert.Equal(t, text, *params.Text)
				assert.Equal(t, types.LanguageCodeEn, params.LanguageCode)
				return &comprehend.DetectEntitiesOutput{
					Entities: []types.Entity{
						{
							Type:        types.EntityTypePerson,
							Text:        aws.String("Alice"),
							BeginOffset: int32Ptr(0),
							EndOffset:   int32Ptr(5),
						},
						{
							Type:        types.EntityTypeLocation,
							Text:        aws.String("Paris"),
							BeginOffset: int32Ptr(14),
							EndOffset:   int32Ptr(19),
						},
					},
				}, nil
			},
		}

		r := NewComprehendRecognizer(api, "")
		spans, err := r.Recognize(ctx, text)
		require.NoError(t, err)
		require.Len(t, spans, 2)
		assert.Equal(t, NERSpan{Label: "PERSON", Text: "Alice", Start: 0, End: 5}, spans[0])
		assert.Equal(t, NERSpan{Label: "LOCATION", Text: "Paris", Start: 14, End: 19}, spans[1])
	})

	t.Run("drops malformed offsets", func(t *testing.T) {
		api := &mockComprehendAPI{
			detect: func(context.Context, *comprehend.DetectEntitiesInput, ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error) {
				return &comprehend.DetectEntitiesOutput{
					Entities: []types.Entity{
						{Type: types.EntityTypePerson, Text: aws.String("x")},
						{
							Type:        types.EntityTypePerson,
							Text:        aws.String("y"),
							BeginOffset: int32Ptr(10),
							EndOffset:   int32Ptr(999),
						},
					},
				}, nil
			},
		}

		r := NewComprehendRecognizer(api, "en")
		spans, err := r.Recognize(ctx, text)
		require.NoError(t, err)
		assert.Empty(t, spans)
	})

	t.Run("blank text skips the call", func(t *testing.T) {
		r := NewComprehendRecognizer(&mockComprehendAPI{
			detect: func(context.Context, *comprehend.DetectEntitiesInput, ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error) {
				t.Fatal("unexpected call")
				return nil, nil
			},
		}, "en")

		spans, err := r.Recognize(ctx, "   ")
		require.NoError(t, err)
		assert.Nil(t, spans)
	})

	t.Run("backend error is wrapped", func(t *testing.T) {
		api := &mockComprehendAPI{
			detect: func(context.Context, *comprehend.DetectEntitiesInput, ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error) {
				return nil, errors.New("unavailable")
			},
		}

		r := NewComprehendRecognizer(api, "en")
		_, err := r.Recognize(ctx, text)
		assert.ErrorContains(t, err, "comprehend detect entities")
	})
}
