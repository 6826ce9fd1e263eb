package nlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

type comprehendAPI interface {
	DetectEntities(ctx context.Context, params *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error)
}

// ComprehendRecognizer implements Recognizer over Amazon Comprehend's
// DetectEntities API.
type ComprehendRecognizer struct {
	api          comprehendAPI
	languageCode types.LanguageCode
}

// NewComprehendRecognizer wraps the provided Comprehend client. An empty
// language code defaults to English.
func NewComprehendRecognizer(api comprehendAPI, languageCode string) *ComprehendRecognizer {
	if api == nil {
		panic("nlp: comprehend client cannot be nil")
	}
	lang := types.LanguageCode(strings.ToLower(strings.TrimSpace(languageCode)))
	if lang == "" {
		lang = types.LanguageCodeEn
	}
	return &ComprehendRecognizer{api: api, languageCode: lang}
}

// Recognize maps Comprehend entity hits to NER spans. Offsets from
// Comprehend are byte offsets into the UTF-8 text, matching what the
// extractor expects.
func (r *ComprehendRecognizer) Recognize(ctx context.Context, text string) ([]NERSpan, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	out, err := r.api.DetectEntities(ctx, &comprehend.DetectEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: r.languageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("nlp: comprehend detect entities: %w", err)
	}

	spans := make([]NERSpan, 0, len(out.Entities))
	for _, ent := range out.Entities {
		if ent.BeginOffset == nil || ent.EndOffset == nil {
			continue
		}
		start := int(*ent.BeginOffset)
		end := int(*ent.EndOffset)
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		spans = append(spans, NERSpan{
			Label: string(ent.Type),
			Text:  aws.ToString(ent.Text),
			Start: start,
			End:   end,
		})
	}
	return spans, nil
}
