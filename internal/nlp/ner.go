package nlp

import "context"

// NERSpan is a single span found by a named-entity recognizer.
type NERSpan struct {
	Label string
	Text  string
	Start int
	End   int
}

// Recognizer is the pluggable named-entity recognition capability. It is
// optional: when unavailable the extractor simply skips the NER pass.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]NERSpan, error)
}

// NoopRecognizer always finds nothing. Used when no NER backend is
// configured.
type NoopRecognizer struct{}

// Recognize returns no spans.
func (NoopRecognizer) Recognize(context.Context, string) ([]NERSpan, error) {
	return nil, nil
}
