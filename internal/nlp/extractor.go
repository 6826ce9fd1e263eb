package nlp

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/parleyai/parley-platform/pkg/logging"
)

// EntityValue is one canonical dictionary value plus its synonyms.
type EntityValue struct {
	Value    string   `json:"value"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// EntityDefinition describes one bot-scoped entity the extractor should
// look for. Type is "custom", "system" or "regex".
type EntityDefinition struct {
	Name        string
	Type        string
	Description string
	Values      []EntityValue
	Pattern     string
	Active      bool
}

// ExtractedEntity is a single entity hit inside one message. Value holds the
// resolved value (canonical dictionary value, parsed number, or the matched
// surface text); RawValue carries the matched term when it differs.
type ExtractedEntity struct {
	Entity     string  `json:"entity"`
	Value      any     `json:"value"`
	RawValue   string  `json:"raw_value,omitempty"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Label      string  `json:"label,omitempty"`
}

// Extraction method tags.
const (
	MethodRegex   = "regex"
	MethodCustom  = "custom"
	MethodNER     = "ner"
	MethodPattern = "pattern"
)

// Confidence assigned per extraction pass.
const (
	confidenceRegex  = 1.0
	confidenceCustom = 0.9
	confidenceNER    = 0.8
	confidenceEmail  = 0.95
	confidencePhone  = 0.9
	confidenceNumber = 0.85
	confidenceURL    = 0.95
)

// Fixed structural patterns, not configurable per bot.
var (
	emailPattern  = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	phonePattern  = regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`)
	numberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	urlPattern    = regexp.MustCompile(`https?://[A-Za-z0-9$\-_@.&+!*(),%/#?=~]+`)
)

type dictionaryEntity struct {
	values      []EntityValue
	entityType  string
	description string
}

type regexEntity struct {
	pattern     *regexp.Regexp
	description string
}

// EntityExtractor finds entities in message text by combining regex
// definitions, dictionary lookups, a pluggable NER capability, and fixed
// structural patterns. Load replaces all definitions; Extract is pure given
// the loaded set.
type EntityExtractor struct {
	recognizer Recognizer
	logger     *logging.Logger

	dictionary map[string]dictionaryEntity
	regexes    map[string]regexEntity
}

// NewEntityExtractor creates an extractor. A nil recognizer disables the
// NER pass.
func NewEntityExtractor(recognizer Recognizer, logger *logging.Logger) *EntityExtractor {
	if logger == nil {
		logger = logging.Default()
	}
	if recognizer == nil {
		recognizer = NoopRecognizer{}
	}
	return &EntityExtractor{
		recognizer: recognizer,
		logger:     logger,
		dictionary: make(map[string]dictionaryEntity),
		regexes:    make(map[string]regexEntity),
	}
}

// Load replaces all loaded entity definitions. Inactive definitions are
// skipped. A regex definition whose pattern does not compile is skipped with
// a log line; it never aborts the rest of the load.
func (e *EntityExtractor) Load(definitions []EntityDefinition) {
	e.dictionary = make(map[string]dictionaryEntity)
	e.regexes = make(map[string]regexEntity)

	for _, def := range definitions {
		if !def.Active {
			continue
		}
		switch def.Type {
		case "regex":
			if strings.TrimSpace(def.Pattern) == "" {
				continue
			}
			compiled, err := regexp.Compile("(?i)" + def.Pattern)
			if err != nil {
				e.logger.Warn("skipping entity with invalid regex pattern",
					"entity", def.Name, "error", err)
				continue
			}
			e.regexes[def.Name] = regexEntity{pattern: compiled, description: def.Description}
		case "custom", "system":
			e.dictionary[def.Name] = dictionaryEntity{
				values:      def.Values,
				entityType:  def.Type,
				description: def.Description,
			}
		}
	}

	e.logger.Info("entity definitions loaded",
		"dictionary_entities", len(e.dictionary),
		"regex_entities", len(e.regexes))
}

// Extract runs all four passes and resolves overlapping candidates. The
// result is sorted by start offset and contains no overlapping spans.
func (e *EntityExtractor) Extract(ctx context.Context, text string) []ExtractedEntity {
	var found []ExtractedEntity
	textLower := strings.ToLower(text)

	found = append(found, e.extractRegexEntities(text)...)
	found = append(found, e.extractDictionaryEntities(textLower)...)
	found = append(found, e.extractNEREntities(ctx, text)...)
	found = append(found, e.extractCommonPatterns(text)...)

	return resolveConflicts(found)
}

func (e *EntityExtractor) extractRegexEntities(text string) []ExtractedEntity {
	var entities []ExtractedEntity
	for name, def := range e.regexes {
		for _, loc := range def.pattern.FindAllStringIndex(text, -1) {
			entities = append(entities, ExtractedEntity{
				Entity:     name,
				Value:      text[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Confidence: confidenceRegex,
				Method:     MethodRegex,
			})
		}
	}
	return entities
}

func (e *EntityExtractor) extractDictionaryEntities(textLower string) []ExtractedEntity {
	var entities []ExtractedEntity
	for name, def := range e.dictionary {
		for _, value := range def.values {
			terms := make([]string, 0, 1+len(value.Synonyms))
			terms = append(terms, strings.ToLower(value.Value))
			for _, syn := range value.Synonyms {
				terms = append(terms, strings.ToLower(syn))
			}

			for _, term := range terms {
				if term == "" {
					continue
				}
				start := strings.Index(textLower, term)
				if start < 0 {
					continue
				}
				entities = append(entities, ExtractedEntity{
					Entity: name,
					// Always resolve to the canonical value, not the
					// matched surface string.
					Value:      value.Value,
					RawValue:   term,
					Start:      start,
					End:        start + len(term),
					Confidence: confidenceCustom,
					Method:     MethodCustom,
				})
			}
		}
	}
	return entities
}

func (e *EntityExtractor) extractNEREntities(ctx context.Context, text string) []ExtractedEntity {
	spans, err := e.recognizer.Recognize(ctx, text)
	if err != nil {
		// NER is best-effort; an unavailable backend degrades to a no-op.
		e.logger.Warn("ner pass skipped", "error", err)
		return nil
	}

	entities := make([]ExtractedEntity, 0, len(spans))
	for _, span := range spans {
		entities = append(entities, ExtractedEntity{
			Entity:     "sys." + strings.ToLower(span.Label),
			Value:      span.Text,
			Start:      span.Start,
			End:        span.End,
			Confidence: confidenceNER,
			Method:     MethodNER,
			Label:      span.Label,
		})
	}
	return entities
}

func (e *EntityExtractor) extractCommonPatterns(text string) []ExtractedEntity {
	var entities []ExtractedEntity

	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		entities = append(entities, ExtractedEntity{
			Entity:     "sys.email",
			Value:      text[loc[0]:loc[1]],
			Start:      loc[0],
			End:        loc[1],
			Confidence: confidenceEmail,
			Method:     MethodPattern,
		})
	}

	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		entities = append(entities, ExtractedEntity{
			Entity:     "sys.phone",
			Value:      text[loc[0]:loc[1]],
			Start:      loc[0],
			End:        loc[1],
			Confidence: confidencePhone,
			Method:     MethodPattern,
		})
	}

	for _, loc := range numberPattern.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		value, err := parseNumber(raw)
		if err != nil {
			continue
		}
		entities = append(entities, ExtractedEntity{
			Entity:     "sys.number",
			Value:      value,
			RawValue:   raw,
			Start:      loc[0],
			End:        loc[1],
			Confidence: confidenceNumber,
			Method:     MethodPattern,
		})
	}

	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		entities = append(entities, ExtractedEntity{
			Entity:     "sys.url",
			Value:      text[loc[0]:loc[1]],
			Start:      loc[0],
			End:        loc[1],
			Confidence: confidenceURL,
			Method:     MethodPattern,
		})
	}

	return entities
}

func parseNumber(raw string) (any, error) {
	if strings.Contains(raw, ".") {
		return strconv.ParseFloat(raw, 64)
	}
	return strconv.Atoi(raw)
}

// resolveConflicts drops overlapping candidates, preferring higher
// confidence. The scan is greedy and single-pass over start-sorted
// candidates: a later candidate only displaces an accepted one when its
// confidence strictly exceeds it. That is deliberately not globally optimal.
func resolveConflicts(candidates []ExtractedEntity) []ExtractedEntity {
	if len(candidates) == 0 {
		return candidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start < candidates[j].Start
	})

	var resolved []ExtractedEntity
	for _, candidate := range candidates {
		overlaps := false
		for i, accepted := range resolved {
			// Half-open interval intersection.
			if candidate.Start < accepted.End && candidate.End > accepted.Start {
				if candidate.Confidence > accepted.Confidence {
					resolved = append(resolved[:i], resolved[i+1:]...)
					resolved = append(resolved, candidate)
				}
				overlaps = true
				break
			}
		}
		if !overlaps {
			resolved = append(resolved, candidate)
		}
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Start < resolved[j].Start
	})
	return resolved
}

// AnnotateText inserts [span](entityName) markup for each entity. Entities
// are applied right to left so earlier offsets stay valid.
func (e *EntityExtractor) AnnotateText(text string, entities []ExtractedEntity) string {
	if len(entities) == 0 {
		return text
	}

	sorted := make([]ExtractedEntity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start > sorted[j].Start
	})

	annotated := text
	for _, ent := range sorted {
		if ent.Start < 0 || ent.End > len(annotated) || ent.Start >= ent.End {
			continue
		}
		annotated = fmt.Sprintf("%s[%s](%s)%s",
			annotated[:ent.Start],
			annotated[ent.Start:ent.End],
			ent.Entity,
			annotated[ent.End:])
	}
	return annotated
}

// ValidateValue reports whether value is valid for the named entity:
// case-insensitive membership (including synonyms) for dictionary entities,
// pattern match for regex entities, false for unknown entities.
func (e *EntityExtractor) ValidateValue(entityName, value string) bool {
	if def, ok := e.dictionary[entityName]; ok {
		lower := strings.ToLower(value)
		for _, v := range def.values {
			if lower == strings.ToLower(v.Value) {
				return true
			}
			for _, syn := range v.Synonyms {
				if lower == strings.ToLower(syn) {
					return true
				}
			}
		}
		return false
	}
	if def, ok := e.regexes[entityName]; ok {
		return def.pattern.MatchString(value)
	}
	return false
}
