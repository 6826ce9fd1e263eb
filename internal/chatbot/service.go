package chatbot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/parleyai/parley-platform/internal/nlp"
	"github.com/parleyai/parley-platform/internal/observability/metrics"
	"github.com/parleyai/parley-platform/pkg/logging"
)

// apologyResponse is returned whenever message processing fails
// unexpectedly; callers never see a hard failure from ProcessMessage.
const apologyResponse = "I'm sorry, I encountered an error processing your request. Please try again."

// Secondary thresholds for attaching "did you mean" suggestions. These are
// independent of the bot's classification threshold.
const (
	suggestionTrigger  = 0.8
	suggestionMinScore = 0.3
	suggestionLimit    = 3
)

// Reply is the envelope ProcessMessage returns for every message.
type Reply struct {
	Text           string                `json:"text"`
	Intent         string                `json:"intent,omitempty"`
	Confidence     float64               `json:"confidence"`
	Entities       []nlp.ExtractedEntity `json:"entities"`
	Context        *ConversationContext  `json:"context,omitempty"`
	ResponseTimeMs int64                 `json:"response_time_ms"`
	SessionID      string                `json:"session_id"`
	Suggestions    []string              `json:"suggestions,omitempty"`
	Metadata       map[string]any        `json:"metadata,omitempty"`
}

// Deps carries the collaborators a Service needs. Catalog, Conversations
// and Embedder are required; the rest are optional.
type Deps struct {
	Catalog       CatalogStore
	Conversations ConversationStore
	Cache         ContextCache
	Embedder      nlp.Embedder
	Recognizer    nlp.Recognizer
	Artifacts     nlp.ArtifactStore
	Metrics       *metrics.ChatMetrics
	Logger        *logging.Logger
	// Rand drives response selection; tests inject a fixed source.
	Rand *rand.Rand
	// Now is the clock; tests may pin it.
	Now func() time.Time
}

// Service orchestrates the per-message pipeline for one bot: load state,
// extract entities, classify intent, render a response, persist the turn.
// It also owns the bot's train/status lifecycle.
type Service struct {
	bot           *Bot
	catalog       CatalogStore
	conversations ConversationStore
	cache         ContextCache
	extractor     *nlp.EntityExtractor
	classifier    *nlp.IntentClassifier
	metrics       *metrics.ChatMetrics
	logger        *logging.Logger
	rand          *rand.Rand
	now           func() time.Time
}

// NewService builds a service for an active bot. Construction fails when
// the bot does not exist or is not active. A missing trained model is
// logged, not fatal: predictions simply never clear the threshold until the
// bot is trained.
func NewService(ctx context.Context, botID uuid.UUID, deps Deps) (*Service, error) {
	return newService(ctx, botID, deps, true)
}

// NewTrainingService builds a service for TrainBot without the active-status
// gate, so inactive bots can be trained into activation.
func NewTrainingService(ctx context.Context, botID uuid.UUID, deps Deps) (*Service, error) {
	return newService(ctx, botID, deps, false)
}

func newService(ctx context.Context, botID uuid.UUID, deps Deps, requireActive bool) (*Service, error) {
	if deps.Catalog == nil {
		panic("chatbot: catalog store cannot be nil")
	}
	if deps.Conversations == nil {
		panic("chatbot: conversation store cannot be nil")
	}
	if deps.Embedder == nil {
		panic("chatbot: embedder cannot be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	bot, err := deps.Catalog.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if requireActive && bot.Status != BotStatusActive {
		return nil, fmt.Errorf("%w: bot %s has status %s", ErrBotNotActive, botID, bot.Status)
	}

	classifier := nlp.NewIntentClassifier(botID.String(), deps.Embedder, deps.Artifacts, bot.ConfidenceThreshold, logger)
	loaded, err := classifier.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("chatbot: load model for bot %s: %w", botID, err)
	}
	if !loaded {
		logger.Warn("no trained model found, training may be required", "bot_id", botID)
	}

	extractor := nlp.NewEntityExtractor(deps.Recognizer, logger)
	stored, err := deps.Catalog.ListActiveEntities(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("chatbot: load entities for bot %s: %w", botID, err)
	}
	defs := make([]nlp.EntityDefinition, len(stored))
	for i, e := range stored {
		defs[i] = e.Definition()
	}
	extractor.Load(defs)

	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	logger.Info("chatbot service initialized", "bot_id", botID, "entities", len(defs))
	return &Service{
		bot:           bot,
		catalog:       deps.Catalog,
		conversations: deps.Conversations,
		cache:         deps.Cache,
		extractor:     extractor,
		classifier:    classifier,
		metrics:       deps.Metrics,
		logger:        logger,
		rand:          rng,
		now:           now,
	}, nil
}

// Bot returns the bot configuration the service was built for.
func (s *Service) Bot() *Bot { return s.bot }

// Classifier exposes the intent classifier for status reporting.
func (s *Service) Classifier() *nlp.IntentClassifier { return s.classifier }

// Extractor exposes the entity extractor for status reporting.
func (s *Service) Extractor() *nlp.EntityExtractor { return s.extractor }

// ProcessMessage runs the full pipeline for one user message. It never
// returns an error: any failure is logged and converted into a fixed
// apology reply.
func (s *Service) ProcessMessage(ctx context.Context, text, sessionID, userID string, contextOverride []byte) *Reply {
	start := s.now()

	reply, err := func() (reply *Reply, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("chatbot: panic during message processing: %v", r)
			}
		}()
		return s.processMessage(ctx, text, sessionID, userID, contextOverride, start)
	}()
	elapsed := s.now().Sub(start)

	if err != nil {
		s.logger.Error("message processing failed", "bot_id", s.bot.ID, "session_id", sessionID, "error", err)
		s.metrics.ObserveMessage(s.bot.ID.String(), "error")
		s.metrics.ObserveFallback(s.bot.ID.String(), "error")
		return &Reply{
			Text:           apologyResponse,
			Entities:       []nlp.ExtractedEntity{},
			ResponseTimeMs: elapsed.Milliseconds(),
			SessionID:      sessionID,
		}
	}

	s.metrics.ObserveProcessLatency(s.bot.ID.String(), elapsed.Seconds())
	return reply
}

func (s *Service) processMessage(ctx context.Context, text, sessionID, userID string, contextOverride []byte, start time.Time) (*Reply, error) {
	conv, err := s.conversations.FindOrCreateActive(ctx, s.bot.ID, sessionID, userID)
	if err != nil {
		return nil, err
	}

	convCtx, err := s.loadContext(ctx, conv, contextOverride)
	if err != nil {
		return nil, err
	}

	entities := s.extractor.Extract(ctx, text)

	intent, confidence, err := s.classifier.PredictWithThreshold(ctx, text, s.bot.ConfidenceThreshold)
	if err != nil {
		// A degraded embedding capability must not abort the turn.
		s.logger.Warn("intent prediction degraded", "bot_id", s.bot.ID, "error", err)
		intent, confidence = "", 0
	}
	s.metrics.ObserveConfidence(s.bot.ID.String(), confidence)

	responseText, err := s.generateResponse(ctx, intent, entities, convCtx)
	if err != nil {
		return nil, err
	}

	for _, ent := range entities {
		convCtx.SetVariable(ent.Entity, ent.Value)
	}
	convCtx.AddToHistory(Turn{
		UserMessage: text,
		Intent:      intent,
		Entities:    entities,
		Timestamp:   s.now(),
	})

	contextBlob, err := convCtx.Serialize()
	if err != nil {
		return nil, err
	}

	elapsed := s.now().Sub(start)
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		UserMessage:    text,
		BotResponse:    responseText,
		Intent:         intent,
		Confidence:     confidence,
		Entities:       entities,
		ResponseTimeMs: elapsed.Milliseconds(),
		CreatedAt:      s.now(),
	}
	if err := s.conversations.SaveTurn(ctx, conv.ID, msg, contextBlob); err != nil {
		return nil, err
	}
	s.cacheContext(ctx, conv.ID, contextBlob)

	var suggestions []string
	if intent == "" || confidence < suggestionTrigger {
		suggestions = s.intentSuggestions(ctx, text)
	}
	if intent == "" {
		s.metrics.ObserveFallback(s.bot.ID.String(), "no_intent")
		s.metrics.ObserveMessage(s.bot.ID.String(), "fallback")
	} else {
		s.metrics.ObserveMessage(s.bot.ID.String(), "ok")
	}

	return &Reply{
		Text:           responseText,
		Intent:         intent,
		Confidence:     confidence,
		Entities:       entities,
		Context:        convCtx,
		ResponseTimeMs: elapsed.Milliseconds(),
		SessionID:      sessionID,
		Suggestions:    suggestions,
	}, nil
}

// / loadContext builds the turn's context: an explicit override wins,
// otherwise the cache, otherwise the persisted conversation blob.
func (s *Service) loadContext(ctx context.Context, conv *Conversation, override []byte) (*ConversationContext, error) {
	if len(override) > 0 {
		return DeserializeContext(override)
	}
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, conv.ID); err != nil {
			s.logger.Warn("context cache read failed", "conversation_id", conv.ID, "error", err)
		} else if ok {
			if convCtx, err := DeserializeContext(data); err == nil {
				return convCtx, nil
			}
			// A corrupt cache entry falls through to the persisted blob.
		}
	}
	return DeserializeContext(conv.Context)
}

func (s *Service) cacheContext(ctx context.Context, conversationID uuid.UUID, blob []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, conversationID, blob); err != nil {
		s.logger.Warn("context cache write failed", "conversation_id", conversationID, "error", err)
	}
}

// generateResponse picks and renders the reply text. No intent, an unknown
// intent, or an intent with no text responses all fall back to the bot's
// default response.
func (s *Service) generateResponse(ctx context.Context, intentName string, entities []nlp.ExtractedEntity, convCtx *ConversationContext) (string, error) {
	if intentName == "" {
		return s.bot.DefaultResponse, nil
	}

	intent, err := s.catalog.GetIntentByName(ctx, s.bot.ID, intentName)
	if err != nil {
		return "", err
	}
	if intent == nil {
		return s.bot.DefaultResponse, nil
	}

	var candidates []Response
	for _, r := range intent.Responses {
		if r.Type == ResponseTypeText {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return s.bot.DefaultResponse, nil
	}

	selected := candidates[s.rand.Intn(len(candidates))]
	return renderTemplate(selected.Text, entities, convCtx), nil
}

func (s *Service) intentSuggestions(ctx context.Context, text string) []string {
	ranked, err := s.classifier.GetSuggestions(ctx, text, suggestionLimit)
	if err != nil {
		s.logger.Warn("suggestion lookup failed", "bot_id", s.bot.ID, "error", err)
		return nil
	}
	var names []string
	for _, suggestion := range ranked {
		if suggestion.Score > suggestionMinScore {
			names = append(names, suggestion.Intent)
		}
	}
	return names
}

// TrainBot gathers the bot's active intents with at least one training
// phrase and retrains the classifier. On success the bot flips to active
// with the new model version; any failure reverts it to inactive so a
// retry stays possible.
func (s *Service) TrainBot(ctx context.Context) (nlp.TrainingMetrics, error) {
	s.logger.Info("starting training", "bot_id", s.bot.ID)

	intents, err := s.catalog.ListActiveIntents(ctx, s.bot.ID)
	if err != nil {
		s.revertTraining(ctx)
		return nlp.TrainingMetrics{}, fmt.Errorf("chatbot: list intents for training: %w", err)
	}

	var examples []nlp.TrainingExample
	for _, intent := range intents {
		for _, phrase := range intent.TrainingPhrases {
			examples = append(examples, nlp.TrainingExample{Text: phrase.Text, Intent: intent.Name})
		}
	}
	if len(examples) == 0 {
		s.revertTraining(ctx)
		return nlp.TrainingMetrics{}, nlp.ErrNoTrainingData
	}

	trained, err := s.classifier.Train(ctx, examples)
	if err != nil {
		s.revertTraining(ctx)
		return nlp.TrainingMetrics{}, err
	}

	if err := s.catalog.UpdateBotStatus(ctx, s.bot.ID, BotStatusActive, trained.Version); err != nil {
		return trained, fmt.Errorf("chatbot: update bot status after training: %w", err)
	}
	s.bot.Status = BotStatusActive
	s.bot.ModelVersion = trained.Version

	s.logger.Info("training completed", "bot_id", s.bot.ID, "version", trained.Version)
	return trained, nil
}

func (s *Service) revertTraining(ctx context.Context) {
	if err := s.catalog.UpdateBotStatus(ctx, s.bot.ID, BotStatusInactive, ""); err != nil {
		s.logger.Error("failed to revert bot status", "bot_id", s.bot.ID, "error", err)
	}
}

// EndConversation closes the active conversation for the session. Calling
// it with no active conversation is a no-op.
func (s *Service) EndConversation(ctx context.Context, sessionID string) error {
	return s.conversations.SetStatus(ctx, s.bot.ID, sessionID, ConversationEnded)
}

// EscalateConversation hands the active conversation off to a human.
// Idempotent like EndConversation.
func (s *Service) EscalateConversation(ctx context.Context, sessionID string) error {
	return s.conversations.SetStatus(ctx, s.bot.ID, sessionID, ConversationEscalated)
}

// GetConversationHistory returns up to limit of the session's most recent
// messages, oldest-first. An unknown session yields an empty slice, never
// an error.
func (s *Service) GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	conv, err := s.conversations.GetLatest(ctx, s.bot.ID, sessionID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return []Message{}, nil
		}
		return nil, err
	}
	return s.conversations.ListMessages(ctx, conv.ID, limit)
}

// RateMessage records user feedback on a single bot reply.
func (s *Service) RateMessage(ctx context.Context, messageID uuid.UUID, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return s.conversations.RateMessage(ctx, messageID, rating)
}
