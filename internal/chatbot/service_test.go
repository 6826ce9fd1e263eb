package chatbot

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyai/parley-platform/internal/nlp"
	"github.com/parleyai/parley-platform/pkg/logging"
)

type fakeCatalog struct {
	bot      *Bot
	intents  []Intent
	entities []Entity

	statusUpdates []BotStatus
	intentErr     error
	panicOnIntent bool
}

func (f *fakeCatalog) GetBot(_ context.Context, botID uuid.UUID) (*Bot, error) {
	if f.bot == nil || f.bot.ID != botID {
		return nil, ErrBotNotFound
	}
	copied := *f.bot
	return &copied, nil
}

func (f *fakeCatalog) ListActiveIntents(context.Context, uuid.UUID) ([]Intent, error) {
	return f.intents, nil
}

func (f *fakeCatalog) GetIntentByName(_ context.Context, _ uuid.UUID, name string) (*Intent, error) {
	if f.panicOnIntent {
		panic("catalog corrupted")
	}
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	for i := range f.intents {
		if f.intents[i].Name == name && f.intents[i].Active {
			return &f.intents[i], nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) ListActiveEntities(context.Context, uuid.UUID) ([]Entity, error) {
	return f.entities, nil
}

func (f *fakeCatalog) UpdateBotStatus(_ context.Context, _ uuid.UUID, status BotStatus, version string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	f.bot.Status = status
	if version != "" {
		f.bot.ModelVersion = version
	}
	return nil
}

type fakeConversations struct {
	active   map[string]*Conversation
	messages map[uuid.UUID][]Message

	saveErr     error
	statusCalls []ConversationStatus
	ratings     map[uuid.UUID]int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		active:   make(map[string]*Conversation),
		messages: make(map[uuid.UUID][]Message),
		ratings:  make(map[uuid.UUID]int),
	}
}

func (f *fakeConversations) FindOrCreateActive(_ context.Context, botID uuid.UUID, sessionID, userID string) (*Conversation, error) {
	if conv, ok := f.active[sessionID]; ok && conv.Status == ConversationActive {
		return conv, nil
	}
	conv := &Conversation{
		ID:        uuid.New(),
		BotID:     botID,
		SessionID: sessionID,
		UserID:    userID,
		Status:    ConversationActive,
		Context:   []byte("{}"),
	}
	f.active[sessionID] = conv
	return conv, nil
}

func (f *fakeConversations) SaveTurn(_ context.Context, conversationID uuid.UUID, msg *Message, contextBlob []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.messages[conversationID] = append(f.messages[conversationID], *msg)
	for _, conv := range f.active {
		if conv.ID == conversationID {
			conv.Context = contextBlob
		}
	}
	return nil
}

func (f *fakeConversations) SetStatus(_ context.Context, _ uuid.UUID, sessionID string, status ConversationStatus) error {
	f.statusCalls = append(f.statusCalls, status)
	if conv, ok := f.active[sessionID]; ok && conv.Status == ConversationActive {
		conv.Status = status
	}
	return nil
}

func (f *fakeConversations) GetLatest(_ context.Context, _ uuid.UUID, sessionID string) (*Conversation, error) {
	conv, ok := f.active[sessionID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeConversations) ListMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	msgs := f.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeConversations) RateMessage(_ context.Context, messageID uuid.UUID, rating int) error {
	for _, msgs := range f.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				f.ratings[messageID] = rating
				return nil
			}
		}
	}
	return ErrMessageNotFound
}

func greetingCatalog(botID uuid.UUID) *fakeCatalog {
	intentID := uuid.New()
	return &fakeCatalog{
		bot: &Bot{
			ID:                  botID,
			OrgID:               uuid.New(),
			Name:                "support",
			Status:              BotStatusActive,
			Language:            "en",
			DefaultResponse:     "I don't understand",
			ConfidenceThreshold: 0.6,
		},
		intents: []Intent{{
			ID:     intentID,
			BotID:  botID,
			Name:   "greeting",
			Active: true,
			TrainingPhrases: []TrainingPhrase{
				{ID: uuid.New(), Text: "hello"},
				{ID: uuid.New(), Text: "hi"},
			},
			Responses: []Response{
				{ID: uuid.New(), Text: "Hi there!", Type: ResponseTypeText},
				{ID: uuid.New(), Text: "<card>", Type: ResponseTypeRich},
			},
		}},
	}
}

func newTestService(t *testing.T, catalog *fakeCatalog, conversations *fakeConversations) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), catalog.bot.ID, Deps{
		Catalog:       catalog,
		Conversations: conversations,
		Embedder:      nlp.NewHashingEmbedder(0),
		Logger:        logging.Discard(),
		Rand:          rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresActiveBot(t *testing.T) {
	ctx := context.Background()
	botID := uuid.New()
	catalog := greetingCatalog(botID)
	deps := Deps{
		Catalog:       catalog,
		Conversations: newFakeConversations(),
		Embedder:      nlp.NewHashingEmbedder(0),
		Logger:        logging.Discard(),
	}

	t.Run("unknown bot", func(t *testing.T) {
		_, err := NewService(ctx, uuid.New(), deps)
		assert.ErrorIs(t, err, ErrBotNotFound)
	})

	t.Run("inactive bot", func(t *testing.T) {
		catalog.bot.Status = BotStatusInactive
		defer func() { catalog.bot.Status = BotStatusActive }()
		_, err := NewService(ctx, botID, deps)
		assert.ErrorIs(t, err, ErrBotNotActive)
	})

	t.Run("active bot without model constructs", func(t *testing.T) {
		svc, err := NewService(ctx, botID, deps)
		require.NoError(t, err)
		assert.False(t, svc.Classifier().Trained())
	})
}

func TestProcessMessageScenario(t *testing.T) {
	ctx := context.Background()
	botID := uuid.New()
	catalog := greetingCatalog(botID)
	conversations := newFakeConversations()
	svc := newTestService(t, catalog, conversations)

	_, err := svc.TrainBot(ctx)
	require.NoError(t, err)

	t.Run("trained phrase classifies and renders", func(t *testing.T) {
		reply := svc.ProcessMessage(ctx, "hello", "sess-1", "user-1", nil)
		assert.Equal(t, "greeting", reply.Intent)
		assert.GreaterOrEqual(t, reply.Confidence, 0.6)
		assert.Equal(t, "Hi there!", reply.Text, "rich responses are excluded from selection")
		assert.Equal(t, "sess-1", reply.SessionID)
	})

	t.Run("gibberish falls back to default response", func(t *testing.T) {
		reply := svc.ProcessMessage(ctx, "xyzzy123", "sess-1", "user-1", nil)
		assert.Empty(t, reply.Intent)
		assert.Equal(t, "I don't understand", reply.Text)
	})

	t.Run("turns are persisted with context", func(t *testing.T) {
		conv := conversations.active["sess-1"]
		require.NotNil(t, conv)
		msgs := conversations.messages[conv.ID]
		require.Len(t, msgs, 2)
		assert.Equal(t, "hello", msgs[0].UserMessage)
		assert.Equal(t, "greeting", msgs[0].Intent)

		restored, err := DeserializeContext(conv.Context)
		require.NoError(t, err)
		assert.Len(t, restored.History, 2)
	})
}

func TestProcessMessageEntityFlow(t *testing.T) {
	ctx := context.Background()
	botID := uuid.New()
	catalog := greetingCatalog(botID)
	catalog.intents = []Intent{{
		ID:     uuid.New(),
		BotID:  botID,
		Name:   "preference",
		Active: true,
		TrainingPhrases: []TrainingPhrase{
			{ID: uuid.New(), Text: "i like crimson"},
			{ID: uuid.New(), Text: "my favorite color"},
		},
		Responses: []Response{
			{ID: uuid.New(), Text: "So you like {color}", Type: ResponseTypeText},
		},
	}}
	catalog.entities = []Entity{{
		ID:     uuid.New(),
		BotID:  botID,
		Name:   "color",
		Type:   "custom",
		Active: true,
		Values: []nlp.EntityValue{
			{Value: "red", Synonyms: []string{"crimson"}},
			{Value: "blue"},
		},
	}}
	conversations := newFakeConversations()
	svc := newTestService(t, catalog, conversations)
	_, err := svc.TrainBot(ctx)
	require.NoError(t, err)

	reply := svc.ProcessMessage(ctx, "I like crimson", "sess-1", "", nil)

	require.Len(t, reply.Entities, 1)
	assert.Equal(t, "color", reply.Entities[0].Entity)
	assert.Equal(t, "red", reply.Entities[0].Value, "synonym resolves to canonical value")
	assert.Equal(t, "crimson", reply.Entities[0].RawValue)

	assert.Equal(t, "preference", reply.Intent)
	assert.Equal(t, "So you like red", reply.Text)
	assert.Equal(t, "red", reply.Context.GetVariable("color", nil), "entity lands in context")
}

func TestProcessMessageContextOverride(t *testing.T) {
	ctx := context.Background()
	botID := uuid.New()
	catalog := greetingCatalog(botID)
	catalog.intents[0].Responses = []Response{
		{ID: uuid.New(), Text: "Welcome back, {name}!", Type: ResponseTypeText},
	}
	conversations := newFakeConversations()
	svc := newTestService(t, catalog, conversations)
	_, err := svc.TrainBot(ctx)
	require.NoError(t, err)

	override := NewConversationContext()
	override.SetVariable("name", "Ada")
	blob, err := override.Serialize()
	require.NoError(t, err)

	reply := svc.ProcessMessage(ctx, "hello", "sess-override", "", blob)
	assert.Equal(t, "Welcome back, Ada!", reply.Text)
}

func TestProcessMessageApologyOnFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("storage failure", func(t *testing.T) {
		botID := uuid.New()
		catalog := greetingCatalog(botID)
		conversations := newFakeConversations()
		conversations.saveErr = errors.New("disk full")
		svc := newTestService(t, catalog, conversations)
		_, err := svc.TrainBot(ctx)
		require.NoError(t, err)

		reply := svc.ProcessMessage(ctx, "hello", "sess-1", "", nil)
		assert.Equal(t, apologyResponse, reply.Text)
		assert.Empty(t, reply.Intent)
		assert.Empty(t, reply.Entities)
		assert.Equal(t, "sess-1", reply.SessionID)
	})

	t.Run("panic is contained", func(t *testing.T) {
		botID := uuid.New()
		catalog := greetingCatalog(botID)
		catalog.panicOnIntent = true
		conversations := newFakeConversations()
		svc := newTestService(t, catalog, conversations)
		_, err := svc.TrainBot(ctx)
		require.NoError(t, err)

		reply := svc.ProcessMessage(ctx, "hello", "sess-1", "", nil)
		assert.Equal(t, apologyResponse, reply.Text)
	})
}

func TestTrainBot(t *testing.T) {
	ctx := context.Background()

	t.Run("success activates with version", func(t *testing.T) {
		botID := uuid.New()
		catalog := greetingCatalog(botID)
		svc := newTestService(t, catalog, newFakeConversations())

		trained, err := svc.TrainBot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, trained.NumIntents)
		assert.Equal(t, 2, trained.NumExamples)
		assert.Equal(t, []BotStatus{BotStatusActive}, catalog.statusUpdates)
		assert.Equal(t, trained.Version, catalog.bot.ModelVersion)
	})

	t.Run("no training data reverts to inactive", func(t *testing.T) {
		botID := uuid.New()
		catalog := greetingCatalog(botID)
		catalog.intents[0].TrainingPhrases = nil
		svc := newTestService(t, catalog, newFakeConversations())

		_, err := svc.TrainBot(ctx)
		assert.ErrorIs(t, err, nlp.ErrNoTrainingData)
		assert.Equal(t, []BotStatus{BotStatusInactive}, catalog.statusUpdates)
	})
}

func TestEndConversationIdempotent(t *testing.T) {
	ctx := context.Background()
	botID := uuid.New()
	catalog := greetingCatalog(botID)
	conversations := newFakeConversations()
	svc := newTestService(t, catalog, conversations)
	_, err := svc.TrainBot(ctx)
	require.NoError(t, err)

	svc.ProcessMessage(ctx, "hello", "sess-1", "", nil)

	require.NoError(t, svc.EndConversation(ctx, "sess-1"))
	assert.Equal(t, ConversationEnded, conversations.active["sess-1"].Status)

	require.NoError(t, svc.EndConversation(ctx, "sess-1"), "second end is a no-op")
	require.NoError(t, svc.EndConversation(ctx, "never-existed"))
}

func TestEscalateConversation(t *testing.T) {
	ctx := context.Background()
	botID := uuid.New()
	catalog := greetingCatalog(botID)
	conversations := newFakeConversations()
	svc := newTestService(t, catalog, conversations)
	_, err := svc.TrainBot(ctx)
	require.NoError(t, err)

	svc.ProcessMessage(ctx, "hello", "sess-1", "", nil)
	require.NoError(t, svc.EscalateConversation(ctx, "sess-1"))
	assert.Equal(t, ConversationEscalated, conversations.active["sess-1"].Status)
}

func TestGetConversationHistory(t *testing.T) {
	ctx := context.Background()
	botID := uuid.New()
	catalog := greetingCatalog(botID)
	conversations := newFakeConversations()
	svc := newTestService(t, catalog, conversations)
	_, err := svc.TrainBot(ctx)
	require.NoError(t, err)

	t.Run("unknown session is empty, not an error", func(t *testing.T) {
		msgs, err := svc.GetConversationHistory(ctx, "ghost", 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("messages come back oldest-first", func(t *testing.T) {
		svc.ProcessMessage(ctx, "hello", "sess-1", "", nil)
		svc.ProcessMessage(ctx, "hi", "sess-1", "", nil)

		msgs, err := svc.GetConversationHistory(ctx, "sess-1", 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hello", msgs[0].UserMessage)
		assert.Equal(t, "hi", msgs[1].UserMessage)
	})
}

func TestRateMessage(t *testing.T) {
	ctx := context.Background()
	botID := uuid.New()
	catalog := greetingCatalog(botID)
	conversations := newFakeConversations()
	svc := newTestService(t, catalog, conversations)
	_, err := svc.TrainBot(ctx)
	require.NoError(t, err)

	svc.ProcessMessage(ctx, "hello", "sess-1", "", nil)
	conv := conversations.active["sess-1"]
	msgID := conversations.messages[conv.ID][0].ID

	assert.ErrorIs(t, svc.RateMessage(ctx, msgID, 0), ErrInvalidRating)
	assert.ErrorIs(t, svc.RateMessage(ctx, msgID, 6), ErrInvalidRating)

	require.NoError(t, svc.RateMessage(ctx, msgID, 5))
	assert.Equal(t, 5, conversations.ratings[msgID])

	assert.ErrorIs(t, svc.RateMessage(ctx, uuid.New(), 3), ErrMessageNotFound)
}
