package chatbot

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors surfaced by the stores and the service.
var (
	ErrBotNotFound          = errors.New("chatbot: bot not found")
	ErrBotNotActive         = errors.New("chatbot: bot is not active")
	ErrConversationNotFound = errors.New("chatbot: conversation not found")
	ErrMessageNotFound      = errors.New("chatbot: message not found")
	ErrInvalidRating        = errors.New("chatbot: rating must be between 1 and 5")
)

// CatalogStore reads and updates the bot configuration: bots, intents with
// their phrases and responses, and entity definitions.
type CatalogStore interface {
	GetBot(ctx context.Context, botID uuid.UUID) (*Bot, error)
	// ListActiveIntents returns active intents with training phrases and
	// responses populated.
	ListActiveIntents(ctx context.Context, botID uuid.UUID) ([]Intent, error)
	// GetIntentByName returns the active intent with responses populated,
	// or (nil, nil) when no such intent exists.
	GetIntentByName(ctx context.Context, botID uuid.UUID, name string) (*Intent, error)
	ListActiveEntities(ctx context.Context, botID uuid.UUID) ([]Entity, error)
	// UpdateBotStatus flips the bot status; a non-empty modelVersion also
	// records the trained model version.
	UpdateBotStatus(ctx context.Context, botID uuid.UUID, status BotStatus, modelVersion string) error
}

// ConversationStore persists conversations and their message log.
type ConversationStore interface {
	// FindOrCreateActive returns the active conversation for (bot, session),
	// creating one when none exists. Creation has at-most-one-winner
	// semantics under concurrent callers.
	FindOrCreateActive(ctx context.Context, botID uuid.UUID, sessionID, userID string) (*Conversation, error)
	// SaveTurn appends a message and updates the conversation context in the
	// same transaction.
	SaveTurn(ctx context.Context, conversationID uuid.UUID, msg *Message, contextBlob []byte) error
	// SetStatus transitions the active conversation; a missing active
	// conversation is a no-op so End/Escalate are idempotent.
	SetStatus(ctx context.Context, botID uuid.UUID, sessionID string, status ConversationStatus) error
	// GetLatest returns the most recent conversation for the session in any
	// status, or ErrConversationNotFound.
	GetLatest(ctx context.Context, botID uuid.UUID, sessionID string) (*Conversation, error)
	// ListMessages returns up to limit of the most recent messages,
	// oldest-first.
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	RateMessage(ctx context.Context, messageID uuid.UUID, rating int) error
}

// ContextCache is an optional read-through cache in front of the persisted
// conversation context. Misses and failures fall back to storage.
type ContextCache interface {
	Get(ctx context.Context, conversationID uuid.UUID) ([]byte, bool, error)
	Set(ctx context.Context, conversationID uuid.UUID, data []byte) error
	Delete(ctx context.Context, conversationID uuid.UUID) error
}
