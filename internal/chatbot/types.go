package chatbot

import (
	"time"

	"github.com/google/uuid"

	"github.com/parleyai/parley-platform/internal/nlp"
)

// BotStatus is the bot lifecycle state. Only active bots serve traffic;
// training is an advisory state that serializes retraining attempts.
type BotStatus string

const (
	BotStatusActive   BotStatus = "active"
	BotStatusInactive BotStatus = "inactive"
	BotStatusTraining BotStatus = "training"
)

// ConversationStatus is the conversation lifecycle state.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationEnded     ConversationStatus = "ended"
	ConversationEscalated ConversationStatus = "escalated"
)

// ResponseType tags a response template. Only text responses participate in
// automatic selection.
type ResponseType string

const (
	ResponseTypeText   ResponseType = "text"
	ResponseTypeRich   ResponseType = "rich"
	ResponseTypeCustom ResponseType = "custom"
)

// Bot is one configured agent owned by an organization.
type Bot struct {
	ID                  uuid.UUID      `json:"id"`
	OrgID               uuid.UUID      `json:"org_id"`
	Name                string         `json:"name"`
	Description         string         `json:"description,omitempty"`
	Status              BotStatus      `json:"status"`
	Language            string         `json:"language"`
	DefaultResponse     string         `json:"default_response"`
	ConfidenceThreshold float64        `json:"confidence_threshold"`
	ModelVersion        string         `json:"model_version,omitempty"`
	Settings            map[string]any `json:"settings,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Intent is a bot-scoped intent with its training corpus and response
// templates.
type Intent struct {
	ID              uuid.UUID        `json:"id"`
	BotID           uuid.UUID        `json:"bot_id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Priority        int              `json:"priority"`
	Active          bool             `json:"active"`
	TrainingPhrases []TrainingPhrase `json:"training_phrases,omitempty"`
	Responses       []Response       `json:"responses,omitempty"`
}

// TrainingPhrase is one labeled example utterance.
type TrainingPhrase struct {
	ID          uuid.UUID             `json:"id"`
	Text        string                `json:"text"`
	Annotations []nlp.ExtractedEntity `json:"annotations,omitempty"`
}

// Response is one templated reply for an intent. Templates may embed
// {entity}/{@entity} and {var}/{$var} placeholders.
type Response struct {
	ID       uuid.UUID    `json:"id"`
	Text     string       `json:"text"`
	Type     ResponseType `json:"type"`
	Priority int          `json:"priority"`
}

// Entity is the stored form of a bot-scoped entity definition.
type Entity struct {
	ID          uuid.UUID         `json:"id"`
	BotID       uuid.UUID         `json:"bot_id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Values      []nlp.EntityValue `json:"values,omitempty"`
	Pattern     string            `json:"pattern,omitempty"`
	Active      bool              `json:"active"`
}

// Definition converts the stored entity to the extractor's input form.
func (e Entity) Definition() nlp.EntityDefinition {
	return nlp.EntityDefinition{
		Name:        e.Name,
		Type:        e.Type,
		Description: e.Description,
		Values:      e.Values,
		Pattern:     e.Pattern,
		Active:      e.Active,
	}
}

// Conversation is one session between a user and a bot. At most one active
// conversation exists per (bot, session_id), enforced at the storage layer.
type Conversation struct {
	ID        uuid.UUID          `json:"id"`
	BotID     uuid.UUID          `json:"bot_id"`
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id,omitempty"`
	Status    ConversationStatus `json:"status"`
	Context   []byte             `json:"-"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
}

// Message is one append-only turn in the conversation log.
type Message struct {
	ID             uuid.UUID             `json:"id"`
	ConversationID uuid.UUID             `json:"conversation_id"`
	UserMessage    string                `json:"user_message"`
	BotResponse    string                `json:"bot_response"`
	Intent         string                `json:"intent,omitempty"`
	Confidence     float64               `json:"confidence"`
	Entities       []nlp.ExtractedEntity `json:"entities,omitempty"`
	ResponseTimeMs int64                 `json:"response_time_ms"`
	FeedbackRating *int                  `json:"feedback_rating,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}
