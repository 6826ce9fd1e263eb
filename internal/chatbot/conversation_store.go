package chatbot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLConversationStore persists conversations and messages to PostgreSQL
// through database/sql (lib/pq driver).
type SQLConversationStore struct {
	db *sql.DB
}

// NewSQLConversationStore creates the store. A nil handle yields a nil
// store whose methods are all no-ops, so persistence can be switched off in
// development.
func NewSQLConversationStore(db *sql.DB) *SQLConversationStore {
	if db == nil {
		return nil
	}
	return &SQLConversationStore{db: db}
}

const conversationColumns = `id, bot_id, session_id, user_id, status, context, started_at, ended_at`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var conv Conversation
	var userID sql.NullString
	var endedAt sql.NullTime
	if err := row.Scan(
		&conv.ID,
		&conv.BotID,
		&conv.SessionID,
		&userID,
		&conv.Status,
		&conv.Context,
		&conv.StartedAt,
		&endedAt,
	); err != nil {
		return nil, err
	}
	conv.UserID = userID.String
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}
	return &conv, nil
}

// FindOrCreateActive returns the active conversation for (bot, session),
// creating one when none exists. A partial unique index on
// (bot_id, session_id) WHERE status = 'active' closes the concurrent-create
// race: the loser's insert hits the constraint and re-reads the winner's
// row.
func (s *SQLConversationStore) FindOrCreateActive(ctx context.Context, botID uuid.UUID, sessionID, userID string) (*Conversation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("chatbot: conversation store is not configured")
	}

	for attempt := 0; attempt < 2; attempt++ {
		conv, err := scanConversation(s.db.QueryRowContext(ctx, `
			SELECT `+conversationColumns+`
			FROM conversations
			WHERE bot_id = $1 AND session_id = $2 AND status = 'active'
		`, botID, sessionID))
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chatbot: select conversation: %w", err)
		}

		newID := uuid.New()
		now := time.Now()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO conversations (id, bot_id, session_id, user_id, status, context, started_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), 'active', '{}', $5)
		`, newID, botID, sessionID, userID, now)
		if err == nil {
			return &Conversation{
				ID:        newID,
				BotID:     botID,
				SessionID: sessionID,
				UserID:    userID,
				Status:    ConversationActive,
				Context:   []byte("{}"),
				StartedAt: now,
			}, nil
		}
		// Another request won the create race; loop re-reads its row.
		if strings.Contains(err.Error(), "duplicate key") {
			continue
		}
		return nil, fmt.Errorf("chatbot: create conversation: %w", err)
	}
	return nil, errors.New("chatbot: conversation create race did not settle")
}

// SaveTurn appends a message and writes the updated context to the
// conversation row inside one transaction, so a turn is either fully
// persisted or not at all.
func (s *SQLConversationStore) SaveTurn(ctx context.Context, conversationID uuid.UUID, msg *Message, contextBlob []byte) error {
	if s == nil || s.db == nil {
		return nil
	}

	entities, err := json.Marshal(msg.Entities)
	if err != nil {
		return fmt.Errorf("chatbot: marshal entities: %w", err)
	}
	if len(contextBlob) == 0 {
		contextBlob = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chatbot: begin turn transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, user_message, bot_response,
			intent, confidence, entities, response_time_ms, created_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	`, msg.ID, conversationID, msg.UserMessage, msg.BotResponse,
		msg.Intent, msg.Confidence, entities, msg.ResponseTimeMs, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("chatbot: insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET context = $2, updated_at = NOW() WHERE id = $1
	`, conversationID, contextBlob); err != nil {
		return fmt.Errorf("chatbot: update conversation context: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chatbot: commit turn: %w", err)
	}
	return nil
}

// SetStatus transitions the session's active conversation to the given
// status and stamps the end time. No active conversation is a no-op, which
// makes EndConversation and EscalateConversation idempotent.
func (s *SQLConversationStore) SetStatus(ctx context.Context, botID uuid.UUID, sessionID string, status ConversationStatus) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = $3, ended_at = NOW(), updated_at = NOW()
		WHERE bot_id = $1 AND session_id = $2 AND status = 'active'
	`, botID, sessionID, status)
	if err != nil {
		return fmt.Errorf("chatbot: update conversation status: %w", err)
	}
	return nil
}

// GetLatest returns the most recent conversation for the session in any
// status.
func (s *SQLConversationStore) GetLatest(ctx context.Context, botID uuid.UUID, sessionID string) (*Conversation, error) {
	if s == nil || s.db == nil {
		return nil, ErrConversationNotFound
	}
	conv, err := scanConversation(s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE bot_id = $1 AND session_id = $2
		ORDER BY started_at DESC
		LIMIT 1
	`, botID, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("chatbot: select latest conversation: %w", err)
	}
	return conv, nil
}

// ListMessages returns up to limit of the conversation's most recent
// messages, reordered oldest-first.
func (s *SQLConversationStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, user_message, bot_response,
		       COALESCE(intent, ''), confidence, entities,
		       response_time_ms, feedback_rating, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("chatbot: select messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var entities []byte
		var rating sql.NullInt64
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.UserMessage,
			&msg.BotResponse,
			&msg.Intent,
			&msg.Confidence,
			&entities,
			&msg.ResponseTimeMs,
			&rating,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("chatbot: scan message: %w", err)
		}
		if len(entities) > 0 {
			if err := json.Unmarshal(entities, &msg.Entities); err != nil {
				return nil, fmt.Errorf("chatbot: decode message entities: %w", err)
			}
		}
		if rating.Valid {
			r := int(rating.Int64)
			msg.FeedbackRating = &r
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatbot: iterate messages: %w", err)
	}

	// The query walks newest-first to honor the limit; callers want
	// oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// RateMessage records a 1..5 feedback rating on one message.
func (s *SQLConversationStore) RateMessage(ctx context.Context, messageID uuid.UUID, rating int) error {
	if s == nil || s.db == nil {
		return nil
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET feedback_rating = $2 WHERE id = $1
	`, messageID, rating)
	if err != nil {
		return fmt.Errorf("chatbot: rate message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("chatbot: rate message result: %w", err)
	}
	if affected == 0 {
		return ErrMessageNotFound
	}
	return nil
}
