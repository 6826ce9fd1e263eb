package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// pgxDB is the slice of pgxpool.Pool the catalog store uses; tests satisfy
// it with pgxmock.
type pgxDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgxCatalogStore reads the bot catalog (bots, intents, phrases, responses,
// entities) from PostgreSQL via pgxpool.
type PgxCatalogStore struct {
	pool   pgxDB
	tracer trace.Tracer
}

// NewPgxCatalogStore initializes the store.
func NewPgxCatalogStore(pool pgxDB, tracer trace.Tracer) *PgxCatalogStore {
	if pool == nil {
		panic("chatbot: pgx pool required")
	}
	if tracer == nil {
		tracer = otel.Tracer("parley.internal.chatbot.catalog")
	}
	return &PgxCatalogStore{pool: pool, tracer: tracer}
}

// GetBot fetches one bot by id.
func (s *PgxCatalogStore) GetBot(ctx context.Context, botID uuid.UUID) (*Bot, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_bot")
	defer span.End()

	query := `
		SELECT id, org_id, name, description, status, language,
		       default_response, confidence_threshold, model_version,
		       settings, created_at, updated_at
		FROM bots
		WHERE id = $1
	`
	var bot Bot
	var settings []byte
	err := s.pool.QueryRow(ctx, query, botID).Scan(
		&bot.ID,
		&bot.OrgID,
		&bot.Name,
		&bot.Description,
		&bot.Status,
		&bot.Language,
		&bot.DefaultResponse,
		&bot.ConfidenceThreshold,
		&bot.ModelVersion,
		&settings,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("chatbot: select bot: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &bot.Settings); err != nil {
			return nil, fmt.Errorf("chatbot: decode bot settings: %w", err)
		}
	}
	return &bot, nil
}

// ListActiveIntents returns the bot's active intents with their training
// phrases and responses, highest priority first.
func (s *PgxCatalogStore) ListActiveIntents(ctx context.Context, botID uuid.UUID) ([]Intent, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_intents")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
		SELECT id, bot_id, name, description, priority, is_active
		FROM intents
		WHERE bot_id = $1 AND is_active = TRUE
		ORDER BY priority DESC, name
	`, botID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chatbot: select intents: %w", err)
	}
	defer rows.Close()

	var intents []Intent
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var in Intent
		if err := rows.Scan(&in.ID, &in.BotID, &in.Name, &in.Description, &in.Priority, &in.Active); err != nil {
			return nil, fmt.Errorf("chatbot: scan intent: %w", err)
		}
		index[in.ID] = len(intents)
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chatbot: iterate intents: %w", err)
	}
	if len(intents) == 0 {
		return nil, nil
	}

	if err := s.attachPhrases(ctx, botID, intents, index); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.attachResponses(ctx, botID, intents, index); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return intents, nil
}

func (s *PgxCatalogStore) attachPhrases(ctx context.Context, botID uuid.UUID, intents []Intent, index map[uuid.UUID]int) error {
	rows, err := s.pool.Query(ctx, `
		SELECT tp.id, tp.intent_id, tp.text
		FROM training_phrases tp
		JOIN intents i ON i.id = tp.intent_id
		WHERE i.bot_id = $1 AND i.is_active = TRUE
		ORDER BY tp.created_at
	`, botID)
	if err != nil {
		return fmt.Errorf("chatbot: select training phrases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var phrase TrainingPhrase
		var intentID uuid.UUID
		if err := rows.Scan(&phrase.ID, &intentID, &phrase.Text); err != nil {
			return fmt.Errorf("chatbot: scan training phrase: %w", err)
		}
		if i, ok := index[intentID]; ok {
			intents[i].TrainingPhrases = append(intents[i].TrainingPhrases, phrase)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("chatbot: iterate training phrases: %w", err)
	}
	return nil
}

func (s *PgxCatalogStore) attachResponses(ctx context.Context, botID uuid.UUID, intents []Intent, index map[uuid.UUID]int) error {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.intent_id, r.text, r.response_type, r.priority
		FROM responses r
		JOIN intents i ON i.id = r.intent_id
		WHERE i.bot_id = $1 AND i.is_active = TRUE
		ORDER BY r.priority DESC
	`, botID)
	if err != nil {
		return fmt.Errorf("chatbot: select responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resp Response
		var intentID uuid.UUID
		if err := rows.Scan(&resp.ID, &intentID, &resp.Text, &resp.Type, &resp.Priority); err != nil {
			return fmt.Errorf("chatbot: scan response: %w", err)
		}
		if i, ok := index[intentID]; ok {
			intents[i].Responses = append(intents[i].Responses, resp)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("chatbot: iterate responses: %w", err)
	}
	return nil
}

// GetIntentByName fetches one active intent with its responses; (nil, nil)
// when absent.
func (s *PgxCatalogStore) GetIntentByName(ctx context.Context, botID uuid.UUID, name string) (*Intent, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_intent")
	defer span.End()

	var in Intent
	err := s.pool.QueryRow(ctx, `
		SELECT id, bot_id, name, description, priority, is_active
		FROM intents
		WHERE bot_id = $1 AND name = $2 AND is_active = TRUE
	`, botID, name).Scan(&in.ID, &in.BotID, &in.Name, &in.Description, &in.Priority, &in.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("chatbot: select intent: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, intent_id, text, response_type, priority
		FROM responses
		WHERE intent_id = $1
		ORDER BY priority DESC
	`, in.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chatbot: select responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resp Response
		var intentID uuid.UUID
		if err := rows.Scan(&resp.ID, &intentID, &resp.Text, &resp.Type, &resp.Priority); err != nil {
			return nil, fmt.Errorf("chatbot: scan response: %w", err)
		}
		in.Responses = append(in.Responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatbot: iterate responses: %w", err)
	}
	return &in, nil
}

// ListActiveEntities returns the bot's active entity definitions.
func (s *PgxCatalogStore) ListActiveEntities(ctx context.Context, botID uuid.UUID) ([]Entity, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_entities")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
		SELECT id, bot_id, name, entity_type, description, value_set, pattern, is_active
		FROM entities
		WHERE bot_id = $1 AND is_active = TRUE
		ORDER BY name
	`, botID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chatbot: select entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var values []byte
		if err := rows.Scan(&e.ID, &e.BotID, &e.Name, &e.Type, &e.Description, &values, &e.Pattern, &e.Active); err != nil {
			return nil, fmt.Errorf("chatbot: scan entity: %w", err)
		}
		if len(values) > 0 {
			if err := json.Unmarshal(values, &e.Values); err != nil {
				return nil, fmt.Errorf("chatbot: decode entity values for %s: %w", e.Name, err)
			}
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chatbot: iterate entities: %w", err)
	}
	return entities, nil
}

// UpdateBotStatus flips the bot status; a non-empty modelVersion also
// records the new trained version.
func (s *PgxCatalogStore) UpdateBotStatus(ctx context.Context, botID uuid.UUID, status BotStatus, modelVersion string) error {
	ctx, span := s.tracer.Start(ctx, "catalog.update_bot_status")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `
		UPDATE bots
		SET status = $2,
		    model_version = COALESCE(NULLIF($3, ''), model_version),
		    updated_at = NOW()
		WHERE id = $1
	`, botID, status, modelVersion)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("chatbot: update bot status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBotNotFound
	}
	return nil
}
