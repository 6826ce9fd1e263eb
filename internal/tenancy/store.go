package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parleyai/parley-platform/internal/http/middleware"
)

type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store resolves API keys to organizations and checks bot ownership.
type Store struct {
	db db
}

// NewStore builds a Postgres-backed tenancy store.
func NewStore(db db) *Store {
	if db == nil {
		panic("tenancy: pgx pool cannot be nil")
	}
	return &Store{db: db}
}

var _ middleware.OrgResolver = (*Store)(nil)

// OrgIDByAPIKey returns the organization owning the given API key.
func (s *Store) OrgIDByAPIKey(ctx context.Context, apiKey string) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := s.db.QueryRow(ctx, `
		SELECT id FROM orgs WHERE api_key = $1 AND is_active = TRUE
	`, apiKey).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, middleware.ErrUnknownAPIKey
		}
		return uuid.Nil, fmt.Errorf("tenancy: look up api key: %w", err)
	}
	return orgID, nil
}

// BotInOrg reports whether the bot belongs to the organization.
func (s *Store) BotInOrg(ctx context.Context, botID, orgID uuid.UUID) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM bots WHERE id = $1 AND org_id = $2)
	`, botID, orgID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("tenancy: check bot ownership: %w", err)
	}
	return ok, nil
}
