package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGDirectory resolves admin contacts from the bots and orgs tables.
type PGDirectory struct {
	db db
}

// NewPGDirectory builds a Postgres-backed directory.
func NewPGDirectory(db db) *PGDirectory {
	if db == nil {
		panic("notify: pgx pool cannot be nil")
	}
	return &PGDirectory{db: db}
}

var _ BotDirectory = (*PGDirectory)(nil)

// AdminContact returns the organization contact for the given bot.
func (d *PGDirectory) AdminContact(ctx context.Context, botID uuid.UUID) (Contact, error) {
	var contact Contact
	err := d.db.QueryRow(ctx, `
		SELECT b.name, o.name, o.contact_email
		FROM bots b
		JOIN orgs o ON o.id = b.org_id
		WHERE b.id = $1
	`, botID).Scan(&contact.BotName, &contact.Name, &contact.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, fmt.Errorf("notify: bot %s has no organization", botID)
		}
		return Contact{}, fmt.Errorf("notify: resolve admin contact: %w", err)
	}
	return contact, nil
}
