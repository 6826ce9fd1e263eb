package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyai/parley-platform/internal/http/middleware"
)

func TestOrgIDByAPIKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewStore(mock)
	orgID := uuid.New()

	mock.ExpectQuery("SELECT id FROM orgs").
		WithArgs("pk_live_abc").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(orgID))

	got, err := store.OrgIDByAPIKey(context.Background(), "pk_live_abc")
	require.NoError(t, err)
	assert.Equal(t, orgID, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrgIDByAPIKeyUnknown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewStore(mock)

	mock.ExpectQuery("SELECT id FROM orgs").
		WithArgs("bogus").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = store.OrgIDByAPIKey(context.Background(), "bogus")
	assert.ErrorIs(t, err, middleware.ErrUnknownAPIKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBotInOrg(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewStore(mock)
	botID := uuid.New()
	orgID := uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(botID, orgID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.BotInOrg(context.Background(), botID, orgID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
