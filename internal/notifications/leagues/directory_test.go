// internal/notifications/leagues/directory_test.go
package leagues

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDirectory(t *testing.T) (*Directory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDirectory(db), mock
}

func TestListUsers(t *testing.T) {
	dir, mock := setupDirectory(t)

	mock.ExpectQuery(`SELECT id, COALESCE\(email, ''\) FROM users ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow("u1", "a@example.com").
			AddRow("u2", ""))

	users, err := dir.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a@example.com", users[0].Email)
	assert.Equal(t, "u2", users[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLeague_ScansParticipants(t *testing.T) {
	dir, mock := setupDirectory(t)

	mock.ExpectQuery(`SELECT id, name, status, participant_ids FROM leagues WHERE id = \$1`).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "participant_ids"}).
			AddRow("l1", "Sunday League", "active", "{u1,u2}"))

	league, err := dir.GetLeague(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, league.ParticipantIDs)
	assert.True(t, league.HasParticipant("u2"))
}

func TestGetUser_NotFound(t *testing.T) {
	dir, mock := setupDirectory(t)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := dir.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCompletedMatches(t *testing.T) {
	dir, mock := setupDirectory(t)

	mock.ExpectQuery(`FROM matches WHERE league_id = \$1 AND status = \$2`).
		WithArgs("l1", "completed").
		WillReturnRows(sqlmock.NewRows([]string{"id", "league_id", "home_user_id", "away_user_id", "home_score", "away_score", "status"}).
			AddRow("m1", "l1", "u1", "u2", 3, 1, "completed"))

	matches, err := dir.CompletedMatches(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NotNil(t, matches[0].HomeScore)
	assert.Equal(t, 3, *matches[0].HomeScore)
	assert.Equal(t, 1, *matches[0].AwayScore)
}
