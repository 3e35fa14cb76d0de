// internal/notifications/leagues/directory.go
package leagues

import (
	"context"
	"database/sql"
	"fmt"

	"league-notifications/internal/models"

	"github.com/lib/pq"
)

// Directory reads the league application's users, leagues and matches.
// It never writes.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// ListUsers returns every user, ordered by id.
func (d *Directory) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, COALESCE(email, '') FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *Directory) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := d.db.QueryRowContext(ctx, `SELECT id, COALESCE(email, '') FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &u, nil
}

func (d *Directory) GetLeague(ctx context.Context, leagueID string) (*models.League, error) {
	var l models.League
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, status, participant_ids FROM leagues WHERE id = $1`, leagueID,
	).Scan(&l.ID, &l.Name, &l.Status, pq.Array(&l.ParticipantIDs))
	if err != nil {
		return nil, fmt.Errorf("get league %s: %w", leagueID, err)
	}
	return &l, nil
}

// CompletedMatches returns the league's completed matches with both scores set.
func (d *Directory) CompletedMatches(ctx context.Context, leagueID string) ([]models.Match, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, league_id, home_user_id, away_user_id, home_score, away_score, status
		FROM matches
		WHERE league_id = $1 AND status = $2 AND home_score IS NOT NULL AND away_score IS NOT NULL`,
		leagueID, models.MatchStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list matches of %s: %w", leagueID, err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var (
			m          models.Match
			home, away sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.LeagueID, &m.HomeUserID, &m.AwayUserID, &home, &away, &m.Status); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if home.Valid {
			h := int(home.Int64)
			m.HomeScore = &h
		}
		if away.Valid {
			a := int(away.Int64)
			m.AwayScore = &a
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
