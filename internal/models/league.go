// internal/models/league.go
package models

const (
	MatchStatusCompleted = "completed"
	LeagueStatusFinished = "finished"
)

// Match is the subset of a match row the notification engine reads.
type Match struct {
	ID         string `json:"id"`
	LeagueID   string `json:"league_id"`
	HomeUserID string `json:"home_user_id"`
	AwayUserID string `json:"away_user_id"`
	HomeScore  *int   `json:"home_score"`
	AwayScore  *int   `json:"away_score"`
	Status     string `json:"status"`
}

// Involves reports whether userID plays in the match.
func (m Match) Involves(userID string) bool {
	return userID != "" && (m.HomeUserID == userID || m.AwayUserID == userID)
}

// League is the subset of a league row the notification engine reads.
type League struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Status         string   `json:"status"`
	ParticipantIDs []string `json:"participant_ids"`
}

// HasParticipant reports whether userID takes part in the league.
func (l League) HasParticipant(userID string) bool {
	for _, id := range l.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// User is the subset of a user row needed for broadcasts and email.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
