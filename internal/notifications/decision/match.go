// internal/notifications/decision/match.go
package decision

import (
	"context"
	"sort"

	"league-notifications/internal/models"
)

// Result is a match outcome from one player's perspective.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// ResultFor computes the outcome for userID. ok is false when a score is missing
// or the user did not play.
func ResultFor(m models.Match, userID string) (Result, bool) {
	if !m.Involves(userID) || m.HomeScore == nil || m.AwayScore == nil {
		return "", false
	}
	own, other := *m.HomeScore, *m.AwayScore
	if m.AwayUserID == userID {
		own, other = other, own
	}
	switch {
	case own > other:
		return ResultWin, true
	case own < other:
		return ResultLoss, true
	default:
		return ResultDraw, true
	}
}

func (r Result) copy() (string, []string) {
	switch r {
	case ResultWin:
		return TitleVictory, WinMessages
	case ResultLoss:
		return TitleDefeat, LossMessages
	default:
		return TitleDraw, DrawMessages
	}
}

func (e *Engine) handleMatch(ctx context.Context, userID string, m models.Match) (*models.Notification, error) {
	event := string(models.EventMatchCompleted)

	if m.Status != models.MatchStatusCompleted {
		e.suppress(userID, event, ReasonNotCompleted)
		return nil, nil
	}
	if !m.Involves(userID) {
		e.suppress(userID, event, ReasonNotInvolved)
		return nil, nil
	}
	if reason := e.gate(ctx, userID, models.CategoryMatch); reason != "" {
		e.suppress(userID, event, reason)
		return nil, nil
	}

	result, ok := ResultFor(m, userID)
	if !ok {
		e.suppress(userID, event, ReasonMissingScore)
		return nil, nil
	}

	title, bank := result.copy()
	n, err := e.create(ctx, userID, models.NewNotification{
		Type:     models.TypeMatch,
		Category: models.CategoryMatch,
		Title:    title,
		Message:  e.selector.Pick(bank),
		Metadata: map[string]interface{}{
			"match_id":  m.ID,
			"league_id": m.LeagueID,
			"result":    string(result),
		},
	})
	if err != nil {
		return nil, err
	}

	e.checkTablePosition(ctx, userID, m)
	return n, nil
}

// ==========================
// Table position
// ==========================

// Standing is one row of a league table.
type Standing struct {
	UserID         string
	Points         int
	GoalDifference int
	GoalsFor       int
}

// ComputeStandings ranks participants by points (3/1/0), then goal
// difference, then goals for. Ties keep participant order.
func ComputeStandings(participants []string, matches []models.Match) []Standing {
	standings := make([]Standing, 0, len(participants))
	for _, pid := range participants {
		s := Standing{UserID: pid}
		for _, m := range matches {
			if m.HomeScore == nil || m.AwayScore == nil || !m.Involves(pid) {
				continue
			}
			own, other := *m.HomeScore, *m.AwayScore
			if m.AwayUserID == pid {
				own, other = other, own
			}
			switch {
			case own > other:
				s.Points += 3
			case own == other:
				s.Points++
			}
			s.GoalDifference += own - other
			s.GoalsFor += own
		}
		standings = append(standings, s)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.GoalDifference != b.GoalDifference {
			return a.GoalDifference > b.GoalDifference
		}
		return a.GoalsFor > b.GoalsFor
	})
	return standings
}

// RankOf returns the 1-based rank of userID, 0 when absent.
func RankOf(standings []Standing, userID string) int {
	for i, s := range standings {
		if s.UserID == userID {
			return i + 1
		}
	}
	return 0
}

// checkTablePosition writes a standings notification every TableCheckEvery
// completed matches of the user in the league. Failures are only logged.
func (e *Engine) checkTablePosition(ctx context.Context, userID string, m models.Match) {
	if m.LeagueID == "" || e.local == nil || e.directory == nil || e.config.TableCheckEvery < 0 {
		return
	}
	fields := map[string]interface{}{"user_id": userID, "league_id": m.LeagueID}

	count, err := e.local.IncrementMatchCount(ctx, userID, m.LeagueID)
	if err != nil {
		fields["error"] = err
		e.logger.Warn("match counter unavailable, skipping table check", fields)
		return
	}
	if count%int64(e.config.TableCheckEvery) != 0 {
		return
	}

	league, err := e.directory.GetLeague(ctx, m.LeagueID)
	if err != nil {
		fields["error"] = err
		e.logger.Warn("league lookup failed, skipping table check", fields)
		return
	}
	matches, err := e.directory.CompletedMatches(ctx, m.LeagueID)
	if err != nil {
		fields["error"] = err
		e.logger.Warn("match lookup failed, skipping table check", fields)
		return
	}

	standings := ComputeStandings(league.ParticipantIDs, matches)
	rank := RankOf(standings, userID)
	if rank == 0 {
		return
	}

	_, _ = e.create(ctx, userID, models.NewNotification{
		Type:     models.TypeMatch,
		Category: models.CategoryMatch,
		Title:    TitleLeagueUpdate,
		Message:  TablePositionMessage(rank, len(standings)),
		Metadata: map[string]interface{}{
			"league_id": m.LeagueID,
			"rank":      rank,
			"size":      len(standings),
		},
	})
}
