// internal/notifications/decision/league.go
package decision

import (
	"context"

	"league-notifications/internal/models"
)

func (e *Engine) handleLeague(ctx context.Context, userID string, kind models.EventKind, l models.League, title string, bank []string) (*models.Notification, error) {
	event := string(kind)

	if !l.HasParticipant(userID) {
		e.suppress(userID, event, ReasonNotInvolved)
		return nil, nil
	}
	if reason := e.gate(ctx, userID, models.CategoryLeague); reason != "" {
		e.suppress(userID, event, reason)
		return nil, nil
	}

	return e.create(ctx, userID, models.NewNotification{
		Type:     models.TypeLeague,
		Category: models.CategoryLeague,
		Title:    title,
		Message:  WithLeagueName(e.selector.Pick(bank), l.Name),
		Metadata: map[string]interface{}{"league_id": l.ID},
	})
}
