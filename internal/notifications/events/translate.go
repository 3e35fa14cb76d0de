// internal/notifications/events/translate.go
package events

import (
	"encoding/json"
	"fmt"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/validation"
	"league-notifications/internal/models"
)

const (
	TableMatches       = "matches"
	TableLeagues       = "leagues"
	TableNotifications = "notifications"
)

// Translator turns raw change-feed rows into domain events. Rows of the
// watched tables are schema-checked before decoding.
type Translator struct {
	schemas *validation.SchemaSet
}

func NewTranslator() (*Translator, error) {
	schemas := validation.NewSchemaSet()
	for table, schema := range map[string]string{
		TableMatches:       matchRowSchema,
		TableLeagues:       leagueRowSchema,
		TableNotifications: notificationRowSchema,
	} {
		if err := schemas.Register(table, schema); err != nil {
			return nil, err
		}
	}
	return &Translator{schemas: schemas}, nil
}

// FromChange maps one change onto a domain event. Malformed rows of watched
// tables return INVALID_EVENT_PAYLOAD; the caller skips the event.
func (t *Translator) FromChange(change models.Change) (models.Event, error) {
	switch {
	case change.Table == TableMatches && change.EventType == models.ChangeUpdate:
		var m models.Match
		if err := t.decode(change.Table, change.New, &m); err != nil {
			return nil, err
		}
		return models.MatchCompleted{Match: m}, nil

	case change.Table == TableLeagues && change.EventType == models.ChangeInsert:
		var l models.League
		if err := t.decode(change.Table, change.New, &l); err != nil {
			return nil, err
		}
		return models.LeagueStarted{League: l}, nil

	case change.Table == TableLeagues && change.EventType == models.ChangeUpdate:
		var l models.League
		if err := t.decode(change.Table, change.New, &l); err != nil {
			return nil, err
		}
		if l.Status == models.LeagueStatusFinished && oldStatus(change.Old) != models.LeagueStatusFinished {
			return models.LeagueFinished{League: l}, nil
		}
	}

	return models.GenericRowChanged{
		Table:     change.Table,
		EventType: change.EventType,
		New:       change.New,
		Old:       change.Old,
	}, nil
}

// NotificationFromChange decodes an inserted notifications row.
func (t *Translator) NotificationFromChange(change models.Change) (*models.Notification, error) {
	if change.Table != TableNotifications {
		return nil, apperrors.NewInvalidEventPayloadError(change.Table, "not a notifications row")
	}
	var n models.Notification
	if err := t.decode(change.Table, change.Row(), &n); err != nil {
		return nil, err
	}
	if n.Category == "" {
		n.Category = models.DefaultCategoryFor(n.Type)
	}
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}
	return &n, nil
}

// oldStatus returns the previous status, empty when the feed did not carry it.
func oldStatus(old map[string]interface{}) string {
	if old == nil {
		return ""
	}
	s, _ := old["status"].(string)
	return s
}

func (t *Translator) decode(table string, row map[string]interface{}, dst interface{}) error {
	if row == nil {
		return apperrors.NewInvalidEventPayloadError(table, "row is missing")
	}

	result, err := t.schemas.Validate(table, row)
	if err != nil {
		return apperrors.NewInvalidEventPayloadError(table, err.Error())
	}
	if !result.Valid {
		return apperrors.NewInvalidEventPayloadError(table, result.Error())
	}

	raw, err := json.Marshal(row)
	if err != nil {
		return apperrors.NewInvalidEventPayloadError(table, err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.NewInvalidEventPayloadError(table, fmt.Sprintf("decode: %v", err))
	}
	return nil
}
