// internal/models/events.go
package models

// EventKind tags the domain event union.
type EventKind string

const (
	EventMatchCompleted    EventKind = "MatchCompleted"
	EventLeagueStarted     EventKind = "LeagueStarted"
	EventLeagueFinished    EventKind = "LeagueFinished"
	EventGenericRowChanged EventKind = "GenericRowChanged"
)

// ChangeType is the change-feed event type.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
	ChangeAll    ChangeType = "*"
)

// Matches reports whether a subscription for t accepts a change of type other.
func (t ChangeType) Matches(other ChangeType) bool {
	return t == ChangeAll || t == other
}

// Event is a domain event handed from the listener to the decision engine.
// It is never persisted.
type Event interface {
	Kind() EventKind
}

// MatchCompleted carries a match row after an update.
type MatchCompleted struct {
	Match Match
}

func (MatchCompleted) Kind() EventKind { return EventMatchCompleted }

// LeagueStarted carries a newly inserted league row.
type LeagueStarted struct {
	League League
}

func (LeagueStarted) Kind() EventKind { return EventLeagueStarted }

// LeagueFinished carries a league row whose status moved to finished.
type LeagueFinished struct {
	League League
}

func (LeagueFinished) Kind() EventKind { return EventLeagueFinished }

// GenericRowChanged carries any other change verbatim.
type GenericRowChanged struct {
	Table     string
	EventType ChangeType
	New       map[string]interface{}
	Old       map[string]interface{}
}

func (GenericRowChanged) Kind() EventKind { return EventGenericRowChanged }

// Change is one raw change-feed message.
type Change struct {
	Table     string                 `json:"table"`
	EventType ChangeType             `json:"eventType"`
	New       map[string]interface{} `json:"new,omitempty"`
	Old       map[string]interface{} `json:"old,omitempty"`
	// Truncated marks a row cut down to its short columns to fit the NOTIFY limit.
	Truncated bool `json:"truncated,omitempty"`
}

// Row returns the row a handler should see: old for deletes, new otherwise.
func (c Change) Row() map[string]interface{} {
	if c.EventType == ChangeDelete {
		return c.Old
	}
	return c.New
}
