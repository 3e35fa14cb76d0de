// internal/notifications/realtime/transport.go
package realtime

import (
	"context"
	"errors"

	"league-notifications/internal/models"
)

// Status is the lifecycle state reported for a channel.
type Status string

const (
	StatusIdle         Status = "IDLE"
	StatusJoining      Status = "JOINING"
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

// Dead reports whether a channel in this status will never deliver again.
func (s Status) Dead() bool {
	return s == StatusChannelError || s == StatusTimedOut || s == StatusClosed
}

var ErrUnknownChannel = errors.New("realtime: unknown channel")

// Binding selects the changes a channel receives.
type Binding struct {
	Table  string
	Event  models.ChangeType
	Filter *Filter
}

// Accepts reports whether change falls inside the binding.
func (b Binding) Accepts(change models.Change) bool {
	if change.Table != b.Table {
		return false
	}
	if !b.Event.Matches(change.EventType) {
		return false
	}
	return b.Filter.Matches(change.Row())
}

// Sink receives changes routed to a channel, in arrival order.
type Sink func(channel string, change models.Change)

// StatusFunc receives status transitions of a channel.
type StatusFunc func(channel string, status Status, err error)

// Transport is the change-feed primitive. Implementations must not hold
// internal locks while invoking a Sink or StatusFunc, and must report at
// most one terminal status per channel.
type Transport interface {
	Open(ctx context.Context, channel string, binding Binding, sink Sink, status StatusFunc) error
	Close(channel string) error
}
