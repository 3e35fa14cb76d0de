// internal/notifications/realtime/listener.go
package realtime

import (
	"context"
	"fmt"
	"sync"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/common/metrics"
	"league-notifications/internal/models"

	"github.com/google/uuid"
)

// Handler receives one change. Row() is the new row, or the old row for deletes.
type Handler func(change models.Change)

// Options describes one subscription.
type Options struct {
	Table    string
	Event    models.ChangeType
	Filter   string
	OnInsert Handler
	OnUpdate Handler
	OnDelete Handler
	OnStatus func(status Status, err error)
	Disabled bool
}

// Listener owns the subscriptions of one session. It never retries a failed
// channel on its own; ResubscribeAll is the only way back.
type Listener struct {
	transport Transport
	logger    logger.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewListener(transport Transport, log logger.Logger) *Listener {
	return &Listener{
		transport: transport,
		logger:    logger.Component(log, "realtime"),
		subs:      make(map[*Subscription]struct{}),
	}
}

// Subscription is a live handle on one table binding.
type Subscription struct {
	listener *Listener
	opts     Options
	binding  Binding

	mu      sync.Mutex
	channel string
	status  Status
	closed  bool
}

// Subscribe opens a channel named <table>-<uuid>. A malformed filter returns
// INVALID_FILTER. Open failures are reported through OnStatus, not returned.
func (l *Listener) Subscribe(ctx context.Context, opts Options) (*Subscription, error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("subscribe: table is required")
	}
	if opts.Event == "" {
		opts.Event = models.ChangeAll
	}
	filter, err := ParseFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		listener: l,
		opts:     opts,
		binding:  Binding{Table: opts.Table, Event: opts.Event, Filter: filter},
		status:   StatusIdle,
	}
	if opts.Disabled {
		return sub, nil
	}

	l.mu.Lock()
	l.subs[sub] = struct{}{}
	l.mu.Unlock()

	l.open(ctx, sub)
	return sub, nil
}

func channelName(table string) string {
	return fmt.Sprintf("%s-%s", table, uuid.NewString())
}

func (l *Listener) open(ctx context.Context, sub *Subscription) {
	name := channelName(sub.opts.Table)

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.channel = name
	sub.status = StatusJoining
	sub.mu.Unlock()

	err := l.transport.Open(ctx, name, sub.binding, sub.deliver, sub.report)
	if err != nil {
		sub.report(name, StatusChannelError, apperrors.NewSubscriptionFailedError(name, err))
		return
	}
	metrics.ActiveSubscriptions.Inc()
}

func (l *Listener) release(channel string) {
	if channel == "" {
		return
	}
	if err := l.transport.Close(channel); err != nil {
		return
	}
	metrics.ActiveSubscriptions.Dec()
	l.logger.Debug("channel released", map[string]interface{}{"channel": channel})
}

// ResubscribeAll replaces every live channel with a freshly named one.
// Late payloads on a replaced channel are dropped.
func (l *Listener) ResubscribeAll(ctx context.Context) {
	for _, sub := range l.snapshot() {
		sub.resubscribe(ctx)
	}
	l.logger.Info("resubscribed all channels", map[string]interface{}{"count": l.Count()})
}

// Close unsubscribes everything.
func (l *Listener) Close(ctx context.Context) {
	for _, sub := range l.snapshot() {
		sub.Unsubscribe(ctx)
	}
}

// Count returns the number of registered subscriptions.
func (l *Listener) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *Listener) snapshot() []*Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Subscription, 0, len(l.subs))
	for sub := range l.subs {
		out = append(out, sub)
	}
	return out
}

// Channel returns the current channel name, empty before the first open.
func (s *Subscription) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *Subscription) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Unsubscribe releases the channel. Safe to call more than once.
func (s *Subscription) Unsubscribe(_ context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	channel := s.channel
	s.status = StatusClosed
	s.mu.Unlock()

	if s.listener == nil {
		return
	}
	s.listener.mu.Lock()
	delete(s.listener.subs, s)
	s.listener.mu.Unlock()

	s.listener.release(channel)
	s.listener.logger.Debug("unsubscribed", map[string]interface{}{
		"table":   s.opts.Table,
		"channel": channel,
	})
}

func (s *Subscription) resubscribe(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	old := s.channel
	s.mu.Unlock()

	s.listener.release(old)
	s.listener.open(ctx, s)
}

func (s *Subscription) current(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && channel == s.channel
}

func (s *Subscription) deliver(channel string, change models.Change) {
	if !s.current(channel) {
		return
	}
	if !s.binding.Event.Matches(change.EventType) {
		return
	}

	var h Handler
	switch change.EventType {
	case models.ChangeInsert:
		h = s.opts.OnInsert
	case models.ChangeUpdate:
		h = s.opts.OnUpdate
	case models.ChangeDelete:
		h = s.opts.OnDelete
	}
	if h != nil {
		h(change)
	}
}

func (s *Subscription) report(channel string, status Status, err error) {
	s.mu.Lock()
	if s.closed || channel != s.channel {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	l := s.listener
	metrics.RealtimeStatus.WithLabelValues(s.opts.Table, string(status)).Inc()
	fields := map[string]interface{}{
		"table":   s.opts.Table,
		"channel": channel,
		"status":  string(status),
	}

	switch status {
	case StatusSubscribed:
		l.logger.Debug("subscription status", fields)
	case StatusTimedOut:
		fields["error"] = err
		l.logger.Warn("subscription timed out", fields)
		l.release(channel)
	case StatusChannelError:
		fields["error"] = err
		l.logger.Error("subscription failed", fields)
		l.release(channel)
	default:
		l.logger.Debug("subscription status", fields)
	}

	if s.opts.OnStatus != nil {
		s.opts.OnStatus(status, err)
	}
}
