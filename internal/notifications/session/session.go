// internal/notifications/session/session.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/delivery"
	"league-notifications/internal/notifications/events"
	"league-notifications/internal/notifications/inbox"
	"league-notifications/internal/notifications/realtime"
)

// Engine is satisfied by *decision.Engine.
type Engine interface {
	Handle(ctx context.Context, userID string, ev models.Event) (*models.Notification, error)
}

// Translator is satisfied by *events.Translator.
type Translator interface {
	FromChange(change models.Change) (models.Event, error)
	NotificationFromChange(change models.Change) (*models.Notification, error)
}

// RowReader re-reads a notification whose change payload was truncated.
// Satisfied by *repository.Repository.
type RowReader interface {
	Get(ctx context.Context, userID, id string) (*models.Notification, error)
}

// Presenter pushes session output to the user's attached clients.
type Presenter interface {
	PresentToasts(userID string, toasts []models.Toast)
	PresentInbox(userID string, state inbox.State)
}

// Deps are shared by every session of a Manager.
type Deps struct {
	Transport            realtime.Transport
	Translator           Translator
	Engine               Engine
	Fanout               *delivery.Fanout
	Store                inbox.Store
	Rows                 RowReader
	Presenter            Presenter
	Inbox                inbox.Config
	ToastDuration        time.Duration
	PollInterval         time.Duration
	ResubscribeOnVisible bool
}

// Session is everything that runs on behalf of one user: change-feed
// subscriptions, decisions, delivery of the user's own inserts and the inbox view.
type Session struct {
	userID   string
	deps     Deps
	logger   logger.Logger
	listener *realtime.Listener
	watcher  *realtime.VisibilityWatcher
	inbox    *inbox.Inbox
	toasts   *delivery.ToastQueue

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func newSession(userID string, deps Deps, log logger.Logger) *Session {
	s := &Session{
		userID: userID,
		deps:   deps,
		logger: logger.Component(log, "session").WithFields(map[string]interface{}{"user_id": userID}),
	}
	s.listener = realtime.NewListener(deps.Transport, log)
	s.watcher = realtime.NewVisibilityWatcher(s.listener.ResubscribeAll, deps.ResubscribeOnVisible, log)
	s.inbox = inbox.New(userID, deps.Store, deps.Inbox, log)
	s.toasts = delivery.NewToastQueue(deps.ToastDuration, func(toasts []models.Toast) {
		if deps.Presenter != nil {
			deps.Presenter.PresentToasts(userID, toasts)
		}
	})
	if deps.Presenter != nil {
		s.inbox.OnChange(func(state inbox.State) { deps.Presenter.PresentInbox(userID, state) })
	}
	return s
}

func (s *Session) UserID() string               { return s.userID }
func (s *Session) Inbox() *inbox.Inbox          { return s.inbox }
func (s *Session) Toasts() *delivery.ToastQueue { return s.toasts }
func (s *Session) Listener() *realtime.Listener { return s.listener }

// Start opens the three subscriptions, loads the inbox and starts the unread poll.
// Subscription status is reported asynchronously; Start does not wait for it.
func (s *Session) Start(parent context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.ctx, s.cancel, s.started = ctx, cancel, true
	s.mu.Unlock()

	subs := []realtime.Options{
		{
			Table:    events.TableMatches,
			Event:    models.ChangeUpdate,
			OnUpdate: s.onSourceChange,
			OnStatus: s.onStatus(events.TableMatches),
		},
		{
			Table:    events.TableLeagues,
			Event:    models.ChangeAll,
			OnInsert: s.onSourceChange,
			OnUpdate: s.onSourceChange,
			OnStatus: s.onStatus(events.TableLeagues),
		},
		{
			Table:    events.TableNotifications,
			Event:    models.ChangeInsert,
			Filter:   fmt.Sprintf("user_id=eq.%s", s.userID),
			OnInsert: s.onOwnInsert,
			OnStatus: s.onStatus(events.TableNotifications),
		},
	}
	for _, opts := range subs {
		if _, err := s.listener.Subscribe(ctx, opts); err != nil {
			s.Stop(parent)
			return fmt.Errorf("subscribe %s: %w", opts.Table, err)
		}
	}

	if err := s.inbox.Load(ctx); err != nil {
		s.logger.Warn("initial inbox load failed", map[string]interface{}{"error": err})
	}
	s.inbox.StartPolling(ctx, s.deps.PollInterval)

	s.logger.Info("session started", map[string]interface{}{"subscriptions": s.listener.Count()})
	return nil
}

// Stop unsubscribes every channel and stops background work. Safe to call twice.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	s.listener.Close(ctx)
	cancel()
	s.toasts.Clear()
	s.logger.Info("session stopped", nil)
}

// Visibility feeds a client visibility or focus signal to the resubscribe watcher.
func (s *Session) Visibility(ctx context.Context, signal realtime.Signal) bool {
	return s.watcher.Handle(ctx, signal)
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// onSourceChange runs the decision engine for a match or league change.
// Malformed rows are skipped.
func (s *Session) onSourceChange(change models.Change) {
	ev, err := s.deps.Translator.FromChange(change)
	if err != nil {
		s.logger.Warn("skipping malformed change", map[string]interface{}{
			"table": change.Table,
			"error": err,
		})
		return
	}

	if _, err := s.deps.Engine.Handle(s.context(), s.userID, ev); err != nil {
		s.logger.Error("decision failed", map[string]interface{}{
			"event": string(ev.Kind()),
			"error": err,
		})
	}
}

// onOwnInsert fans out a row inserted into this user's inbox, then reloads the view.
func (s *Session) onOwnInsert(change models.Change) {
	ctx := s.context()
	n, err := s.ownRow(ctx, change)
	if err != nil {
		s.logger.Warn("skipping malformed notification row", map[string]interface{}{"error": err})
		return
	}

	if s.deps.Fanout != nil {
		s.deps.Fanout.Deliver(ctx, s.toasts, *n)
	}
	if err := s.inbox.Load(ctx); err != nil {
		s.logger.Warn("inbox reload failed", map[string]interface{}{"error": err})
	}
}

// ownRow decodes the inserted row, reading it back from the store when the
// feed only carried its key columns.
func (s *Session) ownRow(ctx context.Context, change models.Change) (*models.Notification, error) {
	if !change.Truncated || s.deps.Rows == nil {
		return s.deps.Translator.NotificationFromChange(change)
	}
	id, ok := change.New["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("truncated notification row without id")
	}
	s.logger.Debug("re-reading truncated notification row", map[string]interface{}{"id": id})
	return s.deps.Rows.Get(ctx, s.userID, id)
}

func (s *Session) onStatus(table string) func(realtime.Status, error) {
	return func(status realtime.Status, err error) {
		fields := map[string]interface{}{"table": table, "status": string(status)}
		if err != nil {
			fields["error"] = err
		}
		s.logger.Debug("subscription status", fields)
	}
}
