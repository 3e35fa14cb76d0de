// internal/notifications/session/session_test.go
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/delivery"
	"league-notifications/internal/notifications/events"
	"league-notifications/internal/notifications/inbox"
	"league-notifications/internal/notifications/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type handled struct {
	userID string
	kind   models.EventKind
}

type fakeEngine struct {
	mu     sync.Mutex
	events []handled
	err    error
}

func (f *fakeEngine) Handle(_ context.Context, userID string, ev models.Event) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, handled{userID: userID, kind: ev.Kind()})
	return nil, f.err
}

func (f *fakeEngine) seen() []handled {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]handled(nil), f.events...)
}

// rowStore serves a fixed list and counts reloads.
type rowStore struct {
	mu    sync.Mutex
	rows  []models.Notification
	loads int
	gets  int
}

func (r *rowStore) add(n models.Notification) {
	r.mu.Lock()
	r.rows = append([]models.Notification{n}, r.rows...)
	r.mu.Unlock()
}

func (r *rowStore) List(context.Context, string, int) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	return append([]models.Notification(nil), r.rows...), nil
}

func (r *rowStore) GetArchived(context.Context, string) ([]models.Notification, error) {
	return nil, nil
}

func (r *rowStore) GetUnreadCount(context.Context, string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows), nil
}

func (r *rowStore) GetUnreadPreview(context.Context, string, int) ([]models.Notification, error) {
	return nil, nil
}

func (r *rowStore) MarkAsRead(context.Context, string, string)   {}
func (r *rowStore) MarkAsUnread(context.Context, string, string) {}
func (r *rowStore) MarkAllAsRead(context.Context, string)        {}
func (r *rowStore) Delete(context.Context, string, string)       {}
func (r *rowStore) ClearAll(context.Context, string)             {}
func (r *rowStore) Archive(context.Context, string, string)      {}
func (r *rowStore) Unarchive(context.Context, string, string)    {}

func (r *rowStore) Get(_ context.Context, _ string, id string) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	for i := range r.rows {
		if r.rows[i].ID == id {
			n := r.rows[i]
			return &n, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *rowStore) ApplyBatch(context.Context, string, models.BatchAction, []string) error {
	return nil
}

func (r *rowStore) reloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

type capturePresenter struct {
	mu     sync.Mutex
	toasts map[string][]models.Toast
	states map[string]inbox.State
}

func newCapturePresenter() *capturePresenter {
	return &capturePresenter{
		toasts: make(map[string][]models.Toast),
		states: make(map[string]inbox.State),
	}
}

func (c *capturePresenter) PresentToasts(userID string, toasts []models.Toast) {
	c.mu.Lock()
	c.toasts[userID] = toasts
	c.mu.Unlock()
}

func (c *capturePresenter) PresentInbox(userID string, state inbox.State) {
	c.mu.Lock()
	c.states[userID] = state
	c.mu.Unlock()
}

// ==========================
// Test Helpers
// ==========================

type fixture struct {
	transport *realtime.MemoryTransport
	engine    *fakeEngine
	store     *rowStore
	presenter *capturePresenter
	manager   *Manager
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)

	translator, err := events.NewTranslator()
	require.NoError(t, err)

	f := &fixture{
		transport: realtime.NewMemoryTransport(),
		engine:    &fakeEngine{},
		store:     &rowStore{},
		presenter: newCapturePresenter(),
	}
	f.manager = NewManager(Deps{
		Transport:            f.transport,
		Translator:           translator,
		Engine:               f.engine,
		Fanout:               delivery.NewFanout(nil, nil, nil, nil, nil, delivery.Config{}, log),
		Store:                f.store,
		Rows:                 f.store,
		Presenter:            f.presenter,
		ToastDuration:        time.Minute,
		PollInterval:         time.Hour,
		ResubscribeOnVisible: true,
	}, log)
	t.Cleanup(func() { f.manager.Close(context.Background()) })
	return f
}

func matchUpdate() models.Change {
	return models.Change{
		Table:     events.TableMatches,
		EventType: models.ChangeUpdate,
		New: map[string]interface{}{
			"id":           "m1",
			"league_id":    "l1",
			"home_user_id": "u1",
			"away_user_id": "u2",
			"home_score":   2,
			"away_score":   2,
			"status":       "completed",
		},
	}
}

func notificationInsert(userID string) models.Change {
	return models.Change{
		Table:     events.TableNotifications,
		EventType: models.ChangeInsert,
		New: map[string]interface{}{
			"id":       "n-" + userID,
			"user_id":  userID,
			"type":     "match",
			"category": "match",
			"priority": "medium",
			"title":    "Draw 🤝",
			"message":  "Evenly matched!",
			"read":     false,
			"archived": false,
		},
	}
}

// ==========================
// Session Tests
// ==========================

func TestAttach_OpensThreeSubscriptions(t *testing.T) {
	f := setup(t)

	s, err := f.manager.Attach(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 3, s.Listener().Count())
	assert.Len(t, f.transport.Channels(), 3)
	assert.Equal(t, 1, f.store.reloads())
}

func TestSourceChangesReachEngine(t *testing.T) {
	f := setup(t)
	_, err := f.manager.Attach(context.Background(), "u1")
	require.NoError(t, err)

	f.transport.Publish(matchUpdate())
	f.transport.Publish(models.Change{
		Table:     events.TableLeagues,
		EventType: models.ChangeInsert,
		New:       map[string]interface{}{"id": "l1", "name": "Sunday League", "status": "active", "participant_ids": []interface{}{"u1"}},
	})

	// inserts on matches are not subscribed
	insert := matchUpdate()
	insert.EventType = models.ChangeInsert
	f.transport.Publish(insert)

	// malformed rows are skipped
	f.transport.Publish(models.Change{Table: events.TableMatches, EventType: models.ChangeUpdate, New: map[string]interface{}{"id": 7}})

	assert.Equal(t, []handled{
		{userID: "u1", kind: models.EventMatchCompleted},
		{userID: "u1", kind: models.EventLeagueStarted},
	}, f.engine.seen())
}

func TestEngineErrorDoesNotStopSession(t *testing.T) {
	f := setup(t)
	f.engine.err = errors.New("insert failed")
	_, err := f.manager.Attach(context.Background(), "u1")
	require.NoError(t, err)

	f.transport.Publish(matchUpdate())
	f.transport.Publish(matchUpdate())

	assert.Len(t, f.engine.seen(), 2)
}

func TestOwnInsertIsDelivered(t *testing.T) {
	f := setup(t)
	s, err := f.manager.Attach(context.Background(), "u1")
	require.NoError(t, err)

	f.store.add(models.Notification{ID: "n-u1", UserID: "u1", Title: "Draw 🤝"})
	f.transport.Publish(notificationInsert("u1"))
	// another user's row never reaches this session
	f.transport.Publish(notificationInsert("u2"))

	toasts := s.Toasts().List()
	require.Len(t, toasts, 1)
	assert.Equal(t, "n-u1", toasts[0].NotificationID)

	f.presenter.mu.Lock()
	assert.Len(t, f.presenter.toasts["u1"], 1)
	assert.Equal(t, 1, f.presenter.states["u1"].UnreadCount)
	f.presenter.mu.Unlock()

	assert.Equal(t, 2, f.store.reloads())
	assert.Equal(t, 1, s.Inbox().UnreadCount())
}

func TestTruncatedInsertIsReRead(t *testing.T) {
	f := setup(t)
	s, err := f.manager.Attach(context.Background(), "u1")
	require.NoError(t, err)

	long := strings.Repeat("x", 6000)
	f.store.add(models.Notification{
		ID:       "n-big",
		UserID:   "u1",
		Category: models.CategoryAnnouncement,
		Priority: models.PriorityHigh,
		Title:    "Season update",
		Message:  long,
	})
	f.transport.Publish(models.Change{
		Table:     events.TableNotifications,
		EventType: models.ChangeInsert,
		New:       map[string]interface{}{"id": "n-big", "user_id": "u1", "title": "Season update"},
		Truncated: true,
	})

	toasts := s.Toasts().List()
	require.Len(t, toasts, 1)
	assert.Equal(t, long, toasts[0].Message)
	assert.Equal(t, models.PriorityHigh, toasts[0].Priority)

	f.store.mu.Lock()
	assert.Equal(t, 1, f.store.gets)
	f.store.mu.Unlock()
}

func TestTruncatedInsertMissingRowIsSkipped(t *testing.T) {
	f := setup(t)
	s, err := f.manager.Attach(context.Background(), "u1")
	require.NoError(t, err)

	f.transport.Publish(models.Change{
		Table:     events.TableNotifications,
		EventType: models.ChangeInsert,
		New:       map[string]interface{}{"id": "gone", "user_id": "u1"},
		Truncated: true,
	})

	assert.Empty(t, s.Toasts().List())
}

func TestVisibilityResubscribes(t *testing.T) {
	f := setup(t)
	s, err := f.manager.Attach(context.Background(), "u1")
	require.NoError(t, err)
	before := f.transport.Opened()

	ctx := context.Background()
	assert.False(t, s.Visibility(ctx, realtime.SignalVisible))
	assert.False(t, s.Visibility(ctx, realtime.SignalHidden))
	assert.True(t, s.Visibility(ctx, realtime.SignalVisible))

	assert.Equal(t, before+3, f.transport.Opened())
	assert.Len(t, f.transport.Channels(), 3)

	// exactly once after resubscribe
	f.transport.Publish(matchUpdate())
	assert.Len(t, f.engine.seen(), 1)
}

// ==========================
// Manager Tests
// ==========================

func TestManager_RefCounting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.manager.Attach(ctx, "u1")
	require.NoError(t, err)
	b, err := f.manager.Attach(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, f.manager.Count())
	assert.Len(t, f.transport.Channels(), 3)

	_, err = f.manager.Attach(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, f.transport.Channels(), 6)

	f.manager.Detach(ctx, "u1")
	_, ok := f.manager.Get("u1")
	assert.True(t, ok)

	f.manager.Detach(ctx, "u1")
	_, ok = f.manager.Get("u1")
	assert.False(t, ok)
	assert.Len(t, f.transport.Channels(), 3)

	// unknown users are ignored
	f.manager.Detach(ctx, "nobody")

	f.manager.Close(ctx)
	assert.Equal(t, 0, f.manager.Count())
	assert.Empty(t, f.transport.Channels())
}

func TestManager_EmptyUserID(t *testing.T) {
	f := setup(t)

	_, err := f.manager.Attach(context.Background(), "")
	assert.Error(t, err)
	assert.Equal(t, 0, f.manager.Count())
	assert.Empty(t, f.transport.Channels())
}
