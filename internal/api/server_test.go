// internal/api/server_test.go
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/decision"
	"league-notifications/internal/notifications/localstore"
	"league-notifications/internal/notifications/sound"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakeNotifications struct {
	mu       sync.Mutex
	rows     []models.Notification
	filter   models.Filter
	calls    []string
	batchIDs []string
	getErr   error
	listErr  error
	snoozed  time.Time
}

func (f *fakeNotifications) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeNotifications) GetFiltered(_ context.Context, _ string, filter models.Filter) ([]models.Notification, error) {
	f.filter = filter
	return f.rows, f.listErr
}

func (f *fakeNotifications) Get(_ context.Context, _, id string) (*models.Notification, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, n := range f.rows {
		if n.ID == id {
			n := n
			return &n, nil
		}
	}
	return nil, apperrors.NewRepositoryOperationFailedError("get", sql.ErrNoRows)
}

func (f *fakeNotifications) GetUnreadCount(context.Context, string) (int, error) {
	return len(f.rows), f.listErr
}

func (f *fakeNotifications) GetUnreadPreview(_ context.Context, _ string, n int) ([]models.Notification, error) {
	if n > len(f.rows) {
		n = len(f.rows)
	}
	return f.rows[:n], nil
}

func (f *fakeNotifications) MarkAsRead(_ context.Context, _, id string)   { f.record("read:" + id) }
func (f *fakeNotifications) MarkAsUnread(_ context.Context, _, id string) { f.record("unread:" + id) }
func (f *fakeNotifications) MarkAllAsRead(context.Context, string)        { f.record("read_all") }
func (f *fakeNotifications) Archive(_ context.Context, _, id string)      { f.record("archive:" + id) }
func (f *fakeNotifications) Unarchive(_ context.Context, _, id string)    { f.record("unarchive:" + id) }
func (f *fakeNotifications) Delete(_ context.Context, _, id string)       { f.record("delete:" + id) }
func (f *fakeNotifications) ClearAll(context.Context, string)             { f.record("clear") }

func (f *fakeNotifications) Snooze(_ context.Context, _, id string, until time.Time) error {
	if !until.After(time.Now()) {
		return errors.New("snooze time is not in the future")
	}
	f.snoozed = until
	f.record("snooze:" + id)
	return nil
}

func (f *fakeNotifications) ApplyBatch(_ context.Context, _ string, action models.BatchAction, ids []string) error {
	f.batchIDs = ids
	f.record("batch:" + string(action))
	return nil
}

type fakePreferences struct {
	prefs  models.NotificationPreferences
	update models.PreferencesUpdate
	err    error
}

func (f *fakePreferences) GetPreferences(_ context.Context, userID string) (*models.NotificationPreferences, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := f.prefs
	p.UserID = userID
	return &p, nil
}

func (f *fakePreferences) UpdatePreferences(_ context.Context, _ string, update models.PreferencesUpdate) error {
	if update.SoundEnabled != nil {
		f.prefs.SoundEnabled = *update.SoundEnabled
	}
	f.update = update
	return nil
}

func (f *fakePreferences) ResetToDefaults(_ context.Context, userID string) error {
	f.prefs = models.DefaultPreferences(userID)
	return nil
}

type fakeBroadcaster struct {
	result *decision.BroadcastResult
	err    error
	test   *models.Notification
	msg    string
}

func (f *fakeBroadcaster) SendAppUpdateNotification(_ context.Context, message string) (*decision.BroadcastResult, error) {
	f.msg = message
	return f.result, f.err
}

func (f *fakeBroadcaster) SendSystemAnnouncement(_ context.Context, message string) (*decision.BroadcastResult, error) {
	f.msg = message
	return f.result, f.err
}

func (f *fakeBroadcaster) SendTestNotification(context.Context, string) (*models.Notification, error) {
	return f.test, nil
}

// ==========================
// Test Helpers
// ==========================

type fixture struct {
	server      *Server
	router      http.Handler
	store       *fakeNotifications
	prefs       *fakePreferences
	broadcaster *fakeBroadcaster
	local       *localstore.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	local := localstore.New(client, log)

	f := &fixture{
		store:       &fakeNotifications{},
		prefs:       &fakePreferences{prefs: models.DefaultPreferences("")},
		broadcaster: &fakeBroadcaster{},
		local:       local,
	}
	hub := NewHub(log)
	f.server = NewServer(Config{PushEndpointKey: "sns_endpoint_arn", GroupThreshold: 10}, Deps{
		Notifications: f.store,
		Preferences:   f.prefs,
		Broadcaster:   f.broadcaster,
		Hub:           hub,
		Player:        sound.NewPlayer(local, hub, log),
		Local:         local,
	}, log)
	f.router = f.server.Router()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedRows(f *fixture) {
	now := time.Now()
	f.store.rows = []models.Notification{
		{ID: "n1", UserID: "u1", Category: models.CategoryMatch, Title: "Victory! 🏆", CreatedAt: now},
		{ID: "n2", UserID: "u1", Category: models.CategoryMatch, Title: "Victory! 🏆", CreatedAt: now.Add(-time.Minute)},
		{ID: "n3", UserID: "u1", Category: models.CategoryLeague, Title: "League Started! ⚽", CreatedAt: now.Add(-2 * time.Minute)},
	}
}

// ==========================
// Health
// ==========================

func TestHealthAndReady(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)

	f.server.ready = func(context.Context) error { return errors.New("postgres unreachable") }
	rec := f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "postgres unreachable", decode(t, rec)["error"])
}

// ==========================
// Notification Tests
// ==========================

func TestListNotifications_ParsesFilter(t *testing.T) {
	f := setup(t)
	seedRows(f)

	rec := f.do(http.MethodGet, "/api/v1/users/u1/notifications?category=match&priority=high&read=false&search=win&limit=5&from=2026-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["count"])

	require.NotNil(t, f.store.filter.Category)
	assert.Equal(t, models.CategoryMatch, *f.store.filter.Category)
	require.NotNil(t, f.store.filter.Priority)
	assert.Equal(t, models.PriorityHigh, *f.store.filter.Priority)
	require.NotNil(t, f.store.filter.Read)
	assert.False(t, *f.store.filter.Read)
	assert.Nil(t, f.store.filter.Archived)
	assert.Equal(t, "win", f.store.filter.Search)
	assert.Equal(t, 5, f.store.filter.Limit)
	require.NotNil(t, f.store.filter.From)
	assert.Nil(t, f.store.filter.To)
}

func TestListNotifications_BadFilter(t *testing.T) {
	f := setup(t)

	for _, q := range []string{"category=gossip", "priority=urgent", "read=maybe", "from=yesterday", "limit=-1"} {
		rec := f.do(http.MethodGet, "/api/v1/users/u1/notifications?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListNotifications_StoreFailure(t *testing.T) {
	f := setup(t)
	f.store.listErr = apperrors.NewRepositoryOperationFailedError("query", errors.New("connection refused"))

	rec := f.do(http.MethodGet, "/api/v1/users/u1/notifications", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "REPOSITORY_OPERATION_FAILED", body["error"].(map[string]interface{})["code"])
}

func TestGetNotification(t *testing.T) {
	f := setup(t)
	seedRows(f)

	rec := f.do(http.MethodGet, "/api/v1/users/u1/notifications/n3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "League Started! ⚽", decode(t, rec)["title"])

	rec = f.do(http.MethodGet, "/api/v1/users/u1/notifications/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnreadCountAndPreview(t *testing.T) {
	f := setup(t)
	seedRows(f)

	rec := f.do(http.MethodGet, "/api/v1/users/u1/notifications/unread-count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["unread_count"])

	rec = f.do(http.MethodGet, "/api/v1/users/u1/notifications/preview?n=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["notifications"], 2)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/users/u1/notifications/preview?n=0", "").Code)
}

func TestGroups(t *testing.T) {
	f := setup(t)
	seedRows(f)

	rec := f.do(http.MethodGet, "/api/v1/users/u1/notifications/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode(t, rec)["groups"].([]interface{})
	require.Len(t, groups, 2)
	assert.Equal(t, "2 Match Results", groups[0].(map[string]interface{})["title"])

	rec = f.do(http.MethodGet, "/api/v1/users/u1/notifications/groups?mode=similar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["groups"], 2)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/users/u1/notifications/groups?mode=weekly", "").Code)
}

func TestMutations(t *testing.T) {
	f := setup(t)

	tests := []struct {
		method string
		path   string
		call   string
	}{
		{http.MethodPost, "/api/v1/users/u1/notifications/n1/read", "read:n1"},
		{http.MethodPost, "/api/v1/users/u1/notifications/n1/unread", "unread:n1"},
		{http.MethodPost, "/api/v1/users/u1/notifications/read-all", "read_all"},
		{http.MethodPost, "/api/v1/users/u1/notifications/n2/archive", "archive:n2"},
		{http.MethodPost, "/api/v1/users/u1/notifications/n2/unarchive", "unarchive:n2"},
		{http.MethodDelete, "/api/v1/users/u1/notifications/n3", "delete:n3"},
		{http.MethodDelete, "/api/v1/users/u1/notifications", "clear"},
	}

	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, "")
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.call, f.store.calls[len(f.store.calls)-1])
		})
	}
}

func TestSnooze(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/api/v1/users/u1/notifications/n1/snooze", `{"minutes": 30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), f.store.snoozed, 5*time.Second)

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	rec = f.do(http.MethodPost, "/api/v1/users/u1/notifications/n1/snooze", `{"until": "`+past+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/users/u1/notifications/n1/snooze", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatch(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/api/v1/users/u1/notifications/batch", `{"action": "archive", "ids": ["n1", "n2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"n1", "n2"}, f.store.batchIDs)
	assert.Equal(t, "batch:archive", f.store.calls[0])

	rec = f.do(http.MethodPost, "/api/v1/users/u1/notifications/batch", `{"action": "explode", "ids": ["n1"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/users/u1/notifications/batch", `{"action": "delete", "extra": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendTestNotification(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/api/v1/users/u1/notifications/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "suppressed", decode(t, rec)["status"])

	f.broadcaster.test = &models.Notification{ID: "t1", Title: "Test Notification"}
	rec = f.do(http.MethodPost, "/api/v1/users/u1/notifications/test", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "t1", decode(t, rec)["id"])
}

// ==========================
// Preference Tests
// ==========================

func TestPreferences(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "/api/v1/users/u1/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["sound_enabled"])

	rec = f.do(http.MethodPatch, "/api/v1/users/u1/preferences", `{"sound_enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["sound_enabled"])
	require.NotNil(t, f.prefs.update.SoundEnabled)

	rec = f.do(http.MethodPost, "/api/v1/users/u1/preferences/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["sound_enabled"])

	rec = f.do(http.MethodPatch, "/api/v1/users/u1/preferences", `{"volume": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreferences_LookupFailure(t *testing.T) {
	f := setup(t)
	f.prefs.err = apperrors.NewPreferencesLookupFailedError("u1", errors.New("timeout"))

	rec := f.do(http.MethodGet, "/api/v1/users/u1/preferences", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// ==========================
// Sound & Permission Tests
// ==========================

func TestSoundSettings(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "/api/v1/users/u1/sound", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["muted"])
	assert.Equal(t, localstore.DefaultVolume, body["volume"])

	rec = f.do(http.MethodPut, "/api/v1/users/u1/sound", `{"muted": true, "volume": 1.7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, true, body["muted"])
	assert.Equal(t, 1.0, body["volume"])

	// no socket attached, nothing plays
	rec = f.do(http.MethodPost, "/api/v1/users/u1/sound/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["played"])
}

func TestPermission(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "/api/v1/users/u1/permission", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "default", body["status"])
	assert.Equal(t, false, body["requested"])

	rec = f.do(http.MethodPut, "/api/v1/users/u1/permission", `{"status": "granted"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "granted", body["status"])
	assert.Equal(t, true, body["requested"])

	rec = f.do(http.MethodPut, "/api/v1/users/u1/permission", `{"status": "maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterPushEndpoint(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPut, "/api/v1/users/u1/push-endpoint", `{"endpoint": "arn:aws:sns:eu-west-1:123:endpoint/GCM/app/abc"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	arn, ok, err := f.local.Get(context.Background(), "u1", "sns_endpoint_arn")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(arn, "arn:aws:sns"))

	rec = f.do(http.MethodPut, "/api/v1/users/u1/push-endpoint", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// Broadcast Tests
// ==========================

func TestBroadcast(t *testing.T) {
	f := setup(t)
	f.broadcaster.result = &decision.BroadcastResult{Kind: decision.NewsAppUpdate, Attempted: 3, Delivered: 3}

	rec := f.do(http.MethodPost, "/api/v1/broadcast/app-update", `{"message": "Version 2 is out"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Version 2 is out", f.broadcaster.msg)

	// an empty body lets the engine pick the message
	rec = f.do(http.MethodPost, "/api/v1/broadcast/announcement", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", f.broadcaster.msg)
}

func TestBroadcast_PartialFailure(t *testing.T) {
	f := setup(t)
	batch := apperrors.NewBatchError(3)
	batch.Add("u2", errors.New("insert failed"))
	f.broadcaster.result = &decision.BroadcastResult{Attempted: 3, Delivered: 2, Failed: 1, FailedUsers: []string{"u2"}}
	f.broadcaster.err = batch

	rec := f.do(http.MethodPost, "/api/v1/broadcast/announcement", `{"message": "Maintenance tonight"}`)
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["result"].(map[string]interface{})["failed"])
	assert.Equal(t, "BROADCAST_PARTIAL_FAILURE", body["error"].(map[string]interface{})["code"])
}

func TestBroadcast_OversizedMessageRejected(t *testing.T) {
	f := setup(t)
	f.broadcaster.err = apperrors.NewInvalidBroadcastError("message is 501 characters, limit is 500")

	rec := f.do(http.MethodPost, "/api/v1/broadcast/announcement", `{"message": "`+strings.Repeat("a", 501)+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_BROADCAST", decode(t, rec)["error"].(map[string]interface{})["code"])
}

func TestBroadcast_ListingUsersFails(t *testing.T) {
	f := setup(t)
	f.broadcaster.err = errors.New("list users: connection refused")

	rec := f.do(http.MethodPost, "/api/v1/broadcast/app-update", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ==========================
// Hub Tests
// ==========================

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.add(userID, conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_SendReachesEverySocket(t *testing.T) {
	hub := NewHub(logger.NewTestLogger(t))
	a := dialHub(t, hub, "u1")
	b := dialHub(t, hub, "u1")

	require.Eventually(t, func() bool { return hub.Connected("u1") == 2 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Send("u1", MessageSound, sound.Playback{Cue: sound.CueMarkRead, URL: sound.CueMarkRead.URL(), Volume: 0.5}))

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		var env struct {
			Type    string         `json:"type"`
			Payload sound.Playback `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&env))
		assert.Equal(t, MessageSound, env.Type)
		assert.Equal(t, sound.CueMarkRead, env.Payload.Cue)
	}
}

func TestHub_NoSockets(t *testing.T) {
	hub := NewHub(logger.NewTestLogger(t))

	err := hub.PlayCue(context.Background(), "nobody", sound.Playback{Cue: sound.CueDelete})
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Connected("nobody"))
}
