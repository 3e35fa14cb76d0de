// internal/notifications/diagnostics/diagnostics_test.go
package diagnostics

import (
	"context"
	"errors"
	"testing"
	"time"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakeTables struct {
	missing map[string]bool
	err     error
}

func (f *fakeTables) TableExists(_ context.Context, table string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.missing[table], nil
}

type fakePreferences struct {
	prefs *models.NotificationPreferences
	err   error
}

func (f *fakePreferences) GetPreferences(_ context.Context, _ string) (*models.NotificationPreferences, error) {
	return f.prefs, f.err
}

type fakeStorage struct {
	list   []models.Notification
	unread int
	err    error
}

func (f *fakeStorage) List(_ context.Context, _ string, _ int) ([]models.Notification, error) {
	return f.list, f.err
}

func (f *fakeStorage) GetUnreadCount(_ context.Context, _ string) (int, error) {
	return f.unread, f.err
}

// fakeSender publishes the insert on the transport the way the database
// trigger would, unless silent is set.
type fakeSender struct {
	transport *realtime.MemoryTransport
	silent    bool
	err       error
	calls     int
}

func (f *fakeSender) SendTestNotification(_ context.Context, userID string) (*models.Notification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	n := &models.Notification{ID: "n-test", UserID: userID}
	if !f.silent {
		f.transport.Publish(models.Change{
			Table:     "notifications",
			EventType: models.ChangeInsert,
			New:       map[string]interface{}{"id": n.ID, "user_id": userID},
		})
	}
	return n, nil
}

type fixture struct {
	transport *realtime.MemoryTransport
	tables    *fakeTables
	prefs     *fakePreferences
	storage   *fakeStorage
	sender    *fakeSender
	runner    *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	transport := realtime.NewMemoryTransport()
	defaults := models.DefaultPreferences("u1")
	f := &fixture{
		transport: transport,
		tables:    &fakeTables{},
		prefs:     &fakePreferences{prefs: &defaults},
		storage:   &fakeStorage{list: []models.Notification{{ID: "a"}, {ID: "b"}}, unread: 1},
		sender:    &fakeSender{transport: transport},
	}
	f.runner = NewRunner(Deps{
		Tables:      f.tables,
		Transport:   transport,
		Preferences: f.prefs,
		Storage:     f.storage,
		Sender:      f.sender,
	}, Config{RealtimeWait: 50 * time.Millisecond, MatchesWait: 20 * time.Millisecond}, logger.NewTestLogger(t))
	return f
}

func check(t *testing.T, r *Report, name string) Check {
	t.Helper()
	c, ok := r.Get(name)
	require.True(t, ok, "missing check %s", name)
	return c
}

// ==========================
// Run Tests
// ==========================

func TestRun_AllPass(t *testing.T) {
	f := newFixture(t)

	report := f.runner.Run(context.Background(), "u1")

	require.Len(t, report.Checks, 6)
	assert.True(t, report.Passed(), "failed: %+v", report.Failed())
	assert.Equal(t, "u1", report.UserID)
	assert.Equal(t, "received insert n-test", check(t, report, CheckRealtime).Detail)
	assert.Equal(t, "created n-test", check(t, report, CheckTestNotification).Detail)
	assert.Equal(t, "subscribed; no changes during wait", check(t, report, CheckMatchesRealtime).Detail)
	assert.Equal(t, "2 notifications, 1 unread", check(t, report, CheckStorage).Detail)
	assert.Contains(t, check(t, report, CheckPreferences).Detail, "sound=true")
	assert.Empty(t, f.transport.Channels(), "diagnostics channels must be closed")
	assert.Equal(t, 1, f.sender.calls)
}

func TestRun_OrderIsFixed(t *testing.T) {
	f := newFixture(t)

	report := f.runner.Run(context.Background(), "u1")

	var names []string
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		CheckTables, CheckRealtime, CheckTestNotification,
		CheckMatchesRealtime, CheckPreferences, CheckStorage,
	}, names)
}

// ==========================
// Table Tests
// ==========================

func TestRun_MissingTables(t *testing.T) {
	f := newFixture(t)
	f.tables.missing = map[string]bool{"matches": true, "leagues": true}

	report := f.runner.Run(context.Background(), "u1")

	c := check(t, report, CheckTables)
	assert.False(t, c.OK)
	assert.Contains(t, c.Detail, "table matches not found")
	assert.Contains(t, c.Detail, "table leagues not found")
	assert.False(t, report.Passed())
	assert.Len(t, report.Failed(), 1)
}

func TestRun_TableLookupError(t *testing.T) {
	f := newFixture(t)
	f.tables.err = errors.New("connection refused")

	c := check(t, f.runner.Run(context.Background(), "u1"), CheckTables)
	assert.False(t, c.OK)
	assert.Contains(t, c.Detail, "connection refused")
}

// ==========================
// Realtime Tests
// ==========================

func TestRun_InsertNotObserved(t *testing.T) {
	f := newFixture(t)
	f.sender.silent = true

	report := f.runner.Run(context.Background(), "u1")

	rt := check(t, report, CheckRealtime)
	assert.False(t, rt.OK)
	assert.Contains(t, rt.Detail, "insert n-test not received")
	assert.True(t, check(t, report, CheckTestNotification).OK)
}

func TestRun_SubscriptionNeverAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.transport.SetAutoAck(false)

	report := f.runner.Run(context.Background(), "u1")

	assert.False(t, check(t, report, CheckRealtime).OK)
	assert.False(t, check(t, report, CheckMatchesRealtime).OK)
	assert.True(t, check(t, report, CheckTestNotification).OK, "test notification is still attempted")
	assert.Empty(t, f.transport.Channels())
}

func TestRun_TransportOpenFails(t *testing.T) {
	f := newFixture(t)
	f.transport.SetOpenError(errors.New("listener down"))

	report := f.runner.Run(context.Background(), "u1")

	rt := check(t, report, CheckRealtime)
	assert.False(t, rt.OK)
	assert.Contains(t, rt.Detail, "listener down")
	assert.Contains(t, check(t, report, CheckMatchesRealtime).Detail, "listener down")
}

func TestRun_MatchesChangeObserved(t *testing.T) {
	f := newFixture(t)
	f.runner.config.MatchesWait = time.Second

	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if f.transport.Publish(models.Change{Table: "matches", EventType: models.ChangeUpdate}) > 0 {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	report := f.runner.Run(context.Background(), "u1")
	<-done

	c := check(t, report, CheckMatchesRealtime)
	assert.True(t, c.OK)
	assert.Equal(t, "received UPDATE on matches", c.Detail)
}

// ==========================
// Sender, Preferences and Storage Tests
// ==========================

func TestRun_TestNotificationFails(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("insert failed")

	report := f.runner.Run(context.Background(), "u1")

	send := check(t, report, CheckTestNotification)
	assert.False(t, send.OK)
	assert.Equal(t, "insert failed", send.Detail)

	rt := check(t, report, CheckRealtime)
	assert.True(t, rt.OK)
	assert.Equal(t, "subscribed; no insert to observe", rt.Detail)
}

func TestRun_PreferencesAndStorageFailures(t *testing.T) {
	f := newFixture(t)
	f.prefs.err = errors.New("preferences unavailable")
	f.storage.err = errors.New("query timeout")

	report := f.runner.Run(context.Background(), "u1")

	assert.Equal(t, "preferences unavailable", check(t, report, CheckPreferences).Detail)
	assert.Equal(t, "list: query timeout", check(t, report, CheckStorage).Detail)
	assert.Len(t, report.Failed(), 2)
}

func TestRun_MissingDependencies(t *testing.T) {
	runner := NewRunner(Deps{}, Config{}, logger.NewNoOpLogger())
	assert.Equal(t, DefaultConfig(), runner.config)

	report := runner.Run(context.Background(), "u1")

	require.Len(t, report.Checks, 6)
	for _, c := range report.Checks {
		assert.False(t, c.OK, c.Name)
		assert.NotEmpty(t, c.Detail, c.Name)
	}
}
