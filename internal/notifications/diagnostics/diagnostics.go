// internal/notifications/diagnostics/diagnostics.go
package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/realtime"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Tables the notification system depends on.
var Tables = []string{"notifications", "user_notification_preferences", "matches", "leagues"}

const (
	CheckTables           = "table_access"
	CheckRealtime         = "realtime_notifications"
	CheckTestNotification = "create_notification"
	CheckMatchesRealtime  = "realtime_matches"
	CheckPreferences      = "preferences_row"
	CheckStorage          = "notification_storage"
)

// TableChecker is satisfied by *database.PostgresClient.
type TableChecker interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

type PreferenceReader interface {
	GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error)
}

type Storage interface {
	List(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
}

// TestSender is satisfied by *decision.Engine.
type TestSender interface {
	SendTestNotification(ctx context.Context, userID string) (*models.Notification, error)
}

type Deps struct {
	Tables      TableChecker
	Transport   realtime.Transport
	Preferences PreferenceReader
	Storage     Storage
	Sender      TestSender
}

type Config struct {
	// RealtimeWait bounds how long a realtime check waits for a change.
	RealtimeWait time.Duration
	// MatchesWait bounds the passive wait on the matches table.
	MatchesWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		RealtimeWait: 5 * time.Second,
		MatchesWait:  3 * time.Second,
	}
}

type Check struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

type Report struct {
	UserID string  `json:"userId"`
	Checks []Check `json:"checks"`
}

// Passed reports whether every check passed.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Failed returns the failing checks in run order.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the named check.
func (r *Report) Get(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// Runner executes the diagnostic checks against live dependencies. It holds
// no state between runs.
type Runner struct {
	deps   Deps
	config Config
	logger logger.Logger
}

func NewRunner(deps Deps, cfg Config, log logger.Logger) *Runner {
	def := DefaultConfig()
	if cfg.RealtimeWait <= 0 {
		cfg.RealtimeWait = def.RealtimeWait
	}
	if cfg.MatchesWait <= 0 {
		cfg.MatchesWait = def.MatchesWait
	}
	return &Runner{
		deps:   deps,
		config: cfg,
		logger: logger.Component(log, "diagnostics"),
	}
}

// Run executes every check for userID in a fixed order. Checks whose
// dependency is missing are reported as failures rather than skipped.
func (r *Runner) Run(ctx context.Context, userID string) *Report {
	report := &Report{UserID: userID}
	r.logger.Info("starting notification diagnostics", map[string]interface{}{"userId": userID})

	report.Checks = append(report.Checks, r.timed(CheckTables, func() (string, error) {
		return r.checkTables(ctx)
	}))
	report.Checks = append(report.Checks, r.roundTrip(ctx, userID)...)
	report.Checks = append(report.Checks, r.timed(CheckMatchesRealtime, func() (string, error) {
		return r.checkMatches(ctx)
	}))
	report.Checks = append(report.Checks, r.timed(CheckPreferences, func() (string, error) {
		return r.checkPreferences(ctx, userID)
	}))
	report.Checks = append(report.Checks, r.timed(CheckStorage, func() (string, error) {
		return r.checkStorage(ctx, userID)
	}))

	for _, c := range report.Checks {
		fields := map[string]interface{}{
			"check":    c.Name,
			"detail":   c.Detail,
			"duration": c.Duration.String(),
		}
		if c.OK {
			r.logger.Info("check passed", fields)
		} else {
			r.logger.Error("check failed", fields)
		}
	}
	r.logger.Info("notification diagnostics finished", map[string]interface{}{
		"userId": userID,
		"passed": report.Passed(),
		"failed": len(report.Failed()),
	})
	return report
}

func (r *Runner) timed(name string, fn func() (string, error)) Check {
	start := time.Now()
	detail, err := fn()
	c := Check{Name: name, OK: err == nil, Detail: detail, Duration: time.Since(start)}
	if err != nil {
		c.Detail = err.Error()
	}
	return c
}

func (r *Runner) checkTables(ctx context.Context) (string, error) {
	if r.deps.Tables == nil {
		return "", fmt.Errorf("no table checker configured")
	}
	var errs error
	for _, table := range Tables {
		ok, err := r.deps.Tables.TableExists(ctx, table)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("table %s not found", table))
		}
	}
	if errs != nil {
		return "", errs
	}
	return strings.Join(Tables, ", ") + " reachable", nil
}

type observation struct {
	status realtime.Status
	err    error
	change *models.Change
}

// watch opens a throwaway channel and streams what it sees. The returned
// func closes the channel.
func (r *Runner) watch(ctx context.Context, binding realtime.Binding) (<-chan observation, func(), error) {
	if r.deps.Transport == nil {
		return nil, nil, fmt.Errorf("no realtime transport configured")
	}
	name := fmt.Sprintf("diagnostics:%s:%s", binding.Table, uuid.NewString())
	events := make(chan observation, 16)

	sink := func(_ string, change models.Change) {
		c := change
		select {
		case events <- observation{change: &c}:
		default:
		}
	}
	status := func(_ string, s realtime.Status, err error) {
		select {
		case events <- observation{status: s, err: err}:
		default:
		}
	}

	if err := r.deps.Transport.Open(ctx, name, binding, sink, status); err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	stop := func() {
		if err := r.deps.Transport.Close(name); err != nil {
			r.logger.Debug("closing diagnostics channel", map[string]interface{}{"channel": name, "error": err})
		}
	}
	return events, stop, nil
}

func awaitSubscribed(ctx context.Context, events <-chan observation, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ob := <-events:
			if ob.change != nil {
				continue
			}
			if ob.status == realtime.StatusSubscribed {
				return nil
			}
			if ob.status.Dead() {
				return statusError(ob)
			}
		case <-timer.C:
			return fmt.Errorf("subscription not acknowledged within %s", wait)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func statusError(ob observation) error {
	if ob.err != nil {
		return fmt.Errorf("channel %s: %w", ob.status, ob.err)
	}
	return fmt.Errorf("channel %s", ob.status)
}

// roundTrip subscribes to the user's notifications, writes a test
// notification and waits for its insert to come back through the feed.
func (r *Runner) roundTrip(ctx context.Context, userID string) []Check {
	start := time.Now()
	rt := Check{Name: CheckRealtime}
	send := Check{Name: CheckTestNotification}

	filter, err := realtime.ParseFilter("user_id=eq." + userID)
	if err != nil {
		rt.Detail = err.Error()
		send.Detail = "skipped: invalid user id"
		return []Check{rt, send}
	}

	events, stop, err := r.watch(ctx, realtime.Binding{
		Table:  "notifications",
		Event:  models.ChangeInsert,
		Filter: filter,
	})
	if err == nil {
		defer stop()
		err = awaitSubscribed(ctx, events, r.config.RealtimeWait)
	}
	subscribed := err == nil
	if !subscribed {
		rt.Detail = err.Error()
	}

	sendStart := time.Now()
	created, err := r.sendTest(ctx, userID)
	send.Duration = time.Since(sendStart)
	if err != nil {
		send.Detail = err.Error()
	} else {
		send.OK = true
		send.Detail = "created " + created.ID
	}

	if subscribed {
		if created == nil {
			rt.OK = true
			rt.Detail = "subscribed; no insert to observe"
		} else {
			rt.OK, rt.Detail = awaitInsert(ctx, events, created.ID, r.config.RealtimeWait)
		}
	}
	rt.Duration = time.Since(start)
	return []Check{rt, send}
}

func (r *Runner) sendTest(ctx context.Context, userID string) (*models.Notification, error) {
	if r.deps.Sender == nil {
		return nil, fmt.Errorf("no test sender configured")
	}
	n, err := r.deps.Sender.SendTestNotification(ctx, userID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("test notification was not created")
	}
	return n, nil
}

func awaitInsert(ctx context.Context, events <-chan observation, id string, wait time.Duration) (bool, string) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ob := <-events:
			if ob.change == nil {
				if ob.status.Dead() {
					return false, statusError(ob).Error()
				}
				continue
			}
			if fmt.Sprint(ob.change.New["id"]) == id {
				return true, "received insert " + id
			}
		case <-timer.C:
			return false, fmt.Sprintf("insert %s not received within %s", id, wait)
		case <-ctx.Done():
			return false, ctx.Err().Error()
		}
	}
}

// checkMatches only confirms the subscription; an idle table is not a failure.
func (r *Runner) checkMatches(ctx context.Context) (string, error) {
	events, stop, err := r.watch(ctx, realtime.Binding{Table: "matches", Event: models.ChangeAll})
	if err != nil {
		return "", err
	}
	defer stop()

	subscribed := false
	deadline := time.After(r.config.MatchesWait)
	for {
		select {
		case ob := <-events:
			if ob.change != nil {
				return fmt.Sprintf("received %s on matches", ob.change.EventType), nil
			}
			if ob.status.Dead() {
				return "", statusError(ob)
			}
			if ob.status == realtime.StatusSubscribed && !subscribed {
				subscribed = true
				deadline = time.After(r.config.MatchesWait)
			}
		case <-deadline:
			if !subscribed {
				return "", fmt.Errorf("subscription not acknowledged within %s", r.config.MatchesWait)
			}
			return "subscribed; no changes during wait", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (r *Runner) checkPreferences(ctx context.Context, userID string) (string, error) {
	if r.deps.Preferences == nil {
		return "", fmt.Errorf("no preference store configured")
	}
	prefs, err := r.deps.Preferences.GetPreferences(ctx, userID)
	if err != nil {
		return "", err
	}
	if prefs == nil {
		return "", fmt.Errorf("no preferences row for %s", userID)
	}
	return fmt.Sprintf("sound=%t push=%t email=%t dnd=%t", prefs.SoundEnabled, prefs.PushNotifications, prefs.EmailNotifications, prefs.DoNotDisturbEnabled), nil
}

func (r *Runner) checkStorage(ctx context.Context, userID string) (string, error) {
	if r.deps.Storage == nil {
		return "", fmt.Errorf("no notification storage configured")
	}
	list, err := r.deps.Storage.List(ctx, userID, 0)
	if err != nil {
		return "", fmt.Errorf("list: %w", err)
	}
	unread, err := r.deps.Storage.GetUnreadCount(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("unread count: %w", err)
	}
	return fmt.Sprintf("%d notifications, %d unread", len(list), unread), nil
}
