// internal/notifications/decision/engine.go
package decision

import (
	"context"
	"time"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/common/metrics"
	"league-notifications/internal/common/observability"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/localstore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Repository is the write side of the inbox. The engine is its only caller for inserts.
type Repository interface {
	Add(ctx context.Context, userID string, in models.NewNotification) (*models.Notification, error)
}

// Preferences answers the canonical per-user gates. Both methods fail open.
type Preferences interface {
	IsNotificationAllowed(ctx context.Context, userID string, category models.Category) bool
	IsInDoNotDisturb(ctx context.Context, userID string) bool
}

// LocalSettings exposes the legacy device flags and per-league match counters.
type LocalSettings interface {
	LegacyEnabled(ctx context.Context, userID string, kind localstore.LegacyKind) bool
	IncrementMatchCount(ctx context.Context, userID, leagueID string) (int64, error)
}

// Directory reads the external league data.
type Directory interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetLeague(ctx context.Context, leagueID string) (*models.League, error)
	CompletedMatches(ctx context.Context, leagueID string) ([]models.Match, error)
}

const DefaultTableCheckEvery = 3

type Config struct {
	// TableCheckEvery is how many completed matches per league trigger a standings notification.
	TableCheckEvery int
}

// Suppression reasons, used as metric labels.
const (
	ReasonNotCompleted     = "not_completed"
	ReasonNotInvolved      = "not_involved"
	ReasonCategoryDisabled = "category_disabled"
	ReasonDoNotDisturb     = "do_not_disturb"
	ReasonMissingScore     = "missing_score"
	ReasonLegacyDisabled   = "legacy_disabled"
	ReasonNoRule           = "no_rule"
)

// Engine decides whether an event becomes a notification and writes at most one row per event.
type Engine struct {
	repo      Repository
	prefs     Preferences
	local     LocalSettings
	directory Directory
	selector  Selector
	obs       *observability.Observability
	config    Config
	logger    logger.Logger
}

func NewEngine(repo Repository, prefs Preferences, local LocalSettings, directory Directory, obs *observability.Observability, cfg Config, log logger.Logger) *Engine {
	if cfg.TableCheckEvery == 0 {
		cfg.TableCheckEvery = DefaultTableCheckEvery
	}
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Engine{
		repo:      repo,
		prefs:     prefs,
		local:     local,
		directory: directory,
		selector:  DefaultSelector(),
		obs:       obs,
		config:    cfg,
		logger:    logger.Component(log, "decision"),
	}
}

// SetSelector replaces the message selector.
func (e *Engine) SetSelector(s Selector) {
	e.selector = s
}

// Handle runs one domain event for the acting user. It returns the created
// row, or nil when the event was suppressed. Only insert failures are errors.
func (e *Engine) Handle(ctx context.Context, userID string, ev models.Event) (*models.Notification, error) {
	start := time.Now()
	kind := string(ev.Kind())

	ctx, span := e.obs.StartSpan(ctx, "decision.handle",
		attribute.String("event", kind),
		attribute.String("user_id", userID),
	)
	defer span.End()

	var (
		n   *models.Notification
		err error
	)
	switch ev := ev.(type) {
	case models.MatchCompleted:
		n, err = e.handleMatch(ctx, userID, ev.Match)
	case models.LeagueStarted:
		n, err = e.handleLeague(ctx, userID, ev.Kind(), ev.League, TitleLeagueStarted, LeagueStartedMessages)
	case models.LeagueFinished:
		n, err = e.handleLeague(ctx, userID, ev.Kind(), ev.League, TitleLeagueFinished, LeagueFinishedMessages)
	default:
		e.suppress(userID, kind, ReasonNoRule)
	}

	outcome := "suppressed"
	switch {
	case err != nil:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case n != nil:
		outcome = "created"
	}

	elapsed := time.Since(start)
	metrics.DecisionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	e.obs.RecordEventProcessed(ctx, kind, outcome)
	e.obs.RecordEventDuration(ctx, elapsed, kind)

	return n, err
}

// gate applies the category toggle, then do-not-disturb for non-critical
// categories. It returns the suppression reason, empty when allowed.
func (e *Engine) gate(ctx context.Context, userID string, category models.Category) string {
	if !e.prefs.IsNotificationAllowed(ctx, userID, category) {
		return ReasonCategoryDisabled
	}
	if !category.BypassesDoNotDisturb() && e.prefs.IsInDoNotDisturb(ctx, userID) {
		return ReasonDoNotDisturb
	}
	return ""
}

func (e *Engine) suppress(userID, event, reason string) {
	metrics.NotificationsSuppressed.WithLabelValues(reason).Inc()
	e.logger.Debug("notification suppressed", map[string]interface{}{
		"user_id": userID,
		"event":   event,
		"reason":  reason,
	})
}

func (e *Engine) create(ctx context.Context, userID string, in models.NewNotification) (*models.Notification, error) {
	n, err := e.repo.Add(ctx, userID, in)
	if err != nil {
		e.logger.Error("failed to create notification", map[string]interface{}{
			"user_id": userID,
			"title":   in.Title,
			"error":   err,
		})
		return nil, err
	}

	metrics.NotificationsCreated.WithLabelValues(string(n.Category)).Inc()
	e.logger.Info("notification created", map[string]interface{}{
		"user_id":         userID,
		"notification_id": n.ID,
		"category":        string(n.Category),
		"title":           n.Title,
	})
	return n, nil
}
