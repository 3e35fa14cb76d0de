// internal/notifications/preferences/store.go
package preferences

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"

	"github.com/redis/go-redis/v9"
)

const columns = `id, user_id, match_notifications, league_notifications, social_notifications,
	achievement_notifications, announcement_notifications, alert_notifications,
	sound_enabled, email_notifications, push_notifications,
	do_not_disturb_enabled, do_not_disturb_start, do_not_disturb_end,
	created_at, updated_at`

const insertColumns = `user_id, match_notifications, league_notifications, social_notifications,
	achievement_notifications, announcement_notifications, alert_notifications,
	sound_enabled, email_notifications, push_notifications,
	do_not_disturb_enabled, do_not_disturb_start, do_not_disturb_end`

// Config tunes the store.
type Config struct {
	Location *time.Location
	CacheTTL time.Duration
}

// Store is the canonical per-user preference source.
type Store struct {
	db     *sql.DB
	cache  redis.Cmdable
	config Config
	logger logger.Logger
	now    func() time.Time
}

// NewStore builds a Store. cache may be nil to disable caching.
func NewStore(db *sql.DB, cache redis.Cmdable, cfg Config, log logger.Logger) *Store {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Store{
		db:     db,
		cache:  cache,
		config: cfg,
		logger: logger.Component(log, "preferences"),
		now:    time.Now,
	}
}

// SetClock replaces the time source used by IsInDoNotDisturb.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func cacheKey(userID string) string {
	return "prefs:" + userID
}

// ==========================
// Reads
// ==========================

// GetPreferences returns the user's row, creating it with defaults when absent.
func (s *Store) GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	if prefs := s.fromCache(ctx, userID); prefs != nil {
		return prefs, nil
	}

	prefs, err := scanPreferences(s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM user_notification_preferences WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		prefs, err = s.createDefaults(ctx, userID)
	}
	if err != nil {
		return nil, apperrors.NewPreferencesLookupFailedError(userID, err)
	}

	s.toCache(ctx, prefs)
	return prefs, nil
}

// createDefaults inserts the default row. A concurrent insert wins and its row is returned.
func (s *Store) createDefaults(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	d := models.DefaultPreferences(userID)
	return scanPreferences(s.db.QueryRowContext(ctx,
		`INSERT INTO user_notification_preferences (`+insertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+columns,
		defaultArgs(d)...,
	))
}

func defaultArgs(d models.NotificationPreferences) []interface{} {
	return []interface{}{
		d.UserID,
		d.MatchNotifications, d.LeagueNotifications, d.SocialNotifications,
		d.AchievementNotifications, d.AnnouncementNotifications, d.AlertNotifications,
		d.SoundEnabled, d.EmailNotifications, d.PushNotifications,
		d.DoNotDisturbEnabled, d.DoNotDisturbStart, d.DoNotDisturbEnd,
	}
}

func scanPreferences(row *sql.Row) (*models.NotificationPreferences, error) {
	var p models.NotificationPreferences
	err := row.Scan(
		&p.ID, &p.UserID,
		&p.MatchNotifications, &p.LeagueNotifications, &p.SocialNotifications,
		&p.AchievementNotifications, &p.AnnouncementNotifications, &p.AlertNotifications,
		&p.SoundEnabled, &p.EmailNotifications, &p.PushNotifications,
		&p.DoNotDisturbEnabled, &p.DoNotDisturbStart, &p.DoNotDisturbEnd,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// IsNotificationAllowed reports whether category is enabled. Lookup failures allow.
func (s *Store) IsNotificationAllowed(ctx context.Context, userID string, category models.Category) bool {
	if category == models.CategorySystem {
		return true
	}
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Warn("preference lookup failed, allowing notification", map[string]interface{}{
			"userId":   userID,
			"category": string(category),
			"error":    err,
		})
		return true
	}
	return prefs.Allows(category)
}

// IsInDoNotDisturb reports whether now falls inside the user's DND window.
// Lookup failures report false.
func (s *Store) IsInDoNotDisturb(ctx context.Context, userID string) bool {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Warn("preference lookup failed, ignoring do-not-disturb", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		return false
	}
	if !prefs.DoNotDisturbEnabled {
		return false
	}
	return InDoNotDisturbWindow(TimeOfDay(s.now(), s.config.Location), prefs.DoNotDisturbStart, prefs.DoNotDisturbEnd)
}

// IsSoundEnabled defaults to true when the row cannot be read.
func (s *Store) IsSoundEnabled(ctx context.Context, userID string) bool {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return true
	}
	return prefs.SoundEnabled
}

// EnabledCategories lists enabled categories; every category when the row cannot be read.
func (s *Store) EnabledCategories(ctx context.Context, userID string) []models.Category {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return append([]models.Category(nil), models.Categories...)
	}
	return prefs.EnabledCategories()
}

// ==========================
// Writes
// ==========================

// UpdatePreferences merges the provided fields into the row.
func (s *Store) UpdatePreferences(ctx context.Context, userID string, update models.PreferencesUpdate) error {
	sets, args, err := buildUpdate(update)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE user_notification_preferences SET %s, updated_at = now() WHERE user_id = $1`,
		strings.Join(sets, ", "))
	args = append([]interface{}{userID}, args...)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewPreferencesUpdateFailedError(userID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// no row yet: create defaults, then apply the update on top
		if _, err := s.createDefaults(ctx, userID); err != nil {
			return apperrors.NewPreferencesUpdateFailedError(userID, err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return apperrors.NewPreferencesUpdateFailedError(userID, err)
		}
	}

	s.invalidate(ctx, userID)
	return nil
}

func buildUpdate(u models.PreferencesUpdate) ([]string, []interface{}, error) {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
	}

	boolFields := []struct {
		column string
		value  *bool
	}{
		{"match_notifications", u.MatchNotifications},
		{"league_notifications", u.LeagueNotifications},
		{"social_notifications", u.SocialNotifications},
		{"achievement_notifications", u.AchievementNotifications},
		{"announcement_notifications", u.AnnouncementNotifications},
		{"alert_notifications", u.AlertNotifications},
		{"sound_enabled", u.SoundEnabled},
		{"email_notifications", u.EmailNotifications},
		{"push_notifications", u.PushNotifications},
		{"do_not_disturb_enabled", u.DoNotDisturbEnabled},
	}
	for _, f := range boolFields {
		if f.value != nil {
			add(f.column, *f.value)
		}
	}

	timeFields := []struct {
		column string
		value  *string
	}{
		{"do_not_disturb_start", u.DoNotDisturbStart},
		{"do_not_disturb_end", u.DoNotDisturbEnd},
	}
	for _, f := range timeFields {
		if f.value == nil {
			continue
		}
		normalized, err := NormalizeTimeOfDay(*f.value)
		if err != nil {
			return nil, nil, apperrors.NewInvalidPreferencesError(fmt.Sprintf("%s: %v", f.column, err))
		}
		add(f.column, normalized)
	}

	return sets, args, nil
}

// ResetToDefaults restores every field in a single upsert.
func (s *Store) ResetToDefaults(ctx context.Context, userID string) error {
	d := models.DefaultPreferences(userID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_notification_preferences (`+insertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			match_notifications = EXCLUDED.match_notifications,
			league_notifications = EXCLUDED.league_notifications,
			social_notifications = EXCLUDED.social_notifications,
			achievement_notifications = EXCLUDED.achievement_notifications,
			announcement_notifications = EXCLUDED.announcement_notifications,
			alert_notifications = EXCLUDED.alert_notifications,
			sound_enabled = EXCLUDED.sound_enabled,
			email_notifications = EXCLUDED.email_notifications,
			push_notifications = EXCLUDED.push_notifications,
			do_not_disturb_enabled = EXCLUDED.do_not_disturb_enabled,
			do_not_disturb_start = EXCLUDED.do_not_disturb_start,
			do_not_disturb_end = EXCLUDED.do_not_disturb_end,
			updated_at = now()`,
		defaultArgs(d)...,
	)
	if err != nil {
		return apperrors.NewPreferencesUpdateFailedError(userID, err)
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *Store) ToggleCategory(ctx context.Context, userID string, category models.Category, enabled bool) error {
	update, ok := models.CategoryToggle(category, enabled)
	if !ok {
		return apperrors.NewInvalidPreferencesError(fmt.Sprintf("category %q cannot be toggled", category))
	}
	return s.UpdatePreferences(ctx, userID, update)
}

func (s *Store) ToggleSound(ctx context.Context, userID string, enabled bool) error {
	return s.UpdatePreferences(ctx, userID, models.PreferencesUpdate{SoundEnabled: &enabled})
}

func (s *Store) ToggleEmail(ctx context.Context, userID string, enabled bool) error {
	return s.UpdatePreferences(ctx, userID, models.PreferencesUpdate{EmailNotifications: &enabled})
}

func (s *Store) TogglePush(ctx context.Context, userID string, enabled bool) error {
	return s.UpdatePreferences(ctx, userID, models.PreferencesUpdate{PushNotifications: &enabled})
}

func (s *Store) ToggleDoNotDisturb(ctx context.Context, userID string, enabled bool) error {
	return s.UpdatePreferences(ctx, userID, models.PreferencesUpdate{DoNotDisturbEnabled: &enabled})
}

func (s *Store) SetDoNotDisturbHours(ctx context.Context, userID, start, end string) error {
	return s.UpdatePreferences(ctx, userID, models.PreferencesUpdate{
		DoNotDisturbStart: &start,
		DoNotDisturbEnd:   &end,
	})
}

// ==========================
// Cache
// ==========================

func (s *Store) fromCache(ctx context.Context, userID string) *models.NotificationPreferences {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("preference cache read failed", map[string]interface{}{"userId": userID, "error": err})
		}
		return nil
	}
	var prefs models.NotificationPreferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil
	}
	return &prefs
}

func (s *Store) toCache(ctx context.Context, prefs *models.NotificationPreferences) {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(prefs.UserID), raw, s.config.CacheTTL).Err(); err != nil {
		s.logger.Debug("preference cache write failed", map[string]interface{}{"userId": prefs.UserID, "error": err})
	}
}

func (s *Store) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(userID)).Err(); err != nil {
		s.logger.Warn("preference cache invalidation failed", map[string]interface{}{"userId": userID, "error": err})
	}
}
