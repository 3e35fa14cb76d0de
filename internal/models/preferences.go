// internal/models/preferences.go
package models

import "time"

const (
	DefaultDoNotDisturbStart = "22:00:00"
	DefaultDoNotDisturbEnd   = "08:00:00"
)

// NotificationPreferences is the single preference row owned by a user.
type NotificationPreferences struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	MatchNotifications        bool `json:"match_notifications"`
	LeagueNotifications       bool `json:"league_notifications"`
	SocialNotifications       bool `json:"social_notifications"`
	AchievementNotifications  bool `json:"achievement_notifications"`
	AnnouncementNotifications bool `json:"announcement_notifications"`
	AlertNotifications        bool `json:"alert_notifications"`

	SoundEnabled       bool `json:"sound_enabled"`
	EmailNotifications bool `json:"email_notifications"`
	PushNotifications  bool `json:"push_notifications"`

	DoNotDisturbEnabled bool   `json:"do_not_disturb_enabled"`
	DoNotDisturbStart   string `json:"do_not_disturb_start"`
	DoNotDisturbEnd     string `json:"do_not_disturb_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreferences returns the row a user gets on first read.
func DefaultPreferences(userID string) NotificationPreferences {
	return NotificationPreferences{
		UserID:                    userID,
		MatchNotifications:        true,
		LeagueNotifications:       true,
		SocialNotifications:       true,
		AchievementNotifications:  true,
		AnnouncementNotifications: true,
		AlertNotifications:        true,
		SoundEnabled:              true,
		EmailNotifications:        false,
		PushNotifications:         true,
		DoNotDisturbEnabled:       false,
		DoNotDisturbStart:         DefaultDoNotDisturbStart,
		DoNotDisturbEnd:           DefaultDoNotDisturbEnd,
	}
}

// Allows reports whether the category toggle is on. System is always allowed.
func (p NotificationPreferences) Allows(c Category) bool {
	switch c {
	case CategoryMatch:
		return p.MatchNotifications
	case CategoryLeague:
		return p.LeagueNotifications
	case CategorySocial:
		return p.SocialNotifications
	case CategoryAchievement:
		return p.AchievementNotifications
	case CategoryAnnouncement:
		return p.AnnouncementNotifications
	case CategoryAlert:
		return p.AlertNotifications
	default:
		return true
	}
}

// EnabledCategories lists the enabled categories, always including system.
func (p NotificationPreferences) EnabledCategories() []Category {
	enabled := make([]Category, 0, len(Categories))
	for _, c := range Categories {
		if p.Allows(c) {
			enabled = append(enabled, c)
		}
	}
	return enabled
}

// PreferencesUpdate is a partial update: nil fields are left untouched.
type PreferencesUpdate struct {
	MatchNotifications        *bool `json:"match_notifications,omitempty"`
	LeagueNotifications       *bool `json:"league_notifications,omitempty"`
	SocialNotifications       *bool `json:"social_notifications,omitempty"`
	AchievementNotifications  *bool `json:"achievement_notifications,omitempty"`
	AnnouncementNotifications *bool `json:"announcement_notifications,omitempty"`
	AlertNotifications        *bool `json:"alert_notifications,omitempty"`

	SoundEnabled       *bool `json:"sound_enabled,omitempty"`
	EmailNotifications *bool `json:"email_notifications,omitempty"`
	PushNotifications  *bool `json:"push_notifications,omitempty"`

	DoNotDisturbEnabled *bool   `json:"do_not_disturb_enabled,omitempty"`
	DoNotDisturbStart   *string `json:"do_not_disturb_start,omitempty"`
	DoNotDisturbEnd     *string `json:"do_not_disturb_end,omitempty"`
}

// Empty reports whether the update sets nothing.
func (u PreferencesUpdate) Empty() bool {
	return u.MatchNotifications == nil && u.LeagueNotifications == nil &&
		u.SocialNotifications == nil && u.AchievementNotifications == nil &&
		u.AnnouncementNotifications == nil && u.AlertNotifications == nil &&
		u.SoundEnabled == nil && u.EmailNotifications == nil && u.PushNotifications == nil &&
		u.DoNotDisturbEnabled == nil && u.DoNotDisturbStart == nil && u.DoNotDisturbEnd == nil
}

// CategoryToggle builds an update flipping one category. ok is false for system.
func CategoryToggle(c Category, enabled bool) (PreferencesUpdate, bool) {
	var u PreferencesUpdate
	switch c {
	case CategoryMatch:
		u.MatchNotifications = &enabled
	case CategoryLeague:
		u.LeagueNotifications = &enabled
	case CategorySocial:
		u.SocialNotifications = &enabled
	case CategoryAchievement:
		u.AchievementNotifications = &enabled
	case CategoryAnnouncement:
		u.AnnouncementNotifications = &enabled
	case CategoryAlert:
		u.AlertNotifications = &enabled
	default:
		return u, false
	}
	return u, true
}
