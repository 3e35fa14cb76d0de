// internal/models/notification.go
package models

import "time"

// NotificationType is the legacy coarse kind kept for compatibility.
type NotificationType string

const (
	TypeLeague NotificationType = "league"
	TypeMatch  NotificationType = "match"
	TypeNews   NotificationType = "news"
	TypeSystem NotificationType = "system"
)

// Category is the fine-grained kind that drives preferences, icons and sounds.
type Category string

const (
	CategoryMatch        Category = "match"
	CategoryLeague       Category = "league"
	CategorySocial       Category = "social"
	CategoryAchievement  Category = "achievement"
	CategoryAnnouncement Category = "announcement"
	CategoryAlert        Category = "alert"
	CategorySystem       Category = "system"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryMatch,
	CategoryLeague,
	CategorySocial,
	CategoryAchievement,
	CategoryAnnouncement,
	CategoryAlert,
	CategorySystem,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// BypassesDoNotDisturb reports whether DND never suppresses this category.
func (c Category) BypassesDoNotDisturb() bool {
	return c == CategorySystem || c == CategoryAlert
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

func (t NotificationType) Valid() bool {
	return t == TypeLeague || t == TypeMatch || t == TypeNews || t == TypeSystem
}

// DefaultCategoryFor maps the legacy type onto a category.
func DefaultCategoryFor(t NotificationType) Category {
	switch t {
	case TypeMatch:
		return CategoryMatch
	case TypeLeague:
		return CategoryLeague
	case TypeNews:
		return CategoryAnnouncement
	default:
		return CategorySystem
	}
}

// Notification is one durable inbox row.
type Notification struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Type         NotificationType       `json:"type"`
	Category     Category               `json:"category"`
	Priority     Priority               `json:"priority"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	Read         bool                   `json:"read"`
	Archived     bool                   `json:"archived"`
	SnoozedUntil *time.Time             `json:"snoozed_until"`
	Metadata     map[string]interface{} `json:"metadata"`
	ActionURL    *string                `json:"action_url"`
	ActionLabel  *string                `json:"action_label"`
	CreatedAt    time.Time              `json:"created_at"`
}

// IsSnoozed reports whether the row is hidden from active views at now.
func (n Notification) IsSnoozed(now time.Time) bool {
	return n.SnoozedUntil != nil && n.SnoozedUntil.After(now)
}

// NewNotification is the input to Repository.Add. Category and Priority are optional.
type NewNotification struct {
	Type        NotificationType       `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Category    Category               `json:"category,omitempty"`
	Priority    Priority               `json:"priority,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ActionURL   string                 `json:"action_url,omitempty"`
	ActionLabel string                 `json:"action_label,omitempty"`
}

// Normalize fills the optional fields with their defaults.
func (n NewNotification) Normalize() NewNotification {
	if n.Category == "" {
		n.Category = DefaultCategoryFor(n.Type)
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	return n
}

// Filter selects inbox rows. Nil fields do not constrain; Archived defaults to false.
type Filter struct {
	Category *Category  `json:"category,omitempty"`
	Priority *Priority  `json:"priority,omitempty"`
	Read     *bool      `json:"read,omitempty"`
	Archived *bool      `json:"archived,omitempty"`
	Search   string     `json:"search,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// BatchAction names a multi-row inbox mutation.
type BatchAction string

const (
	BatchMarkRead   BatchAction = "mark_read"
	BatchMarkUnread BatchAction = "mark_unread"
	BatchDelete     BatchAction = "delete"
	BatchArchive    BatchAction = "archive"
	BatchUnarchive  BatchAction = "unarchive"
)

func (a BatchAction) Valid() bool {
	switch a {
	case BatchMarkRead, BatchMarkUnread, BatchDelete, BatchArchive, BatchUnarchive:
		return true
	}
	return false
}
