// internal/models/toast.go
package models

import (
	"encoding/json"
	"time"
)

const DefaultToastDuration = 5000 * time.Millisecond

// Toast is an ephemeral in-app toast queue entry.
type Toast struct {
	ID             string        `json:"id"`
	NotificationID string        `json:"notification_id,omitempty"`
	Title          string        `json:"title"`
	Message        string        `json:"message"`
	Category       Category      `json:"category"`
	Priority       Priority      `json:"priority"`
	ActionURL      string        `json:"action_url,omitempty"`
	ActionLabel    string        `json:"action_label,omitempty"`
	Duration       time.Duration `json:"-"`
}

// toastWire carries the duration in milliseconds.
type toastWire struct {
	ID             string   `json:"id"`
	NotificationID string   `json:"notification_id,omitempty"`
	Title          string   `json:"title"`
	Message        string   `json:"message"`
	Category       Category `json:"category"`
	Priority       Priority `json:"priority"`
	ActionURL      string   `json:"action_url,omitempty"`
	ActionLabel    string   `json:"action_label,omitempty"`
	DurationMS     int64    `json:"duration"`
}

func (t Toast) MarshalJSON() ([]byte, error) {
	return json.Marshal(toastWire{
		ID:             t.ID,
		NotificationID: t.NotificationID,
		Title:          t.Title,
		Message:        t.Message,
		Category:       t.Category,
		Priority:       t.Priority,
		ActionURL:      t.ActionURL,
		ActionLabel:    t.ActionLabel,
		DurationMS:     t.Duration.Milliseconds(),
	})
}

func (t *Toast) UnmarshalJSON(data []byte) error {
	var w toastWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Toast{
		ID:             w.ID,
		NotificationID: w.NotificationID,
		Title:          w.Title,
		Message:        w.Message,
		Category:       w.Category,
		Priority:       w.Priority,
		ActionURL:      w.ActionURL,
		ActionLabel:    w.ActionLabel,
		Duration:       time.Duration(w.DurationMS) * time.Millisecond,
	}
	return nil
}

// ToastFromNotification builds the toast for a freshly inserted row.
func ToastFromNotification(n Notification, duration time.Duration) Toast {
	if duration <= 0 {
		duration = DefaultToastDuration
	}
	t := Toast{
		NotificationID: n.ID,
		Title:          n.Title,
		Message:        n.Message,
		Category:       n.Category,
		Priority:       n.Priority,
		Duration:       duration,
	}
	if n.ActionURL != nil {
		t.ActionURL = *n.ActionURL
	}
	if n.ActionLabel != nil {
		t.ActionLabel = *n.ActionLabel
	}
	return t
}
