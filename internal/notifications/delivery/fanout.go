// internal/notifications/delivery/fanout.go
package delivery

import (
	"context"
	"errors"
	"time"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/common/metrics"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/localstore"
)

// Delivery channels, used as metric labels.
const (
	ChannelToast = "toast"
	ChannelSound = "sound"
	ChannelPush  = "push"
	ChannelEmail = "email"
)

type Preferences interface {
	GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error)
}

type Permissions interface {
	PermissionStatus(ctx context.Context, userID string) localstore.Permission
}

// Sounds is satisfied by *sound.Player.
type Sounds interface {
	PlayForCategory(ctx context.Context, userID string, category models.Category) bool
}

type Config struct {
	Icon          string
	ToastDuration time.Duration
}

// Report says which channels a notification reached.
type Report struct {
	ToastID string
	Sound   bool
	Push    bool
	Email   bool
}

// Fanout presents one freshly inserted notification on every channel the user allows.
// Do-not-disturb is not consulted here; it only gates creation.
type Fanout struct {
	prefs       Preferences
	permissions Permissions
	sounds      Sounds
	push        PushForwarder
	email       *EmailForwarder
	config      Config
	logger      logger.Logger
}

// NewFanout wires the channels. sounds, push and email may be nil.
func NewFanout(prefs Preferences, permissions Permissions, sounds Sounds, push PushForwarder, email *EmailForwarder, cfg Config, log logger.Logger) *Fanout {
	if cfg.ToastDuration <= 0 {
		cfg.ToastDuration = models.DefaultToastDuration
	}
	return &Fanout{
		prefs:       prefs,
		permissions: permissions,
		sounds:      sounds,
		push:        push,
		email:       email,
		config:      cfg,
		logger:      logger.Component(log, "delivery"),
	}
}

// Deliver runs toast, sound, push and email in that order. A failing channel is
// logged and never stops the later ones.
func (f *Fanout) Deliver(ctx context.Context, toasts *ToastQueue, n models.Notification) Report {
	var report Report

	prefs := f.preferences(ctx, n.UserID)

	if toasts != nil {
		report.ToastID = toasts.Add(models.ToastFromNotification(n, f.config.ToastDuration))
		metrics.Deliveries.WithLabelValues(ChannelToast, "delivered").Inc()
	}

	report.Sound = f.playSound(ctx, n, prefs)
	report.Push = f.forwardPush(ctx, n, prefs)
	report.Email = f.sendEmail(ctx, n, prefs)

	f.logger.Debug("notification delivered", map[string]interface{}{
		"user_id":         n.UserID,
		"notification_id": n.ID,
		"sound":           report.Sound,
		"push":            report.Push,
		"email":           report.Email,
	})
	return report
}

// preferences falls back to defaults so a preference outage never silences delivery.
func (f *Fanout) preferences(ctx context.Context, userID string) models.NotificationPreferences {
	if f.prefs == nil {
		return models.DefaultPreferences(userID)
	}
	prefs, err := f.prefs.GetPreferences(ctx, userID)
	if err != nil {
		f.logger.Warn("preferences unavailable, using defaults", map[string]interface{}{
			"user_id": userID,
			"error":   err,
		})
		return models.DefaultPreferences(userID)
	}
	return *prefs
}

func (f *Fanout) playSound(ctx context.Context, n models.Notification, prefs models.NotificationPreferences) bool {
	if f.sounds == nil || !prefs.SoundEnabled {
		metrics.Deliveries.WithLabelValues(ChannelSound, "skipped").Inc()
		return false
	}
	played := f.sounds.PlayForCategory(ctx, n.UserID, n.Category)
	metrics.Deliveries.WithLabelValues(ChannelSound, outcome(played)).Inc()
	return played
}

func (f *Fanout) forwardPush(ctx context.Context, n models.Notification, prefs models.NotificationPreferences) bool {
	if !prefs.PushNotifications {
		metrics.Deliveries.WithLabelValues(ChannelPush, "skipped").Inc()
		return false
	}
	if f.permissions != nil && f.permissions.PermissionStatus(ctx, n.UserID) != localstore.PermissionGranted {
		metrics.Deliveries.WithLabelValues(ChannelPush, "skipped").Inc()
		return false
	}
	if f.push == nil {
		f.logger.Debug("no push forwarder configured", map[string]interface{}{"user_id": n.UserID})
		metrics.Deliveries.WithLabelValues(ChannelPush, "skipped").Inc()
		return false
	}

	err := f.push.Forward(ctx, n.UserID, NewPushMessage(n, f.config.Icon))
	switch {
	case errors.Is(err, ErrNoController):
		f.logger.Info("no push controller for user", map[string]interface{}{"user_id": n.UserID})
		metrics.Deliveries.WithLabelValues(ChannelPush, "skipped").Inc()
		return false
	case err != nil:
		f.logger.Error("push forward failed", map[string]interface{}{
			"user_id": n.UserID,
			"error":   apperrors.NewPushDeliveryFailedError(ChannelPush, err),
		})
		metrics.Deliveries.WithLabelValues(ChannelPush, "failed").Inc()
		return false
	}
	metrics.Deliveries.WithLabelValues(ChannelPush, "delivered").Inc()
	return true
}

func (f *Fanout) sendEmail(ctx context.Context, n models.Notification, prefs models.NotificationPreferences) bool {
	if f.email == nil || !prefs.EmailNotifications {
		return false
	}
	sent, err := f.email.Send(ctx, n)
	if err != nil {
		f.logger.Error("email delivery failed", map[string]interface{}{
			"user_id": n.UserID,
			"error":   apperrors.NewPushDeliveryFailedError(ChannelEmail, err),
		})
		metrics.Deliveries.WithLabelValues(ChannelEmail, "failed").Inc()
		return false
	}
	metrics.Deliveries.WithLabelValues(ChannelEmail, outcome(sent)).Inc()
	return sent
}

func outcome(ok bool) string {
	if ok {
		return "delivered"
	}
	return "skipped"
}
