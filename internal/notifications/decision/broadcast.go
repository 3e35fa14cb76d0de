// internal/notifications/decision/broadcast.go
package decision

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/metrics"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/localstore"
)

// NewsKind selects the title and message bank of a broadcast.
type NewsKind string

const (
	NewsAppUpdate    NewsKind = "appUpdate"
	NewsAnnouncement NewsKind = "announcement"
)

// MaxNewsMessageLength caps custom broadcast text, in characters.
const MaxNewsMessageLength = 500

func ParseNewsKind(s string) (NewsKind, error) {
	k := NewsKind(s)
	if !k.Valid() {
		return "", apperrors.NewInvalidBroadcastError(fmt.Sprintf("unknown news kind %q", s))
	}
	return k, nil
}

func (k NewsKind) Valid() bool {
	return k == NewsAppUpdate || k == NewsAnnouncement
}

func validateNews(kind NewsKind, message string) error {
	if !kind.Valid() {
		return apperrors.NewInvalidBroadcastError(fmt.Sprintf("unknown news kind %q", kind))
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(message)); n > MaxNewsMessageLength {
		return apperrors.NewInvalidBroadcastError(fmt.Sprintf("message is %d characters, limit is %d", n, MaxNewsMessageLength))
	}
	return nil
}

func (k NewsKind) title() string {
	if k == NewsAppUpdate {
		return TitleAppUpdate
	}
	return TitleAnnouncement
}

func (k NewsKind) bank() []string {
	if k == NewsAppUpdate {
		return AppUpdateMessages
	}
	return AnnouncementMessages
}

func (k NewsKind) priority() models.Priority {
	if k == NewsAnnouncement {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

// BroadcastResult summarises one fan-out. Skipped users are not failures.
type BroadcastResult struct {
	Kind        NewsKind `json:"kind"`
	Attempted   int      `json:"attempted"`
	Delivered   int      `json:"delivered"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	FailedUsers []string `json:"failed_users,omitempty"`
	Errors      error    `json:"-"`
}

// BroadcastNews inserts one announcement row per eligible user. Custom text
// longer than MaxNewsMessageLength is rejected before any row is written. A user's
// failure never stops the loop; failures accumulate in result.Errors and the
// same BatchError is returned. Listing users failing is the only early exit.
func (e *Engine) BroadcastNews(ctx context.Context, kind NewsKind, message string) (*BroadcastResult, error) {
	if err := validateNews(kind, message); err != nil {
		return nil, err
	}

	ctx, span := e.obs.StartSpan(ctx, "decision.broadcast")
	defer span.End()

	users, err := e.directory.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("broadcast %s: list users: %w", kind, err)
	}

	result := &BroadcastResult{Kind: kind}
	batch := apperrors.NewBatchError(len(users))

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			batch.Add(u.ID, err)
			result.Failed++
			result.FailedUsers = append(result.FailedUsers, u.ID)
			continue
		}
		result.Attempted++

		n, err := e.sendNews(ctx, u.ID, kind, message)
		switch {
		case err != nil:
			batch.Add(u.ID, err)
			result.Failed++
			result.FailedUsers = append(result.FailedUsers, u.ID)
			metrics.BroadcastResults.WithLabelValues(string(kind), "failed").Inc()
		case n == nil:
			result.Skipped++
			metrics.BroadcastResults.WithLabelValues(string(kind), "skipped").Inc()
		default:
			result.Delivered++
			metrics.BroadcastResults.WithLabelValues(string(kind), "delivered").Inc()
		}
	}

	result.Errors = batch.ErrOrNil()
	fields := map[string]interface{}{
		"kind":      string(kind),
		"users":     len(users),
		"delivered": result.Delivered,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}
	if result.Errors != nil {
		fields["error"] = result.Errors
		e.logger.Warn("broadcast finished with failures", fields)
	} else {
		e.logger.Info("broadcast finished", fields)
	}

	return result, result.Errors
}

// SendAppUpdateNotification broadcasts an app update. An empty message picks from the bank.
func (e *Engine) SendAppUpdateNotification(ctx context.Context, message string) (*BroadcastResult, error) {
	return e.BroadcastNews(ctx, NewsAppUpdate, message)
}

// SendSystemAnnouncement broadcasts an operator announcement. message is required.
func (e *Engine) SendSystemAnnouncement(ctx context.Context, message string) (*BroadcastResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.NewInvalidBroadcastError("announcement message is required")
	}
	return e.BroadcastNews(ctx, NewsAnnouncement, message)
}

// SendNewsToUser runs the broadcast rules for a single user. A nil row with a
// nil error means the user was skipped.
func (e *Engine) SendNewsToUser(ctx context.Context, userID string, kind NewsKind, message string) (*models.Notification, error) {
	if err := validateNews(kind, message); err != nil {
		return nil, err
	}
	return e.sendNews(ctx, userID, kind, message)
}

func (e *Engine) sendNews(ctx context.Context, userID string, kind NewsKind, message string) (*models.Notification, error) {
	event := "News:" + string(kind)

	if e.local != nil && !e.local.LegacyEnabled(ctx, userID, localstore.LegacyNews) {
		e.suppress(userID, event, ReasonLegacyDisabled)
		return nil, nil
	}
	if reason := e.gate(ctx, userID, models.CategoryAnnouncement); reason != "" {
		e.suppress(userID, event, reason)
		return nil, nil
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = e.selector.Pick(kind.bank())
	}

	return e.create(ctx, userID, models.NewNotification{
		Type:     models.TypeNews,
		Category: models.CategoryAnnouncement,
		Priority: kind.priority(),
		Title:    kind.title(),
		Message:  message,
		Metadata: map[string]interface{}{"news_kind": string(kind)},
	})
}

// SendTestNotification writes a system notification that bypasses every gate.
func (e *Engine) SendTestNotification(ctx context.Context, userID string) (*models.Notification, error) {
	return e.create(ctx, userID, models.NewNotification{
		Type:     models.TypeSystem,
		Category: models.CategorySystem,
		Priority: models.PriorityLow,
		Title:    TitleTest,
		Message:  "If you can read this, notifications are working. ✅",
		Metadata: map[string]interface{}{"test": true},
	})
}
