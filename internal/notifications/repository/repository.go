// internal/notifications/repository/repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/common/metrics"
	"league-notifications/internal/models"

	"github.com/lib/pq"
)

const DefaultLimit = 50

const columns = `id, user_id, type, category, priority, title, message, read, archived,
	snoozed_until, metadata, action_url, action_label, created_at`

// Repository is the durable inbox. Every statement is scoped by user_id.
//
// Mutations log and swallow transport errors. Add and the queries return them.
type Repository struct {
	db     *sql.DB
	limit  int
	logger logger.Logger
	now    func() time.Time
}

func New(db *sql.DB, limit int, log logger.Logger) *Repository {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Repository{
		db:     db,
		limit:  limit,
		logger: logger.Component(log, "repository"),
		now:    time.Now,
	}
}

// ==========================
// Create
// ==========================

// Add inserts one unread, unarchived row. No dedup check is made.
func (r *Repository) Add(ctx context.Context, userID string, in models.NewNotification) (*models.Notification, error) {
	in = in.Normalize()

	metadata := []byte("{}")
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, apperrors.NewNotificationInsertFailedError(userID, err)
		}
		metadata = raw
	}

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, type, category, priority, title, message, metadata, action_url, action_label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+columns,
		userID, string(in.Type), string(in.Category), string(in.Priority), in.Title, in.Message,
		string(metadata), nullString(in.ActionURL), nullString(in.ActionLabel),
	)

	n, err := scanNotification(row)
	if err != nil {
		metrics.NotificationInsertFailures.Inc()
		return nil, apperrors.NewNotificationInsertFailedError(userID, err)
	}
	return n, nil
}

// ==========================
// Queries
// ==========================

// List returns the newest non-archived rows.
func (r *Repository) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return r.GetFiltered(ctx, userID, models.Filter{Limit: limit})
}

// Search matches query case-insensitively against title and message.
func (r *Repository) Search(ctx context.Context, userID, query string) ([]models.Notification, error) {
	return r.GetFiltered(ctx, userID, models.Filter{Search: query})
}

func (r *Repository) GetByCategory(ctx context.Context, userID string, category models.Category) ([]models.Notification, error) {
	return r.GetFiltered(ctx, userID, models.Filter{Category: &category})
}

func (r *Repository) GetByPriority(ctx context.Context, userID string, priority models.Priority) ([]models.Notification, error) {
	return r.GetFiltered(ctx, userID, models.Filter{Priority: &priority})
}

func (r *Repository) GetArchived(ctx context.Context, userID string) ([]models.Notification, error) {
	archived := true
	return r.GetFiltered(ctx, userID, models.Filter{Archived: &archived})
}

// GetUnreadPreview returns the newest n unread, non-archived rows.
func (r *Repository) GetUnreadPreview(ctx context.Context, userID string, n int) ([]models.Notification, error) {
	unread := false
	return r.GetFiltered(ctx, userID, models.Filter{Read: &unread, Limit: n})
}

// GetFiltered applies f. Archived rows are excluded unless f.Archived is set.
func (r *Repository) GetFiltered(ctx context.Context, userID string, f models.Filter) ([]models.Notification, error) {
	query, args := buildFilterQuery(userID, f, r.limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewRepositoryOperationFailedError("query", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperrors.NewRepositoryOperationFailedError("scan", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewRepositoryOperationFailedError("query", err)
	}
	return out, nil
}

func buildFilterQuery(userID string, f models.Filter, defaultLimit int) (string, []interface{}) {
	conds := []string{"user_id = $1"}
	args := []interface{}{userID}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	archived := false
	if f.Archived != nil {
		archived = *f.Archived
	}
	add("archived = $%d", archived)

	if f.Category != nil {
		add("category = $%d", string(*f.Category))
	}
	if f.Priority != nil {
		add("priority = $%d", string(*f.Priority))
	}
	if f.Read != nil {
		add("read = $%d", *f.Read)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR message ILIKE $%d)", len(args), len(args)))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		columns, strings.Join(conds, " AND "), len(args))
	return query, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Get returns a single row owned by userID.
func (r *Repository) Get(ctx context.Context, userID, id string) (*models.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM notifications WHERE user_id = $1 AND id = $2`, userID, id))
	if err != nil {
		return nil, apperrors.NewRepositoryOperationFailedError("get", err)
	}
	return n, nil
}

// GetUnreadCount counts unread rows, archived ones included.
func (r *Repository) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false`, userID,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.NewRepositoryOperationFailedError("unread_count", err)
	}
	return count, nil
}

// ==========================
// Mutations
// ==========================

func (r *Repository) MarkAsRead(ctx context.Context, userID, id string) {
	r.exec(ctx, "mark_read", `UPDATE notifications SET read = true WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *Repository) MarkAsUnread(ctx context.Context, userID, id string) {
	r.exec(ctx, "mark_unread", `UPDATE notifications SET read = false WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *Repository) MarkAllAsRead(ctx context.Context, userID string) {
	r.exec(ctx, "mark_all_read", `UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`, userID)
}

func (r *Repository) Delete(ctx context.Context, userID, id string) {
	r.exec(ctx, "delete", `DELETE FROM notifications WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *Repository) ClearAll(ctx context.Context, userID string) {
	r.exec(ctx, "clear_all", `DELETE FROM notifications WHERE user_id = $1`, userID)
}

func (r *Repository) Archive(ctx context.Context, userID, id string) {
	r.exec(ctx, "archive", `UPDATE notifications SET archived = true WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *Repository) Unarchive(ctx context.Context, userID, id string) {
	r.exec(ctx, "unarchive", `UPDATE notifications SET archived = false WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *Repository) BatchMarkAsRead(ctx context.Context, userID string, ids []string) {
	r.batch(ctx, "batch_mark_read", `UPDATE notifications SET read = true WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
}

func (r *Repository) BatchMarkAsUnread(ctx context.Context, userID string, ids []string) {
	r.batch(ctx, "batch_mark_unread", `UPDATE notifications SET read = false WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
}

func (r *Repository) BatchDelete(ctx context.Context, userID string, ids []string) {
	r.batch(ctx, "batch_delete", `DELETE FROM notifications WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
}

func (r *Repository) BatchArchive(ctx context.Context, userID string, ids []string) {
	r.batch(ctx, "batch_archive", `UPDATE notifications SET archived = true WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
}

func (r *Repository) BatchUnarchive(ctx context.Context, userID string, ids []string) {
	r.batch(ctx, "batch_unarchive", `UPDATE notifications SET archived = false WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
}

// ApplyBatch dispatches a batch action by name.
func (r *Repository) ApplyBatch(ctx context.Context, userID string, action models.BatchAction, ids []string) error {
	switch action {
	case models.BatchMarkRead:
		r.BatchMarkAsRead(ctx, userID, ids)
	case models.BatchMarkUnread:
		r.BatchMarkAsUnread(ctx, userID, ids)
	case models.BatchDelete:
		r.BatchDelete(ctx, userID, ids)
	case models.BatchArchive:
		r.BatchArchive(ctx, userID, ids)
	case models.BatchUnarchive:
		r.BatchUnarchive(ctx, userID, ids)
	default:
		return fmt.Errorf("unknown batch action %q", action)
	}
	return nil
}

// Snooze hides the row from active views until until. It must be in the future.
func (r *Repository) Snooze(ctx context.Context, userID, id string, until time.Time) error {
	if !until.After(r.now()) {
		return fmt.Errorf("snooze time %s is not in the future", until.Format(time.RFC3339))
	}
	r.exec(ctx, "snooze", `UPDATE notifications SET snoozed_until = $3 WHERE user_id = $1 AND id = $2`, userID, id, until)
	return nil
}

func (r *Repository) batch(ctx context.Context, op, query, userID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	r.exec(ctx, op, query, userID, pq.Array(ids))
}

func (r *Repository) exec(ctx context.Context, op, query string, args ...interface{}) {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		metrics.RepositoryFailures.WithLabelValues(op).Inc()
		r.logger.Error("notification repository operation failed", map[string]interface{}{
			"operation": op,
			"error":     apperrors.NewRepositoryOperationFailedError(op, err),
		})
	}
}

// ==========================
// Scanning
// ==========================

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(s scanner) (*models.Notification, error) {
	var (
		n           models.Notification
		typ         string
		category    string
		priority    string
		snoozed     sql.NullTime
		metadata    []byte
		actionURL   sql.NullString
		actionLabel sql.NullString
	)
	if err := s.Scan(
		&n.ID, &n.UserID, &typ, &category, &priority, &n.Title, &n.Message, &n.Read, &n.Archived,
		&snoozed, &metadata, &actionURL, &actionLabel, &n.CreatedAt,
	); err != nil {
		return nil, err
	}

	n.Type = models.NotificationType(typ)
	n.Category = models.Category(category)
	n.Priority = models.Priority(priority)
	if snoozed.Valid {
		t := snoozed.Time
		n.SnoozedUntil = &t
	}
	if actionURL.Valid {
		n.ActionURL = &actionURL.String
	}
	if actionLabel.Valid {
		n.ActionLabel = &actionLabel.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
