// internal/notifications/inbox/inbox.go
package inbox

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
)

const (
	DefaultPreviewSize  = 3
	DefaultPollInterval = 10 * time.Second
)

// Store is the repository surface the inbox drives.
type Store interface {
	List(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	GetArchived(ctx context.Context, userID string) ([]models.Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	GetUnreadPreview(ctx context.Context, userID string, n int) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID, id string)
	MarkAsUnread(ctx context.Context, userID, id string)
	MarkAllAsRead(ctx context.Context, userID string)
	Delete(ctx context.Context, userID, id string)
	ClearAll(ctx context.Context, userID string)
	Archive(ctx context.Context, userID, id string)
	Unarchive(ctx context.Context, userID, id string)
	ApplyBatch(ctx context.Context, userID string, action models.BatchAction, ids []string) error
}

type Config struct {
	ListLimit      int
	PreviewSize    int
	GroupThreshold int
}

// State is a point-in-time copy of what the inbox view shows.
type State struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	Category      models.Category       `json:"category,omitempty"`
	Search        string                `json:"search,omitempty"`
	Archived      bool                  `json:"archived"`
	Selected      []string              `json:"selected,omitempty"`
	Grouped       bool                  `json:"grouped"`
}

// Inbox is one user's inbox view. Every mutation re-queries the store so the view
// never diverges from the durable rows.
type Inbox struct {
	userID string
	store  Store
	config Config
	logger logger.Logger
	now    func() time.Time

	mu            sync.Mutex
	notifications []models.Notification
	unread        int
	category      models.Category
	search        string
	archived      bool
	selected      map[string]bool
	onChange      func(State)
}

func New(userID string, store Store, cfg Config, log logger.Logger) *Inbox {
	if cfg.PreviewSize <= 0 {
		cfg.PreviewSize = DefaultPreviewSize
	}
	if cfg.GroupThreshold <= 0 {
		cfg.GroupThreshold = DefaultGroupThreshold
	}
	return &Inbox{
		userID:   userID,
		store:    store,
		config:   cfg,
		logger:   logger.Component(log, "inbox").WithFields(map[string]interface{}{"user_id": userID}),
		now:      time.Now,
		selected: make(map[string]bool),
	}
}

// OnChange registers a callback receiving the state after every reload.
func (in *Inbox) OnChange(fn func(State)) {
	in.mu.Lock()
	in.onChange = fn
	in.mu.Unlock()
}

// Load re-queries the list for the current view and the unread count.
func (in *Inbox) Load(ctx context.Context) error {
	in.mu.Lock()
	archived := in.archived
	in.mu.Unlock()

	var (
		list []models.Notification
		err  error
	)
	if archived {
		list, err = in.store.GetArchived(ctx, in.userID)
	} else {
		list, err = in.store.List(ctx, in.userID, in.config.ListLimit)
	}
	if err != nil {
		in.logger.Error("failed to load notifications", map[string]interface{}{"error": err})
		return err
	}

	unread, err := in.store.GetUnreadCount(ctx, in.userID)
	if err != nil {
		in.logger.Warn("failed to load unread count", map[string]interface{}{"error": err})
		unread = in.UnreadCount()
	}

	in.mu.Lock()
	in.notifications = list
	in.unread = unread
	in.pruneSelectionLocked()
	state, cb := in.stateLocked(), in.onChange
	in.mu.Unlock()

	if cb != nil {
		cb(state)
	}
	return nil
}

// RefreshUnreadCount updates the badge count only. A count that differs
// from the cached one is pushed through the change callback.
func (in *Inbox) RefreshUnreadCount(ctx context.Context) (int, error) {
	n, err := in.store.GetUnreadCount(ctx, in.userID)
	if err != nil {
		return in.UnreadCount(), err
	}
	in.mu.Lock()
	changed := in.unread != n
	in.unread = n
	var (
		state State
		cb    func(State)
	)
	if changed {
		state, cb = in.stateLocked(), in.onChange
	}
	in.mu.Unlock()

	if cb != nil {
		cb(state)
	}
	return n, nil
}

func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.unread
}

// StartPolling refreshes the unread count every interval until ctx is done.
func (in *Inbox) StartPolling(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := in.RefreshUnreadCount(ctx); err != nil && ctx.Err() == nil {
					in.logger.Warn("unread count poll failed", map[string]interface{}{"error": err})
				}
			}
		}
	}()
}

// ==========================
// View filters
// ==========================

// SetCategory narrows the view. An empty category shows all.
func (in *Inbox) SetCategory(c models.Category) {
	in.mu.Lock()
	in.category = c
	in.mu.Unlock()
}

func (in *Inbox) SetSearch(q string) {
	in.mu.Lock()
	in.search = q
	in.mu.Unlock()
}

// ShowArchived switches between the active and archived views and reloads.
func (in *Inbox) ShowArchived(ctx context.Context, archived bool) error {
	in.mu.Lock()
	in.archived = archived
	in.selected = make(map[string]bool)
	in.mu.Unlock()
	return in.Load(ctx)
}

// Visible returns the loaded rows after the category, search and snooze filters.
func (in *Inbox) Visible() []models.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.visibleLocked()
}

func (in *Inbox) visibleLocked() []models.Notification {
	query := strings.ToLower(strings.TrimSpace(in.search))
	now := in.now()

	out := make([]models.Notification, 0, len(in.notifications))
	for _, n := range in.notifications {
		if !in.archived && n.IsSnoozed(now) {
			continue
		}
		if in.category != "" && n.Category != in.category && string(n.Type) != string(in.category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(n.Title), query) &&
			!strings.Contains(strings.ToLower(n.Message), query) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Groups returns category groups of the visible rows, or nil when grouping is not worthwhile.
func (in *Inbox) Groups() []Group {
	visible := in.Visible()
	if !ShouldGroup(visible, in.config.GroupThreshold) {
		return nil
	}
	return GroupByCategory(visible)
}

// Preview returns the newest unread, non-archived rows.
func (in *Inbox) Preview(ctx context.Context) ([]models.Notification, error) {
	return in.store.GetUnreadPreview(ctx, in.userID, in.config.PreviewSize)
}

func (in *Inbox) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stateLocked()
}

func (in *Inbox) stateLocked() State {
	visible := in.visibleLocked()
	return State{
		Notifications: visible,
		UnreadCount:   in.unread,
		Category:      in.category,
		Search:        in.search,
		Archived:      in.archived,
		Selected:      in.selectedLocked(),
		Grouped:       ShouldGroup(visible, in.config.GroupThreshold),
	}
}

// ==========================
// Single-row mutations
// ==========================

func (in *Inbox) MarkAsRead(ctx context.Context, id string) error {
	in.store.MarkAsRead(ctx, in.userID, id)
	return in.Load(ctx)
}

func (in *Inbox) MarkAsUnread(ctx context.Context, id string) error {
	in.store.MarkAsUnread(ctx, in.userID, id)
	return in.Load(ctx)
}

func (in *Inbox) MarkAllAsRead(ctx context.Context) error {
	in.store.MarkAllAsRead(ctx, in.userID)
	return in.Load(ctx)
}

func (in *Inbox) Delete(ctx context.Context, id string) error {
	in.store.Delete(ctx, in.userID, id)
	return in.Load(ctx)
}

func (in *Inbox) ClearAll(ctx context.Context) error {
	in.store.ClearAll(ctx, in.userID)
	return in.Load(ctx)
}

func (in *Inbox) Archive(ctx context.Context, id string) error {
	in.store.Archive(ctx, in.userID, id)
	return in.Load(ctx)
}

func (in *Inbox) Unarchive(ctx context.Context, id string) error {
	in.store.Unarchive(ctx, in.userID, id)
	return in.Load(ctx)
}

// ==========================
// Selection and batch actions
// ==========================

func (in *Inbox) ToggleSelect(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.selected[id] {
		delete(in.selected, id)
	} else {
		in.selected[id] = true
	}
}

// SelectAll selects every visible row, or clears the selection when all are already selected.
func (in *Inbox) SelectAll() {
	in.mu.Lock()
	defer in.mu.Unlock()

	visible := in.visibleLocked()
	if len(in.selected) == len(visible) {
		in.selected = make(map[string]bool)
		return
	}
	in.selected = make(map[string]bool, len(visible))
	for _, n := range visible {
		in.selected[n.ID] = true
	}
}

func (in *Inbox) Selected() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.selectedLocked()
}

// ApplyToSelection runs action over the selection, clears it and reloads.
// An empty selection is a no-op.
func (in *Inbox) ApplyToSelection(ctx context.Context, action models.BatchAction) error {
	in.mu.Lock()
	ids := in.selectedLocked()
	in.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	if err := in.store.ApplyBatch(ctx, in.userID, action, ids); err != nil {
		return err
	}

	in.mu.Lock()
	in.selected = make(map[string]bool)
	in.mu.Unlock()
	return in.Load(ctx)
}

func (in *Inbox) selectedLocked() []string {
	ids := make([]string, 0, len(in.selected))
	for id := range in.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// pruneSelectionLocked drops selected ids no longer loaded.
func (in *Inbox) pruneSelectionLocked() {
	if len(in.selected) == 0 {
		return
	}
	loaded := make(map[string]bool, len(in.notifications))
	for _, n := range in.notifications {
		loaded[n.ID] = true
	}
	for id := range in.selected {
		if !loaded[id] {
			delete(in.selected, id)
		}
	}
}
