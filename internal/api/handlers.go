// internal/api/handlers.go
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/decision"
	"league-notifications/internal/notifications/inbox"
	"league-notifications/internal/notifications/localstore"
	"league-notifications/internal/notifications/sound"

	"github.com/go-chi/chi/v5"
)

// ==========================
// Notifications
// ==========================

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	filter, err := parseFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	rows, err := s.notifications.GetFiltered(r.Context(), userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": rows, "count": len(rows)})
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	var f models.Filter

	if v := q.Get("category"); v != "" {
		c := models.Category(v)
		if !c.Valid() {
			return f, errors.New("unknown category " + strconv.Quote(v))
		}
		f.Category = &c
	}
	if v := q.Get("priority"); v != "" {
		p := models.Priority(v)
		if !p.Valid() {
			return f, errors.New("unknown priority " + strconv.Quote(v))
		}
		f.Priority = &p
	}
	for name, dst := range map[string]**bool{"read": &f.Read, "archived": &f.Archived} {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return f, errors.New(name + " must be a boolean")
			}
			*dst = &b
		}
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, errors.New(name + " must be an RFC3339 timestamp")
			}
			*dst = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	f.Search = q.Get("search")
	return f, nil
}

func (s *Server) getNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.notifications.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error": map[string]string{"code": "NOT_FOUND", "message": "notification not found"},
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.notifications.GetUnreadCount(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	size := s.config.PreviewSize
	if v := r.URL.Query().Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "n must be a positive integer")
			return
		}
		size = n
	}

	rows, err := s.notifications.GetUnreadPreview(r.Context(), chi.URLParam(r, "userID"), size)
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": rows})
}

type groupView struct {
	inbox.Group
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (s *Server) groups(w http.ResponseWriter, r *http.Request) {
	rows, err := s.notifications.GetFiltered(r.Context(), chi.URLParam(r, "userID"), models.Filter{})
	if err != nil {
		writeError(w, err)
		return
	}

	var groups []inbox.Group
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "category":
		groups = inbox.GroupByCategory(rows)
	case "similar":
		groups = inbox.GroupSimilar(rows)
	default:
		writeBadRequest(w, "mode must be category or similar")
		return
	}

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{Group: g, Title: inbox.GroupTitle(g), Summary: inbox.GroupSummary(g)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"groups":       views,
		"should_group": inbox.ShouldGroup(rows, s.config.GroupThreshold),
	})
}

// mutated finishes a fire-and-forget inbox mutation. Store failures are logged there.
func (s *Server) mutated(w http.ResponseWriter, r *http.Request, cue sound.Cue) {
	userID := chi.URLParam(r, "userID")
	s.refresh(r.Context(), userID)
	if cue != "" {
		s.cue(r.Context(), userID, cue)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	s.notifications.MarkAsRead(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	s.mutated(w, r, sound.CueMarkRead)
}

func (s *Server) markUnread(w http.ResponseWriter, r *http.Request) {
	s.notifications.MarkAsUnread(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	s.mutated(w, r, "")
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	s.notifications.MarkAllAsRead(r.Context(), chi.URLParam(r, "userID"))
	s.mutated(w, r, sound.CueMarkRead)
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	s.notifications.Archive(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	s.mutated(w, r, "")
}

func (s *Server) unarchive(w http.ResponseWriter, r *http.Request) {
	s.notifications.Unarchive(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	s.mutated(w, r, "")
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	s.notifications.Delete(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	s.mutated(w, r, sound.CueDelete)
}

func (s *Server) clearAll(w http.ResponseWriter, r *http.Request) {
	s.notifications.ClearAll(r.Context(), chi.URLParam(r, "userID"))
	s.mutated(w, r, sound.CueDelete)
}

type snoozeRequest struct {
	Until   *time.Time `json:"until,omitempty"`
	Minutes int        `json:"minutes,omitempty"`
}

func (s *Server) snooze(w http.ResponseWriter, r *http.Request) {
	var req snoozeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid snooze body: "+err.Error())
		return
	}

	var until time.Time
	switch {
	case req.Until != nil:
		until = *req.Until
	case req.Minutes > 0:
		until = time.Now().Add(time.Duration(req.Minutes) * time.Minute)
	default:
		writeBadRequest(w, "until or minutes is required")
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := s.notifications.Snooze(r.Context(), userID, chi.URLParam(r, "id"), until); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.refresh(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]time.Time{"snoozed_until": until})
}

type batchRequest struct {
	Action models.BatchAction `json:"action"`
	IDs    []string           `json:"ids"`
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid batch body: "+err.Error())
		return
	}
	if !req.Action.Valid() {
		writeBadRequest(w, "unknown batch action "+strconv.Quote(string(req.Action)))
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := s.notifications.ApplyBatch(r.Context(), userID, req.Action, req.IDs); err != nil {
		writeError(w, err)
		return
	}
	s.refresh(r.Context(), userID)
	switch req.Action {
	case models.BatchMarkRead:
		s.cue(r.Context(), userID, sound.CueMarkRead)
	case models.BatchDelete:
		s.cue(r.Context(), userID, sound.CueDelete)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"action": req.Action, "count": len(req.IDs)})
}

func (s *Server) sendTest(w http.ResponseWriter, r *http.Request) {
	n, err := s.broadcaster.SendTestNotification(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if n == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "suppressed"})
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// ==========================
// Preferences
// ==========================

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.prefs.GetPreferences(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var update models.PreferencesUpdate
	if err := decodeBody(r, &update); err != nil {
		writeBadRequest(w, "invalid preferences body: "+err.Error())
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := s.prefs.UpdatePreferences(r.Context(), userID, update); err != nil {
		writeError(w, err)
		return
	}
	s.getPreferences(w, r)
}

func (s *Server) resetPreferences(w http.ResponseWriter, r *http.Request) {
	if err := s.prefs.ResetToDefaults(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeError(w, err)
		return
	}
	s.getPreferences(w, r)
}

// ==========================
// Sound & Permission
// ==========================

type soundSettings struct {
	Muted  *bool    `json:"muted,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

func (s *Server) getSound(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"muted":  s.player.IsMuted(r.Context(), userID),
		"volume": s.player.Volume(r.Context(), userID),
	})
}

func (s *Server) updateSound(w http.ResponseWriter, r *http.Request) {
	var req soundSettings
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid sound body: "+err.Error())
		return
	}

	userID := chi.URLParam(r, "userID")
	if req.Muted != nil {
		if err := s.player.SetMuted(r.Context(), userID, *req.Muted); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Volume != nil {
		if _, err := s.player.SetVolume(r.Context(), userID, *req.Volume); err != nil {
			writeError(w, err)
			return
		}
	}
	s.getSound(w, r)
}

func (s *Server) testSound(w http.ResponseWriter, r *http.Request) {
	played := s.player.TestSound(r.Context(), chi.URLParam(r, "userID"))
	writeJSON(w, http.StatusOK, map[string]bool{"played": played})
}

type permissionRequest struct {
	Status localstore.Permission `json:"status"`
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    s.local.PermissionStatus(r.Context(), userID),
		"requested": s.local.PermissionRequested(r.Context(), userID),
	})
}

// updatePermission records the outcome of a platform permission prompt.
func (s *Server) updatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid permission body: "+err.Error())
		return
	}
	if !req.Status.Valid() {
		writeBadRequest(w, "status must be granted, denied or default")
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := s.local.SetPermissionStatus(r.Context(), userID, req.Status); err != nil {
		writeError(w, err)
		return
	}
	if err := s.local.MarkPermissionRequested(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	s.getPermission(w, r)
}

type pushEndpointRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) registerPushEndpoint(w http.ResponseWriter, r *http.Request) {
	var req pushEndpointRequest
	if err := decodeBody(r, &req); err != nil || req.Endpoint == "" {
		writeBadRequest(w, "endpoint is required")
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := s.local.Set(r.Context(), userID, s.config.PushEndpointKey, req.Endpoint); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("push endpoint registered", map[string]interface{}{"user_id": userID})
	w.WriteHeader(http.StatusNoContent)
}

// ==========================
// Broadcast
// ==========================

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) broadcastAppUpdate(w http.ResponseWriter, r *http.Request) {
	s.broadcast(w, r, s.broadcaster.SendAppUpdateNotification)
}

func (s *Server) broadcastAnnouncement(w http.ResponseWriter, r *http.Request) {
	s.broadcast(w, r, s.broadcaster.SendSystemAnnouncement)
}

type broadcastFunc func(ctx context.Context, message string) (*decision.BroadcastResult, error)

// broadcast answers 207 with the result body when some users failed.
func (s *Server) broadcast(w http.ResponseWriter, r *http.Request, send broadcastFunc) {
	var req broadcastRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeBadRequest(w, "invalid broadcast body: "+err.Error())
			return
		}
	}

	result, err := send(r.Context(), req.Message)
	if result == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusMultiStatus, map[string]interface{}{
			"result": result,
			"error":  apperrors.Normalize(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}
