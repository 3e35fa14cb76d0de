// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/decision"
	"league-notifications/internal/notifications/localstore"
	"league-notifications/internal/notifications/session"
	"league-notifications/internal/notifications/sound"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NotificationStore is satisfied by *repository.Repository.
type NotificationStore interface {
	GetFiltered(ctx context.Context, userID string, f models.Filter) ([]models.Notification, error)
	Get(ctx context.Context, userID, id string) (*models.Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	GetUnreadPreview(ctx context.Context, userID string, n int) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID, id string)
	MarkAsUnread(ctx context.Context, userID, id string)
	MarkAllAsRead(ctx context.Context, userID string)
	Archive(ctx context.Context, userID, id string)
	Unarchive(ctx context.Context, userID, id string)
	Delete(ctx context.Context, userID, id string)
	ClearAll(ctx context.Context, userID string)
	Snooze(ctx context.Context, userID, id string, until time.Time) error
	ApplyBatch(ctx context.Context, userID string, action models.BatchAction, ids []string) error
}

// PreferenceStore is satisfied by *preferences.Store.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error)
	UpdatePreferences(ctx context.Context, userID string, update models.PreferencesUpdate) error
	ResetToDefaults(ctx context.Context, userID string) error
}

// Broadcaster is satisfied by *decision.Engine.
type Broadcaster interface {
	SendAppUpdateNotification(ctx context.Context, message string) (*decision.BroadcastResult, error)
	SendSystemAnnouncement(ctx context.Context, message string) (*decision.BroadcastResult, error)
	SendTestNotification(ctx context.Context, userID string) (*models.Notification, error)
}

// Sessions is satisfied by *session.Manager.
type Sessions interface {
	Attach(ctx context.Context, userID string) (*session.Session, error)
	Detach(ctx context.Context, userID string)
	Get(userID string) (*session.Session, bool)
}

// LocalSettings is satisfied by *localstore.Store.
type LocalSettings interface {
	Set(ctx context.Context, userID, name, value string) error
	PermissionStatus(ctx context.Context, userID string) localstore.Permission
	SetPermissionStatus(ctx context.Context, userID string, p localstore.Permission) error
	PermissionRequested(ctx context.Context, userID string) bool
	MarkPermissionRequested(ctx context.Context, userID string) error
}

type Config struct {
	AllowedOrigins []string
	PreviewSize    int
	GroupThreshold int
	// PushEndpointKey is the local settings key that holds a user's push endpoint.
	PushEndpointKey string
}

type Deps struct {
	Notifications NotificationStore
	Preferences   PreferenceStore
	Broadcaster   Broadcaster
	Sessions      Sessions
	Hub           *Hub
	Player        *sound.Player
	Local         LocalSettings
	// Ready reports whether the backing stores are reachable.
	Ready func(ctx context.Context) error
}

type Server struct {
	config        Config
	notifications NotificationStore
	prefs         PreferenceStore
	broadcaster   Broadcaster
	sessions      Sessions
	hub           *Hub
	player        *sound.Player
	local         LocalSettings
	ready         func(ctx context.Context) error
	logger        logger.Logger
}

func NewServer(cfg Config, deps Deps, log logger.Logger) *Server {
	if cfg.PreviewSize <= 0 {
		cfg.PreviewSize = 3
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(log)
	}
	return &Server{
		config:        cfg,
		notifications: deps.Notifications,
		prefs:         deps.Preferences,
		broadcaster:   deps.Broadcaster,
		sessions:      deps.Sessions,
		hub:           hub,
		player:        deps.Player,
		local:         deps.Local,
		ready:         deps.Ready,
		logger:        logger.Component(log, "api"),
	}
}

// Router builds the HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)
	r.Get("/ready", s.readiness)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.listNotifications)
				r.Delete("/", s.clearAll)
				r.Get("/unread-count", s.unreadCount)
				r.Get("/preview", s.preview)
				r.Get("/groups", s.groups)
				r.Post("/read-all", s.markAllRead)
				r.Post("/batch", s.batch)
				r.Post("/test", s.sendTest)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getNotification)
					r.Delete("/", s.deleteNotification)
					r.Post("/read", s.markRead)
					r.Post("/unread", s.markUnread)
					r.Post("/archive", s.archive)
					r.Post("/unarchive", s.unarchive)
					r.Post("/snooze", s.snooze)
				})
			})

			r.Get("/preferences", s.getPreferences)
			r.Patch("/preferences", s.updatePreferences)
			r.Post("/preferences/reset", s.resetPreferences)

			r.Get("/sound", s.getSound)
			r.Put("/sound", s.updateSound)
			r.Post("/sound/test", s.testSound)

			r.Get("/permission", s.getPermission)
			r.Put("/permission", s.updatePermission)
			r.Put("/push-endpoint", s.registerPushEndpoint)
		})

		r.Post("/broadcast/app-update", s.broadcastAppUpdate)
		r.Post("/broadcast/announcement", s.broadcastAnnouncement)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// refresh reloads the live inbox of userID so attached sockets see REST mutations.
func (s *Server) refresh(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	if sess, ok := s.sessions.Get(userID); ok {
		if err := sess.Inbox().Load(ctx); err != nil {
			s.logger.Debug("inbox refresh failed", map[string]interface{}{"user_id": userID, "error": err})
		}
	}
}

func (s *Server) cue(ctx context.Context, userID string, c sound.Cue) {
	if s.player != nil {
		s.player.Play(ctx, userID, c)
	}
}
