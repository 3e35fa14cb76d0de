// internal/notifications/localstore/store.go
package localstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"league-notifications/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// Keys of the client-local settings.
const (
	KeySoundMuted          = "notification_sounds_muted"
	KeySoundVolume         = "notification_sounds_volume"
	KeyPermissionStatus    = "notification_permission_status"
	KeyPermissionRequested = "notification_permission_requested"
)

const DefaultVolume = 0.5

// Permission mirrors the platform notification permission states.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

func (p Permission) Valid() bool {
	return p == PermissionGranted || p == PermissionDenied || p == PermissionDefault
}

// LegacyKind names a legacy per-kind enable flag.
type LegacyKind string

const (
	LegacyMatches LegacyKind = "matches"
	LegacyLeagues LegacyKind = "leagues"
	LegacyNews    LegacyKind = "news"
)

// Store keeps settings that belong to one user's device rather than to the
// durable preference row. Values are namespaced per user.
type Store struct {
	client redis.Cmdable
	logger logger.Logger
}

func New(client redis.Cmdable, log logger.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.Component(log, "localstore"),
	}
}

func key(userID, name string) string {
	return fmt.Sprintf("local:%s:%s", userID, name)
}

// Get returns the raw value and whether it was present.
func (s *Store) Get(ctx context.Context, userID, name string) (string, bool, error) {
	val, err := s.client.Get(ctx, key(userID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstore get %s: %w", name, err)
	}
	return val, true, nil
}

// Set stores value without expiry.
func (s *Store) Set(ctx context.Context, userID, name, value string) error {
	if err := s.client.Set(ctx, key(userID, name), value, 0).Err(); err != nil {
		return fmt.Errorf("localstore set %s: %w", name, err)
	}
	return nil
}

// SoundMuted reports the mute flag. Read failures count as not muted.
func (s *Store) SoundMuted(ctx context.Context, userID string) bool {
	val, _, err := s.Get(ctx, userID, KeySoundMuted)
	if err != nil {
		s.logger.Warn("failed to read mute flag", map[string]interface{}{"userId": userID, "error": err})
		return false
	}
	return val == "true"
}

func (s *Store) SetSoundMuted(ctx context.Context, userID string, muted bool) error {
	return s.Set(ctx, userID, KeySoundMuted, strconv.FormatBool(muted))
}

// SoundVolume returns the stored volume or DefaultVolume.
func (s *Store) SoundVolume(ctx context.Context, userID string) float64 {
	val, ok, err := s.Get(ctx, userID, KeySoundVolume)
	if err != nil || !ok {
		return DefaultVolume
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return DefaultVolume
	}
	return v
}

func (s *Store) SetSoundVolume(ctx context.Context, userID string, volume float64) error {
	return s.Set(ctx, userID, KeySoundVolume, strconv.FormatFloat(volume, 'f', -1, 64))
}

// PermissionStatus returns the recorded platform permission, "default" when unknown.
func (s *Store) PermissionStatus(ctx context.Context, userID string) Permission {
	val, ok, err := s.Get(ctx, userID, KeyPermissionStatus)
	if err != nil || !ok || !Permission(val).Valid() {
		return PermissionDefault
	}
	return Permission(val)
}

func (s *Store) SetPermissionStatus(ctx context.Context, userID string, p Permission) error {
	if !p.Valid() {
		return fmt.Errorf("invalid permission %q", p)
	}
	return s.Set(ctx, userID, KeyPermissionStatus, string(p))
}

// PermissionRequested reports whether the permission dialog has been shown.
func (s *Store) PermissionRequested(ctx context.Context, userID string) bool {
	val, _, err := s.Get(ctx, userID, KeyPermissionRequested)
	return err == nil && val == "true"
}

func (s *Store) MarkPermissionRequested(ctx context.Context, userID string) error {
	return s.Set(ctx, userID, KeyPermissionRequested, "true")
}

func legacyKey(kind LegacyKind, userID string) string {
	return fmt.Sprintf("notifications_%s_%s", kind, userID)
}

// LegacyEnabled reads a legacy enable flag. Only an explicit "false" disables;
// missing values and read errors count as enabled.
func (s *Store) LegacyEnabled(ctx context.Context, userID string, kind LegacyKind) bool {
	val, _, err := s.Get(ctx, userID, legacyKey(kind, userID))
	if err != nil {
		s.logger.Warn("failed to read legacy flag", map[string]interface{}{
			"userId": userID,
			"kind":   string(kind),
			"error":  err,
		})
		return true
	}
	return val != "false"
}

func (s *Store) SetLegacyEnabled(ctx context.Context, userID string, kind LegacyKind, enabled bool) error {
	return s.Set(ctx, userID, legacyKey(kind, userID), strconv.FormatBool(enabled))
}

// IncrementMatchCount bumps the completed-match counter for (league, user).
func (s *Store) IncrementMatchCount(ctx context.Context, userID, leagueID string) (int64, error) {
	name := fmt.Sprintf("match_count_%s_%s", leagueID, userID)
	n, err := s.client.Incr(ctx, key(userID, name)).Result()
	if err != nil {
		return 0, fmt.Errorf("localstore incr %s: %w", name, err)
	}
	return n, nil
}
