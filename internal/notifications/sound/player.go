// internal/notifications/sound/player.go
package sound

import (
	"context"
	"fmt"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
)

// Cue names one audio cue.
type Cue string

const (
	CueNewNotification Cue = "new_notification"
	CueMarkRead        Cue = "mark_read"
	CueDelete          Cue = "delete"
	CueAchievement     Cue = "achievement"
)

var cueFiles = map[Cue]string{
	CueNewNotification: "/sounds/notification.mp3",
	CueMarkRead:        "/sounds/mark-read.mp3",
	CueDelete:          "/sounds/delete.mp3",
	CueAchievement:     "/sounds/achievement.mp3",
}

// URL returns the asset path of the cue, empty for unknown cues.
func (c Cue) URL() string {
	return cueFiles[c]
}

// CueFor maps a category onto its cue.
func CueFor(category models.Category) Cue {
	if category == models.CategoryAchievement {
		return CueAchievement
	}
	return CueNewNotification
}

// Playback is the instruction sent to a client.
type Playback struct {
	Cue    Cue     `json:"cue"`
	URL    string  `json:"url"`
	Volume float64 `json:"volume"`
	Test   bool    `json:"test,omitempty"`
}

// CueSink delivers a playback instruction to the user's clients.
type CueSink interface {
	PlayCue(ctx context.Context, userID string, p Playback) error
}

// Settings is the device-local mute and volume storage.
type Settings interface {
	SoundMuted(ctx context.Context, userID string) bool
	SetSoundMuted(ctx context.Context, userID string, muted bool) error
	SoundVolume(ctx context.Context, userID string) float64
	SetSoundVolume(ctx context.Context, userID string, volume float64) error
}

type Player struct {
	settings Settings
	sink     CueSink
	logger   logger.Logger
}

func NewPlayer(settings Settings, sink CueSink, log logger.Logger) *Player {
	return &Player{
		settings: settings,
		sink:     sink,
		logger:   logger.Component(log, "sound"),
	}
}

// Play emits cue unless the user muted sounds. It reports whether a cue was sent.
func (p *Player) Play(ctx context.Context, userID string, cue Cue) bool {
	if p.settings.SoundMuted(ctx, userID) {
		return false
	}
	return p.emit(ctx, userID, cue, false)
}

// PlayForCategory plays the cue mapped from category.
func (p *Player) PlayForCategory(ctx context.Context, userID string, category models.Category) bool {
	return p.Play(ctx, userID, CueFor(category))
}

// TestSound plays the generic cue even when muted. The mute flag is untouched.
func (p *Player) TestSound(ctx context.Context, userID string) bool {
	return p.emit(ctx, userID, CueNewNotification, true)
}

func (p *Player) emit(ctx context.Context, userID string, cue Cue, test bool) bool {
	url := cue.URL()
	if url == "" {
		p.logger.Warn("unknown sound cue", map[string]interface{}{"cue": string(cue)})
		return false
	}
	if p.sink == nil {
		return false
	}

	err := p.sink.PlayCue(ctx, userID, Playback{
		Cue:    cue,
		URL:    url,
		Volume: p.settings.SoundVolume(ctx, userID),
		Test:   test,
	})
	if err != nil {
		// playback problems are never surfaced
		p.logger.Debug("could not play sound", map[string]interface{}{
			"user_id": userID,
			"cue":     string(cue),
			"error":   err,
		})
		return false
	}
	return true
}

func (p *Player) IsMuted(ctx context.Context, userID string) bool {
	return p.settings.SoundMuted(ctx, userID)
}

func (p *Player) SetMuted(ctx context.Context, userID string, muted bool) error {
	return p.settings.SetSoundMuted(ctx, userID, muted)
}

// ToggleMute flips the mute flag and returns the new state.
func (p *Player) ToggleMute(ctx context.Context, userID string) (bool, error) {
	muted := !p.settings.SoundMuted(ctx, userID)
	if err := p.settings.SetSoundMuted(ctx, userID, muted); err != nil {
		return !muted, fmt.Errorf("toggle mute: %w", err)
	}
	return muted, nil
}

func (p *Player) Volume(ctx context.Context, userID string) float64 {
	return p.settings.SoundVolume(ctx, userID)
}

// SetVolume stores volume clamped to [0, 1] and returns the stored value.
func (p *Player) SetVolume(ctx context.Context, userID string, volume float64) (float64, error) {
	switch {
	case volume < 0:
		volume = 0
	case volume > 1:
		volume = 1
	}
	if err := p.settings.SetSoundVolume(ctx, userID, volume); err != nil {
		return 0, fmt.Errorf("set volume: %w", err)
	}
	return volume, nil
}
