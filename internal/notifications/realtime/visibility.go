// internal/notifications/realtime/visibility.go
package realtime

import (
	"context"
	"fmt"
	"sync"

	"league-notifications/internal/common/logger"
)

// Signal is a page lifecycle event forwarded from a client socket.
type Signal string

const (
	SignalVisible Signal = "visible"
	SignalHidden  Signal = "hidden"
	SignalFocus   Signal = "focus"
	SignalBlur    Signal = "blur"
)

func ParseSignal(s string) (Signal, error) {
	switch Signal(s) {
	case SignalVisible, SignalHidden, SignalFocus, SignalBlur:
		return Signal(s), nil
	}
	return "", fmt.Errorf("unknown visibility signal %q", s)
}

// VisibilityWatcher turns page lifecycle signals into resubscriptions.
// A hidden to visible transition or a focus event resubscribes.
type VisibilityWatcher struct {
	resubscribe func(ctx context.Context)
	enabled     bool
	logger      logger.Logger

	mu      sync.Mutex
	visible bool
}

func NewVisibilityWatcher(resubscribe func(ctx context.Context), enabled bool, log logger.Logger) *VisibilityWatcher {
	return &VisibilityWatcher{
		resubscribe: resubscribe,
		enabled:     enabled,
		logger:      logger.Component(log, "visibility"),
		visible:     true,
	}
}

// Handle applies signal and reports whether it triggered a resubscription.
func (w *VisibilityWatcher) Handle(ctx context.Context, signal Signal) bool {
	w.mu.Lock()
	wasVisible := w.visible
	trigger := false
	switch signal {
	case SignalHidden, SignalBlur:
		w.visible = false
	case SignalVisible:
		w.visible = true
		trigger = !wasVisible
	case SignalFocus:
		w.visible = true
		trigger = true
	}
	w.mu.Unlock()

	w.logger.Debug("visibility signal", map[string]interface{}{
		"signal":  string(signal),
		"visible": signal == SignalVisible || signal == SignalFocus,
	})

	if !trigger || !w.enabled {
		return false
	}
	w.resubscribe(ctx)
	return true
}

func (w *VisibilityWatcher) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}
