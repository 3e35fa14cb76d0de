// internal/notifications/delivery/toast.go
package delivery

import (
	"sync"
	"time"

	"league-notifications/internal/models"

	"github.com/google/uuid"
)

// Preset durations.
const (
	SuccessDuration = 3000 * time.Millisecond
	ErrorDuration   = 5000 * time.Millisecond
	InfoDuration    = 4000 * time.Millisecond
)

// Renderer receives the full queue after every change.
type Renderer func(toasts []models.Toast)

// ToastQueue is an append-only toast list. Every toast dismisses itself after its
// own duration; no toast waits for another.
type ToastQueue struct {
	mu       sync.Mutex
	toasts   []models.Toast
	timers   map[string]*time.Timer
	render   Renderer
	duration time.Duration
}

// NewToastQueue builds a queue. render may be nil.
func NewToastQueue(defaultDuration time.Duration, render Renderer) *ToastQueue {
	if defaultDuration <= 0 {
		defaultDuration = models.DefaultToastDuration
	}
	return &ToastQueue{
		timers:   make(map[string]*time.Timer),
		render:   render,
		duration: defaultDuration,
	}
}

// Add appends t and returns its id.
func (q *ToastQueue) Add(t models.Toast) string {
	if t.ID == "" {
		t.ID = "toast-" + uuid.NewString()
	}
	if t.Duration <= 0 {
		t.Duration = q.duration
	}

	q.mu.Lock()
	q.toasts = append(q.toasts, t)
	id := t.ID
	q.timers[id] = time.AfterFunc(t.Duration, func() { q.Remove(id) })
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.emit(snapshot)
	return id
}

// Remove dismisses one toast. Unknown ids are ignored.
func (q *ToastQueue) Remove(id string) {
	q.mu.Lock()
	idx := -1
	for i, t := range q.toasts {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return
	}
	q.toasts = append(q.toasts[:idx], q.toasts[idx+1:]...)
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.emit(snapshot)
}

func (q *ToastQueue) Clear() {
	q.mu.Lock()
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.toasts = nil
	q.mu.Unlock()

	q.emit(nil)
}

// List returns the queued toasts in arrival order.
func (q *ToastQueue) List() []models.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *ToastQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.toasts)
}

func (q *ToastQueue) ShowSuccess(title, message string) string {
	return q.Add(models.Toast{
		Title:    title,
		Message:  message,
		Category: models.CategoryAchievement,
		Priority: models.PriorityMedium,
		Duration: SuccessDuration,
	})
}

func (q *ToastQueue) ShowError(title, message string) string {
	return q.Add(models.Toast{
		Title:    title,
		Message:  message,
		Category: models.CategoryAlert,
		Priority: models.PriorityHigh,
		Duration: ErrorDuration,
	})
}

func (q *ToastQueue) ShowInfo(title, message string) string {
	return q.Add(models.Toast{
		Title:    title,
		Message:  message,
		Category: models.CategoryAnnouncement,
		Priority: models.PriorityMedium,
		Duration: InfoDuration,
	})
}

func (q *ToastQueue) snapshotLocked() []models.Toast {
	out := make([]models.Toast, len(q.toasts))
	copy(out, q.toasts)
	return out
}

func (q *ToastQueue) emit(toasts []models.Toast) {
	if q.render != nil {
		q.render(toasts)
	}
}
