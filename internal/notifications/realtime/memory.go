// internal/notifications/realtime/memory.go
package realtime

import (
	"context"
	"sort"
	"sync"

	"league-notifications/internal/models"
)

// MemoryTransport is an in-process Transport. Publish delivers synchronously,
// which keeps tests deterministic.
type MemoryTransport struct {
	mu       sync.Mutex
	channels map[string]*memoryChannel
	openErr  error
	autoAck  bool
	opened   int
}

type memoryChannel struct {
	binding Binding
	sink    Sink
	status  StatusFunc
	dead    bool
}

// NewMemoryTransport returns a transport that acknowledges every Open with SUBSCRIBED.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		channels: make(map[string]*memoryChannel),
		autoAck:  true,
	}
}

// SetOpenError makes subsequent Open calls fail with err.
func (m *MemoryTransport) SetOpenError(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

// SetAutoAck controls whether Open reports SUBSCRIBED immediately.
func (m *MemoryTransport) SetAutoAck(on bool) {
	m.mu.Lock()
	m.autoAck = on
	m.mu.Unlock()
}

func (m *MemoryTransport) Open(_ context.Context, channel string, binding Binding, sink Sink, status StatusFunc) error {
	m.mu.Lock()
	if m.openErr != nil {
		err := m.openErr
		m.mu.Unlock()
		return err
	}
	m.channels[channel] = &memoryChannel{binding: binding, sink: sink, status: status}
	m.opened++
	ack := m.autoAck
	m.mu.Unlock()

	if ack {
		status(channel, StatusSubscribed, nil)
	}
	return nil
}

func (m *MemoryTransport) Close(channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channel]; !ok {
		return ErrUnknownChannel
	}
	delete(m.channels, channel)
	return nil
}

// Publish routes change to every open channel whose binding accepts it and
// returns the number of deliveries.
func (m *MemoryTransport) Publish(change models.Change) int {
	type target struct {
		name string
		sink Sink
	}

	m.mu.Lock()
	var targets []target
	for name, ch := range m.channels {
		if ch.dead || !ch.binding.Accepts(change) {
			continue
		}
		targets = append(targets, target{name: name, sink: ch.sink})
	}
	m.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].name < targets[j].name })
	for _, t := range targets {
		t.sink(t.name, change)
	}
	return len(targets)
}

// DeliverTo pushes change to one channel by name, bypassing binding checks.
// It returns false when the channel is not open. Used to simulate late
// delivery on a replaced channel.
func (m *MemoryTransport) DeliverTo(channel string, change models.Change) bool {
	m.mu.Lock()
	ch, ok := m.channels[channel]
	m.mu.Unlock()
	if !ok {
		return false
	}
	ch.sink(channel, change)
	return true
}

// InjectStatus reports status on an open channel. Dead statuses stop further delivery.
func (m *MemoryTransport) InjectStatus(channel string, status Status, err error) bool {
	m.mu.Lock()
	ch, ok := m.channels[channel]
	if ok && status.Dead() {
		ch.dead = true
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	ch.status(channel, status, err)
	return true
}

// Channels lists the open channel names, sorted.
func (m *MemoryTransport) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Opened returns how many channels were ever opened.
func (m *MemoryTransport) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}
