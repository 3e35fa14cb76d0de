// internal/notifications/realtime/postgres.go
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"

	"github.com/lib/pq"
)

const (
	DefaultNotifyChannel    = "row_changes"
	DefaultSubscribeTimeout = 10 * time.Second
	DefaultQueueSize        = 256
)

// NotificationSource is the subset of *pq.Listener the transport uses.
type NotificationSource interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// SourceFactory builds the LISTEN connection, wiring callback as its event callback.
type SourceFactory func(callback pq.EventCallbackType) NotificationSource

type PostgresOptions struct {
	NotifyChannel    string
	SubscribeTimeout time.Duration
	QueueSize        int
}

// PostgresTransport multiplexes logical channels over one LISTEN connection.
// The trigger publishes every row change on NotifyChannel; each payload is
// decoded once and queued to every channel whose binding accepts it.
type PostgresTransport struct {
	source NotificationSource
	opts   PostgresOptions
	logger logger.Logger

	mu       sync.Mutex
	channels map[string]*pgChannel
	up       chan struct{}
	isUp     bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

type pgChannel struct {
	name       string
	binding    Binding
	sink       Sink
	status     StatusFunc
	queue      chan models.Change
	done       chan struct{}
	closeOnce  sync.Once
	subscribed bool
	dead       bool
}

func (ch *pgChannel) stopWorker() {
	ch.closeOnce.Do(func() { close(ch.done) })
}

func (ch *pgChannel) run() {
	for {
		select {
		case <-ch.done:
			return
		case change := <-ch.queue:
			ch.sink(ch.name, change)
		}
	}
}

func NewPostgresTransport(factory SourceFactory, opts PostgresOptions, log logger.Logger) *PostgresTransport {
	if opts.NotifyChannel == "" {
		opts.NotifyChannel = DefaultNotifyChannel
	}
	if opts.SubscribeTimeout <= 0 {
		opts.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	t := &PostgresTransport{
		opts:     opts,
		logger:   logger.Component(log, "realtime-postgres"),
		channels: make(map[string]*pgChannel),
		up:       make(chan struct{}),
		stop:     make(chan struct{}),
	}
	t.source = factory(t.handleEvent)
	return t
}

// Start issues LISTEN and begins routing notifications. It returns immediately.
func (t *PostgresTransport) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		t.wg.Add(2)
		go t.listen()
		go t.receive(ctx)
	})
}

// Stop closes the LISTEN connection and every channel worker.
func (t *PostgresTransport) Stop() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stop)
		err = t.source.Close()

		t.mu.Lock()
		for name, ch := range t.channels {
			ch.stopWorker()
			delete(t.channels, name)
		}
		t.mu.Unlock()

		t.wg.Wait()
	})
	return err
}

func (t *PostgresTransport) listen() {
	defer t.wg.Done()
	if err := t.source.Listen(t.opts.NotifyChannel); err != nil {
		t.logger.Error("LISTEN failed", map[string]interface{}{
			"notify_channel": t.opts.NotifyChannel,
			"error":          err,
		})
		return
	}
	t.markUp()
}

func (t *PostgresTransport) receive(ctx context.Context) {
	defer t.wg.Done()
	notifications := t.source.NotificationChannel()
	for {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			// pq sends nil after a reconnect; missed changes are covered by polling.
			if n == nil {
				continue
			}
			t.route(n.Extra)
		}
	}
}

func (t *PostgresTransport) handleEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		t.markUp()
	case pq.ListenerEventDisconnected:
		t.markDown(err)
	case pq.ListenerEventConnectionAttemptFailed:
		t.logger.Warn("LISTEN connection attempt failed", map[string]interface{}{"error": err})
	}
}

func (t *PostgresTransport) markUp() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isUp {
		close(t.up)
		t.isUp = true
	}
}

// markDown fails every subscribed channel. Pending channels keep waiting for
// the connection until their subscribe timeout.
func (t *PostgresTransport) markDown(cause error) {
	t.mu.Lock()
	if t.isUp {
		t.up = make(chan struct{})
		t.isUp = false
	}
	var failed []*pgChannel
	for _, ch := range t.channels {
		if ch.subscribed && !ch.dead {
			ch.dead = true
			failed = append(failed, ch)
		}
	}
	t.mu.Unlock()

	if cause == nil {
		cause = fmt.Errorf("listen connection lost")
	}
	t.logger.Error("change feed disconnected", map[string]interface{}{
		"failed_channels": len(failed),
		"error":           cause,
	})
	for _, ch := range failed {
		ch.stopWorker()
		ch.status(ch.name, StatusChannelError, apperrors.NewSubscriptionFailedError(ch.name, cause))
	}
}

func (t *PostgresTransport) Open(_ context.Context, channel string, binding Binding, sink Sink, status StatusFunc) error {
	ch := &pgChannel{
		name:    channel,
		binding: binding,
		sink:    sink,
		status:  status,
		queue:   make(chan models.Change, t.opts.QueueSize),
		done:    make(chan struct{}),
	}

	t.mu.Lock()
	select {
	case <-t.stop:
		t.mu.Unlock()
		return fmt.Errorf("transport stopped")
	default:
	}
	if _, exists := t.channels[channel]; exists {
		t.mu.Unlock()
		return fmt.Errorf("channel %s already open", channel)
	}
	t.channels[channel] = ch
	up := t.up
	t.mu.Unlock()

	go ch.run()
	go t.await(ch, up)
	return nil
}

func (t *PostgresTransport) await(ch *pgChannel, up <-chan struct{}) {
	timer := time.NewTimer(t.opts.SubscribeTimeout)
	defer timer.Stop()

	select {
	case <-up:
		t.mu.Lock()
		if ch.dead {
			t.mu.Unlock()
			return
		}
		ch.subscribed = true
		t.mu.Unlock()
		ch.status(ch.name, StatusSubscribed, nil)

	case <-timer.C:
		t.mu.Lock()
		if ch.dead {
			t.mu.Unlock()
			return
		}
		ch.dead = true
		t.mu.Unlock()
		ch.stopWorker()
		ch.status(ch.name, StatusTimedOut, apperrors.NewSubscriptionTimeoutError(ch.name, t.opts.SubscribeTimeout))

	case <-ch.done:
	}
}

func (t *PostgresTransport) Close(channel string) error {
	t.mu.Lock()
	ch, ok := t.channels[channel]
	if ok {
		ch.dead = true
		delete(t.channels, channel)
	}
	t.mu.Unlock()

	if !ok {
		return ErrUnknownChannel
	}
	ch.stopWorker()
	return nil
}

func (t *PostgresTransport) route(payload string) {
	change, err := DecodeChange(payload)
	if err != nil {
		t.logger.Error("dropping malformed change payload", map[string]interface{}{"error": err})
		return
	}

	t.mu.Lock()
	var targets []*pgChannel
	for _, ch := range t.channels {
		if ch.subscribed && !ch.dead && ch.binding.Accepts(change) {
			targets = append(targets, ch)
		}
	}
	t.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch.queue <- change:
		case <-ch.done:
		default:
			t.logger.Error("channel queue full, dropping change", map[string]interface{}{
				"channel": ch.name,
				"table":   change.Table,
			})
		}
	}
}

// DecodeChange parses a NOTIFY payload produced by notify_row_change().
func DecodeChange(payload string) (models.Change, error) {
	var change models.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return models.Change{}, apperrors.NewInvalidEventPayloadError("", err.Error())
	}
	if change.Table == "" || change.EventType == "" {
		return models.Change{}, apperrors.NewInvalidEventPayloadError(change.Table, "table and eventType are required")
	}
	return change, nil
}
