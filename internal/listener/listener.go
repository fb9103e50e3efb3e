// Package listener implements EventListener: catch-up over the
// paginated notification log followed by a long-lived WebSocket
// connection, with automatic reconnect and at-least-once dedup.
package listener

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/wireapp/wire-apps-go-sdk/internal/backend"
	"github.com/wireapp/wire-apps-go-sdk/internal/metrics"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/store"
)

// resetThreshold is the duration after which a successful connection
// resets the reconnect backoff interval.
const resetThreshold = 30 * time.Second

// pageSize is the number of notifications fetched per catch-up page.
const pageSize = 100

// dedupCap bounds the in-memory processed-id set so a long-running
// process doesn't grow it without limit.
const dedupCap = 10000

// BackendConnectionListener lets callers observe connectivity
// transitions, independent of the per-event callbacks in
// internal/router.
type BackendConnectionListener interface {
	OnConnected()
	OnDisconnected(err error)
}

// Notifications is the subset of internal/backend.Client the
// listener needs.
type Notifications interface {
	LastNotification(ctx context.Context) (*backend.NotificationEnvelope, error)
	NotificationPage(ctx context.Context, since, deviceID string, size int) (*backend.NotificationPage, error)
	WebSocketURL(ctx context.Context, deviceID string) (string, error)
}

// Dispatcher receives each deduplicated notification's raw event
// payloads, in delivery order. internal/router implements this.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload json.RawMessage)
}

// Listener drives catch-up and the live WebSocket feed for one
// device.
type Listener struct {
	backend  Notifications
	apps     store.AppStore
	deviceID string
	dispatch Dispatcher
	metrics  *metrics.Metrics
	conn     BackendConnectionListener

	mu      sync.Mutex
	seen    map[string]struct{}
	seenArr []string
}

func New(b Notifications, apps store.AppStore, deviceID string, dispatch Dispatcher, m *metrics.Metrics, conn BackendConnectionListener) *Listener {
	return &Listener{
		backend:  b,
		apps:     apps,
		deviceID: deviceID,
		dispatch: dispatch,
		metrics:  m,
		conn:     conn,
		seen:     make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled, performing catch-up and then
// maintaining the WebSocket connection with reconnect.
func (l *Listener) Run(ctx context.Context) {
	if err := l.catchUp(ctx); err != nil && ctx.Err() == nil {
		slog.Error("notification catch-up failed", "error", err)
	}

	bo := newDefaultBackoff()
	for {
		start := time.Now()
		err := l.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		if l.conn != nil {
			l.conn.OnDisconnected(err)
		}
		if l.metrics != nil {
			l.metrics.ListenerReconnectsTotal.Inc()
		}

		if time.Since(start) >= resetThreshold {
			bo.Reset()
		}

		interval := bo.NextBackOff()
		slog.Warn("websocket disconnected, reconnecting", "error", err, "backoff", interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if err := l.catchUp(ctx); err != nil && ctx.Err() == nil {
			slog.Error("notification catch-up after reconnect failed", "error", err)
		}
	}
}

// catchUp pages through missed notifications since the last stored
// notification id, processing each one through dedup + dispatch, and
// persists the new high-water mark.
func (l *Listener) catchUp(ctx context.Context) error {
	since, ok, err := l.apps.Get(ctx, model.AppDataLastNotificationId)
	if err != nil {
		return err
	}
	if !ok {
		last, err := l.backend.LastNotification(ctx)
		if err != nil {
			return err
		}
		since = last.Id
	}

	for {
		page, err := l.backend.NotificationPage(ctx, since, l.deviceID, pageSize)
		if err != nil {
			return err
		}
		for _, n := range page.Notifications {
			l.processEnvelope(ctx, n)
			since = n.Id
		}
		if err := l.apps.Set(ctx, model.AppDataLastNotificationId, since); err != nil {
			return err
		}
		if !page.HasMore {
			return nil
		}
	}
}

// connectOnce dials the WebSocket, pings every 20s, and processes
// inbound notifications until the connection drops or ctx is
// cancelled.
func (l *Listener) connectOnce(ctx context.Context) error {
	url, err := l.backend.WebSocketURL(ctx, l.deviceID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if l.conn != nil {
		l.conn.OnConnected()
	}

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go l.pingLoop(pingCtx, conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var envelope backend.NotificationEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			slog.Warn("failed to decode websocket notification", "error", err)
			continue
		}
		l.processEnvelope(ctx, envelope)

		if !envelope.Transient {
			if err := l.apps.Set(ctx, model.AppDataLastNotificationId, envelope.Id); err != nil {
				slog.Error("failed to persist last notification id", "error", err)
			}
		}
	}
}

func (l *Listener) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// processEnvelope deduplicates by notification id (I1/P2: at-most-
// once delivery to the router despite at-least-once backend
// delivery) then dispatches each contained event payload in order.
func (l *Listener) processEnvelope(ctx context.Context, envelope backend.NotificationEnvelope) {
	if l.alreadySeen(envelope.Id) {
		if l.metrics != nil {
			l.metrics.NotificationsDedupedTotal.Inc()
		}
		return
	}
	l.markSeen(envelope.Id)

	for _, payload := range envelope.Payload {
		l.dispatch.Dispatch(ctx, payload)
	}
	if l.metrics != nil {
		l.metrics.NotificationsProcessedTotal.Inc()
	}
}

func (l *Listener) alreadySeen(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

func (l *Listener) markSeen(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[id] = struct{}{}
	l.seenArr = append(l.seenArr, id)
	if len(l.seenArr) > dedupCap {
		drop := l.seenArr[0]
		l.seenArr = l.seenArr[1:]
		delete(l.seen, drop)
	}
}

func newDefaultBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}
