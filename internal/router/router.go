// Package router implements EventRouter (spec §4.2): per-conversation
// FIFO event processing with cross-conversation parallelism, driving
// MLS state transitions and handler invocation.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/wireapp/wire-apps-go-sdk/internal/metrics"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// queueDepth bounds each per-conversation queue. route() suspends
// (never drops) once a queue is full.
const queueDepth = 256

// nonConversationKey serializes TeamInvite and other top-level events
// that aren't scoped to a single conversation.
const nonConversationKey = "__non_conversation__"

// Processor applies one decoded Event to local state (store mutation,
// crypto-engine calls, handler dispatch). internal/conversation
// implements this for the real processing table; tests can supply a
// fake.
type Processor interface {
	Process(ctx context.Context, event model.Event)
}

// Router owns one bounded, single-consumer queue per channelKey and
// fans events out to them, preserving per-conversation order while
// letting different conversations proceed in parallel.
type Router struct {
	processor Processor
	metrics   *metrics.Metrics

	mu     sync.Mutex
	queues map[string]chan model.Event

	wg   sync.WaitGroup
	done <-chan struct{}
}

func New(processor Processor, m *metrics.Metrics, done <-chan struct{}) *Router {
	return &Router{
		processor: processor,
		metrics:   m,
		queues:    make(map[string]chan model.Event),
		done:      done,
	}
}

// Dispatch implements internal/listener.Dispatcher: decode the raw
// notification payload and route it.
func (r *Router) Dispatch(ctx context.Context, payload json.RawMessage) {
	event, err := decodeEvent(payload)
	if err != nil {
		slog.Warn("failed to decode event payload", "error", err)
		return
	}
	r.Route(ctx, event)
}

// Route enqueues event onto its channel key's queue, starting a
// drainer goroutine the first time a key is seen. Blocks (honoring
// ctx/done) if the queue is full — events are never dropped.
func (r *Router) Route(ctx context.Context, event model.Event) {
	key := channelKey(event)
	queue := r.queueFor(key)

	select {
	case queue <- event:
	case <-ctx.Done():
	case <-r.done:
	}

	if r.metrics != nil {
		r.metrics.RouterQueueDepth.WithLabelValues(key).Set(float64(len(queue)))
	}
}

// Wait blocks until all drainer goroutines have exited (after done is
// closed and their queues drain).
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) queueFor(key string) chan model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[key]; ok {
		return q
	}

	q := make(chan model.Event, queueDepth)
	r.queues[key] = q
	r.wg.Add(1)
	go r.drain(key, q)
	return q
}

func (r *Router) drain(key string, queue chan model.Event) {
	defer r.wg.Done()
	for {
		select {
		case event := <-queue:
			r.processOne(key, event)
		case <-r.done:
			// Drain whatever is already buffered before exiting so a
			// shutdown doesn't silently lose queued events.
			for {
				select {
				case event := <-queue:
					r.processOne(key, event)
					continue
				default:
				}
				return
			}
		}
	}
}

// processOne runs Process synchronously on the drainer: decrypt and
// store mutation for a conversation must stay strictly ordered, so
// this goroutine is the only place they happen. Process itself only
// dispatches handler callbacks through internal/handler.Registry,
// which runs each one on its own goroutine — a slow or panicking
// handler stalls neither this drainer nor any other conversation's.
func (r *Router) processOne(key string, event model.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("recovered panic in event handler", "channel_key", key, "panic", rec)
		}
	}()
	r.processor.Process(context.Background(), event)
}

func channelKey(event model.Event) string {
	switch e := event.(type) {
	case model.ConversationCreateEvent:
		return convKey(e.ConversationId)
	case model.ConversationDeleteEvent:
		return convKey(e.ConversationId)
	case model.ConversationMemberJoinEvent:
		return convKey(e.ConversationId)
	case model.ConversationMemberLeaveEvent:
		return convKey(e.ConversationId)
	case model.ConversationMemberUpdateEvent:
		return convKey(e.ConversationId)
	case model.ConversationMlsWelcomeEvent:
		return convKey(e.ConversationId)
	case model.ConversationNewMlsMessageEvent:
		return convKey(e.ConversationId)
	case model.ConversationTypingEvent:
		return convKey(e.ConversationId)
	default:
		return nonConversationKey
	}
}

func convKey(id model.QualifiedId) string {
	return id.ID.String() + "@" + id.Domain
}
