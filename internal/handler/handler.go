// Package handler implements the Handler Surface (spec §4.7): one
// callback per event/message kind, in either a blocking or an
// async/suspending flavor. Each Fire* method picks whichever flavor is
// installed and calls it; uncaught handler errors are logged, never
// propagated back into the event pipeline.
package handler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// Registry holds at most one installed handler per callback slot.
// Installing a handler a second time replaces the previous one.
//
// Each Fire* call dispatches onto its own goroutine, tracked by tasks,
// rather than running on the caller's goroutine (spec §4.2:
// "dispatched on a supervisor-scoped task pool so a slow/failing
// handler cannot block the queue drainer"). Wait drains in-flight
// handler goroutines during shutdown.
type Registry struct {
	onMessage                BlockingOrAsync[MessageEvent]
	onConversationDeleted    BlockingOrAsync[ConversationDeletedEvent]
	onUserJoinedConversation BlockingOrAsync[MembersChangedEvent]
	onUserLeftConversation   BlockingOrAsync[MembersChangedEvent]
	onAppAddedToConversation BlockingOrAsync[ConversationJoinedEvent]

	tasks sync.WaitGroup
}

func New() *Registry {
	return &Registry{}
}

// MessageEvent is delivered for every successfully decoded inbound
// WireMessage.
type MessageEvent struct {
	ConversationId model.QualifiedId
	Sender         model.QualifiedId
	Message        model.WireMessage
}

type ConversationDeletedEvent struct {
	ConversationId model.QualifiedId
}

type MembersChangedEvent struct {
	ConversationId model.QualifiedId
	UserIds        []model.QualifiedId
}

type ConversationJoinedEvent struct {
	ConversationId model.QualifiedId
}

// BlockingOrAsync holds exactly one of a synchronous callback or an
// async one returning an error via a channel/goroutine internally.
// Only one of Blocking/Async is non-nil at a time.
type BlockingOrAsync[T any] struct {
	Blocking func(ctx context.Context, event T) error
	Async    func(ctx context.Context, event T) <-chan error
}

func (h BlockingOrAsync[T]) isSet() bool {
	return h.Blocking != nil || h.Async != nil
}

// invoke calls whichever flavor is installed on its own goroutine,
// tracked by r.tasks, so the caller (the per-conversation drainer)
// never blocks on handler execution. Errors are logged, never
// propagated.
func invoke[T any](ctx context.Context, r *Registry, h BlockingOrAsync[T], event T, name string) {
	if !h.isSet() {
		return
	}
	r.tasks.Add(1)
	go func() {
		defer r.tasks.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("handler panicked", "handler", name, "panic", rec)
			}
		}()

		if h.Blocking != nil {
			if err := h.Blocking(ctx, event); err != nil {
				slog.Error("handler returned error", "handler", name, "error", err)
			}
			return
		}

		if err := <-h.Async(ctx, event); err != nil {
			slog.Error("async handler returned error", "handler", name, "error", err)
		}
	}()
}

func (r *Registry) OnMessage(h BlockingOrAsync[MessageEvent])                          { r.onMessage = h }
func (r *Registry) OnConversationDeleted(h BlockingOrAsync[ConversationDeletedEvent])   { r.onConversationDeleted = h }
func (r *Registry) OnUserJoinedConversation(h BlockingOrAsync[MembersChangedEvent])     { r.onUserJoinedConversation = h }
func (r *Registry) OnUserLeftConversation(h BlockingOrAsync[MembersChangedEvent])       { r.onUserLeftConversation = h }
func (r *Registry) OnAppAddedToConversation(h BlockingOrAsync[ConversationJoinedEvent]) { r.onAppAddedToConversation = h }

func (r *Registry) FireMessage(ctx context.Context, e MessageEvent) {
	invoke(ctx, r, r.onMessage, e, "onMessage")
}

func (r *Registry) FireConversationDeleted(ctx context.Context, e ConversationDeletedEvent) {
	invoke(ctx, r, r.onConversationDeleted, e, "onConversationDeleted")
}

func (r *Registry) FireUserJoinedConversation(ctx context.Context, e MembersChangedEvent) {
	invoke(ctx, r, r.onUserJoinedConversation, e, "onUserJoinedConversation")
}

func (r *Registry) FireUserLeftConversation(ctx context.Context, e MembersChangedEvent) {
	invoke(ctx, r, r.onUserLeftConversation, e, "onUserLeftConversation")
}

func (r *Registry) FireAppAddedToConversation(ctx context.Context, e ConversationJoinedEvent) {
	invoke(ctx, r, r.onAppAddedToConversation, e, "onAppAddedToConversation")
}

// Wait blocks until every dispatched handler goroutine has returned.
// Callers drain this during shutdown, alongside the router's own
// Wait, so no handler is still running when the process exits.
func (r *Registry) Wait() {
	r.tasks.Wait()
}
