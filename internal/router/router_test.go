package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

type recordingProcessor struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingProcessor) Process(ctx context.Context, event model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingProcessor) snapshot() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Event, len(p.events))
	copy(out, p.events)
	return out
}

func TestRouteOrdersEventsPerConversation(t *testing.T) {
	processor := &recordingProcessor{}
	done := make(chan struct{})
	defer close(done)
	r := New(processor, nil, done)

	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}

	ids := make([]uuid.UUID, 0, 20)
	for i := 0; i < 20; i++ {
		id := uuid.New()
		ids = append(ids, id)
		r.Route(context.Background(), model.ConversationMemberJoinEvent{
			EventBase:      model.EventBase{Id: id},
			ConversationId: convID,
			Members:        []model.ConversationMember{{UserId: model.QualifiedId{ID: uuid.New(), Domain: "example.com"}}},
		})
	}

	require.Eventually(t, func() bool {
		return len(processor.snapshot()) == 20
	}, time.Second, time.Millisecond)

	events := processor.snapshot()
	for i, e := range events {
		join, ok := e.(model.ConversationMemberJoinEvent)
		require.True(t, ok)
		assert.Equal(t, convID, join.ConversationId)
		assert.Equal(t, ids[i], join.Id)
	}
}

func TestDispatchDecodesAndRoutesUnknownType(t *testing.T) {
	processor := &recordingProcessor{}
	done := make(chan struct{})
	defer close(done)
	r := New(processor, nil, done)

	payload := json.RawMessage(`{"type":"something.new","id":"` + uuid.New().String() + `"}`)
	r.Dispatch(context.Background(), payload)

	require.Eventually(t, func() bool {
		return len(processor.snapshot()) == 1
	}, time.Second, time.Millisecond)

	unknown, ok := processor.snapshot()[0].(model.UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "something.new", unknown.Kind)
}

func TestTeamInviteUsesNonConversationQueue(t *testing.T) {
	assert.Equal(t, nonConversationKey, channelKey(model.TeamInviteEvent{}))
}
