package listener

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/wire-apps-go-sdk/internal/backend"
	"github.com/wireapp/wire-apps-go-sdk/internal/store/memstore"
)

type fakeNotifications struct {
	last  backend.NotificationEnvelope
	pages []backend.NotificationPage
}

func (f *fakeNotifications) LastNotification(ctx context.Context) (*backend.NotificationEnvelope, error) {
	return &f.last, nil
}

func (f *fakeNotifications) NotificationPage(ctx context.Context, since, deviceID string, size int) (*backend.NotificationPage, error) {
	if len(f.pages) == 0 {
		return &backend.NotificationPage{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return &page, nil
}

func (f *fakeNotifications) WebSocketURL(ctx context.Context, deviceID string) (string, error) {
	return "", nil
}

type collectingDispatcher struct {
	payloads []json.RawMessage
}

func (d *collectingDispatcher) Dispatch(ctx context.Context, payload json.RawMessage) {
	d.payloads = append(d.payloads, payload)
}

func TestCatchUpProcessesPagesInOrderAndPersistsHighWaterMark(t *testing.T) {
	backendFake := &fakeNotifications{
		last: backend.NotificationEnvelope{Id: "seed"},
		pages: []backend.NotificationPage{
			{
				Notifications: []backend.NotificationEnvelope{
					{Id: "n1", Payload: []json.RawMessage{json.RawMessage(`{"type":"conversation.create"}`)}},
				},
				HasMore: true,
			},
			{
				Notifications: []backend.NotificationEnvelope{
					{Id: "n2", Payload: []json.RawMessage{json.RawMessage(`{"type":"conversation.delete"}`)}},
				},
				HasMore: false,
			},
		},
	}
	apps := memstore.NewAppStore()
	dispatcher := &collectingDispatcher{}

	l := New(backendFake, apps, "device-1", dispatcher, nil, nil)
	err := l.catchUp(context.Background())
	require.NoError(t, err)

	require.Len(t, dispatcher.payloads, 2)
	assert.JSONEq(t, `{"type":"conversation.create"}`, string(dispatcher.payloads[0]))
	assert.JSONEq(t, `{"type":"conversation.delete"}`, string(dispatcher.payloads[1]))

	stored, ok, err := apps.Get(context.Background(), "last_notification_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "n2", stored)
}

func TestProcessEnvelopeDedupesById(t *testing.T) {
	apps := memstore.NewAppStore()
	dispatcher := &collectingDispatcher{}
	l := New(&fakeNotifications{}, apps, "device-1", dispatcher, nil, nil)

	envelope := backend.NotificationEnvelope{Id: "dup", Payload: []json.RawMessage{json.RawMessage(`{}`)}}
	l.processEnvelope(context.Background(), envelope)
	l.processEnvelope(context.Background(), envelope)

	assert.Len(t, dispatcher.payloads, 1)
}
