package wiremsgpb_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/wiremsgpb"
)

func roundTrip(t *testing.T, m model.WireMessage) model.WireMessage {
	t.Helper()
	encoded, err := wiremsgpb.Encode(m)
	require.NoError(t, err)
	decoded, err := wiremsgpb.Decode(encoded, m.Base().ConversationId, m.Base().Sender, m.Base().Timestamp)
	require.NoError(t, err)
	return decoded
}

func newBase() model.Base {
	return model.Base{
		Id:             uuid.New(),
		ConversationId: model.QualifiedId{ID: uuid.New(), Domain: "wire.example.com"},
		Sender:         model.QualifiedId{ID: uuid.New(), Domain: "wire.example.com"},
		Timestamp:      time.Now().Truncate(time.Millisecond),
	}
}

func TestTextRoundTrip(t *testing.T) {
	base := newBase()
	original := model.Text{Base: base, Content: "hello world"}

	decoded := roundTrip(t, original)

	text, ok := decoded.(model.Text)
	require.True(t, ok)
	assert.Equal(t, original.Content, text.Content)
	assert.Equal(t, original.Base.Id, text.Base.Id)
}

func TestButtonActionConfirmationOmitsNilButtonId(t *testing.T) {
	base := newBase()
	original := model.ButtonActionConfirmation{Base: base, ReferenceMsgId: uuid.New(), ButtonId: nil}

	decoded := roundTrip(t, original)

	bac, ok := decoded.(model.ButtonActionConfirmation)
	require.True(t, ok)
	assert.Nil(t, bac.ButtonId)
	assert.Equal(t, original.ReferenceMsgId, bac.ReferenceMsgId)
}

func TestReceiptCollapsesToIgnoredForUnsupportedType(t *testing.T) {
	base := newBase()
	original := model.Receipt{Base: base, Type: model.ReceiptType(99), ReferenceMsgId: []uuid.UUID{uuid.New()}}

	encoded, err := wiremsgpb.Encode(original)
	require.NoError(t, err)
	decoded, err := wiremsgpb.Decode(encoded, base.ConversationId, base.Sender, base.Timestamp)
	require.NoError(t, err)

	_, ok := decoded.(model.Ignored)
	assert.True(t, ok)
}

func TestReceiptRoundTripDelivered(t *testing.T) {
	base := newBase()
	original := model.Receipt{Base: base, Type: model.ReceiptDelivered, ReferenceMsgId: []uuid.UUID{uuid.New(), uuid.New()}}

	decoded := roundTrip(t, original)

	r, ok := decoded.(model.Receipt)
	require.True(t, ok)
	assert.Equal(t, model.ReceiptDelivered, r.Type)
	assert.Equal(t, original.ReferenceMsgId, r.ReferenceMsgId)
}

func TestEphemeralUnwrapsInnerAndPropagatesExpiry(t *testing.T) {
	base := newBase()
	original := model.Ephemeral{
		Base:        base,
		Inner:       model.Text{Base: base, Content: "self-destructing"},
		ExpireAfter: 30 * time.Second,
	}

	decoded := roundTrip(t, original)

	eph, ok := decoded.(model.Ephemeral)
	require.True(t, ok)
	assert.Equal(t, original.ExpireAfter, eph.ExpireAfter)
	text, ok := eph.Inner.(model.Text)
	require.True(t, ok)
	assert.Equal(t, "self-destructing", text.Content)
}

func TestEditedNonTextCollapsesToIgnored(t *testing.T) {
	base := newBase()
	// Encode a raw Edited submessage carrying neither text nor
	// composite content, simulating a schema variant this codec
	// doesn't model yet: GenericMessage field 12 (edited) holding only
	// its field 1 (replacing message id).
	var edited []byte
	edited = protowire.AppendTag(edited, 1, protowire.BytesType)
	edited = protowire.AppendString(edited, uuid.New().String())
	var encoded []byte
	encoded = protowire.AppendTag(encoded, 1, protowire.BytesType)
	encoded = protowire.AppendString(encoded, base.Id.String())
	encoded = protowire.AppendTag(encoded, 12, protowire.BytesType)
	encoded = protowire.AppendBytes(encoded, edited)

	decoded, err := wiremsgpb.Decode(encoded, base.ConversationId, base.Sender, base.Timestamp)
	require.NoError(t, err)
	_, ok := decoded.(model.Ignored)
	assert.True(t, ok)
}

func TestUnknownTopLevelContent(t *testing.T) {
	base := newBase()
	decoded, err := wiremsgpb.Decode(nil, base.ConversationId, base.Sender, base.Timestamp)
	require.NoError(t, err)
	_, ok := decoded.(model.Unknown)
	assert.True(t, ok)
}

func TestLocationRoundTrip(t *testing.T) {
	base := newBase()
	original := model.Location{Base: base, Latitude: 52.52, Longitude: 13.405, Name: "Berlin", Zoom: 10}

	decoded := roundTrip(t, original)

	loc, ok := decoded.(model.Location)
	require.True(t, ok)
	assert.Equal(t, original.Latitude, loc.Latitude)
	assert.Equal(t, original.Longitude, loc.Longitude)
	assert.Equal(t, original.Name, loc.Name)
	assert.Equal(t, original.Zoom, loc.Zoom)
}

func TestCompositeRoundTrip(t *testing.T) {
	base := newBase()
	text := "pick one"
	original := model.Composite{
		Base: base,
		Items: []model.CompositeItem{
			{Text: &text},
			{Button: &model.Button{ButtonId: "yes", Text: "Yes"}},
			{Button: &model.Button{ButtonId: "no", Text: "No"}},
		},
	}

	decoded := roundTrip(t, original)

	c, ok := decoded.(model.Composite)
	require.True(t, ok)
	require.Len(t, c.Items, 3)
	require.NotNil(t, c.Items[0].Text)
	assert.Equal(t, text, *c.Items[0].Text)
	require.NotNil(t, c.Items[1].Button)
	assert.Equal(t, "yes", c.Items[1].Button.ButtonId)
	assert.Equal(t, "No", c.Items[2].Button.Text)
}

func TestCompositeEditedRoundTrip(t *testing.T) {
	base := newBase()
	text := "updated option"
	original := model.CompositeEdited{
		Base:           base,
		ReferenceMsgId: uuid.New(),
		Items:          []model.CompositeItem{{Text: &text}},
	}

	decoded := roundTrip(t, original)

	ce, ok := decoded.(model.CompositeEdited)
	require.True(t, ok)
	assert.Equal(t, original.ReferenceMsgId, ce.ReferenceMsgId)
	require.Len(t, ce.Items, 1)
	assert.Equal(t, text, *ce.Items[0].Text)
}

func TestInCallEmojiRoundTrip(t *testing.T) {
	base := newBase()
	original := model.InCallEmoji{Base: base, Emojis: map[string]int32{"🎉": 3, "👍": 1}}

	decoded := roundTrip(t, original)

	e, ok := decoded.(model.InCallEmoji)
	require.True(t, ok)
	assert.Equal(t, original.Emojis, e.Emojis)
}

func TestInCallHandRaiseRoundTrip(t *testing.T) {
	base := newBase()
	original := model.InCallHandRaise{Base: base, IsHandUp: true}

	decoded := roundTrip(t, original)

	hr, ok := decoded.(model.InCallHandRaise)
	require.True(t, ok)
	assert.True(t, hr.IsHandUp)
}
