// Package wiremsgpb implements ProtobufCodec (C3): pure encode/decode
// between the model.WireMessage algebra and the generic-message
// protobuf wire format, hand-rolled on top of protowire's low-level
// field reader/writer since no .proto/protoc toolchain is available
// in this build environment.
//
// Wire field numbers below follow the generic-message schema's
// top-level "content" oneof and the nested Ephemeral wrapper; they
// are fixed by the external protobuf schema referenced in spec §4.6.
package wiremsgpb

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/google/uuid"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// Top-level GenericMessage field numbers.
const (
	fieldMessageID = 1
	fieldText      = 2
	fieldAsset     = 3
	fieldEphemeral = 4
	fieldButton    = 5
	// fieldKnock intentionally shares number space with others in the
	// real schema's oneof; represented here as a dedicated tag as the
	// oneof collapses to "whichever field is set".
	fieldKnock                    = 6
	fieldComposite                = 7
	fieldButtonAction             = 8
	fieldButtonActionConfirmation = 9
	fieldLocation                 = 10
	fieldDeleted                  = 11
	fieldEdited                   = 12
	fieldReceipt                  = 13
	fieldReaction                 = 14
	fieldCalling                  = 15
)

// Text submessage fields.
const (
	fieldTextContent = 1
)

// Asset submessage fields.
const (
	fieldAssetId     = 1
	fieldAssetDomain = 2
	fieldAssetToken  = 3
	fieldAssetOtrKey = 4
	fieldAssetSha256 = 5
	fieldAssetMime   = 6
	fieldAssetSize   = 7
)

// Ephemeral submessage fields.
const (
	fieldEphemeralExpireMillis = 1
	fieldEphemeralText         = 2
	fieldEphemeralAsset        = 3
	fieldEphemeralKnock        = 4
	fieldEphemeralLocation     = 5
)

// Edited submessage fields.
const (
	fieldEditedReplacingId = 1
	fieldEditedText        = 2
	fieldEditedComposite   = 3
)

// Receipt submessage fields.
const (
	fieldReceiptType       = 1
	fieldReceiptMessageIds = 2
)

// ReceiptType wire values.
const (
	wireReceiptDelivered = 0
	wireReceiptRead      = 1
)

// Deleted/Reaction/ButtonAction/ButtonActionConfirmation submessage
// fields.
const (
	fieldDeletedMessageId = 1

	fieldReactionMessageId = 1
	fieldReactionEmoji     = 2

	fieldButtonActionReferenceMessageId = 1
	fieldButtonActionButtonId           = 2

	fieldButtonActionConfirmationReferenceMessageId = 1
	fieldButtonActionConfirmationButtonId            = 2
)

// Composite submessage fields: a repeated oneof of text/button items.
const (
	fieldCompositeItems = 1
)

// CompositeItem submessage fields.
const (
	fieldCompositeItemText   = 1
	fieldCompositeItemButton = 2
)

// Button submessage fields, nested inside a CompositeItem.
const (
	fieldButtonId   = 1
	fieldButtonText = 2
)

// Calling submessage fields: a oneof of emoji reactions or a
// hand-raise toggle.
const (
	fieldCallingEmoji     = 1
	fieldCallingHandRaise = 2
)

// Calling.Emoji submessage fields; repeated key/count entries stand
// in for the map<string,int32>.
const (
	fieldCallingEmojiEntry    = 1
	fieldCallingEmojiEntryKey = 1
	fieldCallingEmojiEntryVal = 2
)

// Calling.HandRaise submessage fields.
const (
	fieldCallingHandRaiseIsUp = 1
)

// Encode serializes a WireMessage into the generic-message protobuf
// wire format. Pure function: no I/O, no side effects.
func Encode(m model.WireMessage) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldMessageID, protowire.BytesType)
	b = protowire.AppendString(b, m.Base().Id.String())

	switch v := m.(type) {
	case model.Text:
		content := encodeText(v.Content)
		b = protowire.AppendTag(b, fieldText, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.Asset:
		content := encodeAsset(v)
		b = protowire.AppendTag(b, fieldAsset, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.Knock:
		b = protowire.AppendTag(b, fieldKnock, protowire.BytesType)
		b = protowire.AppendBytes(b, nil)
	case model.Location:
		content := encodeLocation(v)
		b = protowire.AppendTag(b, fieldLocation, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.Deleted:
		var content []byte
		content = protowire.AppendTag(content, fieldDeletedMessageId, protowire.BytesType)
		content = protowire.AppendString(content, v.ReferenceMsgId.String())
		b = protowire.AppendTag(b, fieldDeleted, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.TextEdited:
		var inner []byte
		inner = protowire.AppendTag(inner, fieldTextContent, protowire.BytesType)
		inner = protowire.AppendString(inner, v.NewContent)
		var content []byte
		content = protowire.AppendTag(content, fieldEditedReplacingId, protowire.BytesType)
		content = protowire.AppendString(content, v.ReferenceMsgId.String())
		content = protowire.AppendTag(content, fieldEditedText, protowire.BytesType)
		content = protowire.AppendBytes(content, inner)
		b = protowire.AppendTag(b, fieldEdited, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.Composite:
		content := encodeComposite(v.Items)
		b = protowire.AppendTag(b, fieldComposite, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.CompositeEdited:
		var content []byte
		content = protowire.AppendTag(content, fieldEditedReplacingId, protowire.BytesType)
		content = protowire.AppendString(content, v.ReferenceMsgId.String())
		content = protowire.AppendTag(content, fieldEditedComposite, protowire.BytesType)
		content = protowire.AppendBytes(content, encodeComposite(v.Items))
		b = protowire.AppendTag(b, fieldEdited, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.InCallEmoji:
		var wrap []byte
		wrap = protowire.AppendTag(wrap, fieldCallingEmoji, protowire.BytesType)
		wrap = protowire.AppendBytes(wrap, encodeCallingEmoji(v.Emojis))
		b = protowire.AppendTag(b, fieldCalling, protowire.BytesType)
		b = protowire.AppendBytes(b, wrap)
	case model.InCallHandRaise:
		var inner []byte
		inner = protowire.AppendTag(inner, fieldCallingHandRaiseIsUp, protowire.VarintType)
		inner = protowire.AppendVarint(inner, boolVarint(v.IsHandUp))
		var wrap []byte
		wrap = protowire.AppendTag(wrap, fieldCallingHandRaise, protowire.BytesType)
		wrap = protowire.AppendBytes(wrap, inner)
		b = protowire.AppendTag(b, fieldCalling, protowire.BytesType)
		b = protowire.AppendBytes(b, wrap)
	case model.Receipt:
		content := encodeReceipt(v)
		if content == nil {
			// Unsupported confirmation type: an empty Receipt
			// submessage, which Decode collapses to Ignored.
			b = protowire.AppendTag(b, fieldReceipt, protowire.BytesType)
			b = protowire.AppendBytes(b, nil)
			return b, nil
		}
		b = protowire.AppendTag(b, fieldReceipt, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.Reaction:
		var content []byte
		content = protowire.AppendTag(content, fieldReactionMessageId, protowire.BytesType)
		content = protowire.AppendString(content, v.ReferenceMsgId.String())
		content = protowire.AppendTag(content, fieldReactionEmoji, protowire.BytesType)
		content = protowire.AppendString(content, v.Emoji)
		b = protowire.AppendTag(b, fieldReaction, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.ButtonAction:
		var content []byte
		content = protowire.AppendTag(content, fieldButtonActionReferenceMessageId, protowire.BytesType)
		content = protowire.AppendString(content, v.ReferenceMsgId.String())
		content = protowire.AppendTag(content, fieldButtonActionButtonId, protowire.BytesType)
		content = protowire.AppendString(content, v.ButtonId)
		b = protowire.AppendTag(b, fieldButtonAction, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.ButtonActionConfirmation:
		var content []byte
		content = protowire.AppendTag(content, fieldButtonActionConfirmationReferenceMessageId, protowire.BytesType)
		content = protowire.AppendString(content, v.ReferenceMsgId.String())
		// ButtonId omitted from the wire when nil.
		if v.ButtonId != nil {
			content = protowire.AppendTag(content, fieldButtonActionConfirmationButtonId, protowire.BytesType)
			content = protowire.AppendString(content, *v.ButtonId)
		}
		b = protowire.AppendTag(b, fieldButtonActionConfirmation, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.Ephemeral:
		content, err := encodeEphemeral(v)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldEphemeral, protowire.BytesType)
		b = protowire.AppendBytes(b, content)
	case model.Ignored, model.Unknown:
		// No content to encode; callers re-derive Ignored/Unknown on
		// decode from an empty or unrecognized payload.
	default:
		return nil, fmt.Errorf("wiremsgpb: encode: unsupported variant %T", m)
	}

	return b, nil
}

func encodeText(content string) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldTextContent, protowire.BytesType)
	b = protowire.AppendString(b, content)
	return b
}

func encodeAsset(a model.Asset) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldAssetId, protowire.BytesType)
	b = protowire.AppendString(b, a.AssetId)
	b = protowire.AppendTag(b, fieldAssetDomain, protowire.BytesType)
	b = protowire.AppendString(b, a.AssetDomain)
	b = protowire.AppendTag(b, fieldAssetToken, protowire.BytesType)
	b = protowire.AppendString(b, a.AssetToken)
	b = protowire.AppendTag(b, fieldAssetOtrKey, protowire.BytesType)
	b = protowire.AppendBytes(b, a.OtrKey)
	b = protowire.AppendTag(b, fieldAssetSha256, protowire.BytesType)
	b = protowire.AppendBytes(b, a.Sha256)
	b = protowire.AppendTag(b, fieldAssetMime, protowire.BytesType)
	b = protowire.AppendString(b, a.MimeType)
	b = protowire.AppendTag(b, fieldAssetSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.Size))
	return b
}

func encodeLocation(l model.Location) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(l.Latitude))
	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(l.Longitude))
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, l.Name)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(l.Zoom))
	return b
}

func encodeReceipt(r model.Receipt) []byte {
	var wireType int32
	switch r.Type {
	case model.ReceiptDelivered:
		wireType = wireReceiptDelivered
	case model.ReceiptRead:
		wireType = wireReceiptRead
	default:
		return nil
	}
	var b []byte
	b = protowire.AppendTag(b, fieldReceiptType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(wireType))
	for _, id := range r.ReferenceMsgId {
		b = protowire.AppendTag(b, fieldReceiptMessageIds, protowire.BytesType)
		b = protowire.AppendString(b, id.String())
	}
	return b
}

func encodeEphemeral(e model.Ephemeral) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldEphemeralExpireMillis, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.ExpireAfter.Milliseconds()))

	switch inner := e.Inner.(type) {
	case model.Text:
		b = protowire.AppendTag(b, fieldEphemeralText, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeText(inner.Content))
	case model.Asset:
		b = protowire.AppendTag(b, fieldEphemeralAsset, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAsset(inner))
	case model.Knock:
		b = protowire.AppendTag(b, fieldEphemeralKnock, protowire.BytesType)
		b = protowire.AppendBytes(b, nil)
	case model.Location:
		b = protowire.AppendTag(b, fieldEphemeralLocation, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeLocation(inner))
	default:
		return nil, fmt.Errorf("wiremsgpb: encode: unsupported ephemeral inner %T", inner)
	}
	return b, nil
}

func encodeComposite(items []model.CompositeItem) []byte {
	var b []byte
	for _, item := range items {
		b = protowire.AppendTag(b, fieldCompositeItems, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeCompositeItem(item))
	}
	return b
}

func encodeCompositeItem(item model.CompositeItem) []byte {
	var b []byte
	if item.Text != nil {
		b = protowire.AppendTag(b, fieldCompositeItemText, protowire.BytesType)
		b = protowire.AppendString(b, *item.Text)
	}
	if item.Button != nil {
		var btn []byte
		btn = protowire.AppendTag(btn, fieldButtonId, protowire.BytesType)
		btn = protowire.AppendString(btn, item.Button.ButtonId)
		btn = protowire.AppendTag(btn, fieldButtonText, protowire.BytesType)
		btn = protowire.AppendString(btn, item.Button.Text)
		b = protowire.AppendTag(b, fieldCompositeItemButton, protowire.BytesType)
		b = protowire.AppendBytes(b, btn)
	}
	return b
}

func encodeCallingEmoji(emojis map[string]int32) []byte {
	var b []byte
	for emoji, count := range emojis {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldCallingEmojiEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, emoji)
		entry = protowire.AppendTag(entry, fieldCallingEmojiEntryVal, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(count))
		b = protowire.AppendTag(b, fieldCallingEmojiEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func boolVarint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// Decode parses the generic-message protobuf wire format into a
// WireMessage, attaching the caller-supplied identity fields (sender
// and timestamp are not serialized on the wire; conversationId is
// supplied by the router from the enclosing event).
func Decode(data []byte, conversationID, sender model.QualifiedId, timestamp time.Time) (model.WireMessage, error) {
	var id uuid.UUID
	var contentField int32
	var content []byte
	haveContent := false

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldMessageID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode: bad message id: %w", protowire.ParseError(n))
			}
			data = data[n:]
			parsed, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("wiremsgpb: decode: invalid message id: %w", err)
			}
			id = parsed
		default:
			if typ != protowire.BytesType {
				n := protowire.ConsumeFieldValue(num, typ, data)
				if n < 0 {
					return nil, fmt.Errorf("wiremsgpb: decode: bad field: %w", protowire.ParseError(n))
				}
				data = data[n:]
				continue
			}
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode: bad content: %w", protowire.ParseError(n))
			}
			data = data[n:]
			contentField = int32(num)
			content = v
			haveContent = true
		}
	}

	base := model.Base{Id: id, ConversationId: conversationID, Sender: sender, Timestamp: timestamp}
	if !haveContent {
		return model.Unknown{Base: base, Kind: "empty"}, nil
	}

	return decodeContent(base, contentField, content)
}

func decodeContent(base model.Base, field int32, content []byte) (model.WireMessage, error) {
	switch field {
	case fieldText:
		text, err := decodeText(content)
		if err != nil {
			return nil, err
		}
		return model.Text{Base: base, Content: text}, nil
	case fieldAsset:
		a, err := decodeAsset(base, content)
		if err != nil {
			return nil, err
		}
		return a, nil
	case fieldKnock:
		return model.Knock{Base: base}, nil
	case fieldLocation:
		return decodeLocation(base, content)
	case fieldDeleted:
		refID, err := decodeSingleStringField(content, fieldDeletedMessageId)
		if err != nil {
			return nil, err
		}
		ref, err := uuid.Parse(refID)
		if err != nil {
			return nil, fmt.Errorf("wiremsgpb: decode: invalid deleted reference: %w", err)
		}
		return model.Deleted{Base: base, ReferenceMsgId: ref}, nil
	case fieldComposite:
		items, err := decodeCompositeItems(content)
		if err != nil {
			return nil, err
		}
		return model.Composite{Base: base, Items: items}, nil
	case fieldCalling:
		return decodeCalling(base, content)
	case fieldEdited:
		return decodeEdited(base, content)
	case fieldReceipt:
		return decodeReceipt(base, content)
	case fieldReaction:
		return decodeReaction(base, content)
	case fieldButtonAction:
		return decodeButtonAction(base, content)
	case fieldButtonActionConfirmation:
		return decodeButtonActionConfirmation(base, content)
	case fieldEphemeral:
		return decodeEphemeral(base, content)
	default:
		return model.Unknown{Base: base, Kind: fmt.Sprintf("field_%d", field)}, nil
	}
}

func decodeText(content []byte) (string, error) {
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return "", fmt.Errorf("wiremsgpb: decode text: %w", protowire.ParseError(n))
		}
		content = content[n:]
		if num == fieldTextContent && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return "", fmt.Errorf("wiremsgpb: decode text content: %w", protowire.ParseError(n))
			}
			return v, nil
		}
		n = protowire.ConsumeFieldValue(num, typ, content)
		if n < 0 {
			return "", fmt.Errorf("wiremsgpb: decode text: %w", protowire.ParseError(n))
		}
		content = content[n:]
	}
	return "", nil
}

func decodeAsset(base model.Base, content []byte) (model.Asset, error) {
	a := model.Asset{Base: base}
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return a, fmt.Errorf("wiremsgpb: decode asset: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldAssetId && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return a, fmt.Errorf("wiremsgpb: decode asset id: %w", protowire.ParseError(n))
			}
			a.AssetId = v
			content = content[n:]
		case num == fieldAssetDomain && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return a, fmt.Errorf("wiremsgpb: decode asset domain: %w", protowire.ParseError(n))
			}
			a.AssetDomain = v
			content = content[n:]
		case num == fieldAssetToken && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return a, fmt.Errorf("wiremsgpb: decode asset token: %w", protowire.ParseError(n))
			}
			a.AssetToken = v
			content = content[n:]
		case num == fieldAssetOtrKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(content)
			if n < 0 {
				return a, fmt.Errorf("wiremsgpb: decode asset otr key: %w", protowire.ParseError(n))
			}
			a.OtrKey = v
			content = content[n:]
		case num == fieldAssetSha256 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(content)
			if n < 0 {
				return a, fmt.Errorf("wiremsgpb: decode asset sha256: %w", protowire.ParseError(n))
			}
			a.Sha256 = v
			content = content[n:]
		case num == fieldAssetMime && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return a, fmt.Errorf("wiremsgpb: decode asset mime: %w", protowire.ParseError(n))
			}
			a.MimeType = v
			content = content[n:]
		case num == fieldAssetSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(content)
			if n < 0 {
				return a, fmt.Errorf("wiremsgpb: decode asset size: %w", protowire.ParseError(n))
			}
			a.Size = int64(v)
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return a, fmt.Errorf("wiremsgpb: decode asset: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}
	return a, nil
}

func decodeLocation(base model.Base, content []byte) (model.Location, error) {
	l := model.Location{Base: base}
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return l, fmt.Errorf("wiremsgpb: decode location: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == 1 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(content)
			if n < 0 {
				return l, fmt.Errorf("wiremsgpb: decode location lat: %w", protowire.ParseError(n))
			}
			l.Latitude = math.Float32frombits(v)
			content = content[n:]
		case num == 2 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(content)
			if n < 0 {
				return l, fmt.Errorf("wiremsgpb: decode location lon: %w", protowire.ParseError(n))
			}
			l.Longitude = math.Float32frombits(v)
			content = content[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return l, fmt.Errorf("wiremsgpb: decode location name: %w", protowire.ParseError(n))
			}
			l.Name = v
			content = content[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(content)
			if n < 0 {
				return l, fmt.Errorf("wiremsgpb: decode location zoom: %w", protowire.ParseError(n))
			}
			l.Zoom = int32(v)
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return l, fmt.Errorf("wiremsgpb: decode location: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}
	return l, nil
}

// decodeSingleStringField extracts the string value of wantField from
// a flat submessage with no other fields of interest.
func decodeSingleStringField(content []byte, wantField int32) (string, error) {
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return "", fmt.Errorf("wiremsgpb: decode: %w", protowire.ParseError(n))
		}
		content = content[n:]
		if num == protowire.Number(wantField) && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return "", fmt.Errorf("wiremsgpb: decode: %w", protowire.ParseError(n))
			}
			return v, nil
		}
		n = protowire.ConsumeFieldValue(num, typ, content)
		if n < 0 {
			return "", fmt.Errorf("wiremsgpb: decode: %w", protowire.ParseError(n))
		}
		content = content[n:]
	}
	return "", nil
}

// Edited whose payload is neither text nor composite decodes to
// Ignored (spec §4.6).
func decodeEdited(base model.Base, content []byte) (model.WireMessage, error) {
	var refID string
	var textContent *string
	var compositeItems []model.CompositeItem
	haveComposite := false

	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode edited: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldEditedReplacingId && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode edited ref: %w", protowire.ParseError(n))
			}
			refID = v
			content = content[n:]
		case num == fieldEditedText && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode edited text: %w", protowire.ParseError(n))
			}
			inner, err := decodeText(v)
			if err != nil {
				return nil, err
			}
			textContent = &inner
			content = content[n:]
		case num == fieldEditedComposite && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode edited composite: %w", protowire.ParseError(n))
			}
			items, err := decodeCompositeItems(v)
			if err != nil {
				return nil, err
			}
			compositeItems = items
			haveComposite = true
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode edited: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}

	if textContent == nil && !haveComposite {
		return model.Ignored{Base: base}, nil
	}
	ref, err := uuid.Parse(refID)
	if err != nil {
		return nil, fmt.Errorf("wiremsgpb: decode edited: invalid reference id: %w", err)
	}
	if haveComposite {
		return model.CompositeEdited{Base: base, ReferenceMsgId: ref, Items: compositeItems}, nil
	}
	return model.TextEdited{Base: base, ReferenceMsgId: ref, NewContent: *textContent}, nil
}

func decodeReceipt(base model.Base, content []byte) (model.WireMessage, error) {
	var wireType int64 = -1
	var refs []uuid.UUID

	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode receipt: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldReceiptType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode receipt type: %w", protowire.ParseError(n))
			}
			wireType = int64(v)
			content = content[n:]
		case num == fieldReceiptMessageIds && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode receipt message id: %w", protowire.ParseError(n))
			}
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("wiremsgpb: decode receipt: invalid message id: %w", err)
			}
			refs = append(refs, id)
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode receipt: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}

	// Collapses to Ignored if the confirmation type is neither
	// DELIVERED nor READ.
	switch wireType {
	case wireReceiptDelivered:
		return model.Receipt{Base: base, Type: model.ReceiptDelivered, ReferenceMsgId: refs}, nil
	case wireReceiptRead:
		return model.Receipt{Base: base, Type: model.ReceiptRead, ReferenceMsgId: refs}, nil
	default:
		return model.Ignored{Base: base}, nil
	}
}

func decodeReaction(base model.Base, content []byte) (model.Reaction, error) {
	r := model.Reaction{Base: base}
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return r, fmt.Errorf("wiremsgpb: decode reaction: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldReactionMessageId && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return r, fmt.Errorf("wiremsgpb: decode reaction ref: %w", protowire.ParseError(n))
			}
			id, err := uuid.Parse(v)
			if err != nil {
				return r, fmt.Errorf("wiremsgpb: decode reaction: invalid reference id: %w", err)
			}
			r.ReferenceMsgId = id
			content = content[n:]
		case num == fieldReactionEmoji && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return r, fmt.Errorf("wiremsgpb: decode reaction emoji: %w", protowire.ParseError(n))
			}
			r.Emoji = v
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return r, fmt.Errorf("wiremsgpb: decode reaction: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}
	return r, nil
}

func decodeButtonAction(base model.Base, content []byte) (model.ButtonAction, error) {
	ba := model.ButtonAction{Base: base}
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return ba, fmt.Errorf("wiremsgpb: decode button action: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldButtonActionReferenceMessageId && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return ba, fmt.Errorf("wiremsgpb: decode button action ref: %w", protowire.ParseError(n))
			}
			id, err := uuid.Parse(v)
			if err != nil {
				return ba, fmt.Errorf("wiremsgpb: decode button action: invalid reference id: %w", err)
			}
			ba.ReferenceMsgId = id
			content = content[n:]
		case num == fieldButtonActionButtonId && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return ba, fmt.Errorf("wiremsgpb: decode button action id: %w", protowire.ParseError(n))
			}
			ba.ButtonId = v
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return ba, fmt.Errorf("wiremsgpb: decode button action: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}
	return ba, nil
}

// ButtonActionConfirmation.buttonId is omitted from the wire when
// null; decode leaves it nil in that case.
func decodeButtonActionConfirmation(base model.Base, content []byte) (model.ButtonActionConfirmation, error) {
	bac := model.ButtonActionConfirmation{Base: base}
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return bac, fmt.Errorf("wiremsgpb: decode button confirmation: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldButtonActionConfirmationReferenceMessageId && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return bac, fmt.Errorf("wiremsgpb: decode button confirmation ref: %w", protowire.ParseError(n))
			}
			id, err := uuid.Parse(v)
			if err != nil {
				return bac, fmt.Errorf("wiremsgpb: decode button confirmation: invalid reference id: %w", err)
			}
			bac.ReferenceMsgId = id
			content = content[n:]
		case num == fieldButtonActionConfirmationButtonId && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return bac, fmt.Errorf("wiremsgpb: decode button confirmation id: %w", protowire.ParseError(n))
			}
			bac.ButtonId = &v
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return bac, fmt.Errorf("wiremsgpb: decode button confirmation: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}
	return bac, nil
}

// Ephemeral unwraps its inner content and propagates expire_after onto
// the returned variant; unknown inner content collapses to Ignored.
func decodeEphemeral(base model.Base, content []byte) (model.WireMessage, error) {
	var expireMillis uint64
	var innerField int32
	var innerContent []byte
	haveInner := false

	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode ephemeral: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldEphemeralExpireMillis && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode ephemeral expiry: %w", protowire.ParseError(n))
			}
			expireMillis = v
			content = content[n:]
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode ephemeral inner: %w", protowire.ParseError(n))
			}
			innerField = int32(num)
			innerContent = v
			haveInner = true
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode ephemeral: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}

	if !haveInner {
		return model.Ignored{Base: base}, nil
	}

	expiry := time.Duration(expireMillis) * time.Millisecond

	switch innerField {
	case fieldEphemeralText:
		text, err := decodeText(innerContent)
		if err != nil {
			return nil, err
		}
		return model.Ephemeral{Base: base, Inner: model.Text{Base: base, Content: text}, ExpireAfter: expiry}, nil
	case fieldEphemeralAsset:
		a, err := decodeAsset(base, innerContent)
		if err != nil {
			return nil, err
		}
		return model.Ephemeral{Base: base, Inner: a, ExpireAfter: expiry}, nil
	case fieldEphemeralKnock:
		return model.Ephemeral{Base: base, Inner: model.Knock{Base: base}, ExpireAfter: expiry}, nil
	case fieldEphemeralLocation:
		l, err := decodeLocation(base, innerContent)
		if err != nil {
			return nil, err
		}
		return model.Ephemeral{Base: base, Inner: l, ExpireAfter: expiry}, nil
	default:
		// Unknown inner content.
		return model.Ignored{Base: base}, nil
	}
}

func decodeCompositeItems(content []byte) ([]model.CompositeItem, error) {
	var items []model.CompositeItem
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode composite: %w", protowire.ParseError(n))
		}
		content = content[n:]
		if num == fieldCompositeItems && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode composite item: %w", protowire.ParseError(n))
			}
			item, err := decodeCompositeItem(v)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			content = content[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode composite: %w", protowire.ParseError(n))
		}
		content = content[n:]
	}
	return items, nil
}

func decodeCompositeItem(content []byte) (model.CompositeItem, error) {
	var item model.CompositeItem
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return item, fmt.Errorf("wiremsgpb: decode composite item: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldCompositeItemText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return item, fmt.Errorf("wiremsgpb: decode composite item text: %w", protowire.ParseError(n))
			}
			item.Text = &v
			content = content[n:]
		case num == fieldCompositeItemButton && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(content)
			if n < 0 {
				return item, fmt.Errorf("wiremsgpb: decode composite item button: %w", protowire.ParseError(n))
			}
			btn, err := decodeCompositeButton(v)
			if err != nil {
				return item, err
			}
			item.Button = &btn
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return item, fmt.Errorf("wiremsgpb: decode composite item: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}
	return item, nil
}

func decodeCompositeButton(content []byte) (model.Button, error) {
	var btn model.Button
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return btn, fmt.Errorf("wiremsgpb: decode composite button: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldButtonId && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return btn, fmt.Errorf("wiremsgpb: decode composite button id: %w", protowire.ParseError(n))
			}
			btn.ButtonId = v
			content = content[n:]
		case num == fieldButtonText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return btn, fmt.Errorf("wiremsgpb: decode composite button text: %w", protowire.ParseError(n))
			}
			btn.Text = v
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return btn, fmt.Errorf("wiremsgpb: decode composite button: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}
	return btn, nil
}

// Calling whose payload is neither an emoji reaction nor a hand-raise
// decodes to Ignored.
func decodeCalling(base model.Base, content []byte) (model.WireMessage, error) {
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode calling: %w", protowire.ParseError(n))
		}
		content = content[n:]
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode calling: %w", protowire.ParseError(n))
			}
			content = content[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode calling: %w", protowire.ParseError(n))
		}
		content = content[n:]

		switch num {
		case fieldCallingEmoji:
			emojis, err := decodeCallingEmoji(v)
			if err != nil {
				return nil, err
			}
			return model.InCallEmoji{Base: base, Emojis: emojis}, nil
		case fieldCallingHandRaise:
			isUp, err := decodeCallingHandRaise(v)
			if err != nil {
				return nil, err
			}
			return model.InCallHandRaise{Base: base, IsHandUp: isUp}, nil
		}
	}
	return model.Ignored{Base: base}, nil
}

func decodeCallingEmoji(content []byte) (map[string]int32, error) {
	out := map[string]int32{}
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode calling emoji: %w", protowire.ParseError(n))
		}
		content = content[n:]
		if num != fieldCallingEmojiEntry || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return nil, fmt.Errorf("wiremsgpb: decode calling emoji: %w", protowire.ParseError(n))
			}
			content = content[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(content)
		if n < 0 {
			return nil, fmt.Errorf("wiremsgpb: decode calling emoji entry: %w", protowire.ParseError(n))
		}
		content = content[n:]
		key, count, err := decodeCallingEmojiEntry(v)
		if err != nil {
			return nil, err
		}
		out[key] = count
	}
	return out, nil
}

func decodeCallingEmojiEntry(content []byte) (string, int32, error) {
	var key string
	var count int32
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return "", 0, fmt.Errorf("wiremsgpb: decode calling emoji entry: %w", protowire.ParseError(n))
		}
		content = content[n:]
		switch {
		case num == fieldCallingEmojiEntryKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(content)
			if n < 0 {
				return "", 0, fmt.Errorf("wiremsgpb: decode calling emoji key: %w", protowire.ParseError(n))
			}
			key = v
			content = content[n:]
		case num == fieldCallingEmojiEntryVal && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(content)
			if n < 0 {
				return "", 0, fmt.Errorf("wiremsgpb: decode calling emoji count: %w", protowire.ParseError(n))
			}
			count = int32(v)
			content = content[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, content)
			if n < 0 {
				return "", 0, fmt.Errorf("wiremsgpb: decode calling emoji entry: %w", protowire.ParseError(n))
			}
			content = content[n:]
		}
	}
	return key, count, nil
}

func decodeCallingHandRaise(content []byte) (bool, error) {
	isUp := false
	for len(content) > 0 {
		num, typ, n := protowire.ConsumeTag(content)
		if n < 0 {
			return false, fmt.Errorf("wiremsgpb: decode calling hand raise: %w", protowire.ParseError(n))
		}
		content = content[n:]
		if num == fieldCallingHandRaiseIsUp && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(content)
			if n < 0 {
				return false, fmt.Errorf("wiremsgpb: decode calling hand raise: %w", protowire.ParseError(n))
			}
			isUp = v != 0
			content = content[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, content)
		if n < 0 {
			return false, fmt.Errorf("wiremsgpb: decode calling hand raise: %w", protowire.ParseError(n))
		}
		content = content[n:]
	}
	return isUp, nil
}
