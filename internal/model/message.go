package model

import (
	"time"

	"github.com/google/uuid"
)

// WireMessage is the closed tagged sum of decoded message content.
// Every non-Unknown/Ignored variant embeds Base, which carries the
// fields common to all content-bearing messages.
type WireMessage interface {
	isWireMessage()
	Base() Base
}

// Base carries the fields every content-bearing WireMessage variant
// has at minimum.
type Base struct {
	Id             uuid.UUID
	ConversationId QualifiedId
	Sender         QualifiedId
	Timestamp      time.Time
}

func (b Base) Base() Base { return b }

type Text struct {
	Base
	Content string
}

type Asset struct {
	Base
	AssetId     string
	AssetDomain string
	AssetToken  string
	OtrKey      []byte
	Sha256      []byte
	MimeType    string
	Size        int64
}

type Composite struct {
	Base
	Items []CompositeItem
}

// CompositeItem is one element of a Composite message: either a text
// chunk or a button.
type CompositeItem struct {
	Text   *string
	Button *Button
}

type Button struct {
	Base
	ButtonId string
	Text     string
}

type ButtonAction struct {
	Base
	ButtonId       string
	ReferenceMsgId uuid.UUID
}

// ButtonActionConfirmation's ButtonId is omitted from the wire when
// nil (see ProtobufCodec semantics).
type ButtonActionConfirmation struct {
	Base
	ReferenceMsgId uuid.UUID
	ButtonId       *string
}

type Knock struct {
	Base
}

type Location struct {
	Base
	Latitude  float32
	Longitude float32
	Name      string
	Zoom      int32
}

type Deleted struct {
	Base
	ReferenceMsgId uuid.UUID
}

type TextEdited struct {
	Base
	ReferenceMsgId uuid.UUID
	NewContent     string
}

type CompositeEdited struct {
	Base
	ReferenceMsgId uuid.UUID
	Items          []CompositeItem
}

// ReceiptType distinguishes the two confirmation types the wire
// format supports; anything else collapses to Ignored.
type ReceiptType int

const (
	ReceiptDelivered ReceiptType = iota
	ReceiptRead
)

type Receipt struct {
	Base
	Type           ReceiptType
	ReferenceMsgId []uuid.UUID
}

type Reaction struct {
	Base
	ReferenceMsgId uuid.UUID
	Emoji          string
}

type InCallEmoji struct {
	Base
	Emojis map[string]int32
}

type InCallHandRaise struct {
	Base
	IsHandUp bool
}

// Ephemeral wraps one of Text/Asset/Knock/Location and propagates
// ExpireAfter onto the inner variant's lifetime. Unknown inner
// content decodes to Ignored instead of Ephemeral.
type Ephemeral struct {
	Base
	Inner       WireMessage
	ExpireAfter time.Duration
}

// Ignored marks wire content that decoded successfully but carries no
// actionable payload (e.g. a Receipt of an unsupported type).
type Ignored struct {
	Base
}

// Unknown is the catch-all for unrecognized top-level content, closed
// tagged sum with a future-proofing escape hatch.
type Unknown struct {
	Base
	Kind string
}

func (Text) isWireMessage()                     {}
func (Asset) isWireMessage()                    {}
func (Composite) isWireMessage()                {}
func (Button) isWireMessage()                   {}
func (ButtonAction) isWireMessage()              {}
func (ButtonActionConfirmation) isWireMessage() {}
func (Knock) isWireMessage()                    {}
func (Location) isWireMessage()                 {}
func (Deleted) isWireMessage()                  {}
func (TextEdited) isWireMessage()                {}
func (CompositeEdited) isWireMessage()          {}
func (Receipt) isWireMessage()                  {}
func (Reaction) isWireMessage()                 {}
func (InCallEmoji) isWireMessage()              {}
func (InCallHandRaise) isWireMessage()          {}
func (Ephemeral) isWireMessage()                {}
func (Ignored) isWireMessage()                  {}
func (Unknown) isWireMessage()                  {}
