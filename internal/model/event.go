package model

import "github.com/google/uuid"

// Event is the closed tagged sum of inbound backend events routed by
// EventRouter. EventBase carries the fields every event shares.
type Event interface {
	isEvent()
	EventBase() EventBase
}

// EventBase carries the notification-log identity of an event:
// Id is used for I1 dedup and to advance last_notification_id;
// Transient marks events delivered live but never persisted for
// catch-up.
type EventBase struct {
	Id        uuid.UUID
	Transient bool
}

func (e EventBase) EventBase() EventBase { return e }

type TeamInviteEvent struct {
	EventBase
	TeamId TeamId
}

type ConversationCreateEvent struct {
	EventBase
	ConversationId QualifiedId
	// Embedded, when the backend inlines it on the create event
	// instead of requiring a follow-up fetch.
	Response *ConversationEntity
	Members  []ConversationMember
}

type ConversationDeleteEvent struct {
	EventBase
	ConversationId QualifiedId
}

type ConversationMemberJoinEvent struct {
	EventBase
	ConversationId QualifiedId
	Members        []ConversationMember
}

type ConversationMemberLeaveEvent struct {
	EventBase
	ConversationId QualifiedId
	UserIds        []QualifiedId
}

type ConversationMemberUpdateEvent struct {
	EventBase
	ConversationId QualifiedId
	UserId         QualifiedId
	NewRole        *Role
}

type ConversationMlsWelcomeEvent struct {
	EventBase
	ConversationId QualifiedId
	Welcome        []byte
}

type ConversationNewMlsMessageEvent struct {
	EventBase
	ConversationId QualifiedId
	Sender         QualifiedId
	Ciphertext     []byte
}

type ConversationTypingEvent struct {
	EventBase
	ConversationId QualifiedId
}

// UnknownEvent covers any event kind the router has no first-class
// handling for, including DataTransfer/Availability; Kind holds the
// notification's raw "type" string. conversation.Service logs these
// at debug level and drops them; no handler callback receives them.
type UnknownEvent struct {
	EventBase
	Kind string
}

func (TeamInviteEvent) isEvent()                  {}
func (ConversationCreateEvent) isEvent()          {}
func (ConversationDeleteEvent) isEvent()          {}
func (ConversationMemberJoinEvent) isEvent()      {}
func (ConversationMemberLeaveEvent) isEvent()     {}
func (ConversationMemberUpdateEvent) isEvent()    {}
func (ConversationMlsWelcomeEvent) isEvent()      {}
func (ConversationNewMlsMessageEvent) isEvent()   {}
func (ConversationTypingEvent) isEvent()          {}
func (UnknownEvent) isEvent()                     {}
