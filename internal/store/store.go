// Package store defines the SDK's persistence interfaces — idempotent
// projections of teams, conversations, members and SDK bookkeeping
// (C1). Concrete implementations live in sqlstore (SQLite) and
// memstore (in-memory, for tests).
package store

import (
	"context"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// TeamStore projects the set of teams the app has accepted an invite
// for.
type TeamStore interface {
	Insert(ctx context.Context, teamID model.TeamId) error
	GetAll(ctx context.Context) ([]model.TeamId, error)
}

// ConversationStore projects conversations and their members.
// Member batch writes run under a single storage transaction (I2, P3).
type ConversationStore interface {
	Upsert(ctx context.Context, c model.ConversationEntity) error
	Get(ctx context.Context, id model.QualifiedId) (*model.ConversationEntity, bool, error)
	UpdateEpoch(ctx context.Context, id model.QualifiedId, epoch uint64) error
	Delete(ctx context.Context, id model.QualifiedId) error
	ListAll(ctx context.Context) ([]model.ConversationEntity, error)

	UpsertMembers(ctx context.Context, convID model.QualifiedId, members []model.ConversationMember) error
	DeleteMembers(ctx context.Context, convID model.QualifiedId, userIDs []model.QualifiedId) error
	UpdateMemberRole(ctx context.Context, convID, userID model.QualifiedId, role model.Role) error
	ListMembers(ctx context.Context, convID model.QualifiedId) ([]model.ConversationMember, error)
	GetMember(ctx context.Context, convID, userID model.QualifiedId) (*model.ConversationMember, bool, error)
}

// AppStore is the SDK's key/value bookkeeping table. Reserved keys
// are listed in model.AppData*.
type AppStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
