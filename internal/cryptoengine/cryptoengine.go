// Package cryptoengine defines the narrow capability interface the
// core orchestrates MLS/Proteus primitives through (C2, external
// collaborator per spec §6). The core never talks to a concrete MLS
// library directly; it is unit-testable against fakeengine's
// in-memory double.
package cryptoengine

import (
	"context"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// KeyPackage is an opaque, prepublished MLS key package.
type KeyPackage []byte

// CommitBundle is the commit || groupInfo.payload || welcome? byte
// concatenation posted as a single message/mls body (spec §6).
type CommitBundle struct {
	Commit    []byte
	GroupInfo []byte
	Welcome   []byte // nil when no new member was added
}

// WelcomeOutcome is the tagged result of processWelcome.
type WelcomeOutcome int

const (
	WelcomeOK WelcomeOutcome = iota
	WelcomeOrphan
)

// Engine is the capability set CryptoEngine exposes to the core.
// Implementations must make each call appear atomic: callers treat
// every call as a transaction boundary, and the router's
// per-conversation queueing guarantees no concurrent calls on the
// same group.
type Engine interface {
	// ConversationExists reports whether local MLS state exists for
	// groupID.
	ConversationExists(ctx context.Context, groupID model.MlsGroupId) (bool, error)

	// ProcessWelcome ingests a welcome message. Orphan welcomes (no
	// prior group state to anchor to) return WelcomeOrphan rather
	// than an error; the caller recovers via joining by external
	// commit.
	ProcessWelcome(ctx context.Context, welcome []byte) (groupID model.MlsGroupId, outcome WelcomeOutcome, err error)

	// DecryptMls decrypts an inbound MLS application message. A nil
	// plaintext with a nil error means the message was an epoch
	// update with no application payload.
	DecryptMls(ctx context.Context, groupID model.MlsGroupId, ciphertext []byte) (plaintext []byte, err error)

	// EncryptMls encrypts an outbound application message.
	EncryptMls(ctx context.Context, groupID model.MlsGroupId, plaintext []byte) (ciphertext []byte, err error)

	// JoinByExternalCommit joins a group using only its public
	// GroupInfo, recovering from an orphan welcome or epoch drift.
	JoinByExternalCommit(ctx context.Context, groupInfo []byte) (groupID model.MlsGroupId, bundle CommitBundle, err error)

	// CreateConversation creates a new MLS group with the given
	// external senders public key material.
	CreateConversation(ctx context.Context, groupID model.MlsGroupId, externalSenders []byte) error

	// AddMembers commits the given key packages to the group.
	AddMembers(ctx context.Context, groupID model.MlsGroupId, keyPackages []KeyPackage) (CommitBundle, error)

	// RemoveMembers commits removal of the given clients from the
	// group.
	RemoveMembers(ctx context.Context, groupID model.MlsGroupId, clients []model.CryptoClientId) (CommitBundle, error)

	// UpdateKeyingMaterial seals a self-commit (e.g. an empty group
	// with no members claimed yet).
	UpdateKeyingMaterial(ctx context.Context, groupID model.MlsGroupId) (CommitBundle, error)

	// GenerateKeyPackages generates count fresh key packages for this
	// client at the given ciphersuite.
	GenerateKeyPackages(ctx context.Context, count int, ciphersuite uint16) ([]KeyPackage, error)

	// PublicKey returns this client's MLS signature public key.
	PublicKey(ctx context.Context, ciphersuite uint16) ([]byte, error)

	// HasTooFewKeyPackages reports whether the locally tracked valid
	// key-package count is below defaultCount/2 (I4).
	HasTooFewKeyPackages(ctx context.Context, defaultCount int) (bool, error)

	// ConversationEpoch returns the locally known epoch for groupID.
	ConversationEpoch(ctx context.Context, groupID model.MlsGroupId) (uint64, error)

	// WipeConversation destroys local MLS state for groupID.
	WipeConversation(ctx context.Context, groupID model.MlsGroupId) error
}
