// Package appmanager implements AppManager (C10, spec §4.5): the
// public façade for sending messages and assets, a thin orchestrator
// sitting over ProtobufCodec (C3), CryptoEngine (C2), the backend
// client, and ConversationService (C5).
package appmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wireapp/wire-apps-go-sdk/internal/asset"
	"github.com/wireapp/wire-apps-go-sdk/internal/conversation"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
	"github.com/wireapp/wire-apps-go-sdk/internal/store"
	"github.com/wireapp/wire-apps-go-sdk/internal/wiremsgpb"
)

// Backend is the subset of internal/backend.Client AppManager needs
// for sending a raw MLS ciphertext.
type Backend interface {
	PostMlsMessage(ctx context.Context, ciphertext []byte) error
}

// Manager is the public façade (C10).
type Manager struct {
	backend Backend
	crypto  cryptoengine.Engine
	convs   store.ConversationStore
	service *conversation.Service
	assets  *asset.Service
	domain  string
}

// New wires the façade. convService supplies MlsFallback.VerifyConversationOutOfSync
// for the single-retry-on-stale-epoch path (spec §4.5 step 4) and is
// also where CreateGroup/AddMembersToConversation/etc. live — this
// type only adds the send/receive path on top of it.
func New(b Backend, crypto cryptoengine.Engine, convs store.ConversationStore, convService *conversation.Service, assets *asset.Service, domain string) *Manager {
	return &Manager{
		backend: b,
		crypto:  crypto,
		convs:   convs,
		service: convService,
		assets:  assets,
		domain:  domain,
	}
}

// SendMessage implements the §4.5 sendMessage contract.
func (m *Manager) SendMessage(ctx context.Context, message model.WireMessage) (uuid.UUID, error) {
	convID := message.Base().ConversationId
	entity, ok, err := m.convs.Get(ctx, convID)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, sdkerr.New(sdkerr.EntityNotFound, "conversation not found: "+convID.String())
	}

	plaintext, err := wiremsgpb.Encode(message)
	if err != nil {
		return uuid.Nil, err
	}

	if err := m.encryptAndPost(ctx, entity.MlsGroupId, plaintext); err != nil {
		if isStaleEpoch(err) {
			if _, syncErr := m.service.VerifyConversationOutOfSync(ctx, convID); syncErr != nil {
				return uuid.Nil, fmt.Errorf("appmanager: resync after stale epoch: %w", syncErr)
			}
			// Re-fetch: VerifyConversationOutOfSync may have rotated the
			// group's state (external commit) before we retry.
			entity, ok, err = m.convs.Get(ctx, convID)
			if err != nil {
				return uuid.Nil, err
			}
			if !ok {
				return uuid.Nil, sdkerr.New(sdkerr.EntityNotFound, "conversation not found after resync: "+convID.String())
			}
			if err := m.encryptAndPost(ctx, entity.MlsGroupId, plaintext); err != nil {
				return uuid.Nil, fmt.Errorf("appmanager: send after resync retry: %w", err)
			}
		} else {
			return uuid.Nil, err
		}
	}

	return message.Base().Id, nil
}

func (m *Manager) encryptAndPost(ctx context.Context, groupID model.MlsGroupId, plaintext []byte) error {
	ciphertext, err := m.crypto.EncryptMls(ctx, groupID, plaintext)
	if err != nil {
		return err
	}
	return m.backend.PostMlsMessage(ctx, ciphertext)
}

func isStaleEpoch(err error) bool {
	var sdkErr *sdkerr.Error
	if errors.As(err, &sdkErr) {
		return sdkErr.StaleEpoch
	}
	return false
}

// SendAsset uploads plaintext as an asset, then sends a WireMessage
// Asset entry carrying its remote location and decryption material
// (spec §4.5 "Assets").
func (m *Manager) SendAsset(ctx context.Context, convID model.QualifiedId, sender model.QualifiedId, plaintext []byte, mimeType string, public bool, retention string, compress bool) (uuid.UUID, error) {
	remote, err := m.assets.Send(ctx, plaintext, public, retention, compress)
	if err != nil {
		return uuid.Nil, err
	}

	msg := model.Asset{
		Base: model.Base{
			Id:             uuid.New(),
			ConversationId: convID,
			Sender:         sender,
			Timestamp:      time.Now(),
		},
		AssetId:     remote.Key,
		AssetDomain: remote.Domain,
		AssetToken:  remote.Token,
		OtrKey:      remote.OtrKey,
		Sha256:      remote.Sha256,
		MimeType:    mimeType,
		Size:        int64(len(plaintext)),
	}

	return m.SendMessage(ctx, msg)
}

// DownloadAsset fetches and decrypts an asset previously described by
// a received Asset WireMessage.
func (m *Manager) DownloadAsset(ctx context.Context, a model.Asset) ([]byte, error) {
	return m.assets.Download(ctx, asset.Remote{
		Key:    a.AssetId,
		Domain: a.AssetDomain,
		Token:  a.AssetToken,
		OtrKey: a.OtrKey,
		Sha256: a.Sha256,
	})
}

// Conversations exposes the ConversationService façade methods for
// group/channel lifecycle management, so callers only need to hold
// one top-level handle.
func (m *Manager) Conversations() *conversation.Service {
	return m.service
}
