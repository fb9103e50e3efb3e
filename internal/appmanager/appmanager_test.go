package appmanager

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/wire-apps-go-sdk/internal/asset"
	"github.com/wireapp/wire-apps-go-sdk/internal/backend"
	"github.com/wireapp/wire-apps-go-sdk/internal/conversation"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine/fakeengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/handler"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
	"github.com/wireapp/wire-apps-go-sdk/internal/store/memstore"
)

// fakeConvBackend implements conversation.Backend just enough to let
// VerifyConversationOutOfSync see a matching epoch and no-op.
type fakeConvBackend struct {
	epoch uint64
	groupID string
}

func (f *fakeConvBackend) CreateConversation(ctx context.Context, req backend.CreateConversationRequest) (*backend.ConversationResponse, error) {
	return nil, assert.AnError
}
func (f *fakeConvBackend) GetConversation(ctx context.Context, domain, id string) (*backend.ConversationResponse, error) {
	return &backend.ConversationResponse{Id: id, Domain: domain, Epoch: f.epoch, GroupId: f.groupID, Type: int(model.ConversationTypeGroup), Protocol: "mls"}, nil
}
func (f *fakeConvBackend) GetOneToOneConversation(ctx context.Context, domain, id string) (*backend.ConversationResponse, error) {
	return nil, assert.AnError
}
func (f *fakeConvBackend) GetGroupInfo(ctx context.Context, domain, id string) ([]byte, error) {
	return []byte("group-info"), nil
}
func (f *fakeConvBackend) DeleteTeamConversation(ctx context.Context, teamID, convID string) error {
	return nil
}
func (f *fakeConvBackend) RemoveMember(ctx context.Context, convDomain, convID, userDomain, userID string) error {
	return nil
}
func (f *fakeConvBackend) UpdateMemberRole(ctx context.Context, convDomain, convID, userDomain, userID, role string) error {
	return nil
}
func (f *fakeConvBackend) ListConversationIds(ctx context.Context, pagingState string, size int) ([]backend.QualifiedIdJSON, string, bool, error) {
	return nil, "", false, nil
}
func (f *fakeConvBackend) ListConversations(ctx context.Context, ids []backend.QualifiedIdJSON) ([]backend.ConversationResponse, error) {
	return nil, nil
}
func (f *fakeConvBackend) ClaimKeyPackages(ctx context.Context, domain, userID string, ciphersuite uint16) (*backend.KeyPackageClaimResponse, error) {
	return nil, assert.AnError
}
func (f *fakeConvBackend) RemovalPublicKeys(ctx context.Context) (map[string]string, error) {
	return nil, nil
}
func (f *fakeConvBackend) PostCommitBundle(ctx context.Context, bundle []byte) error {
	return nil
}
func (f *fakeConvBackend) UploadKeyPackages(ctx context.Context, deviceID string, keyPackagesB64 []string) error {
	return nil
}

type fakePostBackend struct {
	posts      [][]byte
	failNext   bool
	staleEpoch bool
}

func (f *fakePostBackend) PostMlsMessage(ctx context.Context, ciphertext []byte) error {
	if f.failNext {
		f.failNext = false
		return &sdkerr.Error{Code: sdkerr.ClientError, Msg: "stale", StaleEpoch: f.staleEpoch}
	}
	f.posts = append(f.posts, ciphertext)
	return nil
}

type fakeUploader struct {
	uploaded []byte
}

func (f *fakeUploader) UploadAsset(ctx context.Context, body []byte, contentType string) (string, string, string, error) {
	f.uploaded = body
	return "asset-key", "example.com", "asset-token", nil
}

func (f *fakeUploader) DownloadAsset(ctx context.Context, domain, key, token string) ([]byte, error) {
	return nil, nil
}

func newManager(t *testing.T) (*Manager, *fakePostBackend, model.QualifiedId) {
	t.Helper()
	crypto := fakeengine.New()
	convs := memstore.NewConversationStore()
	self := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}

	groupID := model.MlsGroupId("group-x")
	require.NoError(t, crypto.CreateConversation(context.Background(), groupID, nil))

	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	require.NoError(t, convs.Upsert(context.Background(), model.ConversationEntity{
		Id: convID, Type: model.ConversationTypeGroup, MlsGroupId: groupID,
	}))

	convBackend := &fakeConvBackend{epoch: 0, groupID: "Z3JvdXAteA=="}
	svc := conversation.NewService(convBackend, crypto, convs, memstore.NewTeamStore(), memstore.NewAppStore(), handler.New(), nil, self, "example.com")
	assets := asset.NewService(&fakeUploader{}, asset.DefaultMaxDataSize)
	b := &fakePostBackend{}
	m := New(b, crypto, convs, svc, assets, "example.com")
	return m, b, convID
}

func TestSendMessageEncryptsAndPosts(t *testing.T) {
	m, b, convID := newManager(t)

	msg := model.Text{
		Base: model.Base{Id: uuid.New(), ConversationId: convID, Timestamp: time.Now()},
		Content: "hello",
	}

	id, err := m.SendMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, msg.Id, id)
	assert.Len(t, b.posts, 1)
}

func TestSendMessageFailsForUnknownConversation(t *testing.T) {
	m, _, _ := newManager(t)
	msg := model.Text{
		Base:    model.Base{Id: uuid.New(), ConversationId: model.QualifiedId{ID: uuid.New(), Domain: "example.com"}},
		Content: "hi",
	}

	_, err := m.SendMessage(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, sdkerr.Is(err, sdkerr.EntityNotFound))
}

func TestSendMessageRetriesOnceAfterStaleEpoch(t *testing.T) {
	m, b, convID := newManager(t)
	b.failNext = true
	b.staleEpoch = true

	msg := model.Text{
		Base:    model.Base{Id: uuid.New(), ConversationId: convID, Timestamp: time.Now()},
		Content: "hello again",
	}

	id, err := m.SendMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, msg.Id, id)
	assert.Len(t, b.posts, 1)
}

func TestSendAssetUploadsAndSendsMessage(t *testing.T) {
	m, b, convID := newManager(t)
	self := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}

	id, err := m.SendAsset(context.Background(), convID, self, []byte("file contents"), "text/plain", false, "persistent", false)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Len(t, b.posts, 1)
}
