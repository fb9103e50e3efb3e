package conversation

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/wire-apps-go-sdk/internal/backend"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine/fakeengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/handler"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
	"github.com/wireapp/wire-apps-go-sdk/internal/store/memstore"
)

type fakeBackend struct {
	conversations       map[string]backend.ConversationResponse
	removalKeys         map[string]string
	claimResponses      map[string]*backend.KeyPackageClaimResponse
	claimErr            map[string]error
	commitBundles       [][]byte
	memberRoles         map[string]string
	removedMembers      []string
	deletedConvs        []string
	uploadedKeyPackages map[string][]string

	// failCommitsWithStaleEpoch, when > 0, makes that many remaining
	// PostCommitBundle calls fail with a stale-epoch error before
	// succeeding again.
	failCommitsWithStaleEpoch int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		conversations:  map[string]backend.ConversationResponse{},
		removalKeys:    map[string]string{"ed25519": base64.StdEncoding.EncodeToString([]byte("external-senders-key"))},
		claimResponses: map[string]*backend.KeyPackageClaimResponse{},
		claimErr:       map[string]error{},
		memberRoles:    map[string]string{},
	}
}

func (f *fakeBackend) CreateConversation(ctx context.Context, req backend.CreateConversationRequest) (*backend.ConversationResponse, error) {
	resp := backend.ConversationResponse{
		Id:       uuid.New().String(),
		Domain:   "example.com",
		Name:     req.Name,
		GroupId:  base64.StdEncoding.EncodeToString([]byte("group-" + req.Name)),
		Type:     req.Type,
		Protocol: "mls",
	}
	f.conversations[resp.Domain+"/"+resp.Id] = resp
	return &resp, nil
}

func (f *fakeBackend) GetConversation(ctx context.Context, domain, id string) (*backend.ConversationResponse, error) {
	resp, ok := f.conversations[domain+"/"+id]
	if !ok {
		return nil, assert.AnError
	}
	return &resp, nil
}

func (f *fakeBackend) GetOneToOneConversation(ctx context.Context, domain, id string) (*backend.ConversationResponse, error) {
	resp := backend.ConversationResponse{Id: uuid.New().String(), Domain: "example.com", GroupId: base64.StdEncoding.EncodeToString([]byte("o2o-group")), Type: int(model.ConversationTypeOneToOne), Protocol: "mls"}
	f.conversations[resp.Domain+"/"+resp.Id] = resp
	return &resp, nil
}

func (f *fakeBackend) GetGroupInfo(ctx context.Context, domain, id string) ([]byte, error) {
	return []byte("group-info-" + id), nil
}

func (f *fakeBackend) DeleteTeamConversation(ctx context.Context, teamID, convID string) error {
	f.deletedConvs = append(f.deletedConvs, convID)
	return nil
}

func (f *fakeBackend) RemoveMember(ctx context.Context, convDomain, convID, userDomain, userID string) error {
	f.removedMembers = append(f.removedMembers, userID)
	return nil
}

func (f *fakeBackend) UpdateMemberRole(ctx context.Context, convDomain, convID, userDomain, userID, role string) error {
	f.memberRoles[userID] = role
	return nil
}

func (f *fakeBackend) ListConversationIds(ctx context.Context, pagingState string, size int) ([]backend.QualifiedIdJSON, string, bool, error) {
	return nil, "", false, nil
}

func (f *fakeBackend) ListConversations(ctx context.Context, ids []backend.QualifiedIdJSON) ([]backend.ConversationResponse, error) {
	return nil, nil
}

func (f *fakeBackend) ClaimKeyPackages(ctx context.Context, domain, userID string, ciphersuite uint16) (*backend.KeyPackageClaimResponse, error) {
	if err, ok := f.claimErr[userID]; ok {
		return nil, err
	}
	if resp, ok := f.claimResponses[userID]; ok {
		return resp, nil
	}
	return &backend.KeyPackageClaimResponse{
		KeyPackages: []backend.KeyPackageEntry{{User: userID, Domain: domain, KeyPackage: base64.StdEncoding.EncodeToString([]byte("kp-" + userID))}},
	}, nil
}

func (f *fakeBackend) RemovalPublicKeys(ctx context.Context) (map[string]string, error) {
	return f.removalKeys, nil
}

func (f *fakeBackend) PostCommitBundle(ctx context.Context, bundle []byte) error {
	if f.failCommitsWithStaleEpoch > 0 {
		f.failCommitsWithStaleEpoch--
		return &sdkerr.Error{Code: sdkerr.ClientError, Msg: "stale", StaleEpoch: true}
	}
	f.commitBundles = append(f.commitBundles, bundle)
	return nil
}

func (f *fakeBackend) UploadKeyPackages(ctx context.Context, deviceID string, keyPackagesB64 []string) error {
	if f.uploadedKeyPackages == nil {
		f.uploadedKeyPackages = map[string][]string{}
	}
	f.uploadedKeyPackages[deviceID] = append(f.uploadedKeyPackages[deviceID], keyPackagesB64...)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeBackend, *fakeengine.Engine, *memstore.ConversationStore) {
	t.Helper()
	fb := newFakeBackend()
	crypto := fakeengine.New()
	convs := memstore.NewConversationStore()
	teams := memstore.NewTeamStore()
	apps := memstore.NewAppStore()
	handlers := handler.New()
	self := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	svc := NewService(fb, crypto, convs, teams, apps, handlers, nil, self, "example.com")
	return svc, fb, crypto, convs
}

func TestCreateGroupPersistsEntityAndCreatesMlsGroup(t *testing.T) {
	svc, _, crypto, convs := newTestService(t)

	convID, err := svc.CreateGroup(context.Background(), "my group", nil)
	require.NoError(t, err)

	entity, ok, err := convs.Get(context.Background(), convID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "my group", entity.Name)

	exists, err := crypto.ConversationExists(context.Background(), entity.MlsGroupId)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateGroupAddsClaimedMembers(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	other := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}

	convID, err := svc.CreateGroup(context.Background(), "team chat", []model.QualifiedId{other})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, convID.ID)
}

func TestAddMembersToConversationReportsPartialFailure(t *testing.T) {
	svc, fb, _, convs := newTestService(t)
	convID, err := svc.CreateGroup(context.Background(), "group", nil)
	require.NoError(t, err)

	good := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	bad := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	fb.claimErr[bad.ID.String()] = assert.AnError

	result, err := svc.AddMembersToConversation(context.Background(), convID, []model.QualifiedId{good, bad})
	require.NoError(t, err)
	assert.Contains(t, result.Added, good)
	assert.Contains(t, result.Failed, bad)

	members, err := convs.ListMembers(context.Background(), convID)
	require.NoError(t, err)
	found := false
	for _, m := range members {
		if m.UserId.Equal(good) {
			found = true
		}
		assert.NotEqual(t, bad, m.UserId)
	}
	assert.True(t, found)
}

func TestAddMembersRefusesOneToOne(t *testing.T) {
	svc, _, _, convs := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	require.NoError(t, convs.Upsert(context.Background(), model.ConversationEntity{
		Id: convID, Type: model.ConversationTypeOneToOne, MlsGroupId: []byte("g"),
	}))

	_, err := svc.AddMembersToConversation(context.Background(), convID, []model.QualifiedId{{ID: uuid.New(), Domain: "example.com"}})
	require.Error(t, err)
}

func TestLeaveConversationRequiresMembership(t *testing.T) {
	svc, _, _, convs := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	require.NoError(t, convs.Upsert(context.Background(), model.ConversationEntity{
		Id: convID, Type: model.ConversationTypeGroup, MlsGroupId: []byte("g"),
	}))

	err := svc.LeaveConversation(context.Background(), convID)
	require.Error(t, err)
}

func TestDeleteConversationRequiresAdmin(t *testing.T) {
	svc, _, _, convs := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	teamID := uuid.New()
	require.NoError(t, convs.Upsert(context.Background(), model.ConversationEntity{
		Id: convID, Type: model.ConversationTypeGroup, MlsGroupId: []byte("g"), TeamId: &teamID,
	}))
	require.NoError(t, convs.UpsertMembers(context.Background(), convID, []model.ConversationMember{
		{ConversationId: convID, UserId: svc.selfUserID, Role: model.RoleMember},
	}))

	err := svc.DeleteConversation(context.Background(), convID)
	require.Error(t, err)
}

func TestVerifyConversationOutOfSyncIsNoOpWhenInSync(t *testing.T) {
	svc, fb, _, convs := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	require.NoError(t, convs.Upsert(context.Background(), model.ConversationEntity{
		Id: convID, Type: model.ConversationTypeGroup, MlsGroupId: []byte("g"), Epoch: 3,
	}))
	fb.conversations["example.com/"+convID.ID.String()] = backend.ConversationResponse{
		Id: convID.ID.String(), Domain: "example.com", Epoch: 3, GroupId: base64.StdEncoding.EncodeToString([]byte("g")),
	}

	inSync, err := svc.VerifyConversationOutOfSync(context.Background(), convID)
	require.NoError(t, err)
	assert.True(t, inSync)
	assert.Empty(t, fb.commitBundles)
}

func TestVerifyConversationOutOfSyncRejoinsOnEpochMismatch(t *testing.T) {
	svc, fb, _, convs := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	require.NoError(t, convs.Upsert(context.Background(), model.ConversationEntity{
		Id: convID, Type: model.ConversationTypeGroup, MlsGroupId: []byte("g"), Epoch: 1,
	}))
	fb.conversations["example.com/"+convID.ID.String()] = backend.ConversationResponse{
		Id: convID.ID.String(), Domain: "example.com", Epoch: 5, GroupId: base64.StdEncoding.EncodeToString([]byte("g")),
		Members: backend.MembersResponse{Self: backend.MemberResponse{Id: svc.selfUserID.ID.String(), Domain: "example.com", Role: "MEMBER"}},
	}

	inSync, err := svc.VerifyConversationOutOfSync(context.Background(), convID)
	require.NoError(t, err)
	assert.False(t, inSync)
	assert.NotEmpty(t, fb.commitBundles)
}

func TestProcessConversationDeleteFiresHandlerAndWipesState(t *testing.T) {
	svc, _, crypto, convs := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	require.NoError(t, crypto.CreateConversation(context.Background(), []byte("g"), nil))
	require.NoError(t, convs.Upsert(context.Background(), model.ConversationEntity{Id: convID, MlsGroupId: []byte("g")}))

	fired := false
	svc.handlers.OnConversationDeleted(handler.BlockingOrAsync[handler.ConversationDeletedEvent]{
		Blocking: func(ctx context.Context, e handler.ConversationDeletedEvent) error {
			fired = e.ConversationId.Equal(convID)
			return nil
		},
	})

	svc.Process(context.Background(), model.ConversationDeleteEvent{ConversationId: convID})
	svc.handlers.Wait()

	assert.True(t, fired)
	_, ok, err := convs.Get(context.Background(), convID)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := crypto.ConversationExists(context.Background(), []byte("g"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProcessMlsWelcomeRecoversOrphanWelcome(t *testing.T) {
	svc, fb, crypto, convs := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	fb.conversations["example.com/"+convID.ID.String()] = backend.ConversationResponse{
		Id: convID.ID.String(), Domain: "example.com", Type: int(model.ConversationTypeGroup),
		GroupId: base64.StdEncoding.EncodeToString([]byte("group-info-" + convID.ID.String())),
		Members: backend.MembersResponse{Self: backend.MemberResponse{Id: svc.selfUserID.ID.String(), Domain: "example.com", Role: "MEMBER"}},
	}
	crypto.ForceOrphanWelcome = true

	svc.Process(context.Background(), model.ConversationMlsWelcomeEvent{ConversationId: convID, Welcome: []byte("welcome")})

	assert.NotEmpty(t, fb.commitBundles)
	entity, ok, err := convs.Get(context.Background(), convID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ConversationTypeGroup, entity.Type)
}

func TestProcessMlsWelcomeRefusesSelfConversation(t *testing.T) {
	svc, fb, _, convs := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	fb.conversations["example.com/"+convID.ID.String()] = backend.ConversationResponse{
		Id: convID.ID.String(), Domain: "example.com", Type: int(model.ConversationTypeSelf),
		GroupId: base64.StdEncoding.EncodeToString([]byte("self-group")),
	}

	svc.Process(context.Background(), model.ConversationMlsWelcomeEvent{ConversationId: convID, Welcome: []byte("welcome")})

	_, ok, err := convs.Get(context.Background(), convID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fb.commitBundles)
}

func TestProcessMlsWelcomeReplenishesKeyPackageFloor(t *testing.T) {
	svc, fb, crypto, _ := newTestService(t)
	convID := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	groupID := []byte("welcomed-group")
	fb.conversations["example.com/"+convID.ID.String()] = backend.ConversationResponse{
		Id: convID.ID.String(), Domain: "example.com", Type: int(model.ConversationTypeGroup),
		GroupId: base64.StdEncoding.EncodeToString(groupID),
		Members: backend.MembersResponse{Self: backend.MemberResponse{Id: svc.selfUserID.ID.String(), Domain: "example.com", Role: "MEMBER"}},
	}
	crypto.SetKeyPackageCount(0)
	require.NoError(t, svc.apps.Set(context.Background(), model.AppDataDeviceId, "device-1"))

	svc.Process(context.Background(), model.ConversationMlsWelcomeEvent{ConversationId: convID, Welcome: groupID})

	assert.NotEmpty(t, fb.uploadedKeyPackages["device-1"])
}

func TestAddMembersRetriesOnceAfterStaleEpochOnCommit(t *testing.T) {
	svc, fb, _, _ := newTestService(t)
	convID, err := svc.CreateGroup(context.Background(), "group", nil)
	require.NoError(t, err)

	fb.failCommitsWithStaleEpoch = 1
	fb.conversations["example.com/"+convID.ID.String()] = backend.ConversationResponse{
		Id: convID.ID.String(), Domain: "example.com", Type: int(model.ConversationTypeGroup), Epoch: 9,
		GroupId: base64.StdEncoding.EncodeToString([]byte("group-group")),
		Members: backend.MembersResponse{Self: backend.MemberResponse{Id: svc.selfUserID.ID.String(), Domain: "example.com", Role: "MEMBER"}},
	}

	other := model.QualifiedId{ID: uuid.New(), Domain: "example.com"}
	result, err := svc.AddMembersToConversation(context.Background(), convID, []model.QualifiedId{other})
	require.NoError(t, err)

	assert.Contains(t, result.Added, other)
	assert.Empty(t, result.Failed)
	assert.NotEmpty(t, fb.commitBundles)
}
