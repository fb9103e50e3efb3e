// Package conversation implements ConversationService (C5) and
// MlsFallback (C6): conversation lifecycle operations, membership
// management, and epoch-drift recovery (spec §4.3/§4.4).
package conversation

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/multierr"

	"github.com/wireapp/wire-apps-go-sdk/internal/backend"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/handler"
	"github.com/wireapp/wire-apps-go-sdk/internal/metrics"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
	"github.com/wireapp/wire-apps-go-sdk/internal/store"
)

// DefaultCiphersuite is the MLS ciphersuite
// (MLS_128_DHKEMX25519_AES128GCM_SHA256_Ed25519) used for every
// ciphersuite-dependent step in this package: key-package claims,
// removal-key lookup and key-package replenishment. The ciphersuite
// internal/bootstrap selects from the feature-config is not consulted
// here.
const DefaultCiphersuite uint16 = 0x0001

// Backend is the subset of internal/backend.Client the conversation
// layer needs.
type Backend interface {
	CreateConversation(ctx context.Context, req backend.CreateConversationRequest) (*backend.ConversationResponse, error)
	GetConversation(ctx context.Context, domain, id string) (*backend.ConversationResponse, error)
	GetOneToOneConversation(ctx context.Context, domain, id string) (*backend.ConversationResponse, error)
	GetGroupInfo(ctx context.Context, domain, id string) ([]byte, error)
	DeleteTeamConversation(ctx context.Context, teamID, convID string) error
	RemoveMember(ctx context.Context, convDomain, convID, userDomain, userID string) error
	UpdateMemberRole(ctx context.Context, convDomain, convID, userDomain, userID, role string) error
	ListConversationIds(ctx context.Context, pagingState string, size int) ([]backend.QualifiedIdJSON, string, bool, error)
	ListConversations(ctx context.Context, ids []backend.QualifiedIdJSON) ([]backend.ConversationResponse, error)
	ClaimKeyPackages(ctx context.Context, domain, userID string, ciphersuite uint16) (*backend.KeyPackageClaimResponse, error)
	RemovalPublicKeys(ctx context.Context) (map[string]string, error)
	PostCommitBundle(ctx context.Context, bundle []byte) error
	UploadKeyPackages(ctx context.Context, deviceID string, keyPackagesB64 []string) error
}

// Service implements ConversationService (C5), MlsFallback (C6) and
// internal/router.Processor (the event processing table, §4.2).
type Service struct {
	backend    Backend
	crypto     cryptoengine.Engine
	convs      store.ConversationStore
	teams      store.TeamStore
	apps       store.AppStore
	handlers   *handler.Registry
	metrics    *metrics.Metrics
	selfUserID model.QualifiedId
	domain     string
}

func NewService(
	b Backend,
	crypto cryptoengine.Engine,
	convs store.ConversationStore,
	teams store.TeamStore,
	apps store.AppStore,
	handlers *handler.Registry,
	m *metrics.Metrics,
	selfUserID model.QualifiedId,
	domain string,
) *Service {
	return &Service{
		backend:    b,
		crypto:     crypto,
		convs:      convs,
		teams:      teams,
		apps:       apps,
		handlers:   handlers,
		metrics:    m,
		selfUserID: selfUserID,
		domain:     domain,
	}
}

// MembershipChangeResult reports a partial-success outcome for
// membership-claiming operations (spec §4.3: "partial success is
// reported").
type MembershipChangeResult struct {
	Added  []model.QualifiedId
	Failed map[model.QualifiedId]error
}

// CreateGroup implements createGroup (spec §4.3).
func (s *Service) CreateGroup(ctx context.Context, name string, userIds []model.QualifiedId) (model.QualifiedId, error) {
	return s.createConversation(ctx, name, userIds, model.ConversationTypeGroup)
}

// CreateChannel implements createChannel (spec §4.3).
func (s *Service) CreateChannel(ctx context.Context, name string, userIds []model.QualifiedId) (model.QualifiedId, error) {
	return s.createConversation(ctx, name, userIds, model.ConversationTypeChannel)
}

func (s *Service) createConversation(ctx context.Context, name string, userIds []model.QualifiedId, convType model.ConversationType) (model.QualifiedId, error) {
	req := backend.CreateConversationRequest{
		Name:           name,
		QualifiedUsers: toQualifiedIdJSON(userIds),
		Type:           int(convType),
		Protocol:       "mls",
	}
	resp, err := s.backend.CreateConversation(ctx, req)
	if err != nil {
		return model.QualifiedId{}, err
	}
	return s.finishCreateConversation(ctx, resp, userIds)
}

// CreateOneToOne implements createOneToOne (spec §4.3).
func (s *Service) CreateOneToOne(ctx context.Context, userID model.QualifiedId) (model.QualifiedId, error) {
	resp, err := s.backend.GetOneToOneConversation(ctx, userID.Domain, userID.ID.String())
	if err != nil {
		return model.QualifiedId{}, err
	}
	return s.finishCreateConversation(ctx, resp, []model.QualifiedId{userID})
}

func (s *Service) finishCreateConversation(ctx context.Context, resp *backend.ConversationResponse, userIds []model.QualifiedId) (model.QualifiedId, error) {
	groupID, err := base64.StdEncoding.DecodeString(resp.GroupId)
	if err != nil {
		return model.QualifiedId{}, fmt.Errorf("conversation: decode group id: %w", err)
	}

	signatureScheme := removalKeyScheme(DefaultCiphersuite)
	keys, err := s.backend.RemovalPublicKeys(ctx)
	if err != nil {
		return model.QualifiedId{}, err
	}
	externalSendersB64, ok := keys[signatureScheme]
	if !ok {
		return model.QualifiedId{}, sdkerr.New(sdkerr.MissingParameter, "no removal public key for ciphersuite "+signatureScheme)
	}
	externalSenders, err := base64.StdEncoding.DecodeString(externalSendersB64)
	if err != nil {
		return model.QualifiedId{}, fmt.Errorf("conversation: decode external senders key: %w", err)
	}

	if err := s.crypto.CreateConversation(ctx, groupID, externalSenders); err != nil {
		return model.QualifiedId{}, err
	}

	convID := model.QualifiedId{ID: mustParseUUID(resp.Id), Domain: resp.Domain}

	allUsers := append(append([]model.QualifiedId{}, userIds...), s.selfUserID)
	result := s.claimAndCommit(ctx, convID, groupID, allUsers)

	if len(result.Added) == 0 {
		if _, err := s.crypto.UpdateKeyingMaterial(ctx, groupID); err != nil {
			return model.QualifiedId{}, err
		}
	}

	entity := model.ConversationEntity{
		Id:         convID,
		Name:       resp.Name,
		MlsGroupId: groupID,
		Epoch:      resp.Epoch,
		Type:       model.ConversationType(resp.Type),
		Protocol:   model.ProtocolMLS,
	}
	if resp.TeamId != "" {
		teamID := mustParseUUID(resp.TeamId)
		entity.TeamId = &teamID
	}
	if err := s.convs.Upsert(ctx, entity); err != nil {
		return model.QualifiedId{}, err
	}

	return convID, nil
}

// AddMembersToConversation implements addMembersToConversation (spec
// §4.3): refuses ONE_TO_ONE conversations, claims key packages per
// user, and reports which users failed rather than failing the whole
// call.
func (s *Service) AddMembersToConversation(ctx context.Context, convID model.QualifiedId, userIds []model.QualifiedId) (MembershipChangeResult, error) {
	entity, ok, err := s.convs.Get(ctx, convID)
	if err != nil {
		return MembershipChangeResult{}, err
	}
	if !ok {
		return MembershipChangeResult{}, sdkerr.New(sdkerr.EntityNotFound, "conversation not found")
	}
	if entity.Type == model.ConversationTypeOneToOne {
		return MembershipChangeResult{}, sdkerr.New(sdkerr.Forbidden, "cannot add members to a one-to-one conversation")
	}

	result := s.claimAndCommit(ctx, convID, entity.MlsGroupId, userIds)

	members := make([]model.ConversationMember, 0, len(result.Added))
	for _, uid := range result.Added {
		members = append(members, model.ConversationMember{ConversationId: convID, UserId: uid, Role: model.RoleMember})
	}
	if len(members) > 0 {
		if err := s.convs.UpsertMembers(ctx, convID, members); err != nil {
			return result, err
		}
	}
	return result, nil
}

// claimAndCommit claims key packages for each user individually —
// per-user failures are logged via the aggregated multierr and
// skipped without retry (spec: "by design") — then commits a single
// AddMembers call for every package that was successfully claimed. If
// the commit fails because the backend reports a stale epoch, it
// resyncs via MlsFallback and retries the commit exactly once (spec
// §4.3 tie-break) before giving up and marking every claimed user
// failed.
func (s *Service) claimAndCommit(ctx context.Context, convID model.QualifiedId, groupID model.MlsGroupId, userIds []model.QualifiedId) MembershipChangeResult {
	result := MembershipChangeResult{Failed: map[model.QualifiedId]error{}}
	var packages []cryptoengine.KeyPackage
	var claimErrs error

	for _, uid := range userIds {
		claim, err := s.backend.ClaimKeyPackages(ctx, uid.Domain, uid.ID.String(), DefaultCiphersuite)
		if err != nil {
			claimErrs = multierr.Append(claimErrs, fmt.Errorf("claim key package for %s: %w", uid, err))
			result.Failed[uid] = err
			continue
		}
		if len(claim.KeyPackages) == 0 {
			err := sdkerr.New(sdkerr.EntityNotFound, "no key packages available")
			claimErrs = multierr.Append(claimErrs, fmt.Errorf("claim key package for %s: %w", uid, err))
			result.Failed[uid] = err
			continue
		}
		kp, err := base64.StdEncoding.DecodeString(claim.KeyPackages[0].KeyPackage)
		if err != nil {
			claimErrs = multierr.Append(claimErrs, fmt.Errorf("claim key package for %s: %w", uid, err))
			result.Failed[uid] = err
			continue
		}
		packages = append(packages, cryptoengine.KeyPackage(kp))
		result.Added = append(result.Added, uid)
	}

	if claimErrs != nil {
		logClaimFailures(claimErrs)
	}

	if len(packages) == 0 {
		return result
	}

	if err := s.commitMembers(ctx, convID, groupID, packages); err != nil {
		for _, uid := range result.Added {
			result.Failed[uid] = err
		}
		result.Added = nil
	}

	return result
}

// commitMembers runs AddMembers/postCommit once, and on a stale-epoch
// failure resyncs and retries exactly once.
func (s *Service) commitMembers(ctx context.Context, convID model.QualifiedId, groupID model.MlsGroupId, packages []cryptoengine.KeyPackage) error {
	bundle, err := s.crypto.AddMembers(ctx, groupID, packages)
	if err == nil {
		err = s.postCommit(ctx, bundle)
	}
	if err == nil || !isStaleEpoch(err) {
		return err
	}

	if _, syncErr := s.VerifyConversationOutOfSync(ctx, convID); syncErr != nil {
		return fmt.Errorf("conversation: resync after stale epoch: %w", syncErr)
	}

	bundle, err = s.crypto.AddMembers(ctx, groupID, packages)
	if err != nil {
		return err
	}
	return s.postCommit(ctx, bundle)
}

// RemoveMembersFromConversation implements
// removeMembersFromConversation (spec §4.3).
func (s *Service) RemoveMembersFromConversation(ctx context.Context, convID model.QualifiedId, userIds []model.QualifiedId) error {
	entity, ok, err := s.convs.Get(ctx, convID)
	if err != nil {
		return err
	}
	if !ok {
		return sdkerr.New(sdkerr.EntityNotFound, "conversation not found")
	}
	if entity.Type == model.ConversationTypeOneToOne {
		return sdkerr.New(sdkerr.Forbidden, "cannot remove members from a one-to-one conversation")
	}

	clients := make([]model.CryptoClientId, 0, len(userIds))
	for _, uid := range userIds {
		clients = append(clients, model.CryptoClientId(uid.ID.String()))
	}
	bundle, err := s.crypto.RemoveMembers(ctx, entity.MlsGroupId, clients)
	if err != nil {
		return err
	}
	if err := s.postCommit(ctx, bundle); err != nil {
		return err
	}

	return s.convs.DeleteMembers(ctx, convID, userIds)
}

// UpdateConversationMemberRole implements updateConversationMemberRole.
func (s *Service) UpdateConversationMemberRole(ctx context.Context, convID, userID model.QualifiedId, role model.Role) error {
	if err := s.backend.UpdateMemberRole(ctx, convID.Domain, convID.ID.String(), userID.Domain, userID.ID.String(), role.String()); err != nil {
		return err
	}
	return s.convs.UpdateMemberRole(ctx, convID, userID, role)
}

// LeaveConversation implements leaveConversation (spec §4.3).
func (s *Service) LeaveConversation(ctx context.Context, convID model.QualifiedId) error {
	entity, ok, err := s.convs.Get(ctx, convID)
	if err != nil {
		return err
	}
	if !ok {
		return sdkerr.New(sdkerr.EntityNotFound, "conversation not found")
	}
	if entity.Type != model.ConversationTypeGroup {
		return sdkerr.New(sdkerr.InvalidParameter, "leaveConversation requires a GROUP conversation")
	}
	if _, memberOk, err := s.convs.GetMember(ctx, convID, s.selfUserID); err != nil {
		return err
	} else if !memberOk {
		return sdkerr.New(sdkerr.Forbidden, "app is not a member of this conversation")
	}

	if err := s.backend.RemoveMember(ctx, convID.Domain, convID.ID.String(), s.selfUserID.Domain, s.selfUserID.ID.String()); err != nil {
		return err
	}
	if err := s.crypto.WipeConversation(ctx, entity.MlsGroupId); err != nil {
		return err
	}
	return s.convs.Delete(ctx, convID)
}

// DeleteConversation implements deleteConversation (spec §4.3).
func (s *Service) DeleteConversation(ctx context.Context, convID model.QualifiedId) error {
	entity, ok, err := s.convs.Get(ctx, convID)
	if err != nil {
		return err
	}
	if !ok {
		return sdkerr.New(sdkerr.EntityNotFound, "conversation not found")
	}
	if entity.Type != model.ConversationTypeGroup {
		return sdkerr.New(sdkerr.InvalidParameter, "deleteConversation requires a GROUP conversation")
	}
	member, memberOk, err := s.convs.GetMember(ctx, convID, s.selfUserID)
	if err != nil {
		return err
	}
	if !memberOk || member.Role != model.RoleAdmin {
		return sdkerr.New(sdkerr.Forbidden, "app must be an admin to delete this conversation")
	}
	if entity.TeamId == nil {
		return sdkerr.New(sdkerr.InvalidParameter, "conversation has no owning team")
	}

	if err := s.backend.DeleteTeamConversation(ctx, entity.TeamId.String(), convID.ID.String()); err != nil {
		return err
	}
	if err := s.crypto.WipeConversation(ctx, entity.MlsGroupId); err != nil {
		return err
	}
	return s.convs.Delete(ctx, convID)
}

// EstablishOrRejoinConversations implements the startup recovery pass
// (spec §4.3).
func (s *Service) EstablishOrRejoinConversations(ctx context.Context) error {
	shouldRejoin, ok, err := s.apps.Get(ctx, model.AppDataShouldRejoinConversations)
	if err != nil {
		return err
	}
	if !ok || shouldRejoin != "true" {
		return nil
	}

	var allIDs []backend.QualifiedIdJSON
	pagingState := ""
	for {
		ids, next, hasMore, err := s.backend.ListConversationIds(ctx, pagingState, 1000)
		if err != nil {
			return err
		}
		allIDs = append(allIDs, ids...)
		if !hasMore {
			break
		}
		pagingState = next
	}

	const batchSize = 1000
	for i := 0; i < len(allIDs); i += batchSize {
		end := i + batchSize
		if end > len(allIDs) {
			end = len(allIDs)
		}
		convs, err := s.backend.ListConversations(ctx, allIDs[i:end])
		if err != nil {
			return err
		}
		for _, c := range convs {
			if c.Protocol != "mls" || c.GroupId == "" {
				continue
			}
			groupID, err := base64.StdEncoding.DecodeString(c.GroupId)
			if err != nil {
				continue
			}
			exists, err := s.crypto.ConversationExists(ctx, groupID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := s.rejoinByExternalCommit(ctx, c.Domain, c.Id, groupID); err != nil {
				return err
			}
		}
	}

	return s.apps.Set(ctx, model.AppDataShouldRejoinConversations, "false")
}

func (s *Service) rejoinByExternalCommit(ctx context.Context, domain, id string, groupID model.MlsGroupId) error {
	groupInfo, err := s.backend.GetGroupInfo(ctx, domain, id)
	if err != nil {
		return err
	}
	_, bundle, err := s.crypto.JoinByExternalCommit(ctx, groupInfo)
	if err != nil {
		return err
	}
	return s.postCommit(ctx, bundle)
}

// postCommit concatenates commit || groupInfo.payload || welcome?
// and POSTs the bundle (spec §6).
func (s *Service) postCommit(ctx context.Context, bundle cryptoengine.CommitBundle) error {
	body := append(append([]byte{}, bundle.Commit...), bundle.GroupInfo...)
	if bundle.Welcome != nil {
		body = append(body, bundle.Welcome...)
	}
	return s.backend.PostCommitBundle(ctx, body)
}

func toQualifiedIdJSON(ids []model.QualifiedId) []backend.QualifiedIdJSON {
	out := make([]backend.QualifiedIdJSON, 0, len(ids))
	for _, id := range ids {
		out = append(out, backend.QualifiedIdJSON{Id: id.ID.String(), Domain: id.Domain})
	}
	return out
}

func removalKeyScheme(ciphersuite uint16) string {
	switch ciphersuite {
	case 0x0002:
		return "ecdsa_secp256r1_sha256"
	case 0x0007:
		return "ecdsa_secp384r1_sha384"
	case 0x0005:
		return "ecdsa_secp521r1_sha512"
	case 0x0001, 0x0003:
		return "ed25519"
	case 0x0004, 0x0006:
		return "ed448"
	default:
		return "ed25519"
	}
}
