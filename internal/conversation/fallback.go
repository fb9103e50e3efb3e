package conversation

import (
	"context"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// VerifyConversationOutOfSync implements MlsFallback (C6, spec §4.4):
// compares local epoch against the backend's and, on mismatch,
// rejoins by external commit and refreshes the local projection.
// Idempotent — a conversation already in sync is a no-op.
func (s *Service) VerifyConversationOutOfSync(ctx context.Context, convID model.QualifiedId) (sync bool, err error) {
	entity, ok, err := s.convs.Get(ctx, convID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	resp, err := s.backend.GetConversation(ctx, convID.Domain, convID.ID.String())
	if err != nil {
		return false, err
	}
	if resp.Epoch == entity.Epoch {
		return true, nil
	}

	if err := s.rejoinByExternalCommit(ctx, convID.Domain, convID.ID.String(), entity.MlsGroupId); err != nil {
		return false, err
	}

	if err := s.refreshConversation(ctx, convID); err != nil {
		return false, err
	}
	return false, nil
}

// refreshConversation refetches a conversation's full projection and
// member list and persists them.
func (s *Service) refreshConversation(ctx context.Context, convID model.QualifiedId) error {
	resp, err := s.backend.GetConversation(ctx, convID.Domain, convID.ID.String())
	if err != nil {
		return err
	}

	groupID, err := decodeGroupId(resp.GroupId)
	if err != nil {
		return err
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
		return err
	}

	members := make([]model.ConversationMember, 0, len(resp.Members.Others)+1)
	for _, m := range resp.Members.Others {
		members = append(members, model.ConversationMember{
			ConversationId: convID,
			UserId:         model.QualifiedId{ID: mustParseUUID(m.Id), Domain: m.Domain},
			Role:           model.ParseRole(m.Role),
		})
	}
	members = append(members, model.ConversationMember{
		ConversationId: convID,
		UserId:         model.QualifiedId{ID: mustParseUUID(resp.Members.Self.Id), Domain: resp.Members.Self.Domain},
		Role:           model.ParseRole(resp.Members.Self.Role),
	})

	return s.convs.UpsertMembers(ctx, convID, members)
}
