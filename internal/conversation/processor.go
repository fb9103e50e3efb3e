package conversation

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/handler"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
	"github.com/wireapp/wire-apps-go-sdk/internal/wiremsgpb"
)

// Process implements internal/router.Processor: the event processing
// table from spec §4.2, one case per Event variant.
func (s *Service) Process(ctx context.Context, event model.Event) {
	switch e := event.(type) {
	case model.TeamInviteEvent:
		s.processTeamInvite(ctx, e)
	case model.ConversationCreateEvent:
		s.processConversationCreate(ctx, e)
	case model.ConversationDeleteEvent:
		s.processConversationDelete(ctx, e)
	case model.ConversationMemberJoinEvent:
		s.processMemberJoin(ctx, e)
	case model.ConversationMemberLeaveEvent:
		s.processMemberLeave(ctx, e)
	case model.ConversationMemberUpdateEvent:
		s.processMemberUpdate(ctx, e)
	case model.ConversationMlsWelcomeEvent:
		s.processMlsWelcome(ctx, e)
	case model.ConversationNewMlsMessageEvent:
		s.processNewMlsMessage(ctx, e)
	case model.ConversationTypingEvent:
		// Silently ignored (spec §4.2).
	case model.UnknownEvent:
		slog.Debug("dropping unrecognized event", "kind", e.Kind)
	default:
		slog.Warn("router dispatched an event type conversation.Service doesn't recognize")
	}
}

func (s *Service) processTeamInvite(ctx context.Context, e model.TeamInviteEvent) {
	// No confirm-team request is sent to the backend: the invite's
	// team id is only recorded locally, so GetAll reflects it.
	if err := s.teams.Insert(ctx, e.TeamId); err != nil {
		slog.Error("failed to record team invite", "team_id", e.TeamId, "error", err)
	}
}

func (s *Service) processConversationCreate(ctx context.Context, e model.ConversationCreateEvent) {
	entity := e.Response
	members := e.Members
	if entity == nil {
		resp, err := s.backend.GetConversation(ctx, e.ConversationId.Domain, e.ConversationId.ID.String())
		if err != nil {
			slog.Error("failed to fetch created conversation", "conversation_id", e.ConversationId, "error", err)
			return
		}
		if model.ConversationType(resp.Type) == model.ConversationTypeSelf {
			slog.Error("refusing to create a self-conversation entity", "error", sdkerr.New(sdkerr.InvalidState, "welcome/create targeting a self-conversation"))
			return
		}
		groupID, err := decodeGroupId(resp.GroupId)
		if err != nil {
			slog.Error("failed to decode conversation group id", "error", err)
			return
		}
		converted := model.ConversationEntity{
			Id:         e.ConversationId,
			Name:       resp.Name,
			MlsGroupId: groupID,
			Epoch:      resp.Epoch,
			Type:       model.ConversationType(resp.Type),
			Protocol:   model.ProtocolMLS,
		}
		if resp.TeamId != "" {
			teamID := mustParseUUID(resp.TeamId)
			converted.TeamId = &teamID
		}
		entity = &converted
	} else if entity.Type == model.ConversationTypeSelf {
		slog.Error("refusing to create a self-conversation entity", "error", sdkerr.New(sdkerr.InvalidState, "welcome/create targeting a self-conversation"))
		return
	}

	if err := s.convs.Upsert(ctx, *entity); err != nil {
		slog.Error("failed to persist created conversation", "error", err)
		return
	}
	if len(members) > 0 {
		if err := s.convs.UpsertMembers(ctx, e.ConversationId, members); err != nil {
			slog.Error("failed to persist created conversation members", "error", err)
		}
	}
}

func (s *Service) processConversationDelete(ctx context.Context, e model.ConversationDeleteEvent) {
	entity, ok, err := s.convs.Get(ctx, e.ConversationId)
	if err != nil {
		slog.Error("failed to look up deleted conversation", "error", err)
		return
	}
	if ok && entity.MlsGroupId != nil {
		if err := s.crypto.WipeConversation(ctx, entity.MlsGroupId); err != nil {
			slog.Error("failed to wipe mls group for deleted conversation", "error", err)
		}
	}
	if err := s.convs.Delete(ctx, e.ConversationId); err != nil {
		slog.Error("failed to delete local conversation projection", "error", err)
		return
	}
	s.handlers.FireConversationDeleted(ctx, handler.ConversationDeletedEvent{ConversationId: e.ConversationId})
}

func (s *Service) processMemberJoin(ctx context.Context, e model.ConversationMemberJoinEvent) {
	if err := s.convs.UpsertMembers(ctx, e.ConversationId, e.Members); err != nil {
		slog.Error("failed to persist joined members", "error", err)
		return
	}
	userIds := make([]model.QualifiedId, 0, len(e.Members))
	for _, m := range e.Members {
		userIds = append(userIds, m.UserId)
	}
	s.handlers.FireUserJoinedConversation(ctx, handler.MembersChangedEvent{ConversationId: e.ConversationId, UserIds: userIds})
}

func (s *Service) processMemberLeave(ctx context.Context, e model.ConversationMemberLeaveEvent) {
	if err := s.convs.DeleteMembers(ctx, e.ConversationId, e.UserIds); err != nil {
		slog.Error("failed to persist left members", "error", err)
		return
	}
	s.handlers.FireUserLeftConversation(ctx, handler.MembersChangedEvent{ConversationId: e.ConversationId, UserIds: e.UserIds})
}

func (s *Service) processMemberUpdate(ctx context.Context, e model.ConversationMemberUpdateEvent) {
	if e.NewRole == nil {
		return
	}
	if err := s.convs.UpdateMemberRole(ctx, e.ConversationId, e.UserId, *e.NewRole); err != nil {
		slog.Error("failed to persist member role update", "error", err)
	}
}

func (s *Service) processMlsWelcome(ctx context.Context, e model.ConversationMlsWelcomeEvent) {
	resp, err := s.backend.GetConversation(ctx, e.ConversationId.Domain, e.ConversationId.ID.String())
	if err != nil {
		slog.Error("failed to fetch welcomed conversation", "conversation_id", e.ConversationId, "error", err)
		return
	}
	if model.ConversationType(resp.Type) == model.ConversationTypeSelf {
		slog.Error("refusing a welcome targeting a self-conversation", "error", sdkerr.New(sdkerr.InvalidState, "welcome/create targeting a self-conversation"))
		return
	}

	_, outcome, err := s.crypto.ProcessWelcome(ctx, e.Welcome)
	if err != nil {
		slog.Error("failed to process welcome", "error", err)
		return
	}

	if outcome == cryptoengine.WelcomeOrphan {
		groupInfo, err := s.backend.GetGroupInfo(ctx, e.ConversationId.Domain, e.ConversationId.ID.String())
		if err != nil {
			slog.Error("failed to fetch group info for orphan welcome recovery", "error", err)
			return
		}
		_, bundle, err := s.crypto.JoinByExternalCommit(ctx, groupInfo)
		if err != nil {
			slog.Error("failed to join by external commit", "error", err)
			return
		}
		if err := s.postCommit(ctx, bundle); err != nil {
			slog.Error("failed to post recovery commit bundle", "error", err)
			return
		}
	}

	if err := s.refreshConversation(ctx, e.ConversationId); err != nil {
		slog.Error("failed to refresh conversation after welcome", "error", err)
		return
	}

	s.replenishKeyPackagesIfNeeded(ctx)

	s.handlers.FireAppAddedToConversation(ctx, handler.ConversationJoinedEvent{ConversationId: e.ConversationId})
}

// replenishKeyPackagesIfNeeded enforces the key-package floor (I4)
// regardless of whether metrics are configured: only the metric
// increment is conditional on s.metrics, the floor check and
// generate-then-upload sequence always run (spec §4.2 MlsWelcome,
// P8: "regenerated and uploaded exactly once"). Mirrors
// internal/bootstrap's registerDevice generate→base64→upload
// sequence.
func (s *Service) replenishKeyPackagesIfNeeded(ctx context.Context) {
	const defaultCount = 100

	tooFew, err := s.crypto.HasTooFewKeyPackages(ctx, defaultCount)
	if err != nil {
		slog.Error("failed to check key-package floor", "error", err)
		return
	}
	if !tooFew {
		return
	}

	if s.metrics != nil {
		s.metrics.KeyPackageFloorBreachesTotal.Inc()
	}

	packages, err := s.crypto.GenerateKeyPackages(ctx, defaultCount, DefaultCiphersuite)
	if err != nil {
		slog.Error("failed to generate replenishment key packages", "error", err)
		return
	}
	encoded := make([]string, len(packages))
	for i, kp := range packages {
		encoded[i] = base64.StdEncoding.EncodeToString(kp)
	}

	deviceID, ok, err := s.apps.Get(ctx, model.AppDataDeviceId)
	if err != nil || !ok {
		slog.Error("failed to look up device id for key-package upload", "error", err)
		return
	}
	if err := s.backend.UploadKeyPackages(ctx, deviceID, encoded); err != nil {
		slog.Error("failed to upload replenished key packages", "error", err)
	}
}

func (s *Service) processNewMlsMessage(ctx context.Context, e model.ConversationNewMlsMessageEvent) {
	entity, ok, err := s.convs.Get(ctx, e.ConversationId)
	if err != nil || !ok {
		slog.Error("received mls message for unknown conversation", "conversation_id", e.ConversationId)
		return
	}

	plaintext, err := s.crypto.DecryptMls(ctx, entity.MlsGroupId, e.Ciphertext)
	if err != nil {
		// Decrypt failure (possible epoch drift): re-examine sync state,
		// do not retry this message (spec §4.2: "next message triggers
		// re-examination").
		if _, syncErr := s.VerifyConversationOutOfSync(ctx, e.ConversationId); syncErr != nil {
			slog.Error("mls fallback resync failed", "error", syncErr)
		}
		return
	}
	if plaintext == nil {
		return
	}

	message, err := wiremsgpb.Decode(plaintext, e.ConversationId, e.Sender, time.Now())
	if err != nil {
		slog.Warn("failed to decode mls application message", "error", err)
		return
	}
	if _, ok := message.(model.Ignored); ok {
		return
	}

	s.handlers.FireMessage(ctx, handler.MessageEvent{
		ConversationId: e.ConversationId,
		Sender:         e.Sender,
		Message:        message,
	})
}
