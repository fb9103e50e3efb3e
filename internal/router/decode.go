package router

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// envelope is the shape every notification payload shares: a "type"
// discriminator plus the event-specific fields, all at the top
// level (spec §6/§4.1).
type envelope struct {
	Type           string `json:"type"`
	Id             string `json:"id"`
	Transient      bool   `json:"transient"`
	Team           string `json:"team"`
	ConversationId string `json:"conversation"`
	Domain         string `json:"qualified_conversation_domain"`
	Data           json.RawMessage `json:"data"`
}

type memberRef struct {
	Id     string `json:"id"`
	Domain string `json:"domain"`
	Role   string `json:"conversation_role"`
}

// decodeEvent parses one raw notification payload into a model.Event.
// Unrecognized "type" values decode to UnknownEvent rather than
// erroring, matching the protobuf codec's Unknown-on-unrecognized
// convention.
func decodeEvent(raw json.RawMessage) (model.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("router: decode event envelope: %w", err)
	}

	id, err := parseEventId(env.Id)
	if err != nil {
		return nil, err
	}
	base := model.EventBase{Id: id, Transient: env.Transient}

	switch env.Type {
	case "team.invite":
		teamID, err := uuid.Parse(env.Team)
		if err != nil {
			return model.UnknownEvent{EventBase: base, Kind: env.Type}, nil
		}
		return model.TeamInviteEvent{EventBase: base, TeamId: teamID}, nil

	case "conversation.create":
		convID, err := parseQualifiedId(env.ConversationId, env.Domain)
		if err != nil {
			return nil, err
		}
		var body struct {
			Response *conversationResponseJSON `json:"conversation"`
		}
		_ = json.Unmarshal(env.Data, &body)
		evt := model.ConversationCreateEvent{EventBase: base, ConversationId: convID}
		if body.Response != nil {
			entity, members := body.Response.toModel()
			evt.Response = &entity
			evt.Members = members
		}
		return evt, nil

	case "conversation.delete":
		convID, err := parseQualifiedId(env.ConversationId, env.Domain)
		if err != nil {
			return nil, err
		}
		return model.ConversationDeleteEvent{EventBase: base, ConversationId: convID}, nil

	case "conversation.member-join":
		convID, err := parseQualifiedId(env.ConversationId, env.Domain)
		if err != nil {
			return nil, err
		}
		var body struct {
			Users []memberRef `json:"users"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, fmt.Errorf("router: decode member-join: %w", err)
		}
		members := make([]model.ConversationMember, 0, len(body.Users))
		for _, u := range body.Users {
			uid, err := parseQualifiedId(u.Id, u.Domain)
			if err != nil {
				continue
			}
			members = append(members, model.ConversationMember{
				ConversationId: convID,
				UserId:         uid,
				Role:           model.ParseRole(u.Role),
			})
		}
		return model.ConversationMemberJoinEvent{EventBase: base, ConversationId: convID, Members: members}, nil

	case "conversation.member-leave":
		convID, err := parseQualifiedId(env.ConversationId, env.Domain)
		if err != nil {
			return nil, err
		}
		var body struct {
			UserIds []memberRef `json:"qualified_user_ids"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, fmt.Errorf("router: decode member-leave: %w", err)
		}
		ids := make([]model.QualifiedId, 0, len(body.UserIds))
		for _, u := range body.UserIds {
			uid, err := parseQualifiedId(u.Id, u.Domain)
			if err != nil {
				continue
			}
			ids = append(ids, uid)
		}
		return model.ConversationMemberLeaveEvent{EventBase: base, ConversationId: convID, UserIds: ids}, nil

	case "conversation.member-update":
		convID, err := parseQualifiedId(env.ConversationId, env.Domain)
		if err != nil {
			return nil, err
		}
		var body struct {
			User memberRef `json:"user"`
			Role *string   `json:"conversation_role"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, fmt.Errorf("router: decode member-update: %w", err)
		}
		uid, err := parseQualifiedId(body.User.Id, body.User.Domain)
		if err != nil {
			return nil, err
		}
		var role *model.Role
		if body.Role != nil {
			r := model.ParseRole(*body.Role)
			role = &r
		}
		return model.ConversationMemberUpdateEvent{EventBase: base, ConversationId: convID, UserId: uid, NewRole: role}, nil

	case "conversation.mls-welcome":
		convID, err := parseQualifiedId(env.ConversationId, env.Domain)
		if err != nil {
			return nil, err
		}
		var body struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, fmt.Errorf("router: decode mls-welcome: %w", err)
		}
		welcome, err := base64.StdEncoding.DecodeString(body.Data)
		if err != nil {
			return nil, fmt.Errorf("router: decode welcome payload: %w", err)
		}
		return model.ConversationMlsWelcomeEvent{EventBase: base, ConversationId: convID, Welcome: welcome}, nil

	case "conversation.mls-message-add":
		convID, err := parseQualifiedId(env.ConversationId, env.Domain)
		if err != nil {
			return nil, err
		}
		var body struct {
			Sender memberRef `json:"sender"`
			Text   string    `json:"text"` // base64 ciphertext
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, fmt.Errorf("router: decode mls-message-add: %w", err)
		}
		sender, err := parseQualifiedId(body.Sender.Id, body.Sender.Domain)
		if err != nil {
			return nil, err
		}
		ciphertext, err := base64.StdEncoding.DecodeString(body.Text)
		if err != nil {
			return nil, fmt.Errorf("router: decode mls ciphertext: %w", err)
		}
		return model.ConversationNewMlsMessageEvent{EventBase: base, ConversationId: convID, Sender: sender, Ciphertext: ciphertext}, nil

	case "conversation.typing":
		convID, err := parseQualifiedId(env.ConversationId, env.Domain)
		if err != nil {
			return nil, err
		}
		return model.ConversationTypingEvent{EventBase: base, ConversationId: convID}, nil

	default:
		return model.UnknownEvent{EventBase: base, Kind: env.Type}, nil
	}
}

func parseEventId(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("router: parse event id %q: %w", s, err)
	}
	return id, nil
}

func parseQualifiedId(id, domain string) (model.QualifiedId, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return model.QualifiedId{}, fmt.Errorf("router: parse qualified id %q: %w", id, err)
	}
	return model.QualifiedId{ID: u, Domain: domain}, nil
}

type conversationResponseJSON struct {
	Id       string `json:"id"`
	Domain   string `json:"qualified_id_domain"`
	Name     string `json:"name"`
	GroupId  string `json:"group_id"`
	TeamId   string `json:"team_id"`
	Type     int    `json:"type"`
	Protocol string `json:"protocol"`
	Epoch    uint64 `json:"epoch"`
	Members  []memberRef `json:"members"`
}

func (c conversationResponseJSON) toModel() (model.ConversationEntity, []model.ConversationMember) {
	convID, _ := parseQualifiedId(c.Id, c.Domain)

	var teamID *model.TeamId
	if c.TeamId != "" {
		if tid, err := uuid.Parse(c.TeamId); err == nil {
			teamID = &tid
		}
	}

	var groupID model.MlsGroupId
	if c.GroupId != "" {
		if decoded, err := base64.StdEncoding.DecodeString(c.GroupId); err == nil {
			groupID = decoded
		}
	}

	protocol := model.ProtocolProteus
	if c.Protocol == "mls" {
		protocol = model.ProtocolMLS
	}

	entity := model.ConversationEntity{
		Id:         convID,
		Name:       c.Name,
		TeamId:     teamID,
		MlsGroupId: groupID,
		Epoch:      c.Epoch,
		Type:       model.ConversationType(c.Type),
		Protocol:   protocol,
	}

	members := make([]model.ConversationMember, 0, len(c.Members))
	for _, m := range c.Members {
		uid, err := parseQualifiedId(m.Id, m.Domain)
		if err != nil {
			continue
		}
		members = append(members, model.ConversationMember{
			ConversationId: convID,
			UserId:         uid,
			Role:           model.ParseRole(m.Role),
		})
	}

	return entity, members
}
