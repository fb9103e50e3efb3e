package sqlstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// ConversationStore is the SQLite-backed store.ConversationStore.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) Upsert(ctx context.Context, c model.ConversationEntity) error {
	var teamID *string
	if c.TeamId != nil {
		id := c.TeamId.String()
		teamID = &id
	}
	groupID := base64.StdEncoding.EncodeToString(c.MlsGroupId)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation (id, domain, name, mls_group_id, team_id, epoch, type, protocol)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, domain) DO UPDATE SET
			name = excluded.name,
			mls_group_id = excluded.mls_group_id,
			team_id = excluded.team_id,
			epoch = excluded.epoch,
			type = excluded.type,
			protocol = excluded.protocol
	`, c.Id.ID.String(), c.Id.Domain, c.Name, groupID, teamID, c.Epoch, int(c.Type), c.Protocol.String())
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

func (s *ConversationStore) Get(ctx context.Context, id model.QualifiedId) (*model.ConversationEntity, bool, error) {
	var (
		name, groupIDB64, protocolStr string
		teamID                        sql.NullString
		epoch                         uint64
		convType                      int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, mls_group_id, team_id, epoch, type, protocol
		FROM conversation WHERE id = ? AND domain = ?
	`, id.ID.String(), id.Domain).Scan(&name, &groupIDB64, &teamID, &epoch, &convType, &protocolStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get conversation: %w", err)
	}

	groupID, err := base64.StdEncoding.DecodeString(groupIDB64)
	if err != nil {
		return nil, false, fmt.Errorf("decode mls_group_id: %w", err)
	}

	entity := &model.ConversationEntity{
		Id:         id,
		Name:       name,
		MlsGroupId: groupID,
		Epoch:      epoch,
		Type:       model.ConversationType(convType),
		Protocol:   parseProtocol(protocolStr),
	}
	if teamID.Valid {
		tid, err := uuid.Parse(teamID.String)
		if err != nil {
			return nil, false, fmt.Errorf("parse team id: %w", err)
		}
		entity.TeamId = &tid
	}
	return entity, true, nil
}

func (s *ConversationStore) UpdateEpoch(ctx context.Context, id model.QualifiedId, epoch uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversation SET epoch = ? WHERE id = ? AND domain = ?`,
		epoch, id.ID.String(), id.Domain,
	)
	if err != nil {
		return fmt.Errorf("update epoch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update epoch rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update epoch: conversation %s not found", id)
	}
	return nil
}

func (s *ConversationStore) Delete(ctx context.Context, id model.QualifiedId) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_member WHERE conversation_id = ? AND conversation_domain = ?`,
		id.ID.String(), id.Domain,
	); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation WHERE id = ? AND domain = ?`,
		id.ID.String(), id.Domain,
	); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

func (s *ConversationStore) ListAll(ctx context.Context) ([]model.ConversationEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, name, mls_group_id, team_id, epoch, type, protocol FROM conversation
	`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []model.ConversationEntity
	for rows.Next() {
		var (
			idStr, domain, name, groupIDB64, protocolStr string
			teamID                                       sql.NullString
			epoch                                        uint64
			convType                                     int
		)
		if err := rows.Scan(&idStr, &domain, &name, &groupIDB64, &teamID, &epoch, &convType, &protocolStr); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse conversation id: %w", err)
		}
		groupID, err := base64.StdEncoding.DecodeString(groupIDB64)
		if err != nil {
			return nil, fmt.Errorf("decode mls_group_id: %w", err)
		}
		entity := model.ConversationEntity{
			Id:         model.QualifiedId{ID: id, Domain: domain},
			Name:       name,
			MlsGroupId: groupID,
			Epoch:      epoch,
			Type:       model.ConversationType(convType),
			Protocol:   parseProtocol(protocolStr),
		}
		if teamID.Valid {
			tid, err := uuid.Parse(teamID.String)
			if err != nil {
				return nil, fmt.Errorf("parse team id: %w", err)
			}
			entity.TeamId = &tid
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

func (s *ConversationStore) UpsertMembers(ctx context.Context, convID model.QualifiedId, members []model.ConversationMember) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert-members tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_member
				(user_id, user_domain, conversation_id, conversation_domain, role)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, user_domain, conversation_id, conversation_domain)
			DO UPDATE SET role = excluded.role
		`, m.UserId.ID.String(), m.UserId.Domain, convID.ID.String(), convID.Domain, m.Role.String()); err != nil {
			return fmt.Errorf("upsert member %s: %w", m.UserId, err)
		}
	}
	return tx.Commit()
}

func (s *ConversationStore) DeleteMembers(ctx context.Context, convID model.QualifiedId, userIDs []model.QualifiedId) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete-members tx: %w", err)
	}
	defer tx.Rollback()

	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM conversation_member
			WHERE user_id = ? AND user_domain = ? AND conversation_id = ? AND conversation_domain = ?
		`, uid.ID.String(), uid.Domain, convID.ID.String(), convID.Domain); err != nil {
			return fmt.Errorf("delete member %s: %w", uid, err)
		}
	}
	return tx.Commit()
}

func (s *ConversationStore) UpdateMemberRole(ctx context.Context, convID, userID model.QualifiedId, role model.Role) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_member SET role = ?
		WHERE user_id = ? AND user_domain = ? AND conversation_id = ? AND conversation_domain = ?
	`, role.String(), userID.ID.String(), userID.Domain, convID.ID.String(), convID.Domain)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return nil
}

func (s *ConversationStore) ListMembers(ctx context.Context, convID model.QualifiedId) ([]model.ConversationMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, user_domain, role FROM conversation_member
		WHERE conversation_id = ? AND conversation_domain = ?
	`, convID.ID.String(), convID.Domain)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []model.ConversationMember
	for rows.Next() {
		var userIDStr, domain, roleStr string
		if err := rows.Scan(&userIDStr, &domain, &roleStr); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		uid, err := uuid.Parse(userIDStr)
		if err != nil {
			return nil, fmt.Errorf("parse member user id: %w", err)
		}
		out = append(out, model.ConversationMember{
			ConversationId: convID,
			UserId:         model.QualifiedId{ID: uid, Domain: domain},
			Role:           model.ParseRole(roleStr),
		})
	}
	return out, rows.Err()
}

func (s *ConversationStore) GetMember(ctx context.Context, convID, userID model.QualifiedId) (*model.ConversationMember, bool, error) {
	var roleStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM conversation_member
		WHERE user_id = ? AND user_domain = ? AND conversation_id = ? AND conversation_domain = ?
	`, userID.ID.String(), userID.Domain, convID.ID.String(), convID.Domain).Scan(&roleStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get member: %w", err)
	}
	return &model.ConversationMember{
		ConversationId: convID,
		UserId:         userID,
		Role:           model.ParseRole(roleStr),
	}, true, nil
}

func parseProtocol(s string) model.Protocol {
	if s == "PROTEUS" {
		return model.ProtocolProteus
	}
	return model.ProtocolMLS
}
