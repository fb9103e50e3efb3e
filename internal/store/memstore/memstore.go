// Package memstore is an in-memory implementation of internal/store,
// used by unit tests to exercise P1-P9 without a real SQLite file.
package memstore

import (
	"context"
	"sync"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// TeamStore is an in-memory store.TeamStore.
type TeamStore struct {
	mu    sync.Mutex
	teams map[model.TeamId]struct{}
}

func NewTeamStore() *TeamStore {
	return &TeamStore{teams: make(map[model.TeamId]struct{})}
}

func (s *TeamStore) Insert(_ context.Context, teamID model.TeamId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[teamID] = struct{}{}
	return nil
}

func (s *TeamStore) GetAll(_ context.Context) ([]model.TeamId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TeamId, 0, len(s.teams))
	for id := range s.teams {
		out = append(out, id)
	}
	return out, nil
}

// AppStore is an in-memory store.AppStore.
type AppStore struct {
	mu   sync.Mutex
	data map[string]string
}

func NewAppStore() *AppStore {
	return &AppStore{data: make(map[string]string)}
}

func (s *AppStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *AppStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// ConversationStore is an in-memory store.ConversationStore.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[model.QualifiedId]model.ConversationEntity
	members       map[model.QualifiedId]map[model.QualifiedId]model.Role
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[model.QualifiedId]model.ConversationEntity),
		members:       make(map[model.QualifiedId]map[model.QualifiedId]model.Role),
	}
}

func (s *ConversationStore) Upsert(_ context.Context, c model.ConversationEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.Id] = c
	if _, ok := s.members[c.Id]; !ok {
		s.members[c.Id] = make(map[model.QualifiedId]model.Role)
	}
	return nil
}

func (s *ConversationStore) Get(_ context.Context, id model.QualifiedId) (*model.ConversationEntity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

func (s *ConversationStore) UpdateEpoch(_ context.Context, id model.QualifiedId, epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil
	}
	c.Epoch = epoch
	s.conversations[id] = c
	return nil
}

func (s *ConversationStore) Delete(_ context.Context, id model.QualifiedId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	delete(s.members, id)
	return nil
}

func (s *ConversationStore) ListAll(_ context.Context) ([]model.ConversationEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConversationEntity, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (s *ConversationStore) UpsertMembers(_ context.Context, convID model.QualifiedId, members []model.ConversationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[convID]
	if !ok {
		m = make(map[model.QualifiedId]model.Role)
		s.members[convID] = m
	}
	for _, mem := range members {
		m[mem.UserId] = mem.Role
	}
	return nil
}

func (s *ConversationStore) DeleteMembers(_ context.Context, convID model.QualifiedId, userIDs []model.QualifiedId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[convID]
	if !ok {
		return nil
	}
	for _, uid := range userIDs {
		delete(m, uid)
	}
	return nil
}

func (s *ConversationStore) UpdateMemberRole(_ context.Context, convID, userID model.QualifiedId, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[convID]
	if !ok {
		return nil
	}
	if _, ok := m[userID]; ok {
		m[userID] = role
	}
	return nil
}

func (s *ConversationStore) ListMembers(_ context.Context, convID model.QualifiedId) ([]model.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.members[convID]
	out := make([]model.ConversationMember, 0, len(m))
	for uid, role := range m {
		out = append(out, model.ConversationMember{ConversationId: convID, UserId: uid, Role: role})
	}
	return out, nil
}

func (s *ConversationStore) GetMember(_ context.Context, convID, userID model.QualifiedId) (*model.ConversationMember, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[convID]
	if !ok {
		return nil, false, nil
	}
	role, ok := m[userID]
	if !ok {
		return nil, false, nil
	}
	return &model.ConversationMember{ConversationId: convID, UserId: userID, Role: role}, true, nil
}
