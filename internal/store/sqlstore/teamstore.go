package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

// TeamStore is the SQLite-backed store.TeamStore.
type TeamStore struct {
	db *sql.DB
}

func NewTeamStore(db *sql.DB) *TeamStore {
	return &TeamStore{db: db}
}

func (s *TeamStore) Insert(ctx context.Context, teamID model.TeamId) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO team (id) VALUES (?) ON CONFLICT (id) DO NOTHING`,
		teamID.String(),
	)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *TeamStore) GetAll(ctx context.Context) ([]model.TeamId, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM team`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var out []model.TeamId
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse team id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
