package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// GetAppInfo returns the published server identity for the team
func (s *Storage) GetAppInfo(ctx context.Context, teamID string) (*models.AppInfo, error) {
	query := `
		SELECT team_id, server_id, team_name, public_key, created_at, updated_at
		FROM app_info
		WHERE team_id = ?
	`

	info := &models.AppInfo{}
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(
		&info.TeamID,
		&info.ServerID,
		&info.TeamName,
		&info.PublicKey,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAppInfoNotFound
		}
		return nil, fmt.Errorf("failed to get app info: %w", err)
	}

	return info, nil
}

// CreateAppInfo stores a new server identity record. The primary key on
// team_id rejects a second keypair for the same team.
func (s *Storage) CreateAppInfo(ctx context.Context, info *models.AppInfo) error {
	query := `
		INSERT INTO app_info (team_id, server_id, team_name, public_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		info.TeamID,
		info.ServerID,
		info.TeamName,
		info.PublicKey,
		info.CreatedAt,
		info.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("app info already exists for team %s", info.TeamID)
		}
		return fmt.Errorf("failed to insert app info: %w", err)
	}

	return nil
}
