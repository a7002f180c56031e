// Package membership stores teams and their members. Its only caller on
// the hot path is the role gate, which asks once per session load
// whether a viewer captains either side.
package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/gateball/go/internal/models"
)

// ErrTeamNotFound is returned when a team id resolves to no row.
var ErrTeamNotFound = errors.New("team not found")

// Repository implements team and membership data access
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new membership repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// CreateTeam inserts a new team
func (r *Repository) CreateTeam(ctx context.Context, name string) (*models.TeamRecord, error) {
	const query = `
		INSERT INTO teams (id, name, created_at)
		VALUES ($1, $2, now())
		RETURNING created_at`

	team := &models.TeamRecord{
		ID:   uuid.New(),
		Name: name,
	}

	if err := r.pool.QueryRow(ctx, query, team.ID, name).Scan(&team.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	return team, nil
}

// GetTeam retrieves a team by ID
func (r *Repository) GetTeam(ctx context.Context, id uuid.UUID) (*models.TeamRecord, error) {
	const query = `SELECT id, name, created_at FROM teams WHERE id = $1`

	var team models.TeamRecord
	if err := r.pool.QueryRow(ctx, query, id).Scan(&team.ID, &team.Name, &team.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return &team, nil
}

// AddMember adds a viewer to a team, upserting the captain flag
func (r *Repository) AddMember(ctx context.Context, member models.TeamMember) error {
	const query = `
		INSERT INTO team_members (team_id, viewer_id, is_captain, joined_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (team_id, viewer_id) DO UPDATE SET is_captain = EXCLUDED.is_captain`

	if _, err := r.pool.Exec(ctx, query, member.TeamID, member.ViewerID, member.IsCaptain); err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}

	return nil
}

// RemoveMember removes a viewer from a team
func (r *Repository) RemoveMember(ctx context.Context, teamID, viewerID uuid.UUID) error {
	const query = `DELETE FROM team_members WHERE team_id = $1 AND viewer_id = $2`

	if _, err := r.pool.Exec(ctx, query, teamID, viewerID); err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}

	return nil
}

// ListMembers retrieves all members of a team
func (r *Repository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]models.TeamMember, error) {
	const query = `
		SELECT team_id, viewer_id, is_captain, joined_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY joined_at ASC`

	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []models.TeamMember
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.TeamID, &m.ViewerID, &m.IsCaptain, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member rows: %w", err)
	}

	return members, nil
}

// IsCaptainOnAny reports whether the viewer captains any of the given teams
func (r *Repository) IsCaptainOnAny(ctx context.Context, viewerID uuid.UUID, teamIDs ...uuid.UUID) (bool, error) {
	if len(teamIDs) == 0 {
		return false, nil
	}

	const query = `
		SELECT EXISTS (
			SELECT 1 FROM team_members
			WHERE viewer_id = $1 AND is_captain AND team_id = ANY($2)
		)`

	var captain bool
	if err := r.pool.QueryRow(ctx, query, viewerID, teamIDs).Scan(&captain); err != nil {
		return false, fmt.Errorf("failed to check captain membership: %w", err)
	}

	return captain, nil
}
