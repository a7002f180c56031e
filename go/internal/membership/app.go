package membership

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gateball/go/internal/models"
)

// MembershipRepository defines what the app layer needs from the repository
type MembershipRepository interface {
	CreateTeam(ctx context.Context, name string) (*models.TeamRecord, error)
	GetTeam(ctx context.Context, id uuid.UUID) (*models.TeamRecord, error)
	AddMember(ctx context.Context, member models.TeamMember) error
	RemoveMember(ctx context.Context, teamID, viewerID uuid.UUID) error
	ListMembers(ctx context.Context, teamID uuid.UUID) ([]models.TeamMember, error)
	IsCaptainOnAny(ctx context.Context, viewerID uuid.UUID, teamIDs ...uuid.UUID) (bool, error)
}

// App handles membership business logic
type App struct {
	repo MembershipRepository
}

// NewApp creates a new membership App
func NewApp(repo MembershipRepository) *App {
	return &App{
		repo: repo,
	}
}

// CreateTeam creates a new team with validation
func (a *App) CreateTeam(ctx context.Context, name string) (*models.TeamRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	team, err := a.repo.CreateTeam(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	log.Info().Str("team_id", team.ID.String()).Str("name", team.Name).Msg("team created")
	return team, nil
}

// GetTeam retrieves a team by ID
func (a *App) GetTeam(ctx context.Context, id uuid.UUID) (*models.TeamRecord, error) {
	return a.repo.GetTeam(ctx, id)
}

// AddMember adds a viewer to a team
func (a *App) AddMember(ctx context.Context, member models.TeamMember) error {
	if _, err := a.repo.GetTeam(ctx, member.TeamID); err != nil {
		return err
	}

	if err := a.repo.AddMember(ctx, member); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	log.Info().
		Str("team_id", member.TeamID.String()).
		Str("viewer_id", member.ViewerID.String()).
		Bool("is_captain", member.IsCaptain).
		Msg("team member added")
	return nil
}

// RemoveMember removes a viewer from a team
func (a *App) RemoveMember(ctx context.Context, teamID, viewerID uuid.UUID) error {
	if err := a.repo.RemoveMember(ctx, teamID, viewerID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// ListMembers retrieves all members of a team
func (a *App) ListMembers(ctx context.Context, teamID uuid.UUID) ([]models.TeamMember, error) {
	return a.repo.ListMembers(ctx, teamID)
}

// IsCaptainOnAny reports whether the viewer captains any of the given
// teams. Satisfies the role gate's membership lookup port.
func (a *App) IsCaptainOnAny(ctx context.Context, viewerID uuid.UUID, teamIDs ...uuid.UUID) (bool, error) {
	return a.repo.IsCaptainOnAny(ctx, viewerID, teamIDs...)
}
