package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gateball/go/internal/models"
)

// SessionRepository defines what the app layer needs from the repository
type SessionRepository interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListActiveSessions(ctx context.Context) ([]models.Session, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]models.Session, error)
	UpdateMatchState(ctx context.Context, id uuid.UUID, state *models.MatchState) error
	UpdateSummaryStatus(ctx context.Context, id uuid.UUID, status models.SummaryStatus) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	CompleteSession(ctx context.Context, id uuid.UUID, final *models.MatchState) (*models.HistoryRecord, error)
	ListHistory(ctx context.Context, sessionID uuid.UUID) ([]models.HistoryRecord, error)
}

// App handles session business logic
type App struct {
	repo SessionRepository
}

// NewApp creates a new session App
func NewApp(repo SessionRepository) *App {
	return &App{
		repo: repo,
	}
}

// CreateSession creates a new session with validation
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if req.TeamRedID == uuid.Nil {
		return nil, fmt.Errorf("team_red_id is required")
	}
	if req.TeamWhiteID == uuid.Nil {
		return nil, fmt.Errorf("team_white_id is required")
	}
	if req.TeamRedID == req.TeamWhiteID {
		return nil, fmt.Errorf("a team cannot play itself")
	}

	sess, err := a.repo.CreateSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("team_red_id", sess.TeamRedID.String()).
		Str("team_white_id", sess.TeamWhiteID.String()).
		Msg("session created")
	return sess, nil
}

// GetSession retrieves a session by ID
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.State.Normalize()
	return sess, nil
}

// ListActiveSessions retrieves all sessions still in play
func (a *App) ListActiveSessions(ctx context.Context) ([]models.Session, error) {
	sessions, err := a.repo.ListActiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

// ListUpdatedSince retrieves sessions updated after the given time
func (a *App) ListUpdatedSince(ctx context.Context, since time.Time) ([]models.Session, error) {
	sessions, err := a.repo.ListUpdatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list updated sessions: %w", err)
	}
	return sessions, nil
}

// UpdateMatchState replaces the stored snapshot wholesale. This is the
// persistence half of a sync push; clients never patch fields.
func (a *App) UpdateMatchState(ctx context.Context, id uuid.UUID, state *models.MatchState) error {
	state = state.Clone()
	state.Normalize()

	if err := a.repo.UpdateMatchState(ctx, id, state); err != nil {
		return fmt.Errorf("failed to update match state: %w", err)
	}
	return nil
}

// Archive writes the final state to history and completes the session.
// Satisfies the engine's archiver port.
func (a *App) Archive(ctx context.Context, sessionID uuid.UUID, final *models.MatchState) error {
	rec, err := a.repo.CompleteSession(ctx, sessionID, final)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("history_id", rec.ID.String()).
		Msg("session archived")
	return nil
}

// DeleteSession soft-deletes a session
func (a *App) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, err := a.repo.GetSession(ctx, id); err != nil {
		return err
	}

	if err := a.repo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	log.Info().Str("session_id", id.String()).Msg("session deleted")
	return nil
}

// ListHistory retrieves archive rows for a session
func (a *App) ListHistory(ctx context.Context, sessionID uuid.UUID) ([]models.HistoryRecord, error) {
	records, err := a.repo.ListHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}
