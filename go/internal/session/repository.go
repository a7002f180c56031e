package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/gateball/go/internal/models"
	"github.com/mcdev12/gateball/go/internal/sqlutil"
)

// Repository implements session data access against the games and
// game_history tables. Match state is stored as a JSONB snapshot and
// only ever replaced wholesale.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new session repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// CreateSession inserts a new session with a fresh initial match state
func (r *Repository) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	state := models.NewMatchState()
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match state: %w", err)
	}

	const query = `
		INSERT INTO games (id, team_red_id, team_white_id, summary_status, match_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING created_at, updated_at`

	id := uuid.New()
	sess := &models.Session{
		ID:          id,
		TeamRedID:   req.TeamRedID,
		TeamWhiteID: req.TeamWhiteID,
		Summary:     models.SummaryStatusLobby,
		State:       state,
	}

	row := r.pool.QueryRow(ctx, query, id, req.TeamRedID, req.TeamWhiteID, models.SummaryStatusLobby, stateJSON)
	if err := row.Scan(&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const query = `
		SELECT id, team_red_id, team_white_id, summary_status, match_state, created_at, updated_at
		FROM games
		WHERE id = $1`

	sess, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

// ListActiveSessions retrieves all sessions not completed or deleted
func (r *Repository) ListActiveSessions(ctx context.Context) ([]models.Session, error) {
	const query = `
		SELECT id, team_red_id, team_white_id, summary_status, match_state, created_at, updated_at
		FROM games
		WHERE summary_status = $1
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, models.SummaryStatusLobby)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListUpdatedSince retrieves sessions whose state changed after the given
// time. The store feed uses this as a fallback sweep when NOTIFY is missed.
func (r *Repository) ListUpdatedSince(ctx context.Context, since time.Time) ([]models.Session, error) {
	const query = `
		SELECT id, team_red_id, team_white_id, summary_status, match_state, created_at, updated_at
		FROM games
		WHERE updated_at > $1 AND summary_status != $2
		ORDER BY updated_at ASC`

	rows, err := r.pool.Query(ctx, query, since, models.SummaryStatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list updated sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// UpdateMatchState replaces the stored snapshot wholesale and notifies
// listeners on the state-changed channel.
func (r *Repository) UpdateMatchState(ctx context.Context, id uuid.UUID, state *models.MatchState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal match state: %w", err)
	}

	const query = `
		UPDATE games
		SET match_state = $2, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, stateJSON)
	if err != nil {
		return fmt.Errorf("failed to update match state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	if _, err := r.pool.Exec(ctx, "SELECT pg_notify($1, $2)", stateChangedChannel, id.String()); err != nil {
		return fmt.Errorf("failed to notify state change: %w", err)
	}

	return nil
}

// UpdateSummaryStatus updates the coarse session status
func (r *Repository) UpdateSummaryStatus(ctx context.Context, id uuid.UUID, status models.SummaryStatus) error {
	const query = `
		UPDATE games
		SET summary_status = $2, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update summary status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// DeleteSession soft-deletes a session by marking its summary status
func (r *Repository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := r.UpdateSummaryStatus(ctx, id, models.SummaryStatusDeleted); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// InsertHistory appends one archive row for a completed session
func (r *Repository) InsertHistory(ctx context.Context, rec *models.HistoryRecord) error {
	stateJSON, err := json.Marshal(rec.FinalState)
	if err != nil {
		return fmt.Errorf("failed to marshal final state: %w", err)
	}

	const query = `
		INSERT INTO game_history (id, game_id, team_red_id, team_white_id, final_state, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.TeamRedID, rec.TeamWhiteID, stateJSON, rec.ArchivedAt); err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	return nil
}

// CompleteSession archives the final state and flips the summary status
// in a single transaction. Writing history and closing the session must
// not be observable separately.
func (r *Repository) CompleteSession(ctx context.Context, id uuid.UUID, final *models.MatchState) (*models.HistoryRecord, error) {
	sess, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	stateJSON, err := json.Marshal(final)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal final state: %w", err)
	}

	rec := &models.HistoryRecord{
		ID:          uuid.New(),
		SessionID:   id,
		TeamRedID:   sess.TeamRedID,
		TeamWhiteID: sess.TeamWhiteID,
		FinalState:  final.Clone(),
		ArchivedAt:  time.Now().UTC(),
	}

	err = sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		const updateQuery = `
			UPDATE games
			SET match_state = $2, summary_status = $3, updated_at = now()
			WHERE id = $1`

		tag, err := tx.Exec(ctx, updateQuery, id, stateJSON, models.SummaryStatusCompleted)
		if err != nil {
			return fmt.Errorf("failed to update session on completion: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrSessionNotFound
		}

		const insertQuery = `
			INSERT INTO game_history (id, game_id, team_red_id, team_white_id, final_state, archived_at)
			VALUES ($1, $2, $3, $4, $5, $6)`

		if _, err := tx.Exec(ctx, insertQuery,
			rec.ID, rec.SessionID, rec.TeamRedID, rec.TeamWhiteID, stateJSON, rec.ArchivedAt); err != nil {
			return fmt.Errorf("failed to insert history record: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// ListHistory retrieves archive rows for a session, newest first
func (r *Repository) ListHistory(ctx context.Context, sessionID uuid.UUID) ([]models.HistoryRecord, error) {
	const query = `
		SELECT id, game_id, team_red_id, team_white_id, final_state, archived_at
		FROM game_history
		WHERE game_id = $1
		ORDER BY archived_at DESC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		var stateJSON []byte
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.TeamRedID, &rec.TeamWhiteID, &stateJSON, &rec.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.FinalState = &models.MatchState{}
		if err := json.Unmarshal(stateJSON, rec.FinalState); err != nil {
			return nil, fmt.Errorf("failed to unmarshal final state: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession reads one games row into the domain model
func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var stateJSON []byte

	if err := row.Scan(&sess.ID, &sess.TeamRedID, &sess.TeamWhiteID, &sess.Summary, &stateJSON,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}

	sess.State = &models.MatchState{}
	if err := json.Unmarshal(stateJSON, sess.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match state: %w", err)
	}

	return &sess, nil
}

// collectSessions drains the rows into domain models
func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}

	return sessions, nil
}
