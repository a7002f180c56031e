package session

import (
	"errors"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id resolves to no row.
var ErrSessionNotFound = errors.New("session not found")

// CreateSessionRequest carries the inputs for creating a new session
type CreateSessionRequest struct {
	TeamRedID   uuid.UUID `json:"team_red_id"`
	TeamWhiteID uuid.UUID `json:"team_white_id"`
}

// stateChangedChannel is the Postgres NOTIFY channel fired on every
// wholesale match_state write. The store feed listens on it.
const stateChangedChannel = "game_state_changed"
