package gateway

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gateball/go/internal/match/events"
)

// Broadcaster adapts the connection manager to the engine's event
// emitter port: engine events go straight to the session's viewers.
type Broadcaster struct {
	cm *ConnectionManager
}

// NewBroadcaster creates a broadcaster backed by the connection manager.
func NewBroadcaster(cm *ConnectionManager) *Broadcaster {
	return &Broadcaster{cm: cm}
}

// Emit fans the event out to every viewer of its session.
func (b *Broadcaster) Emit(env events.Envelope) {
	sessionID, err := uuid.Parse(env.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", env.SessionID).Msg("event with invalid session id")
		return
	}
	b.cm.BroadcastToSession(sessionID, env)
}
