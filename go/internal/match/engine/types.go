package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/gateball/go/internal/match/events"
	"github.com/mcdev12/gateball/go/internal/match/rolegate"
	"github.com/mcdev12/gateball/go/internal/models"
)

// SessionContext carries the identity of the viewed session. It is built
// once at session load and passed into the engine's constructor; its
// lifecycle is tied 1:1 to the viewed session.
type SessionContext struct {
	SessionID   uuid.UUID
	TeamRedID   uuid.UUID
	TeamWhiteID uuid.UUID
	Gate        *rolegate.Gate
}

// Captain reports whether the session's viewer may issue gated commands.
func (s SessionContext) Captain() bool {
	return s.Gate != nil && s.Gate.Captain()
}

// Pusher persists a full snapshot to the remote store. Calls are
// fire-and-forget: they never block local mutation and their failure never
// rolls back the optimistic local state.
type Pusher interface {
	PushState(sessionID uuid.UUID, state *models.MatchState)
}

// Archiver writes the append-only history record at completion.
type Archiver interface {
	Archive(ctx context.Context, sessionID uuid.UUID, final *models.MatchState) error
}

// Emitter delivers engine events to local consumers (the gateway fan-out,
// the audio collaborator).
type Emitter interface {
	Emit(env events.Envelope)
}

// ClockRunner is the engine's handle on its local clock.
type ClockRunner interface {
	Start(remainingSec int)
	Stop()
}

// CommandResult reports whether a command mutated state. Unauthorized or
// out-of-state commands are silent no-ops; Applied lets a caller notice
// without the engine raising an error.
type CommandResult struct {
	Applied bool
}

var applied = CommandResult{Applied: true}
var ignored = CommandResult{}
