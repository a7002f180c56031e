// Package engine owns the authoritative in-memory match state and its
// legal transitions. Local commands mutate the snapshot optimistically and
// push it wholesale; inbound remote snapshots replace it, newest revision
// wins.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gateball/go/internal/match/audio"
	"github.com/mcdev12/gateball/go/internal/match/events"
	"github.com/mcdev12/gateball/go/internal/models"
)

// archiveTimeout bounds the completion history write.
const archiveTimeout = 10 * time.Second

// Engine is the session state machine for one viewed match.
type Engine struct {
	sess     SessionContext
	pusher   Pusher
	archiver Archiver
	emitter  Emitter

	mu       sync.Mutex
	state    *models.MatchState
	clock    ClockRunner
	archived bool
	closed   bool
}

// New builds an engine around the snapshot loaded from the store. The
// clock is attached separately because it needs the engine as its driver.
func New(sess SessionContext, initial *models.MatchState, pusher Pusher, archiver Archiver, emitter Emitter) *Engine {
	state := initial.Clone()
	state.Normalize()
	return &Engine{
		sess:     sess,
		pusher:   pusher,
		archiver: archiver,
		emitter:  emitter,
		state:    state,
		archived: state.Status == models.MatchStatusCompleted,
	}
}

// AttachClock wires the local clock and, if the loaded snapshot was
// already running, resumes ticking from its remaining time.
func (e *Engine) AttachClock(c ClockRunner) {
	e.mu.Lock()
	e.clock = c
	resume := e.state.Status == models.MatchStatusRunning
	remaining := e.state.TimeLeft
	e.mu.Unlock()

	if resume {
		c.Start(remaining)
	}
}

// Snapshot returns a copy of the current state for reads.
func (e *Engine) Snapshot() *models.MatchState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Start moves lobby or paused into running. Captain only.
func (e *Engine) Start(ctx context.Context) CommandResult {
	e.mu.Lock()
	if !e.gateLocked("start") {
		e.mu.Unlock()
		return ignored
	}
	if e.state.Status != models.MatchStatusLobby && e.state.Status != models.MatchStatusPaused {
		e.dropLocked("start")
		e.mu.Unlock()
		return ignored
	}

	e.state.Status = models.MatchStatusRunning
	e.state.Revision++
	remaining := e.state.TimeLeft
	e.emitLocked(events.TypeMatchStarted, events.SnapshotPayload{State: e.state.Clone()})
	e.pushLocked()
	e.mu.Unlock()

	e.startClock(remaining)
	return applied
}

// Pause moves running into paused. Captain only.
func (e *Engine) Pause(ctx context.Context) CommandResult {
	e.mu.Lock()
	if !e.gateLocked("pause") {
		e.mu.Unlock()
		return ignored
	}
	if e.state.Status != models.MatchStatusRunning {
		e.dropLocked("pause")
		e.mu.Unlock()
		return ignored
	}

	e.state.Status = models.MatchStatusPaused
	e.state.Revision++
	e.emitLocked(events.TypeMatchPaused, events.SnapshotPayload{State: e.state.Clone()})
	e.pushLocked()
	e.mu.Unlock()

	e.stopClock()
	return applied
}

// Reset returns the match to the lobby from any state: full clock, all
// scores zero, all outs cleared. Captain only.
func (e *Engine) Reset(ctx context.Context) CommandResult {
	e.mu.Lock()
	if !e.gateLocked("reset") {
		e.mu.Unlock()
		return ignored
	}

	fresh := models.NewMatchState()
	fresh.Revision = e.state.Revision + 1
	e.state = fresh
	e.archived = false
	e.emitLocked(events.TypeMatchReset, events.SnapshotPayload{State: e.state.Clone()})
	e.pushLocked()
	e.mu.Unlock()

	e.stopClock()
	return applied
}

// UpdateScore advances one player's score a single cycle step. Only legal
// while the match is running. Captain only.
func (e *Engine) UpdateScore(ctx context.Context, playerID models.PlayerID) CommandResult {
	e.mu.Lock()
	if !e.gateLocked("update_score") {
		e.mu.Unlock()
		return ignored
	}
	if e.state.Status != models.MatchStatusRunning {
		e.dropLocked("update_score")
		e.mu.Unlock()
		return ignored
	}
	if playerID < models.MinPlayerID || playerID > models.MaxPlayerID {
		e.dropLocked("update_score")
		e.mu.Unlock()
		return ignored
	}

	next := NextScore(e.state.Scores[playerID])
	e.state.Scores[playerID] = next
	e.state.Revision++
	e.emitLocked(events.TypeScoreChanged, events.ScoreChangedPayload{PlayerID: playerID, Score: next})
	e.pushLocked()
	e.mu.Unlock()
	return applied
}

// ToggleOut flips a player's retired-for-match marker. Legal in any state,
// independent of score. Captain only.
func (e *Engine) ToggleOut(ctx context.Context, playerID models.PlayerID) CommandResult {
	e.mu.Lock()
	if !e.gateLocked("toggle_out") {
		e.mu.Unlock()
		return ignored
	}
	if playerID < models.MinPlayerID || playerID > models.MaxPlayerID {
		e.dropLocked("toggle_out")
		e.mu.Unlock()
		return ignored
	}

	out := !e.state.Outs[playerID]
	e.state.Outs[playerID] = out
	e.state.Revision++
	e.emitLocked(events.TypeOutToggled, events.OutToggledPayload{PlayerID: playerID, Out: out})
	e.pushLocked()
	e.mu.Unlock()
	return applied
}

// HandleTick receives the clock's authoritative remaining time. Local
// state updates on every tick; only pushDue ticks sync to the store.
func (e *Engine) HandleTick(remaining int, pushDue bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != models.MatchStatusRunning {
		return
	}
	if remaining < 0 {
		remaining = 0
	}
	e.state.TimeLeft = remaining

	for _, cue := range audio.CuesAt(remaining) {
		e.emitLocked(events.TypeAudioCue, events.AudioCuePayload{Cue: string(cue), TimeLeft: remaining})
	}

	if pushDue {
		e.state.Revision++
		e.pushLocked()
	}
}

// HandleTimeout fires the clock-driven transition into completed. No
// actor gate: the clock has no actor. The archive write and the final
// push happen on the captain's engine only; viewers flip status locally
// and receive the authoritative snapshot as an echo.
func (e *Engine) HandleTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != models.MatchStatusRunning {
		return
	}

	e.state.TimeLeft = 0
	e.state.Status = models.MatchStatusCompleted

	for _, cue := range audio.CuesAt(0) {
		e.emitLocked(events.TypeAudioCue, events.AudioCuePayload{Cue: string(cue), TimeLeft: 0})
	}
	e.emitLocked(events.TypeMatchCompleted, events.MatchCompletedPayload{
		CompletedAt: time.Now().UTC(),
		FinalState:  e.state.Clone(),
	})

	if !e.sess.Captain() {
		return
	}

	e.state.Revision++
	e.archiveLocked()
	e.pushLocked()
}

// ApplyRemote replaces local state with an inbound snapshot. Snapshots
// with a revision at or below the locally held one are dropped; otherwise
// the replacement is wholesale, no merge. Returns whether it applied.
func (e *Engine) ApplyRemote(snapshot *models.MatchState) bool {
	snap := snapshot.Clone()
	snap.Normalize()

	e.mu.Lock()
	if snap.Revision <= e.state.Revision {
		log.Debug().
			Str("session_id", e.sess.SessionID.String()).
			Uint64("inbound_revision", snap.Revision).
			Uint64("local_revision", e.state.Revision).
			Msg("dropping stale remote snapshot")
		e.mu.Unlock()
		return false
	}

	e.state = snap
	if snap.Status != models.MatchStatusCompleted {
		e.archived = false
	}
	e.emitLocked(events.TypeStateSnapshot, events.SnapshotPayload{State: e.state.Clone()})

	running := snap.Status == models.MatchStatusRunning
	remaining := snap.TimeLeft
	e.mu.Unlock()

	// The clock follows the remote status: re-anchor while running,
	// detach otherwise.
	if running {
		e.startClock(remaining)
	} else {
		e.stopClock()
	}
	return true
}

// Close tears down the engine when the session view goes away.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.stopClock()
}

func (e *Engine) gateLocked(command string) bool {
	if e.closed {
		return false
	}
	if !e.sess.Captain() {
		log.Debug().
			Str("session_id", e.sess.SessionID.String()).
			Str("command", command).
			Msg("ignoring command from non-captain")
		return false
	}
	return true
}

func (e *Engine) dropLocked(command string) {
	log.Debug().
		Str("session_id", e.sess.SessionID.String()).
		Str("command", command).
		Str("status", string(e.state.Status)).
		Msg("no transition for command in current status")
}

// pushLocked hands a clone of the current state to the pusher. The pusher
// is fire-and-forget; a failed push surfaces through its own error path
// and never rolls the local state back.
func (e *Engine) pushLocked() {
	if e.pusher == nil {
		return
	}
	e.pusher.PushState(e.sess.SessionID, e.state.Clone())
}

// archiveLocked schedules the history write, at most once per completion.
// The write itself runs off the engine lock with a bounded context, so a
// slow store never stalls subsequent commands.
func (e *Engine) archiveLocked() {
	if e.archived || e.archiver == nil {
		return
	}
	e.archived = true
	final := e.state.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := e.archiver.Archive(ctx, e.sess.SessionID, final); err != nil {
			log.Error().
				Err(err).
				Str("session_id", e.sess.SessionID.String()).
				Msg("failed to archive completed match")
		}
	}()
}

func (e *Engine) emitLocked(typ events.Type, payload any) {
	if e.emitter == nil {
		return
	}
	env, err := events.New(e.sess.SessionID, typ, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(typ)).Msg("failed to build event")
		return
	}
	e.emitter.Emit(env)
}

func (e *Engine) startClock(remaining int) {
	e.mu.Lock()
	c := e.clock
	e.mu.Unlock()
	if c != nil {
		c.Start(remaining)
	}
}

func (e *Engine) stopClock() {
	e.mu.Lock()
	c := e.clock
	e.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}
