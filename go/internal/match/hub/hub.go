// Package hub hosts the live engines for every session this process
// serves. It loads sessions on demand, wires each engine to its clock,
// tap disambiguators and sync subscription, and routes client commands
// with per-viewer captain checks.
package hub

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gateball/go/internal/match/clock"
	"github.com/mcdev12/gateball/go/internal/match/engine"
	"github.com/mcdev12/gateball/go/internal/match/gateway"
	"github.com/mcdev12/gateball/go/internal/match/rolegate"
	matchsync "github.com/mcdev12/gateball/go/internal/match/sync"
	"github.com/mcdev12/gateball/go/internal/match/tap"
	"github.com/mcdev12/gateball/go/internal/models"
)

// SessionLoader fetches session rows for engine bootstrap.
type SessionLoader interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Subscriber attaches an engine to the inbound snapshot stream.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID, handler matchsync.SnapshotHandler) error
}

// Hub manages the set of live engines, one per session.
type Hub struct {
	loader     SessionLoader
	membership rolegate.MembershipLookup
	pusher     engine.Pusher
	archiver   engine.Archiver
	emitter    engine.Emitter
	subscriber Subscriber
	clk        clockwork.Clock
	clockCfg   clock.Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*active
	gates    map[gateKey]*rolegate.Gate
	ctx      context.Context
	cancel   context.CancelFunc
}

type active struct {
	engine     *engine.Engine
	clock      *clock.Clock
	timerTaps  *tap.Disambiguator
	playerTaps *tap.Disambiguator
}

func (a *active) close() {
	a.timerTaps.Close()
	a.playerTaps.Close()
	a.engine.Close()
}

type gateKey struct {
	sessionID uuid.UUID
	viewerID  uuid.UUID
}

// New creates a hub. The hub's engines run with captain authority; the
// per-viewer gate is applied at command routing instead.
func New(
	loader SessionLoader,
	membership rolegate.MembershipLookup,
	pusher engine.Pusher,
	archiver engine.Archiver,
	emitter engine.Emitter,
	subscriber Subscriber,
	clk clockwork.Clock,
	clockCfg clock.Config,
) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		loader:     loader,
		membership: membership,
		pusher:     pusher,
		archiver:   archiver,
		emitter:    emitter,
		subscriber: subscriber,
		clk:        clk,
		clockCfg:   clockCfg,
		sessions:   make(map[uuid.UUID]*active),
		gates:      make(map[gateKey]*rolegate.Gate),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// authority satisfies the membership lookup with an unconditional yes,
// for the hub's own engines only.
type authority struct{}

func (authority) IsCaptainOnAny(ctx context.Context, viewerID uuid.UUID, teamIDs ...uuid.UUID) (bool, error) {
	return true, nil
}

// timerControl is the shared control id for the match clock.
const timerControl tap.ControlID = "timer"

func playerControl(id models.PlayerID) tap.ControlID {
	return tap.ControlID(strconv.Itoa(int(id)))
}

func parsePlayerControl(id tap.ControlID) (models.PlayerID, bool) {
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return 0, false
	}
	pid := models.PlayerID(n)
	if pid < models.MinPlayerID || pid > models.MaxPlayerID {
		return 0, false
	}
	return pid, true
}

// Engine returns the live engine for a session, loading it on first use.
func (h *Hub) Engine(ctx context.Context, sessionID uuid.UUID) (*engine.Engine, error) {
	a, err := h.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return a.engine, nil
}

func (h *Hub) session(ctx context.Context, sessionID uuid.UUID) (*active, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionLocked(ctx, sessionID)
}

func (h *Hub) sessionLocked(ctx context.Context, sessionID uuid.UUID) (*active, error) {
	if a, ok := h.sessions[sessionID]; ok {
		return a, nil
	}

	sess, err := h.loader.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	gate, err := rolegate.Load(ctx, authority{}, uuid.Nil, sess.TeamRedID, sess.TeamWhiteID)
	if err != nil {
		return nil, fmt.Errorf("load authority gate: %w", err)
	}

	sc := engine.SessionContext{
		SessionID:   sess.ID,
		TeamRedID:   sess.TeamRedID,
		TeamWhiteID: sess.TeamWhiteID,
		Gate:        gate,
	}

	eng := engine.New(sc, sess.State, h.pusher, h.archiver, h.emitter)
	clk := clock.New(h.clk, eng, sc.Captain(), h.clockCfg)
	eng.AttachClock(clk)

	// A single tap on the timer toggles run/pause; a double tap resets.
	// Player cells defer the score advance so a double tap can convert it
	// into an out-toggle instead.
	timerTaps := tap.New(h.clk, tap.TimerConfig(),
		func(tap.ControlID) { h.toggleRun(eng) },
		func(tap.ControlID) { eng.Reset(h.ctx) },
	)
	playerTaps := tap.New(h.clk, tap.PlayerCellConfig(),
		func(id tap.ControlID) {
			if pid, ok := parsePlayerControl(id); ok {
				eng.UpdateScore(h.ctx, pid)
			}
		},
		func(id tap.ControlID) {
			if pid, ok := parsePlayerControl(id); ok {
				eng.ToggleOut(h.ctx, pid)
			}
		},
	)

	a := &active{engine: eng, clock: clk, timerTaps: timerTaps, playerTaps: playerTaps}

	if h.subscriber != nil {
		if err := h.subscriber.Subscribe(h.ctx, sessionID, eng); err != nil {
			a.close()
			return nil, fmt.Errorf("subscribe session: %w", err)
		}
	}

	h.sessions[sessionID] = a
	log.Info().Str("session_id", sessionID.String()).Msg("session engine loaded")
	return a, nil
}

// toggleRun is the timer tap's primary action.
func (h *Hub) toggleRun(eng *engine.Engine) {
	if eng.Snapshot().Status == models.MatchStatusRunning {
		eng.Pause(h.ctx)
	} else {
		eng.Start(h.ctx)
	}
}

// viewerGate resolves and caches the captain flag for a viewer on a
// session. Resolved once per session lifetime, as on a client device.
func (h *Hub) viewerGate(ctx context.Context, sessionID, viewerID uuid.UUID) (*rolegate.Gate, error) {
	key := gateKey{sessionID: sessionID, viewerID: viewerID}

	h.mu.Lock()
	if g, ok := h.gates[key]; ok {
		h.mu.Unlock()
		return g, nil
	}
	h.mu.Unlock()

	row, err := h.loader.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session for gate: %w", err)
	}

	g, err := rolegate.Load(ctx, h.membership, viewerID, row.TeamRedID, row.TeamWhiteID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.gates[key] = g
	h.mu.Unlock()
	return g, nil
}

// HandleCommand implements the gateway's command router. Commands from
// viewers without the captain flag are dropped silently. Raw tap actions
// go through the session's disambiguators; the rest address the engine
// directly.
func (h *Hub) HandleCommand(ctx context.Context, sessionID uuid.UUID, viewerID string, cmd gateway.ClientCommand) {
	viewer, err := uuid.Parse(viewerID)
	if err != nil {
		log.Debug().Str("viewer_id", viewerID).Str("action", cmd.Action).Msg("dropping command from unidentified viewer")
		return
	}

	a, err := h.session(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to load engine for command")
		return
	}
	eng := a.engine

	gate, err := h.viewerGate(ctx, sessionID, viewer)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to resolve viewer gate")
		return
	}
	if !gate.Captain() {
		log.Debug().
			Str("session_id", sessionID.String()).
			Str("viewer_id", viewerID).
			Str("action", cmd.Action).
			Msg("dropping command from non-captain")
		return
	}

	var result engine.CommandResult
	switch cmd.Action {
	case "tap_timer":
		a.timerTaps.Tap(timerControl)
		log.Debug().Str("session_id", sessionID.String()).Msg("timer tap routed")
		return
	case "tap_player":
		playerID := models.PlayerID(cmd.PlayerID)
		if playerID < models.MinPlayerID || playerID > models.MaxPlayerID {
			log.Warn().Int("player_id", cmd.PlayerID).Msg("tap with invalid player id")
			return
		}
		a.playerTaps.Tap(playerControl(playerID))
		log.Debug().
			Str("session_id", sessionID.String()).
			Int("player_id", cmd.PlayerID).
			Msg("player tap routed")
		return
	case "start":
		result = eng.Start(ctx)
	case "pause":
		result = eng.Pause(ctx)
	case "reset":
		result = eng.Reset(ctx)
	case "update_score":
		playerID := models.PlayerID(cmd.PlayerID)
		if playerID < models.MinPlayerID || playerID > models.MaxPlayerID {
			log.Warn().Int("player_id", cmd.PlayerID).Msg("command with invalid player id")
			return
		}
		result = eng.UpdateScore(ctx, playerID)
	case "toggle_out":
		playerID := models.PlayerID(cmd.PlayerID)
		if playerID < models.MinPlayerID || playerID > models.MaxPlayerID {
			log.Warn().Int("player_id", cmd.PlayerID).Msg("command with invalid player id")
			return
		}
		result = eng.ToggleOut(ctx, playerID)
	default:
		log.Warn().Str("action", cmd.Action).Msg("unknown client command")
		return
	}

	log.Debug().
		Str("session_id", sessionID.String()).
		Str("action", cmd.Action).
		Bool("applied", result.Applied).
		Msg("client command handled")
}

// Release tears down one session's engine, taps and clock, and drops the
// session's cached viewer gates.
func (h *Hub) Release(sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if a, ok := h.sessions[sessionID]; ok {
		a.close()
		delete(h.sessions, sessionID)
		log.Info().Str("session_id", sessionID.String()).Msg("session engine released")
	}
	for key := range h.gates {
		if key.sessionID == sessionID {
			delete(h.gates, key)
		}
	}
}

// Close tears down every live engine and the subscription context.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancel()
	for id, a := range h.sessions {
		a.close()
		delete(h.sessions, id)
	}
	h.gates = make(map[gateKey]*rolegate.Gate)
	log.Info().Msg("session hub closed")
}
