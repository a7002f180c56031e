package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gateball/go/internal/match/events"
	"github.com/mcdev12/gateball/go/internal/match/rolegate"
	"github.com/mcdev12/gateball/go/internal/models"
)

type fakeLookup struct{ captain bool }

func (f fakeLookup) IsCaptainOnAny(ctx context.Context, viewerID uuid.UUID, teamIDs ...uuid.UUID) (bool, error) {
	return f.captain, nil
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []*models.MatchState
}

func (p *fakePusher) PushState(sessionID uuid.UUID, state *models.MatchState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, state)
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func (p *fakePusher) last() *models.MatchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pushes) == 0 {
		return nil
	}
	return p.pushes[len(p.pushes)-1]
}

type fakeArchiver struct {
	mu       sync.Mutex
	release  chan struct{} // when set, Archive blocks until it is closed
	archives []*models.MatchState
}

func (a *fakeArchiver) Archive(ctx context.Context, sessionID uuid.UUID, final *models.MatchState) error {
	if a.release != nil {
		<-a.release
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archives = append(a.archives, final)
	return nil
}

func (a *fakeArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.archives)
}

type fakeEmitter struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (e *fakeEmitter) Emit(env events.Envelope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envs = append(e.envs, env)
}

func (e *fakeEmitter) typesSeen() []events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Type, len(e.envs))
	for i, env := range e.envs {
		out[i] = env.Type
	}
	return out
}

type fakeClockRunner struct {
	mu     sync.Mutex
	starts []int
	stops  int
}

func (c *fakeClockRunner) Start(remainingSec int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, remainingSec)
}

func (c *fakeClockRunner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

type harness struct {
	engine   *Engine
	pusher   *fakePusher
	archiver *fakeArchiver
	emitter  *fakeEmitter
	clock    *fakeClockRunner
}

func newHarness(t *testing.T, captain bool, initial *models.MatchState) *harness {
	t.Helper()
	gate, err := rolegate.Load(context.Background(), fakeLookup{captain: captain}, uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)

	sess := SessionContext{
		SessionID:   uuid.New(),
		TeamRedID:   uuid.New(),
		TeamWhiteID: uuid.New(),
		Gate:        gate,
	}
	if initial == nil {
		initial = models.NewMatchState()
	}

	h := &harness{
		pusher:   &fakePusher{},
		archiver: &fakeArchiver{},
		emitter:  &fakeEmitter{},
		clock:    &fakeClockRunner{},
	}
	h.engine = New(sess, initial, h.pusher, h.archiver, h.emitter)
	h.engine.AttachClock(h.clock)
	return h
}

func TestNew_InitialState(t *testing.T) {
	h := newHarness(t, true, nil)
	s := h.engine.Snapshot()

	assert.Equal(t, models.MatchStatusLobby, s.Status)
	assert.Equal(t, 1800, s.TimeLeft)
	require.Len(t, s.Scores, 10)
	require.Len(t, s.Outs, 10)
	for id := models.MinPlayerID; id <= models.MaxPlayerID; id++ {
		assert.Equal(t, 0, s.Scores[id])
		assert.False(t, s.Outs[id])
	}
}

func TestStart_FromLobby(t *testing.T) {
	h := newHarness(t, true, nil)

	res := h.engine.Start(context.Background())
	assert.True(t, res.Applied)

	s := h.engine.Snapshot()
	assert.Equal(t, models.MatchStatusRunning, s.Status)
	assert.Equal(t, 1, h.pusher.count(), "start pushes immediately")
	assert.Equal(t, []int{1800}, h.clock.starts)
}

func TestStart_FromPausedResumes(t *testing.T) {
	initial := models.NewMatchState()
	initial.Status = models.MatchStatusPaused
	initial.TimeLeft = 1234
	h := newHarness(t, true, initial)

	res := h.engine.Start(context.Background())
	assert.True(t, res.Applied)
	assert.Equal(t, []int{1234}, h.clock.starts)
}

func TestStart_IllegalFromRunning(t *testing.T) {
	initial := models.NewMatchState()
	initial.Status = models.MatchStatusRunning
	h := newHarness(t, true, initial)
	// AttachClock resumes a running snapshot; clear that before the command.
	before := h.pusher.count()

	res := h.engine.Start(context.Background())
	assert.False(t, res.Applied)
	assert.Equal(t, before, h.pusher.count(), "no push on no-op")
}

func TestPause_OnlyFromRunning(t *testing.T) {
	h := newHarness(t, true, nil)

	assert.False(t, h.engine.Pause(context.Background()).Applied)

	h.engine.Start(context.Background())
	res := h.engine.Pause(context.Background())
	assert.True(t, res.Applied)
	assert.Equal(t, models.MatchStatusPaused, h.engine.Snapshot().Status)
	assert.GreaterOrEqual(t, h.clock.stops, 1)
}

func TestReset_FromAnyState(t *testing.T) {
	initial := models.NewMatchState()
	initial.Status = models.MatchStatusRunning
	initial.TimeLeft = 42
	initial.Scores[3] = 5
	initial.Outs[4] = true
	initial.Revision = 17
	h := newHarness(t, true, initial)

	res := h.engine.Reset(context.Background())
	assert.True(t, res.Applied)

	s := h.engine.Snapshot()
	assert.Equal(t, models.MatchStatusLobby, s.Status)
	assert.Equal(t, 1800, s.TimeLeft)
	for id := models.MinPlayerID; id <= models.MaxPlayerID; id++ {
		assert.Equal(t, 0, s.Scores[id])
		assert.False(t, s.Outs[id])
	}
	assert.Equal(t, uint64(18), s.Revision, "revision stays monotonic across reset")
}

func TestUpdateScore_CyclesWhileRunning(t *testing.T) {
	h := newHarness(t, true, nil)
	h.engine.Start(context.Background())

	want := []int{1, 2, 3, 5, 0}
	for _, w := range want {
		res := h.engine.UpdateScore(context.Background(), 3)
		assert.True(t, res.Applied)
		assert.Equal(t, w, h.engine.Snapshot().Scores[3])
	}
}

func TestUpdateScore_IgnoredOutsideRunning(t *testing.T) {
	h := newHarness(t, true, nil)

	res := h.engine.UpdateScore(context.Background(), 3)
	assert.False(t, res.Applied)
	assert.Equal(t, 0, h.engine.Snapshot().Scores[3])
	assert.Equal(t, 0, h.pusher.count())
}

func TestUpdateScore_UnknownPlayerIgnored(t *testing.T) {
	h := newHarness(t, true, nil)
	h.engine.Start(context.Background())
	before := h.pusher.count()

	assert.False(t, h.engine.UpdateScore(context.Background(), 11).Applied)
	assert.False(t, h.engine.UpdateScore(context.Background(), 0).Applied)
	assert.Equal(t, before, h.pusher.count())
}

func TestToggleOut_AnyStateIndependentOfScore(t *testing.T) {
	h := newHarness(t, true, nil)

	res := h.engine.ToggleOut(context.Background(), 7)
	assert.True(t, res.Applied)
	s := h.engine.Snapshot()
	assert.True(t, s.Outs[7])
	assert.Equal(t, 0, s.Scores[7], "out toggle never touches the score")
	assert.Equal(t, models.MatchStatusLobby, s.Status, "out toggle never changes status")

	res = h.engine.ToggleOut(context.Background(), 7)
	assert.True(t, res.Applied)
	assert.False(t, h.engine.Snapshot().Outs[7])
}

func TestNonCaptain_AllCommandsAreNoOps(t *testing.T) {
	initial := models.NewMatchState()
	initial.Status = models.MatchStatusRunning
	h := newHarness(t, false, initial)
	before := h.engine.Snapshot()
	pushBefore := h.pusher.count()

	assert.False(t, h.engine.Start(context.Background()).Applied)
	assert.False(t, h.engine.Pause(context.Background()).Applied)
	assert.False(t, h.engine.Reset(context.Background()).Applied)
	assert.False(t, h.engine.UpdateScore(context.Background(), 1).Applied)
	assert.False(t, h.engine.ToggleOut(context.Background(), 1).Applied)

	after := h.engine.Snapshot()
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.TimeLeft, after.TimeLeft)
	assert.Equal(t, before.Scores, after.Scores)
	assert.Equal(t, before.Outs, after.Outs)
	assert.Equal(t, pushBefore, h.pusher.count(), "no push for unauthorized commands")
}

func TestHandleTick_UpdatesLocallyAndPushesOnCadence(t *testing.T) {
	h := newHarness(t, true, nil)
	h.engine.Start(context.Background())
	pushAfterStart := h.pusher.count()

	h.engine.HandleTick(1799, false)
	assert.Equal(t, 1799, h.engine.Snapshot().TimeLeft)
	assert.Equal(t, pushAfterStart, h.pusher.count(), "local-only tick does not push")

	h.engine.HandleTick(1795, true)
	assert.Equal(t, 1795, h.engine.Snapshot().TimeLeft)
	assert.Equal(t, pushAfterStart+1, h.pusher.count())
	assert.Equal(t, 1795, h.pusher.last().TimeLeft)
}

func TestHandleTick_IgnoredWhenNotRunning(t *testing.T) {
	h := newHarness(t, true, nil)
	h.engine.HandleTick(900, true)
	assert.Equal(t, 1800, h.engine.Snapshot().TimeLeft)
	assert.Equal(t, 0, h.pusher.count())
}

func TestHandleTimeout_CompletesArchivesAndPushesOnce(t *testing.T) {
	initial := models.NewMatchState()
	initial.Status = models.MatchStatusRunning
	initial.TimeLeft = 1
	h := newHarness(t, true, initial)
	pushBefore := h.pusher.count()

	h.engine.HandleTimeout()

	s := h.engine.Snapshot()
	assert.Equal(t, models.MatchStatusCompleted, s.Status)
	assert.Equal(t, 0, s.TimeLeft)
	require.Eventually(t, func() bool { return h.archiver.count() == 1 },
		time.Second, 5*time.Millisecond, "exactly one history write")
	assert.Equal(t, pushBefore+1, h.pusher.count(), "timeout pushes immediately")

	// A second timeout (e.g. a straggling clock echo) is a no-op.
	h.engine.HandleTimeout()
	assert.Equal(t, 1, h.archiver.count())
	assert.Equal(t, pushBefore+1, h.pusher.count())
}

func TestHandleTimeout_SlowArchiveDoesNotBlockCommands(t *testing.T) {
	initial := models.NewMatchState()
	initial.Status = models.MatchStatusRunning
	initial.TimeLeft = 1
	h := newHarness(t, true, initial)
	h.archiver.release = make(chan struct{})

	h.engine.HandleTimeout()

	// The history write is still in flight; the captain can already reset.
	result := h.engine.Reset(context.Background())
	assert.True(t, result.Applied)
	assert.Equal(t, models.MatchStatusLobby, h.engine.Snapshot().Status)
	assert.Equal(t, 0, h.archiver.count())

	close(h.archiver.release)
	require.Eventually(t, func() bool { return h.archiver.count() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestHandleTimeout_ViewerDoesNotArchiveOrPush(t *testing.T) {
	initial := models.NewMatchState()
	initial.Status = models.MatchStatusRunning
	initial.TimeLeft = 1
	h := newHarness(t, false, initial)

	h.engine.HandleTimeout()

	assert.Equal(t, models.MatchStatusCompleted, h.engine.Snapshot().Status)
	assert.Equal(t, 0, h.archiver.count())
	assert.Equal(t, 0, h.pusher.count())
}

func TestApplyRemote_NewerRevisionReplacesWholesale(t *testing.T) {
	h := newHarness(t, false, nil)

	remote := models.NewMatchState()
	remote.Status = models.MatchStatusRunning
	remote.TimeLeft = 1500
	remote.Scores[1] = 3
	remote.Revision = 9

	assert.True(t, h.engine.ApplyRemote(remote))

	s := h.engine.Snapshot()
	assert.Equal(t, models.MatchStatusRunning, s.Status)
	assert.Equal(t, 1500, s.TimeLeft)
	assert.Equal(t, 3, s.Scores[1])
	assert.Equal(t, []int{1500}, h.clock.starts, "clock follows the inbound running status")
}

func TestApplyRemote_StaleRevisionDropped(t *testing.T) {
	initial := models.NewMatchState()
	initial.Revision = 10
	initial.Scores[2] = 5
	h := newHarness(t, false, initial)

	stale := models.NewMatchState()
	stale.Revision = 10
	assert.False(t, h.engine.ApplyRemote(stale))

	older := models.NewMatchState()
	older.Revision = 3
	assert.False(t, h.engine.ApplyRemote(older))

	assert.Equal(t, 5, h.engine.Snapshot().Scores[2])
}

func TestApplyRemote_PauseStopsClock(t *testing.T) {
	initial := models.NewMatchState()
	initial.Status = models.MatchStatusRunning
	h := newHarness(t, false, initial)
	stopsBefore := h.clock.stops

	remote := models.NewMatchState()
	remote.Status = models.MatchStatusPaused
	remote.TimeLeft = 1700
	remote.Revision = 2

	assert.True(t, h.engine.ApplyRemote(remote))
	assert.Greater(t, h.clock.stops, stopsBefore)
}

func TestApplyRemote_NormalizesSparseSnapshot(t *testing.T) {
	h := newHarness(t, false, nil)

	remote := &models.MatchState{
		Status:   models.MatchStatusPaused,
		TimeLeft: 9000, // out of domain, clamped
		Scores:   map[models.PlayerID]int{1: 2},
		Revision: 5,
	}
	require.True(t, h.engine.ApplyRemote(remote))

	s := h.engine.Snapshot()
	assert.Equal(t, 1800, s.TimeLeft)
	assert.Len(t, s.Scores, 10)
	assert.Len(t, s.Outs, 10)
	assert.Equal(t, 2, s.Scores[1])
}

func TestTeamScores_ParitySumsRawValues(t *testing.T) {
	h := newHarness(t, true, nil)
	h.engine.Start(context.Background())

	h.engine.UpdateScore(context.Background(), 1) // red, 1
	h.engine.UpdateScore(context.Background(), 3) // red, 1
	h.engine.UpdateScore(context.Background(), 3) // red, 2
	h.engine.UpdateScore(context.Background(), 2) // white, 1

	s := h.engine.Snapshot()
	totals := s.TeamScores()
	assert.Equal(t, 3, totals[models.TeamRed])
	assert.Equal(t, 1, totals[models.TeamWhite])

	sum := 0
	for _, v := range s.Scores {
		sum += v
	}
	assert.Equal(t, sum, totals[models.TeamRed]+totals[models.TeamWhite])
}

// Full end-to-end scenario over the engine's command surface.
func TestEngine_MatchScenario(t *testing.T) {
	h := newHarness(t, true, nil)
	ctx := context.Background()

	// Session created: all zero, lobby, full clock.
	s := h.engine.Snapshot()
	require.Equal(t, models.MatchStatusLobby, s.Status)
	require.Equal(t, 1800, s.TimeLeft)

	// Captain starts: running plus an immediate push.
	require.True(t, h.engine.Start(ctx).Applied)
	require.Equal(t, models.MatchStatusRunning, h.engine.Snapshot().Status)
	require.Equal(t, 1, h.pusher.count())

	// Five ticks in, the clock syncs; the sixth is local only.
	h.engine.HandleTick(1799, false)
	h.engine.HandleTick(1798, false)
	h.engine.HandleTick(1797, false)
	h.engine.HandleTick(1796, false)
	h.engine.HandleTick(1795, true)
	require.Equal(t, 1795, h.engine.Snapshot().TimeLeft)
	require.Equal(t, 2, h.pusher.count())
	h.engine.HandleTick(1794, false)
	require.Equal(t, 1794, h.engine.Snapshot().TimeLeft)
	require.Equal(t, 2, h.pusher.count())

	// Single tap on player 3: one cycle step.
	require.True(t, h.engine.UpdateScore(ctx, 3).Applied)
	require.Equal(t, 1, h.engine.Snapshot().Scores[3])

	// Double tap resolves to an out toggle, score untouched.
	require.True(t, h.engine.ToggleOut(ctx, 3).Applied)
	after := h.engine.Snapshot()
	require.True(t, after.Outs[3])
	require.Equal(t, 1, after.Scores[3])

	seen := h.emitter.typesSeen()
	assert.Contains(t, seen, events.TypeMatchStarted)
	assert.Contains(t, seen, events.TypeScoreChanged)
	assert.Contains(t, seen, events.TypeOutToggled)
}
