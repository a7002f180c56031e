package sync

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gateball/go/internal/match/events"
	"github.com/mcdev12/gateball/go/internal/models"
)

type fakeMsg struct {
	jetstream.Msg
	data []byte
}

func (m *fakeMsg) Data() []byte { return m.data }

type recordingHandler struct {
	snapshots []*models.MatchState
	applied   bool
}

func (h *recordingHandler) ApplyRemote(snapshot *models.MatchState) bool {
	h.snapshots = append(h.snapshots, snapshot)
	return h.applied
}

func snapshotMsg(t *testing.T, sessionID uuid.UUID, state *models.MatchState) *fakeMsg {
	t.Helper()
	env, err := events.New(sessionID, events.TypeStateSnapshot, events.SnapshotPayload{State: state})
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return &fakeMsg{data: data}
}

func TestHandleMessage_AppliesSnapshot(t *testing.T) {
	sessionID := uuid.New()
	state := models.NewMatchState()
	state.Status = models.MatchStatusRunning
	state.TimeLeft = 1742
	state.Revision = 12

	a := &Adapter{cfg: DefaultConfig()}
	handler := &recordingHandler{applied: true}

	err := a.handleMessage(snapshotMsg(t, sessionID, state), handler)
	require.NoError(t, err)

	require.Len(t, handler.snapshots, 1)
	got := handler.snapshots[0]
	assert.Equal(t, models.MatchStatusRunning, got.Status)
	assert.Equal(t, 1742, got.TimeLeft)
	assert.Equal(t, uint64(12), got.Revision)
}

func TestHandleMessage_IgnoresOtherEventTypes(t *testing.T) {
	env, err := events.New(uuid.New(), events.TypeAudioCue, events.AudioCuePayload{Cue: "beep", TimeLeft: 60})
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	a := &Adapter{cfg: DefaultConfig()}
	handler := &recordingHandler{}

	err = a.handleMessage(&fakeMsg{data: data}, handler)
	require.NoError(t, err)
	assert.Empty(t, handler.snapshots)
}

func TestHandleMessage_MalformedEnvelope(t *testing.T) {
	a := &Adapter{cfg: DefaultConfig()}
	handler := &recordingHandler{}

	err := a.handleMessage(&fakeMsg{data: []byte("not json")}, handler)
	assert.Error(t, err)
	assert.Empty(t, handler.snapshots)
}

func TestHandleMessage_SnapshotWithoutState(t *testing.T) {
	env, err := events.New(uuid.New(), events.TypeStateSnapshot, events.SnapshotPayload{})
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	a := &Adapter{cfg: DefaultConfig()}
	handler := &recordingHandler{}

	err = a.handleMessage(&fakeMsg{data: data}, handler)
	assert.Error(t, err)
	assert.Empty(t, handler.snapshots)
}

func TestSubject_ScopedPerSession(t *testing.T) {
	a := &Adapter{cfg: DefaultConfig()}
	sessionID := uuid.MustParse("3f1c8a52-9d77-4b41-8a3e-6c2f0de01234")

	assert.Equal(t, "match.state.3f1c8a52-9d77-4b41-8a3e-6c2f0de01234", a.subject(sessionID))
}
