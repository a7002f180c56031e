package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gateball/go/internal/models"
)

type fakeStateProvider struct {
	state    *SessionStateResponse
	sessions []SessionSummary
	err      error
}

func (p *fakeStateProvider) GetSessionState(ctx context.Context, sessionID uuid.UUID) (*SessionStateResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.state, nil
}

func (p *fakeStateProvider) GetActiveSessions(ctx context.Context) ([]SessionSummary, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.sessions, nil
}

func TestExtractSessionIDFromPath(t *testing.T) {
	assert.Equal(t, "abc-123", extractSessionIDFromPath("/api/sessions/abc-123/state"))
	assert.Equal(t, "", extractSessionIDFromPath("/api/sessions//state"))
	assert.Equal(t, "", extractSessionIDFromPath("/api/sessions/abc-123"))
	assert.Equal(t, "", extractSessionIDFromPath("/api/matches/abc-123/state"))
}

func TestHandleGetSessionState(t *testing.T) {
	sessionID := uuid.New()
	state := models.NewMatchState()
	state.Status = models.MatchStatusRunning
	state.TimeLeft = 1234
	state.Scores[1] = 3
	state.Scores[2] = 5

	provider := &fakeStateProvider{
		state: &SessionStateResponse{
			SessionID:  sessionID.String(),
			State:      state,
			RedScore:   3,
			WhiteScore: 5,
		},
	}
	h := NewStateHandler(provider)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/sessions/%s/state", sessionID), nil)
	rec := httptest.NewRecorder()
	h.HandleGetSessionState(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, sessionID.String(), resp.SessionID)
	assert.Equal(t, models.MatchStatusRunning, resp.State.Status)
	assert.Equal(t, 1234, resp.State.TimeLeft)
	assert.Equal(t, 3, resp.RedScore)
	assert.Equal(t, 5, resp.WhiteScore)
	assert.False(t, resp.ServerTime.IsZero())
}

func TestHandleGetSessionState_BadID(t *testing.T) {
	h := NewStateHandler(&fakeStateProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/not-a-uuid/state", nil)
	rec := httptest.NewRecorder()
	h.HandleGetSessionState(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetSessionState_MethodNotAllowed(t *testing.T) {
	h := NewStateHandler(&fakeStateProvider{})

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/sessions/%s/state", uuid.New()), nil)
	rec := httptest.NewRecorder()
	h.HandleGetSessionState(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleGetActiveSessions(t *testing.T) {
	provider := &fakeStateProvider{
		sessions: []SessionSummary{
			{SessionID: uuid.New().String(), Status: "running", TimeLeft: 900},
			{SessionID: uuid.New().String(), Status: "lobby", TimeLeft: 1800},
		},
	}
	h := NewStateHandler(provider)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/active", nil)
	rec := httptest.NewRecorder()
	h.HandleGetActiveSessions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, "running", resp[0].Status)
}
