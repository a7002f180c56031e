package storefeed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gateball/go/internal/match/events"
	"github.com/mcdev12/gateball/go/internal/models"
)

type fakeSource struct {
	sessions map[uuid.UUID]*models.Session
	updated  []models.Session
}

func (s *fakeSource) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	return sess, nil
}

func (s *fakeSource) ListUpdatedSince(ctx context.Context, since time.Time) ([]models.Session, error) {
	return s.updated, nil
}

type fakePublisher struct {
	published []events.Envelope
	failures  int
}

func (p *fakePublisher) Publish(ctx context.Context, env events.Envelope) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, env)
	return nil
}

func testSession() *models.Session {
	state := models.NewMatchState()
	state.Status = models.MatchStatusRunning
	state.TimeLeft = 1500
	state.Revision = 7
	return &models.Session{
		ID:          uuid.New(),
		TeamRedID:   uuid.New(),
		TeamWhiteID: uuid.New(),
		Summary:     models.SummaryStatusLobby,
		State:       state,
	}
}

func testFeed(source SessionSource, publisher Publisher) *Feed {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return &Feed{
		source:    source,
		publisher: publisher,
		cfg:       cfg,
		lastSweep: time.Now(),
	}
}

func TestHandleNotification_RepublishesSnapshot(t *testing.T) {
	sess := testSession()
	source := &fakeSource{sessions: map[uuid.UUID]*models.Session{sess.ID: sess}}
	publisher := &fakePublisher{}
	f := testFeed(source, publisher)

	require.NoError(t, f.handleNotification(context.Background(), sess.ID.String()))

	require.Len(t, publisher.published, 1)
	env := publisher.published[0]
	assert.Equal(t, events.TypeStateSnapshot, env.Type)
	assert.Equal(t, sess.ID.String(), env.SessionID)

	var payload events.SnapshotPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, uint64(7), payload.State.Revision)
	assert.Equal(t, 1500, payload.State.TimeLeft)
}

func TestHandleNotification_InvalidPayload(t *testing.T) {
	f := testFeed(&fakeSource{}, &fakePublisher{})

	assert.Error(t, f.handleNotification(context.Background(), "not-a-uuid"))
}

func TestHandleNotification_UnknownSession(t *testing.T) {
	f := testFeed(&fakeSource{sessions: map[uuid.UUID]*models.Session{}}, &fakePublisher{})

	assert.Error(t, f.handleNotification(context.Background(), uuid.New().String()))
}

func TestPublishWithRetry_RecoversFromTransientFailure(t *testing.T) {
	sess := testSession()
	publisher := &fakePublisher{failures: 2}
	f := testFeed(&fakeSource{}, publisher)

	require.NoError(t, f.publishWithRetry(context.Background(), sess))
	assert.Len(t, publisher.published, 1)
}

func TestPublishWithRetry_ExhaustsRetries(t *testing.T) {
	sess := testSession()
	publisher := &fakePublisher{failures: 100}
	f := testFeed(&fakeSource{}, publisher)

	err := f.publishWithRetry(context.Background(), sess)
	assert.Error(t, err)
	assert.Empty(t, publisher.published)
}

func TestSweepUpdated_PublishesEachSession(t *testing.T) {
	a, b := testSession(), testSession()
	source := &fakeSource{updated: []models.Session{*a, *b}}
	publisher := &fakePublisher{}
	f := testFeed(source, publisher)

	require.NoError(t, f.sweepUpdated(context.Background()))
	assert.Len(t, publisher.published, 2)
}
