package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gateball/go/internal/dbconfig"
	"github.com/mcdev12/gateball/go/internal/match/clock"
	"github.com/mcdev12/gateball/go/internal/match/gateway"
	"github.com/mcdev12/gateball/go/internal/match/hub"
	matchsync "github.com/mcdev12/gateball/go/internal/match/sync"
	"github.com/mcdev12/gateball/go/internal/membership"
	"github.com/mcdev12/gateball/go/internal/models"
	"github.com/mcdev12/gateball/go/internal/session"
	"github.com/mcdev12/gateball/go/internal/storefeed"
)

type Services struct {
	Sessions   *session.App
	Membership *membership.App
	Sync       *matchsync.Adapter
	Hub        *hub.Hub
	ConnMgr    *gateway.ConnectionManager
	WSHandler  *gateway.WebSocketHandler
	State      *gateway.StateHandler
	Consumer   *gateway.EventConsumer
	Feed       *storefeed.Feed
}

func setupServices(ctx context.Context, pool *pgxpool.Pool, dbCfg dbconfig.Config, cfg *Config) (*Services, error) {
	// Database layer → Repository layer → App layer → Gateway layer

	// Sessions
	sessionRepo := session.NewRepository(pool)
	sessionApp := session.NewApp(sessionRepo)

	// Membership
	membershipRepo := membership.NewRepository(pool)
	membershipApp := membership.NewApp(membershipRepo)

	// Remote sync
	syncCfg := matchsync.DefaultConfig()
	syncCfg.URL = cfg.Nats.URL
	syncCfg.StreamName = cfg.Nats.StreamName
	syncCfg.SubjectPrefix = cfg.Nats.SubjectPrefix
	syncAdapter, err := matchsync.New(sessionApp, syncCfg, func(sessionID uuid.UUID, err error) {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("sync push failed, local state kept")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sync adapter: %w", err)
	}
	if err := syncAdapter.EnsureStream(ctx); err != nil {
		syncAdapter.Close()
		return nil, fmt.Errorf("failed to ensure snapshot stream: %w", err)
	}

	// Viewer fan-out
	connMgr := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), nil)
	broadcaster := gateway.NewBroadcaster(connMgr)

	// Live engines
	clockCfg := clock.Config{SyncEverySec: cfg.Clock.SyncEverySec}
	sessionHub := hub.New(sessionApp, membershipApp, syncAdapter, sessionApp, broadcaster, syncAdapter,
		clockwork.NewRealClock(), clockCfg)
	connMgr.SetCommandRouter(sessionHub)

	wsHandler := gateway.NewWebSocketHandler(connMgr)
	stateHandler := gateway.NewStateHandler(&stateProvider{sessions: sessionApp})

	// NATS → WebSocket fan-out
	consumerCfg := gateway.DefaultJetStreamConsumerConfig()
	consumerCfg.URL = cfg.Nats.URL
	consumerCfg.StreamName = cfg.Nats.StreamName
	consumerCfg.SubjectFilter = cfg.Nats.SubjectPrefix + ".>"
	consumer, err := gateway.NewEventConsumer(connMgr, consumerCfg)
	if err != nil {
		syncAdapter.Close()
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	// Postgres NOTIFY → NATS bridge
	feedCfg := storefeed.DefaultConfig()
	feedCfg.DatabaseURL = dbCfg.DSN()
	feedCfg.FallbackInterval = cfg.FallbackInterval()
	publisher := storefeed.NewNATSPublisher(syncAdapter.JetStream(), cfg.Nats.SubjectPrefix)
	feed, err := storefeed.NewFeed(sessionApp, publisher, feedCfg)
	if err != nil {
		consumer.Stop()
		syncAdapter.Close()
		return nil, fmt.Errorf("failed to create store feed: %w", err)
	}

	return &Services{
		Sessions:   sessionApp,
		Membership: membershipApp,
		Sync:       syncAdapter,
		Hub:        sessionHub,
		ConnMgr:    connMgr,
		WSHandler:  wsHandler,
		State:      stateHandler,
		Consumer:   consumer,
		Feed:       feed,
	}, nil
}

// stateProvider adapts the session app to the gateway's state port.
type stateProvider struct {
	sessions *session.App
}

func (p *stateProvider) GetSessionState(ctx context.Context, sessionID uuid.UUID) (*gateway.SessionStateResponse, error) {
	sess, err := p.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	teamScores := sess.State.TeamScores()
	return &gateway.SessionStateResponse{
		SessionID:  sess.ID.String(),
		State:      sess.State,
		RedScore:   teamScores[models.TeamRed],
		WhiteScore: teamScores[models.TeamWhite],
		ServerTime: time.Now().UTC(),
	}, nil
}

func (p *stateProvider) GetActiveSessions(ctx context.Context) ([]gateway.SessionSummary, error) {
	sessions, err := p.sessions.ListActiveSessions(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]gateway.SessionSummary, len(sessions))
	for i, sess := range sessions {
		summaries[i] = gateway.SessionSummary{
			SessionID:   sess.ID.String(),
			TeamRedID:   sess.TeamRedID.String(),
			TeamWhiteID: sess.TeamWhiteID.String(),
			Status:      string(sess.State.Status),
			TimeLeft:    sess.State.TimeLeft,
			UpdatedAt:   sess.UpdatedAt,
		}
	}
	return summaries, nil
}
