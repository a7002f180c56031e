// Package sync moves full MatchState snapshots between the engine and the
// shared remote store. Outbound pushes are fire-and-forget; inbound
// snapshots arrive over a JetStream consumer and replace local state.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gateball/go/internal/match/events"
	"github.com/mcdev12/gateball/go/internal/models"
)

// SessionStore defines what the adapter needs from the persistence layer.
type SessionStore interface {
	UpdateMatchState(ctx context.Context, sessionID uuid.UUID, state *models.MatchState) error
}

// SnapshotHandler receives inbound snapshots; the engine's ApplyRemote
// satisfies it.
type SnapshotHandler interface {
	ApplyRemote(snapshot *models.MatchState) bool
}

// Config holds the adapter's NATS and timing settings.
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string // subjects are "<prefix>.<session_id>"
	ConsumerName  string
	AckWait       time.Duration
	MaxDeliver    int
	MaxReconnects int
	ReconnectWait time.Duration
	PushTimeout   time.Duration
}

// DefaultConfig returns the production adapter settings.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "MATCH_STATE",
		SubjectPrefix: "match.state",
		ConsumerName:  "match-sync",
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		PushTimeout:   10 * time.Second,
	}
}

// Adapter is the remote sync boundary for one process. It serves many
// sessions; subscriptions are scoped per session id.
type Adapter struct {
	store   SessionStore
	nc      *nats.Conn
	js      jetstream.JetStream
	cfg     Config
	onError func(sessionID uuid.UUID, err error)
}

// New connects to NATS and builds the adapter. onError surfaces push
// failures to the caller for display; it may be nil. Failures never roll
// back local state and are never retried by the adapter itself.
func New(store SessionStore, cfg Config, onError func(sessionID uuid.UUID, err error)) (*Adapter, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &Adapter{
		store:   store,
		nc:      nc,
		js:      js,
		cfg:     cfg,
		onError: onError,
	}, nil
}

// EnsureStream creates or updates the snapshot stream. Retention keeps
// the latest snapshot per session subject for reconnect resync.
func (a *Adapter) EnsureStream(ctx context.Context) error {
	_, err := a.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              a.cfg.StreamName,
		Description:       "match session snapshots",
		Subjects:          []string{a.cfg.SubjectPrefix + ".>"},
		MaxMsgsPerSubject: 1,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", a.cfg.StreamName, err)
	}
	return nil
}

// JetStream exposes the adapter's JetStream context so collaborators can
// share the connection.
func (a *Adapter) JetStream() jetstream.JetStream {
	return a.js
}

// PushState persists the snapshot wholesale and publishes it for other
// viewers. Fire-and-forget: the engine is never blocked on the network.
func (a *Adapter) PushState(sessionID uuid.UUID, state *models.MatchState) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.PushTimeout)
		defer cancel()

		if err := a.store.UpdateMatchState(ctx, sessionID, state); err != nil {
			a.reportError(sessionID, fmt.Errorf("persist snapshot: %w", err))
			return
		}
		if err := a.publishSnapshot(ctx, sessionID, state); err != nil {
			a.reportError(sessionID, fmt.Errorf("publish snapshot: %w", err))
		}
	}()
}

// publishSnapshot puts the snapshot envelope on the session's subject.
func (a *Adapter) publishSnapshot(ctx context.Context, sessionID uuid.UUID, state *models.MatchState) error {
	env, err := events.New(sessionID, events.TypeStateSnapshot, events.SnapshotPayload{State: state})
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := a.subject(sessionID)
	if _, err := a.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	log.Debug().
		Str("session_id", sessionID.String()).
		Uint64("revision", state.Revision).
		Str("subject", subject).
		Msg("snapshot pushed")
	return nil
}

// Subscribe consumes the session's snapshot subject and feeds each
// inbound snapshot to the handler until ctx is done. DeliverLastPerSubject
// resyncs a reconnecting viewer from the latest snapshot immediately.
func (a *Adapter) Subscribe(ctx context.Context, sessionID uuid.UUID, handler SnapshotHandler) error {
	stream, err := a.js.Stream(ctx, a.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", a.cfg.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          fmt.Sprintf("%s-%s", a.cfg.ConsumerName, sessionID),
		Description:   "match session snapshot consumer",
		FilterSubject: a.subject(sessionID),
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       a.cfg.AckWait,
		MaxDeliver:    a.cfg.MaxDeliver,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := a.handleMessage(msg, handler); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process inbound snapshot")
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error().Err(nakErr).Msg("failed to NAK message")
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	go func() {
		<-ctx.Done()
		consumeCtx.Stop()
		log.Info().Str("session_id", sessionID.String()).Msg("snapshot subscription stopped")
	}()

	log.Info().
		Str("session_id", sessionID.String()).
		Str("subject", a.subject(sessionID)).
		Msg("subscribed to session snapshots")
	return nil
}

// handleMessage decodes the envelope and applies the snapshot verbatim.
func (a *Adapter) handleMessage(msg jetstream.Msg, handler SnapshotHandler) error {
	var env events.Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != events.TypeStateSnapshot {
		// Other event types share the stream but are not sync input.
		return nil
	}

	var payload events.SnapshotPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal snapshot payload: %w", err)
	}
	if payload.State == nil {
		return fmt.Errorf("snapshot event %s carries no state", env.EventID)
	}

	applied := handler.ApplyRemote(payload.State)
	log.Debug().
		Str("session_id", env.SessionID).
		Uint64("revision", payload.State.Revision).
		Bool("applied", applied).
		Msg("inbound snapshot handled")
	return nil
}

func (a *Adapter) subject(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", a.cfg.SubjectPrefix, sessionID)
}

func (a *Adapter) reportError(sessionID uuid.UUID, err error) {
	log.Error().Err(err).Str("session_id", sessionID.String()).Msg("sync push failed")
	if a.onError != nil {
		a.onError(sessionID, err)
	}
}

// Close shuts the NATS connection down.
func (a *Adapter) Close() {
	if a.nc != nil {
		a.nc.Close()
	}
}
