// Package storefeed bridges Postgres into the snapshot stream: every
// wholesale match_state write fires a NOTIFY, and the feed republishes
// the fresh snapshot to NATS so writes from any process reach every
// viewer. A periodic fallback sweep covers missed notifications.
package storefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gateball/go/internal/match/events"
	"github.com/mcdev12/gateball/go/internal/models"
)

type Config struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to sweep for missed updates
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		DatabaseURL:      "",
		NotifyChannel:    "game_state_changed",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
	}
}

// SessionSource fetches sessions for republishing.
type SessionSource interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]models.Session, error)
}

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

type Feed struct {
	source    SessionSource
	listener  *pq.Listener
	publisher Publisher
	cfg       Config
	lastSweep time.Time
}

func NewFeed(source SessionSource, publisher Publisher, cfg Config) (*Feed, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for state change notifications")

	return &Feed{
		source:    source,
		listener:  l,
		publisher: publisher,
		cfg:       cfg,
		lastSweep: time.Now(),
	}, nil
}

func (f *Feed) Start(ctx context.Context) error {
	log.Info().
		Str("channel", f.cfg.NotifyChannel).
		Dur("ping_interval", f.cfg.PingInterval).
		Dur("fallback_interval", f.cfg.FallbackInterval).
		Msg("store feed started")

	pingTicker := time.NewTicker(f.cfg.PingInterval)
	fallbackTicker := time.NewTicker(f.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("store feed shutting down")
			return f.Stop()
		case note := <-f.listener.Notify:
			if note == nil {
				// nil notification means channel connection was lost so reconnect
				continue
			}
			if err := f.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			if err := f.sweepUpdated(ctx); err != nil {
				log.Error().Err(err).Msg("failed to sweep updated sessions")
			}
		case <-pingTicker.C:
			if err := f.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (f *Feed) Stop() error {
	return f.listener.Close()
}

// handleNotification handles a pg listen notification. Extra is the
// session id carried on the note. It fetches the fresh snapshot and
// republishes it.
func (f *Feed) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		log.Error().Err(err).Msg("invalid session ID in notification")
		return fmt.Errorf("invalid session ID in notification: %w", err)
	}

	sess, err := f.source.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch session: %w", err)
	}

	if err := f.publishWithRetry(ctx, sess); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	log.Debug().
		Str("session_id", id.String()).
		Uint64("revision", sess.State.Revision).
		Msg("republished snapshot from notification")
	return nil
}

// sweepUpdated republishes snapshots for every session updated since
// the last sweep, covering notifications lost to reconnects.
func (f *Feed) sweepUpdated(ctx context.Context) error {
	since := f.lastSweep
	f.lastSweep = time.Now()

	sessions, err := f.source.ListUpdatedSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list updated sessions: %w", err)
	}

	for i := range sessions {
		sess := &sessions[i]
		if err := f.publishWithRetry(ctx, sess); err != nil {
			log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to republish snapshot")
			continue
		}
	}

	if len(sessions) > 0 {
		log.Info().Int("count", len(sessions)).Msg("fallback sweep republished snapshots")
	}
	return nil
}

// publishWithRetry attempts to publish a snapshot with a linear retry delay.
func (f *Feed) publishWithRetry(ctx context.Context, sess *models.Session) error {
	env, err := events.New(sess.ID, events.TypeStateSnapshot, events.SnapshotPayload{State: sess.State})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := f.publisher.Publish(ctx, env); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("session_id", sess.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("session_id", sess.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", f.cfg.MaxRetries+1, lastErr)
}
