package storefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/mcdev12/gateball/go/internal/match/events"
)

// NATSPublisher publishes snapshot envelopes to JetStream, one subject
// per session so DeliverLastPerSubject retains the latest snapshot.
type NATSPublisher struct {
	js            jetstream.JetStream
	subjectPrefix string
}

func NewNATSPublisher(js jetstream.JetStream, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{
		js:            js,
		subjectPrefix: subjectPrefix,
	}
}

func (p *NATSPublisher) Publish(ctx context.Context, env events.Envelope) error {
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, env.SessionID)

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}
