// Package events defines the envelope and payloads shared between the
// session engine, the sync adapter, the store feed and the gateway.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gateball/go/internal/models"
)

// Type identifies a match event.
type Type string

const (
	TypeStateSnapshot  Type = "StateSnapshot"
	TypeMatchStarted   Type = "MatchStarted"
	TypeMatchPaused    Type = "MatchPaused"
	TypeMatchReset     Type = "MatchReset"
	TypeMatchCompleted Type = "MatchCompleted"
	TypeScoreChanged   Type = "ScoreChanged"
	TypeOutToggled     Type = "OutToggled"
	TypeAudioCue       Type = "AudioCue"
)

// Envelope is the wire format for all match events, on NATS subjects and
// on WebSocket connections alike.
type Envelope struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SnapshotPayload carries a full MatchState. Snapshots are the unit of
// synchronization; there are no partial updates.
type SnapshotPayload struct {
	State *models.MatchState `json:"state"`
}

// ScoreChangedPayload reports a single player's score advancing one cycle step.
type ScoreChangedPayload struct {
	PlayerID models.PlayerID `json:"player_id"`
	Score    int             `json:"score"`
}

// OutToggledPayload reports a player's retired-for-match marker flipping.
type OutToggledPayload struct {
	PlayerID models.PlayerID `json:"player_id"`
	Out      bool            `json:"out"`
}

// AudioCuePayload carries one timing cue for the audio collaborator.
type AudioCuePayload struct {
	Cue      string `json:"cue"`
	TimeLeft int    `json:"time_left"`
}

// MatchCompletedPayload reports the timeout transition into completed.
type MatchCompletedPayload struct {
	CompletedAt time.Time          `json:"completed_at"`
	FinalState  *models.MatchState `json:"final_state"`
}

// New builds an envelope around a payload, stamping event id and time.
func New(sessionID uuid.UUID, typ Type, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{
		EventID:   uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// ParsePayload decodes an envelope's payload into the struct matching its type.
func ParsePayload(env Envelope) (any, error) {
	switch env.Type {
	case TypeStateSnapshot, TypeMatchStarted, TypeMatchPaused, TypeMatchReset:
		var p SnapshotPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeScoreChanged:
		var p ScoreChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeOutToggled:
		var p OutToggledPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeAudioCue:
		var p AudioCuePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeMatchCompleted:
		var p MatchCompletedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
}
