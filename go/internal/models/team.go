package models

import (
	"time"

	"github.com/google/uuid"
)

// TeamRecord is a registered team that can be booked into sessions.
type TeamRecord struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamMember links a viewer identity to a team. The captain flag gates
// every state-mutating command on a session the team participates in.
type TeamMember struct {
	TeamID    uuid.UUID `json:"team_id"`
	ViewerID  uuid.UUID `json:"viewer_id"`
	IsCaptain bool      `json:"is_captain"`
	JoinedAt  time.Time `json:"joined_at"`
}
