package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus defines the fine-grained in-engine status of a match.
type MatchStatus string

const (
	MatchStatusLobby     MatchStatus = "lobby"
	MatchStatusRunning   MatchStatus = "running"
	MatchStatusPaused    MatchStatus = "paused"
	MatchStatusCompleted MatchStatus = "completed"
)

// SummaryStatus is the coarse session status held on the games row,
// distinct from the in-engine MatchStatus.
type SummaryStatus string

const (
	SummaryStatusLobby     SummaryStatus = "lobby"
	SummaryStatusCompleted SummaryStatus = "completed"
	SummaryStatusDeleted   SummaryStatus = "deleted"
)

// Team identifies one of the two sides of a session.
type Team string

const (
	TeamRed   Team = "red"
	TeamWhite Team = "white"
)

// PlayerID is a fixed slot 1..10. Odd slots play for red, even for white;
// the mapping never changes for the lifetime of a session.
type PlayerID int

const (
	MinPlayerID PlayerID = 1
	MaxPlayerID PlayerID = 10
)

// Team returns the side a player slot belongs to by parity.
func (p PlayerID) Team() Team {
	if p%2 == 1 {
		return TeamRed
	}
	return TeamWhite
}

// MatchDurationSec is the fixed match length in seconds (30 minutes).
const MatchDurationSec = 1800

// MatchState is the authoritative, serializable snapshot of a match.
// It is mutated only by full replacement: either a local engine command
// or an inbound remote snapshot.
type MatchState struct {
	Status   MatchStatus      `json:"status"`
	TimeLeft int              `json:"time_left"`
	Scores   map[PlayerID]int `json:"scores"`
	Outs     map[PlayerID]bool `json:"outs"`
	Revision uint64           `json:"revision"`
}

// NewMatchState returns the initial snapshot: lobby, full clock, all ten
// player slots at zero and not out.
func NewMatchState() *MatchState {
	s := &MatchState{
		Status:   MatchStatusLobby,
		TimeLeft: MatchDurationSec,
		Scores:   make(map[PlayerID]int, MaxPlayerID),
		Outs:     make(map[PlayerID]bool, MaxPlayerID),
	}
	for id := MinPlayerID; id <= MaxPlayerID; id++ {
		s.Scores[id] = 0
		s.Outs[id] = false
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s *MatchState) Clone() *MatchState {
	c := &MatchState{
		Status:   s.Status,
		TimeLeft: s.TimeLeft,
		Revision: s.Revision,
		Scores:   make(map[PlayerID]int, len(s.Scores)),
		Outs:     make(map[PlayerID]bool, len(s.Outs)),
	}
	for id, v := range s.Scores {
		c.Scores[id] = v
	}
	for id, v := range s.Outs {
		c.Outs[id] = v
	}
	return c
}

// Normalize clamps TimeLeft into [0, MatchDurationSec] and restores the
// fixed player set: missing slots are zero-filled and ids outside 1..10
// are dropped. Inbound snapshots are otherwise trusted verbatim.
func (s *MatchState) Normalize() {
	if s.TimeLeft < 0 {
		s.TimeLeft = 0
	}
	if s.TimeLeft > MatchDurationSec {
		s.TimeLeft = MatchDurationSec
	}
	if s.Scores == nil {
		s.Scores = make(map[PlayerID]int, MaxPlayerID)
	}
	if s.Outs == nil {
		s.Outs = make(map[PlayerID]bool, MaxPlayerID)
	}
	for id := range s.Scores {
		if id < MinPlayerID || id > MaxPlayerID {
			delete(s.Scores, id)
		}
	}
	for id := range s.Outs {
		if id < MinPlayerID || id > MaxPlayerID {
			delete(s.Outs, id)
		}
	}
	for id := MinPlayerID; id <= MaxPlayerID; id++ {
		if _, ok := s.Scores[id]; !ok {
			s.Scores[id] = 0
		}
		if _, ok := s.Outs[id]; !ok {
			s.Outs[id] = false
		}
	}
}

// TeamScores sums the raw score values per side. The cycle value itself is
// the point value, not a count of cycle steps.
func (s *MatchState) TeamScores() map[Team]int {
	totals := map[Team]int{TeamRed: 0, TeamWhite: 0}
	for id, v := range s.Scores {
		totals[id.Team()] += v
	}
	return totals
}

// Session is the persistent record a match lives in.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	TeamRedID   uuid.UUID     `json:"team_red_id"`
	TeamWhiteID uuid.UUID     `json:"team_white_id"`
	Summary     SummaryStatus `json:"summary_status"`
	State       *MatchState   `json:"match_state"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// HistoryRecord is the append-only archive row written exactly once per
// session, at completion.
type HistoryRecord struct {
	ID          uuid.UUID   `json:"id"`
	SessionID   uuid.UUID   `json:"session_id"`
	TeamRedID   uuid.UUID   `json:"team_red_id"`
	TeamWhiteID uuid.UUID   `json:"team_white_id"`
	FinalState  *MatchState `json:"final_state"`
	ArchivedAt  time.Time   `json:"archived_at"`
}
