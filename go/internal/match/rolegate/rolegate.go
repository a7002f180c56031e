// Package rolegate answers whether the acting viewer may mutate a
// session's match state. The captain flag is resolved once, at session
// load, and cached for the lifetime of the viewing session.
package rolegate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MembershipLookup defines what the gate needs from the membership layer.
type MembershipLookup interface {
	IsCaptainOnAny(ctx context.Context, viewerID uuid.UUID, teamIDs ...uuid.UUID) (bool, error)
}

// Gate holds the resolved authorization for one viewer on one session.
type Gate struct {
	viewerID uuid.UUID
	captain  bool
}

// Load resolves the captain flag against both participating teams. A
// viewer is captain-authorized if either team carries the flag for them.
func Load(ctx context.Context, lookup MembershipLookup, viewerID, teamRedID, teamWhiteID uuid.UUID) (*Gate, error) {
	captain, err := lookup.IsCaptainOnAny(ctx, viewerID, teamRedID, teamWhiteID)
	if err != nil {
		return nil, fmt.Errorf("resolve captain flag: %w", err)
	}
	return &Gate{viewerID: viewerID, captain: captain}, nil
}

// Viewer returns the gated viewer's identity.
func (g *Gate) Viewer() uuid.UUID {
	return g.viewerID
}

// Captain reports whether the viewer may issue gated commands. The value
// is fixed at load time; membership changes mid-session are not observed.
func (g *Gate) Captain() bool {
	return g.captain
}
