package game

import (
	"time"

	"github.com/google/uuid"
)

// DeferredKind identifies a time-driven transition.
type DeferredKind string

const (
	DeferredEndReaction DeferredKind = "end_reaction"
	DeferredExpireSeen  DeferredKind = "expire_seen"
)

// Deferred is a transition the session wants run after Delay. It carries the generation of
// the window or visibility epoch it targets so that a late firing is a no-op.
type Deferred struct {
	Kind       DeferredKind
	SessionID  uuid.UUID
	PlayerID   uuid.UUID
	Generation uint64
	Delay      time.Duration
}

// IsZero reports whether d schedules nothing.
func (d Deferred) IsZero() bool {
	return d.Kind == ""
}

// ApplyDeferred runs d against the session and reports whether anything changed.
func (g *Session) ApplyDeferred(d Deferred) bool {
	if d.SessionID != g.ID {
		return false
	}
	switch d.Kind {
	case DeferredEndReaction:
		return g.EndReactionIfCurrent(d.Generation)
	case DeferredExpireSeen:
		return g.ExpireSeenCards(d.PlayerID, d.Generation)
	default:
		return false
	}
}
