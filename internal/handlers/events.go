// internal/handlers/events.go
package handlers

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/game"
	"github.com/jason-s-yu/sto/internal/models"
)

// Outbound event types.
const (
	EventConnected       = "connected"
	EventGameCreated     = "game_created"
	EventGameJoined      = "game_joined"
	EventUpdate          = "update"
	EventDrawn           = "drawn"
	EventReactionStarted = "reaction_started"
	EventReactionResult  = "reaction_result"
	EventReactionEnded   = "reaction_ended"
	EventPong            = "pong"
	EventError           = "error"
)

// Event is a server-to-client message. Only the fields relevant to Type are set.
type Event struct {
	Type     string             `json:"type"`
	PlayerID *uuid.UUID         `json:"playerId,omitempty"`
	GameID   *uuid.UUID         `json:"gameId,omitempty"`
	State    *game.ObfGameState `json:"state,omitempty"`
	Card     *models.Card       `json:"card,omitempty"`
	Value    int                `json:"value,omitempty"`
	Correct  *bool              `json:"correct,omitempty"`

	// reaction_result
	PenalizedID  *uuid.UUID `json:"penalizedId,omitempty"`
	PenaltyCards int        `json:"penaltyCards,omitempty"`
	TargetSpared bool       `json:"targetSpared,omitempty"`

	Kind    game.ErrorKind `json:"kind,omitempty"`
	Message string         `json:"message,omitempty"`
}

func stateEvent(typ string, g *game.Session, viewerID uuid.UUID) Event {
	state := g.PublicState(viewerID)
	id := g.ID
	return Event{Type: typ, GameID: &id, State: &state}
}

// errorEvent reports err to the client without the server-side wrapping. Errors that are not
// game errors are not described.
func errorEvent(err error) Event {
	var ge *game.Error
	if errors.As(err, &ge) {
		return Event{Type: EventError, Kind: ge.Kind, Message: ge.Msg}
	}
	return Event{Type: EventError, Kind: game.KindInternal, Message: "internal server error"}
}
