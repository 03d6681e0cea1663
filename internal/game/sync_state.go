// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/models"
)

// ObfCard is a hand slot as seen by one viewer. Slots of other players are Hidden and carry
// no rank or suit.
type ObfCard struct {
	Hidden bool        `json:"hidden,omitempty"`
	Rank   int         `json:"rank,omitempty"`
	Suit   models.Suit `json:"suit,omitempty"`
}

// ObfPlayerState represents one player from the perspective of a requesting user.
type ObfPlayerState struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Hand          []ObfCard `json:"hand"`
	Points        int       `json:"points"`
	SeenCards     []int     `json:"seenCards"`
	StoImmune     bool      `json:"stoImmune"`
	IsCurrentTurn bool      `json:"isCurrentTurn"`

	// Self-only fields.
	HandValue   *int         `json:"handValue,omitempty"`
	PendingDraw *models.Card `json:"pendingDraw,omitempty"`
}

// ObfReaction exposes the open window without its responses.
type ObfReaction struct {
	Active      bool       `json:"active"`
	Value       int        `json:"value,omitempty"`
	InitiatorID *uuid.UUID `json:"initiatorId,omitempty"`
}

// ObfGameState is returned by PublicState.
type ObfGameState struct {
	GameID             uuid.UUID        `json:"gameId"`
	Players            []ObfPlayerState `json:"players"`
	CurrentPlayerIndex int              `json:"currentPlayerIndex"`
	CurrentPlayerID    uuid.UUID        `json:"currentPlayerId"`
	DeckCount          int              `json:"deckCount"`
	DiscardTop         *models.Card     `json:"discardTop"`
	Reaction           ObfReaction      `json:"reaction"`
	StoDeclaredBy      *uuid.UUID       `json:"stoDeclaredBy,omitempty"`
	Round              int              `json:"round"`
}

// PublicState renders the session for viewerID. It never mutates the session and never
// includes the rank or suit of a card held by anyone but the viewer.
func (g *Session) PublicState(viewerID uuid.UUID) ObfGameState {
	obf := ObfGameState{
		GameID:             g.ID,
		Players:            make([]ObfPlayerState, 0, len(g.Players)),
		CurrentPlayerIndex: g.CurrentPlayerIndex,
		CurrentPlayerID:    g.CurrentPlayer().ID,
		DeckCount:          len(g.Deck),
		Round:              g.Round,
	}

	if n := len(g.DiscardPile); n > 0 {
		top := g.DiscardPile[n-1]
		obf.DiscardTop = &top
	}

	if g.Reaction.Active {
		initiator := g.Reaction.InitiatorID
		obf.Reaction = ObfReaction{Active: true, Value: g.Reaction.Value, InitiatorID: &initiator}
	}

	if g.StoDeclaredBy != uuid.Nil {
		declarer := g.StoDeclaredBy
		obf.StoDeclaredBy = &declarer
	}

	for i, pl := range g.Players {
		ps := ObfPlayerState{
			ID:            pl.ID,
			Name:          pl.Name,
			Hand:          make([]ObfCard, len(pl.Hand)),
			Points:        pl.Points,
			SeenCards:     []int{},
			StoImmune:     pl.StoImmune,
			IsCurrentTurn: i == g.CurrentPlayerIndex,
		}
		if pl.ID == viewerID {
			for j, c := range pl.Hand {
				ps.Hand[j] = ObfCard{Rank: c.Rank, Suit: c.Suit}
			}
			ps.SeenCards = append(ps.SeenCards, pl.SeenCards...)
			value := CalculatePoints(pl)
			ps.HandValue = &value
			if drawn, ok := g.PendingDraws[pl.ID]; ok {
				ps.PendingDraw = &drawn
			}
		} else {
			for j := range ps.Hand {
				ps.Hand[j] = ObfCard{Hidden: true}
			}
		}
		obf.Players = append(obf.Players, ps)
	}

	return obf
}
