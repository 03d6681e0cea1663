package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/models"
)

// DrawSource names the pile a draw is taken from.
type DrawSource string

const (
	SourceDeck    DrawSource = "deck"
	SourceDiscard DrawSource = "discard"
)

// RequestDraw takes the top card of source into the player's pending slot and returns it.
// The card must only be shown to the drawing player.
func (g *Session) RequestDraw(playerID uuid.UUID, source DrawSource) (models.Card, error) {
	if g.getPlayerByID(playerID) == nil {
		return models.Card{}, ErrNotInGame
	}
	if g.CurrentPlayer().ID != playerID {
		return models.Card{}, ErrNotYourTurn
	}
	if _, pending := g.PendingDraws[playerID]; pending {
		return models.Card{}, ErrDrawAlreadyPending
	}
	if g.Reaction.Active {
		return models.Card{}, ErrReactionInProgress
	}

	var card models.Card
	switch source {
	case SourceDeck:
		c, ok := g.popDeck()
		if !ok {
			return models.Card{}, ErrDeckExhausted
		}
		card = c
	case SourceDiscard:
		if len(g.DiscardPile) == 0 {
			return models.Card{}, ErrDiscardEmpty
		}
		top := len(g.DiscardPile) - 1
		card = g.DiscardPile[top]
		g.DiscardPile = g.DiscardPile[:top]
	default:
		return models.Card{}, ErrInvalidSource
	}

	g.PendingDraws[playerID] = card
	return card, nil
}

// reshuffleDiscardIntoDeck recycles everything under the top discard into the deck.
// The top discard stays as the only card on the pile. Returns false when there was
// nothing to recycle.
func (g *Session) reshuffleDiscardIntoDeck() bool {
	if len(g.DiscardPile) <= 1 {
		return false
	}
	top := g.DiscardPile[len(g.DiscardPile)-1]
	rest := make([]models.Card, len(g.DiscardPile)-1)
	copy(rest, g.DiscardPile[:len(g.DiscardPile)-1])
	shuffle(g.rng, rest)

	g.Deck = append(g.Deck, rest...)
	g.DiscardPile = []models.Card{top}
	return true
}
