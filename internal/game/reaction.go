package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/models"
)

// ReactionOutcome reports how a response was resolved.
type ReactionOutcome struct {
	Correct bool
	Card    models.Card // the responder's chosen card

	// PenalizedID is the player who drew penalty cards, uuid.Nil if nobody did.
	PenalizedID  uuid.UUID
	PenaltyCards int

	// TargetSpared is set when the named target had declared sto and so drew nothing.
	TargetSpared bool
}

// openReaction starts a new window on value. Only PlayDrawn calls it.
func (g *Session) openReaction(initiatorID uuid.UUID, value int) Deferred {
	g.reactionGen++
	g.Reaction = ReactionWindow{
		Active:      true,
		Value:       value,
		InitiatorID: initiatorID,
		Responses:   make(map[uuid.UUID]ReactionResponse),
		Generation:  g.reactionGen,
	}
	return Deferred{
		Kind:       DeferredEndReaction,
		SessionID:  g.ID,
		PlayerID:   initiatorID,
		Generation: g.reactionGen,
		Delay:      g.Rules.ReactionWindow,
	}
}

// RespondToReaction plays the responder's card at handIndex against the open window.
// A matching rank discards the card and, when targetID names a player who has not declared
// sto, hands that player the penalty. A mismatch penalizes the responder.
func (g *Session) RespondToReaction(responderID uuid.UUID, handIndex int, targetID *uuid.UUID) (ReactionOutcome, error) {
	if !g.Reaction.Active {
		return ReactionOutcome{}, ErrNoActiveReaction
	}
	responder := g.getPlayerByID(responderID)
	if responder == nil {
		return ReactionOutcome{}, ErrNotInGame
	}
	if responderID == g.Reaction.InitiatorID {
		return ReactionOutcome{}, ErrInitiatorCannotRespond
	}
	if _, done := g.Reaction.Responses[responderID]; done {
		return ReactionOutcome{}, ErrAlreadyResponded
	}
	if handIndex < 0 || handIndex >= len(responder.Hand) {
		return ReactionOutcome{}, ErrInvalidHandIndex
	}

	card := responder.Hand[handIndex]
	if card.Rank != g.Reaction.Value {
		g.Reaction.Responses[responderID] = ReactionResponse{Correct: false}
		n := g.drawPenalty(responder, g.Rules.PenaltyDrawCount)
		return ReactionOutcome{Card: card, PenalizedID: responderID, PenaltyCards: n}, nil
	}

	removeHandCard(responder, handIndex)
	g.pushDiscard(card)
	g.Reaction.Responses[responderID] = ReactionResponse{Correct: true, TargetID: targetID}

	outcome := ReactionOutcome{Correct: true, Card: card}
	if targetID != nil {
		if target := g.getPlayerByID(*targetID); target != nil {
			if target.StoImmune {
				outcome.TargetSpared = true
			} else {
				outcome.PenalizedID = target.ID
				outcome.PenaltyCards = g.drawPenalty(target, g.Rules.PenaltyDrawCount)
			}
		}
	}
	return outcome, nil
}

// drawPenalty moves up to n cards from the deck into p's hand. Running out of cards ends the
// penalty early; the number actually drawn is returned.
func (g *Session) drawPenalty(p *models.Player, n int) int {
	drawn := 0
	for ; drawn < n; drawn++ {
		c, ok := g.popDeck()
		if !ok {
			break
		}
		p.Hand = append(p.Hand, c)
	}
	return drawn
}

// EndReaction closes the open window and passes the turn to the next seat. It is the only
// operation that moves CurrentPlayerIndex.
func (g *Session) EndReaction() error {
	if !g.Reaction.Active {
		return ErrNoActiveReaction
	}
	g.Reaction = ReactionWindow{Responses: make(map[uuid.UUID]ReactionResponse)}
	g.CurrentPlayerIndex = (g.CurrentPlayerIndex + 1) % len(g.Players)
	if g.CurrentPlayerIndex == 0 {
		g.Round++
	}
	return nil
}

// EndReactionIfCurrent closes the window only if it is still the one identified by generation.
func (g *Session) EndReactionIfCurrent(generation uint64) bool {
	if !g.Reaction.Active || g.Reaction.Generation != generation {
		return false
	}
	return g.EndReaction() == nil
}
