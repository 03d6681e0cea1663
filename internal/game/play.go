package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/models"
)

// PlayChoice commits a pending draw. With Keep the drawn card replaces Hand[SwapIndex];
// otherwise it is discarded directly.
type PlayChoice struct {
	Keep      bool
	SwapIndex *int
}

// PlayResult describes the discard produced by PlayDrawn.
type PlayResult struct {
	Discarded models.Card
	Value     int

	// Close is the scheduled end of the reaction window this play opened.
	Close Deferred
}

// PlayDrawn resolves the player's pending draw and opens a reaction window on the discard.
func (g *Session) PlayDrawn(playerID uuid.UUID, choice PlayChoice) (PlayResult, error) {
	drawn, ok := g.PendingDraws[playerID]
	if !ok {
		return PlayResult{}, ErrNoPendingDraw
	}
	player := g.getPlayerByID(playerID)
	if player == nil {
		return PlayResult{}, ErrNotInGame
	}

	discarded := drawn
	if choice.Keep {
		if choice.SwapIndex == nil || *choice.SwapIndex < 0 || *choice.SwapIndex >= len(player.Hand) {
			return PlayResult{}, ErrInvalidSwapIndex
		}
		idx := *choice.SwapIndex
		discarded = player.Hand[idx]
		player.Hand[idx] = drawn
	}
	g.pushDiscard(discarded)
	delete(g.PendingDraws, playerID)

	closeAction := g.openReaction(playerID, discarded.Rank)
	return PlayResult{Discarded: discarded, Value: discarded.Rank, Close: closeAction}, nil
}
