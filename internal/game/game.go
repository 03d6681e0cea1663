// internal/game/game.go
package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/models"
)

// ReactionResponse records one responder's attempt in the current reaction window.
type ReactionResponse struct {
	Correct  bool       `json:"correct"`
	TargetID *uuid.UUID `json:"targetId,omitempty"`
}

// ReactionWindow is the per-discard challenge. Inactive windows carry zero values.
type ReactionWindow struct {
	Active      bool
	Value       int
	InitiatorID uuid.UUID
	Responses   map[uuid.UUID]ReactionResponse

	// Generation identifies the window that a scheduled close belongs to.
	Generation uint64
}

// Session holds the entire state for a single game instance in memory.
//
// Methods do not lock Mu. Callers serialize every operation on a session by holding Mu
// for the duration of the request, including projections.
type Session struct {
	ID    uuid.UUID
	Rules HouseRules

	// Deck and DiscardPile are stacks: the last element is the top card.
	Deck        []models.Card
	DiscardPile []models.Card

	// Players in join order, which is also turn order.
	Players            []*models.Player
	CurrentPlayerIndex int

	StoDeclaredBy uuid.UUID // uuid.Nil until someone declares sto
	Round         int

	PendingDraws map[uuid.UUID]models.Card
	Reaction     ReactionWindow

	CreatedAt time.Time
	Mu        sync.Mutex

	rng         *rand.Rand
	reactionGen uint64
}

// NewSession builds a session hosted by hostID, deals the host a hand and reveals their first
// cards. The returned Deferred expires that reveal. A nil rng is seeded from the clock.
func NewSession(hostID uuid.UUID, hostName string, rules HouseRules, rng *rand.Rand) (*Session, Deferred) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	id, _ := uuid.NewRandom()
	g := &Session{
		ID:           id,
		Rules:        rules.withDefaults(),
		DiscardPile:  []models.Card{},
		Round:        1,
		PendingDraws: make(map[uuid.UUID]models.Card),
		Reaction:     ReactionWindow{Responses: make(map[uuid.UUID]ReactionResponse)},
		CreatedAt:    time.Now(),
		rng:          rng,
	}
	g.Deck = NewDeck(rng)

	host := &models.Player{ID: hostID, Name: hostName}
	g.deal(host)
	g.Players = append(g.Players, host)
	return g, g.grantSeenCards(host)
}

// Join seats a new player at the end of the turn order and deals them a hand.
func (g *Session) Join(playerID uuid.UUID, name string) (Deferred, error) {
	if g.getPlayerByID(playerID) != nil {
		return Deferred{}, ErrAlreadyInGame
	}
	if len(g.Players) >= g.Rules.MaxPlayers {
		return Deferred{}, ErrRoomFull
	}
	p := &models.Player{ID: playerID, Name: name}
	g.deal(p)
	g.Players = append(g.Players, p)
	return g.grantSeenCards(p), nil
}

// IsFull reports whether the room has reached its seat cap.
func (g *Session) IsFull() bool {
	return len(g.Players) >= g.Rules.MaxPlayers
}

// CurrentPlayer returns the player whose turn it is.
func (g *Session) CurrentPlayer() *models.Player {
	return g.Players[g.CurrentPlayerIndex]
}

// Player returns the participant with the given id, or nil.
func (g *Session) Player(playerID uuid.UUID) *models.Player {
	return g.getPlayerByID(playerID)
}

// PlayerIDs returns every participant id in turn order.
func (g *Session) PlayerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(g.Players))
	for i, p := range g.Players {
		ids[i] = p.ID
	}
	return ids
}

// TotalCards counts every card the session owns across all containers. It is always DeckSize.
func (g *Session) TotalCards() int {
	n := len(g.Deck) + len(g.DiscardPile) + len(g.PendingDraws)
	for _, p := range g.Players {
		n += len(p.Hand)
	}
	return n
}

// deal gives p up to HandSize cards from the deck, reshuffling if it runs dry.
func (g *Session) deal(p *models.Player) {
	p.Hand = make([]models.Card, 0, g.Rules.HandSize)
	for i := 0; i < g.Rules.HandSize; i++ {
		c, ok := g.popDeck()
		if !ok {
			break
		}
		p.Hand = append(p.Hand, c)
	}
}

// grantSeenCards reveals the first two hand positions to their owner and returns the
// deferred expiry for this visibility epoch.
func (g *Session) grantSeenCards(p *models.Player) Deferred {
	p.SeenEpoch++
	p.SeenCards = p.SeenCards[:0]
	for i := 0; i < 2 && i < len(p.Hand); i++ {
		p.SeenCards = append(p.SeenCards, i)
	}
	return Deferred{
		Kind:       DeferredExpireSeen,
		SessionID:  g.ID,
		PlayerID:   p.ID,
		Generation: p.SeenEpoch,
		Delay:      g.Rules.SeenCardsWindow,
	}
}

// ExpireSeenCards hides the owner's revealed positions if epoch is still the current one.
func (g *Session) ExpireSeenCards(playerID uuid.UUID, epoch uint64) bool {
	p := g.getPlayerByID(playerID)
	if p == nil || p.SeenEpoch != epoch || len(p.SeenCards) == 0 {
		return false
	}
	p.SeenCards = []int{}
	return true
}

// removeHandCard takes the card at idx out of p's hand and keeps SeenCards pointing at the
// same cards.
func removeHandCard(p *models.Player, idx int) models.Card {
	c := p.Hand[idx]
	p.Hand = append(p.Hand[:idx], p.Hand[idx+1:]...)

	seen := p.SeenCards[:0]
	for _, s := range p.SeenCards {
		switch {
		case s < idx:
			seen = append(seen, s)
		case s > idx:
			seen = append(seen, s-1)
		}
	}
	p.SeenCards = seen
	return c
}

// popDeck takes the top of the deck, reshuffling the discard pile first when the deck is empty.
func (g *Session) popDeck() (models.Card, bool) {
	if len(g.Deck) == 0 {
		g.reshuffleDiscardIntoDeck()
	}
	if len(g.Deck) == 0 {
		return models.Card{}, false
	}
	top := len(g.Deck) - 1
	c := g.Deck[top]
	g.Deck = g.Deck[:top]
	return c, true
}

func (g *Session) pushDiscard(c models.Card) {
	g.DiscardPile = append(g.DiscardPile, c)
}

// getPlayerByID is a helper to find a player struct by their ID.
func (g *Session) getPlayerByID(playerID uuid.UUID) *models.Player {
	for _, p := range g.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}
