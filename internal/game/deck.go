package game

import (
	"math/rand"

	"github.com/jason-s-yu/sto/internal/models"
)

// DeckSize is the number of cards in play for the whole session.
const DeckSize = len(models.Suits) * (models.MaxRank - models.MinRank + 1)

// NewDeck builds the 40-card deck (ranks 1..10 in each suit) and returns it shuffled.
// The last element is the top of the deck.
func NewDeck(r *rand.Rand) []models.Card {
	deck := make([]models.Card, 0, DeckSize)
	for _, suit := range models.Suits {
		for rank := models.MinRank; rank <= models.MaxRank; rank++ {
			deck = append(deck, models.Card{Rank: rank, Suit: suit})
		}
	}
	shuffle(r, deck)
	return deck
}

// shuffle is an in-place Fisher-Yates permutation.
func shuffle(r *rand.Rand, cards []models.Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}
