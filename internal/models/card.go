package models

import "fmt"

// Suit is one of the four suits of the 40-card deck.
type Suit string

const (
	SuitCoppe   Suit = "coppe"
	SuitDenari  Suit = "denari"
	SuitBastoni Suit = "bastoni"
	SuitSpade   Suit = "spade"
)

// Suits lists every suit in deck-building order.
var Suits = [...]Suit{SuitCoppe, SuitDenari, SuitBastoni, SuitSpade}

const (
	MinRank = 1
	MaxRank = 10 // 8, 9 and 10 are the face ranks
)

// Card is an immutable value; cards move between containers by value.
type Card struct {
	Rank int  `json:"rank"`
	Suit Suit `json:"suit"`
}

func (c Card) String() string {
	return fmt.Sprintf("%d/%s", c.Rank, c.Suit)
}
