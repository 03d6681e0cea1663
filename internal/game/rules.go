// internal/game/rules.go
package game

import (
	"fmt"
	"time"
)

// HouseRules holds the per-session tunables. Non-positive sizes and windows fall back to
// DefaultHouseRules; a zero PenaltyDrawCount is honored and disables penalties.
type HouseRules struct {
	MaxPlayers       int           `json:"maxPlayers"`       // room-size cap
	HandSize         int           `json:"handSize"`         // cards dealt on create/join
	PenaltyDrawCount int           `json:"penaltyDrawCount"` // cards drawn on a lost reaction
	ReactionWindow   time.Duration `json:"reactionWindow"`   // delay before the reaction window closes
	SeenCardsWindow  time.Duration `json:"seenCardsWindow"`  // how long dealt cards stay revealed to their owner
}

// DefaultHouseRules returns the standard table: 6 seats, 4 cards, 2 penalty cards, 5s reactions, 10s peek.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		MaxPlayers:       6,
		HandSize:         4,
		PenaltyDrawCount: 2,
		ReactionWindow:   5 * time.Second,
		SeenCardsWindow:  10 * time.Second,
	}
}

func (rules HouseRules) withDefaults() HouseRules {
	def := DefaultHouseRules()
	if rules.MaxPlayers <= 0 {
		rules.MaxPlayers = def.MaxPlayers
	}
	if rules.HandSize <= 0 {
		rules.HandSize = def.HandSize
	}
	if rules.PenaltyDrawCount < 0 {
		rules.PenaltyDrawCount = def.PenaltyDrawCount
	}
	if rules.ReactionWindow <= 0 {
		rules.ReactionWindow = def.ReactionWindow
	}
	if rules.SeenCardsWindow <= 0 {
		rules.SeenCardsWindow = def.SeenCardsWindow
	}
	return rules
}

// Update will update the house rules with the new rules provided.
// If a rule is not set or defined, it will be ignored, and the old value will persist.
// Durations are given in milliseconds.
func (rules *HouseRules) Update(newRules map[string]interface{}) error {
	assignInt := func(field *int, key string, minVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var n int
		switch v := val.(type) {
		case float64: // JSON numbers
			n = int(v)
		case int:
			n = v
		default:
			return invalidRule("invalid type for %s", key)
		}
		if n < minVal {
			return invalidRule("%s must be at least %d", key, minVal)
		}
		*field = n
		return nil
	}

	maxPlayers, handSize, penalty := rules.MaxPlayers, rules.HandSize, rules.PenaltyDrawCount
	reactionMs, seenMs := int(rules.ReactionWindow/time.Millisecond), int(rules.SeenCardsWindow/time.Millisecond)

	if err := assignInt(&maxPlayers, "maxPlayers", 2); err != nil {
		return err
	}
	if err := assignInt(&handSize, "handSize", 1); err != nil {
		return err
	}
	if err := assignInt(&penalty, "penaltyDrawCount", 0); err != nil {
		return err
	}
	if err := assignInt(&reactionMs, "reactionWindowMs", 1); err != nil {
		return err
	}
	if err := assignInt(&seenMs, "seenCardsWindowMs", 1); err != nil {
		return err
	}
	if maxPlayers*handSize > DeckSize {
		return invalidRule("%d players with %d cards each exceed the %d-card deck", maxPlayers, handSize, DeckSize)
	}

	rules.MaxPlayers, rules.HandSize, rules.PenaltyDrawCount = maxPlayers, handSize, penalty
	rules.ReactionWindow = time.Duration(reactionMs) * time.Millisecond
	rules.SeenCardsWindow = time.Duration(seenMs) * time.Millisecond
	return nil
}

func invalidRule(format string, args ...interface{}) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...))
}

// ParseRules converts a map of rules to a HouseRules struct. It will ensure the types are valid.
func ParseRules(rules map[string]interface{}, current HouseRules) (HouseRules, error) {
	houseRules := current
	err := houseRules.Update(rules)
	return houseRules, err
}
