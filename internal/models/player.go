package models

import "github.com/google/uuid"

type Player struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Hand   []Card    `json:"hand"`
	Points int       `json:"points"`

	// SeenCards holds the hand positions currently revealed to the owner.
	SeenCards []int `json:"seenCards"`

	// StoImmune is set once the player declares sto.
	StoImmune bool `json:"stoImmune"`

	// SeenEpoch increments every time SeenCards is (re)granted; stale expiries compare against it.
	SeenEpoch uint64 `json:"-"`
}
