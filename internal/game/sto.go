package game

import "github.com/google/uuid"

// DeclareSto records playerID as the latest declarer and makes them immune to targeted
// reaction penalties.
func (g *Session) DeclareSto(playerID uuid.UUID) error {
	p := g.getPlayerByID(playerID)
	if p == nil {
		return ErrNotInGame
	}
	g.StoDeclaredBy = playerID
	p.StoImmune = true
	return nil
}
