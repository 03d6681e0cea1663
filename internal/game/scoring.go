package game

import "github.com/jason-s-yu/sto/internal/models"

// CalculatePoints sums the raw rank of every card in the hand; face ranks count 8, 9 and 10.
func CalculatePoints(p *models.Player) int {
	sum := 0
	for _, c := range p.Hand {
		sum += c.Rank
	}
	return sum
}
