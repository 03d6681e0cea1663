package game

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// GameStore is an explicit registry of live sessions. Each store is independent.
type GameStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]*Session
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[uuid.UUID]*Session),
	}
}

func (s *GameStore) Create(g *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
}

func (s *GameStore) Get(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.games[id]
	return g, exists
}

// Delete removes the session and reports whether it was present.
func (s *GameStore) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.games[id]
	delete(s.games, id)
	return exists
}

// List returns every live session, oldest first.
func (s *GameStore) List() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *GameStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}
