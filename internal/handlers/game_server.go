// internal/handlers/game_server.go
package handlers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/game"
	"github.com/jason-s-yu/sto/internal/models"
	"github.com/jason-s-yu/sto/internal/timer"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 2 * time.Second

// ActionPublisher archives successful actions for the historian.
type ActionPublisher interface {
	PublishGameAction(ctx context.Context, record models.ActionRecord) error
}

// GameServer is a high-level struct that holds a reference to a GameStore and runs every
// session operation under that session's lock, then fans the results out to the members.
type GameServer struct {
	GameStore *game.GameStore
	Rules     game.HouseRules
	Scheduler timer.Scheduler
	Publisher ActionPublisher // nil disables the action log
	Sender    Sender
	Logger    *logrus.Logger

	// NewRand seeds each new session. Nil uses the clock.
	NewRand func() *rand.Rand

	mu      sync.Mutex
	pending map[uuid.UUID]map[game.Deferred]timer.Handle
	actions map[uuid.UUID]int
}

func NewGameServer(logger *logrus.Logger, rules game.HouseRules, sched timer.Scheduler, sender Sender) *GameServer {
	return &GameServer{
		GameStore: game.NewGameStore(),
		Rules:     rules,
		Scheduler: sched,
		Sender:    sender,
		Logger:    logger,
		pending:   make(map[uuid.UUID]map[game.Deferred]timer.Handle),
		actions:   make(map[uuid.UUID]int),
	}
}

func errRoomTooLarge(limit int) *game.Error {
	return &game.Error{Kind: game.KindValidation, Msg: fmt.Sprintf("maxPlayers can not exceed %d", limit)}
}

// OpenGame summarizes a room that still has seats.
type OpenGame struct {
	ID          uuid.UUID `json:"id"`
	PlayerCount int       `json:"playerCount"`
	Capacity    int       `json:"capacity"`
}

// CreateGame starts a session hosted by playerID. The host may override the server's house
// rules with a rules map; the room can not be larger than the server allows.
func (gs *GameServer) CreateGame(playerID uuid.UUID, nickname string, overrides map[string]interface{}) (*game.Session, error) {
	rules, err := game.ParseRules(overrides, gs.Rules)
	if err != nil {
		return nil, fmt.Errorf("house rules: %w", err)
	}
	if limit := gs.Rules.MaxPlayers; limit > 0 && rules.MaxPlayers > limit {
		return nil, fmt.Errorf("house rules: %w", errRoomTooLarge(limit))
	}

	var rng *rand.Rand
	if gs.NewRand != nil {
		rng = gs.NewRand()
	}
	g, seen := game.NewSession(playerID, nickname, rules, rng)

	g.Mu.Lock()
	defer g.Mu.Unlock()

	gs.GameStore.Create(g)
	gs.schedule(seen)
	gs.record(g, playerID, "create_game", map[string]interface{}{
		"nickname":         nickname,
		"maxPlayers":       g.Rules.MaxPlayers,
		"handSize":         g.Rules.HandSize,
		"penaltyDrawCount": g.Rules.PenaltyDrawCount,
	})
	gs.Sender.Send(playerID, stateEvent(EventGameCreated, g, playerID))

	gs.log(g.ID, playerID).Info("game created")
	return g, nil
}

// JoinGame seats playerID in an existing session.
func (gs *GameServer) JoinGame(gameID, playerID uuid.UUID, nickname string) error {
	g, err := gs.lockGame(gameID)
	if err != nil {
		return err
	}
	defer g.Mu.Unlock()

	seen, err := g.Join(playerID, nickname)
	if err != nil {
		return fmt.Errorf("join %s: %w", gameID, err)
	}
	gs.schedule(seen)
	gs.record(g, playerID, "join_game", map[string]interface{}{"nickname": nickname})

	gs.Sender.Send(playerID, stateEvent(EventGameJoined, g, playerID))
	gs.broadcastState(g)

	gs.log(g.ID, playerID).Infof("player joined (%d/%d)", len(g.Players), g.Rules.MaxPlayers)
	return nil
}

// RequestDraw hands the current player a card. Only the drawer learns its face.
func (gs *GameServer) RequestDraw(gameID, playerID uuid.UUID, source game.DrawSource) error {
	g, err := gs.lockGame(gameID)
	if err != nil {
		return err
	}
	defer g.Mu.Unlock()

	card, err := g.RequestDraw(playerID, source)
	if err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	gs.record(g, playerID, "request_draw", map[string]interface{}{"source": string(source)})

	gs.Sender.Send(playerID, Event{Type: EventDrawn, GameID: &g.ID, Card: &card})
	gs.broadcastState(g)
	return nil
}

// PlayDrawn resolves the pending draw and opens a reaction window on the discard.
func (gs *GameServer) PlayDrawn(gameID, playerID uuid.UUID, choice game.PlayChoice) error {
	g, err := gs.lockGame(gameID)
	if err != nil {
		return err
	}
	defer g.Mu.Unlock()

	res, err := g.PlayDrawn(playerID, choice)
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}
	gs.schedule(res.Close)

	payload := map[string]interface{}{
		"keep":      choice.Keep,
		"discarded": res.Discarded.String(),
	}
	if choice.SwapIndex != nil {
		payload["swapIndex"] = *choice.SwapIndex
	}
	gs.record(g, playerID, "play_drawn", payload)

	gs.broadcastState(g)
	gs.broadcast(g, Event{Type: EventReactionStarted, GameID: &g.ID, Value: res.Value})
	return nil
}

// RespondReaction resolves one reaction attempt.
func (gs *GameServer) RespondReaction(gameID, playerID uuid.UUID, handIndex int, targetID *uuid.UUID) error {
	g, err := gs.lockGame(gameID)
	if err != nil {
		return err
	}
	defer g.Mu.Unlock()

	out, err := g.RespondToReaction(playerID, handIndex, targetID)
	if err != nil {
		return fmt.Errorf("react: %w", err)
	}

	payload := map[string]interface{}{
		"handIndex": handIndex,
		"correct":   out.Correct,
		"card":      out.Card.String(),
	}
	if targetID != nil {
		payload["targetId"] = targetID.String()
	}
	if out.PenalizedID != uuid.Nil {
		payload["penalizedId"] = out.PenalizedID.String()
		payload["penaltyCards"] = out.PenaltyCards
	}
	if out.TargetSpared {
		payload["targetSpared"] = true
	}
	gs.record(g, playerID, "respond_reaction", payload)

	correct := out.Correct
	result := Event{
		Type:         EventReactionResult,
		GameID:       &g.ID,
		Correct:      &correct,
		PenaltyCards: out.PenaltyCards,
		TargetSpared: out.TargetSpared,
	}
	if out.PenalizedID != uuid.Nil {
		penalized := out.PenalizedID
		result.PenalizedID = &penalized
	}
	gs.Sender.Send(playerID, result)
	gs.broadcastState(g)

	gs.log(g.ID, playerID).Debugf("reaction resolved, correct=%v", out.Correct)
	return nil
}

// DeclareSto marks playerID as the sto declarer.
func (gs *GameServer) DeclareSto(gameID, playerID uuid.UUID) error {
	g, err := gs.lockGame(gameID)
	if err != nil {
		return err
	}
	defer g.Mu.Unlock()

	if err := g.DeclareSto(playerID); err != nil {
		return fmt.Errorf("sto: %w", err)
	}
	gs.record(g, playerID, "declare_sto", nil)
	gs.broadcastState(g)

	gs.log(g.ID, playerID).Info("sto declared")
	return nil
}

// Disconnect evicts every session of playerID that no longer has a connected member.
// The player stays seated in sessions where someone is still connected.
func (gs *GameServer) Disconnect(playerID uuid.UUID) {
	for _, g := range gs.GameStore.List() {
		g.Mu.Lock()
		if g.Player(playerID) != nil && !gs.anyoneConnected(g) {
			gs.evict(g)
		}
		g.Mu.Unlock()
	}
}

// OpenGames lists sessions that can still be joined, oldest first.
func (gs *GameServer) OpenGames() []OpenGame {
	open := []OpenGame{}
	for _, g := range gs.GameStore.List() {
		g.Mu.Lock()
		if !g.IsFull() {
			open = append(open, OpenGame{ID: g.ID, PlayerCount: len(g.Players), Capacity: g.Rules.MaxPlayers})
		}
		g.Mu.Unlock()
	}
	return open
}

// PendingTimers reports how many deferred actions are outstanding for a session.
func (gs *GameServer) PendingTimers(gameID uuid.UUID) int {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return len(gs.pending[gameID])
}

// anyoneConnected reports whether any member still has a connection. Assumes the session
// lock is held.
func (gs *GameServer) anyoneConnected(g *game.Session) bool {
	for _, id := range g.PlayerIDs() {
		if gs.Sender.Connected(id) {
			return true
		}
	}
	return false
}

// evict removes g from the store and cancels its timers. Assumes the session lock is held, so
// no request can act on g between the membership check and the removal.
func (gs *GameServer) evict(g *game.Session) {
	if !gs.GameStore.Delete(g.ID) {
		return
	}
	gs.mu.Lock()
	for _, h := range gs.pending[g.ID] {
		h.Cancel()
	}
	delete(gs.pending, g.ID)
	delete(gs.actions, g.ID)
	gs.mu.Unlock()

	gs.Logger.WithField("game_id", g.ID).Info("game evicted, no members connected")
}

// lockGame fetches the session and returns it locked.
func (gs *GameServer) lockGame(gameID uuid.UUID) (*game.Session, error) {
	g, ok := gs.GameStore.Get(gameID)
	if !ok {
		return nil, game.ErrGameNotFound
	}
	return gs.lockSession(g)
}

// lockSession locks g and confirms it was not evicted while the caller waited for the lock.
func (gs *GameServer) lockSession(g *game.Session) (*game.Session, error) {
	g.Mu.Lock()
	if cur, ok := gs.GameStore.Get(g.ID); !ok || cur != g {
		g.Mu.Unlock()
		return nil, game.ErrGameNotFound
	}
	return g, nil
}

// schedule arms d on the scheduler. Assumes the session lock is held.
func (gs *GameServer) schedule(d game.Deferred) {
	if d.IsZero() {
		return
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()

	h := gs.Scheduler.Schedule(d.Delay, func() { gs.fire(d) })
	byGame, ok := gs.pending[d.SessionID]
	if !ok {
		byGame = make(map[game.Deferred]timer.Handle)
		gs.pending[d.SessionID] = byGame
	}
	byGame[d] = h
}

// fire applies a deferred action if its session still exists and the action is not stale.
func (gs *GameServer) fire(d game.Deferred) {
	gs.mu.Lock()
	delete(gs.pending[d.SessionID], d)
	gs.mu.Unlock()

	g, err := gs.lockGame(d.SessionID)
	if err != nil {
		return
	}
	defer g.Mu.Unlock()

	if !g.ApplyDeferred(d) {
		return
	}

	switch d.Kind {
	case game.DeferredEndReaction:
		gs.record(g, uuid.Nil, "end_reaction", nil)
		gs.broadcast(g, Event{Type: EventReactionEnded, GameID: &g.ID})
	case game.DeferredExpireSeen:
		gs.record(g, d.PlayerID, "expire_seen", nil)
	}
	gs.broadcastState(g)
}

// broadcastState sends each member their own projection. Assumes the session lock is held.
func (gs *GameServer) broadcastState(g *game.Session) {
	for _, id := range g.PlayerIDs() {
		gs.Sender.Send(id, stateEvent(EventUpdate, g, id))
	}
}

// broadcast sends ev to every member. Assumes the session lock is held.
func (gs *GameServer) broadcast(g *game.Session, ev Event) {
	for _, id := range g.PlayerIDs() {
		gs.Sender.Send(id, ev)
	}
}

// record publishes an action record asynchronously. Records may reach the queue out of
// order; ActionIndex orders them. Assumes the session lock is held.
func (gs *GameServer) record(g *game.Session, actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	if gs.Publisher == nil {
		return
	}
	gs.mu.Lock()
	gs.actions[g.ID]++
	idx := gs.actions[g.ID]
	gs.mu.Unlock()

	if payload == nil {
		payload = map[string]interface{}{}
	}
	rec := models.ActionRecord{
		GameID:        g.ID,
		ActionIndex:   idx,
		ActorID:       actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := gs.Publisher.PublishGameAction(ctx, rec); err != nil {
			gs.log(rec.GameID, rec.ActorID).WithError(err).Warn("failed to publish action")
		}
	}()
}

func (gs *GameServer) log(gameID, playerID uuid.UUID) *logrus.Entry {
	return gs.Logger.WithFields(logrus.Fields{
		"game_id":   gameID,
		"player_id": playerID,
	})
}
