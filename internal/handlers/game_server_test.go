package handlers

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/game"
	"github.com/jason-s-yu/sto/internal/models"
	"github.com/jason-s-yu/sto/internal/timer"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender keeps every event per player. Everyone is connected unless dropped.
type recordingSender struct {
	mu      sync.Mutex
	events  map[uuid.UUID][]Event
	dropped map[uuid.UUID]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		events:  make(map[uuid.UUID][]Event),
		dropped: make(map[uuid.UUID]bool),
	}
}

func (s *recordingSender) Send(playerID uuid.UUID, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[playerID] = append(s.events[playerID], ev)
}

func (s *recordingSender) Connected(playerID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.dropped[playerID]
}

func (s *recordingSender) drop(playerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped[playerID] = true
}

func (s *recordingSender) take(playerID uuid.UUID) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.events[playerID]
	s.events[playerID] = nil
	return evs
}

func types(evs []Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

type chanPublisher struct {
	records chan models.ActionRecord
}

func (p *chanPublisher) PublishGameAction(_ context.Context, rec models.ActionRecord) error {
	p.records <- rec
	return nil
}

func setupServer(t *testing.T) (*GameServer, *recordingSender, *timer.Manual) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	sender := newRecordingSender()
	clock := timer.NewManual()
	gs := NewGameServer(logger, game.DefaultHouseRules(), clock, sender)
	gs.NewRand = func() *rand.Rand { return rand.New(rand.NewSource(7)) }
	return gs, sender, clock
}

// setupTable creates a game with n seated players and clears their inboxes.
func setupTable(t *testing.T, gs *GameServer, sender *recordingSender, n int) (*game.Session, []uuid.UUID) {
	t.Helper()
	host := uuid.New()
	g, err := gs.CreateGame(host, "host", nil)
	require.NoError(t, err)
	ids := []uuid.UUID{host}
	for i := 1; i < n; i++ {
		id := uuid.New()
		require.NoError(t, gs.JoinGame(g.ID, id, "guest"))
		ids = append(ids, id)
	}
	for _, id := range ids {
		sender.take(id)
	}
	return g, ids
}

func TestCreateGame(t *testing.T) {
	gs, sender, clock := setupServer(t)
	host := uuid.New()

	g, err := gs.CreateGame(host, "alice", nil)
	require.NoError(t, err)

	evs := sender.take(host)
	require.Len(t, evs, 1)
	assert.Equal(t, EventGameCreated, evs[0].Type)
	require.NotNil(t, evs[0].GameID)
	assert.Equal(t, g.ID, *evs[0].GameID)
	require.NotNil(t, evs[0].State)
	assert.Len(t, evs[0].State.Players, 1)
	assert.Equal(t, []int{0, 1}, evs[0].State.Players[0].SeenCards)

	_, ok := gs.GameStore.Get(g.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, gs.PendingTimers(g.ID), "seen-card expiry should be armed")
	assert.Equal(t, 1, clock.Pending())
}

func TestJoinGameBroadcastsAndCaps(t *testing.T) {
	gs, sender, _ := setupServer(t)
	gs.Rules.MaxPlayers = 2
	g, ids := setupTable(t, gs, sender, 1)

	guest := uuid.New()
	require.NoError(t, gs.JoinGame(g.ID, guest, "bob"))

	assert.Equal(t, []string{EventGameJoined, EventUpdate}, types(sender.take(guest)))
	hostEvs := sender.take(ids[0])
	require.Len(t, hostEvs, 1)
	assert.Equal(t, EventUpdate, hostEvs[0].Type)
	assert.Len(t, hostEvs[0].State.Players, 2)

	err := gs.JoinGame(g.ID, uuid.New(), "carol")
	assert.True(t, errors.Is(err, game.ErrRoomFull))
	assert.Equal(t, game.KindValidation, game.KindOf(err))

	err = gs.JoinGame(uuid.New(), uuid.New(), "dave")
	assert.True(t, errors.Is(err, game.ErrGameNotFound))
	assert.Equal(t, game.KindNotFound, game.KindOf(err))
}

func TestDrawIsPrivateToDrawer(t *testing.T) {
	gs, sender, _ := setupServer(t)
	g, ids := setupTable(t, gs, sender, 2)

	require.NoError(t, gs.RequestDraw(g.ID, ids[0], game.SourceDeck))

	mine := sender.take(ids[0])
	require.Equal(t, []string{EventDrawn, EventUpdate}, types(mine))
	require.NotNil(t, mine[0].Card)
	require.NotNil(t, mine[1].State.Players[0].PendingDraw)
	assert.Equal(t, *mine[0].Card, *mine[1].State.Players[0].PendingDraw)

	theirs := sender.take(ids[1])
	require.Equal(t, []string{EventUpdate}, types(theirs))
	assert.Nil(t, theirs[0].State.Players[0].PendingDraw)
	for _, c := range theirs[0].State.Players[0].Hand {
		assert.True(t, c.Hidden)
	}

	err := gs.RequestDraw(g.ID, ids[1], game.SourceDeck)
	assert.True(t, errors.Is(err, game.ErrNotYourTurn))
	assert.Empty(t, sender.take(ids[1]), "rejections are reported by the transport, not broadcast")
}

func TestPlayOpensReactionAndTimerClosesIt(t *testing.T) {
	gs, sender, clock := setupServer(t)
	g, ids := setupTable(t, gs, sender, 2)

	require.NoError(t, gs.RequestDraw(g.ID, ids[0], game.SourceDeck))
	require.NoError(t, gs.PlayDrawn(g.ID, ids[0], game.PlayChoice{}))

	g.Mu.Lock()
	value := g.Reaction.Value
	require.True(t, g.Reaction.Active)
	g.Mu.Unlock()

	for _, id := range ids {
		evs := sender.take(id)
		require.NotEmpty(t, evs)
		last := evs[len(evs)-1]
		assert.Equal(t, EventReactionStarted, last.Type)
		assert.Equal(t, value, last.Value)
	}

	clock.Advance(g.Rules.ReactionWindow - time.Millisecond)
	g.Mu.Lock()
	assert.True(t, g.Reaction.Active)
	g.Mu.Unlock()

	clock.Advance(time.Millisecond)
	g.Mu.Lock()
	assert.False(t, g.Reaction.Active)
	assert.Equal(t, 1, g.CurrentPlayerIndex)
	g.Mu.Unlock()

	for _, id := range ids {
		assert.Equal(t, []string{EventReactionEnded, EventUpdate}, types(sender.take(id)))
	}
}

func TestRespondReactionReportsToResponder(t *testing.T) {
	gs, sender, _ := setupServer(t)
	g, ids := setupTable(t, gs, sender, 2)

	require.NoError(t, gs.RequestDraw(g.ID, ids[0], game.SourceDeck))
	require.NoError(t, gs.PlayDrawn(g.ID, ids[0], game.PlayChoice{}))
	sender.take(ids[0])
	sender.take(ids[1])

	g.Mu.Lock()
	want := g.Players[1].Hand[0].Rank == g.Reaction.Value
	g.Mu.Unlock()

	require.NoError(t, gs.RespondReaction(g.ID, ids[1], 0, nil))

	evs := sender.take(ids[1])
	require.Equal(t, []string{EventReactionResult, EventUpdate}, types(evs))
	require.NotNil(t, evs[0].Correct)
	assert.Equal(t, want, *evs[0].Correct)
	assert.Equal(t, []string{EventUpdate}, types(sender.take(ids[0])))

	err := gs.RespondReaction(g.ID, ids[1], 0, nil)
	assert.True(t, errors.Is(err, game.ErrAlreadyResponded))

	err = gs.RespondReaction(g.ID, ids[0], 0, nil)
	assert.True(t, errors.Is(err, game.ErrInitiatorCannotRespond))

	g.Mu.Lock()
	assert.Equal(t, game.DeckSize, g.TotalCards())
	g.Mu.Unlock()
}

func TestDeclareStoBroadcasts(t *testing.T) {
	gs, sender, _ := setupServer(t)
	g, ids := setupTable(t, gs, sender, 3)

	require.NoError(t, gs.DeclareSto(g.ID, ids[2]))
	for _, id := range ids {
		evs := sender.take(id)
		require.Equal(t, []string{EventUpdate}, types(evs))
		require.NotNil(t, evs[0].State.StoDeclaredBy)
		assert.Equal(t, ids[2], *evs[0].State.StoDeclaredBy)
	}

	err := gs.DeclareSto(g.ID, uuid.New())
	assert.True(t, errors.Is(err, game.ErrNotInGame))
}

func TestSeenCardsExpire(t *testing.T) {
	gs, sender, clock := setupServer(t)
	g, ids := setupTable(t, gs, sender, 2)

	clock.Advance(g.Rules.SeenCardsWindow)

	g.Mu.Lock()
	for _, p := range g.Players {
		assert.Empty(t, p.SeenCards)
	}
	g.Mu.Unlock()

	// one update per expiring member
	assert.Equal(t, []string{EventUpdate, EventUpdate}, types(sender.take(ids[0])))
	assert.Equal(t, 0, gs.PendingTimers(g.ID))
}

func TestDisconnectEvictsAbandonedGame(t *testing.T) {
	gs, sender, clock := setupServer(t)
	g, ids := setupTable(t, gs, sender, 2)
	require.NoError(t, gs.RequestDraw(g.ID, ids[0], game.SourceDeck))
	require.NoError(t, gs.PlayDrawn(g.ID, ids[0], game.PlayChoice{}))

	sender.drop(ids[0])
	gs.Disconnect(ids[0])
	_, ok := gs.GameStore.Get(g.ID)
	assert.True(t, ok, "a connected member keeps the game alive")

	g.Mu.Lock()
	assert.NotNil(t, g.Player(ids[0]), "disconnecting does not unseat the player")
	g.Mu.Unlock()

	sender.drop(ids[1])
	gs.Disconnect(ids[1])
	_, ok = gs.GameStore.Get(g.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, gs.PendingTimers(g.ID))
	assert.Equal(t, 0, clock.Pending())

	// nothing fires into an evicted game
	sender.take(ids[0])
	clock.Advance(time.Minute)
	assert.Empty(t, sender.take(ids[0]))
}

func TestOpenGames(t *testing.T) {
	gs, sender, _ := setupServer(t)
	gs.Rules.MaxPlayers = 2

	full, _ := setupTable(t, gs, sender, 2)
	open, _ := setupTable(t, gs, sender, 1)

	games := gs.OpenGames()
	require.Len(t, games, 1)
	assert.Equal(t, open.ID, games[0].ID)
	assert.Equal(t, 1, games[0].PlayerCount)
	assert.Equal(t, 2, games[0].Capacity)
	assert.NotEqual(t, full.ID, games[0].ID)
}

// Each record is published from its own goroutine, so arrival order is not guaranteed;
// ActionIndex carries the operation order.
func TestActionIndicesFollowOperationOrder(t *testing.T) {
	gs, sender, clock := setupServer(t)
	pub := &chanPublisher{records: make(chan models.ActionRecord, 16)}
	gs.Publisher = pub

	g, ids := setupTable(t, gs, sender, 2)
	require.NoError(t, gs.RequestDraw(g.ID, ids[0], game.SourceDeck))
	require.NoError(t, gs.PlayDrawn(g.ID, ids[0], game.PlayChoice{}))
	clock.Advance(g.Rules.ReactionWindow)

	var recs []models.ActionRecord
	require.Eventually(t, func() bool {
		for {
			select {
			case r := <-pub.records:
				recs = append(recs, r)
			default:
				return len(recs) == 5
			}
		}
	}, time.Second, 10*time.Millisecond)

	sort.Slice(recs, func(i, j int) bool { return recs[i].ActionIndex < recs[j].ActionIndex })
	got := make([]string, len(recs))
	for i, r := range recs {
		got[i] = r.ActionType
		assert.Equal(t, g.ID, r.GameID)
		assert.Equal(t, i+1, r.ActionIndex)
	}
	assert.Equal(t, []string{"create_game", "join_game", "request_draw", "play_drawn", "end_reaction"}, got)
	assert.Equal(t, uuid.Nil, recs[4].ActorID)
	assert.Equal(t, "deck", recs[2].ActionPayload["source"])
}

// hookSender runs onConnected once, the first time a member's connection is checked.
type hookSender struct {
	*recordingSender
	once        sync.Once
	onConnected func()
}

func (s *hookSender) Connected(playerID uuid.UUID) bool {
	s.once.Do(s.onConnected)
	return s.recordingSender.Connected(playerID)
}

func TestJoinRacingEvictionIsRejected(t *testing.T) {
	gs, sender, clock := setupServer(t)
	g, ids := setupTable(t, gs, sender, 1)
	sender.drop(ids[0])

	joiner := uuid.New()
	joined := make(chan error, 1)
	gs.Sender = &hookSender{recordingSender: sender, onConnected: func() {
		go func() { joined <- gs.JoinGame(g.ID, joiner, "late") }()
	}}

	gs.Disconnect(ids[0])

	select {
	case err := <-joined:
		assert.True(t, errors.Is(err, game.ErrGameNotFound), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("join did not return")
	}
	assert.Empty(t, sender.take(joiner))
	_, ok := gs.GameStore.Get(g.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, gs.PendingTimers(g.ID))
	assert.Equal(t, 0, clock.Pending())
}

func TestLockSessionRejectsEvictedSession(t *testing.T) {
	gs, sender, _ := setupServer(t)
	g, ids := setupTable(t, gs, sender, 1)

	sender.drop(ids[0])
	gs.Disconnect(ids[0])

	_, err := gs.lockSession(g)
	assert.True(t, errors.Is(err, game.ErrGameNotFound))
	assert.True(t, g.Mu.TryLock(), "a rejected lock must be released")
	g.Mu.Unlock()
}

func TestCreateGameWithHouseRules(t *testing.T) {
	gs, sender, _ := setupServer(t)
	host := uuid.New()

	g, err := gs.CreateGame(host, "alice", map[string]interface{}{
		"maxPlayers":       float64(3),
		"penaltyDrawCount": float64(0),
		"reactionWindowMs": float64(1500),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Rules.MaxPlayers)
	assert.Equal(t, 0, g.Rules.PenaltyDrawCount)
	assert.Equal(t, 1500*time.Millisecond, g.Rules.ReactionWindow)
	assert.Equal(t, 4, g.Rules.HandSize, "unset rules keep the server value")
	assert.Equal(t, game.DefaultHouseRules(), gs.Rules, "server rules are not modified")

	games := gs.OpenGames()
	require.Len(t, games, 1)
	assert.Equal(t, 3, games[0].Capacity)
	sender.take(host)
}

func TestCreateGameRejectsBadHouseRules(t *testing.T) {
	gs, sender, _ := setupServer(t)
	host := uuid.New()

	cases := map[string]map[string]interface{}{
		"wrong type":      {"handSize": "four"},
		"above room cap":  {"maxPlayers": float64(7)},
		"deck too small":  {"maxPlayers": float64(5), "handSize": float64(9)},
		"below minimum":   {"maxPlayers": float64(1)},
		"negative window": {"reactionWindowMs": float64(-5)},
	}
	for name, rules := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := gs.CreateGame(host, "alice", rules)
			require.Error(t, err)
			assert.Equal(t, game.KindValidation, game.KindOf(err))
		})
	}
	assert.Equal(t, 0, gs.GameStore.Len())
	assert.Empty(t, sender.take(host))
}

// giveRank swaps a card of rank into p.Hand[idx] from the deck or another hand, never taking
// another player's card at idx. Assumes the session lock is held.
func giveRank(t *testing.T, g *game.Session, p *models.Player, idx, rank int) {
	t.Helper()
	if p.Hand[idx].Rank == rank {
		return
	}
	for i := range g.Deck {
		if g.Deck[i].Rank == rank {
			g.Deck[i], p.Hand[idx] = p.Hand[idx], g.Deck[i]
			return
		}
	}
	for _, o := range g.Players {
		if o == p {
			continue
		}
		for i := range o.Hand {
			if i != idx && o.Hand[i].Rank == rank {
				o.Hand[i], p.Hand[idx] = p.Hand[idx], o.Hand[i]
				return
			}
		}
	}
	t.Fatalf("no card of rank %d available", rank)
}

func TestReactionResultReportsSparedTarget(t *testing.T) {
	gs, sender, _ := setupServer(t)
	g, ids := setupTable(t, gs, sender, 3)

	require.NoError(t, gs.RequestDraw(g.ID, ids[0], game.SourceDeck))
	require.NoError(t, gs.PlayDrawn(g.ID, ids[0], game.PlayChoice{}))
	require.NoError(t, gs.DeclareSto(g.ID, ids[0]))

	g.Mu.Lock()
	giveRank(t, g, g.Player(ids[1]), 0, g.Reaction.Value)
	giveRank(t, g, g.Player(ids[2]), 0, g.Reaction.Value)
	g.Mu.Unlock()
	sender.take(ids[1])
	sender.take(ids[2])

	// the declarer is immune
	require.NoError(t, gs.RespondReaction(g.ID, ids[1], 0, &ids[0]))
	evs := sender.take(ids[1])
	require.Equal(t, EventReactionResult, evs[0].Type)
	assert.True(t, *evs[0].Correct)
	assert.True(t, evs[0].TargetSpared)
	assert.Nil(t, evs[0].PenalizedID)
	assert.Zero(t, evs[0].PenaltyCards)

	// a target without sto draws the penalty
	require.NoError(t, gs.RespondReaction(g.ID, ids[2], 0, &ids[1]))
	evs = sender.take(ids[2])
	require.Equal(t, EventReactionResult, evs[0].Type)
	assert.True(t, *evs[0].Correct)
	assert.False(t, evs[0].TargetSpared)
	require.NotNil(t, evs[0].PenalizedID)
	assert.Equal(t, ids[1], *evs[0].PenalizedID)
	assert.Equal(t, g.Rules.PenaltyDrawCount, evs[0].PenaltyCards)
}
