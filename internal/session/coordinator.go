// Package session translates inbound client intents into state mutations
// and outbound notifications. The coordinator is the only caller of the
// lobby registry, the game engine and the resilience manager.
package session

import (
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SiMista/Onskone-sub000/internal/game"
	"github.com/SiMista/Onskone-sub000/internal/lobby"
	"github.com/SiMista/Onskone-sub000/internal/resilience"
	"github.com/SiMista/Onskone-sub000/pkg/types"
)

// Messenger is the transport collaborator: targeted sends, room-wide
// broadcasts and room membership. The ws hub implements it; tests use a
// recording fake.
type Messenger interface {
	Send(connID, event string, payload any)
	Broadcast(code, event string, payload any)
	Join(connID, code string)
	Leave(connID, code string)
	CloseRoom(code string)
}

// Timers are the per-phase durations handed to the leader's client.
type Timers struct {
	Selection time.Duration
	Answering time.Duration
	Guessing  time.Duration
}

// MinPlayers is the smallest lobby that can start a game.
const MinPlayers = 3

type binding struct {
	code     string
	playerID string
}

// Coordinator serializes every inbound message and timer fire behind one
// mutex, so each runs to completion before the next: correctness rests on
// event ordering and idempotency, exactly one mutation per intent.
type Coordinator struct {
	mu sync.Mutex

	reg    *lobby.Registry
	res    *resilience.Manager
	deck   *game.Deck
	timers Timers
	msgr   Messenger
	log    *zap.Logger
	rng    *rand.Rand
	now    func() time.Time

	bindings map[string]binding // conn id -> lobby/player
}

func NewCoordinator(reg *lobby.Registry, res *resilience.Manager, deck *game.Deck, timers Timers, msgr Messenger, log *zap.Logger) *Coordinator {
	return &Coordinator{
		reg:      reg,
		res:      res,
		deck:     deck,
		timers:   timers,
		msgr:     msgr,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		bindings: make(map[string]binding),
	}
}

// Dispatch routes one inbound envelope. Unexpected panics are caught here:
// the caller gets a generic failure, the process never dies on a handler.
func (c *Coordinator) Dispatch(connID string, env types.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic", zap.String("event", env.Event), zap.Any("panic", r))
			c.msgr.Send(connID, types.EvtError, types.ErrorPayload{Message: "internal error"})
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Event {
	case types.EvtCreateLobby:
		dispatch(c, connID, env, c.createLobby)
	case types.EvtJoinLobby:
		dispatch(c, connID, env, c.joinLobby)
	case types.EvtLeaveLobby:
		dispatch(c, connID, env, c.leaveLobby)
	case types.EvtKickPlayer:
		dispatch(c, connID, env, c.kickPlayer)
	case types.EvtPromotePlayer:
		dispatch(c, connID, env, c.promotePlayer)
	case types.EvtStartGame:
		dispatch(c, connID, env, c.startGame)
	case types.EvtRequestQuestions:
		dispatch(c, connID, env, c.requestQuestions)
	case types.EvtSelectQuestion:
		dispatch(c, connID, env, c.selectQuestion)
	case types.EvtSubmitAnswer:
		dispatch(c, connID, env, c.submitAnswer)
	case types.EvtUpdateGuess:
		dispatch(c, connID, env, c.updateGuess)
	case types.EvtSubmitGuesses:
		dispatch(c, connID, env, c.submitGuesses)
	case types.EvtRevealNextAnswer:
		dispatch(c, connID, env, c.revealNextAnswer)
	case types.EvtStartTimer:
		dispatch(c, connID, env, c.startTimer)
	case types.EvtTimerExpired:
		dispatch(c, connID, env, c.timerExpired)
	case types.EvtGetGameState:
		dispatch(c, connID, env, c.getGameState)
	case types.EvtGetGameResults:
		dispatch(c, connID, env, c.getGameResults)
	default:
		c.msgr.Send(connID, types.EvtError, types.ErrorPayload{Message: "unknown event"})
	}
}

// dispatch decodes the payload and reports handler errors to the acting
// connection only; state is left untouched on any rejection.
func dispatch[P any](c *Coordinator, connID string, env types.Envelope, handler func(connID string, p P) error) {
	var p P
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.msgr.Send(connID, types.EvtError, types.ErrorPayload{Message: "malformed payload"})
			return
		}
	}
	if err := handler(connID, p); err != nil {
		c.log.Debug("intent rejected",
			zap.String("event", env.Event),
			zap.String("conn", connID),
			zap.Error(err))
		c.msgr.Send(connID, types.EvtError, types.ErrorPayload{Message: err.Error()})
	}
}

var errNotBound = errors.New("connection is not in a lobby")
var errNotHost = errors.New("only the host may do this")
var errNotYou = errors.New("player id does not match this connection")
var errNoGame = errors.New("no game in this lobby")
var errNoRound = errors.New("no round in progress")
var errTooFewPlayers = errors.New("not enough active players to start")
var errKickBlocked = errors.New("you were kicked from this lobby")
var errReconnectBusy = errors.New("a reconnection for this player is already in progress")
var errRevealIncomplete = errors.New("reveal every answer before advancing")

// lobbyByCode normalizes and resolves a client-supplied code.
func (c *Coordinator) lobbyByCode(code string) (*lobby.Lobby, error) {
	l, ok := c.reg.Get(strings.ToUpper(strings.TrimSpace(code)))
	if !ok {
		return nil, lobby.ErrLobbyNotFound
	}
	return l, nil
}

// actor resolves the player bound to a connection within the given lobby.
func (c *Coordinator) actor(connID string, l *lobby.Lobby) (*lobby.Player, error) {
	b, ok := c.bindings[connID]
	if !ok || b.code != l.Code {
		return nil, errNotBound
	}
	p, ok := l.PlayerByID(b.playerID)
	if !ok {
		return nil, lobby.ErrPlayerNotFound
	}
	return p, nil
}

// currentRound resolves the lobby's in-progress game and round.
func (c *Coordinator) currentRound(l *lobby.Lobby) (*game.Game, *game.Round, error) {
	g := l.Game
	if g == nil {
		return nil, nil, errNoGame
	}
	if g.Status != game.StatusInProgress {
		return nil, nil, game.ErrGameNotInProgress
	}
	if g.Current == nil {
		return nil, nil, errNoRound
	}
	return g, g.Current, nil
}

// requireLeader resolves the actor and checks they lead the current round.
func (c *Coordinator) requireLeader(connID string, l *lobby.Lobby) (*game.Game, *game.Round, *lobby.Player, error) {
	g, r, err := c.currentRound(l)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := c.actor(connID, l)
	if err != nil {
		return nil, nil, nil, err
	}
	if p.ID != r.LeaderID {
		return nil, nil, nil, game.ErrNotLeader
	}
	return g, r, p, nil
}

func playerView(p *lobby.Player) types.PlayerView {
	return types.PlayerView{
		ID:       p.ID,
		Name:     p.Name,
		AvatarID: p.AvatarID,
		IsHost:   p.IsHost,
		IsActive: p.IsActive,
	}
}

func rosterViews(l *lobby.Lobby) []types.PlayerView {
	views := make([]types.PlayerView, 0, len(l.Players))
	for _, p := range l.Players {
		views = append(views, playerView(p))
	}
	return views
}

func (c *Coordinator) broadcastRoster(l *lobby.Lobby) {
	c.msgr.Broadcast(l.Code, types.EvtRosterUpdated, types.RosterUpdatedPayload{Players: rosterViews(l)})
}

func leaderboardPayload(l *lobby.Lobby, g *game.Game) types.GameEndedPayload {
	entries := g.Leaderboard()
	out := make([]types.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		name := ""
		if p, ok := l.PlayerByID(e.PlayerID); ok {
			name = p.Name
		}
		out = append(out, types.LeaderboardEntry{PlayerID: e.PlayerID, Name: name, Score: e.Score})
	}
	return types.GameEndedPayload{Leaderboard: out}
}
