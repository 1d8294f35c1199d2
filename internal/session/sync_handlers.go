package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/SiMista/Onskone-sub000/internal/game"
	"github.com/SiMista/Onskone-sub000/internal/lobby"
	"github.com/SiMista/Onskone-sub000/pkg/types"
)

// getGameState is both the plain snapshot query and the reconnection path.
// With a known player id it re-binds the connection to the existing player,
// cancels every pending resilience timer for them, re-subscribes the
// connection to the lobby's broadcast group and returns enough round-local
// state to resume mid-phase in one message.
func (c *Coordinator) getGameState(connID string, p types.GetGameStatePayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}

	if p.PlayerID == "" {
		c.msgr.Send(connID, types.EvtLobbyInfo, c.lobbyInfo(l, nil))
		return nil
	}

	player, ok := l.PlayerByID(p.PlayerID)
	if !ok {
		return lobby.ErrPlayerNotFound
	}

	release, ok := c.res.TryReconnectLock(l.Code, player.Name)
	if !ok {
		return errReconnectBusy
	}
	defer release()

	oldConn := player.ConnID
	player.ConnID = connID
	player.IsActive = true
	delete(c.bindings, oldConn)
	c.bindings[connID] = binding{code: l.Code, playerID: player.ID}

	c.res.CancelPlayer(l.Code, player.Name)
	if l.Game != nil && l.Game.Current != nil && l.Game.Current.LeaderID == player.ID {
		c.res.CancelLeaderSkip(l.Code)
	}

	c.msgr.Join(connID, l.Code)
	l.Touch()
	c.broadcastRoster(l)
	c.msgr.Send(connID, types.EvtLobbyInfo, c.lobbyInfo(l, player))
	if ts := currentTimerState(l, c.now()); ts != nil {
		c.msgr.Send(connID, types.EvtTimerState, *ts)
	}
	c.log.Info("player reconnected",
		zap.String("lobby", l.Code),
		zap.String("player", player.Name))
	return nil
}

// lobbyInfo assembles the full sync snapshot. forPlayer scopes the
// player-private bits: their own answer, and the card questions if they
// lead the current round.
func (c *Coordinator) lobbyInfo(l *lobby.Lobby, forPlayer *lobby.Player) types.LobbyInfoPayload {
	info := types.LobbyInfoPayload{
		LobbyCode: l.Code,
		Players:   rosterViews(l),
	}
	g := l.Game
	if g == nil {
		return info
	}

	view := &types.GameStateView{Status: string(g.Status)}
	if r := g.Current; r != nil {
		view.RoundNumber = r.Number
		view.LeaderID = r.LeaderID
		view.Phase = string(r.Phase)
		view.Category = r.Card.Category
		view.SelectedQuestion = r.SelectedQuestion
		view.RelancesUsed = r.RelancesUsed

		for pid := range r.Answers {
			view.AnsweredPlayerIDs = append(view.AnsweredPlayerIDs, pid)
		}
		if forPlayer != nil {
			if answer, ok := r.Answers[forPlayer.ID]; ok {
				view.YourAnswer = answer
			}
			if forPlayer.ID == r.LeaderID {
				view.Questions = r.Card.Questions
			}
		}

		if r.Phase == game.PhaseGuessing || r.Phase == game.PhaseReveal {
			revealAuthors := r.Phase == game.PhaseReveal
			for _, a := range r.ShuffledAnswers {
				v := types.AnswerView{ID: a.ID, Text: a.Text}
				if revealAuthors {
					v.PlayerID = a.PlayerID
				}
				view.Answers = append(view.Answers, v)
			}
			view.CurrentGuesses = r.CurrentGuesses
		}
		if r.Phase == game.PhaseReveal {
			for i := range r.ShuffledAnswers {
				if r.RevealedIndices[i] {
					view.RevealedIndices = append(view.RevealedIndices, i)
				}
			}
		}
	}
	info.Game = view
	info.Timer = currentTimerState(l, c.now())
	return info
}

// timerState renders a round's timer bookkeeping for the wire.
func timerState(r *game.Round, now time.Time) types.TimerStatePayload {
	elapsed := now.Sub(r.TimerStartedAt)
	remaining := r.TimerDuration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return types.TimerStatePayload{
		Phase:     string(r.TimerPhase),
		StartedAt: r.TimerStartedAt.UnixMilli(),
		Duration:  int(r.TimerDuration / time.Second),
		Remaining: int(remaining / time.Second),
	}
}

// currentTimerState returns the in-flight timer for the current phase, or
// nil if none was started.
func currentTimerState(l *lobby.Lobby, now time.Time) *types.TimerStatePayload {
	g := l.Game
	if g == nil || g.Current == nil {
		return nil
	}
	r := g.Current
	if r.TimerPhase != r.Phase || r.TimerStartedAt.IsZero() {
		return nil
	}
	ts := timerState(r, now)
	return &ts
}
