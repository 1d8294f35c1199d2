package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/SiMista/Onskone-sub000/internal/game"
	"github.com/SiMista/Onskone-sub000/internal/lobby"
	"github.com/SiMista/Onskone-sub000/pkg/types"
)

func (c *Coordinator) startGame(connID string, p types.StartGamePayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	actor, err := c.actor(connID, l)
	if err != nil {
		return err
	}
	if !actor.IsHost {
		return errNotHost
	}
	if c.deck == nil || c.deck.Size() == 0 {
		return game.ErrDeckNotLoaded
	}
	if l.Game != nil && l.Game.Status != game.StatusFinished {
		return game.ErrGameAlreadyStarted
	}
	roster := l.ActiveIDs()
	if len(roster) < MinPlayers {
		return errTooFewPlayers
	}

	g := game.NewGame(roster)
	if err := g.Start(); err != nil {
		return err
	}
	l.Game = g
	l.Touch()
	c.msgr.Broadcast(l.Code, types.EvtGameStarted, types.GameStartedPayload{
		LobbyCode: l.Code,
		Status:    string(g.Status),
	})
	c.log.Info("game started", zap.String("lobby", l.Code), zap.Int("players", len(roster)))
	return c.startRound(l)
}

func (c *Coordinator) requestQuestions(connID string, p types.RequestQuestionsPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	_, r, leader, err := c.requireLeader(connID, l)
	if err != nil {
		return err
	}
	if r.Phase != game.PhaseQuestionSelection {
		return game.ErrWrongPhase
	}
	// any draw after the first is a relance, whatever the client claims
	isRelance := len(r.Card.Questions) > 0
	if isRelance && r.RelancesUsed >= game.MaxRelances {
		return game.ErrRelanceExhausted
	}
	card, err := c.deck.Draw(p.Count, r.OfferedSet())
	if err != nil {
		return err
	}
	if err := r.OfferCard(card, isRelance); err != nil {
		return err
	}
	c.msgr.Send(leader.ConnID, types.EvtQuestionsReceived, types.QuestionsReceivedPayload{
		Category:     card.Category,
		Questions:    card.Questions,
		RelancesUsed: r.RelancesUsed,
		MaxRelances:  game.MaxRelances,
	})
	return nil
}

func (c *Coordinator) selectQuestion(connID string, p types.SelectQuestionPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	_, r, _, err := c.requireLeader(connID, l)
	if err != nil {
		return err
	}
	if err := r.SelectQuestion(p.SelectedQuestion); err != nil {
		return err
	}
	c.msgr.Broadcast(l.Code, types.EvtQuestionSelected, types.QuestionSelectedPayload{
		Question: r.SelectedQuestion,
	})
	return nil
}

func (c *Coordinator) submitAnswer(connID string, p types.SubmitAnswerPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	_, r, err := c.currentRound(l)
	if err != nil {
		return err
	}
	actor, err := c.actor(connID, l)
	if err != nil {
		return err
	}
	if actor.ID != p.PlayerID {
		return errNotYou
	}
	if err := r.SubmitAnswer(actor.ID, p.Answer); err != nil {
		return err
	}

	expected := 0
	for _, id := range l.ActiveIDs() {
		if id != r.LeaderID {
			expected++
		}
	}
	c.msgr.Broadcast(l.Code, types.EvtPlayerAnswered, types.PlayerAnsweredPayload{
		PlayerID: actor.ID,
		Answered: len(r.Answers),
		Expected: expected,
	})

	if r.AllAnswered(l.ActiveIDs()) {
		c.msgr.Broadcast(l.Code, types.EvtAllAnswers, struct{}{})
		return c.beginGuessing(l, r)
	}
	return nil
}

func (c *Coordinator) updateGuess(connID string, p types.UpdateGuessPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	_, r, _, err := c.requireLeader(connID, l)
	if err != nil {
		return err
	}
	if err := r.SetGuess(p.AnswerID, p.PlayerID); err != nil {
		return err
	}
	c.msgr.Broadcast(l.Code, types.EvtGuessUpdated, types.GuessUpdatedPayload{
		AnswerID: p.AnswerID,
		PlayerID: p.PlayerID,
	})
	return nil
}

func (c *Coordinator) submitGuesses(connID string, p types.SubmitGuessesPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	_, r, _, err := c.requireLeader(connID, l)
	if err != nil {
		return err
	}
	if err := r.FinalizeGuesses(p.Guesses); err != nil {
		return err
	}
	c.broadcastRevealResults(l, r)
	return nil
}

func (c *Coordinator) revealNextAnswer(connID string, p types.RevealNextAnswerPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	_, r, _, err := c.requireLeader(connID, l)
	if err != nil {
		return err
	}

	// One index past the last entry is the explicit "advance" action: next
	// round, or game end once every roster member has led.
	if p.AnswerIndex == len(r.ShuffledAnswers) {
		if r.Phase != game.PhaseReveal {
			return game.ErrWrongPhase
		}
		if !r.AllRevealed() {
			return errRevealIncomplete
		}
		return c.advanceRound(l)
	}

	if err := r.Reveal(p.AnswerIndex); err != nil {
		return err
	}
	c.msgr.Broadcast(l.Code, types.EvtAnswerRevealed, types.AnswerRevealedPayload{
		AnswerIndex: p.AnswerIndex,
	})
	return nil
}

func (c *Coordinator) startTimer(connID string, p types.StartTimerPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	_, r, _, err := c.requireLeader(connID, l)
	if err != nil {
		return err
	}
	d, err := c.phaseDuration(r.Phase)
	if err != nil {
		return err
	}
	if p.Duration > 0 {
		d = time.Duration(p.Duration) * time.Second
	}
	r.StartTimer(c.now(), d)
	c.msgr.Broadcast(l.Code, types.EvtTimerStarted, timerState(r, c.now()))
	return nil
}

// timerExpired is advisory: the leader's client reports it, retries and
// duplicate observers included. MarkTimerProcessed makes it at-most-once per
// phase; a second signal for the same phase is a silent no-op so the caller
// sees idempotent behavior, not an error.
func (c *Coordinator) timerExpired(connID string, p types.TimerExpiredPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	if _, err := c.actor(connID, l); err != nil {
		return err
	}
	_, r, err := c.currentRound(l)
	if err != nil {
		return err
	}
	if !r.MarkTimerProcessed() {
		return nil
	}

	switch r.Phase {
	case game.PhaseQuestionSelection:
		if len(r.Card.Questions) == 0 {
			card, err := c.deck.Draw(game.DefaultCardSize, r.OfferedSet())
			if err != nil {
				return err
			}
			if err := r.OfferCard(card, false); err != nil {
				return err
			}
		}
		if err := r.AutoSelectQuestion(c.rng); err != nil {
			return err
		}
		c.msgr.Broadcast(l.Code, types.EvtQuestionSelected, types.QuestionSelectedPayload{
			Question: r.SelectedQuestion,
		})
	case game.PhaseAnswering:
		return c.beginGuessing(l, r)
	case game.PhaseGuessing:
		if err := r.FinalizeFromProvisional(); err != nil {
			return err
		}
		c.broadcastRevealResults(l, r)
	case game.PhaseReveal:
		// reveal is leader-paced, no timer outcome
	}
	return nil
}

func (c *Coordinator) getGameResults(connID string, p types.GetGameResultsPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	if l.Game == nil {
		return errNoGame
	}
	c.msgr.Send(connID, types.EvtGameEnded, leaderboardPayload(l, l.Game))
	return nil
}

// startRound advances the game to a fresh round and announces it.
func (c *Coordinator) startRound(l *lobby.Lobby) error {
	r, err := l.Game.NextRound(l.ActiveSet())
	if err != nil {
		return err
	}
	c.msgr.Broadcast(l.Code, types.EvtRoundStarted, types.RoundStartedPayload{
		RoundNumber: r.Number,
		LeaderID:    r.LeaderID,
		TotalRounds: len(l.Game.Roster),
	})
	return nil
}

// advanceIfAllAnswered fires the ANSWERING -> GUESSING transition when a
// roster or activity change leaves no answers outstanding. The transition
// depends on the set of active players, so it must be re-checked whenever a
// player leaves, is kicked, expires out of grace or goes inactive, not just
// when an answer arrives.
func (c *Coordinator) advanceIfAllAnswered(l *lobby.Lobby) {
	g := l.Game
	if g == nil || g.Status != game.StatusInProgress || g.Current == nil {
		return
	}
	r := g.Current
	if r.Phase != game.PhaseAnswering || !r.AllAnswered(l.ActiveIDs()) {
		return
	}
	c.msgr.Broadcast(l.Code, types.EvtAllAnswers, struct{}{})
	if err := c.beginGuessing(l, r); err != nil {
		c.log.Error("begin guessing after roster change",
			zap.String("lobby", l.Code), zap.Error(err))
	}
}

// beginGuessing freezes the answer set (sentinels filled for anyone still
// missing) and shows the shuffled, author-less answers to the whole lobby.
func (c *Coordinator) beginGuessing(l *lobby.Lobby, r *game.Round) error {
	if err := r.BeginGuessing(l.ActiveIDs(), c.rng); err != nil {
		return err
	}
	views := make([]types.AnswerView, 0, len(r.ShuffledAnswers))
	for _, a := range r.ShuffledAnswers {
		views = append(views, types.AnswerView{ID: a.ID, Text: a.Text})
	}
	c.msgr.Broadcast(l.Code, types.EvtShuffledAnswers, types.ShuffledAnswersPayload{Answers: views})
	return nil
}

func (c *Coordinator) broadcastRevealResults(l *lobby.Lobby, r *game.Round) {
	views := make([]types.AnswerView, 0, len(r.ShuffledAnswers))
	for _, a := range r.ShuffledAnswers {
		v := types.AnswerView{ID: a.ID, Text: a.Text, PlayerID: a.PlayerID}
		if guessed, ok := r.Guesses[a.ID]; ok {
			g := guessed
			correct := guessed == a.PlayerID
			v.GuessedPlayerID = &g
			v.Correct = &correct
		}
		views = append(views, v)
	}
	c.msgr.Broadcast(l.Code, types.EvtRevealResults, types.RevealResultsPayload{
		RoundNumber: r.Number,
		Answers:     views,
		Scores:      r.Scores,
	})
}

// advanceRound moves past a completed REVEAL: next round, or game end with
// everyone marked inactive until they explicitly come back.
func (c *Coordinator) advanceRound(l *lobby.Lobby) error {
	g := l.Game
	if g.IsOver() || !g.HasEligibleLeader(l.ActiveSet()) {
		c.finishGame(l)
		return nil
	}
	return c.startRound(l)
}

// advanceAfterLeaderLoss skips the current round because its leader is gone
// for good: the next eligible leader starts the following round, or the game
// ends if nobody remains.
func (c *Coordinator) advanceAfterLeaderLoss(l *lobby.Lobby) {
	g := l.Game
	if g == nil || g.Status != game.StatusInProgress {
		return
	}
	c.log.Info("skipping round after leader loss",
		zap.String("lobby", l.Code),
		zap.Int("round", g.Current.Number))
	if err := c.advanceRound(l); err != nil {
		c.finishGame(l)
	}
}

func (c *Coordinator) finishGame(l *lobby.Lobby) {
	g := l.Game
	g.Finish()
	for _, p := range l.Players {
		p.IsActive = false
	}
	c.msgr.Broadcast(l.Code, types.EvtGameEnded, leaderboardPayload(l, g))
	c.broadcastRoster(l)
	c.log.Info("game ended", zap.String("lobby", l.Code), zap.Int("rounds", len(g.Rounds)))
}

func (c *Coordinator) phaseDuration(p game.Phase) (time.Duration, error) {
	switch p {
	case game.PhaseQuestionSelection:
		return c.timers.Selection, nil
	case game.PhaseAnswering:
		return c.timers.Answering, nil
	case game.PhaseGuessing:
		return c.timers.Guessing, nil
	}
	return 0, game.ErrWrongPhase
}
