package game

import (
	"errors"
	"sort"
)

var ErrGameNotInProgress = errors.New("game is not in progress")
var ErrGameAlreadyStarted = errors.New("game already started")
var ErrGameFinished = errors.New("game already finished")
var ErrNoEligibleLeader = errors.New("no eligible leader remains")

// Status follows WAITING -> IN_PROGRESS -> FINISHED.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

// Game orchestrates round creation, leader rotation and scoring for one
// lobby. The roster is snapshotted at game start: leader rotation and the
// game-over condition read the snapshot, never the lobby's live player list,
// so joins and removals mid-game cannot perturb who leads next.
type Game struct {
	Status Status

	Roster []string // player ids active at start, in lobby order
	led    map[string]bool

	Rounds  []*Round
	Current *Round
}

// NewGame snapshots the given roster. The deck must be loaded before a game
// is created; the caller checks that.
func NewGame(rosterIDs []string) *Game {
	roster := make([]string, len(rosterIDs))
	copy(roster, rosterIDs)
	return &Game{
		Status: StatusWaiting,
		Roster: roster,
		led:    make(map[string]bool),
	}
}

// Start moves WAITING -> IN_PROGRESS.
func (g *Game) Start() error {
	switch g.Status {
	case StatusInProgress:
		return ErrGameAlreadyStarted
	case StatusFinished:
		return ErrGameFinished
	}
	g.Status = StatusInProgress
	return nil
}

// eligible: in the start roster, currently active, has not led this game.
func (g *Game) eligible(id string, active map[string]bool) bool {
	return active[id] && !g.led[id]
}

// PickLeader returns the leader for the given round number: the roster
// player at roundNumber mod len(roster), scanning forward to the first
// eligible one.
func (g *Game) PickLeader(roundNumber int, active map[string]bool) (string, error) {
	n := len(g.Roster)
	if n == 0 {
		return "", ErrNoEligibleLeader
	}
	start := roundNumber % n
	for i := 0; i < n; i++ {
		id := g.Roster[(start+i)%n]
		if g.eligible(id, active) {
			return id, nil
		}
	}
	return "", ErrNoEligibleLeader
}

// NextRound appends a new current round with the next leader. active maps
// player id -> isActive for leader eligibility.
func (g *Game) NextRound(active map[string]bool) (*Round, error) {
	if g.Status != StatusInProgress {
		return nil, ErrGameNotInProgress
	}
	number := len(g.Rounds) + 1
	leaderID, err := g.PickLeader(number, active)
	if err != nil {
		return nil, err
	}
	r := NewRound(number, leaderID)
	g.led[leaderID] = true
	g.Rounds = append(g.Rounds, r)
	g.Current = r
	return r, nil
}

// HasLed reports whether a player already led a round this game.
func (g *Game) HasLed(id string) bool { return g.led[id] }

// IsOver is true once every roster member has had a leadership turn.
func (g *Game) IsOver() bool {
	return g.Current != nil && g.Current.Number >= len(g.Roster)
}

// HasEligibleLeader reports whether anyone could still lead a round.
func (g *Game) HasEligibleLeader(active map[string]bool) bool {
	for _, id := range g.Roster {
		if g.eligible(id, active) {
			return true
		}
	}
	return false
}

// Finish moves the game to FINISHED.
func (g *Game) Finish() {
	g.Status = StatusFinished
}

// LeaderboardEntry is one player's total across all completed rounds.
type LeaderboardEntry struct {
	PlayerID string
	Score    int
}

// Leaderboard sums per-round scores and sorts descending; ties keep roster
// insertion order.
func (g *Game) Leaderboard() []LeaderboardEntry {
	totals := make(map[string]int, len(g.Roster))
	for _, r := range g.Rounds {
		for id, pts := range r.Scores {
			totals[id] += pts
		}
	}
	entries := make([]LeaderboardEntry, 0, len(g.Roster))
	for _, id := range g.Roster {
		entries = append(entries, LeaderboardEntry{PlayerID: id, Score: totals[id]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
