package game

import (
	"errors"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var ErrWrongPhase = errors.New("action not allowed in current phase")
var ErrNotLeader = errors.New("only the round leader may do this")
var ErrLeaderCannotAnswer = errors.New("the leader does not answer")
var ErrAlreadyAnswered = errors.New("answer already submitted")
var ErrUnknownQuestion = errors.New("question was not offered on this card")
var ErrUnknownAnswer = errors.New("unknown answer id")
var ErrReservedAnswer = errors.New("answer text uses a reserved prefix")
var ErrEmptyAnswer = errors.New("answer text is empty")
var ErrNoCard = errors.New("no card drawn yet")
var ErrRelanceExhausted = errors.New("no relances left this round")
var ErrIndexOutOfRange = errors.New("reveal index out of range")

// Phase is one of the four ordered stages a round passes through.
// Transitions are strictly forward-only.
type Phase string

const (
	PhaseQuestionSelection Phase = "QUESTION_SELECTION"
	PhaseAnswering         Phase = "ANSWERING"
	PhaseGuessing          Phase = "GUESSING"
	PhaseReveal            Phase = "REVEAL"
)

// phaseRank orders phases so tests can assert monotonicity.
func phaseRank(p Phase) int {
	switch p {
	case PhaseQuestionSelection:
		return 0
	case PhaseAnswering:
		return 1
	case PhaseGuessing:
		return 2
	case PhaseReveal:
		return 3
	}
	return -1
}

// NoResponsePrefix tags auto-filled answers so clients can style them apart.
// Real submissions carrying it are rejected.
const NoResponsePrefix = "@no-response@"

// NoResponseText is the sentinel stored for players who never answered.
const NoResponseText = NoResponsePrefix + "Pas de réponse"

// MaxRelances bounds question re-rolls per round.
const MaxRelances = 2

// MaxAnswerLen bounds submitted answer text, counted in runes.
const MaxAnswerLen = 280

// Answer is one submitted (or sentinel) answer, identified by an opaque id so
// the leader's guesses reference answers rather than authors.
type Answer struct {
	ID       string
	PlayerID string
	Text     string
}

// Round is one cycle of phases with its answers, guesses and scores.
// Once its game appends the next round, a Round is never mutated again.
type Round struct {
	Number   int
	LeaderID string

	Card             Card
	OfferedQuestions []string // every question shown this round, relances included
	SelectedQuestion string
	RelancesUsed     int

	Phase Phase

	Answers         map[string]string  // player id -> raw text
	ShuffledAnswers []Answer           // fixed at the GUESSING transition
	CurrentGuesses  map[string]*string // answer id -> provisional player id
	Guesses         map[string]string  // answer id -> final player id
	Scores          map[string]int     // leader id -> points, computed once

	RevealedIndices map[int]bool

	TimerStartedAt    time.Time
	TimerDuration     time.Duration
	TimerPhase        Phase
	timerProcessedFor Phase
}

// NewRound creates a round in QUESTION_SELECTION with no card drawn yet.
func NewRound(number int, leaderID string) *Round {
	return &Round{
		Number:          number,
		LeaderID:        leaderID,
		Phase:           PhaseQuestionSelection,
		Answers:         make(map[string]string),
		CurrentGuesses:  make(map[string]*string),
		Guesses:         make(map[string]string),
		Scores:          make(map[string]int),
		RevealedIndices: make(map[int]bool),
	}
}

// OfferCard records a freshly drawn card. isRelance draws count against the
// round's relance budget; the first draw is free.
func (r *Round) OfferCard(c Card, isRelance bool) error {
	if r.Phase != PhaseQuestionSelection {
		return ErrWrongPhase
	}
	if isRelance {
		if r.RelancesUsed >= MaxRelances {
			return ErrRelanceExhausted
		}
		r.RelancesUsed++
	}
	r.Card = c
	r.OfferedQuestions = append(r.OfferedQuestions, c.Questions...)
	return nil
}

// OfferedSet returns the questions already shown this round, for draw dedup.
func (r *Round) OfferedSet() map[string]bool {
	seen := make(map[string]bool, len(r.OfferedQuestions))
	for _, q := range r.OfferedQuestions {
		seen[q] = true
	}
	return seen
}

// SelectQuestion moves QUESTION_SELECTION -> ANSWERING. The question must be
// one of those on the current card.
func (r *Round) SelectQuestion(q string) error {
	if r.Phase != PhaseQuestionSelection {
		return ErrWrongPhase
	}
	if len(r.Card.Questions) == 0 {
		return ErrNoCard
	}
	found := false
	for _, offered := range r.Card.Questions {
		if offered == q {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownQuestion
	}
	r.SelectedQuestion = q
	r.Phase = PhaseAnswering
	return nil
}

// AutoSelectQuestion picks uniformly among the current card's questions.
// Used when the selection timer expires.
func (r *Round) AutoSelectQuestion(rng *rand.Rand) error {
	if r.Phase != PhaseQuestionSelection {
		return ErrWrongPhase
	}
	if len(r.Card.Questions) == 0 {
		return ErrNoCard
	}
	return r.SelectQuestion(r.Card.Questions[rng.Intn(len(r.Card.Questions))])
}

// SubmitAnswer records a non-leader player's answer during ANSWERING.
func (r *Round) SubmitAnswer(playerID, text string) error {
	if r.Phase != PhaseAnswering {
		return ErrWrongPhase
	}
	if playerID == r.LeaderID {
		return ErrLeaderCannotAnswer
	}
	if _, dup := r.Answers[playerID]; dup {
		return ErrAlreadyAnswered
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyAnswer
	}
	if strings.Contains(text, NoResponsePrefix) {
		return ErrReservedAnswer
	}
	if utf8.RuneCountInString(text) > MaxAnswerLen {
		text = string([]rune(text)[:MaxAnswerLen])
	}
	r.Answers[playerID] = text
	return nil
}

// HasAnswered reports whether a player already submitted this round.
func (r *Round) HasAnswered(playerID string) bool {
	_, ok := r.Answers[playerID]
	return ok
}

// AllAnswered reports whether every listed player has an answer in.
func (r *Round) AllAnswered(playerIDs []string) bool {
	for _, id := range playerIDs {
		if id == r.LeaderID {
			continue
		}
		if _, ok := r.Answers[id]; !ok {
			return false
		}
	}
	return true
}

// BeginGuessing moves ANSWERING -> GUESSING: missing players get the
// sentinel answer, then the full set is frozen in a shuffled order.
func (r *Round) BeginGuessing(playerIDs []string, rng *rand.Rand) error {
	if r.Phase != PhaseAnswering {
		return ErrWrongPhase
	}
	for _, id := range playerIDs {
		if id == r.LeaderID {
			continue
		}
		if _, ok := r.Answers[id]; !ok {
			r.Answers[id] = NoResponseText
		}
	}
	r.ShuffledAnswers = make([]Answer, 0, len(r.Answers))
	for pid, text := range r.Answers {
		r.ShuffledAnswers = append(r.ShuffledAnswers, Answer{
			ID:       uuid.NewString(),
			PlayerID: pid,
			Text:     text,
		})
	}
	// every later view of this round must see the same order
	rng.Shuffle(len(r.ShuffledAnswers), func(a, b int) {
		r.ShuffledAnswers[a], r.ShuffledAnswers[b] = r.ShuffledAnswers[b], r.ShuffledAnswers[a]
	})
	r.Phase = PhaseGuessing
	return nil
}

// AnswerByID looks up a frozen answer.
func (r *Round) AnswerByID(id string) (Answer, bool) {
	for _, a := range r.ShuffledAnswers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}

// SetGuess records the leader's provisional drag state for one answer.
// A nil player id clears it.
func (r *Round) SetGuess(answerID string, playerID *string) error {
	if r.Phase != PhaseGuessing {
		return ErrWrongPhase
	}
	if _, ok := r.AnswerByID(answerID); !ok {
		return ErrUnknownAnswer
	}
	if playerID == nil {
		delete(r.CurrentGuesses, answerID)
		return nil
	}
	r.CurrentGuesses[answerID] = playerID
	return nil
}

// FinalizeGuesses moves GUESSING -> REVEAL with the given guesses.
// Unassigned (nil) guesses are dropped, not stored. Scoring happens here,
// exactly once: the leader earns one point per correctly attributed answer.
func (r *Round) FinalizeGuesses(guesses map[string]*string) error {
	if r.Phase != PhaseGuessing {
		return ErrWrongPhase
	}
	final := make(map[string]string)
	for answerID, pid := range guesses {
		if pid == nil {
			continue
		}
		if _, ok := r.AnswerByID(answerID); !ok {
			return ErrUnknownAnswer
		}
		final[answerID] = *pid
	}
	r.Guesses = final

	points := 0
	for _, a := range r.ShuffledAnswers {
		if guessed, ok := r.Guesses[a.ID]; ok && guessed == a.PlayerID {
			points++
		}
	}
	r.Scores[r.LeaderID] = points
	r.Phase = PhaseReveal
	return nil
}

// FinalizeFromProvisional is the timer-expiry variant of FinalizeGuesses:
// whatever drag state exists at that moment becomes final.
func (r *Round) FinalizeFromProvisional() error {
	return r.FinalizeGuesses(r.CurrentGuesses)
}

// Reveal marks one REVEAL entry as disclosed. Revealing the same index twice
// is a no-op, not an error.
func (r *Round) Reveal(index int) error {
	if r.Phase != PhaseReveal {
		return ErrWrongPhase
	}
	if index < 0 || index >= len(r.ShuffledAnswers) {
		return ErrIndexOutOfRange
	}
	r.RevealedIndices[index] = true
	return nil
}

// AllRevealed reports whether every frozen answer has been disclosed.
func (r *Round) AllRevealed() bool {
	return len(r.RevealedIndices) == len(r.ShuffledAnswers)
}

// StartTimer stamps the round with the authoritative start/duration the
// leader's client counts down from.
func (r *Round) StartTimer(now time.Time, d time.Duration) {
	r.TimerStartedAt = now
	r.TimerDuration = d
	r.TimerPhase = r.Phase
}

// MarkTimerProcessed is the at-most-once guard for expiry signals: it returns
// true the first time it is called for the round's current phase and false on
// every retry, so duplicate timer-expired messages no-op.
func (r *Round) MarkTimerProcessed() bool {
	if r.timerProcessedFor == r.Phase {
		return false
	}
	r.timerProcessedFor = r.Phase
	return true
}
