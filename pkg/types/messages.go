package types

import "encoding/json"

// Envelope is the frame every message travels in, both directions.
// Data holds the event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client -> Server events.
const (
	EvtCreateLobby      = "create-lobby"
	EvtJoinLobby        = "join-lobby"
	EvtLeaveLobby       = "leave-lobby"
	EvtKickPlayer       = "kick-player"
	EvtPromotePlayer    = "promote-player"
	EvtStartGame        = "start-game"
	EvtRequestQuestions = "request-questions"
	EvtSelectQuestion   = "select-question"
	EvtSubmitAnswer     = "submit-answer"
	EvtUpdateGuess      = "update-guess"
	EvtSubmitGuesses    = "submit-guesses"
	EvtRevealNextAnswer = "reveal-next-answer"
	EvtStartTimer       = "start-timer"
	EvtTimerExpired     = "timer-expired"
	EvtGetGameState     = "get-game-state"
	EvtGetGameResults   = "get-game-results"
)

// Server -> Client events.
const (
	EvtLobbyCreated       = "lobby-created"
	EvtJoinedLobby        = "joined-lobby"
	EvtRosterUpdated      = "roster-updated"
	EvtKicked             = "kicked"
	EvtNameExists         = "name-exists"
	EvtNameValid          = "name-valid"
	EvtLobbyInfo          = "lobby-info"
	EvtGameStarted        = "game-started"
	EvtRoundStarted       = "round-started"
	EvtQuestionsReceived  = "questions-received"
	EvtQuestionSelected   = "question-selected"
	EvtPlayerAnswered     = "player-answered"
	EvtAllAnswers         = "all-answers-submitted"
	EvtShuffledAnswers    = "shuffled-answers-received"
	EvtGuessUpdated       = "guess-updated"
	EvtRevealResults      = "reveal-results"
	EvtAnswerRevealed     = "answer-revealed"
	EvtTimerStarted       = "timer-started"
	EvtTimerState         = "timer-state"
	EvtGameEnded          = "game-ended"
	EvtError              = "error"
)

// Inbound payloads.

type CreateLobbyPayload struct {
	PlayerName string `json:"playerName"`
	AvatarID   string `json:"avatarId"`
}

type JoinLobbyPayload struct {
	LobbyCode  string `json:"lobbyCode"`
	PlayerName string `json:"playerName"`
	AvatarID   string `json:"avatarId"`
}

type LeaveLobbyPayload struct {
	LobbyCode string `json:"lobbyCode"`
	PlayerID  string `json:"playerId"`
}

type KickPlayerPayload struct {
	LobbyCode string `json:"lobbyCode"`
	PlayerID  string `json:"playerId"`
}

type PromotePlayerPayload struct {
	LobbyCode string `json:"lobbyCode"`
	PlayerID  string `json:"playerId"`
}

type StartGamePayload struct {
	LobbyCode string `json:"lobbyCode"`
}

type RequestQuestionsPayload struct {
	LobbyCode string `json:"lobbyCode"`
	Count     int    `json:"count,omitempty"`
	// IsRelance is advisory; the server treats any draw after the first as
	// a relance regardless.
	IsRelance bool `json:"isRelance,omitempty"`
}

type SelectQuestionPayload struct {
	LobbyCode        string `json:"lobbyCode"`
	SelectedQuestion string `json:"selectedQuestion"`
}

type SubmitAnswerPayload struct {
	LobbyCode string `json:"lobbyCode"`
	PlayerID  string `json:"playerId"`
	Answer    string `json:"answer"`
}

type UpdateGuessPayload struct {
	LobbyCode string  `json:"lobbyCode"`
	AnswerID  string  `json:"answerId"`
	PlayerID  *string `json:"playerId"` // nil clears the provisional guess
}

type SubmitGuessesPayload struct {
	LobbyCode string             `json:"lobbyCode"`
	Guesses   map[string]*string `json:"guesses"` // answer id -> guessed player id
}

type RevealNextAnswerPayload struct {
	LobbyCode   string `json:"lobbyCode"`
	AnswerIndex int    `json:"answerIndex"`
}

type StartTimerPayload struct {
	LobbyCode string `json:"lobbyCode"`
	Duration  int    `json:"duration,omitempty"` // seconds, 0 = phase default
}

type TimerExpiredPayload struct {
	LobbyCode string `json:"lobbyCode"`
}

type GetGameStatePayload struct {
	LobbyCode string `json:"lobbyCode"`
	PlayerID  string `json:"playerId,omitempty"`
}

type GetGameResultsPayload struct {
	LobbyCode string `json:"lobbyCode"`
}

// Outbound payloads.

type PlayerView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AvatarID string `json:"avatarId"`
	IsHost   bool   `json:"isHost"`
	IsActive bool   `json:"isActive"`
}

type LobbyCreatedPayload struct {
	LobbyCode string     `json:"lobbyCode"`
	Player    PlayerView `json:"player"`
}

type JoinedLobbyPayload struct {
	LobbyCode string       `json:"lobbyCode"`
	Player    PlayerView   `json:"player"`
	Players   []PlayerView `json:"players"`
}

type RosterUpdatedPayload struct {
	Players []PlayerView `json:"players"`
}

type KickedPayload struct {
	LobbyCode string `json:"lobbyCode"`
}

type NameCheckPayload struct {
	PlayerName string `json:"playerName"`
}

type GameStartedPayload struct {
	LobbyCode string `json:"lobbyCode"`
	Status    string `json:"status"`
}

type RoundStartedPayload struct {
	RoundNumber int    `json:"roundNumber"`
	LeaderID    string `json:"leaderId"`
	TotalRounds int    `json:"totalRounds"`
}

type QuestionsReceivedPayload struct {
	Category     string   `json:"category"`
	Questions    []string `json:"questions"`
	RelancesUsed int      `json:"relancesUsed"`
	MaxRelances  int      `json:"maxRelances"`
}

type QuestionSelectedPayload struct {
	Question string `json:"question"`
}

type PlayerAnsweredPayload struct {
	PlayerID string `json:"playerId"`
	Answered int    `json:"answered"`
	Expected int    `json:"expected"`
}

// AnswerView never carries the author id before the reveal; the GUESSING
// broadcast uses id+text only, reveal-results fills the rest in.
type AnswerView struct {
	ID              string  `json:"id"`
	Text            string  `json:"text"`
	PlayerID        string  `json:"playerId,omitempty"`
	GuessedPlayerID *string `json:"guessedPlayerId,omitempty"`
	Correct         *bool   `json:"correct,omitempty"`
}

type ShuffledAnswersPayload struct {
	Answers []AnswerView `json:"answers"`
}

type GuessUpdatedPayload struct {
	AnswerID string  `json:"answerId"`
	PlayerID *string `json:"playerId"`
}

type RevealResultsPayload struct {
	RoundNumber int            `json:"roundNumber"`
	Answers     []AnswerView   `json:"answers"`
	Scores      map[string]int `json:"scores"`
}

type AnswerRevealedPayload struct {
	AnswerIndex int `json:"answerIndex"`
}

type TimerStatePayload struct {
	Phase     string `json:"phase"`
	StartedAt int64  `json:"startedAt"` // unix millis
	Duration  int    `json:"duration"`  // seconds
	Remaining int    `json:"remaining"` // seconds, clamped at 0
}

type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

type GameEndedPayload struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// GameStateView is the round-local state a freshly attached client needs to
// resume mid-phase without re-querying piecemeal.
type GameStateView struct {
	Status            string             `json:"status"`
	RoundNumber       int                `json:"roundNumber,omitempty"`
	LeaderID          string             `json:"leaderId,omitempty"`
	Phase             string             `json:"phase,omitempty"`
	Category          string             `json:"category,omitempty"`
	Questions         []string           `json:"questions,omitempty"`
	SelectedQuestion  string             `json:"selectedQuestion,omitempty"`
	AnsweredPlayerIDs []string           `json:"answeredPlayerIds,omitempty"`
	YourAnswer        string             `json:"yourAnswer,omitempty"`
	Answers           []AnswerView       `json:"answers,omitempty"`
	CurrentGuesses    map[string]*string `json:"currentGuesses,omitempty"`
	RevealedIndices   []int              `json:"revealedIndices,omitempty"`
	RelancesUsed      int                `json:"relancesUsed,omitempty"`
}

type LobbyInfoPayload struct {
	LobbyCode string             `json:"lobbyCode"`
	Players   []PlayerView       `json:"players"`
	Game      *GameStateView     `json:"game,omitempty"`
	Timer     *TimerStatePayload `json:"timer,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
