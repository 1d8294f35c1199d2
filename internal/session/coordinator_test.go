package session

import (
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SiMista/Onskone-sub000/internal/game"
	"github.com/SiMista/Onskone-sub000/internal/lobby"
	"github.com/SiMista/Onskone-sub000/internal/resilience"
	"github.com/SiMista/Onskone-sub000/pkg/types"
)

type record struct {
	target  string // conn id for sends, lobby code for broadcasts
	event   string
	payload any
}

// fakeMessenger records every outbound message so tests can assert on the
// exact event flow. Timer callbacks deliver from other goroutines, hence the
// lock.
type fakeMessenger struct {
	mu      sync.Mutex
	records []record
}

func (f *fakeMessenger) add(target, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record{target: target, event: event, payload: payload})
}

func (f *fakeMessenger) Send(connID, event string, payload any) { f.add(connID, event, payload) }

func (f *fakeMessenger) Broadcast(code, event string, payload any) { f.add(code, event, payload) }

func (f *fakeMessenger) Join(connID, code string) { f.add(connID, "<join>", code) }

func (f *fakeMessenger) Leave(connID, code string) { f.add(connID, "<leave>", code) }

func (f *fakeMessenger) CloseRoom(code string) { f.add(code, "<close-room>", nil) }

func (f *fakeMessenger) last(event string) (record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].event == event {
			return f.records[i], true
		}
	}
	return record{}, false
}

func (f *fakeMessenger) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.event == event {
			n++
		}
	}
	return n
}

func (f *fakeMessenger) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
}

func payloadOf[P any](t *testing.T, f *fakeMessenger, event string) P {
	t.Helper()
	rec, ok := f.last(event)
	require.True(t, ok, "no %q message recorded", event)
	p, ok := rec.payload.(P)
	require.True(t, ok, "payload for %q has type %T", event, rec.payload)
	return p
}

type harness struct {
	c *Coordinator
	m *fakeMessenger
}

func testDeckCards() []game.Card {
	return []game.Card{
		{Category: "Cat1", Questions: []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8"}},
		{Category: "Cat2", Questions: []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8"}},
		{Category: "Cat3", Questions: []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"}},
	}
}

func newHarness(t *testing.T, delays resilience.Delays) *harness {
	t.Helper()
	deck, err := game.NewDeck(testDeckCards(), rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	m := &fakeMessenger{}
	c := NewCoordinator(
		lobby.NewRegistry(),
		resilience.NewManager(delays, zap.NewNop()),
		deck,
		Timers{Selection: 30 * time.Second, Answering: 60 * time.Second, Guessing: 90 * time.Second},
		m,
		zap.NewNop(),
	)
	return &harness{c: c, m: m}
}

func newQuietHarness(t *testing.T) *harness {
	// long delays so no resilience timer fires during the test
	return newHarness(t, resilience.Delays{
		DisconnectGrace: time.Hour,
		InactiveAfter:   time.Hour,
		LeaderSkip:      time.Hour,
		KickBlock:       time.Hour,
	})
}

func (h *harness) send(t *testing.T, conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	h.c.Dispatch(conn, types.Envelope{Event: event, Data: data})
}

// fixture is one lobby with players joined in order.
type fixture struct {
	code   string
	ids    []string          // join order
	conns  map[string]string // player id -> conn id
	leader string            // current round's leader, set by startedGame
}

func (f *fixture) nonLeaders() []string {
	var out []string
	for _, id := range f.ids {
		if id != f.leader {
			out = append(out, id)
		}
	}
	return out
}

func (h *harness) freshLobby(t *testing.T, names ...string) *fixture {
	t.Helper()
	f := &fixture{conns: make(map[string]string)}

	hostConn := "conn-" + names[0]
	h.send(t, hostConn, types.EvtCreateLobby, types.CreateLobbyPayload{PlayerName: names[0]})
	created := payloadOf[types.LobbyCreatedPayload](t, h.m, types.EvtLobbyCreated)
	f.code = created.LobbyCode
	f.ids = append(f.ids, created.Player.ID)
	f.conns[created.Player.ID] = hostConn

	for _, n := range names[1:] {
		conn := "conn-" + n
		h.send(t, conn, types.EvtJoinLobby, types.JoinLobbyPayload{LobbyCode: f.code, PlayerName: n})
		joined := payloadOf[types.JoinedLobbyPayload](t, h.m, types.EvtJoinedLobby)
		f.ids = append(f.ids, joined.Player.ID)
		f.conns[joined.Player.ID] = conn
	}
	return f
}

func (h *harness) startedGame(t *testing.T, names ...string) *fixture {
	t.Helper()
	if len(names) == 0 {
		names = []string{"Host", "Bob", "Carol"}
	}
	f := h.freshLobby(t, names...)
	h.send(t, f.conns[f.ids[0]], types.EvtStartGame, types.StartGamePayload{LobbyCode: f.code})
	rs := payloadOf[types.RoundStartedPayload](t, h.m, types.EvtRoundStarted)
	f.leader = rs.LeaderID
	return f
}

// roundToGuessing drives the current round through question selection and
// everyone's answers, returning the shuffled answer broadcast.
func (h *harness) roundToGuessing(t *testing.T, f *fixture) types.ShuffledAnswersPayload {
	t.Helper()
	lc := f.conns[f.leader]
	h.send(t, lc, types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	q := payloadOf[types.QuestionsReceivedPayload](t, h.m, types.EvtQuestionsReceived)
	h.send(t, lc, types.EvtSelectQuestion, types.SelectQuestionPayload{LobbyCode: f.code, SelectedQuestion: q.Questions[0]})
	for _, id := range f.nonLeaders() {
		h.send(t, f.conns[id], types.EvtSubmitAnswer, types.SubmitAnswerPayload{
			LobbyCode: f.code, PlayerID: id, Answer: "answer from " + id,
		})
	}
	return payloadOf[types.ShuffledAnswersPayload](t, h.m, types.EvtShuffledAnswers)
}

func TestCreateAndJoin_Flow(t *testing.T) {
	h := newQuietHarness(t)

	h.send(t, "c1", types.EvtCreateLobby, types.CreateLobbyPayload{PlayerName: "Alice"})
	created := payloadOf[types.LobbyCreatedPayload](t, h.m, types.EvtLobbyCreated)
	assert.Len(t, created.LobbyCode, 6)
	assert.True(t, created.Player.IsHost)

	h.send(t, "c2", types.EvtJoinLobby, types.JoinLobbyPayload{LobbyCode: created.LobbyCode, PlayerName: "Bob"})
	joined := payloadOf[types.JoinedLobbyPayload](t, h.m, types.EvtJoinedLobby)
	assert.False(t, joined.Player.IsHost)
	assert.Len(t, joined.Players, 2)

	roster := payloadOf[types.RosterUpdatedPayload](t, h.m, types.EvtRosterUpdated)
	assert.Len(t, roster.Players, 2)
	assert.Equal(t, 1, h.m.count(types.EvtNameValid))
}

func TestJoinLobby_CodeIsCaseInsensitive(t *testing.T) {
	h := newQuietHarness(t)
	f := h.freshLobby(t, "Alice")

	h.send(t, "c2", types.EvtJoinLobby, types.JoinLobbyPayload{
		LobbyCode: " " + strings.ToLower(f.code) + " ", PlayerName: "Bob",
	})
	joined := payloadOf[types.JoinedLobbyPayload](t, h.m, types.EvtJoinedLobby)
	assert.Equal(t, f.code, joined.LobbyCode)
}

func TestJoinLobby_DuplicateName(t *testing.T) {
	h := newQuietHarness(t)
	f := h.freshLobby(t, "Alice")

	h.send(t, "c2", types.EvtJoinLobby, types.JoinLobbyPayload{LobbyCode: f.code, PlayerName: "Alice"})

	exists := payloadOf[types.NameCheckPayload](t, h.m, types.EvtNameExists)
	assert.Equal(t, "Alice", exists.PlayerName)
	assert.Equal(t, 1, h.m.count(types.EvtError))
	assert.Equal(t, 0, h.m.count(types.EvtJoinedLobby))
}

func TestStartGame_Authorization(t *testing.T) {
	h := newQuietHarness(t)
	f := h.freshLobby(t, "Host", "Bob", "Carol")

	h.m.reset()
	h.send(t, f.conns[f.ids[1]], types.EvtStartGame, types.StartGamePayload{LobbyCode: f.code})
	assert.Equal(t, 1, h.m.count(types.EvtError), "non-host cannot start")
	assert.Equal(t, 0, h.m.count(types.EvtGameStarted))
}

func TestStartGame_NeedsThreePlayers(t *testing.T) {
	h := newQuietHarness(t)
	f := h.freshLobby(t, "Host", "Bob")

	h.m.reset()
	h.send(t, f.conns[f.ids[0]], types.EvtStartGame, types.StartGamePayload{LobbyCode: f.code})
	assert.Equal(t, 1, h.m.count(types.EvtError))
	assert.Equal(t, 0, h.m.count(types.EvtGameStarted))
}

func TestStartGame_AnnouncesFirstRound(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)

	started := payloadOf[types.GameStartedPayload](t, h.m, types.EvtGameStarted)
	assert.Equal(t, string(game.StatusInProgress), started.Status)

	rs := payloadOf[types.RoundStartedPayload](t, h.m, types.EvtRoundStarted)
	assert.Equal(t, 1, rs.RoundNumber)
	assert.Equal(t, 3, rs.TotalRounds)
	assert.Equal(t, f.ids[1], rs.LeaderID, "round 1 leader is the second joiner")
}

func TestRequestQuestions_PrivateToLeader(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)

	h.send(t, f.conns[f.leader], types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	rec, ok := h.m.last(types.EvtQuestionsReceived)
	require.True(t, ok)
	assert.Equal(t, f.conns[f.leader], rec.target, "questions go to the leader's connection only")

	q := rec.payload.(types.QuestionsReceivedPayload)
	assert.Len(t, q.Questions, game.DefaultCardSize)
	assert.Equal(t, 0, q.RelancesUsed)

	h.m.reset()
	h.send(t, f.conns[f.nonLeaders()[0]], types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	assert.Equal(t, 1, h.m.count(types.EvtError), "non-leader cannot draw")
	assert.Equal(t, 0, h.m.count(types.EvtQuestionsReceived))
}

func TestSubmitAnswer_MustBeOwnAnswer(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)
	h.send(t, f.conns[f.leader], types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	q := payloadOf[types.QuestionsReceivedPayload](t, h.m, types.EvtQuestionsReceived)
	h.send(t, f.conns[f.leader], types.EvtSelectQuestion, types.SelectQuestionPayload{LobbyCode: f.code, SelectedQuestion: q.Questions[0]})

	others := f.nonLeaders()
	h.m.reset()
	h.send(t, f.conns[others[0]], types.EvtSubmitAnswer, types.SubmitAnswerPayload{
		LobbyCode: f.code, PlayerID: others[1], Answer: "impersonation",
	})
	assert.Equal(t, 1, h.m.count(types.EvtError))
	assert.Equal(t, 0, h.m.count(types.EvtPlayerAnswered))
}

func TestFullRound_AnswersGuessesRevealAdvance(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)

	answers := h.roundToGuessing(t, f).Answers
	others := f.nonLeaders()
	require.Len(t, answers, len(others))
	for _, a := range answers {
		assert.Empty(t, a.PlayerID, "authors stay hidden while guessing")
		assert.NotContains(t, a.Text, game.NoResponsePrefix)
	}
	assert.Equal(t, 1, h.m.count(types.EvtAllAnswers))

	lc := f.conns[f.leader]

	// provisional guess, visible to the whole lobby
	pid := others[0]
	h.send(t, lc, types.EvtUpdateGuess, types.UpdateGuessPayload{LobbyCode: f.code, AnswerID: answers[0].ID, PlayerID: &pid})
	gu := payloadOf[types.GuessUpdatedPayload](t, h.m, types.EvtGuessUpdated)
	assert.Equal(t, answers[0].ID, gu.AnswerID)

	guesses := make(map[string]*string, len(answers))
	for i, a := range answers {
		id := others[i]
		guesses[a.ID] = &id
	}
	h.send(t, lc, types.EvtSubmitGuesses, types.SubmitGuessesPayload{LobbyCode: f.code, Guesses: guesses})

	results := payloadOf[types.RevealResultsPayload](t, h.m, types.EvtRevealResults)
	require.Len(t, results.Answers, len(answers))
	correct := 0
	for _, a := range results.Answers {
		require.NotNil(t, a.GuessedPlayerID)
		require.NotNil(t, a.Correct)
		assert.Equal(t, *a.GuessedPlayerID == a.PlayerID, *a.Correct)
		if *a.Correct {
			correct++
		}
	}
	assert.Equal(t, correct, results.Scores[f.leader], "the leader earns the round's points")

	// advancing before every answer is revealed is refused
	h.m.reset()
	h.send(t, lc, types.EvtRevealNextAnswer, types.RevealNextAnswerPayload{LobbyCode: f.code, AnswerIndex: len(answers)})
	assert.Equal(t, 1, h.m.count(types.EvtError))
	assert.Equal(t, 0, h.m.count(types.EvtRoundStarted))

	for i := range answers {
		h.send(t, lc, types.EvtRevealNextAnswer, types.RevealNextAnswerPayload{LobbyCode: f.code, AnswerIndex: i})
	}
	assert.Equal(t, len(answers), h.m.count(types.EvtAnswerRevealed))

	h.send(t, lc, types.EvtRevealNextAnswer, types.RevealNextAnswerPayload{LobbyCode: f.code, AnswerIndex: len(answers)})
	rs := payloadOf[types.RoundStartedPayload](t, h.m, types.EvtRoundStarted)
	assert.Equal(t, 2, rs.RoundNumber)
	assert.NotEqual(t, f.leader, rs.LeaderID)
}

func TestRequestQuestions_RepeatDrawsConsumeRelances(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)
	lc := f.conns[f.leader]

	// flagless re-draws still burn the relance budget
	for i := 0; i <= game.MaxRelances; i++ {
		h.send(t, lc, types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	}
	q := payloadOf[types.QuestionsReceivedPayload](t, h.m, types.EvtQuestionsReceived)
	assert.Equal(t, game.MaxRelances, q.RelancesUsed)
	assert.Equal(t, 0, h.m.count(types.EvtError))

	h.m.reset()
	h.send(t, lc, types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	assert.Equal(t, 1, h.m.count(types.EvtError))
	assert.Equal(t, 0, h.m.count(types.EvtQuestionsReceived))
}

// selectAndAnswerOne puts the round in ANSWERING with exactly one of the two
// non-leaders answered.
func (h *harness) selectAndAnswerOne(t *testing.T, f *fixture) {
	t.Helper()
	lc := f.conns[f.leader]
	h.send(t, lc, types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	q := payloadOf[types.QuestionsReceivedPayload](t, h.m, types.EvtQuestionsReceived)
	h.send(t, lc, types.EvtSelectQuestion, types.SelectQuestionPayload{LobbyCode: f.code, SelectedQuestion: q.Questions[0]})
	first := f.nonLeaders()[0]
	h.send(t, f.conns[first], types.EvtSubmitAnswer, types.SubmitAnswerPayload{
		LobbyCode: f.code, PlayerID: first, Answer: "in time",
	})
}

func TestLeaveDuringAnswering_CompletesAnswerSet(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)
	h.selectAndAnswerOne(t, f)

	// the only unanswered player leaves; nothing is outstanding anymore
	last := f.nonLeaders()[1]
	h.send(t, f.conns[last], types.EvtLeaveLobby, types.LeaveLobbyPayload{LobbyCode: f.code, PlayerID: last})

	assert.Equal(t, 1, h.m.count(types.EvtAllAnswers))
	shuffled := payloadOf[types.ShuffledAnswersPayload](t, h.m, types.EvtShuffledAnswers)
	require.Len(t, shuffled.Answers, 1)
	assert.Equal(t, "in time", shuffled.Answers[0].Text)
}

func TestKickDuringAnswering_CompletesAnswerSet(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)
	h.selectAndAnswerOne(t, f)

	last := f.nonLeaders()[1]
	h.send(t, f.conns[f.ids[0]], types.EvtKickPlayer, types.KickPlayerPayload{LobbyCode: f.code, PlayerID: last})

	assert.Equal(t, 1, h.m.count(types.EvtShuffledAnswers))
}

func TestInactiveDuringAnswering_CompletesAnswerSet(t *testing.T) {
	h := newHarness(t, resilience.Delays{
		DisconnectGrace: time.Hour,
		InactiveAfter:   20 * time.Millisecond,
		LeaderSkip:      time.Hour,
		KickBlock:       time.Hour,
	})
	f := h.startedGame(t)
	h.selectAndAnswerOne(t, f)

	h.c.Disconnected(f.conns[f.nonLeaders()[1]])

	assert.Eventually(t, func() bool {
		return h.m.count(types.EvtShuffledAnswers) == 1
	}, time.Second, 10*time.Millisecond, "inactivity completes the answer set")
}

func TestTimerExpired_SelectionAutoPicks(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)

	h.send(t, f.conns[f.leader], types.EvtTimerExpired, types.TimerExpiredPayload{LobbyCode: f.code})
	sel := payloadOf[types.QuestionSelectedPayload](t, h.m, types.EvtQuestionSelected)
	assert.NotEmpty(t, sel.Question, "a question is drawn and picked for an idle leader")
}

func TestTimerExpired_FillsSentinelAnswers(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)
	lc := f.conns[f.leader]

	h.send(t, lc, types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	q := payloadOf[types.QuestionsReceivedPayload](t, h.m, types.EvtQuestionsReceived)
	h.send(t, lc, types.EvtSelectQuestion, types.SelectQuestionPayload{LobbyCode: f.code, SelectedQuestion: q.Questions[0]})

	others := f.nonLeaders()
	h.send(t, f.conns[others[0]], types.EvtSubmitAnswer, types.SubmitAnswerPayload{
		LobbyCode: f.code, PlayerID: others[0], Answer: "only answer",
	})

	h.send(t, lc, types.EvtTimerExpired, types.TimerExpiredPayload{LobbyCode: f.code})
	shuffled := payloadOf[types.ShuffledAnswersPayload](t, h.m, types.EvtShuffledAnswers)
	require.Len(t, shuffled.Answers, len(others), "every non-leader is represented")

	sentinels := 0
	for _, a := range shuffled.Answers {
		if a.Text == game.NoResponseText {
			sentinels++
		}
	}
	assert.Equal(t, 1, sentinels)
}

func TestTimerExpired_DuplicatesAreSilent(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)
	h.roundToGuessing(t, f)
	lc := f.conns[f.leader]

	h.send(t, lc, types.EvtTimerExpired, types.TimerExpiredPayload{LobbyCode: f.code})
	assert.Equal(t, 1, h.m.count(types.EvtRevealResults), "guessing expiry finalizes provisional guesses")

	h.m.reset()
	h.send(t, lc, types.EvtTimerExpired, types.TimerExpiredPayload{LobbyCode: f.code})
	h.send(t, lc, types.EvtTimerExpired, types.TimerExpiredPayload{LobbyCode: f.code})
	assert.Equal(t, 0, h.m.count(types.EvtRevealResults))
	assert.Equal(t, 0, h.m.count(types.EvtError), "duplicates no-op instead of failing")
}

func TestStartTimer_BroadcastsState(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)
	lc := f.conns[f.leader]

	h.send(t, lc, types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	q := payloadOf[types.QuestionsReceivedPayload](t, h.m, types.EvtQuestionsReceived)
	h.send(t, lc, types.EvtSelectQuestion, types.SelectQuestionPayload{LobbyCode: f.code, SelectedQuestion: q.Questions[0]})

	h.send(t, lc, types.EvtStartTimer, types.StartTimerPayload{LobbyCode: f.code})
	ts := payloadOf[types.TimerStatePayload](t, h.m, types.EvtTimerStarted)
	assert.Equal(t, string(game.PhaseAnswering), ts.Phase)
	assert.Equal(t, 60, ts.Duration)
	assert.LessOrEqual(t, ts.Remaining, 60)
}

func TestGetGameState_SnapshotWithoutPlayerID(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)

	h.send(t, "observer", types.EvtGetGameState, types.GetGameStatePayload{LobbyCode: f.code})
	rec, ok := h.m.last(types.EvtLobbyInfo)
	require.True(t, ok)
	assert.Equal(t, "observer", rec.target)

	info := rec.payload.(types.LobbyInfoPayload)
	assert.Len(t, info.Players, 3)
	require.NotNil(t, info.Game)
	assert.Equal(t, string(game.StatusInProgress), info.Game.Status)
	assert.Equal(t, f.leader, info.Game.LeaderID)
	assert.Empty(t, info.Game.Questions, "card questions are leader-private")
}

func TestReconnect_RestoresSeatWithinGrace(t *testing.T) {
	h := newHarness(t, resilience.Delays{
		DisconnectGrace: 300 * time.Millisecond,
		InactiveAfter:   40 * time.Millisecond,
		LeaderSkip:      300 * time.Millisecond,
		KickBlock:       time.Hour,
	})
	f := h.startedGame(t)
	lc := f.conns[f.leader]

	h.send(t, lc, types.EvtRequestQuestions, types.RequestQuestionsPayload{LobbyCode: f.code})
	q := payloadOf[types.QuestionsReceivedPayload](t, h.m, types.EvtQuestionsReceived)

	h.c.Disconnected(lc)
	h.m.reset()

	newConn := "conn-leader-reborn"
	h.send(t, newConn, types.EvtGetGameState, types.GetGameStatePayload{LobbyCode: f.code, PlayerID: f.leader})

	rec, ok := h.m.last(types.EvtLobbyInfo)
	require.True(t, ok)
	assert.Equal(t, newConn, rec.target)
	info := rec.payload.(types.LobbyInfoPayload)
	require.NotNil(t, info.Game)
	assert.Equal(t, f.leader, info.Game.LeaderID)
	assert.NotEmpty(t, info.Game.Questions, "the returning leader gets their card back")

	// well past the inactive delay; the canceled timer must not fire
	time.Sleep(100 * time.Millisecond)
	roster := payloadOf[types.RosterUpdatedPayload](t, h.m, types.EvtRosterUpdated)
	for _, p := range roster.Players {
		assert.True(t, p.IsActive, "player %s should still be active", p.Name)
	}
	assert.Equal(t, 0, h.m.count(types.EvtRoundStarted), "the round was not skipped")

	// the new connection now acts as the leader
	h.send(t, newConn, types.EvtSelectQuestion, types.SelectQuestionPayload{LobbyCode: f.code, SelectedQuestion: q.Questions[0]})
	assert.Equal(t, 1, h.m.count(types.EvtQuestionSelected))
	assert.Equal(t, 0, h.m.count(types.EvtError))
}

func TestLeaderLoss_SkipsRoundAfterDelay(t *testing.T) {
	h := newHarness(t, resilience.Delays{
		DisconnectGrace: 90 * time.Millisecond,
		InactiveAfter:   20 * time.Millisecond,
		LeaderSkip:      40 * time.Millisecond,
		KickBlock:       time.Hour,
	})
	f := h.startedGame(t)

	h.m.reset()
	h.c.Disconnected(f.conns[f.leader])

	assert.Eventually(t, func() bool {
		rec, ok := h.m.last(types.EvtRoundStarted)
		return ok && rec.payload.(types.RoundStartedPayload).RoundNumber == 2
	}, time.Second, 10*time.Millisecond, "round skips once the leader stays away")

	rs := payloadOf[types.RoundStartedPayload](t, h.m, types.EvtRoundStarted)
	assert.Equal(t, f.ids[2], rs.LeaderID, "next eligible roster member leads round 2")

	assert.Eventually(t, func() bool {
		rec, ok := h.m.last(types.EvtRosterUpdated)
		return ok && len(rec.payload.(types.RosterUpdatedPayload).Players) == 2
	}, time.Second, 10*time.Millisecond, "grace expiry removes the lost player")
}

func TestKick_BansRejoin(t *testing.T) {
	h := newQuietHarness(t)
	f := h.freshLobby(t, "Host", "Bob")
	bob := f.ids[1]

	h.send(t, f.conns[f.ids[0]], types.EvtKickPlayer, types.KickPlayerPayload{LobbyCode: f.code, PlayerID: bob})

	rec, ok := h.m.last(types.EvtKicked)
	require.True(t, ok)
	assert.Equal(t, f.conns[bob], rec.target)

	roster := payloadOf[types.RosterUpdatedPayload](t, h.m, types.EvtRosterUpdated)
	assert.Len(t, roster.Players, 1)

	h.m.reset()
	h.send(t, "conn-Bob-2", types.EvtJoinLobby, types.JoinLobbyPayload{LobbyCode: f.code, PlayerName: "Bob"})
	assert.Equal(t, 1, h.m.count(types.EvtError))
	assert.Equal(t, 0, h.m.count(types.EvtJoinedLobby))
}

func TestLeave_LastPlayerClosesRoom(t *testing.T) {
	h := newQuietHarness(t)
	f := h.freshLobby(t, "Alice")

	h.send(t, f.conns[f.ids[0]], types.EvtLeaveLobby, types.LeaveLobbyPayload{LobbyCode: f.code, PlayerID: f.ids[0]})

	rec, ok := h.m.last("<close-room>")
	require.True(t, ok)
	assert.Equal(t, f.code, rec.target)

	h.m.reset()
	h.send(t, "c-late", types.EvtJoinLobby, types.JoinLobbyPayload{LobbyCode: f.code, PlayerName: "Late"})
	assert.Equal(t, 1, h.m.count(types.EvtError), "the lobby is gone")
}

func TestGameEnd_WhenNoEligibleLeaderRemains(t *testing.T) {
	h := newQuietHarness(t)
	f := h.startedGame(t)
	lc := f.conns[f.leader]

	answers := h.roundToGuessing(t, f).Answers
	guesses := make(map[string]*string, len(answers))
	for _, a := range answers {
		guesses[a.ID] = nil
	}
	h.send(t, lc, types.EvtSubmitGuesses, types.SubmitGuessesPayload{LobbyCode: f.code, Guesses: guesses})

	// every future leader leaves mid-reveal
	for _, id := range f.nonLeaders() {
		h.send(t, f.conns[id], types.EvtLeaveLobby, types.LeaveLobbyPayload{LobbyCode: f.code, PlayerID: id})
	}

	for i := range answers {
		h.send(t, lc, types.EvtRevealNextAnswer, types.RevealNextAnswerPayload{LobbyCode: f.code, AnswerIndex: i})
	}
	h.send(t, lc, types.EvtRevealNextAnswer, types.RevealNextAnswerPayload{LobbyCode: f.code, AnswerIndex: len(answers)})

	ended := payloadOf[types.GameEndedPayload](t, h.m, types.EvtGameEnded)
	assert.Len(t, ended.Leaderboard, 3, "the full roster stays on the final leaderboard")

	roster := payloadOf[types.RosterUpdatedPayload](t, h.m, types.EvtRosterUpdated)
	for _, p := range roster.Players {
		assert.False(t, p.IsActive, "players sit out until they explicitly return")
	}

	h.m.reset()
	h.send(t, lc, types.EvtGetGameResults, types.GetGameResultsPayload{LobbyCode: f.code})
	assert.Equal(t, 1, h.m.count(types.EvtGameEnded))
}

func TestDispatch_UnknownEvent(t *testing.T) {
	h := newQuietHarness(t)
	h.c.Dispatch("c1", types.Envelope{Event: "no-such-event"})
	assert.Equal(t, 1, h.m.count(types.EvtError))
}

func TestDispatch_MalformedPayload(t *testing.T) {
	h := newQuietHarness(t)
	h.c.Dispatch("c1", types.Envelope{Event: types.EvtCreateLobby, Data: json.RawMessage(`{"playerName":1}`)})
	assert.Equal(t, 1, h.m.count(types.EvtError))
}
