package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzroom/internal/config"
	"buzzroom/internal/model"
	"buzzroom/internal/repository"
	"buzzroom/internal/repository/memory"
	"buzzroom/pkg/logger"
)

type harness struct {
	rooms    *memory.RoomStore
	answers  *memory.AnswerLog
	profiles *memory.ProfileStore
	source   *memory.QuestionSource
	buzz     *BuzzService
	game     *GameService
	settle   *SettlementService
	roomSvc  *RoomService
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		MaxQuestions:    10,
		QuestionTimeout: "400ms",
		AnswerTimeout:   "80ms",
		AdvanceDelay:    "40ms",
		TeardownDelay:   "40ms",
		StaleThreshold:  "8m",
	}
}

func newHarness(t *testing.T, questions ...*model.Question) *harness {
	t.Helper()
	h := &harness{
		rooms:    memory.NewRoomStore(),
		answers:  memory.NewAnswerLog(),
		profiles: memory.NewProfileStore(),
		source:   memory.NewQuestionSource(questions...),
	}
	log := logger.Discard()
	cfg := testGameConfig()
	h.settle = NewSettlementService(h.rooms, h.answers, h.profiles, nil, nil, cfg, log)
	h.buzz = NewBuzzService(h.rooms, h.answers, log)
	h.game = NewGameService(h.rooms, h.answers, h.source, h.buzz, h.settle, nil, cfg, log)
	auth := NewAuthService("test-secret", time.Hour)
	h.roomSvc = NewRoomService(h.rooms, h.answers, h.profiles, h.source, nil, auth, cfg, log)
	return h
}

// inputQuestions builds n free-text questions in history/u1 answered by
// "ans<i>".
func inputQuestions(n int) []*model.Question {
	out := make([]*model.Question, n)
	for i := range out {
		out[i] = &model.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Genre:         "history",
			UnitID:        "u1",
			Kind:          model.QuestionKindInput,
			Text:          fmt.Sprintf("question %d", i+1),
			CorrectAnswer: fmt.Sprintf("ans%d", i+1),
		}
	}
	return out
}

// seedRoom inserts a waiting room directly; the first participant is the
// leader.
func (h *harness) seedRoom(t *testing.T, quizIDs []string, participantIDs ...string) *model.Room {
	t.Helper()
	room := &model.Room{
		ID:           "ROOM01",
		Name:         "test room",
		Genre:        "history",
		UnitID:       "u1",
		LeaderID:     participantIDs[0],
		Participants: make(map[string]*model.ParticipantState),
		QuizIDs:      quizIDs,
		Status:       model.RoomStatusWaiting,
		CreatedAt:    time.Now(),
	}
	for _, pid := range participantIDs {
		room.Participants[pid] = &model.ParticipantState{DisplayName: pid}
	}
	require.NoError(t, h.rooms.Insert(context.Background(), room))
	return room
}

func (h *harness) room(t *testing.T, roomID string) *model.Room {
	t.Helper()
	room, err := h.rooms.Get(context.Background(), roomID)
	require.NoError(t, err)
	return room
}

func TestStartTransitionsRoom(t *testing.T) {
	qs := inputQuestions(2)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "bob")
	require.ErrorIs(t, err, ErrNotLeader)

	room, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusInProgress, room.Status)
	assert.Equal(t, 0, room.CurrentQuizIndex)
	assert.Equal(t, "q1", room.CurrentState.QuizID)
	assert.Equal(t, model.AnswerStatusWaitingForBuzz, room.CurrentState.AnswerStatus)
	assert.False(t, room.CurrentState.IsRevealed)
}

func TestDuplicateStartIsNoop(t *testing.T) {
	qs := inputQuestions(2)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2"}, "alice")
	ctx := context.Background()

	first, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	again, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.CurrentQuizIndex, again.CurrentQuizIndex)
	assert.Equal(t, model.RoomStatusInProgress, again.Status)
}

func TestSubmitCorrectScoresAndAdvances(t *testing.T) {
	qs := inputQuestions(2)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "bob", "q1"))

	room := h.room(t, "ROOM01")
	require.Equal(t, "bob", room.CurrentState.CurrentAnswerer)
	require.Equal(t, model.AnswerStatusAnswering, room.CurrentState.AnswerStatus)

	room, correct, err := h.game.SubmitAnswer(ctx, "ROOM01", "bob", "q1", "ans1")
	require.NoError(t, err)
	assert.True(t, correct)
	assert.Equal(t, model.AnswerStatusCorrect, room.CurrentState.AnswerStatus)
	assert.True(t, room.CurrentState.IsRevealed)
	assert.Empty(t, room.CurrentState.CurrentAnswerer)
	assert.Equal(t, 10, room.Participants["bob"].Score)

	require.Eventually(t, func() bool {
		return h.room(t, "ROOM01").CurrentQuizIndex == 1
	}, time.Second, 10*time.Millisecond, "room should advance after the reveal delay")
	assert.Equal(t, model.AnswerStatusWaitingForBuzz, h.room(t, "ROOM01").CurrentState.AnswerStatus)
}

func TestSubmitFromNonHolderRejected(t *testing.T) {
	qs := inputQuestions(1)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "bob", "q1"))

	_, _, err = h.game.SubmitAnswer(ctx, "ROOM01", "alice", "q1", "ans1")
	require.ErrorIs(t, err, ErrNotCurrentAnswerer)
}

func TestRaceThenMiss(t *testing.T) {
	qs := inputQuestions(1)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	done := make(chan struct{})
	for _, pid := range []string{"alice", "bob"} {
		go func(pid string) {
			defer func() { done <- struct{}{} }()
			// Losing the race surfaces as unavailable, not an error.
			_ = h.buzz.RegisterBuzz(ctx, "ROOM01", pid, "q1")
		}(pid)
	}
	<-done
	<-done

	room := h.room(t, "ROOM01")
	winner := room.CurrentState.CurrentAnswerer
	require.NotEmpty(t, winner)
	loser := "alice"
	if winner == "alice" {
		loser = "bob"
	}

	room, correct, err := h.game.SubmitAnswer(ctx, "ROOM01", winner, "q1", "wrong")
	require.NoError(t, err)
	assert.False(t, correct)
	assert.Equal(t, model.AnswerStatusWaitingForBuzz, room.CurrentState.AnswerStatus)
	assert.Empty(t, room.CurrentState.CurrentAnswerer)
	assert.Equal(t, 1, room.Participants[winner].MissCount)
	assert.Contains(t, room.Participants[winner].WrongQuizIDs, "q1")

	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", loser, "q1"))
	room = h.room(t, "ROOM01")
	require.Equal(t, loser, room.CurrentState.CurrentAnswerer)

	room, correct, err = h.game.SubmitAnswer(ctx, "ROOM01", loser, "q1", "ans1")
	require.NoError(t, err)
	assert.True(t, correct)
	assert.Equal(t, 10, room.Participants[loser].Score)
	assert.Equal(t, 0, room.Participants[winner].Score)
}

func TestAllIncorrectConvergence(t *testing.T) {
	qs := inputQuestions(2)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "alice", "q1"))
	room, correct, err := h.game.SubmitAnswer(ctx, "ROOM01", "alice", "q1", "nope")
	require.NoError(t, err)
	require.False(t, correct)
	require.Equal(t, model.AnswerStatusWaitingForBuzz, room.CurrentState.AnswerStatus)

	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "bob", "q1"))
	room, correct, err = h.game.SubmitAnswer(ctx, "ROOM01", "bob", "q1", "also nope")
	require.NoError(t, err)
	require.False(t, correct)
	assert.Equal(t, model.AnswerStatusAllAnswered, room.CurrentState.AnswerStatus)
	assert.True(t, room.CurrentState.IsRevealed)

	require.Eventually(t, func() bool {
		return h.room(t, "ROOM01").CurrentQuizIndex == 1
	}, time.Second, 10*time.Millisecond)
}

func TestQuestionTimeoutAdvances(t *testing.T) {
	qs := inputQuestions(2)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2"}, "alice")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	// Nobody buzzes; the question times out, reveals, and advances.
	require.Eventually(t, func() bool {
		return h.room(t, "ROOM01").CurrentQuizIndex == 1
	}, time.Second, 10*time.Millisecond)
	room := h.room(t, "ROOM01")
	assert.Equal(t, model.RoomStatusInProgress, room.Status)
	assert.Equal(t, model.AnswerStatusWaitingForBuzz, room.CurrentState.AnswerStatus)
}

func TestAnswerTimeoutRevokesGrant(t *testing.T) {
	qs := inputQuestions(1)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "bob", "q1"))
	require.Equal(t, "bob", h.room(t, "ROOM01").CurrentState.CurrentAnswerer)

	// Holder never submits; the grant is revoked, not counted as a miss.
	require.Eventually(t, func() bool {
		room := h.room(t, "ROOM01")
		return room.CurrentState.CurrentAnswerer == "" &&
			room.CurrentState.AnswerStatus == model.AnswerStatusWaitingForBuzz
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.room(t, "ROOM01").Participants["bob"].MissCount)

	// The question is open again.
	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "alice", "q1"))
	assert.Equal(t, "alice", h.room(t, "ROOM01").CurrentState.CurrentAnswerer)
}

func TestCompletionSettlesAndTearsDown(t *testing.T) {
	qs := inputQuestions(2)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2"}, "alice")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	for i, quizID := range []string{"q1", "q2"} {
		require.Eventually(t, func() bool {
			room := h.room(t, "ROOM01")
			return room.CurrentQuizIndex == i &&
				room.CurrentState.AnswerStatus == model.AnswerStatusWaitingForBuzz
		}, time.Second, 10*time.Millisecond)
		require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "alice", quizID))
		_, correct, err := h.game.SubmitAnswer(ctx, "ROOM01", "alice", quizID, fmt.Sprintf("ans%d", i+1))
		require.NoError(t, err)
		require.True(t, correct)
	}

	// Advance past the last question completes and eventually deletes.
	require.Eventually(t, func() bool {
		_, err := h.rooms.Get(ctx, "ROOM01")
		return errors.Is(err, repository.ErrNotFound)
	}, 2*time.Second, 10*time.Millisecond)

	profile, err := h.profiles.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, profile)
	// (2*10 + 50) * 0.1 solo multiplier.
	assert.Equal(t, 7, profile.Experience)
	assert.Equal(t, 2, profile.AnsweredByGenre["history"])
	assert.Empty(t, profile.CurrentRoomID)
}

func TestAuthorityDeniedAdvanceForcesCompletion(t *testing.T) {
	qs := inputQuestions(3)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2", "q3"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	// Index increments are rejected as if the leader session went stale;
	// completion writes still pass.
	h.rooms.SetDenyFunc(func(prev, next *model.Room) error {
		if next.CurrentQuizIndex != prev.CurrentQuizIndex {
			return repository.ErrAuthorityDenied
		}
		return nil
	})

	_, err = h.game.Advance(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		room, err := h.rooms.Get(ctx, "ROOM01")
		if errors.Is(err, repository.ErrNotFound) {
			return true
		}
		return err == nil && room.Status == model.RoomStatusCompleted
	}, time.Second, 10*time.Millisecond, "room must not wedge on authority-denied")
}

func TestMonotonicIndexUnderStaleAdvance(t *testing.T) {
	qs := inputQuestions(3)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2", "q3"}, "alice")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	// A timer armed for index 0 firing after the room reached index 1
	// must be a no-op.
	_, err = h.game.advance(ctx, "ROOM01", 0)
	require.NoError(t, err)
	require.Equal(t, 1, h.room(t, "ROOM01").CurrentQuizIndex)

	_, err = h.game.advance(ctx, "ROOM01", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.room(t, "ROOM01").CurrentQuizIndex)
}

func TestUnresolvableContentJudgedIncorrect(t *testing.T) {
	// Room references a question the source cannot resolve; submissions
	// are judged against the placeholder and are never correct.
	h := newHarness(t)
	h.seedRoom(t, []string{"ghost"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "alice", "ghost"))

	_, correct, err := h.game.SubmitAnswer(ctx, "ROOM01", "alice", "ghost", "anything")
	require.NoError(t, err)
	assert.False(t, correct)
}
