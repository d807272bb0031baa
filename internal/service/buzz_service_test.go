package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzroom/internal/model"
)

func TestConcurrentBuzzExclusivity(t *testing.T) {
	qs := inputQuestions(1)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1"}, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	participants := []string{"alice", "bob", "carol"}
	var wg sync.WaitGroup
	for round := 0; round < 10; round++ {
		for _, pid := range participants {
			wg.Add(1)
			go func(pid string) {
				defer wg.Done()
				_ = h.buzz.RegisterBuzz(ctx, "ROOM01", pid, "q1")
			}(pid)
		}
	}
	wg.Wait()

	room := h.room(t, "ROOM01")
	require.NotEmpty(t, room.CurrentState.CurrentAnswerer, "someone must hold the grant")
	assert.Equal(t, model.AnswerStatusAnswering, room.CurrentState.AnswerStatus)

	// Exactly the winner's stub stays pending; every other buzz is voided.
	pending, err := h.answers.PendingByQuiz(ctx, "ROOM01", "q1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, room.CurrentState.CurrentAnswerer, pending[0].ParticipantID)
}

func TestBuzzEarliestClickTimeWins(t *testing.T) {
	qs := inputQuestions(1)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	// Append both stubs before any resolution runs, then resolve once.
	for _, pid := range []string{"bob", "alice"} {
		_, err := h.answers.Append(ctx, &model.SubmittedAnswer{
			RoomID:           "ROOM01",
			QuizID:           "q1",
			ParticipantID:    pid,
			ProcessingStatus: model.ProcessingPending,
		})
		require.NoError(t, err)
	}
	require.NoError(t, h.buzz.Resolve(ctx, "ROOM01", "q1"))

	room := h.room(t, "ROOM01")
	assert.Equal(t, "bob", room.CurrentState.CurrentAnswerer, "earlier ClickTime wins")
}

func TestBuzzRejectedOutsideWindow(t *testing.T) {
	qs := inputQuestions(2)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1", "q2"}, "alice", "bob")
	ctx := context.Background()

	err := h.buzz.RegisterBuzz(ctx, "ROOM01", "bob", "q1")
	require.ErrorIs(t, err, ErrBuzzUnavailable, "waiting room is not buzzable")

	_, err = h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	err = h.buzz.RegisterBuzz(ctx, "ROOM01", "bob", "q2")
	require.ErrorIs(t, err, ErrBuzzUnavailable, "only the current question accepts buzzes")

	err = h.buzz.RegisterBuzz(ctx, "ROOM01", "mallory", "q1")
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestBuzzAfterGrantIsUnavailable(t *testing.T) {
	qs := inputQuestions(1)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "alice", "q1"))

	err = h.buzz.RegisterBuzz(ctx, "ROOM01", "bob", "q1")
	require.ErrorIs(t, err, ErrBuzzUnavailable)
}

func TestBuzzFromMissedParticipantRejected(t *testing.T) {
	qs := inputQuestions(1)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)
	require.NoError(t, h.buzz.RegisterBuzz(ctx, "ROOM01", "alice", "q1"))
	_, correct, err := h.game.SubmitAnswer(ctx, "ROOM01", "alice", "q1", "wrong")
	require.NoError(t, err)
	require.False(t, correct)

	err = h.buzz.RegisterBuzz(ctx, "ROOM01", "alice", "q1")
	require.ErrorIs(t, err, ErrBuzzUnavailable, "a missed participant cannot rebuzz the same question")
}

func TestResolveSkipsIneligiblePending(t *testing.T) {
	qs := inputQuestions(1)
	h := newHarness(t, qs...)
	h.seedRoom(t, []string{"q1"}, "alice", "bob")
	ctx := context.Background()

	_, err := h.game.Start(ctx, "ROOM01", "alice")
	require.NoError(t, err)

	// A stub from someone who already left must never win.
	_, err = h.answers.Append(ctx, &model.SubmittedAnswer{
		RoomID:           "ROOM01",
		QuizID:           "q1",
		ParticipantID:    "departed",
		ProcessingStatus: model.ProcessingPending,
	})
	require.NoError(t, err)
	_, err = h.answers.Append(ctx, &model.SubmittedAnswer{
		RoomID:           "ROOM01",
		QuizID:           "q1",
		ParticipantID:    "bob",
		ProcessingStatus: model.ProcessingPending,
	})
	require.NoError(t, err)

	require.NoError(t, h.buzz.Resolve(ctx, "ROOM01", "q1"))
	assert.Equal(t, "bob", h.room(t, "ROOM01").CurrentState.CurrentAnswerer)
}
