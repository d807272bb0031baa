package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
)

func seedCompletedRoom(t *testing.T, h *harness, scores map[string]int) *model.Room {
	t.Helper()
	room := &model.Room{
		ID:           "DONE01",
		Name:         "finished",
		Genre:        "history",
		UnitID:       "u1",
		Participants: make(map[string]*model.ParticipantState),
		QuizIDs:      []string{"q1", "q2", "q3"},
		Status:       model.RoomStatusCompleted,
		CreatedAt:    time.Now(),
	}
	for pid, score := range scores {
		if room.LeaderID == "" {
			room.LeaderID = pid
		}
		room.Participants[pid] = &model.ParticipantState{DisplayName: pid, Score: score}
	}
	require.NoError(t, h.rooms.Insert(context.Background(), room))
	return room
}

func TestSettleAwardsExperience(t *testing.T) {
	h := newHarness(t)
	seedCompletedRoom(t, h, map[string]int{"alice": 20, "bob": 10})
	ctx := context.Background()

	results, err := h.settle.Settle(ctx, "DONE01")
	require.NoError(t, err)
	require.Len(t, results, 2)

	alice, err := h.profiles.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, 70, alice.Experience, "score 20 + session bonus 50")
	assert.Equal(t, 3, alice.AnsweredByGenre["history"])

	bob, err := h.profiles.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 60, bob.Experience)
}

func TestSettleIdempotent(t *testing.T) {
	h := newHarness(t)
	seedCompletedRoom(t, h, map[string]int{"alice": 20})
	ctx := context.Background()

	_, err := h.settle.Settle(ctx, "DONE01")
	require.NoError(t, err)
	again, err := h.settle.Settle(ctx, "DONE01")
	require.NoError(t, err)
	assert.Empty(t, again, "second settlement is a no-op")

	alice, err := h.profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 7, alice.Experience, "(20+50)*0.1 awarded exactly once")
	assert.True(t, h.room(t, "DONE01").StatsUpdated)
}

func TestSettleSoloMultiplier(t *testing.T) {
	h := newHarness(t)
	seedCompletedRoom(t, h, map[string]int{"alice": 30})
	ctx := context.Background()

	results, err := h.settle.Settle(ctx, "DONE01")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 8, results[0].Experience, "(30+50)*0.1")
}

func TestSettleBestEffortPerParticipant(t *testing.T) {
	h := newHarness(t)
	seedCompletedRoom(t, h, map[string]int{"alice": 20, "bob": 10})
	h.profiles.FailDeltaFor["bob"] = errors.New("profile write failed")
	ctx := context.Background()

	results, err := h.settle.Settle(ctx, "DONE01")
	require.NoError(t, err, "one participant's failure must not fail settlement")
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].ParticipantID)
	assert.True(t, h.room(t, "DONE01").StatsUpdated)
}

func TestTeardownRemovesRoomData(t *testing.T) {
	h := newHarness(t)
	room := seedCompletedRoom(t, h, map[string]int{"alice": 20, "bob": 10})
	ctx := context.Background()
	for pid := range room.Participants {
		require.NoError(t, h.profiles.SetCurrentRoom(ctx, pid, room.ID))
	}
	_, err := h.answers.Append(ctx, &model.SubmittedAnswer{
		RoomID: room.ID, QuizID: "q1", ParticipantID: "alice",
		ProcessingStatus: model.ProcessingProcessed,
	})
	require.NoError(t, err)

	require.NoError(t, h.settle.Teardown(ctx, room.ID))

	_, err = h.rooms.Get(ctx, room.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	answers, err := h.answers.ListByQuiz(ctx, room.ID, "q1")
	require.NoError(t, err)
	assert.Empty(t, answers)
	for pid := range room.Participants {
		profile, err := h.profiles.Get(ctx, pid)
		require.NoError(t, err)
		assert.Empty(t, profile.CurrentRoomID)
	}
}

func TestTeardownMissingRoomIsSuccess(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settle.Teardown(context.Background(), "NOSUCH"))
}

func TestTeardownAuthorityDeniedMarksInactive(t *testing.T) {
	h := newHarness(t)
	seedCompletedRoom(t, h, map[string]int{"alice": 20})
	h.rooms.SetDeleteDenyFunc(func(prev, next *model.Room) error {
		return repository.ErrAuthorityDenied
	})
	ctx := context.Background()

	require.NoError(t, h.settle.Teardown(ctx, "DONE01"))

	room := h.room(t, "DONE01")
	assert.True(t, room.Inactive, "undeletable room falls back to inactive")
}
