package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzroom/internal/model"
	"buzzroom/internal/repository/memory"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLeaderboardRanking(t *testing.T) {
	client := newTestClient(t)
	lb := NewLeaderboardCache(client)
	ctx := context.Background()

	require.NoError(t, lb.UpdateScore(ctx, "room1", "alice", 30))
	require.NoError(t, lb.UpdateScore(ctx, "room1", "bob", 50))
	require.NoError(t, lb.UpdateScore(ctx, "room1", "carol", 10))

	top, err := lb.GetTop(ctx, "room1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].ParticipantID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "alice", top[1].ParticipantID)

	rank, err := lb.GetRank(ctx, "room1", "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rank)

	rank, err = lb.GetRank(ctx, "room1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), rank)
}

func TestLeaderboardScoreOverwrite(t *testing.T) {
	client := newTestClient(t)
	lb := NewLeaderboardCache(client)
	ctx := context.Background()

	require.NoError(t, lb.UpdateScore(ctx, "room1", "alice", 10))
	require.NoError(t, lb.UpdateScore(ctx, "room1", "alice", 40))

	top, err := lb.GetTop(ctx, "room1", 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 40, top[0].Score)
}

func TestRoomIndexLifecycle(t *testing.T) {
	client := newTestClient(t)
	idx := NewRoomIndex(client)
	ctx := context.Background()

	exists, err := idx.Exists(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, exists)

	summary := &RoomSummary{
		RoomID:       "ABC123",
		Name:         "friday night",
		Genre:        "history",
		Status:       model.RoomStatusWaiting,
		Participants: 2,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, idx.Put(ctx, summary))

	exists, err = idx.Exists(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := idx.Get(ctx, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "friday night", got.Name)

	list, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, idx.Remove(ctx, "ABC123"))
	list, err = idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type countingSource struct {
	*memory.QuestionSource
	lookups int
}

func (s *countingSource) Lookup(ctx context.Context, genre, unitID, quizID string) (*model.Question, error) {
	s.lookups++
	return s.QuestionSource.Lookup(ctx, genre, unitID, quizID)
}

func TestQuestionCacheReadThrough(t *testing.T) {
	client := newTestClient(t)
	src := &countingSource{QuestionSource: memory.NewQuestionSource(&model.Question{
		ID:            "q1",
		Genre:         "history",
		UnitID:        "unit1",
		Kind:          model.QuestionKindMultipleChoice,
		Text:          "Year the Berlin Wall fell?",
		Choices:       []string{"1987", "1989", "1991"},
		CorrectAnswer: "1989",
	})}
	qc := NewQuestionCache(client, src, time.Minute)
	ctx := context.Background()

	q, err := qc.Lookup(ctx, "history", "unit1", "q1")
	require.NoError(t, err)
	assert.Equal(t, "1989", q.CorrectAnswer)
	assert.Equal(t, 1, src.lookups)

	// Second read is served from Redis.
	_, err = qc.Lookup(ctx, "history", "unit1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, src.lookups)
}

func TestQuestionCacheMissPropagates(t *testing.T) {
	client := newTestClient(t)
	src := &countingSource{QuestionSource: memory.NewQuestionSource()}
	qc := NewQuestionCache(client, src, time.Minute)

	_, err := qc.Lookup(context.Background(), "history", "unit1", "missing")
	require.Error(t, err)
}
