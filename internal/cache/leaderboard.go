// Package cache holds the Redis-backed fast-path layers: the per-room
// leaderboard, the active room index, and the question read-through cache.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// LeaderboardCache handles Redis ZSET operations for the room leaderboard.
type LeaderboardCache interface {
	UpdateScore(ctx context.Context, roomID, participantID string, score int) error
	GetTop(ctx context.Context, roomID string, limit int) ([]LeaderboardEntry, error)
	GetRank(ctx context.Context, roomID, participantID string) (int64, error)
	Clear(ctx context.Context, roomID string) error
}

// LeaderboardEntry is a single ranked row.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
}

type leaderboardCache struct {
	client *redis.Client
}

// NewLeaderboardCache creates a leaderboard cache.
func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{client: client}
}

func (c *leaderboardCache) key(roomID string) string {
	return fmt.Sprintf("room:%s:lb", roomID)
}

func (c *leaderboardCache) UpdateScore(ctx context.Context, roomID, participantID string, score int) error {
	return c.client.ZAdd(ctx, c.key(roomID), redis.Z{
		Score:  float64(score),
		Member: participantID,
	}).Err()
}

func (c *leaderboardCache) GetTop(ctx context.Context, roomID string, limit int) ([]LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(results))
	for i, z := range results {
		entries[i] = LeaderboardEntry{
			ParticipantID: z.Member.(string),
			Score:         int(z.Score),
			Rank:          i + 1,
		}
	}
	return entries, nil
}

func (c *leaderboardCache) GetRank(ctx context.Context, roomID, participantID string) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, c.key(roomID), participantID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	return rank + 1, err // 1-indexed
}

func (c *leaderboardCache) Clear(ctx context.Context, roomID string) error {
	return c.client.Del(ctx, c.key(roomID)).Err()
}
