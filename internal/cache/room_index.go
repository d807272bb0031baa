package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"buzzroom/internal/model"
)

// RoomSummary is the lightweight lobby-listing view of a room.
type RoomSummary struct {
	RoomID       string           `json:"roomId"`
	Name         string           `json:"name"`
	Genre        string           `json:"genre"`
	Status       model.RoomStatus `json:"status"`
	Participants int              `json:"participants"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// RoomIndex tracks which rooms are open so the lobby can list them
// without scanning the document store, and so room code generation can
// check collisions cheaply.
type RoomIndex interface {
	Put(ctx context.Context, summary *RoomSummary) error
	Get(ctx context.Context, roomID string) (*RoomSummary, error)
	Exists(ctx context.Context, roomID string) (bool, error)
	List(ctx context.Context) ([]*RoomSummary, error)
	Remove(ctx context.Context, roomID string) error
}

type roomIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomIndex creates a room index. Entries expire after 24h so rooms
// orphaned by a crash do not clutter the lobby forever.
func NewRoomIndex(client *redis.Client) RoomIndex {
	return &roomIndex{
		client: client,
		ttl:    24 * time.Hour,
	}
}

const roomIndexSet = "rooms:open"

func (c *roomIndex) key(roomID string) string {
	return fmt.Sprintf("room:%s:meta", roomID)
}

func (c *roomIndex) Put(ctx context.Context, summary *RoomSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.key(summary.RoomID), data, c.ttl)
	pipe.SAdd(ctx, roomIndexSet, summary.RoomID)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *roomIndex) Get(ctx context.Context, roomID string) (*RoomSummary, error) {
	data, err := c.client.Get(ctx, c.key(roomID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var summary RoomSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *roomIndex) Exists(ctx context.Context, roomID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(roomID)).Result()
	return n > 0, err
}

func (c *roomIndex) List(ctx context.Context) ([]*RoomSummary, error) {
	ids, err := c.client.SMembers(ctx, roomIndexSet).Result()
	if err != nil {
		return nil, err
	}
	summaries := make([]*RoomSummary, 0, len(ids))
	for _, id := range ids {
		summary, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if summary == nil {
			// Meta expired; drop the dangling member.
			c.client.SRem(ctx, roomIndexSet, id)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (c *roomIndex) Remove(ctx context.Context, roomID string) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, c.key(roomID))
	pipe.SRem(ctx, roomIndexSet, roomID)
	_, err := pipe.Exec(ctx)
	return err
}
