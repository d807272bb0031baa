package mongodb

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
)

// casRetries bounds the optimistic-merge loop. Contention on a single
// room is a handful of participants, so losing more often than this
// indicates something else is wrong.
const casRetries = 5

// RoomStore persists rooms with version-guarded replace semantics and
// fans committed snapshots out to in-process watchers. A multi-instance
// deployment would replace the fan-out with a change stream; the Watch
// contract stays the same.
type RoomStore struct {
	collection *mongo.Collection

	mu          sync.Mutex
	subscribers map[string]map[chan *model.Room]struct{}
}

// NewRoomStore creates a room store on the given client.
func NewRoomStore(client *mongo.Client) *RoomStore {
	return &RoomStore{
		collection:  client.Database(databaseName).Collection(roomsCollection),
		subscribers: make(map[string]map[chan *model.Room]struct{}),
	}
}

func (s *RoomStore) Insert(ctx context.Context, room *model.Room) error {
	room.Version = 1
	if _, err := s.collection.InsertOne(ctx, room); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (*model.Room, error) {
	var room model.Room
	err := s.collection.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if err != nil {
		return nil, mapError(err)
	}
	return &room, nil
}

func (s *RoomStore) Update(ctx context.Context, roomID string, mutate func(*model.Room) error) (*model.Room, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		room, err := s.Get(ctx, roomID)
		if err != nil {
			return nil, err
		}
		next := room.Clone()
		if err := mutate(next); err != nil {
			if errors.Is(err, repository.ErrNoChange) {
				return room, nil
			}
			return nil, err
		}
		next.Version = room.Version + 1
		res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": roomID, "version": room.Version}, next)
		if err != nil {
			return nil, mapError(err)
		}
		if res.MatchedCount == 0 {
			// Lost the race; re-read and try again.
			continue
		}
		s.notify(next)
		return next, nil
	}
	return nil, repository.ErrConflict
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": roomID})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *RoomStore) ListByStatus(ctx context.Context, status model.RoomStatus) ([]*model.Room, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var rooms []*model.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, mapError(err)
	}
	return rooms, nil
}

func (s *RoomStore) Watch(ctx context.Context, roomID string) (<-chan *model.Room, func(), error) {
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan *model.Room, 8)
	s.mu.Lock()
	if s.subscribers[roomID] == nil {
		s.subscribers[roomID] = make(map[chan *model.Room]struct{})
	}
	s.subscribers[roomID][ch] = struct{}{}
	s.mu.Unlock()
	ch <- room

	cancel := func() {
		s.mu.Lock()
		if subs, ok := s.subscribers[roomID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(s.subscribers, roomID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *RoomStore) notify(room *model.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers[room.ID] {
		snapshot := room.Clone()
		select {
		case ch <- snapshot:
		default:
			// Drop the oldest buffered snapshot so slow readers see the
			// latest state rather than blocking writers.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
