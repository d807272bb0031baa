// Package memory provides in-memory implementations of the repository
// contracts, used by unit tests and local single-process runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
)

// DenyFunc lets tests emulate store-side security rules. It sees the
// record before and after the mutation and may veto the commit, typically
// with repository.ErrAuthorityDenied.
type DenyFunc func(prev, next *model.Room) error

// RoomStore is a mutex-guarded RoomStore with change fan-out.
type RoomStore struct {
	mu          sync.RWMutex
	rooms       map[string]*model.Room
	subscribers map[string]map[chan *model.Room]struct{}
	deny        DenyFunc
	denyDelete  DenyFunc
}

// NewRoomStore creates an empty in-memory room store.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:       make(map[string]*model.Room),
		subscribers: make(map[string]map[chan *model.Room]struct{}),
	}
}

// SetDenyFunc installs a veto applied to every Update commit.
func (s *RoomStore) SetDenyFunc(fn DenyFunc) {
	s.mu.Lock()
	s.deny = fn
	s.mu.Unlock()
}

// SetDeleteDenyFunc installs a veto applied to Delete.
func (s *RoomStore) SetDeleteDenyFunc(fn DenyFunc) {
	s.mu.Lock()
	s.denyDelete = fn
	s.mu.Unlock()
}

func (s *RoomStore) Insert(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return repository.ErrConflict
	}
	room.Version = 1
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return room.Clone(), nil
}

func (s *RoomStore) Update(ctx context.Context, roomID string, mutate func(*model.Room) error) (*model.Room, error) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	next := room.Clone()
	if err := mutate(next); err != nil {
		prev := room.Clone()
		s.mu.Unlock()
		if errors.Is(err, repository.ErrNoChange) {
			return prev, nil
		}
		return nil, err
	}
	if s.deny != nil {
		if err := s.deny(room, next); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	next.Version = room.Version + 1
	s.rooms[roomID] = next
	snapshot := next.Clone()
	subs := s.subscribers[roomID]
	for ch := range subs {
		sendLatest(ch, snapshot)
	}
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.denyDelete != nil {
		if err := s.denyDelete(room, nil); err != nil {
			return err
		}
	}
	delete(s.rooms, roomID)
	return nil
}

func (s *RoomStore) ListByStatus(ctx context.Context, status model.RoomStatus) ([]*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Room
	for _, room := range s.rooms {
		if room.Status == status {
			out = append(out, room.Clone())
		}
	}
	return out, nil
}

func (s *RoomStore) Watch(ctx context.Context, roomID string) (<-chan *model.Room, func(), error) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, nil, repository.ErrNotFound
	}
	ch := make(chan *model.Room, 8)
	if s.subscribers[roomID] == nil {
		s.subscribers[roomID] = make(map[chan *model.Room]struct{})
	}
	s.subscribers[roomID][ch] = struct{}{}
	ch <- room.Clone()
	s.mu.Unlock()

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

// sendLatest delivers the snapshot without blocking; a slow subscriber
// loses stale intermediate states, never the latest one.
func sendLatest(ch chan *model.Room, snapshot *model.Room) {
	select {
	case ch <- snapshot:
	default:
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
