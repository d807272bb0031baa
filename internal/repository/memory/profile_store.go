package memory

import (
	"context"
	"sync"
	"time"

	"buzzroom/internal/model"
)

// ProfileStore keeps user profiles in memory. An injectable failure hook
// lets tests exercise best-effort settlement paths.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*model.UserProfile

	// FailDeltaFor makes ApplyDelta fail for the given user ids.
	FailDeltaFor map[string]error
}

// NewProfileStore creates an empty in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles:     make(map[string]*model.UserProfile),
		FailDeltaFor: make(map[string]error),
	}
}

func (s *ProfileStore) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.AnsweredByGenre = copyCounts(p.AnsweredByGenre)
	return &cp, nil
}

func (s *ProfileStore) ApplyDelta(ctx context.Context, userID string, delta model.ProfileDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.FailDeltaFor[userID]; ok {
		return err
	}
	p := s.ensureLocked(userID)
	p.Experience += delta.Experience
	for genre, n := range delta.AnsweredByGenre {
		if p.AnsweredByGenre == nil {
			p.AnsweredByGenre = make(map[string]int)
		}
		p.AnsweredByGenre[genre] += n
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (s *ProfileStore) SetCurrentRoom(ctx context.Context, userID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ensureLocked(userID)
	p.CurrentRoomID = roomID
	p.UpdatedAt = time.Now()
	return nil
}

func (s *ProfileStore) ensureLocked(userID string) *model.UserProfile {
	p, ok := s.profiles[userID]
	if !ok {
		p = &model.UserProfile{UserID: userID}
		s.profiles[userID] = p
	}
	return p
}

func copyCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
