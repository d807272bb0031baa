package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand"
	"time"

	"buzzroom/internal/cache"
	"buzzroom/internal/config"
	"buzzroom/internal/model"
	"buzzroom/internal/repository"
	"buzzroom/pkg/logger"
)

var (
	ErrRoomNotJoinable = errors.New("room is not accepting participants")
	ErrRoomCodeSpace   = errors.New("failed to generate unique room code")
)

// RoomService handles room lifecycle: creation with question sampling,
// join/leave membership, and stale-room sweeping.
type RoomService struct {
	rooms     repository.RoomStore
	answers   repository.AnswerLog
	profiles  repository.ProfileStore
	questions repository.QuestionSource
	roomIndex cache.RoomIndex
	authSvc   *AuthService
	game      config.GameConfig
	log       *logger.Logger
}

// NewRoomService creates a new room service.
func NewRoomService(
	rooms repository.RoomStore,
	answers repository.AnswerLog,
	profiles repository.ProfileStore,
	questions repository.QuestionSource,
	roomIndex cache.RoomIndex,
	authSvc *AuthService,
	game config.GameConfig,
	log *logger.Logger,
) *RoomService {
	return &RoomService{
		rooms:     rooms,
		answers:   answers,
		profiles:  profiles,
		questions: questions,
		roomIndex: roomIndex,
		authSvc:   authSvc,
		game:      game,
		log:       log,
	}
}

// Create builds a room around a sampled question set and makes the
// creator its leader and first participant.
func (s *RoomService) Create(ctx context.Context, leaderID, displayName, name, genre, unitID string) (*model.JoinResponse, error) {
	pool, err := s.questions.ListUnit(ctx, genre, unitID)
	if err != nil {
		return nil, fmt.Errorf("list content unit: %w", err)
	}
	quizIDs := sampleQuestions(pool, s.game.MaxQuestions)

	// A creator still referencing a dead room gets the stale pointer
	// cleared first, best-effort.
	if profile, err := s.profiles.Get(ctx, leaderID); err == nil && profile != nil && profile.CurrentRoomID != "" {
		if err := s.profiles.SetCurrentRoom(ctx, leaderID, ""); err != nil {
			s.log.WithUser(leaderID).WithError(err).Warn("clear stale room reference")
		}
	}

	code, err := s.generateRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	room := &model.Room{
		ID:       code,
		Name:     name,
		Genre:    genre,
		UnitID:   unitID,
		LeaderID: leaderID,
		Participants: map[string]*model.ParticipantState{
			leaderID: {DisplayName: displayName, Ready: true},
		},
		QuizIDs:   quizIDs,
		Status:    model.RoomStatusWaiting,
		CreatedAt: time.Now(),
	}
	if err := s.rooms.Insert(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	if err := s.profiles.SetCurrentRoom(ctx, leaderID, code); err != nil {
		s.log.WithRoom(code).WithUser(leaderID).WithError(err).Warn("set room reference")
	}
	s.indexRoom(ctx, room)

	token, err := s.authSvc.GenerateRoomToken(code, leaderID, true)
	if err != nil {
		return nil, fmt.Errorf("issue room token: %w", err)
	}
	s.log.WithRoom(code).WithUser(leaderID).WithField("questions", len(quizIDs)).Info("room created")
	return &model.JoinResponse{RoomID: code, UserID: leaderID, Token: token, Room: room}, nil
}

// Join adds a participant. Rejoining is an idempotent no-op returning
// the current room. Mid-game joins are rejected unless forced.
func (s *RoomService) Join(ctx context.Context, roomID, userID, displayName string, force bool) (*model.JoinResponse, error) {
	if err := s.checkStale(ctx, roomID); err != nil {
		return nil, err
	}

	rejoin := false
	room, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		rejoin = false
		if r.HasParticipant(userID) {
			rejoin = true
			return repository.ErrNoChange
		}
		if r.Status != model.RoomStatusWaiting && !force {
			return ErrRoomNotJoinable
		}
		r.Participants[userID] = &model.ParticipantState{DisplayName: displayName}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rejoin {
		if err := s.profiles.SetCurrentRoom(ctx, userID, roomID); err != nil {
			// Membership without a back-reference would strand the client;
			// roll the join back.
			if _, rerr := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
				if !r.HasParticipant(userID) {
					return repository.ErrNoChange
				}
				delete(r.Participants, userID)
				return nil
			}); rerr != nil {
				s.log.WithRoom(roomID).WithUser(userID).WithError(rerr).Error("join rollback")
			}
			return nil, fmt.Errorf("set room reference: %w", err)
		}
		s.indexRoom(ctx, room)
	}

	token, err := s.authSvc.GenerateRoomToken(roomID, userID, userID == room.LeaderID)
	if err != nil {
		return nil, fmt.Errorf("issue room token: %w", err)
	}
	return &model.JoinResponse{RoomID: roomID, UserID: userID, Token: token, Room: room}, nil
}

// Leave removes a participant. The leaver's own back-reference is
// cleared first, unconditionally, so a partial failure never leaves a
// client pointing at a room it no longer belongs to. A leaving leader
// disbands the room.
func (s *RoomService) Leave(ctx context.Context, roomID, userID string) error {
	if err := s.profiles.SetCurrentRoom(ctx, userID, ""); err != nil {
		s.log.WithRoom(roomID).WithUser(userID).WithError(err).Warn("clear room reference")
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	if room.LeaderID == userID {
		return s.disband(ctx, room)
	}

	updated, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		if !r.HasParticipant(userID) {
			return repository.ErrNoChange
		}
		delete(r.Participants, userID)
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	s.indexRoom(ctx, updated)
	return nil
}

// disband removes the whole room after the leader leaves.
func (s *RoomService) disband(ctx context.Context, room *model.Room) error {
	for pid := range room.Participants {
		if pid == room.LeaderID {
			continue
		}
		if err := s.profiles.SetCurrentRoom(ctx, pid, ""); err != nil {
			s.log.WithRoom(room.ID).WithField("user_id", pid).WithError(err).Warn("clear room reference")
		}
	}
	if err := s.answers.PurgeRoom(ctx, room.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.WithRoom(room.ID).WithError(err).Warn("purge answers")
	}
	if err := s.rooms.Delete(ctx, room.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case errors.Is(err, repository.ErrAuthorityDenied):
			if _, err := s.rooms.Update(ctx, room.ID, func(r *model.Room) error {
				if r.Inactive {
					return repository.ErrNoChange
				}
				r.Inactive = true
				return nil
			}); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("mark room inactive: %w", err)
			}
		default:
			return fmt.Errorf("delete room: %w", err)
		}
	}
	if s.roomIndex != nil {
		if err := s.roomIndex.Remove(ctx, room.ID); err != nil {
			s.log.WithRoom(room.ID).WithError(err).Warn("remove room from index")
		}
	}
	s.log.WithRoom(room.ID).Info("room disbanded")
	return nil
}

// Get returns the room, sweeping it first when it has gone stale.
func (s *RoomService) Get(ctx context.Context, roomID string) (*model.Room, error) {
	if err := s.checkStale(ctx, roomID); err != nil {
		return nil, err
	}
	return s.rooms.Get(ctx, roomID)
}

// List returns the open-room summaries for the lobby.
func (s *RoomService) List(ctx context.Context) ([]*cache.RoomSummary, error) {
	if s.roomIndex == nil {
		return nil, nil
	}
	return s.roomIndex.List(ctx)
}

// SweepStale deletes waiting rooms idle past the threshold. Returns the
// number of rooms removed.
func (s *RoomService) SweepStale(ctx context.Context) (int, error) {
	rooms, err := s.rooms.ListByStatus(ctx, model.RoomStatusWaiting)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-s.game.StaleThresholdDuration())
	swept := 0
	for _, room := range rooms {
		if room.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.disband(ctx, room); err != nil {
			s.log.WithRoom(room.ID).WithError(err).Warn("sweep stale room")
			continue
		}
		swept++
	}
	if swept > 0 {
		s.log.WithField("count", swept).Info("stale rooms swept")
	}
	return swept, nil
}

// RunSweeper sweeps on the interval until the context ends.
func (s *RoomService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepStale(ctx); err != nil {
				s.log.WithError(err).Warn("stale sweep")
			}
		}
	}
}

// checkStale opportunistically removes the room when a reader observes
// it idle past the threshold.
func (s *RoomService) checkStale(ctx context.Context, roomID string) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != model.RoomStatusWaiting {
		return nil
	}
	if time.Since(room.CreatedAt) < s.game.StaleThresholdDuration() {
		return nil
	}
	if err := s.disband(ctx, room); err != nil {
		return err
	}
	return repository.ErrNotFound
}

func (s *RoomService) indexRoom(ctx context.Context, room *model.Room) {
	if s.roomIndex == nil || room == nil {
		return
	}
	summary := &cache.RoomSummary{
		RoomID:       room.ID,
		Name:         room.Name,
		Genre:        room.Genre,
		Status:       room.Status,
		Participants: len(room.Participants),
		CreatedAt:    room.CreatedAt,
	}
	if err := s.roomIndex.Put(ctx, summary); err != nil {
		s.log.WithRoom(room.ID).WithError(err).Warn("index room")
	}
}

// sampleQuestions draws up to max ids without replacement. A pool within
// the cap is still returned shuffled so play order varies per room.
func sampleQuestions(pool []string, max int) []string {
	out := append([]string(nil), pool...)
	mrand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// generateRoomCode creates a 6-char alphanumeric code, retrying on the
// rare collision.
func (s *RoomService) generateRoomCode(ctx context.Context) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLen = 6

	for attempts := 0; attempts < 10; attempts++ {
		b := make([]byte, codeLen)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}

		code := make([]byte, codeLen)
		for i := range code {
			code[i] = chars[int(b[i])%len(chars)]
		}
		codeStr := string(code)

		if s.roomIndex != nil {
			exists, err := s.roomIndex.Exists(ctx, codeStr)
			if err != nil {
				return "", err
			}
			if exists {
				continue
			}
		}
		if _, err := s.rooms.Get(ctx, codeStr); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		return codeStr, nil
	}

	return "", ErrRoomCodeSpace
}
