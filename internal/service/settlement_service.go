package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buzzroom/internal/cache"
	"buzzroom/internal/config"
	"buzzroom/internal/model"
	"buzzroom/internal/repository"
	"buzzroom/pkg/logger"
)

// SettlementService converts a completed room into durable profile
// updates exactly once, then tears the ephemeral room data down after a
// grace period during which clients render the final standings.
type SettlementService struct {
	rooms     repository.RoomStore
	answers   repository.AnswerLog
	profiles  repository.ProfileStore
	roomIndex cache.RoomIndex
	board     cache.LeaderboardCache
	timers    *timerRegistry
	game      config.GameConfig
	log       *logger.Logger

	broadcaster Broadcaster
}

// SetBroadcaster wires the WebSocket hub so teardown can drop the dead
// room's connections. Optional.
func (s *SettlementService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// NewSettlementService creates a settlement service.
func NewSettlementService(
	rooms repository.RoomStore,
	answers repository.AnswerLog,
	profiles repository.ProfileStore,
	roomIndex cache.RoomIndex,
	board cache.LeaderboardCache,
	game config.GameConfig,
	log *logger.Logger,
) *SettlementService {
	return &SettlementService{
		rooms:     rooms,
		answers:   answers,
		profiles:  profiles,
		roomIndex: roomIndex,
		board:     board,
		timers:    newTimerRegistry(),
		game:      game,
		log:       log,
	}
}

// Settle awards experience for the room. The StatsUpdated flag is
// flipped inside the same atomic update that reads the final scores, so
// concurrent settle calls award at most once; losers see a no-op.
func (s *SettlementService) Settle(ctx context.Context, roomID string) ([]model.SettlementResult, error) {
	won := false
	var snapshot *model.Room
	_, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		won = false
		if r.StatsUpdated {
			return repository.ErrNoChange
		}
		r.StatsUpdated = true
		snapshot = r.Clone()
		won = true
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark stats updated: %w", err)
	}
	if !won {
		s.log.WithRoom(roomID).Debug("settlement already applied")
		return nil, nil
	}

	multiplier := 1.0
	if len(snapshot.Participants) == 1 {
		multiplier = s.game.SoloExperienceMultiplier()
	}

	results := make([]model.SettlementResult, 0, len(snapshot.Participants))
	for pid, p := range snapshot.Participants {
		exp := int(float64(p.Score+s.game.SessionBonusPoints()) * multiplier)
		delta := model.ProfileDelta{
			Experience:      exp,
			AnsweredByGenre: map[string]int{snapshot.Genre: len(snapshot.QuizIDs)},
		}
		// Best-effort per participant; one failed profile write must not
		// cost the others their award.
		if err := s.profiles.ApplyDelta(ctx, pid, delta); err != nil {
			s.log.WithRoom(roomID).WithField("user_id", pid).WithError(err).Error("apply settlement delta")
			continue
		}
		results = append(results, model.SettlementResult{
			ParticipantID: pid,
			Score:         p.Score,
			Experience:    exp,
		})
	}
	s.log.WithRoom(roomID).WithField("participants", len(results)).Info("settlement applied")
	return results, nil
}

// ScheduleTeardown arms the grace-period timer after which the room's
// ephemeral data is removed.
func (s *SettlementService) ScheduleTeardown(roomID string) {
	s.timers.arm(roomID, 0, timerTeardown, s.game.TeardownDelayDuration(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Teardown(ctx, roomID); err != nil {
			s.log.WithRoom(roomID).WithError(err).Error("teardown")
		}
	})
}

// Teardown clears participant back-references, purges the answer log,
// and deletes the room. Every step treats "already gone" as success; an
// authority-denied room delete falls back to marking the room inactive
// so it at least vanishes from listings.
func (s *SettlementService) Teardown(ctx context.Context, roomID string) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load room for teardown: %w", err)
	}

	for pid := range room.Participants {
		if err := s.profiles.SetCurrentRoom(ctx, pid, ""); err != nil {
			s.log.WithRoom(roomID).WithField("user_id", pid).WithError(err).Warn("clear room back-reference")
		}
	}

	if err := s.answers.PurgeRoom(ctx, roomID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.WithRoom(roomID).WithError(err).Warn("purge answers")
	}

	if err := s.rooms.Delete(ctx, roomID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Already gone.
		case errors.Is(err, repository.ErrAuthorityDenied):
			s.log.WithRoom(roomID).Warn("room delete denied, marking inactive")
			if _, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
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

	if s.board != nil {
		if err := s.board.Clear(ctx, roomID); err != nil {
			s.log.WithRoom(roomID).WithError(err).Warn("clear leaderboard")
		}
	}
	if s.roomIndex != nil {
		if err := s.roomIndex.Remove(ctx, roomID); err != nil {
			s.log.WithRoom(roomID).WithError(err).Warn("remove room from index")
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.DisconnectRoom(roomID)
	}
	s.log.WithRoom(roomID).Info("room torn down")
	return nil
}
