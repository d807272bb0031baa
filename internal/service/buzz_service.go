package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
	"buzzroom/pkg/logger"
)

var (
	ErrNotParticipant  = errors.New("not a participant of this room")
	ErrBuzzUnavailable = errors.New("question is not open for buzzing")
)

// GrantHook is invoked after a buzz grant commits, with the question
// index the grant belongs to. The state machine uses it to arm the
// per-answer timeout.
type GrantHook func(roomID string, quizIndex int)

// BuzzService arbitrates the exclusive answering right. Participants
// race by appending pending answer stubs; the store assigns each stub a
// monotonic ClickTime, and resolution grants the earliest one inside the
// same atomic room update that checks no grant is already held. Client
// clocks never participate in the ordering.
type BuzzService struct {
	rooms   repository.RoomStore
	answers repository.AnswerLog
	log     *logger.Logger

	onGrant GrantHook

	mu       sync.Mutex
	watchers map[string]func()
}

// NewBuzzService creates a new buzz service.
func NewBuzzService(rooms repository.RoomStore, answers repository.AnswerLog, log *logger.Logger) *BuzzService {
	return &BuzzService{
		rooms:    rooms,
		answers:  answers,
		log:      log,
		watchers: make(map[string]func()),
	}
}

// SetGrantHook wires the state machine callback. Must be called before
// the first buzz; split from the constructor to break the construction
// cycle with GameService.
func (s *BuzzService) SetGrantHook(hook GrantHook) {
	s.onGrant = hook
}

// RegisterBuzz appends a pending stub for the participant and resolves
// arbitration. Losing a race is not an error; the loser's stub is voided
// silently.
func (s *BuzzService) RegisterBuzz(ctx context.Context, roomID, participantID, quizID string) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(participantID) {
		return ErrNotParticipant
	}
	if room.Status != model.RoomStatusInProgress || room.CurrentQuizID() != quizID {
		return ErrBuzzUnavailable
	}
	if room.CurrentState.CurrentAnswerer != "" {
		return ErrBuzzUnavailable
	}
	if room.Participants[participantID].Missed(quizID) {
		return ErrBuzzUnavailable
	}

	if _, err := s.answers.Append(ctx, &model.SubmittedAnswer{
		RoomID:           roomID,
		QuizID:           quizID,
		ParticipantID:    participantID,
		ProcessingStatus: model.ProcessingPending,
		CreatedAt:        time.Now(),
	}); err != nil {
		return fmt.Errorf("append buzz stub: %w", err)
	}

	return s.Resolve(ctx, roomID, quizID)
}

// Resolve inspects the pending stubs for the question and grants the
// earliest eligible one, voiding the rest. Safe to call repeatedly and
// concurrently; the room update is the arbitration point.
func (s *BuzzService) Resolve(ctx context.Context, roomID, quizID string) error {
	pending, err := s.answers.PendingByQuiz(ctx, roomID, quizID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	var winner *model.SubmittedAnswer
	var holder string
	var quizIndex int
	_, err = s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		winner, holder = nil, ""
		if r.Status != model.RoomStatusInProgress || r.CurrentQuizID() != quizID {
			return repository.ErrNoChange
		}
		// Re-entrancy guard: a held grant voids the stubs instead of
		// granting twice. The holder's own stub survives; it is still
		// waiting for its submission text.
		if r.CurrentState.CurrentAnswerer != "" || r.CurrentState.AnswerStatus != model.AnswerStatusWaitingForBuzz {
			holder = r.CurrentState.CurrentAnswerer
			return repository.ErrNoChange
		}
		for _, stub := range pending {
			p, ok := r.Participants[stub.ParticipantID]
			if !ok || p.Missed(quizID) {
				continue
			}
			winner = stub
			break
		}
		if winner == nil {
			return repository.ErrNoChange
		}
		r.CurrentState.CurrentAnswerer = winner.ParticipantID
		r.CurrentState.AnswerStatus = model.AnswerStatusAnswering
		quizIndex = r.CurrentQuizIndex
		return nil
	})
	if err != nil {
		// A rejected grant write is not retried; re-granting blindly could
		// double-grant. The stubs are voided and participants buzz again.
		if errors.Is(err, repository.ErrAuthorityDenied) || errors.Is(err, repository.ErrConflict) {
			s.log.WithRoom(roomID).WithError(err).Warn("buzz grant write rejected, voiding stubs")
			s.voidStubs(ctx, pending, "")
			return nil
		}
		return err
	}

	if winner == nil {
		s.voidStubs(ctx, pending, holder)
		return nil
	}

	s.voidStubs(ctx, pending, winner.ParticipantID)
	s.log.WithRoom(roomID).WithField("user_id", winner.ParticipantID).Info("answer right granted")
	if s.onGrant != nil {
		s.onGrant(roomID, quizIndex)
	}
	return nil
}

// voidStubs marks every pending stub processed, except the keep
// participant's earliest one, which stays pending until its text arrives.
// Stubs arrive ClickTime ascending, so the first match is the granted one.
func (s *BuzzService) voidStubs(ctx context.Context, stubs []*model.SubmittedAnswer, keep string) {
	kept := false
	for _, stub := range stubs {
		if keep != "" && !kept && stub.ParticipantID == keep {
			kept = true
			continue
		}
		stub.ProcessingStatus = model.ProcessingProcessed
		if err := s.answers.Update(ctx, stub); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.log.WithRoom(stub.RoomID).WithError(err).Warn("void buzz stub")
		}
	}
}

// StartWatch resolves arbitration whenever the answer log pulses for the
// room, catching buzzes committed by other server instances or racing
// goroutines. Runs until StopWatch or the context ends.
func (s *BuzzService) StartWatch(ctx context.Context, roomID string) error {
	s.mu.Lock()
	if _, ok := s.watchers[roomID]; ok {
		s.mu.Unlock()
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	s.mu.Unlock()

	pulses, cancelWatch, err := s.answers.Watch(watchCtx, roomID)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	if _, ok := s.watchers[roomID]; ok {
		s.mu.Unlock()
		cancelWatch()
		cancel()
		return nil
	}
	s.watchers[roomID] = func() {
		cancelWatch()
		cancel()
	}
	s.mu.Unlock()

	go func() {
		defer s.StopWatch(roomID)
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-pulses:
				if !ok {
					return
				}
				room, err := s.rooms.Get(watchCtx, roomID)
				if err != nil {
					if errors.Is(err, repository.ErrNotFound) {
						return
					}
					continue
				}
				if room.Status != model.RoomStatusInProgress {
					if room.Status == model.RoomStatusCompleted {
						return
					}
					continue
				}
				if err := s.Resolve(watchCtx, roomID, room.CurrentQuizID()); err != nil {
					s.log.WithRoom(roomID).WithError(err).Warn("buzz resolution")
				}
			}
		}
	}()
	return nil
}

// StopWatch releases the room's arbitration watcher, if running.
func (s *BuzzService) StopWatch(roomID string) {
	s.mu.Lock()
	cancel, ok := s.watchers[roomID]
	if ok {
		delete(s.watchers, roomID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}
