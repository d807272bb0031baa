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

var (
	ErrNotLeader          = errors.New("caller is not the room leader")
	ErrRoomNotInProgress  = errors.New("room is not in progress")
	ErrNotCurrentAnswerer = errors.New("caller does not hold the answering right")
)

// GameService drives the in-room question loop: start, buzz grants via
// BuzzService, answer judging, timeouts, and progression to settlement.
// The room document is the only shared state; every transition happens
// inside an atomic store update whose mutator re-validates preconditions,
// so concurrent leaders, timers, and participants cannot corrupt it.
type GameService struct {
	rooms       repository.RoomStore
	answers     repository.AnswerLog
	questions   repository.QuestionSource
	buzz        *BuzzService
	settlement  *SettlementService
	leaderboard cache.LeaderboardCache
	timers      *timerRegistry
	game        config.GameConfig
	log         *logger.Logger

	broadcaster Broadcaster
}

// NewGameService creates the state machine and wires itself in as the
// buzz grant hook.
func NewGameService(
	rooms repository.RoomStore,
	answers repository.AnswerLog,
	questions repository.QuestionSource,
	buzz *BuzzService,
	settlement *SettlementService,
	leaderboard cache.LeaderboardCache,
	game config.GameConfig,
	log *logger.Logger,
) *GameService {
	s := &GameService{
		rooms:       rooms,
		answers:     answers,
		questions:   questions,
		buzz:        buzz,
		settlement:  settlement,
		leaderboard: leaderboard,
		timers:      newTimerRegistry(),
		game:        game,
		log:         log,
	}
	buzz.SetGrantHook(s.onGrant)
	return s
}

// SetBroadcaster wires the WebSocket hub. Optional; nil means no pushes.
func (s *GameService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Start begins the quiz. Leader only; a duplicate start is a logged
// no-op so a double-tapped button cannot reset the game.
func (s *GameService) Start(ctx context.Context, roomID, callerID string) (*model.Room, error) {
	started := false
	room, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		started = false
		if r.LeaderID != callerID {
			return ErrNotLeader
		}
		switch r.Status {
		case model.RoomStatusInProgress:
			return repository.ErrNoChange
		case model.RoomStatusCompleted:
			return ErrRoomNotInProgress
		}
		r.Status = model.RoomStatusInProgress
		r.CurrentQuizIndex = 0
		resetQuestionState(r)
		started = true
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAuthorityDenied) {
			return nil, s.forceComplete(ctx, roomID, "start rejected")
		}
		return nil, err
	}
	if !started {
		s.log.WithRoom(roomID).Info("duplicate start ignored")
		return room, nil
	}

	s.armQuestionTimer(room)
	s.prefetchQuestion(ctx, room)
	if err := s.buzz.StartWatch(context.WithoutCancel(ctx), roomID); err != nil {
		s.log.WithRoom(roomID).WithError(err).Warn("start buzz watcher")
	}
	s.log.WithRoom(roomID).Info("game started")
	return room, nil
}

// Advance moves to the next question, or completes the room at the end
// of the set. Leader only.
func (s *GameService) Advance(ctx context.Context, roomID, callerID string) (*model.Room, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.LeaderID != callerID {
		return nil, ErrNotLeader
	}
	return s.advance(ctx, roomID, room.CurrentQuizIndex)
}

// advance performs the index transition from fromIndex. Timer-driven
// callers pass the index they were armed for; a mismatch means the room
// already moved on and the write is skipped.
func (s *GameService) advance(ctx context.Context, roomID string, fromIndex int) (*model.Room, error) {
	completed := false
	moved := false
	room, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		completed, moved = false, false
		if r.Status != model.RoomStatusInProgress {
			return repository.ErrNoChange
		}
		if r.CurrentQuizIndex != fromIndex {
			return repository.ErrNoChange
		}
		if r.CurrentQuizIndex+1 >= len(r.QuizIDs) {
			r.Status = model.RoomStatusCompleted
			r.ReadyForNext = false
			now := time.Now()
			r.CurrentState.EndTime = &now
			completed = true
			return nil
		}
		r.CurrentQuizIndex++
		resetQuestionState(r)
		moved = true
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAuthorityDenied) {
			return nil, s.forceComplete(ctx, roomID, "advance rejected")
		}
		return nil, err
	}

	switch {
	case completed:
		s.finishRoom(ctx, room)
	case moved:
		s.armQuestionTimer(room)
		s.prefetchQuestion(ctx, room)
		s.log.WithRoom(roomID).WithField("quiz_index", room.CurrentQuizIndex).Info("advanced to next question")
	}
	return room, nil
}

// SubmitAnswer judges the current answerer's submission and applies the
// outcome. Submissions from anyone but the grant holder are rejected.
func (s *GameService) SubmitAnswer(ctx context.Context, roomID, participantID, quizID, text string) (*model.Room, bool, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	question := s.resolveQuestion(ctx, room, quizID)
	correct := Judge(question, text)

	terminal := false
	var quizIndex int
	room, err = s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		terminal = false
		if r.Status != model.RoomStatusInProgress || r.CurrentQuizID() != quizID {
			return ErrRoomNotInProgress
		}
		if r.CurrentState.AnswerStatus != model.AnswerStatusAnswering || r.CurrentState.CurrentAnswerer != participantID {
			return ErrNotCurrentAnswerer
		}
		p, ok := r.Participants[participantID]
		if !ok {
			return ErrNotParticipant
		}
		quizIndex = r.CurrentQuizIndex
		r.CurrentState.CurrentAnswerer = ""
		if correct {
			p.Score += s.game.CorrectScorePoints()
			r.CurrentState.AnswerStatus = model.AnswerStatusCorrect
			r.CurrentState.IsRevealed = true
			r.ReadyForNext = true
			terminal = true
			return nil
		}
		p.MissCount++
		p.Score -= s.game.MissPenalty
		p.WrongQuizIDs = append(p.WrongQuizIDs, quizID)
		if r.AllMissed(quizID) {
			r.CurrentState.AnswerStatus = model.AnswerStatusAllAnswered
			r.CurrentState.IsRevealed = true
			r.ReadyForNext = true
			terminal = true
		} else {
			r.CurrentState.AnswerStatus = model.AnswerStatusWaitingForBuzz
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAuthorityDenied) {
			return nil, false, s.forceComplete(ctx, roomID, "submit rejected")
		}
		return nil, false, err
	}

	s.timers.cancel(roomID, quizIndex, timerAnswer)
	s.recordSubmission(ctx, roomID, quizID, participantID, text, correct)
	s.updateLeaderboard(ctx, room, participantID)

	if terminal {
		s.timers.cancel(roomID, quizIndex, timerQuestion)
		s.scheduleAdvance(roomID, quizIndex)
		s.broadcast(roomID, "question_resolved", room)
	} else {
		// Question reopens; pending stubs appended while the grant was
		// held are arbitrated again.
		if err := s.buzz.Resolve(ctx, roomID, quizID); err != nil {
			s.log.WithRoom(roomID).WithError(err).Warn("re-resolve after miss")
		}
	}
	return room, correct, nil
}

// onGrant arms the per-answer timeout for a fresh buzz grant.
func (s *GameService) onGrant(roomID string, quizIndex int) {
	s.timers.arm(roomID, quizIndex, timerAnswer, s.game.AnswerTimeoutDuration(), func() {
		s.onAnswerTimeout(roomID, quizIndex)
	})
}

// onAnswerTimeout revokes a grant whose holder never submitted, returning
// the question to the buzz pool.
func (s *GameService) onAnswerTimeout(roomID string, quizIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var revoked string
	var quizID string
	room, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		revoked = ""
		if r.Status != model.RoomStatusInProgress || r.CurrentQuizIndex != quizIndex {
			return repository.ErrNoChange
		}
		if r.CurrentState.AnswerStatus != model.AnswerStatusAnswering || r.CurrentState.CurrentAnswerer == "" {
			return repository.ErrNoChange
		}
		revoked = r.CurrentState.CurrentAnswerer
		quizID = r.CurrentQuizID()
		r.CurrentState.CurrentAnswerer = ""
		r.CurrentState.AnswerStatus = model.AnswerStatusWaitingForBuzz
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAuthorityDenied) {
			_ = s.forceComplete(ctx, roomID, "answer timeout write rejected")
			return
		}
		s.log.WithRoom(roomID).WithError(err).Warn("answer timeout")
		return
	}
	if revoked == "" {
		return
	}
	s.log.WithRoom(roomID).WithField("user_id", revoked).Info("answer grant revoked on timeout")
	s.voidPendingFor(ctx, roomID, quizID, revoked)
	s.broadcast(roomID, "room_state", room)
	if err := s.buzz.Resolve(ctx, roomID, quizID); err != nil {
		s.log.WithRoom(roomID).WithError(err).Warn("re-resolve after revocation")
	}
}

// onQuestionTimeout closes a question nobody answered correctly in time.
func (s *GameService) onQuestionTimeout(roomID string, quizIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	timedOut := false
	room, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		timedOut = false
		if r.Status != model.RoomStatusInProgress || r.CurrentQuizIndex != quizIndex {
			return repository.ErrNoChange
		}
		if r.CurrentState.AnswerStatus.Terminal() {
			return repository.ErrNoChange
		}
		r.CurrentState.AnswerStatus = model.AnswerStatusTimeout
		r.CurrentState.IsRevealed = true
		r.CurrentState.CurrentAnswerer = ""
		r.ReadyForNext = true
		timedOut = true
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAuthorityDenied) {
			_ = s.forceComplete(ctx, roomID, "question timeout write rejected")
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.WithRoom(roomID).WithError(err).Warn("question timeout")
		}
		return
	}
	if !timedOut {
		return
	}
	s.timers.cancel(roomID, quizIndex, timerAnswer)
	s.log.WithRoom(roomID).WithField("quiz_index", quizIndex).Info("question timed out")
	s.broadcast(roomID, "question_resolved", room)
	s.scheduleAdvance(roomID, quizIndex)
}

// forceComplete is the authority-denied fallback: rather than leaving the
// room wedged, it is pushed to completed (or inactive when even that
// write is rejected) and settled best-effort.
func (s *GameService) forceComplete(ctx context.Context, roomID, reason string) error {
	s.log.WithRoom(roomID).WithField("reason", reason).Warn("forcing room completion")
	room, err := s.rooms.Update(ctx, roomID, func(r *model.Room) error {
		if r.Status == model.RoomStatusCompleted {
			return repository.ErrNoChange
		}
		r.Status = model.RoomStatusCompleted
		r.ReadyForNext = false
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		s.log.WithRoom(roomID).WithError(err).Error("forced completion failed")
		return fmt.Errorf("force complete room: %w", err)
	}
	s.finishRoom(ctx, room)
	return nil
}

// finishRoom runs settlement and hands the room to teardown.
func (s *GameService) finishRoom(ctx context.Context, room *model.Room) {
	s.timers.cancelRoom(room.ID)
	s.buzz.StopWatch(room.ID)
	results, err := s.settlement.Settle(ctx, room.ID)
	if err != nil {
		s.log.WithRoom(room.ID).WithError(err).Error("settlement")
	}
	s.broadcast(room.ID, "room_completed", map[string]interface{}{
		"room":    room,
		"results": results,
	})
	s.settlement.ScheduleTeardown(room.ID)
	s.log.WithRoom(room.ID).Info("room completed")
}

// ResolveQuestion returns the current question's content for rendering.
// Content failures yield an unplayable placeholder, never an error.
func (s *GameService) ResolveQuestion(ctx context.Context, roomID string) (*model.Question, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	quizID := room.CurrentQuizID()
	if quizID == "" {
		return nil, repository.ErrContentIncomplete
	}
	return s.resolveQuestion(ctx, room, quizID), nil
}

func (s *GameService) resolveQuestion(ctx context.Context, room *model.Room, quizID string) *model.Question {
	q, err := s.questions.Lookup(ctx, room.Genre, room.UnitID, quizID)
	if err != nil {
		s.log.WithRoom(room.ID).WithField("quiz_id", quizID).WithError(err).Warn("question lookup failed, substituting placeholder")
		return model.PlaceholderQuestion(quizID)
	}
	return q
}

func (s *GameService) prefetchQuestion(ctx context.Context, room *model.Room) {
	quizID := room.CurrentQuizID()
	if quizID == "" {
		return
	}
	if _, err := s.questions.Lookup(ctx, room.Genre, room.UnitID, quizID); err != nil {
		s.log.WithRoom(room.ID).WithField("quiz_id", quizID).WithError(err).Warn("question prefetch")
	}
}

func (s *GameService) armQuestionTimer(room *model.Room) {
	index := room.CurrentQuizIndex
	s.timers.arm(room.ID, index, timerQuestion, s.game.QuestionTimeoutFor(room.Genre), func() {
		s.onQuestionTimeout(room.ID, index)
	})
}

func (s *GameService) scheduleAdvance(roomID string, fromIndex int) {
	s.timers.arm(roomID, fromIndex, timerAdvance, s.game.AdvanceDelayDuration(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.advance(ctx, roomID, fromIndex); err != nil {
			s.log.WithRoom(roomID).WithError(err).Warn("scheduled advance")
		}
	})
}

// recordSubmission fills the answerer's pending stub with the judged text.
func (s *GameService) recordSubmission(ctx context.Context, roomID, quizID, participantID, text string, correct bool) {
	stubs, err := s.answers.PendingByQuiz(ctx, roomID, quizID)
	if err != nil {
		s.log.WithRoom(roomID).WithError(err).Warn("load pending stub")
		return
	}
	for _, stub := range stubs {
		if stub.ParticipantID != participantID {
			continue
		}
		stub.SubmittedText = text
		stub.IsCorrect = correct
		stub.ProcessingStatus = model.ProcessingProcessed
		if err := s.answers.Update(ctx, stub); err != nil {
			s.log.WithRoom(roomID).WithError(err).Warn("record submission")
		}
		return
	}
}

// voidPendingFor marks the participant's abandoned stub processed.
func (s *GameService) voidPendingFor(ctx context.Context, roomID, quizID, participantID string) {
	stubs, err := s.answers.PendingByQuiz(ctx, roomID, quizID)
	if err != nil {
		return
	}
	for _, stub := range stubs {
		if stub.ParticipantID != participantID {
			continue
		}
		stub.ProcessingStatus = model.ProcessingProcessed
		if err := s.answers.Update(ctx, stub); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.log.WithRoom(roomID).WithError(err).Warn("void abandoned stub")
		}
	}
}

func (s *GameService) updateLeaderboard(ctx context.Context, room *model.Room, participantID string) {
	if s.leaderboard == nil {
		return
	}
	p, ok := room.Participants[participantID]
	if !ok {
		return
	}
	if err := s.leaderboard.UpdateScore(ctx, room.ID, participantID, p.Score); err != nil {
		s.log.WithRoom(room.ID).WithError(err).Warn("leaderboard update")
	}
}

func (s *GameService) broadcast(roomID, msgType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastRoom(roomID, msgType, payload)
}

// resetQuestionState points the substate at the current index's question.
func resetQuestionState(r *model.Room) {
	r.CurrentState = model.QuestionState{
		QuizID:       r.CurrentQuizID(),
		StartTime:    time.Now(),
		AnswerStatus: model.AnswerStatusWaitingForBuzz,
	}
	r.ReadyForNext = false
}
