package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
)

// AnswerLog keeps submitted answers in memory. ClickTime is a process-wide
// monotonic counter, standing in for the server timestamp a hosted store
// would assign.
type AnswerLog struct {
	mu          sync.Mutex
	answers     map[string][]*model.SubmittedAnswer // roomID -> records
	subscribers map[string]map[chan struct{}]struct{}
	clock       int64
	nextID      int64
}

// NewAnswerLog creates an empty in-memory answer log.
func NewAnswerLog() *AnswerLog {
	return &AnswerLog{
		answers:     make(map[string][]*model.SubmittedAnswer),
		subscribers: make(map[string]map[chan struct{}]struct{}),
	}
}

func (l *AnswerLog) Append(ctx context.Context, answer *model.SubmittedAnswer) (*model.SubmittedAnswer, error) {
	l.mu.Lock()
	l.clock++
	l.nextID++
	stored := *answer
	stored.ClickTime = l.clock
	stored.ID = "ans_" + strconv.FormatInt(l.nextID, 10)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	l.answers[stored.RoomID] = append(l.answers[stored.RoomID], &stored)
	l.pulseLocked(stored.RoomID)
	l.mu.Unlock()
	cp := stored
	return &cp, nil
}

func (l *AnswerLog) Update(ctx context.Context, answer *model.SubmittedAnswer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.answers[answer.RoomID] {
		if a.ID == answer.ID {
			cp := *answer
			l.answers[answer.RoomID][i] = &cp
			l.pulseLocked(answer.RoomID)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (l *AnswerLog) ListByQuiz(ctx context.Context, roomID, quizID string) ([]*model.SubmittedAnswer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(roomID, quizID, false), nil
}

func (l *AnswerLog) PendingByQuiz(ctx context.Context, roomID, quizID string) ([]*model.SubmittedAnswer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(roomID, quizID, true), nil
}

func (l *AnswerLog) PurgeRoom(ctx context.Context, roomID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.answers, roomID)
	return nil
}

func (l *AnswerLog) Watch(ctx context.Context, roomID string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	if l.subscribers[roomID] == nil {
		l.subscribers[roomID] = make(map[chan struct{}]struct{})
	}
	l.subscribers[roomID][ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if subs, ok := l.subscribers[roomID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(l.subscribers, roomID)
			}
		}
		l.mu.Unlock()
	}
	return ch, cancel, nil
}

func (l *AnswerLog) filterLocked(roomID, quizID string, pendingOnly bool) []*model.SubmittedAnswer {
	var out []*model.SubmittedAnswer
	for _, a := range l.answers[roomID] {
		if a.QuizID != quizID {
			continue
		}
		if pendingOnly && a.ProcessingStatus != model.ProcessingPending {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClickTime < out[j].ClickTime })
	return out
}

func (l *AnswerLog) pulseLocked(roomID string) {
	for ch := range l.subscribers[roomID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
