package memory

import (
	"context"
	"sync"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
)

// QuestionSource serves quiz content from a static map, keyed by
// genre/unit. Suitable for tests and the seed fixture.
type QuestionSource struct {
	mu        sync.RWMutex
	questions map[string]map[string]*model.Question // unitKey -> quizID -> question
	order     map[string][]string                   // unitKey -> quizIDs in insert order
}

// NewQuestionSource creates a question source preloaded with the given
// questions.
func NewQuestionSource(questions ...*model.Question) *QuestionSource {
	s := &QuestionSource{
		questions: make(map[string]map[string]*model.Question),
		order:     make(map[string][]string),
	}
	for _, q := range questions {
		s.Add(q)
	}
	return s
}

// Add registers a question under its genre/unit.
func (s *QuestionSource) Add(q *model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := unitKey(q.Genre, q.UnitID)
	if s.questions[key] == nil {
		s.questions[key] = make(map[string]*model.Question)
	}
	if _, ok := s.questions[key][q.ID]; !ok {
		s.order[key] = append(s.order[key], q.ID)
	}
	cp := *q
	s.questions[key][q.ID] = &cp
}

func (s *QuestionSource) Lookup(ctx context.Context, genre, unitID, quizID string) (*model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[unitKey(genre, unitID)][quizID]
	if !ok {
		return nil, repository.ErrContentIncomplete
	}
	cp := *q
	return &cp, nil
}

func (s *QuestionSource) ListUnit(ctx context.Context, genre, unitID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.order[unitKey(genre, unitID)]
	if !ok || len(ids) == 0 {
		return nil, repository.ErrContentIncomplete
	}
	return append([]string(nil), ids...), nil
}

func unitKey(genre, unitID string) string {
	return genre + "/" + unitID
}
