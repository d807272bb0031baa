package model

import "fmt"

// QuestionKind defines the type of question.
type QuestionKind string

const (
	QuestionKindMultipleChoice QuestionKind = "multiple_choice"
	QuestionKindInput          QuestionKind = "input"
)

// Question is the quiz content for a single question.
type Question struct {
	ID                string       `json:"id" bson:"_id"`
	Genre             string       `json:"genre" bson:"genre"`
	UnitID            string       `json:"unitId" bson:"unitId"`
	Kind              QuestionKind `json:"kind" bson:"kind"`
	Text              string       `json:"text" bson:"text"`
	Choices           []string     `json:"choices,omitempty" bson:"choices,omitempty"`
	CorrectAnswer     string       `json:"correctAnswer" bson:"correctAnswer"`
	AcceptableAnswers []string     `json:"acceptableAnswers,omitempty" bson:"acceptableAnswers,omitempty"`
	Explanation       string       `json:"explanation,omitempty" bson:"explanation,omitempty"`
	Unplayable        bool         `json:"unplayable,omitempty" bson:"-"`
}

// Validate checks kind-specific shape requirements.
func (q *Question) Validate() error {
	switch q.Kind {
	case QuestionKindMultipleChoice:
		if len(q.Choices) < 2 {
			return fmt.Errorf("question %s: multiple choice needs at least 2 choices", q.ID)
		}
		for _, c := range q.Choices {
			if c == q.CorrectAnswer {
				return nil
			}
		}
		return fmt.Errorf("question %s: correct answer not among choices", q.ID)
	case QuestionKindInput:
		if q.CorrectAnswer == "" {
			return fmt.Errorf("question %s: missing correct answer", q.ID)
		}
		return nil
	default:
		return fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
	}
}

// PlaceholderQuestion stands in for content that could not be resolved, so
// a room never crashes on missing content. It is never judged correct.
func PlaceholderQuestion(quizID string) *Question {
	return &Question{
		ID:         quizID,
		Kind:       QuestionKindInput,
		Text:       "This question could not be loaded.",
		Unplayable: true,
	}
}
