package service

import (
	"strings"

	"buzzroom/internal/model"
)

// Judge decides whether a submission answers the question. It is a pure
// function; persistence of the verdict belongs to the caller.
//
// Multiple choice requires exact equality with the designated choice.
// Free text is normalized (lowercased, all whitespace stripped) and
// matched against the correct answer plus any acceptable alternates.
// An empty submission is always incorrect.
func Judge(question *model.Question, submittedText string) bool {
	if question == nil || question.Unplayable {
		return false
	}
	if strings.TrimSpace(submittedText) == "" {
		return false
	}

	switch question.Kind {
	case model.QuestionKindMultipleChoice:
		return submittedText == question.CorrectAnswer
	case model.QuestionKindInput:
		normalized := normalizeAnswer(submittedText)
		if normalized == normalizeAnswer(question.CorrectAnswer) {
			return true
		}
		for _, alt := range question.AcceptableAnswers {
			if normalized == normalizeAnswer(alt) {
				return true
			}
		}
	}
	return false
}

// normalizeAnswer lowercases and strips every whitespace rune.
func normalizeAnswer(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '\n', '\r', '　':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
