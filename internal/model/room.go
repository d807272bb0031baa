package model

import "time"

type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "waiting"
	RoomStatusInProgress RoomStatus = "in_progress"
	RoomStatusCompleted  RoomStatus = "completed"
)

// AnswerStatus is the per-question substate while a room is in progress.
type AnswerStatus string

const (
	AnswerStatusWaitingForBuzz AnswerStatus = "waiting_for_buzz"
	AnswerStatusAnswering      AnswerStatus = "answering_in_progress"
	AnswerStatusCorrect        AnswerStatus = "correct"
	AnswerStatusIncorrect      AnswerStatus = "incorrect"
	AnswerStatusAllAnswered    AnswerStatus = "all_answered"
	AnswerStatusTimeout        AnswerStatus = "timeout"
)

// Terminal reports whether the question is resolved and may be revealed.
func (s AnswerStatus) Terminal() bool {
	switch s {
	case AnswerStatusCorrect, AnswerStatusAllAnswered, AnswerStatusTimeout:
		return true
	}
	return false
}

// ParticipantState is the per-room record for one participant.
type ParticipantState struct {
	DisplayName  string   `json:"displayName" bson:"displayName"`
	AvatarRef    string   `json:"avatarRef,omitempty" bson:"avatarRef,omitempty"`
	Score        int      `json:"score" bson:"score"`
	MissCount    int      `json:"missCount" bson:"missCount"`
	WrongQuizIDs []string `json:"wrongQuizIds,omitempty" bson:"wrongQuizIds,omitempty"`
	Ready        bool     `json:"ready" bson:"ready"`
}

// Missed reports whether the participant already answered quizID incorrectly.
func (p *ParticipantState) Missed(quizID string) bool {
	for _, id := range p.WrongQuizIDs {
		if id == quizID {
			return true
		}
	}
	return false
}

// QuestionState is the substate for the active question.
// CurrentAnswerer is empty unless AnswerStatus is answering_in_progress.
type QuestionState struct {
	QuizID          string       `json:"quizId" bson:"quizId"`
	StartTime       time.Time    `json:"startTime" bson:"startTime"`
	EndTime         *time.Time   `json:"endTime,omitempty" bson:"endTime,omitempty"`
	CurrentAnswerer string       `json:"currentAnswerer,omitempty" bson:"currentAnswerer,omitempty"`
	AnswerStatus    AnswerStatus `json:"answerStatus" bson:"answerStatus"`
	IsRevealed      bool         `json:"isRevealed" bson:"isRevealed"`
}

// Room is the shared record coordinating one quiz session.
type Room struct {
	ID               string                       `json:"id" bson:"_id"`
	Name             string                       `json:"name" bson:"name"`
	Genre            string                       `json:"genre" bson:"genre"`
	UnitID           string                       `json:"unitId" bson:"unitId"`
	LeaderID         string                       `json:"leaderId" bson:"leaderId"`
	Participants     map[string]*ParticipantState `json:"participants" bson:"participants"`
	QuizIDs          []string                     `json:"quizIds" bson:"quizIds"`
	CurrentQuizIndex int                          `json:"currentQuizIndex" bson:"currentQuizIndex"`
	Status           RoomStatus                   `json:"status" bson:"status"`
	CurrentState     QuestionState                `json:"currentState" bson:"currentState"`
	ReadyForNext     bool                         `json:"readyForNextQuestion" bson:"readyForNextQuestion"`
	StatsUpdated     bool                         `json:"statsUpdated" bson:"statsUpdated"`
	Inactive         bool                         `json:"inactive" bson:"inactive"`
	CreatedAt        time.Time                    `json:"createdAt" bson:"createdAt"`
	Version          int64                        `json:"-" bson:"version"`
}

// CurrentQuizID returns the active question id, or "" past the end.
func (r *Room) CurrentQuizID() string {
	if r.CurrentQuizIndex < 0 || r.CurrentQuizIndex >= len(r.QuizIDs) {
		return ""
	}
	return r.QuizIDs[r.CurrentQuizIndex]
}

// HasParticipant reports membership.
func (r *Room) HasParticipant(userID string) bool {
	_, ok := r.Participants[userID]
	return ok
}

// AllMissed reports whether every participant has answered quizID incorrectly.
func (r *Room) AllMissed(quizID string) bool {
	if len(r.Participants) == 0 {
		return false
	}
	for _, p := range r.Participants {
		if !p.Missed(quizID) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, safe to mutate or hand to subscribers.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Participants = make(map[string]*ParticipantState, len(r.Participants))
	for id, p := range r.Participants {
		pc := *p
		pc.WrongQuizIDs = append([]string(nil), p.WrongQuizIDs...)
		cp.Participants[id] = &pc
	}
	cp.QuizIDs = append([]string(nil), r.QuizIDs...)
	if r.CurrentState.EndTime != nil {
		t := *r.CurrentState.EndTime
		cp.CurrentState.EndTime = &t
	}
	return &cp
}
