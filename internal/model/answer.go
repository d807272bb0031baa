package model

import "time"

// ProcessingStatus tracks whether a submitted answer stub has been resolved.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingProcessed ProcessingStatus = "processed"
)

// SubmittedAnswer is the append-only buzz/answer record for one participant
// and one question. It is created as an empty stub when the participant
// buzzes in and filled when their final text arrives. ClickTime is assigned
// by the store and is the sole ordering authority for buzz arbitration.
type SubmittedAnswer struct {
	ID               string           `json:"id" bson:"_id,omitempty"`
	RoomID           string           `json:"roomId" bson:"roomId"`
	QuizID           string           `json:"quizId" bson:"quizId"`
	ParticipantID    string           `json:"participantId" bson:"participantId"`
	ClickTime        int64            `json:"clickTime" bson:"clickTime"`
	SubmittedText    string           `json:"submittedText" bson:"submittedText"`
	IsCorrect        bool             `json:"isCorrect" bson:"isCorrect"`
	ProcessingStatus ProcessingStatus `json:"processingStatus" bson:"processingStatus"`
	CreatedAt        time.Time        `json:"createdAt" bson:"createdAt"`
}
