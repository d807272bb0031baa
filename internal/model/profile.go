package model

import "time"

// UserProfile is the durable per-user record outliving individual rooms.
// CurrentRoomID is the back-reference maintained on join/leave so a
// reconnecting client can find its active session.
type UserProfile struct {
	UserID          string         `json:"userId" bson:"_id"`
	DisplayName     string         `json:"displayName,omitempty" bson:"displayName,omitempty"`
	AvatarRef       string         `json:"avatarRef,omitempty" bson:"avatarRef,omitempty"`
	Experience      int            `json:"experience" bson:"experience"`
	AnsweredByGenre map[string]int `json:"answeredByGenre,omitempty" bson:"answeredByGenre,omitempty"`
	CurrentRoomID   string         `json:"currentRoomId,omitempty" bson:"currentRoomId,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// ProfileDelta is the increment applied to a profile during settlement.
type ProfileDelta struct {
	Experience      int
	AnsweredByGenre map[string]int
}

// SettlementResult is one participant's final award.
type SettlementResult struct {
	ParticipantID string `json:"participantId"`
	Score         int    `json:"score"`
	Experience    int    `json:"experience"`
}
