package model

import "github.com/golang-jwt/jwt/v5"

// RoomClaims are room-scoped JWT claims issued on create/join. The leader
// flag mirrors the room's leaderId at issue time; services re-check the
// room record before any leader-only transition, so a stale flag cannot
// grant authority by itself.
type RoomClaims struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsLeader bool   `json:"isLeader"`
	jwt.RegisteredClaims
}

// JoinResponse is returned when a user creates or joins a room.
type JoinResponse struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Room   *Room  `json:"room"`
}
