package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"buzzroom/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and validates room-scoped session tokens. There is
// no account login; identity management lives outside this service and a
// token only proves membership in one room.
type AuthService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService creates a new auth service.
func NewAuthService(secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		jwtSecret: []byte(secret),
		tokenTTL:  tokenTTL,
	}
}

// GenerateRoomToken creates a room-scoped token for a participant.
func (s *AuthService) GenerateRoomToken(roomID, userID string, isLeader bool) (string, error) {
	claims := &model.RoomClaims{
		RoomID:   roomID,
		UserID:   userID,
		IsLeader: isLeader,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateRoomToken validates a room JWT and returns claims.
func (s *AuthService) ValidateRoomToken(tokenString string) (*model.RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.RoomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.RoomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
