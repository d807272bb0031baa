package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastRoom(roomID string, msgType string, payload interface{})
	BroadcastToParticipant(roomID, participantID string, msgType string, payload interface{})
	DisconnectRoom(roomID string)
}
