// Package ws exposes the room-state subscription feed over WebSocket, so
// clients render transitions without polling.
package ws

import (
	"encoding/json"
	"sync"

	"buzzroom/pkg/logger"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgRoomState        MessageType = "room_state"
	MsgQuestionResolved MessageType = "question_resolved"
	MsgRoomCompleted    MessageType = "room_completed"
	MsgError            MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages the WebSocket connections per room.
type Hub struct {
	// roomID -> participantID -> conn
	conns map[string]map[string]*Connection

	mu  sync.RWMutex
	log *logger.Logger

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents one participant's WebSocket connection.
type Connection struct {
	RoomID        string
	ParticipantID string
	Send          chan []byte

	// mu guards closed; the feed pump and the hub send from different
	// goroutines, and neither may send once Send is closed.
	mu     sync.Mutex
	closed bool

	// closeFeed releases the room watch feeding this connection.
	closeFeed func()
}

// trySend queues data for the write pump. Sends after close and sends
// against a full client buffer are dropped; the next snapshot supersedes.
func (c *Connection) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// close releases the feed and closes Send. Safe to call more than once.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.closeFeed != nil {
		c.closeFeed()
		c.closeFeed = nil
	}
	close(c.Send)
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	RoomID        string
	ToParticipant string // empty means every participant in the room
	Message       *Message
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	h := &Hub{
		conns:      make(map[string]map[string]*Connection),
		log:        log,
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.RoomID] == nil {
				h.conns[conn.RoomID] = make(map[string]*Connection)
			}
			// A reconnect replaces the previous socket.
			if existing, ok := h.conns[conn.RoomID][conn.ParticipantID]; ok {
				existing.close()
			}
			h.conns[conn.RoomID][conn.ParticipantID] = conn
			h.mu.Unlock()
			h.log.WithRoom(conn.RoomID).WithField("user_id", conn.ParticipantID).Debug("websocket connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.conns[conn.RoomID]; ok {
				if existing, ok := room[conn.ParticipantID]; ok && existing == conn {
					delete(room, conn.ParticipantID)
					conn.close()
					if len(room) == 0 {
						delete(h.conns, conn.RoomID)
					}
				}
			}
			h.mu.Unlock()
			h.log.WithRoom(conn.RoomID).WithField("user_id", conn.ParticipantID).Debug("websocket disconnected")

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Message)
			if err != nil {
				continue
			}
			h.mu.RLock()
			room := h.conns[msg.RoomID]
			for pid, conn := range room {
				if msg.ToParticipant != "" && pid != msg.ToParticipant {
					continue
				}
				conn.trySend(data)
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastRoom sends a message to every participant in the room
// (implements service.Broadcaster).
func (h *Hub) BroadcastRoom(roomID string, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcast <- &BroadcastMessage{
		RoomID:  roomID,
		Message: &Message{Type: MessageType(msgType), Payload: data},
	}
}

// BroadcastToParticipant sends a message to one participant (implements
// service.Broadcaster).
func (h *Hub) BroadcastToParticipant(roomID, participantID string, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcast <- &BroadcastMessage{
		RoomID:        roomID,
		ToParticipant: participantID,
		Message:       &Message{Type: MessageType(msgType), Payload: data},
	}
}

// DisconnectRoom drops every connection for the room (implements
// service.Broadcaster). Called after teardown removes the room.
func (h *Hub) DisconnectRoom(roomID string) {
	h.mu.Lock()
	room := h.conns[roomID]
	delete(h.conns, roomID)
	for _, conn := range room {
		conn.close()
	}
	h.mu.Unlock()
}
