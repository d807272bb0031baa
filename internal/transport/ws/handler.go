package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
	"buzzroom/internal/service"
	"buzzroom/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Handler upgrades room-feed connections. Each connection gets its own
// store subscription, so every committed room mutation reaches the
// client as a fresh snapshot.
type Handler struct {
	hub     *Hub
	rooms   repository.RoomStore
	authSvc *service.AuthService
	log     *logger.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, rooms repository.RoomStore, authSvc *service.AuthService, log *logger.Logger) *Handler {
	return &Handler{
		hub:     hub,
		rooms:   rooms,
		authSvc: authSvc,
		log:     log,
	}
}

// RoomWS handles GET /v1/ws/rooms/{roomId}?token=...
func (h *Handler) RoomWS(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateRoomToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.RoomID != roomID {
		http.Error(w, "token not valid for this room", http.StatusForbidden)
		return
	}

	feedCtx, cancelFeed := context.WithCancel(context.Background())
	snapshots, cancelWatch, err := h.rooms.Watch(feedCtx, roomID)
	if err != nil {
		cancelFeed()
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancelWatch()
		cancelFeed()
		h.log.WithRoom(roomID).WithError(err).Warn("websocket upgrade")
		return
	}

	conn := &Connection{
		RoomID:        roomID,
		ParticipantID: claims.UserID,
		Send:          make(chan []byte, 256),
		closeFeed: func() {
			cancelWatch()
			cancelFeed()
		},
	}
	h.hub.Register(conn)

	go h.feedPump(feedCtx, conn, snapshots)
	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

// feedPump turns committed room snapshots into room_state messages.
func (h *Handler) feedPump(ctx context.Context, conn *Connection, snapshots <-chan *model.Room) {
	for {
		select {
		case <-ctx.Done():
			return
		case room, ok := <-snapshots:
			if !ok {
				return
			}
			payload, err := json.Marshal(room)
			if err != nil {
				continue
			}
			data, err := json.Marshal(&Message{Type: MsgRoomState, Payload: payload})
			if err != nil {
				continue
			}
			conn.trySend(data)
		}
	}
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := wsConn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithRoom(conn.RoomID).WithError(err).Debug("websocket read")
			}
			break
		}
		// Incoming messages are ignored; all actions go through REST.
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
