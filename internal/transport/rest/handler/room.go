package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"buzzroom/internal/cache"
	"buzzroom/internal/service"
	"buzzroom/internal/transport/rest/middleware"
)

// RoomHandler handles room lifecycle endpoints
type RoomHandler struct {
	roomSvc     *service.RoomService
	leaderboard cache.LeaderboardCache
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomSvc *service.RoomService, leaderboard cache.LeaderboardCache) *RoomHandler {
	return &RoomHandler{
		roomSvc:     roomSvc,
		leaderboard: leaderboard,
	}
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	Genre       string `json:"genre"`
	UnitID      string `json:"unitId"`
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DisplayName == "" || req.Genre == "" || req.UnitID == "" {
		writeError(w, http.StatusBadRequest, "displayName, genre and unitId are required")
		return
	}
	if req.UserID == "" {
		req.UserID = newUserID()
	}
	if req.Name == "" {
		req.Name = req.DisplayName + "'s room"
	}

	resp, err := h.roomSvc.Create(r.Context(), req.UserID, req.DisplayName, req.Name, req.Genre, req.UnitID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /v1/rooms
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomSvc.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// JoinRequest is the request body for joining a room
type JoinRequest struct {
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	Force       bool   `json:"force,omitempty"`
}

// Join handles POST /v1/rooms/{roomId}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}
	if req.UserID == "" {
		req.UserID = newUserID()
	}

	resp, err := h.roomSvc.Join(r.Context(), roomID, req.UserID, req.DisplayName, req.Force)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /v1/rooms/{roomId}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.Get(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Leave handles POST /v1/rooms/{roomId}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	userID := middleware.GetUserID(r.Context())

	if err := h.roomSvc.Leave(r.Context(), roomID, userID); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// Leaderboard handles GET /v1/rooms/{roomId}/leaderboard
func (h *RoomHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	top := 20
	if topStr := r.URL.Query().Get("top"); topStr != "" {
		if n, err := strconv.Atoi(topStr); err == nil && n > 0 {
			top = n
		}
	}

	entries, err := h.leaderboard.GetTop(r.Context(), roomID, top)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}

func newUserID() string {
	return "user_" + uuid.New().String()[:8]
}
