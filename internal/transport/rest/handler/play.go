package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"buzzroom/internal/model"
	"buzzroom/internal/service"
	"buzzroom/internal/transport/rest/middleware"
)

// PlayHandler handles in-game endpoints
type PlayHandler struct {
	gameSvc *service.GameService
	buzzSvc *service.BuzzService
}

// NewPlayHandler creates a new play handler
func NewPlayHandler(gameSvc *service.GameService, buzzSvc *service.BuzzService) *PlayHandler {
	return &PlayHandler{
		gameSvc: gameSvc,
		buzzSvc: buzzSvc,
	}
}

// Start handles POST /v1/rooms/{roomId}/start
func (h *PlayHandler) Start(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	userID := middleware.GetUserID(r.Context())

	room, err := h.gameSvc.Start(r.Context(), roomID, userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Advance handles POST /v1/rooms/{roomId}/advance
func (h *PlayHandler) Advance(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	userID := middleware.GetUserID(r.Context())

	room, err := h.gameSvc.Advance(r.Context(), roomID, userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// BuzzRequest is the request body for buzzing in
type BuzzRequest struct {
	QuizID string `json:"quizId"`
}

// Buzz handles POST /v1/rooms/{roomId}/buzz
func (h *PlayHandler) Buzz(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	userID := middleware.GetUserID(r.Context())

	var req BuzzRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuizID == "" {
		writeError(w, http.StatusBadRequest, "quizId is required")
		return
	}

	if err := h.buzzSvc.RegisterBuzz(r.Context(), roomID, userID, req.QuizID); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "buzzed"})
}

// SubmitAnswerRequest is the request body for submitting an answer
type SubmitAnswerRequest struct {
	QuizID string `json:"quizId"`
	Text   string `json:"text"`
}

// SubmitAnswer handles POST /v1/rooms/{roomId}/answers
func (h *PlayHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	userID := middleware.GetUserID(r.Context())

	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuizID == "" {
		writeError(w, http.StatusBadRequest, "quizId is required")
		return
	}

	room, correct, err := h.gameSvc.SubmitAnswer(r.Context(), roomID, userID, req.QuizID, req.Text)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"correct": correct,
		"room":    room,
	})
}

// CurrentQuestion handles GET /v1/rooms/{roomId}/question/current
func (h *PlayHandler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	question, err := h.gameSvc.ResolveQuestion(r.Context(), roomID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redactQuestion(question))
}

// redactQuestion strips the answer fields before a question reaches
// participants. Explanations travel separately after the reveal.
func redactQuestion(q *model.Question) map[string]interface{} {
	return map[string]interface{}{
		"id":         q.ID,
		"kind":       q.Kind,
		"text":       q.Text,
		"choices":    q.Choices,
		"unplayable": q.Unplayable,
	}
}
