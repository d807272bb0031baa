package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"buzzroom/internal/repository"
	"buzzroom/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondError maps service and repository errors onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, service.ErrNotLeader),
		errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, repository.ErrAuthorityDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrRoomNotJoinable),
		errors.Is(err, service.ErrBuzzUnavailable),
		errors.Is(err, service.ErrNotCurrentAnswerer),
		errors.Is(err, service.ErrRoomNotInProgress),
		errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrContentIncomplete):
		writeError(w, http.StatusUnprocessableEntity, "quiz content could not be resolved")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
