package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"buzzroom/internal/cache"
	"buzzroom/internal/repository"
	"buzzroom/internal/service"
	"buzzroom/internal/transport/rest/handler"
	"buzzroom/internal/transport/rest/middleware"
	"buzzroom/internal/transport/ws"
	"buzzroom/pkg/logger"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService       *service.AuthService
	RoomService       *service.RoomService
	GameService       *service.GameService
	BuzzService       *service.BuzzService
	SettlementService *service.SettlementService
	Leaderboard       cache.LeaderboardCache
	Rooms             repository.RoomStore
	WSHub             *ws.Hub
	Log               *logger.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	roomHandler := handler.NewRoomHandler(c.RoomService, c.Leaderboard)
	playHandler := handler.NewPlayHandler(c.GameService, c.BuzzService)
	wsHandler := ws.NewHandler(c.WSHub, c.Rooms, c.AuthService, c.Log)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/rooms", roomHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/rooms", roomHandler.List).Methods("GET", "OPTIONS")
	v1.HandleFunc("/rooms/{roomId}/join", roomHandler.Join).Methods("POST", "OPTIONS")

	// WebSocket route (public with token in query param)
	v1.HandleFunc("/ws/rooms/{roomId}", wsHandler.RoomWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Room-scoped routes (require room token)
	roomRoutes := v1.NewRoute().Subrouter()
	roomRoutes.Use(authMW.RequireRoomToken)

	roomRoutes.HandleFunc("/rooms/{roomId}", roomHandler.Get).Methods("GET", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{roomId}/leave", roomHandler.Leave).Methods("POST", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{roomId}/leaderboard", roomHandler.Leaderboard).Methods("GET", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{roomId}/start", playHandler.Start).Methods("POST", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{roomId}/advance", playHandler.Advance).Methods("POST", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{roomId}/buzz", playHandler.Buzz).Methods("POST", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{roomId}/answers", playHandler.SubmitAnswer).Methods("POST", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{roomId}/question/current", playHandler.CurrentQuestion).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
