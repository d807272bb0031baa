package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"buzzroom/internal/cache"
	"buzzroom/internal/config"
	"buzzroom/internal/repository/mongodb"
	"buzzroom/internal/service"
	"buzzroom/internal/transport/rest"
	"buzzroom/internal/transport/ws"
	"buzzroom/pkg/logger"
)

const sweepInterval = time.Minute

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the buzzer quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath)
		},
	}
}

func runServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New("buzzroom")

	mongoClient, err := mongodb.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	defer mongoClient.Disconnect(context.Background())
	log.Info("connected to MongoDB")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	log.Info("connected to Redis")

	// Repositories
	rooms := mongodb.NewRoomStore(mongoClient)
	answers := mongodb.NewAnswerLog(mongoClient)
	profiles := mongodb.NewProfileStore(mongoClient)
	source := mongodb.NewQuestionSource(mongoClient)

	// Caches
	leaderboard := cache.NewLeaderboardCache(rdb)
	roomIndex := cache.NewRoomIndex(rdb)
	questions := cache.NewQuestionCache(rdb, source, cfg.Game.QuestionTTLDuration())

	// Services
	authSvc := service.NewAuthService(cfg.Auth.JWTSecret, cfg.TokenTTL())
	buzzSvc := service.NewBuzzService(rooms, answers, log)
	settleSvc := service.NewSettlementService(rooms, answers, profiles, roomIndex, leaderboard, cfg.Game, log)
	gameSvc := service.NewGameService(rooms, answers, questions, buzzSvc, settleSvc, leaderboard, cfg.Game, log)
	roomSvc := service.NewRoomService(rooms, answers, profiles, questions, roomIndex, authSvc, cfg.Game, log)

	// WebSocket hub doubles as the service broadcaster.
	hub := ws.NewHub(log)
	gameSvc.SetBroadcaster(hub)
	settleSvc.SetBroadcaster(hub)

	router := rest.NewRouter(&rest.Container{
		AuthService:       authSvc,
		RoomService:       roomSvc,
		GameService:       gameSvc,
		BuzzService:       buzzSvc,
		SettlementService: settleSvc,
		Leaderboard:       leaderboard,
		Rooms:             rooms,
		WSHub:             hub,
		Log:               log,
	})

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go roomSvc.RunSweeper(sweepCtx, sweepInterval)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen and serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down")
	case <-ctx.Done():
		log.Info("context canceled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
