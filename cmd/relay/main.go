package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feliven/coffeetable/internal/config"
	httpapi "github.com/feliven/coffeetable/internal/relay/api/http"
	"github.com/feliven/coffeetable/internal/relay/hub"
	"github.com/feliven/coffeetable/internal/relay/repository"
	"github.com/feliven/coffeetable/internal/relay/repository/model"
	"github.com/feliven/coffeetable/internal/relay/service"
	"github.com/feliven/coffeetable/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	var (
		sessionRepo repository.SessionRepository
		roomRepo    repository.RoomRepository
		eventRepo   repository.EventRepository
	)

	if cfg.Relay.Database.DSN != "" {
		db, err := connectDatabase(cfg.Relay.Database)
		if err != nil {
			log.Error("failed to connect database", slog.Any("error", err))
			os.Exit(1)
		}
		sessionRepo = repository.NewPostgresSessionRepository(db)
		roomRepo = repository.NewPostgresRoomRepository(db)
		eventRepo = repository.NewPostgresEventRepository(db)
	} else {
		log.Warn("no database dsn, using in-memory storage")
		sessionRepo = repository.NewInMemorySessionRepository()
		roomRepo = repository.NewInMemoryRoomRepository()
		eventRepo = repository.NewInMemoryEventRepository()
	}

	upstream := service.NewHTTPUpstream(cfg.Provider.BaseURL, cfg.Provider.APIKey)
	sessionService := service.NewSessionService(upstream, sessionRepo, log)
	roomService := service.NewRoomService(roomRepo, sessionRepo, eventRepo, log)

	eventHub := hub.New(log)

	roomController := httpapi.NewRoomController(roomService, eventHub, log)
	sessionController := httpapi.NewSessionController(sessionService, cfg.Relay.APIKey)

	router := httpapi.SetupRouter(roomController, sessionController, cfg.Relay.CORSOrigins)

	log.Info("starting relay", slog.String("addr", cfg.Relay.Address))
	if err := router.Run(cfg.Relay.Address); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(&model.Session{}, &model.Room{}, &model.Event{})

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
