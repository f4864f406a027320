package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/surrealdb/surrealdb.go"

	"github.com/contesthub/contesthub/internal/chat"
	"github.com/contesthub/contesthub/internal/config"
	"github.com/contesthub/contesthub/internal/contest"
	"github.com/contesthub/contesthub/internal/database"
	"github.com/contesthub/contesthub/internal/logging"
	"github.com/contesthub/contesthub/internal/middleware"
	"github.com/contesthub/contesthub/internal/presence"
	"github.com/contesthub/contesthub/internal/pubsub"
	"github.com/contesthub/contesthub/internal/rooms"
	"github.com/contesthub/contesthub/internal/ws"
)

// Server holds the dependencies for the discussion service. Everything is
// constructed explicitly here and injected; there is no ambient global
// state beyond the default slog logger.
type Server struct {
	E   *echo.Echo
	DB  *surrealdb.DB
	Cfg *config.Config

	Bus      *pubsub.WatermillBridge
	Registry *ws.Registry
	Rooms    *rooms.Manager
	Presence *presence.Tracker
	Pipeline *chat.Pipeline

	verifier    *middleware.TokenVerifier
	chatHandler *chat.Handler

	// cancel stops the lifecycle subscriptions on shutdown.
	cancel context.CancelFunc
}

// New wires up the full service: config, store, bus, connection registry,
// room manager, presence tracker, and the broadcast pipeline.
func New() *Server {
	logging.New()
	cfg := config.New()

	ctx, cancel := context.WithCancel(context.Background())

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		cancel()
		os.Exit(1)
	}

	bus := pubsub.NewWatermillBridge()
	verifier := middleware.NewTokenVerifier(cfg.JWTSecret)

	registry := ws.NewRegistry(bus)
	roomMgr := rooms.NewManager(rooms.WithEvict(registry.Remove))
	tracker := presence.NewTracker(roomMgr, presence.WithTTL(cfg.TypingTTL))

	store := chat.NewSurrealStore(db)
	pipeline := chat.NewPipeline(store, roomMgr)
	contests := contest.NewSurrealSource(db)

	router := chat.NewRouter(roomMgr, tracker, pipeline, contests)
	registry.SetHandler(router)

	// Disconnects fan out to both subscribers: the room manager emits a
	// leave per room, the tracker clears any stuck typing indicator.
	if err := roomMgr.SubscribeLifecycle(ctx, bus); err != nil {
		slog.Error("Failed to subscribe room manager to lifecycle events", "error", err)
	}
	if err := tracker.SubscribeLifecycle(ctx, bus); err != nil {
		slog.Error("Failed to subscribe presence tracker to lifecycle events", "error", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())
	e.Validator = NewValidator()

	return &Server{
		E:           e,
		DB:          db,
		Cfg:         cfg,
		Bus:         bus,
		Registry:    registry,
		Rooms:       roomMgr,
		Presence:    tracker,
		Pipeline:    pipeline,
		verifier:    verifier,
		chatHandler: chat.NewHandler(pipeline, cfg.HistoryLimit),
		cancel:      cancel,
	}
}
