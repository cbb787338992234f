package server

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"llamarag/app/agent"
	"llamarag/app/api"
	"llamarag/app/middleware"
)

type Config struct {
	Addr         string
	StaticDir    string
	UploadDir    string
	MaxUploadMB  int
	QueryTimeout time.Duration
}

type Server struct {
	listenAddr string
	app        *fiber.App
	logger     *zap.Logger
}

func NewServer(cfg Config, a *agent.Agent, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	bodyLimit := cfg.MaxUploadMB << 20
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          api.NewErrorHandler(logger),
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})

	var (
		checkHandler      = api.NewCheckHandler()
		requestHandler    = api.NewRequestHandler(a)
		fileHandler       = api.NewFileHandler(a, cfg.UploadDir, logger)
		wsHandler         = api.NewWSHandler(a, cfg.QueryTimeout, logger)
		collectionHandler = api.NewCollectionHandler(a)
		configHandler     = api.NewConfigHandler(a)
	)

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(middleware.PlugStatic("/static"))

	app.Static("/static", cfg.StaticDir)
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendFile(filepath.Join(cfg.StaticDir, "index.html"))
	})

	check := app.Group("/check")
	check.Get("/healthy", checkHandler.HandleHealthy)

	app.Post("/upload", fileHandler.HandleUpload)
	app.Get("/ws", wsHandler.HandleUpgrade, wsHandler.HandleSession())

	apiv1 := app.Group("/api/v1")
	apiv1.Post("/request", requestHandler.HandleRequest)
	apiv1.Get("/config", configHandler.HandleGetConfig)
	apiv1.Patch("/config", configHandler.HandleSetConfig)

	collection := apiv1.Group("/collection")
	collection.Get("/", collectionHandler.HandleInfo)
	collection.Post("/documents", collectionHandler.HandleAdd)
	collection.Delete("/documents", collectionHandler.HandleDelete)
	collection.Patch("/documents", collectionHandler.HandleUpdate)
	collection.Post("/query", collectionHandler.HandleQuery)
	collection.Post("/reset", collectionHandler.HandleReset)
	collection.Get("/mirror", collectionHandler.HandleMirror)

	return &Server{
		listenAddr: cfg.Addr,
		app:        app,
		logger:     logger.Named("server"),
	}
}

// App exposes the fiber app, mainly for app.Test in handler tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run blocks serving HTTP until Stop is called or the listener fails.
func (s *Server) Run() error {
	s.logger.Info("server started", zap.String("addr", s.listenAddr))
	return s.app.Listen(s.listenAddr)
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.logger.Info("server stopped")
	return err
}
