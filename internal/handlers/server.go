package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	_ "github.com/vanpelt/livesync/docs"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/middleware"
	"github.com/vanpelt/livesync/internal/services"
)

// ServerConfig carries everything the HTTP surface depends on
type ServerConfig struct {
	Status    *services.ContainerStatusService
	Editing   *services.EditingService
	Auth      *middleware.AuthMiddleware
	QueueSize int
	// AccessLog enables the request logger
	AccessLog bool
}

// Server is the fiber app with every livesync route mounted
type Server struct {
	app      *fiber.App
	channels *ChannelHandler
	started  time.Time
	nodeID   string
}

func NewServer(cfg ServerConfig) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "livesync",
		DisableStartupMessage: true,
	})

	s := &Server{
		app:      app,
		channels: NewChannelHandler(cfg.Status, cfg.Editing, cfg.QueueSize),
		started:  time.Now(),
		nodeID:   cfg.Status.NodeID(),
	}

	registries := map[string]*livesync.Registry{
		cfg.Status.Registry().Name():  cfg.Status.Registry(),
		cfg.Editing.Registry().Name(): cfg.Editing.Registry(),
	}

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(SamplingLogger("/health"))
	}
	// API docs are public
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Use(cfg.Auth.RequireAuth)

	app.Get("/health", s.Health)

	v1 := app.Group("/v1")
	s.channels.RegisterRoutes(v1)
	NewEventsHandler(registries, cfg.QueueSize).RegisterRoutes(v1)
	NewContainersHandler(cfg.Status).RegisterRoutes(v1)
	NewResourcesHandler(cfg.Editing, registries).RegisterRoutes(v1)

	return s
}

// App exposes the underlying fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status   string `json:"status"`
	NodeID   string `json:"nodeId"`
	Sessions int    `json:"sessions"`
	Uptime   int64  `json:"uptimeMs"`
}

// Health reports liveness and the number of open sessions
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *Server) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:   "ok",
		NodeID:   s.nodeID,
		Sessions: s.channels.ActiveSessions(),
		Uptime:   time.Since(s.started).Milliseconds(),
	})
}

// Listen serves until Shutdown
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown closes every session and then stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.channels.Shutdown()
	return s.app.ShutdownWithContext(ctx)
}
