package handlers

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/middleware"
	"github.com/vanpelt/livesync/internal/services"
)

// ChannelHandler upgrades requests to websocket sessions on the status and
// editing channels
type ChannelHandler struct {
	status    *services.ContainerStatusService
	editing   *services.EditingService
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc

	sessionsMu sync.Mutex
	sessions   map[string]*livesync.Session
}

// NewChannelHandler creates a handler whose sessions live until Shutdown
func NewChannelHandler(status *services.ContainerStatusService, editing *services.EditingService, queueSize int) *ChannelHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChannelHandler{
		status:    status,
		editing:   editing,
		queueSize: queueSize,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*livesync.Session),
	}
}

// RegisterRoutes registers the websocket endpoints
func (h *ChannelHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Get("/nodes/:nodeId/ws", h.HandleStatusWebSocket)
	v1.Get("/versions/:versionId/ws", h.HandleEditingWebSocket)
}

// HandleStatusWebSocket serves live container state of one node
func (h *ChannelHandler) HandleStatusWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	nodeID := param(c, "nodeId")
	cfg := livesync.SessionConfig{
		Identity:  middleware.EditorFrom(c),
		Registry:  h.status.Registry(),
		Handlers:  h.status.Handlers(nodeID),
		QueueSize: h.queueSize,
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, "status", nodeID, cfg)
	})(c)
}

// HandleEditingWebSocket serves collaborative editing of one version's resources
func (h *ChannelHandler) HandleEditingWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	versionID := param(c, "versionId")
	cfg := livesync.SessionConfig{
		Identity:  middleware.EditorFrom(c),
		Registry:  h.editing.Registry(),
		Presence:  h.editing.Presence(),
		Handlers:  h.editing.Handlers(versionID),
		QueueSize: h.queueSize,
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, "editing", versionID, cfg)
	})(c)
}

// serve blocks for the lifetime of the connection, as fiber's websocket
// handler requires
func (h *ChannelHandler) serve(conn *websocket.Conn, channel, scope string, cfg livesync.SessionConfig) {
	sess := livesync.NewSession(conn, cfg)

	h.sessionsMu.Lock()
	h.sessions[sess.ID()] = sess
	h.sessionsMu.Unlock()

	defer func() {
		h.sessionsMu.Lock()
		delete(h.sessions, sess.ID())
		h.sessionsMu.Unlock()
	}()

	logger.Infof("📡 %s session %s opened for %s by %s from %s", channel, sess.ID(), scope, cfg.Identity.ID, conn.RemoteAddr())
	if err := sess.Run(h.ctx); err != nil {
		logger.Warnf("⚠️ %s session %s ended: %v", channel, sess.ID(), err)
	}
	logger.Infof("🔌 %s session %s closed", channel, sess.ID())
}

// ActiveSessions reports how many websocket sessions are open
func (h *ChannelHandler) ActiveSessions() int {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every open session
func (h *ChannelHandler) Shutdown() {
	h.cancel()

	h.sessionsMu.Lock()
	open := make([]*livesync.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.sessionsMu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}
}
