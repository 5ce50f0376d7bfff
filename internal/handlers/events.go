package handlers

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/protocol"
)

const sseHeartbeatInterval = 30 * time.Second

// EventsHandler mirrors a channel resource as a read-only Server-Sent Events
// stream, for clients that cannot hold a websocket
type EventsHandler struct {
	registries map[string]*livesync.Registry
	queueSize  int
	heartbeat  time.Duration
}

// NewEventsHandler serves the given registries keyed by channel name
func NewEventsHandler(registries map[string]*livesync.Registry, queueSize int) *EventsHandler {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &EventsHandler{
		registries: registries,
		queueSize:  queueSize,
		heartbeat:  sseHeartbeatInterval,
	}
}

// RegisterRoutes registers the SSE endpoint
func (h *EventsHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Get("/resources/:resourceId/events", h.HandleSSE)
}

// sseSubscriber buffers frames for one stream. A full buffer fails the send,
// which makes the registry drop the stream.
type sseSubscriber struct {
	id     string
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *sseSubscriber) ID() string { return s.id }

func (s *sseSubscriber) Send(frame []byte) error {
	select {
	case <-s.done:
		return livesync.ErrSessionClosed
	default:
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		return fmt.Errorf("%w: event stream %s is not keeping up", livesync.ErrDeliveryFailure, s.id)
	}
}

func (s *sseSubscriber) Disconnect(error) {
	s.once.Do(func() { close(s.done) })
}

// HandleSSE streams every envelope broadcast for a resource
// @Summary Stream resource events
// @Description Mirrors the websocket channel of a resource as text/event-stream
// @Tags events
// @Param resourceId path string true "Resource id (status ids are <node>/<prefix>, escaped)"
// @Param channel query string false "status or editing" default(status)
// @Router /v1/resources/{resourceId}/events [get]
func (h *EventsHandler) HandleSSE(c *fiber.Ctx) error {
	if ah := c.Get("Accept"); ah != "" && !strings.Contains(ah, "text/event-stream") && !strings.Contains(ah, "*/*") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "This endpoint only accepts Server-Sent Events (text/event-stream)",
		})
	}

	channel := c.Query("channel", "status")
	registry, ok := h.registries[channel]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("unknown channel %q", channel),
		})
	}
	resourceID := param(c, "resourceId")

	sub := &sseSubscriber{
		id:     "sse-" + uuid.New().String(),
		frames: make(chan []byte, h.queueSize),
		done:   make(chan struct{}),
	}
	// The snapshot is queued on subscribe, so subscribing before the stream
	// starts loses nothing and lets an unknown resource fail with a status code
	if err := registry.Subscribe(c.UserContext(), resourceID, sub); err != nil {
		return errorResponse(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // disable nginx buffering

	logger.Infof("SSE client %s connected to %s/%s from %s", sub.id, channel, resourceID, c.IP())
	heartbeat := h.heartbeat

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			sub.Disconnect(nil)
			registry.Unsubscribe(resourceID, sub)
			logger.Debugf("SSE client %s disconnected", sub.id)
		}()

		send := func(frame []byte) bool {
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		if !send(protocol.MustEncode(protocol.TypePing, protocol.PingPayload{})) {
			return
		}

		tick := time.NewTicker(heartbeat)
		defer tick.Stop()

		for {
			select {
			case frame := <-sub.frames:
				if !send(frame) {
					return
				}
			case <-tick.C:
				if !send(protocol.MustEncode(protocol.TypePing, protocol.PingPayload{})) {
					return
				}
			case <-sub.done:
				return
			}
		}
	}))

	return nil
}
