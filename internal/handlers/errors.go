package handlers

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/logger"
)

// errorResponse maps domain errors onto HTTP status codes
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, livesync.ErrUnknownResource):
		status = fiber.StatusNotFound
	case errors.Is(err, livesync.ErrBadRequest):
		status = fiber.StatusBadRequest
	default:
		logger.Errorf("❌ %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// param returns a path parameter with percent-escapes decoded, so resource
// ids like "node-1/shop" can travel as "node-1%2Fshop". The result is a copy
// and stays valid after the handler returns (websocket sessions outlive it).
func param(c *fiber.Ctx, name string) string {
	raw := strings.Clone(c.Params(name))
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
