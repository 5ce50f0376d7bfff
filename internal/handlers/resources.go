package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/services"
)

// ResourcesHandler exposes stored resources and channel bookkeeping over REST
type ResourcesHandler struct {
	editing    *services.EditingService
	registries map[string]*livesync.Registry
}

func NewResourcesHandler(editing *services.EditingService, registries map[string]*livesync.Registry) *ResourcesHandler {
	return &ResourcesHandler{editing: editing, registries: registries}
}

// RegisterRoutes registers resource endpoints
func (h *ResourcesHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Get("/resources", h.ListResources)
	v1.Get("/resources/:resourceId", h.GetResource)
	v1.Put("/resources/:resourceId", h.PutResource)
	v1.Get("/resources/:resourceId/presence", h.GetPresence)
	v1.Get("/resources/:resourceId/subscribers", h.GetSubscribers)
}

// ListResources returns every stored resource
// @Summary List resources
// @Tags resources
// @Produce json
// @Success 200 {array} models.Resource
// @Router /v1/resources [get]
func (h *ResourcesHandler) ListResources(c *fiber.Ctx) error {
	list, err := h.editing.List(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(list)
}

// GetResource returns a stored resource
// @Summary Get resource
// @Tags resources
// @Produce json
// @Param resourceId path string true "Resource id"
// @Success 200 {object} models.Resource
// @Router /v1/resources/{resourceId} [get]
func (h *ResourcesHandler) GetResource(c *fiber.Ctx) error {
	res, err := h.editing.Get(c.UserContext(), param(c, "resourceId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(res)
}

// PutResource creates or replaces a resource and pushes it to editors
// @Summary Put resource
// @Tags resources
// @Accept json
// @Produce json
// @Param resourceId path string true "Resource id"
// @Param request body models.ResourcePutRequest true "Resource content"
// @Success 200 {object} models.Resource
// @Router /v1/resources/{resourceId} [put]
func (h *ResourcesHandler) PutResource(c *fiber.Ctx) error {
	var req models.ResourcePutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	res, err := h.editing.Put(c.UserContext(), param(c, "resourceId"), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(res)
}

// GetPresence lists who is editing a resource
// @Summary Get presence
// @Tags resources
// @Produce json
// @Param resourceId path string true "Resource id"
// @Success 200 {array} models.Editor
// @Router /v1/resources/{resourceId}/presence [get]
func (h *ResourcesHandler) GetPresence(c *fiber.Ctx) error {
	return c.JSON(h.editing.Presence().Editors(param(c, "resourceId")))
}

// GetSubscribers lists the subscriber ids of a resource on one channel
// @Summary Get subscribers
// @Tags resources
// @Produce json
// @Param resourceId path string true "Resource id"
// @Param channel query string false "status or editing" default(editing)
// @Success 200 {array} string
// @Router /v1/resources/{resourceId}/subscribers [get]
func (h *ResourcesHandler) GetSubscribers(c *fiber.Ctx) error {
	channel := c.Query("channel", "editing")
	registry, ok := h.registries[channel]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown channel " + channel,
		})
	}
	return c.JSON(registry.SubscriberIDs(param(c, "resourceId")))
}
