package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/services"
)

// ContainersHandler lets an external agent push container state for a node
type ContainersHandler struct {
	status *services.ContainerStatusService
}

func NewContainersHandler(status *services.ContainerStatusService) *ContainersHandler {
	return &ContainersHandler{status: status}
}

// RegisterRoutes registers the ingestion endpoints
func (h *ContainersHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Post("/nodes/:nodeId/containers", h.PublishContainers)
	v1.Get("/nodes/:nodeId/containers/:prefix", h.ListContainers)
	v1.Delete("/nodes/:nodeId/containers/:prefix/:name", h.RemoveContainer)
}

// PublishContainers accepts an authoritative list for one prefix
// @Summary Publish container state
// @Tags containers
// @Accept json
// @Produce json
// @Param nodeId path string true "Node id"
// @Param request body models.ContainerListRequest true "Containers of one prefix"
// @Success 200 {object} models.PublishResponse
// @Router /v1/nodes/{nodeId}/containers [post]
func (h *ContainersHandler) PublishContainers(c *fiber.Ctx) error {
	var req models.ContainerListRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	nodeID := param(c, "nodeId")
	delivered, err := h.status.Publish(nodeID, req.Prefix, req.Containers)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(models.PublishResponse{
		ResourceID: services.StatusResourceID(nodeID, req.Prefix),
		Delivered:  delivered,
	})
}

// ListContainers returns the node's current view of one prefix
// @Summary List known containers
// @Tags containers
// @Produce json
// @Param nodeId path string true "Node id"
// @Param prefix path string true "Deployment prefix"
// @Success 200 {array} models.Container
// @Router /v1/nodes/{nodeId}/containers/{prefix} [get]
func (h *ContainersHandler) ListContainers(c *fiber.Ctx) error {
	nodeID := param(c, "nodeId")
	if nodeID != h.status.NodeID() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown node",
		})
	}
	containers := h.status.Containers(services.StatusResourceID(nodeID, param(c, "prefix")))
	if containers == nil {
		containers = []models.Container{}
	}
	return c.JSON(containers)
}

// RemoveContainer announces that a container no longer exists
// @Summary Remove a container
// @Tags containers
// @Produce json
// @Param nodeId path string true "Node id"
// @Param prefix path string true "Deployment prefix"
// @Param name path string true "Container name within the prefix"
// @Success 200 {object} models.PublishResponse
// @Router /v1/nodes/{nodeId}/containers/{prefix}/{name} [delete]
func (h *ContainersHandler) RemoveContainer(c *fiber.Ctx) error {
	nodeID, prefix := param(c, "nodeId"), param(c, "prefix")
	delivered, err := h.status.Remove(nodeID, prefix, []models.ContainerID{{Prefix: prefix, Name: param(c, "name")}})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(models.PublishResponse{
		ResourceID: services.StatusResourceID(nodeID, prefix),
		Delivered:  delivered,
	})
}
