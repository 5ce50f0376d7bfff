package client

import (
	"sync"

	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
	"github.com/vanpelt/livesync/internal/reconcile"
)

// ContainerView is the locally held container list of one status resource
type ContainerView struct {
	mu         sync.RWMutex
	resourceID string
	containers []models.Container
}

// NewContainerView starts from an optional initial list (e.g. server-rendered)
func NewContainerView(resourceID string, initial []models.Container) *ContainerView {
	return &ContainerView{
		resourceID: resourceID,
		containers: append([]models.Container(nil), initial...),
	}
}

// Apply folds one server message into the view and reports whether it changed
func (v *ContainerView) Apply(msg protocol.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch p := msg.Payload.(type) {
	case *protocol.ContainersStateListPayload:
		if !v.matches(p.ResourceID) || len(p.Containers) == 0 {
			return false
		}
		v.containers = reconcile.Reconcile(v.containers, p.Containers)
		return true
	case *protocol.ContainersRemovedPayload:
		if !v.matches(p.ResourceID) {
			return false
		}
		before := len(v.containers)
		v.containers = reconcile.Remove(v.containers, p.IDs)
		return len(v.containers) != before
	default:
		return false
	}
}

func (v *ContainerView) matches(resourceID string) bool {
	return resourceID == "" || v.resourceID == "" || resourceID == v.resourceID
}

// Containers returns a copy of the current list
func (v *ContainerView) Containers() []models.Container {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.Container(nil), v.containers...)
}
