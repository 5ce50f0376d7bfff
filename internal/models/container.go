package models

import (
	"time"
)

// ContainerState mirrors the lifecycle states reported by the container runtime
type ContainerState string

const (
	ContainerStateCreated    ContainerState = "created"
	ContainerStateRestarting ContainerState = "restarting"
	ContainerStateRunning    ContainerState = "running"
	ContainerStateRemoving   ContainerState = "removing"
	ContainerStatePaused     ContainerState = "paused"
	ContainerStateExited     ContainerState = "exited"
	ContainerStateDead       ContainerState = "dead"
)

// ContainerID identifies a container across snapshots. It is not a runtime ID.
type ContainerID struct {
	Prefix string `json:"prefix"` // Deployment prefix
	Name   string `json:"name"`   // Container name inside the deployment
}

// Key renders the id for display and logs, e.g. "shop-web". It is not
// injective ({a-b c} and {a b-c} render alike); match on ContainerID itself.
func (id ContainerID) Key() string {
	return id.Prefix + "-" + id.Name
}

// ContainerPort is one exposed port mapping
type ContainerPort struct {
	Internal int `json:"internal"`
	External int `json:"external"`
}

// Container is the observed state of one container at a point in time.
// A nil State means the state is not known yet.
type Container struct {
	ID        ContainerID     `json:"id"`
	CreatedAt *time.Time      `json:"createdAt"`
	State     *ContainerState `json:"state"`
	Reason    *string         `json:"reason"`
	ImageName string          `json:"imageName"`
	ImageTag  string          `json:"imageTag"`
	Ports     []ContainerPort `json:"ports"`
}

// Key is shorthand for c.ID.Key()
func (c Container) Key() string {
	return c.ID.Key()
}

// StateOrUnknown renders the state for display
func (c Container) StateOrUnknown() string {
	if c.State == nil {
		return "unknown"
	}
	return string(*c.State)
}

// StatePtr is a helper for literals and tests
func StatePtr(s ContainerState) *ContainerState {
	return &s
}

// ContainerListRequest is pushed by an external agent reporting the
// authoritative containers of one deployment prefix
type ContainerListRequest struct {
	Prefix     string      `json:"prefix"`
	Containers []Container `json:"containers"`
}

// PublishResponse reports where a pushed update went
type PublishResponse struct {
	ResourceID string `json:"resourceId"`
	Delivered  int    `json:"delivered"`
}
