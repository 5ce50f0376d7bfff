package protocol

import (
	"fmt"

	"github.com/vanpelt/livesync/internal/models"
)

// MessageType is the wire-level tag of an envelope
type MessageType string

// Message type constants shared with the browser client
const (
	// Client to server
	TypeWatchRequest  MessageType = "watch-request"
	TypePatch         MessageType = "patch"
	TypeDeleteRequest MessageType = "delete-request"

	// Server to client
	TypeContainersStateList MessageType = "containers-state-list"
	TypeContainersRemoved   MessageType = "containers-removed"
	TypePatchReceived       MessageType = "patch-received"
	TypeUpdate              MessageType = "update"
	TypeDeleted             MessageType = "deleted"
	TypeError               MessageType = "error"

	// Bidirectional
	TypePresenceJoin  MessageType = "presence-join"
	TypePresenceLeave MessageType = "presence-leave"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"
)

// Error codes carried by ErrorPayload
const (
	CodeUnknownResource = "unknown-resource"
	CodeBadRequest      = "bad-request"
	CodeInternal        = "internal"
)

type WatchRequestPayload struct {
	ResourceID   string            `json:"resourceId,omitempty"`
	Prefix       string            `json:"prefix,omitempty"`
	DeploymentID string            `json:"deploymentId,omitempty"`
	Filter       map[string]string `json:"filter,omitempty"`
}

func (p *WatchRequestPayload) validate() error {
	if p.ResourceID == "" && p.Prefix == "" {
		return fmt.Errorf("resourceId or prefix is required")
	}
	return nil
}

type ContainersStateListPayload struct {
	ResourceID string             `json:"resourceId,omitempty"`
	Containers []models.Container `json:"containers"`
}

type ContainersRemovedPayload struct {
	ResourceID string               `json:"resourceId,omitempty"`
	IDs        []models.ContainerID `json:"ids"`
}

type PatchPayload struct {
	ID           string         `json:"id"`
	Fields       map[string]any `json:"fields,omitempty"`
	ResetSection string         `json:"resetSection,omitempty"`
}

func (p *PatchPayload) validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(p.Fields) == 0 && p.ResetSection == "" {
		return fmt.Errorf("fields or resetSection is required")
	}
	return nil
}

type PatchReceivedPayload struct {
	ID string `json:"id,omitempty"`
}

type UpdatePayload struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (p *UpdatePayload) validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

type DeleteRequestPayload struct {
	ID string `json:"id"`
}

func (p *DeleteRequestPayload) validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

type DeletedPayload struct {
	ID string `json:"id"`
}

// PresencePayload is sent by clients with only EditorID set; the server
// echoes it to subscribers with the full updated editor set attached.
type PresencePayload struct {
	EditorID string          `json:"editorId,omitempty"`
	Editors  []models.Editor `json:"editors,omitempty"`
}

type ErrorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ResourceID string `json:"resourceId,omitempty"`
}

type PingPayload struct{}

// Unknown carries an envelope whose tag this build does not understand.
// Receivers must ignore it.
type Unknown struct {
	Raw []byte
}
