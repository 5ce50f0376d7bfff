package client

import (
	"time"

	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/protocol"
	"github.com/vanpelt/livesync/internal/throttle"
)

// Sender is the part of Client an Editor writes through
type Sender interface {
	Send(t protocol.MessageType, payload any) error
}

// Editor edits one resource over the editing channel. Field changes are
// coalesced and sent as at most one patch per window.
type Editor struct {
	sender     Sender
	resourceID string
	emitter    *throttle.PatchEmitter
	onError    func(error)
}

func NewEditor(sender Sender, resourceID string, window time.Duration) *Editor {
	e := &Editor{
		sender:     sender,
		resourceID: resourceID,
	}
	e.emitter = throttle.NewPatchEmitter(window, e.sendPatch)
	return e
}

// SetErrorHandler receives send failures of flushed patches
func (e *Editor) SetErrorHandler(handler func(error)) {
	e.onError = handler
}

// Set records a local field edit
func (e *Editor) Set(field string, value any) {
	e.emitter.RecordChange(field, value)
}

// Reset flushes pending edits and then asks the server to clear one section
func (e *Editor) Reset(section string) error {
	e.emitter.Flush()
	return e.sender.Send(protocol.TypePatch, protocol.PatchPayload{ID: e.resourceID, ResetSection: section})
}

// Join announces this editor on the resource
func (e *Editor) Join() error {
	return e.sender.Send(protocol.TypePresenceJoin, protocol.PresencePayload{})
}

// Leave withdraws this editor's presence
func (e *Editor) Leave() error {
	return e.sender.Send(protocol.TypePresenceLeave, protocol.PresencePayload{})
}

// Flush sends pending edits immediately
func (e *Editor) Flush() {
	e.emitter.Flush()
}

// Close stops the window timer. Edits not yet flushed are discarded.
func (e *Editor) Close() {
	e.emitter.Close()
}

func (e *Editor) sendPatch(fields map[string]any) {
	err := e.sender.Send(protocol.TypePatch, protocol.PatchPayload{ID: e.resourceID, Fields: fields})
	if err == nil {
		return
	}
	if e.onError != nil {
		e.onError(err)
		return
	}
	logger.Warnf("failed to send patch for %s: %v", e.resourceID, err)
}
