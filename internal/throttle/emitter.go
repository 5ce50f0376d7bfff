// Package throttle batches rapid field edits into at most one outbound patch
// per flush window.
package throttle

import (
	"maps"
	"sync"
	"time"
)

// FlushFunc receives the union of changes recorded since the previous flush.
// It owns the map it is given.
type FlushFunc func(fields map[string]any)

// PatchEmitter accumulates field changes (last write wins per field) and
// flushes them once per window. The first change after an idle period arms a
// timer; further changes inside the window only update the accumulator.
type PatchEmitter struct {
	window time.Duration
	flush  FlushFunc

	mu      sync.Mutex
	pending map[string]any
	timer   *time.Timer
	armed   uint64
	closed  bool
}

// NewPatchEmitter creates an emitter that calls flush at most once per window
func NewPatchEmitter(window time.Duration, flush FlushFunc) *PatchEmitter {
	return &PatchEmitter{
		window:  window,
		flush:   flush,
		pending: make(map[string]any),
	}
}

// RecordChange merges one field change into the pending accumulator
func (e *PatchEmitter) RecordChange(field string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.pending[field] = value
	if e.timer == nil {
		e.armed++
		gen := e.armed
		e.timer = time.AfterFunc(e.window, func() { e.onWindow(gen) })
	}
}

// Pending returns a copy of the changes not yet flushed
func (e *PatchEmitter) Pending() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.pending)
}

// Flush sends pending changes immediately instead of waiting for the window
func (e *PatchEmitter) Flush() {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	fields := e.takeLocked()
	e.mu.Unlock()

	if len(fields) > 0 {
		e.flush(fields)
	}
}

// Close cancels the pending timer and discards undelivered changes
func (e *PatchEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.pending = make(map[string]any)
}

func (e *PatchEmitter) onWindow(gen uint64) {
	e.mu.Lock()
	// A Flush or Close may have replaced this timer while it was firing
	if gen != e.armed || e.timer == nil {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	if e.closed {
		e.mu.Unlock()
		return
	}
	fields := e.takeLocked()
	e.mu.Unlock()

	if len(fields) > 0 {
		e.flush(fields)
	}
}

// takeLocked swaps the accumulator out; caller must hold e.mu
func (e *PatchEmitter) takeLocked() map[string]any {
	if len(e.pending) == 0 {
		return nil
	}
	fields := e.pending
	e.pending = make(map[string]any)
	return fields
}
