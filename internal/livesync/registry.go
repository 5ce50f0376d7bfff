// Package livesync implements the live session channel: a registry of
// per-resource subscribers, duplex client sessions, and editor presence.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vanpelt/livesync/internal/cache"
	"github.com/vanpelt/livesync/internal/logger"
)

// Subscriber is anything that can receive frames for a resource. Send must not
// block; a returned error removes the subscriber from the resource.
type Subscriber interface {
	ID() string
	Send(frame []byte) error
}

// Disconnecter is implemented by subscribers that must tear themselves down
// after a failed delivery (e.g. a websocket session)
type Disconnecter interface {
	Disconnect(reason error)
}

// SnapshotProvider supplies the current authoritative frame for a resource
// when nothing is cached. It returns (nil, nil) when there is no snapshot yet,
// and an error wrapping ErrUnknownResource when the resource does not exist.
type SnapshotProvider func(ctx context.Context, resourceID string) ([]byte, error)

type resourceEntry struct {
	mu          sync.Mutex
	subscribers map[string]Subscriber
	// pending holds frames broadcast to a subscriber that is still waiting
	// for its snapshot; they are delivered right after it
	pending map[string][][]byte
	removed bool
}

// Registry maps resource ids to their subscribers. Each resource has its own
// lock so unrelated resources never contend.
type Registry struct {
	name      string
	mu        sync.Mutex
	resources map[string]*resourceEntry
	snapshots *cache.SnapshotCache
	provider  SnapshotProvider
	log       zerolog.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithSnapshotProvider sets the callback used on subscribe when no snapshot is cached
func WithSnapshotProvider(p SnapshotProvider) RegistryOption {
	return func(r *Registry) { r.provider = p }
}

// WithSnapshotCache replaces the default snapshot cache
func WithSnapshotCache(c *cache.SnapshotCache) RegistryOption {
	return func(r *Registry) { r.snapshots = c }
}

// NewRegistry creates a registry for one channel kind
func NewRegistry(name string, opts ...RegistryOption) *Registry {
	r := &Registry{
		name:      name,
		resources: make(map[string]*resourceEntry),
		log:       logger.With("registry", name),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.snapshots == nil {
		r.snapshots = cache.NewSnapshotCacheWithConfig(cache.DefaultConfig())
	}
	return r
}

// Name returns the channel kind this registry serves
func (r *Registry) Name() string {
	return r.name
}

// Subscribe adds sub to resourceID. It is idempotent; a new subscriber
// immediately receives the cached (or provided) snapshot if one exists,
// followed by every frame broadcast since it was added, in order.
func (r *Registry) Subscribe(ctx context.Context, resourceID string, sub Subscriber) error {
	entry, added := r.add(resourceID, sub)
	if !added {
		return nil
	}

	// The snapshot is read after sub is registered. Anything published from
	// here on is queued in entry.pending, so nothing falls between the two.
	frame, cached := r.snapshots.Get(resourceID)
	if !cached && r.provider != nil {
		provided, err := r.provider(ctx, resourceID)
		if err != nil {
			r.Unsubscribe(resourceID, sub)
			return fmt.Errorf("subscribe %s: %w", resourceID, err)
		}
		frame = provided
	}

	entry.mu.Lock()
	queued, stillPending := entry.pending[sub.ID()]
	delete(entry.pending, sub.ID())
	var sendErr error
	if stillPending {
		if frame != nil {
			sendErr = sub.Send(frame)
		}
		for _, f := range queued {
			if sendErr != nil {
				break
			}
			sendErr = sub.Send(f)
		}
	}
	entry.mu.Unlock()

	if !stillPending {
		// Unsubscribed while the snapshot was loading
		return nil
	}
	if sendErr != nil {
		r.dropFailed(resourceID, sub, sendErr)
		return fmt.Errorf("subscribe %s: initial snapshot: %w", resourceID, errors.Join(ErrDeliveryFailure, sendErr))
	}

	r.log.Debug().Str("resource", resourceID).Str("subscriber", sub.ID()).Int("queued", len(queued)).Msg("subscribed")
	return nil
}

func (r *Registry) add(resourceID string, sub Subscriber) (*resourceEntry, bool) {
	for {
		r.mu.Lock()
		entry, ok := r.resources[resourceID]
		if !ok {
			entry = &resourceEntry{
				subscribers: make(map[string]Subscriber),
				pending:     make(map[string][][]byte),
			}
			r.resources[resourceID] = entry
		}
		r.mu.Unlock()

		entry.mu.Lock()
		if entry.removed {
			// Lost a race with the last unsubscribe; fetch the replacement entry
			entry.mu.Unlock()
			continue
		}
		if _, exists := entry.subscribers[sub.ID()]; exists {
			entry.mu.Unlock()
			return entry, false
		}
		entry.subscribers[sub.ID()] = sub
		entry.pending[sub.ID()] = nil
		entry.mu.Unlock()
		return entry, true
	}
}

// Unsubscribe removes sub from resourceID. It is idempotent. When the last
// subscriber leaves, the entry and its cached snapshot are released.
func (r *Registry) Unsubscribe(resourceID string, sub Subscriber) {
	r.mu.Lock()
	entry, ok := r.resources[resourceID]
	r.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	_, existed := entry.subscribers[sub.ID()]
	delete(entry.subscribers, sub.ID())
	delete(entry.pending, sub.ID())
	empty := len(entry.subscribers) == 0
	entry.mu.Unlock()

	if existed {
		r.log.Debug().Str("resource", resourceID).Str("subscriber", sub.ID()).Msg("unsubscribed")
	}
	if empty {
		r.releaseIfEmpty(resourceID, entry)
	}
}

func (r *Registry) releaseIfEmpty(resourceID string, entry *resourceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed || len(entry.subscribers) > 0 || r.resources[resourceID] != entry {
		return
	}
	entry.removed = true
	delete(r.resources, resourceID)
	r.snapshots.Release(resourceID)
}

// Broadcast sends frame to every subscriber of resourceID and returns how many
// accepted it. Delivery is best-effort per subscriber: a failure removes that
// subscriber and does not affect the others.
func (r *Registry) Broadcast(resourceID string, frame []byte) int {
	return r.deliver(resourceID, frame, "", false)
}

// BroadcastExcept is Broadcast that skips one subscriber (usually the sender)
func (r *Registry) BroadcastExcept(resourceID string, frame []byte, exceptID string) int {
	return r.deliver(resourceID, frame, exceptID, false)
}

// Publish caches frame as the authoritative snapshot of resourceID and
// broadcasts it
func (r *Registry) Publish(resourceID string, frame []byte) int {
	return r.deliver(resourceID, frame, "", true)
}

// deliver sends under the entry lock, so a subscriber being added sees each
// frame either in its snapshot or in its pending queue. Send never blocks.
func (r *Registry) deliver(resourceID string, frame []byte, exceptID string, snapshot bool) int {
	var entry *resourceEntry
	for {
		r.mu.Lock()
		e, ok := r.resources[resourceID]
		if !ok {
			// Cached under r.mu so a subscriber creating the entry next reads it
			if snapshot {
				r.snapshots.Put(resourceID, frame)
			}
			r.mu.Unlock()
			return 0
		}
		r.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			entry = e
			break
		}
		e.mu.Unlock()
	}

	type failure struct {
		sub Subscriber
		err error
	}
	var failed []failure
	delivered := 0

	// entry.mu is held from the loop above
	if snapshot {
		r.snapshots.Put(resourceID, frame)
	}
	for id, sub := range entry.subscribers {
		if id == exceptID {
			continue
		}
		if queued, waiting := entry.pending[id]; waiting {
			entry.pending[id] = append(queued, frame)
			delivered++
			continue
		}
		if err := sub.Send(frame); err != nil {
			failed = append(failed, failure{sub, err})
			continue
		}
		delivered++
	}
	entry.mu.Unlock()

	for _, f := range failed {
		r.dropFailed(resourceID, f.sub, f.err)
	}
	return delivered
}

// SetSnapshot replaces the cached snapshot of resourceID without broadcasting
func (r *Registry) SetSnapshot(resourceID string, frame []byte) {
	r.snapshots.Put(resourceID, frame)
}

// DropSnapshot forgets the cached snapshot of resourceID
func (r *Registry) DropSnapshot(resourceID string) {
	r.snapshots.Release(resourceID)
}

// Snapshot returns the cached snapshot of resourceID
func (r *Registry) Snapshot(resourceID string) ([]byte, bool) {
	return r.snapshots.Get(resourceID)
}

// IsSubscribed reports whether the subscriber id is a delivery target of resourceID
func (r *Registry) IsSubscribed(resourceID, subscriberID string) bool {
	r.mu.Lock()
	entry, ok := r.resources[resourceID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	_, ok = entry.subscribers[subscriberID]
	return ok
}

// SubscriberIDs lists the subscribers of resourceID in sorted order
func (r *Registry) SubscriberIDs(resourceID string) []string {
	subs := r.subscribers(resourceID)
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID())
	}
	sort.Strings(ids)
	return ids
}

// Resources lists resource ids with at least one subscriber
func (r *Registry) Resources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.resources))
	for id := range r.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases the snapshot cache
func (r *Registry) Close() error {
	return r.snapshots.Close()
}

func (r *Registry) subscribers(resourceID string) []Subscriber {
	r.mu.Lock()
	entry, ok := r.resources[resourceID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	out := make([]Subscriber, 0, len(entry.subscribers))
	for _, s := range entry.subscribers {
		out = append(out, s)
	}
	return out
}

func (r *Registry) dropFailed(resourceID string, sub Subscriber, err error) {
	r.log.Warn().Err(err).Str("resource", resourceID).Str("subscriber", sub.ID()).Msg("delivery failed, removing subscriber")
	r.Unsubscribe(resourceID, sub)
	if d, ok := sub.(Disconnecter); ok {
		d.Disconnect(errors.Join(ErrDeliveryFailure, err))
	}
}
