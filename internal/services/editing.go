package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
	"github.com/vanpelt/livesync/internal/store"
)

// sectionResetValues holds the value a reset section takes when it is not
// null. A reset user section means "no user override".
var sectionResetValues = map[string]any{
	"user": -1,
}

// ResetValue is what resetSection writes into section
func ResetValue(section string) any {
	return sectionResetValues[section]
}

// EditingService applies patches from editing channel sessions to the
// resource store and fans the results out to the other editors
type EditingService struct {
	store    store.Store
	registry *livesync.Registry
	presence *livesync.PresenceTracker
	log      zerolog.Logger

	// serializes store writes with their snapshot and broadcast so every
	// subscriber sees the updates of one resource in commit order
	writeMu sync.Mutex
}

// NewEditingService creates the service and the editing channel registry it feeds
func NewEditingService(st store.Store, opts ...livesync.RegistryOption) *EditingService {
	s := &EditingService{
		store: st,
		log:   logger.With("component", "editing"),
	}
	opts = append(opts, livesync.WithSnapshotProvider(s.Snapshot))
	s.registry = livesync.NewRegistry("editing", opts...)
	s.presence = livesync.NewPresenceTracker(s.registry)
	return s
}

// Registry returns the editing channel registry
func (s *EditingService) Registry() *livesync.Registry {
	return s.registry
}

// Presence returns the tracker of who is editing what
func (s *EditingService) Presence() *livesync.PresenceTracker {
	return s.presence
}

// Snapshot is the editing registry's snapshot provider: an update frame
// carrying every field of the stored resource
func (s *EditingService) Snapshot(ctx context.Context, resourceID string) ([]byte, error) {
	res, err := s.get(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return fullUpdateFrame(res)
}

// Get returns a stored resource
func (s *EditingService) Get(ctx context.Context, id string) (*models.Resource, error) {
	return s.get(ctx, id)
}

func (s *EditingService) get(ctx context.Context, id string) (*models.Resource, error) {
	res, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return res, nil
}

// List returns every stored resource
func (s *EditingService) List(ctx context.Context) ([]*models.Resource, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return list, nil
}

// Put creates or replaces a resource and pushes its full state to watchers
func (s *EditingService) Put(ctx context.Context, id string, req models.ResourcePutRequest) (*models.Resource, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: resource id is required", livesync.ErrBadRequest)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.store.Put(ctx, &models.Resource{ID: id, Kind: req.Kind, Fields: req.Fields})
	if err != nil {
		return nil, storeError(err)
	}
	frame, err := fullUpdateFrame(res)
	if err != nil {
		return nil, err
	}
	s.registry.Publish(id, frame)
	return res, nil
}

// Apply merges a patch into the stored resource. The sender is acknowledged
// by the caller; every other subscriber receives the changed fields.
func (s *EditingService) Apply(ctx context.Context, senderID string, patch *protocol.PatchPayload) (*models.Resource, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	fields, resetSection := patch.Fields, patch.ResetSection
	if v := ResetValue(resetSection); v != nil {
		// Non-null resets are an ordinary write applied after the patch
		fields = maps.Clone(fields)
		if fields == nil {
			fields = make(map[string]any, 1)
		}
		fields[resetSection] = v
		resetSection = ""
	}

	res, err := s.store.Apply(ctx, patch.ID, fields, resetSection)
	if err != nil {
		return nil, storeError(err)
	}

	snapshot, err := fullUpdateFrame(res)
	if err != nil {
		return nil, err
	}
	s.registry.SetSnapshot(patch.ID, snapshot)

	changed := maps.Clone(patch.Fields)
	if changed == nil {
		changed = make(map[string]any, 1)
	}
	if patch.ResetSection != "" {
		changed[patch.ResetSection] = ResetValue(patch.ResetSection)
	}
	frame, err := protocol.Encode(protocol.TypeUpdate, protocol.UpdatePayload{ID: patch.ID, Fields: changed})
	if err != nil {
		return nil, err
	}
	delivered := s.registry.BroadcastExcept(patch.ID, frame, senderID)

	s.log.Debug().
		Str("resource", patch.ID).
		Int("fields", len(changed)).
		Int("delivered", delivered).
		Msg("applied patch")
	return res, nil
}

// Delete removes a resource and tells every watcher, the requester included
func (s *EditingService) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		return storeError(err)
	}
	s.registry.DropSnapshot(id)

	frame, err := protocol.Encode(protocol.TypeDeleted, protocol.DeletedPayload{ID: id})
	if err != nil {
		return err
	}
	delivered := s.registry.Broadcast(id, frame)
	s.log.Info().Str("resource", id).Int("delivered", delivered).Msg("deleted resource")
	return nil
}

// Handlers builds the dispatch table for an editing channel session opened
// on versionID. A watch-request without a resource id watches the version.
func (s *EditingService) Handlers(versionID string) livesync.Handlers {
	return livesync.Handlers{
		protocol.TypeWatchRequest: func(ctx context.Context, sess *livesync.Session, msg protocol.Message) error {
			req := msg.Payload.(*protocol.WatchRequestPayload)
			resourceID := req.ResourceID
			if resourceID == "" {
				resourceID = versionID
			}
			return sess.Watch(ctx, resourceID)
		},

		protocol.TypePatch: func(ctx context.Context, sess *livesync.Session, msg protocol.Message) error {
			patch := msg.Payload.(*protocol.PatchPayload)
			if err := requireWatching(sess, patch.ID); err != nil {
				return err
			}
			if _, err := s.Apply(ctx, sess.ID(), patch); err != nil {
				return err
			}
			return sess.Reply(protocol.TypePatchReceived, protocol.PatchReceivedPayload{ID: patch.ID})
		},

		protocol.TypeDeleteRequest: func(ctx context.Context, sess *livesync.Session, msg protocol.Message) error {
			req := msg.Payload.(*protocol.DeleteRequestPayload)
			if err := requireWatching(sess, req.ID); err != nil {
				return err
			}
			return s.Delete(ctx, req.ID)
		},

		// Presence always uses the connection's own identity; the editorId a
		// client puts in the payload is not trusted
		protocol.TypePresenceJoin: func(_ context.Context, sess *livesync.Session, _ protocol.Message) error {
			return sess.JoinPresence()
		},
		protocol.TypePresenceLeave: func(_ context.Context, sess *livesync.Session, _ protocol.Message) error {
			return sess.LeavePresence()
		},
	}
}

// Close releases the editing registry
func (s *EditingService) Close() error {
	return s.registry.Close()
}

func requireWatching(sess *livesync.Session, id string) error {
	watching := sess.Watching()
	if watching == "" {
		return fmt.Errorf("%w: send watch-request before editing", livesync.ErrBadRequest)
	}
	if watching != id {
		return fmt.Errorf("%w: session watches %q, not %q", livesync.ErrBadRequest, watching, id)
	}
	return nil
}

func storeError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", livesync.ErrUnknownResource, err)
	}
	return err
}

func fullUpdateFrame(res *models.Resource) ([]byte, error) {
	fields := res.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return protocol.Encode(protocol.TypeUpdate, protocol.UpdatePayload{ID: res.ID, Fields: fields})
}
