package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vanpelt/livesync/internal/livesync"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
	"github.com/vanpelt/livesync/internal/reconcile"
)

// StatusResourceID is the status channel resource for one deployment prefix
// on one node, e.g. "node-1/shop"
func StatusResourceID(nodeID, prefix string) string {
	return nodeID + "/" + prefix
}

// ParseStatusResourceID splits a status resource id into node and prefix
func ParseStatusResourceID(resourceID string) (nodeID, prefix string, err error) {
	nodeID, prefix, ok := strings.Cut(resourceID, "/")
	if !ok || nodeID == "" || prefix == "" {
		return "", "", fmt.Errorf("%w: %q is not <node>/<prefix>", livesync.ErrUnknownResource, resourceID)
	}
	return nodeID, prefix, nil
}

// ContainerStatusService holds the authoritative container view of this node
// and pushes it to status channel subscribers
type ContainerStatusService struct {
	nodeID   string
	registry *livesync.Registry
	log      zerolog.Logger

	mu    sync.Mutex
	state map[string][]models.Container
}

// NewContainerStatusService creates the service and the status channel registry it feeds
func NewContainerStatusService(nodeID string, opts ...livesync.RegistryOption) *ContainerStatusService {
	s := &ContainerStatusService{
		nodeID: nodeID,
		log:    logger.With("component", "container-status"),
		state:  make(map[string][]models.Container),
	}
	opts = append(opts, livesync.WithSnapshotProvider(s.Snapshot))
	s.registry = livesync.NewRegistry("status", opts...)
	return s
}

// NodeID returns the node this service reports for
func (s *ContainerStatusService) NodeID() string {
	return s.nodeID
}

// Registry returns the status channel registry
func (s *ContainerStatusService) Registry() *livesync.Registry {
	return s.registry
}

func (s *ContainerStatusService) checkNode(nodeID string) error {
	if nodeID != s.nodeID {
		return fmt.Errorf("%w: node %q", livesync.ErrUnknownResource, nodeID)
	}
	return nil
}

// Snapshot is the status registry's snapshot provider. A known node with no
// observed containers yet has no snapshot.
func (s *ContainerStatusService) Snapshot(_ context.Context, resourceID string) ([]byte, error) {
	nodeID, _, err := ParseStatusResourceID(resourceID)
	if err != nil {
		return nil, err
	}
	if err := s.checkNode(nodeID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	containers, ok := s.state[resourceID]
	if !ok {
		return nil, nil
	}
	return stateListFrame(resourceID, containers)
}

// Containers returns the known containers of a status resource
func (s *ContainerStatusService) Containers(resourceID string) []models.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Container(nil), s.state[resourceID]...)
}

// Prefixes lists the deployment prefixes that currently have watchers
func (s *ContainerStatusService) Prefixes() []string {
	var prefixes []string
	for _, id := range s.registry.Resources() {
		nodeID, prefix, err := ParseStatusResourceID(id)
		if err == nil && nodeID == s.nodeID {
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes
}

// Publish folds an authoritative container list into the node's view and
// broadcasts the resulting full state list. It returns how many subscribers
// received it. Containers missing from the list keep their last known state.
func (s *ContainerStatusService) Publish(nodeID, prefix string, containers []models.Container) (int, error) {
	if err := s.checkNode(nodeID); err != nil {
		return 0, err
	}
	normalized, err := normalizeContainers(prefix, containers)
	if err != nil {
		return 0, err
	}
	resourceID := StatusResourceID(nodeID, prefix)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := reconcile.Reconcile(s.state[resourceID], normalized)
	s.state[resourceID] = current

	frame, err := stateListFrame(resourceID, current)
	if err != nil {
		return 0, err
	}
	// Broadcasting under the lock keeps every subscriber's view of
	// successive lists in publish order
	delivered := s.registry.Publish(resourceID, frame)
	s.log.Debug().Str("resource", resourceID).Int("containers", len(current)).Int("delivered", delivered).Msg("published state list")
	return delivered, nil
}

// Remove drops containers from the node's view and tells subscribers so
// explicitly with a containers-removed message
func (s *ContainerStatusService) Remove(nodeID, prefix string, ids []models.ContainerID) (int, error) {
	if err := s.checkNode(nodeID); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	resourceID := StatusResourceID(nodeID, prefix)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := reconcile.Remove(s.state[resourceID], ids)
	s.state[resourceID] = current

	snapshot, err := stateListFrame(resourceID, current)
	if err != nil {
		return 0, err
	}
	s.registry.SetSnapshot(resourceID, snapshot)

	frame, err := protocol.Encode(protocol.TypeContainersRemoved, protocol.ContainersRemovedPayload{
		ResourceID: resourceID,
		IDs:        ids,
	})
	if err != nil {
		return 0, err
	}
	delivered := s.registry.Broadcast(resourceID, frame)
	s.log.Debug().Str("resource", resourceID).Int("removed", len(ids)).Int("delivered", delivered).Msg("published removal")
	return delivered, nil
}

// Handlers builds the dispatch table for a status channel session on nodeID
func (s *ContainerStatusService) Handlers(nodeID string) livesync.Handlers {
	return livesync.Handlers{
		protocol.TypeWatchRequest: func(ctx context.Context, sess *livesync.Session, msg protocol.Message) error {
			req := msg.Payload.(*protocol.WatchRequestPayload)

			resourceID := req.ResourceID
			prefix := req.Prefix
			if prefix == "" {
				prefix = req.DeploymentID
			}
			if prefix != "" {
				resourceID = StatusResourceID(nodeID, prefix)
			} else if !strings.Contains(resourceID, "/") {
				resourceID = StatusResourceID(nodeID, resourceID)
			}

			return sess.Watch(ctx, resourceID)
		},
	}
}

// Close releases the status registry
func (s *ContainerStatusService) Close() error {
	return s.registry.Close()
}

func normalizeContainers(prefix string, containers []models.Container) ([]models.Container, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: prefix is required", livesync.ErrBadRequest)
	}

	out := make([]models.Container, 0, len(containers))
	seen := make(map[models.ContainerID]struct{}, len(containers))
	for _, c := range containers {
		if c.ID.Prefix == "" {
			c.ID.Prefix = prefix
		}
		if c.ID.Prefix != prefix {
			return nil, fmt.Errorf("%w: container %s does not belong to prefix %q", livesync.ErrBadRequest, c.Key(), prefix)
		}
		if c.ID.Name == "" {
			return nil, fmt.Errorf("%w: container name is required", livesync.ErrBadRequest)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate container %s", livesync.ErrBadRequest, c.Key())
		}
		seen[c.ID] = struct{}{}
		if c.Ports == nil {
			c.Ports = []models.ContainerPort{}
		}
		out = append(out, c)
	}
	return out, nil
}

func stateListFrame(resourceID string, containers []models.Container) ([]byte, error) {
	if containers == nil {
		containers = []models.Container{}
	}
	return protocol.Encode(protocol.TypeContainersStateList, protocol.ContainersStateListPayload{
		ResourceID: resourceID,
		Containers: containers,
	})
}

func sortedKeys(m map[string]models.Container) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
