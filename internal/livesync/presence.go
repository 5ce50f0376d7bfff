package livesync

import (
	"sort"
	"sync"

	"github.com/vanpelt/livesync/internal/models"
	"github.com/vanpelt/livesync/internal/protocol"
)

type presenceSet struct {
	mu      sync.Mutex
	editors map[string]models.Editor
	// holders maps an editor id to the sessions holding its presence; the
	// editor stays present until the last of them leaves
	holders map[string]map[string]struct{}
	removed bool
}

// PresenceTracker keeps the set of editors currently editing each resource
// and broadcasts every change to the resource's subscribers
type PresenceTracker struct {
	registry *Registry

	mu   sync.Mutex
	sets map[string]*presenceSet
}

// NewPresenceTracker creates a tracker that broadcasts through registry
func NewPresenceTracker(registry *Registry) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		sets:     make(map[string]*presenceSet),
	}
}

// Join records that holderID (a session) holds editor's presence on
// resourceID. Only the first holder of an editor broadcasts a join; joining
// twice with the same holder is a no-op.
func (p *PresenceTracker) Join(resourceID string, editor models.Editor, holderID string) bool {
	var set *presenceSet
	for {
		set = p.set(resourceID, true)
		set.mu.Lock()
		if !set.removed {
			break
		}
		set.mu.Unlock()
	}
	defer set.mu.Unlock()

	holders, present := set.holders[editor.ID]
	if !present {
		holders = make(map[string]struct{})
		set.holders[editor.ID] = holders
	}
	if _, held := holders[holderID]; held {
		return false
	}
	holders[holderID] = struct{}{}
	if present {
		return false
	}

	set.editors[editor.ID] = editor
	// Broadcast while holding the set lock so subscribers observe changes in
	// the order the lock serializes them
	p.registry.Broadcast(resourceID, presenceFrame(protocol.TypePresenceJoin, editor.ID, set.editors))
	return true
}

// Leave releases holderID's hold on editorID. The editor leaves, and a
// presence-leave is broadcast, once no holder is left. Leaving twice is a no-op.
func (p *PresenceTracker) Leave(resourceID, editorID, holderID string) bool {
	set := p.set(resourceID, false)
	if set == nil {
		return false
	}

	set.mu.Lock()
	holders, ok := set.holders[editorID]
	if _, held := holders[holderID]; !ok || !held {
		set.mu.Unlock()
		return false
	}
	delete(holders, holderID)
	if len(holders) > 0 {
		set.mu.Unlock()
		return false
	}
	delete(set.holders, editorID)
	delete(set.editors, editorID)
	p.registry.Broadcast(resourceID, presenceFrame(protocol.TypePresenceLeave, editorID, set.editors))
	empty := len(set.editors) == 0
	set.mu.Unlock()

	if empty {
		p.mu.Lock()
		set.mu.Lock()
		if len(set.editors) == 0 && p.sets[resourceID] == set {
			set.removed = true
			delete(p.sets, resourceID)
		}
		set.mu.Unlock()
		p.mu.Unlock()
	}
	return true
}

// Editors returns the editors of resourceID sorted by id
func (p *PresenceTracker) Editors(resourceID string) []models.Editor {
	set := p.set(resourceID, false)
	if set == nil {
		return []models.Editor{}
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return sortedEditors(set.editors)
}

// IsEditing reports whether editorID holds presence on resourceID
func (p *PresenceTracker) IsEditing(resourceID, editorID string) bool {
	set := p.set(resourceID, false)
	if set == nil {
		return false
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	_, ok := set.editors[editorID]
	return ok
}

// SendFrame sends the current presence set to sub. The set lock is held
// while sending, so no later join or leave can reach sub before it.
func (p *PresenceTracker) SendFrame(resourceID string, sub Subscriber) error {
	set := p.set(resourceID, false)
	if set == nil {
		return nil
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	if len(set.editors) == 0 {
		return nil
	}
	return sub.Send(presenceFrame(protocol.TypePresenceJoin, "", set.editors))
}

func (p *PresenceTracker) set(resourceID string, create bool) *presenceSet {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.sets[resourceID]
	if !ok && create {
		set = &presenceSet{
			editors: make(map[string]models.Editor),
			holders: make(map[string]map[string]struct{}),
		}
		p.sets[resourceID] = set
	}
	return set
}

func presenceFrame(t protocol.MessageType, editorID string, editors map[string]models.Editor) []byte {
	return protocol.MustEncode(t, protocol.PresencePayload{
		EditorID: editorID,
		Editors:  sortedEditors(editors),
	})
}

func sortedEditors(editors map[string]models.Editor) []models.Editor {
	out := make([]models.Editor, 0, len(editors))
	for _, e := range editors {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
