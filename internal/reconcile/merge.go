// Package reconcile combines locally held container snapshots with lists
// pushed by the server.
package reconcile

import (
	"github.com/vanpelt/livesync/internal/models"
)

// Merge returns one entry per entry of local, in local's order. Entries whose
// id appears in authoritative are replaced wholesale by the authoritative
// snapshot; all others are kept as they are. An id missing from authoritative
// means "unknown", never "removed", so known containers never regress to a
// blank state. An empty authoritative list returns local itself.
func Merge(local, authoritative []models.Container) []models.Container {
	if len(authoritative) == 0 {
		return local
	}

	byID := make(map[models.ContainerID]models.Container, len(authoritative))
	for _, c := range authoritative {
		byID[c.ID] = c
	}

	merged := make([]models.Container, len(local))
	for i, c := range local {
		if fresh, ok := byID[c.ID]; ok {
			merged[i] = fresh
		} else {
			merged[i] = c
		}
	}
	return merged
}

// Remove drops the entries named by an explicit containers-removed message
func Remove(local []models.Container, ids []models.ContainerID) []models.Container {
	if len(ids) == 0 {
		return local
	}

	gone := make(map[models.ContainerID]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}

	kept := make([]models.Container, 0, len(local))
	for _, c := range local {
		if _, ok := gone[c.ID]; !ok {
			kept = append(kept, c)
		}
	}
	return kept
}

// Reconcile is Merge followed by appending authoritative entries the local
// list has never seen, in authoritative order. Views use it so that newly
// started containers appear without disturbing the order of known ones.
func Reconcile(local, authoritative []models.Container) []models.Container {
	merged := Merge(local, authoritative)
	if len(authoritative) == 0 {
		return merged
	}

	seen := make(map[models.ContainerID]struct{}, len(local))
	for _, c := range local {
		seen[c.ID] = struct{}{}
	}
	for _, c := range authoritative {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		merged = append(merged, c)
	}
	return merged
}
