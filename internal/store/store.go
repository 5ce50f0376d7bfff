// Package store persists the collaboratively edited resources served on the
// editing channel.
package store

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/vanpelt/livesync/internal/models"
)

// ErrNotFound is returned when a resource id has no stored entity
var ErrNotFound = errors.New("resource not found")

// Store is the persistence boundary of the editing channel. Implementations
// must be safe for concurrent use and return copies callers may mutate.
type Store interface {
	Get(ctx context.Context, id string) (*models.Resource, error)
	List(ctx context.Context) ([]*models.Resource, error)
	// Put creates or replaces a resource
	Put(ctx context.Context, res *models.Resource) (*models.Resource, error)
	// Apply merges fields into an existing resource and then, if resetSection
	// is set, clears that field. The updated resource is returned.
	Apply(ctx context.Context, id string, fields map[string]any, resetSection string) (*models.Resource, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns a SQLite store at path, or an in-memory store when path is empty
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemory(), nil
	}
	return NewSQLite(path)
}

func applyFields(res *models.Resource, fields map[string]any, resetSection string) {
	if res.Fields == nil {
		res.Fields = make(map[string]any, len(fields))
	}
	maps.Copy(res.Fields, fields)
	if resetSection != "" {
		res.Fields[resetSection] = nil
	}
	res.UpdatedAt = time.Now().UTC()
}
