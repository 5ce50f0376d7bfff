package models

import (
	"maps"
	"time"
)

// Resource is a stored, collaboratively edited entity (e.g. an image config)
type Resource struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a copy whose Fields map can be mutated independently
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = maps.Clone(r.Fields)
	if out.Fields == nil {
		out.Fields = make(map[string]any)
	}
	return &out
}

// ResourcePutRequest seeds or replaces a stored resource
type ResourcePutRequest struct {
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields"`
}
