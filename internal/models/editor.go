package models

// Editor is an authenticated identity that can hold presence on a resource
type Editor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
