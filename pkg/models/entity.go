// Package models contains shared data models used across the NoteGraph codebase.
package models

import (
	"strings"
)

// Entity is a single knowledge-graph entity extracted from note text.
// TempID is a synthetic identifier assigned during an extraction run so that
// later chunks can reference entities accepted from earlier chunks.
type Entity struct {
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
	TempID     string         `json:"temp_id,omitempty"`
}

// DedupKey returns the normalized identity used to decide whether two
// extracted entities are the same: lowercase type plus whitespace-collapsed
// label. Two distinct real entities sharing a type and label (two companies
// both named "Acme") will collide; disambiguating by properties is a pending
// product decision.
func (e Entity) DedupKey() string {
	label := strings.Join(strings.Fields(e.Label), " ")
	return strings.ToLower(e.Type + "::" + label)
}
