package entities

import "time"

// ChangeKind describes a collection mutation.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeCleared ChangeKind = "cleared"
)

// CollectionEvent announces that a collection changed. Subscribers use it as
// a signal to re-read the collection, never as a patch.
type CollectionEvent struct {
	ID         string     `json:"id"`
	Collection string     `json:"collection"`
	Kind       ChangeKind `json:"kind"`
	DocumentID string     `json:"document_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
