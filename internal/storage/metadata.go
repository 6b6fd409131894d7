package storage

import (
	"time"
)

// Entry describes a stored token in the public index. It never holds the
// token value.
type Entry struct {
	Name    string    `json:"name"`
	Size    int       `json:"size"` // Encoded token length in bytes
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// NewEntry creates an index entry for a token of the given length,
// keeping the creation time of prev when the token is being replaced.
func NewEntry(name string, size int, prev *Entry) Entry {
	now := time.Now()
	entry := Entry{
		Name:    name,
		Size:    size,
		Created: now,
		Updated: now,
	}
	if prev != nil && !prev.Created.IsZero() {
		entry.Created = prev.Created
	}
	return entry
}
