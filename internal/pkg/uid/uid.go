// Package uid generates globally unique, time-ordered identifiers for
// StoredRequests and StoredResponses.
package uid

import "github.com/google/uuid"

// New generates a UUIDv7 (time-ordered, good for sqlite rowid locality and
// FIFO-ish natural sort). Falls back to v4 if v7 generation ever fails.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
