package query

import "time"

// Status is the fetch state of an entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is a read-only snapshot of one cached key.
type Entry[T any] struct {
	Key    Key
	Status Status
	Data   T
	Err    error
	// UpdatedAt is when Data was last written by a successful fetch.
	UpdatedAt time.Time
	// Fetching is true while a request for the key is in flight.
	Fetching bool
	// Stale is true once the entry was invalidated or outlived the stale time.
	Stale bool
}

// HasData reports whether the entry holds a successful result.
func (e Entry[T]) HasData() bool {
	return !e.UpdatedAt.IsZero()
}
