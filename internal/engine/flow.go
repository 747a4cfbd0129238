package engine

import "github.com/google/uuid"

// UUIDv7Generator generates time-sortable UUIDv7 values for run ids and
// uuid primary keys, so both sort by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
