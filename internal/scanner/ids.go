package scanner

import "github.com/google/uuid"

// IDGenerator produces scan session IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable session IDs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
