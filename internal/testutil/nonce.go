package testutil

import (
	"fmt"
	"sync"
)

// SequenceNonces returns predictable nonces: "<prefix>-0001", "<prefix>-0002", ...
//
// Used wherever golden output must not depend on random nonces. It satisfies
// qrpayload.NonceSource.
type SequenceNonces struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceNonces creates a sequence. An empty prefix becomes "nonce".
func NewSequenceNonces(prefix string) *SequenceNonces {
	if prefix == "" {
		prefix = "nonce"
	}
	return &SequenceNonces{prefix: prefix}
}

// Nonce returns the next nonce in the sequence.
func (s *SequenceNonces) Nonce() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%04d", s.prefix, s.n)
}

// FixedIDs returns predetermined IDs in order, then panics.
//
// Example:
//
//	ids := NewFixedIDs("scan-1", "scan-2")
//	ids.Generate() // "scan-1"
//	ids.Generate() // "scan-2"
//	ids.Generate() // panic: all IDs exhausted
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator over ids.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Generate returns the next ID.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedIDs: all %d IDs exhausted", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
