package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceNonces(t *testing.T) {
	nonces := NewSequenceNonces("n")
	assert.Equal(t, "n-0001", nonces.Nonce())
	assert.Equal(t, "n-0002", nonces.Nonce())
}

func TestSequenceNonces_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "nonce-0001", NewSequenceNonces("").Nonce())
}

func TestFixedIDs(t *testing.T) {
	ids := NewFixedIDs("a", "b")
	assert.Equal(t, "a", ids.Generate())
	assert.Equal(t, "b", ids.Generate())
	assert.Panics(t, func() { ids.Generate() })
}
