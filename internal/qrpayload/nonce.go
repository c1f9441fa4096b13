package qrpayload

import "github.com/google/uuid"

// NonceSource produces the nonce stamped into each encoded token.
// Implementations must be safe for concurrent use.
type NonceSource interface {
	Nonce() string
}

// RandomNonces generates random UUIDv4 nonces (122 random bits).
//
// Two tokens encoded for the same entity in the same millisecond still
// carry different nonces.
type RandomNonces struct{}

// Nonce returns a fresh random UUID as a hyphenated string.
func (RandomNonces) Nonce() string {
	return uuid.NewString()
}

// NonceFunc adapts a function to NonceSource.
type NonceFunc func() string

func (f NonceFunc) Nonce() string { return f() }
