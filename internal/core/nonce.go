package core

import "encoding/binary"

// Nonce is the 64-bit value varied during search. It is encoded
// little-endian within a Work header.
type Nonce uint64

// NewNonce creates a Nonce from a raw value.
func NewNonce(value uint64) Nonce {
	return Nonce(value)
}

// Value returns the underlying numeric value.
func (n Nonce) Value() uint64 {
	return uint64(n)
}

// Increment returns the nonce incremented by 1, wrapping at the 64-bit
// boundary.
func (n Nonce) Increment() Nonce {
	return Nonce(uint64(n) + 1)
}

// Add returns the nonce advanced by delta, wrapping at the 64-bit boundary.
func (n Nonce) Add(delta uint64) Nonce {
	return Nonce(uint64(n) + delta)
}

// NonceFromLeBytes decodes a little-endian 8-byte sequence into a Nonce.
func NonceFromLeBytes(b [NonceSize]byte) Nonce {
	return Nonce(binary.LittleEndian.Uint64(b[:]))
}

// ToLeBytes encodes the nonce as a little-endian 8-byte sequence.
func (n Nonce) ToLeBytes() [NonceSize]byte {
	var b [NonceSize]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	return b
}
