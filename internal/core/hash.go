package core

import "encoding/hex"

// Hash is a 32-byte Blake2s-256 digest of a Work header.
type Hash [HashSize]byte

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}
