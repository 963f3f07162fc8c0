package core

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2s"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/minererr"
)

// Work is the opaque 286-byte preimage of the mining hash. The last 8 bytes
// (offset 278..286) are the mutable nonce field, little-endian; every other
// byte is opaque header material owned by the node.
type Work [WorkSize]byte

// WorkFromBytes builds a Work from a raw 286-byte buffer.
func WorkFromBytes(b [WorkSize]byte) Work {
	return Work(b)
}

// WorkFromHex decodes a hex-encoded work header.
func WorkFromHex(s string) (Work, error) {
	var w Work
	raw, err := hex.DecodeString(s)
	if err != nil {
		return w, minererr.Wrap(minererr.InvalidWork,
			"work is not valid hex", err)
	}
	if len(raw) != WorkSize {
		return w, minererr.New(minererr.InvalidWork,
			"work must be 286 bytes")
	}
	copy(w[:], raw)
	return w, nil
}

// AsBytes returns the raw 286-byte buffer.
func (w *Work) AsBytes() *[WorkSize]byte {
	return (*[WorkSize]byte)(w)
}

// SetNonce writes the little-endian bytes of nonce into the nonce field,
// touching no other byte of the buffer.
func (w *Work) SetNonce(nonce Nonce) {
	b := nonce.ToLeBytes()
	copy(w[NonceOffset:], b[:])
}

// Nonce reads the nonce field as a little-endian value.
func (w Work) Nonce() Nonce {
	var b [NonceSize]byte
	copy(b[:], w[NonceOffset:])
	return NonceFromLeBytes(b)
}

// Hash computes the unkeyed Blake2s-256 digest of the full work buffer.
func (w Work) Hash() Hash {
	return blake2s256(w[:])
}

// MeetsTarget computes the work's hash and compares it against target.
func (w Work) MeetsTarget(target Target) bool {
	return target.MeetsTarget(w.Hash())
}

// blake2s256 computes the unkeyed, default-parameter Blake2s-256 digest.
func blake2s256(data []byte) Hash {
	return blake2s.Sum256(data)
}
