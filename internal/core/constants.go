package core

// Constants describing the byte-level layout of a mining work header.
const (
	// WorkSize is the size in bytes of a work header.
	WorkSize = 286

	// NonceSize is the size in bytes of the nonce field.
	NonceSize = 8

	// NonceOffset is the offset of the nonce field within a work header.
	NonceOffset = WorkSize - NonceSize

	// HashSize is the size in bytes of a Blake2s-256 digest.
	HashSize = 32

	// TargetSize is the size in bytes of a target threshold.
	TargetSize = 32
)
