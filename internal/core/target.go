package core

import (
	"bytes"
	"encoding/hex"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/minererr"
)

// Target is a 256-bit big-endian threshold. A hash satisfies the target iff,
// interpreted as a big-endian unsigned integer, it is numerically <= the
// target.
type Target [TargetSize]byte

// TargetFromBytes builds a Target from a raw 32-byte big-endian value.
func TargetFromBytes(b [TargetSize]byte) Target {
	return Target(b)
}

// TargetFromHex parses a lowercase 64-hex-character string into a Target.
func TargetFromHex(s string) (Target, error) {
	var t Target
	if len(s) != TargetSize*2 {
		return t, minererr.New(minererr.InvalidTarget,
			"target hex must be 64 characters")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return t, minererr.Wrap(minererr.InvalidTarget,
			"target is not valid hex", err)
	}
	copy(t[:], raw)
	return t, nil
}

// MaxTarget returns the trivially-satisfied target of all 0xFF bytes.
func MaxTarget() Target {
	var t Target
	for i := range t {
		t[i] = 0xFF
	}
	return t
}

// Bytes returns the raw big-endian bytes of the target.
func (t Target) Bytes() [TargetSize]byte {
	return [TargetSize]byte(t)
}

// Hex returns the lowercase hex encoding of the target.
func (t Target) Hex() string {
	return hex.EncodeToString(t[:])
}

// MeetsTarget reports whether hash, interpreted as a big-endian unsigned
// integer, is numerically <= the target.
func (t Target) MeetsTarget(hash Hash) bool {
	return bytes.Compare(hash[:], t[:]) <= 0
}
