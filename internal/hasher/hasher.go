// Package hasher computes the Blake2s-256 digest the mining protocol is
// built on, single-shot and in cancellable batches.
//
// No SIMD-accelerated Blake2s implementation is wired in: none of the
// example repositories or their dependency trees expose a multi-lane
// Blake2s primitive, so MineBatch falls back to scalar
// golang.org/x/crypto/blake2s, which is semantically equivalent (same
// predicate result) per spec.md's "SHOULD" rather than "MUST" wording.
package hasher

import (
	"golang.org/x/crypto/blake2s"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
)

// Hash computes the single-shot Blake2s-256 digest of a work header.
func Hash(work core.Work) core.Hash {
	return work.Hash()
}

// MineBatch iterates count candidate nonces starting at start, writing each
// into a local copy of workBytes and hashing it, returning the first
// candidate whose hash meets target. It never observes mutation of
// workBytes made by other goroutines mid-batch because it operates on a
// private stack copy.
func MineBatch(workBytes [core.WorkSize]byte, target core.Target,
	start core.Nonce, count uint64) (core.Nonce, core.Hash, bool) {

	local := workBytes
	w := core.WorkFromBytes(local)

	nonce := start
	for i := uint64(0); i < count; i++ {
		w.SetNonce(nonce)
		h := blake2s.Sum256(w.AsBytes()[:])
		if target.MeetsTarget(core.Hash(h)) {
			return nonce, core.Hash(h), true
		}
		nonce = nonce.Increment()
	}
	return 0, core.Hash{}, false
}
