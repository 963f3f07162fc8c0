// Package worker defines the polymorphic mining worker capability set: an
// implementation begins searching a nonce space for a work/target pair,
// reports a decayed hashrate, and can be preempted or stopped. The CPU
// worker (cpuworker subpackage) is the reference implementation; a Stratum
// server satisfies the same interface by aggregating its connected ASIC
// sessions into a single mining source.
package worker

import (
	"context"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
)

// Solution is an emitted candidate that satisfies a target at the moment it
// was found.
type Solution struct {
	Work  core.Work
	Nonce core.Nonce
	Hash  core.Hash
}

// Worker is the polymorphic capability set implemented by every mining
// backend (CPU, GPU, Stratum server-as-worker, ...).
type Worker interface {
	// Mine begins searching work for a nonce meeting target, emitting any
	// solution found onto sink. If already mining, the prior search is
	// preempted: Mine blocks until the prior search has fully drained
	// before the new one starts, so no solution emitted afterward can be
	// for the previous (work, target) pair. sink is bidirectional so a
	// preempting Mine call can flush stale entries left over from the
	// search it is replacing; the worker remains the only goroutine that
	// ever sends on it.
	Mine(ctx context.Context, work core.Work, target core.Target, sink chan Solution) error

	// Stop signals cancellation and returns once every search task has
	// exited, within one batch's worth of hashing. It is idempotent.
	Stop() error

	// Hashrate returns an exponentially-decayed hashes-per-second estimate,
	// or 0 when not mining.
	Hashrate() uint64

	// Kind returns a short tag identifying the worker implementation, e.g.
	// "CPU" or "Stratum".
	Kind() string
}
