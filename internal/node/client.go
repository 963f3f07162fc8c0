// Package node defines the NodeClient contract the mining coordinator
// drives: fetch work, submit a solution, and subscribe to work-invalidating
// updates. Per spec.md §6 the HTTP implementation's wire details (exact
// headers, retry-on-5xx policy inside a single call, TLS config) are
// out of scope; only the interface and its error contract are specified
// here, with a concrete chainweb subpackage implementation.
package node

import (
	"context"
	"time"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
)

// Update is a single item from a node's update stream: a chain whose
// current work has changed and must be refetched.
type Update struct {
	ChainId core.ChainId
}

// JobToken is the node-specific trailer a GetWork response carries beyond
// the fixed-size Work and Target, opaque to everything except the node
// that issued it. It must be handed back unchanged on SubmitSolution so the
// node can associate the solved Work with the job it was issued for.
type JobToken []byte

// MiningJob bundles one fetched unit of work with the bookkeeping the
// coordinator carries from GetWork through to SubmitSolution: spec.md
// §3/§4.7's job_id/work/target/chain_id/received_at tuple, plus the node's
// opaque JobToken.
type MiningJob struct {
	JobID      string
	ChainId    core.ChainId
	Work       core.Work
	Target     core.Target
	Token      JobToken
	ReceivedAt time.Time
}

// Client is the node-facing contract the coordinator depends on. A
// SubscribeUpdates stream and GetWork/SubmitSolution calls are independent:
// the former tells the coordinator *when* to refetch, the latter do the
// fetching and submitting.
type Client interface {
	// GetWork fetches a fresh MiningJob for chain.
	GetWork(ctx context.Context, chain core.ChainId) (*MiningJob, error)

	// SubmitSolution submits solved, the Work buffer from job with its nonce
	// overwritten by a matching solution, back to the node that issued job.
	// A non-nil error reports either a network failure or a rejected
	// solution; the two are not told apart (the chainweb implementation
	// reports both as minererr.Network). The coordinator logs the error,
	// backs off, and fetches fresh work; it never resubmits the solution.
	SubmitSolution(ctx context.Context, job *MiningJob, solved core.Work) error

	// SubscribeUpdates returns a channel of Update events for chain. The
	// channel is closed when ctx is canceled or the subscription cannot be
	// maintained; the coordinator treats closure the same as an update: it
	// stops the worker and fetches fresh work.
	SubscribeUpdates(ctx context.Context, chain core.ChainId) (<-chan Update, error)
}
