// Package cpuworker implements a CPU-bound Worker: a fixed thread pool that
// partitions the 64-bit nonce space statically at the start of each Mine
// call and searches it in parallel, batching hashes between cooperative
// cancellation checks.
//
// The lifecycle mirrors the teacher's per-connection goroutine group
// (Client.read/process/send/hashMonitor launched under a context.Context and
// joined with a sync.WaitGroup in Client.run), generalized from one
// goroutine per Stratum role to one goroutine per search thread.
package cpuworker

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/chainlog"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/config"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/hasher"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/worker"
)

var log = chainlog.NewSubLogger("CPUW")

// decayConstant is the exponential hashrate decay time constant (spec.md
// §4.4 "decay constant ≈ 1s").
const decayConstant = time.Second

// Worker is a CPU-bound mining Worker.
type Worker struct {
	cfg Config

	mu          sync.Mutex
	mining      bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	totalHashes uint64 // atomic

	rateMu      sync.Mutex
	decayedRate float64
	lastSample  time.Time
}

// New creates a CPU worker with the given configuration.
func New(cfg Config) *Worker {
	return &Worker{cfg: cfg.normalized()}
}

// Kind implements worker.Worker.
func (w *Worker) Kind() string {
	return "CPU"
}

// Mine implements worker.Worker.
func (w *Worker) Mine(ctx context.Context, work core.Work, target core.Target,
	sink chan worker.Solution) error {

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()
	drainSink(sink)

	genCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.rateMu.Lock()
	w.decayedRate = 0
	w.lastSample = time.Time{}
	w.rateMu.Unlock()
	atomic.StoreUint64(&w.totalHashes, 0)

	w.mining = true
	w.wg.Add(w.cfg.Threads)
	for i := 0; i < w.cfg.Threads; i++ {
		go w.searchThread(genCtx, uint64(i), w.cfg.Threads, w.cfg.BatchSize, work, target, sink)
	}

	log.Debugf("mining started with %d threads, batch size %d",
		w.cfg.Threads, w.cfg.BatchSize)

	return nil
}

// Stop implements worker.Worker. Idempotent.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	return nil
}

func (w *Worker) stopLocked() {
	if !w.mining {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.mining = false
}

// Hashrate implements worker.Worker.
func (w *Worker) Hashrate() uint64 {
	w.mu.Lock()
	mining := w.mining
	w.mu.Unlock()
	if !mining {
		return 0
	}

	w.rateMu.Lock()
	defer w.rateMu.Unlock()
	if w.decayedRate < 0 {
		return 0
	}
	return uint64(w.decayedRate)
}

// searchThread runs thread i of w.cfg.Threads. Thread i begins at
// i*BatchSize and advances by Threads*BatchSize between batches, so no two
// threads ever hash the same nonce within one Mine call regardless of batch
// completion order.
func (w *Worker) searchThread(ctx context.Context, i uint64, threads int,
	batch uint64, work core.Work, target core.Target, sink chan worker.Solution) {

	defer w.wg.Done()

	stride := uint64(threads) * batch
	batchStart := core.NewNonce(i * batch)
	workBytes := *work.AsBytes()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t0 := time.Now()
		nonce, hash, found := hasher.MineBatch(workBytes, target, batchStart,
			batch)
		w.recordBatch(batch, time.Since(t0))
		atomic.AddUint64(&w.totalHashes, batch)

		if found {
			solved := work
			solved.SetNonce(nonce)
			sol := worker.Solution{Work: solved, Nonce: nonce, Hash: hash}
			select {
			case sink <- sol:
				log.Debugf("thread %d found solution at nonce %d", i, nonce.Value())
			case <-ctx.Done():
				return
			}
		}

		batchStart = core.NewNonce(batchStart.Value() + stride)
	}
}

// recordBatch folds a batch's instantaneous hash rate into the decayed
// estimate. Called by every thread after every batch, satisfying the
// "updated at least once per batch" requirement without a separate sampler
// goroutine.
func (w *Worker) recordBatch(hashes uint64, dt time.Duration) {
	if dt <= 0 {
		return
	}
	instant := float64(hashes) / dt.Seconds()

	w.rateMu.Lock()
	defer w.rateMu.Unlock()

	now := time.Now()
	if w.lastSample.IsZero() {
		w.decayedRate = instant
		w.lastSample = now
		return
	}

	elapsed := now.Sub(w.lastSample).Seconds()
	alpha := math.Exp(-elapsed / decayConstant.Seconds())
	w.decayedRate = w.decayedRate*alpha + instant*(1-alpha)
	w.lastSample = now
}

// SetBatchSize updates the per-thread batch size applied to the next Mine
// call; threads already searching keep the batch size they started with.
func (w *Worker) SetBatchSize(n uint64) {
	if n == 0 {
		return
	}
	w.mu.Lock()
	w.cfg.BatchSize = n
	w.mu.Unlock()
}

// BatchSize returns the batch size the next Mine call will use.
func (w *Worker) BatchSize() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.BatchSize
}

// Watch consumes config.Reloadable values from reload until ctx is
// canceled, applying BatchSize changes live. Other fields are the
// coordinator's or Stratum server's concern and are ignored here.
func (w *Worker) Watch(ctx context.Context, reload <-chan config.Reloadable) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reload:
			if !ok {
				return
			}
			if r.BatchSize > 0 {
				w.SetBatchSize(r.BatchSize)
				log.Infof("batch size reloaded to %d", r.BatchSize)
			}
		}
	}
}

// drainSink discards any solutions left over from a preempted search before
// a new one starts, per spec.md §4.4's preemption ordering guarantee.
func drainSink(sink chan worker.Solution) {
	for {
		select {
		case <-sink:
		default:
			return
		}
	}
}
