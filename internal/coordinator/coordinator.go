// Package coordinator drives one chain's mining loop: fetch work from the
// node, hand it to a worker, then race the worker's solution against the
// node's update stream and a periodic timeout, submitting whichever
// solution arrives first and restarting only when an update invalidates
// the in-flight job.
//
// The structured-select race and the exponential backoff on network errors
// are grounded on the teacher's Client.run select loop over its read/send/
// ping channels (pool/client.go), generalized from "wait on whichever of my
// own goroutines has something to say" to "wait on whichever of solution,
// update, or timeout fires first".
package coordinator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/chainlog"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/config"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/node"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/worker"
)

var log = chainlog.NewSubLogger("COORD")

// Backoff parameters for retrying after a node network error, per spec.md
// §4.7: base 250ms, factor 2, capped at 30s, ±25% jitter.
const (
	backoffBase   = 250 * time.Millisecond
	backoffFactor = 2
	backoffMax    = 30 * time.Second
	backoffJitter = 0.25
)

// Config configures a Coordinator for one chain.
type Config struct {
	Chain       core.ChainId
	Timeout     time.Duration // periodic hashrate-telemetry tick while idle.
	SolutionBuf int           // sink channel buffer handed to the worker.
}

func (c Config) normalized() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.SolutionBuf <= 0 {
		c.SolutionBuf = 4
	}
	return c
}

// Coordinator drives a single worker against a single chain's work stream.
type Coordinator struct {
	cfg    Config
	client node.Client
	worker worker.Worker

	timeoutMu sync.RWMutex
}

// New creates a Coordinator wiring a node client and a mining worker
// together for one chain.
func New(cfg Config, client node.Client, w worker.Worker) *Coordinator {
	return &Coordinator{cfg: cfg.normalized(), client: client, worker: w}
}

// outcome distinguishes why waitForOutcome returned.
type outcome int

const (
	outcomeSolution outcome = iota
	outcomeUpdate
	outcomeCanceled
)

// Run loops until ctx is canceled: fetch work, mine, race solution vs
// update vs periodic timeout, submit, repeat. A failure at any step
// (get-work, subscribe, mine or submit) backs off exponentially and then
// restarts the cycle from get-work; a failed submission is not retried. Per spec.md
// §4.8, only an update invalidates the in-flight job and restarts the
// cycle; the periodic timeout exists solely to refresh hashrate telemetry
// and never by itself causes a re-fetch.
func (c *Coordinator) Run(ctx context.Context) error {
	sink := make(chan worker.Solution, c.cfg.SolutionBuf)
	backoff := backoffBase

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := c.client.GetWork(ctx, c.cfg.Chain)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("chain %s: get-work failed: %v", c.cfg.Chain, err)
			backoff = c.sleepBackoff(ctx, backoff)
			continue
		}
		backoff = backoffBase

		updates, err := c.client.SubscribeUpdates(ctx, c.cfg.Chain)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("chain %s: subscribe-updates failed: %v", c.cfg.Chain, err)
			backoff = c.sleepBackoff(ctx, backoff)
			continue
		}

		if err := c.worker.Mine(ctx, job.Work, job.Target, sink); err != nil {
			log.Errorf("chain %s: mine failed: %v", c.cfg.Chain, err)
			backoff = c.sleepBackoff(ctx, backoff)
			continue
		}

		solved, out := c.waitForOutcome(ctx, sink, updates)
		switch out {
		case outcomeCanceled:
			c.worker.Stop()
			return ctx.Err()
		case outcomeUpdate:
			c.worker.Stop()
			continue
		}

		if err := c.client.SubmitSolution(ctx, job, solved.Work); err != nil {
			log.Errorf("chain %s: submit-solution failed: %v", c.cfg.Chain, err)
			backoff = c.sleepBackoff(ctx, backoff)
			continue
		}
		log.Infof("chain %s: solution submitted at nonce %d", c.cfg.Chain, solved.Nonce.Value())
	}
}

// waitForOutcome blocks until a solution is found or an update invalidates
// the current job. The periodic timeout never produces either of those
// outcomes on its own: it just samples the worker's hashrate for telemetry
// and loops back into the same wait, exactly as spec.md §4.8's "Timeout
// wins: continue waiting" describes.
func (c *Coordinator) waitForOutcome(ctx context.Context, sink <-chan worker.Solution,
	updates <-chan node.Update) (worker.Solution, outcome) {

	timer := time.NewTimer(c.timeoutDuration())
	defer timer.Stop()

	for {
		select {
		case sol := <-sink:
			return sol, outcomeSolution
		case _, ok := <-updates:
			if !ok {
				log.Debugf("chain %s: update stream closed, falling back to poll", c.cfg.Chain)
			}
			return worker.Solution{}, outcomeUpdate
		case <-timer.C:
			log.Debugf("chain %s: idle timeout, hashrate=%d H/s", c.cfg.Chain, c.worker.Hashrate())
			timer.Reset(c.timeoutDuration())
		case <-ctx.Done():
			return worker.Solution{}, outcomeCanceled
		}
	}
}

// timeoutDuration returns the current idle timeout, safe for concurrent use
// alongside SetTimeout/Watch.
func (c *Coordinator) timeoutDuration() time.Duration {
	c.timeoutMu.RLock()
	defer c.timeoutMu.RUnlock()
	return c.cfg.Timeout
}

// SetTimeout updates the idle timeout applied to the next (and, since the
// timer is reset on every tick, the current) wait.
func (c *Coordinator) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.timeoutMu.Lock()
	c.cfg.Timeout = d
	c.timeoutMu.Unlock()
}

// Watch consumes config.Reloadable values from reload until ctx is
// canceled, applying idle-timeout changes live. Other fields are the
// worker's concern and are ignored here.
func (c *Coordinator) Watch(ctx context.Context, reload <-chan config.Reloadable) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reload:
			if !ok {
				return
			}
			if r.Timeout > 0 {
				c.SetTimeout(r.Timeout)
				log.Infof("chain %s: idle timeout reloaded to %s", c.cfg.Chain, r.Timeout)
			}
		}
	}
}

func (c *Coordinator) sleepBackoff(ctx context.Context, current time.Duration) time.Duration {
	jittered := applyJitter(current)
	select {
	case <-time.After(jittered):
	case <-ctx.Done():
	}
	next := time.Duration(float64(current) * backoffFactor)
	if next > backoffMax {
		next = backoffMax
	}
	return next
}

func applyJitter(d time.Duration) time.Duration {
	delta := float64(d) * backoffJitter
	offset := (rand.Float64()*2 - 1) * delta
	jittered := time.Duration(float64(d) + offset)
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}
