package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/config"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/node"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/worker"
)

type fakeClient struct {
	mu          sync.Mutex
	getWorkN    int
	submitted   []core.Work
	updatesChan chan node.Update
}

func newFakeClient() *fakeClient {
	return &fakeClient{updatesChan: make(chan node.Update)}
}

func (f *fakeClient) GetWork(ctx context.Context, chain core.ChainId) (*node.MiningJob, error) {
	f.mu.Lock()
	f.getWorkN++
	f.mu.Unlock()
	return &node.MiningJob{JobID: "job", ChainId: chain, Target: core.MaxTarget()}, nil
}

func (f *fakeClient) getWorkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getWorkN
}

func (f *fakeClient) SubmitSolution(ctx context.Context, job *node.MiningJob, solved core.Work) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, solved)
	return nil
}

func (f *fakeClient) SubscribeUpdates(ctx context.Context, chain core.ChainId) (<-chan node.Update, error) {
	return f.updatesChan, nil
}

func (f *fakeClient) submittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// fakeWorker immediately emits one solution per Mine call.
type fakeWorker struct {
	mines int32
}

func (w *fakeWorker) Mine(ctx context.Context, work core.Work, target core.Target, sink chan worker.Solution) error {
	atomic.AddInt32(&w.mines, 1)
	go func() {
		select {
		case sink <- worker.Solution{Work: work}:
		case <-ctx.Done():
		}
	}()
	return nil
}
func (w *fakeWorker) Stop() error     { return nil }
func (w *fakeWorker) Hashrate() uint64 { return 0 }
func (w *fakeWorker) Kind() string    { return "fake" }

func TestCoordinatorSubmitsSolution(t *testing.T) {
	client := newFakeClient()
	w := &fakeWorker{}
	c := New(Config{Chain: core.NewChainId(0), Timeout: time.Second}, client, w)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(1 * time.Second)
	for client.submittedCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a submission")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestCoordinatorRestartsOnUpdate(t *testing.T) {
	client := newFakeClient()
	// A worker that never finds a solution, so the only way the loop moves
	// forward is via the update channel.
	neverSolves := &blockingWorker{}
	c := New(Config{Chain: core.NewChainId(1), Timeout: 5 * time.Second}, client, neverSolves)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	client.updatesChan <- node.Update{ChainId: core.NewChainId(1)}

	deadline := time.After(1 * time.Second)
	for client.submittedCount() == 0 && neverSolves.mineCount() < 2 {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("expected a second Mine call after the update event")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if neverSolves.mineCount() < 2 {
		t.Fatal("expected a second Mine call after the update event")
	}

	cancel()
	<-done
}

func TestCoordinatorTimeoutDoesNotRestart(t *testing.T) {
	client := newFakeClient()
	neverSolves := &blockingWorker{}
	c := New(Config{Chain: core.NewChainId(2), Timeout: 20 * time.Millisecond}, client, neverSolves)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Several idle-timeout ticks should refresh telemetry only, never
	// re-enter the fetch/mine cycle.
	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	if n := client.getWorkCount(); n != 1 {
		t.Fatalf("get-work called %d times, want exactly 1 (timeout must not restart the cycle)", n)
	}
	if n := neverSolves.mineCount(); n != 1 {
		t.Fatalf("Mine called %d times, want exactly 1 (timeout must not restart the cycle)", n)
	}
}

func TestCoordinatorWatchAppliesTimeout(t *testing.T) {
	client := newFakeClient()
	w := &fakeWorker{}
	c := New(Config{Chain: core.NewChainId(3), Timeout: time.Minute}, client, w)

	reload := make(chan config.Reloadable, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Watch(ctx, reload)
	reload <- config.Reloadable{Timeout: 5 * time.Millisecond}

	deadline := time.After(time.Second)
	for c.timeoutDuration() != 5*time.Millisecond {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Timeout to apply")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type blockingWorker struct {
	mu sync.Mutex
	n  int
}

func (w *blockingWorker) Mine(ctx context.Context, work core.Work, target core.Target, sink chan worker.Solution) error {
	w.mu.Lock()
	w.n++
	w.mu.Unlock()
	return nil
}
func (w *blockingWorker) Stop() error     { return nil }
func (w *blockingWorker) Hashrate() uint64 { return 0 }
func (w *blockingWorker) Kind() string    { return "blocking" }
func (w *blockingWorker) mineCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}
