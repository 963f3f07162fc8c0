package cpuworker

import (
	"runtime"
	"time"
)

// Config configures a CPU worker's thread pool and batching.
type Config struct {
	// Threads is the number of OS-level search threads. Defaults to
	// runtime.NumCPU() when <= 0, which counts logical CPUs, not physical
	// cores.
	Threads int

	// BatchSize is the number of nonces each thread hashes per batch before
	// checking for cancellation.
	BatchSize uint64

	// UpdateInterval bounds how long the decayed hashrate estimate can go
	// without a fresh sample; in this implementation every batch refreshes
	// it directly, so UpdateInterval only documents the upper bound the
	// spec requires and is not separately scheduled.
	UpdateInterval time.Duration
}

// DefaultConfig returns the defaults: one thread per logical CPU
// (runtime.NumCPU), a 100,000 nonce batch, and a 5s update interval.
func DefaultConfig() Config {
	return Config{
		Threads:        runtime.NumCPU(),
		BatchSize:      100_000,
		UpdateInterval: 5 * time.Second,
	}
}

func (c Config) normalized() Config {
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100_000
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 5 * time.Second
	}
	return c
}
