package stateroot

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

const (
	// defaultWorkersMultiplier biases the pool above the core count: a worker
	// blocked on a page fault still holds CPU-free I/O in flight, so extra
	// in-flight transactions hide that latency.
	defaultWorkersMultiplier = 2
	defaultWorkersMin        = 2
	defaultWorkersMax        = 64
)

// Config sizes the transaction pool. An explicit value always wins over the
// derived default: the realistic ceiling is the number of accounts modified
// per block, which operators know and hardware parallelism does not.
type Config struct {
	// Workers - number of pooled read transactions, and therefore the
	// maximum number of accounts computed concurrently. Must be >= 1.
	Workers uint

	// AcquireTimeout bounds the wait for a free handle during dispatch.
	// Zero means wait indefinitely. Hitting the bound aborts the batch with
	// ErrAcquireTimeout, which is non-fatal and retryable.
	AcquireTimeout time.Duration
}

var (
	defaultWorkersOnce sync.Once
	defaultWorkers     uint
)

// DefaultWorkers derives the pool size from hardware parallelism, once per
// process: 2x the scheduler's CPU count, clamped to [2, 64]. It is a
// heuristic, not a correctness constant.
func DefaultWorkers() uint {
	defaultWorkersOnce.Do(func() {
		n := runtime.GOMAXPROCS(-1) * defaultWorkersMultiplier
		if n < defaultWorkersMin {
			n = defaultWorkersMin
		}
		if n > defaultWorkersMax {
			n = defaultWorkersMax
		}
		defaultWorkers = uint(n)
	})
	return defaultWorkers
}

func DefaultConfig() Config {
	return Config{Workers: DefaultWorkers()}
}

func (c Config) Validate() error {
	if c.Workers == 0 {
		return fmt.Errorf("%w: worker count must be positive", ErrInvalidConfig)
	}
	return nil
}
