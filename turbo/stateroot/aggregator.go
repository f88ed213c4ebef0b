package stateroot

import (
	"fmt"
	"sync"

	"github.com/malik672/reth/common"
)

type outcome struct {
	res RootResult
	err error
}

// results accumulates per-job outcomes for one batch. Aggregation is a
// commutative merge keyed by job id, so the batch result does not depend on
// dispatch or completion order.
type results struct {
	mu       sync.Mutex
	want     int
	outcomes map[int]outcome
	firstErr error // first batch-aborting error observed, in completion order
}

func newResults(want int) *results {
	return &results{
		want:     want,
		outcomes: make(map[int]outcome, want),
	}
}

func (r *results) record(id int, o outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[id] = o
	if o.err != nil && r.firstErr == nil {
		r.firstErr = o.err
	}
}

// err returns the batch-aborting error, if any was observed yet.
func (r *results) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

func (r *results) complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes) == r.want
}

// finalize projects the successful outcomes into the address-keyed result
// map. It must only be called after the dispatcher reported no error: a
// partial map never escapes to the caller.
func (r *results) finalize(jobs []storageRootJob) (map[common.Hash]RootResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstErr != nil {
		return nil, r.firstErr
	}
	if len(r.outcomes) != r.want {
		return nil, fmt.Errorf("incomplete batch: %d of %d outcomes recorded", len(r.outcomes), r.want)
	}
	out := make(map[common.Hash]RootResult, len(jobs))
	for _, job := range jobs {
		out[job.account.Hash] = r.outcomes[job.id].res
	}
	return out, nil
}
