package stateroot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerwatch/log/v3"
	"golang.org/x/sync/errgroup"

	"github.com/malik672/reth/db/kv"
	"github.com/malik672/reth/turbo/trie"
)

// dispatcher drains one batch of jobs through the pool. One instance per
// batch; it owns no goroutines beyond the batch's lifetime.
//
// The pool is the only throttle: each job first acquires a handle (blocking
// when none is free), runs on the errgroup, and releases the handle on every
// exit path. A fatal outcome suppresses dispatch of jobs not yet started;
// jobs already holding a handle always run to completion - an in-flight
// database read is never interrupted.
type dispatcher struct {
	pool   *TxPool
	calc   trie.StorageRootCalculator
	cfg    Config
	logger log.Logger
}

func (d *dispatcher) run(ctx context.Context, jobs []storageRootJob, res *results) error {
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()

	var g errgroup.Group
	for i := range jobs {
		job := jobs[i]
		if res.err() != nil || dispatchCtx.Err() != nil {
			break
		}
		queueDepthGauge.Set(float64(len(jobs) - i))

		waitStart := time.Now()
		var tx kv.Tx
		var err error
		if d.cfg.AcquireTimeout > 0 {
			tx, err = d.pool.AcquireTimeout(dispatchCtx, d.cfg.AcquireTimeout)
		} else {
			tx, err = d.pool.Acquire(dispatchCtx)
		}
		jobWaitHist.Observe(time.Since(waitStart).Seconds())

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break // dispatch suppressed by a fatal outcome or the caller's context
			}
			if errors.Is(err, ErrAcquireTimeout) || errors.Is(err, ErrPoolClosed) {
				res.record(job.id, outcome{err: err})
			} else {
				res.record(job.id, outcome{err: &TxError{Err: err}})
			}
			break
		}
		// a released handle can win the race against cancellation inside
		// acquire; re-check before spending it on a new job
		if res.err() != nil || dispatchCtx.Err() != nil {
			d.pool.Release(tx)
			break
		}
		g.Go(func() error {
			defer d.pool.Release(tx)
			d.compute(ctx, tx, job, res, cancelDispatch)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors, outcomes go through res
	queueDepthGauge.Set(0)

	if err := res.err(); err != nil {
		return err
	}
	return ctx.Err()
}

// compute runs one job on an already-acquired handle. Failures, including
// panics out of the calculator, are recorded against the job and flagged
// fatal; sibling jobs already dispatched keep running.
func (d *dispatcher) compute(ctx context.Context, tx kv.Tx, job storageRootJob, res *results, cancelDispatch context.CancelFunc) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("storage root computation panicked", "account", job.account.Hash, "err", r)
			res.record(job.id, outcome{err: &ComputeError{Account: job.account.Hash, Err: fmt.Errorf("panic: %v", r)}})
			cancelDispatch()
		}
	}()

	root, proof, err := d.calc.StorageRoot(ctx, tx, job.account.Hash, job.account.Prefixes, job.account.WithProof)
	if err != nil {
		res.record(job.id, outcome{err: &ComputeError{Account: job.account.Hash, Err: err}})
		cancelDispatch()
		return
	}
	res.record(job.id, outcome{res: RootResult{Root: root, Proof: proof}})
}
