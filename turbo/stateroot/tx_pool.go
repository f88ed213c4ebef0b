package stateroot

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerwatch/log/v3"

	"github.com/malik672/reth/db/kv"
)

// TxPool owns a fixed-size set of read-only transaction handles against one
// database. Handles are opened lazily up to capacity on first demand and
// retained until Close or the next Renew. Renew replaces every pooled handle
// with one opened now, so a run that starts with Renew never mixes database
// snapshots across its handles.
//
// The pool is the sole concurrency throttle of the dispatcher: acquisition
// blocks once all handles are loaned out, independent of how many goroutines
// the runtime could otherwise schedule.
type TxPool struct {
	db       kv.RoDB
	capacity int
	logger   log.Logger

	mu      sync.Mutex
	cond    *sync.Cond // signalled when a loan returns, for Close draining
	free    []kv.Tx
	waiters *list.List // of chan kv.Tx; FIFO - front is the longest waiting
	opened  int
	loaned  int
	closed  bool
}

func NewTxPool(db kv.RoDB, capacity int, logger log.Logger) (*TxPool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: pool capacity must be positive, got %d", ErrInvalidConfig, capacity)
	}
	p := &TxPool{
		db:       db,
		capacity: capacity,
		logger:   logger,
		waiters:  list.New(),
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

func (p *TxPool) Capacity() int { return p.capacity }

// Renew rolls back every pooled handle and opens a fresh one for each slot,
// up to capacity. All handles then observe the snapshot taken here: handles
// retained from before an intervening commit would otherwise serve stale
// reads next to current ones. The caller must hold no loans and must not
// acquire concurrently.
func (p *TxPool) Renew(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.loaned > 0 {
		p.mu.Unlock()
		return fmt.Errorf("pool renew with %d handles loaned out", p.loaned)
	}
	stale := p.free
	p.free = nil
	p.opened = 0
	p.mu.Unlock()

	for _, tx := range stale {
		tx.Rollback()
	}
	fresh := make([]kv.Tx, 0, p.capacity)
	for i := 0; i < p.capacity; i++ {
		tx, err := p.db.BeginRo(ctx)
		if err != nil {
			for _, f := range fresh {
				f.Rollback()
			}
			return &TxError{Err: err}
		}
		fresh = append(fresh, tx)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		for _, f := range fresh {
			f.Rollback()
		}
		return ErrPoolClosed
	}
	p.free = fresh
	p.opened = len(fresh)
	p.updateMetrics()
	p.mu.Unlock()
	return nil
}

// Acquire blocks the calling goroutine until a handle is free and returns it
// exclusively owned. The handle must be returned with Release on every exit
// path.
func (p *TxPool) Acquire(ctx context.Context) (kv.Tx, error) {
	return p.acquire(ctx, 0)
}

// AcquireTimeout is Acquire with a wait bound; exceeding it returns
// ErrAcquireTimeout.
func (p *TxPool) AcquireTimeout(ctx context.Context, timeout time.Duration) (kv.Tx, error) {
	return p.acquire(ctx, timeout)
}

func (p *TxPool) acquire(ctx context.Context, timeout time.Duration) (kv.Tx, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.free); n > 0 {
		tx := p.free[n-1]
		p.free = p.free[:n-1]
		p.loaned++
		p.updateMetrics()
		p.mu.Unlock()
		return tx, nil
	}
	if p.opened < p.capacity {
		// lazy population: reserve a slot, then open outside the lock
		p.opened++
		p.loaned++
		p.updateMetrics()
		p.mu.Unlock()
		tx, err := p.db.BeginRo(ctx)
		if err != nil {
			p.mu.Lock()
			p.opened--
			p.loaned--
			p.updateMetrics()
			p.cond.Broadcast()
			p.mu.Unlock()
			return nil, &TxError{Err: err}
		}
		return tx, nil
	}

	// pool exhausted: join the back of the queue
	w := make(chan kv.Tx, 1)
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case tx, ok := <-w:
		if !ok {
			return nil, ErrPoolClosed
		}
		return tx, nil
	case <-ctx.Done():
		return nil, p.abandonWait(elem, w, ctx.Err())
	case <-timeoutC:
		return nil, p.abandonWait(elem, w, ErrAcquireTimeout)
	}
}

// abandonWait removes a waiter that gave up. A handle may have been handed
// over concurrently; if so it goes back into circulation.
func (p *TxPool) abandonWait(elem *list.Element, w chan kv.Tx, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case tx, ok := <-w:
		if ok {
			p.releaseLocked(tx)
		}
	default:
		p.waiters.Remove(elem)
	}
	return cause
}

// Release returns a handle to the pool, waking the longest-waiting acquirer
// if one exists.
func (p *TxPool) Release(tx kv.Tx) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(tx)
}

func (p *TxPool) releaseLocked(tx kv.Tx) {
	p.loaned--
	if p.closed {
		tx.Rollback()
		p.opened--
		p.updateMetrics()
		p.cond.Broadcast()
		return
	}
	if e := p.waiters.Front(); e != nil {
		p.waiters.Remove(e)
		p.loaned++
		e.Value.(chan kv.Tx) <- tx
		return
	}
	p.free = append(p.free, tx)
	p.updateMetrics()
	p.cond.Broadcast()
}

// Close blocks until all outstanding handles are released, rolling each back
// as it returns, and fails pending acquirers with ErrPoolClosed. Idempotent.
func (p *TxPool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for e := p.waiters.Front(); e != nil; e = e.Next() {
			close(e.Value.(chan kv.Tx))
		}
		p.waiters.Init()
		for _, tx := range p.free {
			tx.Rollback()
			p.opened--
		}
		p.free = nil
		p.updateMetrics()
	}
	for p.loaned > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// PoolStats is a point-in-time utilization snapshot.
type PoolStats struct {
	Capacity int
	Opened   int
	Busy     int
	Idle     int
	Waiters  int
}

func (p *TxPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Capacity: p.capacity,
		Opened:   p.opened,
		Busy:     p.loaned,
		Idle:     len(p.free),
		Waiters:  p.waiters.Len(),
	}
}

// callers must hold p.mu
func (p *TxPool) updateMetrics() {
	poolBusyGauge.Set(float64(p.loaned))
	poolFreeGauge.Set(float64(p.capacity - p.loaned))
}
