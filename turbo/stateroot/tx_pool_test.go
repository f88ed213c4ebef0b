package stateroot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/malik672/reth/db/kv"
)

// fakeDB stands in for kv.RoDB. It counts open read transactions and stamps
// each with the commit version current at open, so tests can assert the pool
// bound and snapshot consistency without touching mdbx.
type fakeDB struct {
	mu       sync.Mutex
	open     int
	maxOpen  int
	version  int
	beginErr error
}

func (d *fakeDB) BeginRo(ctx context.Context) (kv.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	d.mu.Lock()
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	tx := &fakeTx{db: d, version: d.version}
	d.mu.Unlock()
	return tx, nil
}

// commit bumps the version later transactions will observe.
func (d *fakeDB) commit() {
	d.mu.Lock()
	d.version++
	d.mu.Unlock()
}

func (d *fakeDB) View(ctx context.Context, f func(tx kv.Tx) error) error {
	tx, err := d.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

func (d *fakeDB) Close() {}

func (d *fakeDB) openTxs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *fakeDB) maxOpenTxs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

type fakeTx struct {
	db      *fakeDB
	version int // fakeDB.version at open
	closed  atomic.Bool

	storage map[string][]byte // optional, key-ordered walk not guaranteed
}

func (tx *fakeTx) GetOne(table string, k []byte) ([]byte, error) { return tx.storage[string(k)], nil }
func (tx *fakeTx) Has(table string, k []byte) (bool, error)      { return tx.storage[string(k)] != nil, nil }
func (tx *fakeTx) Cursor(table string) (kv.Cursor, error)        { panic("not implemented") }

func (tx *fakeTx) ForPrefix(table string, prefix []byte, walker func(k, v []byte) error) error {
	for k, v := range tx.storage {
		if err := walker([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

func (tx *fakeTx) Rollback() {
	if tx.closed.CompareAndSwap(false, true) {
		tx.db.mu.Lock()
		tx.db.open--
		tx.db.mu.Unlock()
	}
}

func newTestPool(t *testing.T, db *fakeDB, capacity int) *TxPool {
	t.Helper()
	p, err := NewTxPool(db, capacity, log.New())
	require.NoError(t, err)
	return p
}

func TestTxPoolValidation(t *testing.T) {
	t.Parallel()
	_, err := NewTxPool(&fakeDB{}, 0, log.New())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTxPoolBound(t *testing.T) {
	t.Parallel()
	const capacity = 4
	const goroutines = 50

	db := &fakeDB{}
	p := newTestPool(t, db, capacity)
	defer p.Close()

	var inFlight, maxInFlight atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := p.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			defer p.Release(tx)

			n := inFlight.Add(1)
			for {
				old := maxInFlight.Load()
				if n <= old || maxInFlight.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxInFlight.Load(), int64(capacity))
	require.LessOrEqual(t, db.maxOpenTxs(), capacity)
}

func TestTxPoolLazyPopulation(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	p := newTestPool(t, db, 16)
	defer p.Close()

	tx, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.Stats().Opened)
	require.Equal(t, 1, db.openTxs())
	p.Release(tx)
	require.Equal(t, 1, p.Stats().Opened) // handle stays pooled, not rolled back
}

func TestTxPoolRenew(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	p := newTestPool(t, db, 3)
	defer p.Close()

	tx, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, tx.(*fakeTx).version)

	// renew with a loan outstanding is a caller bug
	require.Error(t, p.Renew(context.Background()))
	p.Release(tx)

	db.commit()
	require.NoError(t, p.Renew(context.Background()))
	require.Equal(t, 3, p.Stats().Opened) // populated to capacity
	require.Equal(t, 3, db.openTxs())     // the stale handle was rolled back

	for i := 0; i < 3; i++ {
		tx, err := p.Acquire(context.Background())
		require.NoError(t, err)
		defer p.Release(tx)
		require.Equal(t, 1, tx.(*fakeTx).version)
	}
}

func TestTxPoolRenewAfterClose(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, &fakeDB{}, 2)
	p.Close()
	require.ErrorIs(t, p.Renew(context.Background()), ErrPoolClosed)
}

func TestTxPoolRenewBeginError(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	p := newTestPool(t, db, 2)
	defer p.Close()

	db.beginErr = errors.New("disk on fire")
	var txErr *TxError
	require.ErrorAs(t, p.Renew(context.Background()), &txErr)
	require.Equal(t, 0, p.Stats().Opened)
	require.Equal(t, 0, db.openTxs())
}

func TestTxPoolFIFOFairness(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	p := newTestPool(t, db, 1)
	defer p.Close()

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	const waiters = 3
	order := make(chan int, waiters)
	for i := 0; i < waiters; i++ {
		i := i
		go func() {
			tx, err := p.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			order <- i
			p.Release(tx)
		}()
		// wait until this goroutine is queued before starting the next,
		// so arrival order is deterministic
		require.Eventually(t, func() bool {
			return p.Stats().Waiters == i+1
		}, time.Second, time.Millisecond)
	}

	p.Release(held)
	for want := 0; want < waiters; want++ {
		select {
		case got := <-order:
			require.Equal(t, want, got, "handle went to a later waiter before an earlier one")
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never got the handle", want)
		}
	}
}

func TestTxPoolAcquireTimeout(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	p := newTestPool(t, db, 1)
	defer p.Close()

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.AcquireTimeout(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrAcquireTimeout)
	require.False(t, IsFatal(err))
	require.Equal(t, 0, p.Stats().Waiters) // abandoned waiter is dequeued

	p.Release(held)
	tx, err := p.AcquireTimeout(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	p.Release(tx)
}

func TestTxPoolAcquireContextCancel(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	p := newTestPool(t, db, 1)
	defer p.Close()

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, p.Stats().Waiters)
}

func TestTxPoolBeginError(t *testing.T) {
	t.Parallel()
	db := &fakeDB{beginErr: errors.New("disk on fire")}
	p := newTestPool(t, db, 2)
	defer p.Close()

	_, err := p.Acquire(context.Background())
	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	require.True(t, IsFatal(err))
	require.Equal(t, 0, p.Stats().Opened) // reserved slot was given back
}

func TestTxPoolCloseDrains(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	p := newTestPool(t, db, 2)

	tx1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	tx2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while handles were still loaned out")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(tx1)
	p.Release(tx2)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after all handles were released")
	}
	require.Equal(t, 0, db.openTxs()) // every handle rolled back

	p.Close() // idempotent

	_, err = p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestTxPoolCloseFailsWaiters(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	p := newTestPool(t, db, 1)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		waiterErr <- err
	}()
	require.Eventually(t, func() bool {
		return p.Stats().Waiters == 1
	}, time.Second, time.Millisecond)

	go p.Close()
	select {
	case err := <-waiterErr:
		require.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not failed by Close")
	}
	p.Release(held)
}
