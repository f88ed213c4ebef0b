package stateroot

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerwatch/log/v3"

	"github.com/malik672/reth/common"
	"github.com/malik672/reth/db/kv"
	"github.com/malik672/reth/turbo/trie"
)

// ProofTaskManager computes per-account storage roots (or proofs) in
// parallel against a shared database snapshot. It is constructed once per
// node and reused across blocks; the transaction pool it owns lives for the
// manager's lifetime.
type ProofTaskManager struct {
	logger log.Logger
	cfg    Config
	calc   trie.StorageRootCalculator
	pool   *TxPool

	// batches run one at a time: all pooled handles belong to the in-flight
	// batch's snapshot
	batchMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewProofTaskManager validates cfg and sets up the pool (handles are opened
// at the start of each batch, so construction stays cheap). A nil calc
// selects the flat calculator.
func NewProofTaskManager(db kv.RoDB, cfg Config, calc trie.StorageRootCalculator, logger log.Logger) (*ProofTaskManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if calc == nil {
		calc = trie.NewFlatStorageRootCalculator()
	}
	pool, err := NewTxPool(db, int(cfg.Workers), logger)
	if err != nil {
		return nil, err
	}
	return &ProofTaskManager{
		logger: logger,
		cfg:    cfg,
		calc:   calc,
		pool:   pool,
	}, nil
}

// ComputeBatch computes the storage root of every account in the batch and
// returns the complete address-keyed map, or the first fatal error with all
// partial successes discarded. It blocks the caller until the batch settles;
// no transaction handle is held after it returns.
func (m *ProofTaskManager) ComputeBatch(ctx context.Context, accounts []ModifiedAccount) (map[common.Hash]RootResult, error) {
	if m.isClosed() {
		return nil, ErrShutdown
	}
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	if m.isClosed() {
		return nil, ErrShutdown
	}
	if len(accounts) == 0 {
		return map[common.Hash]RootResult{}, nil
	}

	// every handle the batch can loan must observe the same snapshot, so
	// replace any handles retained from an earlier batch
	if err := m.pool.Renew(ctx); err != nil {
		return nil, err
	}

	jobs := make([]storageRootJob, len(accounts))
	for i, acc := range accounts {
		jobs[i] = storageRootJob{id: i, account: acc}
	}

	start := time.Now()
	res := newResults(len(jobs))
	d := &dispatcher{pool: m.pool, calc: m.calc, cfg: m.cfg, logger: m.logger}
	if err := d.run(ctx, jobs, res); err != nil {
		m.logger.Warn("storage root batch failed", "accounts", len(accounts), "took", time.Since(start), "err", err)
		return nil, err
	}

	out, err := res.finalize(jobs)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("storage root batch done", "accounts", len(accounts), "workers", m.cfg.Workers, "took", time.Since(start))
	return out, nil
}

// Pool exposes the transaction pool for observability (utilization stats).
func (m *ProofTaskManager) Pool() *TxPool { return m.pool }

// Shutdown drains any in-flight batch, then closes the pool. Subsequent
// ComputeBatch calls fail with ErrShutdown. Idempotent.
func (m *ProofTaskManager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	m.pool.Close()
}

func (m *ProofTaskManager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
