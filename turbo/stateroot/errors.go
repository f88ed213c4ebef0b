package stateroot

import (
	"errors"
	"fmt"

	"github.com/malik672/reth/common"
)

var (
	// ErrInvalidConfig - pool configuration rejected at construction.
	ErrInvalidConfig = errors.New("invalid stateroot config")

	// ErrAcquireTimeout - all transaction handles stayed busy past the
	// caller's wait bound. Non-fatal: the caller decides whether to retry
	// or shed load; the pool itself never retries.
	ErrAcquireTimeout = errors.New("transaction pool exhausted: acquire timed out")

	// ErrPoolClosed - acquire on a closed pool.
	ErrPoolClosed = errors.New("transaction pool closed")

	// ErrShutdown - batch submitted after Shutdown was initiated.
	ErrShutdown = errors.New("stateroot manager shutdown in progress")
)

// TxError - failure at the transaction layer (store I/O, corruption, failed
// BeginRo). Always fatal for the current batch.
type TxError struct {
	Err error
}

func (e *TxError) Error() string { return fmt.Sprintf("transaction error: %v", e.Err) }
func (e *TxError) Unwrap() error { return e.Err }

// ComputeError - the storage root computation failed for one account. Fatal
// for the whole batch: a state root assembled from an incomplete account set
// is unusable.
type ComputeError struct {
	Account common.Hash
	Err     error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("storage root of %s: %v", e.Account, e.Err)
}
func (e *ComputeError) Unwrap() error { return e.Err }

// IsFatal reports whether err poisons the batch beyond retry. Acquire
// timeouts are the recoverable exception; callers typically retry those
// with backoff.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var txErr *TxError
	var computeErr *ComputeError
	return errors.As(err, &txErr) || errors.As(err, &computeErr)
}
