package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by database operations after Close.
var ErrClosed = errors.New("db closed")

/*
Naming:
 tx - database transaction
 RoTx/Tx - read-only database transaction, RwTx - read-write
 k, v - key, value
 Table - collection of key-value pairs. In MDBX it's a `dbi`. Keys are sorted and unique.

Lifetime: read data is valid until end of transaction.

Example:

	tx, err := db.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() // safe to call after Commit

	... application logic using `tx`
*/

// RoDB - read-only database handle. All read transactions opened from it
// observe a consistent snapshot of the store taken at BeginRo time.
type RoDB interface {
	// BeginRo opens a read-only transaction.
	// ReadOnly transactions do not lock the goroutine to a thread.
	// A transaction must only be used by the goroutine that created it.
	BeginRo(ctx context.Context) (Tx, error)

	// View - like BeginRo but for short-living transactions:
	//	 if err := db.View(ctx, func(tx kv.Tx) error {
	//	    ... code which uses database in transaction
	//	 }); err != nil {
	//		return err
	//	 }
	View(ctx context.Context, f func(tx Tx) error) error

	Close()
}

// RwDB - database handle which can also open write transactions. Writers are
// serialized by the underlying store; there is at most one RwTx at a time.
type RwDB interface {
	RoDB

	BeginRw(ctx context.Context) (RwTx, error)
	Update(ctx context.Context, f func(tx RwTx) error) error
}

// Tx - read-only transaction.
//
// WARNING:
//   - Tx is not threadsafe and may only be used in the goroutine that created it
type Tx interface {
	// GetOne references a readonly section of memory that must not be accessed after tx has terminated
	GetOne(table string, k []byte) (val []byte, err error)

	// Has indicates whether a key exists in the table.
	Has(table string, k []byte) (bool, error)

	// ForPrefix iterates over entries whose keys start with prefix, in key order.
	ForPrefix(table string, prefix []byte, walker func(k, v []byte) error) error

	// Cursor creates a cursor object on top of the given table.
	Cursor(table string) (Cursor, error)

	// Rollback - abandon the transaction. Idempotent.
	Rollback()
}

// RwTx - read-write transaction.
//
// WARNING:
//   - RwTx is not threadsafe, may only be used in the goroutine that created it,
//     and locks that goroutine to its OS thread until Commit/Rollback
type RwTx interface {
	Tx

	Put(table string, k, v []byte) error
	Delete(table string, k []byte) error

	Commit() error
}

/*
Cursor - low-level api to navigate through a db table.

Example:

	c, err := tx.Cursor(table)
	if err != nil {
		return err
	}
	defer c.Close()
	for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		... logic using `k` and `v`
	}
*/
type Cursor interface {
	First() ([]byte, []byte, error)               // First - position at first key/data item
	Seek(seek []byte) ([]byte, []byte, error)     // Seek - position at first key greater than or equal to specified key
	SeekExact(key []byte) ([]byte, []byte, error) // SeekExact - position at exact matching key if exists
	Next() ([]byte, []byte, error)                // Next - position at next key/value
	Close()
}
