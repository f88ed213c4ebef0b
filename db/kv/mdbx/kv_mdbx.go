package mdbx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/c2h5oh/datasize"
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/ledgerwatch/log/v3"
	"golang.org/x/sync/semaphore"

	"github.com/malik672/reth/db/kv"
)

// ReadersLimit - MDBX_READERS_LIMIT=32767
const ReadersLimit = 32000

type MdbxOpts struct {
	log          log.Logger
	roTxsLimiter *semaphore.Weighted
	path         string
	inMem        bool
	mapSize      datasize.ByteSize
	growthStep   datasize.ByteSize
	flags        uint
	tables       []string
}

func NewMDBX(logger log.Logger) MdbxOpts {
	return MdbxOpts{
		log:        logger,
		flags:      mdbx.NoReadahead | mdbx.Durable,
		growthStep: 2 * datasize.GB,
		tables:     kv.ChaindataTables,
	}
}

func (opts MdbxOpts) Path(path string) MdbxOpts {
	opts.path = path
	return opts
}

func (opts MdbxOpts) InMem(tmpDir string) MdbxOpts {
	opts.inMem = true
	opts.path = tmpDir
	opts.growthStep = 2 * datasize.MB
	return opts
}

func (opts MdbxOpts) Readonly() MdbxOpts {
	opts.flags = opts.flags | mdbx.Readonly
	return opts
}

func (opts MdbxOpts) Exclusive() MdbxOpts {
	opts.flags = opts.flags | mdbx.Exclusive
	return opts
}

func (opts MdbxOpts) MapSize(sz datasize.ByteSize) MdbxOpts {
	opts.mapSize = sz
	return opts
}

func (opts MdbxOpts) GrowthStep(sz datasize.ByteSize) MdbxOpts {
	opts.growthStep = sz
	return opts
}

// RoTxsLimiter - without this limiter - it's possible to reach 32767 mdbx
// readers limit and db.BeginRo will return error. Cheap way to survive
// read-transaction storms from misbehaving callers.
func (opts MdbxOpts) RoTxsLimiter(l *semaphore.Weighted) MdbxOpts {
	opts.roTxsLimiter = l
	return opts
}

func (opts MdbxOpts) WithTables(tables []string) MdbxOpts {
	opts.tables = tables
	return opts
}

func (opts MdbxOpts) Open() (kv.RwDB, error) {
	env, err := mdbx.NewEnv(mdbx.Default)
	if err != nil {
		return nil, err
	}
	if err = env.SetOption(mdbx.OptMaxDB, 100); err != nil {
		return nil, err
	}
	if err = env.SetOption(mdbx.OptMaxReaders, ReadersLimit); err != nil {
		return nil, err
	}

	if opts.mapSize == 0 {
		if opts.inMem {
			opts.mapSize = 512 * datasize.MB
		} else {
			opts.mapSize = 2 * datasize.TB
		}
	}
	const pageSize = 4 * 1024
	if opts.flags&mdbx.Accede == 0 {
		if err = env.SetGeometry(-1, -1, int(opts.mapSize), int(opts.growthStep), -1, pageSize); err != nil {
			return nil, err
		}
		if err = os.MkdirAll(opts.path, 0744); err != nil {
			return nil, fmt.Errorf("could not create dir: %s, %w", opts.path, err)
		}
	}

	if err = env.Open(opts.path, opts.flags, 0664); err != nil {
		return nil, fmt.Errorf("%w, path: %s", err, opts.path)
	}

	if opts.roTxsLimiter == nil {
		targetSemCount := int64(runtime.GOMAXPROCS(-1) * 16)
		opts.roTxsLimiter = semaphore.NewWeighted(targetSemCount)
	}

	db := &MdbxKV{
		opts:         opts,
		env:          env,
		log:          opts.log.New("mdbx", filepath.Base(opts.path)),
		wg:           &sync.WaitGroup{},
		dbis:         map[string]mdbx.DBI{},
		roTxsLimiter: opts.roTxsLimiter,
	}

	// open or create tables
	if opts.flags&mdbx.Readonly != 0 {
		err = db.env.View(func(tx *mdbx.Txn) error {
			for _, name := range opts.tables {
				dbi, openErr := tx.OpenDBI(name, 0, nil, nil)
				if openErr != nil {
					if mdbx.IsNotFound(openErr) {
						continue // table doesn't exist yet in a readonly db, reads will miss
					}
					return fmt.Errorf("table: %s, %w", name, openErr)
				}
				db.dbis[name] = dbi
			}
			return nil
		})
	} else {
		err = db.env.Update(func(tx *mdbx.Txn) error {
			for _, name := range opts.tables {
				dbi, createErr := tx.OpenDBI(name, mdbx.Create, nil, nil)
				if createErr != nil {
					return fmt.Errorf("table: %s, %w", name, createErr)
				}
				db.dbis[name] = dbi
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	if !opts.inMem {
		if staleReaders, err := db.env.ReaderCheck(); err != nil {
			db.log.Error("failed ReaderCheck", "err", err)
		} else if staleReaders > 0 {
			db.log.Debug("cleared reader slots from dead processes", "amount", staleReaders)
		}
	}
	return db, nil
}

func (opts MdbxOpts) MustOpen() kv.RwDB {
	db, err := opts.Open()
	if err != nil {
		panic(fmt.Errorf("fail to open mdbx: %w", err))
	}
	return db
}

type MdbxKV struct {
	env          *mdbx.Env
	log          log.Logger
	wg           *sync.WaitGroup
	dbis         map[string]mdbx.DBI
	roTxsLimiter *semaphore.Weighted
	opts         MdbxOpts

	closeOnce sync.Once
	closed    bool
	closeLock sync.RWMutex
}

// Close closes the db.
// All transactions must be closed before closing the database.
func (db *MdbxKV) Close() {
	db.closeOnce.Do(func() {
		db.closeLock.Lock()
		db.closed = true
		db.closeLock.Unlock()

		db.wg.Wait()
		db.env.Close()

		if db.opts.inMem {
			if err := os.RemoveAll(db.opts.path); err != nil {
				db.log.Warn("failed to remove in-mem db file", "err", err)
			}
		}
	})
}

func (db *MdbxKV) BeginRo(ctx context.Context) (txn kv.Tx, err error) {
	db.closeLock.RLock()
	defer db.closeLock.RUnlock()
	if db.closed {
		return nil, kv.ErrClosed
	}

	// don't try to acquire if the context is already done
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if err = db.roTxsLimiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer func() {
		if txn == nil {
			db.roTxsLimiter.Release(1) // unlock only in case of error. normal flow is "defer .Rollback()"
		}
	}()

	tx, err := db.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, fmt.Errorf("begin ro: %w", err)
	}
	db.wg.Add(1)
	return &MdbxTx{db: db, tx: tx, readOnly: true}, nil
}

func (db *MdbxKV) BeginRw(ctx context.Context) (txn kv.RwTx, err error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	db.closeLock.RLock()
	defer db.closeLock.RUnlock()
	if db.closed {
		return nil, kv.ErrClosed
	}

	runtime.LockOSThread()
	tx, err := db.env.BeginTxn(nil, 0)
	if err != nil {
		runtime.UnlockOSThread() // unlock only in case of error. normal flow is "defer .Rollback()"
		return nil, fmt.Errorf("begin rw: %w", err)
	}
	db.wg.Add(1)
	return &MdbxTx{db: db, tx: tx}, nil
}

func (db *MdbxKV) View(ctx context.Context, f func(tx kv.Tx) error) (err error) {
	// can't use db.env.View method - because it calls commit for read transactions
	// it conflicts with write transactions
	tx, err := db.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	return f(tx)
}

func (db *MdbxKV) Update(ctx context.Context, f func(tx kv.RwTx) error) (err error) {
	tx, err := db.BeginRw(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err = f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *MdbxKV) dbi(table string) (mdbx.DBI, error) {
	dbi, ok := db.dbis[table]
	if !ok {
		return 0, fmt.Errorf("unknown table: %s", table)
	}
	return dbi, nil
}

type MdbxTx struct {
	tx       *mdbx.Txn
	db       *MdbxKV
	cursors  []*mdbx.Cursor
	readOnly bool
}

func (tx *MdbxTx) Commit() error {
	if tx.tx == nil {
		return nil
	}
	defer func() {
		tx.tx = nil
		tx.db.wg.Done()
		if tx.readOnly {
			tx.db.roTxsLimiter.Release(1)
		} else {
			runtime.UnlockOSThread()
		}
	}()
	tx.closeCursors()
	_, err := tx.tx.Commit()
	return err
}

func (tx *MdbxTx) Rollback() {
	if tx.tx == nil {
		return
	}
	defer func() {
		tx.tx = nil
		tx.db.wg.Done()
		if tx.readOnly {
			tx.db.roTxsLimiter.Release(1)
		} else {
			runtime.UnlockOSThread()
		}
	}()
	tx.closeCursors()
	tx.tx.Abort()
}

func (tx *MdbxTx) closeCursors() {
	for _, c := range tx.cursors {
		if c != nil {
			c.Close()
		}
	}
	tx.cursors = nil
}

func (tx *MdbxTx) GetOne(table string, k []byte) ([]byte, error) {
	dbi, err := tx.db.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := tx.tx.Get(dbi, k)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("table: %s, %w", table, err)
	}
	return v, nil
}

func (tx *MdbxTx) Has(table string, k []byte) (bool, error) {
	v, err := tx.GetOne(table, k)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (tx *MdbxTx) ForPrefix(table string, prefix []byte, walker func(k, v []byte) error) error {
	c, err := tx.Cursor(table)
	if err != nil {
		return err
	}
	defer c.Close()

	for k, v, err := c.Seek(prefix); k != nil; k, v, err = c.Next() {
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if err := walker(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (tx *MdbxTx) Put(table string, k, v []byte) error {
	dbi, err := tx.db.dbi(table)
	if err != nil {
		return err
	}
	return tx.tx.Put(dbi, k, v, 0)
}

func (tx *MdbxTx) Delete(table string, k []byte) error {
	dbi, err := tx.db.dbi(table)
	if err != nil {
		return err
	}
	if err := tx.tx.Del(dbi, k, nil); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func (tx *MdbxTx) Cursor(table string) (kv.Cursor, error) {
	dbi, err := tx.db.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := tx.tx.OpenCursor(dbi)
	if err != nil {
		return nil, fmt.Errorf("table: %s, %w", table, err)
	}
	tx.cursors = append(tx.cursors, c) // auto-cleanup on end of transaction
	return &MdbxCursor{c: c, table: table}, nil
}

type MdbxCursor struct {
	c     *mdbx.Cursor
	table string
}

func (c *MdbxCursor) First() ([]byte, []byte, error) {
	return c.Seek(nil)
}

func (c *MdbxCursor) Seek(seek []byte) ([]byte, []byte, error) {
	var k, v []byte
	var err error
	if len(seek) == 0 {
		k, v, err = c.c.Get(nil, nil, mdbx.First)
	} else {
		k, v, err = c.c.Get(seek, nil, mdbx.SetRange)
	}
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return []byte{}, nil, fmt.Errorf("cursor.Seek: %w, table: %s", err, c.table)
	}
	return k, v, nil
}

func (c *MdbxCursor) SeekExact(key []byte) ([]byte, []byte, error) {
	k, v, err := c.c.Get(key, nil, mdbx.Set)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return []byte{}, nil, fmt.Errorf("cursor.SeekExact: %w, table: %s", err, c.table)
	}
	return k, v, nil
}

func (c *MdbxCursor) Next() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, mdbx.Next)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return []byte{}, nil, fmt.Errorf("cursor.Next: %w, table: %s", err, c.table)
	}
	return k, v, nil
}

func (c *MdbxCursor) Close() {
	if c.c != nil {
		c.c.Close()
		c.c = nil
	}
}
