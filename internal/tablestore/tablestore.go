// Package tablestore opens managed tables. Concurrent opens of the same table
// in the same store file share one reconciliation.
package tablestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/example/tablekeeper/internal/logging"
	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/migration"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// ErrClosed is returned by operations on a closed Table.
var ErrClosed = errors.New("table is closed")

// Options describes one table to open.
type Options struct {
	Path   string          // Store file path
	Table  string          // Table name
	Schema schema.Schema   // Declared columns
	Plan   *migration.Plan // Nil leaves the table unmanaged

	// Store overrides the connection settings. A zero value uses
	// sqlite.DefaultConfig(Path).
	Store sqlite.Config
}

func (o Options) storeConfig() sqlite.Config {
	if o.Store.DSN != "" {
		return o.Store
	}
	return sqlite.DefaultConfig(o.Path)
}

// ReconcilerFactory builds the reconciler an open runs against db.
type ReconcilerFactory func(db *sqlite.DB, logger *slog.Logger) *migration.Reconciler

type guardKey struct {
	path  string
	table string
}

// guard is one open flight. The first opener runs it, later openers wait on
// done, and it leaves the in-flight map once every waiter has observed it.
// While the guard exists it holds one pool reference of its own.
type guard struct {
	done    chan struct{}
	waiters int

	db      *sqlite.DB
	outcome migration.Outcome
	err     error
}

// fileLock serializes reconciliations against one store file. sem holds one
// token; refs counts the openers holding or waiting for it.
type fileLock struct {
	sem  chan struct{}
	refs int
}

// Opener opens tables through a shared pool of store handles. Opens of one
// table share a single reconciliation, and reconciliations of different
// tables in one file run one at a time.
type Opener struct {
	pool          *sqlite.Pool
	newReconciler ReconcilerFactory
	logger        *slog.Logger

	mu       sync.Mutex
	inflight map[guardKey]*guard
	files    map[string]*fileLock
}

// NewOpener creates an Opener. A nil factory uses migration.NewReconciler.
func NewOpener(pool *sqlite.Pool, factory ReconcilerFactory, logger *slog.Logger) *Opener {
	if factory == nil {
		factory = migration.NewReconciler
	}
	return &Opener{
		pool:          pool,
		newReconciler: factory,
		logger:        logger,
		inflight:      make(map[guardKey]*guard),
		files:         make(map[string]*fileLock),
	}
}

// Open opens and reconciles a table. Callers opening the same table of the
// same file while a reconciliation is in flight wait for it and receive its
// outcome; each successful caller gets its own Table reference.
func (o *Opener) Open(ctx context.Context, opts Options) (*Table, error) {
	if strings.TrimSpace(opts.Path) == "" && opts.Store.DSN == "" {
		return nil, schema.NewConfigurationError("path", fmt.Errorf("store path cannot be empty"))
	}
	if strings.TrimSpace(opts.Table) == "" {
		return nil, schema.NewConfigurationError("table", fmt.Errorf("table name cannot be empty"))
	}

	cfg := opts.storeConfig()
	key := guardKey{path: sqlite.PoolKey(cfg.DSN), table: opts.Table}

	o.mu.Lock()
	g, joined := o.inflight[key]
	if !joined {
		g = &guard{done: make(chan struct{})}
		o.inflight[key] = g
	}
	g.waiters++
	o.mu.Unlock()

	logger := logging.Component(ctx, o.logger, "tablestore", "table", opts.Table, "path", key.path)

	if !joined {
		if unlock, err := o.lockFile(ctx, key.path); err != nil {
			g.err = err
		} else {
			g.db, g.outcome, g.err = o.run(ctx, cfg, opts)
			unlock()
		}
		close(g.done)
	} else {
		logger.Debug("waiting for in-flight open")
		select {
		case <-g.done:
		case <-ctx.Done():
			o.leave(key, g)
			return nil, ctx.Err()
		}
	}

	if g.err != nil {
		o.leave(key, g)
		return nil, g.err
	}

	if err := o.pool.Retain(g.db); err != nil {
		o.leave(key, g)
		return nil, err
	}
	o.leave(key, g)

	return &Table{
		name:    opts.Table,
		db:      g.db,
		outcome: g.outcome,
		pool:    o.pool,
	}, nil
}

// run opens the store and reconciles the table. On failure the store
// reference is released again.
func (o *Opener) run(ctx context.Context, cfg sqlite.Config, opts Options) (*sqlite.DB, migration.Outcome, error) {
	db, err := o.pool.Acquire(ctx, cfg)
	if err != nil {
		return nil, migration.Outcome{}, fmt.Errorf("failed to open store %s: %w", cfg.DSN, err)
	}

	outcome, err := o.newReconciler(db, o.logger).Reconcile(ctx, opts.Table, opts.Schema, opts.Plan)
	if err != nil {
		if releaseErr := o.pool.Release(db); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
		return nil, outcome, err
	}
	return db, outcome, nil
}

// lockFile waits until no other reconciliation runs against path. The
// returned func releases the file.
func (o *Opener) lockFile(ctx context.Context, path string) (func(), error) {
	o.mu.Lock()
	l, ok := o.files[path]
	if !ok {
		l = &fileLock{sem: make(chan struct{}, 1)}
		o.files[path] = l
	}
	l.refs++
	o.mu.Unlock()

	unref := func() {
		o.mu.Lock()
		l.refs--
		if l.refs == 0 && o.files[path] == l {
			delete(o.files, path)
		}
		o.mu.Unlock()
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		unref()
		return nil, ctx.Err()
	}
	return func() {
		<-l.sem
		unref()
	}, nil
}

// leave records that one waiter has observed g. The last one removes the
// guard and drops the guard's own store reference.
func (o *Opener) leave(key guardKey, g *guard) {
	o.mu.Lock()
	g.waiters--
	last := g.waiters == 0
	if last && o.inflight[key] == g {
		delete(o.inflight, key)
	}
	o.mu.Unlock()

	if last && g.err == nil && g.db != nil {
		_ = o.pool.Release(g.db)
	}
}

// InFlight reports how many open flights are currently unsettled.
func (o *Opener) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// Table is one caller's reference to an opened table.
type Table struct {
	name    string
	db      *sqlite.DB
	outcome migration.Outcome
	pool    *sqlite.Pool

	mu     sync.Mutex
	closed bool
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Outcome reports how the open that produced this table reconciled it.
func (t *Table) Outcome() migration.Outcome {
	return t.outcome
}

// DB returns the shared store handle.
func (t *Table) DB() *sqlite.DB {
	return t.db
}

// Version returns the table's current registry version.
func (t *Table) Version(ctx context.Context) (int, error) {
	if t.isClosed() {
		return 0, ErrClosed
	}
	return migration.NewRegistry(t.db, nil).Version(ctx, t.name)
}

// Columns lists the table's physical columns.
func (t *Table) Columns(ctx context.Context) ([]string, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}
	return t.db.Columns(ctx, t.name)
}

// Close releases this reference. The store file is closed when its last
// reference goes away. Closing twice is a no-op.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.pool.Release(t.db)
}

func (t *Table) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
