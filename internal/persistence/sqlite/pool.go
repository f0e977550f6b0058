package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Pool shares one DB handle per store file between every component of the
// process that opens it. Handles are reference counted and closed when the
// last holder releases them.
type Pool struct {
	mu      sync.Mutex
	handles map[string]*pooledDB
	opening singleflight.Group
	logger  *slog.Logger
}

type pooledDB struct {
	db   *DB
	refs int
}

// NewPool creates an empty pool. A nil logger falls back to slog.Default.
func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		handles: make(map[string]*pooledDB),
		logger:  logger.With("component", "sqlite_pool"),
	}
}

// Acquire returns the shared handle for cfg.DSN, opening it on first use.
// Concurrent first acquires of the same file perform a single open.
func (p *Pool) Acquire(ctx context.Context, cfg Config) (*DB, error) {
	key := PoolKey(cfg.DSN)

	if db := p.claim(key, nil); db != nil {
		return db, nil
	}

	v, err, _ := p.opening.Do(key, func() (any, error) {
		p.mu.Lock()
		if h, ok := p.handles[key]; ok {
			p.mu.Unlock()
			return h.db, nil
		}
		p.mu.Unlock()

		db, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("opened store", "path", key)

		p.mu.Lock()
		p.handles[key] = &pooledDB{db: db}
		p.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, err
	}

	opened := v.(*DB)
	if db := p.claim(key, opened); db != nil {
		return db, nil
	}
	return nil, fmt.Errorf("sqlite: handle for %s was closed while opening", key)
}

// claim takes a reference on the pooled handle for key. When want is
// non-nil the pooled handle must be that exact handle.
func (p *Pool) claim(key string, want *DB) *DB {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.handles[key]
	if !ok || (want != nil && h.db != want) {
		return nil
	}
	h.refs++
	return h.db
}

// Retain takes one more reference on a handle the caller already holds.
func (p *Pool) Retain(db *DB) error {
	key := PoolKey(db.Path())
	if p.claim(key, db) == nil {
		return fmt.Errorf("sqlite: handle for %s is not pooled", key)
	}
	return nil
}

// Release drops one reference to db and closes it when none remain.
func (p *Pool) Release(db *DB) error {
	key := PoolKey(db.Path())

	p.mu.Lock()
	h, ok := p.handles[key]
	if !ok || h.db != db {
		p.mu.Unlock()
		return fmt.Errorf("sqlite: handle for %s is not pooled", key)
	}
	h.refs--
	if h.refs > 0 {
		p.mu.Unlock()
		return nil
	}
	delete(p.handles, key)
	p.mu.Unlock()

	p.logger.Debug("closing store", "path", key)
	return db.Close()
}

// Refs returns the number of outstanding references for dsn.
func (p *Pool) Refs(dsn string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handles[PoolKey(dsn)]; ok {
		return h.refs
	}
	return 0
}

// PoolKey normalizes a DSN so that different spellings of one file path
// share a handle.
func PoolKey(dsn string) string {
	if !isFilePath(dsn) {
		return dsn
	}
	if abs, err := filepath.Abs(dsn); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(dsn)
}
