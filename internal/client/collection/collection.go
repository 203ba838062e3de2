// Package collection opens the local collection database and exposes its
// repositories, bundled per connection or transaction as a Store.
package collection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/ankisync/internal/client/migrations"
	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/col"
	"github.com/dmitrijs2005/ankisync/internal/dbx"
	"github.com/jonboulle/clockwork"

	_ "modernc.org/sqlite"
)

// SchemaVersion is written into new collection headers.
const SchemaVersion = 11

// Collection is an open collection file.
type Collection struct {
	mu    sync.RWMutex
	path  string
	db    *sql.DB
	clock clockwork.Clock
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}

// Open opens or creates the collection at path, applies migrations and
// creates the header row of a fresh collection.
func Open(ctx context.Context, path string, clock clockwork.Clock) (*Collection, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Collection{path: path, clock: clock}
	if err := c.open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) open(ctx context.Context) error {
	db, err := sql.Open("sqlite", dsn(c.path))
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", c.path, err)
	}
	if err := migrations.Apply(ctx, db, migrations.CollectionDir); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate collection %s: %w", c.path, err)
	}
	if err := c.ensureHeader(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	c.db = db
	return nil
}

func (c *Collection) ensureHeader(ctx context.Context, db *sql.DB) error {
	repo := col.NewSQLiteRepository(db)
	_, err := repo.Get(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, col.ErrNotFound) {
		return err
	}

	now := c.clock.Now()
	y, m, d := now.Date()
	ms := now.UnixMilli()
	return repo.Save(ctx, &models.CollectionMeta{
		Crt:  time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Unix(),
		Mod:  ms,
		Scm:  ms,
		Ver:  SchemaVersion,
		Conf: []byte("{}"),
	})
}

func (c *Collection) Path() string { return c.path }

func (c *Collection) Clock() clockwork.Clock { return c.clock }

// DB returns the current handle. It changes after Replace.
func (c *Collection) DB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Store returns the repositories bound to the collection connection pool.
func (c *Collection) Store() *Store {
	return NewStore(c.DB(), c.clock)
}

// WithTx runs fn with a Store bound to a single transaction.
func (c *Collection) WithTx(ctx context.Context, fn func(ctx context.Context, s *Store) error) error {
	return dbx.WithTx(ctx, c.DB(), nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewStore(tx, c.clock))
	})
}

func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Reopen closes the handle, runs swap while no connection is open, and
// opens the file again. swap typically renames a new file over Path. When
// swap or the open fails, the previous file is put back and reopened.
func (c *Collection) Reopen(ctx context.Context, swap func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("failed to close collection: %w", err)
		}
		c.db = nil
	}
	if swap == nil {
		return c.open(ctx)
	}

	prev := c.path + ".prev"
	if err := os.Rename(c.path, prev); err != nil {
		return errors.Join(fmt.Errorf("failed to set collection aside: %w", err), c.open(ctx))
	}
	if err := swap(); err != nil {
		return c.restore(ctx, prev, err)
	}
	if err := c.open(ctx); err != nil {
		return c.restore(ctx, prev, err)
	}
	_ = os.Remove(prev)
	return nil
}

func (c *Collection) restore(ctx context.Context, prev string, cause error) error {
	if err := os.Rename(prev, c.path); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to restore collection: %w", err))
	}
	if err := c.open(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
