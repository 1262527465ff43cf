// Package badgercache implements rom.Cache on an embedded BadgerDB.
//
//	cache, err := badgercache.Open(badgercache.Config{InMemory: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cache.Close()
//	users, _ := rels.Fetch("users")
//	cached := relation.NewCached(users, cache, time.Minute)
package badgercache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/syssam/rom"
)

// Config configures the database opened by Open.
type Config struct {
	// Path is the directory of the database files. Ignored when InMemory is set.
	Path string
	// InMemory keeps all entries in memory.
	InMemory bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Cache is a rom.Cache backed by BadgerDB. Expiration is handled by badger
// with a granularity of one second.
type Cache struct {
	db    *badger.DB
	owned bool
}

// Open opens a badger database and returns a cache owning it.
func Open(cfg Config) (*Cache, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return nil, errors.New("badgercache: path is required for a persistent cache")
	default:
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badgercache: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&logger{cfg.Logger})
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgercache: open: %w", err)
	}
	return &Cache{db: db, owned: true}, nil
}

// New returns a cache storing its entries in db. Close does not close db.
func New(db *badger.DB) *Cache {
	return &Cache{db: db}
}

// Get implements rom.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badgercache: get %s: %w", key, err)
	}
	return value, nil
}

// Set implements rom.Cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	if err := c.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(e) }); err != nil {
		return fmt.Errorf("badgercache: set %s: %w", key, err)
	}
	return nil
}

// Delete implements rom.Cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.db.Update(func(txn *badger.Txn) error { return txn.Delete([]byte(key)) }); err != nil {
		return fmt.Errorf("badgercache: delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix implements rom.Cache.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("badgercache: delete prefix %s: %w", prefix, err)
	}
	slog.Debug("cache prefix dropped", "prefix", prefix)
	return nil
}

// Clear implements rom.Cache.
func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.db.DropAll(); err != nil {
		return fmt.Errorf("badgercache: clear: %w", err)
	}
	return nil
}

// Close closes the database if the cache opened it.
func (c *Cache) Close() error {
	if !c.owned {
		return nil
	}
	return c.db.Close()
}

// logger adapts slog.Logger to badger.Logger.
type logger struct {
	l *slog.Logger
}

func (l *logger) Errorf(format string, args ...any)   { l.l.Error(fmt.Sprintf(format, args...)) }
func (l *logger) Warningf(format string, args ...any) { l.l.Warn(fmt.Sprintf(format, args...)) }
func (l *logger) Infof(format string, args ...any)    { l.l.Info(fmt.Sprintf(format, args...)) }
func (l *logger) Debugf(format string, args ...any)   { l.l.Debug(fmt.Sprintf(format, args...)) }

var _ rom.Cache = (*Cache)(nil)
