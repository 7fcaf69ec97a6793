// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Badger keeps documents in an embedded badger database. Without a data
// directory it runs in memory.
type Badger struct {
	db           *badger.DB
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	metrics      *txnMetrics
	dataDir      string
	maxRetries   int
	gcEnabled    bool
	gcTicker     *time.Ticker
	gcStopCh     chan struct{}
	gcWg         sync.WaitGroup
}

type BadgerOptionFunc func(*Badger)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BadgerOptionFunc {
	return func(b *Badger) {
		b.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(registry prometheus.Registerer) BadgerOptionFunc {
	return func(b *Badger) {
		b.promRegistry = registry
	}
}

// WithDataDir specifies the data directory to use for storage
func WithDataDir(dataDir string) BadgerOptionFunc {
	return func(b *Badger) {
		b.dataDir = dataDir
	}
}

// WithMaxRetries bounds the re-runs of a conflicting transaction
func WithMaxRetries(n int) BadgerOptionFunc {
	return func(b *Badger) {
		b.maxRetries = n
	}
}

// WithGc specifies whether value log garbage collection is enabled
func WithGc(enabled bool) BadgerOptionFunc {
	return func(b *Badger) {
		b.gcEnabled = enabled
	}
}

// NewBadger opens the database.
func NewBadger(opts ...BadgerOptionFunc) (*Badger, error) {
	b := &Badger{
		maxRetries: DefaultMaxRetries,
		gcEnabled:  true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var badgerOpts badger.Options
	if b.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
		// Nothing to collect in memory
		b.gcEnabled = false
	} else {
		if err := os.MkdirAll(b.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(b.dataDir)
	}
	badgerOpts = badgerOpts.
		WithLogger(&badgerLogger{logger: b.logger}).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	b.db = db

	if b.promRegistry != nil {
		b.metrics = newTxnMetrics(b.promRegistry, "badger")
	}
	if b.gcEnabled {
		b.gcTicker = time.NewTicker(5 * time.Minute)
		b.gcStopCh = make(chan struct{})
		b.gcWg.Add(1)
		go b.valueLogGc()
	}
	return b, nil
}

func (b *Badger) valueLogGc() {
	defer b.gcWg.Done()
	for {
		select {
		case <-b.gcTicker.C:
			// Keep going while a run reclaims something
			for {
				err := b.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					b.logger.Warn("value log GC failed", "error", err, "component", "store")
				}
				break
			}
		case <-b.gcStopCh:
			return
		}
	}
}

// Update runs fn in a read-write transaction, re-running it when badger
// reports a conflict with a transaction that committed first.
func (b *Badger) Update(ctx context.Context, fn func(Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.Update(func(tx *badger.Txn) error {
			return fn(&badgerTxn{tx: tx})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.metrics.retry()
		if attempt+1 >= b.maxRetries {
			b.metrics.exhausted()
			return fmt.Errorf("%w: %w", ErrContention, err)
		}
		b.logger.Debug("transaction conflict, retrying", "attempt", attempt+1)
		if err := backoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (b *Badger) View(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(tx *badger.Txn) error {
		return fn(&badgerTxn{tx: tx})
	})
}

// Close stops GC and closes the database
func (b *Badger) Close() error {
	if b.gcTicker != nil {
		b.gcTicker.Stop()
		close(b.gcStopCh)
		b.gcWg.Wait()
		b.gcTicker = nil
	}
	return b.db.Close()
}

type badgerTxn struct {
	tx *badger.Txn
}

func (t *badgerTxn) Get(key Key, v any) (bool, error) {
	item, err := t.tx.Get([]byte(key.String()))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	err = item.Value(func(val []byte) error {
		return Decode(val, v)
	})
	if err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (t *badgerTxn) Put(key Key, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return t.tx.Set([]byte(key.String()), data)
}

func (t *badgerTxn) Create(key Key, v any) error {
	_, err := t.tx.Get([]byte(key.String()))
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return t.Put(key, v)
}

func (t *badgerTxn) Delete(key Key) error {
	return t.tx.Delete([]byte(key.String()))
}

func (t *badgerTxn) List(c Collection, prefix string, fn func(id string, data []byte) error) error {
	collection := string(c) + "/"
	p := []byte(collection + prefix)
	it := t.tx.NewIterator(badger.IteratorOptions{Prefix: p, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		data, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", item.Key(), err)
		}
		if err := fn(strings.TrimPrefix(string(item.Key()), collection), data); err != nil {
			return err
		}
	}
	return nil
}

// badgerLogger routes badger's printf-style logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
