package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lepinkainen/recto/internal/catalog"
	"github.com/lepinkainen/recto/internal/openlibrary"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

const (
	// DefaultBackfillRetryDelay is the pause before the single retry.
	DefaultBackfillRetryDelay = 2 * time.Second
	defaultBackfillWorkers    = 4
	defaultBackfillQueueSize  = 256
	backfillEditionsLimit     = 5
)

// EditionsFetcher is the supplementary endpoint used by the backfill.
type EditionsFetcher interface {
	GetEditions(ctx context.Context, key string, limit int) (*openlibrary.EditionsPage, error)
}

// BackfillStore is the part of the store the backfill needs.
type BackfillStore interface {
	FindByID(ctx context.Context, id int64) (*catalog.Record, error)
	SetSupplementaryIDIfUnset(ctx context.Context, id int64, value string, at time.Time) (bool, error)
}

type backfillTask struct {
	recordID   int64
	primaryKey string
}

// Backfiller fills the supplementary id (an ISBN-13) of new records on a
// bounded pool of workers. Tasks run on the backfiller's own context, so a
// finished or cancelled request never cancels them.
type Backfiller struct {
	store      BackfillStore
	source     EditionsFetcher
	tasks      chan backfillTask
	workers    int
	retryDelay time.Duration
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// BackfillOption configures a Backfiller.
type BackfillOption func(*Backfiller)

// WithWorkers sets the number of concurrent backfill workers.
func WithWorkers(n int) BackfillOption {
	return func(b *Backfiller) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithQueueSize sets how many tasks may wait before new ones are dropped.
func WithQueueSize(n int) BackfillOption {
	return func(b *Backfiller) {
		if n > 0 {
			b.tasks = make(chan backfillTask, n)
		}
	}
}

// WithRetryDelay sets the pause before the retry.
func WithRetryDelay(d time.Duration) BackfillOption {
	return func(b *Backfiller) {
		if d >= 0 {
			b.retryDelay = d
		}
	}
}

// WithBackfillClock overrides the time source used for write timestamps.
func WithBackfillClock(now func() time.Time) BackfillOption {
	return func(b *Backfiller) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBackfiller starts the worker pool. Call Close to stop it.
func NewBackfiller(store BackfillStore, source EditionsFetcher, opts ...BackfillOption) *Backfiller {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backfiller{
		store:      store,
		source:     source,
		tasks:      make(chan backfillTask, defaultBackfillQueueSize),
		workers:    defaultBackfillWorkers,
		retryDelay: DefaultBackfillRetryDelay,
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(b)
	}

	for i := 0; i < b.workers; i++ {
		b.wg.Go(b.work)
	}
	return b
}

// Schedule enqueues a backfill without blocking. It reports false when the
// queue is full or the backfiller is closed; the task is then dropped.
func (b *Backfiller) Schedule(recordID int64, primaryKey string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}
	select {
	case b.tasks <- backfillTask{recordID: recordID, primaryKey: primaryKey}:
		return true
	default:
		slog.Debug("Backfill queue full, dropping task", "record_id", recordID, "primary_key", primaryKey)
		return false
	}
}

// Close stops accepting tasks, lets queued ones finish and waits for the
// workers. Cancelling ctx abandons whatever is still running.
func (b *Backfiller) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.tasks)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}

func (b *Backfiller) work() {
	for task := range b.tasks {
		var pc panics.Catcher
		pc.Try(func() { b.run(task) })
		if r := pc.Recovered(); r != nil {
			slog.Debug("Backfill task panicked", "record_id", task.recordID, "panic", r.Value)
		}
	}
}

// run performs one task. Every failure is swallowed and logged at debug level.
func (b *Backfiller) run(task backfillTask) {
	log := slog.With("record_id", task.recordID, "primary_key", task.primaryKey)

	if b.ctx.Err() != nil {
		return
	}

	rec, err := b.store.FindByID(b.ctx, task.recordID)
	if err != nil {
		log.Debug("Backfill read failed", "error", err)
		return
	}
	if rec == nil || rec.SupplementaryID != "" {
		log.Debug("Backfill not needed")
		return
	}

	isbn, err := b.fetch(task.primaryKey)
	if err != nil {
		log.Debug("Backfill fetch failed, retrying", "delay", b.retryDelay, "error", err)
		select {
		case <-time.After(b.retryDelay):
		case <-b.ctx.Done():
			return
		}
		isbn, err = b.fetch(task.primaryKey)
		if err != nil {
			log.Debug("Backfill fetch failed again, giving up", "error", err)
			return
		}
	}
	if isbn == "" {
		log.Debug("No ISBN-13 among editions")
		return
	}

	wrote, err := b.store.SetSupplementaryIDIfUnset(b.ctx, task.recordID, isbn, b.now())
	if err != nil {
		log.Debug("Backfill write failed", "error", err)
		return
	}
	log.Debug("Backfill complete", "isbn13", isbn, "written", wrote)
}

func (b *Backfiller) fetch(key string) (string, error) {
	page, err := b.source.GetEditions(b.ctx, key, backfillEditionsLimit)
	if err != nil {
		return "", err
	}
	return page.FirstISBN13(), nil
}
