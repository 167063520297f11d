// Package resolver turns a loosely identified book into a single canonical,
// progressively enriched record.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lepinkainen/recto/internal/catalog"
	recerrors "github.com/lepinkainen/recto/internal/errors"
	"github.com/lepinkainen/recto/internal/openlibrary"
)

const (
	// StoreSource names the record store in ServiceUnavailable errors.
	StoreSource = "record store"

	maxKeyLength       = 64
	defaultMaxAttempts = 3
)

// Outcome describes how a resolution was satisfied.
type Outcome string

const (
	OutcomeFresh         Outcome = "fresh"
	OutcomeRefreshed     Outcome = "refreshed"
	OutcomeStaleFallback Outcome = "stale_fallback"
	OutcomeCreated       Outcome = "created"
	OutcomeMerged        Outcome = "merged"
)

// Fetcher is the external source. *openlibrary.Client implements it.
type Fetcher interface {
	GetWork(ctx context.Context, key string) (*openlibrary.Work, error)
}

// Scheduler accepts fire-and-forget backfill work.
type Scheduler interface {
	Schedule(recordID int64, primaryKey string) bool
}

// Request is a resolution request: an external key plus optional hints.
type Request struct {
	Key         string
	Title       string
	Authors     []string
	ReleaseDate string
	Genres      []string
	CoverID     int
}

func (r Request) hints() catalog.Hints {
	return catalog.Hints{
		Title:       r.Title,
		Authors:     r.Authors,
		ReleaseDate: r.ReleaseDate,
		Genres:      r.Genres,
		CoverID:     r.CoverID,
	}
}

// Resolver coordinates lookup, staleness, fetching, merging and persistence.
type Resolver struct {
	store       catalog.Store
	source      Fetcher
	matcher     *catalog.Matcher
	policy      catalog.MatchPolicy
	backfill    Scheduler
	freshness   time.Duration
	maxAttempts int
	now         func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFreshness sets how long a confirmed record is served without refetching.
func WithFreshness(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.freshness = d
		}
	}
}

// WithMatchPolicy tunes the fuzzy matching strategies.
func WithMatchPolicy(p catalog.MatchPolicy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

// WithBackfill sets where newly created records are sent for backfill.
func WithBackfill(s Scheduler) Option {
	return func(r *Resolver) {
		r.backfill = s
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxAttempts bounds retries after store conflicts.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// New creates a Resolver over store and source.
func New(store catalog.Store, source Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		source:      source,
		policy:      catalog.DefaultMatchPolicy(),
		freshness:   catalog.DefaultFreshness,
		maxAttempts: defaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.matcher = catalog.NewMatcher(store, r.policy)
	return r
}

// ValidateKey normalizes a requested key, accepting the "/works/OL1W" and
// "OL1W.json" forms. It fails with a ValidationError before any I/O.
func ValidateKey(raw string) (string, error) {
	key := openlibrary.WorkKey(strings.TrimSpace(raw))
	if key == "" {
		return "", recerrors.NewValidationError("key", "key is required")
	}
	if len(key) > maxKeyLength {
		return "", recerrors.NewValidationError("key", fmt.Sprintf("key is longer than %d characters", maxKeyLength))
	}
	for _, c := range key {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return "", recerrors.NewValidationError("key", fmt.Sprintf("key contains invalid character %q", c))
		}
	}
	return key, nil
}

// Resolve returns the canonical record for req. Callers only ever see a
// record, a ValidationError, a NotFoundError or a ServiceUnavailableError.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*catalog.Record, error) {
	key, err := ValidateKey(req.Key)
	if err != nil {
		return nil, err
	}

	log := slog.With("request_id", uuid.NewString(), "key", key)
	started := r.now()

	existing, strategy, err := r.matcher.Find(ctx, key, req.Title, req.Authors)
	if err != nil {
		return nil, recerrors.NewServiceUnavailableError(StoreSource, err)
	}

	if existing != nil && catalog.IsFresh(existing, key, started, r.freshness) {
		log.Debug("Resolved record", "outcome", OutcomeFresh, "strategy", strategy, "record_id", existing.ID)
		return existing, nil
	}

	work, fetchErr := r.source.GetWork(ctx, key)

	if existing != nil {
		return r.refresh(ctx, log, existing, strategy, work, fetchErr, req, key)
	}
	return r.create(ctx, log, work, fetchErr, req, key)
}

// refresh handles HIT_STALE. Any failure after the lookup degrades to the
// stale record.
func (r *Resolver) refresh(ctx context.Context, log *slog.Logger, existing *catalog.Record, strategy catalog.Strategy, work *openlibrary.Work, fetchErr error, req Request, key string) (*catalog.Record, error) {
	if fetchErr != nil {
		log.Debug("Resolved record", "outcome", OutcomeStaleFallback, "strategy", strategy, "record_id", existing.ID, "error", fetchErr)
		return existing, nil
	}

	partial := catalog.Normalize(work, req.hints())
	if partial.PrimaryKey != "" && partial.PrimaryKey != key && !existing.HasKey(partial.PrimaryKey) {
		owner, err := r.store.FindByKey(ctx, partial.PrimaryKey)
		if err != nil {
			log.Warn("Failed to look up served key, serving stale copy", "record_id", existing.ID, "served_key", partial.PrimaryKey, "error", err)
			return existing, nil
		}
		if owner != nil && owner.ID != existing.ID {
			// Another record owns the served key; keep the aliases disjoint.
			log.Debug("Served key belongs to another record", "record_id", existing.ID, "owner_id", owner.ID, "served_key", partial.PrimaryKey)
			partial.PrimaryKey = ""
		}
	}

	rec, fields, err := r.enrich(ctx, existing, partial, key)
	if err != nil {
		log.Warn("Failed to persist refreshed record, serving stale copy", "record_id", existing.ID, "error", err)
		return existing, nil
	}

	log.Debug("Resolved record", "outcome", OutcomeRefreshed, "strategy", strategy, "record_id", rec.ID, "fields", fields)
	return rec, nil
}

// create handles MISS.
func (r *Resolver) create(ctx context.Context, log *slog.Logger, work *openlibrary.Work, fetchErr error, req Request, key string) (*catalog.Record, error) {
	if fetchErr != nil {
		if recerrors.IsNotFound(fetchErr) {
			return nil, recerrors.NewNotFoundError(key)
		}
		if recerrors.IsServiceUnavailable(fetchErr) {
			return nil, fetchErr
		}
		return nil, recerrors.NewServiceUnavailableError(openlibrary.SourceName, fetchErr)
	}

	partial := catalog.Normalize(work, req.hints())
	if partial.PrimaryKey == "" {
		partial.PrimaryKey = key
	}

	// A redirected work may already be stored under its canonical key.
	if partial.PrimaryKey != key {
		winner, err := r.store.FindByKey(ctx, partial.PrimaryKey)
		if err != nil {
			return nil, recerrors.NewServiceUnavailableError(StoreSource, err)
		}
		if winner != nil {
			return r.mergeInto(ctx, log, winner, partial, key)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		rec := partial.NewRecord(key, r.now())
		err := r.store.Insert(ctx, rec)
		if err == nil {
			log.Debug("Resolved record", "outcome", OutcomeCreated, "record_id", rec.ID, "primary_key", rec.PrimaryKey)
			r.scheduleBackfill(log, rec)
			return rec, nil
		}
		if !recerrors.IsConflict(err) {
			return nil, recerrors.NewServiceUnavailableError(StoreSource, err)
		}
		lastErr = err

		log.Debug("Lost creation race, looking up winner", "attempt", attempt, "error", err)
		winner, err := r.findWinner(ctx, partial, req, key)
		if err != nil {
			return nil, recerrors.NewServiceUnavailableError(StoreSource, err)
		}
		if winner != nil {
			return r.mergeInto(ctx, log, winner, partial, key)
		}
	}

	return nil, recerrors.NewServiceUnavailableError(StoreSource, lastErr)
}

// findWinner re-runs the matcher by the source key, then by the requested key.
func (r *Resolver) findWinner(ctx context.Context, partial catalog.Partial, req Request, key string) (*catalog.Record, error) {
	winner, _, err := r.matcher.Find(ctx, partial.PrimaryKey, partial.Title, partial.Authors)
	if err != nil || winner != nil {
		return winner, err
	}
	if key == partial.PrimaryKey {
		return nil, nil
	}
	winner, _, err = r.matcher.Find(ctx, key, req.Title, req.Authors)
	return winner, err
}

func (r *Resolver) mergeInto(ctx context.Context, log *slog.Logger, winner *catalog.Record, partial catalog.Partial, key string) (*catalog.Record, error) {
	rec, fields, err := r.enrich(ctx, winner, partial, key)
	if err != nil {
		if recerrors.IsNotFound(err) || recerrors.IsConflict(err) {
			log.Warn("Failed to merge into existing record, serving it unchanged", "record_id", winner.ID, "error", err)
			return winner, nil
		}
		return nil, recerrors.NewServiceUnavailableError(StoreSource, err)
	}
	log.Debug("Resolved record", "outcome", OutcomeMerged, "record_id", rec.ID, "fields", fields)
	return rec, nil
}

// enrich merges partial into rec and persists it. A version conflict re-reads
// the record and merges the same data again; the source is not refetched.
func (r *Resolver) enrich(ctx context.Context, rec *catalog.Record, partial catalog.Partial, key string) (*catalog.Record, []string, error) {
	current := rec.Clone()
	for attempt := 1; ; attempt++ {
		now := r.now()
		res := catalog.Merge(current, partial, key)

		if res.TouchOnly() {
			if err := r.store.Touch(ctx, current.ID, now); err != nil {
				return nil, nil, fmt.Errorf("touch record %d: %w", current.ID, err)
			}
			if now.After(current.Quality.UpdatedAt) {
				current.Quality.UpdatedAt = now
			}
			return current, nil, nil
		}

		if now.After(current.Quality.UpdatedAt) {
			current.Quality.UpdatedAt = now
		}
		err := r.store.Save(ctx, current)
		if err == nil {
			return current, res.Fields(), nil
		}
		if !recerrors.IsConflict(err) || attempt >= r.maxAttempts {
			return nil, nil, fmt.Errorf("save record %d: %w", current.ID, err)
		}

		fresh, readErr := r.store.FindByID(ctx, current.ID)
		if readErr != nil {
			return nil, nil, fmt.Errorf("re-read record %d: %w", current.ID, readErr)
		}
		if fresh == nil {
			return nil, nil, recerrors.NewNotFoundError(current.PrimaryKey)
		}
		current = fresh
	}
}

func (r *Resolver) scheduleBackfill(log *slog.Logger, rec *catalog.Record) {
	if r.backfill == nil || rec.SupplementaryID != "" {
		return
	}
	if !r.backfill.Schedule(rec.ID, rec.PrimaryKey) {
		log.Debug("Backfill not scheduled", "record_id", rec.ID)
	}
}
