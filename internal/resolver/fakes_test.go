package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/lepinkainen/recto/internal/catalog"
	recerrors "github.com/lepinkainen/recto/internal/errors"
	"github.com/lepinkainen/recto/internal/openlibrary"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

// memStore is an in-memory catalog.Store with the same conflict semantics as
// the SQLite store.
type memStore struct {
	mu      sync.Mutex
	records map[int64]*catalog.Record
	nextID  int64

	inserts, saves, touches int

	// beforeInsert runs once, before the first Insert is applied.
	beforeInsert func(s *memStore)
	// beforeSave runs once, before the first Save is applied.
	beforeSave func(s *memStore, rec *catalog.Record)
}

func newMemStore() *memStore {
	return &memStore{records: map[int64]*catalog.Record{}}
}

// seed stores rec directly and returns its id.
func (s *memStore) seed(rec *catalog.Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(rec)
}

func (s *memStore) put(rec *catalog.Record) int64 {
	s.nextID++
	c := rec.Clone()
	c.ID = s.nextID
	if c.Version == 0 {
		c.Version = 1
	}
	if c.AlternateKeys == nil {
		c.AlternateKeys = []string{}
	}
	s.records[c.ID] = c
	return c.ID
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) get(id int64) *catalog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone()
}

func (s *memStore) ownerOf(key string) *catalog.Record {
	for _, r := range s.records {
		if r.HasKey(key) {
			return r
		}
	}
	return nil
}

func (s *memStore) FindByKey(_ context.Context, key string) (*catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerOf(key).Clone(), nil
}

func (s *memStore) FindByID(_ context.Context, id int64) (*catalog.Record, error) {
	return s.get(id), nil
}

func (s *memStore) FindByTitle(_ context.Context, title string) ([]*catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*catalog.Record
	for id := int64(1); id <= s.nextID; id++ {
		if r, ok := s.records[id]; ok && catalog.SameTitle(r.Title, title) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *memStore) ListByAuthors(_ context.Context, authors []string, limit int) ([]*catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*catalog.Record
	for id := int64(1); id <= s.nextID && len(out) < limit; id++ {
		r, ok := s.records[id]
		if !ok {
			continue
		}
	match:
		for _, have := range r.Authors {
			for _, want := range authors {
				if catalog.NamesOverlap(have, want) {
					out = append(out, r.Clone())
					break match
				}
			}
		}
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, rec *catalog.Record) error {
	s.mu.Lock()
	if hook := s.beforeInsert; hook != nil {
		s.beforeInsert = nil
		s.mu.Unlock()
		hook(s)
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	s.inserts++
	for _, k := range append([]string{rec.PrimaryKey}, rec.AlternateKeys...) {
		if s.ownerOf(k) != nil {
			return recerrors.NewConflictError(k, "key already stored")
		}
	}
	rec.ID = s.put(rec)
	rec.Version = 1
	return nil
}

func (s *memStore) Save(_ context.Context, rec *catalog.Record) error {
	s.mu.Lock()
	if hook := s.beforeSave; hook != nil {
		s.beforeSave = nil
		s.mu.Unlock()
		hook(s, rec)
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	s.saves++
	stored, ok := s.records[rec.ID]
	if !ok {
		return recerrors.NewNotFoundError(rec.PrimaryKey)
	}
	if stored.Version != rec.Version {
		return recerrors.NewConflictError(rec.PrimaryKey, "stale version")
	}
	for _, k := range rec.AlternateKeys {
		if owner := s.ownerOf(k); owner != nil && owner.ID != rec.ID {
			return recerrors.NewConflictError(k, "key linked to another record")
		}
	}
	c := rec.Clone()
	if stored.SupplementaryID != "" {
		c.SupplementaryID = stored.SupplementaryID
	}
	if stored.Quality.UpdatedAt.After(c.Quality.UpdatedAt) {
		c.Quality.UpdatedAt = stored.Quality.UpdatedAt
	}
	c.Version++
	s.records[rec.ID] = c
	rec.Version = c.Version
	return nil
}

func (s *memStore) Touch(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches++
	if r, ok := s.records[id]; ok && at.After(r.Quality.UpdatedAt) {
		r.Quality.UpdatedAt = at
	}
	return nil
}

func (s *memStore) SetSupplementaryIDIfUnset(_ context.Context, id int64, value string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.SupplementaryID != "" || value == "" {
		return false, nil
	}
	r.SupplementaryID = value
	r.Version++
	return true, nil
}

// fakeSource serves works and editions from maps and counts calls.
type fakeSource struct {
	mu       sync.Mutex
	works    map[string]*openlibrary.Work
	workErr  error
	workHits int

	editions     map[string]*openlibrary.EditionsPage
	editionErrs  []error
	editionHits  int
	editionBlock chan struct{}
	editionStart chan struct{}
	editionPanic bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		works:    map[string]*openlibrary.Work{},
		editions: map[string]*openlibrary.EditionsPage{},
	}
}

func (f *fakeSource) GetWork(_ context.Context, key string) (*openlibrary.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workHits++
	if f.workErr != nil {
		return nil, f.workErr
	}
	w, ok := f.works[key]
	if !ok {
		return nil, recerrors.NewNotFoundError(key)
	}
	return w, nil
}

func (f *fakeSource) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workHits
}

func (f *fakeSource) GetEditions(ctx context.Context, key string, _ int) (*openlibrary.EditionsPage, error) {
	f.mu.Lock()
	f.editionHits++
	block, start := f.editionBlock, f.editionStart
	var err error
	if len(f.editionErrs) > 0 {
		err = f.editionErrs[0]
		f.editionErrs = f.editionErrs[1:]
	}
	page := f.editions[key]
	shouldPanic := f.editionPanic
	f.editionPanic = false
	f.mu.Unlock()

	if start != nil {
		start <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if shouldPanic {
		panic("editions exploded")
	}
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, recerrors.NewNotFoundError(key)
	}
	return page, nil
}

func (f *fakeSource) editionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editionHits
}

// recordingScheduler remembers scheduled backfills.
type recordingScheduler struct {
	mu    sync.Mutex
	tasks []backfillTask
}

func (r *recordingScheduler) Schedule(recordID int64, primaryKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, backfillTask{recordID: recordID, primaryKey: primaryKey})
	return true
}
