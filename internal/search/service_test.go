package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lepinkainen/recto/internal/cache"
	recerrors "github.com/lepinkainen/recto/internal/errors"
	"github.com/lepinkainen/recto/internal/openlibrary"
	"github.com/lepinkainen/recto/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSearcher serves canned pages keyed by page number.
type fakeSearcher struct {
	pages   map[int]*openlibrary.SearchResponse
	err     error
	queries []openlibrary.SearchQuery
}

func (f *fakeSearcher) Search(_ context.Context, q openlibrary.SearchQuery) (*openlibrary.SearchResponse, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.pages[q.Page]; ok {
		return resp, nil
	}
	return &openlibrary.SearchResponse{}, nil
}

func goodDoc(n int) openlibrary.SearchDoc {
	return openlibrary.SearchDoc{
		Key:              fmt.Sprintf("/works/OL%dW", n),
		Title:            fmt.Sprintf("Book %d", n),
		AuthorName:       []string{"Ursula K. Le Guin"},
		CoverI:           1000 + n,
		FirstPublishYear: 1969,
		ISBN:             []string{"1", "2", "3", "4"},
	}
}

func TestSearchFiltersUnusableDocs(t *testing.T) {
	docs := []openlibrary.SearchDoc{
		goodDoc(1),
		{Key: "/works/OL2W", Title: "", AuthorName: []string{"A"}, CoverI: 1},
		{Key: "/works/OL3W", Title: "No Cover", AuthorName: []string{"A"}},
		{Key: "/works/OL4W", Title: "Anon", AuthorName: []string{"Anonymous", " unknown "}, CoverI: 4},
		{Key: "/works/OL5W", Title: "No Authors", CoverI: 5},
		{Key: "/works/OL6W", Title: " Mixed ", AuthorName: []string{"Unknown", "Real Person"}, CoverI: 6},
	}
	f := &fakeSearcher{pages: map[int]*openlibrary.SearchResponse{1: {NumFound: 6, Docs: docs}}}

	resp, err := NewService(f).ByTitle(context.Background(), "book", 1, 10)
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "OL1W", resp.Results[0].Key)
	assert.Equal(t, []string{"1", "2", "3"}, resp.Results[0].ISBN)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/1001-M.jpg", resp.Results[0].CoverURL)
	assert.Equal(t, "Mixed", resp.Results[1].Title)
	assert.Equal(t, []string{"Real Person"}, resp.Results[1].Authors)

	assert.Equal(t, 4, resp.Metadata.Filtered)
	assert.Equal(t, 6, resp.Metadata.TotalFound)
	assert.Equal(t, 2, resp.Metadata.TotalReturned)
	assert.Equal(t, KindTitle, resp.Metadata.Kind)
	assert.Equal(t, 6, resp.Pagination.TotalResults)
	assert.Equal(t, 1, resp.Pagination.TotalPages)

	require.Len(t, f.queries, 1)
	assert.Equal(t, "book", f.queries[0].Title)
	assert.Equal(t, 20, f.queries[0].Limit)
	assert.Equal(t, searchFields, f.queries[0].Fields)
}

func TestSearchFetchesMorePagesToFillLimit(t *testing.T) {
	f := &fakeSearcher{pages: map[int]*openlibrary.SearchResponse{
		1: {NumFound: 100, Docs: []openlibrary.SearchDoc{goodDoc(1), {Title: "bad"}}},
		2: {NumFound: 100, Docs: []openlibrary.SearchDoc{goodDoc(2)}},
		3: {NumFound: 100, Docs: []openlibrary.SearchDoc{goodDoc(3), goodDoc(4)}},
		4: {NumFound: 100, Docs: []openlibrary.SearchDoc{goodDoc(5)}},
	}}

	resp, err := NewService(f).ByAuthor(context.Background(), "Le Guin", 1, 3)
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "OL3W", resp.Results[2].Key)
	assert.Len(t, f.queries, 3)
	assert.Equal(t, "Le Guin", f.queries[2].Author)
	assert.Equal(t, 3, f.queries[2].Page)
	assert.Equal(t, 1, resp.Pagination.CurrentPage)
}

func TestSearchStopsAtMaxAttempts(t *testing.T) {
	bad := &openlibrary.SearchResponse{NumFound: 1000, Docs: []openlibrary.SearchDoc{{Title: "bad"}}}
	f := &fakeSearcher{pages: map[int]*openlibrary.SearchResponse{1: bad, 2: bad, 3: bad, 4: bad}}

	resp, err := NewService(f).ByGenre(context.Background(), "fantasy", 1, 5)
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Len(t, f.queries, maxFetchAttempts)
	assert.Equal(t, "fantasy", f.queries[0].Subject)
	assert.Equal(t, 1, resp.Pagination.TotalPages)
}

func TestSearchStopsWhenUpstreamIsExhausted(t *testing.T) {
	f := &fakeSearcher{pages: map[int]*openlibrary.SearchResponse{
		1: {NumFound: 1, Docs: []openlibrary.SearchDoc{goodDoc(1)}},
	}}

	resp, err := NewService(f).ByTitle(context.Background(), "book", 1, 10)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Len(t, f.queries, 1)
}

func TestSearchValidatesInput(t *testing.T) {
	svc := NewService(&fakeSearcher{})

	_, err := svc.ByTitle(context.Background(), "   ", 1, 10)
	require.Error(t, err)
	assert.True(t, recerrors.IsValidation(err))

	_, err = svc.Search(context.Background(), Kind("isbn"), "123", 1, 10)
	require.Error(t, err)
	assert.True(t, recerrors.IsValidation(err))
}

func TestSearchClampsPaging(t *testing.T) {
	f := &fakeSearcher{}
	resp, err := NewService(f).ByTitle(context.Background(), "book", -3, 1000)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Pagination.CurrentPage)
	assert.Equal(t, MaxLimit, resp.Pagination.Limit)
	require.Len(t, f.queries, 1)
	assert.Equal(t, 1, f.queries[0].Page)
	assert.Equal(t, MaxLimit*2, f.queries[0].Limit)
}

func TestSearchPropagatesUpstreamErrors(t *testing.T) {
	f := &fakeSearcher{err: recerrors.NewServiceUnavailableError(openlibrary.SourceName, errors.New("boom"))}

	_, err := NewService(f).ByTitle(context.Background(), "book", 1, 10)
	require.Error(t, err)
	assert.True(t, recerrors.IsServiceUnavailable(err))
}

func TestResultHints(t *testing.T) {
	r := Result{Key: "OL1W", Title: "A Wizard of Earthsea", Authors: []string{"Ursula K. Le Guin"}, CoverID: 7, PublishedYear: 1968}
	h := r.Hints()

	assert.Equal(t, "A Wizard of Earthsea", h.Title)
	assert.Equal(t, []string{"Ursula K. Le Guin"}, h.Authors)
	assert.Equal(t, "1968", h.ReleaseDate)
	assert.Equal(t, 7, h.CoverID)

	assert.Empty(t, Result{}.Hints().ReleaseDate)
}

func TestSearchCachesUpstreamPages(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "dune", r.URL.Query().Get("title"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openlibrary.SearchResponse{
			NumFound: 1,
			Docs: []openlibrary.SearchDoc{{
				Key: "/works/OL893415W", Title: "Dune", AuthorName: []string{"Frank Herbert"}, CoverI: 11481354,
			}},
		})
	}))
	defer srv.Close()

	env := testutil.NewTestEnv(t)
	db, err := cache.NewCacheDB(env.Path("cache.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	client := openlibrary.NewClient(openlibrary.WithBaseURL(srv.URL), openlibrary.WithRateLimiter(nil))
	svc := NewService(client, WithCache(db, time.Hour, time.Minute))

	for i := 0; i < 3; i++ {
		resp, err := svc.ByTitle(context.Background(), "dune", 1, 5)
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "OL893415W", resp.Results[0].Key)
	}
	assert.Equal(t, int32(1), hits.Load())
}
