// Package search finds candidate books on OpenLibrary by title, author or
// genre and returns them as hints ready for resolution.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/recto/internal/cache"
	"github.com/lepinkainen/recto/internal/catalog"
	recerrors "github.com/lepinkainen/recto/internal/errors"
	"github.com/lepinkainen/recto/internal/openlibrary"
)

const (
	// DefaultLimit is the page size used when none is given.
	DefaultLimit = 10
	// MaxLimit caps the page size.
	MaxLimit = 50

	maxFetchAttempts = 3
	searchFields     = "key,title,author_name,cover_i,first_publish_year,isbn"
	cacheTable       = "search_cache"
	maxISBNs         = 3
)

// Kind selects the search field.
type Kind string

const (
	KindTitle  Kind = "title"
	KindAuthor Kind = "author"
	KindGenre  Kind = "genre"
)

// Searcher runs a raw search. *openlibrary.Client implements it.
type Searcher interface {
	Search(ctx context.Context, q openlibrary.SearchQuery) (*openlibrary.SearchResponse, error)
}

// Result is a single usable search hit.
type Result struct {
	Key           string   `json:"key" yaml:"key"`
	Title         string   `json:"title" yaml:"title"`
	Authors       []string `json:"authors" yaml:"authors"`
	CoverID       int      `json:"cover_id" yaml:"cover_id"`
	CoverURL      string   `json:"cover_url" yaml:"cover_url"`
	PublishedYear int      `json:"published_year,omitempty" yaml:"published_year,omitempty"`
	ISBN          []string `json:"isbn,omitempty" yaml:"isbn,omitempty"`
}

// Hints converts the result into resolution hints.
func (r Result) Hints() catalog.Hints {
	h := catalog.Hints{
		Title:   r.Title,
		Authors: r.Authors,
		CoverID: r.CoverID,
	}
	if r.PublishedYear > 0 {
		h.ReleaseDate = strconv.Itoa(r.PublishedYear)
	}
	return h
}

// Pagination is an estimate: filtered hits make the real total unknowable
// without walking every page.
type Pagination struct {
	CurrentPage  int `json:"current_page" yaml:"current_page"`
	TotalPages   int `json:"total_pages" yaml:"total_pages"`
	Limit        int `json:"limit" yaml:"limit"`
	TotalResults int `json:"total_results" yaml:"total_results"`
}

// Metadata describes what the upstream returned and what was dropped.
type Metadata struct {
	Query         string `json:"query" yaml:"query"`
	Kind          Kind   `json:"kind" yaml:"kind"`
	TotalFound    int    `json:"total_found" yaml:"total_found"`
	TotalReturned int    `json:"total_returned" yaml:"total_returned"`
	Filtered      int    `json:"filtered" yaml:"filtered"`
}

// Response is one page of search results.
type Response struct {
	Results    []Result   `json:"results" yaml:"results"`
	Pagination Pagination `json:"pagination" yaml:"pagination"`
	Metadata   Metadata   `json:"metadata" yaml:"metadata"`
}

// Service runs searches, optionally caching raw upstream pages.
type Service struct {
	client      Searcher
	cache       *cache.CacheDB
	ttl         time.Duration
	negativeTTL time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches raw pages in db. Empty pages use negativeTTL.
func WithCache(db *cache.CacheDB, ttl, negativeTTL time.Duration) Option {
	return func(s *Service) {
		s.cache = db
		if ttl > 0 {
			s.ttl = ttl
		}
		if negativeTTL > 0 {
			s.negativeTTL = negativeTTL
		}
	}
}

// NewService creates a search service over client.
func NewService(client Searcher, opts ...Option) *Service {
	s := &Service{
		client:      client,
		ttl:         cache.DefaultCacheTTL,
		negativeTTL: cache.NegativeCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ByTitle searches by title.
func (s *Service) ByTitle(ctx context.Context, title string, page, limit int) (*Response, error) {
	return s.Search(ctx, KindTitle, title, page, limit)
}

// ByAuthor searches by author name.
func (s *Service) ByAuthor(ctx context.Context, author string, page, limit int) (*Response, error) {
	return s.Search(ctx, KindAuthor, author, page, limit)
}

// ByGenre searches by subject.
func (s *Service) ByGenre(ctx context.Context, genre string, page, limit int) (*Response, error) {
	return s.Search(ctx, KindGenre, genre, page, limit)
}

// Search fetches up to three upstream pages, each twice the requested size,
// until limit usable results are collected. Hits without a title, a real
// author or a cover are dropped.
func (s *Service) Search(ctx context.Context, kind Kind, query string, page, limit int) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, recerrors.NewValidationError(string(kind), "search query cannot be empty")
	}
	switch kind {
	case KindTitle, KindAuthor, KindGenre:
	default:
		return nil, recerrors.NewValidationError("kind", fmt.Sprintf("unknown search kind %q", kind))
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	perPage := limit * 2

	var (
		results    []Result
		totalFound int
		filtered   int
		current    = page
	)
	for attempt := 0; len(results) < limit && attempt < maxFetchAttempts; attempt++ {
		resp, err := s.fetchPage(ctx, kind, query, current, perPage)
		if err != nil {
			return nil, err
		}
		if attempt == 0 {
			totalFound = resp.NumFound
		}

		for _, doc := range resp.Docs {
			r, ok := toResult(doc)
			if !ok {
				filtered++
				continue
			}
			if len(results) < limit {
				results = append(results, r)
			}
		}

		if len(resp.Docs) == 0 || current*perPage >= totalFound {
			break
		}
		current++
	}

	if results == nil {
		results = []Result{}
	}

	estimated := 0
	if usable := totalFound - filtered; totalFound > 0 && usable > 0 {
		ratio := float64(len(results)) / float64(usable)
		estimated = int(math.Ceil(float64(totalFound) * ratio))
	}

	slog.Debug("Search complete", "kind", kind, "query", query, "found", totalFound, "returned", len(results), "filtered", filtered)

	return &Response{
		Results: results,
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   max(1, int(math.Ceil(float64(estimated)/float64(limit)))),
			Limit:        limit,
			TotalResults: estimated,
		},
		Metadata: Metadata{
			Query:         query,
			Kind:          kind,
			TotalFound:    totalFound,
			TotalReturned: len(results),
			Filtered:      filtered,
		},
	}, nil
}

func (s *Service) fetchPage(ctx context.Context, kind Kind, query string, page, perPage int) (*openlibrary.SearchResponse, error) {
	q := openlibrary.SearchQuery{Page: page, Limit: perPage, Fields: searchFields}
	switch kind {
	case KindTitle:
		q.Title = query
	case KindAuthor:
		q.Author = query
	case KindGenre:
		q.Subject = query
	}

	key := fmt.Sprintf("%s:%s:%d:%d", kind, catalog.FoldTitle(query), page, perPage)
	resp, _, err := cache.GetOrFetchWithTTL(ctx, s.cache, cacheTable, key,
		func(ctx context.Context) (*openlibrary.SearchResponse, error) {
			return s.client.Search(ctx, q)
		},
		cache.SelectNegativeCacheTTL(s.ttl, s.negativeTTL, func(r *openlibrary.SearchResponse) bool {
			return r == nil || len(r.Docs) == 0
		}))
	if err != nil {
		return nil, fmt.Errorf("search %s %q page %d: %w", kind, query, page, err)
	}
	if resp == nil {
		return &openlibrary.SearchResponse{}, nil
	}
	return resp, nil
}

// toResult reports false for hits that cannot be resolved usefully.
func toResult(doc openlibrary.SearchDoc) (Result, bool) {
	title := strings.TrimSpace(doc.Title)
	if title == "" || doc.CoverI <= 0 {
		return Result{}, false
	}

	var authors []string
	for _, a := range doc.AuthorName {
		a = strings.TrimSpace(a)
		if a == "" || isPlaceholderAuthor(a) {
			continue
		}
		authors = append(authors, a)
	}
	if len(authors) == 0 {
		return Result{}, false
	}

	isbn := doc.ISBN
	if len(isbn) > maxISBNs {
		isbn = isbn[:maxISBNs]
	}

	return Result{
		Key:           openlibrary.WorkKey(doc.Key),
		Title:         title,
		Authors:       authors,
		CoverID:       doc.CoverI,
		CoverURL:      openlibrary.CoverURLSize(doc.CoverI, "M"),
		PublishedYear: doc.FirstPublishYear,
		ISBN:          isbn,
	}, true
}

func isPlaceholderAuthor(name string) bool {
	switch strings.ToLower(name) {
	case "unknown", "anonymous", strings.ToLower(catalog.UnknownAuthor):
		return true
	}
	return false
}
