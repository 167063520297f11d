// Package catalog holds the canonical book record and the pure logic that
// decides how loosely-identified books map onto it: normalizing source
// documents, matching them to stored records and merging new data in.
package catalog

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// UnknownAuthor is the placeholder used when no author names are known.
	UnknownAuthor = "Unknown Author"
	// Untitled is the placeholder used when neither hints nor source carry a title.
	Untitled = "Untitled"
	// DefaultFreshness is how long a confirmed record is served without refetching.
	DefaultFreshness = 7 * 24 * time.Hour
)

// CoverRef points at a rendered cover image and the source id it came from.
type CoverRef struct {
	ImageURL      string `json:"image_url" yaml:"image_url"`
	SourceCoverID int    `json:"source_cover_id" yaml:"source_cover_id"`
}

// QualityMeta tracks freshness and aggregate rating data.
type QualityMeta struct {
	UpdatedAt     time.Time       `json:"updated_at" yaml:"updated_at"`
	RatingAverage decimal.Decimal `json:"rating_average" yaml:"rating_average"`
	RatingCount   int             `json:"rating_count" yaml:"rating_count"`
}

// Record is the canonical, de-duplicated representation of a logical book.
type Record struct {
	ID              int64       `json:"id" yaml:"id"`
	PrimaryKey      string      `json:"primary_key" yaml:"primary_key"`
	AlternateKeys   []string    `json:"alternate_keys" yaml:"alternate_keys"`
	Title           string      `json:"title" yaml:"title"`
	Subtitle        string      `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Authors         []string    `json:"authors" yaml:"authors"`
	Genres          []string    `json:"genres" yaml:"genres"`
	Description     string      `json:"description,omitempty" yaml:"description,omitempty"`
	ReleaseDate     string      `json:"release_date,omitempty" yaml:"release_date,omitempty"`
	Cover           *CoverRef   `json:"cover,omitempty" yaml:"cover,omitempty"`
	SupplementaryID string      `json:"supplementary_id,omitempty" yaml:"supplementary_id,omitempty"`
	Quality         QualityMeta `json:"quality" yaml:"quality"`
	Version         int64       `json:"version" yaml:"version"`
	CreatedAt       time.Time   `json:"created_at" yaml:"created_at"`
}

// HasKey reports whether key is the record's primary key or one of its aliases.
func (r *Record) HasKey(key string) bool {
	if r == nil || key == "" {
		return false
	}
	return r.PrimaryKey == key || slices.Contains(r.AlternateKeys, key)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.AlternateKeys = slices.Clone(r.AlternateKeys)
	c.Authors = slices.Clone(r.Authors)
	c.Genres = slices.Clone(r.Genres)
	if r.Cover != nil {
		cover := *r.Cover
		c.Cover = &cover
	}
	return &c
}

// IsFresh reports whether rec can be served for key without refetching:
// it was confirmed within window and key is already linked to it.
func IsFresh(rec *Record, key string, now time.Time, window time.Duration) bool {
	if rec == nil {
		return false
	}
	if window <= 0 {
		window = DefaultFreshness
	}
	return now.Sub(rec.Quality.UpdatedAt) < window && rec.HasKey(key)
}

// Hints are the caller-supplied facts about a book, typically carried over
// from a search result.
type Hints struct {
	Title       string
	Authors     []string
	ReleaseDate string
	Genres      []string
	CoverID     int
}

// Partial is a normalized source document: everything the source told us,
// in record shape, but not yet reconciled with anything stored.
type Partial struct {
	PrimaryKey  string
	Title       string
	Subtitle    string
	Authors     []string
	Genres      []string
	Description string
	ReleaseDate string
	Cover       *CoverRef
}

// NewRecord builds a fresh record from p. When the source key differs from
// the key the caller asked for, the requested key is kept as an alias.
func (p Partial) NewRecord(requestedKey string, now time.Time) *Record {
	rec := &Record{
		PrimaryKey:    p.PrimaryKey,
		AlternateKeys: []string{},
		Title:         p.Title,
		Subtitle:      p.Subtitle,
		Authors:       slices.Clone(p.Authors),
		Genres:        slices.Clone(p.Genres),
		Description:   p.Description,
		ReleaseDate:   p.ReleaseDate,
		Quality: QualityMeta{
			UpdatedAt:     now,
			RatingAverage: decimal.Zero,
		},
		CreatedAt: now,
	}
	if rec.PrimaryKey == "" {
		rec.PrimaryKey = requestedKey
	}
	if requestedKey != "" && requestedKey != rec.PrimaryKey {
		rec.AlternateKeys = append(rec.AlternateKeys, requestedKey)
	}
	if len(rec.Authors) == 0 {
		rec.Authors = []string{UnknownAuthor}
	}
	if rec.Genres == nil {
		rec.Genres = []string{}
	}
	if p.Cover != nil {
		cover := *p.Cover
		rec.Cover = &cover
	}
	return rec
}
