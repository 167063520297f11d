package catalog

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/lepinkainen/recto/internal/openlibrary"
	"golang.org/x/text/cases"
)

// releaseDateLayout is how parsed release dates are stored.
const releaseDateLayout = "2006-01-02"

// looseDateLayouts cover the shapes OpenLibrary commonly uses for
// first_publish_date. Anything else goes through dateparse.
var looseDateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2006",
	"Jan 2006",
	"January, 2006",
}

// Normalize converts a work document plus caller hints into record shape.
// It performs no I/O and never fails: missing or malformed source fields
// degrade to empty values or placeholders.
func Normalize(work *openlibrary.Work, hints Hints) Partial {
	if work == nil {
		work = &openlibrary.Work{}
	}

	p := Partial{
		PrimaryKey:  openlibrary.WorkKey(work.Key),
		Title:       strings.TrimSpace(hints.Title),
		Subtitle:    strings.TrimSpace(work.Subtitle),
		Description: work.DescriptionText(),
	}

	if p.Title == "" {
		p.Title = strings.TrimSpace(work.Title)
	}
	if p.Title == "" {
		p.Title = Untitled
	}

	// The works endpoint only carries author ids, so names come from hints.
	p.Authors = cleanNames(hints.Authors)
	if len(p.Authors) == 0 {
		p.Authors = []string{UnknownAuthor}
	}

	p.ReleaseDate = ParseReleaseDate(work.FirstPublishDate)
	if p.ReleaseDate == "" {
		if parsed := ParseReleaseDate(hints.ReleaseDate); parsed != "" {
			p.ReleaseDate = parsed
		} else {
			p.ReleaseDate = strings.TrimSpace(hints.ReleaseDate)
		}
	}

	coverID := work.FirstCoverID()
	if coverID <= 0 {
		coverID = hints.CoverID
	}
	if coverID > 0 {
		p.Cover = &CoverRef{ImageURL: openlibrary.CoverURL(coverID), SourceCoverID: coverID}
	}

	if subjects := work.SubjectNames(); len(subjects) > 0 {
		p.Genres = cleanGenres(subjects)
	} else {
		p.Genres = cleanGenres(hints.Genres)
	}

	return p
}

// ParseReleaseDate parses a loosely formatted date and renders it as
// YYYY-MM-DD. It returns "" when s is empty or unparseable.
func ParseReleaseDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range looseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(releaseDateLayout)
		}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return ""
	}
	return t.Format(releaseDateLayout)
}

// cleanGenres trims genres and removes blanks and case-insensitive duplicates.
func cleanGenres(genres []string) []string {
	seen := make(map[string]bool, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		key := cases.Fold().String(g)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, g)
	}
	return out
}
