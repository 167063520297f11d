package catalog

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Field identifies a record field touched by a merge.
type Field string

const (
	FieldDescription   Field = "description"
	FieldCover         Field = "cover"
	FieldSubtitle      Field = "subtitle"
	FieldReleaseDate   Field = "release_date"
	FieldAuthors       Field = "authors"
	FieldGenres        Field = "genres"
	FieldAlternateKeys Field = "alternate_keys"
)

// Update is a single field-level change decided by a merge rule.
// The concrete types below are the only implementations.
type Update interface {
	Field() Field
	apply(rec *Record)
}

// SetDescription replaces the description with a strictly longer one.
type SetDescription struct{ Value string }

// SetCover fills a missing cover.
type SetCover struct{ Cover CoverRef }

// SetSubtitle fills a missing subtitle.
type SetSubtitle struct{ Value string }

// SetReleaseDate fills a missing release date.
type SetReleaseDate struct{ Value string }

// AddAuthors appends genuinely new author names. ReplaceUnknown drops the
// unknown-author placeholder first.
type AddAuthors struct {
	Names          []string
	ReplaceUnknown bool
}

// AddGenres appends genres not already present.
type AddGenres struct{ Names []string }

// AddAlternateKey links another external key to the record.
type AddAlternateKey struct{ Key string }

func (SetDescription) Field() Field  { return FieldDescription }
func (SetCover) Field() Field        { return FieldCover }
func (SetSubtitle) Field() Field     { return FieldSubtitle }
func (SetReleaseDate) Field() Field  { return FieldReleaseDate }
func (AddAuthors) Field() Field      { return FieldAuthors }
func (AddGenres) Field() Field       { return FieldGenres }
func (AddAlternateKey) Field() Field { return FieldAlternateKeys }

func (u SetDescription) apply(rec *Record) { rec.Description = u.Value }
func (u SetSubtitle) apply(rec *Record)    { rec.Subtitle = u.Value }
func (u SetReleaseDate) apply(rec *Record) { rec.ReleaseDate = u.Value }

func (u SetCover) apply(rec *Record) {
	cover := u.Cover
	rec.Cover = &cover
}

func (u AddAuthors) apply(rec *Record) {
	if u.ReplaceUnknown {
		rec.Authors = cleanNames(rec.Authors)
	}
	rec.Authors = append(rec.Authors, u.Names...)
	if len(rec.Authors) == 0 {
		rec.Authors = []string{UnknownAuthor}
	}
}

func (u AddGenres) apply(rec *Record) { rec.Genres = append(rec.Genres, u.Names...) }

func (u AddAlternateKey) apply(rec *Record) { rec.AlternateKeys = append(rec.AlternateKeys, u.Key) }

// mergeRule decides one field. It returns nil when the field stays as is.
type mergeRule struct {
	name   string
	decide func(existing *Record, incoming Partial, requestedKey string) Update
}

// mergeRules is the decision table. Every rule only fills gaps or strictly
// improves a field; none can clear known data.
var mergeRules = []mergeRule{
	{name: "longer_description", decide: decideDescription},
	{name: "fill_cover", decide: decideCover},
	{name: "fill_subtitle", decide: decideSubtitle},
	{name: "fill_release_date", decide: decideReleaseDate},
	{name: "union_authors", decide: decideAuthors},
	{name: "union_genres", decide: decideGenres},
	{name: "link_requested_key", decide: decideAlternateKey},
	{name: "link_source_key", decide: decideSourceKey},
}

// MergeResult describes what a merge changed.
type MergeResult struct {
	Updates []Update
}

// Updated reports whether any field changed.
func (m MergeResult) Updated() bool { return len(m.Updates) > 0 }

// TouchOnly reports whether only the timestamp needs persisting.
func (m MergeResult) TouchOnly() bool { return len(m.Updates) == 0 }

// Fields lists the changed fields in rule order.
func (m MergeResult) Fields() []string {
	fields := make([]string, 0, len(m.Updates))
	for _, u := range m.Updates {
		fields = append(fields, string(u.Field()))
	}
	return fields
}

// Plan evaluates every rule against existing without modifying it.
func Plan(existing *Record, incoming Partial, requestedKey string) []Update {
	var updates []Update
	for _, rule := range mergeRules {
		if u := rule.decide(existing, incoming, requestedKey); u != nil {
			updates = append(updates, u)
		}
	}
	return updates
}

// Merge applies the planned updates to existing in place.
func Merge(existing *Record, incoming Partial, requestedKey string) MergeResult {
	updates := Plan(existing, incoming, requestedKey)
	for _, u := range updates {
		u.apply(existing)
	}
	return MergeResult{Updates: updates}
}

func decideDescription(existing *Record, incoming Partial, _ string) Update {
	if incoming.Description == "" {
		return nil
	}
	if utf8.RuneCountInString(incoming.Description) <= utf8.RuneCountInString(existing.Description) {
		return nil
	}
	return SetDescription{Value: incoming.Description}
}

func decideCover(existing *Record, incoming Partial, _ string) Update {
	if existing.Cover != nil && existing.Cover.ImageURL != "" {
		return nil
	}
	if incoming.Cover == nil || incoming.Cover.ImageURL == "" {
		return nil
	}
	return SetCover{Cover: *incoming.Cover}
}

func decideSubtitle(existing *Record, incoming Partial, _ string) Update {
	if existing.Subtitle != "" || incoming.Subtitle == "" {
		return nil
	}
	return SetSubtitle{Value: incoming.Subtitle}
}

func decideReleaseDate(existing *Record, incoming Partial, _ string) Update {
	if existing.ReleaseDate != "" || incoming.ReleaseDate == "" {
		return nil
	}
	return SetReleaseDate{Value: incoming.ReleaseDate}
}

func decideAuthors(existing *Record, incoming Partial, _ string) Update {
	names := cleanNames(incoming.Authors)
	if len(names) == 0 {
		return nil
	}

	known := cleanNames(existing.Authors)
	if len(known) == 0 {
		return AddAuthors{Names: names, ReplaceUnknown: true}
	}

	var added []string
	for _, n := range names {
		if authorsOverlap(known, []string{n}) || authorsOverlap(added, []string{n}) {
			continue
		}
		added = append(added, n)
	}
	if len(added) == 0 {
		return nil
	}
	return AddAuthors{Names: added, ReplaceUnknown: len(known) != len(existing.Authors)}
}

func decideGenres(existing *Record, incoming Partial, _ string) Update {
	have := make(map[string]bool, len(existing.Genres))
	for _, g := range existing.Genres {
		have[cases.Fold().String(strings.TrimSpace(g))] = true
	}

	var added []string
	for _, g := range cleanGenres(incoming.Genres) {
		key := cases.Fold().String(g)
		if have[key] {
			continue
		}
		have[key] = true
		added = append(added, g)
	}
	if len(added) == 0 {
		return nil
	}
	return AddGenres{Names: added}
}

func decideAlternateKey(existing *Record, _ Partial, requestedKey string) Update {
	if requestedKey == "" || existing.HasKey(requestedKey) {
		return nil
	}
	return AddAlternateKey{Key: requestedKey}
}

// decideSourceKey links the key the source actually served, which differs
// from the requested one after a redirect.
func decideSourceKey(existing *Record, incoming Partial, requestedKey string) Update {
	key := incoming.PrimaryKey
	if key == "" || key == requestedKey || existing.HasKey(key) {
		return nil
	}
	return AddAlternateKey{Key: key}
}
