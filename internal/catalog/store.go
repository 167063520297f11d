package catalog

import (
	"context"
	"time"
)

// Finder is the read side of the store used by the Matcher. Lookups return
// (nil, nil) or an empty slice when nothing matches.
type Finder interface {
	// FindByKey returns the record whose primary key or alias equals key.
	FindByKey(ctx context.Context, key string) (*Record, error)
	// FindByTitle returns records whose title equals title case-insensitively.
	FindByTitle(ctx context.Context, title string) ([]*Record, error)
	// ListByAuthors returns up to limit records sharing a normalized author
	// name with authors.
	ListByAuthors(ctx context.Context, authors []string, limit int) ([]*Record, error)
}

// Store is the persistence collaborator required by resolution.
type Store interface {
	Finder

	// FindByID re-reads a record by its surrogate id.
	FindByID(ctx context.Context, id int64) (*Record, error)
	// Insert persists a new record, setting its ID and Version. It returns a
	// ConflictError when the primary key or an alias is already taken.
	Insert(ctx context.Context, rec *Record) error
	// Save writes every mutable field if rec.Version still matches the
	// stored version, then bumps rec.Version. A mismatch is a ConflictError.
	Save(ctx context.Context, rec *Record) error
	// Touch advances UpdatedAt only.
	Touch(ctx context.Context, id int64, at time.Time) error
	// SetSupplementaryIDIfUnset writes value only if the field is still
	// empty, reporting whether it wrote.
	SetSupplementaryIDIfUnset(ctx context.Context, id int64, value string, at time.Time) (bool, error)
}
