// Package store persists canonical records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lepinkainen/recto/internal/catalog"
	recerrors "github.com/lepinkainen/recto/internal/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const recordColumns = `records.id, records.primary_key, records.title, records.subtitle,
	records.authors, records.genres, records.description, records.release_date,
	records.cover_url, records.cover_id, records.supplementary_id,
	records.rating_average, records.rating_count, records.updated_at,
	records.created_at, records.version`

// SQLiteStore implements catalog.Store on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	now    func() time.Time
}

var _ catalog.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore instance
func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{
		dbPath: dbPath,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Connect opens the database and applies the schema.
func (s *SQLiteStore) Connect() error {
	db, err := sql.Open("sqlite", dsn(s.dbPath))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if isMemory(s.dbPath) {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return errors.Join(fmt.Errorf("failed to connect to database: %w", err), closeErr)
	}

	for _, schema := range AllSchemas {
		if _, err := db.Exec(schema); err != nil {
			closeErr := db.Close()
			return errors.Join(fmt.Errorf("failed to create table: %w", err), closeErr)
		}
	}

	s.db = db
	slog.Debug("Record store ready", "path", s.dbPath)
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// FindByKey returns the record owning key as primary key or alias.
func (s *SQLiteStore) FindByKey(ctx context.Context, key string) (*catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryOne(ctx, s.db,
		`SELECT `+recordColumns+` FROM records
		 JOIN record_keys ON record_keys.record_id = records.id
		 WHERE record_keys.key = ?`, key)
}

// FindByID returns the record with the given id, or nil when it is gone.
func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (*catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryOne(ctx, s.db, `SELECT `+recordColumns+` FROM records WHERE records.id = ?`, id)
}

// FindByTitle returns records whose title matches case-insensitively.
func (s *SQLiteStore) FindByTitle(ctx context.Context, title string) ([]*catalog.Record, error) {
	folded := catalog.FoldTitle(title)
	if folded == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMany(ctx, s.db,
		`SELECT `+recordColumns+` FROM records WHERE records.title_folded = ? ORDER BY records.id`, folded)
}

// ListByAuthors returns up to limit records with an author whose normalized
// name contains, or is contained in, one of the given names.
func (s *SQLiteStore) ListByAuthors(ctx context.Context, authors []string, limit int) ([]*catalog.Record, error) {
	names := normalizedAuthors(authors)
	if len(names) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = catalog.DefaultMatchPolicy().CandidateLimit
	}

	conds := make([]string, 0, len(names))
	args := make([]any, 0, len(names)*2+1)
	for _, n := range names {
		conds = append(conds, `((' ' || name_normalized || ' ') LIKE ('% ' || ? || ' %')
			OR (' ' || ? || ' ') LIKE ('% ' || name_normalized || ' %'))`)
		args = append(args, n, n)
	}
	args = append(args, limit)

	query := `SELECT ` + recordColumns + ` FROM records
		WHERE records.id IN (
			SELECT DISTINCT record_id FROM record_authors WHERE ` + strings.Join(conds, " OR ") + `
		)
		ORDER BY records.modified_at DESC, records.id DESC
		LIMIT ?`

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMany(ctx, s.db, query, args...)
}

// Insert persists a new record and sets its ID and Version.
func (s *SQLiteStore) Insert(ctx context.Context, rec *catalog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Quality.UpdatedAt.IsZero() {
		rec.Quality.UpdatedAt = now
	}

	authors, genres, err := encodeLists(rec)
	if err != nil {
		return err
	}
	coverURL, coverID := coverColumns(rec)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after commit is a no-op error
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO records (
			primary_key, title, title_folded, subtitle, authors, genres, description,
			release_date, cover_url, cover_id, supplementary_id, rating_average,
			rating_count, updated_at, created_at, modified_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		rec.PrimaryKey, rec.Title, catalog.FoldTitle(rec.Title), rec.Subtitle, authors, genres,
		rec.Description, rec.ReleaseDate, coverURL, coverID, rec.SupplementaryID,
		rec.Quality.RatingAverage, rec.Quality.RatingCount,
		rec.Quality.UpdatedAt.UnixNano(), rec.CreatedAt.UnixNano(), now.UnixNano())
	if err != nil {
		return writeError(err, rec.PrimaryKey, "primary key already stored", "insert record")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read record id: %w", err)
	}

	if err := linkKeys(ctx, tx, id, recordKeys(rec), now); err != nil {
		return err
	}
	if err := replaceAuthors(ctx, tx, id, rec.Authors); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	rec.ID = id
	rec.Version = 1
	return nil
}

// Save writes all mutable fields when rec.Version matches the stored row.
// UpdatedAt never moves backwards and a stored supplementary id is never
// cleared.
func (s *SQLiteStore) Save(ctx context.Context, rec *catalog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	authors, genres, err := encodeLists(rec)
	if err != nil {
		return err
	}
	coverURL, coverID := coverColumns(rec)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE records SET
			title = ?, title_folded = ?, subtitle = ?, authors = ?, genres = ?,
			description = ?, release_date = ?, cover_url = ?, cover_id = ?,
			supplementary_id = CASE WHEN supplementary_id = '' THEN ? ELSE supplementary_id END,
			rating_average = ?, rating_count = ?,
			updated_at = MAX(updated_at, ?), modified_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		rec.Title, catalog.FoldTitle(rec.Title), rec.Subtitle, authors, genres,
		rec.Description, rec.ReleaseDate, coverURL, coverID, rec.SupplementaryID,
		rec.Quality.RatingAverage, rec.Quality.RatingCount,
		rec.Quality.UpdatedAt.UnixNano(), now.UnixNano(), rec.ID, rec.Version)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var version int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM records WHERE id = ?`, rec.ID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return recerrors.NewNotFoundError(rec.PrimaryKey)
		}
		if err != nil {
			return fmt.Errorf("failed to read record version: %w", err)
		}
		return recerrors.NewConflictError(rec.PrimaryKey, fmt.Sprintf("version %d is stale, stored version is %d", rec.Version, version))
	}

	linked, err := linkedKeys(ctx, tx, rec.ID)
	if err != nil {
		return err
	}
	var missing []string
	for _, k := range recordKeys(rec) {
		if !slices.Contains(linked, k) {
			missing = append(missing, k)
		}
	}
	if err := linkKeys(ctx, tx, rec.ID, missing, now); err != nil {
		return err
	}
	if err := replaceAuthors(ctx, tx, rec.ID, rec.Authors); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	rec.Version++
	return nil
}

// Touch advances the confirmation timestamp without touching content.
func (s *SQLiteStore) Touch(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET updated_at = MAX(updated_at, ?) WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to touch record: %w", err)
	}
	return nil
}

// SetSupplementaryIDIfUnset writes value only while the field is empty.
// A successful write bumps the version so concurrent full saves re-read.
func (s *SQLiteStore) SetSupplementaryIDIfUnset(ctx context.Context, id int64, value string, at time.Time) (bool, error) {
	if value == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET supplementary_id = ?, modified_at = ?, version = version + 1
		WHERE id = ? AND supplementary_id = ''`, value, at.UnixNano(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set supplementary id: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *SQLiteStore) queryOne(ctx context.Context, q querier, query string, args ...any) (*catalog.Record, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	if err := loadAlternateKeys(ctx, q, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) queryMany(ctx context.Context, q querier, query string, args ...any) ([]*catalog.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	var out []*catalog.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	_ = rows.Close()

	for _, rec := range out {
		if err := loadAlternateKeys(ctx, q, rec); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanRecord(row rowScanner) (*catalog.Record, error) {
	var (
		rec                  catalog.Record
		authors, genres      string
		coverURL             string
		coverID              int
		updatedAt, createdAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.PrimaryKey, &rec.Title, &rec.Subtitle,
		&authors, &genres, &rec.Description, &rec.ReleaseDate,
		&coverURL, &coverID, &rec.SupplementaryID,
		&rec.Quality.RatingAverage, &rec.Quality.RatingCount, &updatedAt,
		&createdAt, &rec.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(authors), &rec.Authors); err != nil {
		return nil, fmt.Errorf("failed to decode authors of %s: %w", rec.PrimaryKey, err)
	}
	if err := json.Unmarshal([]byte(genres), &rec.Genres); err != nil {
		return nil, fmt.Errorf("failed to decode genres of %s: %w", rec.PrimaryKey, err)
	}
	if rec.Genres == nil {
		rec.Genres = []string{}
	}
	if coverURL != "" {
		rec.Cover = &catalog.CoverRef{ImageURL: coverURL, SourceCoverID: coverID}
	}
	rec.Quality.UpdatedAt = time.Unix(0, updatedAt).UTC()
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.AlternateKeys = []string{}
	return &rec, nil
}

func loadAlternateKeys(ctx context.Context, q querier, rec *catalog.Record) error {
	rows, err := q.QueryContext(ctx,
		`SELECT key FROM record_keys WHERE record_id = ? AND key != ? ORDER BY linked_at, rowid`,
		rec.ID, rec.PrimaryKey)
	if err != nil {
		return fmt.Errorf("failed to query record keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("failed to scan record key: %w", err)
		}
		rec.AlternateKeys = append(rec.AlternateKeys, key)
	}
	return rows.Err()
}

func linkedKeys(ctx context.Context, q querier, id int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key FROM record_keys WHERE record_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query record keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan record key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func linkKeys(ctx context.Context, q querier, id int64, keys []string, at time.Time) error {
	for _, key := range keys {
		_, err := q.ExecContext(ctx,
			`INSERT INTO record_keys (key, record_id, linked_at) VALUES (?, ?, ?)`, key, id, at.UnixNano())
		if err != nil {
			return writeError(err, key, "key linked to another record", "link key")
		}
	}
	return nil
}

func replaceAuthors(ctx context.Context, q querier, id int64, authors []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM record_authors WHERE record_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear authors: %w", err)
	}
	for _, name := range normalizedAuthors(authors) {
		_, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO record_authors (record_id, name_normalized) VALUES (?, ?)`, id, name)
		if err != nil {
			return fmt.Errorf("failed to index author: %w", err)
		}
	}
	return nil
}

// recordKeys lists the primary key followed by the aliases, deduplicated.
func recordKeys(rec *catalog.Record) []string {
	keys := []string{rec.PrimaryKey}
	for _, k := range rec.AlternateKeys {
		if k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func normalizedAuthors(authors []string) []string {
	unknown := catalog.NormalizeName(catalog.UnknownAuthor)
	var out []string
	for _, a := range authors {
		n := catalog.NormalizeName(a)
		if n == "" || n == unknown || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func encodeLists(rec *catalog.Record) (string, string, error) {
	authors := rec.Authors
	if authors == nil {
		authors = []string{}
	}
	genres := rec.Genres
	if genres == nil {
		genres = []string{}
	}
	a, err := json.Marshal(authors)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode authors: %w", err)
	}
	g, err := json.Marshal(genres)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode genres: %w", err)
	}
	return string(a), string(g), nil
}

func coverColumns(rec *catalog.Record) (string, int) {
	if rec.Cover == nil {
		return "", 0
	}
	return rec.Cover.ImageURL, rec.Cover.SourceCoverID
}

// writeError turns unique-constraint failures into ConflictErrors.
func writeError(err error, key, reason, op string) error {
	if isUniqueViolation(err) {
		return recerrors.NewConflictError(key, reason)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
