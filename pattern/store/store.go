// Package store provides durable, queryable persistence for
// precompiled synthesis patterns.
//
// The store is a thin layer over database/sql. It does not retry
// failed operations and it does not cache; both concerns belong to the
// callers (the pattern manager serializes access and keeps the
// lookaside cache).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spaco-sound/spaco/pattern"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// Store persists Pattern records in the precompiled_patterns table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// New wraps an existing database handle. The caller keeps ownership of
// the handle; Close on the store is a no-op for it.
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, logger: logger}
}

// Open connects to the database named by url and returns a store that
// owns the connection. SQLite paths and postgres:// URLs are supported.
func Open(url string, logger *zap.Logger) (*Store, error) {
	dialect := DialectForURL(url)
	db, err := sql.Open(dialect.DriverName(), url)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s database: %v", pattern.ErrStorage, dialect, err)
	}
	if dialect == SQLite {
		// SQLite serializes writers; a single connection avoids
		// SQLITE_BUSY under concurrent access through the pool.
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect, logger), nil
}

// DB exposes the underlying handle, mainly for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the precompiled_patterns schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	ts := s.dialect.timestampType()
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS precompiled_patterns (
				id %s,
				name             TEXT NOT NULL,
				pattern_type     TEXT NOT NULL,
				pattern_id       TEXT UNIQUE NOT NULL,
				source_code      TEXT NOT NULL,
				compiled_code    TEXT NOT NULL,
				metadata         TEXT,
				compilation_time REAL,
				rating           REAL,
				created_at       %s NOT NULL,
				last_used_at     %s,
				UNIQUE(name, pattern_type)
			)`, s.primaryKeyType(), ts, ts),
		`CREATE INDEX IF NOT EXISTS idx_pattern_type ON precompiled_patterns(pattern_type)`,
		`CREATE INDEX IF NOT EXISTS idx_pattern_name ON precompiled_patterns(name)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init schema: %v", pattern.ErrStorage, err)
		}
	}

	s.logger.Debug("pattern schema initialized", zap.String("dialect", s.dialect.String()))
	return nil
}

func (s *Store) primaryKeyType() string {
	if s.dialect == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// patternColumns is the column list every row read uses, in scan order.
const patternColumns = `pattern_id, name, pattern_type, source_code, compiled_code,
	metadata, compilation_time, rating, created_at, last_used_at`

// Upsert inserts p or, when a record with the same (name, pattern_type)
// exists, replaces its content while preserving the existing pattern_id,
// created_at, and rating. The effective pattern_id is returned and p is
// updated in place with the stored row's pattern_id, created_at, and
// rating, so the caller holds the durable record, not its input.
// Supplying a pattern_id already owned by a different key fails with
// ErrDuplicateIdentifier.
func (s *Store) Upsert(ctx context.Context, p *pattern.Pattern) (string, error) {
	now := time.Now().UTC()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := s.dialect.Rebind(`
		INSERT INTO precompiled_patterns
			(name, pattern_type, pattern_id, source_code, compiled_code,
			 metadata, compilation_time, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, pattern_type) DO UPDATE SET
			source_code      = excluded.source_code,
			compiled_code    = excluded.compiled_code,
			metadata         = excluded.metadata,
			compilation_time = excluded.compilation_time,
			last_used_at     = excluded.last_used_at`)

	_, err := s.db.ExecContext(ctx, query,
		p.Name, p.Type, p.ID, p.SourceCode, p.CompiledCode,
		p.Metadata, nullFloat(p.CompilationTime), createdAt, now,
	)
	if err != nil {
		converted := pattern.ConvertDBError(err)
		if pattern.IsUniqueViolation(converted) {
			// The (name, pattern_type) conflict is resolved by the
			// upsert, so the only unique constraint left to trip is
			// pattern_id.
			return "", fmt.Errorf("%w: pattern_id %q", pattern.ErrDuplicateIdentifier, p.ID)
		}
		return "", fmt.Errorf("%w: upsert %s: %v", pattern.ErrStorage, p.Key(), err)
	}

	// The conflict path keeps the original pattern_id, created_at, and
	// rating; read back the effective row so callers see what is stored.
	var (
		id       string
		storedAt time.Time
		rating   sql.NullFloat64
	)
	row := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT pattern_id, created_at, rating FROM precompiled_patterns WHERE name = ? AND pattern_type = ?`),
		p.Name, p.Type,
	)
	if err := row.Scan(&id, &storedAt, &rating); err != nil {
		return "", fmt.Errorf("%w: read back pattern %s: %v", pattern.ErrStorage, p.Key(), err)
	}

	p.ID = id
	p.CreatedAt = storedAt
	p.Rating = nil
	if rating.Valid {
		r := rating.Float64
		p.Rating = &r
	}
	return id, nil
}

// GetByKey returns the pattern for (name, patternType), or nil when no
// such record exists. Absence is not an error.
func (s *Store) GetByKey(ctx context.Context, name, patternType string) (*pattern.Pattern, error) {
	query := s.dialect.Rebind(`
		SELECT ` + patternColumns + `
		FROM precompiled_patterns
		WHERE name = ? AND pattern_type = ?`)

	row := s.db.QueryRowContext(ctx, query, name, patternType)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", pattern.ErrStorage, patternType, name, err)
	}
	return p, nil
}

// GetBatchByType returns up to limit patterns of patternType ordered by
// last_used_at descending with never-used rows last. A single query
// serves the whole batch.
func (s *Store) GetBatchByType(ctx context.Context, patternType string, limit int) ([]*pattern.Pattern, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := s.dialect.Rebind(`
		SELECT ` + patternColumns + `
		FROM precompiled_patterns
		WHERE pattern_type = ?
		` + s.dialect.orderByLastUsedDesc() + `
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, patternType, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: batch get type %q: %v", pattern.ErrStorage, patternType, err)
	}
	defer rows.Close()

	var patterns []*pattern.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan pattern row: %v", pattern.ErrStorage, err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate pattern rows: %v", pattern.ErrStorage, err)
	}
	return patterns, nil
}

// TouchLastUsedBatch refreshes last_used_at for all ids in one
// round-trip. Unknown ids are ignored.
func (s *Store) TouchLastUsedBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := s.dialect.Rebind(
		`UPDATE precompiled_patterns SET last_used_at = ? WHERE pattern_id IN (` + placeholders + `)`)

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: touch %d patterns: %v", pattern.ErrStorage, len(ids), err)
	}
	return nil
}

// UpdateRating sets the quality rating for a pattern. Ratings are
// store-only; cached compiled content is unaffected.
func (s *Store) UpdateRating(ctx context.Context, patternID string, rating float64) error {
	query := s.dialect.Rebind(`UPDATE precompiled_patterns SET rating = ? WHERE pattern_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, rating, patternID); err != nil {
		return fmt.Errorf("%w: rate pattern %s: %v", pattern.ErrStorage, patternID, err)
	}
	return nil
}

// Delete removes the pattern with patternID and reports the number of
// rows removed. Deleting an absent pattern is a zero-row no-op.
func (s *Store) Delete(ctx context.Context, patternID string) (int64, error) {
	query := s.dialect.Rebind(`DELETE FROM precompiled_patterns WHERE pattern_id = ?`)
	result, err := s.db.ExecContext(ctx, query, patternID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete pattern %s: %v", pattern.ErrStorage, patternID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete pattern %s: %v", pattern.ErrStorage, patternID, err)
	}
	return rows, nil
}

// PruneUnused deletes patterns whose last use is older than olderThan,
// including patterns that were never used. Returns the number of rows
// removed.
func (s *Store) PruneUnused(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := s.dialect.Rebind(
		`DELETE FROM precompiled_patterns WHERE last_used_at < ? OR last_used_at IS NULL`)

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune unused patterns: %v", pattern.ErrStorage, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune unused patterns: %v", pattern.ErrStorage, err)
	}
	if rows > 0 {
		s.logger.Info("pruned unused patterns", zap.Int64("count", rows))
	}
	return rows, nil
}

// Count returns the total number of stored patterns.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM precompiled_patterns`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count patterns: %v", pattern.ErrStorage, err)
	}
	return n, nil
}

// CountByType returns the number of stored patterns per pattern type.
func (s *Store) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_type, COUNT(*) FROM precompiled_patterns GROUP BY pattern_type`)
	if err != nil {
		return nil, fmt.Errorf("%w: count patterns by type: %v", pattern.ErrStorage, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("%w: scan type count: %v", pattern.ErrStorage, err)
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate type counts: %v", pattern.ErrStorage, err)
	}
	return counts, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanPattern.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPattern(row scanner) (*pattern.Pattern, error) {
	var (
		p               pattern.Pattern
		compilationTime sql.NullFloat64
		rating          sql.NullFloat64
		lastUsedAt      sql.NullTime
	)

	err := row.Scan(
		&p.ID, &p.Name, &p.Type, &p.SourceCode, &p.CompiledCode,
		&p.Metadata, &compilationTime, &rating, &p.CreatedAt, &lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	if compilationTime.Valid {
		p.CompilationTime = compilationTime.Float64
	}
	if rating.Valid {
		r := rating.Float64
		p.Rating = &r
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		p.LastUsedAt = &t
	}
	return &p, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}
