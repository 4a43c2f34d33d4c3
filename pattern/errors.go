package pattern

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Common pattern error types
var (
	// ErrStorage is returned for any durable-layer I/O or query failure.
	// The store never retries internally; retry policy belongs to the caller.
	ErrStorage = errors.New("pattern storage failure")

	// ErrDuplicateIdentifier is returned when a pattern_id is already
	// owned by a different (name, pattern_type) pair.
	ErrDuplicateIdentifier = errors.New("pattern id owned by another pattern")

	// ErrUniqueViolation is returned when a unique constraint is violated.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrCompile is returned when pattern compilation fails.
	ErrCompile = errors.New("pattern compilation failed")
)

// ConvertDBError maps driver-specific errors onto the pattern error
// taxonomy. sql.ErrNoRows is intentionally not converted: "not found"
// is an absent result, not an error, and callers handle it before this.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return err
	}

	// SQLite constraint errors (mattn/go-sqlite3)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// PostgreSQL errors (pgx)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return fmt.Errorf("%w: %v", ErrStorage, err)
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsDuplicateIdentifier returns true if the error is ErrDuplicateIdentifier.
func IsDuplicateIdentifier(err error) bool {
	return errors.Is(err, ErrDuplicateIdentifier)
}

// IsStorage returns true if the error is ErrStorage.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
