package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/fusionsync/internal/domain"
)

// timeValue converts a time to RFC 3339 TEXT. The zero time is stored as
// NULL so "not given" survives a round trip.
func timeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses TEXT written by timeValue.
func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s.String, err)
	}
	return t, nil
}

// idValue converts an optional foreign key to a bind argument.
func idValue(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	id := n.Int64
	return &id
}

// conflictErr maps SQLite unique and primary key violations to
// domain.ErrConflict. Other errors are returned unchanged.
func conflictErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}
	return err
}

// notFoundErr maps sql.ErrNoRows to domain.ErrNotFound.
func notFoundErr(kind string, key any, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", kind, key, domain.ErrNotFound)
	}
	return fmt.Errorf("read %s %v: %w", kind, key, err)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
