package sqldb

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/petadopt/internal/apperror"
)

const pgUniqueViolation = "23505"

// conflictMessages are the client-facing messages per unique column.
var conflictMessages = map[string]string{
	"email":       "Email already registered",
	"username":    "Username already taken",
	"google_id":   "Google account already linked to another user",
	"facebook_id": "Facebook account already linked to another user",
}

// asConflict translates a unique-constraint violation into
// apperror.Conflict(column). Any other error is returned unchanged.
//
// How each driver reports the column:
//   - PostgreSQL: SQLSTATE 23505, ConstraintName "users_<column>_key"
//   - SQLite:     extended code 2067, message "UNIQUE constraint failed: users.<column>"
func asConflict(err error) error {
	column, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	msg, known := conflictMessages[column]
	if !known {
		msg = "Duplicate value"
	}
	return apperror.Conflict(column, msg)
}

func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return "", false
		}
		name := strings.TrimSuffix(strings.TrimPrefix(pgErr.ConstraintName, "users_"), "_key")
		return name, true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return "", false
		}
		return sqliteColumn(liteErr.Error()), true
	}

	return "", false
}

// sqliteColumn extracts "email" from "... UNIQUE constraint failed: users.email (2067)".
func sqliteColumn(msg string) string {
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if end := strings.IndexAny(rest, " ,)"); end >= 0 {
		rest = rest[:end]
	}
	if _, col, ok := strings.Cut(rest, "."); ok {
		return col
	}
	return rest
}
