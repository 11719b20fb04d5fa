package store

import (
	"fmt"
	"strings"

	"github.com/tilboerner/cherrymusic-rewrite/internal/store/storeerr"
)

// classifySQLiteError maps a modernc.org/sqlite driver error to a tagged
// storeerr.Error. modernc's error messages carry the same SQLite-standard
// wording libsqlite3 itself produces (see sqlite.org/rescode.html), so
// matching on that wording is stable across the handful of conditions the
// store needs to distinguish, without depending on the driver's internal
// error type.
func classifySQLiteError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "database is locked", "SQLITE_BUSY"):
		return storeerr.New(storeerr.Busy, op, "", err)
	case containsAny(msg, "UNIQUE constraint failed", "FOREIGN KEY constraint failed", "CHECK constraint failed", "NOT NULL constraint failed"):
		return storeerr.New(storeerr.Integrity, op, "", err)
	case containsAny(msg, "database disk image is malformed", "file is not a database", "SQLITE_CORRUPT", "SQLITE_NOTADB"):
		return storeerr.New(storeerr.Corruption, op, "", err)
	default:
		return fmt.Errorf("store: %s: %w", op, err)
	}
}

func containsAny(msg string, candidates ...string) bool {
	for _, c := range candidates {
		if strings.Contains(msg, c) {
			return true
		}
	}
	return false
}
