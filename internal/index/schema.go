// Package index implements the media-path index: the batch Update pass
// that populates paths/ancestors from a directory scan, and the read-side
// views (PathByIdView, IdentifyPathView) that resolve ids to paths and
// back.
package index

import (
	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store/migrate"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store/migrate/migrations"
)

// Bootstrap runs every pending migration against db, preparing it for
// Update, and registers the BYTE_PATH aggregate that PathByIdView relies
// on. Safe to call before every run: already-applied migrations are
// skipped via the `_versions` ledger, and BYTE_PATH registration is a
// sync.Once no-op after the first call in the process.
func Bootstrap(db *store.Database) error {
	if err := registerByteAggregate(); err != nil {
		return err
	}
	runner := migrate.NewRunner(db, []migrate.Migration{migrations.Initial})
	return runner.Up()
}
