// Package migrate runs ordered, named schema migrations against a store
// database, recording each applied migration in a ledger table.
package migrate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store/storeerr"
)

// Ledger row directions, matching apply_migration_to_db's literal
// 'FORWARD'/'BACKWARD' strings.
const (
	directionForward  = "FORWARD"
	directionBackward = "BACKWARD"
)

// Step is one forward or backward schema statement, run inside the
// migration's session.
type Step func(sess *store.Session) error

// Migration is one named, ordered schema change. Name is split on its
// first underscore into an ordering prefix and a human comment, mirroring
// cherrymusic.database.Migration ("0001_initial" -> "0001", "initial").
type Migration interface {
	Name() string
	ForwardSteps() []Step
	BackwardSteps() []Step
}

// Runner applies pending migrations against a store.Database, tracked in
// a `_versions` ledger table created on first use.
type Runner struct {
	DB         *store.Database
	Migrations []Migration
}

// NewRunner sorts migrations lexicographically by Name, matching
// load_migrations' directory-listing order.
func NewRunner(db *store.Database, migrations []Migration) *Runner {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	return &Runner{DB: db, Migrations: sorted}
}

// Up applies every migration not yet recorded in `_versions`, in order.
// Each migration runs in its own EXCLUSIVE, timeout=0 session: migrations
// are expected to run uncontended, and a lock held by anyone else should
// fail immediately rather than block, per spec.md §4.E.
func (r *Runner) Up() error {
	for _, m := range r.Migrations {
		applied, err := r.applied(m.Name())
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := r.apply(m, m.ForwardSteps(), false); err != nil {
			return err
		}
	}
	return nil
}

// Down reverts the single most recently applied migration, or a named one
// when name is non-empty.
func (r *Runner) Down(name string) error {
	target := name
	if target == "" {
		var err error
		target, err = r.lastApplied()
		if err != nil {
			return err
		}
		if target == "" {
			return nil
		}
	}
	for _, m := range r.Migrations {
		if m.Name() != target {
			continue
		}
		return r.apply(m, m.BackwardSteps(), true)
	}
	return storeerr.New(storeerr.MigrationFailure, "down", target, fmt.Errorf("no such migration"))
}

func (r *Runner) apply(m Migration, steps []Step, backward bool) (err error) {
	sess, err := r.DB.Session(store.Exclusive, 0)
	if err != nil {
		return storeerr.New(storeerr.MigrationFailure, "open session", m.Name(), err)
	}
	defer func() {
		if err != nil {
			_ = sess.CloseWithError(err)
			return
		}
		err = sess.Close()
	}()

	if err = sess.Begin(); err != nil {
		return storeerr.New(storeerr.MigrationFailure, "begin", m.Name(), err)
	}
	if err = r.ensureVersionsTable(sess); err != nil {
		return err
	}
	for _, step := range steps {
		if stepErr := step(sess); stepErr != nil {
			err = storeerr.New(storeerr.MigrationFailure, "run step", m.Name(), stepErr)
			return err
		}
	}
	direction := directionForward
	if backward {
		direction = directionBackward
	}
	_, comment := splitName(m.Name())
	if _, insErr := sess.Exec(
		"INSERT INTO _versions (name, comment, direction, applied_at_utc) VALUES (?, ?, ?, ?)",
		m.Name(), comment, direction, nowUTC(),
	); insErr != nil {
		err = storeerr.New(storeerr.MigrationFailure, "record version", m.Name(), insErr)
		return err
	}
	return nil
}

// ensureVersionsTable creates the append-only ledger exactly as
// apply_migration_to_db does: every Up or Down adds a row, never
// updates or deletes one, so the table carries the full forward/
// backward history of every migration, not just its current state.
func (r *Runner) ensureVersionsTable(sess *store.Session) error {
	_, err := sess.Exec(`CREATE TABLE IF NOT EXISTS _versions (name, comment, direction, applied_at_utc)`)
	if err != nil {
		return storeerr.New(storeerr.MigrationFailure, "create _versions", "", err)
	}
	return nil
}

// applied reports whether name's most recent ledger row (if any) is a
// FORWARD entry not yet followed by a BACKWARD one — i.e. whether it is
// currently applied. rowid orders rows by insertion since _versions has
// no declared primary key.
func (r *Runner) applied(name string) (bool, error) {
	sess, err := r.DB.Session(store.Default, 0)
	if err != nil {
		return false, storeerr.New(storeerr.MigrationFailure, "open session", name, err)
	}
	defer sess.Close()

	if err := sess.Begin(); err != nil {
		return false, err
	}
	if err := r.ensureVersionsTable(sess); err != nil {
		return false, err
	}
	rows, err := sess.Query(
		"SELECT direction FROM _versions WHERE name = ? ORDER BY rowid DESC LIMIT 1",
		name,
	)
	if err != nil {
		return false, storeerr.New(storeerr.MigrationFailure, "query _versions", name, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return false, nil
	}
	var direction string
	if err := rows.Scan(&direction); err != nil {
		return false, storeerr.New(storeerr.MigrationFailure, "scan _versions", name, err)
	}
	return direction == directionForward, nil
}

// lastApplied returns the name of the most recently applied migration
// that is still in its FORWARD state (its ledger row is the latest for
// that name), or "" if none is. Used by Down when no name is given.
func (r *Runner) lastApplied() (string, error) {
	sess, err := r.DB.Session(store.Default, 0)
	if err != nil {
		return "", storeerr.New(storeerr.MigrationFailure, "open session", "", err)
	}
	defer sess.Close()

	if err := sess.Begin(); err != nil {
		return "", err
	}
	if err := r.ensureVersionsTable(sess); err != nil {
		return "", err
	}
	rows, err := sess.Query(`
		SELECT name FROM _versions v1
		WHERE direction = ?
		  AND NOT EXISTS (
		    SELECT 1 FROM _versions v2
		    WHERE v2.name = v1.name AND v2.rowid > v1.rowid
		  )
		ORDER BY rowid DESC
		LIMIT 1
	`, directionForward)
	if err != nil {
		return "", storeerr.New(storeerr.MigrationFailure, "query _versions", "", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", nil
	}
	var name string
	if err := rows.Scan(&name); err != nil {
		return "", storeerr.New(storeerr.MigrationFailure, "scan _versions", "", err)
	}
	return name, nil
}

// splitName splits a migration name into its ordering prefix and human
// comment on the first underscore, matching cherrymusic.database.Migration
// ("0001_initial" -> "0001", "initial"). Used only to populate the
// ledger's comment column; Name() itself remains the identifier used
// for sorting and lookups.
func splitName(name string) (ordinal, comment string) {
	if idx := strings.IndexByte(name, '_'); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return name, ""
}

// nowUTC is a seam for the applied_at_utc timestamp, matching
// datetime.utcnow().isoformat() in the original.
var nowUTC = func() string { return time.Now().UTC().Format(time.RFC3339Nano) }
