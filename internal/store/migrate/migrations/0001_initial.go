// Package migrations holds the ordered, named schema migrations for the
// path index. Each file is one migration, named after its file: the
// leading digits order it, the remainder is a human comment.
package migrations

import (
	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store/migrate"
)

// statementPair is a (forward, backward) SQL statement pair, the Go
// analogue of SQL_STATEMENTS' tuple-of-tuples in the original migration.
// backward == "" means this statement has no reverse (dropping the owning
// table elsewhere tears it down implicitly, e.g. a trigger or index).
type statementPair struct {
	forward  string
	backward string
}

var initialStatements = []statementPair{
	{
		forward: `CREATE TABLE paths(
			id INTEGER PRIMARY KEY ASC AUTOINCREMENT NOT NULL UNIQUE,
			name BLOB NOT NULL,
			is_dir INTEGER NOT NULL,
			depth INTEGER NOT NULL CHECK (depth >= 0),
			parent_id INTEGER REFERENCES paths ON DELETE RESTRICT ON UPDATE CASCADE,
			UNIQUE (name, parent_id)
		)`,
		backward: `DROP TABLE IF EXISTS paths`,
	},
	{
		forward: `CREATE TABLE ancestors(
			child_id INTEGER NOT NULL REFERENCES paths ON DELETE CASCADE ON UPDATE CASCADE,
			ancestor_id INTEGER NOT NULL REFERENCES paths ON DELETE CASCADE ON UPDATE CASCADE,
			reldepth INTEGER NOT NULL CHECK (reldepth <= 0),
			UNIQUE (child_id, ancestor_id) ON CONFLICT IGNORE
		)`,
		backward: `DROP TABLE IF EXISTS ancestors`,
	},
	{
		forward: `CREATE INDEX ancestors_child_depth_ancestor
			ON ancestors(child_id, reldepth, ancestor_id)`,
	},
	{
		// Maintains the ancestors closure table on every insert into paths,
		// via a recursive CTE walking parent_id up to the root. reldepth
		// counts negative steps from the child, matching the table's CHECK.
		forward: `CREATE TRIGGER paths_after_insert_create_ancestors
			AFTER INSERT ON paths
			FOR EACH ROW
			BEGIN
				INSERT INTO ancestors(child_id, ancestor_id, reldepth)
				WITH RECURSIVE new_ancestors(child_id, parent_id, reldepth) AS (
					VALUES(NEW.id, NEW.id, 0)
					UNION ALL
					SELECT
						previous.child_id,
						current.parent_id,
						previous.reldepth - 1
					FROM
						paths AS current,
						new_ancestors AS previous
					WHERE
						current.id = previous.parent_id AND
						current.parent_id IS NOT NULL
				)
				SELECT * FROM new_ancestors;
			END`,
	},
}

type initial struct{}

// Initial is the first schema migration: the paths/ancestors tables, the
// covering index, and the ancestor-closure trigger.
var Initial migrate.Migration = initial{}

func (initial) Name() string { return "0001_initial" }

func (initial) ForwardSteps() []migrate.Step {
	steps := make([]migrate.Step, 0, len(initialStatements))
	for _, stmt := range initialStatements {
		sql := stmt.forward
		steps = append(steps, func(sess *store.Session) error {
			_, err := sess.Exec(sql)
			return err
		})
	}
	return steps
}

func (initial) BackwardSteps() []migrate.Step {
	var steps []migrate.Step
	for _, stmt := range initialStatements {
		if stmt.backward == "" {
			continue
		}
		sql := stmt.backward
		steps = append(steps, func(sess *store.Session) error {
			_, err := sess.Exec(sql)
			return err
		})
	}
	return steps
}
