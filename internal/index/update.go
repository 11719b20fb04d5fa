package index

import (
	"fmt"
	"log"

	"github.com/dustin/go-humanize"

	"github.com/tilboerner/cherrymusic-rewrite/internal/mpath"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store/storeerr"
	"github.com/tilboerner/cherrymusic-rewrite/internal/walker"
)

// defaultBatchSize matches the original's implicit SQLite autocommit
// batching and the teacher's own ingestSQLiteStreaming default.
const defaultBatchSize = 10000

// UpdateOptions configures a single indexing pass. Root is required;
// everything else has a sensible default (a nil FS means OSFileSystem).
type UpdateOptions struct {
	Root          string
	FS            walker.FS
	MaxDepth      int
	BatchSize     int             // defaults to defaultBatchSize when <= 0
	Isolation     store.Isolation // zero value (store.Default) falls back to store.Immediate
	BusyTimeoutMs int             // forwarded to Database.Session unchanged; 0 sets no busy_timeout pragma
	Cache         *ResultCache    // invalidated after every batch commit, if set
}

// Update walks Root and inserts every accepted entry into paths, relying
// on the AFTER INSERT trigger installed by Bootstrap to maintain
// ancestors as each row lands. Update requires paths to start empty:
// running it against a store that already holds rows fails with an
// Integrity error before anything is inserted, by design — incremental
// rescans are out of scope (see DESIGN.md's Open Questions).
func Update(db *store.Database, opts UpdateOptions) error {
	if opts.FS == nil {
		opts.FS = walker.OSFileSystem{}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	hiddenFilter := walker.Filter(walker.HiddenFilter)
	symlinkFilter, err := walker.NewSymlinkCycleFilter(opts.FS, opts.Root)
	if err != nil {
		return fmt.Errorf("index: update: resolve root: %w", err)
	}

	scanner := &walker.Scanner{
		FS:       opts.FS,
		MaxDepth: opts.MaxDepth,
		Filters:  []walker.Filter{hiddenFilter, symlinkFilter.Accept},
	}

	isolation := opts.Isolation
	if isolation == store.Default {
		isolation = store.Immediate
	}

	sess, err := db.Session(isolation, opts.BusyTimeoutMs)
	if err != nil {
		return fmt.Errorf("index: update: open session: %w", err)
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Begin(); err != nil {
		return fmt.Errorf("index: update: begin: %w", err)
	}

	// A second pass cannot rely on the (name, parent_id) unique index to
	// fail: root entries have a NULL parent_id, which never conflicts, and
	// every nested entry then gets a fresh parent id. Check up front.
	existing, err := sess.Query(`SELECT 1 FROM paths LIMIT 1`)
	if err != nil {
		return fmt.Errorf("index: update: check for existing rows: %w", err)
	}
	nonEmpty := existing.Next()
	_ = existing.Close()
	if nonEmpty {
		return storeerr.New(storeerr.Integrity, "update", opts.Root, fmt.Errorf("paths table is not empty"))
	}

	ids := map[string]int64{} // full normalized path -> row id, for parent_id lookups
	insertStmt := `INSERT INTO paths (name, is_dir, depth, parent_id) VALUES (?, ?, ?, ?)`

	// The scan root itself is never stored as a paths row — only its
	// descendants are (per the data model: "root entries have parent_id
	// IS NULL and depth = 1", meaning the direct children of the scanned
	// root, not the root directory). rootDepth is captured from the first
	// entry the walk visits, which is always the root, so depth stored
	// for a descendant is its mpath.Path.Depth() (absolute POSIX depth
	// from "/") minus rootDepth: a direct child lands at depth 1.
	rootDepth := 0
	rootDepthSet := false

	count := 0
	commitIfDue := func() error {
		count++
		if count%batchSize != 0 {
			return nil
		}
		if err := sess.Commit(); err != nil {
			return err
		}
		if opts.Cache != nil {
			opts.Cache.Invalidate()
		}
		log.Printf("index: update: committed %s rows", humanize.Comma(int64(count)))
		return sess.Begin()
	}

	err = scanner.Walk(opts.Root, func(p mpath.Path) error {
		if !rootDepthSet {
			rootDepth = p.Depth()
			rootDepthSet = true
			return nil // the scan root itself is not a paths row
		}

		// A direct child of the scan root has no recorded parent id (the
		// root's own full path was never inserted), so it naturally gets
		// a NULL parent_id here — exactly the "root entries" the schema
		// expects at depth 1.
		var parentID any
		if id, ok := ids[p.Parent()]; ok {
			parentID = id
		}
		storedDepth := p.Depth() - rootDepth

		res, err := sess.Exec(insertStmt, mpath.StringToBytes(p.Name()), boolToInt(p.IsDir()), storedDepth, parentID)
		if err != nil {
			return fmt.Errorf("insert %s: %w", p.Display(), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert %s: read id: %w", p.Display(), err)
		}
		ids[p.FullPath()] = id

		return commitIfDue()
	})
	if err != nil {
		return err
	}

	if err := sess.Commit(); err != nil {
		return fmt.Errorf("index: update: final commit: %w", err)
	}
	if opts.Cache != nil {
		opts.Cache.Invalidate()
	}
	log.Printf("index: update: finished, %s rows total", humanize.Comma(int64(count)))
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
