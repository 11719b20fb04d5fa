package index

import (
	"context"
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tilboerner/cherrymusic-rewrite/internal/mpath"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
)

// ResolvedPath is one row of PathByIdView's result: an entry id, its
// full path reconstructed root-to-leaf, and whether it is a directory.
type ResolvedPath struct {
	ID    int64
	Path  []byte
	IsDir bool
}

// PathByIdView reconstructs the full path of every id in ids, in the
// order spec.md describes: the covering index on
// ancestors(child_id, reldepth, ancestor_id) is scanned in ascending
// reldepth per child, so BYTE_PATH concatenates root-first, and the
// bare is_dir column resolves to the last row scanned per group — the
// entry's own row at reldepth = 0 — by the same scan order.
func PathByIdView(sess *store.Session, ids []int64) ([]ResolvedPath, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT ancestors.child_id, BYTE_PATH(paths.name), paths.is_dir
		FROM   paths
		JOIN   ancestors ON paths.id = ancestors.ancestor_id
		WHERE  ancestors.child_id IN (%s)
		GROUP  BY ancestors.child_id
		ORDER  BY ancestors.child_id, ancestors.reldepth
	`, strings.Join(placeholders, ", "))

	rows, err := sess.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: PathByIdView: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ResolvedPath
	for rows.Next() {
		var r ResolvedPath
		var isDir int
		if err := rows.Scan(&r.ID, &r.Path, &isDir); err != nil {
			return nil, fmt.Errorf("index: PathByIdView: scan: %w", err)
		}
		r.IsDir = isDir != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: PathByIdView: %w", err)
	}
	return out, nil
}

// ResolveConcurrent shards ids across concurrency goroutines, each
// opening its own DEFAULT-isolation session against db (sessions are
// goroutine-affine, so a shared *Session cannot cross goroutines), and
// merges the per-shard results. This is additive sugar over
// PathByIdView's single-query form, not a change to its semantics —
// every shard still resolves via the same view.
func ResolveConcurrent(ctx context.Context, db *store.Database, ids []int64, concurrency int) ([]ResolvedPath, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(ids) {
		concurrency = len(ids)
	}

	shards := make([][]int64, concurrency)
	for i, id := range ids {
		shards[i%concurrency] = append(shards[i%concurrency], id)
	}

	results := make([][]ResolvedPath, concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		i, shard := i, shard
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sess, err := db.Session(store.Default, 0)
			if err != nil {
				return fmt.Errorf("index: ResolveConcurrent: open session: %w", err)
			}
			defer func() { _ = sess.Close() }()
			if err := sess.Begin(); err != nil {
				return fmt.Errorf("index: ResolveConcurrent: begin: %w", err)
			}

			resolved, err := PathByIdView(sess, shard)
			if err != nil {
				return err
			}
			results[i] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []ResolvedPath
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

// IdentifiedPath is one result row of IdentifyPathView.
type IdentifiedPath struct {
	ID    int64
	Path  []byte
	IsDir bool
	Depth int
}

// IdentifyPathView resolves a relative path string such as
// "Books/lexandyacc.mobi" to at most one paths row, per spec.md §4.F:
// split into components, encode each with the OS filesystem encoding
// (surrogate-escape fallback via mpath), then either a direct
// (name, depth) lookup for a single component or a recursive CTE
// walking parent_id down from the root for more than one.
func IdentifyPathView(sess *store.Session, relpath string) (*IdentifiedPath, error) {
	components := splitRelPath(relpath)
	if len(components) == 0 {
		return nil, nil
	}

	var rows interface {
		Next() bool
		Scan(...any) error
		Err() error
		Close() error
	}

	if len(components) == 1 {
		r, err := sess.Query(
			`SELECT id, is_dir, depth FROM paths WHERE name = ? AND depth = 1 AND parent_id IS NULL`,
			mpath.StringToBytes(components[0]),
		)
		if err != nil {
			return nil, fmt.Errorf("index: IdentifyPathView: %w", err)
		}
		rows = r
	} else {
		query, args := identifyCTE(components)
		r, err := sess.Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("index: IdentifyPathView: %w", err)
		}
		rows = r
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var result IdentifiedPath
	var isDir int
	if err := rows.Scan(&result.ID, &isDir, &result.Depth); err != nil {
		return nil, fmt.Errorf("index: IdentifyPathView: scan: %w", err)
	}
	result.IsDir = isDir != 0
	result.Path = mpath.StringToBytes(relpath)
	return &result, rows.Err()
}

// splitRelPath replaces the platform's alternate separator (if any)
// with the primary separator, then splits into non-empty components.
func splitRelPath(relpath string) []string {
	normalized := relpath
	if os.PathSeparator != '/' {
		normalized = strings.ReplaceAll(normalized, "/", string(os.PathSeparator))
	}
	var out []string
	for _, c := range strings.Split(normalized, string(os.PathSeparator)) {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// identifyCTE builds the recursive-descent query for N > 1 components:
// seed on (components[0], depth=1, no parent), then at each step join
// paths to the previous step's row on parent_id, restricted to
// (components[i], depth=i+1). The final SELECT keeps only rows whose
// walk reached depth = N, i.e. every component matched in order.
func identifyCTE(components []string) (string, []any) {
	n := len(components)
	var b strings.Builder
	args := make([]any, 0, n)

	b.WriteString(`WITH RECURSIVE walk(id, is_dir, depth) AS (
		SELECT id, is_dir, depth FROM paths WHERE name = ? AND depth = 1 AND parent_id IS NULL
		UNION ALL
		SELECT p.id, p.is_dir, p.depth
		FROM paths AS p
		JOIN walk AS w ON p.parent_id = w.id
		WHERE `)
	args = append(args, mpath.StringToBytes(components[0]))

	// The UNION ALL branch restricts p to (components[i], depth=i+1) for
	// i in 1..N-1; gating each disjunct on w.depth = i means only the
	// branch matching the previous step's depth can fire, so one
	// recursive term handles every remaining level without ambiguity.
	b.WriteString("(")
	for i := 1; i < n; i++ {
		if i > 1 {
			b.WriteString(" OR ")
		}
		b.WriteString("(w.depth = ? AND p.name = ? AND p.depth = ?)")
		args = append(args, i, mpath.StringToBytes(components[i]), i+1)
	}
	b.WriteString(")\n\t)\n\tSELECT id, is_dir, depth FROM walk WHERE depth = ?")
	args = append(args, n)

	return b.String(), args
}

// ResultCache is a bounded, id-keyed read cache in front of
// PathByIdView: a pure latency optimization, never a source of truth.
// A miss always falls through to the SQL view; Invalidate clears the
// whole cache, meant to be called after every Update batch commit.
type ResultCache struct {
	cache *lru.Cache[int64, ResolvedPath]
}

// NewResultCache builds a cache holding at most size resolved paths.
func NewResultCache(size int) (*ResultCache, error) {
	c, err := lru.New[int64, ResolvedPath](size)
	if err != nil {
		return nil, fmt.Errorf("index: NewResultCache: %w", err)
	}
	return &ResultCache{cache: c}, nil
}

// Resolve returns the cached paths for the ids it has, querying sess
// via PathByIdView for the remainder and caching what comes back.
func (c *ResultCache) Resolve(sess *store.Session, ids []int64) ([]ResolvedPath, error) {
	var out []ResolvedPath
	var missing []int64
	for _, id := range ids {
		if r, ok := c.cache.Get(id); ok {
			out = append(out, r)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	resolved, err := PathByIdView(sess, missing)
	if err != nil {
		return nil, err
	}
	for _, r := range resolved {
		c.cache.Add(r.ID, r)
		out = append(out, r)
	}
	return out, nil
}

// Invalidate discards every cached entry.
func (c *ResultCache) Invalidate() {
	c.cache.Purge()
}
