package index_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tilboerner/cherrymusic-rewrite/internal/index"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
)

func newIndexedDB(t *testing.T) (*store.Database, string) {
	t.Helper()
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "Books"))
	mustWriteFile(t, filepath.Join(root, "Books", "lexandyacc.mobi"))
	mustWriteFile(t, filepath.Join(root, "top.txt"))

	db := store.NewDatabase(":memory:", "")
	if err := index.Bootstrap(db); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := index.Update(db, index.UpdateOptions{Root: root}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return db, root
}

func TestPathByIdViewReconstructsRootToLeaf(t *testing.T) {
	db, _ := newIndexedDB(t)

	sess, err := db.Session(store.Default, 0)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	defer sess.Close()
	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	identified, err := index.IdentifyPathView(sess, filepath.Join("Books", "lexandyacc.mobi"))
	if err != nil {
		t.Fatalf("IdentifyPathView: %v", err)
	}
	if identified == nil {
		t.Fatalf("expected a match for Books/lexandyacc.mobi")
	}
	if identified.Depth != 2 {
		t.Fatalf("expected depth 2, got %d", identified.Depth)
	}

	resolved, err := index.PathByIdView(sess, []int64{identified.ID})
	if err != nil {
		t.Fatalf("PathByIdView: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected 1 resolved row, got %d", len(resolved))
	}
	want := filepath.Join("Books", "lexandyacc.mobi")
	if string(resolved[0].Path) != want {
		t.Fatalf("path = %q, want %q", resolved[0].Path, want)
	}
	if resolved[0].IsDir {
		t.Fatalf("lexandyacc.mobi should not be a directory")
	}
}

func TestIdentifyPathViewSingleComponent(t *testing.T) {
	db, _ := newIndexedDB(t)

	sess, err := db.Session(store.Default, 0)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	defer sess.Close()
	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	identified, err := index.IdentifyPathView(sess, "top.txt")
	if err != nil {
		t.Fatalf("IdentifyPathView: %v", err)
	}
	if identified == nil {
		t.Fatalf("expected a match for top.txt")
	}
	if identified.Depth != 1 {
		t.Fatalf("expected depth 1, got %d", identified.Depth)
	}
}

func TestIdentifyPathViewNoMatchReturnsNil(t *testing.T) {
	db, _ := newIndexedDB(t)

	sess, err := db.Session(store.Default, 0)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	defer sess.Close()
	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	identified, err := index.IdentifyPathView(sess, filepath.Join("Books", "lexandyacc.mobiXDSFE"))
	if err != nil {
		t.Fatalf("IdentifyPathView: %v", err)
	}
	if identified != nil {
		t.Fatalf("expected no match for a near-miss suffix, got %+v", identified)
	}
}

func TestResolveConcurrentMatchesSingleQuery(t *testing.T) {
	db, _ := newIndexedDB(t)

	sess, err := db.Session(store.Default, 0)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	defer sess.Close()
	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	top, err := index.IdentifyPathView(sess, "top.txt")
	if err != nil {
		t.Fatalf("IdentifyPathView top.txt: %v", err)
	}
	book, err := index.IdentifyPathView(sess, filepath.Join("Books", "lexandyacc.mobi"))
	if err != nil {
		t.Fatalf("IdentifyPathView book: %v", err)
	}

	resolved, err := index.ResolveConcurrent(context.Background(), db, []int64{top.ID, book.ID}, 2)
	if err != nil {
		t.Fatalf("ResolveConcurrent: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 resolved rows, got %d", len(resolved))
	}
}

func TestResultCacheServesRepeatLookupsWithoutQuerying(t *testing.T) {
	db, _ := newIndexedDB(t)

	sess, err := db.Session(store.Default, 0)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	defer sess.Close()
	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	top, err := index.IdentifyPathView(sess, "top.txt")
	if err != nil {
		t.Fatalf("IdentifyPathView: %v", err)
	}

	cache, err := index.NewResultCache(16)
	if err != nil {
		t.Fatalf("NewResultCache: %v", err)
	}

	first, err := cache.Resolve(sess, []int64{top.ID})
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 row, got %d", len(first))
	}

	// A second Resolve must be servable from the cache alone, so it
	// should succeed even against a closed session (no fallthrough to
	// PathByIdView, which would fail once the session is gone).
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := cache.Resolve(sess, []int64{top.ID})
	if err != nil {
		t.Fatalf("second Resolve should hit the cache, not the closed session: %v", err)
	}
	if len(second) != 1 || string(second[0].Path) != "top.txt" {
		t.Fatalf("cached result mismatch: %+v", second)
	}

	cache.Invalidate()
	if _, err := cache.Resolve(sess, []int64{top.ID}); err == nil {
		t.Fatalf("expected an error once the cache is invalidated and the session is closed")
	}
}
