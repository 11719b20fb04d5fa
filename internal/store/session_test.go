package store

import (
	"sync"
	"testing"
)

func newMemDB(t *testing.T) *Database {
	t.Helper()
	return NewDatabase(":memory:", "")
}

func TestSessionDefaultNeedsNoBegin(t *testing.T) {
	db := newMemDB(t)
	sess, err := db.Session(Default, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := sess.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
}

func TestSessionExecOutsideContextFails(t *testing.T) {
	db := newMemDB(t)
	sess, err := db.Session(Default, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	_, err = sess.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	if err == nil {
		t.Fatalf("expected SessionMisuse calling Exec before Begin")
	}
}

func TestSessionCannotNest(t *testing.T) {
	db := newMemDB(t)
	sess, err := db.Session(Immediate, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := sess.Begin(); err == nil {
		t.Fatalf("expected SessionMisuse on nested Begin")
	}
}

func TestSessionCrossGoroutineFails(t *testing.T) {
	db := newMemDB(t)
	sess, err := db.Session(Default, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	var wg sync.WaitGroup
	var gotErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		gotErr = sess.Begin()
	}()
	wg.Wait()

	if gotErr == nil {
		t.Fatalf("expected SessionMisuse when a different goroutine uses the session")
	}
}

func TestSessionBeginAfterCommitIsNotNesting(t *testing.T) {
	db := newMemDB(t)
	sess, err := db.Session(Immediate, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	if err := sess.Begin(); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if _, err := sess.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("Exec create: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Starting the next batch on the same session must not be rejected as
	// nesting: the prior transaction already closed out with Commit.
	if err := sess.Begin(); err != nil {
		t.Fatalf("second Begin after commit: %v", err)
	}
	if _, err := sess.Exec("INSERT INTO t (val) VALUES (?)", "batch two"); err != nil {
		t.Fatalf("Exec insert: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
}

func TestSessionUsableMethodsFailAfterClose(t *testing.T) {
	db := newMemDB(t)
	sess, err := db.Session(Default, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// :memory: sessions share one underlying *sql.DB for the process, so
	// the connection itself stays open after Close — Exec/Query/Begin
	// must still reject use of a logically closed session on their own.
	if _, err := sess.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err == nil {
		t.Fatalf("expected Exec to fail after Close")
	}
	if _, err := sess.Query("SELECT 1"); err == nil {
		t.Fatalf("expected Query to fail after Close")
	}
	if err := sess.Begin(); err == nil {
		t.Fatalf("expected Begin to fail after Close")
	}
}

func TestSessionExecThenQuery(t *testing.T) {
	db := newMemDB(t)
	sess, err := db.Session(Default, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	if err := sess.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := sess.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("Exec create: %v", err)
	}
	if _, err := sess.Exec("INSERT INTO t (val) VALUES (?)", "hello"); err != nil {
		t.Fatalf("Exec insert: %v", err)
	}

	rows, err := sess.Query("SELECT val FROM t")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		got = append(got, v)
	}
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v, want [hello]", got)
	}
}
