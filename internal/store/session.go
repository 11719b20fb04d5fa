// Package store implements the transactional session over a SQLite-backed
// database: deterministic BEGIN issuance, goroutine affinity, and
// commit-or-rollback on scope exit.
package store

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/tilboerner/cherrymusic-rewrite/internal/store/storeerr"
)

// Isolation mirrors sqlite3's isolation levels plus the two modes that
// need no BEGIN at all: DEFAULT lets the driver manage transactions
// implicitly, AUTOCOMMIT issues every statement outside any transaction.
type Isolation int

const (
	Default Isolation = iota
	Autocommit
	Deferred
	Immediate
	Exclusive
)

func (i Isolation) beginKeyword() (keyword string, needsBegin bool) {
	switch i {
	case Deferred:
		return "DEFERRED", true
	case Immediate:
		return "IMMEDIATE", true
	case Exclusive:
		return "EXCLUSIVE", true
	default:
		return "", false
	}
}

// DefaultBaseDir mirrors cherrymusic's module-level DB_BASEDIR storage root; a
// qualified name is translated into a path under it unless it is the
// special ":memory:" sentinel.
const DefaultBaseDir = "/var/lib/cherrymusic-index/db"

// Database represents one qualified-name-addressed SQLite database. The
// qualified name's dots become path separators under BaseDir, with a
// ".sqlite" suffix, exactly as cherrymusic.database.SqliteDatabase does it
// — except ":memory:" is passed straight through untranslated.
type Database struct {
	Qualname string
	BaseDir  string // defaults to DefaultBaseDir when empty

	mu    sync.Mutex
	hooks []func(*sql.DB) error
	memDB *sql.DB // lazily created, kept alive for ":memory:" (see connect)
}

// NewDatabase returns a Database for qualname, rooted at baseDir (or
// DefaultBaseDir if baseDir is "").
func NewDatabase(qualname, baseDir string) *Database {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return &Database{Qualname: qualname, BaseDir: baseDir}
}

// Path returns the on-disk path this database resolves to, or ":memory:".
func (d *Database) Path() string {
	if d.Qualname == ":memory:" {
		return ":memory:"
	}
	subpath := strings.ReplaceAll(d.Qualname, ".", string(os.PathSeparator)) + ".sqlite"
	return filepath.Join(d.BaseDir, subpath)
}

// OnConnect registers a hook run against every new *sql.DB this Database
// opens — the Go analogue of SqliteDatabase.connection_hook. (BYTE_PATH
// does not use it: that aggregate is registered once, driver-wide.)
func (d *Database) OnConnect(hook func(*sql.DB) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hook)
}

func (d *Database) ensureDir() error {
	target := d.Path()
	if target == ":memory:" {
		return nil
	}
	dir := filepath.Dir(target)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o700)
	}
	return nil
}

// connect returns the *sql.DB a new session should use, running every
// registered connection hook on first use.
//
// For ":memory:", SQLite gives each distinct connection its own empty
// database — so a fresh sql.Open per session would make every session
// see a different, private database. That defeats the purpose of
// ":memory:" as a stand-in for a real store in tests, so the Database
// keeps one shared *sql.DB alive for the lifetime of the process instead
// of opening a new one per session; ordinary qualified-name databases
// still get a fresh connection per session, matching the original.
func (d *Database) connect(isolation Isolation, busyTimeoutMs int) (db *sql.DB, shared bool, err error) {
	if d.Path() == ":memory:" {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.memDB != nil {
			return d.memDB, true, nil
		}
		db, err := d.openConn(":memory:")
		if err != nil {
			return nil, false, err
		}
		d.memDB = db
		return db, true, nil
	}

	if err := d.ensureDir(); err != nil {
		return nil, false, storeerr.New(storeerr.Corruption, "ensure db dir", d.Path(), err)
	}
	dsn := d.Path()
	if busyTimeoutMs > 0 {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = fmt.Sprintf("%s%sbusy_timeout=%d", dsn, sep, busyTimeoutMs)
	}
	conn, err := d.openConn(dsn)
	if err != nil {
		return nil, false, err
	}
	return conn, false, nil
}

func (d *Database) openConn(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeerr.New(storeerr.Corruption, "open sqlite", d.Path(), err)
	}
	db.SetMaxOpenConns(1) // one connection keeps goroutine affinity meaningful

	d.mu.Lock()
	hooks := append([]func(*sql.DB) error(nil), d.hooks...)
	d.mu.Unlock()
	for _, hook := range hooks {
		if err := hook(db); err != nil {
			_ = db.Close()
			return nil, storeerr.New(storeerr.Corruption, "run connection hook", d.Path(), err)
		}
	}
	return db, nil
}

// Session opens a new Session over this database with the given isolation
// and busy timeout. busyTimeoutMs <= 0 sets no busy_timeout pragma at all,
// which leaves SQLite's own default of failing immediately on contention
// in effect — exactly the timeout_secs=0 behavior the migration runner
// relies on for its EXCLUSIVE sessions.
func (d *Database) Session(isolation Isolation, busyTimeoutMs int) (*Session, error) {
	db, shared, err := d.connect(isolation, busyTimeoutMs)
	if err != nil {
		return nil, err
	}
	return &Session{
		database:  d,
		isolation: isolation,
		db:        db,
		shared:    shared,
		openerGID: currentGoroutineID(),
	}, nil
}

// Session wraps one open *sql.DB for the duration of a unit of work.
// Sessions are goroutine-affine: every call must come from the goroutine
// that opened the session, mirroring the thread-local enforcement in
// cherrymusic's SqliteSession. Commit may be called between batches; a
// transaction still open at Close is committed (or rolled back by
// CloseWithError).
type Session struct {
	database  *Database
	isolation Isolation
	db        *sql.DB // MaxOpenConns(1): the single connection this session owns
	shared    bool    // true for ":memory:", where db outlives this session
	openerGID string

	mu     sync.Mutex
	opened bool // Begin was called at least once; guards "used outside session context"
	inTx   bool // a BEGIN was issued and not yet committed/rolled back
	closed bool
}

// Begin issues the deterministic BEGIN <mode> for isolations that need
// one (everything but Default/Autocommit), as a plain statement over the
// session's single connection — not a database/sql Tx, which manages its
// own implicit BEGIN and would conflict with an explicit mode keyword.
//
// Begin may be called again after a prior transaction on this session was
// committed or rolled back, to start the next batch — that is not
// nesting. Nesting is calling Begin while a transaction opened by an
// earlier Begin on this same session is still open, which is a
// SessionMisuse error: "Sessions cannot be nested!" in the original.
func (s *Session) Begin() error {
	if err := s.checkAffinity("begin"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storeerr.New(storeerr.SessionMisuse, "begin", "", fmt.Errorf("session is closed"))
	}
	if s.inTx {
		return storeerr.New(storeerr.SessionMisuse, "begin", "", fmt.Errorf("sessions cannot be nested"))
	}
	keyword, needsBegin := s.isolation.beginKeyword()
	if needsBegin {
		if _, err := s.db.Exec("BEGIN " + keyword); err != nil {
			return classifySQLiteError("begin "+keyword, err)
		}
		s.inTx = true
	}
	s.opened = true
	return nil
}

// Exec runs sql with params inside the session.
func (s *Session) Exec(sqlStmt string, args ...any) (sql.Result, error) {
	if err := s.checkAffinity("exec"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storeerr.New(storeerr.SessionMisuse, "exec", "", fmt.Errorf("session is closed"))
	}
	if !s.opened {
		return nil, storeerr.New(storeerr.SessionMisuse, "exec", "", fmt.Errorf("do not call outside of session context"))
	}
	res, err := s.db.Exec(sqlStmt, args...)
	if err != nil {
		return nil, classifySQLiteError("exec", err)
	}
	return res, nil
}

// Query runs sql with params inside the session and returns the rows.
// Callers must close the returned *sql.Rows.
func (s *Session) Query(sqlStmt string, args ...any) (*sql.Rows, error) {
	if err := s.checkAffinity("query"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storeerr.New(storeerr.SessionMisuse, "query", "", fmt.Errorf("session is closed"))
	}
	if !s.opened {
		return nil, storeerr.New(storeerr.SessionMisuse, "query", "", fmt.Errorf("do not call outside of session context"))
	}
	rows, err := s.db.Query(sqlStmt, args...)
	if err != nil {
		return nil, classifySQLiteError("query", err)
	}
	return rows, nil
}

// Commit commits the open transaction, if any. Safe to call manually
// before Close to commit partway through a long session, and safe to call
// again afterward (a no-op once there is nothing left open).
func (s *Session) Commit() error {
	if err := s.checkAffinity("commit"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inTx {
		return nil
	}
	if _, err := s.db.Exec("COMMIT"); err != nil {
		return classifySQLiteError("commit", err)
	}
	s.inTx = false
	return nil
}

// Close ends the session: commits any open transaction, then closes the
// underlying connection (a shared ":memory:" connection is left open for
// the Database's later sessions). Use CloseWithError to roll back instead, e.g.
// from a deferred cleanup that observed an error.
func (s *Session) Close() error {
	return s.closeSession(nil)
}

// CloseWithError rolls back any open transaction (instead of committing)
// before closing, and returns cause unchanged for easy defer chaining:
//
//	sess, _ := db.Session(store.Immediate, 0)
//	defer func() { _ = sess.CloseWithError(retErr) }()
func (s *Session) CloseWithError(cause error) error {
	if err := s.closeSession(cause); err != nil {
		return err
	}
	return cause
}

func (s *Session) closeSession(cause error) error {
	if err := s.checkAffinity("close"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var txErr error
	if s.inTx {
		if cause != nil {
			_, txErr = s.db.Exec("ROLLBACK")
		} else {
			_, txErr = s.db.Exec("COMMIT")
		}
		s.inTx = false
	}

	if !s.shared {
		if err := s.db.Close(); err != nil && txErr == nil {
			txErr = err
		}
	}
	if txErr != nil {
		return classifySQLiteError("close", txErr)
	}
	return nil
}

func (s *Session) checkAffinity(op string) error {
	if gid := currentGoroutineID(); gid != s.openerGID {
		return storeerr.New(storeerr.SessionMisuse, op, "", fmt.Errorf("do not share sessions across goroutines (opened by %s, called from %s)", s.openerGID, gid))
	}
	return nil
}

// currentGoroutineID extracts the numeric goroutine id from the current
// goroutine's stack trace header. This is a well-known hack (there is no
// supported API for it) and is the nearest Go analogue to Python's
// threading.get_ident(): good enough to detect cross-goroutine misuse of
// a session, never used for scheduling decisions.
func currentGoroutineID() string {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return "unknown"
	}
	buf = buf[len(prefix):]
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	if _, err := strconv.ParseUint(string(buf), 10, 64); err != nil {
		return "unknown"
	}
	return string(buf)
}
