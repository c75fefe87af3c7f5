package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// Conn owns the single connection to one database file. All statement
// execution is funneled through it so that hook dispatch and transaction
// scoping stay coherent across goroutines.
type Conn struct {
	db   *sql.DB
	path string

	// mu serializes multi-statement transactions. Individual statements
	// are already serialized by the one-connection pool.
	mu sync.Mutex

	hooks hookRegistry
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Conn, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to open database: %w", err))
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c := &Conn{db: db, path: path}

	// journal_mode replies with a row, so it goes through QueryRow
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		db.Close()
		return nil, Classify(fmt.Errorf("failed to enable WAL: %w", err))
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA recursive_triggers = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -16000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, Classify(fmt.Errorf("failed to execute %s: %w", pragma, err))
		}
	}

	return c, nil
}

// Close closes the database connection.
func (c *Conn) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Conn) Path() string {
	return c.path
}

// DB exposes the underlying handle for read-only queries that need no hook
// bookkeeping.
func (c *Conn) DB() *sql.DB {
	return c.db
}

// QueryRow runs a single-row query.
func (c *Conn) QueryRow(query string, args ...interface{}) *sql.Row {
	return c.db.QueryRow(query, args...)
}

// Query runs a multi-row query.
func (c *Conn) Query(query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return rows, nil
}

// Exec runs a statement outside any transaction. Changes recorded against
// it are dispatched to hooks immediately.
func (c *Conn) Exec(query string, args ...interface{}) (sql.Result, error) {
	res, err := c.db.Exec(query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

// Transaction executes fn within a transaction. Commit/rollback is
// guaranteed on every exit path, and row changes recorded through the Tx
// are dispatched to hooks only after a successful commit, in rowid order.
// Nesting on the same Conn deadlocks by construction; callers compose by
// passing the active *Tx down.
func (c *Conn) Transaction(fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sqlTx, err := c.db.Begin()
	if err != nil {
		return Classify(fmt.Errorf("failed to begin transaction: %w", err))
	}

	tx := &Tx{conn: c, tx: sqlTx}
	defer sqlTx.Rollback()

	if err := fn(tx); err != nil {
		return Classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return Classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	c.hooks.dispatch(tx.changes)
	return nil
}

// WeakContext runs fn with foreign-key enforcement and recursive triggers
// disabled. Used for bulk schema rewrites during migrations, where the
// intermediate states would otherwise trip the constraint network.
func (c *Conn) WeakContext(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return Classify(err)
	}
	if _, err := c.db.Exec("PRAGMA recursive_triggers = OFF"); err != nil {
		return Classify(err)
	}
	defer func() {
		c.db.Exec("PRAGMA recursive_triggers = ON")
		c.db.Exec("PRAGMA foreign_keys = ON")
	}()

	return fn()
}

// CheckIntegrity runs PRAGMA integrity_check on the database.
func (c *Conn) CheckIntegrity() error {
	var result string
	err := c.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return Classify(fmt.Errorf("integrity check query failed: %w", err))
	}
	if result != "ok" {
		return &Error{Kind: KindCorrupt, Err: fmt.Errorf("integrity check failed: %s", result)}
	}
	return nil
}

// Tx wraps an open transaction and records row changes for post-commit
// hook dispatch.
type Tx struct {
	conn    *Conn
	tx      *sql.Tx
	changes []change
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(query string, args ...interface{}) (sql.Result, error) {
	res, err := t.tx.Exec(query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

// QueryRow runs a single-row query inside the transaction.
func (t *Tx) QueryRow(query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRow(query, args...)
}

// Query runs a multi-row query inside the transaction.
func (t *Tx) Query(query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return rows, nil
}

// Record notes a row change for post-commit hook dispatch.
func (t *Tx) Record(table string, reason HookReason, rowID int64) {
	t.changes = append(t.changes, change{table: table, reason: reason, rowID: rowID})
}
