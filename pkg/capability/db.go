// Package capability implements the db, fs, env, time and http
// capability primitives: the only functions in Hull that perform
// externally observable effects, per spec.md §4.2.
//
// Grounded on pkg/store.SQLiteReceiptStore's database/sql +
// modernc.org/sqlite wiring, generalized from one fixed table's
// migrate/insert/scan trio into the general-purpose
// query/exec/begin/commit/rollback surface spec.md §4.2 describes,
// plus the PRAGMA tuning set and busy-retry via
// github.com/cenkalti/backoff/v5 that the teacher's go.mod carries but
// never exercises.
package capability

import (
	"container/list"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mindburn-labs/hull/pkg/herrors"

	_ "modernc.org/sqlite"
)

// pragmas is the fixed tuning set spec.md §4.2 requires on init.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA cache_size = -16384", // 16 MiB page cache
	"PRAGMA temp_store = MEMORY",
	"PRAGMA mmap_size = 268435456", // 256 MiB
	"PRAGMA wal_autocheckpoint = 1000",
}

// DB wraps a *sql.DB with Hull's capability surface: a bounded
// prepared-statement LRU, stale-transaction guarding, and busy-retry.
type DB struct {
	conn *sql.DB
	tx   *sql.Tx

	mu    sync.Mutex
	stmts *stmtCache
}

// Open opens the SQLite database at path and applies the fixed PRAGMA
// set.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, herrors.Wrap(herrors.IOError, "db: open failed", err)
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, herrors.Wrap(herrors.IOError, "db: pragma failed: "+p, err)
		}
	}
	return &DB{conn: conn, stmts: newStmtCache(64)}, nil
}

// wrapConn builds a DB around an already-open *sql.DB without applying
// the PRAGMA set, for tests that supply their own driver connection.
func wrapConn(conn *sql.DB) *DB {
	return &DB{conn: conn, stmts: newStmtCache(64)}
}

// Close finalizes every cached statement and closes the underlying handle.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stmts.closeAll()
	return d.conn.Close()
}

// RowCallback is invoked per result row; returning false stops iteration.
type RowCallback func(cols []Column) bool

// Column is a (name, value) pair borrowed from the driver for the
// duration of one RowCallback invocation.
type Column struct {
	Name  string
	Value interface{}
}

// Query runs sql with params, invoking cb once per row. sql text is
// always a literal from the call site; params are always passed as
// driver args, never interpolated.
func (d *DB) Query(ctx context.Context, query string, params []interface{}, cb RowCallback) error {
	stmt, err := d.prepare(ctx, query)
	if err != nil {
		return err
	}

	var rows *sql.Rows
	err = d.withBusyRetry(ctx, func() error {
		var qerr error
		rows, qerr = stmt.QueryContext(ctx, params...)
		return qerr
	})
	if err != nil {
		return herrors.Wrap(herrors.IOError, "db: query failed", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return herrors.Wrap(herrors.IOError, "db: columns failed", err)
	}

	for rows.Next() {
		vals := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return herrors.Wrap(herrors.IOError, "db: scan failed", err)
		}
		cols := make([]Column, len(names))
		for i, n := range names {
			cols[i] = Column{Name: n, Value: vals[i]}
		}
		if !cb(cols) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return herrors.Wrap(herrors.IOError, "db: row iteration failed", err)
	}
	return nil
}

// Exec runs a non-query statement and returns rows affected.
func (d *DB) Exec(ctx context.Context, query string, params []interface{}) (int64, error) {
	stmt, err := d.prepare(ctx, query)
	if err != nil {
		return -1, err
	}

	var result sql.Result
	err = d.withBusyRetry(ctx, func() error {
		var eerr error
		result, eerr = stmt.ExecContext(ctx, params...)
		return eerr
	})
	if err != nil {
		return -1, herrors.Wrap(herrors.IOError, "db: exec failed", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return -1, herrors.Wrap(herrors.IOError, "db: rows affected failed", err)
	}
	return n, nil
}

// LastInsertID returns the rowid of the most recently inserted row.
func (d *DB) LastInsertID(ctx context.Context) (int64, error) {
	var id int64
	err := d.Query(ctx, "SELECT last_insert_rowid()", nil, func(cols []Column) bool {
		if v, ok := cols[0].Value.(int64); ok {
			id = v
		}
		return false
	})
	return id, err
}

// Begin starts a transaction. Fails if one is already open.
func (d *DB) Begin(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return herrors.New(herrors.InvalidArgument, "db: transaction already open")
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return herrors.Wrap(herrors.IOError, "db: begin failed", err)
	}
	d.tx = tx
	return nil
}

// Commit commits the open transaction, if any.
func (d *DB) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return herrors.New(herrors.InvalidArgument, "db: no open transaction")
	}
	err := d.tx.Commit()
	d.tx = nil
	if err != nil {
		return herrors.Wrap(herrors.IOError, "db: commit failed", err)
	}
	return nil
}

// Rollback rolls back the open transaction, if any. Rolling back when
// none is open is a no-op, matching GuardStaleTxn's use of it.
func (d *DB) Rollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return nil
	}
	err := d.tx.Rollback()
	d.tx = nil
	if err != nil {
		return herrors.Wrap(herrors.IOError, "db: rollback failed", err)
	}
	return nil
}

// GuardStaleTxn rolls back any transaction left open by a crashed
// prior request. Called at the start of every request, per spec.md
// §4.2 and the "Stale transaction cleanup" scenario in §8.
func (d *DB) GuardStaleTxn() error {
	return d.Rollback()
}

func (d *DB) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stmts.get(ctx, d.conn, query)
}

// withBusyRetry retries op against SQLITE_BUSY with exponential
// backoff, on top of the PRAGMA busy_timeout already applied at open.
func (d *DB) withBusyRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && isBusyErr(err) {
			return struct{}{}, err
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(5))
	return err
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}

// stmtCache is a bounded LRU over SQL text → prepared statement,
// scoped to one DB handle, per spec.md §3's Prepared statement cache
// invariant: on hit, move to MRU; on miss, prepare the new statement
// and, if the cache is full, finalize the oldest before inserting it.
type stmtCache struct {
	bound   int
	entries map[string]*list.Element
	order   *list.List // front = MRU
}

type stmtEntry struct {
	query string
	stmt  *sql.Stmt
}

func newStmtCache(bound int) *stmtCache {
	return &stmtCache{
		bound:   bound,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *stmtCache) get(ctx context.Context, conn *sql.DB, query string) (*sql.Stmt, error) {
	if el, ok := c.entries[query]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*stmtEntry).stmt, nil
	}

	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, fmt.Sprintf("db: prepare failed for %q", query), err)
	}

	if c.order.Len() >= c.bound {
		oldest := c.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*stmtEntry)
			_ = entry.stmt.Close()
			delete(c.entries, entry.query)
			c.order.Remove(oldest)
		}
	}

	el := c.order.PushFront(&stmtEntry{query: query, stmt: stmt})
	c.entries[query] = el
	return stmt, nil
}

func (c *stmtCache) closeAll() {
	for el := c.order.Front(); el != nil; el = el.Next() {
		_ = el.Value.(*stmtEntry).stmt.Close()
	}
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len reports the current number of cached statements, for tests
// exercising the LRU bound invariant.
func (c *stmtCache) Len() int {
	return c.order.Len()
}
