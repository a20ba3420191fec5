package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_QueryScansRows(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "alice").
		AddRow(int64(2), "bob")
	mock.ExpectPrepare("SELECT id, name FROM users").ExpectQuery().WillReturnRows(rows)

	d := wrapConn(conn)
	var names []string
	err = d.Query(context.Background(), "SELECT id, name FROM users", nil, func(cols []Column) bool {
		names = append(names, cols[1].Value.(string))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_QueryStopsOnCallbackFalse(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2))
	mock.ExpectPrepare("SELECT id FROM t").ExpectQuery().WillReturnRows(rows)

	d := wrapConn(conn)
	seen := 0
	err = d.Query(context.Background(), "SELECT id FROM t", nil, func(cols []Column) bool {
		seen++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestDB_ExecReturnsRowsAffected(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectPrepare("UPDATE t SET v").ExpectExec().WillReturnResult(sqlmock.NewResult(0, 3))

	d := wrapConn(conn)
	n, err := d.Exec(context.Background(), "UPDATE t SET v = ?", []interface{}{1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDB_ExecPropagatesDriverError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectPrepare("DELETE FROM t").ExpectExec().WillReturnError(errors.New("constraint failed"))

	d := wrapConn(conn)
	_, err = d.Exec(context.Background(), "DELETE FROM t", nil)
	assert.Error(t, err)
}

func TestDB_BeginCommitRollback(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	d := wrapConn(conn)
	require.NoError(t, d.Begin(context.Background()))
	assert.Error(t, d.Begin(context.Background())) // already open
	require.NoError(t, d.Commit())
	assert.Error(t, d.Commit()) // already closed
}

func TestDB_GuardStaleTxnRollsBackOpenTxn(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	d := wrapConn(conn)
	require.NoError(t, d.Begin(context.Background()))
	require.NoError(t, d.GuardStaleTxn())
	assert.Nil(t, d.tx)
}

func TestDB_GuardStaleTxnNoopWithoutOpenTxn(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	d := wrapConn(conn)
	assert.NoError(t, d.GuardStaleTxn())
}

func TestStmtCache_EvictsOldestBeyondBound(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	c := newStmtCache(2)
	for _, q := range []string{"SELECT 1", "SELECT 2", "SELECT 3"} {
		mock.ExpectPrepare(q)
		_, err := c.get(context.Background(), conn, q)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	_, stillCached := c.entries["SELECT 1"]
	assert.False(t, stillCached)
}

func TestStmtCache_HitMovesToFront(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	c := newStmtCache(2)
	mock.ExpectPrepare("SELECT 1")
	mock.ExpectPrepare("SELECT 2")
	_, err = c.get(context.Background(), conn, "SELECT 1")
	require.NoError(t, err)
	_, err = c.get(context.Background(), conn, "SELECT 2")
	require.NoError(t, err)

	// Re-touch "SELECT 1" so it's MRU, then insert a third query: "SELECT 2" should evict.
	_, err = c.get(context.Background(), conn, "SELECT 1")
	require.NoError(t, err)

	mock.ExpectPrepare("SELECT 3")
	_, err = c.get(context.Background(), conn, "SELECT 3")
	require.NoError(t, err)

	_, has1 := c.entries["SELECT 1"]
	_, has2 := c.entries["SELECT 2"]
	assert.True(t, has1)
	assert.False(t, has2)
}

func TestIsBusyErr(t *testing.T) {
	assert.True(t, isBusyErr(errors.New("database is locked")))
	assert.True(t, isBusyErr(errors.New("SQLITE_BUSY")))
	assert.False(t, isBusyErr(errors.New("syntax error")))
	assert.False(t, isBusyErr(nil))
}
