package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
)

// fakeConn records the driver calls EnsureSchema and WithTx make, so the
// tests can assert on transaction boundaries without a running Postgres.
type fakeConn struct {
	execs      []string
	begun      int
	committed  int
	rolledBack int
	failOn     string
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { c.begun++; return fakeTx{c}, nil }

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.failOn != "" && strings.Contains(query, c.failOn) {
		return nil, errors.New("exec refused")
	}
	c.execs = append(c.execs, query)
	return driver.RowsAffected(0), nil
}

type fakeTx struct{ conn *fakeConn }

func (t fakeTx) Commit() error   { t.conn.committed++; return nil }
func (t fakeTx) Rollback() error { t.conn.rolledBack++; return nil }

type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) {
	return currentFakeConn, nil
}

var currentFakeConn *fakeConn

func init() {
	sql.Register("fakepg", fakeDriver{})
}

func openFake(t *testing.T, conn *fakeConn) *sql.DB {
	t.Helper()
	currentFakeConn = conn
	db, err := sql.Open("fakepg", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	conn := &fakeConn{}
	db := openFake(t, conn)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE something")
		return err
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	if conn.begun != 1 || conn.committed != 1 || conn.rolledBack != 0 {
		t.Fatalf("begun=%d committed=%d rolledBack=%d", conn.begun, conn.committed, conn.rolledBack)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := &fakeConn{}
	db := openFake(t, conn)

	wantErr := errors.New("unit of work failed")
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the work error back, got %v", err)
	}
	if conn.committed != 0 || conn.rolledBack != 1 {
		t.Fatalf("committed=%d rolledBack=%d", conn.committed, conn.rolledBack)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn := &fakeConn{}
	db := openFake(t, conn)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected the panic to propagate")
			}
		}()
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	}()

	if conn.committed != 0 || conn.rolledBack != 1 {
		t.Fatalf("committed=%d rolledBack=%d", conn.committed, conn.rolledBack)
	}
}

func TestEnsureSchemaRunsInOneTransaction(t *testing.T) {
	conn := &fakeConn{}
	db := openFake(t, conn)

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if conn.begun != 1 || conn.committed != 1 {
		t.Fatalf("expected one committed transaction, begun=%d committed=%d", conn.begun, conn.committed)
	}
	if len(conn.execs) != len(schemaStatements) {
		t.Fatalf("expected %d statements, got %d", len(schemaStatements), len(conn.execs))
	}
}

func TestEnsureSchemaRollsBackOnFailure(t *testing.T) {
	conn := &fakeConn{failOn: "call_sessions"}
	db := openFake(t, conn)

	if err := EnsureSchema(context.Background(), db); err == nil {
		t.Fatalf("expected bootstrap failure")
	}
	if conn.committed != 0 || conn.rolledBack != 1 {
		t.Fatalf("partial schema must roll back, committed=%d rolledBack=%d", conn.committed, conn.rolledBack)
	}
}
