package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func openTestConn(t *testing.T) *Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		os.Remove(path)
	})
	return conn
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{errors.New("database is locked (5) (SQLITE_BUSY)"), KindBusy},
		{errors.New("UNIQUE constraint failed: files.mrl"), KindConstraint},
		{errors.New("database disk image is malformed"), KindCorrupt},
		{errors.New("no such table: media"), KindSchemaMismatch},
		{errors.New("disk I/O error"), KindIo},
		{errors.New("something else"), KindGeneric},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%q) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	orig := &Error{Kind: KindBusy, Err: errors.New("x")}
	wrapped := fmt.Errorf("context: %w", orig)
	if Classify(wrapped) == nil || KindOf(wrapped) != KindBusy {
		t.Error("expected wrapped classified error to keep its kind")
	}
}

func TestWithRetriesGivesUpOnBusy(t *testing.T) {
	attempts := 0
	err := WithRetries(3, func() error {
		attempts++
		return &Error{Kind: KindBusy, Err: errors.New("database is locked")}
	})
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if KindOf(err) != KindGeneric {
		t.Errorf("persistent busy should surface as generic, got %v", KindOf(err))
	}
}

func TestWithRetriesStopsOnOtherErrors(t *testing.T) {
	attempts := 0
	err := WithRetries(3, func() error {
		attempts++
		return &Error{Kind: KindConstraint, Err: errors.New("constraint")}
	})
	if attempts != 1 {
		t.Errorf("non-busy error should not retry, got %d attempts", attempts)
	}
	if !IsConstraint(err) {
		t.Errorf("expected constraint error, got %v", err)
	}
}

func TestWithRetriesEventualSuccess(t *testing.T) {
	attempts := 0
	err := WithRetries(3, func() error {
		attempts++
		if attempts < 2 {
			return &Error{Kind: KindBusy, Err: errors.New("busy")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestTransactionCommitFiresHooksInRowidOrder(t *testing.T) {
	conn := openTestConn(t)
	if _, err := conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}

	var fired []int64
	conn.RegisterHook("t", func(reason HookReason, id int64) {
		if reason != HookInsert {
			t.Errorf("unexpected reason %v", reason)
		}
		fired = append(fired, id)
	})

	err := conn.Transaction(func(tx *Tx) error {
		for _, id := range []int64{3, 1, 2} {
			if _, err := tx.Exec("INSERT INTO t (id) VALUES (?)", id); err != nil {
				return err
			}
			tx.Record("t", HookInsert, id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	if len(fired) != 3 || fired[0] != 1 || fired[1] != 2 || fired[2] != 3 {
		t.Errorf("expected hooks in rowid order [1 2 3], got %v", fired)
	}
}

func TestTransactionRollbackFiresNoHooks(t *testing.T) {
	conn := openTestConn(t)
	if _, err := conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}

	fired := 0
	conn.RegisterHook("t", func(HookReason, int64) { fired++ })

	wantErr := errors.New("boom")
	err := conn.Transaction(func(tx *Tx) error {
		if _, err := tx.Exec("INSERT INTO t (id) VALUES (1)"); err != nil {
			return err
		}
		tx.Record("t", HookInsert, 1)
		return wantErr
	})
	if err == nil {
		t.Fatal("expected transaction error")
	}
	if fired != 0 {
		t.Errorf("hooks fired on rollback: %d", fired)
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("rollback left %d rows", count)
	}
}

func TestWeakContextRestoresPragmas(t *testing.T) {
	conn := openTestConn(t)
	err := conn.WeakContext(func() error {
		var fk int
		if err := conn.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
			return err
		}
		if fk != 0 {
			t.Error("foreign keys still on inside weak context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("weak context failed: %v", err)
	}

	var fk int
	if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Error("foreign keys not restored after weak context")
	}
}
