package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
)

// fakeTx simulates the slice of pgx.Tx the ledger touches. Mutations
// stay pending until Commit, mirroring transaction semantics, so tests
// can observe that a failed recording leaves no state behind.
type fakeTx struct {
	pgx.Tx

	balance        float64
	pendingBalance float64
	jobTerminal    bool

	jobUpdated    bool
	usageInserted bool
	usageID       string
	committed     bool
	rolledBack    bool
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if !strings.Contains(sql, "UPDATE subscriptions") {
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query: " + sql) }}
	}
	cost := args[0].(float64)
	if t.balance < cost {
		return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
	}
	t.pendingBalance = t.balance - cost
	return fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*float64)) = t.pendingBalance
		return nil
	}}
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(sql, "UPDATE image_jobs"):
		if t.jobTerminal {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		t.jobUpdated = true
		return pgconn.NewCommandTag("UPDATE 1"), nil
	case strings.Contains(sql, "INSERT INTO coin_usage"):
		t.usageInserted = true
		t.usageID, _ = args[0].(string)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	default:
		return pgconn.CommandTag{}, errors.New("unexpected exec: " + sql)
	}
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	t.balance = t.pendingBalance
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
		t.jobUpdated = false
		t.usageInserted = false
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	db.tx.pendingBalance = db.tx.balance
	return db.tx, nil
}

func entry() domain.LedgerEntry {
	return domain.LedgerEntry{
		JobID:     "job-1",
		InputRef:  "https://app.example.com/v1/files?name=in.png&sig=x",
		OutputRef: "https://runner.example.com/outputs/out.svg",
		Mode:      domain.ModeColor,
		Cost:      1.0,
	}
}

func TestRecordExactBalanceSucceeds(t *testing.T) {
	tx := &fakeTx{balance: 1.0}
	ledger := NewLedger(&fakeDB{tx: tx})

	historyID, newBalance, err := ledger.Record(context.Background(), "user-1", entry())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	// The history id names the usage row, not the job.
	if historyID == "" || historyID != tx.usageID {
		t.Fatalf("history id = %q, inserted usage id %q", historyID, tx.usageID)
	}
	if historyID == "job-1" {
		t.Fatalf("history id = job id %q", historyID)
	}
	if newBalance != 0 {
		t.Fatalf("new balance = %v, want exactly 0", newBalance)
	}
	if !tx.committed || !tx.jobUpdated || !tx.usageInserted {
		t.Fatalf("transaction state = %+v", tx)
	}
}

func TestRecordInsufficientBalanceHasNoSideEffects(t *testing.T) {
	tx := &fakeTx{balance: 0.5}
	ledger := NewLedger(&fakeDB{tx: tx})

	_, _, err := ledger.Record(context.Background(), "user-1", entry())
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v", err)
	}
	if tx.committed {
		t.Fatal("transaction committed")
	}
	if !tx.rolledBack {
		t.Fatal("transaction not rolled back")
	}
	if tx.jobUpdated || tx.usageInserted {
		t.Fatal("side effects survived a failed recording")
	}
	if tx.balance != 0.5 {
		t.Fatalf("balance = %v, want unchanged 0.5", tx.balance)
	}
}

func TestRecordTerminalJobNotBilledTwice(t *testing.T) {
	tx := &fakeTx{balance: 5, jobTerminal: true}
	ledger := NewLedger(&fakeDB{tx: tx})

	_, _, err := ledger.Record(context.Background(), "user-1", entry())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if tx.committed {
		t.Fatal("transaction committed for an already-recorded job")
	}
	if tx.balance != 5 {
		t.Fatalf("balance = %v, want unchanged 5", tx.balance)
	}
	if tx.usageInserted {
		t.Fatal("usage row inserted for an already-recorded job")
	}
}

func TestRecordBWCost(t *testing.T) {
	tx := &fakeTx{balance: 1.0}
	ledger := NewLedger(&fakeDB{tx: tx})

	e := entry()
	e.Mode = domain.ModeBW
	e.Cost = e.Mode.Cost()
	_, newBalance, err := ledger.Record(context.Background(), "user-1", e)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if newBalance != 0.5 {
		t.Fatalf("new balance = %v, want 0.5", newBalance)
	}
}
