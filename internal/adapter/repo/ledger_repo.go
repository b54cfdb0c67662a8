package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"server/internal/domain"
)

// TxBeginner is the slice of pgxpool.Pool the ledger needs. It is an
// interface so the transactional recording logic is testable with a
// fake transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LedgerPG implements domain.Ledger. Recording is one transaction:
// debit the balance, flip the job to done, insert the usage row. The
// debit is a single conditional UPDATE, so two concurrent recordings
// for the same user cannot both pass the balance check regardless of
// isolation level.
type LedgerPG struct {
	db TxBeginner
}

// NewLedger creates a ledger recorder backed by PostgreSQL.
func NewLedger(db TxBeginner) *LedgerPG {
	return &LedgerPG{db: db}
}

// Record debits entry.Cost from the user and marks the job done. It
// returns domain.ErrInsufficientBalance with no side effects when the
// balance does not cover the cost, and domain.ErrNotFound when the job
// row is missing or already terminal (a job is billed at most once).
func (l *LedgerPG) Record(ctx context.Context, userID string, entry domain.LedgerEntry) (string, float64, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance float64
	row := tx.QueryRow(ctx, `
UPDATE subscriptions
SET coins_remaining = coins_remaining - $1,
    updated_at = NOW()
WHERE user_id = $2
  AND coins_remaining >= $1
RETURNING coins_remaining;
`, entry.Cost, userID)
	if err := row.Scan(&newBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, domain.ErrInsufficientBalance
		}
		return "", 0, fmt.Errorf("ledger: debit: %w", err)
	}

	tag, err := tx.Exec(ctx, `
UPDATE image_jobs
SET status = $2,
    original_image_path = COALESCE(NULLIF($3, ''), original_image_path),
    output_svg_path = $4,
    cost = $5,
    updated_at = NOW()
WHERE id = $1
  AND status NOT IN ('done', 'failed');
`, entry.JobID, domain.JobStatusDone, entry.InputRef, entry.OutputRef, entry.Cost)
	if err != nil {
		return "", 0, fmt.Errorf("ledger: record job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", 0, domain.ErrNotFound
	}

	usageID := uuid.NewString()
	if _, err := tx.Exec(ctx, `
INSERT INTO coin_usage (id, user_id, job_id, coins_used)
VALUES ($1, $2, $3, $4);
`, usageID, userID, entry.JobID, entry.Cost); err != nil {
		return "", 0, fmt.Errorf("ledger: usage row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, fmt.Errorf("ledger: commit: %w", err)
	}
	return usageID, newBalance, nil
}
