package domain

import "context"

// UserRepository defines access methods for users and balances.
type UserRepository interface {
	Create(ctx context.Context, user *User, initialCoins float64) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Balance(ctx context.Context, userID string) (float64, error)
}

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, outputPath string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Job, error)
	Delete(ctx context.Context, jobID string) error
}

// Ledger records a completed job and debits its cost atomically. The
// debit must happen at most once per job and only after the output is
// confirmed persisted.
type Ledger interface {
	Record(ctx context.Context, userID string, entry LedgerEntry) (historyID string, newBalance float64, err error)
}
