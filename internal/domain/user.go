package domain

import "time"

// User is the owning account for jobs and coin usage.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Subscription carries the metered balance for a user. Plan limits and
// top-ups are managed by the billing collaborator; this service only
// reads and debits coins_remaining.
type Subscription struct {
	UserID         string
	Plan           string
	CoinsRemaining float64
	UpdatedAt      time.Time
}

// LedgerEntry is a confirmed, billable job result ready to be recorded.
type LedgerEntry struct {
	JobID     string
	InputRef  string
	OutputRef string
	Mode      Mode
	Cost      float64
}
