package domain

import "time"

// Mode selects the vectorization variant requested from the runner.
type Mode string

const (
	ModeBW    Mode = "bw"
	ModeColor Mode = "color"
)

// ValidMode reports whether s names a supported mode.
func ValidMode(s string) bool {
	return Mode(s) == ModeBW || Mode(s) == ModeColor
}

// ParseMode normalizes a requested mode. Unknown values fall back to
// color; callers that must reject bad input check ValidMode first.
func ParseMode(s string) Mode {
	if Mode(s) == ModeBW {
		return ModeBW
	}
	return ModeColor
}

// Cost returns the metered coin cost of one job in this mode.
func (m Mode) Cost() float64 {
	if m == ModeBW {
		return 0.5
	}
	return 1.0
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Job records one vectorization request through its lifecycle. The
// ledger recorder is the sole writer of terminal state.
type Job struct {
	ID         string
	UserID     string
	InputPath  string
	OutputPath string
	Mode       Mode
	Status     JobStatus
	Cost       float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
