package domain

import "time"

// StatusEvent is an immutable entry in a run's status trail.
type StatusEvent struct {
	ID         int64
	RunID      string
	Status     RunStatus
	Note       string
	Metadata   Metadata
	RecordedAt time.Time
}

// RunMetrics is the latest metrics snapshot of a run.
type RunMetrics struct {
	RunID        string
	PrimaryScore *float64
	Extra        Metadata
	UpdatedAt    time.Time
}
