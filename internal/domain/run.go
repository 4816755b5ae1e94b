package domain

import (
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusSubmitted RunStatus = "submitted"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

var knownRunStatuses = map[RunStatus]struct{}{
	RunStatusPending:   {},
	RunStatusSubmitted: {},
	RunStatusRunning:   {},
	RunStatusSucceeded: {},
	RunStatusFailed:    {},
	RunStatusCanceled:  {},
}

// ParseRunStatus normalizes a status string and rejects unknown values.
func ParseRunStatus(raw string) (RunStatus, error) {
	status := RunStatus(strings.ToLower(strings.TrimSpace(raw)))
	if status == "cancelled" {
		status = RunStatusCanceled
	}
	if _, ok := knownRunStatuses[status]; !ok {
		return "", NewValidationError("status", "unknown status "+strings.TrimSpace(raw))
	}
	return status, nil
}

func (s RunStatus) Valid() bool {
	_, ok := knownRunStatuses[s]
	return ok
}

// Terminal reports whether no further transition is accepted from s.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// UILabel is the user-facing label for a status.
func (s RunStatus) UILabel() string {
	switch s {
	case RunStatusPending, RunStatusSubmitted:
		return "In queue"
	case RunStatusRunning:
		return "In progress"
	case RunStatusSucceeded:
		return "Completed"
	case RunStatusCanceled:
		return "Stopped"
	default:
		return "Failed"
	}
}

// RunStatusFromPlatform maps an execution platform status onto a run status.
// Unrecognised values, including UNKNOWN, map to failed.
func RunStatusFromPlatform(raw string) RunStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUBMITTED":
		return RunStatusSubmitted
	case "RUNNING":
		return RunStatusRunning
	case "SUCCEEDED":
		return RunStatusSucceeded
	case "CANCELLED", "CANCELED":
		return RunStatusCanceled
	default:
		return RunStatusFailed
	}
}

// Run is one internal record of a single external workflow execution.
type Run struct {
	ID                string
	WorkflowID        string
	OwnerUserID       string
	ExternalRunID     string
	ExternalDatasetID string
	RunName           string
	WorkDir           string
	Status            RunStatus
	RequestedAt       time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
	Params            Metadata
	Labels            Metadata
	ErrorSummary      string
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return NewValidationError("run_id", "is required")
	}
	if strings.TrimSpace(r.OwnerUserID) == "" {
		return NewValidationError("owner_user_id", "is required")
	}
	if strings.TrimSpace(r.ExternalRunID) == "" {
		return NewValidationError("external_run_id", "is required")
	}
	if strings.TrimSpace(r.WorkDir) == "" {
		return NewValidationError("work_dir", "is required")
	}
	if !r.Status.Valid() {
		return NewValidationError("status", "unknown status "+string(r.Status))
	}
	return nil
}

// OwnedBy reports whether userID owns the run.
func (r Run) OwnedBy(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && r.OwnerUserID == userID
}

// ApplyStatus returns a copy of the run reflecting a transition to status at t.
// It does not enforce the terminal rule; callers check CanTransition first.
func (r Run) ApplyStatus(status RunStatus, at time.Time) Run {
	next := r
	next.Status = status
	at = at.UTC()
	if status == RunStatusRunning && next.StartedAt == nil {
		started := at
		next.StartedAt = &started
	}
	if status.Terminal() && next.FinishedAt == nil {
		finished := at
		next.FinishedAt = &finished
	}
	return next
}

// CanTransition enforces that terminal runs never change status again.
func (r Run) CanTransition(to RunStatus) error {
	if !to.Valid() {
		return NewValidationError("status", "unknown status "+string(to))
	}
	if r.Status.Terminal() {
		return &InvalidTransitionError{RunID: r.ID, From: r.Status, To: to}
	}
	return nil
}

// StatusesForUILabel returns the statuses shown under a UI label, matched
// case-insensitively. Unknown labels yield nil.
func StatusesForUILabel(label string) []RunStatus {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "in queue":
		return []RunStatus{RunStatusPending, RunStatusSubmitted}
	case "in progress":
		return []RunStatus{RunStatusRunning}
	case "completed":
		return []RunStatus{RunStatusSucceeded}
	case "failed":
		return []RunStatus{RunStatusFailed}
	case "stopped":
		return []RunStatus{RunStatusCanceled}
	default:
		return nil
	}
}
